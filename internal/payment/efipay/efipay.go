package efipay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrConfigInvalid    = errors.New("efipay config invalid")
	ErrRequestFailed    = errors.New("efipay request failed")
	ErrResponseInvalid  = errors.New("efipay response invalid")
	ErrSignatureInvalid = errors.New("efipay signature invalid")
)

// Config Efí (Gerencianet) PIX 配置
type Config struct {
	BaseURL       string `json:"base_url"`       // API 地址，默认 https://pix.api.efipay.com.br
	ClientID      string `json:"client_id"`      // OAuth client_id
	ClientSecret  string `json:"client_secret"`  // OAuth client_secret
	PixKey        string `json:"pix_key"`        // 收款 PIX 密钥
	WebhookSecret string `json:"webhook_secret"` // 回调 HMAC 密钥（可为空）
	ExpireSeconds int    `json:"expire_seconds"` // 收款有效期，默认 3600
}

// CreateInput 创建 PIX 收款输入
type CreateInput struct {
	OrderNo     string
	Amount      string
	Description string
}

// CreateResult 创建 PIX 收款结果
type CreateResult struct {
	TransactionID string                 // txid
	ChargeCode    string                 // PIX 复制粘贴码
	QRImage       string                 // 二维码图片（base64）
	Raw           map[string]interface{} // 原始响应
}

// WebhookData 回调数据
type WebhookData struct {
	TransactionID string                 // txid
	EndToEndID    string                 // 银行端到端流水号
	Status        string                 // 状态（回调仅在入账时触发，默认 paid）
	Amount        interface{}            // 金额
	Raw           map[string]interface{} // 原始数据
}

// GetAmount 获取金额（float64）
func (d *WebhookData) GetAmount() float64 {
	switch v := d.Amount.(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}

// ParseConfig 解析配置
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal config failed", ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config failed", ErrConfigInvalid)
	}
	cfg.normalize()
	return &cfg, nil
}

// ValidateConfig 校验配置
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return fmt.Errorf("%w: client_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return fmt.Errorf("%w: client_secret is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.PixKey) == "" {
		return fmt.Errorf("%w: pix_key is required", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.PixKey = strings.TrimSpace(c.PixKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	if c.BaseURL == "" {
		c.BaseURL = "https://pix.api.efipay.com.br"
	}
	if c.ExpireSeconds <= 0 {
		c.ExpireSeconds = 3600
	}
}

// CreateCharge 创建 PIX 收款。
// 流程：OAuth 取 token → 创建 cob → 拉取二维码。
func CreateCharge(ctx context.Context, cfg *Config, input CreateInput) (*CreateResult, error) {
	if cfg == nil {
		return nil, ErrConfigInvalid
	}
	if input.OrderNo == "" || input.Amount == "" {
		return nil, ErrConfigInvalid
	}
	if _, err := strconv.ParseFloat(input.Amount, 64); err != nil {
		return nil, fmt.Errorf("%w: invalid amount", ErrConfigInvalid)
	}

	token, err := fetchToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// cob 的 txid 要求 26-35 位字母数字，用订单编号去掉分隔符
	txid := sanitizeTxid(input.OrderNo)
	params := map[string]interface{}{
		"calendario": map[string]interface{}{
			"expiracao": cfg.ExpireSeconds,
		},
		"valor": map[string]interface{}{
			"original": input.Amount,
		},
		"chave":              cfg.PixKey,
		"solicitacaoPagador": input.Description,
	}
	respBytes, err := doJSON(ctx, http.MethodPut, cfg.BaseURL+"/v2/cob/"+txid, token, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var cob struct {
		Txid          string `json:"txid"`
		PixCopiaECola string `json:"pixCopiaECola"`
		Loc           struct {
			ID int64 `json:"id"`
		} `json:"loc"`
	}
	if err := json.Unmarshal(respBytes, &cob); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if cob.Txid == "" {
		return nil, fmt.Errorf("%w: missing txid", ErrResponseInvalid)
	}

	qrImage := ""
	chargeCode := cob.PixCopiaECola
	if cob.Loc.ID > 0 {
		qrBytes, err := doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/v2/loc/%d/qrcode", cfg.BaseURL, cob.Loc.ID), token, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch qr: %v", ErrRequestFailed, err)
		}
		var qr struct {
			QRCode       string `json:"qrcode"`
			ImagemQRCode string `json:"imagemQrcode"`
		}
		if err := json.Unmarshal(qrBytes, &qr); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
		}
		if chargeCode == "" {
			chargeCode = qr.QRCode
		}
		qrImage = qr.ImagemQRCode
	}
	if chargeCode == "" {
		return nil, fmt.Errorf("%w: missing pix code", ErrResponseInvalid)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)

	return &CreateResult{
		TransactionID: cob.Txid,
		ChargeCode:    chargeCode,
		QRImage:       qrImage,
		Raw:           raw,
	}, nil
}

// ParseWebhook 解析回调数据。
// 入账通知把明细放在 pix 数组里（一次可携带多笔），也接受平铺的 txid。
func ParseWebhook(body []byte) (*WebhookData, error) {
	if len(body) == 0 {
		return nil, ErrResponseInvalid
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	data := &WebhookData{Raw: raw, Status: "paid"}

	source := raw
	if list, ok := raw["pix"].([]interface{}); ok && len(list) > 0 {
		if first, ok := list[0].(map[string]interface{}); ok {
			source = first
		}
	}
	if txid, ok := source["txid"].(string); ok {
		data.TransactionID = strings.TrimSpace(txid)
	}
	if e2e, ok := source["endToEndId"].(string); ok {
		data.EndToEndID = strings.TrimSpace(e2e)
	}
	if status, ok := source["status"].(string); ok && strings.TrimSpace(status) != "" {
		data.Status = strings.TrimSpace(status)
	}
	if amount, ok := source["valor"]; ok {
		data.Amount = amount
	} else if amount, ok := source["amount"]; ok {
		data.Amount = amount
	}
	return data, nil
}

// VerifySignature 验证回调签名（对原始请求体做 HMAC-SHA256，十六进制比较）
func VerifySignature(cfg *Config, signature string, body []byte) error {
	if cfg == nil {
		return ErrConfigInvalid
	}
	if cfg.WebhookSecret == "" {
		return nil
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrSignatureInvalid
	}
	mac := hmac.New(sha256.New, []byte(cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrSignatureInvalid
	}
	return nil
}

// ToPaymentStatus 将网关状态归一化为内部状态
func ToPaymentStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PAID", "CONCLUIDA", "LIQUIDADO":
		return "paid"
	case "REMOVIDA_PELO_USUARIO_RECEBEDOR", "REMOVIDA_PELO_PSP", "EXPIRADA":
		return "cancelled"
	case "DEVOLVIDO", "DEVOLUCAO":
		return "refunded"
	default:
		return "pending"
	}
}

func sanitizeTxid(orderNo string) string {
	var b strings.Builder
	for _, r := range orderNo {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	txid := b.String()
	if len(txid) > 35 {
		txid = txid[:35]
	}
	return txid
}

func fetchToken(ctx context.Context, cfg *Config) (string, error) {
	params := map[string]interface{}{"grant_type": "client_credentials"}
	body, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/oauth/token", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: oauth status %d", ErrRequestFailed, resp.StatusCode)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(respBytes, &token); err != nil {
		return "", fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: missing access_token", ErrResponseInvalid)
	}
	return token.AccessToken, nil
}

func doJSON(ctx context.Context, method, endpoint, token string, params map[string]interface{}) ([]byte, error) {
	var reader io.Reader
	if params != nil {
		body, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		reader = strings.NewReader(string(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
