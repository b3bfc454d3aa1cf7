package mercadopago

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
	ErrConfigInvalid    = errors.New("mercadopago config invalid")
	ErrRequestFailed    = errors.New("mercadopago request failed")
	ErrResponseInvalid  = errors.New("mercadopago response invalid")
	ErrSignatureInvalid = errors.New("mercadopago signature invalid")
)

// Config Mercado Pago 配置
type Config struct {
	BaseURL       string `json:"base_url"`       // API 地址，默认 https://api.mercadopago.com
	AccessToken   string `json:"access_token"`   // Bearer Token
	NotifyURL     string `json:"notify_url"`     // 异步通知地址
	WebhookSecret string `json:"webhook_secret"` // 回调签名密钥（可为空）
	PayerEmail    string `json:"payer_email"`    // 默认付款人邮箱
}

// CreateInput 创建 PIX 收款输入
type CreateInput struct {
	OrderNo     string
	Amount      string
	Description string
}

// CreateResult 创建 PIX 收款结果
type CreateResult struct {
	TransactionID string                 // 网关支付 ID
	ChargeCode    string                 // PIX 复制粘贴码
	QRImage       string                 // 二维码图片（base64）
	Raw           map[string]interface{} // 原始响应
}

// WebhookData 回调数据（字段随版本漂移，解析时做多字段兜底）
type WebhookData struct {
	TransactionID string                 // 支付 ID
	ExternalRef   string                 // 商户订单编号
	Status        string                 // 网关状态
	Amount        interface{}            // 金额，可能是 float64 或 string
	Raw           map[string]interface{} // 原始数据
}

// GetAmount 获取金额（float64）
func (d *WebhookData) GetAmount() float64 {
	return toFloat(d.Amount)
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
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return fmt.Errorf("%w: access_token is required", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	c.NotifyURL = strings.TrimSpace(c.NotifyURL)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.PayerEmail = strings.TrimSpace(c.PayerEmail)
	if c.BaseURL == "" {
		c.BaseURL = "https://api.mercadopago.com"
	}
	if c.PayerEmail == "" {
		c.PayerEmail = "payer@example.com"
	}
}

// CreateCharge 创建 PIX 收款
func CreateCharge(ctx context.Context, cfg *Config, input CreateInput) (*CreateResult, error) {
	if cfg == nil {
		return nil, ErrConfigInvalid
	}
	if input.OrderNo == "" || input.Amount == "" {
		return nil, ErrConfigInvalid
	}

	amount, err := strconv.ParseFloat(input.Amount, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount", ErrConfigInvalid)
	}

	params := map[string]interface{}{
		"transaction_amount": amount,
		"description":        input.Description,
		"payment_method_id":  "pix",
		"external_reference": input.OrderNo,
		"payer": map[string]interface{}{
			"email": cfg.PayerEmail,
		},
	}
	if cfg.NotifyURL != "" {
		params["notification_url"] = cfg.NotifyURL
	}

	headers := map[string]string{
		"Authorization":     "Bearer " + cfg.AccessToken,
		"X-Idempotency-Key": input.OrderNo,
	}
	respBytes, err := postJSON(ctx, cfg.BaseURL+"/v1/payments", params, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var resp struct {
		ID                 json.Number `json:"id"`
		Status             string      `json:"status"`
		PointOfInteraction struct {
			TransactionData struct {
				QRCode       string `json:"qr_code"`
				QRCodeBase64 string `json:"qr_code_base64"`
				TicketURL    string `json:"ticket_url"`
			} `json:"transaction_data"`
		} `json:"point_of_interaction"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.ID.String() == "" || resp.PointOfInteraction.TransactionData.QRCode == "" {
		return nil, fmt.Errorf("%w: missing id or qr_code", ErrResponseInvalid)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)

	return &CreateResult{
		TransactionID: resp.ID.String(),
		ChargeCode:    resp.PointOfInteraction.TransactionData.QRCode,
		QRImage:       resp.PointOfInteraction.TransactionData.QRCodeBase64,
		Raw:           raw,
	}, nil
}

// ParseWebhook 解析回调数据。
// Mercado Pago 的通知格式随接入版本漂移：支付 ID 可能出现在
// data.id / id / payment_id，状态可能在 status 或缺失（action 仅表达事件类型），
// 这里集中做多字段兜底，调用方只看归一化后的 WebhookData。
func ParseWebhook(body []byte) (*WebhookData, error) {
	if len(body) == 0 {
		return nil, ErrResponseInvalid
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	data := &WebhookData{Raw: raw}

	if nested, ok := raw["data"].(map[string]interface{}); ok {
		data.TransactionID = toString(nested["id"])
	}
	if data.TransactionID == "" {
		data.TransactionID = firstString(raw, "payment_id", "id")
	}
	data.ExternalRef = firstString(raw, "external_reference", "order_id")
	data.Status = firstString(raw, "status", "status_detail")
	if amount, ok := raw["transaction_amount"]; ok {
		data.Amount = amount
	} else if amount, ok := raw["amount"]; ok {
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
	signature = normalizeSignature(signature)
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

// normalizeSignature 提取签名值，兼容 "ts=...,v1=..." 形式的签名头
func normalizeSignature(signature string) string {
	signature = strings.TrimSpace(signature)
	if !strings.Contains(signature, "=") {
		return signature
	}
	for _, part := range strings.Split(signature, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 && kv[0] == "v1" {
			return strings.TrimSpace(kv[1])
		}
	}
	return signature
}

// ToPaymentStatus 将网关状态归一化为内部状态
func ToPaymentStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved", "authorized":
		return "paid"
	case "cancelled", "rejected", "expired":
		return "cancelled"
	case "refunded", "charged_back":
		return "refunded"
	default:
		return "pending"
	}
}

func postJSON(ctx context.Context, endpoint string, params map[string]interface{}, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

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

func firstString(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s := toString(raw[key]); s != "" {
			return s
		}
	}
	return ""
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
	}
	return 0
}
