package openpix

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
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
	ErrConfigInvalid    = errors.New("openpix config invalid")
	ErrRequestFailed    = errors.New("openpix request failed")
	ErrResponseInvalid  = errors.New("openpix response invalid")
	ErrSignatureInvalid = errors.New("openpix signature invalid")
)

// Config OpenPix 配置
type Config struct {
	BaseURL       string `json:"base_url"`       // API 地址，默认 https://api.openpix.com.br
	AppID         string `json:"app_id"`         // Authorization 请求头
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
	TransactionID string                 // 收款标识
	ChargeCode    string                 // PIX 复制粘贴码（brCode）
	QRImage       string                 // 二维码图片地址
	Raw           map[string]interface{} // 原始响应
}

// WebhookData 回调数据
type WebhookData struct {
	Event         string                 // 事件名（OPENPIX:CHARGE_COMPLETED 等）
	TransactionID string                 // 收款标识
	ExternalRef   string                 // 商户订单编号（correlationID）
	ChargeCode    string                 // PIX 复制粘贴码
	Status        string                 // 收款状态
	Amount        interface{}            // 金额（分）
	Raw           map[string]interface{} // 原始数据
}

// GetAmount 获取金额（单位转换为元）
func (d *WebhookData) GetAmount() float64 {
	cents := 0.0
	switch v := d.Amount.(type) {
	case float64:
		cents = v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cents = f
		}
	}
	return cents / 100
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
	if strings.TrimSpace(cfg.AppID) == "" {
		return fmt.Errorf("%w: app_id is required", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.AppID = strings.TrimSpace(c.AppID)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openpix.com.br"
	}
	if c.ExpireSeconds <= 0 {
		c.ExpireSeconds = 3600
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
		"correlationID": input.OrderNo,
		"value":         int64(amount*100 + 0.5), // OpenPix 以分为单位
		"comment":       input.Description,
		"expiresIn":     cfg.ExpireSeconds,
	}
	respBytes, err := postJSON(ctx, cfg, cfg.BaseURL+"/api/v1/charge", params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var resp struct {
		Charge struct {
			Identifier    string `json:"identifier"`
			TransactionID string `json:"transactionID"`
			CorrelationID string `json:"correlationID"`
			BrCode        string `json:"brCode"`
			QRCodeImage   string `json:"qrCodeImage"`
			Status        string `json:"status"`
		} `json:"charge"`
		BrCode string `json:"brCode"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	transactionID := resp.Charge.TransactionID
	if transactionID == "" {
		transactionID = resp.Charge.Identifier
	}
	chargeCode := resp.Charge.BrCode
	if chargeCode == "" {
		chargeCode = resp.BrCode
	}
	if transactionID == "" || chargeCode == "" {
		return nil, fmt.Errorf("%w: missing transaction id or brCode", ErrResponseInvalid)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)

	return &CreateResult{
		TransactionID: transactionID,
		ChargeCode:    chargeCode,
		QRImage:       resp.Charge.QRCodeImage,
		Raw:           raw,
	}, nil
}

// ParseWebhook 解析回调数据。
// 事件对象可能带 charge、pix 或两者，标识字段在不同事件里名称不同。
func ParseWebhook(body []byte) (*WebhookData, error) {
	if len(body) == 0 {
		return nil, ErrResponseInvalid
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	data := &WebhookData{Raw: raw}
	if event, ok := raw["event"].(string); ok {
		data.Event = strings.TrimSpace(event)
	}

	if charge, ok := raw["charge"].(map[string]interface{}); ok {
		data.TransactionID = firstString(charge, "transactionID", "identifier")
		data.ExternalRef = firstString(charge, "correlationID")
		data.ChargeCode = firstString(charge, "brCode")
		data.Status = firstString(charge, "status")
		if amount, ok := charge["value"]; ok {
			data.Amount = amount
		}
	}
	if pix, ok := raw["pix"].(map[string]interface{}); ok {
		if data.TransactionID == "" {
			data.TransactionID = firstString(pix, "transactionID", "endToEndId")
		}
		if data.Amount == nil {
			if amount, ok := pix["value"]; ok {
				data.Amount = amount
			}
		}
	}
	if data.TransactionID == "" {
		data.TransactionID = firstString(raw, "transactionID", "correlationID")
	}
	if data.Status == "" && data.Event != "" {
		data.Status = data.Event
	}
	return data, nil
}

// VerifySignature 验证回调签名（x-webhook-signature：HMAC-SHA256 后 base64）
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
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}

// ToPaymentStatus 将网关状态归一化为内部状态
func ToPaymentStatus(status string) string {
	normalized := strings.ToUpper(strings.TrimSpace(status))
	normalized = strings.TrimPrefix(normalized, "OPENPIX:")
	switch normalized {
	case "COMPLETED", "CHARGE_COMPLETED", "PAID":
		return "paid"
	case "EXPIRED", "CHARGE_EXPIRED":
		return "cancelled"
	case "REFUNDED", "CHARGE_REFUNDED", "TRANSACTION_REFUND_RECEIVED":
		return "refunded"
	default:
		return "pending"
	}
}

func postJSON(ctx context.Context, cfg *Config, endpoint string, params map[string]interface{}) ([]byte, error) {
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
	req.Header.Set("Authorization", cfg.AppID)

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
		if s, ok := raw[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
