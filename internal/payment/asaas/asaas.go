package asaas

import (
	"context"
	"crypto/subtle"
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
	ErrConfigInvalid    = errors.New("asaas config invalid")
	ErrRequestFailed    = errors.New("asaas request failed")
	ErrResponseInvalid  = errors.New("asaas response invalid")
	ErrSignatureInvalid = errors.New("asaas webhook token invalid")
)

// Config Asaas 配置
type Config struct {
	BaseURL      string `json:"base_url"`      // API 地址，默认 https://api.asaas.com/v3
	APIKey       string `json:"api_key"`       // access_token 请求头
	CustomerID   string `json:"customer_id"`   // 默认客户 ID
	WebhookToken string `json:"webhook_token"` // 回调 asaas-access-token 校验值（可为空）
	DueDays      int    `json:"due_days"`      // 收款到期天数，默认 1
}

// CreateInput 创建 PIX 收款输入
type CreateInput struct {
	OrderNo     string
	Amount      string
	Description string
}

// CreateResult 创建 PIX 收款结果
type CreateResult struct {
	TransactionID string                 // 收款 ID
	ChargeCode    string                 // PIX 复制粘贴码
	QRImage       string                 // 二维码图片（base64）
	Raw           map[string]interface{} // 原始响应
}

// WebhookData 回调数据
type WebhookData struct {
	Event         string                 // 事件名（PAYMENT_RECEIVED 等）
	TransactionID string                 // 收款 ID
	ExternalRef   string                 // 商户订单编号
	Status        string                 // 收款状态
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
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%w: api_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.CustomerID) == "" {
		return fmt.Errorf("%w: customer_id is required", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.CustomerID = strings.TrimSpace(c.CustomerID)
	c.WebhookToken = strings.TrimSpace(c.WebhookToken)
	if c.BaseURL == "" {
		c.BaseURL = "https://api.asaas.com/v3"
	}
	if c.DueDays <= 0 {
		c.DueDays = 1
	}
}

// CreateCharge 创建 PIX 收款。
// Asaas 分两步：先创建收款单，再拉取 PIX 二维码。
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
		"customer":          cfg.CustomerID,
		"billingType":       "PIX",
		"value":             amount,
		"externalReference": input.OrderNo,
		"description":       input.Description,
		"dueDate":           time.Now().AddDate(0, 0, cfg.DueDays).Format("2006-01-02"),
	}
	respBytes, err := doJSON(ctx, cfg, http.MethodPost, cfg.BaseURL+"/payments", params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBytes, &created); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("%w: missing payment id", ErrResponseInvalid)
	}

	qrBytes, err := doJSON(ctx, cfg, http.MethodGet, cfg.BaseURL+"/payments/"+created.ID+"/pixQrCode", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch qr: %v", ErrRequestFailed, err)
	}

	var qr struct {
		EncodedImage string `json:"encodedImage"`
		Payload      string `json:"payload"`
	}
	if err := json.Unmarshal(qrBytes, &qr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if qr.Payload == "" {
		return nil, fmt.Errorf("%w: missing pix payload", ErrResponseInvalid)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)
	if raw == nil {
		raw = map[string]interface{}{}
	}
	raw["pix_payload"] = qr.Payload

	return &CreateResult{
		TransactionID: created.ID,
		ChargeCode:    qr.Payload,
		QRImage:       qr.EncodedImage,
		Raw:           raw,
	}, nil
}

// ParseWebhook 解析回调数据。
// 收款对象通常嵌在 payment 字段下，但旧事件会平铺在顶层，两种都接受。
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

	source := raw
	if nested, ok := raw["payment"].(map[string]interface{}); ok {
		source = nested
	}
	if id, ok := source["id"].(string); ok {
		data.TransactionID = strings.TrimSpace(id)
	}
	if ref, ok := source["externalReference"].(string); ok {
		data.ExternalRef = strings.TrimSpace(ref)
	}
	if status, ok := source["status"].(string); ok {
		data.Status = strings.TrimSpace(status)
	}
	if data.Status == "" {
		data.Status = data.Event
	}
	if amount, ok := source["value"]; ok {
		data.Amount = amount
	} else if amount, ok := source["amount"]; ok {
		data.Amount = amount
	}
	return data, nil
}

// VerifyWebhookToken 校验回调令牌（asaas-access-token 请求头）
func VerifyWebhookToken(cfg *Config, token string) error {
	if cfg == nil {
		return ErrConfigInvalid
	}
	if cfg.WebhookToken == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(cfg.WebhookToken), []byte(strings.TrimSpace(token))) != 1 {
		return ErrSignatureInvalid
	}
	return nil
}

// ToPaymentStatus 将网关状态归一化为内部状态
func ToPaymentStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "RECEIVED", "CONFIRMED", "RECEIVED_IN_CASH", "PAYMENT_RECEIVED", "PAYMENT_CONFIRMED":
		return "paid"
	case "DELETED", "OVERDUE", "PAYMENT_DELETED", "PAYMENT_OVERDUE":
		return "cancelled"
	case "REFUNDED", "PAYMENT_REFUNDED", "CHARGEBACK_REQUESTED":
		return "refunded"
	default:
		return "pending"
	}
}

func doJSON(ctx context.Context, cfg *Config, method, endpoint string, params map[string]interface{}) ([]byte, error) {
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
	req.Header.Set("access_token", cfg.APIKey)

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
