package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestParseConfigAndNormalize(t *testing.T) {
	raw := map[string]interface{}{
		"access_token": " token ",
		"base_url":     "https://api.mercadopago.com/",
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		t.Fatalf("ParseConfig error: %v", err)
	}
	if cfg.AccessToken != "token" {
		t.Fatalf("access token not normalized, got: %s", cfg.AccessToken)
	}
	if cfg.BaseURL != "https://api.mercadopago.com" {
		t.Fatalf("base url not normalized, got: %s", cfg.BaseURL)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("ValidateConfig should pass, got: %v", err)
	}
}

func TestParseWebhookNestedDataID(t *testing.T) {
	body := []byte(`{"action":"payment.updated","data":{"id":123456},"status":"approved","transaction_amount":50.0,"external_reference":"PV-1"}`)
	data, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook error: %v", err)
	}
	if data.TransactionID != "123456" {
		t.Fatalf("transaction id want 123456 got %s", data.TransactionID)
	}
	if data.ExternalRef != "PV-1" {
		t.Fatalf("external ref want PV-1 got %s", data.ExternalRef)
	}
	if data.GetAmount() != 50.0 {
		t.Fatalf("amount want 50.0 got %f", data.GetAmount())
	}
}

func TestParseWebhookFlatVariants(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "payment_id", body: `{"payment_id":"987","status":"approved"}`, want: "987"},
		{name: "top_level_id", body: `{"id":"654","status":"approved"}`, want: "654"},
		{name: "string_amount", body: `{"id":"1","amount":"50.00"}`, want: "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := ParseWebhook([]byte(tc.body))
			if err != nil {
				t.Fatalf("ParseWebhook error: %v", err)
			}
			if data.TransactionID != tc.want {
				t.Fatalf("transaction id want %s got %s", tc.want, data.TransactionID)
			}
		})
	}
}

func TestVerifySignature(t *testing.T) {
	cfg := &Config{WebhookSecret: "secret"}
	body := []byte(`{"data":{"id":1}}`)

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	if err := VerifySignature(cfg, valid, body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifySignature(cfg, "ts=1700000000,v1="+valid, body); err != nil {
		t.Fatalf("structured signature header rejected: %v", err)
	}
	if err := VerifySignature(cfg, "deadbeef", body); err == nil {
		t.Fatalf("invalid signature should be rejected")
	}
	if err := VerifySignature(&Config{}, "", body); err != nil {
		t.Fatalf("unsigned config should skip verification, got: %v", err)
	}
}

func TestToPaymentStatus(t *testing.T) {
	if got := ToPaymentStatus("approved"); got != "paid" {
		t.Fatalf("approved want paid got %s", got)
	}
	if got := ToPaymentStatus("rejected"); got != "cancelled" {
		t.Fatalf("rejected want cancelled got %s", got)
	}
	if got := ToPaymentStatus("charged_back"); got != "refunded" {
		t.Fatalf("charged_back want refunded got %s", got)
	}
	if got := ToPaymentStatus("in_process"); got != "pending" {
		t.Fatalf("in_process want pending got %s", got)
	}
}
