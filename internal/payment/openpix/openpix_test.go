package openpix

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestParseWebhookChargeCompleted(t *testing.T) {
	body := []byte(`{"event":"OPENPIX:CHARGE_COMPLETED","charge":{"correlationID":"PV-7","transactionID":"txn_7","brCode":"000201...","status":"COMPLETED","value":5000}}`)
	data, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook error: %v", err)
	}
	if data.TransactionID != "txn_7" {
		t.Fatalf("transaction id want txn_7 got %s", data.TransactionID)
	}
	if data.ExternalRef != "PV-7" {
		t.Fatalf("external ref want PV-7 got %s", data.ExternalRef)
	}
	if data.GetAmount() != 50.0 {
		t.Fatalf("amount want 50.0 (cents converted) got %f", data.GetAmount())
	}
	if ToPaymentStatus(data.Status) != "paid" {
		t.Fatalf("COMPLETED should map to paid")
	}
}

func TestParseWebhookPixFallback(t *testing.T) {
	body := []byte(`{"event":"OPENPIX:TRANSACTION_RECEIVED","pix":{"endToEndId":"E999","value":1000}}`)
	data, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook error: %v", err)
	}
	if data.TransactionID != "E999" {
		t.Fatalf("transaction id want E999 got %s", data.TransactionID)
	}
	if data.Status != "OPENPIX:TRANSACTION_RECEIVED" {
		t.Fatalf("status should fall back to event, got %s", data.Status)
	}
}

func TestVerifySignature(t *testing.T) {
	cfg := &Config{WebhookSecret: "secret"}
	body := []byte(`{"charge":{"correlationID":"a"}}`)

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	valid := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if err := VerifySignature(cfg, valid, body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifySignature(cfg, "bm90LXZhbGlk", body); err == nil {
		t.Fatalf("invalid signature should be rejected")
	}
	if err := VerifySignature(&Config{}, "", body); err != nil {
		t.Fatalf("unsigned config should skip verification, got: %v", err)
	}
}

func TestToPaymentStatusEventPrefix(t *testing.T) {
	if got := ToPaymentStatus("OPENPIX:CHARGE_EXPIRED"); got != "cancelled" {
		t.Fatalf("CHARGE_EXPIRED want cancelled got %s", got)
	}
	if got := ToPaymentStatus("ACTIVE"); got != "pending" {
		t.Fatalf("ACTIVE want pending got %s", got)
	}
}
