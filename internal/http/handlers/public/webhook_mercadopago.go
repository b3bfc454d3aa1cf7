package public

import (
	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/models"
	"github.com/pixvend/internal/payment/mercadopago"
	"github.com/pixvend/internal/service"

	"github.com/gin-gonic/gin"
)

// MercadoPagoWebhook 处理 MercadoPago 支付回调。
func (h *Handler) MercadoPagoWebhook(c *gin.Context) {
	body, ok := h.readWebhookBody(c, constants.GatewayMercadoPago)
	if !ok {
		return
	}
	data, err := mercadopago.ParseWebhook(body)
	if err != nil {
		acceptWebhookNoOp(c, constants.GatewayMercadoPago, "unparseable_payload")
		return
	}
	if data.TransactionID == "" {
		acceptWebhookNoOp(c, constants.GatewayMercadoPago, "missing_transaction_id")
		return
	}

	signatureError := ""
	if raw := h.gatewayConfig(constants.GatewayMercadoPago); raw != nil {
		if cfg, cfgErr := mercadopago.ParseConfig(raw); cfgErr == nil {
			if sigErr := mercadopago.VerifySignature(cfg, c.GetHeader("X-Signature"), body); sigErr != nil {
				signatureError = sigErr.Error()
			}
		}
	}

	h.dispatchWebhookEvent(c, service.WebhookEvent{
		Gateway:        constants.GatewayMercadoPago,
		TransactionID:  data.TransactionID,
		ExternalRef:    data.ExternalRef,
		Status:         mercadopago.ToPaymentStatus(data.Status),
		Amount:         data.GetAmount(),
		SignatureError: signatureError,
		Raw:            models.JSON(data.Raw),
	})
}
