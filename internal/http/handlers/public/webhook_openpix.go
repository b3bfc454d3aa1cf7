package public

import (
	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/models"
	"github.com/pixvend/internal/payment/openpix"
	"github.com/pixvend/internal/service"

	"github.com/gin-gonic/gin"
)

// OpenPixWebhook 处理 OpenPix/Woovi 收款回调。
func (h *Handler) OpenPixWebhook(c *gin.Context) {
	body, ok := h.readWebhookBody(c, constants.GatewayOpenPix)
	if !ok {
		return
	}
	data, err := openpix.ParseWebhook(body)
	if err != nil {
		acceptWebhookNoOp(c, constants.GatewayOpenPix, "unparseable_payload")
		return
	}
	if data.TransactionID == "" {
		acceptWebhookNoOp(c, constants.GatewayOpenPix, "missing_transaction_id")
		return
	}

	signatureError := ""
	if raw := h.gatewayConfig(constants.GatewayOpenPix); raw != nil {
		if cfg, cfgErr := openpix.ParseConfig(raw); cfgErr == nil {
			if sigErr := openpix.VerifySignature(cfg, c.GetHeader("x-webhook-signature"), body); sigErr != nil {
				signatureError = sigErr.Error()
			}
		}
	}

	h.dispatchWebhookEvent(c, service.WebhookEvent{
		Gateway:        constants.GatewayOpenPix,
		TransactionID:  data.TransactionID,
		ExternalRef:    data.ExternalRef,
		ChargeCode:     data.ChargeCode,
		Status:         openpix.ToPaymentStatus(data.Status),
		Amount:         data.GetAmount(),
		SignatureError: signatureError,
		Raw:            models.JSON(data.Raw),
	})
}
