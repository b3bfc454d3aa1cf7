package public

import (
	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/models"
	"github.com/pixvend/internal/payment/asaas"
	"github.com/pixvend/internal/service"

	"github.com/gin-gonic/gin"
)

// AsaasWebhook 处理 Asaas 支付回调。
func (h *Handler) AsaasWebhook(c *gin.Context) {
	body, ok := h.readWebhookBody(c, constants.GatewayAsaas)
	if !ok {
		return
	}
	data, err := asaas.ParseWebhook(body)
	if err != nil {
		acceptWebhookNoOp(c, constants.GatewayAsaas, "unparseable_payload")
		return
	}
	if data.TransactionID == "" {
		acceptWebhookNoOp(c, constants.GatewayAsaas, "missing_transaction_id")
		return
	}

	signatureError := ""
	if raw := h.gatewayConfig(constants.GatewayAsaas); raw != nil {
		if cfg, cfgErr := asaas.ParseConfig(raw); cfgErr == nil {
			if tokenErr := asaas.VerifyWebhookToken(cfg, c.GetHeader("asaas-access-token")); tokenErr != nil {
				signatureError = tokenErr.Error()
			}
		}
	}

	h.dispatchWebhookEvent(c, service.WebhookEvent{
		Gateway:        constants.GatewayAsaas,
		TransactionID:  data.TransactionID,
		ExternalRef:    data.ExternalRef,
		Status:         asaas.ToPaymentStatus(data.Status),
		Amount:         data.GetAmount(),
		SignatureError: signatureError,
		Raw:            models.JSON(data.Raw),
	})
}
