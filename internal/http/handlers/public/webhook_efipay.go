package public

import (
	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/models"
	"github.com/pixvend/internal/payment/efipay"
	"github.com/pixvend/internal/service"

	"github.com/gin-gonic/gin"
)

// EfiPayWebhook 处理 EfiPay（Gerencianet）PIX 回调。
// EfiPay 回调不携带商户订单编号，txid 即下单时使用的订单编号。
func (h *Handler) EfiPayWebhook(c *gin.Context) {
	body, ok := h.readWebhookBody(c, constants.GatewayEfiPay)
	if !ok {
		return
	}
	data, err := efipay.ParseWebhook(body)
	if err != nil {
		acceptWebhookNoOp(c, constants.GatewayEfiPay, "unparseable_payload")
		return
	}
	if data.TransactionID == "" {
		acceptWebhookNoOp(c, constants.GatewayEfiPay, "missing_transaction_id")
		return
	}

	signatureError := ""
	if raw := h.gatewayConfig(constants.GatewayEfiPay); raw != nil {
		if cfg, cfgErr := efipay.ParseConfig(raw); cfgErr == nil {
			if sigErr := efipay.VerifySignature(cfg, c.GetHeader("X-Signature"), body); sigErr != nil {
				signatureError = sigErr.Error()
			}
		}
	}

	h.dispatchWebhookEvent(c, service.WebhookEvent{
		Gateway:        constants.GatewayEfiPay,
		TransactionID:  data.TransactionID,
		Status:         efipay.ToPaymentStatus(data.Status),
		Amount:         data.GetAmount(),
		SignatureError: signatureError,
		Raw:            models.JSON(data.Raw),
	})
}
