package public

import (
	"io"

	"github.com/pixvend/internal/http/response"
	"github.com/pixvend/internal/service"

	"github.com/gin-gonic/gin"
)

// 回调原始报文读取上限，超出视为异常请求。
const maxWebhookBodyBytes = 1 << 20

// readWebhookBody 读取回调原始报文。读取失败时已写入响应并返回 false。
func (h *Handler) readWebhookBody(c *gin.Context, gateway string) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		requestLog(c).Warnw("webhook_body_read_failed", "gateway", gateway, "error", err)
		respondError(c, response.CodeBadRequest, "回调报文读取失败", nil)
		return nil, false
	}
	return body, true
}

// gatewayConfig 查找网关配置，未配置时返回 nil（签名校验按不适用处理）。
func (h *Handler) gatewayConfig(name string) map[string]interface{} {
	gw := h.Config.Payment.GatewayByName(name)
	if gw == nil {
		return nil
	}
	return gw.Config
}

// acceptWebhookNoOp 无法提取有效标识的回调按成功吸收，避免网关无谓重试。
func acceptWebhookNoOp(c *gin.Context, gateway, reason string) {
	requestLog(c).Infow("webhook_ignored", "gateway", gateway, "reason", reason)
	response.Success(c, gin.H{"ignored": true})
}

// dispatchWebhookEvent 提交归一化回调事件并写出结果。
func (h *Handler) dispatchWebhookEvent(c *gin.Context, event service.WebhookEvent) {
	result, err := h.WebhookService.HandleEvent(event)
	if err != nil {
		respondWebhookError(c, err)
		return
	}
	response.Success(c, result)
}
