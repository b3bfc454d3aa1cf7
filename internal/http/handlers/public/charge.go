package public

import (
	"errors"

	"github.com/pixvend/internal/http/response"
	"github.com/pixvend/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateChargeRequest 发起收款请求
type CreateChargeRequest struct {
	OrderID uint `json:"order_id" binding:"required"`
}

// CreateCharge 为待支付订单发起 PIX 收款，按网关优先级逐个尝试。
func (h *Handler) CreateCharge(c *gin.Context) {
	var req CreateChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	result, err := h.ChargeService.CreateCharge(c.Request.Context(), req.OrderID)
	if err != nil {
		var allFailed *service.AllGatewaysFailedError
		if errors.As(err, &allFailed) {
			requestLog(c).Warnw("charge_all_gateways_failed",
				"order_id", allFailed.OrderID,
				"attempt_count", len(allFailed.Attempts),
			)
			response.ErrorWithData(c, response.CodeServiceUnavailable, "所有支付网关均不可用", gin.H{
				"order_id": allFailed.OrderID,
				"attempts": allFailed.Attempts,
			})
			return
		}
		respondWithMappedError(c, err, chargeCreateErrorRules, response.CodeInternal, "收款发起失败")
		return
	}
	response.Success(c, result)
}
