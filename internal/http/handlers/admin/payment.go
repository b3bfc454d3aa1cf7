package admin

import (
	"strings"

	"github.com/pixvend/internal/http/response"
	"github.com/pixvend/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListPayments 分页查询支付单列表。
func (h *Handler) ListPayments(c *gin.Context) {
	page, pageSize := normalizePagination(queryInt(c, "page"), queryInt(c, "page_size"))
	filter := repository.PaymentListFilter{
		Page:     page,
		PageSize: pageSize,
		OrderID:  queryUint(c, "order_id"),
		Gateway:  strings.ToLower(strings.TrimSpace(c.Query("gateway"))),
		Status:   strings.TrimSpace(c.Query("status")),
	}
	payments, total, err := h.PaymentRepo.ListAdmin(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "支付列表查询失败", err)
		return
	}
	response.SuccessWithPage(c, payments, buildPagination(page, pageSize, total))
}

// ListGatewayAttempts 分页查询网关收款尝试记录，可只看失败记录。
func (h *Handler) ListGatewayAttempts(c *gin.Context) {
	page, pageSize := normalizePagination(queryInt(c, "page"), queryInt(c, "page_size"))
	filter := repository.GatewayAttemptListFilter{
		Page:       page,
		PageSize:   pageSize,
		OrderID:    queryUint(c, "order_id"),
		Gateway:    strings.ToLower(strings.TrimSpace(c.Query("gateway"))),
		OnlyFailed: c.Query("only_failed") == "true",
	}
	attempts, total, err := h.ChargeService.ListAttemptsAdmin(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "网关尝试记录查询失败", err)
		return
	}
	response.SuccessWithPage(c, attempts, buildPagination(page, pageSize, total))
}
