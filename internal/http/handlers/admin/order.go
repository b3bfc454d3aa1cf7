package admin

import (
	"errors"
	"strings"

	"github.com/pixvend/internal/http/response"
	"github.com/pixvend/internal/repository"
	"github.com/pixvend/internal/service"

	"github.com/gin-gonic/gin"
)

// ListOrders 分页查询订单列表。
func (h *Handler) ListOrders(c *gin.Context) {
	page, pageSize := normalizePagination(queryInt(c, "page"), queryInt(c, "page_size"))
	filter := repository.OrderListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   queryUint(c, "user_id"),
		Status:   strings.TrimSpace(c.Query("status")),
		OrderNo:  strings.TrimSpace(c.Query("order_no")),
	}
	orders, total, err := h.OrderService.ListOrders(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "订单列表查询失败", err)
		return
	}
	response.SuccessWithPage(c, orders, buildPagination(page, pageSize, total))
}

// GetOrder 按订单编号查询订单详情，附带支付单与网关尝试记录。
func (h *Handler) GetOrder(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	if orderNo == "" {
		respondError(c, response.CodeBadRequest, "订单编号无效", nil)
		return
	}
	order, err := h.OrderService.GetByOrderNo(orderNo)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			respondError(c, response.CodeNotFound, "订单不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "订单查询失败", err)
		return
	}
	payments, err := h.OrderService.GetPayments(order.ID)
	if err != nil {
		respondError(c, response.CodeInternal, "订单查询失败", err)
		return
	}
	attempts, err := h.ChargeService.ListAttempts(order.ID)
	if err != nil {
		respondError(c, response.CodeInternal, "订单查询失败", err)
		return
	}
	response.Success(c, gin.H{
		"order":    order,
		"payments": payments,
		"attempts": attempts,
	})
}

func buildPagination(page, pageSize int, total int64) response.Pagination {
	totalPage := int64(0)
	if pageSize > 0 {
		totalPage = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	return response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPage,
	}
}
