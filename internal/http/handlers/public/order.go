package public

import (
	"errors"
	"strings"

	"github.com/pixvend/internal/http/response"
	"github.com/pixvend/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateOrderRequest 下单请求
type CreateOrderRequest struct {
	UserID   uint `json:"user_id" binding:"required"`
	PlanID   uint `json:"plan_id" binding:"required"`
	Quantity int  `json:"quantity"`
}

// CreateOrder 创建订单（待支付），同时生成支付单。
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	order, err := h.OrderService.Create(service.CreateOrderInput{
		UserID:   req.UserID,
		PlanID:   req.PlanID,
		Quantity: req.Quantity,
	})
	if err != nil {
		respondOrderCreateError(c, err)
		return
	}
	response.Success(c, order)
}

// GetOrderByOrderNo 按订单编号查询订单，附带支付单与网关尝试记录。
func (h *Handler) GetOrderByOrderNo(c *gin.Context) {
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
