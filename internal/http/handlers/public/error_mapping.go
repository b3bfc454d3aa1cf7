package public

import (
	"errors"

	"github.com/pixvend/internal/http/response"
	"github.com/pixvend/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var orderCreateErrorRules = []mappedHandlerError{
	{target: service.ErrOrderInvalid, code: response.CodeBadRequest, msg: "订单参数无效"},
	{target: service.ErrPlanNotFound, code: response.CodeNotFound, msg: "方案不存在"},
	{target: service.ErrPlanDisabled, code: response.CodeBadRequest, msg: "方案已下架"},
	{target: service.ErrStockInsufficient, code: response.CodeBadRequest, msg: "库存不足"},
}

var chargeCreateErrorRules = []mappedHandlerError{
	{target: service.ErrOrderInvalid, code: response.CodeBadRequest, msg: "订单参数无效"},
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "订单不存在"},
	{target: service.ErrOrderStatusInvalid, code: response.CodeBadRequest, msg: "订单状态不允许发起收款"},
	{target: service.ErrNoGatewayConfigured, code: response.CodeServiceUnavailable, msg: "未配置可用支付网关"},
}

var webhookErrorRules = []mappedHandlerError{
	{target: service.ErrWebhookOrderUnresolved, code: response.CodeNotFound, msg: "回调无法关联到订单"},
	{target: service.ErrWebhookAmountMismatch, code: response.CodeBadRequest, msg: "回调金额与订单不符"},
	{target: service.ErrWebhookStatusUnknown, code: response.CodeBadRequest, msg: "回调状态无法识别"},
	{target: service.ErrPaymentInvalid, code: response.CodeBadRequest, msg: "回调参数无效"},
	{target: service.ErrOrderStatusInvalid, code: response.CodeBadRequest, msg: "订单状态不允许该回调"},
}

func respondOrderCreateError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderCreateErrorRules, response.CodeInternal, "订单创建失败")
}

func respondWebhookError(c *gin.Context, err error) {
	respondWithMappedError(c, err, webhookErrorRules, response.CodeInternal, "回调处理失败")
}
