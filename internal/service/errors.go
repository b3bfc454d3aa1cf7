package service

import "errors"

// 业务错误定义
var (
	// 订单相关
	ErrOrderInvalid       = errors.New("订单参数无效")
	ErrOrderNotFound      = errors.New("订单不存在")
	ErrOrderFetchFailed   = errors.New("订单查询失败")
	ErrOrderUpdateFailed  = errors.New("订单更新失败")
	ErrOrderCreateFailed  = errors.New("订单创建失败")
	ErrOrderStatusInvalid = errors.New("订单状态不允许该操作")

	// 套餐相关
	ErrPlanNotFound      = errors.New("套餐不存在")
	ErrPlanDisabled      = errors.New("套餐已下架")
	ErrStockInsufficient = errors.New("库存不足")

	// 支付网关相关
	ErrPaymentInvalid         = errors.New("支付参数无效")
	ErrPaymentNotFound        = errors.New("支付记录不存在")
	ErrPaymentCreateFailed    = errors.New("支付单创建失败")
	ErrPaymentUpdateFailed    = errors.New("支付单更新失败")
	ErrGatewayConfigInvalid   = errors.New("支付网关配置无效")
	ErrGatewayNotSupported    = errors.New("不支持的支付网关")
	ErrGatewayRequestFailed   = errors.New("支付网关请求失败")
	ErrGatewayResponseInvalid = errors.New("支付网关响应无法识别")
	ErrNoGatewayConfigured    = errors.New("未配置可用的支付网关")

	// 回调相关
	ErrWebhookOrderUnresolved = errors.New("回调无法关联订单")
	ErrWebhookAmountMismatch  = errors.New("回调金额与订单不符")
	ErrWebhookStatusUnknown   = errors.New("回调状态无法识别")

	// 交付相关
	ErrFulfillmentFailed = errors.New("订单交付失败")
	ErrLicenseNotFound   = errors.New("许可证不存在")

	// 对账相关
	ErrReconciliationRunning = errors.New("对账任务正在执行")

	// 邮件相关
	ErrEmailServiceDisabled      = errors.New("邮件服务未启用")
	ErrEmailServiceNotConfigured = errors.New("邮件服务配置不完整")
	ErrInvalidEmail              = errors.New("邮箱地址无效")

	// 用户相关
	ErrUserNotFound = errors.New("用户不存在")
)

// ErrAllGatewaysFailed 所有网关均尝试失败，携带每次尝试的结果。
type AllGatewaysFailedError struct {
	OrderID  uint
	Attempts []GatewayAttemptResult
}

func (e *AllGatewaysFailedError) Error() string {
	return "所有支付网关均不可用"
}

// GatewayAttemptResult 单次网关尝试结果快照
type GatewayAttemptResult struct {
	Gateway       string `json:"gateway"`
	AttemptNumber int    `json:"attempt_number"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	LatencyMs     int64  `json:"latency_ms"`
}
