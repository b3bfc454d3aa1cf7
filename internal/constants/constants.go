package constants

// 订单状态常量
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

// 支付状态常量
const (
	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// 支付网关常量
const (
	GatewayMercadoPago = "mercadopago"
	GatewayAsaas       = "asaas"
	GatewayEfiPay      = "efipay"
	GatewayOpenPix     = "openpix"
)

// 商品类型常量
const (
	ProductTypeLicense      = "license"
	ProductTypeSubscription = "subscription"
	ProductTypeInventory    = "inventory"
)

// 许可证状态常量
const (
	LicenseStatusActive  = "active"
	LicenseStatusExpired = "expired"
	LicenseStatusRevoked = "revoked"
)

// 订阅状态常量
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
)

// 库存预留状态常量
const (
	ReservationStatusHeld      = "held"
	ReservationStatusAllocated = "allocated"
	ReservationStatusReleased  = "released"
)

// 对账运行状态常量
const (
	ReconRunStatusRunning   = "running"
	ReconRunStatusCompleted = "completed"
	ReconRunStatusFailed    = "failed"
)

// 对账触发方式常量
const (
	SweepTriggerScheduled = "scheduled"
	SweepTriggerManual    = "manual"
)

// 对账漂移类别常量
const (
	DriftPaidPaymentOrderIncomplete   = "paid_payment_order_incomplete"
	DriftCompletedOrderMissingLicense = "completed_order_missing_license"
	DriftActiveLicenseMissingSub      = "active_license_missing_subscription"
	DriftActiveSubMissingLicense      = "active_subscription_missing_license"
	DriftExpiredPendingOrderHeldStock = "expired_pending_order_held_stock"
	DriftOrphanedReservation          = "orphaned_reservation"
	DriftLicensePastExpiry            = "license_past_expiry"
	DriftSubscriptionPastExpiry       = "subscription_past_expiry"
)

// 审计结论常量
const (
	AuditOutcomeCorrected     = "corrected"
	AuditOutcomeUncorrectable = "uncorrectable"
)

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 内部回调状态常量（所有网关状态归一化到此枚举）
const (
	WebhookStatusPaid      = "paid"
	WebhookStatusCancelled = "cancelled"
	WebhookStatusRefunded  = "refunded"
	WebhookStatusPending   = "pending"
)

// 队列常量
const (
	QueueDefault            = "default"
	TaskOperatorAlert       = "operator:alert_email"
	TaskOrderTimeoutCancel  = "order:timeout_cancel"
	TaskReconciliationSweep = "reconciliation:sweep"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "pv"
)
