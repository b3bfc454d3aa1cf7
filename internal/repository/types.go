package repository

import "time"

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Status      string
	OrderNo     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// PaymentListFilter 查询支付列表的过滤条件
type PaymentListFilter struct {
	Page        int
	PageSize    int
	OrderID     uint
	Gateway     string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// GatewayAttemptListFilter 查询网关尝试记录的过滤条件
type GatewayAttemptListFilter struct {
	Page        int
	PageSize    int
	OrderID     uint
	Gateway     string
	OnlyFailed  bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// AuditLogListFilter 查询对账审计记录的过滤条件
type AuditLogListFilter struct {
	Page     int
	PageSize int
	RunID    uint
	Category string
	Outcome  string
}
