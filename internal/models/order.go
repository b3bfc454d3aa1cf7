package models

import (
	"time"

	"gorm.io/gorm"
)

// Order 订单表
type Order struct {
	ID          uint           `gorm:"primarykey" json:"id"`                       // 主键
	OrderNo     string         `gorm:"uniqueIndex;not null" json:"order_no"`       // 订单编号
	UserID      uint           `gorm:"index;not null" json:"user_id"`              // 用户ID
	PlanID      uint           `gorm:"index;not null" json:"plan_id"`              // 方案ID
	ProductType string         `gorm:"not null" json:"product_type"`               // 商品类型快照
	Quantity    int            `gorm:"not null;default:1" json:"quantity"`         // 购买数量
	Amount      Money          `gorm:"type:decimal(20,2);not null" json:"amount"`  // 订单金额（创建后不可变）
	Status      string         `gorm:"index;not null" json:"status"`               // 订单状态
	Description string         `gorm:"type:text" json:"description,omitempty"`     // 订单描述
	ExpiresAt   *time.Time     `gorm:"index" json:"expires_at"`                    // 待支付过期时间
	PaidAt      *time.Time     `gorm:"index" json:"paid_at"`                       // 支付时间
	CompletedAt *time.Time     `gorm:"index" json:"completed_at"`                  // 完成时间
	CancelledAt *time.Time     `gorm:"index" json:"cancelled_at"`                  // 取消时间
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                    // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                    // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                             // 软删除时间
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
