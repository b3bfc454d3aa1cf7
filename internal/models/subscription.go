package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscription 订阅表
type Subscription struct {
	ID               uint           `gorm:"primarykey" json:"id"`                 // 主键
	UserID           uint           `gorm:"index;not null" json:"user_id"`        // 用户ID
	PlanID           uint           `gorm:"index;not null" json:"plan_id"`        // 方案ID
	LicenseID        *uint          `gorm:"index" json:"license_id,omitempty"`    // 关联许可证ID
	Status           string         `gorm:"index;not null" json:"status"`         // 订阅状态
	CurrentPeriodEnd *time.Time     `gorm:"index" json:"current_period_end"`      // 当前周期截止时间
	CreatedAt        time.Time      `gorm:"index" json:"created_at"`              // 创建时间
	UpdatedAt        time.Time      `gorm:"index" json:"updated_at"`              // 更新时间
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`                       // 软删除时间
}

// TableName 指定表名
func (Subscription) TableName() string {
	return "subscriptions"
}
