package models

import (
	"time"

	"gorm.io/gorm"
)

// License 许可证表
type License struct {
	ID        uint           `gorm:"primarykey" json:"id"`              // 主键
	UserID    uint           `gorm:"index;not null" json:"user_id"`     // 用户ID
	OrderID   uint           `gorm:"index;not null" json:"order_id"`    // 来源订单ID
	PlanID    uint           `gorm:"index;not null" json:"plan_id"`     // 方案ID
	Key       string         `gorm:"uniqueIndex;not null" json:"key"`   // 许可证密钥
	Status    string         `gorm:"index;not null" json:"status"`      // 许可证状态
	ExpiresAt *time.Time     `gorm:"index" json:"expires_at"`           // 到期时间
	CreatedAt time.Time      `gorm:"index" json:"created_at"`           // 创建时间
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`           // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                    // 软删除时间
}

// TableName 指定表名
func (License) TableName() string {
	return "licenses"
}
