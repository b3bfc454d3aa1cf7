package models

import (
	"time"

	"gorm.io/gorm"
)

// Plan 商品方案表（时限许可证/订阅/库存商品）
type Plan struct {
	ID           uint           `gorm:"primarykey" json:"id"`                              // 主键
	Name         string         `gorm:"not null" json:"name"`                              // 方案名称
	ProductType  string         `gorm:"index;not null" json:"product_type"`                // 商品类型（license/subscription/inventory）
	DurationDays int            `gorm:"not null;default:0" json:"duration_days"`           // 有效期天数（license/subscription）
	Price        Money          `gorm:"type:decimal(20,2);not null;default:0" json:"price"` // 单价
	Stock        int            `gorm:"not null;default:-1" json:"stock"`                  // 库存数量（inventory，-1 不限量）
	Enabled      bool           `gorm:"not null;default:true" json:"enabled"`              // 是否上架
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                           // 创建时间
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`                           // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                    // 软删除时间
}

// TableName 指定表名
func (Plan) TableName() string {
	return "plans"
}
