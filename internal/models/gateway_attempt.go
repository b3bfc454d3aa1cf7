package models

import "time"

// GatewayAttempt 网关尝试记录（只追加，创建后不可变）
type GatewayAttempt struct {
	ID            uint      `gorm:"primarykey" json:"id"`                // 主键
	OrderID       uint      `gorm:"index;not null" json:"order_id"`      // 订单ID
	Gateway       string    `gorm:"index;not null" json:"gateway"`       // 网关名称
	AttemptNumber int       `gorm:"not null" json:"attempt_number"`      // 尝试序号（从 1 开始）
	Success       bool      `gorm:"index;not null" json:"success"`       // 是否成功
	ErrorText     string    `gorm:"type:text" json:"error_text"`         // 失败原因
	LatencyMs     int64     `gorm:"not null;default:0" json:"latency_ms"` // 耗时（毫秒）
	CreatedAt     time.Time `gorm:"index" json:"created_at"`             // 创建时间
}

// TableName 指定表名
func (GatewayAttempt) TableName() string {
	return "gateway_attempts"
}
