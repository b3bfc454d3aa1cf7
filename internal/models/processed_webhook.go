package models

import "time"

// ProcessedWebhook 回调去重记录（(gateway, transaction_id) 唯一，成功应用后写入一次）
type ProcessedWebhook struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                          // 主键
	Gateway       string    `gorm:"uniqueIndex:idx_webhook_gateway_txn;not null" json:"gateway"`   // 网关名称
	TransactionID string    `gorm:"uniqueIndex:idx_webhook_gateway_txn;not null" json:"transaction_id"` // 网关交易流水号
	OrderID       uint      `gorm:"index" json:"order_id"`                                         // 关联订单ID
	StatusApplied string    `gorm:"not null" json:"status_applied"`                                // 应用的内部状态
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                                       // 创建时间
}

// TableName 指定表名
func (ProcessedWebhook) TableName() string {
	return "processed_webhooks"
}
