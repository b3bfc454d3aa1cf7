package models

import (
	"time"

	"gorm.io/gorm"
)

// Payment 支付记录
type Payment struct {
	ID              uint           `gorm:"primarykey" json:"id"`                      // 主键
	OrderID         *uint          `gorm:"index" json:"order_id,omitempty"`           // 订单ID（可为空）
	Gateway         string         `gorm:"index" json:"gateway"`                      // 支付网关名称
	Amount          Money          `gorm:"type:decimal(20,2);not null" json:"amount"` // 支付金额
	Status          string         `gorm:"index;not null" json:"status"`              // 支付状态
	TransactionID   string         `gorm:"index" json:"transaction_id"`               // 网关交易流水号
	ChargeCode      string         `gorm:"index;type:text" json:"charge_code"`        // 可复制的收款码（PIX copia e cola）
	QRImage         string         `gorm:"type:text" json:"qr_image"`                 // 二维码图片（URL 或 base64）
	ProviderPayload JSON           `gorm:"type:json" json:"provider_payload"`         // 网关原始数据
	PaidAt          *time.Time     `gorm:"index" json:"paid_at"`                      // 支付时间
	CallbackAt      *time.Time     `gorm:"index" json:"callback_at"`                  // 最近回调时间
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                   // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                   // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                            // 软删除时间
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}
