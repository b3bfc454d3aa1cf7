package models

import "time"

// InventoryReservation 库存预留表（下单时占用，完成时分配，取消/对账时释放）
type InventoryReservation struct {
	ID        uint      `gorm:"primarykey" json:"id"`               // 主键
	OrderID   uint      `gorm:"index;not null" json:"order_id"`     // 订单ID
	PlanID    uint      `gorm:"index;not null" json:"plan_id"`      // 方案ID
	Quantity  int       `gorm:"not null;default:1" json:"quantity"` // 预留数量
	Status    string    `gorm:"index;not null" json:"status"`       // 预留状态（held/allocated/released）
	CreatedAt time.Time `gorm:"index" json:"created_at"`            // 创建时间
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`            // 更新时间
}

// TableName 指定表名
func (InventoryReservation) TableName() string {
	return "inventory_reservations"
}
