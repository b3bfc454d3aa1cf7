package repository

import (
	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/models"

	"gorm.io/gorm"
)

// InventoryReservationRepository 库存预留数据访问接口
type InventoryReservationRepository interface {
	Create(reservation *models.InventoryReservation) error
	GetHeldByOrderID(orderID uint) (*models.InventoryReservation, error)
	ListHeld(limit int) ([]models.InventoryReservation, error)
	UpdateStatus(id uint, from, to string) (bool, error)
	WithTx(tx *gorm.DB) *GormInventoryReservationRepository
}

// GormInventoryReservationRepository GORM 实现
type GormInventoryReservationRepository struct {
	db *gorm.DB
}

// NewInventoryReservationRepository 创建库存预留仓库
func NewInventoryReservationRepository(db *gorm.DB) *GormInventoryReservationRepository {
	return &GormInventoryReservationRepository{db: db}
}

// WithTx 绑定事务
func (r *GormInventoryReservationRepository) WithTx(tx *gorm.DB) *GormInventoryReservationRepository {
	if tx == nil {
		return r
	}
	return &GormInventoryReservationRepository{db: tx}
}

// Create 创建库存预留
func (r *GormInventoryReservationRepository) Create(reservation *models.InventoryReservation) error {
	return r.db.Create(reservation).Error
}

// GetHeldByOrderID 获取订单的占用中预留
func (r *GormInventoryReservationRepository) GetHeldByOrderID(orderID uint) (*models.InventoryReservation, error) {
	var reservation models.InventoryReservation
	result := r.db.Where("order_id = ? AND status = ?", orderID, constants.ReservationStatusHeld).
		Order("id desc").Limit(1).Find(&reservation)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &reservation, nil
}

// ListHeld 获取所有占用中的预留
func (r *GormInventoryReservationRepository) ListHeld(limit int) ([]models.InventoryReservation, error) {
	query := r.db.Where("status = ?", constants.ReservationStatusHeld).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var reservations []models.InventoryReservation
	if err := query.Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// UpdateStatus 按前置状态更新预留状态，返回是否有行被更新
func (r *GormInventoryReservationRepository) UpdateStatus(id uint, from, to string) (bool, error) {
	result := r.db.Model(&models.InventoryReservation{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
