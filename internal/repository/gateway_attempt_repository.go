package repository

import (
	"github.com/pixvend/internal/models"

	"gorm.io/gorm"
)

// GatewayAttemptRepository 网关尝试记录数据访问接口（只追加）
type GatewayAttemptRepository interface {
	Create(attempt *models.GatewayAttempt) error
	ListByOrderID(orderID uint) ([]models.GatewayAttempt, error)
	ListAdmin(filter GatewayAttemptListFilter) ([]models.GatewayAttempt, int64, error)
	WithTx(tx *gorm.DB) *GormGatewayAttemptRepository
}

// GormGatewayAttemptRepository GORM 实现
type GormGatewayAttemptRepository struct {
	db *gorm.DB
}

// NewGatewayAttemptRepository 创建网关尝试记录仓库
func NewGatewayAttemptRepository(db *gorm.DB) *GormGatewayAttemptRepository {
	return &GormGatewayAttemptRepository{db: db}
}

// WithTx 绑定事务
func (r *GormGatewayAttemptRepository) WithTx(tx *gorm.DB) *GormGatewayAttemptRepository {
	if tx == nil {
		return r
	}
	return &GormGatewayAttemptRepository{db: tx}
}

// Create 追加一条尝试记录
func (r *GormGatewayAttemptRepository) Create(attempt *models.GatewayAttempt) error {
	return r.db.Create(attempt).Error
}

// ListByOrderID 按订单获取尝试记录
func (r *GormGatewayAttemptRepository) ListByOrderID(orderID uint) ([]models.GatewayAttempt, error) {
	var attempts []models.GatewayAttempt
	if err := r.db.Where("order_id = ?", orderID).Order("id asc").Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

// ListAdmin 管理端尝试记录列表
func (r *GormGatewayAttemptRepository) ListAdmin(filter GatewayAttemptListFilter) ([]models.GatewayAttempt, int64, error) {
	query := r.db.Model(&models.GatewayAttempt{})

	if filter.OrderID != 0 {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.Gateway != "" {
		query = query.Where("gateway = ?", filter.Gateway)
	}
	if filter.OnlyFailed {
		query = query.Where("success = ?", false)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var attempts []models.GatewayAttempt
	if err := query.Order("id desc").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}
