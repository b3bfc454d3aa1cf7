package repository

import (
	"errors"

	"github.com/pixvend/internal/models"

	"gorm.io/gorm"
)

// PlanRepository 商品方案数据访问接口
type PlanRepository interface {
	Create(plan *models.Plan) error
	GetByID(id uint) (*models.Plan, error)
	ListEnabled() ([]models.Plan, error)
	DecrementStock(tx *gorm.DB, id uint, quantity int) (bool, error)
	IncrementStock(tx *gorm.DB, id uint, quantity int) error
	WithTx(tx *gorm.DB) *GormPlanRepository
}

// GormPlanRepository GORM 实现
type GormPlanRepository struct {
	db *gorm.DB
}

// NewPlanRepository 创建商品方案仓库
func NewPlanRepository(db *gorm.DB) *GormPlanRepository {
	return &GormPlanRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPlanRepository) WithTx(tx *gorm.DB) *GormPlanRepository {
	if tx == nil {
		return r
	}
	return &GormPlanRepository{db: tx}
}

// Create 创建方案
func (r *GormPlanRepository) Create(plan *models.Plan) error {
	return r.db.Create(plan).Error
}

// GetByID 根据 ID 获取方案
func (r *GormPlanRepository) GetByID(id uint) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.First(&plan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// ListEnabled 获取上架方案列表
func (r *GormPlanRepository) ListEnabled() ([]models.Plan, error) {
	var plans []models.Plan
	if err := r.db.Where("enabled = ?", true).Order("id asc").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

// DecrementStock 扣减库存（stock = -1 表示不限量，直接成功）
func (r *GormPlanRepository) DecrementStock(tx *gorm.DB, id uint, quantity int) (bool, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	var plan models.Plan
	if err := db.Select("stock").First(&plan, id).Error; err != nil {
		return false, err
	}
	if plan.Stock < 0 {
		return true, nil
	}
	result := db.Model(&models.Plan{}).
		Where("id = ? AND stock >= ?", id, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementStock 归还库存（不限量方案为空操作）
func (r *GormPlanRepository) IncrementStock(tx *gorm.DB, id uint, quantity int) error {
	db := r.db
	if tx != nil {
		db = tx
	}
	return db.Model(&models.Plan{}).
		Where("id = ? AND stock >= 0", id).
		Update("stock", gorm.Expr("stock + ?", quantity)).Error
}
