package repository

import (
	"errors"
	"time"

	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/models"

	"gorm.io/gorm"
)

// LicenseRepository 许可证数据访问接口
type LicenseRepository interface {
	Create(license *models.License) error
	Update(license *models.License) error
	GetByID(id uint) (*models.License, error)
	GetLatestByOrderID(orderID uint) (*models.License, error)
	GetLatestActiveByUserPlan(userID, planID uint) (*models.License, error)
	ListActive(limit int) ([]models.License, error)
	ListActivePastExpiry(now time.Time, limit int) ([]models.License, error)
	ListByUser(userID uint) ([]models.License, error)
	MarkExpired(id uint) (bool, error)
	WithTx(tx *gorm.DB) *GormLicenseRepository
}

// GormLicenseRepository GORM 实现
type GormLicenseRepository struct {
	db *gorm.DB
}

// NewLicenseRepository 创建许可证仓库
func NewLicenseRepository(db *gorm.DB) *GormLicenseRepository {
	return &GormLicenseRepository{db: db}
}

// WithTx 绑定事务
func (r *GormLicenseRepository) WithTx(tx *gorm.DB) *GormLicenseRepository {
	if tx == nil {
		return r
	}
	return &GormLicenseRepository{db: tx}
}

// Create 创建许可证
func (r *GormLicenseRepository) Create(license *models.License) error {
	return r.db.Create(license).Error
}

// Update 更新许可证
func (r *GormLicenseRepository) Update(license *models.License) error {
	return r.db.Save(license).Error
}

// GetByID 根据 ID 获取许可证
func (r *GormLicenseRepository) GetByID(id uint) (*models.License, error) {
	var license models.License
	if err := r.db.First(&license, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &license, nil
}

// GetLatestByOrderID 获取订单最新许可证
func (r *GormLicenseRepository) GetLatestByOrderID(orderID uint) (*models.License, error) {
	var license models.License
	result := r.db.Where("order_id = ?", orderID).Order("id desc").Limit(1).Find(&license)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &license, nil
}

// GetLatestActiveByUserPlan 获取用户在某方案下最新的有效许可证
func (r *GormLicenseRepository) GetLatestActiveByUserPlan(userID, planID uint) (*models.License, error) {
	var license models.License
	result := r.db.Where("user_id = ? AND plan_id = ? AND status = ?", userID, planID, constants.LicenseStatusActive).
		Order("id desc").Limit(1).Find(&license)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &license, nil
}

// ListActive 获取有效许可证列表
func (r *GormLicenseRepository) ListActive(limit int) ([]models.License, error) {
	query := r.db.Where("status = ?", constants.LicenseStatusActive).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var licenses []models.License
	if err := query.Find(&licenses).Error; err != nil {
		return nil, err
	}
	return licenses, nil
}

// ListActivePastExpiry 获取已过期但仍标记有效的许可证
func (r *GormLicenseRepository) ListActivePastExpiry(now time.Time, limit int) ([]models.License, error) {
	query := r.db.Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", constants.LicenseStatusActive, now).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var licenses []models.License
	if err := query.Find(&licenses).Error; err != nil {
		return nil, err
	}
	return licenses, nil
}

// ListByUser 获取用户许可证列表
func (r *GormLicenseRepository) ListByUser(userID uint) ([]models.License, error) {
	var licenses []models.License
	if err := r.db.Where("user_id = ?", userID).Order("id desc").Find(&licenses).Error; err != nil {
		return nil, err
	}
	return licenses, nil
}

// MarkExpired 将许可证标记为过期，返回是否有行被更新
func (r *GormLicenseRepository) MarkExpired(id uint) (bool, error) {
	result := r.db.Model(&models.License{}).
		Where("id = ? AND status = ?", id, constants.LicenseStatusActive).
		Update("status", constants.LicenseStatusExpired)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
