package repository

import (
	"errors"
	"time"

	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/models"

	"gorm.io/gorm"
)

// SubscriptionRepository 订阅数据访问接口
type SubscriptionRepository interface {
	Create(subscription *models.Subscription) error
	Update(subscription *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	GetActiveByUserPlan(userID, planID uint) (*models.Subscription, error)
	GetByLicenseID(licenseID uint) (*models.Subscription, error)
	ListActive(limit int) ([]models.Subscription, error)
	ListActivePastPeriodEnd(now time.Time, limit int) ([]models.Subscription, error)
	MarkExpired(id uint) (bool, error)
	WithTx(tx *gorm.DB) *GormSubscriptionRepository
}

// GormSubscriptionRepository GORM 实现
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository 创建订阅仓库
func NewSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSubscriptionRepository) WithTx(tx *gorm.DB) *GormSubscriptionRepository {
	if tx == nil {
		return r
	}
	return &GormSubscriptionRepository{db: tx}
}

// Create 创建订阅
func (r *GormSubscriptionRepository) Create(subscription *models.Subscription) error {
	return r.db.Create(subscription).Error
}

// Update 更新订阅
func (r *GormSubscriptionRepository) Update(subscription *models.Subscription) error {
	return r.db.Save(subscription).Error
}

// GetByID 根据 ID 获取订阅
func (r *GormSubscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var subscription models.Subscription
	if err := r.db.First(&subscription, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

// GetActiveByUserPlan 获取用户在某方案下的有效订阅
func (r *GormSubscriptionRepository) GetActiveByUserPlan(userID, planID uint) (*models.Subscription, error) {
	var subscription models.Subscription
	result := r.db.Where("user_id = ? AND plan_id = ? AND status = ?", userID, planID, constants.SubscriptionStatusActive).
		Order("id desc").Limit(1).Find(&subscription)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &subscription, nil
}

// GetByLicenseID 根据许可证获取订阅
func (r *GormSubscriptionRepository) GetByLicenseID(licenseID uint) (*models.Subscription, error) {
	var subscription models.Subscription
	result := r.db.Where("license_id = ?", licenseID).Order("id desc").Limit(1).Find(&subscription)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &subscription, nil
}

// ListActive 获取有效订阅列表
func (r *GormSubscriptionRepository) ListActive(limit int) ([]models.Subscription, error) {
	query := r.db.Where("status = ?", constants.SubscriptionStatusActive).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var subscriptions []models.Subscription
	if err := query.Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// ListActivePastPeriodEnd 获取周期已结束但仍标记有效的订阅
func (r *GormSubscriptionRepository) ListActivePastPeriodEnd(now time.Time, limit int) ([]models.Subscription, error) {
	query := r.db.Where("status = ? AND current_period_end IS NOT NULL AND current_period_end <= ?", constants.SubscriptionStatusActive, now).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var subscriptions []models.Subscription
	if err := query.Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// MarkExpired 将订阅标记为过期，返回是否有行被更新
func (r *GormSubscriptionRepository) MarkExpired(id uint) (bool, error) {
	result := r.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, constants.SubscriptionStatusActive).
		Update("status", constants.SubscriptionStatusExpired)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
