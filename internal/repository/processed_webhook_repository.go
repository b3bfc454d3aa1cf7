package repository

import (
	"strings"

	"github.com/pixvend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProcessedWebhookRepository 回调去重记录数据访问接口
type ProcessedWebhookRepository interface {
	Exists(gateway, transactionID string) (bool, error)
	CreateIgnoreDuplicate(record *models.ProcessedWebhook) (bool, error)
	WithTx(tx *gorm.DB) *GormProcessedWebhookRepository
}

// GormProcessedWebhookRepository GORM 实现
type GormProcessedWebhookRepository struct {
	db *gorm.DB
}

// NewProcessedWebhookRepository 创建回调去重仓库
func NewProcessedWebhookRepository(db *gorm.DB) *GormProcessedWebhookRepository {
	return &GormProcessedWebhookRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProcessedWebhookRepository) WithTx(tx *gorm.DB) *GormProcessedWebhookRepository {
	if tx == nil {
		return r
	}
	return &GormProcessedWebhookRepository{db: tx}
}

// Exists 判断 (gateway, transaction_id) 是否已处理
func (r *GormProcessedWebhookRepository) Exists(gateway, transactionID string) (bool, error) {
	gateway = strings.TrimSpace(gateway)
	transactionID = strings.TrimSpace(transactionID)
	if gateway == "" || transactionID == "" {
		return false, nil
	}
	var count int64
	err := r.db.Model(&models.ProcessedWebhook{}).
		Where("gateway = ? AND transaction_id = ?", gateway, transactionID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateIgnoreDuplicate 写入去重记录，唯一键冲突视为已被并发写入。
// 返回 true 表示本次写入成功，false 表示记录已存在（重复投递竞争落败）。
func (r *GormProcessedWebhookRepository) CreateIgnoreDuplicate(record *models.ProcessedWebhook) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway"}, {Name: "transaction_id"}},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
