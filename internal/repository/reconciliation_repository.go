package repository

import (
	"errors"

	"github.com/pixvend/internal/models"

	"gorm.io/gorm"
)

// ReconciliationRepository 对账运行与审计记录数据访问接口
type ReconciliationRepository interface {
	CreateRun(run *models.ReconciliationRun) error
	UpdateRun(run *models.ReconciliationRun) error
	GetRunByID(id uint) (*models.ReconciliationRun, error)
	ListRuns(page, pageSize int) ([]models.ReconciliationRun, int64, error)
	CreateAuditEntry(entry *models.AuditLogEntry) error
	ListAuditEntries(filter AuditLogListFilter) ([]models.AuditLogEntry, int64, error)
	WithTx(tx *gorm.DB) *GormReconciliationRepository
}

// GormReconciliationRepository GORM 实现
type GormReconciliationRepository struct {
	db *gorm.DB
}

// NewReconciliationRepository 创建对账仓库
func NewReconciliationRepository(db *gorm.DB) *GormReconciliationRepository {
	return &GormReconciliationRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReconciliationRepository) WithTx(tx *gorm.DB) *GormReconciliationRepository {
	if tx == nil {
		return r
	}
	return &GormReconciliationRepository{db: tx}
}

// CreateRun 创建对账运行记录
func (r *GormReconciliationRepository) CreateRun(run *models.ReconciliationRun) error {
	return r.db.Create(run).Error
}

// UpdateRun 更新对账运行记录
func (r *GormReconciliationRepository) UpdateRun(run *models.ReconciliationRun) error {
	return r.db.Save(run).Error
}

// GetRunByID 根据 ID 获取对账运行记录
func (r *GormReconciliationRepository) GetRunByID(id uint) (*models.ReconciliationRun, error) {
	var run models.ReconciliationRun
	if err := r.db.First(&run, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// ListRuns 对账运行列表
func (r *GormReconciliationRepository) ListRuns(page, pageSize int) ([]models.ReconciliationRun, int64, error) {
	query := r.db.Model(&models.ReconciliationRun{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, page, pageSize)

	var runs []models.ReconciliationRun
	if err := query.Order("id desc").Find(&runs).Error; err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// CreateAuditEntry 追加一条审计记录
func (r *GormReconciliationRepository) CreateAuditEntry(entry *models.AuditLogEntry) error {
	return r.db.Create(entry).Error
}

// ListAuditEntries 审计记录列表
func (r *GormReconciliationRepository) ListAuditEntries(filter AuditLogListFilter) ([]models.AuditLogEntry, int64, error) {
	query := r.db.Model(&models.AuditLogEntry{})

	if filter.RunID != 0 {
		query = query.Where("run_id = ?", filter.RunID)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Outcome != "" {
		query = query.Where("outcome = ?", filter.Outcome)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var entries []models.AuditLogEntry
	if err := query.Order("id desc").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
