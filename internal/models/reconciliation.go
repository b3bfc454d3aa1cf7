package models

import "time"

// ReconciliationRun 对账运行汇总（每次执行写入一条）
type ReconciliationRun struct {
	ID                 uint       `gorm:"primarykey" json:"id"`                          // 主键
	Status             string     `gorm:"index;not null" json:"status"`                  // 运行状态
	StartedAt          time.Time  `gorm:"index;not null" json:"started_at"`              // 开始时间
	FinishedAt         *time.Time `gorm:"index" json:"finished_at"`                      // 结束时间
	DurationMs         int64      `gorm:"not null;default:0" json:"duration_ms"`         // 耗时（毫秒）
	DetectedTotal      int        `gorm:"not null;default:0" json:"detected_total"`      // 检出总数
	CorrectedTotal     int        `gorm:"not null;default:0" json:"corrected_total"`     // 修复总数
	UncorrectableTotal int        `gorm:"not null;default:0" json:"uncorrectable_total"` // 无法修复总数
	CategoryBreakdown  JSON       `gorm:"type:json" json:"category_breakdown"`           // 按类别统计
	CreatedAt          time.Time  `gorm:"index" json:"created_at"`                       // 创建时间
}

// TableName 指定表名
func (ReconciliationRun) TableName() string {
	return "reconciliation_runs"
}

// AuditLogEntry 对账审计记录（只追加，每个修复动作一条）
type AuditLogEntry struct {
	ID         uint      `gorm:"primarykey" json:"id"`             // 主键
	RunID      uint      `gorm:"index;not null" json:"run_id"`     // 对账运行ID
	Category   string    `gorm:"index;not null" json:"category"`   // 漂移类别
	EntityType string    `gorm:"index;not null" json:"entity_type"` // 实体类型（order/payment/license/...）
	EntityID   uint      `gorm:"index;not null" json:"entity_id"`  // 实体ID
	Action     string    `gorm:"not null" json:"action"`           // 执行动作
	Outcome    string    `gorm:"index;not null" json:"outcome"`    // 结论（corrected/uncorrectable）
	Reason     string    `gorm:"type:text" json:"reason"`          // 人类可读原因
	Detail     JSON      `gorm:"type:json" json:"detail"`          // 结构化明细
	CreatedAt  time.Time `gorm:"index" json:"created_at"`          // 创建时间
}

// TableName 指定表名
func (AuditLogEntry) TableName() string {
	return "audit_log_entries"
}
