package admin

import (
	"errors"
	"time"

	"github.com/pixvend/internal/cache"
	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/http/response"
	"github.com/pixvend/internal/queue"
	"github.com/pixvend/internal/repository"
	"github.com/pixvend/internal/service"

	"github.com/gin-gonic/gin"
)

const manualSweepLockTTL = 10 * time.Minute

// TriggerReconciliation 手动触发一次对账扫描。
// 队列启用时异步投递，否则同步执行并返回本次运行结果。
func (h *Handler) TriggerReconciliation(c *gin.Context) {
	if h.QueueClient != nil && h.QueueClient.Enabled() {
		payload := queue.ReconciliationSweepPayload{Trigger: constants.SweepTriggerManual}
		if err := h.QueueClient.EnqueueReconciliationSweep(payload); err != nil {
			respondError(c, response.CodeInternal, "对账任务投递失败", err)
			return
		}
		requestLog(c).Infow("reconciliation_sweep_enqueued", "trigger", constants.SweepTriggerManual)
		response.Success(c, gin.H{"queued": true})
		return
	}

	ctx := c.Request.Context()
	acquired, err := cache.AcquireSweepLock(ctx, manualSweepLockTTL)
	if err != nil {
		respondError(c, response.CodeInternal, "对账锁获取失败", err)
		return
	}
	if !acquired {
		respondError(c, response.CodeConflict, "对账任务正在执行", nil)
		return
	}
	defer func() {
		if releaseErr := cache.ReleaseSweepLock(ctx); releaseErr != nil {
			requestLog(c).Warnw("reconciliation_sweep_lock_release_failed", "error", releaseErr)
		}
	}()

	run, err := h.ReconciliationService.RunSweep(ctx, constants.SweepTriggerManual)
	if err != nil {
		if errors.Is(err, service.ErrReconciliationRunning) {
			respondError(c, response.CodeConflict, "对账任务正在执行", nil)
			return
		}
		respondError(c, response.CodeInternal, "对账执行失败", err)
		return
	}
	response.Success(c, run)
}

// ListReconciliationRuns 分页查询对账运行记录。
func (h *Handler) ListReconciliationRuns(c *gin.Context) {
	page, pageSize := normalizePagination(queryInt(c, "page"), queryInt(c, "page_size"))
	runs, total, err := h.ReconciliationService.ListRuns(page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "对账运行记录查询失败", err)
		return
	}
	response.SuccessWithPage(c, runs, buildPagination(page, pageSize, total))
}

// GetReconciliationRun 按 ID 查询单次对账运行。
func (h *Handler) GetReconciliationRun(c *gin.Context) {
	id := paramUint(c, "id")
	if id == 0 {
		respondError(c, response.CodeBadRequest, "运行 ID 无效", nil)
		return
	}
	run, err := h.ReconciliationService.GetRun(id)
	if err != nil {
		respondError(c, response.CodeInternal, "对账运行查询失败", err)
		return
	}
	if run == nil {
		respondError(c, response.CodeNotFound, "对账运行不存在", nil)
		return
	}
	response.Success(c, run)
}

// ListAuditLogs 分页查询对账审计记录。
func (h *Handler) ListAuditLogs(c *gin.Context) {
	page, pageSize := normalizePagination(queryInt(c, "page"), queryInt(c, "page_size"))
	filter := repository.AuditLogListFilter{
		Page:     page,
		PageSize: pageSize,
		RunID:    queryUint(c, "run_id"),
		Category: c.Query("category"),
		Outcome:  c.Query("outcome"),
	}
	entries, total, err := h.ReconciliationService.ListAuditEntries(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "审计记录查询失败", err)
		return
	}
	response.SuccessWithPage(c, entries, buildPagination(page, pageSize, total))
}
