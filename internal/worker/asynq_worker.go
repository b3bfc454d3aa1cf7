package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/pixvend/internal/cache"
	"github.com/pixvend/internal/logger"
	"github.com/pixvend/internal/provider"
	"github.com/pixvend/internal/queue"
	"github.com/pixvend/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOperatorAlert, c.handleOperatorAlert)
	mux.HandleFunc(queue.TaskOrderTimeoutCancel, c.handleOrderTimeoutCancel)
	mux.HandleFunc(queue.TaskReconciliationSweep, c.handleReconciliationSweep)
}

func (c *Consumer) handleOperatorAlert(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_operator_alert_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OperatorAlertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_operator_alert_unmarshal_failed", "error", err)
		return err
	}
	if strings.TrimSpace(payload.Subject) == "" {
		logger.Debugw("worker_operator_alert_skip_empty_subject")
		return nil
	}
	if c.NotificationService == nil {
		logger.Warnw("worker_operator_alert_skip_notification_service_nil", "subject", payload.Subject)
		return nil
	}
	if err := c.NotificationService.DeliverOperatorAlert(payload.Subject, payload.Body); err != nil {
		logger.Warnw("worker_operator_alert_send_failed", "subject", payload.Subject, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleOrderTimeoutCancel(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_timeout_cancel_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderTimeoutCancelPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_timeout_cancel_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_timeout_cancel_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.OrderService == nil {
		logger.Warnw("worker_order_timeout_cancel_skip_order_service_nil", "order_id", payload.OrderID)
		return nil
	}
	cancelled, err := c.OrderService.CancelIfExpired(payload.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			logger.Debugw("worker_order_timeout_cancel_skip_order_not_found", "order_id", payload.OrderID)
			return nil
		case errors.Is(err, service.ErrOrderFetchFailed):
			logger.Warnw("worker_order_timeout_cancel_fetch_failed", "order_id", payload.OrderID, "error", err)
			return nil
		default:
			logger.Warnw("worker_order_timeout_cancel_failed", "order_id", payload.OrderID, "error", err)
			return err
		}
	}
	if cancelled {
		logger.Infow("worker_order_timeout_cancelled", "order_id", payload.OrderID)
	}
	return nil
}

func (c *Consumer) handleReconciliationSweep(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_reconciliation_sweep_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReconciliationSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_reconciliation_sweep_unmarshal_failed", "error", err)
		return err
	}
	if c.ReconciliationService == nil {
		logger.Warnw("worker_reconciliation_sweep_skip_service_nil")
		return nil
	}
	return runSweepLocked(ctx, c.ReconciliationService, payload.Trigger)
}

// runSweepLocked 在 Redis 锁保护下执行一次对账扫描，多实例部署时避免并发扫描。
func runSweepLocked(ctx context.Context, svc *service.ReconciliationService, trigger string) error {
	acquired, err := cache.AcquireSweepLock(ctx, sweepLockTTL)
	if err != nil {
		logger.Warnw("worker_sweep_lock_acquire_failed", "error", err)
		return err
	}
	if !acquired {
		logger.Infow("worker_sweep_lock_held_skip", "trigger", trigger)
		return nil
	}
	defer func() {
		if err := cache.ReleaseSweepLock(ctx); err != nil {
			logger.Warnw("worker_sweep_lock_release_failed", "error", err)
		}
	}()

	run, err := svc.RunSweep(ctx, trigger)
	if err != nil {
		if errors.Is(err, service.ErrReconciliationRunning) {
			logger.Infow("worker_reconciliation_sweep_already_running", "trigger", trigger)
			return nil
		}
		logger.Warnw("worker_reconciliation_sweep_failed", "trigger", trigger, "error", err)
		return err
	}
	logger.Infow("worker_reconciliation_sweep_done",
		"run_id", run.ID,
		"trigger", trigger,
		"detected_total", run.DetectedTotal,
		"corrected_total", run.CorrectedTotal,
		"uncorrectable_total", run.UncorrectableTotal,
	)
	return nil
}
