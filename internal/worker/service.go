package worker

import (
	"context"
	"errors"
	"time"

	"github.com/pixvend/internal/config"
	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/logger"
	"github.com/pixvend/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	pendingExpireInterval   = time.Minute
	pendingExpireBatchLimit = 200
	sweepLockTTL            = 10 * time.Minute
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.OrderService != nil {
		go s.runPendingExpireLoop(ctx)
	}
	if s.consumer != nil && s.consumer.ReconciliationService != nil {
		go s.runReconciliationLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runPendingExpireLoop 兜底取消超时未支付订单。
// 单笔的延时取消任务在下单时已入队，这里补扫队列投递失败或重启丢失的部分。
func (s *Service) runPendingExpireLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.OrderService == nil {
		return
	}
	runOnce := func() {
		cancelled, err := s.consumer.OrderService.CancelExpiredBatch(pendingExpireBatchLimit)
		if err != nil {
			logger.Warnw("worker_pending_expire_batch_failed", "error", err)
			return
		}
		if cancelled > 0 {
			logger.Infow("worker_pending_expire_batch_done", "cancelled", cancelled)
		}
	}
	runOnce()

	ticker := time.NewTicker(pendingExpireInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// runReconciliationLoop 按配置间隔执行对账扫描。
func (s *Service) runReconciliationLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.ReconciliationService == nil {
		return
	}
	cfg := s.consumer.Config
	if cfg == nil || !cfg.Reconciliation.Enabled {
		logger.Infow("worker_reconciliation_loop_disabled")
		return
	}
	interval := time.Duration(cfg.Reconciliation.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	runOnce := func() {
		if err := runSweepLocked(ctx, s.consumer.ReconciliationService, constants.SweepTriggerScheduled); err != nil {
			logger.Warnw("worker_reconciliation_loop_sweep_failed", "error", err)
		}
	}
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
