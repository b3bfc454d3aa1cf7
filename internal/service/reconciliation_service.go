package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pixvend/internal/config"
	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/logger"
	"github.com/pixvend/internal/models"
	"github.com/pixvend/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReconciliationService 对账扫描服务：检测并修复支付/订单/权益之间的状态漂移。
type ReconciliationService struct {
	orderRepo        repository.OrderRepository
	paymentRepo      repository.PaymentRepository
	planRepo         repository.PlanRepository
	licenseRepo      repository.LicenseRepository
	subscriptionRepo repository.SubscriptionRepository
	reservationRepo  repository.InventoryReservationRepository
	reconRepo        repository.ReconciliationRepository
	fulfillmentSvc   *FulfillmentService
	orderSvc         *OrderService
	notificationSvc  *NotificationService
	cfg              *config.ReconciliationConfig

	mu sync.Mutex
}

// NewReconciliationService 创建对账服务
func NewReconciliationService(orderRepo repository.OrderRepository, paymentRepo repository.PaymentRepository, planRepo repository.PlanRepository, licenseRepo repository.LicenseRepository, subscriptionRepo repository.SubscriptionRepository, reservationRepo repository.InventoryReservationRepository, reconRepo repository.ReconciliationRepository, fulfillmentSvc *FulfillmentService, orderSvc *OrderService, notificationSvc *NotificationService, cfg *config.ReconciliationConfig) *ReconciliationService {
	return &ReconciliationService{
		orderRepo:        orderRepo,
		paymentRepo:      paymentRepo,
		planRepo:         planRepo,
		licenseRepo:      licenseRepo,
		subscriptionRepo: subscriptionRepo,
		reservationRepo:  reservationRepo,
		reconRepo:        reconRepo,
		fulfillmentSvc:   fulfillmentSvc,
		orderSvc:         orderSvc,
		notificationSvc:  notificationSvc,
		cfg:              cfg,
	}
}

func reconLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// sweepState 单次扫描的累计状态
type sweepState struct {
	run           *models.ReconciliationRun
	detected      int
	corrected     int
	uncorrectable int
	breakdown     map[string]int
}

// RunSweep 执行一次完整对账扫描。八个类别顺序执行，逐行修复，
// 单行失败记为 uncorrectable 不中断整轮；每轮写入一条运行汇总。
// 在一致的数据集上重复执行应检出零问题。
func (s *ReconciliationService) RunSweep(ctx context.Context, trigger string) (*models.ReconciliationRun, error) {
	if !s.mu.TryLock() {
		return nil, ErrReconciliationRunning
	}
	defer s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()
	run := &models.ReconciliationRun{
		Status:    constants.ReconRunStatusRunning,
		StartedAt: started,
		CreatedAt: started,
	}
	if err := s.reconRepo.CreateRun(run); err != nil {
		return nil, err
	}

	log := reconLogger("run_id", run.ID, "trigger", trigger)
	log.Infow("reconciliation_sweep_started")

	state := &sweepState{run: run, breakdown: map[string]int{}}
	categories := []struct {
		name string
		fn   func(*sweepState) error
	}{
		{constants.DriftPaidPaymentOrderIncomplete, s.sweepPaidPaymentsIncompleteOrders},
		{constants.DriftCompletedOrderMissingLicense, s.sweepCompletedOrdersMissingLicense},
		{constants.DriftActiveLicenseMissingSub, s.sweepActiveLicensesMissingSubscription},
		{constants.DriftActiveSubMissingLicense, s.sweepActiveSubscriptionsMissingLicense},
		{constants.DriftExpiredPendingOrderHeldStock, s.sweepExpiredPendingOrders},
		{constants.DriftOrphanedReservation, s.sweepOrphanedReservations},
		{constants.DriftLicensePastExpiry, s.sweepLicensesPastExpiry},
		{constants.DriftSubscriptionPastExpiry, s.sweepSubscriptionsPastPeriodEnd},
	}
	var sweepErr error
	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			sweepErr = err
			break
		}
		if err := category.fn(state); err != nil {
			log.Errorw("reconciliation_category_failed",
				"category", category.name,
				"error", err,
			)
			sweepErr = err
			break
		}
	}

	finished := time.Now()
	run.FinishedAt = &finished
	run.DurationMs = finished.Sub(started).Milliseconds()
	run.DetectedTotal = state.detected
	run.CorrectedTotal = state.corrected
	run.UncorrectableTotal = state.uncorrectable
	breakdown := models.JSON{}
	for category, count := range state.breakdown {
		breakdown[category] = count
	}
	run.CategoryBreakdown = breakdown
	if sweepErr != nil {
		run.Status = constants.ReconRunStatusFailed
	} else {
		run.Status = constants.ReconRunStatusCompleted
	}
	if err := s.reconRepo.UpdateRun(run); err != nil {
		log.Errorw("reconciliation_run_update_failed", "error", err)
	}

	log.Infow("reconciliation_sweep_finished",
		"status", run.Status,
		"detected", run.DetectedTotal,
		"corrected", run.CorrectedTotal,
		"uncorrectable", run.UncorrectableTotal,
		"duration_ms", run.DurationMs,
	)

	if state.uncorrectable > 0 && s.notificationSvc != nil {
		if err := s.notificationSvc.SendOperatorAlert(
			fmt.Sprintf("[PixVend] 对账扫描发现 %d 条无法自动修复的问题", state.uncorrectable),
			fmt.Sprintf("对账运行 #%d：检出 %d，修复 %d，无法修复 %d。请在管理端审计日志中查看明细。", run.ID, state.detected, state.corrected, state.uncorrectable),
		); err != nil {
			log.Warnw("reconciliation_alert_failed", "error", err)
		}
	}
	if sweepErr != nil {
		return run, sweepErr
	}
	return run, nil
}

// ListRuns 对账运行列表
func (s *ReconciliationService) ListRuns(page, pageSize int) ([]models.ReconciliationRun, int64, error) {
	return s.reconRepo.ListRuns(page, pageSize)
}

// GetRun 获取对账运行详情
func (s *ReconciliationService) GetRun(id uint) (*models.ReconciliationRun, error) {
	if id == 0 {
		return nil, ErrOrderInvalid
	}
	return s.reconRepo.GetRunByID(id)
}

// ListAuditEntries 审计日志列表
func (s *ReconciliationService) ListAuditEntries(filter repository.AuditLogListFilter) ([]models.AuditLogEntry, int64, error) {
	return s.reconRepo.ListAuditEntries(filter)
}

func (s *ReconciliationService) batchLimit() int {
	if s.cfg != nil && s.cfg.BatchLimit > 0 {
		return s.cfg.BatchLimit
	}
	return 500
}

func (s *ReconciliationService) audit(state *sweepState, category, entityType string, entityID uint, action, outcome, reason string, detail models.JSON) {
	state.detected++
	state.breakdown[category]++
	if outcome == constants.AuditOutcomeCorrected {
		state.corrected++
	} else {
		state.uncorrectable++
	}
	entry := &models.AuditLogEntry{
		RunID:      state.run.ID,
		Category:   category,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Outcome:    outcome,
		Reason:     reason,
		Detail:     detail,
		CreatedAt:  time.Now(),
	}
	if err := s.reconRepo.CreateAuditEntry(entry); err != nil {
		reconLogger("run_id", state.run.ID).Warnw("reconciliation_audit_write_failed",
			"category", category,
			"entity_id", entityID,
			"error", err,
		)
	}
}

// 类别一：支付单已支付但订单未完成 → 补交付。
func (s *ReconciliationService) sweepPaidPaymentsIncompleteOrders(state *sweepState) error {
	payments, _, err := s.paymentRepo.ListAdmin(repository.PaymentListFilter{
		Status:   constants.PaymentStatusPaid,
		PageSize: s.batchLimit(),
	})
	if err != nil {
		return err
	}
	for _, payment := range payments {
		if payment.OrderID == nil {
			continue
		}
		order, err := s.orderRepo.GetByID(*payment.OrderID)
		if err != nil {
			s.audit(state, constants.DriftPaidPaymentOrderIncomplete, "payment", payment.ID,
				"none", constants.AuditOutcomeUncorrectable, err.Error(),
				models.JSON{"order_id": *payment.OrderID})
			continue
		}
		if order == nil {
			s.audit(state, constants.DriftPaidPaymentOrderIncomplete, "payment", payment.ID,
				"none", constants.AuditOutcomeUncorrectable, "已支付记录关联的订单不存在",
				models.JSON{"order_id": *payment.OrderID})
			continue
		}
		if order.Status == constants.OrderStatusCompleted || order.Status == constants.OrderStatusRefunded {
			continue
		}
		if _, err := s.fulfillmentSvc.Complete(order.ID, 0, "", 0); err != nil {
			s.audit(state, constants.DriftPaidPaymentOrderIncomplete, "order", order.ID,
				"complete_order", constants.AuditOutcomeUncorrectable, err.Error(),
				models.JSON{"payment_id": payment.ID, "order_status": order.Status})
			continue
		}
		s.audit(state, constants.DriftPaidPaymentOrderIncomplete, "order", order.ID,
			"complete_order", constants.AuditOutcomeCorrected, "已支付订单补交付",
			models.JSON{"payment_id": payment.ID})
	}
	return nil
}

// 类别二：已完成订单缺少许可证 → 补发。
func (s *ReconciliationService) sweepCompletedOrdersMissingLicense(state *sweepState) error {
	orders, _, err := s.orderRepo.ListAdmin(repository.OrderListFilter{
		Status:   constants.OrderStatusCompleted,
		PageSize: s.batchLimit(),
	})
	if err != nil {
		return err
	}
	for _, order := range orders {
		if order.ProductType != constants.ProductTypeLicense && order.ProductType != constants.ProductTypeSubscription {
			continue
		}
		license, err := s.licenseRepo.GetLatestByOrderID(order.ID)
		if err != nil {
			s.audit(state, constants.DriftCompletedOrderMissingLicense, "order", order.ID,
				"none", constants.AuditOutcomeUncorrectable, err.Error(), nil)
			continue
		}
		if license != nil {
			continue
		}
		// 续期订单不新增许可证行，权益体现在同方案未过期的激活许可证上。
		active, err := s.licenseRepo.GetLatestActiveByUserPlan(order.UserID, order.PlanID)
		if err != nil {
			s.audit(state, constants.DriftCompletedOrderMissingLicense, "order", order.ID,
				"none", constants.AuditOutcomeUncorrectable, err.Error(), nil)
			continue
		}
		if active != nil && (active.ExpiresAt == nil || active.ExpiresAt.After(time.Now())) {
			continue
		}
		currentOrder := order
		err = models.DB.Transaction(func(tx *gorm.DB) error {
			_, err := s.fulfillmentSvc.provisionLicenseTx(tx, &currentOrder, time.Now())
			return err
		})
		if err != nil {
			s.audit(state, constants.DriftCompletedOrderMissingLicense, "order", order.ID,
				"create_license", constants.AuditOutcomeUncorrectable, err.Error(), nil)
			continue
		}
		s.audit(state, constants.DriftCompletedOrderMissingLicense, "order", order.ID,
			"create_license", constants.AuditOutcomeCorrected, "已完成订单补发许可证", nil)
	}
	return nil
}

// 类别三：订阅类方案的有效许可证缺少订阅记录 → 重建。
func (s *ReconciliationService) sweepActiveLicensesMissingSubscription(state *sweepState) error {
	licenses, err := s.licenseRepo.ListActive(s.batchLimit())
	if err != nil {
		return err
	}
	for _, license := range licenses {
		plan, err := s.planRepo.GetByID(license.PlanID)
		if err != nil {
			s.audit(state, constants.DriftActiveLicenseMissingSub, "license", license.ID,
				"none", constants.AuditOutcomeUncorrectable, err.Error(),
				models.JSON{"plan_id": license.PlanID})
			continue
		}
		if plan == nil || plan.ProductType != constants.ProductTypeSubscription {
			continue
		}
		subscription, err := s.subscriptionRepo.GetActiveByUserPlan(license.UserID, license.PlanID)
		if err != nil {
			s.audit(state, constants.DriftActiveLicenseMissingSub, "license", license.ID,
				"none", constants.AuditOutcomeUncorrectable, err.Error(), nil)
			continue
		}
		if subscription != nil {
			continue
		}
		licenseID := license.ID
		now := time.Now()
		recreated := &models.Subscription{
			UserID:           license.UserID,
			PlanID:           license.PlanID,
			LicenseID:        &licenseID,
			Status:           constants.SubscriptionStatusActive,
			CurrentPeriodEnd: license.ExpiresAt,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.subscriptionRepo.Create(recreated); err != nil {
			s.audit(state, constants.DriftActiveLicenseMissingSub, "license", license.ID,
				"recreate_subscription", constants.AuditOutcomeUncorrectable, err.Error(), nil)
			continue
		}
		s.audit(state, constants.DriftActiveLicenseMissingSub, "license", license.ID,
			"recreate_subscription", constants.AuditOutcomeCorrected, "按许可证重建订阅记录",
			models.JSON{"subscription_id": recreated.ID})
	}
	return nil
}

// 类别四：有效订阅缺少有效许可证 → 订阅置过期。
func (s *ReconciliationService) sweepActiveSubscriptionsMissingLicense(state *sweepState) error {
	subscriptions, err := s.subscriptionRepo.ListActive(s.batchLimit())
	if err != nil {
		return err
	}
	for _, subscription := range subscriptions {
		var license *models.License
		var err error
		if subscription.LicenseID != nil {
			license, err = s.licenseRepo.GetByID(*subscription.LicenseID)
		} else {
			license, err = s.licenseRepo.GetLatestActiveByUserPlan(subscription.UserID, subscription.PlanID)
		}
		if err != nil {
			s.audit(state, constants.DriftActiveSubMissingLicense, "subscription", subscription.ID,
				"none", constants.AuditOutcomeUncorrectable, err.Error(), nil)
			continue
		}
		if license != nil && license.Status == constants.LicenseStatusActive {
			continue
		}
		expired, err := s.subscriptionRepo.MarkExpired(subscription.ID)
		if err != nil || !expired {
			reason := "订阅置过期失败"
			if err != nil {
				reason = err.Error()
			}
			s.audit(state, constants.DriftActiveSubMissingLicense, "subscription", subscription.ID,
				"expire_subscription", constants.AuditOutcomeUncorrectable, reason, nil)
			continue
		}
		s.audit(state, constants.DriftActiveSubMissingLicense, "subscription", subscription.ID,
			"expire_subscription", constants.AuditOutcomeCorrected, "订阅缺少有效许可证，已置过期", nil)
	}
	return nil
}

// 类别五：超时未支付订单仍挂起 → 取消并释放预留。
func (s *ReconciliationService) sweepExpiredPendingOrders(state *sweepState) error {
	orders, err := s.orderRepo.ListExpiredPending(time.Now(), s.batchLimit())
	if err != nil {
		return err
	}
	for _, order := range orders {
		cancelled, err := s.orderSvc.CancelIfExpired(order.ID)
		if err != nil {
			s.audit(state, constants.DriftExpiredPendingOrderHeldStock, "order", order.ID,
				"cancel_order", constants.AuditOutcomeUncorrectable, err.Error(), nil)
			continue
		}
		if !cancelled {
			continue
		}
		s.audit(state, constants.DriftExpiredPendingOrderHeldStock, "order", order.ID,
			"cancel_order", constants.AuditOutcomeCorrected, "超时待支付订单已取消并释放预留", nil)
	}
	return nil
}

// 类别六：预留仍为占用但订单已不存在或已终止 → 释放；订单已完成 → 转分配。
func (s *ReconciliationService) sweepOrphanedReservations(state *sweepState) error {
	reservations, err := s.reservationRepo.ListHeld(s.batchLimit())
	if err != nil {
		return err
	}
	for _, reservation := range reservations {
		order, err := s.orderRepo.GetByID(reservation.OrderID)
		if err != nil {
			s.audit(state, constants.DriftOrphanedReservation, "reservation", reservation.ID,
				"none", constants.AuditOutcomeUncorrectable, err.Error(),
				models.JSON{"order_id": reservation.OrderID})
			continue
		}
		if order != nil && order.Status == constants.OrderStatusCompleted {
			if _, err := s.reservationRepo.UpdateStatus(reservation.ID, constants.ReservationStatusHeld, constants.ReservationStatusAllocated); err != nil {
				s.audit(state, constants.DriftOrphanedReservation, "reservation", reservation.ID,
					"allocate_reservation", constants.AuditOutcomeUncorrectable, err.Error(), nil)
				continue
			}
			s.audit(state, constants.DriftOrphanedReservation, "reservation", reservation.ID,
				"allocate_reservation", constants.AuditOutcomeCorrected, "已完成订单的预留补转分配",
				models.JSON{"order_id": reservation.OrderID})
			continue
		}
		if order != nil && !isOrderFinalized(order.Status) {
			continue
		}
		err = models.DB.Transaction(func(tx *gorm.DB) error {
			return s.orderSvc.releaseReservationTx(tx, reservation.OrderID)
		})
		if err != nil {
			s.audit(state, constants.DriftOrphanedReservation, "reservation", reservation.ID,
				"release_reservation", constants.AuditOutcomeUncorrectable, err.Error(), nil)
			continue
		}
		s.audit(state, constants.DriftOrphanedReservation, "reservation", reservation.ID,
			"release_reservation", constants.AuditOutcomeCorrected, "孤立预留已释放并回补库存",
			models.JSON{"order_id": reservation.OrderID})
	}
	return nil
}

// 类别七：许可证已过有效期仍为 active → 置过期。
func (s *ReconciliationService) sweepLicensesPastExpiry(state *sweepState) error {
	licenses, err := s.licenseRepo.ListActivePastExpiry(time.Now(), s.batchLimit())
	if err != nil {
		return err
	}
	for _, license := range licenses {
		expired, err := s.licenseRepo.MarkExpired(license.ID)
		if err != nil || !expired {
			reason := "许可证置过期失败"
			if err != nil {
				reason = err.Error()
			}
			s.audit(state, constants.DriftLicensePastExpiry, "license", license.ID,
				"expire_license", constants.AuditOutcomeUncorrectable, reason, nil)
			continue
		}
		s.audit(state, constants.DriftLicensePastExpiry, "license", license.ID,
			"expire_license", constants.AuditOutcomeCorrected, "许可证已过有效期，置过期", nil)
	}
	return nil
}

// 类别八：订阅已过周期截止仍为 active → 置过期。
func (s *ReconciliationService) sweepSubscriptionsPastPeriodEnd(state *sweepState) error {
	subscriptions, err := s.subscriptionRepo.ListActivePastPeriodEnd(time.Now(), s.batchLimit())
	if err != nil {
		return err
	}
	for _, subscription := range subscriptions {
		expired, err := s.subscriptionRepo.MarkExpired(subscription.ID)
		if err != nil || !expired {
			reason := "订阅置过期失败"
			if err != nil {
				reason = err.Error()
			}
			s.audit(state, constants.DriftSubscriptionPastExpiry, "subscription", subscription.ID,
				"expire_subscription", constants.AuditOutcomeUncorrectable, reason, nil)
			continue
		}
		s.audit(state, constants.DriftSubscriptionPastExpiry, "subscription", subscription.ID,
			"expire_subscription", constants.AuditOutcomeCorrected, "订阅已过周期截止，置过期", nil)
	}
	return nil
}
