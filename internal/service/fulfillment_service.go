package service

import (
	"strings"
	"time"

	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/logger"
	"github.com/pixvend/internal/models"
	"github.com/pixvend/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FulfillmentService 订单交付服务：支付确认后原子地完成订单并发放权益。
type FulfillmentService struct {
	orderRepo        repository.OrderRepository
	paymentRepo      repository.PaymentRepository
	planRepo         repository.PlanRepository
	licenseRepo      repository.LicenseRepository
	subscriptionRepo repository.SubscriptionRepository
	reservationRepo  repository.InventoryReservationRepository
}

// NewFulfillmentService 创建交付服务
func NewFulfillmentService(orderRepo repository.OrderRepository, paymentRepo repository.PaymentRepository, planRepo repository.PlanRepository, licenseRepo repository.LicenseRepository, subscriptionRepo repository.SubscriptionRepository, reservationRepo repository.InventoryReservationRepository) *FulfillmentService {
	return &FulfillmentService{
		orderRepo:        orderRepo,
		paymentRepo:      paymentRepo,
		planRepo:         planRepo,
		licenseRepo:      licenseRepo,
		subscriptionRepo: subscriptionRepo,
		reservationRepo:  reservationRepo,
	}
}

// CompleteResult 交付结果
type CompleteResult struct {
	AlreadyCompleted bool
	License          *models.License
	Subscription     *models.Subscription
}

func fulfillmentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// Complete 完成订单交付。单事务内：锁订单 → 已完成则幂等返回 →
// 订单置已完成、支付单置已支付 → 按商品类型发放许可证/订阅/库存。
// 任一步失败整体回滚，订单保持原状态。
func (s *FulfillmentService) Complete(orderID, userID uint, productType string, quantity int) (*CompleteResult, error) {
	if orderID == 0 {
		return nil, ErrOrderInvalid
	}
	productType = strings.ToLower(strings.TrimSpace(productType))

	result := &CompleteResult{}
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		locked, err := orderRepo.GetByIDForUpdate(tx, orderID)
		if err != nil {
			return ErrOrderFetchFailed
		}
		if locked == nil {
			return ErrOrderNotFound
		}
		if locked.Status == constants.OrderStatusCompleted {
			result.AlreadyCompleted = true
			return nil
		}
		if userID != 0 && userID != locked.UserID {
			return ErrOrderInvalid
		}
		if productType != "" && productType != locked.ProductType {
			return ErrOrderInvalid
		}
		if quantity != 0 && quantity != locked.Quantity {
			return ErrOrderInvalid
		}

		now := time.Now()
		// 回调可能在下单确认前到达，此时直接从待支付推进到已支付。
		if locked.Status == constants.OrderStatusPending {
			if err := orderRepo.UpdateStatus(locked.ID, constants.OrderStatusPaid, map[string]interface{}{
				"paid_at":    now,
				"updated_at": now,
			}); err != nil {
				return ErrOrderUpdateFailed
			}
			locked.Status = constants.OrderStatusPaid
			locked.PaidAt = &now
		}
		if !isTransitionAllowed(locked.Status, constants.OrderStatusCompleted) {
			return ErrOrderStatusInvalid
		}
		if err := orderRepo.UpdateStatus(locked.ID, constants.OrderStatusCompleted, map[string]interface{}{
			"completed_at": now,
			"updated_at":   now,
		}); err != nil {
			return ErrOrderUpdateFailed
		}
		locked.Status = constants.OrderStatusCompleted
		locked.CompletedAt = &now

		if err := s.markPaymentPaidTx(tx, locked.ID, now); err != nil {
			return err
		}

		switch locked.ProductType {
		case constants.ProductTypeLicense:
			license, err := s.provisionLicenseTx(tx, locked, now)
			if err != nil {
				return err
			}
			result.License = license
		case constants.ProductTypeSubscription:
			license, err := s.provisionLicenseTx(tx, locked, now)
			if err != nil {
				return err
			}
			subscription, err := s.provisionSubscriptionTx(tx, locked, license, now)
			if err != nil {
				return err
			}
			result.License = license
			result.Subscription = subscription
		case constants.ProductTypeInventory:
			if err := s.allocateReservationTx(tx, locked.ID); err != nil {
				return err
			}
		default:
			return ErrFulfillmentFailed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := fulfillmentLogger("order_id", orderID)
	if result.AlreadyCompleted {
		log.Infow("fulfillment_idempotent_noop")
	} else {
		log.Infow("fulfillment_completed")
	}
	return result, nil
}

func (s *FulfillmentService) markPaymentPaidTx(tx *gorm.DB, orderID uint, now time.Time) error {
	paymentRepo := s.paymentRepo.WithTx(tx)
	payment, err := paymentRepo.GetLatestPendingByOrder(orderID)
	if err != nil {
		return ErrPaymentUpdateFailed
	}
	if payment == nil {
		return nil
	}
	payment.Status = constants.PaymentStatusPaid
	payment.PaidAt = &now
	payment.UpdatedAt = now
	if err := paymentRepo.Update(payment); err != nil {
		return ErrPaymentUpdateFailed
	}
	return nil
}

// provisionLicenseTx 发放或续期许可证：同方案未过期的激活许可证按天数顺延，否则新建。
func (s *FulfillmentService) provisionLicenseTx(tx *gorm.DB, order *models.Order, now time.Time) (*models.License, error) {
	plan, err := s.planRepo.WithTx(tx).GetByID(order.PlanID)
	if err != nil || plan == nil {
		return nil, ErrPlanNotFound
	}
	licenseRepo := s.licenseRepo.WithTx(tx)

	existing, err := licenseRepo.GetLatestActiveByUserPlan(order.UserID, order.PlanID)
	if err != nil {
		return nil, ErrFulfillmentFailed
	}
	if existing != nil && (existing.ExpiresAt == nil || existing.ExpiresAt.After(now)) {
		if plan.DurationDays > 0 && existing.ExpiresAt != nil {
			renewed := existing.ExpiresAt.AddDate(0, 0, plan.DurationDays)
			existing.ExpiresAt = &renewed
		}
		existing.UpdatedAt = now
		if err := licenseRepo.Update(existing); err != nil {
			return nil, ErrFulfillmentFailed
		}
		return existing, nil
	}

	license := &models.License{
		UserID:    order.UserID,
		OrderID:   order.ID,
		PlanID:    order.PlanID,
		Key:       uuid.NewString(),
		Status:    constants.LicenseStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if plan.DurationDays > 0 {
		expiresAt := now.AddDate(0, 0, plan.DurationDays)
		license.ExpiresAt = &expiresAt
	}
	if err := licenseRepo.Create(license); err != nil {
		return nil, ErrFulfillmentFailed
	}
	return license, nil
}

// provisionSubscriptionTx 创建或顺延订阅周期，并关联本次许可证。
func (s *FulfillmentService) provisionSubscriptionTx(tx *gorm.DB, order *models.Order, license *models.License, now time.Time) (*models.Subscription, error) {
	plan, err := s.planRepo.WithTx(tx).GetByID(order.PlanID)
	if err != nil || plan == nil {
		return nil, ErrPlanNotFound
	}
	subscriptionRepo := s.subscriptionRepo.WithTx(tx)

	var licenseID *uint
	if license != nil {
		licenseID = &license.ID
	}

	existing, err := subscriptionRepo.GetActiveByUserPlan(order.UserID, order.PlanID)
	if err != nil {
		return nil, ErrFulfillmentFailed
	}
	if existing != nil {
		base := now
		if existing.CurrentPeriodEnd != nil && existing.CurrentPeriodEnd.After(now) {
			base = *existing.CurrentPeriodEnd
		}
		if plan.DurationDays > 0 {
			periodEnd := base.AddDate(0, 0, plan.DurationDays)
			existing.CurrentPeriodEnd = &periodEnd
		}
		existing.LicenseID = licenseID
		existing.UpdatedAt = now
		if err := subscriptionRepo.Update(existing); err != nil {
			return nil, ErrFulfillmentFailed
		}
		return existing, nil
	}

	subscription := &models.Subscription{
		UserID:    order.UserID,
		PlanID:    order.PlanID,
		LicenseID: licenseID,
		Status:    constants.SubscriptionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if plan.DurationDays > 0 {
		periodEnd := now.AddDate(0, 0, plan.DurationDays)
		subscription.CurrentPeriodEnd = &periodEnd
	}
	if err := subscriptionRepo.Create(subscription); err != nil {
		return nil, ErrFulfillmentFailed
	}
	return subscription, nil
}

func (s *FulfillmentService) allocateReservationTx(tx *gorm.DB, orderID uint) error {
	reservationRepo := s.reservationRepo.WithTx(tx)
	reservation, err := reservationRepo.GetHeldByOrderID(orderID)
	if err != nil {
		return ErrFulfillmentFailed
	}
	if reservation == nil {
		// 预留缺失由对账扫描补偿，交付本身不失败。
		fulfillmentLogger("order_id", orderID).Warnw("fulfillment_reservation_missing")
		return nil
	}
	if _, err := reservationRepo.UpdateStatus(reservation.ID, constants.ReservationStatusHeld, constants.ReservationStatusAllocated); err != nil {
		return ErrFulfillmentFailed
	}
	return nil
}
