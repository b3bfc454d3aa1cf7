package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/pixvend/internal/config"
	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/logger"
	"github.com/pixvend/internal/models"
	"github.com/pixvend/internal/queue"
	"github.com/pixvend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderService 订单服务
type OrderService struct {
	orderRepo       repository.OrderRepository
	planRepo        repository.PlanRepository
	paymentRepo     repository.PaymentRepository
	reservationRepo repository.InventoryReservationRepository
	queueClient     *queue.Client
	cfg             *config.OrderConfig
}

// NewOrderService 创建订单服务
func NewOrderService(orderRepo repository.OrderRepository, planRepo repository.PlanRepository, paymentRepo repository.PaymentRepository, reservationRepo repository.InventoryReservationRepository, queueClient *queue.Client, cfg *config.OrderConfig) *OrderService {
	return &OrderService{
		orderRepo:       orderRepo,
		planRepo:        planRepo,
		paymentRepo:     paymentRepo,
		reservationRepo: reservationRepo,
		queueClient:     queueClient,
		cfg:             cfg,
	}
}

// CreateOrderInput 下单请求
type CreateOrderInput struct {
	UserID   uint
	PlanID   uint
	Quantity int
}

func orderLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// Create 创建订单：订单与待支付记录同事务写入；
// 库存类方案同时扣减库存并生成预留记录；随后投递延迟超时取消任务。
func (s *OrderService) Create(input CreateOrderInput) (*models.Order, error) {
	if input.UserID == 0 || input.PlanID == 0 {
		return nil, ErrOrderInvalid
	}
	quantity := input.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	plan, err := s.planRepo.GetByID(input.PlanID)
	if err != nil {
		return nil, ErrOrderCreateFailed
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}
	if !plan.Enabled {
		return nil, ErrPlanDisabled
	}
	// 时限类商品一次只买一份，续期通过再次下单完成。
	if plan.ProductType != constants.ProductTypeInventory && quantity != 1 {
		return nil, ErrOrderInvalid
	}

	now := time.Now()
	amount := models.NewMoneyFromDecimal(plan.Price.Decimal.Mul(decimal.NewFromInt(int64(quantity))).Round(2))
	expireMinutes := 15
	if s.cfg != nil && s.cfg.PaymentExpireMinutes > 0 {
		expireMinutes = s.cfg.PaymentExpireMinutes
	}
	expiresAt := now.Add(time.Duration(expireMinutes) * time.Minute)

	order := &models.Order{
		OrderNo:     generateOrderNo(),
		UserID:      input.UserID,
		PlanID:      plan.ID,
		ProductType: plan.ProductType,
		Quantity:    quantity,
		Amount:      amount,
		Status:      constants.OrderStatusPending,
		Description: plan.Name,
		ExpiresAt:   &expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		paymentRepo := s.paymentRepo.WithTx(tx)

		if plan.ProductType == constants.ProductTypeInventory {
			ok, err := s.planRepo.DecrementStock(tx, plan.ID, quantity)
			if err != nil {
				return ErrOrderCreateFailed
			}
			if !ok {
				return ErrStockInsufficient
			}
		}

		if err := orderRepo.Create(order); err != nil {
			return ErrOrderCreateFailed
		}

		payment := &models.Payment{
			OrderID:   &order.ID,
			Amount:    amount,
			Status:    constants.PaymentStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := paymentRepo.Create(payment); err != nil {
			return ErrOrderCreateFailed
		}

		if plan.ProductType == constants.ProductTypeInventory {
			reservationRepo := s.reservationRepo.WithTx(tx)
			reservation := &models.InventoryReservation{
				OrderID:   order.ID,
				PlanID:    plan.ID,
				Quantity:  quantity,
				Status:    constants.ReservationStatusHeld,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := reservationRepo.Create(reservation); err != nil {
				return ErrOrderCreateFailed
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := orderLogger(
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"plan_id", plan.ID,
		"product_type", plan.ProductType,
		"quantity", quantity,
		"amount", amount.String(),
	)
	log.Infow("order_created")

	if s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueOrderTimeoutCancel(queue.OrderTimeoutCancelPayload{
			OrderID: order.ID,
		}, time.Until(expiresAt)); err != nil {
			log.Warnw("order_enqueue_timeout_cancel_failed", "error", err)
		}
	}
	return order, nil
}

// GetByOrderNo 按订单编号查询订单
func (s *OrderService) GetByOrderNo(orderNo string) (*models.Order, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, ErrOrderInvalid
	}
	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetPayments 查询订单支付记录
func (s *OrderService) GetPayments(orderID uint) ([]models.Payment, error) {
	if orderID == 0 {
		return nil, ErrOrderInvalid
	}
	return s.paymentRepo.ListByOrderID(orderID)
}

// ListOrders 管理端订单列表
func (s *OrderService) ListOrders(filter repository.OrderListFilter) ([]models.Order, int64, error) {
	return s.orderRepo.ListAdmin(filter)
}

// CancelIfExpired 订单超过待支付期限时取消并释放库存。
// 仍处于待支付且已过期才会取消，其余情况为幂等空操作。
func (s *OrderService) CancelIfExpired(orderID uint) (bool, error) {
	if orderID == 0 {
		return false, ErrOrderInvalid
	}
	cancelled := false
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		locked, err := orderRepo.GetByIDForUpdate(tx, orderID)
		if err != nil {
			return ErrOrderFetchFailed
		}
		if locked == nil {
			return ErrOrderNotFound
		}
		if locked.Status != constants.OrderStatusPending {
			return nil
		}
		if locked.ExpiresAt == nil || locked.ExpiresAt.After(time.Now()) {
			return nil
		}
		if err := s.cancelPendingOrderTx(tx, locked); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if cancelled {
		orderLogger("order_id", orderID).Infow("order_timeout_cancelled")
	}
	return cancelled, nil
}

// cancelPendingOrderTx 事务内取消待支付订单：置取消态、作废支付单、释放预留并回补库存。
func (s *OrderService) cancelPendingOrderTx(tx *gorm.DB, order *models.Order) error {
	now := time.Now()
	orderRepo := s.orderRepo.WithTx(tx)
	if !isTransitionAllowed(order.Status, constants.OrderStatusCancelled) {
		return ErrOrderStatusInvalid
	}
	if err := orderRepo.UpdateStatus(order.ID, constants.OrderStatusCancelled, map[string]interface{}{
		"cancelled_at": now,
		"updated_at":   now,
	}); err != nil {
		return ErrOrderUpdateFailed
	}
	order.Status = constants.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now

	paymentRepo := s.paymentRepo.WithTx(tx)
	pending, err := paymentRepo.GetLatestPendingByOrder(order.ID)
	if err != nil {
		return ErrPaymentUpdateFailed
	}
	if pending != nil {
		pending.Status = constants.PaymentStatusCancelled
		pending.UpdatedAt = now
		if err := paymentRepo.Update(pending); err != nil {
			return ErrPaymentUpdateFailed
		}
	}

	return s.releaseReservationTx(tx, order.ID)
}

// releaseReservationTx 释放订单的库存预留并回补方案库存
func (s *OrderService) releaseReservationTx(tx *gorm.DB, orderID uint) error {
	reservationRepo := s.reservationRepo.WithTx(tx)
	reservation, err := reservationRepo.GetHeldByOrderID(orderID)
	if err != nil {
		return ErrOrderUpdateFailed
	}
	if reservation == nil {
		return nil
	}
	released, err := reservationRepo.UpdateStatus(reservation.ID, constants.ReservationStatusHeld, constants.ReservationStatusReleased)
	if err != nil {
		return ErrOrderUpdateFailed
	}
	if !released {
		return nil
	}
	if err := s.planRepo.IncrementStock(tx, reservation.PlanID, reservation.Quantity); err != nil {
		return ErrOrderUpdateFailed
	}
	return nil
}

// CancelExpiredBatch 批量取消过期待支付订单（worker 兜底轮询）
func (s *OrderService) CancelExpiredBatch(limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	expired, err := s.orderRepo.ListExpiredPending(time.Now(), limit)
	if err != nil {
		return 0, ErrOrderFetchFailed
	}
	cancelled := 0
	for _, order := range expired {
		ok, err := s.CancelIfExpired(order.ID)
		if err != nil {
			orderLogger("order_id", order.ID).Warnw("order_expired_cancel_failed", "error", err)
			continue
		}
		if ok {
			cancelled++
		}
	}
	return cancelled, nil
}

func generateOrderNo() string {
	return fmt.Sprintf("PV%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:20])
}
