package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/models"
	"github.com/pixvend/internal/repository"

	"gorm.io/gorm"
)

func setupOrderServiceTest(t *testing.T) (*OrderService, *gorm.DB) {
	t.Helper()
	db := setupServiceTestDB(t, "order_service_test")
	svc := NewOrderService(
		repository.NewOrderRepository(db),
		repository.NewPlanRepository(db),
		repository.NewPaymentRepository(db),
		repository.NewInventoryReservationRepository(db),
		nil,
		nil,
	)
	return svc, db
}

func reloadTestPlan(t *testing.T, db *gorm.DB, id uint) *models.Plan {
	t.Helper()
	var plan models.Plan
	if err := db.First(&plan, id).Error; err != nil {
		t.Fatalf("reload plan failed: %v", err)
	}
	return &plan
}

func TestOrderCreateLicense(t *testing.T) {
	svc, db := setupOrderServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)

	order, err := svc.Create(CreateOrderInput{UserID: 1, PlanID: plan.ID})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if !strings.HasPrefix(order.OrderNo, "PV") {
		t.Fatalf("order no should carry PV prefix, got %s", order.OrderNo)
	}
	if order.Status != constants.OrderStatusPending || order.Quantity != 1 {
		t.Fatalf("unexpected order: %+v", order)
	}
	if order.Amount.String() != "49.90" {
		t.Fatalf("amount want 49.90 got %s", order.Amount.String())
	}
	if order.ExpiresAt == nil || !order.ExpiresAt.After(time.Now()) {
		t.Fatalf("payment window should be in the future: %v", order.ExpiresAt)
	}

	var payment models.Payment
	if err := db.Where("order_id = ?", order.ID).First(&payment).Error; err != nil {
		t.Fatalf("pending payment should be created: %v", err)
	}
	if payment.Status != constants.PaymentStatusPending || payment.Amount.String() != "49.90" {
		t.Fatalf("unexpected payment: %+v", payment)
	}
}

func TestOrderCreateInventoryDecrementsStock(t *testing.T) {
	svc, db := setupOrderServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeInventory, 0, "19.90", 5)

	order, err := svc.Create(CreateOrderInput{UserID: 2, PlanID: plan.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.Amount.String() != "39.80" {
		t.Fatalf("amount want 39.80 got %s", order.Amount.String())
	}
	if got := reloadTestPlan(t, db, plan.ID); got.Stock != 3 {
		t.Fatalf("stock want 3 got %d", got.Stock)
	}

	var reservation models.InventoryReservation
	if err := db.Where("order_id = ?", order.ID).First(&reservation).Error; err != nil {
		t.Fatalf("reservation should be created: %v", err)
	}
	if reservation.Status != constants.ReservationStatusHeld || reservation.Quantity != 2 {
		t.Fatalf("unexpected reservation: %+v", reservation)
	}
}

func TestOrderCreateStockInsufficient(t *testing.T) {
	svc, db := setupOrderServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeInventory, 0, "19.90", 1)

	if _, err := svc.Create(CreateOrderInput{UserID: 2, PlanID: plan.ID, Quantity: 2}); !errors.Is(err, ErrStockInsufficient) {
		t.Fatalf("expected ErrStockInsufficient, got: %v", err)
	}
	if got := reloadTestPlan(t, db, plan.ID); got.Stock != 1 {
		t.Fatalf("failed order must not consume stock, got %d", got.Stock)
	}

	var orders int64
	if err := db.Model(&models.Order{}).Count(&orders).Error; err != nil {
		t.Fatalf("count orders failed: %v", err)
	}
	if orders != 0 {
		t.Fatalf("failed creation must roll back the order, orders=%d", orders)
	}
}

func TestOrderCreateValidation(t *testing.T) {
	svc, db := setupOrderServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)

	if _, err := svc.Create(CreateOrderInput{UserID: 0, PlanID: plan.ID}); !errors.Is(err, ErrOrderInvalid) {
		t.Fatalf("expected ErrOrderInvalid for missing user, got: %v", err)
	}
	if _, err := svc.Create(CreateOrderInput{UserID: 1, PlanID: 99999}); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got: %v", err)
	}
	// 时限类商品一次只买一份
	if _, err := svc.Create(CreateOrderInput{UserID: 1, PlanID: plan.ID, Quantity: 2}); !errors.Is(err, ErrOrderInvalid) {
		t.Fatalf("expected ErrOrderInvalid for multi-quantity license, got: %v", err)
	}

	disabled := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	if err := db.Model(&models.Plan{}).Where("id = ?", disabled.ID).Update("enabled", false).Error; err != nil {
		t.Fatalf("disable plan failed: %v", err)
	}
	if _, err := svc.Create(CreateOrderInput{UserID: 1, PlanID: disabled.ID}); !errors.Is(err, ErrPlanDisabled) {
		t.Fatalf("expected ErrPlanDisabled, got: %v", err)
	}
}

func TestOrderGetByOrderNo(t *testing.T) {
	svc, db := setupOrderServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)

	got, err := svc.GetByOrderNo(order.OrderNo)
	if err != nil {
		t.Fatalf("get by order no failed: %v", err)
	}
	if got.ID != order.ID {
		t.Fatalf("order id want %d got %d", order.ID, got.ID)
	}

	if _, err := svc.GetByOrderNo("PVMISSING"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
	if _, err := svc.GetByOrderNo("  "); !errors.Is(err, ErrOrderInvalid) {
		t.Fatalf("expected ErrOrderInvalid, got: %v", err)
	}
}

func TestOrderCancelIfExpiredReleasesStock(t *testing.T) {
	svc, db := setupOrderServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeInventory, 0, "19.90", 5)

	order, err := svc.Create(CreateOrderInput{UserID: 3, PlanID: plan.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if got := reloadTestPlan(t, db, plan.ID); got.Stock != 4 {
		t.Fatalf("stock want 4 after order got %d", got.Stock)
	}

	// 未过期时为幂等空操作
	cancelled, err := svc.CancelIfExpired(order.ID)
	if err != nil {
		t.Fatalf("cancel check failed: %v", err)
	}
	if cancelled {
		t.Fatalf("order within payment window must not be cancelled")
	}

	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("expires_at", timeNowMinusMinute()).Error; err != nil {
		t.Fatalf("expire order failed: %v", err)
	}
	cancelled, err = svc.CancelIfExpired(order.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !cancelled {
		t.Fatalf("expired pending order should be cancelled")
	}

	if got := reloadTestOrder(t, db, order.ID); got.Status != constants.OrderStatusCancelled || got.CancelledAt == nil {
		t.Fatalf("order should be cancelled with timestamp: %+v", got)
	}
	if got := reloadTestPlan(t, db, plan.ID); got.Stock != 5 {
		t.Fatalf("stock should be restored to 5, got %d", got.Stock)
	}

	var payment models.Payment
	if err := db.Where("order_id = ?", order.ID).First(&payment).Error; err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	if payment.Status != constants.PaymentStatusCancelled {
		t.Fatalf("payment status want cancelled got %s", payment.Status)
	}

	var reservation models.InventoryReservation
	if err := db.Where("order_id = ?", order.ID).First(&reservation).Error; err != nil {
		t.Fatalf("load reservation failed: %v", err)
	}
	if reservation.Status != constants.ReservationStatusReleased {
		t.Fatalf("reservation status want released got %s", reservation.Status)
	}

	// 已取消后再次调用为幂等空操作
	cancelled, err = svc.CancelIfExpired(order.ID)
	if err != nil {
		t.Fatalf("repeat cancel failed: %v", err)
	}
	if cancelled {
		t.Fatalf("repeat cancel should be a noop")
	}
	if got := reloadTestPlan(t, db, plan.ID); got.Stock != 5 {
		t.Fatalf("repeat cancel must not double-restore stock, got %d", got.Stock)
	}
}

func TestOrderCancelExpiredBatch(t *testing.T) {
	svc, db := setupOrderServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)

	first, err := svc.Create(CreateOrderInput{UserID: 1, PlanID: plan.ID})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	second, err := svc.Create(CreateOrderInput{UserID: 1, PlanID: plan.ID})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if err := db.Model(&models.Order{}).Where("id IN ?", []uint{first.ID, second.ID}).
		Update("expires_at", timeNowMinusMinute()).Error; err != nil {
		t.Fatalf("expire orders failed: %v", err)
	}

	cancelled, err := svc.CancelExpiredBatch(100)
	if err != nil {
		t.Fatalf("batch cancel failed: %v", err)
	}
	if cancelled != 2 {
		t.Fatalf("cancelled want 2 got %d", cancelled)
	}
}
