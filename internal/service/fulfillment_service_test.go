package service

import (
	"errors"
	"testing"
	"time"

	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/models"
	"github.com/pixvend/internal/repository"

	"gorm.io/gorm"
)

func setupFulfillmentServiceTest(t *testing.T) (*FulfillmentService, *gorm.DB) {
	t.Helper()
	db := setupServiceTestDB(t, "fulfillment_service_test")
	svc := NewFulfillmentService(
		repository.NewOrderRepository(db),
		repository.NewPaymentRepository(db),
		repository.NewPlanRepository(db),
		repository.NewLicenseRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewInventoryReservationRepository(db),
	)
	return svc, db
}

func TestFulfillmentCompleteLicenseOrder(t *testing.T) {
	svc, db := setupFulfillmentServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	createTestPendingPayment(t, db, order)

	result, err := svc.Complete(order.ID, 0, "", 0)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if result.AlreadyCompleted {
		t.Fatalf("first completion should not be idempotent noop")
	}
	if result.License == nil || result.License.Status != constants.LicenseStatusActive {
		t.Fatalf("license should be provisioned: %+v", result.License)
	}
	if result.License.ExpiresAt == nil {
		t.Fatalf("license expiry should be set")
	}
	wantExpiry := time.Now().AddDate(0, 0, 30)
	if diff := result.License.ExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("license expiry want ~%s got %s", wantExpiry, result.License.ExpiresAt)
	}

	got := reloadTestOrder(t, db, order.ID)
	if got.Status != constants.OrderStatusCompleted || got.PaidAt == nil || got.CompletedAt == nil {
		t.Fatalf("order should be completed with timestamps: %+v", got)
	}

	var payment models.Payment
	if err := db.Where("order_id = ?", order.ID).First(&payment).Error; err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	if payment.Status != constants.PaymentStatusPaid || payment.PaidAt == nil {
		t.Fatalf("payment should be paid: %+v", payment)
	}
}

func TestFulfillmentCompleteIdempotent(t *testing.T) {
	svc, db := setupFulfillmentServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)

	if _, err := svc.Complete(order.ID, 0, "", 0); err != nil {
		t.Fatalf("first complete failed: %v", err)
	}
	result, err := svc.Complete(order.ID, 0, "", 0)
	if err != nil {
		t.Fatalf("second complete failed: %v", err)
	}
	if !result.AlreadyCompleted {
		t.Fatalf("second completion should be idempotent noop")
	}

	var licenses int64
	if err := db.Model(&models.License{}).Where("order_id = ?", order.ID).Count(&licenses).Error; err != nil {
		t.Fatalf("count licenses failed: %v", err)
	}
	if licenses != 1 {
		t.Fatalf("repeat completion must not provision twice, licenses=%d", licenses)
	}
}

func TestFulfillmentLicenseRenewalExtendsExpiry(t *testing.T) {
	svc, db := setupFulfillmentServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)

	first := createTestPendingOrder(t, db, plan, 1)
	firstResult, err := svc.Complete(first.ID, 0, "", 0)
	if err != nil {
		t.Fatalf("first complete failed: %v", err)
	}
	firstExpiry := *firstResult.License.ExpiresAt

	second := createTestPendingOrder(t, db, plan, 1)
	secondResult, err := svc.Complete(second.ID, 0, "", 0)
	if err != nil {
		t.Fatalf("renewal complete failed: %v", err)
	}
	if secondResult.License.ID != firstResult.License.ID {
		t.Fatalf("renewal should extend the existing license, got new id %d", secondResult.License.ID)
	}
	wantExpiry := firstExpiry.AddDate(0, 0, 30)
	if diff := secondResult.License.ExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("renewed expiry want ~%s got %s", wantExpiry, secondResult.License.ExpiresAt)
	}

	var licenses int64
	if err := db.Model(&models.License{}).Where("user_id = ? AND plan_id = ?", 1, plan.ID).Count(&licenses).Error; err != nil {
		t.Fatalf("count licenses failed: %v", err)
	}
	if licenses != 1 {
		t.Fatalf("renewal must not create a second license, licenses=%d", licenses)
	}
}

func TestFulfillmentCompleteSubscriptionOrder(t *testing.T) {
	svc, db := setupFulfillmentServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeSubscription, 90, "129.00", -1)
	order := createTestPendingOrder(t, db, plan, 1)

	result, err := svc.Complete(order.ID, 0, "", 0)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if result.License == nil || result.Subscription == nil {
		t.Fatalf("subscription order should provision license and subscription: %+v", result)
	}
	if result.Subscription.Status != constants.SubscriptionStatusActive {
		t.Fatalf("subscription status want active got %s", result.Subscription.Status)
	}
	if result.Subscription.LicenseID == nil || *result.Subscription.LicenseID != result.License.ID {
		t.Fatalf("subscription should link the provisioned license: %+v", result.Subscription)
	}
	if result.Subscription.CurrentPeriodEnd == nil {
		t.Fatalf("subscription period end should be set")
	}
	wantEnd := time.Now().AddDate(0, 0, 90)
	if diff := result.Subscription.CurrentPeriodEnd.Sub(wantEnd); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("period end want ~%s got %s", wantEnd, result.Subscription.CurrentPeriodEnd)
	}
}

func TestFulfillmentCompleteInventoryAllocatesReservation(t *testing.T) {
	svc, db := setupFulfillmentServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeInventory, 0, "19.90", 50)
	order := createTestPendingOrder(t, db, plan, 2)
	now := time.Now()
	reservation := &models.InventoryReservation{
		OrderID:   order.ID,
		PlanID:    plan.ID,
		Quantity:  2,
		Status:    constants.ReservationStatusHeld,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(reservation).Error; err != nil {
		t.Fatalf("create reservation failed: %v", err)
	}

	if _, err := svc.Complete(order.ID, 0, "", 0); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	var got models.InventoryReservation
	if err := db.First(&got, reservation.ID).Error; err != nil {
		t.Fatalf("reload reservation failed: %v", err)
	}
	if got.Status != constants.ReservationStatusAllocated {
		t.Fatalf("reservation status want allocated got %s", got.Status)
	}
}

func TestFulfillmentCompleteInventoryMissingReservationTolerated(t *testing.T) {
	svc, db := setupFulfillmentServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeInventory, 0, "19.90", 50)
	order := createTestPendingOrder(t, db, plan, 1)

	// 预留缺失由对账扫描补偿，交付不失败
	if _, err := svc.Complete(order.ID, 0, "", 0); err != nil {
		t.Fatalf("complete should tolerate missing reservation: %v", err)
	}
	if got := reloadTestOrder(t, db, order.ID); got.Status != constants.OrderStatusCompleted {
		t.Fatalf("order status want completed got %s", got.Status)
	}
}

func TestFulfillmentCompleteMetadataMismatch(t *testing.T) {
	svc, db := setupFulfillmentServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)

	if _, err := svc.Complete(order.ID, 999, "", 0); !errors.Is(err, ErrOrderInvalid) {
		t.Fatalf("expected ErrOrderInvalid for user mismatch, got: %v", err)
	}
	if _, err := svc.Complete(order.ID, 0, constants.ProductTypeInventory, 0); !errors.Is(err, ErrOrderInvalid) {
		t.Fatalf("expected ErrOrderInvalid for product type mismatch, got: %v", err)
	}
	if _, err := svc.Complete(order.ID, 0, "", 5); !errors.Is(err, ErrOrderInvalid) {
		t.Fatalf("expected ErrOrderInvalid for quantity mismatch, got: %v", err)
	}
	if got := reloadTestOrder(t, db, order.ID); got.Status != constants.OrderStatusPending {
		t.Fatalf("mismatched completion must not move order, got %s", got.Status)
	}
}

func TestFulfillmentCompleteCancelledOrderRejected(t *testing.T) {
	svc, db := setupFulfillmentServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", constants.OrderStatusCancelled).Error; err != nil {
		t.Fatalf("cancel order failed: %v", err)
	}

	if _, err := svc.Complete(order.ID, 0, "", 0); !errors.Is(err, ErrOrderStatusInvalid) {
		t.Fatalf("expected ErrOrderStatusInvalid, got: %v", err)
	}

	if _, err := svc.Complete(0, 0, "", 0); !errors.Is(err, ErrOrderInvalid) {
		t.Fatalf("expected ErrOrderInvalid for zero id, got: %v", err)
	}
	if _, err := svc.Complete(99999, 0, "", 0); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}
