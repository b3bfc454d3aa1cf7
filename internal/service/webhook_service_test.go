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

func setupWebhookServiceTest(t *testing.T) (*WebhookService, *gorm.DB) {
	t.Helper()
	db := setupServiceTestDB(t, "webhook_service_test")
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	processedRepo := repository.NewProcessedWebhookRepository(db)
	planRepo := repository.NewPlanRepository(db)
	licenseRepo := repository.NewLicenseRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	reservationRepo := repository.NewInventoryReservationRepository(db)
	orderSvc := NewOrderService(orderRepo, planRepo, paymentRepo, reservationRepo, nil, nil)
	fulfillmentSvc := NewFulfillmentService(orderRepo, paymentRepo, planRepo, licenseRepo, subscriptionRepo, reservationRepo)
	return NewWebhookService(orderRepo, paymentRepo, processedRepo, orderSvc, fulfillmentSvc, nil), db
}

func countProcessedWebhooks(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.ProcessedWebhook{}).Count(&count).Error; err != nil {
		t.Fatalf("count processed webhooks failed: %v", err)
	}
	return count
}

func TestWebhookPaidCompletesOrder(t *testing.T) {
	svc, db := setupWebhookServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	createTestPendingPayment(t, db, order)

	result, err := svc.HandleEvent(WebhookEvent{
		Gateway:       constants.GatewayOpenPix,
		TransactionID: "openpix-txn-paid",
		ExternalRef:   order.OrderNo,
		Status:        constants.WebhookStatusPaid,
		Amount:        49.90,
	})
	if err != nil {
		t.Fatalf("handle event failed: %v", err)
	}
	if result.OrderID != order.ID || result.StatusApplied != constants.WebhookStatusPaid {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Duplicate || result.Absorbed {
		t.Fatalf("first delivery should not be duplicate: %+v", result)
	}

	got := reloadTestOrder(t, db, order.ID)
	if got.Status != constants.OrderStatusCompleted {
		t.Fatalf("order status want completed got %s", got.Status)
	}
	if got.PaidAt == nil || got.CompletedAt == nil {
		t.Fatalf("order should carry paid_at/completed_at: %+v", got)
	}

	var payment models.Payment
	if err := db.Where("order_id = ?", order.ID).First(&payment).Error; err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	if payment.Status != constants.PaymentStatusPaid {
		t.Fatalf("payment status want paid got %s", payment.Status)
	}

	var license models.License
	if err := db.Where("order_id = ?", order.ID).First(&license).Error; err != nil {
		t.Fatalf("license should be provisioned: %v", err)
	}
	if license.Status != constants.LicenseStatusActive || license.ExpiresAt == nil {
		t.Fatalf("unexpected license: %+v", license)
	}

	if countProcessedWebhooks(t, db) != 1 {
		t.Fatalf("one processed webhook record expected")
	}
}

func TestWebhookDuplicateDeliveryIgnored(t *testing.T) {
	svc, db := setupWebhookServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	createTestPendingPayment(t, db, order)

	event := WebhookEvent{
		Gateway:       constants.GatewayAsaas,
		TransactionID: "asaas-txn-dup",
		ExternalRef:   order.OrderNo,
		Status:        constants.WebhookStatusPaid,
		Amount:        49.90,
	}
	if _, err := svc.HandleEvent(event); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	result, err := svc.HandleEvent(event)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("replay should be reported as duplicate: %+v", result)
	}

	var licenses int64
	if err := db.Model(&models.License{}).Where("order_id = ?", order.ID).Count(&licenses).Error; err != nil {
		t.Fatalf("count licenses failed: %v", err)
	}
	if licenses != 1 {
		t.Fatalf("replay must not provision twice, licenses=%d", licenses)
	}
}

func TestWebhookPendingThenPaidCompletesOrder(t *testing.T) {
	svc, db := setupWebhookServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	createTestPendingPayment(t, db, order)

	// 网关先推 pending 再推 paid，同一笔交易流水号
	pending, err := svc.HandleEvent(WebhookEvent{
		Gateway:       constants.GatewayMercadoPago,
		TransactionID: "mp-txn-seq",
		ExternalRef:   order.OrderNo,
		Status:        constants.WebhookStatusPending,
	})
	if err != nil {
		t.Fatalf("pending delivery failed: %v", err)
	}
	if pending.StatusApplied != constants.WebhookStatusPending {
		t.Fatalf("unexpected pending result: %+v", pending)
	}
	// 中间态不写去重记录
	if countProcessedWebhooks(t, db) != 0 {
		t.Fatalf("pending delivery must not be marked processed")
	}

	result, err := svc.HandleEvent(WebhookEvent{
		Gateway:       constants.GatewayMercadoPago,
		TransactionID: "mp-txn-seq",
		ExternalRef:   order.OrderNo,
		Status:        constants.WebhookStatusPaid,
		Amount:        49.90,
	})
	if err != nil {
		t.Fatalf("paid delivery failed: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("paid after pending must not be treated as duplicate: %+v", result)
	}
	if result.StatusApplied != constants.WebhookStatusPaid {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := reloadTestOrder(t, db, order.ID); got.Status != constants.OrderStatusCompleted {
		t.Fatalf("order should complete on the paid notification, got %s", got.Status)
	}
	if countProcessedWebhooks(t, db) != 1 {
		t.Fatalf("only the terminal delivery should be recorded")
	}
}

// raceProcessedRepo 让前置去重检查始终放行，复现两次投递同时通过检查的竞争时序。
type raceProcessedRepo struct {
	repository.ProcessedWebhookRepository
}

func (r *raceProcessedRepo) Exists(gateway, transactionID string) (bool, error) {
	return false, nil
}

func TestWebhookConcurrentDuplicateAbsorbed(t *testing.T) {
	db := setupServiceTestDB(t, "webhook_service_test")
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	processedRepo := &raceProcessedRepo{ProcessedWebhookRepository: repository.NewProcessedWebhookRepository(db)}
	planRepo := repository.NewPlanRepository(db)
	licenseRepo := repository.NewLicenseRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	reservationRepo := repository.NewInventoryReservationRepository(db)
	orderSvc := NewOrderService(orderRepo, planRepo, paymentRepo, reservationRepo, nil, nil)
	fulfillmentSvc := NewFulfillmentService(orderRepo, paymentRepo, planRepo, licenseRepo, subscriptionRepo, reservationRepo)
	svc := NewWebhookService(orderRepo, paymentRepo, processedRepo, orderSvc, fulfillmentSvc, nil)

	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	createTestPendingPayment(t, db, order)

	// 对手方投递已提交去重记录
	if err := db.Create(&models.ProcessedWebhook{
		Gateway:       constants.GatewayOpenPix,
		TransactionID: "openpix-txn-race",
		OrderID:       order.ID,
		StatusApplied: constants.WebhookStatusPaid,
		CreatedAt:     time.Now(),
	}).Error; err != nil {
		t.Fatalf("seed processed webhook failed: %v", err)
	}

	result, err := svc.HandleEvent(WebhookEvent{
		Gateway:       constants.GatewayOpenPix,
		TransactionID: "openpix-txn-race",
		ExternalRef:   order.OrderNo,
		Status:        constants.WebhookStatusPaid,
		Amount:        49.90,
	})
	if err != nil {
		t.Fatalf("raced delivery must be treated as success: %v", err)
	}
	if !result.Absorbed {
		t.Fatalf("losing delivery should report absorbed: %+v", result)
	}

	if got := reloadTestOrder(t, db, order.ID); got.Status != constants.OrderStatusCompleted {
		t.Fatalf("order should be completed, got %s", got.Status)
	}
	var licenses int64
	if err := db.Model(&models.License{}).Where("order_id = ?", order.ID).Count(&licenses).Error; err != nil {
		t.Fatalf("count licenses failed: %v", err)
	}
	if licenses != 1 {
		t.Fatalf("race must leave exactly one license, got %d", licenses)
	}
	if countProcessedWebhooks(t, db) != 1 {
		t.Fatalf("dedup record must stay unique")
	}
}

func TestWebhookUnresolvedOrder(t *testing.T) {
	svc, db := setupWebhookServiceTest(t)

	_, err := svc.HandleEvent(WebhookEvent{
		Gateway:       constants.GatewayMercadoPago,
		TransactionID: "mp-txn-missing",
		Status:        constants.WebhookStatusPaid,
	})
	if !errors.Is(err, ErrWebhookOrderUnresolved) {
		t.Fatalf("expected ErrWebhookOrderUnresolved, got: %v", err)
	}
	if countProcessedWebhooks(t, db) != 0 {
		t.Fatalf("unresolved event must not be marked processed")
	}
}

func TestWebhookAmountMismatchRejected(t *testing.T) {
	svc, db := setupWebhookServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	createTestPendingPayment(t, db, order)

	_, err := svc.HandleEvent(WebhookEvent{
		Gateway:       constants.GatewayEfiPay,
		TransactionID: "efi-txn-mismatch",
		ExternalRef:   order.OrderNo,
		Status:        constants.WebhookStatusPaid,
		Amount:        55.00,
	})
	if !errors.Is(err, ErrWebhookAmountMismatch) {
		t.Fatalf("expected ErrWebhookAmountMismatch, got: %v", err)
	}
	if got := reloadTestOrder(t, db, order.ID); got.Status != constants.OrderStatusPending {
		t.Fatalf("mismatched callback must not move order, got %s", got.Status)
	}
	if countProcessedWebhooks(t, db) != 0 {
		t.Fatalf("mismatched callback must not be marked processed")
	}
}

func TestWebhookAmountWithinTolerance(t *testing.T) {
	svc, db := setupWebhookServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	createTestPendingPayment(t, db, order)

	// 默认 1% 容差，49.90 ± 0.499 内通过
	result, err := svc.HandleEvent(WebhookEvent{
		Gateway:       constants.GatewayEfiPay,
		TransactionID: "efi-txn-tolerance",
		ExternalRef:   order.OrderNo,
		Status:        constants.WebhookStatusPaid,
		Amount:        50.00,
	})
	if err != nil {
		t.Fatalf("amount within tolerance should pass: %v", err)
	}
	if result.StatusApplied != constants.WebhookStatusPaid {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestWebhookFinalizedOrderShortCircuit(t *testing.T) {
	svc, db := setupWebhookServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	now := time.Now()
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
		"status":       constants.OrderStatusCompleted,
		"paid_at":      now,
		"completed_at": now,
	}).Error; err != nil {
		t.Fatalf("finalize order failed: %v", err)
	}

	result, err := svc.HandleEvent(WebhookEvent{
		Gateway:       constants.GatewayOpenPix,
		TransactionID: "openpix-txn-late",
		ExternalRef:   order.OrderNo,
		Status:        constants.WebhookStatusCancelled,
	})
	if err != nil {
		t.Fatalf("handle event failed: %v", err)
	}
	if !result.Finalized {
		t.Fatalf("finalized order should short-circuit: %+v", result)
	}
	if got := reloadTestOrder(t, db, order.ID); got.Status != constants.OrderStatusCompleted {
		t.Fatalf("finalized order must not change, got %s", got.Status)
	}
}

func TestWebhookSignatureFailureStillProcessed(t *testing.T) {
	svc, db := setupWebhookServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	createTestPendingPayment(t, db, order)

	result, err := svc.HandleEvent(WebhookEvent{
		Gateway:        constants.GatewayMercadoPago,
		TransactionID:  "mp-txn-badsig",
		ExternalRef:    order.OrderNo,
		Status:         constants.WebhookStatusPaid,
		Amount:         49.90,
		SignatureError: "signature digest mismatch",
	})
	if err != nil {
		t.Fatalf("signature failure should not block processing: %v", err)
	}
	if result.StatusApplied != constants.WebhookStatusPaid {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := reloadTestOrder(t, db, order.ID); got.Status != constants.OrderStatusCompleted {
		t.Fatalf("order should still complete, got %s", got.Status)
	}
}

func TestWebhookUnknownStatusRejected(t *testing.T) {
	svc, db := setupWebhookServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)

	_, err := svc.HandleEvent(WebhookEvent{
		Gateway:       constants.GatewayAsaas,
		TransactionID: "asaas-txn-weird",
		ExternalRef:   order.OrderNo,
		Status:        "chargeback_requested",
	})
	if !errors.Is(err, ErrWebhookStatusUnknown) {
		t.Fatalf("expected ErrWebhookStatusUnknown, got: %v", err)
	}
}

func TestWebhookCancelledCancelsPendingOrder(t *testing.T) {
	svc, db := setupWebhookServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	createTestPendingPayment(t, db, order)

	result, err := svc.HandleEvent(WebhookEvent{
		Gateway:       constants.GatewayOpenPix,
		TransactionID: "openpix-txn-cancel",
		ExternalRef:   order.OrderNo,
		Status:        constants.WebhookStatusCancelled,
	})
	if err != nil {
		t.Fatalf("handle event failed: %v", err)
	}
	if result.StatusApplied != constants.WebhookStatusCancelled {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := reloadTestOrder(t, db, order.ID); got.Status != constants.OrderStatusCancelled {
		t.Fatalf("order status want cancelled got %s", got.Status)
	}

	var payment models.Payment
	if err := db.Where("order_id = ?", order.ID).First(&payment).Error; err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	if payment.Status != constants.PaymentStatusCancelled {
		t.Fatalf("payment status want cancelled got %s", payment.Status)
	}
}

func TestWebhookRefundedAfterPaid(t *testing.T) {
	svc, db := setupWebhookServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	now := time.Now()
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
		"status":  constants.OrderStatusPaid,
		"paid_at": now,
	}).Error; err != nil {
		t.Fatalf("mark order paid failed: %v", err)
	}

	result, err := svc.HandleEvent(WebhookEvent{
		Gateway:       constants.GatewayAsaas,
		TransactionID: "asaas-txn-refund",
		ExternalRef:   order.OrderNo,
		Status:        constants.WebhookStatusRefunded,
	})
	if err != nil {
		t.Fatalf("handle event failed: %v", err)
	}
	if result.StatusApplied != constants.WebhookStatusRefunded {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := reloadTestOrder(t, db, order.ID); got.Status != constants.OrderStatusRefunded {
		t.Fatalf("order status want refunded got %s", got.Status)
	}
}

func TestWebhookResolvesByTransactionID(t *testing.T) {
	svc, db := setupWebhookServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	payment := createTestPendingPayment(t, db, order)
	payment.Gateway = constants.GatewayMercadoPago
	payment.TransactionID = "mp-txn-known"
	if err := db.Save(payment).Error; err != nil {
		t.Fatalf("save payment failed: %v", err)
	}

	// 不带商户订单号，仅凭交易流水号反查
	result, err := svc.HandleEvent(WebhookEvent{
		Gateway:       constants.GatewayMercadoPago,
		TransactionID: "mp-txn-known",
		Status:        constants.WebhookStatusPending,
	})
	if err != nil {
		t.Fatalf("handle event failed: %v", err)
	}
	if result.OrderID != order.ID {
		t.Fatalf("order id want %d got %d", order.ID, result.OrderID)
	}

	var got models.Payment
	if err := db.First(&got, payment.ID).Error; err != nil {
		t.Fatalf("reload payment failed: %v", err)
	}
	if got.CallbackAt == nil {
		t.Fatalf("pending callback should stamp callback_at")
	}
}

func TestWebhookResolvesTransactionIDAsOrderNo(t *testing.T) {
	svc, db := setupWebhookServiceTest(t)
	plan := createTestPlan(t, db, constants.ProductTypeLicense, 30, "49.90", -1)
	order := createTestPendingOrder(t, db, plan, 1)
	createTestPendingPayment(t, db, order)

	// EfiPay 把商户单号回传在 txid 字段
	result, err := svc.HandleEvent(WebhookEvent{
		Gateway:       constants.GatewayEfiPay,
		TransactionID: order.OrderNo,
		Status:        constants.WebhookStatusPaid,
		Amount:        49.90,
	})
	if err != nil {
		t.Fatalf("handle event failed: %v", err)
	}
	if result.OrderID != order.ID {
		t.Fatalf("order id want %d got %d", order.ID, result.OrderID)
	}
	if got := reloadTestOrder(t, db, order.ID); got.Status != constants.OrderStatusCompleted {
		t.Fatalf("order status want completed got %s", got.Status)
	}
}

func TestWebhookMissingIdentifiersRejected(t *testing.T) {
	svc, _ := setupWebhookServiceTest(t)

	if _, err := svc.HandleEvent(WebhookEvent{Gateway: "", TransactionID: "txn"}); !errors.Is(err, ErrPaymentInvalid) {
		t.Fatalf("expected ErrPaymentInvalid for empty gateway, got: %v", err)
	}
	if _, err := svc.HandleEvent(WebhookEvent{Gateway: constants.GatewayAsaas, TransactionID: "  "}); !errors.Is(err, ErrPaymentInvalid) {
		t.Fatalf("expected ErrPaymentInvalid for empty transaction id, got: %v", err)
	}
}
