package service

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var testOrderSeq int64

// setupServiceTestDB 建立独立的内存库并替换全局连接
func setupServiceTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Plan{},
		&models.Order{},
		&models.Payment{},
		&models.GatewayAttempt{},
		&models.ProcessedWebhook{},
		&models.License{},
		&models.Subscription{},
		&models.InventoryReservation{},
		&models.ReconciliationRun{},
		&models.AuditLogEntry{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db
	return db
}

func createTestPlan(t *testing.T, db *gorm.DB, productType string, durationDays int, price string, stock int) *models.Plan {
	t.Helper()
	d, err := decimal.NewFromString(price)
	if err != nil {
		t.Fatalf("parse price failed: %v", err)
	}
	now := time.Now()
	plan := &models.Plan{
		Name:         fmt.Sprintf("测试方案-%s-%d", productType, atomic.AddInt64(&testOrderSeq, 1)),
		ProductType:  productType,
		DurationDays: durationDays,
		Price:        models.NewMoneyFromDecimal(d),
		Stock:        stock,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("create plan failed: %v", err)
	}
	return plan
}

func createTestPendingOrder(t *testing.T, db *gorm.DB, plan *models.Plan, quantity int) *models.Order {
	t.Helper()
	now := time.Now()
	expiresAt := now.Add(15 * time.Minute)
	amount := models.NewMoneyFromDecimal(plan.Price.Decimal.Mul(decimal.NewFromInt(int64(quantity))))
	order := &models.Order{
		OrderNo:     fmt.Sprintf("PVTEST%06d", atomic.AddInt64(&testOrderSeq, 1)),
		UserID:      1,
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
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func createTestPendingPayment(t *testing.T, db *gorm.DB, order *models.Order) *models.Payment {
	t.Helper()
	now := time.Now()
	payment := &models.Payment{
		OrderID:   &order.ID,
		Amount:    order.Amount,
		Status:    constants.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return payment
}

func timeNowMinusMinute() time.Time {
	return time.Now().Add(-time.Minute)
}

func reloadTestOrder(t *testing.T, db *gorm.DB, id uint) *models.Order {
	t.Helper()
	var order models.Order
	if err := db.First(&order, id).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	return &order
}
