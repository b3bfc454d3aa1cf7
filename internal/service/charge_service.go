package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/logger"
	"github.com/pixvend/internal/models"
	"github.com/pixvend/internal/repository"

	"go.uber.org/zap"
)

// ChargeService 收款服务：按配置顺序在多个 PIX 网关间故障转移。
type ChargeService struct {
	orderRepo       repository.OrderRepository
	paymentRepo     repository.PaymentRepository
	attemptRepo     repository.GatewayAttemptRepository
	adapters        []GatewayAdapter
	notificationSvc *NotificationService
}

// NewChargeService 创建收款服务
func NewChargeService(orderRepo repository.OrderRepository, paymentRepo repository.PaymentRepository, attemptRepo repository.GatewayAttemptRepository, adapters []GatewayAdapter, notificationSvc *NotificationService) *ChargeService {
	return &ChargeService{
		orderRepo:       orderRepo,
		paymentRepo:     paymentRepo,
		attemptRepo:     attemptRepo,
		adapters:        adapters,
		notificationSvc: notificationSvc,
	}
}

// CreateChargeResult 收款创建结果
type CreateChargeResult struct {
	Payment       *models.Payment        `json:"payment"`
	GatewayUsed   string                 `json:"gateway_used"`
	TransactionID string                 `json:"transaction_id"`
	ChargeCode    string                 `json:"charge_code"`
	QRImage       string                 `json:"qr_image"`
	Attempts      []GatewayAttemptResult `json:"attempts"`
	Reused        bool                   `json:"reused"`
}

func chargeLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// CreateCharge 为待支付订单创建 PIX 收款。
// 按配置顺序依次尝试各网关，每次尝试无论成败都追加一条 GatewayAttempt；
// 首个成功的网关结果写入支付单后立即返回，之后的网关不再联系；
// 全部失败时订单保持待支付，发送运维告警邮件并返回携带尝试明细的错误。
func (s *ChargeService) CreateCharge(ctx context.Context, orderID uint) (*CreateChargeResult, error) {
	if orderID == 0 {
		return nil, ErrOrderInvalid
	}
	if ctx == nil {
		ctx = context.Background()
	}

	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != constants.OrderStatusPending {
		return nil, ErrOrderStatusInvalid
	}
	if order.ExpiresAt != nil && !order.ExpiresAt.After(time.Now()) {
		return nil, ErrOrderStatusInvalid
	}

	log := chargeLogger(
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"amount", order.Amount.String(),
	)

	payment, err := s.paymentRepo.GetLatestPendingByOrder(order.ID)
	if err != nil {
		return nil, ErrPaymentCreateFailed
	}
	// 待支付单上已有网关结果时直接复用，避免重复向网关下单。
	if payment != nil && hasGatewayResult(payment) {
		log.Infow("charge_reuse_pending",
			"payment_id", payment.ID,
			"gateway", payment.Gateway,
			"transaction_id", payment.TransactionID,
		)
		return &CreateChargeResult{
			Payment:       payment,
			GatewayUsed:   payment.Gateway,
			TransactionID: payment.TransactionID,
			ChargeCode:    payment.ChargeCode,
			QRImage:       payment.QRImage,
			Reused:        true,
		}, nil
	}
	if payment == nil {
		now := time.Now()
		payment = &models.Payment{
			OrderID:   &order.ID,
			Amount:    order.Amount,
			Status:    constants.PaymentStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.paymentRepo.Create(payment); err != nil {
			return nil, ErrPaymentCreateFailed
		}
	}

	if len(s.adapters) == 0 {
		log.Errorw("charge_no_gateway_configured")
		return nil, ErrNoGatewayConfigured
	}

	startNumber, err := s.nextAttemptNumber(order.ID)
	if err != nil {
		return nil, ErrPaymentCreateFailed
	}

	input := GatewayChargeInput{
		OrderNo:     order.OrderNo,
		Amount:      order.Amount.String(),
		Description: buildChargeDescription(order),
	}

	var attempts []GatewayAttemptResult
	for i, adapter := range s.adapters {
		attemptNumber := startNumber + i
		began := time.Now()
		result, err := adapter.CreateCharge(ctx, input)
		latency := time.Since(began).Milliseconds()

		attempt := GatewayAttemptResult{
			Gateway:       adapter.Name(),
			AttemptNumber: attemptNumber,
			Success:       err == nil,
			LatencyMs:     latency,
		}
		if err != nil {
			attempt.Error = err.Error()
		}
		attempts = append(attempts, attempt)
		s.recordAttempt(order.ID, attempt, log)

		if err != nil {
			log.Warnw("charge_gateway_attempt_failed",
				"gateway", adapter.Name(),
				"attempt_number", attemptNumber,
				"latency_ms", latency,
				"error", err,
			)
			continue
		}

		now := time.Now()
		payment.Gateway = adapter.Name()
		payment.TransactionID = result.TransactionID
		payment.ChargeCode = result.ChargeCode
		payment.QRImage = result.QRImage
		if result.Raw != nil {
			payment.ProviderPayload = models.JSON(result.Raw)
		}
		payment.UpdatedAt = now
		if err := s.paymentRepo.Update(payment); err != nil {
			return nil, ErrPaymentUpdateFailed
		}

		log.Infow("charge_gateway_success",
			"gateway", adapter.Name(),
			"attempt_number", attemptNumber,
			"transaction_id", result.TransactionID,
			"latency_ms", latency,
		)
		return &CreateChargeResult{
			Payment:       payment,
			GatewayUsed:   adapter.Name(),
			TransactionID: result.TransactionID,
			ChargeCode:    result.ChargeCode,
			QRImage:       result.QRImage,
			Attempts:      attempts,
		}, nil
	}

	log.Errorw("charge_failover_exhausted",
		"attempt_count", len(attempts),
	)
	s.alertChargeFailure(order, attempts, log)
	return nil, &AllGatewaysFailedError{OrderID: order.ID, Attempts: attempts}
}

// ListAttempts 查询订单的网关尝试记录
func (s *ChargeService) ListAttempts(orderID uint) ([]models.GatewayAttempt, error) {
	if orderID == 0 {
		return nil, ErrOrderInvalid
	}
	return s.attemptRepo.ListByOrderID(orderID)
}

// ListAttemptsAdmin 管理端尝试记录列表
func (s *ChargeService) ListAttemptsAdmin(filter repository.GatewayAttemptListFilter) ([]models.GatewayAttempt, int64, error) {
	return s.attemptRepo.ListAdmin(filter)
}

func (s *ChargeService) nextAttemptNumber(orderID uint) (int, error) {
	existing, err := s.attemptRepo.ListByOrderID(orderID)
	if err != nil {
		return 0, err
	}
	return len(existing) + 1, nil
}

// recordAttempt 尝试记录只追加；写入失败仅告警，不中断故障转移。
func (s *ChargeService) recordAttempt(orderID uint, attempt GatewayAttemptResult, log *zap.SugaredLogger) {
	record := &models.GatewayAttempt{
		OrderID:       orderID,
		Gateway:       attempt.Gateway,
		AttemptNumber: attempt.AttemptNumber,
		Success:       attempt.Success,
		ErrorText:     attempt.Error,
		LatencyMs:     attempt.LatencyMs,
		CreatedAt:     time.Now(),
	}
	if err := s.attemptRepo.Create(record); err != nil {
		log.Warnw("charge_attempt_record_failed",
			"gateway", attempt.Gateway,
			"attempt_number", attempt.AttemptNumber,
			"error", err,
		)
	}
}

func (s *ChargeService) alertChargeFailure(order *models.Order, attempts []GatewayAttemptResult, log *zap.SugaredLogger) {
	if s.notificationSvc == nil {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "订单 %s（金额 %s）所有支付网关均创建收款失败：\n\n", order.OrderNo, order.Amount.String())
	for _, attempt := range attempts {
		fmt.Fprintf(&sb, "第 %d 次 [%s] 耗时 %dms：%s\n", attempt.AttemptNumber, attempt.Gateway, attempt.LatencyMs, attempt.Error)
	}
	sb.WriteString("\n订单保持待支付状态，请人工检查网关可用性。")
	if err := s.notificationSvc.SendOperatorAlert(
		fmt.Sprintf("[PixVend] 支付网关全部失败 - 订单 %s", order.OrderNo),
		sb.String(),
	); err != nil {
		log.Warnw("charge_failure_alert_failed", "error", err)
	}
}

func hasGatewayResult(payment *models.Payment) bool {
	if payment == nil {
		return false
	}
	return strings.TrimSpace(payment.ChargeCode) != "" || strings.TrimSpace(payment.QRImage) != ""
}

func buildChargeDescription(order *models.Order) string {
	if order == nil {
		return ""
	}
	if desc := strings.TrimSpace(order.Description); desc != "" {
		return desc
	}
	return order.OrderNo
}
