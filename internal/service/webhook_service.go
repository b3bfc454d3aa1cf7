package service

import (
	"strings"
	"time"

	"github.com/pixvend/internal/config"
	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/logger"
	"github.com/pixvend/internal/models"
	"github.com/pixvend/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WebhookService 回调处理服务：幂等地把网关回调应用到订单与支付状态。
type WebhookService struct {
	orderRepo      repository.OrderRepository
	paymentRepo    repository.PaymentRepository
	processedRepo  repository.ProcessedWebhookRepository
	orderSvc       *OrderService
	fulfillmentSvc *FulfillmentService
	cfg            *config.PaymentConfig
}

// NewWebhookService 创建回调处理服务
func NewWebhookService(orderRepo repository.OrderRepository, paymentRepo repository.PaymentRepository, processedRepo repository.ProcessedWebhookRepository, orderSvc *OrderService, fulfillmentSvc *FulfillmentService, cfg *config.PaymentConfig) *WebhookService {
	return &WebhookService{
		orderRepo:      orderRepo,
		paymentRepo:    paymentRepo,
		processedRepo:  processedRepo,
		orderSvc:       orderSvc,
		fulfillmentSvc: fulfillmentSvc,
		cfg:            cfg,
	}
}

// WebhookEvent 归一化后的回调事件（各网关 handler 构造）
type WebhookEvent struct {
	Gateway        string      // 网关名称
	TransactionID  string      // 网关交易流水号
	ExternalRef    string      // 商户订单编号（网关回传）
	ChargeCode     string      // 收款码（部分网关回传 copia e cola）
	Status         string      // 归一化状态（paid/cancelled/refunded/pending）
	Amount         float64     // 回调金额，0 表示未携带
	SignatureError string      // 签名校验失败原因，空表示通过或不适用
	Raw            models.JSON // 原始载荷
}

// WebhookResult 回调处理结果
type WebhookResult struct {
	OrderID       uint   `json:"order_id,omitempty"`
	StatusApplied string `json:"status_applied,omitempty"`
	Duplicate     bool   `json:"duplicate,omitempty"` // 去重命中
	Finalized     bool   `json:"finalized,omitempty"` // 订单已终态
	Absorbed      bool   `json:"absorbed,omitempty"`  // 并发重复投递被唯一索引吸收
}

func webhookLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// HandleEvent 处理一条归一化回调事件。
// 流程：去重查询 → 订单解析 → 终态短路 → 金额校验 → 签名告警 →
// 状态应用 → 终态写入去重记录（唯一索引冲突视为另一次投递已完成，按成功处理）。
// pending 等中间态不落去重记录，同一流水号的终态通知还要放行。
func (s *WebhookService) HandleEvent(event WebhookEvent) (*WebhookResult, error) {
	gateway := strings.ToLower(strings.TrimSpace(event.Gateway))
	transactionID := strings.TrimSpace(event.TransactionID)
	if gateway == "" || transactionID == "" {
		return nil, ErrPaymentInvalid
	}

	log := webhookLogger(
		"gateway", gateway,
		"transaction_id", transactionID,
		"external_ref", strings.TrimSpace(event.ExternalRef),
		"status", event.Status,
	)
	log.Infow("webhook_received")

	processed, err := s.processedRepo.Exists(gateway, transactionID)
	if err != nil {
		return nil, ErrPaymentUpdateFailed
	}
	if processed {
		log.Infow("webhook_duplicate_ignored")
		return &WebhookResult{Duplicate: true}, nil
	}

	order, err := s.resolveOrder(event)
	if err != nil {
		return nil, err
	}
	if order == nil {
		log.Warnw("webhook_order_unresolved")
		return nil, ErrWebhookOrderUnresolved
	}
	log = log.With("order_id", order.ID, "order_no", order.OrderNo)

	// 终态订单不再接受回调驱动的变更，重放直接按成功返回。
	if isOrderFinalized(order.Status) {
		log.Infow("webhook_order_finalized_noop", "order_status", order.Status)
		return &WebhookResult{OrderID: order.ID, Finalized: true}, nil
	}

	if event.Amount > 0 {
		callbackAmount := models.NewMoneyFromDecimal(decimal.NewFromFloat(event.Amount).Round(2))
		if !order.Amount.WithinTolerance(callbackAmount, s.tolerancePercent(), s.toleranceMinCents()) {
			log.Warnw("webhook_amount_mismatch",
				"order_amount", order.Amount.String(),
				"callback_amount", callbackAmount.String(),
			)
			return nil, ErrWebhookAmountMismatch
		}
	}

	// 签名失败记录安全告警但继续处理：金额与订单匹配校验已经通过，
	// 拒绝会把真实支付卡在待支付态，由对账扫描兜底的成本更高。
	if strings.TrimSpace(event.SignatureError) != "" {
		log.Warnw("webhook_signature_invalid",
			"signature_error", event.SignatureError,
		)
	}

	status := strings.ToLower(strings.TrimSpace(event.Status))
	switch status {
	case constants.WebhookStatusPaid:
		if _, err := s.fulfillmentSvc.Complete(order.ID, 0, "", 0); err != nil {
			log.Errorw("webhook_fulfillment_failed", "error", err)
			return nil, err
		}
	case constants.WebhookStatusCancelled:
		if err := s.applyCancelled(order, event, log); err != nil {
			return nil, err
		}
	case constants.WebhookStatusRefunded:
		if err := s.applyRefunded(order, event, log); err != nil {
			return nil, err
		}
	case constants.WebhookStatusPending:
		s.updatePaymentMeta(order.ID, event, log)
		log.Infow("webhook_pending_noted")
		return &WebhookResult{OrderID: order.ID, StatusApplied: status}, nil
	default:
		log.Warnw("webhook_status_unknown")
		return nil, ErrWebhookStatusUnknown
	}

	inserted, err := s.processedRepo.CreateIgnoreDuplicate(&models.ProcessedWebhook{
		Gateway:       gateway,
		TransactionID: transactionID,
		OrderID:       order.ID,
		StatusApplied: status,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		return nil, ErrPaymentUpdateFailed
	}
	result := &WebhookResult{
		OrderID:       order.ID,
		StatusApplied: status,
		Absorbed:      !inserted,
	}
	if result.Absorbed {
		log.Infow("webhook_dedup_conflict_absorbed")
	} else {
		log.Infow("webhook_applied")
	}
	return result, nil
}

// resolveOrder 按优先级解析订单：商户订单编号 → 收款码 → 交易流水号 → 流水号当作订单编号。
func (s *WebhookService) resolveOrder(event WebhookEvent) (*models.Order, error) {
	if ref := strings.TrimSpace(event.ExternalRef); ref != "" {
		order, err := s.orderRepo.GetByOrderNo(ref)
		if err != nil {
			return nil, ErrOrderFetchFailed
		}
		if order != nil {
			return order, nil
		}
	}
	if code := strings.TrimSpace(event.ChargeCode); code != "" {
		payment, err := s.paymentRepo.GetLatestByChargeCode(code)
		if err != nil {
			return nil, ErrOrderFetchFailed
		}
		if order, err := s.orderFromPayment(payment); err != nil || order != nil {
			return order, err
		}
	}
	transactionID := strings.TrimSpace(event.TransactionID)
	payment, err := s.paymentRepo.GetLatestByTransactionID(transactionID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order, err := s.orderFromPayment(payment); err != nil || order != nil {
		return order, err
	}
	// 部分网关把商户单号回传在交易流水号字段里。
	order, err := s.orderRepo.GetByOrderNo(transactionID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	return order, nil
}

func (s *WebhookService) orderFromPayment(payment *models.Payment) (*models.Order, error) {
	if payment == nil || payment.OrderID == nil {
		return nil, nil
	}
	order, err := s.orderRepo.GetByID(*payment.OrderID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	return order, nil
}

func (s *WebhookService) applyCancelled(order *models.Order, event WebhookEvent, log *zap.SugaredLogger) error {
	return models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		locked, err := orderRepo.GetByIDForUpdate(tx, order.ID)
		if err != nil {
			return ErrOrderFetchFailed
		}
		if locked == nil {
			return ErrOrderNotFound
		}
		if isOrderFinalized(locked.Status) {
			return nil
		}
		if !isTransitionAllowed(locked.Status, constants.OrderStatusCancelled) {
			log.Warnw("webhook_cancel_transition_rejected", "order_status", locked.Status)
			return nil
		}
		if err := s.orderSvc.cancelPendingOrderTx(tx, locked); err != nil {
			return err
		}
		s.stampPaymentTx(tx, locked.ID, event, constants.PaymentStatusCancelled)
		return nil
	})
}

func (s *WebhookService) applyRefunded(order *models.Order, event WebhookEvent, log *zap.SugaredLogger) error {
	return models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		locked, err := orderRepo.GetByIDForUpdate(tx, order.ID)
		if err != nil {
			return ErrOrderFetchFailed
		}
		if locked == nil {
			return ErrOrderNotFound
		}
		if !isTransitionAllowed(locked.Status, constants.OrderStatusRefunded) {
			log.Warnw("webhook_refund_transition_rejected", "order_status", locked.Status)
			return nil
		}
		now := time.Now()
		if err := orderRepo.UpdateStatus(locked.ID, constants.OrderStatusRefunded, map[string]interface{}{
			"updated_at": now,
		}); err != nil {
			return ErrOrderUpdateFailed
		}
		s.stampPaymentTx(tx, locked.ID, event, constants.PaymentStatusRefunded)
		return nil
	})
}

// stampPaymentTx 把回调元信息落到订单最近的支付单上；失败仅告警。
func (s *WebhookService) stampPaymentTx(tx *gorm.DB, orderID uint, event WebhookEvent, status string) {
	paymentRepo := s.paymentRepo.WithTx(tx)
	payments, err := paymentRepo.ListByOrderID(orderID)
	if err != nil || len(payments) == 0 {
		return
	}
	payment := &payments[0]
	now := time.Now()
	payment.Status = status
	payment.CallbackAt = &now
	payment.UpdatedAt = now
	if payment.TransactionID == "" {
		payment.TransactionID = strings.TrimSpace(event.TransactionID)
	}
	if event.Raw != nil {
		payment.ProviderPayload = event.Raw
	}
	if err := paymentRepo.Update(payment); err != nil {
		webhookLogger("order_id", orderID).Warnw("webhook_payment_stamp_failed", "error", err)
	}
}

func (s *WebhookService) updatePaymentMeta(orderID uint, event WebhookEvent, log *zap.SugaredLogger) {
	payment, err := s.paymentRepo.GetLatestPendingByOrder(orderID)
	if err != nil || payment == nil {
		return
	}
	now := time.Now()
	payment.CallbackAt = &now
	payment.UpdatedAt = now
	if payment.TransactionID == "" {
		payment.TransactionID = strings.TrimSpace(event.TransactionID)
	}
	if event.Raw != nil {
		payment.ProviderPayload = event.Raw
	}
	if err := s.paymentRepo.Update(payment); err != nil {
		log.Warnw("webhook_payment_meta_update_failed", "error", err)
	}
}

func (s *WebhookService) tolerancePercent() float64 {
	if s.cfg != nil && s.cfg.AmountTolerancePercent > 0 {
		return s.cfg.AmountTolerancePercent
	}
	return 1.0
}

func (s *WebhookService) toleranceMinCents() int64 {
	if s.cfg != nil && s.cfg.AmountToleranceMinCents > 0 {
		return s.cfg.AmountToleranceMinCents
	}
	return 1
}
