package service

import (
	"errors"
	"strings"

	"github.com/pixvend/internal/logger"
	"github.com/pixvend/internal/queue"

	"github.com/hibiken/asynq"
)

// NotificationService 运维告警通知服务。
// 队列可用时走异步任务投递（带重试），否则降级为同步发送。
type NotificationService struct {
	queueClient *queue.Client
	emailSvc    *EmailService
}

// NewNotificationService 创建通知服务
func NewNotificationService(queueClient *queue.Client, emailSvc *EmailService) *NotificationService {
	return &NotificationService{
		queueClient: queueClient,
		emailSvc:    emailSvc,
	}
}

// SendOperatorAlert 发送运维告警（尽力而为，不阻断主流程）
func (s *NotificationService) SendOperatorAlert(subject, body string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil
	}
	if s.queueClient.Enabled() {
		return s.queueClient.EnqueueOperatorAlert(queue.OperatorAlertPayload{
			Subject: subject,
			Body:    body,
		}, asynq.MaxRetry(3))
	}
	return s.DeliverOperatorAlert(subject, body)
}

// DeliverOperatorAlert 实际投递告警邮件（worker 任务处理器调用）
func (s *NotificationService) DeliverOperatorAlert(subject, body string) error {
	if s.emailSvc == nil {
		return nil
	}
	err := s.emailSvc.SendOperatorAlert(subject, body)
	if errors.Is(err, ErrEmailServiceDisabled) || errors.Is(err, ErrEmailServiceNotConfigured) {
		logger.Warnw("operator_alert_email_skipped",
			"subject", subject,
			"reason", err.Error(),
		)
		return nil
	}
	return err
}
