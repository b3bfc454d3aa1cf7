package queue

import (
	"encoding/json"

	"github.com/pixvend/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOperatorAlert 运维告警邮件任务
	TaskOperatorAlert = constants.TaskOperatorAlert
	// TaskOrderTimeoutCancel 订单超时取消任务
	TaskOrderTimeoutCancel = constants.TaskOrderTimeoutCancel
	// TaskReconciliationSweep 对账扫描任务
	TaskReconciliationSweep = constants.TaskReconciliationSweep
)

// OperatorAlertPayload 运维告警任务载荷
type OperatorAlertPayload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// OrderTimeoutCancelPayload 订单超时取消任务载荷
type OrderTimeoutCancelPayload struct {
	OrderID uint `json:"order_id"`
}

// ReconciliationSweepPayload 对账扫描任务载荷
type ReconciliationSweepPayload struct {
	Trigger string `json:"trigger"` // scheduled / manual
}

// NewOperatorAlertTask 创建运维告警任务
func NewOperatorAlertTask(payload OperatorAlertPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOperatorAlert, body), nil
}

// NewOrderTimeoutCancelTask 创建订单超时取消任务
func NewOrderTimeoutCancelTask(payload OrderTimeoutCancelPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderTimeoutCancel, body), nil
}

// NewReconciliationSweepTask 创建对账扫描任务
func NewReconciliationSweepTask(payload ReconciliationSweepPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconciliationSweep, body), nil
}
