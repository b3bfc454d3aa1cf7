package service

import (
	"strings"

	"github.com/pixvend/internal/constants"
)

// 订单状态机：pending -> paid -> completed；pending -> cancelled；paid/completed -> refunded。
var allowedOrderTransitions = map[string][]string{
	constants.OrderStatusPending:   {constants.OrderStatusPaid, constants.OrderStatusCancelled},
	constants.OrderStatusPaid:      {constants.OrderStatusCompleted, constants.OrderStatusRefunded},
	constants.OrderStatusCompleted: {constants.OrderStatusRefunded},
}

func isTransitionAllowed(from, to string) bool {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	if from == to {
		return false
	}
	for _, next := range allowedOrderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// isOrderFinalized 判断订单是否已进入终态（完成/取消/退款），终态订单不再接受回调驱动的变更。
func isOrderFinalized(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case constants.OrderStatusCompleted, constants.OrderStatusCancelled, constants.OrderStatusRefunded:
		return true
	default:
		return false
	}
}
