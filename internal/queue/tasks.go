package queue

import (
	"encoding/json"

	"github.com/dujiao-next/affiliate-settlement/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskNotificationDispatch 通知派发任务
	TaskNotificationDispatch = constants.TaskNotificationDispatch
	// TaskSettlementReconcile 结算补偿任务
	TaskSettlementReconcile = constants.TaskSettlementReconcile
	// TaskSaleExpireCheck 待支付销售过期检查任务
	TaskSaleExpireCheck = constants.TaskSaleExpireCheck
)

// NotificationDispatchPayload 通知派发任务载荷
type NotificationDispatchPayload struct {
	UserID    uint                   `json:"user_id,omitempty"`
	Email     string                 `json:"email,omitempty"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt int64                  `json:"created_at"`
}

// SettlementReconcilePayload 结算补偿任务载荷
type SettlementReconcilePayload struct {
	TaskID uint `json:"task_id"`
}

// SaleExpireCheckPayload 过期检查任务载荷
type SaleExpireCheckPayload struct {
	SaleID uint `json:"sale_id"`
}

func newTask(taskType string, payload interface{}) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body), nil
}

// NewNotificationDispatchTask 创建通知派发任务
func NewNotificationDispatchTask(payload NotificationDispatchPayload) (*asynq.Task, error) {
	return newTask(TaskNotificationDispatch, payload)
}

// NewSettlementReconcileTask 创建结算补偿任务
func NewSettlementReconcileTask(payload SettlementReconcilePayload) (*asynq.Task, error) {
	return newTask(TaskSettlementReconcile, payload)
}

// NewSaleExpireCheckTask 创建过期检查任务
func NewSaleExpireCheckTask(payload SaleExpireCheckPayload) (*asynq.Task, error) {
	return newTask(TaskSaleExpireCheck, payload)
}
