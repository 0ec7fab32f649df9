package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/provider"
	"github.com/dujiao-next/affiliate-settlement/internal/queue"
	"github.com/dujiao-next/affiliate-settlement/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskNotificationDispatch, c.handleNotificationDispatch)
	mux.HandleFunc(queue.TaskSettlementReconcile, c.handleSettlementReconcile)
	mux.HandleFunc(queue.TaskSaleExpireCheck, c.handleSaleExpireCheck)
}

// decodeFailure 载荷无法解析时重试也不会成功，直接放弃
func decodeFailure(err error) error {
	return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
}

func (c *Consumer) handleNotificationDispatch(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_notification_dispatch_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.NotificationDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_notification_dispatch_unmarshal_failed", "error", err)
		return decodeFailure(err)
	}
	if payload.UserID == 0 && payload.Email == "" {
		logger.Debugw("worker_notification_dispatch_skip_empty_receiver", "type", payload.Type)
		return nil
	}
	if c.NotificationService == nil {
		logger.Warnw("worker_notification_dispatch_skip_service_nil", "type", payload.Type)
		return nil
	}
	if err := c.NotificationService.Dispatch(ctx, payload); err != nil {
		logger.Warnw("worker_notification_dispatch_failed",
			"user_id", payload.UserID,
			"type", payload.Type,
			"error", err,
		)
		if errors.Is(err, service.ErrEmailRecipientRejected) || errors.Is(err, service.ErrInvalidEmail) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func (c *Consumer) handleSettlementReconcile(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_settlement_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.SettlementReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_settlement_reconcile_unmarshal_failed", "error", err)
		return decodeFailure(err)
	}
	if payload.TaskID == 0 {
		logger.Debugw("worker_settlement_reconcile_skip_invalid_payload", "task_id", payload.TaskID)
		return nil
	}
	if c.SettlementService == nil {
		logger.Warnw("worker_settlement_reconcile_skip_service_nil", "task_id", payload.TaskID)
		return nil
	}
	reconcileTask, err := c.SettlementService.RetryReconciliationTask(ctx, payload.TaskID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrReconcileNotFound):
			logger.Debugw("worker_settlement_reconcile_skip_not_found", "task_id", payload.TaskID)
			return nil
		case errors.Is(err, service.ErrReconcileTaskNotRetryable):
			logger.Debugw("worker_settlement_reconcile_skip_not_retryable", "task_id", payload.TaskID)
			return nil
		default:
			// 失败已记录到对账任务上，由定时补偿继续重试
			logger.Warnw("worker_settlement_reconcile_failed", "task_id", payload.TaskID, "error", err)
			return nil
		}
	}
	if reconcileTask != nil {
		logger.Debugw("worker_settlement_reconcile_done", "task_id", reconcileTask.ID, "status", reconcileTask.Status)
	}
	return nil
}

func (c *Consumer) handleSaleExpireCheck(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_sale_expire_check_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.SaleExpireCheckPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_sale_expire_check_unmarshal_failed", "error", err)
		return decodeFailure(err)
	}
	if payload.SaleID == 0 {
		logger.Debugw("worker_sale_expire_check_skip_invalid_payload", "sale_id", payload.SaleID)
		return nil
	}
	if c.SaleExpiryService == nil {
		logger.Warnw("worker_sale_expire_check_skip_service_nil", "sale_id", payload.SaleID)
		return nil
	}
	outcome, err := c.SaleExpiryService.CheckSale(ctx, payload.SaleID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSaleNotFound):
			logger.Debugw("worker_sale_expire_check_skip_not_found", "sale_id", payload.SaleID)
			return nil
		default:
			logger.Warnw("worker_sale_expire_check_failed", "sale_id", payload.SaleID, "error", err)
			return err
		}
	}
	logger.Debugw("worker_sale_expire_check_done", "sale_id", payload.SaleID, "outcome", outcome)
	return nil
}
