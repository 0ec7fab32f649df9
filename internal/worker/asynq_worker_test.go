package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/provider"
	"github.com/dujiao-next/affiliate-settlement/internal/queue"

	"github.com/hibiken/asynq"
)

func TestConsumerSkipsInvalidPayloads(t *testing.T) {
	consumer := NewConsumer(&provider.Container{})
	ctx := context.Background()

	notifyTask, err := queue.NewNotificationDispatchTask(queue.NotificationDispatchPayload{Type: "commission_earned"})
	if err != nil {
		t.Fatalf("build notification task failed: %v", err)
	}
	if err := consumer.handleNotificationDispatch(ctx, notifyTask); err != nil {
		t.Fatalf("empty receiver should be skipped, got %v", err)
	}

	reconcileTask, err := queue.NewSettlementReconcileTask(queue.SettlementReconcilePayload{})
	if err != nil {
		t.Fatalf("build reconcile task failed: %v", err)
	}
	if err := consumer.handleSettlementReconcile(ctx, reconcileTask); err != nil {
		t.Fatalf("zero task id should be skipped, got %v", err)
	}

	expireTask, err := queue.NewSaleExpireCheckTask(queue.SaleExpireCheckPayload{SaleID: 9})
	if err != nil {
		t.Fatalf("build expire task failed: %v", err)
	}
	if err := consumer.handleSaleExpireCheck(ctx, expireTask); err != nil {
		t.Fatalf("nil expiry service should be skipped, got %v", err)
	}
}

func TestConsumerRejectsMalformedPayloadWithoutRetry(t *testing.T) {
	consumer := NewConsumer(&provider.Container{})
	ctx := context.Background()
	handlers := map[string]func(context.Context, *asynq.Task) error{
		queue.TaskNotificationDispatch: consumer.handleNotificationDispatch,
		queue.TaskSettlementReconcile:  consumer.handleSettlementReconcile,
		queue.TaskSaleExpireCheck:      consumer.handleSaleExpireCheck,
	}
	for taskType, handle := range handlers {
		err := handle(ctx, asynq.NewTask(taskType, []byte("{not-json")))
		if err == nil {
			t.Fatalf("%s: malformed payload should return error", taskType)
		}
		if !errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("%s: malformed payload should skip retry, got %v", taskType, err)
		}
	}
}

func TestNewServiceRequiresQueue(t *testing.T) {
	if _, err := NewService(&config.QueueConfig{Enabled: false}, NewConsumer(&provider.Container{})); err == nil {
		t.Fatalf("disabled queue should not build worker")
	}
}

func TestNewSchedulerSkipsMissingServices(t *testing.T) {
	cfg := &config.Config{}
	cfg.Settlement.ReconcileCron = "not a cron"
	if _, err := NewScheduler(cfg, nil, nil); err != nil {
		t.Fatalf("jobs without service should be skipped, got %v", err)
	}

	scheduler, err := NewScheduler(&config.Config{}, nil, nil)
	if err != nil {
		t.Fatalf("empty schedule should build, got %v", err)
	}
	if scheduler.reconcileBatch != defaultReconcileBatchSize {
		t.Fatalf("default batch size want %d got %d", defaultReconcileBatchSize, scheduler.reconcileBatch)
	}
	if len(scheduler.cron.Entries()) != 0 {
		t.Fatalf("no jobs expected")
	}
}
