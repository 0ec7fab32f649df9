package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 结算相关高优先级队列
	CriticalQueue = constants.QueueCritical

	reconcileMaxRetry  = 8
	reconcileBaseDelay = 30 * time.Second
	reconcileMaxDelay  = 30 * time.Minute
)

// Client 队列客户端封装；nil 或未启用时所有 Enqueue 均为 no-op
type Client struct {
	client *asynq.Client
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{}, nil
	}
	return &Client{client: asynq.NewClient(buildRedisOpt(cfg))}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

func (c *Client) enqueue(task *asynq.Task, err error, opts ...asynq.Option) error {
	if err != nil {
		return err
	}
	info, err := c.client.Enqueue(task, opts...)
	if err != nil {
		return err
	}
	logger.Debugw("queue_task_enqueued", "type", task.Type(), "task_id", info.ID, "queue", info.Queue)
	return nil
}

// EnqueueNotification 推送通知派发任务
func (c *Client) EnqueueNotification(payload NotificationDispatchPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewNotificationDispatchTask(payload)
	return c.enqueue(task, err, append([]asynq.Option{asynq.Queue(DefaultQueue)}, opts...)...)
}

// EnqueueSettlementReconcile 推送结算补偿任务，同一对账任务在队列中只保留一份
func (c *Client) EnqueueSettlementReconcile(payload SettlementReconcilePayload, delay time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewSettlementReconcileTask(payload)
	err = c.enqueue(task, err,
		asynq.Queue(CriticalQueue),
		asynq.ProcessIn(nonNegative(delay)),
		asynq.MaxRetry(reconcileMaxRetry),
		asynq.TaskID(fmt.Sprintf("reconcile:%d", payload.TaskID)),
		asynq.Retention(time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// EnqueueSaleExpireCheck 推送待支付销售过期检查任务
func (c *Client) EnqueueSaleExpireCheck(payload SaleExpireCheckPayload, delay time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewSaleExpireCheckTask(payload)
	return c.enqueue(task, err, asynq.Queue(DefaultQueue), asynq.ProcessIn(nonNegative(delay)))
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	serverCfg := asynq.Config{
		Concurrency:    10,
		Queues:         map[string]int{CriticalQueue: 6, DefaultQueue: 3},
		RetryDelayFunc: RetryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warnw("queue_task_failed", "type", task.Type(), "retried", retried, "max_retry", maxRetry, "error", err)
		}),
	}
	if cfg != nil && cfg.Concurrency > 0 {
		serverCfg.Concurrency = cfg.Concurrency
	}
	if cfg != nil && len(cfg.Queues) > 0 {
		serverCfg.Queues = cfg.Queues
	}
	return buildRedisOpt(cfg), serverCfg
}

// RetryDelay 结算补偿按指数退避（30s 起，封顶 30m），其余任务沿用 asynq 默认策略
func RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	if task == nil || task.Type() != TaskSettlementReconcile {
		return asynq.DefaultRetryDelayFunc(n, err, task)
	}
	delay := reconcileBaseDelay
	for i := 0; i < n && delay < reconcileMaxDelay; i++ {
		delay *= 2
	}
	if delay > reconcileMaxDelay {
		delay = reconcileMaxDelay
	}
	return delay
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}
	if cfg == nil {
		return opt
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	opt.Addr = fmt.Sprintf("%s:%d", host, port)
	opt.Password = cfg.Password
	opt.DB = cfg.DB
	return opt
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
