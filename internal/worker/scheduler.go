package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/service"

	"github.com/robfig/cron/v3"
)

const defaultReconcileBatchSize = 50

// Scheduler 定时任务服务：待支付销售过期清扫与结算补偿清扫
// 不依赖队列，队列关闭时也能兜底推进状态。
type Scheduler struct {
	name           string
	cron           *cron.Cron
	expiry         *service.SaleExpiryService
	settlement     *service.SettlementService
	reconcileBatch int
}

// NewScheduler 创建定时任务服务
func NewScheduler(cfg *config.Config, expiry *service.SaleExpiryService, settlement *service.SettlementService) (*Scheduler, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	s := &Scheduler{
		name:           "scheduler",
		cron:           cron.New(),
		expiry:         expiry,
		settlement:     settlement,
		reconcileBatch: cfg.Settlement.ReconcileBatchSize,
	}
	if s.reconcileBatch <= 0 {
		s.reconcileBatch = defaultReconcileBatchSize
	}
	if spec := strings.TrimSpace(cfg.Sale.ExpiryCron); spec != "" && expiry != nil {
		if _, err := s.cron.AddFunc(spec, s.runExpirySweep); err != nil {
			return nil, err
		}
	}
	if spec := strings.TrimSpace(cfg.Settlement.ReconcileCron); spec != "" && settlement != nil {
		if _, err := s.cron.AddFunc(spec, s.runReconcileSweep); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Name 服务名称
func (s *Scheduler) Name() string {
	if s == nil || s.name == "" {
		return "scheduler"
	}
	return s.name
}

// Start 启动服务，阻塞至 ctx 结束
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return errors.New("scheduler not initialized")
	}
	s.cron.Start()
	logger.Infow("scheduler_started", "jobs", len(s.cron.Entries()))
	<-ctx.Done()
	return nil
}

// Stop 停止服务，等待正在执行的任务结束
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runExpirySweep() {
	ctx := logger.WithContext(context.Background(), "job", "sale_expiry_sweep")
	summary, err := s.expiry.ExpireStale(ctx, time.Now())
	if err != nil {
		logger.FromContext(ctx).Warnw("scheduler_expiry_sweep_failed", "error", err)
		return
	}
	if summary != nil && summary.Scanned > 0 {
		logger.FromContext(ctx).Infow("scheduler_expiry_sweep_finished",
			"scanned", summary.Scanned,
			"settled", summary.Settled,
			"expired", summary.Expired,
			"skipped", summary.Skipped,
		)
	}
}

func (s *Scheduler) runReconcileSweep() {
	ctx := logger.WithContext(context.Background(), "job", "settlement_reconcile_sweep")
	if _, _, err := s.settlement.RetryOpenReconciliationTasks(ctx, s.reconcileBatch); err != nil {
		logger.FromContext(ctx).Warnw("scheduler_reconcile_sweep_failed", "error", err)
	}
}
