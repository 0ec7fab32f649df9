package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/metrics"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/payment/flutterwave"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"
)

const (
	cancelReasonExpired   = "expired"
	expiryOutcomeSettled  = "settled"
	expiryOutcomeExpired  = "expired"
	expiryOutcomeSkipped  = "skipped"
	expiryOutcomePending  = "pending"
	defaultExpiryBatch    = 100
)

// SaleExpiryService 待支付销售过期处理：先向网关确认，再结算或取消
type SaleExpiryService struct {
	saleRepo   repository.SaleRepository
	gateway    *GatewayService
	settlement *SettlementService
	pendingTTL time.Duration
	batchSize  int
}

// ExpirySummary 一轮过期扫描统计
type ExpirySummary struct {
	Scanned int `json:"scanned"`
	Settled int `json:"settled"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
}

// NewSaleExpiryService 创建过期处理服务
func NewSaleExpiryService(saleRepo repository.SaleRepository, gateway *GatewayService, settlement *SettlementService, pendingTTL time.Duration, batchSize int) *SaleExpiryService {
	if batchSize <= 0 {
		batchSize = defaultExpiryBatch
	}
	return &SaleExpiryService{
		saleRepo:   saleRepo,
		gateway:    gateway,
		settlement: settlement,
		pendingTTL: pendingTTL,
		batchSize:  batchSize,
	}
}

// ExpireStale 扫描超时的待支付销售
func (s *SaleExpiryService) ExpireStale(ctx context.Context, now time.Time) (*ExpirySummary, error) {
	sales, err := s.saleRepo.ListStalePending(now.Add(-s.pendingTTL), s.batchSize)
	if err != nil {
		return nil, err
	}
	summary := &ExpirySummary{Scanned: len(sales)}
	for i := range sales {
		switch s.resolve(ctx, &sales[i]) {
		case expiryOutcomeSettled:
			summary.Settled++
		case expiryOutcomeExpired:
			summary.Expired++
		default:
			summary.Skipped++
		}
	}
	if summary.Scanned > 0 {
		logger.FromContext(ctx).Infow("sale_expiry_sweep_finished",
			"scanned", summary.Scanned,
			"settled", summary.Settled,
			"expired", summary.Expired,
			"skipped", summary.Skipped,
		)
	}
	return summary, nil
}

// CheckSale 处理单个销售的延迟过期检查（队列任务入口）
func (s *SaleExpiryService) CheckSale(ctx context.Context, saleID uint) (string, error) {
	sale, err := s.saleRepo.GetByID(saleID)
	if err != nil {
		return "", err
	}
	if sale == nil || sale.Status != constants.SaleStatusPending {
		return expiryOutcomeSkipped, nil
	}
	if time.Since(sale.CreatedAt) < s.pendingTTL {
		return expiryOutcomePending, nil
	}
	return s.resolve(ctx, sale), nil
}

func (s *SaleExpiryService) resolve(ctx context.Context, sale *models.Sale) string {
	log := logger.FromContext(ctx).With("sale_id", sale.ID, "tx_ref", sale.TransactionReference)
	verification, err := s.gateway.VerifyByReference(ctx, sale.TransactionReference)
	if err != nil && !errors.Is(err, flutterwave.ErrTransactionNotFound) {
		log.Warnw("sale_expiry_verify_failed", "error", err)
		metrics.RecordSaleExpired(expiryOutcomeSkipped)
		return expiryOutcomeSkipped
	}

	if err == nil && verification.Successful() {
		if _, settleErr := s.settlement.SettleVerified(ctx, constants.SettlementTriggerExpirySweep, verification); settleErr != nil {
			log.Warnw("sale_expiry_settle_failed", "error", settleErr)
			metrics.RecordSaleExpired(expiryOutcomeSkipped)
			return expiryOutcomeSkipped
		}
		metrics.RecordSaleExpired(expiryOutcomeSettled)
		return expiryOutcomeSettled
	}
	if err == nil && strings.EqualFold(verification.Status, flutterwave.StatusPending) {
		// 网关仍在处理，留给下一轮
		metrics.RecordSaleExpired(expiryOutcomePending)
		return expiryOutcomePending
	}

	if !s.settlement.cancelSale(ctx, sale, cancelReasonExpired) {
		metrics.RecordSaleExpired(expiryOutcomeSkipped)
		return expiryOutcomeSkipped
	}
	metrics.RecordSaleExpired(expiryOutcomeExpired)
	return expiryOutcomeExpired
}
