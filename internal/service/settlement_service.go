package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/metrics"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/payment/flutterwave"
	"github.com/dujiao-next/affiliate-settlement/internal/queue"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	reconcileRetryDelay           = 30 * time.Second
	defaultReconcileMaxAttempts   = 10
	cancelReasonPaymentFailed     = "payment_failed"
	settlementOutcomeSettled      = "settled"
	settlementOutcomePartial      = "partial"
	settlementOutcomeAlready      = "already_settled"
	settlementOutcomeNotPending   = "not_pending"
	settlementOutcomeRejected     = "rejected"
	settlementOutcomeFailed       = "failed"
	webhookResultInvalidSignature = "invalid_signature"
	webhookResultInvalidPayload   = "invalid_payload"
	webhookResultNotApplicable    = "not_applicable"
	webhookResultSettled          = "settled"
	webhookResultNoop             = "noop"
	webhookResultError            = "error"
)

var settlementSteps = []string{
	constants.ReconcileStepAffiliateCredit,
	constants.ReconcileStepBusinessCredit,
	constants.ReconcileStepConversionIncrement,
}

// SettlementService 结算服务：Webhook 与客户端校验两条路径共用同一状态迁移
type SettlementService struct {
	saleRepo       repository.SaleRepository
	paymentTxnRepo repository.PaymentTransactionRepository
	linkRepo       repository.ReferralLinkRepository
	reconcileRepo  repository.ReconciliationRepository
	wallet         *WalletService
	notifier       *NotificationService
	gateway        *GatewayService
	queueClient    *queue.Client
	feeRate        decimal.Decimal
	maxAttempts    int
}

// SettlementResult 结算结果
type SettlementResult struct {
	SaleID          uint             `json:"sale_id"`
	TxRef           string           `json:"tx_ref"`
	Success         bool             `json:"success"`
	AlreadySettled  bool             `json:"already_settled"`
	Split           *SettlementSplit `json:"split,omitempty"`
	PartialFailures []string         `json:"partial_failures,omitempty"`
}

// WebhookOutcome Webhook 处理结果
type WebhookOutcome struct {
	Applicable bool              `json:"applicable"`
	TxRef      string            `json:"tx_ref,omitempty"`
	Noop       string            `json:"noop,omitempty"`
	Result     *SettlementResult `json:"result,omitempty"`
}

// SettlementOptions 结算参数
type SettlementOptions struct {
	PlatformFeeRate      decimal.Decimal
	ReconcileMaxAttempts int
}

type settleInput struct {
	trigger      string
	verification *flutterwave.VerificationResult
}

// NewSettlementService 创建结算服务
func NewSettlementService(
	saleRepo repository.SaleRepository,
	paymentTxnRepo repository.PaymentTransactionRepository,
	linkRepo repository.ReferralLinkRepository,
	reconcileRepo repository.ReconciliationRepository,
	wallet *WalletService,
	notifier *NotificationService,
	gateway *GatewayService,
	queueClient *queue.Client,
	opts SettlementOptions,
) *SettlementService {
	maxAttempts := opts.ReconcileMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultReconcileMaxAttempts
	}
	return &SettlementService{
		saleRepo:       saleRepo,
		paymentTxnRepo: paymentTxnRepo,
		linkRepo:       linkRepo,
		reconcileRepo:  reconcileRepo,
		wallet:         wallet,
		notifier:       notifier,
		gateway:        gateway,
		queueClient:    queueClient,
		feeRate:        opts.PlatformFeeRate,
		maxAttempts:    maxAttempts,
	}
}

// HandleWebhook 处理 Flutterwave Webhook
func (s *SettlementService) HandleWebhook(ctx context.Context, headers map[string]string, body []byte) (*WebhookOutcome, error) {
	event, err := s.gateway.ParseWebhook(headers, body)
	if err != nil {
		if errors.Is(err, ErrWebhookSignatureInvalid) {
			metrics.RecordWebhook(webhookResultInvalidSignature)
			logger.FromContext(ctx).Warnw("webhook_signature_invalid", "error", err)
		} else {
			metrics.RecordWebhook(webhookResultInvalidPayload)
			logger.FromContext(ctx).Warnw("webhook_payload_invalid", "error", err)
		}
		return nil, err
	}
	outcome := &WebhookOutcome{TxRef: event.TxRef}
	if !event.Applicable() {
		metrics.RecordWebhook(webhookResultNotApplicable)
		logger.FromContext(ctx).Infow("webhook_not_applicable", "event", event.Event, "status", event.Status, "tx_ref", event.TxRef)
		return outcome, nil
	}
	outcome.Applicable = true

	verification := event.VerificationResult
	result, err := s.settle(ctx, settleInput{trigger: constants.SettlementTriggerWebhook, verification: &verification})
	switch {
	case err == nil:
		metrics.RecordWebhook(webhookResultSettled)
		outcome.Result = result
		return outcome, nil
	case errors.Is(err, ErrAlreadySettled):
		metrics.RecordWebhook(webhookResultNoop)
		outcome.Noop = "already_settled"
		outcome.Result = &SettlementResult{TxRef: event.TxRef, Success: true, AlreadySettled: true}
		return outcome, nil
	case errors.Is(err, ErrSaleNotFound):
		metrics.RecordWebhook(webhookResultNoop)
		outcome.Noop = "sale_not_found"
		logger.FromContext(ctx).Warnw("webhook_sale_not_found", "tx_ref", event.TxRef)
		return outcome, nil
	case errors.Is(err, ErrSaleNotPending):
		metrics.RecordWebhook(webhookResultNoop)
		outcome.Noop = "sale_not_pending"
		return outcome, nil
	case errors.Is(err, ErrPaymentMismatch):
		// 签名有效的事件重投无法改变结果，已转人工对账
		metrics.RecordWebhook(webhookResultNoop)
		outcome.Noop = "payment_mismatch"
		return outcome, nil
	default:
		metrics.RecordWebhook(webhookResultError)
		return nil, err
	}
}

// VerifyAndSettle 客户端支付完成后主动校验并结算
func (s *SettlementService) VerifyAndSettle(ctx context.Context, transactionID, txRef string) (*SettlementResult, error) {
	return s.verifyAndSettle(ctx, constants.SettlementTriggerVerify, transactionID, txRef)
}

// HandleCheckoutCallback 处理收银台跳转回调
func (s *SettlementService) HandleCheckoutCallback(ctx context.Context, query map[string]string) (*SettlementResult, error) {
	callback, err := s.gateway.ParseCallback(query)
	if err != nil {
		txRef := ""
		if callback != nil {
			txRef = callback.TxRef
		}
		logger.FromContext(ctx).Infow("checkout_callback_not_successful", "tx_ref", txRef, "error", err)
		return nil, err
	}
	return s.verifyAndSettle(ctx, constants.SettlementTriggerCallback, callback.TransactionID, callback.TxRef)
}

// SettleVerified 使用已校验的网关结果结算（过期扫描使用）
func (s *SettlementService) SettleVerified(ctx context.Context, trigger string, verification *flutterwave.VerificationResult) (*SettlementResult, error) {
	result, err := s.settle(ctx, settleInput{trigger: trigger, verification: verification})
	if errors.Is(err, ErrAlreadySettled) {
		return &SettlementResult{TxRef: verification.TxRef, Success: true, AlreadySettled: true}, nil
	}
	return result, err
}

func (s *SettlementService) verifyAndSettle(ctx context.Context, trigger, transactionID, txRef string) (*SettlementResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	txRef = strings.TrimSpace(txRef)
	if transactionID == "" || txRef == "" {
		return nil, ErrSaleInvalid
	}
	sale, err := s.saleRepo.GetByTransactionReference(txRef)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, ErrSaleNotFound
	}
	if sale.Status == constants.SaleStatusCompleted {
		metrics.RecordSettlement(trigger, settlementOutcomeAlready)
		return &SettlementResult{SaleID: sale.ID, TxRef: txRef, Success: true, AlreadySettled: true}, nil
	}

	verification, err := s.gateway.VerifyTransaction(ctx, transactionID, txRef)
	if err != nil {
		metrics.RecordSettlement(trigger, settlementOutcomeRejected)
		logger.FromContext(ctx).Warnw("payment_verification_failed", "tx_ref", txRef, "transaction_id", transactionID, "error", err)
		return nil, err
	}
	if strings.EqualFold(verification.Status, flutterwave.StatusFailed) {
		metrics.RecordSettlement(trigger, settlementOutcomeRejected)
		s.cancelSale(ctx, sale, cancelReasonPaymentFailed)
		return nil, fmt.Errorf("%w: processor status %s", ErrVerificationFailed, verification.Status)
	}
	if !verification.Successful() {
		metrics.RecordSettlement(trigger, settlementOutcomeRejected)
		return nil, fmt.Errorf("%w: processor status %s", ErrVerificationFailed, verification.Status)
	}

	result, err := s.settle(ctx, settleInput{trigger: trigger, verification: verification})
	if errors.Is(err, ErrAlreadySettled) {
		return &SettlementResult{SaleID: sale.ID, TxRef: txRef, Success: true, AlreadySettled: true}, nil
	}
	return result, err
}

// settle pending -> completed 唯一迁移；钱包入账在迁移成功后逐步执行，失败步骤进入对账
func (s *SettlementService) settle(ctx context.Context, in settleInput) (*SettlementResult, error) {
	if in.verification == nil || strings.TrimSpace(in.verification.TxRef) == "" {
		return nil, ErrSaleInvalid
	}
	txRef := strings.TrimSpace(in.verification.TxRef)
	log := logger.FromContext(ctx).With("tx_ref", txRef, "trigger", in.trigger)

	sale, err := s.saleRepo.GetByTransactionReferenceWithRelations(txRef)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, ErrSaleNotFound
	}
	switch sale.Status {
	case constants.SaleStatusCompleted:
		metrics.RecordSettlement(in.trigger, settlementOutcomeAlready)
		return nil, ErrAlreadySettled
	case constants.SaleStatusCancelled:
		s.recordLatePayment(ctx, sale, in.verification)
		metrics.RecordSettlement(in.trigger, settlementOutcomeNotPending)
		return nil, ErrSaleNotPending
	}

	if err := corroborate(sale, in.verification); err != nil {
		metrics.RecordSettlement(in.trigger, settlementOutcomeRejected)
		log.Warnw("settlement_corroboration_failed", "sale_id", sale.ID, "error", err)
		if errors.Is(err, ErrPaymentMismatch) {
			s.recordPaymentMismatch(ctx, sale, in.verification, err)
		}
		return nil, err
	}

	now := time.Now()
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		won, err := s.saleRepo.WithTx(tx).MarkCompleted(sale.ID, now)
		if err != nil {
			return err
		}
		if !won {
			return ErrAlreadySettled
		}
		return s.upsertCompletedPayment(s.paymentTxnRepo.WithTx(tx), sale, in.verification, now)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			metrics.RecordSettlement(in.trigger, settlementOutcomeAlready)
			log.Infow("settlement_lost_race", "sale_id", sale.ID)
		} else {
			metrics.RecordSettlement(in.trigger, settlementOutcomeFailed)
		}
		return nil, err
	}
	sale.Status = constants.SaleStatusCompleted
	sale.CompletedAt = &now

	split := s.split(sale)
	result := &SettlementResult{SaleID: sale.ID, TxRef: txRef, Success: true, Split: &split}
	for _, step := range settlementSteps {
		if err := s.applyStep(ctx, sale, split, step); err != nil {
			result.PartialFailures = append(result.PartialFailures, step)
			s.recordStepFailure(ctx, sale, step, err)
		}
	}

	s.notifySettled(ctx, sale, split)

	outcome := settlementOutcomeSettled
	if len(result.PartialFailures) > 0 {
		outcome = settlementOutcomePartial
	}
	metrics.RecordSettlement(in.trigger, outcome)
	log.Infow("settlement_completed",
		"sale_id", sale.ID,
		"amount", split.Amount.String(),
		"commission", split.Commission.String(),
		"platform_fee", split.PlatformFee.String(),
		"business_revenue", split.BusinessRevenue.String(),
		"partial_failures", result.PartialFailures,
	)
	return result, nil
}

func corroborate(sale *models.Sale, verification *flutterwave.VerificationResult) error {
	if !strings.EqualFold(strings.TrimSpace(verification.TxRef), sale.TransactionReference) {
		return fmt.Errorf("%w: tx_ref mismatch", ErrVerificationFailed)
	}
	if !strings.EqualFold(strings.TrimSpace(verification.Currency), sale.Currency) {
		return fmt.Errorf("%w: currency %s does not match %s", ErrPaymentMismatch, verification.Currency, sale.Currency)
	}
	if verification.Amount.Round(2).LessThan(sale.Amount.Decimal) {
		return fmt.Errorf("%w: paid %s below %s", ErrPaymentMismatch, verification.Amount.StringFixed(2), sale.Amount.String())
	}
	return nil
}

func (s *SettlementService) upsertCompletedPayment(repo repository.PaymentTransactionRepository, sale *models.Sale, verification *flutterwave.VerificationResult, now time.Time) error {
	txn, err := repo.GetByTransactionReference(sale.TransactionReference)
	if err != nil {
		return err
	}
	if txn == nil {
		saleID := sale.ID
		txn = &models.PaymentTransaction{
			SaleID:               &saleID,
			TransactionReference: sale.TransactionReference,
			Provider:             constants.PaymentProviderFlutterwave,
			CustomerEmail:        sale.CustomerEmail,
			CustomerName:         sale.CustomerName,
		}
	}
	paidAt := now
	if verification.PaidAt != nil {
		paidAt = *verification.PaidAt
	}
	txn.Amount = models.NewMoneyFromDecimal(verification.Amount)
	txn.Currency = strings.ToUpper(strings.TrimSpace(verification.Currency))
	txn.ProviderTransactionID = verification.ID
	txn.PaymentMethod = verification.PaymentType
	txn.ProviderPayload = models.JSON(verification.Raw)
	txn.Status = constants.PaymentTxnStatusCompleted
	txn.PaidAt = &paidAt
	if txn.ID == 0 {
		return repo.Create(txn)
	}
	return repo.Save(txn)
}

func (s *SettlementService) split(sale *models.Sale) SettlementSplit {
	return CalculateSettlementSplit(sale.Amount.Decimal, sale.CommissionAmount.Decimal, s.feeRate)
}

// applyStep 执行一个结算后续步骤，重复执行不会重复入账
func (s *SettlementService) applyStep(ctx context.Context, sale *models.Sale, split SettlementSplit, step string) error {
	saleID := sale.ID
	switch step {
	case constants.ReconcileStepAffiliateCredit:
		if sale.ReferralLink == nil || sale.ReferralLink.AffiliateID == 0 || !split.Commission.IsPositive() {
			return nil
		}
		_, err := s.wallet.Credit(ctx, WalletCreditInput{
			UserID:      sale.ReferralLink.AffiliateID,
			Amount:      split.Commission.Decimal,
			SaleID:      &saleID,
			Type:        constants.WalletTxnTypeCommission,
			Currency:    sale.Currency,
			Reference:   sale.TransactionReference,
			Description: "commission for sale " + sale.TransactionReference,
		})
		return err
	case constants.ReconcileStepBusinessCredit:
		if sale.Product == nil || sale.Product.BusinessID == 0 {
			return fmt.Errorf("sale %d has no business owner", sale.ID)
		}
		if !split.BusinessRevenue.IsPositive() {
			return nil
		}
		_, err := s.wallet.Credit(ctx, WalletCreditInput{
			UserID:      sale.Product.BusinessID,
			Amount:      split.BusinessRevenue.Decimal,
			SaleID:      &saleID,
			Type:        constants.WalletTxnTypeBusinessRevenue,
			Currency:    sale.Currency,
			Reference:   sale.TransactionReference,
			Description: "revenue for sale " + sale.TransactionReference,
		})
		return err
	case constants.ReconcileStepConversionIncrement:
		return models.DB.Transaction(func(tx *gorm.DB) error {
			counted, err := s.saleRepo.WithTx(tx).MarkConversionCounted(sale.ID)
			if err != nil || !counted {
				return err
			}
			return s.linkRepo.WithTx(tx).IncrementConversion(sale.ReferralLinkID)
		})
	default:
		return fmt.Errorf("%w: unknown step %s", ErrReconcileTaskNotRetryable, step)
	}
}

func (s *SettlementService) recordStepFailure(ctx context.Context, sale *models.Sale, step string, stepErr error) {
	log := logger.FromContext(ctx).With("sale_id", sale.ID, "tx_ref", sale.TransactionReference, "step", step)
	log.Errorw("wallet_credit_failed", "error", stepErr)
	metrics.RecordWalletCreditFailure(step)

	task := &models.ReconciliationTask{
		SaleID:               sale.ID,
		TransactionReference: sale.TransactionReference,
		Step:                 step,
		Status:               constants.ReconcileStatusOpen,
		LastError:            stepErr.Error(),
	}
	if err := s.reconcileRepo.Record(task); err != nil {
		log.Errorw("reconcile_task_record_failed", "error", err)
		return
	}
	stored, err := s.reconcileRepo.GetBySaleStep(sale.ID, step)
	if err != nil || stored == nil {
		log.Warnw("reconcile_task_lookup_failed", "error", err)
		return
	}
	if err := s.queueClient.EnqueueSettlementReconcile(queue.SettlementReconcilePayload{TaskID: stored.ID}, reconcileRetryDelay); err != nil {
		log.Warnw("reconcile_task_enqueue_failed", "task_id", stored.ID, "error", err)
	}
}

func (s *SettlementService) recordLatePayment(ctx context.Context, sale *models.Sale, verification *flutterwave.VerificationResult) {
	log := logger.FromContext(ctx).With("sale_id", sale.ID, "tx_ref", sale.TransactionReference)
	log.Warnw("late_payment_for_cancelled_sale", "provider_transaction_id", verification.ID, "amount", verification.Amount.StringFixed(2))
	err := s.reconcileRepo.Record(&models.ReconciliationTask{
		SaleID:               sale.ID,
		TransactionReference: sale.TransactionReference,
		Step:                 constants.ReconcileStepLatePayment,
		Status:               constants.ReconcileStatusManual,
		LastError:            fmt.Sprintf("payment %s received after cancellation (%s)", verification.ID, sale.CancelReason),
	})
	if err != nil {
		log.Errorw("reconcile_task_record_failed", "error", err)
	}
}

// recordPaymentMismatch 到账金额或币种不符时订单保持待支付，登记人工对账任务
func (s *SettlementService) recordPaymentMismatch(ctx context.Context, sale *models.Sale, verification *flutterwave.VerificationResult, cause error) {
	err := s.reconcileRepo.Record(&models.ReconciliationTask{
		SaleID:               sale.ID,
		TransactionReference: sale.TransactionReference,
		Step:                 constants.ReconcileStepPaymentMismatch,
		Status:               constants.ReconcileStatusManual,
		LastError:            fmt.Sprintf("payment %s: %v", verification.ID, cause),
	})
	if err != nil {
		logger.FromContext(ctx).Errorw("reconcile_task_record_failed", "sale_id", sale.ID, "error", err)
	}
}

func (s *SettlementService) notifySettled(ctx context.Context, sale *models.Sale, split SettlementSplit) {
	data := map[string]interface{}{
		"sale_id":  sale.ID,
		"tx_ref":   sale.TransactionReference,
		"amount":   split.Amount.String(),
		"currency": sale.Currency,
	}
	productName := ""
	if sale.Product != nil {
		productName = sale.Product.Name
		data["product_name"] = productName
	}
	if sale.ReferralLink != nil && split.Commission.IsPositive() {
		s.notifier.Notify(ctx, NotifyInput{
			UserID: sale.ReferralLink.AffiliateID,
			Type:   constants.NotificationTypeCommissionEarned,
			Title:  "Commission earned",
			Data:   mergeNotificationData(data, "commission", split.Commission.String()),
		})
	}
	if sale.Product != nil {
		s.notifier.Notify(ctx, NotifyInput{
			UserID: sale.Product.BusinessID,
			Type:   constants.NotificationTypeSaleCompleted,
			Title:  "New sale completed",
			Data:   mergeNotificationData(data, "business_revenue", split.BusinessRevenue.String()),
		})
	}
	s.notifier.Notify(ctx, NotifyInput{
		Email: sale.CustomerEmail,
		Type:  constants.NotificationTypePaymentReceipt,
		Title: "Payment receipt " + productName,
		Data:  mergeNotificationData(data, "customer_name", sale.CustomerName),
	})
}

func mergeNotificationData(base map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}

// RetryReconciliationTask 重试单个对账任务
func (s *SettlementService) RetryReconciliationTask(ctx context.Context, taskID uint) (*models.ReconciliationTask, error) {
	task, err := s.reconcileRepo.GetByID(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrReconcileNotFound
	}
	if task.Status == constants.ReconcileStatusResolved {
		return task, nil
	}
	if task.Status != constants.ReconcileStatusOpen {
		return task, ErrReconcileTaskNotRetryable
	}
	log := logger.FromContext(ctx).With("task_id", task.ID, "sale_id", task.SaleID, "step", task.Step)

	sale, err := s.saleRepo.GetByIDWithRelations(task.SaleID)
	if err != nil {
		return nil, err
	}
	if sale == nil || sale.Status != constants.SaleStatusCompleted {
		_ = s.reconcileRepo.RecordFailure(task.ID, "sale missing or not completed")
		return task, ErrReconcileTaskNotRetryable
	}
	if err := s.applyStep(ctx, sale, s.split(sale), task.Step); err != nil {
		if recErr := s.reconcileRepo.RecordFailure(task.ID, err.Error()); recErr != nil {
			log.Errorw("reconcile_task_failure_record_failed", "error", recErr)
		}
		metrics.RecordWalletCreditFailure(task.Step)
		log.Warnw("reconcile_task_retry_failed", "attempts", task.Attempts+1, "error", err)
		return task, err
	}
	now := time.Now()
	if err := s.reconcileRepo.MarkResolved(task.ID, now); err != nil {
		return nil, err
	}
	task.Status = constants.ReconcileStatusResolved
	task.ResolvedAt = &now
	task.Attempts++
	log.Infow("reconcile_task_resolved")
	return task, nil
}

// RetryOpenReconciliationTasks 批量重试未解决的对账任务
func (s *SettlementService) RetryOpenReconciliationTasks(ctx context.Context, limit int) (resolved int, failed int, err error) {
	tasks, err := s.reconcileRepo.ListRetryable(s.maxAttempts, limit)
	if err != nil {
		return 0, 0, err
	}
	for _, task := range tasks {
		if _, retryErr := s.RetryReconciliationTask(ctx, task.ID); retryErr != nil {
			failed++
			continue
		}
		resolved++
	}
	if len(tasks) > 0 {
		logger.FromContext(ctx).Infow("reconcile_sweep_finished", "resolved", resolved, "failed", failed)
	}
	return resolved, failed, nil
}

// ListReconciliationTasks 对账任务列表
func (s *SettlementService) ListReconciliationTasks(filter repository.ReconciliationTaskListFilter) ([]models.ReconciliationTask, int64, error) {
	return s.reconcileRepo.List(filter)
}

// CancelPendingSale 取消待支付销售（pending -> cancelled）
func (s *SettlementService) CancelPendingSale(ctx context.Context, saleID uint, reason string) (*models.Sale, error) {
	sale, err := s.saleRepo.GetByID(saleID)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, ErrSaleNotFound
	}
	if sale.Status != constants.SaleStatusPending {
		return sale, ErrSaleNotPending
	}
	if !s.cancelSale(ctx, sale, reason) {
		return sale, ErrSaleNotPending
	}
	return s.saleRepo.GetByID(saleID)
}

// cancelSale 条件取消并标记影子流水失败，返回是否抢占成功
func (s *SettlementService) cancelSale(ctx context.Context, sale *models.Sale, reason string) bool {
	log := logger.FromContext(ctx).With("sale_id", sale.ID, "tx_ref", sale.TransactionReference)
	now := time.Now()
	cancelled, err := s.saleRepo.MarkCancelled(sale.ID, reason, now)
	if err != nil {
		log.Errorw("sale_cancel_failed", "error", err)
		return false
	}
	if !cancelled {
		return false
	}
	if err := s.paymentTxnRepo.MarkFailed(sale.TransactionReference, now); err != nil {
		log.Warnw("payment_txn_mark_failed_error", "error", err)
	}
	log.Infow("sale_cancelled", "reason", reason)
	return true
}
