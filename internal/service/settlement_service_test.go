package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	testSecretHash    = "hash-test"
	testBindingSecret = "binding-secret-for-tests"
)

type fakeCharge struct {
	ID     string
	TxRef  string
	Amount string
	Status string
}

// fakeProcessor 模拟 Flutterwave 校验与收银台接口
type fakeProcessor struct {
	mu           sync.Mutex
	charges      map[string]fakeCharge
	checkoutDown bool
	verifyCalls  int
}

func (p *fakeProcessor) add(charge fakeCharge) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charges[charge.ID] = charge
}

func (p *fakeProcessor) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.verifyCalls
}

func (p *fakeProcessor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case r.URL.Path == "/v3/payments":
		if p.checkoutDown {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"error","message":"service unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{"link":"https://checkout.test/pay/abc"}}`))
	case r.URL.Path == "/v3/transactions/verify_by_reference":
		p.verifyCalls++
		txRef := r.URL.Query().Get("tx_ref")
		for _, charge := range p.charges {
			if charge.TxRef == txRef {
				writeCharge(w, charge)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"error","message":"No transaction was found"}`))
	case strings.HasPrefix(r.URL.Path, "/v3/transactions/") && strings.HasSuffix(r.URL.Path, "/verify"):
		p.verifyCalls++
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v3/transactions/"), "/verify")
		charge, ok := p.charges[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":"error","message":"No transaction was found for this id"}`))
			return
		}
		writeCharge(w, charge)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeCharge(w http.ResponseWriter, charge fakeCharge) {
	_, _ = fmt.Fprintf(w, `{"status":"success","data":{"id":%s,"tx_ref":"%s","amount":%s,"currency":"NGN","status":"%s","payment_type":"card"}}`,
		charge.ID, charge.TxRef, charge.Amount, charge.Status)
}

type settlementHarness struct {
	db          *gorm.DB
	processor   *fakeProcessor
	attribution *AttributionService
	sales       *SaleService
	settlement  *SettlementService
	expiry      *SaleExpiryService
	wallet      *WalletService
	withdrawals *WithdrawalService
	products    *ProductService
	business    models.User
	affiliate   models.User
	product     models.Product
	link        *models.ReferralLink
}

func setupServiceTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	previous := models.DB
	models.DB = db
	t.Cleanup(func() { models.DB = previous })
	return db
}

func newSettlementHarness(t *testing.T, name string) *settlementHarness {
	t.Helper()
	db := setupServiceTestDB(t, name)
	processor := &fakeProcessor{charges: map[string]fakeCharge{}}
	server := httptest.NewServer(processor)
	t.Cleanup(server.Close)

	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	linkRepo := repository.NewReferralLinkRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	paymentTxnRepo := repository.NewPaymentTransactionRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	reconcileRepo := repository.NewReconciliationRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	gateway := NewGatewayService(config.FlutterwaveConfig{
		PublicKey:      "FLWPUBK_TEST-abc",
		SecretKey:      "FLWSECK_TEST-abc",
		SecretHash:     testSecretHash,
		BaseURL:        server.URL,
		Currency:       constants.DefaultCurrency,
		TimeoutSeconds: 2,
	})
	notifier := NewNotificationService(notificationRepo, nil, config.NotificationConfig{}, NewEmailService(&config.EmailConfig{}))
	wallet := NewWalletService(walletRepo)
	signer := NewReferralBindingSigner(testBindingSecret, time.Hour)
	attribution := NewAttributionService(linkRepo, productRepo, userRepo, saleRepo, paymentTxnRepo, walletRepo, reconcileRepo, signer)
	settlement := NewSettlementService(saleRepo, paymentTxnRepo, linkRepo, reconcileRepo, wallet, notifier, gateway, nil, SettlementOptions{
		PlatformFeeRate:      decimal.RequireFromString("0.05"),
		ReconcileMaxAttempts: 3,
	})

	h := &settlementHarness{
		db:          db,
		processor:   processor,
		attribution: attribution,
		sales:       NewSaleService(saleRepo, productRepo, paymentTxnRepo, attribution, gateway, nil, time.Hour),
		settlement:  settlement,
		expiry:      NewSaleExpiryService(saleRepo, gateway, settlement, time.Hour, 10),
		wallet:      wallet,
		withdrawals: NewWithdrawalService(withdrawalRepo, userRepo, wallet, notifier, config.WithdrawalConfig{MinAmount: "1000", AccountNumberLength: 10}),
		products:    NewProductService(productRepo, userRepo),
	}

	h.business = models.User{Email: "biz@example.com", Role: constants.UserRoleBusiness, IsVerified: true, Status: constants.UserStatusActive}
	h.affiliate = models.User{Email: "aff@example.com", Role: constants.UserRoleAffiliate, Status: constants.UserStatusActive}
	for _, user := range []*models.User{&h.business, &h.affiliate} {
		if err := db.Create(user).Error; err != nil {
			t.Fatalf("create user failed: %v", err)
		}
	}
	product, err := h.products.CreateProduct(context.Background(), CreateProductInput{
		BusinessID:     h.business.ID,
		Name:           "Course",
		Price:          decimal.NewFromInt(10000),
		CommissionRate: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	h.product = *product
	link, created, err := attribution.CreateReferralLink(context.Background(), h.affiliate.ID, product.ID)
	if err != nil || !created {
		t.Fatalf("create referral link failed: created=%v err=%v", created, err)
	}
	h.link = link
	return h
}

// createPendingSale 走完整的推广码解析与待支付销售创建流程
func (h *settlementHarness) createPendingSale(t *testing.T) *models.Sale {
	t.Helper()
	resolved, err := h.attribution.ResolveCode(context.Background(), h.link.Code)
	if err != nil {
		t.Fatalf("resolve referral code failed: %v", err)
	}
	result, err := h.sales.CreatePendingSale(context.Background(), CreatePendingSaleInput{
		BindingToken:  resolved.BindingToken,
		CustomerEmail: "buyer@example.com",
		CustomerName:  "Buyer",
	})
	if err != nil {
		t.Fatalf("create pending sale failed: %v", err)
	}
	return result.Sale
}

func (h *settlementHarness) reloadSale(t *testing.T, id uint) models.Sale {
	t.Helper()
	var sale models.Sale
	if err := h.db.First(&sale, id).Error; err != nil {
		t.Fatalf("reload sale failed: %v", err)
	}
	return sale
}

func (h *settlementHarness) assertBalance(t *testing.T, userID uint, expected string) {
	t.Helper()
	balance, err := h.wallet.GetBalance(userID)
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if !balance.Decimal.Equal(decimal.RequireFromString(expected)) {
		t.Fatalf("unexpected balance for user %d: got=%s want=%s", userID, balance.String(), expected)
	}
	audit, err := h.wallet.AuditBalance(userID)
	if err != nil {
		t.Fatalf("audit balance failed: %v", err)
	}
	if !audit.Consistent {
		t.Fatalf("wallet ledger inconsistent: %+v", audit)
	}
}

func webhookHeaders() map[string]string {
	return map[string]string{"verif-hash": testSecretHash}
}

func webhookBody(event, id, txRef, amount, status string) []byte {
	return []byte(fmt.Sprintf(`{"event":"%s","data":{"id":%s,"tx_ref":"%s","amount":%s,"currency":"NGN","status":"%s"}}`,
		event, id, txRef, amount, status))
}

func TestWebhookSettlesSaleAndSplitsFunds(t *testing.T) {
	h := newSettlementHarness(t, "settle_webhook")
	sale := h.createPendingSale(t)
	if !sale.CommissionAmount.Decimal.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected commission snapshot: %s", sale.CommissionAmount.String())
	}

	body := webhookBody("charge.completed", "9001", sale.TransactionReference, "10000", "successful")
	outcome, err := h.settlement.HandleWebhook(context.Background(), webhookHeaders(), body)
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if !outcome.Applicable || outcome.Result == nil || !outcome.Result.Success || outcome.Result.AlreadySettled {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(outcome.Result.PartialFailures) != 0 {
		t.Fatalf("unexpected partial failures: %v", outcome.Result.PartialFailures)
	}

	stored := h.reloadSale(t, sale.ID)
	if stored.Status != constants.SaleStatusCompleted || stored.CompletedAt == nil || !stored.ConversionCounted {
		t.Fatalf("unexpected sale state: %+v", stored)
	}
	h.assertBalance(t, h.affiliate.ID, "1000")
	h.assertBalance(t, h.business.ID, "8500")

	var link models.ReferralLink
	if err := h.db.First(&link, h.link.ID).Error; err != nil {
		t.Fatalf("reload link failed: %v", err)
	}
	if link.ClickCount != 1 || link.ConversionCount != 1 {
		t.Fatalf("unexpected link counters: clicks=%d conversions=%d", link.ClickCount, link.ConversionCount)
	}

	var txn models.PaymentTransaction
	if err := h.db.Where("transaction_reference = ?", sale.TransactionReference).First(&txn).Error; err != nil {
		t.Fatalf("load payment transaction failed: %v", err)
	}
	if txn.Status != constants.PaymentTxnStatusCompleted || txn.ProviderTransactionID != "9001" || txn.PaidAt == nil {
		t.Fatalf("unexpected payment transaction: %+v", txn)
	}

	var notifications int64
	h.db.Model(&models.Notification{}).Where("user_id IN ?", []uint{h.affiliate.ID, h.business.ID}).Count(&notifications)
	if notifications != 2 {
		t.Fatalf("expected affiliate and business notifications, got %d", notifications)
	}
}

func TestSettlementIsIdempotentAcrossPaths(t *testing.T) {
	h := newSettlementHarness(t, "settle_idempotent")
	sale := h.createPendingSale(t)
	h.processor.add(fakeCharge{ID: "9002", TxRef: sale.TransactionReference, Amount: "10000", Status: "successful"})

	first, err := h.settlement.VerifyAndSettle(context.Background(), "9002", sale.TransactionReference)
	if err != nil {
		t.Fatalf("verify and settle failed: %v", err)
	}
	if !first.Success || first.AlreadySettled {
		t.Fatalf("unexpected first result: %+v", first)
	}

	body := webhookBody("charge.completed", "9002", sale.TransactionReference, "10000", "successful")
	outcome, err := h.settlement.HandleWebhook(context.Background(), webhookHeaders(), body)
	if err != nil {
		t.Fatalf("duplicate webhook failed: %v", err)
	}
	if outcome.Noop != "already_settled" || !outcome.Result.AlreadySettled {
		t.Fatalf("expected already settled noop, got %+v", outcome)
	}

	calls := h.processor.calls()
	second, err := h.settlement.VerifyAndSettle(context.Background(), "9002", sale.TransactionReference)
	if err != nil {
		t.Fatalf("second verify failed: %v", err)
	}
	if !second.AlreadySettled {
		t.Fatalf("expected already settled on second verify")
	}
	if h.processor.calls() != calls {
		t.Fatalf("completed sale should not be re-verified with the processor")
	}

	h.assertBalance(t, h.affiliate.ID, "1000")
	h.assertBalance(t, h.business.ID, "8500")
	var credits int64
	h.db.Model(&models.WalletTransaction{}).Where("sale_id = ?", sale.ID).Count(&credits)
	if credits != 2 {
		t.Fatalf("expected exactly two credits, got %d", credits)
	}
}

func TestVerifyWithoutSuccessfulPaymentDoesNotCredit(t *testing.T) {
	h := newSettlementHarness(t, "settle_unverified")

	pending := h.createPendingSale(t)
	h.processor.add(fakeCharge{ID: "9101", TxRef: pending.TransactionReference, Amount: "10000", Status: "pending"})
	if _, err := h.settlement.VerifyAndSettle(context.Background(), "9101", pending.TransactionReference); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected verification failure for pending charge, got %v", err)
	}
	if stored := h.reloadSale(t, pending.ID); stored.Status != constants.SaleStatusPending {
		t.Fatalf("pending charge should keep sale pending, got %s", stored.Status)
	}

	if _, err := h.settlement.VerifyAndSettle(context.Background(), "404404", pending.TransactionReference); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected verification failure for unknown charge, got %v", err)
	}

	underpaid := h.createPendingSale(t)
	h.processor.add(fakeCharge{ID: "9102", TxRef: underpaid.TransactionReference, Amount: "500", Status: "successful"})
	if _, err := h.settlement.VerifyAndSettle(context.Background(), "9102", underpaid.TransactionReference); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected verification failure for underpaid charge, got %v", err)
	}

	failed := h.createPendingSale(t)
	h.processor.add(fakeCharge{ID: "9103", TxRef: failed.TransactionReference, Amount: "10000", Status: "failed"})
	if _, err := h.settlement.VerifyAndSettle(context.Background(), "9103", failed.TransactionReference); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected verification failure for failed charge, got %v", err)
	}
	stored := h.reloadSale(t, failed.ID)
	if stored.Status != constants.SaleStatusCancelled || stored.CancelReason != cancelReasonPaymentFailed {
		t.Fatalf("failed charge should cancel sale, got %+v", stored)
	}
	var txn models.PaymentTransaction
	if err := h.db.Where("transaction_reference = ?", failed.TransactionReference).First(&txn).Error; err != nil {
		t.Fatalf("load shadow transaction failed: %v", err)
	}
	if txn.Status != constants.PaymentTxnStatusFailed {
		t.Fatalf("shadow transaction should be failed, got %s", txn.Status)
	}

	var walletTxns int64
	h.db.Model(&models.WalletTransaction{}).Count(&walletTxns)
	if walletTxns != 0 {
		t.Fatalf("no wallet credit expected, got %d transactions", walletTxns)
	}
}

func TestWebhookRejectsBadSignatureAndIgnoresOtherEvents(t *testing.T) {
	h := newSettlementHarness(t, "settle_webhook_guard")
	sale := h.createPendingSale(t)
	body := webhookBody("charge.completed", "9201", sale.TransactionReference, "10000", "successful")

	if _, err := h.settlement.HandleWebhook(context.Background(), map[string]string{"verif-hash": "wrong"}, body); !errors.Is(err, ErrWebhookSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}
	if _, err := h.settlement.HandleWebhook(context.Background(), map[string]string{}, body); !errors.Is(err, ErrWebhookSignatureInvalid) {
		t.Fatalf("expected signature error for missing header, got %v", err)
	}

	failedBody := webhookBody("charge.completed", "9201", sale.TransactionReference, "10000", "failed")
	outcome, err := h.settlement.HandleWebhook(context.Background(), webhookHeaders(), failedBody)
	if err != nil {
		t.Fatalf("non applicable webhook failed: %v", err)
	}
	if outcome.Applicable {
		t.Fatalf("failed charge should not be applicable")
	}

	transferBody := webhookBody("transfer.completed", "9201", sale.TransactionReference, "10000", "successful")
	outcome, err = h.settlement.HandleWebhook(context.Background(), webhookHeaders(), transferBody)
	if err != nil || outcome.Applicable {
		t.Fatalf("transfer event should be ignored: outcome=%+v err=%v", outcome, err)
	}

	unknownBody := webhookBody("charge.completed", "9202", "AFS-UNKNOWN", "10000", "successful")
	outcome, err = h.settlement.HandleWebhook(context.Background(), webhookHeaders(), unknownBody)
	if err != nil || outcome.Noop != "sale_not_found" {
		t.Fatalf("unknown tx_ref should be a noop: outcome=%+v err=%v", outcome, err)
	}

	if stored := h.reloadSale(t, sale.ID); stored.Status != constants.SaleStatusPending {
		t.Fatalf("sale should remain pending, got %s", stored.Status)
	}
}

func TestLatePaymentOnCancelledSaleOpensManualReview(t *testing.T) {
	h := newSettlementHarness(t, "settle_late")
	sale := h.createPendingSale(t)

	cancelled, err := h.settlement.CancelPendingSale(context.Background(), sale.ID, "admin_cancelled")
	if err != nil {
		t.Fatalf("cancel pending sale failed: %v", err)
	}
	if cancelled.Status != constants.SaleStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected cancelled sale: %+v", cancelled)
	}
	if _, err := h.settlement.CancelPendingSale(context.Background(), sale.ID, "again"); !errors.Is(err, ErrSaleNotPending) {
		t.Fatalf("second cancel should fail with not pending, got %v", err)
	}

	body := webhookBody("charge.completed", "9301", sale.TransactionReference, "10000", "successful")
	outcome, err := h.settlement.HandleWebhook(context.Background(), webhookHeaders(), body)
	if err != nil {
		t.Fatalf("late webhook failed: %v", err)
	}
	if outcome.Noop != "sale_not_pending" {
		t.Fatalf("expected sale_not_pending noop, got %+v", outcome)
	}

	var task models.ReconciliationTask
	if err := h.db.Where("sale_id = ? AND step = ?", sale.ID, constants.ReconcileStepLatePayment).First(&task).Error; err != nil {
		t.Fatalf("late payment task missing: %v", err)
	}
	if task.Status != constants.ReconcileStatusManual {
		t.Fatalf("late payment task should need manual review, got %s", task.Status)
	}
	if _, err := h.settlement.RetryReconciliationTask(context.Background(), task.ID); !errors.Is(err, ErrReconcileTaskNotRetryable) {
		t.Fatalf("manual task should not be retryable, got %v", err)
	}
	h.assertBalance(t, h.affiliate.ID, "0")
	h.assertBalance(t, h.business.ID, "0")
}

func TestUnderpaidWebhookOpensManualReview(t *testing.T) {
	h := newSettlementHarness(t, "settle_webhook_underpaid")
	sale := h.createPendingSale(t)

	body := webhookBody("charge.completed", "9251", sale.TransactionReference, "1", "successful")
	outcome, err := h.settlement.HandleWebhook(context.Background(), webhookHeaders(), body)
	if err != nil {
		t.Fatalf("underpaid webhook should be acknowledged, got %v", err)
	}
	if !outcome.Applicable || outcome.Noop != "payment_mismatch" || outcome.Result != nil {
		t.Fatalf("expected payment_mismatch noop, got %+v", outcome)
	}
	if stored := h.reloadSale(t, sale.ID); stored.Status != constants.SaleStatusPending {
		t.Fatalf("underpaid sale should remain pending, got %s", stored.Status)
	}

	var task models.ReconciliationTask
	if err := h.db.Where("sale_id = ? AND step = ?", sale.ID, constants.ReconcileStepPaymentMismatch).First(&task).Error; err != nil {
		t.Fatalf("payment mismatch task missing: %v", err)
	}
	if task.Status != constants.ReconcileStatusManual {
		t.Fatalf("payment mismatch task should need manual review, got %s", task.Status)
	}
	if _, err := h.settlement.RetryReconciliationTask(context.Background(), task.ID); !errors.Is(err, ErrReconcileTaskNotRetryable) {
		t.Fatalf("manual task should not be retryable, got %v", err)
	}

	redelivered, err := h.settlement.HandleWebhook(context.Background(), webhookHeaders(), body)
	if err != nil || redelivered.Noop != "payment_mismatch" {
		t.Fatalf("redelivery should stay a noop: outcome=%+v err=%v", redelivered, err)
	}
	var tasks int64
	h.db.Model(&models.ReconciliationTask{}).Where("sale_id = ?", sale.ID).Count(&tasks)
	if tasks != 1 {
		t.Fatalf("redelivery should reuse the manual task, got %d tasks", tasks)
	}

	wrongCurrency := []byte(strings.Replace(string(webhookBody("charge.completed", "9252", sale.TransactionReference, "10000", "successful")), `"NGN"`, `"USD"`, 1))
	outcome, err = h.settlement.HandleWebhook(context.Background(), webhookHeaders(), wrongCurrency)
	if err != nil || outcome.Noop != "payment_mismatch" {
		t.Fatalf("wrong currency should be a payment_mismatch noop: outcome=%+v err=%v", outcome, err)
	}
	if stored := h.reloadSale(t, sale.ID); stored.Status != constants.SaleStatusPending {
		t.Fatalf("sale paid in wrong currency should remain pending, got %s", stored.Status)
	}
	h.assertBalance(t, h.affiliate.ID, "0")
	h.assertBalance(t, h.business.ID, "0")
}

func TestCommissionSnapshotSurvivesRateChange(t *testing.T) {
	h := newSettlementHarness(t, "settle_snapshot")
	sale := h.createPendingSale(t)

	if _, err := h.products.UpdateCommissionRate(context.Background(), h.business.ID, h.product.ID, decimal.NewFromInt(30)); err != nil {
		t.Fatalf("update commission rate failed: %v", err)
	}
	h.processor.add(fakeCharge{ID: "9401", TxRef: sale.TransactionReference, Amount: "10000", Status: "successful"})
	result, err := h.settlement.VerifyAndSettle(context.Background(), "9401", sale.TransactionReference)
	if err != nil {
		t.Fatalf("verify and settle failed: %v", err)
	}
	if !result.Split.Commission.Decimal.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("commission should use the rate captured at sale creation, got %s", result.Split.Commission.String())
	}
	h.assertBalance(t, h.affiliate.ID, "1000")

	next := h.createPendingSale(t)
	if !next.CommissionAmount.Decimal.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("new sale should use updated rate, got %s", next.CommissionAmount.String())
	}
}

func TestCancelPendingSaleOnlyOnce(t *testing.T) {
	h := newSettlementHarness(t, "settle_admin_cancel")
	sale := h.createPendingSale(t)

	cancelled, err := h.settlement.CancelPendingSale(context.Background(), sale.ID, "buyer asked")
	if err != nil {
		t.Fatalf("cancel pending sale failed: %v", err)
	}
	if cancelled.Status != constants.SaleStatusCancelled || cancelled.CancelReason != "buyer asked" {
		t.Fatalf("unexpected cancelled sale: %+v", cancelled)
	}
	var txn models.PaymentTransaction
	if err := h.db.Where("transaction_reference = ?", sale.TransactionReference).First(&txn).Error; err != nil {
		t.Fatalf("load payment transaction failed: %v", err)
	}
	if txn.Status != constants.PaymentTxnStatusFailed {
		t.Fatalf("payment shadow should be failed, got %s", txn.Status)
	}

	if _, err := h.settlement.CancelPendingSale(context.Background(), sale.ID, "again"); !errors.Is(err, ErrSaleNotPending) {
		t.Fatalf("second cancel should fail with ErrSaleNotPending, got %v", err)
	}
	if _, err := h.settlement.CancelPendingSale(context.Background(), 99999, ""); !errors.Is(err, ErrSaleNotFound) {
		t.Fatalf("missing sale should fail with ErrSaleNotFound, got %v", err)
	}
	h.assertBalance(t, h.affiliate.ID, "0")
}

func TestFailedCreditStepIsReconciledOnRetry(t *testing.T) {
	h := newSettlementHarness(t, "settle_reconcile")
	sale := h.createPendingSale(t)

	// 商品暂时失去商家归属，商家入账步骤失败
	if err := h.db.Model(&models.Product{}).Where("id = ?", h.product.ID).Update("business_id", 0).Error; err != nil {
		t.Fatalf("detach business failed: %v", err)
	}
	body := webhookBody("charge.completed", "9501", sale.TransactionReference, "10000", "successful")
	outcome, err := h.settlement.HandleWebhook(context.Background(), webhookHeaders(), body)
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	failures := outcome.Result.PartialFailures
	if len(failures) != 1 || failures[0] != constants.ReconcileStepBusinessCredit {
		t.Fatalf("expected business credit failure, got %v", failures)
	}
	if stored := h.reloadSale(t, sale.ID); stored.Status != constants.SaleStatusCompleted {
		t.Fatalf("sale should stay completed despite failed step, got %s", stored.Status)
	}
	h.assertBalance(t, h.affiliate.ID, "1000")

	tasks, total, err := h.settlement.ListReconciliationTasks(repository.ReconciliationTaskListFilter{Status: constants.ReconcileStatusOpen})
	if err != nil || total != 1 {
		t.Fatalf("expected one open task: total=%d err=%v", total, err)
	}
	if _, err := h.settlement.RetryReconciliationTask(context.Background(), tasks[0].ID); err == nil {
		t.Fatalf("retry should fail while business is detached")
	}

	if err := h.db.Model(&models.Product{}).Where("id = ?", h.product.ID).Update("business_id", h.business.ID).Error; err != nil {
		t.Fatalf("restore business failed: %v", err)
	}
	resolved, failed, err := h.settlement.RetryOpenReconciliationTasks(context.Background(), 10)
	if err != nil || resolved != 1 || failed != 0 {
		t.Fatalf("unexpected sweep result: resolved=%d failed=%d err=%v", resolved, failed, err)
	}
	h.assertBalance(t, h.business.ID, "8500")

	task, err := h.settlement.RetryReconciliationTask(context.Background(), tasks[0].ID)
	if err != nil || task.Status != constants.ReconcileStatusResolved {
		t.Fatalf("resolved task retry should be a noop: task=%+v err=%v", task, err)
	}
	h.assertBalance(t, h.business.ID, "8500")
}

func TestCheckoutCallbackSettlesAndCancelledCallbackDoesNot(t *testing.T) {
	h := newSettlementHarness(t, "settle_callback")
	sale := h.createPendingSale(t)

	_, err := h.settlement.HandleCheckoutCallback(context.Background(), map[string]string{
		"status": "cancelled",
		"tx_ref": sale.TransactionReference,
	})
	if !errors.Is(err, ErrPaymentCancelled) {
		t.Fatalf("expected cancelled callback error, got %v", err)
	}
	if stored := h.reloadSale(t, sale.ID); stored.Status != constants.SaleStatusPending {
		t.Fatalf("cancelled callback should not settle, got %s", stored.Status)
	}

	h.processor.add(fakeCharge{ID: "9601", TxRef: sale.TransactionReference, Amount: "10000", Status: "successful"})
	result, err := h.settlement.HandleCheckoutCallback(context.Background(), map[string]string{
		"status":         "successful",
		"tx_ref":         sale.TransactionReference,
		"transaction_id": "9601",
	})
	if err != nil || !result.Success {
		t.Fatalf("successful callback should settle: result=%+v err=%v", result, err)
	}
	h.assertBalance(t, h.business.ID, "8500")
}

func TestExpirySweepSettlesPaidAndCancelsAbandonedSales(t *testing.T) {
	h := newSettlementHarness(t, "settle_expiry")
	paid := h.createPendingSale(t)
	abandoned := h.createPendingSale(t)
	fresh := h.createPendingSale(t)

	stale := time.Now().Add(-2 * time.Hour)
	if err := h.db.Model(&models.Sale{}).Where("id IN ?", []uint{paid.ID, abandoned.ID}).Update("created_at", stale).Error; err != nil {
		t.Fatalf("backdate sales failed: %v", err)
	}
	h.processor.add(fakeCharge{ID: "9701", TxRef: paid.TransactionReference, Amount: "10000", Status: "successful"})

	summary, err := h.expiry.ExpireStale(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("expire stale failed: %v", err)
	}
	if summary.Scanned != 2 || summary.Settled != 1 || summary.Expired != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if stored := h.reloadSale(t, paid.ID); stored.Status != constants.SaleStatusCompleted {
		t.Fatalf("paid sale should be settled, got %s", stored.Status)
	}
	stored := h.reloadSale(t, abandoned.ID)
	if stored.Status != constants.SaleStatusCancelled || stored.CancelReason != cancelReasonExpired {
		t.Fatalf("abandoned sale should expire, got %+v", stored)
	}
	outcome, err := h.expiry.CheckSale(context.Background(), fresh.ID)
	if err != nil || outcome != expiryOutcomePending {
		t.Fatalf("fresh sale should stay pending: outcome=%s err=%v", outcome, err)
	}
	h.assertBalance(t, h.affiliate.ID, "1000")
}

func TestCreatePendingSaleRejectsAmountOffPrice(t *testing.T) {
	h := newSettlementHarness(t, "sale_amount_price")
	resolved, err := h.attribution.ResolveCode(context.Background(), h.link.Code)
	if err != nil {
		t.Fatalf("resolve referral code failed: %v", err)
	}

	for _, raw := range []string{"1", "9999.99", "10000.01"} {
		amount := decimal.RequireFromString(raw)
		_, err := h.sales.CreatePendingSale(context.Background(), CreatePendingSaleInput{
			BindingToken:  resolved.BindingToken,
			Amount:        &amount,
			CustomerEmail: "buyer@example.com",
		})
		if !errors.Is(err, ErrSaleAmountMismatch) || !errors.Is(err, ErrSaleInvalid) {
			t.Fatalf("amount %s should be rejected as off-price, got %v", raw, err)
		}
	}
	var count int64
	h.db.Model(&models.Sale{}).Count(&count)
	if count != 0 {
		t.Fatalf("rejected amounts must not create sales, got %d", count)
	}

	amount := decimal.RequireFromString("10000.00")
	result, err := h.sales.CreatePendingSale(context.Background(), CreatePendingSaleInput{
		BindingToken:  resolved.BindingToken,
		Amount:        &amount,
		CustomerEmail: "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("matching amount should be accepted: %v", err)
	}
	if !result.Sale.Amount.Decimal.Equal(decimal.NewFromInt(10000)) || !result.Sale.CommissionAmount.Decimal.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("sale should carry the product price: amount=%s commission=%s", result.Sale.Amount.String(), result.Sale.CommissionAmount.String())
	}

	// 低额到账不会结算按标价创建的销售
	h.processor.add(fakeCharge{ID: "9801", TxRef: result.TxRef, Amount: "1", Status: "successful"})
	if _, err := h.settlement.VerifyAndSettle(context.Background(), "9801", result.TxRef); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("underpaid charge should fail verification, got %v", err)
	}
	if stored := h.reloadSale(t, result.Sale.ID); stored.Status != constants.SaleStatusPending {
		t.Fatalf("underpaid sale must stay pending, got %s", stored.Status)
	}
	h.assertBalance(t, h.affiliate.ID, "0")
}

func TestCreatePendingSaleWithoutCustomerEmail(t *testing.T) {
	h := newSettlementHarness(t, "sale_no_email")
	resolved, err := h.attribution.ResolveCode(context.Background(), h.link.Code)
	if err != nil {
		t.Fatalf("resolve referral code failed: %v", err)
	}

	result, err := h.sales.CreatePendingSale(context.Background(), CreatePendingSaleInput{BindingToken: resolved.BindingToken})
	if err != nil {
		t.Fatalf("pending sale without email should be created: %v", err)
	}
	if result.Sale.CustomerEmail != "" || result.Sale.Status != constants.SaleStatusPending {
		t.Fatalf("unexpected sale: %+v", result.Sale)
	}
	var txn models.PaymentTransaction
	if err := h.db.Where("transaction_reference = ?", result.TxRef).First(&txn).Error; err != nil {
		t.Fatalf("payment shadow should exist: %v", err)
	}

	if _, err := h.sales.CreatePendingSale(context.Background(), CreatePendingSaleInput{
		BindingToken:  resolved.BindingToken,
		CustomerEmail: "not-an-email",
	}); !errors.Is(err, ErrSaleInvalid) {
		t.Fatalf("malformed email should be rejected, got %v", err)
	}

	if _, err := h.sales.Checkout(context.Background(), CreatePendingSaleInput{BindingToken: resolved.BindingToken}); !errors.Is(err, ErrCustomerEmailRequired) {
		t.Fatalf("hosted checkout should require an email, got %v", err)
	}
	var count int64
	h.db.Model(&models.Sale{}).Count(&count)
	if count != 1 {
		t.Fatalf("checkout without email must not create a sale, got %d sales", count)
	}
}
