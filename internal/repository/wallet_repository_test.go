package repository

import (
	"testing"

	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/models"

	"github.com/shopspring/decimal"
)

func TestWalletRepositoryBalanceMutations(t *testing.T) {
	db := setupRepositoryTestDB(t, "wallet_repo_balance")
	repo := NewWalletRepository(db)
	fx := createSaleFixture(t, db, "W1")

	account, err := repo.EnsureAccount(fx.affiliate.ID, "")
	if err != nil || account == nil {
		t.Fatalf("ensure account failed: %v", err)
	}
	again, err := repo.EnsureAccount(fx.affiliate.ID, constants.DefaultCurrency)
	if err != nil || again.ID != account.ID {
		t.Fatalf("ensure account should be idempotent: err=%v", err)
	}
	if account.Currency != constants.DefaultCurrency {
		t.Fatalf("unexpected currency: %s", account.Currency)
	}

	if err := repo.IncrementBalance(account.ID, decimal.RequireFromString("150.50")); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	ok, err := repo.DecrementBalanceIfSufficient(account.ID, decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("decrement failed: %v", err)
	}
	if ok {
		t.Fatalf("decrement beyond balance must fail")
	}
	ok, err = repo.DecrementBalanceIfSufficient(account.ID, decimal.NewFromInt(100))
	if err != nil || !ok {
		t.Fatalf("decrement within balance should succeed: ok=%v err=%v", ok, err)
	}

	refreshed, err := repo.GetAccountByID(account.ID)
	if err != nil || refreshed == nil {
		t.Fatalf("reload account failed: %v", err)
	}
	if !refreshed.Balance.Decimal.Equal(decimal.RequireFromString("50.50")) {
		t.Fatalf("unexpected balance: %s", refreshed.Balance.String())
	}
}

func TestWalletRepositoryCreditUniquePerSale(t *testing.T) {
	db := setupRepositoryTestDB(t, "wallet_repo_unique")
	repo := NewWalletRepository(db)
	fx := createSaleFixture(t, db, "W2")

	account, err := repo.EnsureAccount(fx.affiliate.ID, constants.DefaultCurrency)
	if err != nil {
		t.Fatalf("ensure account failed: %v", err)
	}
	saleID := uint(42)
	txn := &models.WalletTransaction{
		WalletID:        account.ID,
		UserID:          fx.affiliate.ID,
		SaleID:          &saleID,
		TransactionType: constants.WalletTxnTypeCommission,
		Direction:       constants.WalletTxnDirectionIn,
		Amount:          models.NewMoneyFromInt(2000),
		BalanceAfter:    models.NewMoneyFromInt(2000),
	}
	if err := repo.CreateTransaction(txn); err != nil {
		t.Fatalf("create txn failed: %v", err)
	}
	dup := *txn
	dup.ID = 0
	err = repo.CreateTransaction(&dup)
	if err == nil {
		t.Fatalf("duplicate credit for same sale must fail")
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	found, err := repo.GetTransactionBySale(account.ID, saleID, constants.WalletTxnTypeCommission)
	if err != nil || found == nil || found.ID != txn.ID {
		t.Fatalf("lookup by sale failed: found=%v err=%v", found, err)
	}

	withdrawal := &models.WalletTransaction{
		WalletID:        account.ID,
		UserID:          fx.affiliate.ID,
		TransactionType: constants.WalletTxnTypeWithdrawal,
		Direction:       constants.WalletTxnDirectionOut,
		Amount:          models.NewMoneyFromInt(-500),
		Reference:       "withdrawal:1",
	}
	if err := repo.CreateTransaction(withdrawal); err != nil {
		t.Fatalf("create withdrawal txn failed: %v", err)
	}
	sum, err := repo.SumTransactions(account.ID)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if !sum.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected sum: %s", sum.String())
	}
	byRef, err := repo.GetTransactionByReference(account.ID, "withdrawal:1")
	if err != nil || byRef == nil || byRef.ID != withdrawal.ID {
		t.Fatalf("lookup by reference failed: %v", err)
	}

	items, total, err := repo.ListTransactions(WalletTransactionListFilter{Page: 1, PageSize: 10, UserID: fx.affiliate.ID, Direction: constants.WalletTxnDirectionIn})
	if err != nil || total != 1 || len(items) != 1 {
		t.Fatalf("list in-direction failed: total=%d err=%v", total, err)
	}
}

func TestWalletRepositorySumEmptyWallet(t *testing.T) {
	db := setupRepositoryTestDB(t, "wallet_repo_empty")
	repo := NewWalletRepository(db)
	sum, err := repo.SumTransactions(12345)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if !sum.IsZero() {
		t.Fatalf("expected zero sum, got %s", sum.String())
	}
}
