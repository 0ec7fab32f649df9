package repository

import (
	"testing"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/models"

	"github.com/shopspring/decimal"
)

func TestWithdrawalRepositoryTransitionAndPendingSum(t *testing.T) {
	db := setupRepositoryTestDB(t, "withdraw_repo")
	repo := NewWithdrawalRepository(db)
	fx := createSaleFixture(t, db, "R1")

	create := func(amount int64) *models.WithdrawalRequest {
		req := &models.WithdrawalRequest{
			UserID:        fx.affiliate.ID,
			Amount:        models.NewMoneyFromInt(amount),
			Currency:      constants.DefaultCurrency,
			BankName:      "Test Bank",
			AccountNumber: "0123456789",
			AccountName:   "Ada",
			Status:        constants.WithdrawStatusPending,
		}
		if err := repo.Create(req); err != nil {
			t.Fatalf("create withdrawal failed: %v", err)
		}
		return req
	}
	first := create(1500)
	create(2500)

	sum, err := repo.SumPendingByUser(fx.affiliate.ID)
	if err != nil {
		t.Fatalf("sum pending failed: %v", err)
	}
	if !sum.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("unexpected pending sum: %s", sum.String())
	}

	now := time.Now()
	ok, err := repo.TransitionStatus(first.ID, constants.WithdrawStatusPending, constants.WithdrawStatusApproved, map[string]interface{}{"approved_at": now})
	if err != nil || !ok {
		t.Fatalf("approve transition failed: ok=%v err=%v", ok, err)
	}
	ok, err = repo.TransitionStatus(first.ID, constants.WithdrawStatusPending, constants.WithdrawStatusRejected, nil)
	if err != nil || ok {
		t.Fatalf("stale transition must not apply: ok=%v err=%v", ok, err)
	}

	sum, err = repo.SumPendingByUser(fx.affiliate.ID)
	if err != nil || !sum.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("unexpected pending sum after approve: %s err=%v", sum.String(), err)
	}

	items, total, err := repo.List(WithdrawalListFilter{Page: 1, PageSize: 10, Status: constants.WithdrawStatusApproved})
	if err != nil || total != 1 || len(items) != 1 || items[0].User == nil {
		t.Fatalf("list approved failed: total=%d err=%v", total, err)
	}
}
