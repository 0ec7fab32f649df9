package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WalletService 钱包服务
type WalletService struct {
	walletRepo repository.WalletRepository
}

// WalletCreditInput 入账输入
type WalletCreditInput struct {
	UserID      uint
	Amount      decimal.Decimal
	SaleID      *uint
	Type        string
	Currency    string
	Reference   string
	Description string
}

// WalletDebitInput 出账输入
type WalletDebitInput struct {
	UserID      uint
	Amount      decimal.Decimal
	Type        string
	Reference   string
	Description string
}

// WalletCreditResult 入账结果（Created=false 表示此前已入账）
type WalletCreditResult struct {
	Transaction *models.WalletTransaction
	Created     bool
}

// BalanceAudit 余额与流水汇总核对结果
type BalanceAudit struct {
	UserID     uint         `json:"user_id"`
	WalletID   uint         `json:"wallet_id"`
	Balance    models.Money `json:"balance"`
	LedgerSum  models.Money `json:"ledger_sum"`
	Difference models.Money `json:"difference"`
	Consistent bool         `json:"consistent"`
}

// NewWalletService 创建钱包服务
func NewWalletService(walletRepo repository.WalletRepository) *WalletService {
	return &WalletService{walletRepo: walletRepo}
}

// GetAccount 获取钱包账户（不存在时返回零余额账户，不落库）
func (s *WalletService) GetAccount(userID uint) (*models.WalletAccount, error) {
	account, err := s.walletRepo.GetAccountByUserID(userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return &models.WalletAccount{UserID: userID, Currency: constants.DefaultCurrency}, nil
	}
	return account, nil
}

// GetBalance 获取用户余额
func (s *WalletService) GetBalance(userID uint) (models.Money, error) {
	account, err := s.GetAccount(userID)
	if err != nil {
		return models.Money{}, err
	}
	return account.Balance, nil
}

// ListTransactions 查询钱包流水
func (s *WalletService) ListTransactions(filter repository.WalletTransactionListFilter) ([]models.WalletTransaction, int64, error) {
	return s.walletRepo.ListTransactions(filter)
}

// Credit 入账；同一 (钱包, 销售, 类型) 只会入账一次
func (s *WalletService) Credit(ctx context.Context, input WalletCreditInput) (*WalletCreditResult, error) {
	if err := validateCreditInput(input); err != nil {
		return nil, err
	}
	var result *WalletCreditResult
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.CreditInTx(tx, input)
		return txErr
	})
	if err != nil {
		if repository.IsUniqueViolation(err) && input.SaleID != nil {
			existing, lookupErr := s.findSaleCredit(input)
			if lookupErr == nil && existing != nil {
				logger.FromContext(ctx).Infow("wallet_credit_deduplicated", "user_id", input.UserID, "sale_id", *input.SaleID, "type", input.Type)
				return &WalletCreditResult{Transaction: existing, Created: false}, nil
			}
		}
		return nil, err
	}
	return result, nil
}

// CreditInTx 在调用方事务内入账：先原子增加余额，再写入流水
func (s *WalletService) CreditInTx(tx *gorm.DB, input WalletCreditInput) (*WalletCreditResult, error) {
	if err := validateCreditInput(input); err != nil {
		return nil, err
	}
	repo := s.walletRepo.WithTx(tx)
	account, err := repo.EnsureAccount(input.UserID, input.Currency)
	if err != nil {
		return nil, err
	}

	reference := strings.TrimSpace(input.Reference)
	if input.SaleID != nil {
		existing, err := repo.GetTransactionBySale(account.ID, *input.SaleID, input.Type)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &WalletCreditResult{Transaction: existing, Created: false}, nil
		}
	} else if reference != "" {
		existing, err := repo.GetTransactionByReference(account.ID, reference)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &WalletCreditResult{Transaction: existing, Created: false}, nil
		}
	}

	amount := input.Amount.Round(2)
	if err := repo.IncrementBalance(account.ID, amount); err != nil {
		return nil, err
	}
	refreshed, err := repo.GetAccountByID(account.ID)
	if err != nil {
		return nil, err
	}
	after := refreshed.Balance.Decimal
	txn := &models.WalletTransaction{
		WalletID:        account.ID,
		UserID:          input.UserID,
		SaleID:          input.SaleID,
		TransactionType: input.Type,
		Direction:       constants.WalletTxnDirectionIn,
		Amount:          models.NewMoneyFromDecimal(amount),
		BalanceBefore:   models.NewMoneyFromDecimal(after.Sub(amount)),
		BalanceAfter:    models.NewMoneyFromDecimal(after),
		Reference:       reference,
		Description:     strings.TrimSpace(input.Description),
	}
	if err := repo.CreateTransaction(txn); err != nil {
		return nil, err
	}
	return &WalletCreditResult{Transaction: txn, Created: true}, nil
}

// Debit 出账；余额不足时不做任何变更。tx 为空时自行开启事务
func (s *WalletService) Debit(ctx context.Context, tx *gorm.DB, input WalletDebitInput) (*models.WalletTransaction, error) {
	if tx == nil {
		var txn *models.WalletTransaction
		err := models.DB.Transaction(func(inner *gorm.DB) error {
			var txErr error
			txn, txErr = s.Debit(ctx, inner, input)
			return txErr
		})
		return txn, err
	}
	if input.UserID == 0 || strings.TrimSpace(input.Type) == "" {
		return nil, ErrWalletInvalidAmount
	}
	amount := input.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrWalletInvalidAmount
	}

	repo := s.walletRepo.WithTx(tx)
	account, err := repo.GetAccountByUserID(input.UserID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInsufficientBalance
	}
	reference := strings.TrimSpace(input.Reference)
	if reference != "" {
		existing, err := repo.GetTransactionByReference(account.ID, reference)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	ok, err := repo.DecrementBalanceIfSufficient(account.ID, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientBalance
	}
	refreshed, err := repo.GetAccountByID(account.ID)
	if err != nil {
		return nil, err
	}
	after := refreshed.Balance.Decimal
	txn := &models.WalletTransaction{
		WalletID:        account.ID,
		UserID:          input.UserID,
		TransactionType: input.Type,
		Direction:       constants.WalletTxnDirectionOut,
		Amount:          models.NewMoneyFromDecimal(amount.Neg()),
		BalanceBefore:   models.NewMoneyFromDecimal(after.Add(amount)),
		BalanceAfter:    models.NewMoneyFromDecimal(after),
		Reference:       reference,
		Description:     strings.TrimSpace(input.Description),
	}
	if err := repo.CreateTransaction(txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// AuditBalance 核对缓存余额与流水汇总
func (s *WalletService) AuditBalance(userID uint) (*BalanceAudit, error) {
	account, err := s.walletRepo.GetAccountByUserID(userID)
	if err != nil {
		return nil, err
	}
	audit := &BalanceAudit{UserID: userID, Consistent: true}
	if account == nil {
		return audit, nil
	}
	sum, err := s.walletRepo.SumTransactions(account.ID)
	if err != nil {
		return nil, err
	}
	diff := account.Balance.Decimal.Sub(sum).Round(2)
	audit.WalletID = account.ID
	audit.Balance = account.Balance
	audit.LedgerSum = models.NewMoneyFromDecimal(sum)
	audit.Difference = models.NewMoneyFromDecimal(diff)
	audit.Consistent = diff.IsZero()
	return audit, nil
}

func (s *WalletService) findSaleCredit(input WalletCreditInput) (*models.WalletTransaction, error) {
	account, err := s.walletRepo.GetAccountByUserID(input.UserID)
	if err != nil || account == nil {
		return nil, err
	}
	return s.walletRepo.GetTransactionBySale(account.ID, *input.SaleID, input.Type)
}

func validateCreditInput(input WalletCreditInput) error {
	if input.UserID == 0 {
		return fmt.Errorf("%w: user is required", ErrWalletInvalidAmount)
	}
	if strings.TrimSpace(input.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrWalletInvalidAmount)
	}
	if !input.Amount.Round(2).IsPositive() {
		return ErrWalletInvalidAmount
	}
	return nil
}

func buildWithdrawalReference(id uint) string {
	return fmt.Sprintf("withdrawal:%d", id)
}
