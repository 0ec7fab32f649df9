package service

import (
	"context"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/metrics"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WithdrawalService 提现服务
type WithdrawalService struct {
	withdrawalRepo      repository.WithdrawalRepository
	userRepo            repository.UserRepository
	wallet              *WalletService
	notifier            *NotificationService
	minAmount           decimal.Decimal
	accountNumberLength int
}

// WithdrawalApplyInput 提现申请输入
type WithdrawalApplyInput struct {
	UserID        uint
	Amount        decimal.Decimal
	BankName      string
	AccountNumber string
	AccountName   string
}

// NewWithdrawalService 创建提现服务
func NewWithdrawalService(
	withdrawalRepo repository.WithdrawalRepository,
	userRepo repository.UserRepository,
	wallet *WalletService,
	notifier *NotificationService,
	cfg config.WithdrawalConfig,
) *WithdrawalService {
	minAmount, err := decimal.NewFromString(strings.TrimSpace(cfg.MinAmount))
	if err != nil || minAmount.IsNegative() {
		minAmount = decimal.RequireFromString(constants.DefaultWithdrawMinAmount)
	}
	length := cfg.AccountNumberLength
	if length <= 0 {
		length = constants.DefaultAccountNumberLength
	}
	return &WithdrawalService{
		withdrawalRepo:      withdrawalRepo,
		userRepo:            userRepo,
		wallet:              wallet,
		notifier:            notifier,
		minAmount:           minAmount,
		accountNumberLength: length,
	}
}

// Request 提交提现申请；校验全部通过前不写入任何记录
func (s *WithdrawalService) Request(ctx context.Context, input WithdrawalApplyInput) (*models.WithdrawalRequest, error) {
	user, err := s.userRepo.GetByID(input.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Role != constants.UserRoleAffiliate && user.Role != constants.UserRoleBusiness {
		return nil, ErrWithdrawalRoleInvalid
	}

	amount := input.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrWalletInvalidAmount
	}
	if amount.LessThan(s.minAmount) {
		return nil, ErrWithdrawalBelowMinimum
	}
	bankName := strings.TrimSpace(input.BankName)
	accountNumber := strings.TrimSpace(input.AccountNumber)
	accountName := strings.TrimSpace(input.AccountName)
	if bankName == "" || accountName == "" || !isAccountNumber(accountNumber, s.accountNumberLength) {
		return nil, ErrWithdrawalInvalidBankDetails
	}

	account, err := s.wallet.GetAccount(input.UserID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInsufficientBalance
	}
	pending, err := s.withdrawalRepo.SumPendingByUser(input.UserID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(account.Balance.Decimal.Sub(pending)) {
		return nil, ErrInsufficientBalance
	}

	req := &models.WithdrawalRequest{
		UserID:        input.UserID,
		Amount:        models.NewMoneyFromDecimal(amount),
		Currency:      account.Currency,
		BankName:      bankName,
		AccountNumber: accountNumber,
		AccountName:   accountName,
		Status:        constants.WithdrawStatusPending,
	}
	if err := s.withdrawalRepo.Create(req); err != nil {
		return nil, err
	}
	metrics.RecordWithdrawal("request")
	logger.FromContext(ctx).Infow("withdrawal_requested", "withdrawal_id", req.ID, "user_id", input.UserID, "amount", req.Amount.String())
	return req, nil
}

// Approve 审核通过并扣减钱包余额，二者在同一事务内
func (s *WithdrawalService) Approve(ctx context.Context, adminID, id uint, notes string) (*models.WithdrawalRequest, error) {
	req, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if req.Status != constants.WithdrawStatusPending {
		return nil, ErrWithdrawalStatusInvalid
	}
	now := time.Now()
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		ok, err := s.withdrawalRepo.WithTx(tx).TransitionStatus(id, constants.WithdrawStatusPending, constants.WithdrawStatusApproved, map[string]interface{}{
			"notes":        strings.TrimSpace(notes),
			"processed_by": adminID,
			"approved_at":  now,
			"processed_at": now,
			"updated_at":   now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrWithdrawalStatusInvalid
		}
		_, err = s.wallet.Debit(ctx, tx, WalletDebitInput{
			UserID:      req.UserID,
			Amount:      req.Amount.Decimal,
			Type:        constants.WalletTxnTypeWithdrawal,
			Reference:   buildWithdrawalReference(id),
			Description: "withdrawal to " + req.BankName,
		})
		return err
	})
	if err != nil {
		logger.FromContext(ctx).Warnw("withdrawal_approve_failed", "withdrawal_id", id, "error", err)
		return nil, err
	}
	return s.finish(ctx, id, constants.WithdrawActionApprove, constants.NotificationTypeWithdrawalApproved, "Withdrawal approved")
}

// Reject 拒绝提现，钱包不变
func (s *WithdrawalService) Reject(ctx context.Context, adminID, id uint, notes string) (*models.WithdrawalRequest, error) {
	return s.transition(ctx, adminID, id, notes,
		constants.WithdrawStatusPending, constants.WithdrawStatusRejected,
		constants.WithdrawActionReject, constants.NotificationTypeWithdrawalRejected, "Withdrawal rejected")
}

// Complete 确认已打款
func (s *WithdrawalService) Complete(ctx context.Context, adminID, id uint, notes string) (*models.WithdrawalRequest, error) {
	return s.transition(ctx, adminID, id, notes,
		constants.WithdrawStatusApproved, constants.WithdrawStatusCompleted,
		constants.WithdrawActionComplete, constants.NotificationTypeWithdrawalComplete, "Withdrawal completed")
}

// List 管理端提现列表
func (s *WithdrawalService) List(filter repository.WithdrawalListFilter) ([]models.WithdrawalRequest, int64, error) {
	return s.withdrawalRepo.List(filter)
}

// ListMine 用户自己的提现记录
func (s *WithdrawalService) ListMine(userID uint, status string, page, pageSize int) ([]models.WithdrawalRequest, int64, error) {
	return s.withdrawalRepo.List(repository.WithdrawalListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   userID,
		Status:   strings.TrimSpace(status),
	})
}

func (s *WithdrawalService) transition(ctx context.Context, adminID, id uint, notes, from, to, action, notifyType, title string) (*models.WithdrawalRequest, error) {
	req, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if req.Status != from {
		return nil, ErrWithdrawalStatusInvalid
	}
	now := time.Now()
	updates := map[string]interface{}{
		"notes":        strings.TrimSpace(notes),
		"processed_by": adminID,
		"processed_at": now,
		"updated_at":   now,
	}
	if to == constants.WithdrawStatusCompleted {
		updates["completed_at"] = now
	}
	ok, err := s.withdrawalRepo.TransitionStatus(id, from, to, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWithdrawalStatusInvalid
	}
	return s.finish(ctx, id, action, notifyType, title)
}

func (s *WithdrawalService) finish(ctx context.Context, id uint, action, notifyType, title string) (*models.WithdrawalRequest, error) {
	req, err := s.load(id)
	if err != nil {
		return nil, err
	}
	metrics.RecordWithdrawal(action)
	logger.FromContext(ctx).Infow("withdrawal_"+action, "withdrawal_id", id, "user_id", req.UserID, "amount", req.Amount.String())
	s.notifier.Notify(ctx, NotifyInput{
		UserID: req.UserID,
		Type:   notifyType,
		Title:  title,
		Data: map[string]interface{}{
			"withdrawal_id": req.ID,
			"amount":        req.Amount.String(),
			"currency":      req.Currency,
			"status":        req.Status,
			"notes":         req.Notes,
		},
	})
	return req, nil
}

func (s *WithdrawalService) load(id uint) (*models.WithdrawalRequest, error) {
	req, err := s.withdrawalRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrWithdrawalNotFound
	}
	return req, nil
}

func isAccountNumber(value string, length int) bool {
	if len(value) != length {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
