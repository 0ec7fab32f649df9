package repository

import (
	"strings"

	"github.com/dujiao-next/affiliate-settlement/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepository 钱包数据访问接口
type WalletRepository interface {
	GetAccountByUserID(userID uint) (*models.WalletAccount, error)
	GetAccountByID(id uint) (*models.WalletAccount, error)
	EnsureAccount(userID uint, currency string) (*models.WalletAccount, error)
	IncrementBalance(accountID uint, delta decimal.Decimal) error
	DecrementBalanceIfSufficient(accountID uint, amount decimal.Decimal) (bool, error)
	CreateTransaction(txn *models.WalletTransaction) error
	GetTransactionBySale(walletID, saleID uint, txnType string) (*models.WalletTransaction, error)
	GetTransactionByReference(walletID uint, reference string) (*models.WalletTransaction, error)
	ListTransactions(filter WalletTransactionListFilter) ([]models.WalletTransaction, int64, error)
	ListTransactionsBySaleIDs(saleIDs []uint) ([]models.WalletTransaction, error)
	DeleteTransactionsByIDs(ids []uint) error
	SumTransactions(walletID uint) (decimal.Decimal, error)
	WithTx(tx *gorm.DB) *GormWalletRepository
}

// GormWalletRepository GORM 钱包仓储实现
type GormWalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository 创建钱包仓储
func NewWalletRepository(db *gorm.DB) *GormWalletRepository {
	return &GormWalletRepository{db: db}
}

// WithTx 绑定事务
func (r *GormWalletRepository) WithTx(tx *gorm.DB) *GormWalletRepository {
	if tx == nil {
		return r
	}
	return &GormWalletRepository{db: tx}
}

// GetAccountByUserID 按用户ID获取钱包账户
func (r *GormWalletRepository) GetAccountByUserID(userID uint) (*models.WalletAccount, error) {
	if userID == 0 {
		return nil, nil
	}
	return firstOrNil[models.WalletAccount](r.db.Where("user_id = ?", userID))
}

// GetAccountByID 按账户ID获取钱包账户
func (r *GormWalletRepository) GetAccountByID(id uint) (*models.WalletAccount, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.WalletAccount](r.db, id)
}

// EnsureAccount 获取或创建钱包账户（并发创建依赖 user_id 唯一索引兜底）
func (r *GormWalletRepository) EnsureAccount(userID uint, currency string) (*models.WalletAccount, error) {
	account, err := r.GetAccountByUserID(userID)
	if err != nil || account != nil {
		return account, err
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "NGN"
	}
	created := &models.WalletAccount{
		UserID:   userID,
		Balance:  models.NewMoneyFromDecimal(decimal.Zero),
		Currency: currency,
	}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(created).Error; err != nil {
		return nil, err
	}
	return r.GetAccountByUserID(userID)
}

// IncrementBalance 原子增加余额
func (r *GormWalletRepository) IncrementBalance(accountID uint, delta decimal.Decimal) error {
	result := r.db.Model(&models.WalletAccount{}).
		Where("id = ?", accountID).
		UpdateColumn("balance", gorm.Expr("balance + ?", delta.Round(2)))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DecrementBalanceIfSufficient 余额充足时原子扣减，返回是否扣减成功
func (r *GormWalletRepository) DecrementBalanceIfSufficient(accountID uint, amount decimal.Decimal) (bool, error) {
	amount = amount.Round(2)
	result := r.db.Model(&models.WalletAccount{}).
		Where("id = ? AND balance >= ?", accountID, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CreateTransaction 创建钱包流水
func (r *GormWalletRepository) CreateTransaction(txn *models.WalletTransaction) error {
	return r.db.Create(txn).Error
}

// GetTransactionBySale 按 (钱包, 销售, 类型) 获取流水
func (r *GormWalletRepository) GetTransactionBySale(walletID, saleID uint, txnType string) (*models.WalletTransaction, error) {
	if walletID == 0 || saleID == 0 {
		return nil, nil
	}
	return firstOrNil[models.WalletTransaction](r.db.Where("wallet_id = ? AND sale_id = ? AND transaction_type = ?", walletID, saleID, txnType))
}

// GetTransactionByReference 按参考号获取流水
func (r *GormWalletRepository) GetTransactionByReference(walletID uint, reference string) (*models.WalletTransaction, error) {
	reference = strings.TrimSpace(reference)
	if walletID == 0 || reference == "" {
		return nil, nil
	}
	return firstOrNil[models.WalletTransaction](r.db.Where("wallet_id = ? AND reference = ?", walletID, reference))
}

// ListTransactions 分页查询钱包流水
func (r *GormWalletRepository) ListTransactions(filter WalletTransactionListFilter) ([]models.WalletTransaction, int64, error) {
	query := r.db.Model(&models.WalletTransaction{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.SaleID != 0 {
		query = query.Where("sale_id = ?", filter.SaleID)
	}
	if filter.Type != "" {
		query = query.Where("transaction_type = ?", filter.Type)
	}
	if filter.Direction != "" {
		query = query.Where("direction = ?", filter.Direction)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var txns []models.WalletTransaction
	if err := query.Order("id desc").Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// ListTransactionsBySaleIDs 查询销售关联的全部钱包流水
func (r *GormWalletRepository) ListTransactionsBySaleIDs(saleIDs []uint) ([]models.WalletTransaction, error) {
	if len(saleIDs) == 0 {
		return []models.WalletTransaction{}, nil
	}
	var txns []models.WalletTransaction
	if err := r.db.Where("sale_id IN ?", saleIDs).Order("id asc").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// DeleteTransactionsByIDs 删除钱包流水（仅限管理端清理，调用方负责回滚余额）
func (r *GormWalletRepository) DeleteTransactionsByIDs(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Where("id IN ?", ids).Delete(&models.WalletTransaction{}).Error
}

// SumTransactions 汇总钱包全部流水金额
func (r *GormWalletRepository) SumTransactions(walletID uint) (decimal.Decimal, error) {
	var raw decimal.NullDecimal
	if err := r.db.Model(&models.WalletTransaction{}).
		Select("SUM(amount)").
		Where("wallet_id = ?", walletID).
		Row().Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	if !raw.Valid {
		return decimal.Zero, nil
	}
	return raw.Decimal.Round(2), nil
}
