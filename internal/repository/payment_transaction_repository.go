package repository

import (
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/models"

	"gorm.io/gorm"
)

// PaymentTransactionRepository 支付流水数据访问接口
type PaymentTransactionRepository interface {
	Create(txn *models.PaymentTransaction) error
	Save(txn *models.PaymentTransaction) error
	GetByTransactionReference(txRef string) (*models.PaymentTransaction, error)
	MarkFailed(txRef string, at time.Time) error
	DeleteBySaleIDs(saleIDs []uint) error
	WithTx(tx *gorm.DB) *GormPaymentTransactionRepository
}

// GormPaymentTransactionRepository GORM 实现
type GormPaymentTransactionRepository struct {
	db *gorm.DB
}

// NewPaymentTransactionRepository 创建支付流水仓库
func NewPaymentTransactionRepository(db *gorm.DB) *GormPaymentTransactionRepository {
	return &GormPaymentTransactionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentTransactionRepository) WithTx(tx *gorm.DB) *GormPaymentTransactionRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentTransactionRepository{db: tx}
}

// Create 创建支付流水
func (r *GormPaymentTransactionRepository) Create(txn *models.PaymentTransaction) error {
	return r.db.Create(txn).Error
}

// Save 保存支付流水
func (r *GormPaymentTransactionRepository) Save(txn *models.PaymentTransaction) error {
	return r.db.Save(txn).Error
}

// GetByTransactionReference 按支付关联号获取流水
func (r *GormPaymentTransactionRepository) GetByTransactionReference(txRef string) (*models.PaymentTransaction, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, nil
	}
	return firstOrNil[models.PaymentTransaction](r.db.Where("transaction_reference = ?", txRef))
}

// MarkFailed 将待支付流水标记为失败
func (r *GormPaymentTransactionRepository) MarkFailed(txRef string, at time.Time) error {
	return r.db.Model(&models.PaymentTransaction{}).
		Where("transaction_reference = ? AND status = ?", strings.TrimSpace(txRef), constants.PaymentTxnStatusPending).
		Updates(map[string]interface{}{
			"status":     constants.PaymentTxnStatusFailed,
			"updated_at": at,
		}).Error
}

// DeleteBySaleIDs 删除销售关联的支付流水
func (r *GormPaymentTransactionRepository) DeleteBySaleIDs(saleIDs []uint) error {
	if len(saleIDs) == 0 {
		return nil
	}
	return r.db.Where("sale_id IN ?", saleIDs).Delete(&models.PaymentTransaction{}).Error
}
