package repository

import (
	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WithdrawalRepository 提现申请数据访问接口
type WithdrawalRepository interface {
	Create(req *models.WithdrawalRequest) error
	GetByID(id uint) (*models.WithdrawalRequest, error)
	TransitionStatus(id uint, from, to string, updates map[string]interface{}) (bool, error)
	SumPendingByUser(userID uint) (decimal.Decimal, error)
	List(filter WithdrawalListFilter) ([]models.WithdrawalRequest, int64, error)
	WithTx(tx *gorm.DB) *GormWithdrawalRepository
}

// GormWithdrawalRepository GORM 实现
type GormWithdrawalRepository struct {
	db *gorm.DB
}

// NewWithdrawalRepository 创建提现仓库
func NewWithdrawalRepository(db *gorm.DB) *GormWithdrawalRepository {
	return &GormWithdrawalRepository{db: db}
}

// WithTx 绑定事务
func (r *GormWithdrawalRepository) WithTx(tx *gorm.DB) *GormWithdrawalRepository {
	if tx == nil {
		return r
	}
	return &GormWithdrawalRepository{db: tx}
}

// Create 创建提现申请
func (r *GormWithdrawalRepository) Create(req *models.WithdrawalRequest) error {
	return r.db.Create(req).Error
}

// GetByID 获取提现申请
func (r *GormWithdrawalRepository) GetByID(id uint) (*models.WithdrawalRequest, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.WithdrawalRequest](r.db, id)
}

// TransitionStatus 条件更新状态 from -> to，返回是否更新成功
func (r *GormWithdrawalRepository) TransitionStatus(id uint, from, to string, updates map[string]interface{}) (bool, error) {
	values := map[string]interface{}{"status": to}
	for key, value := range updates {
		values[key] = value
	}
	result := r.db.Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SumPendingByUser 汇总用户待审核提现金额
func (r *GormWithdrawalRepository) SumPendingByUser(userID uint) (decimal.Decimal, error) {
	var raw decimal.NullDecimal
	if err := r.db.Model(&models.WithdrawalRequest{}).
		Select("SUM(amount)").
		Where("user_id = ? AND status = ?", userID, constants.WithdrawStatusPending).
		Row().Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	if !raw.Valid {
		return decimal.Zero, nil
	}
	return raw.Decimal.Round(2), nil
}

// List 分页查询提现申请
func (r *GormWithdrawalRepository) List(filter WithdrawalListFilter) ([]models.WithdrawalRequest, int64, error) {
	query := r.db.Model(&models.WithdrawalRequest{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var items []models.WithdrawalRequest
	if err := query.Preload("User").Order("id desc").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
