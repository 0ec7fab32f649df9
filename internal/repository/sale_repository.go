package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/models"

	"gorm.io/gorm"
)

// SaleRepository 销售数据访问接口
type SaleRepository interface {
	Create(sale *models.Sale) error
	GetByID(id uint) (*models.Sale, error)
	GetByTransactionReference(txRef string) (*models.Sale, error)
	GetByTransactionReferenceWithRelations(txRef string) (*models.Sale, error)
	GetByIDWithRelations(id uint) (*models.Sale, error)
	HasTerminalSaleForBinding(bindingID string) (bool, error)
	MarkCompleted(id uint, completedAt time.Time) (bool, error)
	MarkCancelled(id uint, reason string, cancelledAt time.Time) (bool, error)
	MarkConversionCounted(id uint) (bool, error)
	ListStalePending(before time.Time, limit int) ([]models.Sale, error)
	ListIDsByReferralLinkIDs(linkIDs []uint) ([]uint, error)
	DeleteByIDs(ids []uint) error
	List(filter SaleListFilter) ([]models.Sale, int64, error)
	WithTx(tx *gorm.DB) *GormSaleRepository
}

// GormSaleRepository GORM 实现
type GormSaleRepository struct {
	db *gorm.DB
}

// NewSaleRepository 创建销售仓库
func NewSaleRepository(db *gorm.DB) *GormSaleRepository {
	return &GormSaleRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSaleRepository) WithTx(tx *gorm.DB) *GormSaleRepository {
	if tx == nil {
		return r
	}
	return &GormSaleRepository{db: tx}
}

// Create 创建销售
func (r *GormSaleRepository) Create(sale *models.Sale) error {
	return r.db.Create(sale).Error
}

// GetByID 按 ID 获取销售
func (r *GormSaleRepository) GetByID(id uint) (*models.Sale, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.Sale](r.db, id)
}

// GetByTransactionReference 按支付关联号获取销售
func (r *GormSaleRepository) GetByTransactionReference(txRef string) (*models.Sale, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, nil
	}
	return firstOrNil[models.Sale](r.db.Where("transaction_reference = ?", txRef))
}

// GetByTransactionReferenceWithRelations 按支付关联号获取销售并加载商品与推广链接
func (r *GormSaleRepository) GetByTransactionReferenceWithRelations(txRef string) (*models.Sale, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, nil
	}
	return firstOrNil[models.Sale](r.withRelations().Where("transaction_reference = ?", txRef))
}

// GetByIDWithRelations 按 ID 获取销售并加载商品与推广链接
func (r *GormSaleRepository) GetByIDWithRelations(id uint) (*models.Sale, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.Sale](r.withRelations(), id)
}

// withRelations 已下架（软删除）的商品仍需参与结算
func (r *GormSaleRepository) withRelations() *gorm.DB {
	return r.db.
		Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("ReferralLink")
}

// HasTerminalSaleForBinding 判断归因绑定是否已产生终态销售
func (r *GormSaleRepository) HasTerminalSaleForBinding(bindingID string) (bool, error) {
	bindingID = strings.TrimSpace(bindingID)
	if bindingID == "" {
		return false, nil
	}
	var count int64
	err := r.db.Model(&models.Sale{}).
		Where("binding_id = ? AND status IN ?", bindingID, []string{constants.SaleStatusCompleted, constants.SaleStatusCancelled}).
		Count(&count).Error
	return count > 0, err
}

// MarkCompleted 条件更新 pending -> completed，返回是否抢占成功
func (r *GormSaleRepository) MarkCompleted(id uint, completedAt time.Time) (bool, error) {
	result := r.db.Model(&models.Sale{}).
		Where("id = ? AND status = ?", id, constants.SaleStatusPending).
		Updates(map[string]interface{}{
			"status":       constants.SaleStatusCompleted,
			"completed_at": completedAt,
			"updated_at":   completedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkCancelled 条件更新 pending -> cancelled，返回是否抢占成功
func (r *GormSaleRepository) MarkCancelled(id uint, reason string, cancelledAt time.Time) (bool, error) {
	result := r.db.Model(&models.Sale{}).
		Where("id = ? AND status = ?", id, constants.SaleStatusPending).
		Updates(map[string]interface{}{
			"status":        constants.SaleStatusCancelled,
			"cancelled_at":  cancelledAt,
			"cancel_reason": strings.TrimSpace(reason),
			"updated_at":    cancelledAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkConversionCounted 条件标记成交已计数，保证成交数只累加一次
func (r *GormSaleRepository) MarkConversionCounted(id uint) (bool, error) {
	result := r.db.Model(&models.Sale{}).
		Where("id = ? AND status = ? AND conversion_counted = ?", id, constants.SaleStatusCompleted, false).
		Update("conversion_counted", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListStalePending 查询超时未支付的销售
func (r *GormSaleRepository) ListStalePending(before time.Time, limit int) ([]models.Sale, error) {
	if limit <= 0 {
		limit = 100
	}
	var sales []models.Sale
	err := r.db.Where("status = ? AND created_at < ?", constants.SaleStatusPending, before).
		Order("id asc").
		Limit(limit).
		Find(&sales).Error
	return sales, err
}

// ListIDsByReferralLinkIDs 查询推广链接下的全部销售ID
func (r *GormSaleRepository) ListIDsByReferralLinkIDs(linkIDs []uint) ([]uint, error) {
	if len(linkIDs) == 0 {
		return []uint{}, nil
	}
	var ids []uint
	err := r.db.Model(&models.Sale{}).Where("referral_link_id IN ?", linkIDs).Pluck("id", &ids).Error
	return ids, err
}

// DeleteByIDs 批量删除销售（仅限管理端清理）
func (r *GormSaleRepository) DeleteByIDs(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Where("id IN ?", ids).Delete(&models.Sale{}).Error
}

// List 分页查询销售
func (r *GormSaleRepository) List(filter SaleListFilter) ([]models.Sale, int64, error) {
	query := r.db.Model(&models.Sale{})
	if filter.Status != "" {
		query = query.Where("sales.status = ?", filter.Status)
	}
	if filter.ProductID != 0 {
		query = query.Where("sales.product_id = ?", filter.ProductID)
	}
	if filter.ReferralLinkID != 0 {
		query = query.Where("sales.referral_link_id = ?", filter.ReferralLinkID)
	}
	if filter.AffiliateID != 0 {
		query = query.Joins("JOIN referral_links ON referral_links.id = sales.referral_link_id").
			Where("referral_links.affiliate_id = ?", filter.AffiliateID)
	}
	if filter.BusinessID != 0 {
		query = query.Joins("JOIN products ON products.id = sales.product_id").
			Where("products.business_id = ?", filter.BusinessID)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		like := "%" + keyword + "%"
		op := caseInsensitiveLike(r.db)
		query = query.Where(fmt.Sprintf("(sales.transaction_reference %s ? OR sales.customer_email %s ?)", op, op), like, like)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("sales.created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("sales.created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var sales []models.Sale
	if err := query.Order("sales.id desc").Find(&sales).Error; err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}
