package repository

import (
	"strings"

	"github.com/dujiao-next/affiliate-settlement/internal/models"

	"gorm.io/gorm"
)

// ReferralLinkRepository 推广链接数据访问接口
type ReferralLinkRepository interface {
	GetByID(id uint) (*models.ReferralLink, error)
	GetByCode(code string) (*models.ReferralLink, error)
	FindByAffiliateAndProduct(affiliateID, productID uint) (*models.ReferralLink, error)
	ListByIDs(ids []uint) ([]models.ReferralLink, error)
	Create(link *models.ReferralLink) error
	IncrementClick(id uint) error
	IncrementConversion(id uint) error
	List(filter ReferralLinkListFilter) ([]models.ReferralLink, int64, error)
	DeleteByIDs(ids []uint) (int64, error)
	WithTx(tx *gorm.DB) *GormReferralLinkRepository
}

// GormReferralLinkRepository GORM 实现
type GormReferralLinkRepository struct {
	db *gorm.DB
}

// NewReferralLinkRepository 创建推广链接仓库
func NewReferralLinkRepository(db *gorm.DB) *GormReferralLinkRepository {
	return &GormReferralLinkRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReferralLinkRepository) WithTx(tx *gorm.DB) *GormReferralLinkRepository {
	if tx == nil {
		return r
	}
	return &GormReferralLinkRepository{db: tx}
}

// GetByID 按 ID 获取推广链接
func (r *GormReferralLinkRepository) GetByID(id uint) (*models.ReferralLink, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.ReferralLink](r.db, id)
}

// GetByCode 按推广码获取推广链接
func (r *GormReferralLinkRepository) GetByCode(code string) (*models.ReferralLink, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	return firstOrNil[models.ReferralLink](r.db.Where("code = ?", code))
}

// FindByAffiliateAndProduct 获取推广者对某商品最早创建的链接
func (r *GormReferralLinkRepository) FindByAffiliateAndProduct(affiliateID, productID uint) (*models.ReferralLink, error) {
	if affiliateID == 0 || productID == 0 {
		return nil, nil
	}
	query := r.db.Where("affiliate_id = ? AND product_id = ?", affiliateID, productID).Order("id asc")
	return firstOrNil[models.ReferralLink](query)
}

// ListByIDs 批量获取推广链接
func (r *GormReferralLinkRepository) ListByIDs(ids []uint) ([]models.ReferralLink, error) {
	if len(ids) == 0 {
		return []models.ReferralLink{}, nil
	}
	var links []models.ReferralLink
	if err := r.db.Where("id IN ?", ids).Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// Create 创建推广链接
func (r *GormReferralLinkRepository) Create(link *models.ReferralLink) error {
	return r.db.Create(link).Error
}

// IncrementClick 点击数原子自增
func (r *GormReferralLinkRepository) IncrementClick(id uint) error {
	return r.db.Model(&models.ReferralLink{}).
		Where("id = ?", id).
		UpdateColumn("click_count", gorm.Expr("click_count + ?", 1)).Error
}

// IncrementConversion 成交数原子自增
func (r *GormReferralLinkRepository) IncrementConversion(id uint) error {
	result := r.db.Model(&models.ReferralLink{}).
		Where("id = ?", id).
		UpdateColumn("conversion_count", gorm.Expr("conversion_count + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List 分页查询推广链接
func (r *GormReferralLinkRepository) List(filter ReferralLinkListFilter) ([]models.ReferralLink, int64, error) {
	query := r.db.Model(&models.ReferralLink{})
	if filter.AffiliateID != 0 {
		query = query.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if filter.ProductID != 0 {
		query = query.Where("product_id = ?", filter.ProductID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var links []models.ReferralLink
	if err := query.Preload("Product").Order("id desc").Find(&links).Error; err != nil {
		return nil, 0, err
	}
	return links, total, nil
}

// DeleteByIDs 批量删除推广链接
func (r *GormReferralLinkRepository) DeleteByIDs(ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Where("id IN ?", ids).Delete(&models.ReferralLink{})
	return result.RowsAffected, result.Error
}
