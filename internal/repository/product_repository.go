package repository

import (
	"github.com/dujiao-next/affiliate-settlement/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductRepository 商品数据访问接口
type ProductRepository interface {
	GetByID(id uint) (*models.Product, error)
	GetByIDWithBusiness(id uint) (*models.Product, error)
	Create(product *models.Product) error
	UpdateCommissionRate(id uint, rate decimal.Decimal) error
	WithTx(tx *gorm.DB) *GormProductRepository
}

// GormProductRepository GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓库
func NewProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProductRepository) WithTx(tx *gorm.DB) *GormProductRepository {
	if tx == nil {
		return r
	}
	return &GormProductRepository{db: tx}
}

// GetByID 获取商品
func (r *GormProductRepository) GetByID(id uint) (*models.Product, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.Product](r.db, id)
}

// GetByIDWithBusiness 获取商品并预加载商家资料
func (r *GormProductRepository) GetByIDWithBusiness(id uint) (*models.Product, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.Product](r.db.Preload("Business"), id)
}

// Create 创建商品
func (r *GormProductRepository) Create(product *models.Product) error {
	return r.db.Create(product).Error
}

// UpdateCommissionRate 更新佣金比例（不影响已创建的销售快照）
func (r *GormProductRepository) UpdateCommissionRate(id uint, rate decimal.Decimal) error {
	return r.db.Model(&models.Product{}).Where("id = ?", id).Update("commission_rate", rate).Error
}
