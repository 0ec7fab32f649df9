package service

import (
	"context"
	"strings"

	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"

	"github.com/shopspring/decimal"
)

// ProductService 商品服务
type ProductService struct {
	productRepo repository.ProductRepository
	userRepo    repository.UserRepository
}

// CreateProductInput 创建商品输入
type CreateProductInput struct {
	BusinessID     uint
	Name           string
	Description    string
	Price          decimal.Decimal
	Currency       string
	CommissionRate decimal.Decimal
}

// NewProductService 创建商品服务
func NewProductService(productRepo repository.ProductRepository, userRepo repository.UserRepository) *ProductService {
	return &ProductService{productRepo: productRepo, userRepo: userRepo}
}

// GetProduct 获取商品
func (s *ProductService) GetProduct(id uint) (*models.Product, error) {
	product, err := s.productRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// CreateProduct 商家创建商品
func (s *ProductService) CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	if _, err := s.requireBusiness(input.BusinessID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || !input.Price.IsPositive() {
		return nil, ErrProductInvalid
	}
	if err := validateCommissionRate(input.CommissionRate); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = constants.DefaultCurrency
	}
	product := &models.Product{
		BusinessID:     input.BusinessID,
		Name:           name,
		Description:    strings.TrimSpace(input.Description),
		Price:          models.NewMoneyFromDecimal(input.Price),
		Currency:       currency,
		CommissionRate: input.CommissionRate.Round(2),
		IsActive:       true,
	}
	if err := s.productRepo.Create(product); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Infow("product_created", "product_id", product.ID, "business_id", input.BusinessID)
	return product, nil
}

// UpdateCommissionRate 更新佣金比例，只影响之后创建的销售
func (s *ProductService) UpdateCommissionRate(ctx context.Context, businessID, productID uint, rate decimal.Decimal) (*models.Product, error) {
	if err := validateCommissionRate(rate); err != nil {
		return nil, err
	}
	product, err := s.productRepo.GetByID(productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if product.BusinessID != businessID {
		return nil, ErrProductForbidden
	}
	rate = rate.Round(2)
	if err := s.productRepo.UpdateCommissionRate(productID, rate); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Infow("product_commission_rate_updated",
		"product_id", productID,
		"from", product.CommissionRate.String(),
		"to", rate.String(),
	)
	product.CommissionRate = rate
	return product, nil
}

func (s *ProductService) requireBusiness(userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Role != constants.UserRoleBusiness {
		return nil, ErrBusinessRequired
	}
	return user, nil
}

func validateCommissionRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return ErrCommissionRateInvalid
	}
	return nil
}
