package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/queue"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const cancelReasonCheckoutUnavailable = "checkout_unavailable"

// SaleService 待支付销售服务
type SaleService struct {
	saleRepo       repository.SaleRepository
	productRepo    repository.ProductRepository
	paymentTxnRepo repository.PaymentTransactionRepository
	attribution    *AttributionService
	gateway        *GatewayService
	queueClient    *queue.Client
	pendingTTL     time.Duration
}

// CreatePendingSaleInput 创建待支付销售输入
type CreatePendingSaleInput struct {
	BindingToken  string
	ProductID     uint
	Amount        *decimal.Decimal
	CustomerEmail string
	CustomerName  string
	RedirectURL   string
}

// PendingSaleResult 待支付销售结果
type PendingSaleResult struct {
	Sale         *models.Sale `json:"sale"`
	TxRef        string       `json:"tx_ref"`
	CheckoutLink string       `json:"checkout_link,omitempty"`
	PublicKey    string       `json:"public_key,omitempty"`
}

// NewSaleService 创建销售服务
func NewSaleService(
	saleRepo repository.SaleRepository,
	productRepo repository.ProductRepository,
	paymentTxnRepo repository.PaymentTransactionRepository,
	attribution *AttributionService,
	gateway *GatewayService,
	queueClient *queue.Client,
	pendingTTL time.Duration,
) *SaleService {
	return &SaleService{
		saleRepo:       saleRepo,
		productRepo:    productRepo,
		paymentTxnRepo: paymentTxnRepo,
		attribution:    attribution,
		gateway:        gateway,
		queueClient:    queueClient,
		pendingTTL:     pendingTTL,
	}
}

// CreatePendingSale 根据归因绑定创建待支付销售，并快照当时的佣金比例
func (s *SaleService) CreatePendingSale(ctx context.Context, input CreatePendingSaleInput) (*PendingSaleResult, error) {
	if strings.TrimSpace(input.BindingToken) == "" {
		return nil, ErrMissingAttribution
	}
	binding, link, err := s.attribution.ValidateBinding(ctx, input.BindingToken)
	if err != nil {
		return nil, err
	}
	if input.ProductID != 0 && binding.ProductID != input.ProductID {
		return nil, ErrMissingAttribution
	}
	email := strings.TrimSpace(input.CustomerEmail)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, ErrSaleInvalid
		}
	}

	product, err := s.productRepo.GetByIDWithBusiness(binding.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.IsActive {
		return nil, ErrProductNotFound
	}
	if product.Business == nil || !product.Business.IsVerified {
		return nil, ErrUnverifiedBusiness
	}

	// 成交金额以商品标价为准，买家提交的金额只用于核对
	amount := product.Price.Decimal.Round(2)
	if !amount.IsPositive() {
		return nil, ErrSaleInvalid
	}
	if input.Amount != nil && !input.Amount.Round(2).Equal(amount) {
		return nil, ErrSaleAmountMismatch
	}

	rate := product.CommissionRate
	sale := &models.Sale{
		ProductID:            product.ID,
		ReferralLinkID:       link.ID,
		Amount:               models.NewMoneyFromDecimal(amount),
		CommissionRate:       rate,
		CommissionAmount:     models.NewMoneyFromDecimal(CalculateCommission(amount, rate)),
		Currency:             product.Currency,
		Status:               constants.SaleStatusPending,
		TransactionReference: generateTxRef(),
		BindingID:            binding.ID,
		CustomerEmail:        email,
		CustomerName:         strings.TrimSpace(input.CustomerName),
	}
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		return s.saleRepo.WithTx(tx).Create(sale)
	})
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With("sale_id", sale.ID, "tx_ref", sale.TransactionReference)
	saleID := sale.ID
	shadow := &models.PaymentTransaction{
		SaleID:               &saleID,
		TransactionReference: sale.TransactionReference,
		Provider:             constants.PaymentProviderFlutterwave,
		Amount:               sale.Amount,
		Currency:             sale.Currency,
		CustomerEmail:        sale.CustomerEmail,
		CustomerName:         sale.CustomerName,
		Status:               constants.PaymentTxnStatusPending,
	}
	if err := s.paymentTxnRepo.Create(shadow); err != nil {
		log.Warnw("pending_sale_shadow_insert_failed", "error", err)
	}
	if err := s.queueClient.EnqueueSaleExpireCheck(queue.SaleExpireCheckPayload{SaleID: sale.ID}, s.pendingTTL); err != nil {
		log.Warnw("sale_expire_check_enqueue_failed", "error", err)
	}
	log.Infow("pending_sale_created",
		"product_id", product.ID,
		"referral_link_id", link.ID,
		"amount", sale.Amount.String(),
		"commission", sale.CommissionAmount.String(),
	)
	sale.Product = product
	return &PendingSaleResult{Sale: sale, TxRef: sale.TransactionReference}, nil
}

// Checkout 创建待支付销售并初始化托管收银台；收银台不可用时取消该销售
// 托管收银台要求客户邮箱，因此邮箱在这里而不是在 CreatePendingSale 中强制
func (s *SaleService) Checkout(ctx context.Context, input CreatePendingSaleInput) (*PendingSaleResult, error) {
	if strings.TrimSpace(input.CustomerEmail) == "" {
		return nil, ErrCustomerEmailRequired
	}
	result, err := s.CreatePendingSale(ctx, input)
	if err != nil {
		return nil, err
	}
	sale := result.Sale
	checkout, err := s.gateway.InitializeCheckout(ctx, sale, sale.Product, input.RedirectURL)
	if err != nil {
		log := logger.FromContext(ctx).With("sale_id", sale.ID, "tx_ref", sale.TransactionReference)
		log.Warnw("checkout_initialize_failed", "error", err)
		now := time.Now()
		if _, cancelErr := s.saleRepo.MarkCancelled(sale.ID, cancelReasonCheckoutUnavailable, now); cancelErr != nil {
			log.Errorw("checkout_cancel_failed", "error", cancelErr)
		}
		if markErr := s.paymentTxnRepo.MarkFailed(sale.TransactionReference, now); markErr != nil {
			log.Warnw("checkout_shadow_mark_failed", "error", markErr)
		}
		if errors.Is(err, ErrCheckoutUnavailable) {
			return nil, err
		}
		return nil, ErrCheckoutUnavailable
	}
	result.CheckoutLink = checkout.Link
	result.PublicKey = s.gateway.PublicKey()
	return result, nil
}

// GetSaleByReference 按 tx_ref 查询销售
func (s *SaleService) GetSaleByReference(txRef string) (*models.Sale, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, ErrSaleNotFound
	}
	sale, err := s.saleRepo.GetByTransactionReferenceWithRelations(txRef)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, ErrSaleNotFound
	}
	return sale, nil
}

// ListSales 销售列表
func (s *SaleService) ListSales(filter repository.SaleListFilter) ([]models.Sale, int64, error) {
	return s.saleRepo.List(filter)
}

func generateTxRef() string {
	return constants.TxRefPrefix + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
