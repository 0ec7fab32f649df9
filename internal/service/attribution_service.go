package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"

	"gorm.io/gorm"
)

const referralCodeMaxAttempts = 5

// AttributionService 推广归因服务
type AttributionService struct {
	linkRepo       repository.ReferralLinkRepository
	productRepo    repository.ProductRepository
	userRepo       repository.UserRepository
	saleRepo       repository.SaleRepository
	paymentTxnRepo repository.PaymentTransactionRepository
	walletRepo     repository.WalletRepository
	reconcileRepo  repository.ReconciliationRepository
	signer         *ReferralBindingSigner
}

// ResolvedReferral 推广码解析结果
type ResolvedReferral struct {
	Link         *models.ReferralLink `json:"link"`
	Product      *models.Product      `json:"product"`
	Binding      *ReferralBinding     `json:"binding"`
	BindingToken string               `json:"binding_token"`
}

// PurgeResult 推广链接清理结果
type PurgeResult struct {
	Links              int64 `json:"links"`
	Sales              int   `json:"sales"`
	WalletTransactions int   `json:"wallet_transactions"`
}

// NewAttributionService 创建归因服务
func NewAttributionService(
	linkRepo repository.ReferralLinkRepository,
	productRepo repository.ProductRepository,
	userRepo repository.UserRepository,
	saleRepo repository.SaleRepository,
	paymentTxnRepo repository.PaymentTransactionRepository,
	walletRepo repository.WalletRepository,
	reconcileRepo repository.ReconciliationRepository,
	signer *ReferralBindingSigner,
) *AttributionService {
	return &AttributionService{
		linkRepo:       linkRepo,
		productRepo:    productRepo,
		userRepo:       userRepo,
		saleRepo:       saleRepo,
		paymentTxnRepo: paymentTxnRepo,
		walletRepo:     walletRepo,
		reconcileRepo:  reconcileRepo,
		signer:         signer,
	}
}

// ResolveCode 解析推广码：校验商品与商家，累加点击并签发归因绑定
func (s *AttributionService) ResolveCode(ctx context.Context, code string) (*ResolvedReferral, error) {
	code = normalizeReferralCode(code)
	if code == "" {
		return nil, ErrReferralNotFound
	}
	link, err := s.linkRepo.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrReferralNotFound
	}
	product, err := s.productRepo.GetByIDWithBusiness(link.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.IsActive {
		return nil, ErrReferralNotFound
	}
	if product.Business == nil || !product.Business.IsVerified {
		return nil, ErrUnverifiedBusiness
	}

	if err := s.linkRepo.IncrementClick(link.ID); err != nil {
		logger.FromContext(ctx).Warnw("referral_click_increment_failed", "link_id", link.ID, "error", err)
	} else {
		link.ClickCount++
	}

	binding, token, err := s.signer.Issue(link.Code, link.ID, link.AffiliateID, product.ID)
	if err != nil {
		return nil, err
	}
	return &ResolvedReferral{Link: link, Product: product, Binding: binding, BindingToken: token}, nil
}

// ValidateBinding 校验归因绑定：签名有效、未过期、未被终态销售消费且链接仍存在
func (s *AttributionService) ValidateBinding(ctx context.Context, token string) (*ReferralBinding, *models.ReferralLink, error) {
	binding, err := s.signer.Parse(token)
	if err != nil {
		return nil, nil, err
	}
	consumed, err := s.saleRepo.HasTerminalSaleForBinding(binding.ID)
	if err != nil {
		return nil, nil, err
	}
	if consumed {
		return nil, nil, ErrReferralBindingConsumed
	}
	link, err := s.linkRepo.GetByID(binding.LinkID)
	if err != nil {
		return nil, nil, err
	}
	if link == nil || link.ProductID != binding.ProductID || link.AffiliateID != binding.AffiliateID {
		logger.FromContext(ctx).Warnw("referral_binding_link_mismatch", "binding_id", binding.ID, "link_id", binding.LinkID)
		return nil, nil, ErrReferralBindingInvalid
	}
	return binding, link, nil
}

// CreateReferralLink 为推广者创建商品推广链接；同一 (推广者, 商品) 已存在时直接返回
func (s *AttributionService) CreateReferralLink(ctx context.Context, affiliateID, productID uint) (*models.ReferralLink, bool, error) {
	user, err := s.userRepo.GetByID(affiliateID)
	if err != nil {
		return nil, false, err
	}
	if user == nil {
		return nil, false, ErrUserNotFound
	}
	if user.Role != constants.UserRoleAffiliate {
		return nil, false, ErrAffiliateRequired
	}
	product, err := s.productRepo.GetByIDWithBusiness(productID)
	if err != nil {
		return nil, false, err
	}
	if product == nil || !product.IsActive {
		return nil, false, ErrProductNotFound
	}
	if product.Business == nil || !product.Business.IsVerified {
		return nil, false, ErrUnverifiedBusiness
	}

	existing, err := s.linkRepo.FindByAffiliateAndProduct(affiliateID, productID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	for attempt := 0; attempt < referralCodeMaxAttempts; attempt++ {
		code, err := generateReferralCode()
		if err != nil {
			return nil, false, err
		}
		link := &models.ReferralLink{
			ProductID:   productID,
			AffiliateID: affiliateID,
			Code:        code,
		}
		if err := s.linkRepo.Create(link); err != nil {
			if repository.IsUniqueViolation(err) {
				continue
			}
			return nil, false, err
		}
		logger.FromContext(ctx).Infow("referral_link_created", "link_id", link.ID, "affiliate_id", affiliateID, "product_id", productID)
		return link, true, nil
	}
	return nil, false, fmt.Errorf("generate referral code: exhausted %d attempts", referralCodeMaxAttempts)
}

// ListAffiliateLinks 推广者的链接列表
func (s *AttributionService) ListAffiliateLinks(affiliateID uint, page, pageSize int) ([]models.ReferralLink, int64, error) {
	return s.linkRepo.List(repository.ReferralLinkListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: affiliateID,
	})
}

// PurgeLinks 管理端批量清理推广链接，级联删除销售、支付流水、钱包流水与对账任务
// 任一钱包余额不足以冲销对应入账时返回 ErrPurgeWouldOverdraw，不删除任何数据
func (s *AttributionService) PurgeLinks(ctx context.Context, adminID uint, linkIDs []uint) (*PurgeResult, error) {
	ids := uniqueIDs(linkIDs)
	if len(ids) == 0 {
		return &PurgeResult{}, nil
	}
	result := &PurgeResult{}
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		saleRepo := s.saleRepo.WithTx(tx)
		walletRepo := s.walletRepo.WithTx(tx)

		saleIDs, err := saleRepo.ListIDsByReferralLinkIDs(ids)
		if err != nil {
			return err
		}
		result.Sales = len(saleIDs)
		if err := s.reconcileRepo.WithTx(tx).DeleteBySaleIDs(saleIDs); err != nil {
			return err
		}

		txns, err := walletRepo.ListTransactionsBySaleIDs(saleIDs)
		if err != nil {
			return err
		}
		txnIDs := make([]uint, 0, len(txns))
		for _, txn := range txns {
			if err := reverseWalletTransaction(walletRepo, txn); err != nil {
				return err
			}
			txnIDs = append(txnIDs, txn.ID)
		}
		if err := walletRepo.DeleteTransactionsByIDs(txnIDs); err != nil {
			return err
		}
		result.WalletTransactions = len(txnIDs)

		if err := s.paymentTxnRepo.WithTx(tx).DeleteBySaleIDs(saleIDs); err != nil {
			return err
		}
		if err := saleRepo.DeleteByIDs(saleIDs); err != nil {
			return err
		}
		deleted, err := s.linkRepo.WithTx(tx).DeleteByIDs(ids)
		if err != nil {
			return err
		}
		result.Links = deleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Warnw("referral_links_purged",
		"admin_id", adminID,
		"links", result.Links,
		"sales", result.Sales,
		"wallet_transactions", result.WalletTransactions,
	)
	return result, nil
}

// reverseWalletTransaction 冲销一条钱包流水，入账只在余额充足时扣回
func reverseWalletTransaction(walletRepo repository.WalletRepository, txn models.WalletTransaction) error {
	amount := txn.Amount.Decimal
	if !amount.IsPositive() {
		return walletRepo.IncrementBalance(txn.WalletID, amount.Neg())
	}
	ok, err := walletRepo.DecrementBalanceIfSufficient(txn.WalletID, amount)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: wallet %d cannot return %s", ErrPurgeWouldOverdraw, txn.WalletID, amount.StringFixed(2))
	}
	return nil
}

func normalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func generateReferralCode() (string, error) {
	alphabet := constants.ReferralCodeAlphabet
	size := big.NewInt(int64(len(alphabet)))
	var sb strings.Builder
	sb.Grow(constants.ReferralCodeLength)
	for i := 0; i < constants.ReferralCodeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	return sb.String(), nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	result := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
