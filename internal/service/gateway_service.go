package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/payment/flutterwave"
)

// GatewayService 支付网关适配（私钥只在服务端使用）
type GatewayService struct {
	cfg           *flutterwave.Config
	checkoutTitle string
	checkoutLogo  string
}

// NewGatewayService 创建网关服务
func NewGatewayService(cfg config.FlutterwaveConfig) *GatewayService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &GatewayService{
		cfg: &flutterwave.Config{
			PublicKey:   strings.TrimSpace(cfg.PublicKey),
			SecretKey:   strings.TrimSpace(cfg.SecretKey),
			SecretHash:  strings.TrimSpace(cfg.SecretHash),
			BaseURL:     strings.TrimSpace(cfg.BaseURL),
			RedirectURL: strings.TrimSpace(cfg.RedirectURL),
			Currency:    strings.TrimSpace(cfg.Currency),
			Timeout:     timeout,
		},
		checkoutTitle: strings.TrimSpace(cfg.CheckoutTitle),
		checkoutLogo:  strings.TrimSpace(cfg.CheckoutLogo),
	}
}

// PublicKey 可下发给前端的公钥
func (s *GatewayService) PublicKey() string {
	return s.cfg.PublicKey
}

// InitializeCheckout 为待支付销售创建托管收银台
func (s *GatewayService) InitializeCheckout(ctx context.Context, sale *models.Sale, product *models.Product, redirectURL string) (*flutterwave.CheckoutResult, error) {
	if sale == nil {
		return nil, ErrSaleInvalid
	}
	title := s.checkoutTitle
	description := ""
	if product != nil {
		description = product.Name
		if title == "" {
			title = product.Name
		}
	}
	result, err := flutterwave.InitializeCheckout(ctx, s.cfg, flutterwave.CheckoutInput{
		Amount:      sale.Amount.Decimal,
		Currency:    sale.Currency,
		TxRef:       sale.TransactionReference,
		RedirectURL: redirectURL,
		Customer: flutterwave.Customer{
			Email: sale.CustomerEmail,
			Name:  sale.CustomerName,
		},
		Customizations: flutterwave.Customizations{
			Title:       title,
			Description: description,
			Logo:        s.checkoutLogo,
		},
		Meta: map[string]string{"sale_id": fmt.Sprintf("%d", sale.ID)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	return result, nil
}

// VerifyTransaction 服务端校验交易
func (s *GatewayService) VerifyTransaction(ctx context.Context, transactionID, txRef string) (*flutterwave.VerificationResult, error) {
	result, err := flutterwave.VerifyTransaction(ctx, s.cfg, transactionID, txRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return result, nil
}

// VerifyByReference 按 tx_ref 查询交易；网关无记录时返回 flutterwave.ErrTransactionNotFound
func (s *GatewayService) VerifyByReference(ctx context.Context, txRef string) (*flutterwave.VerificationResult, error) {
	result, err := flutterwave.VerifyByReference(ctx, s.cfg, txRef)
	if err != nil {
		if errors.Is(err, flutterwave.ErrTransactionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return result, nil
}

// ParseWebhook 校验并解析 Webhook
func (s *GatewayService) ParseWebhook(headers map[string]string, body []byte) (*flutterwave.WebhookResult, error) {
	result, err := flutterwave.VerifyAndParseWebhook(s.cfg, headers, body)
	if err != nil {
		if errors.Is(err, flutterwave.ErrSignatureInvalid) || errors.Is(err, flutterwave.ErrConfigInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrWebhookSignatureInvalid, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return result, nil
}

// ParseCallback 解析收银台跳转回调
func (s *GatewayService) ParseCallback(query map[string]string) (*flutterwave.CallbackResult, error) {
	result, err := flutterwave.ParseCheckoutCallback(query)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, flutterwave.ErrCallbackCancelled):
		return result, ErrPaymentCancelled
	default:
		return result, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
}
