package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const referralBindingIssuer = "affiliate-settlement/referral"

// ReferralBinding 请求级归因绑定（替代客户端存储）
type ReferralBinding struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	LinkID      uint      `json:"link_id"`
	AffiliateID uint      `json:"affiliate_id"`
	ProductID   uint      `json:"product_id"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type referralBindingClaims struct {
	Code        string `json:"code"`
	LinkID      uint   `json:"link_id"`
	AffiliateID uint   `json:"affiliate_id"`
	ProductID   uint   `json:"product_id"`
	jwt.RegisteredClaims
}

// ReferralBindingSigner 归因绑定签发与校验
type ReferralBindingSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewReferralBindingSigner 创建归因绑定签名器
func NewReferralBindingSigner(secret string, ttl time.Duration) *ReferralBindingSigner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ReferralBindingSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue 为推广链接签发新的绑定
func (s *ReferralBindingSigner) Issue(code string, linkID, affiliateID, productID uint) (*ReferralBinding, string, error) {
	now := s.now()
	binding := &ReferralBinding{
		ID:          uuid.NewString(),
		Code:        code,
		LinkID:      linkID,
		AffiliateID: affiliateID,
		ProductID:   productID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}
	claims := referralBindingClaims{
		Code:        binding.Code,
		LinkID:      binding.LinkID,
		AffiliateID: binding.AffiliateID,
		ProductID:   binding.ProductID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        binding.ID,
			Issuer:    referralBindingIssuer,
			IssuedAt:  jwt.NewNumericDate(binding.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(binding.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, "", fmt.Errorf("sign referral binding: %w", err)
	}
	return binding, token, nil
}

// Parse 校验并解析绑定令牌
func (s *ReferralBindingSigner) Parse(token string) (*ReferralBinding, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingAttribution
	}
	claims := &referralBindingClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(referralBindingIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: expired", ErrReferralBindingInvalid)
		}
		return nil, fmt.Errorf("%w: %v", ErrReferralBindingInvalid, err)
	}
	if !parsed.Valid || claims.ID == "" || claims.LinkID == 0 || claims.ProductID == 0 {
		return nil, ErrReferralBindingInvalid
	}
	binding := &ReferralBinding{
		ID:          claims.ID,
		Code:        claims.Code,
		LinkID:      claims.LinkID,
		AffiliateID: claims.AffiliateID,
		ProductID:   claims.ProductID,
	}
	if claims.IssuedAt != nil {
		binding.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		binding.ExpiresAt = claims.ExpiresAt.Time
	}
	return binding, nil
}
