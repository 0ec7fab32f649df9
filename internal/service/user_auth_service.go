package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/cache"
	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUserTokenInvalid 用户令牌无效
	ErrUserTokenInvalid = errors.New("user token invalid")
	// ErrUserDisabled 用户已禁用
	ErrUserDisabled = errors.New("user disabled")
)

// UserAuthService 用户令牌校验（令牌由外部认证服务签发，本服务只校验并加载资料）
type UserAuthService struct {
	cfg      config.JWTConfig
	userRepo repository.UserRepository
}

// NewUserAuthService 创建用户认证服务
func NewUserAuthService(cfg config.JWTConfig, userRepo repository.UserRepository) *UserAuthService {
	return &UserAuthService{cfg: cfg, userRepo: userRepo}
}

// UserJWTClaims 用户 JWT 声明
type UserJWTClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateUserJWT 生成用户 JWT Token（联调与测试使用）
func (s *UserAuthService) GenerateUserJWT(user *models.User, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := UserJWTClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    strings.TrimSpace(s.cfg.Issuer),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseUserJWT 解析用户 JWT Token
func (s *UserAuthService) ParseUserJWT(tokenString string) (*UserJWTClaims, error) {
	if strings.TrimSpace(s.cfg.SecretKey) == "" {
		return nil, ErrUserTokenInvalid
	}
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer := strings.TrimSpace(s.cfg.Issuer); issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(options...)
	claims := &UserJWTClaims{}
	token, err := parser.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.SecretKey), nil
	})
	if err != nil || !token.Valid || claims.UserID == 0 {
		return nil, ErrUserTokenInvalid
	}
	return claims, nil
}

// LoadProfile 加载用户资料快照，优先读缓存
func (s *UserAuthService) LoadProfile(ctx context.Context, userID uint) (*cache.UserProfileState, error) {
	if cached, hit, err := cache.GetUserProfileState(ctx, userID); err == nil && hit && cached != nil {
		if !isActiveUserStatus(cached.Status) {
			return nil, ErrUserDisabled
		}
		return cached, nil
	} else if err != nil {
		logger.FromContext(ctx).Debugw("user_profile_cache_read_failed", "user_id", userID, "error", err)
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserTokenInvalid
	}
	state := cache.BuildUserProfileState(user)
	_ = cache.SetUserProfileState(ctx, state)
	if !isActiveUserStatus(user.Status) {
		return nil, ErrUserDisabled
	}
	return state, nil
}

// Authenticate 校验令牌并加载资料
func (s *UserAuthService) Authenticate(ctx context.Context, tokenString string) (*UserJWTClaims, *cache.UserProfileState, error) {
	claims, err := s.ParseUserJWT(tokenString)
	if err != nil {
		return nil, nil, err
	}
	profile, err := s.LoadProfile(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return claims, profile, nil
}

func isActiveUserStatus(status string) bool {
	status = strings.ToLower(strings.TrimSpace(status))
	return status == "" || status == constants.UserStatusActive
}
