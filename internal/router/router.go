package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dujiao-next/affiliate-settlement/internal/authz"
	"github.com/dujiao-next/affiliate-settlement/internal/cache"
	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	adminhandlers "github.com/dujiao-next/affiliate-settlement/internal/http/handlers/admin"
	publichandlers "github.com/dujiao-next/affiliate-settlement/internal/http/handlers/public"
	"github.com/dujiao-next/affiliate-settlement/internal/http/response"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/metrics"
	"github.com/dujiao-next/affiliate-settlement/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = constants.RedisPrefixDefault
	}
	redisClient := cache.Client()
	resolveRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:resolve", redisPrefix),
		WindowSeconds: cfg.Security.ResolveRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.ResolveRateLimit.MaxRequests,
		Message:       "too many referral lookups, retry in %d seconds",
	}
	verifyRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:verify", redisPrefix),
		WindowSeconds: cfg.Security.VerifyRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.VerifyRateLimit.MaxRequests,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))
	if cfg.Metrics.Enabled {
		r.Use(metrics.GinMiddleware())
	}

	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.GET("/config", publicHandler.GetPublicConfig)
			public.GET("/referrals/:code", RateLimitMiddleware(redisClient, resolveRule, KeyByIP), publicHandler.ResolveReferral)
			public.POST("/sales", publicHandler.CreateSale)
			public.GET("/sales/:tx_ref", publicHandler.GetSale)
		}

		// 支付确认（客户端确认 / 回跳 / Webhook）
		payments := apiV1.Group("/payments")
		{
			payments.POST("/verify", RateLimitMiddleware(redisClient, verifyRule, KeyByIPAndJSONField("tx_ref")), publicHandler.VerifyPayment)
			payments.GET("/flutterwave/callback", publicHandler.FlutterwaveCallback)
			payments.POST("/webhook/flutterwave", publicHandler.FlutterwaveWebhook)
		}

		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(c.UserAuthService))
		{
			user.POST("/referral-links", RequireRoleMiddleware(constants.UserRoleAffiliate), publicHandler.CreateReferralLink)
			user.GET("/referral-links", RequireRoleMiddleware(constants.UserRoleAffiliate), publicHandler.ListReferralLinks)
			user.POST("/products", RequireRoleMiddleware(constants.UserRoleBusiness), publicHandler.CreateProduct)
			user.PATCH("/products/:id/commission-rate", RequireRoleMiddleware(constants.UserRoleBusiness), publicHandler.UpdateCommissionRate)
			user.GET("/wallet", publicHandler.GetMyWallet)
			user.GET("/wallet/transactions", publicHandler.GetMyWalletTransactions)
			user.POST("/withdrawals", RequireRoleMiddleware(constants.UserRoleAffiliate, constants.UserRoleBusiness), publicHandler.ApplyWithdrawal)
			user.GET("/withdrawals", publicHandler.ListMyWithdrawals)
			user.GET("/notifications", publicHandler.ListMyNotifications)
		}

		// 管理端接口（admin 角色 + RBAC）
		admin := apiV1.Group("/admin")
		admin.Use(UserJWTAuthMiddleware(c.UserAuthService), AdminRBACMiddleware(c.AuthzService))
		{
			// 提现审核
			admin.GET("/withdrawals", adminHandler.ListWithdrawals)
			admin.POST("/withdrawals/:id/approve", adminHandler.ApproveWithdrawal)
			admin.POST("/withdrawals/:id/reject", adminHandler.RejectWithdrawal)
			admin.POST("/withdrawals/:id/complete", adminHandler.CompleteWithdrawal)

			// 结算对账
			admin.GET("/reconciliation-tasks", adminHandler.ListReconciliationTasks)
			admin.POST("/reconciliation-tasks/:id/retry", adminHandler.RetryReconciliationTask)
			admin.GET("/sales", adminHandler.ListSales)
			admin.POST("/sales/:id/cancel", adminHandler.CancelSale)
			admin.POST("/referral-links/purge", adminHandler.PurgeReferralLinks)
			admin.GET("/wallets/:user_id/audit", adminHandler.AuditWallet)

			// 权限
			admin.GET("/authz/roles", adminHandler.ListRoles)
			admin.GET("/authz/admins/:id/roles", adminHandler.GetAdminRoles)
			admin.PUT("/authz/admins/:id/roles", adminHandler.SetAdminRoles)
			admin.GET("/authz/audit-logs", adminHandler.ListAuthzAuditLogs)
			admin.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
				response.Success(ctx, buildAdminPermissionCatalog(r))
			})
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		path := strings.TrimSpace(cfg.Metrics.Path)
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, metrics.Handler())
	}

	return r
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func deriveAdminPermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	if segments[1] == "authz" {
		return "authz"
	}
	return segments[1]
}
