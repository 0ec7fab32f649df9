package provider

import (
	"github.com/dujiao-next/affiliate-settlement/internal/authz"
	"github.com/dujiao-next/affiliate-settlement/internal/cache"
	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/queue"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"
	"github.com/dujiao-next/affiliate-settlement/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	UserRepo         repository.UserRepository
	ProductRepo      repository.ProductRepository
	ReferralLinkRepo repository.ReferralLinkRepository
	SaleRepo         repository.SaleRepository
	PaymentTxnRepo   repository.PaymentTransactionRepository
	WalletRepo       repository.WalletRepository
	WithdrawalRepo   repository.WithdrawalRepository
	ReconcileRepo    repository.ReconciliationRepository
	NotificationRepo repository.NotificationRepository
	AuthzAuditRepo   repository.AuthzAuditLogRepository

	// Services
	AuthzService        *authz.Service
	UserAuthService     *service.UserAuthService
	BindingSigner       *service.ReferralBindingSigner
	AttributionService  *service.AttributionService
	ProductService      *service.ProductService
	GatewayService      *service.GatewayService
	SaleService         *service.SaleService
	WalletService       *service.WalletService
	AuthzAuditService   *service.AuthzAuditService
	EmailService        *service.EmailService
	NotificationService *service.NotificationService
	SettlementService   *service.SettlementService
	SaleExpiryService   *service.SaleExpiryService
	WithdrawalService   *service.WithdrawalService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端（未启用时返回禁用状态的客户端，通知改为同步派发）
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient, _ = queue.NewClient(nil)
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}
	c.initRepositories()
	c.initServices()
	return c
}

// Close 释放队列与缓存连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}

func (c *Container) initRepositories() {
	db := models.DB
	c.UserRepo = repository.NewUserRepository(db)
	c.ProductRepo = repository.NewProductRepository(db)
	c.ReferralLinkRepo = repository.NewReferralLinkRepository(db)
	c.SaleRepo = repository.NewSaleRepository(db)
	c.PaymentTxnRepo = repository.NewPaymentTransactionRepository(db)
	c.WalletRepo = repository.NewWalletRepository(db)
	c.WithdrawalRepo = repository.NewWithdrawalRepository(db)
	c.ReconcileRepo = repository.NewReconciliationRepository(db)
	c.NotificationRepo = repository.NewNotificationRepository(db)
	c.AuthzAuditRepo = repository.NewAuthzAuditLogRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	cfg := c.Config
	c.UserAuthService = service.NewUserAuthService(cfg.JWT, c.UserRepo)
	c.BindingSigner = service.NewReferralBindingSigner(cfg.Referral.BindingSecret, cfg.Referral.BindingTTL())
	c.AttributionService = service.NewAttributionService(
		c.ReferralLinkRepo,
		c.ProductRepo,
		c.UserRepo,
		c.SaleRepo,
		c.PaymentTxnRepo,
		c.WalletRepo,
		c.ReconcileRepo,
		c.BindingSigner,
	)
	c.ProductService = service.NewProductService(c.ProductRepo, c.UserRepo)
	c.GatewayService = service.NewGatewayService(cfg.Flutterwave)
	c.SaleService = service.NewSaleService(
		c.SaleRepo,
		c.ProductRepo,
		c.PaymentTxnRepo,
		c.AttributionService,
		c.GatewayService,
		c.QueueClient,
		cfg.Sale.PendingTTL(),
	)
	c.WalletService = service.NewWalletService(c.WalletRepo)
	c.AuthzAuditService = service.NewAuthzAuditService(c.AuthzAuditRepo)
	c.EmailService = service.NewEmailService(&cfg.Email)
	c.NotificationService = service.NewNotificationService(c.NotificationRepo, c.QueueClient, cfg.Notification, c.EmailService)
	c.SettlementService = service.NewSettlementService(
		c.SaleRepo,
		c.PaymentTxnRepo,
		c.ReferralLinkRepo,
		c.ReconcileRepo,
		c.WalletService,
		c.NotificationService,
		c.GatewayService,
		c.QueueClient,
		service.SettlementOptions{
			PlatformFeeRate:      cfg.Settlement.FeeRate(),
			ReconcileMaxAttempts: cfg.Settlement.ReconcileMaxAttempt,
		},
	)
	c.SaleExpiryService = service.NewSaleExpiryService(c.SaleRepo, c.GatewayService, c.SettlementService, cfg.Sale.PendingTTL(), cfg.Sale.ExpiryBatchSize)
	c.WithdrawalService = service.NewWithdrawalService(c.WithdrawalRepo, c.UserRepo, c.WalletService, c.NotificationService, cfg.Withdrawal)
}
