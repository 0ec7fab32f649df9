package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Queue        QueueConfig        `mapstructure:"queue"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Security     SecurityConfig     `mapstructure:"security"`
	Referral     ReferralConfig     `mapstructure:"referral"`
	Flutterwave  FlutterwaveConfig  `mapstructure:"flutterwave"`
	Settlement   SettlementConfig   `mapstructure:"settlement"`
	Sale         SaleConfig         `mapstructure:"sale"`
	Withdrawal   WithdrawalConfig   `mapstructure:"withdrawal"`
	Notification NotificationConfig `mapstructure:"notification"`
	Email        EmailConfig        `mapstructure:"email"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Admin        AdminConfig        `mapstructure:"admin"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host                string `mapstructure:"host"`
	Port                string `mapstructure:"port"`
	Mode                string `mapstructure:"mode"` // debug / release
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
}

// Addr 监听地址
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Stdout     bool   `mapstructure:"stdout"`
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Level,
		Stdout:     c.Stdout,
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 用户令牌校验配置（令牌由外部认证服务签发）
type JWTConfig struct {
	SecretKey string `mapstructure:"secret"`
	Issuer    string `mapstructure:"issuer"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	ResolveRateLimit RateLimitConfig `mapstructure:"resolve_rate_limit"`
	VerifyRateLimit  RateLimitConfig `mapstructure:"verify_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// ReferralConfig 推广链接与归因绑定配置
type ReferralConfig struct {
	BindingSecret     string `mapstructure:"binding_secret"`
	BindingTTLMinutes int    `mapstructure:"binding_ttl_minutes"`
}

// BindingTTL 归因绑定有效期
func (c ReferralConfig) BindingTTL() time.Duration {
	if c.BindingTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.BindingTTLMinutes) * time.Minute
}

// FlutterwaveConfig 支付网关配置
type FlutterwaveConfig struct {
	PublicKey      string `mapstructure:"public_key"`  // 可下发给前端
	SecretKey      string `mapstructure:"secret_key"`  // 仅服务端
	SecretHash     string `mapstructure:"secret_hash"` // Webhook 共享密钥
	BaseURL        string `mapstructure:"base_url"`
	RedirectURL    string `mapstructure:"redirect_url"`
	Currency       string `mapstructure:"currency"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	CheckoutTitle  string `mapstructure:"checkout_title"`
	CheckoutLogo   string `mapstructure:"checkout_logo"`
}

// SettlementConfig 结算配置
type SettlementConfig struct {
	PlatformFeeRate     string `mapstructure:"platform_fee_rate"`
	ReconcileCron       string `mapstructure:"reconcile_cron"`
	ReconcileBatchSize  int    `mapstructure:"reconcile_batch_size"`
	ReconcileMaxAttempt int    `mapstructure:"reconcile_max_attempts"`
}

// FeeRate 平台费率（非法配置回退默认值）
func (c SettlementConfig) FeeRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.PlatformFeeRate))
	if err != nil || rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.RequireFromString("0.05")
	}
	return rate
}

// SaleConfig 待支付销售配置
type SaleConfig struct {
	PendingTTLMinutes int    `mapstructure:"pending_ttl_minutes"`
	ExpiryCron        string `mapstructure:"expiry_cron"`
	ExpiryBatchSize   int    `mapstructure:"expiry_batch_size"`
}

// PendingTTL 待支付销售过期时长
func (c SaleConfig) PendingTTL() time.Duration {
	if c.PendingTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.PendingTTLMinutes) * time.Minute
}

// WithdrawalConfig 提现配置
type WithdrawalConfig struct {
	MinAmount           string `mapstructure:"min_amount"`
	AccountNumberLength int    `mapstructure:"account_number_length"`
}

// NotificationConfig 通知派发配置
type NotificationConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	AuthToken      string `mapstructure:"auth_token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EmailConfig SMTP 配置（未配置通知投递地址时用于直接发送客户收据）
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	UseTLS   bool   `mapstructure:"use_tls"`
	UseSSL   bool   `mapstructure:"use_ssl"`
}

// AdminConfig 管理端初始化配置
type AdminConfig struct {
	SuperAdminEmail string `mapstructure:"super_admin_email"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load 从 .env / config.yml / 环境变量加载配置
func Load() *Config {
	loadDotEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")   // 如果从 cmd/server 运行
	viper.AddConfigPath("./etc") // etc 文件夹

	setDefaults()

	// 环境变量支持（例如 flutterwave.secret_key -> FLUTTERWAVE_SECRET_KEY）
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return &cfg
}

func loadDotEnv() {
	for _, path := range []string{".env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			logger.Infow("dotenv_loaded", "file", path)
			return
		}
	}
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.read_timeout_seconds", 15)
	viper.SetDefault("server.write_timeout_seconds", 30)
	viper.SetDefault("log.level", "")
	viper.SetDefault("log.stdout", false)
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "app.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/affiliate.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "")
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "afs")
	viper.SetDefault("queue.enabled", true)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.queues", map[string]int{
		"default":  5,
		"critical": 10,
	})
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Referral-Binding",
	})
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 600)
	viper.SetDefault("security.resolve_rate_limit.window_seconds", 60)
	viper.SetDefault("security.resolve_rate_limit.max_requests", 60)
	viper.SetDefault("security.verify_rate_limit.window_seconds", 60)
	viper.SetDefault("security.verify_rate_limit.max_requests", 20)
	viper.SetDefault("referral.binding_secret", "binding-change-me-in-production")
	viper.SetDefault("referral.binding_ttl_minutes", 60)
	viper.SetDefault("flutterwave.public_key", "")
	viper.SetDefault("flutterwave.secret_key", "")
	viper.SetDefault("flutterwave.secret_hash", "")
	viper.SetDefault("flutterwave.base_url", "https://api.flutterwave.com")
	viper.SetDefault("flutterwave.redirect_url", "")
	viper.SetDefault("flutterwave.currency", "NGN")
	viper.SetDefault("flutterwave.timeout_seconds", 12)
	viper.SetDefault("flutterwave.checkout_title", "")
	viper.SetDefault("flutterwave.checkout_logo", "")
	viper.SetDefault("settlement.platform_fee_rate", "0.05")
	viper.SetDefault("settlement.reconcile_cron", "@every 2m")
	viper.SetDefault("settlement.reconcile_batch_size", 50)
	viper.SetDefault("settlement.reconcile_max_attempts", 10)
	viper.SetDefault("sale.pending_ttl_minutes", 60)
	viper.SetDefault("sale.expiry_cron", "@every 5m")
	viper.SetDefault("sale.expiry_batch_size", 100)
	viper.SetDefault("withdrawal.min_amount", "1000")
	viper.SetDefault("withdrawal.account_number_length", 10)
	viper.SetDefault("notification.endpoint", "")
	viper.SetDefault("notification.auth_token", "")
	viper.SetDefault("notification.timeout_seconds", 10)
	viper.SetDefault("email.enabled", false)
	viper.SetDefault("email.port", 587)
	viper.SetDefault("email.use_tls", true)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("admin.super_admin_email", "")
}

// weakSecret 少于 32 字节或仍含默认占位词
func weakSecret(secret string) bool {
	if len(secret) < 32 {
		return true
	}
	lower := strings.ToLower(secret)
	for _, marker := range []string{"change-me", "change-in-production", "your-secret-key"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// SecretIssues 列出过弱或缺失的密钥配置项
func (c *Config) SecretIssues() []string {
	var issues []string
	for _, item := range []struct {
		key   string
		value string
	}{
		{"jwt.secret", c.JWT.SecretKey},
		{"referral.binding_secret", c.Referral.BindingSecret},
		{"flutterwave.secret_hash", c.Flutterwave.SecretHash},
	} {
		if weakSecret(item.value) {
			issues = append(issues, item.key)
		}
	}
	if strings.TrimSpace(c.Flutterwave.SecretKey) == "" {
		issues = append(issues, "flutterwave.secret_key")
	}
	return issues
}

// Validate release 模式下密钥不合格时拒绝启动，其余模式只告警
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if raw := strings.TrimSpace(c.Withdrawal.MinAmount); raw != "" {
		if _, err := decimal.NewFromString(raw); err != nil {
			return fmt.Errorf("withdrawal.min_amount: %w", err)
		}
	}
	issues := c.SecretIssues()
	if len(issues) == 0 {
		return nil
	}
	if c.Server.Mode == "release" {
		return fmt.Errorf("weak or missing secrets in release mode: %s", strings.Join(issues, ", "))
	}
	logger.Warnw("config_weak_secrets", "keys", issues)
	return nil
}
