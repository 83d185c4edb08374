package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/lotecorto/storefront/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Backend     BackendConfig     `mapstructure:"backend"`
	MercadoPago MercadoPagoConfig `mapstructure:"mercadopago"`
	Poller      PollerConfig      `mapstructure:"poller"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Upload      UploadConfig      `mapstructure:"upload"`
	CORS        CORSConfig        `mapstructure:"cors"`
	AdminJWT    AdminJWTConfig    `mapstructure:"admin_jwt"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host                     string `mapstructure:"host"`
	Port                     string `mapstructure:"port"`
	Mode                     string `mapstructure:"mode"` // debug / release
	ReadHeaderTimeoutSeconds int    `mapstructure:"read_header_timeout_seconds"`
	IdleTimeoutSeconds       int    `mapstructure:"idle_timeout_seconds"`
	ShutdownTimeoutSeconds   int    `mapstructure:"shutdown_timeout_seconds"`
}

// Addr 监听地址
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// ShutdownTimeout 优雅退出的最长等待
func (c ServerConfig) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// LogConfig 日志配置
type LogConfig struct {
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

// DatabaseConfig 通知台账数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // sqlite / postgres
	DSN    string             `mapstructure:"dsn"`
	Pool   DatabasePoolConfig `mapstructure:"pool"`
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
	MaxRetry    int            `mapstructure:"max_retry"`
}

// BackendConfig 后端 REST 服务配置
type BackendConfig struct {
	BaseURL          string  `mapstructure:"base_url"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	RateLimitRPS     float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`
	NotificationPath string  `mapstructure:"notification_path"`
	ServiceToken     string  `mapstructure:"service_token"`
}

// Timeout 请求超时
func (c BackendConfig) Timeout() time.Duration {
	return secondsOr(c.TimeoutSeconds, 12)
}

// MercadoPagoConfig MercadoPago 配置
type MercadoPagoConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	AccessToken         string `mapstructure:"access_token"`
	WebhookSecret       string `mapstructure:"webhook_secret"`
	NotificationURL     string `mapstructure:"notification_url"`
	SuccessURL          string `mapstructure:"success_url"`
	FailureURL          string `mapstructure:"failure_url"`
	PendingURL          string `mapstructure:"pending_url"`
	CurrencyID          string `mapstructure:"currency_id"`
	StatementDescriptor string `mapstructure:"statement_descriptor"`
	Sandbox             bool   `mapstructure:"sandbox"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
}

// Timeout 请求超时
func (c MercadoPagoConfig) Timeout() time.Duration {
	return secondsOr(c.TimeoutSeconds, 12)
}

// PollerConfig 支付确认轮询配置
type PollerConfig struct {
	IntervalMS         int `mapstructure:"interval_ms"`
	WaitTimeoutSeconds int `mapstructure:"wait_timeout_seconds"`
}

// Interval 查询间隔
func (c PollerConfig) Interval() time.Duration {
	if c.IntervalMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// WaitTimeout 长轮询接口的最长等待，0 表示只受客户端连接约束
func (c PollerConfig) WaitTimeout() time.Duration {
	if c.WaitTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.WaitTimeoutSeconds) * time.Second
}

// NotifyConfig 支付通知转发配置
type NotifyConfig struct {
	ReconcileCron        string          `mapstructure:"reconcile_cron"`
	ReconcileGraceSecond int             `mapstructure:"reconcile_grace_seconds"`
	ReconcileBatch       int             `mapstructure:"reconcile_batch"`
	MaxAttempts          int             `mapstructure:"max_attempts"`
	BurstWindowSeconds   int             `mapstructure:"burst_window_seconds"`
	RateLimit            RateLimitConfig `mapstructure:"rate_limit"`
}

// ReconcileGrace 台账记录进入补偿前的等待时间
func (c NotifyConfig) ReconcileGrace() time.Duration {
	return secondsOr(c.ReconcileGraceSecond, 60)
}

// BurstWindow 处理中占位的过期时间，进程异常退出时占位自动失效
func (c NotifyConfig) BurstWindow() time.Duration {
	return secondsOr(c.BurstWindowSeconds, 30)
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// CacheConfig 资源缓存配置
type CacheConfig struct {
	OrderTTLSeconds   int `mapstructure:"order_ttl_seconds"`
	CatalogTTLSeconds int `mapstructure:"catalog_ttl_seconds"`
	CartTTLSeconds    int `mapstructure:"cart_ttl_seconds"`
}

// OrderTTL 订单缓存时长
func (c CacheConfig) OrderTTL() time.Duration {
	return secondsOr(c.OrderTTLSeconds, 60)
}

// CatalogTTL 目录缓存时长
func (c CacheConfig) CatalogTTL() time.Duration {
	return secondsOr(c.CatalogTTLSeconds, 300)
}

// CartTTL 购物车缓存时长
func (c CacheConfig) CartTTL() time.Duration {
	return secondsOr(c.CartTTLSeconds, 60)
}

// UploadConfig 凭证上传配置
type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// AdminJWTConfig 管理端令牌校验配置，令牌由后端签发
type AdminJWTConfig struct {
	SecretKey string `mapstructure:"secret"`
	Issuer    string `mapstructure:"issuer"`
}

func secondsOr(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

// Load 加载 .env 与 config.yml
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warnw("config_dotenv_load_failed", "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("./etc")

	setDefaults(viper.GetViper())

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_header_timeout_seconds", 10)
	v.SetDefault("server.idle_timeout_seconds", 120)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/storefront.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "sf")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("queue.max_retry", 8)
	v.SetDefault("backend.base_url", "http://127.0.0.1:3000")
	v.SetDefault("backend.timeout_seconds", 12)
	v.SetDefault("backend.rate_limit_rps", 50)
	v.SetDefault("backend.rate_limit_burst", 100)
	v.SetDefault("backend.notification_path", "/api/v1/payments/mercadopago/notifications")
	v.SetDefault("backend.service_token", "")
	v.SetDefault("mercadopago.base_url", "https://api.mercadopago.com")
	v.SetDefault("mercadopago.access_token", "")
	v.SetDefault("mercadopago.webhook_secret", "")
	v.SetDefault("mercadopago.notification_url", "")
	v.SetDefault("mercadopago.success_url", "")
	v.SetDefault("mercadopago.failure_url", "")
	v.SetDefault("mercadopago.pending_url", "")
	v.SetDefault("mercadopago.currency_id", "ARS")
	v.SetDefault("mercadopago.statement_descriptor", "")
	v.SetDefault("mercadopago.sandbox", false)
	v.SetDefault("mercadopago.timeout_seconds", 12)
	v.SetDefault("poller.interval_ms", 2000)
	v.SetDefault("poller.wait_timeout_seconds", 0)
	v.SetDefault("notify.reconcile_cron", "@every 1m")
	v.SetDefault("notify.reconcile_grace_seconds", 60)
	v.SetDefault("notify.reconcile_batch", 50)
	v.SetDefault("notify.max_attempts", 10)
	v.SetDefault("notify.burst_window_seconds", 30)
	v.SetDefault("notify.rate_limit.window_seconds", 60)
	v.SetDefault("notify.rate_limit.max_requests", 120)
	v.SetDefault("cache.order_ttl_seconds", 60)
	v.SetDefault("cache.catalog_ttl_seconds", 300)
	v.SetDefault("cache.cart_ttl_seconds", 60)
	v.SetDefault("upload.max_size", 10485760)
	v.SetDefault("upload.allowed_types", []string{
		"image/jpeg",
		"image/png",
		"image/webp",
		"application/pdf",
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("admin_jwt.secret", "")
	v.SetDefault("admin_jwt.issuer", "")
}
