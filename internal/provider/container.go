package provider

import (
	"fmt"

	"github.com/lotecorto/storefront/internal/backend"
	"github.com/lotecorto/storefront/internal/cache"
	"github.com/lotecorto/storefront/internal/config"
	"github.com/lotecorto/storefront/internal/logger"
	"github.com/lotecorto/storefront/internal/mercadopago"
	"github.com/lotecorto/storefront/internal/models"
	"github.com/lotecorto/storefront/internal/poller"
	"github.com/lotecorto/storefront/internal/queue"
	"github.com/lotecorto/storefront/internal/repository"
	"github.com/lotecorto/storefront/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Clients
	BackendClient     *backend.Client
	MercadoPagoClient *mercadopago.Client

	// Repositories
	NotificationRepo repository.NotificationRepository

	// Services
	OrderService        *service.OrderService
	PaymentService      *service.PaymentService
	NotificationService *service.NotificationService
	CatalogService      *service.CatalogService
	CartService         *service.CartService
}

// NewContainer 初始化容器；数据库需已由 models.InitDB 打开
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端，未启用时为空操作客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient, _ = queue.NewClient(nil)
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}
	if err := c.initClients(); err != nil {
		return nil, err
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c, nil
}

func (c *Container) initClients() error {
	backendClient, err := backend.NewClient(c.Config.Backend, nil)
	if err != nil {
		return fmt.Errorf("init backend client: %w", err)
	}
	c.BackendClient = backendClient
	c.MercadoPagoClient = mercadopago.NewClient(c.Config.MercadoPago, nil)
	if !c.MercadoPagoClient.Configured() {
		logger.Warnw("provider_mercadopago_not_configured")
	}
	return nil
}

func (c *Container) initRepositories() {
	c.NotificationRepo = repository.NewNotificationRepository(models.DB)
}

func (c *Container) initServices() {
	store := cache.Redis()
	cacheCfg := c.Config.Cache

	c.OrderService = service.NewOrderService(c.BackendClient, store, cacheCfg.OrderTTL())
	c.PaymentService = service.NewPaymentService(c.BackendClient, c.MercadoPagoClient, c.OrderService, store, service.PaymentOptions{
		Upload:         c.Config.Upload,
		StatusCacheTTL: cacheCfg.OrderTTL(),
		WaitTimeout:    c.Config.Poller.WaitTimeout(),
		PollerOptions:  []poller.Option{poller.WithInterval(c.Config.Poller.Interval())},
	})
	c.NotificationService = service.NewNotificationService(
		c.NotificationRepo,
		c.MercadoPagoClient,
		c.BackendClient,
		c.QueueClient,
		store,
		c.Config.Notify,
	)
	c.CatalogService = service.NewCatalogService(c.BackendClient, store, cacheCfg.CatalogTTL())
	c.CartService = service.NewCartService(c.BackendClient, store, cacheCfg.CartTTL())
}

// Close 释放外部连接
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
