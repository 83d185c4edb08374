package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/lotecorto/storefront/internal/cache"
	"github.com/lotecorto/storefront/internal/config"
	adminhandlers "github.com/lotecorto/storefront/internal/http/handlers/admin"
	publichandlers "github.com/lotecorto/storefront/internal/http/handlers/public"
	"github.com/lotecorto/storefront/internal/logger"
	"github.com/lotecorto/storefront/internal/metrics"
	"github.com/lotecorto/storefront/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "sf"
	}
	webhookRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:mercadopago", redisPrefix),
		WindowSeconds: cfg.Notify.RateLimit.WindowSeconds,
		MaxRequests:   cfg.Notify.RateLimit.MaxRequests,
		Message:       "too many notifications",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(logger.Z()))
	r.Use(CORSMiddleware(cfg.CORS))
	r.Use(BackendContextMiddleware())

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "cache": cache.Enabled()})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// MercadoPago 回调，GET 用于 IPN 探测
	webhook := r.Group("/api/mercadopago")
	webhook.Use(RateLimitMiddleware(cache.Client(), webhookRule, KeyByIP))
	{
		webhook.POST("/pagos", publicHandler.MercadoPagoNotification)
		webhook.GET("/pagos", publicHandler.MercadoPagoNotification)
	}

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/products", publicHandler.GetProducts)
		apiV1.GET("/products/:id", publicHandler.GetProduct)
		apiV1.GET("/categories", publicHandler.GetCategories)

		apiV1.GET("/cart", publicHandler.GetCart)
		apiV1.POST("/cart/items", publicHandler.AddCartItem)
		apiV1.DELETE("/cart/items/:product_id", publicHandler.RemoveCartItem)

		apiV1.POST("/orders", publicHandler.CreateOrder)
		apiV1.GET("/orders/:id", publicHandler.GetOrder)
		apiV1.POST("/orders/:id/checkout", publicHandler.Checkout)
		apiV1.POST("/orders/:id/voucher", publicHandler.UploadVoucher)

		apiV1.GET("/payments/:id/status", publicHandler.GetPaymentStatus)
		apiV1.GET("/payments/:id/wait", publicHandler.WaitPayment)

		admin := apiV1.Group("/admin")
		admin.Use(AdminJWTMiddleware(cfg.AdminJWT))
		{
			admin.GET("/orders/:id", adminHandler.GetOrder)
			admin.PATCH("/orders/:id/state/:flag", adminHandler.ToggleOrderFlag)
			admin.PUT("/orders/:id/state", adminHandler.SetOrderState)

			for _, resource := range []string{cache.ResourceCategories, cache.ResourceProducts, cache.ResourceSuppliers} {
				group := admin.Group("/" + resource)
				group.GET("", adminHandler.ListResource(resource))
				group.GET("/:id", adminHandler.GetResource(resource))
				group.POST("", adminHandler.CreateResource(resource))
				group.PUT("/:id", adminHandler.UpdateResource(resource))
				group.PATCH("/:id", adminHandler.UpdateResource(resource))
				group.DELETE("/:id", adminHandler.DeleteResource(resource))
			}

			admin.GET("/notifications", adminHandler.ListNotifications)
			admin.POST("/notifications/:id/retry", adminHandler.RetryNotification)
		}
	}

	return r
}
