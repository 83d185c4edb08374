package service

import (
	"context"
	"time"

	"github.com/lotecorto/storefront/internal/backend"
	"github.com/lotecorto/storefront/internal/cache"
	"github.com/lotecorto/storefront/internal/logger"
	"github.com/lotecorto/storefront/internal/metrics"
)

// CartBackend 购物车与下单的后端调用
type CartBackend interface {
	GetCart(ctx context.Context) (*backend.Cart, error)
	AddCartItem(ctx context.Context, productID uint, quantity int) (*backend.Cart, error)
	RemoveCartItem(ctx context.Context, productID uint) (*backend.Cart, error)
	CreateOrder(ctx context.Context, body backend.Record) (*backend.Order, error)
}

// CartService 购物车，缓存按调用方凭证隔离
type CartService struct {
	backend CartBackend
	store   cache.Store
	ttl     time.Duration
}

// NewCartService 创建购物车服务
func NewCartService(b CartBackend, store cache.Store, ttl time.Duration) *CartService {
	if store == nil {
		store = cache.Redis()
	}
	return &CartService{backend: b, store: store, ttl: ttl}
}

// cartKey 无凭证的请求不缓存
func cartKey(ctx context.Context) (string, bool) {
	auth := backend.AuthorizationFromContext(ctx)
	if auth == "" {
		return "", false
	}
	return cache.CartKey(auth), true
}

// GetCart 读取购物车
func (s *CartService) GetCart(ctx context.Context) (*backend.Cart, error) {
	key, cacheable := cartKey(ctx)
	if cacheable {
		var cached backend.Cart
		if hit, err := s.store.GetJSON(ctx, key, &cached); err == nil && hit {
			metrics.ObserveCacheLookup(cache.ResourceCart, true)
			return &cached, nil
		}
		metrics.ObserveCacheLookup(cache.ResourceCart, false)
	}
	cart, err := s.backend.GetCart(ctx)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := s.store.SetJSON(ctx, key, cart, s.ttl); err != nil {
			logger.Warnw("cart_cache_write_failed", "error", err)
		}
	}
	return cart, nil
}

// AddItem 加入购物车
func (s *CartService) AddItem(ctx context.Context, productID uint, quantity int) (*backend.Cart, error) {
	if productID == 0 || quantity <= 0 {
		return nil, ErrCartItemInvalid
	}
	cart, err := s.backend.AddCartItem(ctx, productID, quantity)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return cart, nil
}

// RemoveItem 移出购物车
func (s *CartService) RemoveItem(ctx context.Context, productID uint) (*backend.Cart, error) {
	if productID == 0 {
		return nil, ErrCartItemInvalid
	}
	cart, err := s.backend.RemoveCartItem(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return cart, nil
}

// CreateOrder 下单后购物车由后端清空，本地缓存同步失效
func (s *CartService) CreateOrder(ctx context.Context, body backend.Record) (*backend.Order, error) {
	if body == nil {
		body = backend.Record{}
	}
	order, err := s.backend.CreateOrder(ctx, body)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	logger.Infow("order_created", "order_id", order.ID, "state", order.State)
	return order, nil
}

func (s *CartService) invalidate(ctx context.Context) {
	key, cacheable := cartKey(ctx)
	if !cacheable {
		return
	}
	if err := s.store.Del(ctx, key); err != nil {
		logger.Warnw("cart_cache_invalidate_failed", "error", err)
	}
}
