package cache

import (
	"context"
	"time"
)

// Store 资源缓存的最小接口，服务层通过它读写缓存
type Store interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	InvalidateResource(ctx context.Context, resource string) error
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type redisStore struct{}

// Redis 返回基于全局 Redis 客户端的 Store；未启用时所有操作为空操作
func Redis() Store {
	return redisStore{}
}

func (redisStore) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	return GetJSON(ctx, key, dest)
}

func (redisStore) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return SetJSON(ctx, key, value, ttl)
}

func (redisStore) Del(ctx context.Context, keys ...string) error {
	return Del(ctx, keys...)
}

func (redisStore) InvalidateResource(ctx context.Context, resource string) error {
	return InvalidateResource(ctx, resource)
}

func (redisStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return SetNX(ctx, key, ttl)
}
