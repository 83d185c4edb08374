package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lotecorto/storefront/internal/backend"
	"github.com/lotecorto/storefront/internal/cache"
	"github.com/lotecorto/storefront/internal/constants"
	"github.com/lotecorto/storefront/internal/form"
	"github.com/lotecorto/storefront/internal/logger"
	"github.com/lotecorto/storefront/internal/metrics"

	"github.com/samber/lo"
)

// CatalogBackend 目录资源的后端调用
type CatalogBackend interface {
	ListResource(ctx context.Context, resource string, query url.Values) ([]backend.Record, error)
	GetResource(ctx context.Context, resource string, id uint) (backend.Record, error)
	CreateResource(ctx context.Context, resource string, body backend.Record) (backend.Record, error)
	UpdateResource(ctx context.Context, resource string, id uint, body backend.Record) (backend.Record, error)
	DeleteResource(ctx context.Context, resource string, id uint) error
}

// CatalogService 分类/商品/供应商
type CatalogService struct {
	backend CatalogBackend
	store   cache.Store
	ttl     time.Duration
}

// NewCatalogService 创建目录服务
func NewCatalogService(b CatalogBackend, store cache.Store, ttl time.Duration) *CatalogService {
	if store == nil {
		store = cache.Redis()
	}
	return &CatalogService{backend: b, store: store, ttl: ttl}
}

// UpdateResult 更新结果，Changed=false 表示提交内容与当前记录一致，未调用后端
type UpdateResult struct {
	Record  backend.Record `json:"record"`
	Changed bool           `json:"changed"`
}

func normalizeResource(resource string) (string, error) {
	resource = strings.ToLower(strings.TrimSpace(resource))
	if !lo.Contains(constants.CatalogResources, resource) {
		return "", fmt.Errorf("%w: %s", ErrResourceNotAllowed, resource)
	}
	return resource, nil
}

// List 列出资源（走缓存）
func (s *CatalogService) List(ctx context.Context, resource string, query url.Values) ([]backend.Record, error) {
	resource, err := normalizeResource(resource)
	if err != nil {
		return nil, err
	}
	key := cache.QueryKey(resource, query.Encode())
	var cached []backend.Record
	if hit, err := s.store.GetJSON(ctx, key, &cached); err != nil {
		logger.Warnw("catalog_cache_read_failed", "resource", resource, "error", err)
	} else if hit {
		metrics.ObserveCacheLookup(resource, true)
		return cached, nil
	}
	metrics.ObserveCacheLookup(resource, false)

	records, err := s.backend.ListResource(ctx, resource, query)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []backend.Record{}
	}
	if err := s.store.SetJSON(ctx, key, records, s.ttl); err != nil {
		logger.Warnw("catalog_cache_write_failed", "resource", resource, "error", err)
	}
	return records, nil
}

// Get 读取单条资源（走缓存）
func (s *CatalogService) Get(ctx context.Context, resource string, id uint) (backend.Record, error) {
	resource, err := normalizeResource(resource)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, ErrInvalidResourceID
	}
	key := cache.ItemKey(resource, id)
	var cached backend.Record
	if hit, err := s.store.GetJSON(ctx, key, &cached); err == nil && hit {
		metrics.ObserveCacheLookup(resource, true)
		return cached, nil
	}
	metrics.ObserveCacheLookup(resource, false)

	record, err := s.backend.GetResource(ctx, resource, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetJSON(ctx, key, record, s.ttl); err != nil {
		logger.Warnw("catalog_cache_write_failed", "resource", resource, "id", id, "error", err)
	}
	return record, nil
}

// Create 新建资源
func (s *CatalogService) Create(ctx context.Context, resource string, body backend.Record) (backend.Record, error) {
	resource, err := normalizeResource(resource)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrEmptyUpdate
	}
	record, err := s.backend.CreateResource(ctx, resource, body)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, resource)
	logger.Infow("catalog_resource_created", "resource", resource, "id", record.ID())
	return record, nil
}

// Update 与当前记录逐字段比较，未修改时不发起 PATCH
func (s *CatalogService) Update(ctx context.Context, resource string, id uint, fields backend.Record) (*UpdateResult, error) {
	resource, err := normalizeResource(resource)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, ErrInvalidResourceID
	}
	delete(fields, "id")
	if len(fields) == 0 {
		return nil, ErrEmptyUpdate
	}
	current, err := s.backend.GetResource(ctx, resource, id)
	if err != nil {
		return nil, err
	}

	tracker := form.NewTracker(form.Project(current, fields))
	tracker.Set(map[string]interface{}(fields))
	if !tracker.IsDirty() {
		return &UpdateResult{Record: current, Changed: false}, nil
	}
	changed := backend.Record(form.Changed(tracker.Baseline(), tracker.Current()))

	record, err := s.backend.UpdateResource(ctx, resource, id, changed)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, resource)
	logger.Infow("catalog_resource_updated", "resource", resource, "id", id, "fields", lo.Keys(changed))
	return &UpdateResult{Record: record, Changed: true}, nil
}

// Delete 删除资源
func (s *CatalogService) Delete(ctx context.Context, resource string, id uint) error {
	resource, err := normalizeResource(resource)
	if err != nil {
		return err
	}
	if id == 0 {
		return ErrInvalidResourceID
	}
	if err := s.backend.DeleteResource(ctx, resource, id); err != nil {
		return err
	}
	s.invalidate(ctx, resource)
	logger.Infow("catalog_resource_deleted", "resource", resource, "id", id)
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context, resource string) {
	if err := s.store.InvalidateResource(ctx, resource); err != nil {
		logger.Warnw("catalog_cache_invalidate_failed", "resource", resource, "error", err)
	}
}
