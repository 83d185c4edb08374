package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lotecorto/storefront/internal/logger"

	"github.com/robfig/cron/v3"
)

const defaultReconcileSpec = "@every 1m"

// Reconciler 补偿未转发的通知
type Reconciler interface {
	ReconcilePending(ctx context.Context) (int, error)
}

// ReconcileService 按 cron 表达式定期补偿
type ReconcileService struct {
	name       string
	spec       string
	reconciler Reconciler
	cron       *cron.Cron
}

// NewReconcileService 创建补偿服务，spec 为空时每分钟一次
func NewReconcileService(spec string, reconciler Reconciler) (*ReconcileService, error) {
	if reconciler == nil {
		return nil, errors.New("reconciler is nil")
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = defaultReconcileSpec
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid reconcile cron %q: %w", spec, err)
	}
	return &ReconcileService{
		name:       "notification-reconciler",
		spec:       spec,
		reconciler: reconciler,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}, nil
}

// Name 服务名称
func (s *ReconcileService) Name() string {
	if s == nil || s.name == "" {
		return "notification-reconciler"
	}
	return s.name
}

// Start 注册定时任务并阻塞到 ctx 结束
func (s *ReconcileService) Start(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return errors.New("reconciler not initialized")
	}
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule reconciler: %w", err)
	}
	s.cron.Start()
	logger.Infow("worker_reconciler_started", "spec", s.spec)
	<-ctx.Done()
	return nil
}

// Stop 等待正在执行的补偿结束
func (s *ReconcileService) Stop(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce 执行一轮补偿
func (s *ReconcileService) RunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("worker_reconciler_panic", "panic", r)
		}
	}()
	if ctx.Err() != nil {
		return
	}
	dispatched, err := s.reconciler.ReconcilePending(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warnw("worker_reconciler_failed", "dispatched", dispatched, "error", err)
	}
}
