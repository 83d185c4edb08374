package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/lotecorto/storefront/internal/backend"
	"github.com/lotecorto/storefront/internal/cache"
	"github.com/lotecorto/storefront/internal/config"
	"github.com/lotecorto/storefront/internal/constants"
	"github.com/lotecorto/storefront/internal/logger"
	"github.com/lotecorto/storefront/internal/mercadopago"
	"github.com/lotecorto/storefront/internal/metrics"
	"github.com/lotecorto/storefront/internal/models"
	"github.com/lotecorto/storefront/internal/queue"
	"github.com/lotecorto/storefront/internal/repository"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// PaymentLookup 向支付提供方查询支付详情
type PaymentLookup interface {
	GetPayment(ctx context.Context, providerPaymentID string) (*mercadopago.PaymentInfo, error)
	WebhookSecret() string
}

// NotificationForwarder 把规范化通知交给后端
type NotificationForwarder interface {
	ForwardPaymentNotification(ctx context.Context, notification backend.PaymentNotification) error
}

// ForwardEnqueuer 异步转发入队
type ForwardEnqueuer interface {
	Enabled() bool
	EnqueueNotificationForward(payload queue.NotificationForwardPayload, opts ...asynq.Option) error
}

// NotificationService 支付通知幂等转发
type NotificationService struct {
	repo      repository.NotificationRepository
	lookup    PaymentLookup
	forwarder NotificationForwarder
	queue     ForwardEnqueuer
	store     cache.Store
	cfg       config.NotifyConfig
	now       func() time.Time
}

// NewNotificationService 创建通知服务
func NewNotificationService(
	repo repository.NotificationRepository,
	lookup PaymentLookup,
	forwarder NotificationForwarder,
	queueClient ForwardEnqueuer,
	store cache.Store,
	cfg config.NotifyConfig,
) *NotificationService {
	if store == nil {
		store = cache.Redis()
	}
	return &NotificationService{
		repo:      repo,
		lookup:    lookup,
		forwarder: forwarder,
		queue:     queueClient,
		store:     store,
		cfg:       cfg,
		now:       time.Now,
	}
}

func notificationLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// NotificationInput webhook 原始输入
type NotificationInput struct {
	Query     url.Values
	Body      []byte
	Signature string
	RequestID string
}

// NotificationResult 处理结果；Ignored 与 Duplicate 的通知都会被确认但不转发
type NotificationResult struct {
	Topic          string `json:"topic"`
	DataID         string `json:"data_id"`
	NotificationID uint   `json:"notification_id,omitempty"`
	Status         string `json:"status,omitempty"`
	Ignored        bool   `json:"ignored"`
	Duplicate      bool   `json:"duplicate"`
	Queued         bool   `json:"queued"`
	Forwarded      bool   `json:"forwarded"`
}

// HandleNotification 解析、验签、去重并转发一条 MercadoPago 通知
func (s *NotificationService) HandleNotification(ctx context.Context, input NotificationInput) (*NotificationResult, error) {
	n, err := mercadopago.ParseNotification(input.Query, input.Body)
	if err != nil {
		metrics.ObserveNotification("invalid")
		return nil, fmt.Errorf("%w: %v", ErrNotificationInvalid, err)
	}
	result := &NotificationResult{Topic: n.Topic, DataID: n.DataID}
	log := notificationLogger("topic", n.Topic, "action", n.Action, "data_id", n.DataID)

	if !n.IsPayment() {
		metrics.ObserveNotification("ignored")
		log.Debugw("notification_topic_ignored")
		result.Ignored = true
		return result, nil
	}
	if s.lookup == nil {
		return nil, ErrCheckoutUnavailable
	}
	if err := mercadopago.VerifySignature(s.lookup.WebhookSecret(), input.Signature, input.RequestID, n.DataID); err != nil {
		metrics.ObserveNotification("invalid")
		log.Warnw("notification_signature_invalid", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	guardKey := cache.NotificationGuardKey(constants.PaymentProviderMercadoPago, n.DataID, n.Action)
	acquired, err := s.store.SetNX(ctx, guardKey, s.cfg.BurstWindow())
	if err != nil {
		log.Warnw("notification_guard_failed", "error", err)
		acquired = true
	}
	if !acquired {
		metrics.ObserveNotification("duplicate")
		log.Debugw("notification_burst_duplicate")
		result.Duplicate = true
		return result, nil
	}
	// 只挡住并发的相同投递；处理结束即释放，后续的状态变化由台账去重
	defer func() {
		if err := s.store.Del(context.WithoutCancel(ctx), guardKey); err != nil {
			log.Warnw("notification_guard_release_failed", "error", err)
		}
	}()

	info, err := s.lookup.GetPayment(ctx, n.DataID)
	if err != nil {
		metrics.ObserveNotification("lookup_failed")
		log.Warnw("notification_payment_lookup_failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrNotificationLookup, err)
	}
	normalized, ok := mercadopago.ToPaymentStatus(info.Status)
	if !ok {
		metrics.ObserveNotification("ignored")
		log.Warnw("notification_status_unmapped", "provider_status", info.Status)
		result.Ignored = true
		return result, nil
	}
	result.Status = normalized

	row := &models.PaymentNotification{
		Provider:          constants.PaymentProviderMercadoPago,
		ProviderPaymentID: info.ID.String(),
		ProviderStatus:    info.Status,
		Topic:             n.Topic,
		Action:            n.Action,
		Status:            constants.NotificationStatusReceived,
		NormalizedStatus:  normalized,
		PaymentID:         info.PaymentID(),
		OrderID:           info.OrderID(),
		Amount:            models.NewMoney(info.TransactionAmount),
		Currency:          info.CurrencyID,
		Payload: models.JSON{
			"data_id":            n.DataID,
			"action":             n.Action,
			"live_mode":          info.LiveMode,
			"status":             info.Status,
			"status_detail":      info.StatusDetail,
			"external_reference": info.ExternalReference,
		},
	}
	created, err := s.repo.CreateIfAbsent(row)
	if err != nil {
		metrics.ObserveNotification("ledger_failed")
		log.Errorw("notification_ledger_write_failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	result.NotificationID = row.ID
	if !created {
		metrics.ObserveNotification("duplicate")
		log.Infow("notification_duplicate", "notification_id", row.ID, "provider_status", row.ProviderStatus)
		result.Duplicate = true
		return result, nil
	}
	metrics.ObserveNotification("recorded")
	log.Infow("notification_recorded",
		"notification_id", row.ID,
		"provider_status", row.ProviderStatus,
		"status", normalized,
		"order_id", row.OrderID,
		"payment_id", row.PaymentID,
	)

	if row.Terminal() {
		s.invalidatePayment(ctx, row)
	}
	queued, forwarded := s.dispatch(ctx, row.ID)
	result.Queued = queued
	result.Forwarded = forwarded
	return result, nil
}

// dispatch 队列可用时入队，否则同步转发；失败留给补偿任务
func (s *NotificationService) dispatch(ctx context.Context, notificationID uint) (queued bool, forwarded bool) {
	if s.queue != nil && s.queue.Enabled() {
		err := s.queue.EnqueueNotificationForward(queue.NotificationForwardPayload{NotificationID: notificationID})
		if err == nil {
			return true, false
		}
		logger.Warnw("notification_enqueue_failed", "notification_id", notificationID, "error", err)
	}
	if err := s.Forward(ctx, notificationID); err != nil {
		logger.Warnw("notification_forward_inline_failed", "notification_id", notificationID, "error", err)
		return false, false
	}
	return false, true
}

// Forward 转发一条台账记录；已转发的记录直接返回
func (s *NotificationService) Forward(ctx context.Context, notificationID uint) error {
	row, err := s.repo.GetByID(notificationID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if row == nil {
		return ErrNotificationNotFound
	}
	if row.Status == constants.NotificationStatusForwarded {
		return nil
	}
	log := notificationLogger("notification_id", row.ID, "provider_payment_id", row.ProviderPaymentID)

	err = s.forwarder.ForwardPaymentNotification(ctx, backend.PaymentNotification{
		Provider:          row.Provider,
		ProviderPaymentID: row.ProviderPaymentID,
		ProviderStatus:    row.ProviderStatus,
		Status:            row.NormalizedStatus,
		PaymentID:         row.PaymentID,
		OrderID:           row.OrderID,
		Amount:            row.Amount.Decimal,
		Currency:          row.Currency,
		ReceivedAt:        row.CreatedAt,
	})
	if err != nil {
		metrics.ObserveNotificationForward("failed")
		if markErr := s.repo.MarkFailed(row.ID, err.Error()); markErr != nil {
			log.Errorw("notification_mark_failed_error", "error", markErr)
		}
		log.Warnw("notification_forward_failed", "attempts", row.Attempts+1, "error", err)
		return fmt.Errorf("%w: %w", ErrNotificationForward, err)
	}
	if err := s.repo.MarkForwarded(row.ID, s.now()); err != nil {
		log.Errorw("notification_mark_forwarded_error", "error", err)
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	metrics.ObserveNotificationForward("forwarded")
	if row.Terminal() {
		s.invalidatePayment(ctx, row)
	}
	log.Infow("notification_forwarded", "status", row.NormalizedStatus, "order_id", row.OrderID)
	return nil
}

// Retry 管理端手动重发
func (s *NotificationService) Retry(ctx context.Context, notificationID uint) (*NotificationResult, error) {
	row, err := s.repo.GetByID(notificationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if row == nil {
		return nil, ErrNotificationNotFound
	}
	result := &NotificationResult{
		Topic:          row.Topic,
		DataID:         row.ProviderPaymentID,
		NotificationID: row.ID,
		Status:         row.NormalizedStatus,
	}
	if row.Status == constants.NotificationStatusForwarded {
		result.Forwarded = true
		return result, nil
	}
	if err := s.Forward(ctx, row.ID); err != nil {
		return result, err
	}
	result.Forwarded = true
	return result, nil
}

// ReconcilePending 重新派发超过宽限期仍未转发的记录，返回派发数量
func (s *NotificationService) ReconcilePending(ctx context.Context) (int, error) {
	before := s.now().Add(-s.cfg.ReconcileGrace())
	rows, err := s.repo.ListPendingForward(before, s.cfg.MaxAttempts, s.cfg.ReconcileBatch)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	dispatched := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return dispatched, err
		}
		queued, forwarded := s.dispatch(ctx, row.ID)
		if queued || forwarded {
			dispatched++
		}
	}
	if len(rows) > 0 {
		logger.Infow("notification_reconcile_done", "candidates", len(rows), "dispatched", dispatched)
	}
	return dispatched, nil
}

// List 管理端台账列表
func (s *NotificationService) List(filter repository.NotificationListFilter) ([]models.PaymentNotification, int64, error) {
	rows, total, err := s.repo.ListAdmin(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return rows, total, nil
}

func (s *NotificationService) invalidatePayment(ctx context.Context, row *models.PaymentNotification) {
	keys := make([]string, 0, 2)
	if row.OrderID != 0 {
		keys = append(keys, cache.OrderKey(row.OrderID))
	}
	if row.PaymentID != 0 {
		keys = append(keys, cache.PaymentStatusKey(row.PaymentID))
	}
	if len(keys) == 0 {
		return
	}
	if err := s.store.Del(context.WithoutCancel(ctx), keys...); err != nil {
		logger.Warnw("notification_cache_invalidate_failed", "order_id", row.OrderID, "error", err)
	}
}

// IsRetryable 转发错误是否值得重试
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrNotificationNotFound)
}
