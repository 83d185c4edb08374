package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/lotecorto/storefront/internal/cache"
	"github.com/lotecorto/storefront/internal/config"
	"github.com/lotecorto/storefront/internal/constants"
	"github.com/lotecorto/storefront/internal/mercadopago"

	"github.com/shopspring/decimal"
)

type notificationFixture struct {
	svc     *NotificationService
	backend *fakeBackend
	lookup  *fakeLookup
	queue   *fakeEnqueuer
	store   *memStore
}

func newNotificationFixture(t *testing.T, status string) *notificationFixture {
	t.Helper()
	fb := newFakeBackend()
	lookup := &fakeLookup{info: &mercadopago.PaymentInfo{
		ID:                json.Number("123456"),
		Status:            status,
		ExternalReference: "15",
		Metadata:          map[string]interface{}{"payment_id": json.Number("900")},
		TransactionAmount: decimal.RequireFromString("1500.50"),
		CurrencyID:        "ARS",
	}}
	enqueuer := &fakeEnqueuer{}
	store := newMemStore()
	svc := NewNotificationService(setupLedger(t), lookup, fb, enqueuer, store, config.NotifyConfig{
		MaxAttempts:          10,
		ReconcileBatch:       50,
		ReconcileGraceSecond: 60,
		BurstWindowSeconds:   30,
	})
	return &notificationFixture{svc: svc, backend: fb, lookup: lookup, queue: enqueuer, store: store}
}

func webhookInput(action string) NotificationInput {
	return NotificationInput{
		Body: []byte(`{"type":"payment","action":"` + action + `","data":{"id":"123456"}}`),
	}
}

func TestHandleNotificationForwardsOnce(t *testing.T) {
	fx := newNotificationFixture(t, "approved")
	ctx := context.Background()
	if err := fx.store.SetJSON(ctx, cache.OrderKey(15), map[string]int{"id": 15}, 0); err != nil {
		t.Fatalf("seed cache failed: %v", err)
	}

	result, err := fx.svc.HandleNotification(ctx, webhookInput("payment.updated"))
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if result.Duplicate || result.Ignored || !result.Forwarded || result.Status != constants.PaymentStatusAccepted {
		t.Fatalf("unexpected result %+v", result)
	}
	if fx.backend.forwardedCount() != 1 {
		t.Fatalf("want 1 forward got %d", fx.backend.forwardedCount())
	}
	forwarded := fx.backend.forwarded[0]
	if forwarded.ProviderPaymentID != "123456" || forwarded.OrderID != 15 || forwarded.PaymentID != 900 || forwarded.Status != "accepted" {
		t.Fatalf("unexpected forwarded payload %+v", forwarded)
	}
	if fx.store.has(cache.OrderKey(15)) {
		t.Fatalf("accepted notification should invalidate the order view")
	}

	// 处理完成后占位已释放，顺序重投由台账去重
	guardKey := cache.NotificationGuardKey(constants.PaymentProviderMercadoPago, "123456", "payment.updated")
	if fx.store.has(guardKey) {
		t.Fatalf("guard should be released once the notification is recorded")
	}
	again, err := fx.svc.HandleNotification(ctx, webhookInput("payment.updated"))
	if err != nil || !again.Duplicate || again.NotificationID != result.NotificationID {
		t.Fatalf("ledger duplicate expected, got %+v err %v", again, err)
	}

	// 相同投递仍在处理中时由 SETNX 占位吸收，不查询 MercadoPago
	if _, err := fx.store.SetNX(ctx, guardKey, time.Minute); err != nil {
		t.Fatalf("seed guard failed: %v", err)
	}
	calls := fx.lookup.calls
	burst, err := fx.svc.HandleNotification(ctx, webhookInput("payment.updated"))
	if err != nil || !burst.Duplicate {
		t.Fatalf("in-flight duplicate expected, got %+v err %v", burst, err)
	}
	if fx.lookup.calls != calls {
		t.Fatalf("in-flight duplicate should not hit the provider, calls=%d", fx.lookup.calls)
	}
	_ = fx.store.Del(ctx, guardKey)

	// 不同 action 但支付状态未变，由台账去重
	dup, err := fx.svc.HandleNotification(ctx, webhookInput("payment.created"))
	if err != nil || !dup.Duplicate || dup.NotificationID != result.NotificationID {
		t.Fatalf("ledger duplicate expected, got %+v err %v", dup, err)
	}
	if fx.backend.forwardedCount() != 1 {
		t.Fatalf("duplicate must not be forwarded again, got %d", fx.backend.forwardedCount())
	}
}

func TestHandleNotificationNewStatusIsForwarded(t *testing.T) {
	fx := newNotificationFixture(t, "pending")
	ctx := context.Background()
	first, err := fx.svc.HandleNotification(ctx, webhookInput("payment.created"))
	if err != nil || first.Status != constants.PaymentStatusPending {
		t.Fatalf("pending notification failed: %+v err %v", first, err)
	}

	fx.lookup.info.Status = "approved"
	second, err := fx.svc.HandleNotification(ctx, webhookInput("payment.updated"))
	if err != nil || second.Duplicate || second.NotificationID == first.NotificationID {
		t.Fatalf("status change should be a new notification, got %+v err %v", second, err)
	}
	if fx.backend.forwardedCount() != 2 {
		t.Fatalf("want 2 forwards got %d", fx.backend.forwardedCount())
	}
}

func TestHandleNotificationStatusChangeWithSameAction(t *testing.T) {
	fx := newNotificationFixture(t, "pending")
	ctx := context.Background()
	first, err := fx.svc.HandleNotification(ctx, webhookInput("payment.updated"))
	if err != nil || first.Status != constants.PaymentStatusPending || !first.Forwarded {
		t.Fatalf("pending notification failed: %+v err %v", first, err)
	}

	fx.lookup.info.Status = "approved"
	second, err := fx.svc.HandleNotification(ctx, webhookInput("payment.updated"))
	if err != nil {
		t.Fatalf("approval failed: %v", err)
	}
	if second.Duplicate || !second.Forwarded || second.Status != constants.PaymentStatusAccepted {
		t.Fatalf("approval must be recorded and forwarded, got %+v", second)
	}
	if second.NotificationID == 0 || second.NotificationID == first.NotificationID {
		t.Fatalf("approval needs its own ledger row, got %d after %d", second.NotificationID, first.NotificationID)
	}
	if fx.lookup.calls != 2 || fx.backend.forwardedCount() != 2 {
		t.Fatalf("want 2 lookups and 2 forwards, got %d and %d", fx.lookup.calls, fx.backend.forwardedCount())
	}
	if fx.backend.forwarded[1].Status != constants.PaymentStatusAccepted {
		t.Fatalf("second forward should carry the approval: %+v", fx.backend.forwarded[1])
	}
}

func TestHandleNotificationUnmappedStatusReleasesGuard(t *testing.T) {
	fx := newNotificationFixture(t, "mystery")
	ctx := context.Background()
	result, err := fx.svc.HandleNotification(ctx, webhookInput("payment.updated"))
	if err != nil || !result.Ignored {
		t.Fatalf("unmapped status should be ignored, got %+v err %v", result, err)
	}
	if fx.store.has(cache.NotificationGuardKey(constants.PaymentProviderMercadoPago, "123456", "payment.updated")) {
		t.Fatalf("guard should be released for ignored statuses")
	}

	fx.lookup.info.Status = "approved"
	next, err := fx.svc.HandleNotification(ctx, webhookInput("payment.updated"))
	if err != nil || next.Duplicate || !next.Forwarded {
		t.Fatalf("later approval should be processed, got %+v err %v", next, err)
	}
}

func TestHandleNotificationIgnoresOtherTopics(t *testing.T) {
	fx := newNotificationFixture(t, "approved")
	result, err := fx.svc.HandleNotification(context.Background(), NotificationInput{
		Query: url.Values{"topic": {"merchant_order"}, "id": {"42"}},
	})
	if err != nil || !result.Ignored {
		t.Fatalf("merchant_order should be ignored, got %+v err %v", result, err)
	}
	if fx.lookup.calls != 0 {
		t.Fatalf("ignored topic should not be looked up")
	}
}

func TestHandleNotificationRejectsBadInput(t *testing.T) {
	fx := newNotificationFixture(t, "approved")
	ctx := context.Background()
	if _, err := fx.svc.HandleNotification(ctx, NotificationInput{Body: []byte("{")}); !errors.Is(err, ErrNotificationInvalid) {
		t.Fatalf("want ErrNotificationInvalid got %v", err)
	}

	fx.lookup.secret = "whsec"
	input := webhookInput("payment.updated")
	input.Signature = "ts=1,v1=deadbeef"
	input.RequestID = "req-1"
	if _, err := fx.svc.HandleNotification(ctx, input); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("want ErrSignatureInvalid got %v", err)
	}

	input.Signature = "ts=1,v1=" + mercadopago.Sign("whsec", "req-1", "123456", "1")
	if _, err := fx.svc.HandleNotification(ctx, input); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestHandleNotificationLookupFailureReleasesGuard(t *testing.T) {
	fx := newNotificationFixture(t, "approved")
	fx.lookup.err = errors.New("mp timeout")
	ctx := context.Background()

	if _, err := fx.svc.HandleNotification(ctx, webhookInput("payment.updated")); !errors.Is(err, ErrNotificationLookup) {
		t.Fatalf("want ErrNotificationLookup got %v", err)
	}
	if fx.store.has(cache.NotificationGuardKey(constants.PaymentProviderMercadoPago, "123456", "payment.updated")) {
		t.Fatalf("guard should be released after a processing error")
	}

	fx.lookup.err = nil
	result, err := fx.svc.HandleNotification(ctx, webhookInput("payment.updated"))
	if err != nil || result.Duplicate || !result.Forwarded {
		t.Fatalf("redelivery should be processed, got %+v err %v", result, err)
	}
}

func TestHandleNotificationQueuesWhenEnabled(t *testing.T) {
	fx := newNotificationFixture(t, "approved")
	fx.queue.enabled = true

	result, err := fx.svc.HandleNotification(context.Background(), webhookInput("payment.updated"))
	if err != nil || !result.Queued || result.Forwarded {
		t.Fatalf("want queued result got %+v err %v", result, err)
	}
	if len(fx.queue.ids) != 1 || fx.queue.ids[0] != result.NotificationID {
		t.Fatalf("unexpected enqueued ids %v", fx.queue.ids)
	}
	if fx.backend.forwardedCount() != 0 {
		t.Fatalf("queued notification should not be forwarded inline")
	}

	if err := fx.svc.Forward(context.Background(), result.NotificationID); err != nil {
		t.Fatalf("forward from worker failed: %v", err)
	}
	// 已转发的记录重复执行不会再次发送
	if err := fx.svc.Forward(context.Background(), result.NotificationID); err != nil {
		t.Fatalf("second forward failed: %v", err)
	}
	if fx.backend.forwardedCount() != 1 {
		t.Fatalf("want 1 forward got %d", fx.backend.forwardedCount())
	}
	if err := fx.svc.Forward(context.Background(), 9999); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("want ErrNotificationNotFound got %v", err)
	}
}

func TestReconcilePendingRetriesFailedForwards(t *testing.T) {
	fx := newNotificationFixture(t, "rejected")
	fx.backend.forwardErr = errors.New("backend 502")
	ctx := context.Background()

	result, err := fx.svc.HandleNotification(ctx, webhookInput("payment.updated"))
	if err != nil {
		t.Fatalf("handle should acknowledge even when forwarding fails: %v", err)
	}
	if result.Forwarded || result.NotificationID == 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	// 宽限期内不补偿
	if n, err := fx.svc.ReconcilePending(ctx); err != nil || n != 0 {
		t.Fatalf("within grace want 0 got %d err %v", n, err)
	}

	fx.backend.forwardErr = nil
	fx.svc.now = func() time.Time { return time.Now().Add(5 * time.Minute) }
	n, err := fx.svc.ReconcilePending(ctx)
	if err != nil || n != 1 {
		t.Fatalf("want 1 dispatched got %d err %v", n, err)
	}
	if fx.backend.forwardedCount() != 1 {
		t.Fatalf("want reconciled forward, got %d", fx.backend.forwardedCount())
	}

	rows, total, err := fx.svc.List(repositoryFilterAll())
	if err != nil || total != 1 || rows[0].Status != constants.NotificationStatusForwarded || rows[0].Attempts != 2 {
		t.Fatalf("unexpected ledger rows %+v total %d err %v", rows, total, err)
	}
}
