package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lotecorto/storefront/internal/backend"
	"github.com/lotecorto/storefront/internal/mercadopago"
	"github.com/lotecorto/storefront/internal/models"
	"github.com/lotecorto/storefront/internal/poller"
	"github.com/lotecorto/storefront/internal/queue"
	"github.com/lotecorto/storefront/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

// memStore 内存版 cache.Store
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memStore) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memStore) InvalidateResource(_ context.Context, resource string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.data {
		if key == resource || strings.HasPrefix(key, resource+":") {
			delete(m.data, key)
		}
	}
	return nil
}

func (m *memStore) SetNX(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = []byte("1")
	return true, nil
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// fakeBackend 记录调用的后端替身
type fakeBackend struct {
	mu sync.Mutex

	orders      map[uint]*backend.Order
	getOrders   int
	updateErr   error
	stateWrites []int

	session        *backend.PaymentSession
	statuses       []string
	statusErr      error
	statusCalls    int
	uploaded       []backend.Voucher
	uploadedBodies []string

	records      map[string]backend.Record
	listCalls    int
	updateBodies []backend.Record

	cart        *backend.Cart
	cartCalls   int
	createdBody backend.Record

	forwardErr error
	forwarded  []backend.PaymentNotification
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		orders:  map[uint]*backend.Order{},
		records: map[string]backend.Record{},
		cart:    &backend.Cart{},
	}
}

func (f *fakeBackend) GetOrder(_ context.Context, orderID uint) (*backend.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getOrders++
	order, ok := f.orders[orderID]
	if !ok {
		return nil, &backend.APIError{StatusCode: 404, Message: "order not found"}
	}
	copied := *order
	return &copied, nil
}

func (f *fakeBackend) UpdateOrderState(_ context.Context, orderID uint, state int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateWrites = append(f.stateWrites, state)
	if f.updateErr != nil {
		return f.updateErr
	}
	if order, ok := f.orders[orderID]; ok {
		order.State = state
	}
	return nil
}

func (f *fakeBackend) CreatePaymentSession(_ context.Context, orderID uint) (*backend.PaymentSession, error) {
	if f.session == nil {
		return nil, &backend.APIError{StatusCode: 400, Message: "no session"}
	}
	s := *f.session
	s.OrderID = orderID
	return &s, nil
}

func (f *fakeBackend) GetPaymentStatus(_ context.Context, _ uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return "", f.statusErr
	}
	if len(f.statuses) == 0 {
		return "pending", nil
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return status, nil
}

func (f *fakeBackend) UploadVoucher(_ context.Context, orderID uint, voucher backend.Voucher) (*backend.Payment, error) {
	content, err := io.ReadAll(voucher.Content)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, voucher)
	f.uploadedBodies = append(f.uploadedBodies, string(content))
	return &backend.Payment{ID: 31, OrderID: orderID, Status: "pending"}, nil
}

func (f *fakeBackend) ListResource(_ context.Context, resource string, _ url.Values) ([]backend.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := []backend.Record{}
	for key, rec := range f.records {
		if strings.HasPrefix(key, resource+"/") {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetResource(_ context.Context, resource string, id uint) (backend.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[fmt.Sprintf("%s/%d", resource, id)]
	if !ok {
		return nil, &backend.APIError{StatusCode: 404, Message: "not found"}
	}
	copied := backend.Record{}
	for k, v := range rec {
		copied[k] = v
	}
	return copied, nil
}

func (f *fakeBackend) CreateResource(_ context.Context, resource string, body backend.Record) (backend.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := float64(len(f.records) + 1)
	rec := backend.Record{"id": id}
	for k, v := range body {
		rec[k] = v
	}
	f.records[fmt.Sprintf("%s/%d", resource, int(id))] = rec
	return rec, nil
}

func (f *fakeBackend) UpdateResource(_ context.Context, resource string, id uint, body backend.Record) (backend.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateBodies = append(f.updateBodies, body)
	key := fmt.Sprintf("%s/%d", resource, id)
	rec := f.records[key]
	for k, v := range body {
		rec[k] = v
	}
	return rec, nil
}

func (f *fakeBackend) DeleteResource(_ context.Context, resource string, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, fmt.Sprintf("%s/%d", resource, id))
	return nil
}

func (f *fakeBackend) GetCart(_ context.Context) (*backend.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cartCalls++
	copied := *f.cart
	return &copied, nil
}

func (f *fakeBackend) AddCartItem(_ context.Context, productID uint, quantity int) (*backend.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cart.Items = append(f.cart.Items, backend.CartItem{ProductID: productID, Quantity: quantity})
	copied := *f.cart
	return &copied, nil
}

func (f *fakeBackend) RemoveCartItem(_ context.Context, productID uint) (*backend.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.cart.Items[:0]
	for _, item := range f.cart.Items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	f.cart.Items = kept
	copied := *f.cart
	return &copied, nil
}

func (f *fakeBackend) CreateOrder(_ context.Context, body backend.Record) (*backend.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdBody = body
	f.cart.Items = nil
	return &backend.Order{ID: 77}, nil
}

func (f *fakeBackend) ForwardPaymentNotification(_ context.Context, n backend.PaymentNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forwardErr != nil {
		return f.forwardErr
	}
	f.forwarded = append(f.forwarded, n)
	return nil
}

func (f *fakeBackend) forwardedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.forwarded)
}

// fakeCheckout 记录偏好输入
type fakeCheckout struct {
	configured bool
	input      mercadopago.PreferenceInput
	err        error
}

func (f *fakeCheckout) Configured() bool { return f.configured }

func (f *fakeCheckout) CreatePreference(_ context.Context, input mercadopago.PreferenceInput) (*mercadopago.Preference, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return &mercadopago.Preference{ID: "pref-1", RedirectURL: "https://mp/checkout"}, nil
}

// fakeLookup 固定返回的支付详情
type fakeLookup struct {
	secret string
	info   *mercadopago.PaymentInfo
	err    error
	calls  int
}

func (f *fakeLookup) GetPayment(_ context.Context, _ string) (*mercadopago.PaymentInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.info
	return &copied, nil
}

func (f *fakeLookup) WebhookSecret() string { return f.secret }

// fakeEnqueuer 记录入队的台账 ID
type fakeEnqueuer struct {
	enabled bool
	ids     []uint
	err     error
}

func (f *fakeEnqueuer) Enabled() bool { return f.enabled }

func (f *fakeEnqueuer) EnqueueNotificationForward(payload queue.NotificationForwardPayload, _ ...asynq.Option) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, payload.NotificationID)
	return nil
}

// immediateTimer 创建即触发的定时器
type immediateTimer struct {
	c chan time.Time
}

func newImmediateTimer(time.Duration) poller.Timer {
	c := make(chan time.Time, 1)
	c <- time.Now()
	return immediateTimer{c: c}
}

func (t immediateTimer) C() <-chan time.Time { return t.c }
func (t immediateTimer) Stop() bool          { return true }

func setupLedger(t *testing.T) *repository.GormNotificationRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:service_ledger_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return repository.NewNotificationRepository(db)
}

func repositoryFilterAll() repository.NotificationListFilter {
	return repository.NotificationListFilter{Page: 1, PageSize: 20}
}
