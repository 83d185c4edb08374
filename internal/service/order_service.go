package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lotecorto/storefront/internal/backend"
	"github.com/lotecorto/storefront/internal/cache"
	"github.com/lotecorto/storefront/internal/form"
	"github.com/lotecorto/storefront/internal/logger"
	"github.com/lotecorto/storefront/internal/metrics"
	"github.com/lotecorto/storefront/internal/orderstate"
)

// OrderBackend 订单相关的后端调用
type OrderBackend interface {
	GetOrder(ctx context.Context, orderID uint) (*backend.Order, error)
	UpdateOrderState(ctx context.Context, orderID uint, state int) error
}

// OrderService 订单视图与履约状态
type OrderService struct {
	backend OrderBackend
	store   cache.Store
	ttl     time.Duration
}

// NewOrderService 创建订单服务
func NewOrderService(b OrderBackend, store cache.Store, ttl time.Duration) *OrderService {
	if store == nil {
		store = cache.Redis()
	}
	return &OrderService{backend: b, store: store, ttl: ttl}
}

// OrderView 订单及解码后的状态位
type OrderView struct {
	*backend.Order
	Flags      orderstate.State `json:"flags"`
	StateBits  string           `json:"state_bits"`
	StateValid bool             `json:"state_valid"`
}

// StateChange 状态变更结果；Applied=false 时 Current 等于 Previous
type StateChange struct {
	OrderID  uint             `json:"order_id"`
	Flag     string           `json:"flag,omitempty"`
	Previous orderstate.State `json:"previous"`
	Current  orderstate.State `json:"current"`
	State    int              `json:"state"`
	Applied  bool             `json:"applied"`
}

// GetOrderView 读取订单视图（走缓存）
func (s *OrderService) GetOrderView(ctx context.Context, orderID uint) (*OrderView, error) {
	if orderID == 0 {
		return nil, ErrInvalidOrderID
	}
	key := cache.OrderKey(orderID)
	var cached OrderView
	hit, err := s.store.GetJSON(ctx, key, &cached)
	if err != nil {
		logger.Warnw("order_cache_read_failed", "order_id", orderID, "error", err)
	}
	if hit && cached.Order != nil {
		metrics.ObserveCacheLookup(cache.ResourceOrder, true)
		return &cached, nil
	}
	metrics.ObserveCacheLookup(cache.ResourceOrder, false)

	order, err := s.backend.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	view := buildOrderView(order)
	if err := s.store.SetJSON(ctx, key, view, s.ttl); err != nil {
		logger.Warnw("order_cache_write_failed", "order_id", orderID, "error", err)
	}
	return view, nil
}

func buildOrderView(order *backend.Order) *OrderView {
	view := &OrderView{Order: order, StateBits: "----"}
	state, err := orderstate.Parse(order.State)
	if err != nil {
		logger.Warnw("order_state_out_of_range", "order_id", order.ID, "state", order.State)
		return view
	}
	view.Flags = state
	view.StateBits = state.String()
	view.StateValid = true
	return view
}

// ToggleFlag 翻转单个状态位并提交完整整数；提交失败时返回翻转前的状态
func (s *OrderService) ToggleFlag(ctx context.Context, orderID uint, flag orderstate.Flag) (*StateChange, error) {
	if orderID == 0 {
		return nil, ErrInvalidOrderID
	}
	if !flag.Valid() {
		return nil, ErrInvalidFlag
	}
	current, err := s.currentState(ctx, orderID)
	if err != nil {
		return nil, err
	}
	next, encoded := orderstate.Toggle(current, flag)
	change := &StateChange{
		OrderID:  orderID,
		Flag:     flag.String(),
		Previous: current,
		Current:  current,
		State:    orderstate.Encode(current),
	}
	if err := s.backend.UpdateOrderState(ctx, orderID, encoded); err != nil {
		metrics.ObserveStateChange(flag.String(), "failed")
		logger.Warnw("order_state_toggle_failed", "order_id", orderID, "flag", flag.String(), "state", encoded, "error", err)
		return change, err
	}
	change.Current = next
	change.State = encoded
	change.Applied = true
	metrics.ObserveStateChange(flag.String(), "applied")
	s.invalidate(ctx, orderID)
	logger.Infow("order_state_toggled", "order_id", orderID, "flag", flag.String(), "from", change.Previous.String(), "to", next.String())
	return change, nil
}

// SetState 整体设置状态位；与当前值相同则不提交
func (s *OrderService) SetState(ctx context.Context, orderID uint, target orderstate.State) (*StateChange, error) {
	if orderID == 0 {
		return nil, ErrInvalidOrderID
	}
	order, err := s.backend.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	current, parseErr := orderstate.Parse(order.State)

	tracker := form.NewTracker(current)
	tracker.Set(target)
	change := &StateChange{
		OrderID:  orderID,
		Previous: current,
		Current:  current,
		State:    order.State,
	}
	// 越界的存量值总是覆盖
	if parseErr == nil && !tracker.IsDirty() {
		metrics.ObserveStateChange("all", "unchanged")
		return change, nil
	}

	encoded := orderstate.Encode(tracker.Current())
	if err := s.backend.UpdateOrderState(ctx, orderID, encoded); err != nil {
		metrics.ObserveStateChange("all", "failed")
		logger.Warnw("order_state_set_failed", "order_id", orderID, "state", encoded, "error", err)
		return change, err
	}
	tracker.Commit()
	change.Current = tracker.Baseline()
	change.State = encoded
	change.Applied = true
	metrics.ObserveStateChange("all", "applied")
	s.invalidate(ctx, orderID)
	return change, nil
}

// Invalidate 使订单视图缓存失效
func (s *OrderService) Invalidate(ctx context.Context, orderID uint) {
	s.invalidate(ctx, orderID)
}

func (s *OrderService) currentState(ctx context.Context, orderID uint) (orderstate.State, error) {
	order, err := s.backend.GetOrder(ctx, orderID)
	if err != nil {
		return orderstate.State{}, err
	}
	state, err := orderstate.Parse(order.State)
	if err != nil {
		return orderstate.State{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return state, nil
}

func (s *OrderService) invalidate(ctx context.Context, orderID uint) {
	if orderID == 0 {
		return
	}
	if err := s.store.Del(ctx, cache.OrderKey(orderID)); err != nil {
		logger.Warnw("order_cache_invalidate_failed", "order_id", orderID, "error", err)
	}
}
