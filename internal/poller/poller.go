package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lotecorto/storefront/internal/logger"
	"github.com/lotecorto/storefront/internal/metrics"
)

// DefaultInterval 两次查询之间的固定间隔
const DefaultInterval = 2 * time.Second

// Status 支付确认状态
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

var (
	// ErrNoPaymentID 未设置支付 ID
	ErrNoPaymentID = errors.New("payment id is not set")
	// ErrTransport 查询支付状态失败
	ErrTransport = errors.New("payment status fetch failed")
	// ErrUnknownStatus 无法识别的状态
	ErrUnknownStatus = errors.New("unknown payment status")
	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("poll session closed")
)

// Terminal 是否为终态
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// ParseStatus 解析后端返回的状态字符串
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusAccepted:
		return StatusAccepted, nil
	case StatusRejected:
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// StatusSource 支付状态来源
type StatusSource interface {
	GetPaymentStatus(ctx context.Context, paymentID uint) (Status, error)
}

// StatusSourceFunc 函数形式的 StatusSource
type StatusSourceFunc func(ctx context.Context, paymentID uint) (Status, error)

// GetPaymentStatus 实现 StatusSource
func (f StatusSourceFunc) GetPaymentStatus(ctx context.Context, paymentID uint) (Status, error) {
	return f(ctx, paymentID)
}

// Timer 可停止的定时器
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

func newRealTimer(d time.Duration) Timer {
	return realTimer{t: time.NewTimer(d)}
}

// Option 轮询器配置项
type Option func(*Poller)

// WithInterval 设置查询间隔
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithTimerFunc 替换定时器实现
func WithTimerFunc(fn func(time.Duration) Timer) Option {
	return func(p *Poller) {
		if fn != nil {
			p.newTimer = fn
		}
	}
}

// Poller 支付确认轮询器
type Poller struct {
	source   StatusSource
	interval time.Duration
	newTimer func(time.Duration) Timer
}

// New 创建轮询器
func New(source StatusSource, opts ...Option) *Poller {
	p := &Poller{
		source:   source,
		interval: DefaultInterval,
		newTimer: newRealTimer,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval 当前查询间隔
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Wait 阻塞轮询直到终态、查询失败或 ctx 取消。
// pending 及其他非终态一律按固定间隔继续查询，不设次数上限。
func (p *Poller) Wait(ctx context.Context, paymentID uint) (Status, error) {
	if paymentID == 0 {
		return "", ErrNoPaymentID
	}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		status, err := p.source.GetPaymentStatus(ctx, paymentID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			metrics.ObservePollFetch("error")
			logger.Debugw("poller_fetch_failed", "payment_id", paymentID, "attempt", attempt, "error", err)
			return "", fmt.Errorf("%w: %w", ErrTransport, err)
		}
		metrics.ObservePollFetch(string(status))
		if status.Terminal() {
			logger.Debugw("poller_terminal", "payment_id", paymentID, "status", status, "attempt", attempt)
			return status, nil
		}

		timer := p.newTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C():
		}
	}
}
