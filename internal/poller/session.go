package poller

import (
	"context"
	"errors"
	"sync"
)

// Handlers 终态回调，均可为空
type Handlers struct {
	OnAccepted func(paymentID uint)
	OnRejected func(paymentID uint)
	OnError    func(paymentID uint, err error)
}

// Session 绑定宿主生命周期的轮询会话，持有当前 paymentID（0 表示未设置）
type Session struct {
	poller   *Poller
	handlers Handlers

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	paymentID uint
	runCancel context.CancelFunc
	runDone   chan struct{}
	gen       uint64
	closed    bool
	// 正在执行的回调数；回调内调用 Start/Close 时不等待本轮结束
	callbacks int
}

// NewSession 创建会话，parent 取消即视为宿主销毁
func (p *Poller) NewSession(parent context.Context, handlers Handlers) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		poller:   p,
		handlers: handlers,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// PaymentID 当前轮询的支付 ID
func (s *Session) PaymentID() (uint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paymentID, s.paymentID != 0
}

// Start 设置支付 ID 并立即开始查询；已有轮询时先停止旧的
func (s *Session) Start(paymentID uint) error {
	if paymentID == 0 {
		return ErrNoPaymentID
	}
	s.mu.Lock()
	if s.closed || s.ctx.Err() != nil {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	prevCancel, prevDone := s.runCancel, s.runDone
	inCallback := s.callbacks > 0
	s.gen++
	gen := s.gen
	runCtx, runCancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.paymentID = paymentID
	s.runCancel = runCancel
	s.runDone = done
	s.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		if !inCallback {
			<-prevDone
		}
	}

	go s.run(runCtx, gen, paymentID, done)
	return nil
}

// Done 当前一轮轮询结束时关闭；未启动时返回 nil
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runDone
}

// Close 取消待执行的查询并等待轮询协程退出，之后不会再有查询。
// 可在回调内调用；已进入执行的回调不受影响。
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	done := s.runDone
	inCallback := s.callbacks > 0
	s.mu.Unlock()

	s.cancel()
	if done != nil && !inCallback {
		<-done
	}
	s.mu.Lock()
	s.paymentID = 0
	s.mu.Unlock()
}

func (s *Session) run(ctx context.Context, gen uint64, paymentID uint, done chan struct{}) {
	defer close(done)

	status, err := s.poller.Wait(ctx, paymentID)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.paymentID = 0
	s.runCancel()
	s.callbacks++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.callbacks--
		s.mu.Unlock()
	}()
	switch {
	case err != nil:
		if s.handlers.OnError != nil {
			s.handlers.OnError(paymentID, err)
		}
	case status == StatusAccepted:
		if s.handlers.OnAccepted != nil {
			s.handlers.OnAccepted(paymentID)
		}
	case status == StatusRejected:
		if s.handlers.OnRejected != nil {
			s.handlers.OnRejected(paymentID)
		}
	}
}
