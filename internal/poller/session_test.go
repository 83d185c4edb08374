package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type handlerRecorder struct {
	mu       sync.Mutex
	accepted []uint
	rejected []uint
	errs     []error
}

func (r *handlerRecorder) Handlers() Handlers {
	return Handlers{
		OnAccepted: func(id uint) {
			r.mu.Lock()
			r.accepted = append(r.accepted, id)
			r.mu.Unlock()
		},
		OnRejected: func(id uint) {
			r.mu.Lock()
			r.rejected = append(r.rejected, id)
			r.mu.Unlock()
		},
		OnError: func(_ uint, err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *handlerRecorder) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accepted), len(r.rejected), len(r.errs)
}

func TestSessionAcceptedClearsPaymentID(t *testing.T) {
	src := &scriptedSource{results: []scriptedResult{pending(), pending(), accepted()}}
	clock := newFakeClock(true)
	rec := &handlerRecorder{}
	p := New(src, WithTimerFunc(clock.newTimer))
	s := p.NewSession(context.Background(), rec.Handlers())
	defer s.Close()

	if _, ok := s.PaymentID(); ok {
		t.Fatalf("new session should not hold a payment id")
	}
	if err := s.Start(42); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-s.Done()

	if id, ok := s.PaymentID(); ok {
		t.Fatalf("payment id should be cleared, got %d", id)
	}
	a, r, e := rec.counts()
	if a != 1 || r != 0 || e != 0 {
		t.Fatalf("handlers want accepted once, got accepted=%d rejected=%d errors=%d", a, r, e)
	}
	if rec.accepted[0] != 42 {
		t.Fatalf("accepted id want 42 got %d", rec.accepted[0])
	}
	if src.Calls() != 3 {
		t.Fatalf("fetch count want 3 got %d", src.Calls())
	}
}

func TestSessionRejected(t *testing.T) {
	src := &scriptedSource{results: []scriptedResult{pending(), rejected()}}
	clock := newFakeClock(true)
	rec := &handlerRecorder{}
	s := New(src, WithTimerFunc(clock.newTimer)).NewSession(context.Background(), rec.Handlers())
	defer s.Close()

	if err := s.Start(7); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-s.Done()

	a, r, e := rec.counts()
	if a != 0 || r != 1 || e != 0 {
		t.Fatalf("handlers want rejected once, got accepted=%d rejected=%d errors=%d", a, r, e)
	}
	if _, ok := s.PaymentID(); ok {
		t.Fatalf("payment id should be cleared after rejection")
	}
}

func TestSessionTransportErrorReported(t *testing.T) {
	src := &scriptedSource{results: []scriptedResult{{err: errors.New("timeout")}}}
	rec := &handlerRecorder{}
	s := New(src, WithTimerFunc(newFakeClock(true).newTimer)).NewSession(context.Background(), rec.Handlers())
	defer s.Close()

	if err := s.Start(3); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-s.Done()

	a, r, e := rec.counts()
	if a != 0 || r != 0 || e != 1 {
		t.Fatalf("handlers want one error, got accepted=%d rejected=%d errors=%d", a, r, e)
	}
	if !errors.Is(rec.errs[0], ErrTransport) {
		t.Fatalf("error should wrap ErrTransport: %v", rec.errs[0])
	}
	if src.Calls() != 1 {
		t.Fatalf("no retry expected, got %d fetches", src.Calls())
	}
	if _, ok := s.PaymentID(); ok {
		t.Fatalf("payment id should be cleared after error")
	}
}

func TestSessionCloseCancelsScheduledFetch(t *testing.T) {
	src := &scriptedSource{results: []scriptedResult{pending()}}
	clock := newFakeClock(false)
	rec := &handlerRecorder{}
	s := New(src, WithTimerFunc(clock.newTimer)).NewSession(context.Background(), rec.Handlers())

	if err := s.Start(11); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-clock.armed
	s.Close()

	if src.Calls() != 1 {
		t.Fatalf("fetch count want 1 got %d", src.Calls())
	}
	a, r, e := rec.counts()
	if a+r+e != 0 {
		t.Fatalf("no handler should run after close")
	}
	if err := s.Start(12); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("start after close want ErrSessionClosed got %v", err)
	}
}

func TestSessionParentCancelTearsDown(t *testing.T) {
	src := &scriptedSource{results: []scriptedResult{pending()}}
	clock := newFakeClock(false)
	rec := &handlerRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	s := New(src, WithTimerFunc(clock.newTimer)).NewSession(ctx, rec.Handlers())
	defer s.Close()

	if err := s.Start(11); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-clock.armed
	cancel()
	<-s.Done()

	if src.Calls() != 1 {
		t.Fatalf("fetch count want 1 got %d", src.Calls())
	}
	a, r, e := rec.counts()
	if a+r+e != 0 {
		t.Fatalf("no handler should run after parent cancel")
	}
}

func TestSessionRestartReplacesPaymentID(t *testing.T) {
	src := &scriptedSource{results: []scriptedResult{pending()}}
	clock := newFakeClock(false)
	s := New(src, WithTimerFunc(clock.newTimer)).NewSession(context.Background(), Handlers{})
	defer s.Close()

	if err := s.Start(1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-clock.armed
	if err := s.Start(2); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	<-clock.armed

	if id, ok := s.PaymentID(); !ok || id != 2 {
		t.Fatalf("payment id want 2 got %d", id)
	}
	if src.Calls() != 2 {
		t.Fatalf("fetch count want 2 got %d", src.Calls())
	}
	if src.requests[1] != 2 {
		t.Fatalf("second fetch should use new id, got %d", src.requests[1])
	}
}

func TestSessionStartRequiresPaymentID(t *testing.T) {
	src := &scriptedSource{results: []scriptedResult{accepted()}}
	s := New(src).NewSession(context.Background(), Handlers{})
	defer s.Close()
	if err := s.Start(0); !errors.Is(err, ErrNoPaymentID) {
		t.Fatalf("want ErrNoPaymentID got %v", err)
	}
	if src.Calls() != 0 {
		t.Fatalf("no fetch expected")
	}
}

func TestSessionStartFromRejectedHandler(t *testing.T) {
	src := &scriptedSource{results: []scriptedResult{rejected(), accepted()}}
	var s *Session
	restartErr := make(chan error, 1)
	acceptedID := make(chan uint, 1)
	s = New(src, WithTimerFunc(newFakeClock(true).newTimer)).NewSession(context.Background(), Handlers{
		OnRejected: func(id uint) { restartErr <- s.Start(id + 1) },
		OnAccepted: func(id uint) { acceptedID <- id },
	})
	defer s.Close()

	if err := s.Start(5); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	select {
	case err := <-restartErr:
		if err != nil {
			t.Fatalf("restart inside handler failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Start inside OnRejected did not return")
	}
	select {
	case id := <-acceptedID:
		if id != 6 {
			t.Fatalf("accepted id want 6 got %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("restarted session never finished")
	}
	if src.requests[0] != 5 || src.requests[1] != 6 {
		t.Fatalf("unexpected fetch ids %v", src.requests)
	}
}

func TestSessionCloseFromAcceptedHandler(t *testing.T) {
	src := &scriptedSource{results: []scriptedResult{accepted()}}
	var s *Session
	closed := make(chan struct{})
	s = New(src, WithTimerFunc(newFakeClock(true).newTimer)).NewSession(context.Background(), Handlers{
		OnAccepted: func(uint) {
			s.Close()
			close(closed)
		},
	})

	if err := s.Start(9); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close inside OnAccepted did not return")
	}
	<-s.Done()
	if err := s.Start(10); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("start after close want ErrSessionClosed got %v", err)
	}
}
