package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestRegister_FiresRepeatedly(t *testing.T) {
	s := New(context.Background(), zap.NewNop())
	defer s.Stop()

	var n atomic.Int32
	if err := s.Register("checkAyaOutages", 2*time.Millisecond, func(ctx context.Context) { n.Add(1) }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	waitFor(t, func() bool { return n.Load() >= 2 })

	if p, ok := s.Period("checkAyaOutages"); !ok || p != 2*time.Millisecond {
		t.Fatalf("period = %v %v", p, ok)
	}
}

func TestRegister_ReplacesSameName(t *testing.T) {
	s := New(context.Background(), zap.NewNop())
	defer s.Stop()

	var first, second atomic.Int32
	_ = s.Register("alarm", 2*time.Millisecond, func(ctx context.Context) { first.Add(1) })
	waitFor(t, func() bool { return first.Load() >= 1 })

	if err := s.Register("alarm", time.Millisecond, func(ctx context.Context) { second.Add(1) }); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	stopped := first.Load()
	waitFor(t, func() bool { return second.Load() >= 3 })

	if got := first.Load(); got != stopped {
		t.Fatalf("old timer kept firing: %d -> %d", stopped, got)
	}
	if names := s.Names(); len(names) != 1 || names[0] != "alarm" {
		t.Fatalf("want one timer, got %v", names)
	}
}

func TestRegister_RejectsNonPositive(t *testing.T) {
	s := New(context.Background(), nil)
	if err := s.Register("x", 0, func(context.Context) {}); err == nil {
		t.Fatalf("expected error for zero period")
	}
}

func TestCancelAndStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, zap.NewNop())

	var a, b atomic.Int32
	_ = s.Register("a", time.Millisecond, func(context.Context) { a.Add(1) })
	_ = s.Register("b", time.Millisecond, func(context.Context) { b.Add(1) })

	if !s.Cancel("a") {
		t.Fatalf("Cancel(a) should report true")
	}
	if s.Cancel("missing") {
		t.Fatalf("Cancel(missing) should report false")
	}
	afterCancel := a.Load()
	waitFor(t, func() bool { return b.Load() >= 2 })
	if a.Load() != afterCancel {
		t.Fatalf("cancelled timer fired")
	}

	s.Stop()
	afterStop := b.Load()
	time.Sleep(10 * time.Millisecond)
	if b.Load() != afterStop {
		t.Fatalf("timer fired after Stop")
	}
	if len(s.Names()) != 0 {
		t.Fatalf("timers left after Stop: %v", s.Names())
	}
}
