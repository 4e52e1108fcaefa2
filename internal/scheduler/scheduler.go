package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Func is invoked on every tick of a named timer. It must not re-register
// or cancel its own timer.
type Func func(ctx context.Context)

type timer struct {
	period time.Duration
	stop   context.CancelFunc
	done   chan struct{}
}

// Scheduler runs named recurring timers. Registering a name that already
// exists replaces the old timer.
type Scheduler struct {
	mu     sync.Mutex
	ctx    context.Context
	timers map[string]*timer
	log    *zap.Logger
}

// New ties every timer to ctx; cancelling ctx stops them all. Ticks run
// with ctx, so replacing a timer does not abort a tick already running.
func New(ctx context.Context, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{ctx: ctx, timers: make(map[string]*timer), log: log}
}

// Register starts a timer that first fires one period from now. It returns
// once any timer it replaced has finished its current tick.
func (s *Scheduler) Register(name string, period time.Duration, fn Func) error {
	if period <= 0 {
		return fmt.Errorf("scheduler: period for %q must be positive, got %s", name, period)
	}
	loopCtx, stop := context.WithCancel(s.ctx)
	t := &timer{period: period, stop: stop, done: make(chan struct{})}

	s.mu.Lock()
	old := s.timers[name]
	s.timers[name] = t
	s.mu.Unlock()

	if old != nil {
		old.stop()
		<-old.done
	}
	go s.loop(loopCtx, name, t, fn)

	s.log.Info("timer_registered", zap.String("name", name), zap.Duration("period", period))
	return nil
}

func (s *Scheduler) loop(loopCtx context.Context, name string, t *timer, fn Func) {
	defer close(t.done)
	tk := time.NewTicker(t.period)
	defer tk.Stop()

	for {
		select {
		case <-loopCtx.Done():
			s.log.Debug("timer_stopped", zap.String("name", name))
			return
		case <-tk.C:
			if loopCtx.Err() != nil {
				return
			}
			fn(s.ctx)
		}
	}
}

// Cancel stops the named timer. It reports whether one was registered.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	t, ok := s.timers[name]
	delete(s.timers, name)
	s.mu.Unlock()
	if !ok {
		return false
	}
	t.stop()
	<-t.done
	return true
}

// Period returns the period of a registered timer.
func (s *Scheduler) Period(name string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[name]
	if !ok {
		return 0, false
	}
	return t.period, true
}

func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.timers))
	for n := range s.timers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Stop cancels every timer and waits for running ticks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	timers := s.timers
	s.timers = make(map[string]*timer)
	s.mu.Unlock()

	for _, t := range timers {
		t.stop()
	}
	for _, t := range timers {
		<-t.done
	}
	s.log.Info("scheduler_stopped")
}
