// Package scheduler refreshes the access token ahead of its expiry even
// when no request is pending.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.pilab.hu/authflow/bus"
	"go.pilab.hu/authflow/domain"
	"go.pilab.hu/authflow/log"
	"go.pilab.hu/authflow/refresh"
	"go.pilab.hu/authflow/store"
)

// minRefireInterval bounds back-to-back refreshes. A server issuing
// tokens that live no longer than the near-expiry window would
// otherwise re-arm straight into another immediate fire.
const minRefireInterval = 2 * time.Second

// Scheduler arms a one-shot timer at expiry minus the near-expiry
// window. Every session change re-arms it: a new record computes a
// fresh deadline, a logout cancels the pending one. Close cancels the
// timer and detaches from the event bus.
type Scheduler struct {
	coordinator *refresh.Coordinator
	store       store.SessionStore
	window      time.Duration
	logger      log.Logger
	now         func() time.Time

	mu          sync.Mutex
	timer       *time.Timer
	lastFire    time.Time
	closed      bool
	unsubscribe func()
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithNearExpiryWindow overrides the refresh margin.
func WithNearExpiryWindow(window time.Duration) Option {
	return func(s *Scheduler) { s.window = window }
}

// WithLogger sets the scheduler's logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler, arms it from the currently stored session,
// and keeps it armed from session changes on b.
func New(coord *refresh.Coordinator, st store.SessionStore, b bus.Bus, opts ...Option) *Scheduler {
	s := &Scheduler{
		coordinator: coord,
		store:       st,
		window:      domain.DefaultNearExpiryWindow,
		logger:      log.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribe = b.Subscribe(func(user *domain.UserRecord) {
		if user == nil {
			s.cancel()
			return
		}
		s.Rearm(context.Background())
	})
	s.Rearm(context.Background())
	return s
}

// Rearm cancels any pending timer and computes a fresh deadline from
// the stored record. A deadline already in the past triggers an
// immediate refresh.
func (s *Scheduler) Rearm(ctx context.Context) {
	record, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to load session for refresh scheduling", err)
		return
	}
	if !record.HasSession() || record.AccessToken == "" {
		s.cancel()
		return
	}

	delay := record.ExpiresAt.Add(-s.window).Sub(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if delay <= 0 {
		if wait := minRefireInterval - s.now().Sub(s.lastFire); wait > 0 {
			s.timer = time.AfterFunc(wait, s.fire)
			return
		}
		go s.fire()
		return
	}
	s.logger.Debug(ctx, "scheduled proactive refresh",
		map[string]interface{}{"in": delay.String()})
	s.timer = time.AfterFunc(delay, s.fire)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	s.lastFire = s.now()
	s.mu.Unlock()

	ctx := context.Background()
	if _, err := s.coordinator.AcquireToken(ctx); err != nil {
		s.logger.Warn(ctx, "scheduled refresh failed",
			map[string]interface{}{"reason": err.Error()})
	}
	// On success the coordinator publishes the new record and the bus
	// subscription re-arms the timer; nothing more to do here.
}

func (s *Scheduler) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Close cancels the pending timer and detaches from the bus.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	return nil
}
