// Package session exposes the application-facing session façade:
// current user, authentication state, login, logout and manual refresh,
// kept consistent with the persisted store through the event bus.
package session

import (
	"context"
	"sync"
	"time"

	"go.pilab.hu/authflow/bus"
	"go.pilab.hu/authflow/client"
	"go.pilab.hu/authflow/domain"
	"go.pilab.hu/authflow/internal/metrics"
	"go.pilab.hu/authflow/log"
	"go.pilab.hu/authflow/refresh"
	"go.pilab.hu/authflow/store"
)

// Manager reconciles the persisted session, the event bus and the
// coordinator into one consumer-facing state.
type Manager struct {
	api         *client.Client
	store       store.SessionStore
	bus         bus.Bus
	coordinator *refresh.Coordinator
	window      time.Duration
	logger      log.Logger
	now         func() time.Time

	mu           sync.RWMutex
	user         *domain.UserRecord
	sessionID    string
	initializing bool

	unsubscribe func()
}

// Option customizes a Manager.
type Option func(*Manager)

// WithNearExpiryWindow overrides the near-expiry margin.
func WithNearExpiryWindow(window time.Duration) Option {
	return func(m *Manager) { m.window = window }
}

// WithLogger sets the manager's logger.
func WithLogger(logger log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager and subscribes it to session changes.
// Call Initialize before trusting Authenticated: until then a reloaded
// process with a still-valid session would briefly look logged out.
func NewManager(api *client.Client, st store.SessionStore, b bus.Bus, coord *refresh.Coordinator, opts ...Option) *Manager {
	m := &Manager{
		api:          api,
		store:        st,
		bus:          b,
		coordinator:  coord,
		window:       domain.DefaultNearExpiryWindow,
		logger:       log.NewNop(),
		now:          time.Now,
		initializing: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.unsubscribe = b.Subscribe(m.onSessionChange)
	return m
}

// Initialize populates state from the store, then, when a session id
// survives but its access token is absent or near expiry, performs one
// best-effort refresh before declaring initialization complete. A failed
// restore ends with a cleanly logged-out state, never an error.
func (m *Manager) Initialize(ctx context.Context) error {
	defer func() {
		m.mu.Lock()
		m.initializing = false
		m.mu.Unlock()
	}()

	record, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	m.setFromRecord(record)

	if record.HasSession() && record.NearExpiry(m.window, m.now()) {
		if _, err := m.coordinator.AcquireToken(ctx); err != nil {
			m.logger.Warn(ctx, "session restore refresh failed",
				map[string]interface{}{"reason": err.Error()})
		}
	}
	return nil
}

// onSessionChange reconciles a bus notification into manager state.
func (m *Manager) onSessionChange(user *domain.UserRecord) {
	if user == nil {
		m.mu.Lock()
		m.user = nil
		m.sessionID = ""
		m.mu.Unlock()
		return
	}
	record, err := m.store.Load(context.Background())
	if err != nil {
		m.logger.Error(context.Background(), "failed to reload session after change", err)
		return
	}
	m.setFromRecord(record)
}

func (m *Manager) setFromRecord(record *domain.SessionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record == nil {
		m.user = nil
		m.sessionID = ""
		return
	}
	m.user = record.User
	m.sessionID = record.SessionID
}

// Login authenticates, persists the new session and publishes the
// change to every subscriber.
func (m *Manager) Login(ctx context.Context, username, password string) (*domain.UserRecord, error) {
	record, err := m.api.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, record); err != nil {
		return nil, err
	}
	metrics.LoginsTotal.Inc()
	m.bus.Publish(ctx, record.User)
	m.logger.Info(ctx, "logged in",
		map[string]interface{}{"username": username})
	return record.User, nil
}

// Logout invalidates the session server-side on a best-effort basis,
// then unconditionally clears local state. Logout always wins: even a
// refresh completing mid-logout observes the cleared session.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.api.Logout(ctx); err != nil {
		m.logger.Warn(ctx, "server logout failed, clearing local session anyway",
			map[string]interface{}{"reason": err.Error()})
	}
	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	metrics.LogoutsTotal.Inc()
	m.bus.Publish(ctx, nil)
	return nil
}

// Refresh forces one coordinated token refresh.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err := m.coordinator.AcquireToken(ctx)
	return err
}

// CurrentUser returns the logged-in user, or nil.
func (m *Manager) CurrentUser() *domain.UserRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// Authenticated reports whether both a user and a session id are present.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && m.sessionID != ""
}

// Initializing reports whether the initial restore is still running.
func (m *Manager) Initializing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initializing
}

// NearExpiry reports whether the stored access token is inside the
// proactive-refresh window.
func (m *Manager) NearExpiry(ctx context.Context) bool {
	record, err := m.store.Load(ctx)
	if err != nil || record == nil {
		return false
	}
	return record.NearExpiry(m.window, m.now())
}

// Close detaches the manager from the event bus.
func (m *Manager) Close() error {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return nil
}
