// Package refresh deduplicates concurrent token refresh requests into
// exactly one network call per cycle.
package refresh

import (
	"context"
	"sync"

	"go.pilab.hu/authflow/bus"
	"go.pilab.hu/authflow/client"
	"go.pilab.hu/authflow/domain"
	autherrors "go.pilab.hu/authflow/errors"
	"go.pilab.hu/authflow/internal/metrics"
	"go.pilab.hu/authflow/log"
	"go.pilab.hu/authflow/store"
)

// Refresher issues the refresh network call. *client.Client implements it.
type Refresher interface {
	Refresh(ctx context.Context, sessionID string, extend bool) (*client.TokenResult, error)
}

type result struct {
	token string
	err   error
}

// Coordinator serializes refresh attempts. However many logical callers
// request a token while a cycle is running, one network call is issued;
// every caller receives that cycle's outcome, waiters strictly in
// arrival order.
//
// Coordinators are plain values with internal state: instantiate one per
// store, or one per test.
type Coordinator struct {
	refresher Refresher
	store     store.SessionStore
	bus       bus.Bus
	logger    log.Logger
	extend    bool

	mu       sync.Mutex
	inflight bool
	waiters  []chan result
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithExtendSession asks the server to extend the session's own
// lifetime on every refresh.
func WithExtendSession(extend bool) Option {
	return func(c *Coordinator) { c.extend = extend }
}

// WithLogger sets the coordinator's logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// NewCoordinator creates a Coordinator around the given refresher,
// session store and event bus.
func NewCoordinator(refresher Refresher, st store.SessionStore, b bus.Bus, opts ...Option) *Coordinator {
	c := &Coordinator{
		refresher: refresher,
		store:     st,
		bus:       b,
		logger:    log.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AcquireToken returns a live access token, refreshing it over the
// network if necessary. Concurrent callers share a single network call.
//
// On success the new record is persisted and a session change is
// published before any caller is released. On failure, including the
// absence of a session id, the persisted session is cleared, a logout
// change is published, and every caller receives the same classified
// error; the raw transport detail never escapes.
func (c *Coordinator) AcquireToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.inflight {
		ch := make(chan result, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()
		metrics.RefreshDedupedTotal.Inc()
		select {
		case r := <-ch:
			return r.token, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.inflight = true
	c.mu.Unlock()

	token, err := c.runCycle(ctx)

	c.mu.Lock()
	pending := c.waiters
	c.waiters = nil
	c.inflight = false
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- result{token: token, err: err}
	}
	return token, err
}

// InFlight reports whether a refresh cycle is currently running.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}

// Pending reports how many callers are queued on the running cycle.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// runCycle performs one refresh attempt for the caller that won the
// inflight flag.
func (c *Coordinator) runCycle(ctx context.Context) (string, error) {
	record, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Error(ctx, "failed to load session before refresh", err)
		return "", c.fail(ctx, autherrors.NewRefreshFailed(err))
	}
	if !record.HasSession() {
		return "", c.fail(ctx, autherrors.ErrNoSession)
	}

	metrics.RefreshAttemptsTotal.Inc()
	c.logger.Debug(ctx, "refreshing access token",
		map[string]interface{}{"session_id": record.SessionID})

	// A refresh is never cancelled once started; a caller giving up
	// stops waiting but does not abort the call other waiters share.
	tok, err := c.refresher.Refresh(context.WithoutCancel(ctx), record.SessionID, c.extend)
	if err != nil {
		c.logger.Warn(ctx, "token refresh failed, clearing session",
			map[string]interface{}{"session_id": record.SessionID})
		return "", c.fail(ctx, autherrors.NewRefreshFailed(err))
	}

	// Logout wins over a late-arriving refresh: if the session was
	// cleared or replaced while the call was in flight, discard the
	// result instead of resurrecting it.
	current, err := c.store.Load(ctx)
	if err != nil {
		return "", c.fail(ctx, autherrors.NewRefreshFailed(err))
	}
	if current == nil || current.SessionID != record.SessionID {
		c.logger.Info(ctx, "session changed during refresh, discarding result")
		return tok.AccessToken, nil
	}

	updated := &domain.SessionRecord{
		AccessToken: tok.AccessToken,
		TokenKind:   tok.TokenKind,
		SessionID:   record.SessionID,
		ExpiresAt:   tok.ExpiresAt,
		User:        record.User,
	}
	if err := c.store.Save(ctx, updated); err != nil {
		// Storage trouble is not an auth failure: the prior record
		// stands, so the session is not torn down.
		c.logger.Error(ctx, "failed to persist refreshed session", err)
		return "", autherrors.NewRefreshFailed(err)
	}
	c.bus.Publish(ctx, updated.User)

	c.logger.Info(ctx, "access token refreshed",
		map[string]interface{}{"expires_at": updated.ExpiresAt})
	return tok.AccessToken, nil
}

// fail tears down the session: clear the store, publish a logout
// change, and hand the classified error back for every caller.
func (c *Coordinator) fail(ctx context.Context, cause error) error {
	metrics.RefreshFailuresTotal.Inc()
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error(ctx, "failed to clear session after refresh failure", err)
	}
	c.bus.Publish(ctx, nil)
	return cause
}
