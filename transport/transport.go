// Package transport wraps an http.RoundTripper with the authenticated
// request pipeline: it attaches the bearer token before every call,
// refreshes proactively when the token is near expiry, and repairs a
// rejected call with exactly one coordinated refresh-and-retry.
package transport

import (
	"io"
	"net/http"
	"time"

	"go.pilab.hu/authflow/client"
	"go.pilab.hu/authflow/domain"
	"go.pilab.hu/authflow/internal/metrics"
	"go.pilab.hu/authflow/log"
	"go.pilab.hu/authflow/refresh"
	"go.pilab.hu/authflow/store"
)

// Transport implements http.RoundTripper. The zero value is not usable;
// build one with New.
type Transport struct {
	base        http.RoundTripper
	store       store.SessionStore
	coordinator *refresh.Coordinator
	window      time.Duration
	logger      log.Logger
	now         func() time.Time
	skip        map[string]struct{}
}

// Option customizes a Transport.
type Option func(*Transport)

// WithBase sets the underlying RoundTripper (default http.DefaultTransport).
func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) { t.base = rt }
}

// WithNearExpiryWindow overrides the proactive-refresh margin.
func WithNearExpiryWindow(window time.Duration) Option {
	return func(t *Transport) { t.window = window }
}

// WithLogger sets the transport's logger.
func WithLogger(logger log.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Transport) { t.now = now }
}

// New builds the pipeline transport over st and coord.
func New(st store.SessionStore, coord *refresh.Coordinator, opts ...Option) *Transport {
	t := &Transport{
		base:        http.DefaultTransport,
		store:       st,
		coordinator: coord,
		window:      domain.DefaultNearExpiryWindow,
		logger:      log.NewNop(),
		now:         time.Now,
		skip: map[string]struct{}{
			client.LoginPath:    {},
			client.RefreshPath:  {},
			client.RegisterPath: {},
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewHTTPClient wraps t in a ready-to-use http.Client.
func NewHTTPClient(st store.SessionStore, coord *refresh.Coordinator, opts ...Option) *http.Client {
	return &http.Client{Transport: New(st, coord, opts...)}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, ok := t.skip[req.URL.Path]; ok {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()

	record, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if record.HasSession() && record.NearExpiry(t.window, t.now()) {
		// Proactive refresh. If it fails the stale token is attached
		// anyway: it may still be valid for a few more seconds, and the
		// post-error hook below repairs the call if it is not.
		if _, err := t.coordinator.AcquireToken(ctx); err != nil {
			t.logger.Warn(ctx, "proactive refresh failed, sending with stale token")
		} else if record, err = t.store.Load(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := t.send(req, record, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// One corrective refresh, one retry. A second rejection, or a
	// request whose body cannot be replayed, is surfaced verbatim.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}
	if _, err := t.coordinator.AcquireToken(ctx); err != nil {
		t.logger.Warn(ctx, "corrective refresh failed, surfacing authorization failure")
		return resp, nil
	}
	record, err = t.store.Load(ctx)
	if err != nil {
		return resp, nil
	}

	var replay io.ReadCloser
	if req.GetBody != nil {
		if replay, err = req.GetBody(); err != nil {
			return resp, nil
		}
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	metrics.RetriesTotal.Inc()
	t.logger.Debug(ctx, "retrying request with refreshed token",
		map[string]interface{}{"path": req.URL.Path})
	return t.send(req, record, replay)
}

// send dispatches a clone of req with the record's authorization header
// attached. The retry passes a rewound body; the first attempt consumes
// the original one. The caller's request is otherwise never mutated.
func (t *Transport) send(req *http.Request, record *domain.SessionRecord, body io.ReadCloser) (*http.Response, error) {
	out := req.Clone(req.Context())
	if body != nil {
		out.Body = body
	}
	if record != nil && record.AccessToken != "" {
		kind := record.TokenKind
		if kind == "" {
			kind = client.DefaultTokenKind
		}
		out.Header.Set("Authorization", kind+" "+record.AccessToken)
	}
	return t.base.RoundTrip(out)
}

var _ http.RoundTripper = (*Transport)(nil)
