package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/authflow/bus"
	"go.pilab.hu/authflow/client"
	"go.pilab.hu/authflow/domain"
	"go.pilab.hu/authflow/refresh"
	"go.pilab.hu/authflow/store"
)

// fakeRefresher hands out sequential tokens, or fails.
type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(context.Context, string, bool) (*client.TokenResult, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &client.TokenResult{
		AccessToken: fmt.Sprintf("fresh-%d", n),
		TokenKind:   "Bearer",
		ExpiresAt:   time.Now().Add(15 * time.Minute),
	}, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	store     *store.MemoryStore
	refresher *fakeRefresher
	client    *http.Client
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	f := &fakeRefresher{}
	coord := refresh.NewCoordinator(f, st, bus.NewMemoryBus())
	return &fixture{
		store:     st,
		refresher: f,
		client:    NewHTTPClient(st, coord, opts...),
	}
}

func (fx *fixture) seed(t *testing.T, token string, expiresIn time.Duration) {
	t.Helper()
	require.NoError(t, fx.store.Save(context.Background(), &domain.SessionRecord{
		AccessToken: token,
		TokenKind:   "Bearer",
		SessionID:   "sess-1",
		ExpiresAt:   time.Now().Add(expiresIn),
		User:        &domain.UserRecord{ID: "u-1", Username: "alice"},
	}))
}

func TestAttachesAuthorizationHeader(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, "tok", time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := fx.client.Get(srv.URL + "/api/data")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, fx.refresher.callCount())
}

func TestSkipsUnauthenticatedEndpoints(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, "tok", time.Second) // near expiry, would trigger a refresh

	var sawAuth atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			sawAuth.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	for _, path := range []string{client.LoginPath, client.RefreshPath, client.RegisterPath} {
		resp, err := fx.client.Post(srv.URL+path, "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.False(t, sawAuth.Load(), "no header on unauthenticated endpoints")
	assert.Zero(t, fx.refresher.callCount(), "no proactive refresh for unauthenticated endpoints")
}

func TestRetriesOnceAfterAuthorizationFailure(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, "stale", time.Hour)

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Add(1) {
		case 1:
			assert.Equal(t, "Bearer stale", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
		default:
			assert.Equal(t, "Bearer fresh-1", r.Header.Get("Authorization"))
			fmt.Fprint(w, "payload")
		}
	}))
	defer srv.Close()

	resp, err := fx.client.Get(srv.URL + "/api/data")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
	assert.Equal(t, int64(2), hits.Load())
	assert.Equal(t, 1, fx.refresher.callCount())
}

func TestSecondAuthorizationFailureSurfacedVerbatim(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, "stale", time.Hour)

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintf(w, "denied-%d", n)
	}))
	defer srv.Close()

	resp, err := fx.client.Get(srv.URL + "/api/data")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "denied-2", string(body), "the second failure, not the first, reaches the caller")
	assert.Equal(t, int64(2), hits.Load(), "exactly one retry")
	assert.Equal(t, 1, fx.refresher.callCount())
}

func TestNonAuthorizationFailuresNotRetried(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, "tok", time.Hour)

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	resp, err := fx.client.Get(srv.URL + "/api/data")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, int64(1), hits.Load(), "permission denials pass through untouched")
	assert.Zero(t, fx.refresher.callCount())
}

func TestProactiveRefreshNearExpiry(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, "stale", time.Second) // inside the five minute window

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh-1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := fx.client.Get(srv.URL + "/api/data")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, fx.refresher.callCount())
}

func TestStaleTokenFallbackWhenProactiveRefreshFails(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, "stale", time.Second)
	fx.refresher.err = errors.New("network down")

	// The stale token is still accepted server-side: the call must
	// succeed despite the failed proactive refresh.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer stale", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := fx.client.Get(srv.URL + "/api/data")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNoRetryWithoutReplayableBody(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, "stale", time.Hour)

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	// io.Pipe yields a body http.NewRequest cannot snapshot, so GetBody
	// stays nil and the 401 must surface without a retry.
	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte("{}"))
		pw.Close()
	}()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/data", pr)
	require.NoError(t, err)

	resp, err := fx.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int64(1), hits.Load())
}
