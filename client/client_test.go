package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	autherrors "go.pilab.hu/authflow/errors"
)

func frozenClock() func() time.Time {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestLoginComputesExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, LoginPath, r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req["username"])
		assert.Equal(t, "x", req["password"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok",
			"token_type":   "Bearer",
			"session_id":   "sess-1",
			"expires_in":   900,
			"user":         map[string]string{"id": "u-1", "username": "alice"},
		})
	}))
	defer srv.Close()

	now := frozenClock()
	c := New(srv.URL, WithClock(now))

	rec, err := c.Login(context.Background(), "alice", "x")
	require.NoError(t, err)
	assert.Equal(t, "tok", rec.AccessToken)
	assert.Equal(t, "Bearer", rec.TokenKind)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, now().Add(900*time.Second), rec.ExpiresAt)
	require.NotNil(t, rec.User)
	assert.Equal(t, "alice", rec.User.Username)
}

func TestRefreshDefaultsTokenKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, RefreshPath, r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sess-1", req["session_id"])
		assert.Equal(t, true, req["extend_session"])

		// token_type deliberately omitted.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-2",
			"expires_in":   600,
		})
	}))
	defer srv.Close()

	now := frozenClock()
	c := New(srv.URL, WithClock(now))

	res, err := c.Refresh(context.Background(), "sess-1", true)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", res.AccessToken)
	assert.Equal(t, DefaultTokenKind, res.TokenKind)
	assert.Equal(t, now().Add(600*time.Second), res.ExpiresAt)
}

func TestErrorBodyDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "unknown session",
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Refresh(context.Background(), "sess-x", false)
	require.Error(t, err)

	var ae *autherrors.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "invalid_grant", ae.Code)
	assert.Equal(t, "unknown session", ae.Description)
}

func TestPlainStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Logout(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
