// Package client is the raw HTTP client for the auth API. It speaks the
// three session endpoints; everything else goes through the transport
// pipeline and never through this package.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.pilab.hu/authflow/domain"
	autherrors "go.pilab.hu/authflow/errors"
)

// Auth endpoint paths. Login, refresh and registration are the only
// unauthenticated endpoints; logout carries the authorization header.
const (
	LoginPath    = "/api/auth/login"
	RefreshPath  = "/api/auth/refresh"
	LogoutPath   = "/api/auth/logout"
	RegisterPath = "/api/auth/register"
)

// DefaultTokenKind is assumed when the server omits token_type.
const DefaultTokenKind = "Bearer"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string             `json:"access_token"`
	TokenType   string             `json:"token_type"`
	SessionID   string             `json:"session_id"`
	ExpiresIn   int64              `json:"expires_in"`
	User        *domain.UserRecord `json:"user"`
}

type refreshRequest struct {
	SessionID     string `json:"session_id"`
	ExtendSession bool   `json:"extend_session"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenResult is the outcome of a successful refresh: a new access
// token and its absolute expiry, computed client-side at receive time.
type TokenResult struct {
	AccessToken string
	TokenKind   string
	ExpiresAt   time.Time
}

// Client calls the auth API endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client. Pass the
// pipeline-wrapped client so logout carries the authorization header.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client for the API at baseURL (scheme and host, no
// trailing slash required).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    http.DefaultClient,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login authenticates with username and password and returns the full
// session record, with ExpiresAt computed as now + expires_in.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.SessionRecord, error) {
	var resp loginResponse
	if err := c.post(ctx, LoginPath, loginRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}
	kind := resp.TokenType
	if kind == "" {
		kind = DefaultTokenKind
	}
	return &domain.SessionRecord{
		AccessToken: resp.AccessToken,
		TokenKind:   kind,
		SessionID:   resp.SessionID,
		ExpiresAt:   c.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		User:        resp.User,
	}, nil
}

// Refresh exchanges the session id for a fresh access token.
func (c *Client) Refresh(ctx context.Context, sessionID string, extend bool) (*TokenResult, error) {
	var resp refreshResponse
	if err := c.post(ctx, RefreshPath, refreshRequest{SessionID: sessionID, ExtendSession: extend}, &resp); err != nil {
		return nil, err
	}
	kind := resp.TokenType
	if kind == "" {
		kind = DefaultTokenKind
	}
	return &TokenResult{
		AccessToken: resp.AccessToken,
		TokenKind:   kind,
		ExpiresAt:   c.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// Logout invalidates the session server-side. Callers treat failures as
// best-effort; the local session is cleared either way.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, LogoutPath, nil, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// decodeError turns a non-2xx auth API response into a classified error
// when the body carries one, falling back to the bare status.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var ae autherrors.AuthError
	if err := json.Unmarshal(raw, &ae); err == nil && ae.Code != "" {
		return &ae
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return autherrors.NewUnauthorized(resp.Status)
	}
	return fmt.Errorf("auth api returned %s", resp.Status)
}
