// Package authtest provides an in-memory auth server speaking the same
// wire protocol as the production API: login, refresh and logout plus a
// protected sample endpoint. Integration tests and local development
// run the pipeline against it.
package authtest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"go.pilab.hu/authflow/client"
	"go.pilab.hu/authflow/domain"
)

type userEntry struct {
	passwordHash []byte
	user         *domain.UserRecord
}

// Server is an in-memory auth API. Issued sessions live in a TTL table
// and evaporate with the session lifetime, exactly like server-side
// session expiry.
type Server struct {
	httpSrv    *httptest.Server
	secret     []byte
	tokenTTL   time.Duration
	sessionTTL time.Duration

	mu    sync.RWMutex
	users map[string]userEntry

	sessions *ttlcache.Cache[string, string] // session id -> username

	refreshCalls atomic.Int64
	failRefresh  atomic.Bool
}

// Option customizes a Server.
type Option func(*Server)

// WithTokenTTL sets the lifetime of issued access tokens (expires_in).
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

// WithSessionTTL sets the server-side session lifetime.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Server) { s.sessionTTL = d }
}

// NewServer starts the server on an ephemeral port.
func NewServer(opts ...Option) *Server {
	s := &Server{
		secret:     []byte(uuid.NewString()),
		tokenTTL:   15 * time.Minute,
		sessionTTL: 24 * time.Hour,
		users:      make(map[string]userEntry),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sessions = ttlcache.New(
		ttlcache.WithTTL[string, string](s.sessionTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go s.sessions.Start()

	e := echo.New()
	e.HideBanner = true
	e.POST(client.LoginPath, s.handleLogin)
	e.POST(client.RefreshPath, s.handleRefresh)
	e.POST(client.LogoutPath, s.handleLogout)
	e.GET("/api/profile", s.handleProfile)

	s.httpSrv = httptest.NewServer(e)
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string { return s.httpSrv.URL }

// Close shuts the server down.
func (s *Server) Close() {
	s.httpSrv.Close()
	s.sessions.Stop()
}

// AddUser registers a credential pair. The user record is returned on
// login and by the protected profile endpoint.
func (s *Server) AddUser(username, password string, user *domain.UserRecord) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.users[username] = userEntry{passwordHash: hash, user: user}
	s.mu.Unlock()
	return nil
}

// RefreshCalls reports how many refresh calls reached the wire. The
// deduplication tests assert on it.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// FailRefresh makes subsequent refresh calls answer 500.
func (s *Server) FailRefresh(fail bool) { s.failRefresh.Store(fail) }

// RevokeAllTokens rotates the signing secret so every issued access
// token stops validating, without touching sessions.
func (s *Server) RevokeAllTokens() {
	s.mu.Lock()
	s.secret = []byte(uuid.NewString())
	s.mu.Unlock()
}

func (s *Server) signToken(username string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	secret := s.secret
	entry := s.users[username]
	s.mu.RUnlock()

	claims := jwt.MapClaims{
		"sub": entry.user.ID,
		"usr": username,
		"exp": jwt.NewNumericDate(time.Now().Add(ttl)),
		"iat": jwt.NewNumericDate(time.Now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request"})
	}

	s.mu.RLock()
	entry, ok := s.users[req.Username]
	s.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(entry.passwordHash, []byte(req.Password)) != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error":             "invalid_grant",
			"error_description": "invalid username or password",
		})
	}

	sessionID := uuid.NewString()
	s.sessions.Set(sessionID, req.Username, s.sessionTTL)

	token, err := s.signToken(req.Username, s.tokenTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server_error"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": token,
		"token_type":   "Bearer",
		"session_id":   sessionID,
		"expires_in":   int64(s.tokenTTL.Seconds()),
		"user":         entry.user,
	})
}

func (s *Server) handleRefresh(c echo.Context) error {
	s.refreshCalls.Add(1)

	if s.failRefresh.Load() {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server_error"})
	}

	var req struct {
		SessionID     string `json:"session_id"`
		ExtendSession bool   `json:"extend_session"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request"})
	}

	item := s.sessions.Get(req.SessionID)
	if item == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error":             "invalid_grant",
			"error_description": "unknown or expired session",
		})
	}
	if req.ExtendSession {
		s.sessions.Set(req.SessionID, item.Value(), s.sessionTTL)
	}

	token, err := s.signToken(item.Value(), s.tokenTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server_error"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int64(s.tokenTTL.Seconds()),
	})
}

func (s *Server) handleLogout(c echo.Context) error {
	if _, err := s.authenticate(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	// Sessions are keyed by id, not token; a real server would resolve
	// and delete the session here. For tests the 200 is what matters.
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleProfile(c echo.Context) error {
	username, err := s.authenticate(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	s.mu.RLock()
	entry := s.users[username]
	s.mu.RUnlock()
	return c.JSON(http.StatusOK, entry.user)
}

// authenticate validates the bearer token and returns the username it
// was issued to.
func (s *Server) authenticate(c echo.Context) (string, error) {
	header := c.Request().Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", echo.ErrUnauthorized
	}

	s.mu.RLock()
	secret := s.secret
	s.mu.RUnlock()

	parsed, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", echo.ErrUnauthorized
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", echo.ErrUnauthorized
	}
	username, _ := claims["usr"].(string)
	if username == "" {
		return "", echo.ErrUnauthorized
	}
	return username, nil
}
