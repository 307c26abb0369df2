package errors

import (
	"errors"
	"fmt"
)

// Error codes for the authentication pipeline.
const (
	CodeNoSession     = "no_session"     // no session id: refresh cannot be attempted
	CodeRefreshFailed = "refresh_failed" // refresh call failed or was unreachable
	CodeUnauthorized  = "unauthorized"   // an authenticated endpoint rejected the token
)

// ErrNoSession is returned when a refresh is requested with no session
// id available. The coordinator fails immediately without a network call.
var ErrNoSession = &AuthError{Code: CodeNoSession, Description: "no session established"}

// AuthError is a classified authentication failure.
type AuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Cause       error  `json:"-"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// Is makes two AuthErrors equal when their codes match, so callers can
// test against sentinels like ErrNoSession with errors.Is.
func (e *AuthError) Is(target error) bool {
	var other *AuthError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewRefreshFailed wraps a failed refresh attempt. Callers above the
// coordinator only ever see this, never the raw transport detail.
func NewRefreshFailed(cause error) *AuthError {
	return &AuthError{
		Code:        CodeRefreshFailed,
		Description: "session refresh failed",
		Cause:       cause,
	}
}

// NewUnauthorized builds the error surfaced when an authenticated
// endpoint rejects the presented token.
func NewUnauthorized(description string) *AuthError {
	return &AuthError{
		Code:        CodeUnauthorized,
		Description: description,
	}
}

// IsNoSession reports whether err classifies as "no session available".
func IsNoSession(err error) bool {
	return errors.Is(err, ErrNoSession)
}

// IsUnauthorized reports whether err classifies as a token rejection.
func IsUnauthorized(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Code == CodeUnauthorized
}

// IsRefreshFailed reports whether err classifies as a failed refresh.
func IsRefreshFailed(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Code == CodeRefreshFailed
}
