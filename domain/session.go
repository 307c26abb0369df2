package domain

import "time"

// DefaultNearExpiryWindow is the margin before an access token's expiry
// during which proactive refresh is triggered.
const DefaultNearExpiryWindow = 5 * time.Minute

// SessionRecord is the persisted authentication state of one client.
// AccessToken and ExpiresAt are always written together; SessionID may
// outlive the access token (the user "has a session" while a live token
// is still being obtained).
type SessionRecord struct {
	AccessToken string      `json:"access_token" bson:"access_token"`
	TokenKind   string      `json:"token_kind" bson:"token_kind"` // authorization scheme, e.g. "Bearer"
	SessionID   string      `json:"session_id" bson:"session_id"`
	ExpiresAt   time.Time   `json:"expires_at" bson:"expires_at"`
	User        *UserRecord `json:"user,omitempty" bson:"user,omitempty"`
}

// HasSession reports whether this record represents an established
// session, live access token or not.
func (r *SessionRecord) HasSession() bool {
	return r != nil && r.SessionID != ""
}

// NearExpiry reports whether the record's access token expires within
// window of now. A record without a token is always near expiry.
func (r *SessionRecord) NearExpiry(window time.Duration, now time.Time) bool {
	if r == nil || r.AccessToken == "" {
		return true
	}
	return NearExpiry(r.ExpiresAt, window, now)
}

// NearExpiry reports whether expiresAt falls within window of now.
// It is the single definition of "near expiry" shared by the transport's
// proactive check, the refresh scheduler and application code.
func NearExpiry(expiresAt time.Time, window time.Duration, now time.Time) bool {
	return expiresAt.Sub(now) < window
}
