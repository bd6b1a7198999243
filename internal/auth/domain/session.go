package domain

import (
	"log/slog"
	"time"
)

// DefaultTokenLifetime is assumed when a session carries neither an absolute
// nor a relative expiry.
const DefaultTokenLifetime = 3600 * time.Second

// DefaultTokenType is used when the backend omits token_type.
const DefaultTokenType = "bearer"

// User is the identity that owns a session.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email,omitempty"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
}

// EmailConfirmed reports whether the user has verified their email address.
func (u User) EmailConfirmed() bool {
	return u.EmailConfirmedAt != nil && !u.EmailConfirmedAt.IsZero()
}

// Session is an authenticated session as issued by the backend. It is owned
// by the device and never leaves it. The JSON shape matches the token
// endpoint so persisted bundles stay readable across versions.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"` // seconds, relative to issue
	ExpiresAt    int64  `json:"expires_at,omitempty"` // unix seconds, absolute
	User         User   `json:"user"`
}

// LogValue keeps tokens out of logs.
func (s Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", s.User.ID),
		slog.String("token_type", s.TokenType),
		slog.Int64("expires_at", s.ExpiresAt),
	)
}

// TokenMetadata is the in-memory expiry information that drives refresh
// scheduling. It holds no token material.
type TokenMetadata struct {
	ExpiresAt time.Time
	TokenType string
}

// IsZero reports whether no metadata has been set.
func (m TokenMetadata) IsZero() bool { return m.ExpiresAt.IsZero() }

// DeriveTokenMetadata computes expiry from the absolute expires_at if set,
// else from expires_in relative to now, else DefaultTokenLifetime from now.
func DeriveTokenMetadata(s Session, now time.Time) TokenMetadata {
	var expiresAt time.Time
	switch {
	case s.ExpiresAt > 0:
		expiresAt = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		expiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second)
	default:
		expiresAt = now.Add(DefaultTokenLifetime)
	}

	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	}

	return TokenMetadata{ExpiresAt: expiresAt, TokenType: tokenType}
}

// SessionBundle is the persisted form of a session.
type SessionBundle struct {
	Session           Session `json:"session"`
	LastAuthSuccessAt string  `json:"lastAuthSuccessAt"` // RFC 3339
	NeedsRefresh      bool    `json:"needsRefresh"`
}
