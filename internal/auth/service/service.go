// Package service holds the device-side auth core: the in-memory session
// state, persisted session bundle, attempt limiter, refresh manager and the
// login, logout, password-reset and verification flows.
package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"github.com/aussiebroadwan/maidrobe/pkg/authsdk"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrNoSession is returned when an operation needs a stored session and
	// there is none.
	ErrNoSession = errors.New("no stored session")

	// ErrSessionEnded is returned by a refresh whose session was logged out
	// (or replaced by a new login) while the refresh was in flight.
	ErrSessionEnded = errors.New("session ended during refresh")

	// ErrRefreshFailed wraps the last error of a refresh that gave up.
	ErrRefreshFailed = errors.New("session refresh failed")
)

// AuthBackend is the subset of the Supabase Auth API the core calls.
// *authsdk.SDKClient implements it.
type AuthBackend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*authsdk.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*authsdk.Session, error)
	SignOut(ctx context.Context, accessToken string, scope authsdk.SignOutScope) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	Resend(ctx context.Context, params authsdk.ResendParams) error
}

var _ AuthBackend = (*authsdk.SDKClient)(nil)

// Navigator moves the UI to the login screen.
type Navigator interface {
	NavigateToLogin(reason string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(reason string)

func (f NavigatorFunc) NavigateToLogin(reason string) { f(reason) }

func clockOr(c clockwork.Clock) clockwork.Clock {
	if c == nil {
		return clockwork.NewRealClock()
	}
	return c
}

func sessionFromSDK(s *authsdk.Session) domain.Session {
	out := domain.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		ExpiresAt:    s.ExpiresAt,
	}
	if s.User != nil {
		out.User = domain.User{
			ID:               s.User.ID,
			Email:            s.User.Email,
			EmailConfirmedAt: s.User.EmailConfirmedAt,
		}
	}
	return out
}

func newEvent(clock clockwork.Clock, eventType domain.EventType, outcome domain.Outcome) domain.AuthEvent {
	ev := domain.NewAuthEvent(eventType, clockOr(clock).Now())
	ev.Outcome = outcome
	return ev
}
