package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"github.com/aussiebroadwan/maidrobe/internal/auth/telemetry"
	"github.com/aussiebroadwan/maidrobe/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

type LoginService struct {
	Backend     AuthBackend
	Limiter     *AttemptLimiter
	State       *SessionState
	Persistence *SessionPersistence
	Emitter     telemetry.Emitter
	Logger      *slog.Logger
	Clock       clockwork.Clock
}

// Login signs in with email and password.
//
// The attempt is recorded against the login limit before the backend is
// called, so failed calls still count. On success the session is persisted
// and becomes the current session, replacing any other. Every failure is
// returned as a *domain.AuthError.
func (s *LoginService) Login(ctx context.Context, email, password string) (domain.Session, error) {
	l := slogx.Or(s.Logger)
	clock := clockOr(s.Clock)
	email = NormalizeEmail(email)

	if err := ValidateEmail(email); err != nil {
		return domain.Session{}, s.fail(validationError(Messages.InvalidEmail, err), email, 0)
	}
	if err := ValidatePassword(password); err != nil {
		return domain.Session{}, s.fail(validationError(Messages.MissingPassword, err), email, 0)
	}

	if limit := s.Limiter.Allow(ctx, LoginLimitPolicy, email); !limit.Allowed {
		ev := newEvent(clock, domain.EventRateLimitExceeded, domain.OutcomeFailure)
		ev.ErrorCode = domain.CodeRateLimited
		ev.Metadata = map[string]any{
			"operation":        LoginLimitPolicy.Operation,
			"email":            email,
			"remainingSeconds": limit.RemainingSeconds,
		}
		telemetry.EmitAsync(s.Emitter, ev)
		return domain.Session{}, s.fail(rateLimitError(limit), email, 0)
	}

	start := clock.Now()
	resp, err := s.Backend.SignInWithPassword(ctx, email, password)
	latency := clock.Since(start)
	if err != nil {
		authErr := newAuthError(err)
		l.Info("login failed", "class", authErr.Class, "code", authErr.Code, "error", err)
		return domain.Session{}, s.fail(authErr, email, latency)
	}

	session := sessionFromSDK(resp)
	now := clock.Now()
	meta := domain.DeriveTokenMetadata(session, now)

	s.State.StartSession(func() {
		s.Persistence.Save(ctx, &session, FormatAuthTime(now))
		s.State.SetLogoutReason("")
		s.State.SetUser(session.User)
		s.State.SetTokenMetadata(meta.ExpiresAt, meta.TokenType)
	})

	ev := newEvent(clock, domain.EventLoginSuccess, domain.OutcomeSuccess)
	ev.UserID = session.User.ID
	ev.Latency = latency
	ev.Metadata = map[string]any{
		"email":          email,
		"emailConfirmed": session.User.EmailConfirmed(),
	}
	telemetry.EmitAsync(s.Emitter, ev)

	l.Info("login succeeded", "user_id", session.User.ID)
	return session, nil
}

func (s *LoginService) fail(authErr *domain.AuthError, email string, latency time.Duration) error {
	ev := newEvent(s.Clock, domain.EventLoginFailure, domain.OutcomeFailure)
	ev.ErrorCode = authErr.Code
	ev.Latency = latency
	ev.Metadata = map[string]any{
		"email":      email,
		"errorClass": string(authErr.Class),
	}
	telemetry.EmitAsync(s.Emitter, ev)
	return authErr
}
