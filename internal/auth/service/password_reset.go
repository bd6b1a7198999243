package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"github.com/aussiebroadwan/maidrobe/internal/auth/telemetry"
	"github.com/aussiebroadwan/maidrobe/pkg/authsdk"
	"github.com/aussiebroadwan/maidrobe/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

const (
	actualOutcomeSuccess = "success"
	actualOutcomeHidden  = "failed-but-hidden"
)

type PasswordResetService struct {
	Backend AuthBackend
	Limiter *AttemptLimiter
	Emitter telemetry.Emitter
	Logger  *slog.Logger
	Clock   clockwork.Clock

	// RedirectURL is where the recovery link lands. Optional.
	RedirectURL string
}

// RequestReset asks the backend to email a recovery link.
//
// The caller cannot tell whether the account exists: "user not found" and
// server failures are reported as success, with the real outcome kept in
// telemetry. Validation, rate-limit and network failures are returned as a
// *domain.AuthError so the user can correct or retry.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	l := slogx.Or(s.Logger)
	clock := clockOr(s.Clock)
	email = NormalizeEmail(email)

	if err := ValidateEmail(email); err != nil {
		return s.fail(validationError(Messages.InvalidEmail, err), email, 0)
	}

	if limit := s.Limiter.Allow(ctx, PasswordResetLimitPolicy, email); !limit.Allowed {
		ev := newEvent(clock, domain.EventRateLimitExceeded, domain.OutcomeFailure)
		ev.ErrorCode = domain.CodeRateLimited
		ev.Metadata = map[string]any{
			"operation":        PasswordResetLimitPolicy.Operation,
			"email":            email,
			"remainingSeconds": limit.RemainingSeconds,
		}
		telemetry.EmitAsync(s.Emitter, ev)
		return s.fail(rateLimitError(limit), email, 0)
	}

	start := clock.Now()
	err := s.Backend.ResetPasswordForEmail(ctx, email, s.RedirectURL)
	latency := clock.Since(start)

	if err != nil && !hideResetFailure(err) {
		authErr := newAuthError(err)
		l.Info("password reset request failed", "class", authErr.Class, "code", authErr.Code, "error", err)
		return s.fail(authErr, email, latency)
	}

	ev := newEvent(clock, domain.EventPasswordResetSuccess, domain.OutcomeSuccess)
	ev.Latency = latency
	ev.Metadata = map[string]any{
		"email":         email,
		"actualOutcome": actualOutcomeSuccess,
	}
	if err != nil {
		_, code := ClassifyError(err)
		ev.ErrorCode = code
		ev.Metadata["actualOutcome"] = actualOutcomeHidden
		l.Info("password reset failure hidden from caller", "code", code, "error", err)
	}
	telemetry.EmitAsync(s.Emitter, ev)

	return nil
}

// hideResetFailure reports whether err would reveal whether an account
// exists and must therefore look like success.
func hideResetFailure(err error) bool {
	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode >= 500 {
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "user not found")
}

func (s *PasswordResetService) fail(authErr *domain.AuthError, email string, latency time.Duration) error {
	ev := newEvent(s.Clock, domain.EventPasswordResetFailure, domain.OutcomeFailure)
	ev.ErrorCode = authErr.Code
	ev.Latency = latency
	ev.Metadata = map[string]any{
		"email":      email,
		"errorClass": string(authErr.Class),
	}
	telemetry.EmitAsync(s.Emitter, ev)
	return authErr
}
