package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"github.com/aussiebroadwan/maidrobe/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func (h *harness) passwordReset() *PasswordResetService {
	return &PasswordResetService{
		Backend:     h.backend,
		Limiter:     h.limiter,
		Emitter:     h.recorder,
		Clock:       h.clock,
		RedirectURL: "maidrobe://reset-password",
	}
}

func TestPasswordResetSuccess(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	var redirect string
	h.backend.resetPassword = func(_ context.Context, _ string, redirectTo string) error {
		redirect = redirectTo
		return nil
	}

	require.NoError(t, h.passwordReset().RequestReset(context.Background(), " User@Example.com"))
	require.Equal(t, "user@example.com", h.backend.email())
	require.Equal(t, "maidrobe://reset-password", redirect)

	ev := waitForEvent(t, h.recorder, domain.EventPasswordResetSuccess)
	require.Equal(t, "success", ev.Metadata["actualOutcome"])
	require.Empty(t, ev.ErrorCode)
}

func TestPasswordResetHidesAccountExistence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code string
	}{
		{"unknown user", &authsdk.APIError{StatusCode: 404, Code: "user_not_found", Message: "User not found"}, domain.CodeInvalidCredentials},
		{"server error", &authsdk.APIError{StatusCode: 500, Message: "Internal Server Error"}, domain.CodeServer},
		{"user not found text", errors.New("User not found"), domain.CodeServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.backend.resetPassword = func(context.Context, string, string) error { return tt.err }

			require.NoError(t, h.passwordReset().RequestReset(context.Background(), "user@example.com"))

			ev := waitForEvent(t, h.recorder, domain.EventPasswordResetSuccess)
			require.Equal(t, domain.OutcomeSuccess, ev.Outcome)
			require.Equal(t, "failed-but-hidden", ev.Metadata["actualOutcome"])
			require.Equal(t, tt.code, ev.ErrorCode)
			require.False(t, h.recorder.Has(domain.EventPasswordResetFailure))
		})
	}
}

func TestPasswordResetSurfacesRecoverableErrors(t *testing.T) {
	t.Parallel()

	t.Run("network", func(t *testing.T) {
		h := newHarness(t)
		h.backend.resetPassword = func(context.Context, string, string) error {
			return &authsdk.NetworkError{Op: "recover", Err: errors.New("connection reset")}
		}

		err := h.passwordReset().RequestReset(context.Background(), "user@example.com")
		requireAuthError(t, err, domain.ErrorClassNetwork, domain.CodeNetwork)
		waitForEvent(t, h.recorder, domain.EventPasswordResetFailure)
	})

	t.Run("invalid email", func(t *testing.T) {
		h := newHarness(t)

		err := h.passwordReset().RequestReset(context.Background(), "nope")
		requireAuthError(t, err, domain.ErrorClassUser, domain.CodeValidation)
		require.Zero(t, h.backend.recoverCalls.Load())
	})
}

func TestPasswordResetRateLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	svc := h.passwordReset()

	for range PasswordResetLimitPolicy.MaxAttempts {
		require.NoError(t, svc.RequestReset(ctx, "user@example.com"))
	}

	err := svc.RequestReset(ctx, "USER@example.com")
	authErr := requireAuthError(t, err, domain.ErrorClassUser, domain.CodeRateLimited)
	require.Equal(t, time.Hour, authErr.RetryAfter)
	require.EqualValues(t, 5, h.backend.recoverCalls.Load())

	ev := waitForEvent(t, h.recorder, domain.EventRateLimitExceeded)
	require.Equal(t, "password-reset", ev.Metadata["operation"])

	h.clock.Advance(time.Hour)
	require.NoError(t, svc.RequestReset(ctx, "user@example.com"))
}
