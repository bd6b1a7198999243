package service

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"github.com/aussiebroadwan/maidrobe/internal/auth/telemetry"
	"github.com/aussiebroadwan/maidrobe/pkg/authsdk"
	"github.com/aussiebroadwan/maidrobe/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

type VerificationService struct {
	Backend AuthBackend
	Emitter telemetry.Emitter
	Logger  *slog.Logger
	Clock   clockwork.Clock

	// RedirectURL is where the confirmation link lands. Optional.
	RedirectURL string
}

// Resend re-sends the sign-up confirmation email. The backend applies its
// own send limit, which comes back as a rate-limited user error.
func (s *VerificationService) Resend(ctx context.Context, email string) error {
	l := slogx.Or(s.Logger)
	clock := clockOr(s.Clock)
	email = NormalizeEmail(email)

	if err := ValidateEmail(email); err != nil {
		return s.fail(validationError(Messages.InvalidEmail, err), email)
	}

	start := clock.Now()
	err := s.Backend.Resend(ctx, authsdk.ResendParams{
		Type:       authsdk.ResendSignup,
		Email:      email,
		RedirectTo: s.RedirectURL,
	})
	if err != nil {
		authErr := newAuthError(err)
		l.Info("verification resend failed", "class", authErr.Class, "code", authErr.Code, "error", err)
		return s.fail(authErr, email)
	}

	ev := newEvent(clock, domain.EventVerificationResent, domain.OutcomeSuccess)
	ev.Latency = clock.Since(start)
	ev.Metadata = map[string]any{"email": email}
	telemetry.EmitAsync(s.Emitter, ev)
	return nil
}

func (s *VerificationService) fail(authErr *domain.AuthError, email string) error {
	ev := newEvent(s.Clock, domain.EventVerificationFailure, domain.OutcomeFailure)
	ev.ErrorCode = authErr.Code
	ev.Metadata = map[string]any{
		"email":      email,
		"errorClass": string(authErr.Class),
	}
	telemetry.EmitAsync(s.Emitter, ev)
	return authErr
}
