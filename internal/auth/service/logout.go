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

type LogoutService struct {
	Backend     AuthBackend
	State       *SessionState
	Persistence *SessionPersistence
	Navigator   Navigator
	Emitter     telemetry.Emitter
	Logger      *slog.Logger
	Clock       clockwork.Clock
}

// Logout ends the session on this device.
//
// Local state and the stored bundle are cleared first, under the session
// commit lock, so a refresh finishing concurrently cannot bring the session
// back. The backend sign-out runs afterwards and its failure is reported
// but does not undo the local logout. The navigator is always called.
func (s *LogoutService) Logout(ctx context.Context) error {
	l := slogx.Or(s.Logger)
	clock := clockOr(s.Clock)

	var (
		accessToken string
		userID      string
	)
	s.State.EndSession(func() {
		if bundle, ok := s.Persistence.Load(ctx); ok {
			accessToken = bundle.Session.AccessToken
			userID = bundle.Session.User.ID
		}
		if snap := s.State.Snapshot(); userID == "" && snap.User != nil {
			userID = snap.User.ID
		}

		s.State.ClearUser()
		s.State.SetLogoutReason("")
		s.Persistence.Clear(ctx)
	})

	var result error
	start := clock.Now()
	if accessToken != "" {
		if err := s.Backend.SignOut(ctx, accessToken, authsdk.SignOutGlobal); err != nil {
			authErr := newAuthError(err)
			l.Warn("remote sign-out failed; local session cleared", "user_id", userID, "error", err)

			ev := newEvent(clock, domain.EventLogoutFailure, domain.OutcomeFailure)
			ev.UserID = userID
			ev.ErrorCode = authErr.Code
			ev.Latency = clock.Since(start)
			ev.Metadata = map[string]any{"localCleared": true}
			telemetry.EmitAsync(s.Emitter, ev)
			result = authErr
		}
	}

	if result == nil {
		ev := newEvent(clock, domain.EventLogoutSuccess, domain.OutcomeSuccess)
		ev.UserID = userID
		ev.Latency = clock.Since(start)
		telemetry.EmitAsync(s.Emitter, ev)
		l.Info("logged out", "user_id", userID)
	}

	if s.Navigator != nil {
		s.Navigator.NavigateToLogin("")
	}
	return result
}
