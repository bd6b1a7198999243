package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"github.com/aussiebroadwan/maidrobe/internal/auth/telemetry"
)

// Restore hydrates state from the stored bundle at start-up. It reports
// whether a session was found.
func (p *SessionPersistence) Restore(ctx context.Context, state *SessionState) (domain.SessionBundle, bool) {
	bundle, ok := p.Load(ctx)
	if !ok {
		return domain.SessionBundle{}, false
	}

	meta := bundleTokenMetadata(bundle)
	state.StartSession(func() {
		state.SetUser(bundle.Session.User)
		state.SetTokenMetadata(meta.ExpiresAt, meta.TokenType)
	})

	ev := domain.NewAuthEvent(domain.EventSessionRestored, clockOr(p.Clock).Now())
	ev.Outcome = domain.OutcomeSuccess
	ev.UserID = bundle.Session.User.ID
	ev.Metadata = map[string]any{"needsRefresh": bundle.NeedsRefresh}
	telemetry.EmitAsync(p.Emitter, ev)

	return bundle, true
}

// bundleTokenMetadata derives expiry for a stored session. A relative
// expires_in counts from the last successful auth, not from now.
func bundleTokenMetadata(bundle domain.SessionBundle) domain.TokenMetadata {
	issued, err := time.Parse(time.RFC3339Nano, bundle.LastAuthSuccessAt)
	if err != nil {
		// Load has validated the format; fall back to the epoch so an
		// unparseable time reads as long expired.
		issued = time.Unix(0, 0)
	}
	return domain.DeriveTokenMetadata(bundle.Session, issued)
}
