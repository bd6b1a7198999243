package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/service"
	"github.com/aussiebroadwan/maidrobe/internal/auth/telemetry"
	"github.com/aussiebroadwan/maidrobe/pkg/httpx"
	"github.com/jonboulle/clockwork"
)

// SessionResponse summarises the current session. Email is redacted and no
// token is ever included.
type SessionResponse struct {
	LoggedIn      bool       `json:"logged_in"`
	UserID        string     `json:"user_id,omitempty"`
	Email         string     `json:"email,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ExpiresIn     int64      `json:"expires_in,omitempty"`
	NextRefreshAt *time.Time `json:"next_refresh_at,omitempty"`
	LogoutReason  string     `json:"logout_reason,omitempty"`
}

type SessionHandler struct {
	State     *service.SessionState
	Scheduler RefreshScheduler
	Clock     clockwork.Clock
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := h.State.Snapshot()
	resp := SessionResponse{
		LoggedIn:     snap.LoggedIn(),
		LogoutReason: snap.LogoutReason,
	}

	if snap.User != nil {
		resp.UserID = snap.User.ID
		if snap.User.Email != "" {
			resp.Email = telemetry.RedactEmail(snap.User.Email)
		}
		resp.EmailVerified = snap.User.EmailConfirmed()
	}

	if !snap.Token.IsZero() {
		expiresAt := snap.Token.ExpiresAt.UTC()
		resp.ExpiresAt = &expiresAt

		now := time.Now()
		if h.Clock != nil {
			now = h.Clock.Now()
		}
		resp.ExpiresIn = max(int64(expiresAt.Sub(now).Seconds()), 0)
	}

	if h.Scheduler != nil {
		if next := h.Scheduler.NextRefreshAt(); !next.IsZero() {
			next = next.UTC()
			resp.NextRefreshAt = &next
		}
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}
