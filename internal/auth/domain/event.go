package domain

import (
	"time"

	"github.com/aussiebroadwan/maidrobe/pkg/idx"
)

type EventType string

const (
	EventLoginSuccess         EventType = "login-success"
	EventLoginFailure         EventType = "login-failure"
	EventLogoutSuccess        EventType = "logout-success"
	EventLogoutFailure        EventType = "logout-failure"
	EventLogoutForced         EventType = "logout-forced"
	EventTokenRefreshSuccess  EventType = "token-refresh-success"
	EventTokenRefreshRetry    EventType = "token-refresh-retry"
	EventTokenRefreshFailure  EventType = "token-refresh-failure"
	EventSessionRestored      EventType = "session-restored"
	EventSessionCorrupted     EventType = "session-corrupted"
	EventPasswordResetSuccess EventType = "password-reset-requested"
	EventPasswordResetFailure EventType = "password-reset-failure"
	EventVerificationResent   EventType = "verification-resent"
	EventVerificationFailure  EventType = "verification-failure"
	EventRateLimitExceeded    EventType = "rate-limit-exceeded"
	EventConnectivityChanged  EventType = "connectivity-changed"
	EventRefreshNeededOffline EventType = "refresh-needed-offline"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// AuthEvent is an immutable telemetry record. Metadata is sanitized before
// it reaches any sink.
type AuthEvent struct {
	ID        idx.ID
	Type      EventType
	UserID    string
	ErrorCode string
	Outcome   Outcome
	Latency   time.Duration
	Metadata  map[string]any
	Timestamp time.Time
}

// NewAuthEvent stamps a new event with an id and the given time.
func NewAuthEvent(eventType EventType, at time.Time) AuthEvent {
	return AuthEvent{
		ID:        idx.NewAt(at),
		Type:      eventType,
		Timestamp: at,
	}
}
