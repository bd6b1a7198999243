package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"github.com/aussiebroadwan/maidrobe/internal/auth/telemetry"
	"github.com/aussiebroadwan/maidrobe/pkg/authsdk"
	"github.com/aussiebroadwan/maidrobe/pkg/slogx"
	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	// RefreshLeadTime is how long before expiry the proactive refresh runs.
	RefreshLeadTime = 5 * time.Minute

	// ForcedLogoutReason is shown on the login screen after a refresh gives up.
	ForcedLogoutReason = "Session refresh failed. Please log in again."

	refreshKey = "refresh"
)

// RefreshManager keeps the access token fresh.
//
// It owns a single proactive timer set RefreshLeadTime before expiry and
// exposes Refresh for reactive use. At most one refresh runs at a time;
// concurrent callers share its outcome. Transient failures are retried with
// capped exponential backoff; a permanent failure or running out of
// attempts forces a logout.
//
// The timer is cancelled while offline and re-armed on reconnect. An
// in-flight refresh always runs to completion, even across Stop.
type RefreshManager struct {
	Backend      AuthBackend
	State        *SessionState
	Persistence  *SessionPersistence
	Connectivity Connectivity
	Navigator    Navigator
	Emitter      telemetry.Emitter
	Logger       *slog.Logger
	Clock        clockwork.Clock

	// Jitter returns the random part of each backoff delay. Defaults to
	// RandomJitter.
	Jitter func() time.Duration

	group singleflight.Group

	mu          sync.Mutex
	started     bool
	timer       clockwork.Timer
	timerGen    uint64
	nextRefresh time.Time
	lastExpiry  time.Time
	unsubscribe []func()
}

// Start subscribes to session and connectivity changes and arms the timer.
// A stored bundle flagged needsRefresh is refreshed straight away when
// online; a flag on a token that is not yet due is cleared.
func (m *RefreshManager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.lastExpiry = m.State.Snapshot().Token.ExpiresAt
	m.mu.Unlock()

	unsubs := []func(){m.State.Subscribe(m.onSessionChange)}
	if m.Connectivity != nil {
		unsubs = append(unsubs, m.Connectivity.Subscribe(m.onConnectivityChange))
	}
	m.mu.Lock()
	m.unsubscribe = unsubs
	m.mu.Unlock()

	if bundle, ok := m.Persistence.Load(ctx); ok && bundle.NeedsRefresh {
		meta := bundleTokenMetadata(bundle)
		if meta.ExpiresAt.Sub(clockOr(m.Clock).Now()) > RefreshLeadTime {
			// Flag left over from a run whose token has since been replaced.
			m.Persistence.ClearNeedsRefresh(ctx)
		} else if m.online() {
			m.logger().Info("stored session is flagged for refresh")
			go m.refreshInBackground("needs_refresh")
			return
		}
	}

	m.Reschedule()
}

// Stop cancels the timer and subscriptions. It does not cancel a refresh
// that is already running.
func (m *RefreshManager) Stop() {
	m.mu.Lock()
	m.started = false
	m.cancelTimerLocked()
	unsubs := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// Reschedule replaces any pending timer with one derived from the current
// token expiry. Nothing is armed while stopped, offline or logged out. If
// the lead time has already passed the refresh starts immediately.
func (m *RefreshManager) Reschedule() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rescheduleLocked()
}

// NextRefreshAt is when the proactive refresh is due, or zero if none is
// scheduled.
func (m *RefreshManager) NextRefreshAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextRefresh
}

func (m *RefreshManager) rescheduleLocked() {
	m.cancelTimerLocked()
	if !m.started || !m.online() {
		return
	}

	snap := m.State.Snapshot()
	if !snap.LoggedIn() || snap.Token.IsZero() {
		return
	}

	clock := clockOr(m.Clock)
	now := clock.Now()
	refreshIn := snap.Token.ExpiresAt.Sub(now) - RefreshLeadTime
	if refreshIn <= 0 {
		m.logger().Debug("token inside refresh lead time; refreshing now", "expires_at", snap.Token.ExpiresAt)
		go m.refreshInBackground("proactive")
		return
	}

	gen := m.timerGen
	m.nextRefresh = now.Add(refreshIn)
	m.timer = clock.AfterFunc(refreshIn, func() { m.onTimer(gen) })
	m.logger().Debug("proactive refresh scheduled", "in", refreshIn, "at", m.nextRefresh)
}

// cancelTimerLocked stops the timer and invalidates any callback already in
// flight from it.
func (m *RefreshManager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
	m.nextRefresh = time.Time{}
}

func (m *RefreshManager) onTimer(gen uint64) {
	m.mu.Lock()
	if !m.started || gen != m.timerGen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.nextRefresh = time.Time{}
	m.mu.Unlock()

	go m.refreshInBackground("proactive")
}

func (m *RefreshManager) refreshInBackground(trigger string) {
	if _, err := m.Refresh(context.Background()); err != nil {
		m.logger().Debug("background refresh finished with error", "trigger", trigger, "error", err)
	}
}

func (m *RefreshManager) onSessionChange(snap SessionSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}
	if !snap.LoggedIn() {
		m.lastExpiry = time.Time{}
		m.cancelTimerLocked()
		return
	}
	if snap.Token.ExpiresAt.Equal(m.lastExpiry) {
		return
	}
	m.lastExpiry = snap.Token.ExpiresAt
	m.rescheduleLocked()
}

func (m *RefreshManager) onConnectivityChange(online bool) {
	if online {
		m.logger().Info("back online; re-arming refresh")
		m.Reschedule()
		return
	}

	m.mu.Lock()
	started := m.started
	m.cancelTimerLocked()
	m.mu.Unlock()

	if !started {
		return
	}
	m.logger().Info("offline; proactive refresh paused")

	snap := m.State.Snapshot()
	if !snap.LoggedIn() || snap.Token.IsZero() {
		return
	}
	if snap.Token.ExpiresAt.Sub(clockOr(m.Clock).Now()) <= RefreshLeadTime {
		m.Persistence.MarkNeedsRefresh(context.Background())
		telemetry.EmitAsync(m.Emitter, m.event(domain.EventRefreshNeededOffline, "", snap.User.ID))
	}
}

func (m *RefreshManager) online() bool {
	return m.Connectivity == nil || m.Connectivity.Online()
}

// Refresh exchanges the stored refresh token for a new session. Concurrent
// calls share one backend exchange and its result. ctx only bounds how long
// this caller waits; the refresh itself always runs to completion.
func (m *RefreshManager) Refresh(ctx context.Context) (domain.Session, error) {
	ch := m.group.DoChan(refreshKey, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.Session{}, res.Err
		}
		return res.Val.(domain.Session), nil
	case <-ctx.Done():
		return domain.Session{}, ctx.Err()
	}
}

func (m *RefreshManager) refresh(ctx context.Context) (domain.Session, error) {
	l := m.logger()
	clock := clockOr(m.Clock)
	start := clock.Now()

	// Read before the bundle so a logout between the two is still detected.
	epoch := m.State.Epoch()
	bundle, ok := m.Persistence.Load(ctx)
	if !ok {
		return domain.Session{}, ErrNoSession
	}
	userID := bundle.Session.User.ID

	var (
		result  *authsdk.Session
		attempt int
	)

	op := func() error {
		attempt++
		s, err := m.Backend.RefreshSession(ctx, bundle.Session.RefreshToken)
		if err != nil {
			if ClassifyRefreshError(err) == RefreshPermanent {
				return backoff.Permanent(err)
			}
			return err
		}
		result = s
		return nil
	}

	notify := func(err error, delay time.Duration) {
		l.Warn("token refresh failed; retrying", "attempt", attempt, "delay", delay, "error", err)

		ev := m.event(domain.EventTokenRefreshRetry, domain.OutcomeFailure, userID)
		ev.ErrorCode = refreshErrorCode(err)
		ev.Latency = clock.Since(start)
		ev.Metadata = map[string]any{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		}
		telemetry.EmitAsync(m.Emitter, ev)
	}

	err := backoff.RetryNotifyWithTimer(op, newRefreshBackOff(m.Jitter), notify, &clockTimer{clock: clock})
	if err != nil {
		kind := ClassifyRefreshError(err)
		code := domain.CodeRefreshExhausted
		if kind == RefreshPermanent {
			code = domain.CodeRefreshRejected
		}
		l.Error("token refresh failed", "attempts", attempt, "kind", kind, "error", err)

		ev := m.event(domain.EventTokenRefreshFailure, domain.OutcomeFailure, userID)
		ev.ErrorCode = code
		ev.Latency = clock.Since(start)
		ev.Metadata = map[string]any{
			"attempts": attempt,
			"kind":     kind.String(),
		}
		telemetry.EmitAsync(m.Emitter, ev)

		if !m.forceLogout(ctx, epoch, bundle.Session, code) {
			return domain.Session{}, ErrSessionEnded
		}
		return domain.Session{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	session := sessionFromSDK(result)
	now := clock.Now()
	committed := m.State.CommitIfCurrent(epoch, func() {
		m.Persistence.Save(ctx, &session, FormatAuthTime(now))
		meta := domain.DeriveTokenMetadata(session, now)
		m.State.SetUser(session.User)
		m.State.SetTokenMetadata(meta.ExpiresAt, meta.TokenType)
	})
	if !committed {
		l.Info("discarding refresh result: session ended while refreshing", "user_id", userID)
		return domain.Session{}, ErrSessionEnded
	}

	ev := m.event(domain.EventTokenRefreshSuccess, domain.OutcomeSuccess, session.User.ID)
	ev.Latency = clock.Since(start)
	ev.Metadata = map[string]any{"attempts": attempt}
	telemetry.EmitAsync(m.Emitter, ev)

	l.Info("token refreshed", "user_id", session.User.ID, "attempts", attempt)
	return session, nil
}

// forceLogout ends the session after a refresh gave up. Every step runs even
// if an earlier one fails. It reports false, doing nothing, if the session
// already ended some other way.
func (m *RefreshManager) forceLogout(ctx context.Context, epoch uint64, session domain.Session, code string) bool {
	l := m.logger()

	ran := m.State.CommitIfCurrent(epoch, func() {
		runStep(l, "cancel_timer", func() error {
			m.mu.Lock()
			m.cancelTimerLocked()
			m.mu.Unlock()
			return nil
		})
		runStep(l, "forget_in_flight", func() error {
			m.group.Forget(refreshKey)
			return nil
		})
		runStep(l, "set_logout_reason", func() error {
			m.State.SetLogoutReason(ForcedLogoutReason)
			return nil
		})
		runStep(l, "remote_sign_out", func() error {
			return m.Backend.SignOut(ctx, session.AccessToken, authsdk.SignOutLocal)
		})
		runStep(l, "clear_session_state", func() error {
			m.State.ClearUser()
			return nil
		})
		runStep(l, "clear_session_bundle", func() error {
			m.Persistence.Clear(ctx)
			return nil
		})
	})
	if !ran {
		l.Info("skipping forced logout: session already ended")
		return false
	}

	// Outside the commit lock so a navigator may start a new login.
	if m.Navigator != nil {
		runStep(l, "navigate_to_login", func() error {
			m.Navigator.NavigateToLogin(ForcedLogoutReason)
			return nil
		})
	}

	ev := m.event(domain.EventLogoutForced, domain.OutcomeSuccess, session.User.ID)
	ev.ErrorCode = code
	telemetry.EmitAsync(m.Emitter, ev)

	l.Warn("forced logout", "user_id", session.User.ID, "code", code)
	return true
}

// runStep runs one fail-safe step, logging an error or a panic and carrying
// on.
func runStep(l *slog.Logger, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("step panicked", "step", name, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		l.Warn("step failed", "step", name, "error", err)
	}
}

func refreshErrorCode(err error) string {
	if ClassifyRefreshError(err) == RefreshPermanent {
		return domain.CodeRefreshRejected
	}
	_, code := ClassifyError(err)
	return code
}

func (m *RefreshManager) event(eventType domain.EventType, outcome domain.Outcome, userID string) domain.AuthEvent {
	ev := domain.NewAuthEvent(eventType, clockOr(m.Clock).Now())
	ev.Outcome = outcome
	ev.UserID = userID
	return ev
}

func (m *RefreshManager) logger() *slog.Logger {
	return slogx.Or(m.Logger)
}
