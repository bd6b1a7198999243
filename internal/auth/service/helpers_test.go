package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"github.com/aussiebroadwan/maidrobe/internal/auth/store"
	"github.com/aussiebroadwan/maidrobe/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/maidrobe/internal/auth/telemetry"
	"github.com/aussiebroadwan/maidrobe/pkg/authsdk"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

// fakeBackend is a scriptable AuthBackend. Unset funcs succeed.
type fakeBackend struct {
	signIn        func(ctx context.Context, email, password string) (*authsdk.Session, error)
	refresh       func(ctx context.Context, refreshToken string) (*authsdk.Session, error)
	signOut       func(ctx context.Context, accessToken string, scope authsdk.SignOutScope) error
	resetPassword func(ctx context.Context, email, redirectTo string) error
	resend        func(ctx context.Context, params authsdk.ResendParams) error

	signInCalls  atomic.Int32
	refreshCalls atomic.Int32
	signOutCalls atomic.Int32
	recoverCalls atomic.Int32
	resendCalls  atomic.Int32

	mu          sync.Mutex
	lastEmail   string
	lastSignOut string
}

func (f *fakeBackend) SignInWithPassword(ctx context.Context, email, password string) (*authsdk.Session, error) {
	f.signInCalls.Add(1)
	f.mu.Lock()
	f.lastEmail = email
	f.mu.Unlock()
	if f.signIn != nil {
		return f.signIn(ctx, email, password)
	}
	return sdkSession("user-1", "access-1", "refresh-1", testEpoch.Add(time.Hour)), nil
}

func (f *fakeBackend) RefreshSession(ctx context.Context, refreshToken string) (*authsdk.Session, error) {
	f.refreshCalls.Add(1)
	if f.refresh != nil {
		return f.refresh(ctx, refreshToken)
	}
	return sdkSession("user-1", "access-2", "refresh-2", testEpoch.Add(2*time.Hour)), nil
}

func (f *fakeBackend) SignOut(ctx context.Context, accessToken string, scope authsdk.SignOutScope) error {
	f.signOutCalls.Add(1)
	f.mu.Lock()
	f.lastSignOut = accessToken
	f.mu.Unlock()
	if f.signOut != nil {
		return f.signOut(ctx, accessToken, scope)
	}
	return nil
}

func (f *fakeBackend) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	f.recoverCalls.Add(1)
	f.mu.Lock()
	f.lastEmail = email
	f.mu.Unlock()
	if f.resetPassword != nil {
		return f.resetPassword(ctx, email, redirectTo)
	}
	return nil
}

func (f *fakeBackend) Resend(ctx context.Context, params authsdk.ResendParams) error {
	f.resendCalls.Add(1)
	f.mu.Lock()
	f.lastEmail = params.Email
	f.mu.Unlock()
	if f.resend != nil {
		return f.resend(ctx, params)
	}
	return nil
}

func (f *fakeBackend) email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastEmail
}

func sdkSession(userID, access, refresh string, expiresAt time.Time) *authsdk.Session {
	return &authsdk.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    3600,
		ExpiresAt:    expiresAt.Unix(),
		User:         &authsdk.User{ID: userID, Email: "user@example.com"},
	}
}

func domainSession(userID string, expiresAt time.Time) domain.Session {
	return domain.Session{
		AccessToken:  "access-0",
		RefreshToken: "refresh-0",
		TokenType:    "bearer",
		ExpiresAt:    expiresAt.Unix(),
		User:         domain.User{ID: userID, Email: "user@example.com"},
	}
}

// failingKV fails every call.
type failingKV struct{}

var errStoreDown = errors.New("store unavailable")

func (failingKV) Get(context.Context, string) (string, error) { return "", errStoreDown }
func (failingKV) Set(context.Context, string, string) error   { return errStoreDown }
func (failingKV) Delete(context.Context, string) error        { return errStoreDown }

// readFailingKV fails reads and passes writes through.
type readFailingKV struct {
	store.KV
}

func (readFailingKV) Get(context.Context, string) (string, error) { return "", errStoreDown }

// hookKV calls afterGet once each read has completed.
type hookKV struct {
	store.KV
	afterGet func()
}

func (k hookKV) Get(ctx context.Context, key string) (string, error) {
	v, err := k.KV.Get(ctx, key)
	k.afterGet()
	return v, err
}

type harness struct {
	clock    *clockwork.FakeClock
	store    *memory.Store
	backend  *fakeBackend
	recorder *telemetry.Recorder
	state    *SessionState
	persist  *SessionPersistence
	limiter  *AttemptLimiter
	conn     *StaticConnectivity
	manager  *RefreshManager

	navigations atomic.Int32
	lastReason  atomic.Value
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock:    clockwork.NewFakeClockAt(testEpoch),
		store:    memory.NewStore(),
		backend:  &fakeBackend{},
		recorder: &telemetry.Recorder{},
		state:    NewSessionState(),
		conn:     NewStaticConnectivity(true),
	}
	h.persist = &SessionPersistence{
		Store:   h.store.SecureItems(),
		Emitter: h.recorder,
		Clock:   h.clock,
	}
	h.limiter = &AttemptLimiter{
		Store: h.store.LocalItems(),
		Clock: h.clock,
	}
	h.manager = &RefreshManager{
		Backend:      h.backend,
		State:        h.state,
		Persistence:  h.persist,
		Connectivity: h.conn,
		Navigator: NavigatorFunc(func(reason string) {
			h.lastReason.Store(reason)
			h.navigations.Add(1)
		}),
		Emitter: h.recorder,
		Clock:   h.clock,
		Jitter:  func() time.Duration { return 0 },
	}
	t.Cleanup(h.manager.Stop)
	return h
}

// seedSession stores a bundle and hydrates state as a restored session.
func (h *harness) seedSession(t *testing.T, session domain.Session) {
	t.Helper()
	h.persist.Save(context.Background(), &session, FormatAuthTime(h.clock.Now()))
	_, ok := h.persist.Restore(context.Background(), h.state)
	require.True(t, ok)
}

func (h *harness) login() *LoginService {
	return &LoginService{
		Backend:     h.backend,
		Limiter:     h.limiter,
		State:       h.state,
		Persistence: h.persist,
		Emitter:     h.recorder,
		Clock:       h.clock,
	}
}

func (h *harness) logout() *LogoutService {
	return &LogoutService{
		Backend:     h.backend,
		State:       h.state,
		Persistence: h.persist,
		Navigator: NavigatorFunc(func(reason string) {
			h.lastReason.Store(reason)
			h.navigations.Add(1)
		}),
		Emitter: h.recorder,
		Clock:   h.clock,
	}
}

func (h *harness) rawBundle(t *testing.T) (string, bool) {
	t.Helper()
	raw, err := h.store.SecureItems().Get(context.Background(), SessionBundleKey)
	if errors.Is(err, store.ErrNotFound) {
		return "", false
	}
	require.NoError(t, err)
	return raw, true
}

// waitForEvent waits for telemetry.EmitAsync to deliver an event.
func waitForEvent(t *testing.T, rec *telemetry.Recorder, eventType domain.EventType) domain.AuthEvent {
	t.Helper()
	require.Eventually(t, func() bool { return rec.Has(eventType) }, time.Second, 5*time.Millisecond,
		"event %s not emitted", eventType)
	return rec.Find(eventType)[0]
}

func requireAuthError(t *testing.T, err error, class domain.ErrorClass, code string) *domain.AuthError {
	t.Helper()
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, class, authErr.Class)
	require.Equal(t, code, authErr.Code)
	require.NotEmpty(t, authErr.Message)
	return authErr
}
