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

func TestLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.seedSession(t, domainSession("user-1", testEpoch.Add(time.Hour)))
	h.state.SetLogoutReason(ForcedLogoutReason)

	require.NoError(t, h.logout().Logout(ctx))

	snap := h.state.Snapshot()
	require.False(t, snap.LoggedIn())
	require.Empty(t, snap.LogoutReason)
	_, stored := h.rawBundle(t)
	require.False(t, stored)

	require.EqualValues(t, 1, h.backend.signOutCalls.Load())
	h.backend.mu.Lock()
	require.Equal(t, "access-0", h.backend.lastSignOut)
	h.backend.mu.Unlock()

	require.EqualValues(t, 1, h.navigations.Load())
	require.Equal(t, "", h.lastReason.Load())

	ev := waitForEvent(t, h.recorder, domain.EventLogoutSuccess)
	require.Equal(t, "user-1", ev.UserID)
}

func TestLogoutRemoteFailureStillClearsLocally(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.seedSession(t, domainSession("user-1", testEpoch.Add(time.Hour)))
	h.backend.signOut = func(context.Context, string, authsdk.SignOutScope) error {
		return &authsdk.NetworkError{Op: "logout", Err: errors.New("connection refused")}
	}

	err := h.logout().Logout(ctx)
	requireAuthError(t, err, domain.ErrorClassNetwork, domain.CodeNetwork)

	require.False(t, h.state.Snapshot().LoggedIn())
	_, stored := h.rawBundle(t)
	require.False(t, stored)
	require.EqualValues(t, 1, h.navigations.Load())

	ev := waitForEvent(t, h.recorder, domain.EventLogoutFailure)
	require.Equal(t, true, ev.Metadata["localCleared"])
	require.False(t, h.recorder.Has(domain.EventLogoutSuccess))
}

func TestLogoutWithoutSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	require.NoError(t, h.logout().Logout(context.Background()))
	require.Zero(t, h.backend.signOutCalls.Load())
	require.EqualValues(t, 1, h.navigations.Load())
	waitForEvent(t, h.recorder, domain.EventLogoutSuccess)
}
