package service

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

const (
	// MaxRefreshAttempts includes the first attempt.
	MaxRefreshAttempts = 3

	RefreshBaseDelay = time.Second
	RefreshMaxDelay  = 30 * time.Second
	RefreshMaxJitter = time.Second
)

// RefreshErrorKind says whether a failed refresh is worth retrying.
type RefreshErrorKind int

const (
	RefreshTransient RefreshErrorKind = iota
	RefreshPermanent
)

func (k RefreshErrorKind) String() string {
	if k == RefreshPermanent {
		return "permanent"
	}
	return "transient"
}

var (
	transientRefreshPatterns = []string{"network", "fetch", "timeout", "connection"}
	permanentRefreshPatterns = []string{"invalid", "expired", "refresh_token"}
	serverRefreshPatterns    = []string{"500", "502", "503", "504", "server error", "service unavailable", "bad gateway"}
)

// ClassifyRefreshError decides from the error text whether a refresh failure
// is transient or permanent. Connectivity wording is checked first, then
// wording that means the refresh token is no longer usable, then server
// failures. Anything unrecognised is treated as transient.
func ClassifyRefreshError(err error) RefreshErrorKind {
	if err == nil {
		return RefreshTransient
	}
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, transientRefreshPatterns):
		return RefreshTransient
	case containsAny(msg, permanentRefreshPatterns):
		return RefreshPermanent
	case containsAny(msg, serverRefreshPatterns):
		return RefreshTransient
	default:
		return RefreshTransient
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// BackoffDelay is the wait after the given zero-based attempt failed:
// min(base*2^attempt + jitter, max).
func BackoffDelay(attempt int, jitter time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Past this the shift alone is far beyond RefreshMaxDelay.
	if attempt > 16 {
		return RefreshMaxDelay
	}
	return min(RefreshBaseDelay<<attempt+jitter, RefreshMaxDelay)
}

// RandomJitter returns a uniform duration in [0, RefreshMaxJitter].
func RandomJitter() time.Duration {
	return rand.N(RefreshMaxJitter + 1)
}

// refreshBackOff feeds BackoffDelay into backoff.Retry.
type refreshBackOff struct {
	attempt int
	jitter  func() time.Duration
}

func newRefreshBackOff(jitter func() time.Duration) backoff.BackOff {
	if jitter == nil {
		jitter = RandomJitter
	}
	return backoff.WithMaxRetries(&refreshBackOff{jitter: jitter}, MaxRefreshAttempts-1)
}

func (b *refreshBackOff) NextBackOff() time.Duration {
	d := BackoffDelay(b.attempt, b.jitter())
	b.attempt++
	return d
}

func (b *refreshBackOff) Reset() { b.attempt = 0 }

// clockTimer runs backoff waits on a clockwork clock so tests can advance
// through them.
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}
