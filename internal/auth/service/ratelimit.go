package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/store"
	"github.com/aussiebroadwan/maidrobe/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// LimitPolicy bounds attempts of one operation within a trailing window.
type LimitPolicy struct {
	Operation   string
	MaxAttempts int
	Window      time.Duration
}

var (
	LoginLimitPolicy = LimitPolicy{
		Operation:   "login",
		MaxAttempts: 5,
		Window:      60 * time.Second,
	}

	PasswordResetLimitPolicy = LimitPolicy{
		Operation:   "password-reset",
		MaxAttempts: 5,
		Window:      time.Hour,
	}
)

// LimitResult is the outcome of CheckLimit or Allow.
type LimitResult struct {
	Allowed bool

	// Attempts is the number of attempts inside the window.
	Attempts int

	// RemainingSeconds is how long until the oldest attempt leaves the
	// window. Zero when Allowed.
	RemainingSeconds int
}

// AttemptLimiter is a sliding-window attempt counter persisted in the local
// store. It deters rapid retries from the client; the backend keeps its own
// limits.
//
// The limiter fails open: if the store cannot be read or written the error
// is logged and the attempt is treated as allowed.
type AttemptLimiter struct {
	Store  store.KV
	Clock  clockwork.Clock
	Logger *slog.Logger

	// mu serialises read-modify-write of the attempt lists.
	mu sync.Mutex
}

// NormalizeEmail trims surrounding whitespace and lower-cases email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ScopeKey is the local-store key for the attempts of policy by email.
// An empty email scopes the limit to the whole device.
func ScopeKey(policy LimitPolicy, email string) string {
	key := "auth:" + policy.Operation + ":attempts"
	if e := NormalizeEmail(email); e != "" {
		key += ":" + e
	}
	return key
}

// CheckLimit reports whether another attempt is allowed without recording
// one.
func (l *AttemptLimiter) CheckLimit(ctx context.Context, policy LimitPolicy, email string) LimitResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := clockOr(l.Clock).Now()
	return limitResult(policy, l.read(ctx, ScopeKey(policy, email), policy.Window, now), now)
}

// RecordAttempt appends an attempt at the current time.
func (l *AttemptLimiter) RecordAttempt(ctx context.Context, policy LimitPolicy, email string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := clockOr(l.Clock).Now()
	key := ScopeKey(policy, email)
	l.write(ctx, key, append(l.read(ctx, key, policy.Window, now), now.UnixMilli()))
}

// Allow checks the limit and, if allowed, records the attempt in the same
// critical section, so concurrent callers cannot overshoot MaxAttempts.
func (l *AttemptLimiter) Allow(ctx context.Context, policy LimitPolicy, email string) LimitResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := clockOr(l.Clock).Now()
	key := ScopeKey(policy, email)
	attempts := l.read(ctx, key, policy.Window, now)

	res := limitResult(policy, attempts, now)
	if res.Allowed {
		l.write(ctx, key, append(attempts, now.UnixMilli()))
	}
	return res
}

func limitResult(policy LimitPolicy, attempts []int64, now time.Time) LimitResult {
	if len(attempts) < policy.MaxAttempts {
		return LimitResult{Allowed: true, Attempts: len(attempts)}
	}

	oldest := time.UnixMilli(slices.Min(attempts))
	remaining := policy.Window - now.Sub(oldest)
	return LimitResult{
		Allowed:          false,
		Attempts:         len(attempts),
		RemainingSeconds: int(math.Ceil(float64(remaining.Milliseconds()) / 1000)),
	}
}

func (l *AttemptLimiter) write(ctx context.Context, key string, attempts []int64) {
	payload, err := json.Marshal(attempts)
	if err != nil {
		slogx.Or(l.Logger).Error("failed to encode rate limit attempts", "scope", key, "error", err)
		return
	}
	if err := l.Store.Set(ctx, key, string(payload)); err != nil {
		slogx.Or(l.Logger).Warn("failed to record rate limit attempt; failing open", "scope", key, "error", err)
	}
}

// read loads the attempts for key, oldest first, with entries outside the
// window pruned.
func (l *AttemptLimiter) read(ctx context.Context, key string, window time.Duration, now time.Time) []int64 {
	raw, err := l.Store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slogx.Or(l.Logger).Warn("failed to read rate limit attempts; failing open", "scope", key, "error", err)
		}
		return nil
	}

	var attempts []int64
	if err := json.Unmarshal([]byte(raw), &attempts); err != nil {
		slogx.Or(l.Logger).Warn("discarding unreadable rate limit attempts", "scope", key, "error", err)
		return nil
	}

	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()
	kept := attempts[:0]
	for _, ts := range attempts {
		if nowMs-ts < windowMs {
			kept = append(kept, ts)
		}
	}
	return kept
}
