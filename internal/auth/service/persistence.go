package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"github.com/aussiebroadwan/maidrobe/internal/auth/store"
	"github.com/aussiebroadwan/maidrobe/internal/auth/telemetry"
	"github.com/aussiebroadwan/maidrobe/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// SessionBundleKey is the secure-store key of the persisted session bundle.
const SessionBundleKey = "maidrobe:auth:session-bundle"

// Reasons a stored bundle is rejected on load.
const (
	CorruptJSONParse         = "json_parse_error"
	CorruptNotObject         = "not_object"
	CorruptSessionField      = "invalid_session_field"
	CorruptLastAuthSuccessAt = "invalid_lastAuthSuccessAt"
	CorruptDateFormat        = "invalid_date_format"
	CorruptNeedsRefresh      = "invalid_needsRefresh"
	CorruptUnreadable        = "unreadable"
)

// SessionPersistence keeps the session bundle in the secure store.
//
// Persistence is best-effort: storage failures are logged and never returned
// to the caller. A stored bundle that fails validation is deleted rather
// than partially trusted.
type SessionPersistence struct {
	Store   store.KV
	Emitter telemetry.Emitter
	Logger  *slog.Logger
	Clock   clockwork.Clock

	// mu serialises read-modify-write of the bundle.
	mu sync.Mutex
}

// FormatAuthTime renders a lastAuthSuccessAt value.
func FormatAuthTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Load returns the stored bundle. ok is false when nothing usable is stored.
func (p *SessionPersistence) Load(ctx context.Context) (bundle domain.SessionBundle, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(ctx)
}

func (p *SessionPersistence) load(ctx context.Context) (domain.SessionBundle, bool) {
	l := slogx.Or(p.Logger)

	raw, err := p.Store.Get(ctx, SessionBundleKey)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return domain.SessionBundle{}, false
	case errors.Is(err, store.ErrCorrupt):
		l.Warn("stored session bundle cannot be opened", "error", err)
		p.discard(ctx, CorruptUnreadable)
		return domain.SessionBundle{}, false
	default:
		// Left in place: the store may recover.
		l.Error("failed to read session bundle", "error", err)
		return domain.SessionBundle{}, false
	}

	bundle, reason := decodeBundle(raw)
	if reason != "" {
		p.discard(ctx, reason)
		return domain.SessionBundle{}, false
	}

	return bundle, true
}

// discard deletes a corrupt bundle and reports why it was rejected.
func (p *SessionPersistence) discard(ctx context.Context, reason string) {
	l := slogx.Or(p.Logger)
	l.Warn("stored session bundle is corrupt; deleting", "reason", reason)
	if err := p.Store.Delete(ctx, SessionBundleKey); err != nil {
		l.Error("failed to delete corrupt session bundle", "error", err)
	}

	ev := domain.NewAuthEvent(domain.EventSessionCorrupted, clockOr(p.Clock).Now())
	ev.Outcome = domain.OutcomeFailure
	ev.ErrorCode = reason
	ev.Metadata = map[string]any{"reason": reason}
	telemetry.EmitAsync(p.Emitter, ev)
}

// decodeBundle validates raw and returns the bundle or the reason it was
// rejected.
func decodeBundle(raw string) (domain.SessionBundle, string) {
	// UseNumber keeps expiry integers exact when the session is re-encoded.
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil || dec.More() {
		return domain.SessionBundle{}, CorruptJSONParse
	}
	obj, isObj := generic.(map[string]any)
	if !isObj {
		return domain.SessionBundle{}, CorruptNotObject
	}

	if !validSessionShape(obj["session"]) {
		return domain.SessionBundle{}, CorruptSessionField
	}
	var session domain.Session
	sessionJSON, _ := json.Marshal(obj["session"])
	if err := json.Unmarshal(sessionJSON, &session); err != nil {
		return domain.SessionBundle{}, CorruptSessionField
	}

	last, isString := obj["lastAuthSuccessAt"].(string)
	if !isString || last == "" {
		return domain.SessionBundle{}, CorruptLastAuthSuccessAt
	}
	if _, err := time.Parse(time.RFC3339Nano, last); err != nil {
		return domain.SessionBundle{}, CorruptDateFormat
	}

	needsRefresh := false
	if v, present := obj["needsRefresh"]; present {
		b, isBool := v.(bool)
		if !isBool {
			return domain.SessionBundle{}, CorruptNeedsRefresh
		}
		needsRefresh = b
	}

	return domain.SessionBundle{
		Session:           session,
		LastAuthSuccessAt: last,
		NeedsRefresh:      needsRefresh,
	}, ""
}

// validSessionShape requires an object with both tokens and a user id.
func validSessionShape(v any) bool {
	obj, ok := v.(map[string]any)
	if !ok {
		return false
	}
	for _, field := range []string{"access_token", "refresh_token"} {
		if s, ok := obj[field].(string); !ok || s == "" {
			return false
		}
	}
	user, ok := obj["user"].(map[string]any)
	if !ok {
		return false
	}
	id, ok := user["id"].(string)
	return ok && id != ""
}

// Save stores session with needsRefresh reset to false. A nil session or an
// empty lastAuthSuccessAt is rejected and logged.
func (p *SessionPersistence) Save(ctx context.Context, session *domain.Session, lastAuthSuccessAt string) {
	l := slogx.Or(p.Logger)

	if session == nil {
		l.Error("refusing to save session bundle: session is nil")
		return
	}
	if lastAuthSuccessAt == "" {
		l.Error("refusing to save session bundle: lastAuthSuccessAt is empty")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.write(ctx, domain.SessionBundle{
		Session:           *session,
		LastAuthSuccessAt: lastAuthSuccessAt,
		NeedsRefresh:      false,
	})
}

func (p *SessionPersistence) write(ctx context.Context, bundle domain.SessionBundle) {
	l := slogx.Or(p.Logger)

	payload, err := json.Marshal(bundle)
	if err != nil {
		l.Error("failed to encode session bundle", "error", err)
		return
	}
	if err := p.Store.Set(ctx, SessionBundleKey, string(payload)); err != nil {
		l.Error("failed to write session bundle", "error", err)
		return
	}
	l.Debug("session bundle saved", "session", bundle.Session, "needs_refresh", bundle.NeedsRefresh)
}

// Clear deletes the stored bundle.
func (p *SessionPersistence) Clear(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.Store.Delete(ctx, SessionBundleKey); err != nil {
		slogx.Or(p.Logger).Error("failed to clear session bundle", "error", err)
	}
}

// MarkNeedsRefresh flags the stored bundle for refresh at next start.
func (p *SessionPersistence) MarkNeedsRefresh(ctx context.Context) {
	p.setNeedsRefresh(ctx, true)
}

// ClearNeedsRefresh removes the flag set by MarkNeedsRefresh.
func (p *SessionPersistence) ClearNeedsRefresh(ctx context.Context) {
	p.setNeedsRefresh(ctx, false)
}

// setNeedsRefresh is shared by both directions so they follow one policy:
// with no stored bundle there is nothing to flag, which is logged as a
// warning and otherwise ignored.
func (p *SessionPersistence) setNeedsRefresh(ctx context.Context, value bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bundle, ok := p.load(ctx)
	if !ok {
		slogx.Or(p.Logger).Warn("cannot update needsRefresh: no stored session", "needs_refresh", value)
		return
	}
	if bundle.NeedsRefresh == value {
		return
	}

	bundle.NeedsRefresh = value
	p.write(ctx, bundle)
}
