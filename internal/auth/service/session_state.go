package service

import (
	"sync"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
)

// SessionSnapshot is a point-in-time copy of SessionState.
type SessionSnapshot struct {
	User         *domain.User
	Token        domain.TokenMetadata
	LogoutReason string
	Epoch        uint64
}

// LoggedIn reports whether a user is set.
func (s SessionSnapshot) LoggedIn() bool { return s.User != nil }

// SessionState is the in-memory record of who is logged in and when their
// access token expires. It never holds token material.
//
// Setters are synchronous and last-write-wins. Every change is delivered to
// subscribers after the state lock is released.
//
// Session transitions (login, refresh commit, logout) go through
// StartSession, CommitIfCurrent and EndSession, which share one commit lock
// and an epoch. The epoch changes whenever a session begins or ends, so a
// refresh that started under an older epoch cannot overwrite a logout or a
// newer login.
type SessionState struct {
	mu           sync.RWMutex
	user         *domain.User
	token        domain.TokenMetadata
	logoutReason string
	epoch        uint64

	subMu   sync.Mutex
	subs    map[int]func(SessionSnapshot)
	nextSub int

	commitMu sync.Mutex
}

func NewSessionState() *SessionState {
	return &SessionState{subs: make(map[int]func(SessionSnapshot))}
}

// SetUser records the logged-in user.
func (s *SessionState) SetUser(user domain.User) {
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	s.notify()
}

// ClearUser forgets the user and token metadata and ends the current epoch.
// The logout reason is kept so the login screen can show it.
func (s *SessionState) ClearUser() {
	s.mu.Lock()
	s.user = nil
	s.token = domain.TokenMetadata{}
	s.epoch++
	s.mu.Unlock()
	s.notify()
}

// SetTokenMetadata records when the current access token expires.
func (s *SessionState) SetTokenMetadata(expiresAt time.Time, tokenType string) {
	s.mu.Lock()
	s.token = domain.TokenMetadata{ExpiresAt: expiresAt, TokenType: tokenType}
	s.mu.Unlock()
	s.notify()
}

// SetLogoutReason sets the message shown after a forced logout. An empty
// reason clears it.
func (s *SessionState) SetLogoutReason(reason string) {
	s.mu.Lock()
	s.logoutReason = reason
	s.mu.Unlock()
	s.notify()
}

func (s *SessionState) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := SessionSnapshot{
		Token:        s.token,
		LogoutReason: s.logoutReason,
		Epoch:        s.epoch,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// Epoch identifies the current session generation.
func (s *SessionState) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Subscribe registers fn to receive a snapshot after every change. fn runs
// on the goroutine that made the change and must not block.
func (s *SessionState) Subscribe(fn func(SessionSnapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *SessionState) notify() {
	snap := s.Snapshot()

	s.subMu.Lock()
	subs := make([]func(SessionSnapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// StartSession runs fn as a new session generation, for a fresh login.
// Refresh results from the previous generation are discarded afterwards.
func (s *SessionState) StartSession(fn func()) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()

	fn()
}

// CommitIfCurrent runs fn only if no session transition happened since
// epoch was read. It reports whether fn ran.
func (s *SessionState) CommitIfCurrent(epoch uint64, fn func()) bool {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if s.Epoch() != epoch {
		return false
	}
	fn()
	return true
}

// EndSession runs fn under the commit lock. fn is expected to call ClearUser,
// which moves the epoch on; a refresh waiting to commit will then find its
// epoch stale.
func (s *SessionState) EndSession(fn func()) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	fn()
}
