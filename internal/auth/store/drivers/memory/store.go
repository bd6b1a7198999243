// Package memory is an in-process store driver used by tests and by the CLI
// when no data directory is configured.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/aussiebroadwan/maidrobe/internal/auth/store"
)

type Store struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	secure map[string]string
	local  map[string]string
}

func NewStore() *Store {
	return &Store{
		secure: make(map[string]string),
		local:  make(map[string]string),
	}
}

func (s *Store) SecureItems() store.KV { return &items{mu: &s.mu, m: s.secure} }
func (s *Store) LocalItems() store.KV  { return &items{mu: &s.mu, m: s.local} }

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// WithTx runs fn against private copies of both namespaces and swaps them in
// only when fn succeeds. Transactions are serialised with each other but not
// with plain reads and writes.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	tx := &txStore{
		secure: maps.Clone(s.secure),
		local:  maps.Clone(s.local),
	}
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.secure)
	maps.Copy(s.secure, tx.secure)
	clear(s.local)
	maps.Copy(s.local, tx.local)
	return nil
}

type txStore struct {
	mu     sync.Mutex
	secure map[string]string
	local  map[string]string
}

func (t *txStore) SecureItems() store.KV { return &items{mu: &t.mu, m: t.secure} }
func (t *txStore) LocalItems() store.KV  { return &items{mu: &t.mu, m: t.local} }

type items struct {
	mu *sync.Mutex
	m  map[string]string
}

func (i *items) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	v, ok := i.m[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (i *items) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	i.m[key] = value
	return nil
}

func (i *items) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.m, key)
	return nil
}
