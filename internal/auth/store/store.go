package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("store: not found")

// ErrCorrupt is returned when a stored value exists but cannot be decoded,
// e.g. sealed bytes that fail to open under the current device key.
var ErrCorrupt = errors.New("store: corrupt item")

// KV is a string key/value namespace. It is the shape both device stores
// take: the secure store for session material and the plain local store for
// rate-limit history and other non-secret state.
type KV interface {
	// Get returns ErrNotFound when key has no value.
	Get(ctx context.Context, key string) (string, error)

	// Set inserts or replaces the value for key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Store is the root data access interface. Concrete drivers (sqlite, memory)
// implement this and expose the two item namespaces as sub-repositories.
type Store interface {
	// SecureItems holds values that must be protected at rest. Drivers store
	// them as given; wrap with NewSealedKV to encrypt.
	SecureItems() KV

	// LocalItems holds non-secret values.
	LocalItems() KV

	ApplyMigrations() error

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx exposes the item namespaces inside a transaction.
type Tx interface {
	SecureItems() KV
	LocalItems() KV
}
