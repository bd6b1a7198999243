package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/store"
	_ "modernc.org/sqlite"
)

const (
	secureItemsTable = "secure_items"
	localItemsTable  = "local_items"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	dsn string
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// The CLI and the background refresher can share one database file.
	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:  db,
		dsn: dsn,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	// Ensure rollback is called if we panic or return early with error
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) SecureItems() store.KV { return &itemsRepo{q: s.db, table: secureItemsTable} }
func (s *Store) LocalItems() store.KV  { return &itemsRepo{q: s.db, table: localItemsTable} }

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) SecureItems() store.KV { return &itemsRepo{q: t.tx, table: secureItemsTable} }
func (t *txStore) LocalItems() store.KV  { return &itemsRepo{q: t.tx, table: localItemsTable} }

// itemsRepo is one key/value table. table is always one of the constants
// above, never caller input.
type itemsRepo struct {
	q     querier
	table string
}

func (r *itemsRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, r.table),
		key,
	).Scan(&value)
	if err != nil {
		return "", mapNotFound(err)
	}
	return value, nil
}

func (r *itemsRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.q.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, r.table),
		key, value, time.Now().UTC(),
	)
	return err
}

func (r *itemsRepo) Delete(ctx context.Context, key string) error {
	_, err := r.q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, r.table),
		key,
	)
	return err
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
