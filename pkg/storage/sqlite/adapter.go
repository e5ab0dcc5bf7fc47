// Package sqlite provides a SQLite-backed storage adapter.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/goliatone/go-reactive/pkg/storage"
)

// DefaultTable holds persisted values when no table is configured.
const DefaultTable = "reactive_state"

// Adapter stores values in a single key/value table. Reads hit a local file,
// so it advertises synchronous reads and stores hydrate before wrapping.
type Adapter struct {
	db    *sql.DB
	table string
	owned bool
}

var (
	_ storage.Adapter    = (*Adapter)(nil)
	_ storage.Clearer    = (*Adapter)(nil)
	_ storage.SyncReader = (*Adapter)(nil)
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithTable overrides the table name.
func WithTable(table string) Option {
	return func(a *Adapter) {
		if table = strings.TrimSpace(table); table != "" {
			a.table = table
		}
	}
}

// Open opens the database at path, creating the table if needed. ":memory:"
// opens a private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Adapter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	adapter, err := New(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	adapter.owned = true
	return adapter, nil
}

// New wraps an open database handle. The caller keeps ownership of db.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Adapter, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite: db is required")
	}
	a := &Adapter{db: db, table: DefaultTable}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("sqlite: ping db: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`, a.table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("sqlite: create table %s: %w", a.table, err)
	}
	return a, nil
}

// Close closes the database when the adapter opened it.
func (a *Adapter) Close() error {
	if a == nil || a.db == nil || !a.owned {
		return nil
	}
	return a.db.Close()
}

func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	query := fmt.Sprintf(`SELECT value FROM %q WHERE key = ?`, a.table)
	err := a.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get %q: %w", key, err)
	}
	return value, true, nil
}

func (a *Adapter) Set(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(`INSERT INTO %q (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, a.table)
	if value == nil {
		value = []byte{}
	}
	if _, err := a.db.ExecContext(ctx, query, key, value, time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("sqlite: set %q: %w", key, err)
	}
	return nil
}

func (a *Adapter) Remove(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %q WHERE key = ?`, a.table)
	if _, err := a.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("sqlite: remove %q: %w", key, err)
	}
	return nil
}

func (a *Adapter) Keys(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT key FROM %q ORDER BY key`, a.table)
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite: scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list keys: %w", err)
	}
	return keys, nil
}

// Clear deletes every row in the table.
func (a *Adapter) Clear(ctx context.Context) error {
	query := fmt.Sprintf(`DELETE FROM %q`, a.table)
	if _, err := a.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlite: clear: %w", err)
	}
	return nil
}

// SyncReads implements storage.SyncReader.
func (a *Adapter) SyncReads() bool { return true }
