// Package store implements the local persistent store: durable keyed record
// storage with secondary indexes, available without network access.
//
// The store is the only component mutated synchronously by user actions when
// offline. It runs on embedded SQLite with WAL mode so reads stay concurrent
// with writes, and owns the authoritative quantity value during offline
// operation.
//
// Schema versioning uses PRAGMA user_version. Migrations are idempotent and
// strictly additive: an upgrade never drops an existing table or index.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/safeproducts/stockd/internal/model"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Sentinel errors crossing the store boundary. Callers match with errors.Is.
var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a unique index
	// (scan code or record UID).
	ErrDuplicate = errors.New("duplicate record")
	// ErrInsufficientStock is returned when a quantity adjustment would
	// drive a product's quantity below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// timeFormat is the canonical timestamp encoding. Nanosecond precision keeps
// last-write-wins comparisons strict.
const timeFormat = time.RFC3339Nano

// Store wraps the embedded SQLite database.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the database at path, applies pragmas, and runs any
// pending schema migrations. The caller must Close the store when done.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// schemaVersion is the current schema version. Bump it when adding a
// migration step below.
const schemaVersion = 1

// migrate brings the schema up to schemaVersion. Each step is additive;
// unrecognized existing tables are left untouched.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		if err := migrateV1(ctx, tx); err != nil {
			return fmt.Errorf("migration to v1 failed: %w", err)
		}
	}

	// PRAGMA does not accept bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return tx.Commit()
}

func migrateV1(ctx context.Context, tx *sql.Tx) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		uid         TEXT NOT NULL UNIQUE,
		remote_id   TEXT,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price       REAL NOT NULL DEFAULT 0 CHECK (price >= 0),
		quantity    INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		category    TEXT NOT NULL,
		scan_code   TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	-- Movements deliberately carry no foreign key: the ledger is an
	-- append-only audit trail and survives deletion of its product.
	CREATE TABLE IF NOT EXISTS movements (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id  TEXT,
		product_id INTEGER NOT NULL,
		direction  TEXT NOT NULL CHECK (direction IN ('in', 'out')),
		quantity   INTEGER NOT NULL CHECK (quantity > 0),
		note       TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS categories (
		id    INTEGER PRIMARY KEY AUTOINCREMENT,
		name  TEXT NOT NULL UNIQUE,
		color TEXT NOT NULL DEFAULT ''
	);

	-- Durable outbox for mutations of linked records made while offline.
	CREATE TABLE IF NOT EXISTS pending_ops (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		product_uid TEXT NOT NULL,
		remote_id   TEXT NOT NULL,
		op          TEXT NOT NULL CHECK (op IN ('update', 'delete')),
		queued_at   TEXT NOT NULL,
		UNIQUE (product_uid, op)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_scan_code ON products(scan_code);
	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
	CREATE INDEX IF NOT EXISTS idx_products_remote
	    ON products(remote_id) WHERE remote_id IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_movements_product ON movements(product_id);
	CREATE INDEX IF NOT EXISTS idx_movements_created ON movements(created_at);
	`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}

	// Seed default categories. INSERT OR IGNORE keeps re-runs idempotent.
	for _, c := range model.DefaultCategories {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO categories (name, color) VALUES (?, ?)`,
			c.Name, c.Color,
		); err != nil {
			return fmt.Errorf("failed to seed category %q: %w", c.Name, err)
		}
	}
	return nil
}

// mapConstraint translates SQLite constraint violations into the store's
// sentinel errors.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case strings.Contains(msg, "CHECK constraint failed: quantity"):
		return fmt.Errorf("%w: %v", ErrInsufficientStock, err)
	default:
		return err
	}
}

// nullString maps empty strings to SQL NULL, keeping the remote_id index
// sparse.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Older rows may carry second precision.
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
