// Package localstorage is the persistent key/value tier that stands in for
// browser storage: a SQLite table with a total size quota.
package localstorage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/plansync/internal/apperr"
)

// ErrQuotaExceeded is returned when a write would push total usage past the quota.
var ErrQuotaExceeded = errors.New("localstorage: quota exceeded")

// DefaultQuota mirrors the usual per-origin browser storage limit.
const DefaultQuota = 5 << 20

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB with key/value operations.
type DB struct {
	conn  *sql.DB
	quota int64
}

// Open opens (or creates) the SQLite database and applies the schema.
// A quota <= 0 uses DefaultQuota.
func Open(dsn string, quota int64) (*DB, error) {
	if quota <= 0 {
		quota = DefaultQuota
	}
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("localstorage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstorage: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstorage: apply schema: %w", err)
	}
	return &DB{conn: conn, quota: quota}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Get returns the value stored at key.
func (db *DB) Get(key string) ([]byte, error) {
	var v []byte
	err := db.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("localstorage: get %s: %w", key, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("localstorage: get %s: %w", key, err)
	}
	return v, nil
}

// Set stores value at key, failing with ErrQuotaExceeded if total usage
// (keys plus values) would exceed the quota. A failed Set leaves the
// previous value in place.
func (db *DB) Set(key string, value []byte) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("localstorage: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var others int64
	if err := tx.QueryRow(
		`SELECT COALESCE(SUM(length(key) + length(value)), 0) FROM kv WHERE key != ?`, key,
	).Scan(&others); err != nil {
		return fmt.Errorf("localstorage: usage: %w", err)
	}
	if need := others + int64(len(key)+len(value)); need > db.quota {
		return fmt.Errorf("localstorage: set %s (%d of %d bytes): %w", key, need, db.quota, ErrQuotaExceeded)
	}
	if _, err := tx.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("localstorage: set %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("localstorage: commit: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (db *DB) Delete(key string) error {
	if _, err := db.conn.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("localstorage: delete %s: %w", key, err)
	}
	return nil
}

// Usage returns the bytes currently used and the quota.
func (db *DB) Usage() (used, quota int64, err error) {
	if err := db.conn.QueryRow(`SELECT COALESCE(SUM(length(key) + length(value)), 0) FROM kv`).Scan(&used); err != nil {
		return 0, 0, fmt.Errorf("localstorage: usage: %w", err)
	}
	return used, db.quota, nil
}
