// Package store is the durable local cache for journal aggregates
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("key not found in local store")

// LocalStore is a sqlite backed key/value store. The database file and its table are
// provisioned lazily on first use; a failed attempt is retried on the next call.
type LocalStore struct {
	dbPath string

	mu sync.Mutex
	db *sql.DB
}

func NewLocalStore(dbPath string) *LocalStore {
	return &LocalStore{dbPath: dbPath}
}

func (l *LocalStore) Path() string {
	return l.dbPath
}

func (l *LocalStore) open() (*sql.DB, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db != nil {
		return l.db, nil
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(l.dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", l.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createTable(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	l.db = db
	return db, nil
}

func createTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS app_state (
		key        TEXT    NOT NULL,
		value      BLOB    NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (key)
	);
	`
	_, err := db.Exec(query)
	return err
}

// Put stores the whole value under key, replacing any previous value.
func (l *LocalStore) Put(ctx context.Context, key Key, value []byte) error {
	db, err := l.open()
	if err != nil {
		return err
	}

	const stmt = `
		INSERT INTO app_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, stmt, string(key), value, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get returns the last value stored under key or ErrNotFound.
func (l *LocalStore) Get(ctx context.Context, key Key) ([]byte, error) {
	db, err := l.open()
	if err != nil {
		return nil, err
	}

	const query = `SELECT value FROM app_state WHERE key = ?`

	var value []byte
	err = db.QueryRowContext(ctx, query, string(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// UpdatedAt returns when key was last written.
func (l *LocalStore) UpdatedAt(ctx context.Context, key Key) (time.Time, error) {
	db, err := l.open()
	if err != nil {
		return time.Time{}, err
	}

	var ms int64
	err = db.QueryRowContext(ctx, `SELECT updated_at FROM app_state WHERE key = ?`, string(key)).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get updated_at %s: %w", key, err)
	}
	return time.UnixMilli(ms), nil
}

func (l *LocalStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}
