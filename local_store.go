package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// sqliteKV is the local-first key-value store backed by a SQLite file.
type sqliteKV struct {
	db *sql.DB
}

// openSQLiteKV opens (or creates) the SQLite file at path and ensures the
// schema exists.
func openSQLiteKV(path string) (*sqliteKV, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the autosave timer and flushes.
	db.SetMaxOpenConns(1)

	schema := `
    CREATE TABLE IF NOT EXISTS kv (
        key        TEXT PRIMARY KEY,
        value      BLOB NOT NULL,
        updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create local schema: %w", err)
	}
	log.Println("Local store initialized")
	return &sqliteKV{db: db}, nil
}

func (s *sqliteKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *sqliteKV) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// FirstKey returns the smallest key starting with prefix. Keys under a day
// prefix end in a YYYY-MM-DD date, and every byte of those sorts below '~'.
func (s *sqliteKV) FirstKey(ctx context.Context, prefix string) (string, bool, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT key FROM kv WHERE key >= ? AND key < ? ORDER BY key LIMIT 1`,
		prefix, prefix+"~").Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to scan %s*: %w", prefix, err)
	}
	return key, true, nil
}

// Close closes the underlying database.
func (s *sqliteKV) Close() error {
	return s.db.Close()
}

// memoryKV is an in-process kvStore for tests. writes counts successful Set
// calls; failOn injects write failures.
type memoryKV struct {
	mu     sync.Mutex
	values map[string][]byte
	writes int
	failOn func(key string) error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: make(map[string][]byte)}
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		if err := m.failOn(key); err != nil {
			return err
		}
	}
	m.values[key] = append([]byte(nil), value...)
	m.writes++
	return nil
}

func (m *memoryKV) FirstKey(_ context.Context, prefix string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first string
	for k := range m.values {
		if strings.HasPrefix(k, prefix) && (first == "" || k < first) {
			first = k
		}
	}
	return first, first != "", nil
}
