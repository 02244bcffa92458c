// Package store persists the rule set and controller flags in a local
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lowdata/blockd/internal/rule"
)

// Well-known keys in the kv table.
const (
	keyRules   = "rules"
	keyEnabled = "enforcement.enabled"
	keyTrusted = "network.trusted"
)

// Store is a SQLite-backed key-value store for controller state. It is safe
// for concurrent use.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the per-user state database path.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("store: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "blockd", "state.db"), nil
}

// Open opens the state database at path, creating the file and its parent
// directory if needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("store: create state dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("store: enable wal: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      BLOB NOT NULL,
    updated_at INTEGER NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadRules returns the persisted rule set. ok is false when no rule set was
// ever saved, which callers use to seed defaults on first run.
func (s *Store) LoadRules(ctx context.Context) (rules []rule.Rule, ok bool, err error) {
	data, ok, err := s.get(ctx, keyRules)
	if err != nil || !ok {
		return nil, ok, err
	}
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, false, fmt.Errorf("store: decode rules: %w", err)
	}
	return rules, true, nil
}

// SaveRules persists the full rule set, replacing any previous set.
func (s *Store) SaveRules(ctx context.Context, rules []rule.Rule) error {
	if rules == nil {
		rules = []rule.Rule{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("store: encode rules: %w", err)
	}
	return s.put(ctx, keyRules, data)
}

// Enabled returns the persisted global enforcement flag, defaulting to false.
func (s *Store) Enabled(ctx context.Context) (bool, error) {
	return s.getBool(ctx, keyEnabled)
}

// SetEnabled persists the global enforcement flag.
func (s *Store) SetEnabled(ctx context.Context, v bool) error {
	return s.putBool(ctx, keyEnabled, v)
}

// Trusted returns the persisted trusted-network flag, defaulting to false.
func (s *Store) Trusted(ctx context.Context) (bool, error) {
	return s.getBool(ctx, keyTrusted)
}

// SetTrusted persists the trusted-network flag.
func (s *Store) SetTrusted(ctx context.Context, v bool) error {
	return s.putBool(ctx, keyTrusted, v)
}

func (s *Store) getBool(ctx context.Context, key string) (bool, error) {
	data, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	v, err := strconv.ParseBool(string(data))
	if err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) putBool(ctx context.Context, key string, v bool) error {
	return s.put(ctx, key, []byte(strconv.FormatBool(v)))
}

func (s *Store) get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	return nil
}
