// Package sqlite keeps session filter state in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crossfilter/internal/infra/persistence"
	"crossfilter/pkg/dashapi"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ persistence.StateStore = (*Store)(nil)

const (
	// MemoryPath selects a private in-memory database.
	MemoryPath = ":memory:"

	createStateTable = `CREATE TABLE IF NOT EXISTS filter_state (
		session_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, store_id)
	)`
	purgeState   = `DELETE FROM filter_state`
	selectState  = `SELECT payload FROM filter_state WHERE session_id = ? AND store_id = ?`
	upsertState  = `INSERT INTO filter_state(session_id, store_id, payload, updated_at) VALUES(?, ?, ?, ?) ON CONFLICT(session_id, store_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	deleteState  = `DELETE FROM filter_state WHERE session_id = ?`
	listSessions = `SELECT DISTINCT session_id FROM filter_state ORDER BY session_id`
)

// Store is a StateStore backed by a single SQLite table.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path and purges leftover rows.
// An empty path selects MemoryPath.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createStateTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	if _, err := db.Exec(purgeState); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("purge state: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// DB exposes the handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database location.
func (s *Store) Path() string { return s.path }

func (s *Store) Load(ctx context.Context, sessionID, storeID string) (dashapi.FilterRange, bool, error) {
	if err := persistence.CheckKey(sessionID, storeID); err != nil {
		return dashapi.FilterRange{}, false, err
	}
	var payload []byte
	err := s.db.QueryRowContext(ctx, selectState, sessionID, storeID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return dashapi.FilterRange{}, false, nil
	}
	if err != nil {
		return dashapi.FilterRange{}, false, fmt.Errorf("select state: %w", err)
	}
	value, err := persistence.Decode(payload)
	if err != nil {
		return dashapi.FilterRange{}, false, err
	}
	return value, true, nil
}

func (s *Store) Save(ctx context.Context, sessionID, storeID string, value dashapi.FilterRange) error {
	if err := persistence.CheckKey(sessionID, storeID); err != nil {
		return err
	}
	payload, err := persistence.Encode(value)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertState, sessionID, storeID, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, deleteState, sessionID); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, listSessions)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }
