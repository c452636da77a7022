// Package postgres keeps session filter state in a PostgreSQL table, letting
// several dashboard replicas behind a load balancer share live sessions.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"crossfilter/internal/infra/persistence"
	"crossfilter/pkg/dashapi"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ persistence.StateStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/crossfilter?sslmode=disable"

	createStateTable = `CREATE TABLE IF NOT EXISTS filter_state (
		session_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (session_id, store_id)
	)`
	purgeState   = `TRUNCATE TABLE filter_state`
	selectState  = `SELECT payload FROM filter_state WHERE session_id = $1 AND store_id = $2`
	upsertState  = `INSERT INTO filter_state(session_id, store_id, payload, updated_at) VALUES($1, $2, $3, $4) ON CONFLICT(session_id, store_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	deleteState  = `DELETE FROM filter_state WHERE session_id = $1`
	listSessions = `SELECT DISTINCT session_id FROM filter_state ORDER BY session_id`
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen swaps the opener used by NewStore and returns a restore func.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}

// Store is a StateStore backed by Postgres via pgx.
type Store struct {
	db *sql.DB
}

// NewStore connects using dsn (defaultDSN when empty), ensures the state table
// exists and truncates it.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range []string{createStateTable, purgeState} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare state table: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// DB exposes the handle for integration tests.
func (s *Store) DB() *sql.DB { return s.db }

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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return ids, nil
}

func (s *Store) Close() error { return s.db.Close() }
