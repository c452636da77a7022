package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"crossfilter/pkg/dashapi"
)

// stubConn understands exactly the statements issued by Store.
type stubConn struct {
	mu    sync.Mutex
	execs []string
	rows  map[[2]string][]byte
}

var stubSeq atomic.Int64

func newStubDB(t *testing.T) (*sql.DB, *stubConn) {
	t.Helper()
	conn := &stubConn{rows: make(map[[2]string][]byte)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		t.Fatalf("open stub: %v", err)
	}
	return db, conn
}

type stubDriver struct{ conn *stubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Ping(context.Context) error          { return nil }

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, query)
	switch query {
	case createStateTable:
	case purgeState:
		c.rows = make(map[[2]string][]byte)
	case upsertState:
		key := [2]string{args[0].Value.(string), args[1].Value.(string)}
		c.rows[key] = append([]byte(nil), args[2].Value.([]byte)...)
	case deleteState:
		for key := range c.rows {
			if key[0] == args[0].Value.(string) {
				delete(c.rows, key)
			}
		}
	default:
		return nil, fmt.Errorf("unexpected exec %q", query)
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch query {
	case selectState:
		key := [2]string{args[0].Value.(string), args[1].Value.(string)}
		payload, ok := c.rows[key]
		if !ok {
			return &stubRows{cols: []string{"payload"}}, nil
		}
		return &stubRows{cols: []string{"payload"}, values: [][]driver.Value{{payload}}}, nil
	case listSessions:
		seen := map[string]struct{}{}
		for key := range c.rows {
			seen[key[0]] = struct{}{}
		}
		ids := make([]string, 0, len(seen))
		for id := range seen {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		values := make([][]driver.Value, len(ids))
		for i, id := range ids {
			values[i] = []driver.Value{id}
		}
		return &stubRows{cols: []string{"session_id"}, values: values}, nil
	}
	return nil, fmt.Errorf("unexpected query %q", query)
}

type stubRows struct {
	cols   []string
	values [][]driver.Value
	pos    int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }
func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.pos])
	r.pos++
	return nil
}

func newStubStore(t *testing.T) (*Store, *stubConn) {
	t.Helper()
	db, conn := newStubDB(t)
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreCreatesAndPurgesTable(t *testing.T) {
	_, conn := newStubStore(t)
	if len(conn.execs) != 2 || conn.execs[0] != createStateTable || conn.execs[1] != purgeState {
		t.Fatalf("unexpected startup statements %v", conn.execs)
	}
}

func TestStoreSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newStubStore(t)

	if _, ok, err := store.Load(ctx, "s1", "year_range_store"); err != nil || ok {
		t.Fatalf("expected no state, got ok=%v err=%v", ok, err)
	}
	if err := store.Save(ctx, "s1", "year_range_store", dashapi.FilterRange{Min: 1980, Max: 2000}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load(ctx, "s1", "year_range_store")
	if err != nil || !ok || got != (dashapi.FilterRange{Min: 1980, Max: 2000}) {
		t.Fatalf("unexpected load %v %v %v", got, ok, err)
	}
	ids, err := store.Sessions(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "s1" {
		t.Fatalf("unexpected sessions %v %v", ids, err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Load(ctx, "s1", "year_range_store"); ok {
		t.Fatalf("expected state removed")
	}
}

func TestOpenFailurePropagates(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, fmt.Errorf("boom") })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://invalid"); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestStoreAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("CROSSFILTER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CROSSFILTER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Save(ctx, "it", "year_range_store", dashapi.FilterRange{Min: 1952, Max: 2007}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load(ctx, "it", "year_range_store")
	if err != nil || !ok || got.Min != 1952 {
		t.Fatalf("unexpected load %v %v %v", got, ok, err)
	}
}
