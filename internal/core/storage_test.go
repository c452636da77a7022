package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crossfilter/internal/infra/persistence/memory"
	"crossfilter/internal/infra/persistence/sqlite"
)

// helper to unset and restore env vars
func withEnv(key, value string, fn func()) {
	orig, had := os.LookupEnv(key)
	if value == "" {
		_ = os.Unsetenv(key)
	} else {
		_ = os.Setenv(key, value)
	}
	defer func() {
		if had {
			_ = os.Setenv(key, orig)
		} else {
			_ = os.Unsetenv(key)
		}
	}()
	fn()
}

func TestOpenStateStore_DefaultMemory(t *testing.T) {
	withEnv("CROSSFILTER_STORAGE_DRIVER", "", func() {
		store, err := OpenStateStore(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := store.(*memory.Store); !ok {
			t.Fatalf("expected *memory.Store, got %T", store)
		}
	})
}

func TestOpenStateStore_SQLitePath(t *testing.T) {
	withEnv("CROSSFILTER_STORAGE_DRIVER", "sqlite", func() {
		path := filepath.Join(t.TempDir(), "state.db")
		withEnv("CROSSFILTER_SQLITE_PATH", path, func() {
			store, err := OpenStateStore(context.Background())
			if err != nil {
				t.Skipf("sqlite unavailable: %v", err)
			}
			defer func() { _ = store.Close() }()
			s, ok := store.(*sqlite.Store)
			if !ok {
				t.Fatalf("expected *sqlite.Store, got %T", store)
			}
			if s.Path() != path {
				t.Fatalf("expected path %s, got %s", path, s.Path())
			}
		})
	})
}

func TestOpenStateStore_Errors(t *testing.T) {
	withEnv("CROSSFILTER_STORAGE_DRIVER", "cassandra", func() {
		if _, err := OpenStateStore(context.Background()); err == nil || !strings.Contains(err.Error(), "unknown storage driver") {
			t.Fatalf("expected unknown driver error, got %v", err)
		}
	})
	withEnv("CROSSFILTER_STORAGE_DRIVER", "postgres", func() {
		withEnv("CROSSFILTER_POSTGRES_DSN", "", func() {
			if _, err := OpenStateStore(context.Background()); err == nil {
				t.Fatalf("expected missing DSN error")
			}
		})
	})
}
