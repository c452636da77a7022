package core

import (
	"context"
	"fmt"
	"os"

	"crossfilter/internal/infra/persistence/memory"
)

// StorageDriver identifies a session state backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // process memory
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenStateStore selects a session state backend using environment variables.
// Every backend starts empty.
//
//	CROSSFILTER_STORAGE_DRIVER: memory|sqlite|postgres (default memory)
//	CROSSFILTER_SQLITE_PATH: sqlite file path (default in-memory database)
//	CROSSFILTER_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenStateStore(ctx context.Context) (SessionStateStore, error) {
	driver := os.Getenv("CROSSFILTER_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageMemory)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		store, err := NewSQLiteStateStore(os.Getenv("CROSSFILTER_SQLITE_PATH"))
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		dsn := os.Getenv("CROSSFILTER_POSTGRES_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("CROSSFILTER_POSTGRES_DSN required for postgres driver")
		}
		store, err := NewPostgresStateStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
