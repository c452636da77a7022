package core

import "crossfilter/internal/infra/persistence/sqlite"

// NewSQLiteStateStore opens a sqlite session state store. An empty path keeps
// the database in memory.
func NewSQLiteStateStore(path string) (*sqlite.Store, error) {
	return sqlite.NewStore(path)
}
