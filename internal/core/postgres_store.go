package core

import (
	"context"

	"crossfilter/internal/infra/persistence/postgres"
)

// NewPostgresStateStore opens a Postgres session state store from the DSN.
func NewPostgresStateStore(ctx context.Context, dsn string) (*postgres.Store, error) {
	return postgres.NewStore(ctx, dsn)
}
