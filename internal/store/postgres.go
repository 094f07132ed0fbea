package store

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/pressly/goose/v3"

	_ "github.com/lib/pq" // registers as "postgres"

	"github.com/countrydata/rowsync/internal/rowcodec"
)

// NewPostgresProvider constructs a Postgres-backed Provider for the given
// connection string, suitable for the network-resident canonical store
// named in component-design.md section 4.2. Call Open to connect and apply
// the reserved-table migrations.
func NewPostgresProvider(id, connString string, cols Columns, logger *slog.Logger) Provider {
	return &sqlProvider{
		id:         id,
		driverName: "postgres",
		dsn:        connString,
		dia:        postgresDialect{},
		codec:      rowcodec.New(),
		cols:       cols.WithDefaults(),
		logger:     logger,
		migrate: func(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
			return runMigrations(ctx, db, goose.DialectPostgres, postgresMigrationsFS, "migrations/postgres", logger)
		},
	}
}
