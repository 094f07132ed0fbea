package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrationsFS embed.FS

//go:embed migrations/postgres/*.sql
var postgresMigrationsFS embed.FS

// runMigrations applies the reserved-table schema (ChangeLog, _SyncConfig,
// SyncLocks, SyncLog) for the given goose dialect, grounded on
// internal/sync/migrations.go's goose v3 Provider usage.
func runMigrations(ctx context.Context, db *sql.DB, d goose.Dialect, migrationsFS embed.FS, sub string, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, sub)
	if err != nil {
		return fmt.Errorf("store: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(d, db, subFS)
	if err != nil {
		return fmt.Errorf("store: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}
