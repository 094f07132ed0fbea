package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"

	"github.com/countrydata/rowsync/internal/rowcodec"
)

// walJournalSizeLimit bounds the WAL file's retained size, matching the
// teacher's own local-store pragma setup (internal/sync/state.go).
const walJournalSizeLimit = 67108864

// NewSQLiteProvider constructs a SQLite-backed Provider for path. Call Open
// to connect, set pragmas, and apply the reserved-table migrations; use
// ":memory:" for tests.
func NewSQLiteProvider(id, path string, cols Columns, logger *slog.Logger) Provider {
	return &sqlProvider{
		id:         id,
		driverName: "sqlite",
		dsn:        path,
		dia:        sqliteDialect{},
		codec:      rowcodec.New(),
		cols:       cols.WithDefaults(),
		logger:     logger,
		setup:      setSQLitePragmas,
		migrate: func(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
			return runMigrations(ctx, db, goose.DialectSQLite3, sqliteMigrationsFS, "migrations/sqlite", logger)
		},
	}
}

func setSQLitePragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: setting pragma %q: %w", p, err)
		}
	}

	return nil
}
