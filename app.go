package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/countrydata/rowsync/internal/conflict"
	"github.com/countrydata/rowsync/internal/config"
	"github.com/countrydata/rowsync/internal/lock"
	"github.com/countrydata/rowsync/internal/orchestrator"
	"github.com/countrydata/rowsync/internal/retry"
	"github.com/countrydata/rowsync/internal/store"
	"github.com/countrydata/rowsync/internal/synclog"
	"github.com/countrydata/rowsync/internal/tracker"
)

// app bundles the opened stores and the orchestrator built from them, so a
// command can Close everything on the way out regardless of which operation
// it ran.
type app struct {
	cfg     *config.Config
	local   store.Provider
	remote  store.Provider
	synclog *synclog.Log
	locker  *lock.Locker
	orch    *orchestrator.Orchestrator
}

// newApp opens the local and remote stores and wires every collaborator the
// SyncOrchestrator needs (architecture.md section 4): tracker against the
// local store's own connection, lock and synclog against the remote store's,
// so the reserved tables are read and written through the exact connection
// that owns them rather than a second independently-opened one.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	cols := store.Columns{
		PrimaryKey:   cfg.PrimaryKeyColumn,
		LastModified: cfg.LastModifiedColumn,
		IsDeleted:    cfg.IsDeletedColumn,
	}.WithDefaults()

	local := newProvider("local", cfg.Local, cols, logger)
	if err := local.Open(ctx); err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	remote := newProvider("remote", cfg.Remote, cols, logger)
	if err := remote.Open(ctx); err != nil {
		local.Close()
		return nil, fmt.Errorf("opening remote store: %w", err)
	}

	trk := tracker.New(local.DB(), logger)
	lck := lock.New(remote.DB(), cfg.Remote.Driver, logger)
	sl := synclog.New(remote.DB(), cfg.Remote.Driver, logger)
	resolver := conflict.New(cfg.PrimaryKeyColumn, cfg.LastModifiedColumn, cfg.IsDeletedColumn, nil)
	runner := retry.New(logger,
		retry.WithMaxAttempts(uint64(cfg.Retry.MaxAttempts)),
		retry.WithBaseDelay(cfg.Retry.BaseDelayDuration()))

	orch := orchestrator.New(orchestrator.Config{
		Local:        local,
		Remote:       remote,
		Tracker:      trk,
		Resolver:     resolver,
		Locker:       lck,
		SyncLog:      sl,
		Retry:        runner,
		Columns:      cols,
		TablesToSync: cfg.TablesToSync,
		Logger:       logger,
	})

	return &app{cfg: cfg, local: local, remote: remote, synclog: sl, locker: lck, orch: orch}, nil
}

// Close releases both stores via the orchestrator, which owns their
// lifetimes once wired (architecture.md section 4).
func (a *app) Close() error {
	return a.orch.Close()
}

// newProvider builds the store.Provider matching sc.Driver. "sqlite" and
// "postgres" are the only two backends the engine's migrations ship for
// (internal/store/migrations.go).
func newProvider(id string, sc config.StoreConfig, cols store.Columns, logger *slog.Logger) store.Provider {
	if sc.Driver == "postgres" {
		return store.NewPostgresProvider(id, sc.DSN, cols, logger)
	}

	return store.NewSQLiteProvider(id, sc.DSN, cols, logger)
}

// localChangeLogPath extracts the filesystem path fsnotify should watch in
// `sync --watch` mode from a sqlite DSN of the form "file:path?query". Returns
// "" for non-file DSNs (e.g. ":memory:"), which disables watch mode.
func localChangeLogPath(sc config.StoreConfig) string {
	dsn := strings.TrimPrefix(sc.DSN, "file:")
	if dsn == sc.DSN && sc.Driver != "sqlite" {
		return ""
	}

	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		dsn = dsn[:i]
	}

	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	return dsn
}
