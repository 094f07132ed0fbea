// Package testutil provides a real, SQLite-backed two-store harness for
// end-to-end orchestrator tests, as distinct from the fakeProvider used by
// internal/orchestrator's unit tests. Grounded on
// internal/orchestrator/orchestrator_test.go's newTestOrchestrator, widened
// to wire actual store.Provider instances so tests can exercise genuine
// SQL transaction semantics (ApplyRows, anchor persistence) rather than an
// in-memory map.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/countrydata/rowsync/internal/conflict"
	"github.com/countrydata/rowsync/internal/orchestrator"
	"github.com/countrydata/rowsync/internal/retry"
	"github.com/countrydata/rowsync/internal/store"
	"github.com/countrydata/rowsync/internal/synclog"
	"github.com/countrydata/rowsync/internal/tracker"
)

// Harness wires two real in-memory SQLite store.Provider instances (local
// and remote) through the tracker/synclog/conflict/retry stack, mirroring
// how app.go wires a production rowsync process. No lock.Locker is wired,
// so the harness orchestrator cannot take the bulk-import lock.
type Harness struct {
	Local, Remote store.Provider
	Tracker       *tracker.Tracker
	SyncLog       *synclog.Log
	Orchestrator  *orchestrator.Orchestrator

	clock func() time.Time
	t     *testing.T
}

// Clock is the time source a scenario test passes to NewHarness, which
// installs it in the tracker, synclog, and orchestrator.
type Clock = func() time.Time

// NewHarness opens two in-memory stores, applies reserved-table migrations
// to each, and constructs the full collaborator stack around them. clock
// feeds the tracker, synclog, and orchestrator so a test can control
// LastModified/anchor timestamps deterministically.
func NewHarness(t *testing.T, clock Clock, tables ...string) *Harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cols := store.Columns{}.WithDefaults()

	local := store.NewSQLiteProvider("local", ":memory:", cols, logger)
	require.NoError(t, local.Open(context.Background()))
	t.Cleanup(func() { _ = local.Close() })

	remote := store.NewSQLiteProvider("remote", ":memory:", cols, logger)
	require.NoError(t, remote.Open(context.Background()))
	t.Cleanup(func() { _ = remote.Close() })

	trk := tracker.New(local.DB(), logger, tracker.WithClock(clock))
	sl := synclog.New(remote.DB(), "sqlite", logger, synclog.WithClock(clock))
	resolver := conflict.New(cols.PrimaryKey, cols.LastModified, cols.IsDeleted, nil)
	runner := retry.New(logger, retry.WithMaxAttempts(1))

	orch := orchestrator.New(orchestrator.Config{
		Local:        local,
		Remote:       remote,
		Tracker:      trk,
		Resolver:     resolver,
		SyncLog:      sl,
		Retry:        runner,
		Columns:      cols,
		TablesToSync: tables,
		Logger:       logger,
		Clock:        clock,
	})

	h := &Harness{
		Local:        local,
		Remote:       remote,
		Tracker:      trk,
		SyncLog:      sl,
		Orchestrator: orch,
		clock:        clock,
		t:            t,
	}

	for _, table := range tables {
		h.CreateTable(table)
	}

	return h
}

// CreateTable creates a standard business table (ID/Name/LastModified/
// IsDeleted) on both stores directly against their *sql.DB, since the
// engine's own migrations only create the four reserved tables
// (ChangeLog, _SyncConfig, SyncLocks, SyncLog).
func (h *Harness) CreateTable(name string) {
	h.t.Helper()

	ddl := `CREATE TABLE ` + name + ` (
		ID TEXT PRIMARY KEY,
		Name TEXT,
		LastModified DATETIME NOT NULL,
		IsDeleted INTEGER NOT NULL DEFAULT 0
	)`

	_, err := h.Local.DB().ExecContext(context.Background(), ddl)
	require.NoError(h.t, err)

	_, err = h.Remote.DB().ExecContext(context.Background(), ddl)
	require.NoError(h.t, err)
}

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// StepClock returns a Clock that advances by step on every call, starting
// at start.Add(step) — useful when a scenario needs a series of distinct,
// increasing timestamps (e.g. a row write followed by a later sync run).
func StepClock(start time.Time, step time.Duration) Clock {
	cur := start
	return func() time.Time {
		cur = cur.Add(step)
		return cur
	}
}
