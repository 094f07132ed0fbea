package synclog

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE SyncLog (
		EntryID INTEGER PRIMARY KEY AUTOINCREMENT,
		SessionID TEXT NOT NULL,
		Phase TEXT NOT NULL,
		Status TEXT NOT NULL,
		Detail TEXT,
		RecordedAt DATETIME NOT NULL
	)`)
	require.NoError(t, err)

	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteAndLatestDanglingDetectsIncompleteRun(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	l := New(db, "sqlite", testLogger(), WithClock(clock))

	require.NoError(t, l.Write(ctx, "session-1", "push", Started, ""))

	sessionID, dangling, err := l.LatestDangling(ctx)
	require.NoError(t, err)
	assert.True(t, dangling)
	assert.Equal(t, "session-1", sessionID)

	require.NoError(t, l.Write(ctx, "session-1", "anchor", Completed, ""))

	_, dangling, err = l.LatestDangling(ctx)
	require.NoError(t, err)
	assert.False(t, dangling)
}

func TestLatestDanglingNoEntriesIsClean(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	l := New(db, "sqlite", testLogger())

	_, dangling, err := l.LatestDangling(ctx)
	require.NoError(t, err)
	assert.False(t, dangling)
}

func TestWriteBestEffortNeverPanics(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.Close()) // force every write to fail

	l := New(db, "sqlite", testLogger())
	l.WriteBestEffort(ctx, "session-1", "push", Progress, "50%")
}

func TestRecentReturnsNewestFirstWithinLimit(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	l := New(db, "sqlite", testLogger(), WithClock(clock))

	require.NoError(t, l.Write(ctx, "session-1", "sync", Started, ""))
	require.NoError(t, l.Write(ctx, "session-1", "sync", Completed, "pushed=1 pulled=0"))
	require.NoError(t, l.Write(ctx, "session-2", "sync", Started, ""))

	entries, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "session-2", entries[0].SessionID)
	assert.Equal(t, "session-1", entries[1].SessionID)
	assert.Equal(t, "pushed=1 pulled=0", entries[1].Detail)
}
