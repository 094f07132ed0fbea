package lock

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

	_, err = db.Exec(`CREATE TABLE SyncLocks (
		LockName TEXT PRIMARY KEY,
		HolderID TEXT NOT NULL,
		AcquiredAt DATETIME NOT NULL,
		ExpiresAt DATETIME NOT NULL
	)`)
	require.NoError(t, err)

	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	l := New(db, "sqlite", testLogger(), WithHolderID("holder-a"))

	h, err := l.Acquire(ctx, "global", "test", time.Minute, time.Second)
	require.NoError(t, err)
	require.NotNil(t, h)

	require.NoError(t, h.Release(ctx))
	require.NoError(t, h.Release(ctx)) // idempotent
}

func TestAcquireContentionTimesOut(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	// The 50ms wait below is clamped up to MinWait, so b's clock jumps 20s
	// on every read to pass that deadline without sleeping through it.
	cur := time.Now()
	stepClock := func() time.Time {
		cur = cur.Add(20 * time.Second)
		return cur
	}

	a := New(db, "sqlite", testLogger(), WithHolderID("holder-a"))
	b := New(db, "sqlite", testLogger(), WithHolderID("holder-b"), WithClock(stepClock))

	h, err := a.Acquire(ctx, "global", "import", 5*time.Minute, time.Second)
	require.NoError(t, err)
	defer h.Release(ctx)

	start := time.Now()
	_, err = b.Acquire(ctx, "global", "import", 5*time.Minute, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitExpired)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStaleLeaseSteal(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	base := time.Now().UTC()
	clock := func() time.Time { return base }

	a := New(db, "sqlite", testLogger(), WithHolderID("holder-a"), WithClock(clock))
	h, err := a.Acquire(ctx, "global", "initial", time.Second, time.Second)
	require.NoError(t, err)
	_ = h

	// Advance the clock past the lease (the 1s lease is clamped up to
	// MinLease) so the lock is stale.
	laterClock := func() time.Time { return base.Add(MinLease + 5*time.Second) }
	b := New(db, "sqlite", testLogger(), WithHolderID("holder-b"), WithClock(laterClock))

	h2, err := b.Acquire(ctx, "global", "steal", time.Minute, time.Second)
	require.NoError(t, err)
	require.NotNil(t, h2)

	// The original handle no longer holds the lock.
	err = h.Renew(ctx, time.Minute)
	assert.ErrorIs(t, err, ErrNotHeld)
}

func TestRenewExtendsLease(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	l := New(db, "sqlite", testLogger(), WithHolderID("holder-a"))

	h, err := l.Acquire(ctx, "global", "test", time.Minute, time.Second)
	require.NoError(t, err)

	require.NoError(t, h.Renew(ctx, 10*time.Minute))
}

func TestClampsLeaseAndWait(t *testing.T) {
	assert.Equal(t, DefaultLease, clamp(0, DefaultLease, MinLease, MaxLease))
	assert.Equal(t, MinLease, clamp(time.Second, DefaultLease, MinLease, MaxLease))
	assert.Equal(t, MaxLease, clamp(time.Hour, DefaultLease, MinLease, MaxLease))
}
