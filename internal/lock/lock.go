// Package lock implements the GlobalLock (component-design.md section 4.6):
// a named, leased, cross-process mutex against the shared SyncLocks table,
// with stale-lease stealing and RAII-style release.
//
// Grounded on the Invicton-Labs/go-common distributed lock's conditional
// CAS shape (conditional UPDATE keyed on the current holder, PutItem-or-steal
// on the initial acquire) translated from DynamoDB condition expressions to
// SQL WHERE-clause conditions, and on internal/graph/client.go's
// context-aware poll/sleep loop for the wait budget.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	lockTable = "SyncLocks"

	// Defaults and clamps, component-design.md section 4.6.
	DefaultWait  = 120 * time.Second
	DefaultLease = 300 * time.Second
	MinWait      = 30 * time.Second
	MaxWait      = 600 * time.Second
	MinLease     = 120 * time.Second
	MaxLease     = 1800 * time.Second

	pollInterval = 500 * time.Millisecond
)

var (
	// ErrWaitExpired is the sentinel "could not acquire" result — never an
	// error wrapping a panic, always returned as a plain failure value
	// (component-design.md section 4.6: "return a sentinel indicating
	// failure, never block forever").
	ErrWaitExpired = errors.New("lock: wait budget expired before acquisition")
	// ErrNotHeld is returned by Release when the caller no longer holds the
	// lock (e.g. it was stolen after the lease expired).
	ErrNotHeld = errors.New("lock: not held by this handle")
)

// Locker acquires/renews/releases named locks in the SyncLocks table.
type Locker struct {
	db         *sql.DB
	driverName string // "sqlite" or "postgres"
	holderID   string
	logger     *slog.Logger
	clock      func() time.Time
}

// Option configures a Locker.
type Option func(*Locker)

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(l *Locker) { l.clock = clock }
}

// WithHolderID overrides the generated holder identity (tests).
func WithHolderID(id string) Option {
	return func(l *Locker) { l.holderID = id }
}

// New creates a Locker against db (the configured lock store). driverName
// must be "sqlite" or "postgres", matching internal/store's backends.
func New(db *sql.DB, driverName string, logger *slog.Logger, opts ...Option) *Locker {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Locker{
		db:         db,
		driverName: driverName,
		holderID:   defaultHolderID(),
		logger:     logger,
		clock:      time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func defaultHolderID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}

	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString())
}

// Handle is the RAII lock handle. Dropping without calling Release leaves
// the lock held until its lease expires; callers should always defer
// Release.
type Handle struct {
	locker   *Locker
	name     string
	holderID string
	released bool
}

// Acquire attempts to acquire name, polling at pollInterval until wait
// elapses. lease and wait are clamped to their documented ranges; zero
// values take the package defaults.
func (l *Locker) Acquire(ctx context.Context, name, reason string, lease, wait time.Duration) (*Handle, error) {
	lease = clamp(lease, DefaultLease, MinLease, MaxLease)
	wait = clamp(wait, DefaultWait, MinWait, MaxWait)

	deadline := l.clock().Add(wait)

	for {
		acquired, err := l.tryAcquire(ctx, name, lease)
		if err != nil {
			return nil, err
		}

		if acquired {
			l.logger.Info("lock acquired", slog.String("name", name), slog.String("reason", reason))
			return &Handle{locker: l, name: name, holderID: l.holderID}, nil
		}

		if l.clock().After(deadline) {
			return nil, ErrWaitExpired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(jitter(pollInterval)):
		}
	}
}

// tryAcquire makes one acquisition attempt: insert if the row doesn't
// exist, or steal it if the existing lease has expired. Both paths are a
// single conditional statement, so a racing acquirer can affect at most
// one of them.
func (l *Locker) tryAcquire(ctx context.Context, name string, lease time.Duration) (bool, error) {
	now := l.clock().UTC()
	expires := now.Add(lease)

	inserted, err := l.tryInsert(ctx, name, now, expires)
	if err != nil {
		return false, err
	}

	if inserted {
		return true, nil
	}

	return l.trySteal(ctx, name, now, expires)
}

func (l *Locker) tryInsert(ctx context.Context, name string, now, expires time.Time) (bool, error) {
	query := fmt.Sprintf(
		`INSERT INTO %s (LockName, HolderID, AcquiredAt, ExpiresAt) VALUES (%s, %s, %s, %s)`,
		lockTable, l.ph(1), l.ph(2), l.ph(3), l.ph(4))

	_, err := l.db.ExecContext(ctx, query, name, l.holderID, now, expires)
	if err == nil {
		return true, nil
	}

	if isUniqueViolation(err) {
		return false, nil
	}

	return false, err
}

// trySteal overwrites an expired lease atomically: the WHERE clause
// re-checks expiry at the database, so only one concurrent stealer wins
// (component-design.md section 4.6, "overwriting ... atomically under a
// unique-key constraint").
func (l *Locker) trySteal(ctx context.Context, name string, now, expires time.Time) (bool, error) {
	query := fmt.Sprintf(
		`UPDATE %s SET HolderID = %s, AcquiredAt = %s, ExpiresAt = %s WHERE LockName = %s AND ExpiresAt < %s`,
		lockTable, l.ph(1), l.ph(2), l.ph(3), l.ph(4), l.ph(5))

	res, err := l.db.ExecContext(ctx, query, l.holderID, now, expires, name, now)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// Renew extends the lease. Fails with ErrNotHeld if the lock was stolen out
// from under this handle.
func (h *Handle) Renew(ctx context.Context, lease time.Duration) error {
	if h.released {
		return ErrNotHeld
	}

	lease = clamp(lease, DefaultLease, MinLease, MaxLease)
	now := h.locker.clock().UTC()
	expires := now.Add(lease)

	query := fmt.Sprintf(
		`UPDATE %s SET ExpiresAt = %s WHERE LockName = %s AND HolderID = %s`,
		lockTable, h.locker.ph(1), h.locker.ph(2), h.locker.ph(3))

	res, err := h.locker.db.ExecContext(ctx, query, expires, h.name, h.holderID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ErrNotHeld
	}

	return nil
}

// Release gives up the lock. Idempotent: calling it twice, or after the
// lock was stolen, is not an error.
func (h *Handle) Release(ctx context.Context) error {
	if h.released {
		return nil
	}

	h.released = true

	query := fmt.Sprintf(`DELETE FROM %s WHERE LockName = %s AND HolderID = %s`,
		lockTable, h.locker.ph(1), h.locker.ph(2))

	_, err := h.locker.db.ExecContext(ctx, query, h.name, h.holderID)

	return err
}

func (l *Locker) ph(i int) string {
	if l.driverName == "postgres" {
		return "$" + strconv.Itoa(i)
	}

	return "?"
}

// postgresUniqueViolation is the SQLSTATE lib/pq reports for a
// unique-constraint violation (internal/store/classify.go classifies the
// same backend's errors by structured *pq.Error.Code rather than string
// matching; tryInsert does the same here).
const postgresUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == postgresUniqueViolation
	}

	// modernc.org/sqlite surfaces constraint violations as a plain
	// *sqlite.Error with a message rather than a typed sentinel.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate") || strings.Contains(msg, "primary key")
}

func clamp(d, def, min, max time.Duration) time.Duration {
	if d <= 0 {
		d = def
	}

	if d < min {
		return min
	}

	if d > max {
		return max
	}

	return d
}

func jitter(base time.Duration) time.Duration {
	return base + time.Duration(rand.Int64N(int64(base)/2))
}
