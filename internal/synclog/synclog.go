// Package synclog implements the SyncLog (component-design.md section 4.7):
// an append-only record of sync run phases in the shared SyncLog table,
// used for observability and crash recovery (a dangling Started entry with
// no matching Completed/Failed means the prior run crashed mid-sync).
//
// Grounded on internal/sync/ledger.go's Ledger: a *sql.DB-backed append
// log with status-transition writes and a "load latest / detect
// incomplete" recovery query (LastCycleID, ReclaimStale).
package synclog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

const table = "SyncLog"

// Status is one of the five SyncLogEntry statuses (data-model.md section 3).
type Status string

const (
	Started   Status = "Started"
	Progress  Status = "Progress"
	Completed Status = "Completed"
	Failed    Status = "Failed"
	Resuming  Status = "Resuming"
)

// Entry is one row of the SyncLog table.
type Entry struct {
	ID           int64
	SessionID    string
	Phase        string
	Status       Status
	Detail       string
	TimestampUTC time.Time
}

// Log writes entries to the shared SyncLog table.
type Log struct {
	db         *sql.DB
	driverName string // "sqlite" or "postgres"
	logger     *slog.Logger
	clock      func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(l *Log) { l.clock = clock }
}

// New creates a Log against db (the configured shared lock/synclog store).
// driverName must be "sqlite" or "postgres", matching internal/store's
// backends.
func New(db *sql.DB, driverName string, logger *slog.Logger, opts ...Option) *Log {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Log{db: db, driverName: driverName, logger: logger, clock: time.Now}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Log) ph(i int) string {
	if l.driverName == "postgres" {
		return "$" + strconv.Itoa(i)
	}

	return "?"
}

// Write appends one entry. Writes are independent row inserts — callers do
// not need a transaction (architecture.md section 5, "Lock store + SyncLog:
// shared by all clients; writes are independent row inserts").
func (l *Log) Write(ctx context.Context, sessionID, phase string, status Status, detail string) error {
	query := fmt.Sprintf(`INSERT INTO %s (SessionID, Phase, Status, Detail, RecordedAt) VALUES (%s, %s, %s, %s, %s)`,
		table, l.ph(1), l.ph(2), l.ph(3), l.ph(4), l.ph(5))

	_, err := l.db.ExecContext(ctx, query, sessionID, phase, string(status), detail, l.clock().UTC())

	return err
}

// WriteBestEffort calls Write and logs (rather than propagates) any error,
// for progress callbacks that must never fail a sync run
// (component-design.md section 4.7: "Progress entries ... best-effort,
// non-blocking").
func (l *Log) WriteBestEffort(ctx context.Context, sessionID, phase string, status Status, detail string) {
	if err := l.Write(ctx, sessionID, phase, status, detail); err != nil {
		l.logger.Warn("synclog write failed",
			slog.String("session_id", sessionID), slog.String("phase", phase), slog.String("error", err.Error()))
	}
}

// LatestDangling reports the most recent SessionID whose last entry is
// Started or Progress with no following Completed/Failed — i.e. a run that
// crashed mid-sync. Called once at startup to log Resuming
// (component-design.md section 4.7).
func (l *Log) LatestDangling(ctx context.Context) (string, bool, error) {
	row := l.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT SessionID, Status FROM %s ORDER BY RecordedAt DESC, EntryID DESC LIMIT 1`, table))

	var sessionID, status string
	if err := row.Scan(&sessionID, &status); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}

		return "", false, err
	}

	if status == string(Completed) || status == string(Failed) {
		return "", false, nil
	}

	return sessionID, true, nil
}

// Recent returns the most recent limit entries, newest first, for the
// `rowsync synclog` command's observability view (component-design.md
// section 4.7).
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT EntryID, SessionID, Phase, Status, Detail, RecordedAt FROM %s
		 ORDER BY RecordedAt DESC, EntryID DESC LIMIT %s`, table, l.ph(1)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		var e Entry

		var status string

		if err := rows.Scan(&e.ID, &e.SessionID, &e.Phase, &status, &e.Detail, &e.TimestampUTC); err != nil {
			return nil, err
		}

		e.Status = Status(status)
		out = append(out, e)
	}

	return out, rows.Err()
}
