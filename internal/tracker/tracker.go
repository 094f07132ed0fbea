// Package tracker implements the ChangeTracker (component-design.md section
// 4.3): an append-only local change log recording per-row mutations, with
// batch and session APIs for amortizing transaction setup.
//
// Grounded on internal/sync/ledger.go's Ledger: a *sql.DB-backed,
// prepared-statement-driven append log with idempotent status transitions,
// generalized from the action_queue's pending/claimed/done state machine to
// the change log's simpler synced:false→true one-way flag.
package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Entry is one ChangeLogEntry (data-model.md section 3).
type Entry struct {
	ID            int64
	Table         string
	RecordID      string
	Operation     string
	TimestampUTC  time.Time
	Synced        bool
}

// changeLogTable and its columns, per external-interfaces.md section 6.
const changeLogTable = "ChangeLog"

// chunkSize bounds the IN-list size for markSynced, per component-design.md
// section 4.3 ("updates in chunks of at most 200 ids per statement").
const chunkSize = 200

var (
	// ErrTimeout is raised when a wall-clock budget is exceeded on open or
	// execute (error-handling-design.md section 7).
	ErrTimeout = errors.New("tracker: timeout")
)

// Clock abstracts the engine's UTC time source, so tests can supply a fixed
// clock (design-notes.md section 9 doesn't name this explicitly, but
// record()'s "timestamp recorded at insert time using the engine's UTC
// clock source" implies one).
type Clock func() time.Time

// Tracker is the ChangeTracker implementation, backed by a *sql.DB opened
// against the local change log store.
type Tracker struct {
	db      *sql.DB
	logger  *slog.Logger
	clock   Clock
	timeout time.Duration
}

// Option configures a Tracker at construction time.
type Option func(*Tracker)

// WithClock overrides the UTC clock source (tests only).
func WithClock(c Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithTimeout overrides the per-operation wall-clock budget (component-design.md
// section 4.3: "All operations enforce wall-clock timeouts"). Default 10s.
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.timeout = d }
}

// New creates a Tracker sharing db, which must already have the ChangeLog
// table migrated (internal/store applies this migration).
func New(db *sql.DB, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		db:      db,
		logger:  logger,
		clock:   time.Now,
		timeout: 10 * time.Second,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *Tracker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.timeout)
}

// Record inserts a single change entry (component-design.md section 4.3,
// "record(table, id, op) — single insert").
func (t *Tracker) Record(ctx context.Context, table, recordID, operation string) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	_, err := t.db.ExecContext(ctx,
		`INSERT INTO `+changeLogTable+` (TableName, RecordID, Operation, RecordedAt, SyncedAt) VALUES (?, ?, ?, ?, NULL)`,
		table, recordID, operation, t.clock().UTC())
	if err != nil {
		return classify(ctx, err)
	}

	return nil
}

// BatchEntry is one input row for RecordBatch.
type BatchEntry struct {
	Table     string
	RecordID  string
	Operation string
}

// RecordBatch inserts all entries in a single transaction using one
// prepared statement reused across rows (component-design.md section 4.3;
// testable-properties.md item 4: "observationally equivalent to record(e1)
// ... record(en) run serially, except faster and all-or-nothing").
func (t *Tracker) RecordBatch(ctx context.Context, entries []BatchEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(ctx, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+changeLogTable+` (TableName, RecordID, Operation, RecordedAt, SyncedAt) VALUES (?, ?, ?, ?, NULL)`)
	if err != nil {
		return classify(ctx, err)
	}
	defer stmt.Close()

	now := t.clock().UTC()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Table, e.RecordID, e.Operation, now); err != nil {
			return classify(ctx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(ctx, err)
	}

	return nil
}

// GetUnsynced returns every entry with SyncedAt still null, ordered by
// RecordedAt ascending (component-design.md section 4.3).
func (t *Tracker) GetUnsynced(ctx context.Context) ([]Entry, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	rows, err := t.db.QueryContext(ctx,
		`SELECT ChangeID, TableName, RecordID, Operation, RecordedAt FROM `+changeLogTable+`
		 WHERE SyncedAt IS NULL ORDER BY RecordedAt ASC, ChangeID ASC`)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		var e Entry

		if err := rows.Scan(&e.ID, &e.Table, &e.RecordID, &e.Operation, &e.TimestampUTC); err != nil {
			return nil, err
		}

		e.TimestampUTC = e.TimestampUTC.UTC()
		out = append(out, e)
	}

	return out, rows.Err()
}

// MarkSynced flips SyncedAt for ids, deduplicating and dropping non-positive
// values, chunked at chunkSize per statement (component-design.md section
// 4.3; testable-properties.md item 5: idempotent).
func (t *Tracker) MarkSynced(ctx context.Context, ids []int64) error {
	ids = dedupePositive(ids)
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	now := t.clock().UTC()

	for _, batch := range chunk(ids, chunkSize) {
		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)+1)
		args = append(args, now)

		for i, id := range batch {
			placeholders[i] = "?"
			args = append(args, id)
		}

		query := fmt.Sprintf(`UPDATE %s SET SyncedAt = ? WHERE ChangeID IN (%s) AND SyncedAt IS NULL`,
			changeLogTable, strings.Join(placeholders, ", "))

		if _, err := t.db.ExecContext(ctx, query, args...); err != nil {
			return classify(ctx, err)
		}
	}

	return nil
}

func dedupePositive(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))

	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}

		seen[id] = true
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func chunk(ids []int64, size int) [][]int64 {
	var out [][]int64

	for len(ids) > 0 {
		n := size
		if n > len(ids) {
			n = len(ids)
		}

		out = append(out, ids[:n])
		ids = ids[n:]
	}

	return out
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}

	return err
}
