package tracker

import (
	"context"
	"database/sql"
	"sync"
)

// Session holds one open transaction and one prepared insert statement,
// amortizing connection/transaction setup across many Add calls
// (component-design.md section 4.3: "beginSession() → Session ... holds an
// open connection + transaction + prepared insert"). Grounded on
// BaselineManager's sole-writer connection ownership and Ledger.WriteActions'
// single-transaction-many-rows shape.
//
// Commit is idempotent; a Session dropped without Commit rolls back —
// callers are responsible for calling Close (component-design.md section
// 4.3, "dropping without commit rolls back"), matching the teacher's
// `defer tx.Rollback()` idiom which is a no-op after a successful commit.
type Session struct {
	mu        sync.Mutex
	tx        *sql.Tx
	stmt      *sql.Stmt
	clock     Clock
	committed bool
	closed    bool
}

// BeginSession opens a Session against t's store.
func (t *Tracker) BeginSession(ctx context.Context) (*Session, error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(ctx, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+changeLogTable+` (TableName, RecordID, Operation, RecordedAt, SyncedAt) VALUES (?, ?, ?, ?, NULL)`)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, classify(ctx, err)
	}

	return &Session{tx: tx, stmt: stmt, clock: t.clock}, nil
}

// Add executes the prepared insert for one entry, stamped with the
// session's clock.
func (s *Session) Add(ctx context.Context, table, recordID, operation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.committed || s.closed {
		return errAlreadyFinished
	}

	_, err := s.stmt.ExecContext(ctx, table, recordID, operation, s.clock().UTC())

	return err
}

// Commit finalizes the session. Idempotent: a second call is a no-op
// returning nil.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.committed {
		return nil
	}

	s.stmt.Close()

	if err := s.tx.Commit(); err != nil {
		return err
	}

	s.committed = true

	return nil
}

// Close rolls back the underlying transaction if it was never committed.
// A Close after Commit is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.committed || s.closed {
		return nil
	}

	s.closed = true
	s.stmt.Close()

	return s.tx.Rollback()
}

var errAlreadyFinished = sessionFinishedError{}

type sessionFinishedError struct{}

func (sessionFinishedError) Error() string { return "tracker: session already committed or closed" }
