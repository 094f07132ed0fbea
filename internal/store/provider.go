// Package store implements the DataProvider abstraction (component-design.md
// section 4.2): schema-aware reading and writing of row sets against either
// the local or the network-resident canonical store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/countrydata/rowsync/internal/rowvalue"
)

// chunkSize bounds the number of bound parameters per statement for
// getRecordsByIds and markSynced-style batch operations (component-design.md
// section 4.2: "a safe chunk size of 200 is recommended").
const chunkSize = 200

// Column name defaults, per data-model.md section 3.
const (
	DefaultPrimaryKeyColumn    = "ID"
	DefaultLastModifiedColumn  = "LastModified"
	DefaultIsDeletedColumn     = "IsDeleted"
)

// Reserved table names the engine requires, per external-interfaces.md
// section 6.
const (
	TableChangeLog   = "ChangeLog"
	TableSyncConfig  = "_SyncConfig"
	TableSyncLocks   = "SyncLocks"
	TableSyncLog     = "SyncLog"
)

// ParameterLastSyncTimestamp is the reserved _SyncConfig key holding the
// sync anchor (data-model.md section 3).
const ParameterLastSyncTimestamp = "LastSyncTimestamp"

// Columns names the three reserved per-table columns a Provider needs to
// know about. Zero values fall back to the data-model.md section 3 defaults.
type Columns struct {
	PrimaryKey   string
	LastModified string
	IsDeleted    string
}

// WithDefaults returns a copy of c with empty fields filled from
// data-model.md section 3 defaults.
func (c Columns) WithDefaults() Columns {
	if c.PrimaryKey == "" {
		c.PrimaryKey = DefaultPrimaryKeyColumn
	}

	if c.LastModified == "" {
		c.LastModified = DefaultLastModifiedColumn
	}

	if c.IsDeleted == "" {
		c.IsDeleted = DefaultIsDeletedColumn
	}

	return c
}

// Provider is the DataProvider contract of component-design.md section 4.2.
type Provider interface {
	// ID identifies this provider instance for schema-cache keying and logs
	// (e.g. "local", "remote", the DSN host).
	ID() string

	// Open prepares the store for use: opens the connection, applies schema
	// migrations for the reserved tables, and auto-creates the config table.
	Open(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error

	// DB exposes the underlying connection pool so collaborators that share
	// this store's reserved tables (ChangeLog for the local store; SyncLocks
	// and SyncLog for the remote store) can open their own sessions against
	// the exact same database rather than a second, independently-opened
	// connection. Returns nil before Open succeeds.
	DB() *sql.DB

	// IntrospectSchema returns the column schema for table. A table that does
	// not exist, or whose schema cannot be read, yields an empty schema
	// rather than an error.
	IntrospectSchema(ctx context.Context, table string) (*rowvalue.TableSchema, error)

	// GetChangesSince returns every row in table whose LastModified column
	// is strictly greater than anchor. anchor == nil requests the full
	// table.
	GetChangesSince(ctx context.Context, table string, anchor *time.Time) ([]*rowvalue.Row, error)

	// GetRecordsByIDs returns the rows in table whose primary key is in ids.
	// ids are deduplicated case-insensitively and empty entries are
	// dropped before querying.
	GetRecordsByIDs(ctx context.Context, table string, ids []string) ([]*rowvalue.Row, error)

	// ApplyRows applies rows to table as one atomic upsert/delete
	// transaction (component-design.md section 4.2, item 3).
	ApplyRows(ctx context.Context, table string, rows []*rowvalue.Row) error

	// GetParameter reads a scalar from the reserved config table.
	GetParameter(ctx context.Context, key string) (string, bool, error)

	// SetParameter writes a scalar to the reserved config table.
	SetParameter(ctx context.Context, key, value string) error
}

// Sentinel errors, per error-handling-design.md section 7.
var (
	ErrTimeout                    = errors.New("store: timeout")
	ErrTransient                  = errors.New("store: transient error")
	ErrSchema                     = errors.New("store: schema error")
	ErrCancelled                  = errors.New("store: cancelled")
	ErrInternalInvariantViolation = errors.New("store: internal invariant violation")
)

// SchemaError reports an unknown table or missing required column,
// carrying the known tables/columns for diagnostics (component-design.md
// section 4.2, item 2).
type SchemaError struct {
	Table        string
	Column       string
	KnownTables  []string
	KnownColumns []string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("store: table %q has no column %q (known columns: %v)", e.Table, e.Column, e.KnownColumns)
	default:
		return fmt.Sprintf("store: unknown table %q (known tables: %v)", e.Table, e.KnownTables)
	}
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// ApplyFailure reports that a store rejected an upsert/delete, including
// the failing row for diagnostics (component-design.md section 4.2, item 3).
type ApplyFailure struct {
	Table string
	Row   *rowvalue.Row
	Cause error
}

func (e *ApplyFailure) Error() string {
	return fmt.Sprintf("store: apply failed for table %q: %v", e.Table, e.Cause)
}

func (e *ApplyFailure) Unwrap() error { return e.Cause }

// dedupeIDs deduplicates ids case-insensitively, keeping the first spelling
// of each, and drops empty entries,
// per component-design.md section 4.2 ("IDs are deduplicated
// case-insensitively and filtered for non-empty").
func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if id == "" {
			continue
		}

		key := foldID(id)
		if seen[key] {
			continue
		}

		seen[key] = true
		out = append(out, id)
	}

	return out
}

func chunk(ids []string, size int) [][]string {
	var out [][]string

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
