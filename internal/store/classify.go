package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
)

// classifyErr maps a driver-level error onto the Timeout/Transient/
// SchemaError/Cancelled taxonomy of error-handling-design.md section 7, so
// callers up through internal/retry can make uniform retry decisions across
// both backends.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return errors.Join(ErrCancelled, err)
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		return errors.Join(ErrTransient, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return errors.Join(classifyPQ(pqErr), err)
	}

	if isTransientDriverErr(err) {
		return errors.Join(ErrTransient, err)
	}

	return err
}

// classifyPQ maps Postgres SQLSTATE classes to the shared taxonomy, per the
// connection_exception/serialization_failure/deadlock_detected classes
// documented for lib/pq's *pq.Error.Code.
func classifyPQ(pqErr *pq.Error) error {
	class := pqErr.Code.Class()

	switch class {
	case "08": // connection_exception
		return ErrTransient
	case "40": // transaction_rollback (includes serialization_failure, deadlock_detected)
		return ErrTransient
	case "57": // operator_intervention (includes query_canceled, admin_shutdown)
		return ErrTransient
	case "42": // syntax_error_or_access_rule_violation
		return ErrSchema
	default:
		return ErrTransient
	}
}

// isTransientDriverErr handles modernc.org/sqlite, whose busy/locked errors
// surface as plain *sqlite.Error with a message rather than a typed
// sentinel, and connection-refused style network errors from either driver.
func isTransientDriverErr(err error) bool {
	msg := strings.ToLower(err.Error())

	for _, marker := range []string{"database is locked", "busy", "connection reset", "broken pipe", "i/o timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
