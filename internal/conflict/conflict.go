// Package conflict implements the ConflictResolver (component-design.md
// section 4.4): partitioning a candidate remote row set against local
// unsynced entries into clean rows and conflicts, then resolving conflicts
// under a pluggable policy.
//
// Grounded on internal/sync/conflict.go's ConflictHandler: a type-tagged
// dispatch (switch over a conflict-type enum, one handler per branch),
// generalized here from file conflicts (edit-edit/create-create/edit-delete)
// to row conflicts (UpdateUpdate/UpdateDelete/DeleteUpdate).
package conflict

import (
	"strings"

	"github.com/countrydata/rowsync/internal/rowvalue"
	"github.com/countrydata/rowsync/internal/tracker"
)

// Type classifies a potentially conflicting (local, remote) pair
// (data-model.md section 3).
type Type int

const (
	// UpdateUpdate: both sides mutated the same row since the anchor.
	UpdateUpdate Type = iota
	// UpdateDelete: local updated, remote deleted.
	UpdateDelete
	// DeleteUpdate: local deleted, remote updated.
	DeleteUpdate
)

func (t Type) String() string {
	switch t {
	case UpdateUpdate:
		return "UpdateUpdate"
	case UpdateDelete:
		return "UpdateDelete"
	case DeleteUpdate:
		return "DeleteUpdate"
	default:
		return "Unknown"
	}
}

// Conflict is one potentially-conflicting (local, remote) pair.
type Conflict struct {
	Table         string
	RecordID      string
	LocalVersion  *rowvalue.Row // nil if local side is a deletion
	RemoteVersion *rowvalue.Row // nil if remote side is a deletion
	ConflictType  Type
}

// Result is the output of PartitionAndResolve.
type Result struct {
	// Clean rows apply directly: no local unsynced entry touches them.
	Clean []*rowvalue.Row
	// Resolved conflicts carry the winning version in RemoteVersion (the
	// policy already picked a winner). A nil RemoteVersion means the winner
	// was a local deletion, so there is no row to apply.
	Resolved []Conflict
	// Unresolved carries conflicts the policy declined to auto-resolve.
	Unresolved []Conflict
}

// ResolutionPolicy decides the winner for a conflict. Implementations must
// be pure functions of the conflict's two versions.
type ResolutionPolicy interface {
	// Resolve reports whether a decision was reached, and if so which side
	// won (true means remote wins). Returning ok=false leaves the conflict
	// in Result.Unresolved.
	Resolve(c Conflict, lastModifiedColumn string) (remoteWins bool, ok bool)
}

// Resolver is the ConflictResolver.
type Resolver struct {
	policy             ResolutionPolicy
	primaryKeyColumn   string
	lastModifiedColumn string
	isDeletedColumn    string
}

// New creates a Resolver. policy defaults to LastWriterWinsPolicy when nil.
func New(primaryKeyColumn, lastModifiedColumn, isDeletedColumn string, policy ResolutionPolicy) *Resolver {
	if policy == nil {
		policy = LastWriterWinsPolicy{}
	}

	return &Resolver{
		policy:             policy,
		primaryKeyColumn:   primaryKeyColumn,
		lastModifiedColumn: lastModifiedColumn,
		isDeletedColumn:    isDeletedColumn,
	}
}

// PartitionAndResolve implements component-design.md section 4.4's
// procedure. remoteRows is the candidate set pulled since the anchor for one
// table; localUnsynced is that table's unsynced change-log entries;
// localRows maps a record id (case-insensitive) to its current local row
// content, or to nil when the local side is a deletion.
// testable-properties.md item 6: |remote| = |clean| + |conflicts| +
// |resolvable| (the partition is total).
func (r *Resolver) PartitionAndResolve(
	table string, remoteRows []*rowvalue.Row, localUnsynced []tracker.Entry, localRows map[string]*rowvalue.Row,
) Result {
	local := make(map[string]tracker.Entry, len(localUnsynced))

	for _, e := range localUnsynced {
		if e.Table == table {
			local[foldID(e.RecordID)] = e
		}
	}

	var result Result

	for _, remote := range remoteRows {
		pk, ok := remote.Get(r.primaryKeyColumn)
		if !ok || pk.IsNull() {
			// A remote row with a null/missing primary key is classified
			// clean to avoid data loss (testable-properties.md "Boundary
			// behaviors").
			result.Clean = append(result.Clean, remote)
			continue
		}

		id := foldID(valueAsID(pk))

		entry, isLocal := local[id]
		if !isLocal {
			result.Clean = append(result.Clean, remote)
			continue
		}

		c := Conflict{
			Table:         table,
			RecordID:      valueAsID(pk),
			LocalVersion:  localRows[id],
			RemoteVersion: remote,
			ConflictType:  classify(entry, remote, r.isDeletedColumn),
		}

		if remoteWins, ok := r.policy.Resolve(c, r.lastModifiedColumn); ok {
			if !remoteWins {
				c.RemoteVersion = c.LocalVersion
			}

			result.Resolved = append(result.Resolved, c)
		} else {
			result.Unresolved = append(result.Unresolved, c)
		}
	}

	return result
}

func foldID(s string) string {
	return strings.ToLower(s)
}

func valueAsID(v rowvalue.Value) string {
	switch v.Kind() {
	case rowvalue.KindString:
		return v.AsString()
	case rowvalue.KindGUID:
		return v.AsGUID().String()
	default:
		return ""
	}
}

// classify determines the conflict type (component-design.md section 4.4,
// step 3) from the local change-log operation and the remote row's tombstone
// flag.
func classify(entry tracker.Entry, remote *rowvalue.Row, isDeletedColumn string) Type {
	localDeleted := tracker.ParseOperation(entry.Operation).Kind == "DELETE"
	remoteDeleted := isDeletedColumn != "" && remoteIsTombstone(remote, isDeletedColumn)

	switch {
	case localDeleted && !remoteDeleted:
		return DeleteUpdate
	case !localDeleted && remoteDeleted:
		return UpdateDelete
	default:
		return UpdateUpdate
	}
}

func remoteIsTombstone(remote *rowvalue.Row, isDeletedColumn string) bool {
	v, ok := remote.Get(isDeletedColumn)
	return ok && !v.IsNull() && v.Kind() == rowvalue.KindBool && v.AsBool()
}
