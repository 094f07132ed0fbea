package orchestrator

import "github.com/countrydata/rowsync/internal/tracker"

// foldedOp is the result of collapsing every unsynced entry for one
// (table, recordId) pair into a single effective operation
// (component-design.md section 4.5, Phase 1 folding rules).
type foldedOp struct {
	kind    string // "INSERT", "DELETE", or "UPDATE"
	columns []string
	ids     []int64 // change-log ids folded into this operation, for markSynced
}

// foldByTable groups entries by table, then folds each table's entries by
// recordId in timestamp order:
//   - DELETE overrides all prior ops for that id.
//   - INSERT overrides prior UPDATEs (but not a prior DELETE: a
//     delete-then-recreate for the same unsynced id is pushed as a delete,
//     the recreate becomes the next run's insert).
//   - Multiple UPDATEs union their column sets.
//
// entries must already be ordered by timestamp ascending (GetUnsynced's
// contract).
func foldByTable(entries []tracker.Entry) map[string]map[string]*foldedOp {
	byTable := make(map[string]map[string]*foldedOp)

	for _, e := range entries {
		table := byTable[e.Table]
		if table == nil {
			table = make(map[string]*foldedOp)
			byTable[e.Table] = table
		}

		op := tracker.ParseOperation(e.Operation)
		fold(table, e.RecordID, op, e.ID)
	}

	return byTable
}

func fold(table map[string]*foldedOp, recordID string, op tracker.Op, changeID int64) {
	current := table[recordID]

	switch op.Kind {
	case "DELETE":
		table[recordID] = &foldedOp{kind: "DELETE", ids: appendID(current, changeID)}
	case "INSERT":
		if current != nil && current.kind == "DELETE" {
			current.ids = append(current.ids, changeID)
			return
		}

		table[recordID] = &foldedOp{kind: "INSERT", ids: appendID(current, changeID)}
	default: // UPDATE
		switch {
		case current == nil:
			table[recordID] = &foldedOp{kind: "UPDATE", columns: op.Columns, ids: []int64{changeID}}
		case current.kind == "DELETE":
			current.ids = append(current.ids, changeID)
		case current.kind == "INSERT":
			current.ids = append(current.ids, changeID)
		default: // UPDATE: union column sets
			current.columns = unionColumns(current.columns, op.Columns)
			current.ids = append(current.ids, changeID)
		}
	}
}

func appendID(current *foldedOp, id int64) []int64 {
	if current == nil {
		return []int64{id}
	}

	return append(current.ids, id)
}

// unionColumns merges two dirty-column sets. An empty set on either side
// means "full-row update" and is contagious: once any UPDATE in the fold
// carries no column info, the folded result can no longer claim a minimal
// dirty set.
func unionColumns(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))

	for _, cols := range [][]string{a, b} {
		for _, c := range cols {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}

	return out
}
