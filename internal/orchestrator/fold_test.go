package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/countrydata/rowsync/internal/tracker"
)

func entry(id int64, table, recordID, op string) tracker.Entry {
	return tracker.Entry{ID: id, Table: table, RecordID: recordID, Operation: op}
}

func TestFoldDeleteOverridesPriorUpdate(t *testing.T) {
	entries := []tracker.Entry{
		entry(1, "Customer", "c1", "UPDATE(Name)"),
		entry(2, "Customer", "c1", "DELETE"),
	}

	folded := foldByTable(entries)
	op := folded["Customer"]["c1"]

	require.NotNil(t, op)
	assert.Equal(t, "DELETE", op.kind)
	assert.ElementsMatch(t, []int64{1, 2}, op.ids)
}

func TestFoldInsertOverridesPriorUpdateButNotDelete(t *testing.T) {
	folded := foldByTable([]tracker.Entry{
		entry(1, "Customer", "c1", "UPDATE(Name)"),
		entry(2, "Customer", "c1", "INSERT"),
	})
	assert.Equal(t, "INSERT", folded["Customer"]["c1"].kind)

	folded = foldByTable([]tracker.Entry{
		entry(1, "Customer", "c2", "DELETE"),
		entry(2, "Customer", "c2", "INSERT"),
	})
	assert.Equal(t, "DELETE", folded["Customer"]["c2"].kind, "insert after delete stays a delete for this run")
}

func TestFoldMultipleUpdatesUnionColumns(t *testing.T) {
	folded := foldByTable([]tracker.Entry{
		entry(1, "Customer", "c1", "UPDATE(Name)"),
		entry(2, "Customer", "c1", "UPDATE(Email)"),
	})

	op := folded["Customer"]["c1"]
	assert.Equal(t, "UPDATE", op.kind)
	assert.ElementsMatch(t, []string{"Name", "Email"}, op.columns)
}

func TestFoldLegacyEmptyColumnsIsContagious(t *testing.T) {
	folded := foldByTable([]tracker.Entry{
		entry(1, "Customer", "c1", "UPDATE(Name)"),
		entry(2, "Customer", "c1", "UPDATE"),
	})

	op := folded["Customer"]["c1"]
	assert.Empty(t, op.columns, "once any UPDATE carries no column info the fold can't claim a minimal dirty set")
}

func TestFoldSeparatesTablesAndRecords(t *testing.T) {
	folded := foldByTable([]tracker.Entry{
		entry(1, "Customer", "c1", "INSERT"),
		entry(2, "Order", "o1", "INSERT"),
		entry(3, "Customer", "c2", "DELETE"),
	})

	assert.Len(t, folded["Customer"], 2)
	assert.Len(t, folded["Order"], 1)
}
