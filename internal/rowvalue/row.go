package rowvalue

import (
	"golang.org/x/text/cases"
)

// foldCaser folds column names for case-insensitive comparison. A single
// shared instance is used everywhere a name is compared — strings.EqualFold
// is ASCII-only and would silently mis-fold accented country/column names
// from non-English tenants, so the pack's golang.org/x/text dependency does
// the folding instead (data-model.md section 3, "column lookups ... are
// case-insensitive").
var foldCaser = cases.Fold()

// foldKey returns the canonical lookup key for a column name.
func foldKey(name string) string {
	return foldCaser.String(name)
}

// Row is an ordered, case-insensitive name→Value mapping. The zero Row is
// not usable; construct with NewRow.
type Row struct {
	order []string         // original-case column names, insertion order
	index map[string]int   // folded name -> position in order/values
	values map[string]Value // folded name -> value
}

// NewRow creates an empty Row.
func NewRow() *Row {
	return &Row{
		index:  make(map[string]int),
		values: make(map[string]Value),
	}
}

// Set assigns a value to a column, preserving the original-case name on
// first insertion and overwriting the value (keeping original position) on
// subsequent Set calls for the same folded key.
func (r *Row) Set(column string, v Value) {
	key := foldKey(column)

	if _, ok := r.index[key]; !ok {
		r.index[key] = len(r.order)
		r.order = append(r.order, column)
	}

	r.values[key] = v
}

// Get returns the value for column and whether it was present.
func (r *Row) Get(column string) (Value, bool) {
	v, ok := r.values[foldKey(column)]
	return v, ok
}

// Has reports whether column is present in the row.
func (r *Row) Has(column string) bool {
	_, ok := r.values[foldKey(column)]
	return ok
}

// Delete removes column from the row, if present.
func (r *Row) Delete(column string) {
	key := foldKey(column)

	pos, ok := r.index[key]
	if !ok {
		return
	}

	delete(r.index, key)
	delete(r.values, key)
	r.order = append(r.order[:pos], r.order[pos+1:]...)

	for k, p := range r.index {
		if p > pos {
			r.index[k] = p - 1
		}
	}
}

// Columns returns column names in insertion order (original case).
func (r *Row) Columns() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}

// Len returns the number of columns in the row.
func (r *Row) Len() int {
	return len(r.order)
}

// Clone returns a deep-enough copy (values are immutable, so this is a
// shallow copy of the maps/slice) safe for independent mutation.
func (r *Row) Clone() *Row {
	clone := NewRow()
	for _, col := range r.order {
		v, _ := r.Get(col)
		clone.Set(col, v)
	}

	return clone
}
