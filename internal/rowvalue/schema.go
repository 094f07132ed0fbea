package rowvalue

// LogicalType is the column-level type a ColumnSchema declares, per
// data-model.md section 3.
type LogicalType int

// Logical types recognized by the codec. Unknown/unrecognized types
// degrade to identity binding (data-model.md section 9, "Unknown logical
// types degrade to identity binding").
const (
	TypeUnknown LogicalType = iota
	TypeBool
	TypeI16
	TypeI32
	TypeI64
	TypeF32
	TypeF64
	TypeDecimal
	TypeCurrency
	TypeText
	TypeLongText
	TypeDate
	TypeTimestamp
	TypeBinary
	TypeGuid
)

// IsDateLike reports whether the type represents a date or timestamp,
// the set of types for which RowCodec.bindParameter attempts day-offset
// <-> wall-clock conversion.
func (t LogicalType) IsDateLike() bool {
	return t == TypeDate || t == TypeTimestamp
}

// IsNumeric reports whether the type is one of the numeric logical types.
func (t LogicalType) IsNumeric() bool {
	switch t {
	case TypeI16, TypeI32, TypeI64, TypeF32, TypeF64, TypeDecimal, TypeCurrency:
		return true
	default:
		return false
	}
}

// IsTextual reports whether the type is one of the textual logical types.
func (t LogicalType) IsTextual() bool {
	return t == TypeText || t == TypeLongText
}

// ColumnSchema describes one column of a user table.
type ColumnSchema struct {
	Name        string
	LogicalType LogicalType
	Nullable    bool
	IsPrimaryKey bool
	// TextLength is the declared length for TypeText columns (Text(n));
	// zero means unbounded/unspecified.
	TextLength int
}

// TableSchema is a case-insensitive column-name -> ColumnSchema map, as
// produced by RowCodec.introspectSchema.
type TableSchema struct {
	columns map[string]ColumnSchema // folded name -> schema
	order   []string                // folded name insertion order
}

// NewTableSchema creates an empty TableSchema.
func NewTableSchema() *TableSchema {
	return &TableSchema{columns: make(map[string]ColumnSchema)}
}

// Add registers a column's schema.
func (t *TableSchema) Add(col ColumnSchema) {
	key := foldKey(col.Name)
	if _, ok := t.columns[key]; !ok {
		t.order = append(t.order, key)
	}

	t.columns[key] = col
}

// Lookup returns the schema for a column name, case-insensitively.
func (t *TableSchema) Lookup(name string) (ColumnSchema, bool) {
	c, ok := t.columns[foldKey(name)]
	return c, ok
}

// Empty reports whether the schema has no columns — introspectSchema
// returns an empty TableSchema (not nil) when introspection fails, per
// component-design.md section 4.1: "missing/unreadable schema yields an
// empty map, in which case all subsequent operations degrade to inferred
// typing."
func (t *TableSchema) Empty() bool {
	return t == nil || len(t.columns) == 0
}

// Columns returns the known column names in discovery order.
func (t *TableSchema) Columns() []string {
	out := make([]string, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.columns[k].Name)
	}

	return out
}
