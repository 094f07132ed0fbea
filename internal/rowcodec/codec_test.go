package rowcodec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/countrydata/rowsync/internal/rowvalue"
)

func TestBindParameterInferredFromRuntimeKind(t *testing.T) {
	c := New()

	p := c.BindParameter("name", rowvalue.String("x"), nil)
	assert.Equal(t, rowvalue.TypeText, p.LogicalType)

	p = c.BindParameter("flag", rowvalue.Bool(true), nil)
	assert.Equal(t, rowvalue.TypeBool, p.LogicalType)

	p = c.BindParameter("ts", rowvalue.Timestamp(time.Now()), nil)
	assert.Equal(t, rowvalue.TypeTimestamp, p.LogicalType)

	p = c.BindParameter("blob", rowvalue.Bytes([]byte("x")), nil)
	assert.Equal(t, rowvalue.TypeBinary, p.LogicalType)
}

func TestBindParameterNullBindsTypedWhenKnown(t *testing.T) {
	c := New()
	expected := &rowvalue.ColumnSchema{Name: "LastModified", LogicalType: rowvalue.TypeTimestamp}

	p := c.BindParameter("LastModified", rowvalue.Null(), expected)
	assert.True(t, p.Value.IsNull())
	assert.Equal(t, rowvalue.TypeTimestamp, p.LogicalType)

	p = c.BindParameter("x", rowvalue.Null(), nil)
	assert.Equal(t, rowvalue.TypeUnknown, p.LogicalType)
}

func TestBindParameterDayOffsetToWallClockAndBack(t *testing.T) {
	c := New()
	expected := &rowvalue.ColumnSchema{Name: "Created", LogicalType: rowvalue.TypeDate}

	// 1 day after epoch.
	p := c.BindParameter("Created", rowvalue.Float64(1), expected)
	require.Equal(t, rowvalue.KindTimestamp, p.Value.Kind())

	want := epoch.Add(24 * time.Hour)
	assert.WithinDuration(t, want, p.Value.AsTimestamp(), time.Millisecond)
}

func TestBindParameterTimestampToNumericColumnCoercesToF64(t *testing.T) {
	c := New()
	expected := &rowvalue.ColumnSchema{Name: "DayNum", LogicalType: rowvalue.TypeF64}

	ts := epoch.Add(48 * time.Hour)
	p := c.BindParameter("DayNum", rowvalue.Timestamp(ts), expected)

	assert.Equal(t, rowvalue.TypeF64, p.LogicalType)
	assert.InDelta(t, 2.0, p.Value.AsFloat64(), 0.0001)
}

func TestBindParameterStringRoundTripThenLocaleTolerant(t *testing.T) {
	c := New()
	expected := &rowvalue.ColumnSchema{Name: "Created", LogicalType: rowvalue.TypeTimestamp}

	p := c.BindParameter("Created", rowvalue.String("2026-01-02T03:04:05Z"), expected)
	require.Equal(t, rowvalue.KindTimestamp, p.Value.Kind())
	assert.Equal(t, 2026, p.Value.AsTimestamp().Year())

	p = c.BindParameter("Created", rowvalue.String("01/02/2026"), expected)
	require.Equal(t, rowvalue.KindTimestamp, p.Value.Kind())
	assert.Equal(t, time.January, p.Value.AsTimestamp().Month())

	// Unparseable string passes through unchanged (data-model.md 4.1:
	// "Values that cannot be coerced are passed through unchanged").
	p = c.BindParameter("Created", rowvalue.String("not-a-date"), expected)
	assert.Equal(t, rowvalue.KindString, p.Value.Kind())
}

func TestBindParameterNonStringToTextStringifiesInvariant(t *testing.T) {
	c := New()
	expected := &rowvalue.ColumnSchema{Name: "Label", LogicalType: rowvalue.TypeText}

	p := c.BindParameter("Label", rowvalue.Int64(42), expected)
	assert.Equal(t, "42", p.Value.AsString())

	p = c.BindParameter("Label", rowvalue.Bool(true), expected)
	assert.Equal(t, "true", p.Value.AsString())
}

func TestDayOffsetRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC)
	offset := toDayOffset(ts)
	back := fromDayOffset(offset)

	assert.WithinDuration(t, ts, back, time.Millisecond)
}

func TestOrderColumnsDeterministic(t *testing.T) {
	got := OrderColumns([]string{"Zeta", "alpha", "Beta"})
	assert.Equal(t, []string{"alpha", "Beta", "Zeta"}, got)
}

type fakeIntrospector struct {
	calls  int
	schema *rowvalue.TableSchema
	err    error
}

func (f *fakeIntrospector) IntrospectSchema(_ context.Context, _ string) (*rowvalue.TableSchema, error) {
	f.calls++
	return f.schema, f.err
}

func TestIntrospectSchemaCachesPerStoreTable(t *testing.T) {
	c := New()

	schema := rowvalue.NewTableSchema()
	schema.Add(rowvalue.ColumnSchema{Name: "ID", LogicalType: rowvalue.TypeI64})
	fi := &fakeIntrospector{schema: schema}

	s1 := c.IntrospectSchema(context.Background(), "local", "Table1", fi)
	s2 := c.IntrospectSchema(context.Background(), "local", "table1", fi)

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, fi.calls)
}

func TestIntrospectSchemaFailureCachesEmptySchema(t *testing.T) {
	c := New()
	fi := &fakeIntrospector{err: errors.New("boom")}

	s := c.IntrospectSchema(context.Background(), "local", "Missing", fi)
	assert.True(t, s.Empty())
}

func TestClearSchemaCacheForcesReintrospection(t *testing.T) {
	c := New()
	schema := rowvalue.NewTableSchema()
	fi := &fakeIntrospector{schema: schema}

	c.IntrospectSchema(context.Background(), "local", "T", fi)
	c.ClearSchemaCache("local", "T")
	c.IntrospectSchema(context.Background(), "local", "T", fi)

	assert.Equal(t, 2, fi.calls)
}
