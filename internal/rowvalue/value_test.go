package rowvalue

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEqual(t *testing.T) {
	now := time.Now().UTC()
	id := uuid.New()

	cases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null==null", Null(), Null(), true},
		{"bool equal", Bool(true), Bool(true), true},
		{"bool differ", Bool(true), Bool(false), false},
		{"int64 equal", Int64(7), Int64(7), true},
		{"string equal", String("x"), String("x"), true},
		{"timestamp equal", Timestamp(now), Timestamp(now), true},
		{"bytes equal", Bytes([]byte("ab")), Bytes([]byte("ab")), true},
		{"guid equal", GUID(id), GUID(id), true},
		{"kind mismatch", Int64(1), Float64(1), false},
		{"decimal equal", Decimal(big.NewRat(1, 2)), Decimal(big.NewRat(2, 4)), true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.a.Equal(c.b))
		})
	}
}

func TestValueAccessorsPanicOnWrongKind(t *testing.T) {
	v := Int64(1)
	assert.Panics(t, func() { v.AsString() })
}

func TestRowSetGetCaseInsensitive(t *testing.T) {
	r := NewRow()
	r.Set("ID", Int64(1))
	r.Set("Name", String("alpha"))

	v, ok := r.Get("id")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.AsInt64())

	v, ok = r.Get("NAME")
	require.True(t, ok)
	assert.Equal(t, "alpha", v.AsString())

	assert.Equal(t, []string{"ID", "Name"}, r.Columns())
	assert.Equal(t, 2, r.Len())
}

func TestRowSetOverwritesKeepsPosition(t *testing.T) {
	r := NewRow()
	r.Set("A", Int64(1))
	r.Set("B", Int64(2))
	r.Set("a", Int64(99))

	assert.Equal(t, []string{"A", "B"}, r.Columns())

	v, _ := r.Get("A")
	assert.Equal(t, int64(99), v.AsInt64())
}

func TestRowDelete(t *testing.T) {
	r := NewRow()
	r.Set("A", Int64(1))
	r.Set("B", Int64(2))
	r.Set("C", Int64(3))

	r.Delete("B")

	assert.Equal(t, []string{"A", "C"}, r.Columns())
	assert.False(t, r.Has("B"))
}

func TestRowClone(t *testing.T) {
	r := NewRow()
	r.Set("A", Int64(1))

	clone := r.Clone()
	clone.Set("A", Int64(2))
	clone.Set("B", Int64(3))

	v, _ := r.Get("A")
	assert.Equal(t, int64(1), v.AsInt64())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestTableSchemaLookupCaseInsensitive(t *testing.T) {
	s := NewTableSchema()
	s.Add(ColumnSchema{Name: "LastModified", LogicalType: TypeTimestamp})

	got, ok := s.Lookup("lastmodified")
	require.True(t, ok)
	assert.Equal(t, TypeTimestamp, got.LogicalType)
	assert.False(t, s.Empty())
}

func TestTableSchemaEmpty(t *testing.T) {
	var s *TableSchema
	assert.True(t, s.Empty())
	assert.True(t, NewTableSchema().Empty())
}
