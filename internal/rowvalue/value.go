// Package rowvalue defines the generic row representation shared by every
// store backend: an ordered, case-insensitive name→value map whose values
// belong to a small closed variant set.
package rowvalue

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which field of Value is populated.
type Kind int

// Variant kinds, per data-model.md section 3.
const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindDecimal
	KindString
	KindTimestamp
	KindBytes
	KindGUID
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "i64"
	case KindFloat64:
		return "f64"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	case KindBytes:
		return "bytes"
	case KindGUID:
		return "guid"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a closed tagged union over the row value variant set. The zero
// Value is KindNull. Callers never inspect which field is populated
// directly — they go through the Kind-specific accessors, which panic if
// called against the wrong Kind (a programmer error, not a data error).
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	dec  *big.Rat
	s    string
	t    time.Time
	by   []byte
	g    uuid.UUID
}

// Null returns the untyped null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int64 wraps a 64-bit integer.
func Int64(v int64) Value { return Value{kind: KindInt64, i: v} }

// Float64 wraps a 64-bit float.
func Float64(v float64) Value { return Value{kind: KindFloat64, f: v} }

// Decimal wraps an arbitrary-precision fixed-point number. See DESIGN.md
// for why this is big.Rat-backed rather than a third-party decimal type:
// none of the retrieved example repos vendors a decimal library.
func Decimal(v *big.Rat) Value { return Value{kind: KindDecimal, dec: v} }

// String wraps a UTF-8 string.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Timestamp wraps a UTC instant. The caller is responsible for normalizing
// to UTC before constructing — Timestamp does not convert.
func Timestamp(v time.Time) Value { return Value{kind: KindTimestamp, t: v} }

// Bytes wraps a binary blob.
func Bytes(v []byte) Value { return Value{kind: KindBytes, by: v} }

// GUID wraps a UUID.
func GUID(v uuid.UUID) Value { return Value{kind: KindGUID, g: v} }

// Kind reports which variant is populated.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is the untyped or typed null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload. Panics if Kind() != KindBool.
func (v Value) AsBool() bool { v.mustBe(KindBool); return v.b }

// AsInt64 returns the int64 payload. Panics if Kind() != KindInt64.
func (v Value) AsInt64() int64 { v.mustBe(KindInt64); return v.i }

// AsFloat64 returns the float64 payload. Panics if Kind() != KindFloat64.
func (v Value) AsFloat64() float64 { v.mustBe(KindFloat64); return v.f }

// AsDecimal returns the decimal payload. Panics if Kind() != KindDecimal.
func (v Value) AsDecimal() *big.Rat { v.mustBe(KindDecimal); return v.dec }

// AsString returns the string payload. Panics if Kind() != KindString.
func (v Value) AsString() string { v.mustBe(KindString); return v.s }

// AsTimestamp returns the timestamp payload. Panics if Kind() != KindTimestamp.
func (v Value) AsTimestamp() time.Time { v.mustBe(KindTimestamp); return v.t }

// AsBytes returns the binary payload. Panics if Kind() != KindBytes.
func (v Value) AsBytes() []byte { v.mustBe(KindBytes); return v.by }

// AsGUID returns the UUID payload. Panics if Kind() != KindGUID.
func (v Value) AsGUID() uuid.UUID { v.mustBe(KindGUID); return v.g }

func (v Value) mustBe(k Kind) {
	if v.kind != k {
		panic(fmt.Sprintf("rowvalue: value is %s, not %s", v.kind, k))
	}
}

// Equal reports whether two values carry the same kind and payload.
// Decimal equality compares the underlying rationals; timestamp equality
// compares instants (not monotonic reading or location).
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt64:
		return v.i == other.i
	case KindFloat64:
		return v.f == other.f
	case KindDecimal:
		if v.dec == nil || other.dec == nil {
			return v.dec == other.dec
		}

		return v.dec.Cmp(other.dec) == 0
	case KindString:
		return v.s == other.s
	case KindTimestamp:
		return v.t.Equal(other.t)
	case KindBytes:
		return string(v.by) == string(other.by)
	case KindGUID:
		return v.g == other.g
	default:
		return false
	}
}
