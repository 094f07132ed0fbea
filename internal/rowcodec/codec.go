// Package rowcodec bridges the generic rowvalue.Row representation and a
// store's typed parameter API (component-design.md section 4.1).
package rowcodec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/countrydata/rowsync/internal/rowvalue"
)

// epoch is the reference instant for numeric day-offset conversions — day 0
// is 1899-12-30, matching the legacy spreadsheet/db epoch the source system
// used for date columns stored as numeric day offsets (data-model.md
// section 3, "Dates may be stored as wall-clock timestamps or as numeric
// day offsets").
var epoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Parameter is a single bound value ready to hand to a store driver: a name,
// the value to bind, and the logical type it was bound as (which may differ
// from the column's declared type — see bindParameter's numeric/timestamp
// coercion rule).
type Parameter struct {
	Name        string
	Value       rowvalue.Value
	LogicalType rowvalue.LogicalType
}

// Codec binds rowvalue.Values against ColumnSchema-declared types.
type Codec struct {
	cache *schemaCache
}

// New creates a Codec with its own per-process schema cache.
func New() *Codec {
	return &Codec{cache: newSchemaCache()}
}

// BindParameter converts value into a Parameter bound against the column's
// expected schema, applying the coercion rules of component-design.md
// section 4.1. expected may be nil, in which case the logical type is
// inferred from value's runtime Kind.
func (c *Codec) BindParameter(name string, value rowvalue.Value, expected *rowvalue.ColumnSchema) Parameter {
	if value.IsNull() {
		return c.bindNull(name, expected)
	}

	if expected == nil {
		return Parameter{Name: name, Value: value, LogicalType: inferType(value)}
	}

	lt := expected.LogicalType

	switch {
	case lt.IsDateLike():
		return Parameter{Name: name, Value: c.coerceToDateLike(value), LogicalType: lt}
	case lt.IsNumeric() && value.Kind() == rowvalue.KindTimestamp:
		// Timestamp bound against a numeric column: convert to day-offset
		// and switch the target type to F64 for this one binding
		// (component-design.md section 4.1).
		return Parameter{Name: name, Value: rowvalue.Float64(toDayOffset(value.AsTimestamp())), LogicalType: rowvalue.TypeF64}
	case lt.IsTextual() && value.Kind() != rowvalue.KindString:
		return Parameter{Name: name, Value: rowvalue.String(Stringify(value)), LogicalType: lt}
	default:
		return Parameter{Name: name, Value: value, LogicalType: lt}
	}
}

func (c *Codec) bindNull(name string, expected *rowvalue.ColumnSchema) Parameter {
	if expected == nil {
		return Parameter{Name: name, Value: rowvalue.Null(), LogicalType: rowvalue.TypeUnknown}
	}

	return Parameter{Name: name, Value: rowvalue.Null(), LogicalType: expected.LogicalType}
}

// coerceToDateLike implements "If expected is a date-like type and the
// runtime value is numeric, convert from day-offset to wall-clock; if
// string, try round-trip then locale-tolerant parse."
func (c *Codec) coerceToDateLike(value rowvalue.Value) rowvalue.Value {
	switch value.Kind() {
	case rowvalue.KindTimestamp:
		return value
	case rowvalue.KindInt64:
		return rowvalue.Timestamp(fromDayOffset(float64(value.AsInt64())))
	case rowvalue.KindFloat64:
		return rowvalue.Timestamp(fromDayOffset(value.AsFloat64()))
	case rowvalue.KindString:
		if t, ok := parseRoundTrip(value.AsString()); ok {
			return rowvalue.Timestamp(t)
		}

		if t, ok := parseLocaleTolerant(value.AsString()); ok {
			return rowvalue.Timestamp(t)
		}

		return value
	default:
		return value
	}
}

// inferType infers a LogicalType from a value's runtime Kind, for the
// expected==nil case.
func inferType(v rowvalue.Value) rowvalue.LogicalType {
	switch v.Kind() {
	case rowvalue.KindString:
		return rowvalue.TypeText
	case rowvalue.KindBool:
		return rowvalue.TypeBool
	case rowvalue.KindTimestamp:
		return rowvalue.TypeTimestamp
	case rowvalue.KindBytes:
		return rowvalue.TypeBinary
	case rowvalue.KindInt64:
		return rowvalue.TypeI64
	case rowvalue.KindFloat64:
		return rowvalue.TypeF64
	case rowvalue.KindDecimal:
		return rowvalue.TypeDecimal
	case rowvalue.KindGUID:
		return rowvalue.TypeGuid
	default:
		return rowvalue.TypeUnknown
	}
}

// Stringify renders a non-string value with invariant-culture formatting,
// for "If expected is textual and the runtime value is non-string,
// stringify with invariant culture."
func Stringify(v rowvalue.Value) string {
	switch v.Kind() {
	case rowvalue.KindBool:
		return strconv.FormatBool(v.AsBool())
	case rowvalue.KindInt64:
		return strconv.FormatInt(v.AsInt64(), 10)
	case rowvalue.KindFloat64:
		return strconv.FormatFloat(v.AsFloat64(), 'f', -1, 64)
	case rowvalue.KindDecimal:
		return v.AsDecimal().FloatString(decimalStringPrecision)
	case rowvalue.KindTimestamp:
		return v.AsTimestamp().UTC().Format(time.RFC3339Nano)
	case rowvalue.KindBytes:
		return fmt.Sprintf("%x", v.AsBytes())
	case rowvalue.KindGUID:
		return v.AsGUID().String()
	case rowvalue.KindString:
		return v.AsString()
	default:
		return ""
	}
}

const decimalStringPrecision = 10

// FormatAnchor renders t as the anchor's ISO-8601 UTC round-trip format
// (data-model.md section 3, "Anchor").
func FormatAnchor(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseAnchor parses a _SyncConfig LastSyncTimestamp value, accepting the
// round-trip ISO-8601 format the engine writes and, for backward
// compatibility, a legacy numeric day-offset value (data-model.md section
// 3: "Legacy numeric day-offset representations must be read but never
// written").
func ParseAnchor(s string) (time.Time, bool) {
	if t, ok := parseRoundTrip(s); ok {
		return t, true
	}

	if days, err := strconv.ParseFloat(s, 64); err == nil {
		return fromDayOffset(days), true
	}

	return time.Time{}, false
}

// toDayOffset converts a UTC instant to a fractional day count since epoch.
func toDayOffset(t time.Time) float64 {
	return t.UTC().Sub(epoch).Hours() / 24
}

// fromDayOffset converts a fractional day count since epoch to a UTC instant.
// Idempotent with toDayOffset up to float64 rounding (data-model.md section
// 3, "the codec converts both directions idempotently").
func fromDayOffset(days float64) time.Time {
	nanos := days * 24 * float64(time.Hour)
	return epoch.Add(time.Duration(math.Round(nanos)))
}

// parseRoundTrip attempts RFC3339Nano (the anchor's own round-trip format).
func parseRoundTrip(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t.UTC(), true
	}

	t, err = time.Parse(time.RFC3339, s)
	if err == nil {
		return t.UTC(), true
	}

	return time.Time{}, false
}

// localeLayouts are the locale-tolerant fallback layouts tried in order
// when round-trip parsing fails, covering the common non-ISO date text a
// hand-entered or legacy-exported value might carry.
var localeLayouts = []string{
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"02/01/2006",
	"2006-01-02",
	"January 2, 2006",
	"2-Jan-2006",
}

// parseLocaleTolerant tries a handful of common non-ISO layouts. This is
// the component-design.md 4.1 "locale-tolerant parse" fallback; see
// DESIGN.md for why this sits on stdlib time.Parse with a curated layout
// list rather than a full locale-parsing library.
func parseLocaleTolerant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)

	for _, layout := range localeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}
