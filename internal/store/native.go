package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/countrydata/rowsync/internal/rowvalue"
)

// toNative converts a rowvalue.Value into a database/sql-bindable Go value.
func toNative(v rowvalue.Value) any {
	switch v.Kind() {
	case rowvalue.KindNull:
		return nil
	case rowvalue.KindBool:
		return v.AsBool()
	case rowvalue.KindInt64:
		return v.AsInt64()
	case rowvalue.KindFloat64:
		return v.AsFloat64()
	case rowvalue.KindDecimal:
		return v.AsDecimal().FloatString(decimalNativePrecision)
	case rowvalue.KindString:
		return v.AsString()
	case rowvalue.KindTimestamp:
		return v.AsTimestamp().UTC().Format(time.RFC3339Nano)
	case rowvalue.KindBytes:
		return v.AsBytes()
	case rowvalue.KindGUID:
		return v.AsGUID().String()
	default:
		return nil
	}
}

const decimalNativePrecision = 10

// fromNative converts a value scanned out of database/sql (via a generic
// `any` scan target) back into a rowvalue.Value, using the column's
// logical type when known to disambiguate (e.g. a TEXT column holding a
// GUID string versus an ordinary string).
func fromNative(raw any, lt rowvalue.LogicalType) rowvalue.Value {
	if raw == nil {
		return rowvalue.Null()
	}

	switch lt {
	case rowvalue.TypeGuid:
		if s, ok := asString(raw); ok {
			if id, err := uuid.Parse(s); err == nil {
				return rowvalue.GUID(id)
			}
		}
	case rowvalue.TypeTimestamp, rowvalue.TypeDate:
		if t, ok := asTime(raw); ok {
			return rowvalue.Timestamp(t)
		}
	case rowvalue.TypeBool:
		if b, ok := raw.(bool); ok {
			return rowvalue.Bool(b)
		}

		if i, ok := asInt64(raw); ok {
			return rowvalue.Bool(i != 0)
		}
	}

	switch x := raw.(type) {
	case bool:
		return rowvalue.Bool(x)
	case int64:
		return rowvalue.Int64(x)
	case float64:
		return rowvalue.Float64(x)
	case []byte:
		if lt == rowvalue.TypeBinary {
			return rowvalue.Bytes(x)
		}

		return rowvalue.String(string(x))
	case string:
		return rowvalue.String(x)
	case time.Time:
		return rowvalue.Timestamp(x.UTC())
	default:
		return rowvalue.Null()
	}
}

func asString(raw any) (string, bool) {
	switch x := raw.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	default:
		return "", false
	}
}

func asInt64(raw any) (int64, bool) {
	switch x := raw.(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asTime(raw any) (time.Time, bool) {
	switch x := raw.(type) {
	case time.Time:
		return x.UTC(), true
	case string:
		if t, ok := parseAnyTimestamp(x); ok {
			return t, true
		}
	case []byte:
		if t, ok := parseAnyTimestamp(string(x)); ok {
			return t, true
		}
	}

	return time.Time{}, false
}

func parseAnyTimestamp(s string) (time.Time, bool) {
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02"}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}
