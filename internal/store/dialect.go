package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/countrydata/rowsync/internal/rowvalue"
)

// dialect hides the SQL differences between the local (SQLite) and remote
// (Postgres) backends behind a small interface, so sqlProvider's query
// building and transaction logic is backend-agnostic (component-design.md
// section 4.2: DataProvider is "an abstraction... against either the local
// or the network store").
type dialect interface {
	name() string
	// placeholder returns the parameter marker for the i'th (1-based)
	// positional parameter in a statement.
	placeholder(i int) string
	// quoteIdent quotes a table/column identifier.
	quoteIdent(name string) string
	// columns returns the known columns for table, or ok=false if the
	// table does not exist.
	columns(ctx context.Context, db *sql.DB, table string) (cols []rowvalue.ColumnSchema, ok bool, err error)
	// tableNames lists all user-visible table names, for SchemaError
	// diagnostics.
	tableNames(ctx context.Context, db *sql.DB) ([]string, error)
}

func placeholders(d dialect, start, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = d.placeholder(start + i)
	}

	return strings.Join(parts, ", ")
}

// --- SQLite ---

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteDialect) tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}

		names = append(names, n)
	}

	return names, rows.Err()
}

func (sqliteDialect) columns(ctx context.Context, db *sql.DB, table string) ([]rowvalue.ColumnSchema, bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, sqliteDialect{}.quoteIdent(table)))
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []rowvalue.ColumnSchema

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue any
			pk        int
		)

		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, false, err
		}

		out = append(out, rowvalue.ColumnSchema{
			Name:         name,
			LogicalType:  sqliteTypeToLogical(colType),
			Nullable:     notNull == 0,
			IsPrimaryKey: pk > 0,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	return out, len(out) > 0, nil
}

func sqliteTypeToLogical(declared string) rowvalue.LogicalType {
	t := strings.ToUpper(declared)

	switch {
	case strings.Contains(t, "BOOL"):
		return rowvalue.TypeBool
	case strings.Contains(t, "INT"):
		return rowvalue.TypeI64
	case strings.Contains(t, "DATETIME") || strings.Contains(t, "TIMESTAMP"):
		return rowvalue.TypeTimestamp
	case strings.Contains(t, "DATE"):
		return rowvalue.TypeDate
	case strings.Contains(t, "REAL") || strings.Contains(t, "DOUBLE") || strings.Contains(t, "FLOA"):
		return rowvalue.TypeF64
	case strings.Contains(t, "DECIMAL") || strings.Contains(t, "NUMERIC"):
		return rowvalue.TypeDecimal
	case strings.Contains(t, "BLOB") || strings.Contains(t, "BINARY"):
		return rowvalue.TypeBinary
	case strings.Contains(t, "GUID") || strings.Contains(t, "UUID"):
		return rowvalue.TypeGuid
	case strings.Contains(t, "LONGTEXT") || strings.Contains(t, "CLOB"):
		return rowvalue.TypeLongText
	case strings.Contains(t, "CHAR") || strings.Contains(t, "TEXT"):
		return rowvalue.TypeText
	default:
		return rowvalue.TypeUnknown
	}
}

// --- Postgres ---

type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) placeholder(i int) string { return "$" + strconv.Itoa(i) }

func (postgresDialect) quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (postgresDialect) tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}

		names = append(names, n)
	}

	return names, rows.Err()
}

func (postgresDialect) columns(ctx context.Context, db *sql.DB, table string) ([]rowvalue.ColumnSchema, bool, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.column_name, c.data_type, c.is_nullable,
		       COALESCE(pk.is_pk, false) AS is_pk
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.column_name, true AS is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name
			WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_name = $1
		) pk ON pk.column_name = c.column_name
		WHERE c.table_name = $1
		ORDER BY c.ordinal_position`, table)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []rowvalue.ColumnSchema

	for rows.Next() {
		var (
			name, dataType, nullable string
			isPK                     bool
		)

		if err := rows.Scan(&name, &dataType, &nullable, &isPK); err != nil {
			return nil, false, err
		}

		out = append(out, rowvalue.ColumnSchema{
			Name:         name,
			LogicalType:  postgresTypeToLogical(dataType),
			Nullable:     nullable == "YES",
			IsPrimaryKey: isPK,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	return out, len(out) > 0, nil
}

func postgresTypeToLogical(dataType string) rowvalue.LogicalType {
	switch strings.ToLower(dataType) {
	case "boolean":
		return rowvalue.TypeBool
	case "smallint":
		return rowvalue.TypeI16
	case "integer":
		return rowvalue.TypeI32
	case "bigint":
		return rowvalue.TypeI64
	case "real":
		return rowvalue.TypeF32
	case "double precision":
		return rowvalue.TypeF64
	case "numeric", "decimal":
		return rowvalue.TypeDecimal
	case "money":
		return rowvalue.TypeCurrency
	case "timestamp without time zone", "timestamp with time zone":
		return rowvalue.TypeTimestamp
	case "date":
		return rowvalue.TypeDate
	case "bytea":
		return rowvalue.TypeBinary
	case "uuid":
		return rowvalue.TypeGuid
	case "text":
		return rowvalue.TypeLongText
	default:
		if strings.HasPrefix(strings.ToLower(dataType), "character") {
			return rowvalue.TypeText
		}

		return rowvalue.TypeUnknown
	}
}
