package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/countrydata/rowsync/internal/rowcodec"
	"github.com/countrydata/rowsync/internal/rowvalue"
)

// sqlProvider is the shared Provider implementation for both backends; only
// the dialect and the already-opened *sql.DB differ (component-design.md
// section 4.2). Grounded on internal/sync/state.go and internal/sync/baseline.go:
// a single *sql.DB, migrations applied by Open, one transaction
// per ApplyRows call.
type sqlProvider struct {
	id         string
	driverName string
	dsn        string
	db         *sql.DB
	dia        dialect
	codec      *rowcodec.Codec
	cols       Columns
	logger     *slog.Logger
	migrate    func(ctx context.Context, db *sql.DB, logger *slog.Logger) error
	setup      func(ctx context.Context, db *sql.DB) error
}

// Open implements Provider: connects, applies backend-specific pragmas, and
// runs the reserved-table migrations.
func (p *sqlProvider) Open(ctx context.Context) error {
	db, err := sql.Open(p.driverName, p.dsn)
	if err != nil {
		return fmt.Errorf("store: opening %s: %w", p.driverName, err)
	}

	if p.setup != nil {
		if err := p.setup(ctx, db); err != nil {
			db.Close()
			return err
		}
	}

	if err := p.migrate(ctx, db, p.logger); err != nil {
		db.Close()
		return err
	}

	p.db = db

	return nil
}

// introspectorFunc adapts a plain function to rowcodec.SchemaIntrospector.
type introspectorFunc func(ctx context.Context, table string) (*rowvalue.TableSchema, error)

func (f introspectorFunc) IntrospectSchema(ctx context.Context, table string) (*rowvalue.TableSchema, error) {
	return f(ctx, table)
}

// ID implements Provider.
func (p *sqlProvider) ID() string { return p.id }

// DB implements Provider.
func (p *sqlProvider) DB() *sql.DB { return p.db }

// Close implements Provider.
func (p *sqlProvider) Close() error {
	if p.db == nil {
		return nil
	}

	return p.db.Close()
}

// IntrospectSchema implements Provider, through the codec's per-process
// schema cache (component-design.md section 4.1: "cached per process by
// table name").
func (p *sqlProvider) IntrospectSchema(ctx context.Context, table string) (*rowvalue.TableSchema, error) {
	return p.codec.IntrospectSchema(ctx, p.id, table, introspectorFunc(p.rawIntrospectSchema)), nil
}

// rawIntrospectSchema queries the store directly, bypassing the cache. A
// missing/unreadable schema degrades to an empty TableSchema rather than an
// error (component-design.md section 4.1): SchemaError is reserved for the
// explicit table/column existence checks in GetRecordsByIDs.
func (p *sqlProvider) rawIntrospectSchema(ctx context.Context, table string) (*rowvalue.TableSchema, error) {
	cols, ok, err := p.dia.columns(ctx, p.db, table)
	if err != nil {
		p.logger.Warn("schema introspection failed, degrading to inferred typing",
			slog.String("table", table), slog.String("error", err.Error()))

		return rowvalue.NewTableSchema(), nil
	}

	schema := rowvalue.NewTableSchema()
	if !ok {
		return schema, nil
	}

	for _, c := range cols {
		schema.Add(c)
	}

	return schema, nil
}

// bind coerces value against name's declared schema (if any) through the
// codec and converts the result to a database/sql-bindable native value.
func (p *sqlProvider) bind(name string, value rowvalue.Value, schema *rowvalue.TableSchema) any {
	var expected *rowvalue.ColumnSchema

	if cs, ok := schema.Lookup(name); ok {
		expected = &cs
	}

	param := p.codec.BindParameter(name, value, expected)

	return toNative(param.Value)
}

// GetChangesSince implements Provider.
func (p *sqlProvider) GetChangesSince(ctx context.Context, table string, anchor *time.Time) ([]*rowvalue.Row, error) {
	schema, err := p.IntrospectSchema(ctx, table)
	if err != nil {
		return nil, err
	}

	var (
		query string
		args  []any
	)

	lmCol := p.dia.quoteIdent(p.cols.LastModified)
	tbl := p.dia.quoteIdent(table)

	if anchor == nil {
		query = fmt.Sprintf(`SELECT * FROM %s`, tbl)
	} else {
		query = fmt.Sprintf(`SELECT * FROM %s WHERE %s > %s`, tbl, lmCol, p.dia.placeholder(1))
		args = append(args, p.bind(p.cols.LastModified, rowvalue.Timestamp(*anchor), schema))
	}

	return p.queryRows(ctx, query, schema, args...)
}

// GetRecordsByIDs implements Provider.
func (p *sqlProvider) GetRecordsByIDs(ctx context.Context, table string, ids []string) ([]*rowvalue.Row, error) {
	ids = dedupeIDs(ids)

	schema, err := p.IntrospectSchema(ctx, table)
	if err != nil {
		return nil, err
	}

	if schema.Empty() {
		known, _ := p.dia.tableNames(ctx, p.db)
		return nil, &SchemaError{Table: table, KnownTables: known}
	}

	if _, ok := schema.Lookup(p.cols.PrimaryKey); !ok {
		return nil, &SchemaError{Table: table, Column: p.cols.PrimaryKey, KnownColumns: schema.Columns()}
	}

	if len(ids) == 0 {
		return nil, nil
	}

	var out []*rowvalue.Row

	pkCol := p.dia.quoteIdent(p.cols.PrimaryKey)
	tbl := p.dia.quoteIdent(table)

	for _, batch := range chunk(ids, chunkSize) {
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = p.bind(p.cols.PrimaryKey, rowvalue.String(id), schema)
		}

		query := fmt.Sprintf(`SELECT * FROM %s WHERE %s IN (%s)`, tbl, pkCol, placeholders(p.dia, 1, len(batch)))

		rows, err := p.queryRows(ctx, query, schema, args...)
		if err != nil {
			return nil, err
		}

		out = append(out, rows...)
	}

	return out, nil
}

// queryRows runs query and decodes every result row into a *rowvalue.Row
// using schema for logical-type disambiguation.
func (p *sqlProvider) queryRows(ctx context.Context, query string, schema *rowvalue.TableSchema, args ...any) ([]*rowvalue.Row, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []*rowvalue.Row

	for rows.Next() {
		scanTargets := make([]any, len(colNames))
		scanPtrs := make([]any, len(colNames))

		for i := range scanTargets {
			scanPtrs[i] = &scanTargets[i]
		}

		if err := rows.Scan(scanPtrs...); err != nil {
			return nil, err
		}

		row := rowvalue.NewRow()

		for i, name := range colNames {
			lt := rowvalue.TypeUnknown
			if cs, ok := schema.Lookup(name); ok {
				lt = cs.LogicalType
			}

			row.Set(name, fromNative(scanTargets[i], lt))
		}

		out = append(out, row)
	}

	return out, rows.Err()
}

// ApplyRows implements Provider: component-design.md section 4.2, item 3.
func (p *sqlProvider) ApplyRows(ctx context.Context, table string, rows []*rowvalue.Row) error {
	if len(rows) == 0 {
		return nil
	}

	schema, err := p.IntrospectSchema(ctx, table)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyErr(err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit, matches teacher idiom

	for _, row := range rows {
		if err := p.applyOneRow(ctx, tx, table, row, schema); err != nil {
			return &ApplyFailure{Table: table, Row: row, Cause: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return classifyErr(err)
	}

	return nil
}

func (p *sqlProvider) applyOneRow(
	ctx context.Context, tx *sql.Tx, table string, row *rowvalue.Row, schema *rowvalue.TableSchema,
) error {
	pkVal, ok := row.Get(p.cols.PrimaryKey)
	if !ok {
		return fmt.Errorf("store: row missing primary key column %q", p.cols.PrimaryKey)
	}

	if del, ok := row.Get(p.cols.IsDeleted); ok && !del.IsNull() && del.Kind() == rowvalue.KindBool && del.AsBool() {
		return p.deleteByPK(ctx, tx, table, pkVal, schema)
	}

	affected, err := p.updateRow(ctx, tx, table, row, schema, pkVal)
	if err != nil {
		return err
	}

	if affected == 0 {
		return p.insertRow(ctx, tx, table, row, schema)
	}

	return nil
}

func (p *sqlProvider) deleteByPK(
	ctx context.Context, tx *sql.Tx, table string, pk rowvalue.Value, schema *rowvalue.TableSchema,
) error {
	tbl := p.dia.quoteIdent(table)
	pkCol := p.dia.quoteIdent(p.cols.PrimaryKey)

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = %s`, tbl, pkCol, p.dia.placeholder(1))
	_, err := tx.ExecContext(ctx, query, p.bind(p.cols.PrimaryKey, pk, schema))

	return classifyErr(err)
}

func (p *sqlProvider) updateRow(
	ctx context.Context, tx *sql.Tx, table string, row *rowvalue.Row, schema *rowvalue.TableSchema, pk rowvalue.Value,
) (int64, error) {
	setCols := dataColumns(row, p.cols.PrimaryKey, schema)
	if len(setCols) == 0 {
		return 1, nil // nothing to set besides the key; treat as already-applied
	}

	tbl := p.dia.quoteIdent(table)
	pkCol := p.dia.quoteIdent(p.cols.PrimaryKey)

	setClauses := make([]string, len(setCols))
	args := make([]any, 0, len(setCols)+1)

	for i, col := range setCols {
		v, _ := row.Get(col)
		setClauses[i] = fmt.Sprintf("%s = %s", p.dia.quoteIdent(col), p.dia.placeholder(i+1))
		args = append(args, p.bind(col, v, schema))
	}

	args = append(args, p.bind(p.cols.PrimaryKey, pk, schema))
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = %s`,
		tbl, joinComma(setClauses), pkCol, p.dia.placeholder(len(setCols)+1))

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classifyErr(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, classifyErr(err)
	}

	return affected, nil
}

func (p *sqlProvider) insertRow(
	ctx context.Context, tx *sql.Tx, table string, row *rowvalue.Row, schema *rowvalue.TableSchema,
) error {
	allCols := dataColumns(row, "", schema)

	tbl := p.dia.quoteIdent(table)
	quoted := make([]string, len(allCols))
	args := make([]any, len(allCols))

	for i, col := range allCols {
		v, _ := row.Get(col)
		quoted[i] = p.dia.quoteIdent(col)
		args[i] = p.bind(col, v, schema)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		tbl, joinComma(quoted), placeholders(p.dia, 1, len(allCols)))

	_, err := tx.ExecContext(ctx, query, args...)

	return classifyErr(err)
}

// dataColumns returns row's columns in deterministic case-insensitive order,
// excluding excludeCol and any column absent from schema when schema
// introspection succeeded (component-design.md section 4.2: "Columns present
// in row but absent from the table schema are silently dropped when a schema
// was successfully introspected; otherwise they are passed through.").
func dataColumns(row *rowvalue.Row, excludeCol string, schema *rowvalue.TableSchema) []string {
	cols := row.Columns()

	out := make([]string, 0, len(cols))

	for _, c := range cols {
		if excludeCol != "" && foldID(c) == foldID(excludeCol) {
			continue
		}

		if !schema.Empty() {
			if _, ok := schema.Lookup(c); !ok {
				continue
			}
		}

		out = append(out, c)
	}

	return rowcodec.OrderColumns(out)
}

func joinComma(parts []string) string {
	out := ""

	for i, p := range parts {
		if i > 0 {
			out += ", "
		}

		out += p
	}

	return out
}

// GetParameter implements Provider, against the reserved _SyncConfig table.
func (p *sqlProvider) GetParameter(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT configValue FROM %s WHERE configKey = %s`,
		p.dia.quoteIdent(TableSyncConfig), p.dia.placeholder(1))

	var value string

	err := p.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}

	if err != nil {
		return "", false, classifyErr(err)
	}

	return value, true, nil
}

// SetParameter implements Provider, upserting into _SyncConfig. Uses the
// same update-then-insert-fallback shape as ApplyRows rather than
// ON CONFLICT, for consistency with the canonical upsert contract of
// component-design.md section 4.2.
func (p *sqlProvider) SetParameter(ctx context.Context, key, value string) error {
	tbl := p.dia.quoteIdent(TableSyncConfig)

	updateQuery := fmt.Sprintf(`UPDATE %s SET configValue = %s WHERE configKey = %s`,
		tbl, p.dia.placeholder(1), p.dia.placeholder(2))

	result, err := p.db.ExecContext(ctx, updateQuery, value, key)
	if err != nil {
		return classifyErr(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classifyErr(err)
	}

	if affected > 0 {
		return nil
	}

	insertQuery := fmt.Sprintf(`INSERT INTO %s (configKey, configValue) VALUES (%s, %s)`,
		tbl, p.dia.placeholder(1), p.dia.placeholder(2))

	_, err = p.db.ExecContext(ctx, insertQuery, key, value)

	return classifyErr(err)
}
