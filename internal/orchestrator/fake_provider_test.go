package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/countrydata/rowsync/internal/rowvalue"
	"github.com/countrydata/rowsync/internal/store"
)

// fakeProvider is a minimal in-memory store.Provider for orchestrator
// tests, in the same hand-rolled-fake style as the teacher's
// engineMockGraph.
type fakeProvider struct {
	name   string
	tables map[string]map[string]*rowvalue.Row // table -> fold(id) -> row
	params map[string]string

	applyErr error
	closeErr error
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, tables: make(map[string]map[string]*rowvalue.Row), params: make(map[string]string)}
}

func (f *fakeProvider) seed(table string, row *rowvalue.Row) {
	if f.tables[table] == nil {
		f.tables[table] = make(map[string]*rowvalue.Row)
	}

	id, _ := row.Get("ID")
	f.tables[table][strings.ToLower(id.AsString())] = row
}

func (f *fakeProvider) ID() string { return f.name }

func (f *fakeProvider) Open(context.Context) error { return nil }

func (f *fakeProvider) Close() error { return f.closeErr }

func (f *fakeProvider) DB() *sql.DB { return nil }

func (f *fakeProvider) IntrospectSchema(context.Context, string) (*rowvalue.TableSchema, error) {
	return rowvalue.NewTableSchema(), nil
}

func (f *fakeProvider) GetChangesSince(_ context.Context, table string, anchor *time.Time) ([]*rowvalue.Row, error) {
	var out []*rowvalue.Row

	for _, row := range f.tables[table] {
		if anchor == nil {
			out = append(out, row)
			continue
		}

		lm, ok := row.Get("LastModified")
		if ok && !lm.IsNull() && lm.AsTimestamp().After(*anchor) {
			out = append(out, row)
		}
	}

	return out, nil
}

func (f *fakeProvider) GetRecordsByIDs(_ context.Context, table string, ids []string) ([]*rowvalue.Row, error) {
	var out []*rowvalue.Row

	for _, id := range ids {
		if row, ok := f.tables[table][strings.ToLower(id)]; ok {
			out = append(out, row)
		}
	}

	return out, nil
}

func (f *fakeProvider) ApplyRows(_ context.Context, table string, rows []*rowvalue.Row) error {
	if f.applyErr != nil {
		return f.applyErr
	}

	if f.tables[table] == nil {
		f.tables[table] = make(map[string]*rowvalue.Row)
	}

	for _, row := range rows {
		id, ok := row.Get("ID")
		if !ok || id.IsNull() {
			return errors.New("fake provider: row missing ID")
		}

		f.tables[table][strings.ToLower(id.AsString())] = row
	}

	return nil
}

func (f *fakeProvider) GetParameter(_ context.Context, key string) (string, bool, error) {
	v, ok := f.params[key]
	return v, ok, nil
}

func (f *fakeProvider) SetParameter(_ context.Context, key, value string) error {
	f.params[key] = value
	return nil
}

var _ store.Provider = (*fakeProvider)(nil)
