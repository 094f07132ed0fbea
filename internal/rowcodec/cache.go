package rowcodec

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/countrydata/rowsync/internal/rowvalue"
)

// SchemaIntrospector loads a table's column schema from a store. Concrete
// store backends implement this; the codec only depends on the interface so
// it never imports database/sql directly.
type SchemaIntrospector interface {
	IntrospectSchema(ctx context.Context, table string) (*rowvalue.TableSchema, error)
}

// schemaCache caches TableSchema lookups per (store, table), coalescing
// concurrent callers racing to introspect the same table with
// golang.org/x/sync/singleflight (component-design.md section 4.1: cached
// per process by table name).
type schemaCache struct {
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]*rowvalue.TableSchema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{entries: make(map[string]*rowvalue.TableSchema)}
}

func cacheKey(storeID, table string) string {
	return strings.ToLower(storeID) + "\x00" + strings.ToLower(table)
}

// IntrospectSchema returns the cached TableSchema for (storeID, table),
// populating it via introspector on first access. A failed or empty
// introspection is cached as an empty TableSchema, per component-design.md
// 4.1: "missing/unreadable schema yields an empty map."
func (c *Codec) IntrospectSchema(
	ctx context.Context, storeID, table string, introspector SchemaIntrospector,
) *rowvalue.TableSchema {
	key := cacheKey(storeID, table)

	c.cache.mu.RLock()
	cached, ok := c.cache.entries[key]
	c.cache.mu.RUnlock()

	if ok {
		return cached
	}

	result, _, _ := c.cache.group.Do(key, func() (any, error) {
		schema, err := introspector.IntrospectSchema(ctx, table)
		if err != nil || schema == nil {
			schema = rowvalue.NewTableSchema()
		}

		c.cache.mu.Lock()
		c.cache.entries[key] = schema
		c.cache.mu.Unlock()

		return schema, nil
	})

	return result.(*rowvalue.TableSchema)
}

// ClearSchemaCache evicts the cached schema for (storeID, table), allowing
// the next IntrospectSchema call to re-query the store. Used when a table's
// DDL changes mid-process (rare, but the cache must not be permanently
// stale — design-notes.md section 9, "a clearable entry").
func (c *Codec) ClearSchemaCache(storeID, table string) {
	c.cache.mu.Lock()
	delete(c.cache.entries, cacheKey(storeID, table))
	c.cache.mu.Unlock()
}
