package dbconnector

import (
	"context"
	"fmt"
	"sync"
)

// schemaCache remembers per-table introspection results for the life of
// the pool, so each table costs at most one catalog query per fact.
type schemaCache struct {
	mu   sync.Mutex
	pk   map[string]string
	cols map[string][]string
}

func newSchemaCache() *schemaCache {
	return &schemaCache{
		pk:   make(map[string]string),
		cols: make(map[string][]string),
	}
}

// PrimaryKey returns table's primary-key column, resolved from the
// catalog on first use and from the pool's cache afterwards. Composite
// keys resolve to their first column. A table without a primary key is a
// hard error, never a sentinel. The cache lock is held across the catalog
// query so concurrent first lookups issue it once.
func (s *Session) PrimaryKey(ctx context.Context, table string) (string, error) {
	if !identPattern.MatchString(table) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeIdentifier, table)
	}

	cache := s.pool.schema
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if pk, ok := cache.pk[table]; ok {
		return pk, nil
	}

	query, args := s.pool.dialect.PrimaryKeyQuery(table)
	rows, err := s.QueryRows(ctx, query, args...)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", &SchemaError{Table: table, Reason: "no primary key"}
	}
	pk, ok := rows[0][0].(string)
	if !ok {
		return "", &SchemaError{Table: table, Reason: "unreadable primary key metadata"}
	}

	cache.pk[table] = pk
	return pk, nil
}

// ColumnNames returns table's column names in ordinal order, cached after
// the first resolution. A table the catalog does not know is a hard
// error.
func (s *Session) ColumnNames(ctx context.Context, table string) ([]string, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrUnsafeIdentifier, table)
	}

	cache := s.pool.schema
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if cols, ok := cache.cols[table]; ok {
		return append([]string(nil), cols...), nil
	}

	query, args := s.pool.dialect.ColumnsQuery(table)
	rows, err := s.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &SchemaError{Table: table, Reason: "unknown table"}
	}

	cols := make([]string, 0, len(rows))
	for _, row := range rows {
		name, ok := row[0].(string)
		if !ok {
			return nil, &SchemaError{Table: table, Reason: "unreadable column metadata"}
		}
		cols = append(cols, name)
	}

	cache.cols[table] = cols
	return append([]string(nil), cols...), nil
}

// Tables lists the database's table names straight from the catalog. The
// listing is never cached.
func (s *Session) Tables(ctx context.Context) ([]string, error) {
	query, args := s.pool.dialect.TablesQuery()
	rows, err := s.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row[0].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}
