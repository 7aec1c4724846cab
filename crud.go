package dbconnector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CRUD convenience layer. Every helper validates table and column names
// against the identifier allow-list and binds values as parameters; SQL
// text never embeds a caller-supplied value.

// GetAllRows returns every row of table, optionally restricted to the
// named columns.
func (s *Session) GetAllRows(ctx context.Context, table string, columns ...string) ([][]any, error) {
	qtable, err := s.quote(table)
	if err != nil {
		return nil, err
	}
	cols, err := selectColumns(s.pool.dialect, columns)
	if err != nil {
		return nil, err
	}
	return s.QueryRows(ctx, fmt.Sprintf("SELECT %s FROM %s", cols, qtable))
}

// GetColumn returns one column of table as a flat value slice.
func (s *Session) GetColumn(ctx context.Context, table, column string) ([]any, error) {
	rows, err := s.GetAllRows(ctx, table, column)
	if err != nil {
		return nil, err
	}
	return flatten(rows), nil
}

// GetRowsByKey returns the rows whose keyColumn equals key, optionally
// restricted to the named columns.
func (s *Session) GetRowsByKey(ctx context.Context, table, keyColumn string, key any, columns ...string) ([][]any, error) {
	qtable, err := s.quote(table)
	if err != nil {
		return nil, err
	}
	qkey, err := s.quote(keyColumn)
	if err != nil {
		return nil, err
	}
	cols, err := selectColumns(s.pool.dialect, columns)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		cols, qtable, qkey, s.pool.dialect.Placeholder(1))
	return s.QueryRows(ctx, query, key)
}

// GetRowsByForeignID returns the rows referencing fkID through fkColumn.
func (s *Session) GetRowsByForeignID(ctx context.Context, table, fkColumn string, fkID any, columns ...string) ([][]any, error) {
	return s.GetRowsByKey(ctx, table, fkColumn, fkID, columns...)
}

// GetColumnByForeignID returns one column of the rows referencing fkID
// through fkColumn.
func (s *Session) GetColumnByForeignID(ctx context.Context, table, column, fkColumn string, fkID any) ([]any, error) {
	rows, err := s.GetRowsByKey(ctx, table, fkColumn, fkID, column)
	if err != nil {
		return nil, err
	}
	return flatten(rows), nil
}

// GetRowByID returns the row whose primary key equals id, or nil when no
// such row exists.
func (s *Session) GetRowByID(ctx context.Context, table string, id any) ([]any, error) {
	pk, err := s.PrimaryKey(ctx, table)
	if err != nil {
		return nil, err
	}
	qtable, err := s.quote(table)
	if err != nil {
		return nil, err
	}
	qpk, err := s.quote(pk)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s",
		qtable, qpk, s.pool.dialect.Placeholder(1))
	return s.QueryRow(ctx, query, id)
}

// GetValueByID returns one column of the row whose primary key equals id.
// A missing row returns (nil, nil): absence is an answer, not an error.
func (s *Session) GetValueByID(ctx context.Context, table, column string, id any) (any, error) {
	pk, err := s.PrimaryKey(ctx, table)
	if err != nil {
		return nil, err
	}
	qtable, err := s.quote(table)
	if err != nil {
		return nil, err
	}
	qcol, err := s.quote(column)
	if err != nil {
		return nil, err
	}
	qpk, err := s.quote(pk)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		qcol, qtable, qpk, s.pool.dialect.Placeholder(1))
	row, err := s.QueryRow(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, nil
	}
	return row[0], nil
}

// GetValueID returns the primary-key value of the first row whose column
// equals value, or (nil, nil) when no row matches.
func (s *Session) GetValueID(ctx context.Context, table, column string, value any) (any, error) {
	return s.GetValueIDMulti(ctx, table, map[string]any{column: value})
}

// GetValueIDMulti returns the primary-key value of the first row matching
// every column in criteria, or (nil, nil) when no row does.
func (s *Session) GetValueIDMulti(ctx context.Context, table string, criteria map[string]any) (any, error) {
	pk, err := s.PrimaryKey(ctx, table)
	if err != nil {
		return nil, err
	}
	qtable, err := s.quote(table)
	if err != nil {
		return nil, err
	}
	qpk, err := s.quote(pk)
	if err != nil {
		return nil, err
	}
	where, args, err := s.whereEquals(criteria)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", qpk, qtable, where)
	row, err := s.QueryRow(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, nil
	}
	return row[0], nil
}

// ValueExists reports whether any row has column equal to value.
func (s *Session) ValueExists(ctx context.Context, table, column string, value any) (bool, error) {
	return s.ValueExistsMulti(ctx, table, map[string]any{column: value})
}

// ValueExistsMulti reports whether any row matches every column in
// criteria.
func (s *Session) ValueExistsMulti(ctx context.Context, table string, criteria map[string]any) (bool, error) {
	qtable, err := s.quote(table)
	if err != nil {
		return false, err
	}
	where, args, err := s.whereEquals(criteria)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", qtable, where)
	row, err := s.QueryRow(ctx, query, args...)
	if err != nil {
		return false, err
	}
	if len(row) == 0 {
		return false, nil
	}
	n, err := toInt64(row[0])
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertSingleRow inserts one row and returns its primary-key id. The -1
// sentinel always travels with a non-nil error: arity mismatch, execution
// failure, or a database that reported no id.
func (s *Session) InsertSingleRow(ctx context.Context, table string, columns []string, values []any) (int64, error) {
	if len(columns) == 0 || len(columns) != len(values) {
		return -1, fmt.Errorf("dbconnector: insert into %q: %d columns, %d values",
			table, len(columns), len(values))
	}
	qtable, err := s.quote(table)
	if err != nil {
		return -1, err
	}

	d := s.pool.dialect
	qcols := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, col := range columns {
		qcol, err := quoteIdent(d, col)
		if err != nil {
			return -1, err
		}
		qcols[i] = qcol
		marks[i] = d.Placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qtable, strings.Join(qcols, ", "), strings.Join(marks, ", "))

	if d.UsesReturning() {
		pk, err := s.PrimaryKey(ctx, table)
		if err != nil {
			return -1, err
		}
		qpk, err := s.quote(pk)
		if err != nil {
			return -1, err
		}
		row, err := s.QueryRow(ctx, query+" RETURNING "+qpk, values...)
		if err != nil {
			return -1, err
		}
		if len(row) == 0 {
			return -1, errors.New("dbconnector: insert reported no id")
		}
		id, err := toInt64(row[0])
		if err != nil {
			return -1, err
		}
		if id <= 0 {
			return -1, errors.New("dbconnector: insert reported no id")
		}
		return id, nil
	}

	res, err := s.Execute(ctx, query, values, ShapeSlice, FetchNone)
	if err != nil {
		return -1, err
	}
	if res.InsertID <= 0 {
		return -1, errors.New("dbconnector: insert reported no id")
	}
	return res.InsertID, nil
}

// InsertRow inserts row with its columns in sorted order, so the same map
// always produces the same statement.
func (s *Session) InsertRow(ctx context.Context, table string, row map[string]any) (int64, error) {
	if len(row) == 0 {
		return -1, errors.New("dbconnector: empty row")
	}
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	vals := make([]any, 0, len(cols))
	for _, col := range cols {
		vals = append(vals, row[col])
	}
	return s.InsertSingleRow(ctx, table, cols, vals)
}

// UpdateSingleRow updates the named columns of the row whose primary key
// equals id, one statement per column. The arity check and identifier
// validation run before any SQL, so a malformed request changes nothing.
// Success returns 1.
func (s *Session) UpdateSingleRow(ctx context.Context, table string, id any, columns []string, values []any) (int64, error) {
	if len(columns) == 0 || len(columns) != len(values) {
		return 0, fmt.Errorf("dbconnector: update %q: %d columns, %d values",
			table, len(columns), len(values))
	}
	if _, err := s.quote(table); err != nil {
		return 0, err
	}
	for _, col := range columns {
		if _, err := s.quote(col); err != nil {
			return 0, err
		}
	}

	for i, col := range columns {
		if _, err := s.UpdateSingleValue(ctx, table, id, col, values[i]); err != nil {
			return 0, err
		}
	}
	return 1, nil
}

// UpdateSingleValue sets one column of the row whose primary key equals
// id and reports how many rows changed.
func (s *Session) UpdateSingleValue(ctx context.Context, table string, id any, column string, value any) (int64, error) {
	pk, err := s.PrimaryKey(ctx, table)
	if err != nil {
		return 0, err
	}
	qtable, err := s.quote(table)
	if err != nil {
		return 0, err
	}
	qcol, err := s.quote(column)
	if err != nil {
		return 0, err
	}
	qpk, err := s.quote(pk)
	if err != nil {
		return 0, err
	}
	d := s.pool.dialect
	query := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		qtable, qcol, d.Placeholder(1), qpk, d.Placeholder(2))
	return s.Exec(ctx, query, value, id)
}

// RemoveByID deletes the row whose primary key equals id and reports how
// many rows went away. Deleting an absent id is (0, nil); zero alongside
// a non-nil error means the statement itself failed.
func (s *Session) RemoveByID(ctx context.Context, table string, id any) (int64, error) {
	pk, err := s.PrimaryKey(ctx, table)
	if err != nil {
		return 0, err
	}
	qtable, err := s.quote(table)
	if err != nil {
		return 0, err
	}
	qpk, err := s.quote(pk)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		qtable, qpk, s.pool.dialect.Placeholder(1))
	return s.Exec(ctx, query, id)
}

// RemoveByValue deletes every row whose column equals value and reports
// how many rows went away.
func (s *Session) RemoveByValue(ctx context.Context, table, column string, value any) (int64, error) {
	qtable, err := s.quote(table)
	if err != nil {
		return 0, err
	}
	qcol, err := s.quote(column)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		qtable, qcol, s.pool.dialect.Placeholder(1))
	return s.Exec(ctx, query, value)
}

// whereEquals renders criteria as an AND chain with sorted column order,
// so the same criteria always produce the same statement.
func (s *Session) whereEquals(criteria map[string]any) (string, []any, error) {
	if len(criteria) == 0 {
		return "", nil, errors.New("dbconnector: empty criteria")
	}
	cols := make([]string, 0, len(criteria))
	for col := range criteria {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	terms := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for i, col := range cols {
		qcol, err := s.quote(col)
		if err != nil {
			return "", nil, err
		}
		terms = append(terms, qcol+" = "+s.pool.dialect.Placeholder(i+1))
		args = append(args, criteria[col])
	}
	return strings.Join(terms, " AND "), args, nil
}

// selectColumns renders a quoted column list, or * when none are named.
func selectColumns(d Dialect, columns []string) (string, error) {
	if len(columns) == 0 {
		return "*", nil
	}
	quoted := make([]string, len(columns))
	for i, col := range columns {
		q, err := quoteIdent(d, col)
		if err != nil {
			return "", err
		}
		quoted[i] = q
	}
	return strings.Join(quoted, ", "), nil
}

// flatten lifts single-column rows into a flat value slice.
func flatten(rows [][]any) []any {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			out = append(out, row[0])
		}
	}
	return out
}

// toInt64 normalizes the integer shapes drivers hand back, including the
// string form aggregate results take on some backends.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case nil:
		return 0, errors.New("dbconnector: nil is not an integer")
	default:
		return 0, fmt.Errorf("dbconnector: %T is not an integer", v)
	}
}
