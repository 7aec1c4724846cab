package dbconnector

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// RowShape selects how result rows are surfaced.
type RowShape int

const (
	// ShapeSlice returns rows as positional value slices.
	ShapeSlice RowShape = iota

	// ShapeMap returns rows keyed by column name.
	ShapeMap
)

// FetchMode selects how much of the result set is fetched.
type FetchMode int

const (
	// FetchNone executes a statement and fetches no rows.
	FetchNone FetchMode = iota

	// FetchAll drains the full result set.
	FetchAll

	// FetchOne drains the result set and keeps the first row.
	FetchOne
)

// QueryResult carries the outcome of one Execute call. Which fields are
// populated depends on the shape and fetch mode.
type QueryResult struct {
	Rows [][]any
	Maps []map[string]any
	Row  []any
	Map  map[string]any

	Affected int64
	InsertID int64
}

// Execute runs one statement through the resilience gateway. The query
// and parameters are logged at debug level before execution; failures
// are logged with the same detail before the error is returned. Rows
// errors surface as *QueryError, connection loss as the transient error
// itself or ErrConnectionUnavailable.
func (s *Session) Execute(ctx context.Context, query string, args []any, shape RowShape, fetch FetchMode) (*QueryResult, error) {
	res := &QueryResult{}
	err := s.run(ctx, func(c Conn) error {
		// A retried attempt starts from a clean result.
		*res = QueryResult{}

		s.log.Debug("executing query",
			zap.String("query", query),
			zap.Any("params", args),
		)

		if fetch == FetchNone {
			out, err := c.Exec(ctx, query, args...)
			if err != nil {
				return err
			}
			res.Affected = out.RowsAffected()
			if id, err := out.LastInsertID(); err == nil {
				res.InsertID = id
			}
			return nil
		}

		rows, err := c.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		return collectRows(rows, shape, fetch, res)
	})
	if err != nil {
		if errors.Is(err, ErrConnectionUnavailable) || s.pool.dialect.IsTransient(err) {
			return nil, err
		}
		s.log.Error("query failed",
			zap.String("query", query),
			zap.Any("params", args),
			zap.Error(err),
		)
		return nil, &QueryError{Query: query, Cause: err}
	}
	return res, nil
}

// collectRows drains the cursor into res according to shape and fetch.
// The cursor is closed on every path, success or failure.
func collectRows(rows Rows, shape RowShape, fetch FetchMode, res *QueryResult) error {
	defer rows.Close()

	cols := rows.Columns()
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return err
		}
		switch shape {
		case ShapeMap:
			m := make(map[string]any, len(cols))
			for i, col := range cols {
				m[col] = vals[i]
			}
			res.Maps = append(res.Maps, m)
		default:
			res.Rows = append(res.Rows, vals)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if fetch == FetchOne {
		switch shape {
		case ShapeMap:
			if len(res.Maps) > 0 {
				res.Map = res.Maps[0]
			}
			res.Maps = nil
		default:
			if len(res.Rows) > 0 {
				res.Row = res.Rows[0]
			}
			res.Rows = nil
		}
	}
	return nil
}

// QueryRows runs query and returns every result row as a value slice.
func (s *Session) QueryRows(ctx context.Context, query string, args ...any) ([][]any, error) {
	res, err := s.Execute(ctx, query, args, ShapeSlice, FetchAll)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// QueryMaps runs query and returns every result row keyed by column name.
func (s *Session) QueryMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	res, err := s.Execute(ctx, query, args, ShapeMap, FetchAll)
	if err != nil {
		return nil, err
	}
	return res.Maps, nil
}

// QueryRow runs query and returns the first result row, or nil when the
// result set is empty.
func (s *Session) QueryRow(ctx context.Context, query string, args ...any) ([]any, error) {
	res, err := s.Execute(ctx, query, args, ShapeSlice, FetchOne)
	if err != nil {
		return nil, err
	}
	return res.Row, nil
}

// QueryMap runs query and returns the first result row keyed by column
// name, or nil when the result set is empty.
func (s *Session) QueryMap(ctx context.Context, query string, args ...any) (map[string]any, error) {
	res, err := s.Execute(ctx, query, args, ShapeMap, FetchOne)
	if err != nil {
		return nil, err
	}
	return res.Map, nil
}

// Exec runs a statement that returns no rows and reports how many rows
// it affected.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.Execute(ctx, query, args, ShapeSlice, FetchNone)
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}

// RawCall runs a caller-assembled statement. Statements that read
// (leading SELECT) return their rows keyed by column name; everything
// else executes and reports affected rows. Values must still arrive as
// parameters; RawCall never interpolates them.
func (s *Session) RawCall(ctx context.Context, query string, args ...any) (*QueryResult, error) {
	if isSelect(query) {
		return s.Execute(ctx, query, args, ShapeMap, FetchAll)
	}
	return s.Execute(ctx, query, args, ShapeSlice, FetchNone)
}

func isSelect(query string) bool {
	trimmed := strings.TrimSpace(query)
	return len(trimmed) >= 6 && strings.EqualFold(trimmed[:6], "SELECT")
}
