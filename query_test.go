package dbconnector

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newConnSession(t *testing.T, conn *TestConn) *Session {
	t.Helper()

	drv := &TestDriver{
		AcquireFunc: func(context.Context) (Conn, error) { return conn, nil },
	}
	pool := newTestPool(t, drv)

	s, err := pool.Session(context.Background())
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSession_QueryRowsReturnsAllRows(t *testing.T) {
	t.Parallel()

	rows := NewRows("id", "name").
		AddRow(int64(1), "alpha").
		AddRow(int64(2), "beta").
		Build()
	conn := &TestConn{
		QueryFunc: func(context.Context, string, ...any) (Rows, error) { return rows, nil },
	}
	s := newConnSession(t, conn)

	got, err := s.QueryRows(context.Background(), "SELECT id, name FROM jobs")
	if err != nil {
		t.Fatalf("QueryRows() error = %v", err)
	}
	want := [][]any{{int64(1), "alpha"}, {int64(2), "beta"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows=%v, want %v", got, want)
	}
	if !rows.Closed() {
		t.Fatal("expected cursor closed after drain")
	}
}

func TestSession_QueryMapsKeysRowsByColumn(t *testing.T) {
	t.Parallel()

	rows := NewRows("id", "name").
		AddRow(int64(1), "alpha").
		AddRow(int64(2), "beta").
		Build()
	conn := &TestConn{
		QueryFunc: func(context.Context, string, ...any) (Rows, error) { return rows, nil },
	}
	s := newConnSession(t, conn)

	got, err := s.QueryMaps(context.Background(), "SELECT id, name FROM jobs")
	if err != nil {
		t.Fatalf("QueryMaps() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(maps)=%d, want 2", len(got))
	}
	if got, want := got[1]["name"], "beta"; got != want {
		t.Fatalf("maps[1][name]=%v, want %v", got, want)
	}
	if got, want := got[0]["id"], int64(1); got != want {
		t.Fatalf("maps[0][id]=%v, want %v", got, want)
	}
}

func TestSession_QueryRowReturnsFirstRowOnly(t *testing.T) {
	t.Parallel()

	rows := NewRows("id").AddRow(int64(7)).AddRow(int64(8)).Build()
	conn := &TestConn{
		QueryFunc: func(context.Context, string, ...any) (Rows, error) { return rows, nil },
	}
	s := newConnSession(t, conn)

	row, err := s.QueryRow(context.Background(), "SELECT id FROM jobs ORDER BY id")
	if err != nil {
		t.Fatalf("QueryRow() error = %v", err)
	}
	if !reflect.DeepEqual(row, []any{int64(7)}) {
		t.Fatalf("row=%v, want [7]", row)
	}
	if !rows.Closed() {
		t.Fatal("expected cursor closed")
	}
}

func TestSession_QueryMapEmptyResultIsNil(t *testing.T) {
	t.Parallel()

	conn := &TestConn{
		QueryFunc: func(context.Context, string, ...any) (Rows, error) {
			return NewRows("id").Build(), nil
		},
	}
	s := newConnSession(t, conn)

	row, err := s.QueryMap(context.Background(), "SELECT id FROM jobs WHERE id = ?", 404)
	if err != nil {
		t.Fatalf("QueryMap() error = %v", err)
	}
	if row != nil {
		t.Fatalf("row=%v, want nil for an empty result", row)
	}
}

func TestSession_ExecuteFetchNonePopulatesInsertID(t *testing.T) {
	t.Parallel()

	conn := &TestConn{
		ExecFunc: func(context.Context, string, ...any) (Result, error) {
			return NewResult(3, 42), nil
		},
	}
	s := newConnSession(t, conn)

	res, err := s.Execute(context.Background(), "INSERT INTO jobs (name) VALUES (?)", []any{"alpha"}, ShapeSlice, FetchNone)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Affected != 3 {
		t.Fatalf("Affected=%d, want 3", res.Affected)
	}
	if res.InsertID != 42 {
		t.Fatalf("InsertID=%d, want 42", res.InsertID)
	}
}

func TestSession_CursorClosedOnValuesFailure(t *testing.T) {
	t.Parallel()

	rows := NewRows("id").AddRow(int64(1)).Build()
	rows.ValuesErr = errors.New("cell decode failed")
	conn := &TestConn{
		QueryFunc: func(context.Context, string, ...any) (Rows, error) { return rows, nil },
	}
	s := newConnSession(t, conn)

	_, err := s.QueryRows(context.Background(), "SELECT id FROM jobs")
	if err == nil {
		t.Fatal("expected error")
	}
	if !rows.Closed() {
		t.Fatal("expected cursor closed on the failure path")
	}
	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QueryError, got %T", err)
	}
}

func TestSession_CursorClosedOnDeferredCursorError(t *testing.T) {
	t.Parallel()

	cursorErr := errors.New("cursor invalidated")
	rows := NewRows("id").Build()
	rows.NextErr = cursorErr
	conn := &TestConn{
		QueryFunc: func(context.Context, string, ...any) (Rows, error) { return rows, nil },
	}
	s := newConnSession(t, conn)

	_, err := s.QueryRows(context.Background(), "SELECT id FROM jobs")
	if !errors.Is(err, cursorErr) {
		t.Fatalf("error=%v, want cause %v", err, cursorErr)
	}
	if !rows.Closed() {
		t.Fatal("expected cursor closed on the failure path")
	}
}

// partialRows yields its data, then reports a wire failure from Err.
type partialRows struct {
	cols   []string
	data   [][]any
	idx    int
	closed bool
}

func (r *partialRows) Columns() []string { return r.cols }

func (r *partialRows) Next() bool {
	if r.closed || r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *partialRows) Values() ([]any, error) { return r.data[r.idx-1], nil }
func (r *partialRows) Err() error             { return ErrServerGone }
func (r *partialRows) Close()                 { r.closed = true }

func TestSession_RetryStartsFromCleanResult(t *testing.T) {
	t.Parallel()

	stale := &partialRows{cols: []string{"id"}, data: [][]any{{int64(1)}}}
	dying := &TestConn{
		QueryFunc: func(context.Context, string, ...any) (Rows, error) { return stale, nil },
	}
	replacement := &TestConn{
		QueryFunc: func(context.Context, string, ...any) (Rows, error) {
			return NewRows("id").AddRow(int64(7)).AddRow(int64(8)).Build(), nil
		},
	}

	conns := []*TestConn{dying, replacement}
	var acquires int
	drv := &TestDriver{
		AcquireFunc: func(context.Context) (Conn, error) {
			c := conns[acquires]
			acquires++
			return c, nil
		},
	}
	pool := newTestPool(t, drv)

	s, err := pool.Session(context.Background())
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	defer s.Close()

	got, err := s.QueryRows(context.Background(), "SELECT id FROM jobs")
	if err != nil {
		t.Fatalf("QueryRows() error = %v", err)
	}
	want := [][]any{{int64(7)}, {int64(8)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows=%v, want %v (no rows from the failed attempt)", got, want)
	}
	if !stale.closed {
		t.Fatal("expected the failed cursor closed")
	}
}

func TestSession_ConnectionLossIsNotWrappedAsQueryError(t *testing.T) {
	t.Parallel()

	var acquires int
	drv := &TestDriver{
		AcquireFunc: func(context.Context) (Conn, error) {
			acquires++
			return &TestConn{
				ExecFunc: func(context.Context, string, ...any) (Result, error) {
					return nil, ErrServerGone
				},
			}, nil
		},
	}
	pool := newTestPool(t, drv)

	s, err := pool.Session(context.Background())
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	defer s.Close()

	_, err = s.Exec(context.Background(), "UPDATE jobs SET done = 1")
	if !errors.Is(err, ErrServerGone) {
		t.Fatalf("error=%v, want %v", err, ErrServerGone)
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		t.Fatal("connection loss must surface as itself, not as a QueryError")
	}
}

func TestSession_RawCallRoutesByStatementKind(t *testing.T) {
	t.Parallel()

	var queries, execs int
	conn := &TestConn{
		QueryFunc: func(context.Context, string, ...any) (Rows, error) {
			queries++
			return NewRows("id").AddRow(int64(1)).Build(), nil
		},
		ExecFunc: func(context.Context, string, ...any) (Result, error) {
			execs++
			return NewResult(2, 0), nil
		},
	}
	s := newConnSession(t, conn)

	res, err := s.RawCall(context.Background(), "  select id from jobs")
	if err != nil {
		t.Fatalf("RawCall(select) error = %v", err)
	}
	if len(res.Maps) != 1 {
		t.Fatalf("len(maps)=%d, want 1", len(res.Maps))
	}

	res, err = s.RawCall(context.Background(), "UPDATE jobs SET done = 1")
	if err != nil {
		t.Fatalf("RawCall(update) error = %v", err)
	}
	if res.Affected != 2 {
		t.Fatalf("Affected=%d, want 2", res.Affected)
	}

	if queries != 1 || execs != 1 {
		t.Fatalf("queries=%d execs=%d, want 1 and 1", queries, execs)
	}
}

func TestSession_ExecuteLogsQueryAndParams(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)

	queryErr := errors.New("syntax error at or near UPDTE")
	conn := &TestConn{
		ExecFunc: func(context.Context, string, ...any) (Result, error) {
			return nil, queryErr
		},
	}
	drv := &TestDriver{
		AcquireFunc: func(context.Context) (Conn, error) { return conn, nil },
	}
	pool, err := Connect(context.Background(), Config{Database: "testdb"},
		WithDriverPool(drv, drv), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	s, err := pool.Session(context.Background())
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	defer s.Close()

	query := "UPDTE jobs SET state = ?"
	if _, err := s.Exec(context.Background(), query, "done"); err == nil {
		t.Fatal("expected error")
	}

	debugs := logs.FilterMessage("executing query").All()
	if len(debugs) != 1 {
		t.Fatalf("debug entries=%d, want 1", len(debugs))
	}
	if got, want := debugs[0].ContextMap()["query"], query; got != want {
		t.Fatalf("logged query=%v, want %v", got, want)
	}
	if _, ok := debugs[0].ContextMap()["params"]; !ok {
		t.Fatal("expected params field on the execution log")
	}

	failures := logs.FilterMessage("query failed").All()
	if len(failures) != 1 {
		t.Fatalf("failure entries=%d, want 1", len(failures))
	}
	if got, want := failures[0].ContextMap()["query"], query; got != want {
		t.Fatalf("failure query=%v, want %v", got, want)
	}
}
