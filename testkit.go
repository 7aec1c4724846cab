package dbconnector

import (
	"context"
	"errors"
)

// ErrNotMocked is returned when a TestDriver or TestConn method is called
// without a corresponding Func field set.
var ErrNotMocked = errors.New("dbconnector: method not mocked: set the corresponding Func field")

// ErrServerGone simulates a dropped connection. TestDriver's default
// transient classification recognizes it.
var ErrServerGone = errors.New("dbconnector: server has gone away")

// TestDriver is a mock backend for unit tests. It implements both
// DriverPool and Dialect so one value can be injected through
// WithDriverPool.
type TestDriver struct {
	AcquireFunc   func(ctx context.Context) (Conn, error)
	PingFunc      func(ctx context.Context) error
	StatFunc      func() PoolStat
	CloseFunc     func()
	TransientFunc func(err error) bool
}

var (
	_ DriverPool = (*TestDriver)(nil)
	_ Dialect    = (*TestDriver)(nil)
)

func (t *TestDriver) Acquire(ctx context.Context) (Conn, error) {
	if t.AcquireFunc != nil {
		return t.AcquireFunc(ctx)
	}
	return nil, ErrNotMocked
}

func (t *TestDriver) Ping(ctx context.Context) error {
	if t.PingFunc != nil {
		return t.PingFunc(ctx)
	}
	return nil
}

func (t *TestDriver) Stat() PoolStat {
	if t.StatFunc != nil {
		return t.StatFunc()
	}
	return PoolStat{}
}

func (t *TestDriver) Close() {
	if t.CloseFunc != nil {
		t.CloseFunc()
	}
}

func (t *TestDriver) Driver() Driver { return Driver("test") }

func (t *TestDriver) Placeholder(int) string { return "?" }

func (t *TestDriver) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (t *TestDriver) UsesReturning() bool { return false }

func (t *TestDriver) PrimaryKeyQuery(table string) (string, []any) {
	return "SELECT pk_name FROM fake_catalog WHERE table_name = ?", []any{table}
}

func (t *TestDriver) ColumnsQuery(table string) (string, []any) {
	return "SELECT col_name FROM fake_catalog_columns WHERE table_name = ?", []any{table}
}

func (t *TestDriver) TablesQuery() (string, []any) {
	return "SELECT table_name FROM fake_catalog", nil
}

func (t *TestDriver) IsTransient(err error) bool {
	if t.TransientFunc != nil {
		return t.TransientFunc(err)
	}
	return errors.Is(err, ErrServerGone)
}

// TestConn is a mock connection for unit tests. Query and Exec fail with
// ErrNotMocked unless mocked; the terminal methods record instead.
type TestConn struct {
	ExecFunc     func(ctx context.Context, query string, args ...any) (Result, error)
	QueryFunc    func(ctx context.Context, query string, args ...any) (Rows, error)
	PingFunc     func(ctx context.Context) error
	AliveFunc    func() bool
	BeginFunc    func(ctx context.Context) error
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error

	Released  bool
	Discarded bool

	tx bool
}

var _ Conn = (*TestConn)(nil)

func (c *TestConn) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	if c.ExecFunc != nil {
		return c.ExecFunc(ctx, query, args...)
	}
	return nil, ErrNotMocked
}

func (c *TestConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if c.QueryFunc != nil {
		return c.QueryFunc(ctx, query, args...)
	}
	return nil, ErrNotMocked
}

func (c *TestConn) Ping(ctx context.Context) error {
	if c.PingFunc != nil {
		return c.PingFunc(ctx)
	}
	return nil
}

func (c *TestConn) Alive() bool {
	if c.AliveFunc != nil {
		return c.AliveFunc()
	}
	return !c.Released && !c.Discarded
}

func (c *TestConn) Begin(ctx context.Context) error {
	if c.BeginFunc != nil {
		if err := c.BeginFunc(ctx); err != nil {
			return err
		}
	}
	c.tx = true
	return nil
}

func (c *TestConn) Commit(ctx context.Context) error {
	if !c.tx {
		return errNoTransaction
	}
	c.tx = false
	if c.CommitFunc != nil {
		return c.CommitFunc(ctx)
	}
	return nil
}

func (c *TestConn) Rollback(ctx context.Context) error {
	if !c.tx {
		return errNoTransaction
	}
	c.tx = false
	if c.RollbackFunc != nil {
		return c.RollbackFunc(ctx)
	}
	return nil
}

func (c *TestConn) InTx() bool { return c.tx }

func (c *TestConn) Release() { c.Released = true }

func (c *TestConn) Discard() { c.Discarded = true }

// NewResult builds a Result with fixed affected and insert id values.
func NewResult(affected, insertID int64) Result {
	return testResult{affected: affected, insertID: insertID}
}

type testResult struct {
	affected int64
	insertID int64
}

func (r testResult) RowsAffected() int64          { return r.affected }
func (r testResult) LastInsertID() (int64, error) { return r.insertID, nil }

// RowsBuilder builds Rows backed by in-memory data.
type RowsBuilder struct {
	columns []string
	rows    [][]any
}

// NewRows creates a new RowsBuilder over the named columns.
func NewRows(columns ...string) *RowsBuilder {
	return &RowsBuilder{columns: columns}
}

// AddRow appends a row. It panics on arity mismatch.
func (b *RowsBuilder) AddRow(values ...any) *RowsBuilder {
	if len(values) != len(b.columns) {
		panic("dbconnector: RowsBuilder column count mismatch")
	}
	b.rows = append(b.rows, values)
	return b
}

// Build returns a cursor over the builder data.
func (b *RowsBuilder) Build() *FakeRows {
	return &FakeRows{
		columns: b.columns,
		data:    b.rows,
		idx:     -1,
	}
}

// FakeRows is an in-memory Rows implementation. NextErr and ValuesErr
// inject failures mid-iteration.
type FakeRows struct {
	columns []string
	data    [][]any
	idx     int
	closed  bool

	// NextErr stops iteration immediately and surfaces from Err.
	NextErr error

	// ValuesErr fails every Values call.
	ValuesErr error
}

var _ Rows = (*FakeRows)(nil)

func (r *FakeRows) Columns() []string { return r.columns }

func (r *FakeRows) Next() bool {
	if r.closed || r.NextErr != nil {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *FakeRows) Values() ([]any, error) {
	if r.ValuesErr != nil {
		return nil, r.ValuesErr
	}
	if r.idx < 0 || r.idx >= len(r.data) {
		return nil, errors.New("dbconnector: no current row")
	}
	return r.data[r.idx], nil
}

func (r *FakeRows) Err() error { return r.NextErr }

func (r *FakeRows) Close() { r.closed = true }

// Closed reports whether Close was called, for cursor-discipline asserts.
func (r *FakeRows) Closed() bool { return r.closed }

// ErrRows implements Rows and always returns the configured error.
type ErrRows struct {
	// ErrValue is returned by Err and Values.
	ErrValue error

	closed bool
}

var _ Rows = (*ErrRows)(nil)

func (r *ErrRows) Columns() []string      { return nil }
func (r *ErrRows) Next() bool             { return false }
func (r *ErrRows) Values() ([]any, error) { return nil, r.ErrValue }
func (r *ErrRows) Err() error             { return r.ErrValue }
func (r *ErrRows) Close()                 { r.closed = true }

// Closed reports whether Close was called.
func (r *ErrRows) Closed() bool { return r.closed }
