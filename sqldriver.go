package dbconnector

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"
)

// Shared database/sql backend. The mysql and sqlite pools differ only in
// DSN construction and Dialect; the pool, connection, and cursor adapters
// below are common.

func openSQLPool(driverName, dsn string, cfg Config) (*sqlPool, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(cfg.PoolSize)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &sqlPool{db: db}, nil
}

type sqlPool struct {
	db *sql.DB
}

func (p *sqlPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlConn{conn: conn}, nil
}

func (p *sqlPool) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *sqlPool) Stat() PoolStat {
	s := p.db.Stats()
	return PoolStat{
		MaxConns: s.MaxOpenConnections,
		Open:     s.OpenConnections,
		Idle:     s.Idle,
		InUse:    s.InUse,
	}
}

func (p *sqlPool) Close() { _ = p.db.Close() }

type sqlConn struct {
	conn      *sql.Conn
	tx        *sql.Tx
	released  bool
	discarded bool
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	var (
		res sql.Result
		err error
	)
	if c.tx != nil {
		res, err = c.tx.ExecContext(ctx, query, args...)
	} else {
		res, err = c.conn.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	return sqlResult{res: res}, nil
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if c.tx != nil {
		rows, err = c.tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = c.conn.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (c *sqlConn) Ping(ctx context.Context) error { return c.conn.PingContext(ctx) }

func (c *sqlConn) Alive() bool { return !c.released && !c.discarded }

func (c *sqlConn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errors.New("dbconnector: transaction already open")
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

func (c *sqlConn) Commit(context.Context) error {
	if c.tx == nil {
		return errNoTransaction
	}
	err := c.tx.Commit()
	c.tx = nil
	return err
}

func (c *sqlConn) Rollback(context.Context) error {
	if c.tx == nil {
		return errNoTransaction
	}
	err := c.tx.Rollback()
	c.tx = nil
	return err
}

func (c *sqlConn) InTx() bool { return c.tx != nil }

func (c *sqlConn) Release() {
	if c.released || c.discarded {
		return
	}
	c.released = true
	c.tx = nil
	_ = c.conn.Close()
}

// Discard marks the driver connection bad before closing, so the pool
// destroys it instead of recycling a dead handle.
func (c *sqlConn) Discard() {
	if c.released || c.discarded {
		return
	}
	c.discarded = true
	c.tx = nil
	_ = c.conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = c.conn.Close()
}

type sqlRows struct {
	rows *sql.Rows
	cols []string
}

func (r *sqlRows) Columns() []string {
	if r.cols == nil {
		cols, err := r.rows.Columns()
		if err != nil {
			return nil
		}
		r.cols = cols
	}
	return r.cols
}

func (r *sqlRows) Next() bool { return r.rows.Next() }

func (r *sqlRows) Values() ([]any, error) {
	cols := r.Columns()
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	// Text columns surface as []byte through database/sql; normalize to
	// string so results compare and log cleanly.
	for i, v := range vals {
		if b, ok := v.([]byte); ok {
			vals[i] = string(b)
		}
	}
	return vals, nil
}

func (r *sqlRows) Err() error { return r.rows.Err() }
func (r *sqlRows) Close()     { _ = r.rows.Close() }

type sqlResult struct {
	res sql.Result
}

func (r sqlResult) RowsAffected() int64 {
	n, err := r.res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func (r sqlResult) LastInsertID() (int64, error) { return r.res.LastInsertId() }

var (
	_ DriverPool = (*sqlPool)(nil)
	_ Conn       = (*sqlConn)(nil)
	_ Rows       = (*sqlRows)(nil)
	_ Result     = (sqlResult{})
)
