package dbconnector

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL backend on pgxpool.

func openPostgresPool(ctx context.Context, cfg Config) (DriverPool, Dialect, error) {
	poolCfg, err := pgxpool.ParseConfig(buildPostgresURL(cfg))
	if err != nil {
		return nil, nil, &SafeError{msg: "dbconnector: invalid postgres configuration", cause: err}
	}

	poolCfg.MaxConns = int32(cfg.PoolSize)
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, &SafeError{msg: "dbconnector: open postgres pool failed", cause: err}
	}
	return &pgPool{pool: pool}, pgDialect{}, nil
}

// buildPostgresURL renders cfg as a postgres:// URL. The URL carries the
// password and must never appear in errors or logs.
func buildPostgresURL(cfg Config) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	switch {
	case cfg.User != "" && cfg.Password != "":
		u.User = url.UserPassword(cfg.User, cfg.Password)
	case cfg.User != "":
		u.User = url.User(cfg.User)
	}

	q := url.Values{}
	if cfg.DisableTLS {
		q.Set("sslmode", "disable")
	} else {
		q.Set("sslmode", "prefer")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type pgPool struct {
	pool *pgxpool.Pool
}

func (p *pgPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgConn{conn: conn}, nil
}

func (p *pgPool) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *pgPool) Stat() PoolStat {
	s := p.pool.Stat()
	return PoolStat{
		MaxConns: int(s.MaxConns()),
		Open:     int(s.TotalConns()),
		Idle:     int(s.IdleConns()),
		InUse:    int(s.AcquiredConns()),
	}
}

func (p *pgPool) Close() { p.pool.Close() }

type pgConn struct {
	conn      *pgxpool.Conn
	tx        pgx.Tx
	discarded bool
}

func (c *pgConn) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if c.tx != nil {
		tag, err = c.tx.Exec(ctx, query, args...)
	} else {
		tag, err = c.conn.Exec(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	return pgResult{tag: tag}, nil
}

func (c *pgConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if c.tx != nil {
		rows, err = c.tx.Query(ctx, query, args...)
	} else {
		rows, err = c.conn.Query(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	return &pgRows{rows: rows}, nil
}

func (c *pgConn) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

func (c *pgConn) Alive() bool {
	return !c.discarded && !c.conn.Conn().IsClosed()
}

func (c *pgConn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errors.New("dbconnector: transaction already open")
	}
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

func (c *pgConn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return errNoTransaction
	}
	err := c.tx.Commit(ctx)
	c.tx = nil
	return err
}

func (c *pgConn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return errNoTransaction
	}
	err := c.tx.Rollback(ctx)
	c.tx = nil
	return err
}

func (c *pgConn) InTx() bool { return c.tx != nil }

func (c *pgConn) Release() {
	c.tx = nil
	c.conn.Release()
}

// Discard closes the wire connection before releasing, so the pool
// destroys the slot instead of recycling a dead handle.
func (c *pgConn) Discard() {
	if c.discarded {
		return
	}
	c.discarded = true
	c.tx = nil

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.conn.Conn().Close(ctx)
	c.conn.Release()
}

type pgRows struct {
	rows pgx.Rows
	cols []string
}

func (r *pgRows) Columns() []string {
	if r.cols == nil {
		fields := r.rows.FieldDescriptions()
		r.cols = make([]string, len(fields))
		for i, f := range fields {
			r.cols[i] = f.Name
		}
	}
	return r.cols
}

func (r *pgRows) Next() bool             { return r.rows.Next() }
func (r *pgRows) Values() ([]any, error) { return r.rows.Values() }
func (r *pgRows) Err() error             { return r.rows.Err() }
func (r *pgRows) Close()                 { r.rows.Close() }

type pgResult struct {
	tag pgconn.CommandTag
}

func (r pgResult) RowsAffected() int64 { return r.tag.RowsAffected() }

func (r pgResult) LastInsertID() (int64, error) {
	return 0, errors.New("dbconnector: postgres reports insert ids via RETURNING")
}

type pgDialect struct{}

func (pgDialect) Driver() Driver { return DriverPostgres }

func (pgDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (pgDialect) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (pgDialect) UsesReturning() bool { return true }

func (pgDialect) PrimaryKeyQuery(table string) (string, []any) {
	const q = `SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY'
  AND tc.table_schema = current_schema()
  AND tc.table_name = $1
ORDER BY kcu.ordinal_position`
	return q, []any{table}
}

func (pgDialect) ColumnsQuery(table string) (string, []any) {
	const q = `SELECT column_name
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`
	return q, []any{table}
}

func (pgDialect) TablesQuery() (string, []any) {
	const q = `SELECT table_name
FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`
	return q, nil
}

// IsTransient classifies connection-level failures. Class 08 covers the
// connection-exception states; 57P01..57P03 are server shutdown notices.
// Cancellation is the caller's signal, not a dead connection.
func (pgDialect) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		switch pgErr.Code {
		case "57P01", "57P02", "57P03":
			return true
		}
		return false
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

var (
	_ DriverPool = (*pgPool)(nil)
	_ Conn       = (*pgConn)(nil)
	_ Rows       = (*pgRows)(nil)
	_ Result     = (pgResult{})
	_ Dialect    = (pgDialect{})
)
