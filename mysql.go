package dbconnector

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL backend on go-sql-driver through database/sql.

func openMySQLPool(_ context.Context, cfg Config) (DriverPool, Dialect, error) {
	pool, err := openSQLPool("mysql", buildMySQLDSN(cfg), cfg)
	if err != nil {
		return nil, nil, &SafeError{msg: "dbconnector: open mysql pool failed", cause: err}
	}
	return pool, mysqlDialect{}, nil
}

// buildMySQLDSN renders cfg as a go-sql-driver DSN. The DSN carries the
// password and must never appear in errors or logs.
func buildMySQLDSN(cfg Config) string {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.Timeout = cfg.ConnectTimeout
	mc.ParseTime = true
	if !cfg.DisableTLS {
		mc.TLSConfig = "preferred"
	}
	return mc.FormatDSN()
}

type mysqlDialect struct{}

func (mysqlDialect) Driver() Driver { return DriverMySQL }

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlDialect) UsesReturning() bool { return false }

func (mysqlDialect) PrimaryKeyQuery(table string) (string, []any) {
	const q = `SELECT column_name
FROM information_schema.key_column_usage
WHERE table_schema = DATABASE()
  AND table_name = ?
  AND constraint_name = 'PRIMARY'
ORDER BY ordinal_position`
	return q, []any{table}
}

func (mysqlDialect) ColumnsQuery(table string) (string, []any) {
	const q = `SELECT column_name
FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`
	return q, []any{table}
}

func (mysqlDialect) TablesQuery() (string, []any) {
	const q = `SELECT table_name
FROM information_schema.tables
WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
ORDER BY table_name`
	return q, nil
}

// IsTransient classifies connection-level failures. The driver reports a
// broken wire as ErrInvalidConn; 1053, 1152, and 1927 are the server-side
// shutdown and killed-connection states. Cancellation is the caller's
// signal, not a dead connection.
func (mysqlDialect) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1053, 1152, 1927:
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

var _ Dialect = (mysqlDialect{})
