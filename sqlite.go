package dbconnector

import (
	"context"
	"database/sql/driver"
	"errors"
	"net/url"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite backend on mattn/go-sqlite3 through database/sql.

func openSQLitePool(_ context.Context, cfg Config) (DriverPool, Dialect, error) {
	pool, err := openSQLPool("sqlite3", buildSQLiteDSN(cfg), cfg)
	if err != nil {
		return nil, nil, &SafeError{msg: "dbconnector: open sqlite pool failed", cause: err}
	}
	return pool, sqliteDialect{}, nil
}

func buildSQLiteDSN(cfg Config) string {
	path := cfg.Path
	if path == "" {
		path = cfg.Database
	}
	q := url.Values{}
	q.Set("_busy_timeout", "5000")
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "on")
	return "file:" + path + "?" + q.Encode()
}

type sqliteDialect struct{}

func (sqliteDialect) Driver() Driver { return DriverSQLite }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteDialect) UsesReturning() bool { return false }

func (sqliteDialect) PrimaryKeyQuery(table string) (string, []any) {
	const q = `SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`
	return q, []any{table}
}

func (sqliteDialect) ColumnsQuery(table string) (string, []any) {
	const q = `SELECT name FROM pragma_table_info(?) ORDER BY cid`
	return q, []any{table}
}

func (sqliteDialect) TablesQuery() (string, []any) {
	const q = `SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`
	return q, nil
}

// IsTransient is narrow for a file-backed database: there is no wire to
// lose, so only a handle the pool already condemned counts.
func (sqliteDialect) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, driver.ErrBadConn)
}

var _ Dialect = (sqliteDialect{})
