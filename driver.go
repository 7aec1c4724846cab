package dbconnector

import (
	"context"
	"fmt"
	"regexp"
)

// The driver capability boundary. Each backend adapts its native client to
// these interfaces and the execution core depends on nothing else, so
// application code stays testable (via TestDriver) and decoupled from any
// one database client.

// Rows is a forward-only cursor over a result set. The caller must close
// it; the query layer does so on every exit path.
type Rows interface {
	// Columns returns the result column names in result order.
	Columns() []string

	// Next advances to the next row, returning false when exhausted.
	Next() bool

	// Values returns the current row as a value slice in column order.
	Values() ([]any, error)

	// Err returns the first error encountered during iteration.
	Err() error

	// Close releases the cursor. Safe to call more than once.
	Close()
}

// Result describes the outcome of a statement that returns no rows.
type Result interface {
	RowsAffected() int64

	// LastInsertID returns the auto-generated id of an INSERT on backends
	// that report one through the protocol.
	LastInsertID() (int64, error)
}

// Conn is one borrowed connection. A Conn is lent to exactly one session
// at a time and is not safe for concurrent use.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)

	// Ping probes liveness with a server round trip.
	Ping(ctx context.Context) error

	// Alive reports whether the handle still looks usable. It is a local
	// check; only Ping talks to the server.
	Alive() bool

	// Begin opens a transaction on this connection, one at a time.
	// Statements issued while it is open run inside it.
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// InTx reports whether a transaction is open.
	InTx() bool

	// Release returns the connection to its pool for reuse.
	Release()

	// Discard closes the underlying connection instead of recycling it.
	Discard()
}

// DriverPool hands out Conns up to its configured bound, blocking while
// exhausted until one is returned or ctx is done.
type DriverPool interface {
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	Stat() PoolStat
	Close()
}

// PoolStat is a point-in-time pool snapshot.
type PoolStat struct {
	MaxConns int
	Open     int
	Idle     int
	InUse    int
}

// Dialect carries the per-backend SQL surface: bind-marker form,
// identifier quoting, catalog queries, and the classification separating
// dead-connection errors from query errors.
type Dialect interface {
	Driver() Driver

	// Placeholder returns the bind marker for 1-based position n.
	Placeholder(n int) string

	// QuoteIdentifier quotes an already validated identifier.
	QuoteIdentifier(name string) string

	// UsesReturning reports whether INSERT ids come from a RETURNING
	// clause rather than Result.LastInsertID.
	UsesReturning() bool

	// PrimaryKeyQuery returns the parameterized catalog query whose first
	// row, first column is the table's primary-key column name.
	PrimaryKeyQuery(table string) (string, []any)

	// ColumnsQuery returns the parameterized catalog query producing the
	// table's column names in ordinal order.
	ColumnsQuery(table string) (string, []any)

	// TablesQuery returns the catalog query listing table names.
	TablesQuery() (string, []any)

	// IsTransient reports whether err means the connection died, as
	// opposed to the query being rejected. Context cancellation is never
	// transient.
	IsTransient(err error) bool
}

// openDriverPool is a package-private seam used by tests to force
// deterministic pool-construction outcomes without network dependencies.
var openDriverPool = defaultOpenDriverPool

func defaultOpenDriverPool(ctx context.Context, cfg Config) (DriverPool, Dialect, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return openPostgresPool(ctx, cfg)
	case DriverMySQL:
		return openMySQLPool(ctx, cfg)
	case DriverSQLite:
		return openSQLitePool(ctx, cfg)
	default:
		return nil, nil, fmt.Errorf("dbconnector: unknown driver %q", cfg.Driver)
	}
}

// identPattern is the identifier allow-list: unqualified SQL identifiers
// only. Anything else never reaches the driver.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteIdent validates name against the allow-list and quotes it for d.
func quoteIdent(d Dialect, name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeIdentifier, name)
	}
	return d.QuoteIdentifier(name), nil
}
