package dbconnector

import (
	"errors"
	"fmt"
)

// SafeError wraps a cause with an error string safe for default production
// logging. The wrapped cause may still contain sensitive detail.
type SafeError struct {
	msg   string
	cause error
}

func (e *SafeError) Error() string { return e.msg }
func (e *SafeError) Unwrap() error { return e.cause }

// ErrConnectionUnavailable reports that no live connection could be
// produced: the pool was exhausted or every reconnect attempt failed.
// Fatal for the current operation.
var ErrConnectionUnavailable = errors.New("dbconnector: connection unavailable")

// ErrUnsafeIdentifier reports a table or column name that failed the
// identifier allow-list. The statement is never sent to the driver.
var ErrUnsafeIdentifier = errors.New("dbconnector: unsafe identifier")

// errNoTransaction is returned by driver connections when Commit or
// Rollback runs without an open transaction.
var errNoTransaction = errors.New("dbconnector: no open transaction")

// connUnavailable builds the sanitized ErrConnectionUnavailable wrapper.
// cause may carry host or credential detail and stays out of Error().
func connUnavailable(cause error) error {
	return &SafeError{
		msg:   ErrConnectionUnavailable.Error(),
		cause: errors.Join(ErrConnectionUnavailable, cause),
	}
}

// QueryError reports a non-transient execution failure: bad SQL, a
// constraint violation, a type mismatch. It is never retried; the failing
// query and parameters are logged before it is returned.
type QueryError struct {
	Query string
	Cause error
}

func (e *QueryError) Error() string { return "dbconnector: query failed: " + e.Cause.Error() }
func (e *QueryError) Unwrap() error { return e.Cause }

// SchemaError reports a structural problem with a table: no discoverable
// primary key, or a table the catalog does not know. Structural failures
// are hard errors, never sentinels.
type SchemaError struct {
	Table  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("dbconnector: table %q: %s", e.Table, e.Reason)
}
