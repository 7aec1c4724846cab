// Package dbconnector provides a resilient, connection-pooled access layer
// for PostgreSQL, MySQL, and SQLite built on parameter-bound SQL.
//
// Invariants:
//
//   - I1: a registry hands out one live pool per identifier for the process
//     lifetime.
//   - I2: every data-access operation passes through the execution gateway;
//     a transient connection failure triggers exactly one reconnect-and-retry.
//   - I3: values are always parameter-bound; only allow-listed identifiers
//     are ever interpolated into SQL text.
//   - I4: a cursor never outlives the operation that opened it.
//   - I5: connect-path errors are safe to log by default.
//
// The package is a library. It owns no CLI or network surface beyond the
// database drivers it wraps, and leaves log storage, metrics export, and
// schema migration to the application.
package dbconnector
