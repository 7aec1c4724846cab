package dbconnector

import (
	"context"

	"go.uber.org/zap"
)

// Pool owns one driver pool plus the shared schema cache for its database.
// It intentionally wraps (does not embed) the backend pool. Pools are safe
// for concurrent use; Sessions handed out by them are not.
type Pool struct {
	cfg     Config
	drv     DriverPool
	dialect Dialect
	log     *zap.Logger
	schema  *schemaCache
}

// Driver reports which backend the pool talks to.
func (p *Pool) Driver() Driver { return p.dialect.Driver() }

// Stat returns a snapshot of pool statistics.
func (p *Pool) Stat() PoolStat { return p.drv.Stat() }

// Ping probes the database with a server round trip.
func (p *Pool) Ping(ctx context.Context) error { return p.drv.Ping(ctx) }

// Close shuts the pool down and closes every idle connection. In-flight
// sessions finish on their borrowed connections.
func (p *Pool) Close() {
	p.drv.Close()
	p.log.Info("connection pool closed", zap.String("database", p.cfg.Database))
}

// Session borrows a connection and returns the handle all queries run
// through. The caller must Close it; WithSession does both.
func (p *Pool) Session(ctx context.Context) (*Session, error) {
	s := &Session{pool: p, log: p.log}
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// WithSession runs fn inside a session and always releases the connection
// afterwards, whether fn succeeds or not.
func (p *Pool) WithSession(ctx context.Context, fn func(*Session) error) error {
	s, err := p.Session(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
