package dbconnector

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Session is one borrowed connection plus the resilience gateway every
// operation runs through. A Session serves one goroutine at a time; for
// one-shot work prefer Pool.WithSession.
type Session struct {
	pool *Pool
	log  *zap.Logger
	conn Conn
}

// ensure leaves the session holding a usable connection or returns
// ErrConnectionUnavailable. A held connection is probed before reuse; a
// failed probe discards it and falls through to a fresh acquire.
func (s *Session) ensure(ctx context.Context) error {
	if s.conn != nil {
		if s.conn.Alive() && s.probe(ctx) {
			return nil
		}
		s.conn.Discard()
		s.conn = nil
	}
	if err := ctx.Err(); err != nil {
		return connUnavailable(err)
	}

	conn, err := s.pool.drv.Acquire(ctx)
	if err == nil && conn.Alive() {
		s.conn = conn
		return nil
	}
	if err == nil {
		conn.Discard()
		err = errors.New("dbconnector: acquired a dead connection")
	}
	if ctx.Err() != nil {
		return connUnavailable(err)
	}
	return s.forceReconnect(ctx)
}

// probe rechecks a held connection with up to PingAttempts server round
// trips, pausing PingDelay between attempts.
func (s *Session) probe(ctx context.Context) bool {
	cfg := s.pool.cfg
	for attempt := 1; attempt <= cfg.PingAttempts; attempt++ {
		err := s.conn.Ping(ctx)
		if err == nil {
			return true
		}
		s.log.Debug("connection probe failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == cfg.PingAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(cfg.PingDelay):
		}
	}
	return false
}

// forceReconnect is the last resort after a failed acquire or a dead
// connection: discard whatever is held, acquire once more, and verify the
// replacement with a ping before trusting it.
func (s *Session) forceReconnect(ctx context.Context) error {
	if s.conn != nil {
		s.conn.Discard()
		s.conn = nil
	}

	conn, err := s.pool.drv.Acquire(ctx)
	if err != nil {
		return connUnavailable(err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Discard()
		return connUnavailable(err)
	}
	s.conn = conn
	return nil
}

// run executes op through the resilience gateway: at most one reconnect
// and one re-execution when the connection dies mid-operation. Query
// errors pass through without a retry, and a failed reconnect re-raises
// the original error.
func (s *Session) run(ctx context.Context, op func(Conn) error) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	err := op(s.conn)
	if err == nil || !s.pool.dialect.IsTransient(err) {
		return err
	}

	s.log.Warn("connection lost mid-operation; reconnecting once",
		zap.Error(err),
	)
	if rerr := s.forceReconnect(ctx); rerr != nil {
		return err
	}
	return op(s.conn)
}

// Begin opens a transaction on the session's connection. Statements
// issued through the session run inside it until Commit or Rollback.
func (s *Session) Begin(ctx context.Context) error {
	return s.run(ctx, func(c Conn) error {
		return c.Begin(ctx)
	})
}

// Commit commits the open transaction. Committing with none open is a
// no-op. A commit whose connection died is never replayed on a fresh
// connection: the server already rolled the transaction back, and an
// empty re-commit would report false success.
func (s *Session) Commit(ctx context.Context) error {
	if s.conn == nil || !s.conn.InTx() {
		s.log.Debug("commit with no open transaction")
		return nil
	}

	err := s.conn.Commit(ctx)
	if err == nil {
		return nil
	}
	if s.pool.dialect.IsTransient(err) {
		s.log.Warn("connection lost during commit; transaction rolled back by the server",
			zap.Error(err),
		)
		s.conn.Discard()
		s.conn = nil
		return err
	}
	s.log.Error("commit failed", zap.Error(err))
	return err
}

// Rollback rolls the open transaction back. Rolling back with none open
// is a no-op. A connection that died mid-rollback already had its
// transaction rolled back by the server, so that case counts as success.
func (s *Session) Rollback(ctx context.Context) error {
	if s.conn == nil || !s.conn.InTx() {
		s.log.Debug("rollback with no open transaction")
		return nil
	}

	err := s.conn.Rollback(ctx)
	if err == nil {
		return nil
	}
	if s.pool.dialect.IsTransient(err) {
		s.log.Warn("connection lost during rollback; transaction rolled back by the server",
			zap.Error(err),
		)
		s.conn.Discard()
		s.conn = nil
		return nil
	}
	s.log.Error("rollback failed", zap.Error(err))
	return err
}

// InTx reports whether the session has an open transaction.
func (s *Session) InTx() bool {
	return s.conn != nil && s.conn.InTx()
}

// Close returns the session's connection to the pool, rolling back an
// abandoned open transaction first. Close never reports an error; release
// problems are logged so they cannot mask the caller's own result.
func (s *Session) Close() {
	if s.conn == nil {
		return
	}
	conn := s.conn
	s.conn = nil

	if conn.InTx() {
		s.log.Warn("session closed with open transaction; rolling back")
		ctx, cancel := context.WithTimeout(context.Background(), defaultRollbackTimeout)
		defer cancel()
		if err := conn.Rollback(ctx); err != nil {
			s.log.Warn("rollback of abandoned transaction failed", zap.Error(err))
			conn.Discard()
			return
		}
	}

	if conn.Alive() {
		conn.Release()
	} else {
		conn.Discard()
	}
}

// quote validates name against the identifier allow-list and quotes it
// for the session's backend.
func (s *Session) quote(name string) (string, error) {
	return quoteIdent(s.pool.dialect, name)
}
