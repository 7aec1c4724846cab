package dbconnector

import (
	"context"
	"time"
)

const defaultRollbackTimeout = 5 * time.Second

// Pinger is anything that can probe database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus is the response type for health check endpoints.
type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthCheck verifies database connectivity and returns a status
// suitable for health check API endpoints.
func HealthCheck(ctx context.Context, p Pinger) (*HealthStatus, error) {
	if err := p.Ping(ctx); err != nil {
		return nil, &SafeError{msg: "dbconnector: health check failed", cause: err}
	}

	status := &HealthStatus{Status: "ok", Database: "dbconnector"}
	if pool, ok := p.(*Pool); ok {
		status.Database = string(pool.Driver())
	}
	return status, nil
}

// RunInTx executes fn within a transaction on s. If fn returns an error
// or panics, the transaction is rolled back. Otherwise, it is committed.
func RunInTx(ctx context.Context, s *Session, fn func(*Session) error) (err error) {
	if err := s.Begin(ctx); err != nil {
		return &SafeError{msg: "dbconnector: begin tx failed", cause: err}
	}

	rollbackCtx, cancelRollback := context.WithTimeout(context.Background(), defaultRollbackTimeout)
	defer cancelRollback()

	defer func() {
		if p := recover(); p != nil {
			_ = s.Rollback(rollbackCtx)
			panic(p)
		}
		if err != nil {
			_ = s.Rollback(rollbackCtx)
		}
	}()

	err = fn(s)
	if err != nil {
		return err
	}

	if err := s.Commit(ctx); err != nil {
		return &SafeError{msg: "dbconnector: commit tx failed", cause: err}
	}

	return nil
}
