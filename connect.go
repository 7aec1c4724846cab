package dbconnector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Option configures Connect for advanced use cases.
type Option func(*connectOptions)

type connectOptions struct {
	logger  *zap.Logger
	driver  DriverPool
	dialect Dialect
}

// WithLogger routes connection and query logging through log. The default
// discards all output.
func WithLogger(log *zap.Logger) Option {
	return func(o *connectOptions) {
		o.logger = log
	}
}

// WithDriverPool substitutes a caller-built backend for the built-in
// drivers. Connect skips DSN construction and pool opening; cfg still
// supplies the probe and pool knobs.
func WithDriverPool(drv DriverPool, dialect Dialect) Option {
	return func(o *connectOptions) {
		o.driver = drv
		o.dialect = dialect
	}
}

// Connect opens a connection pool for cfg and verifies it with one ping.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Pool, error) {
	var o connectOptions
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	drv, dialect := o.driver, o.dialect
	if drv != nil && dialect == nil {
		return nil, errors.New("dbconnector: WithDriverPool requires a dialect")
	}

	if drv == nil {
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		cfg = cfg.withDefaults()

		var err error
		drv, dialect, err = openDriverPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = cfg.withDefaults()
	}

	log := o.logger.With(
		zap.String("component", "dbconnector"),
		zap.String("driver", string(dialect.Driver())),
	)

	if err := drv.Ping(ctx); err != nil {
		drv.Close()
		// SECURITY: cause may include DSN detail; keep outer error safe.
		return nil, &SafeError{
			msg:   fmt.Sprintf("dbconnector: initial ping failed (target=%s)", connectTarget(cfg)),
			cause: err,
		}
	}

	log.Info("connection pool opened",
		zap.String("database", cfg.Database),
		zap.Int("pool_size", cfg.PoolSize),
	)

	return &Pool{
		cfg:     cfg,
		drv:     drv,
		dialect: dialect,
		log:     log,
		schema:  newSchemaCache(),
	}, nil
}

// connectTarget names what the pool points at: host for the server
// drivers, file path for sqlite. Never includes credentials.
func connectTarget(cfg Config) string {
	if cfg.Driver == DriverSQLite {
		if cfg.Path != "" {
			return cfg.Path
		}
		return cfg.Database
	}
	return cfg.Host
}
