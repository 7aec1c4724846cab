package dbconnector

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry hands out one shared Pool per name. Repeated GetPool calls with
// the same name return the same Pool instance; the config is read only
// when the pool is first constructed.
type Registry struct {
	opts []Option

	mu    sync.Mutex
	pools map[string]*Pool
}

// NewRegistry builds an empty registry. opts apply to every pool the
// registry constructs.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		opts:  opts,
		pools: make(map[string]*Pool),
	}
}

// GetPool returns the pool registered under name, constructing it from cfg
// on first use. Later calls ignore cfg; the registered pool wins even when
// a different cfg is passed. The lock is held across construction so
// concurrent first calls build exactly one pool.
func (r *Registry) GetPool(ctx context.Context, name string, cfg Config) (*Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pool, ok := r.pools[name]; ok {
		return pool, nil
	}

	pool, err := Connect(ctx, cfg, r.opts...)
	if err != nil {
		return nil, err
	}
	pool.log.Info("pool registered", zap.String("name", name))
	r.pools[name] = pool
	return pool, nil
}

// Names lists registered pool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close shuts down every registered pool and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, pool := range r.pools {
		pool.Close()
		delete(r.pools, name)
	}
}
