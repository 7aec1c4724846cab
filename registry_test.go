package dbconnector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegistry_GetPoolReturnsSameInstance(t *testing.T) {
	t.Parallel()

	drv := &TestDriver{}
	reg := NewRegistry(WithDriverPool(drv, drv))

	first, err := reg.GetPool(context.Background(), "archive", Config{Database: "film"})
	if err != nil {
		t.Fatalf("GetPool() error = %v", err)
	}
	second, err := reg.GetPool(context.Background(), "archive", Config{Database: "completely-different"})
	if err != nil {
		t.Fatalf("GetPool() error = %v", err)
	}
	if first != second {
		t.Fatal("expected the same pool instance for the same name")
	}
}

func TestRegistry_DistinctNamesGetDistinctPools(t *testing.T) {
	t.Parallel()

	drv := &TestDriver{}
	reg := NewRegistry(WithDriverPool(drv, drv))

	a, err := reg.GetPool(context.Background(), "a", Config{Database: "a"})
	if err != nil {
		t.Fatalf("GetPool(a) error = %v", err)
	}
	b, err := reg.GetPool(context.Background(), "b", Config{Database: "b"})
	if err != nil {
		t.Fatalf("GetPool(b) error = %v", err)
	}
	if a == b {
		t.Fatal("expected distinct pools for distinct names")
	}
}

func TestRegistry_ConcurrentGetPoolBuildsOnce(t *testing.T) {
	t.Parallel()

	var pings atomic.Int32
	drv := &TestDriver{
		PingFunc: func(context.Context) error {
			pings.Add(1)
			return nil
		},
	}
	reg := NewRegistry(WithDriverPool(drv, drv))

	const workers = 16
	pools := make([]*Pool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pool, err := reg.GetPool(context.Background(), "shared", Config{})
			if err != nil {
				t.Errorf("GetPool() error = %v", err)
				return
			}
			pools[i] = pool
		}(i)
	}
	wg.Wait()

	if got := pings.Load(); got != 1 {
		t.Fatalf("constructions=%d, want 1", got)
	}
	for i := 1; i < workers; i++ {
		if pools[i] != pools[0] {
			t.Fatalf("pool %d differs from pool 0", i)
		}
	}
}

func TestRegistry_NamesSortedAndCloseEmpties(t *testing.T) {
	t.Parallel()

	var closes int
	drv := &TestDriver{CloseFunc: func() { closes++ }}
	reg := NewRegistry(WithDriverPool(drv, drv))

	for _, name := range []string{"zebra", "alpha", "middle"} {
		if _, err := reg.GetPool(context.Background(), name, Config{}); err != nil {
			t.Fatalf("GetPool(%q) error = %v", name, err)
		}
	}

	got := reg.Names()
	want := []string{"alpha", "middle", "zebra"}
	if len(got) != len(want) {
		t.Fatalf("names=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names=%v, want %v", got, want)
		}
	}

	reg.Close()
	if closes != 3 {
		t.Fatalf("closes=%d, want 3", closes)
	}
	if n := reg.Names(); len(n) != 0 {
		t.Fatalf("names after close=%v, want empty", n)
	}
}

func TestRegistry_FailedConstructionIsNotRegistered(t *testing.T) {
	t.Parallel()

	fail := true
	drv := &TestDriver{
		PingFunc: func(context.Context) error {
			if fail {
				return errors.New("server down")
			}
			return nil
		},
	}
	reg := NewRegistry(WithDriverPool(drv, drv))

	if _, err := reg.GetPool(context.Background(), "flaky", Config{}); err == nil {
		t.Fatal("expected error")
	}

	fail = false
	pool, err := reg.GetPool(context.Background(), "flaky", Config{})
	if err != nil {
		t.Fatalf("GetPool() error = %v", err)
	}
	if pool == nil {
		t.Fatal("GetPool() returned nil pool")
	}
}
