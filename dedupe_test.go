package sessync

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (g *flightGroup) waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keys[key]
}

func TestFlightDedupesConcurrentCallers(t *testing.T) {
	g := newFlightGroup()

	var calls atomic.Int32
	gate := make(chan struct{})
	fn := func() (any, error) {
		calls.Add(1)
		<-gate
		return "value", nil
	}

	const n = 3
	results := make([]any, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, err, _ := g.Do("k", fn)
			if err != nil {
				t.Errorf("Do: %v", err)
			}
			results[i] = v
		}(i)
	}

	waitFor(t, "all callers joined", func() bool { return g.waiters("k") == n })
	close(gate)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("fn invoked %d times, want 1", got)
	}
	for i, v := range results {
		if v != "value" {
			t.Fatalf("caller %d got %v", i, v)
		}
	}
	if g.waiters("k") != 0 {
		t.Fatal("key should be deregistered after settlement")
	}
}

func TestFlightErrorSharedThenRetryable(t *testing.T) {
	g := newFlightGroup()

	boom := errors.New("boom")
	var calls atomic.Int32
	gate := make(chan struct{})
	fn := func() (any, error) {
		calls.Add(1)
		<-gate
		return nil, boom
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err, _ := g.Do("k", fn)
			errs[i] = err
		}(i)
	}
	waitFor(t, "both callers joined", func() bool { return g.waiters("k") == 2 })
	close(gate)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Fatalf("caller %d got %v, want shared error", i, err)
		}
	}

	// failed flight settled, so the key is free for an immediate retry
	if _, err, _ := g.Do("k", func() (any, error) { return "ok", nil }); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("original fn re-invoked: %d", got)
	}
}

func TestForgetAllDetachesLiveFlights(t *testing.T) {
	g := newFlightGroup()

	gate := make(chan struct{})
	first := make(chan any, 1)
	go func() {
		v, _, _ := g.Do("k", func() (any, error) {
			<-gate
			return "stale", nil
		})
		first <- v
	}()
	waitFor(t, "first flight live", func() bool { return g.waiters("k") == 1 })

	g.ForgetAll()

	// a caller arriving after ForgetAll starts a fresh flight instead of
	// joining the stale one
	v, err, _ := g.Do("k", func() (any, error) { return "fresh", nil })
	if err != nil || v != "fresh" {
		t.Fatalf("post-forget Do = %v, %v", v, err)
	}

	// the detached caller still observes its own flight's settlement
	close(gate)
	if got := <-first; got != "stale" {
		t.Fatalf("detached caller got %v", got)
	}
}
