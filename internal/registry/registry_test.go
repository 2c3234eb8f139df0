package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/hostkernel/internal/testutil/testlog"
)

type named interface {
	Name() string
}

type alpha struct{ id int }

func (alpha) Name() string { return "alpha" }

type beta struct{}

func (beta) Name() string { return "beta" }

type closer interface {
	Close() error
}

type gamma struct{}

func (gamma) Name() string  { return "gamma" }
func (gamma) Close() error { return nil }

func newNamed() *Registry[named] {
	return New(func(n named) string { return n.Name() })
}

func TestRegisterKeepsDuplicatesAndReturnsFirst(t *testing.T) {
	testlog.Start(t)
	r := newNamed()
	r.Register(alpha{id: 1})
	r.Register(alpha{id: 2})

	if r.Len() != 2 {
		t.Fatalf("expected both items kept, got %d", r.Len())
	}
	got, ok := r.Get("alpha")
	if !ok || got.(alpha).id != 1 {
		t.Fatalf("expected first alpha, got %+v ok=%v", got, ok)
	}
	a, ok := Find[alpha](r)
	if !ok || a.id != 1 {
		t.Fatalf("Find returned %+v ok=%v", a, ok)
	}
}

func TestRequireMissing(t *testing.T) {
	testlog.Start(t)
	r := newNamed()
	if _, err := r.Require("beta"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if _, err := RequireType[beta](r); !errors.As(err, &nf) || nf.Key == "" {
		t.Fatalf("expected NotFoundError with key, got %v", err)
	}
}

func TestFindByInterface(t *testing.T) {
	testlog.Start(t)
	r := newNamed()
	r.Register(beta{})
	r.Register(gamma{})

	c, err := RequireType[closer](r)
	if err != nil {
		t.Fatalf("RequireType: %v", err)
	}
	if _, ok := c.(gamma); !ok {
		t.Fatalf("expected gamma, got %T", c)
	}
}

func TestWaitResolvesImmediatelyWhenPresent(t *testing.T) {
	testlog.Start(t)
	r := newNamed()
	r.Register(beta{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := r.Wait(ctx, "beta"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestMultipleWaitersResolveOnRegister(t *testing.T) {
	testlog.Start(t)
	r := newNamed()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan error, 3)
	for i := 0; i < 2; i++ {
		wg.Go(func() {
			_, err := r.Wait(ctx, "alpha")
			results <- err
		})
	}
	wg.Go(func() {
		_, err := WaitType[alpha](ctx, r)
		results <- err
	})

	// Let the waiters park before registering.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		n := len(r.waiters)
		r.mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	r.Register(beta{})
	r.Register(alpha{id: 7})
	wg.Wait()
	close(results)
	for err := range results {
		if err != nil {
			t.Fatalf("waiter failed: %v", err)
		}
	}
	if len(r.waiters) != 0 {
		t.Fatalf("expected waiters drained, got %d", len(r.waiters))
	}
}

func TestWaitCancelled(t *testing.T) {
	testlog.Start(t)
	r := newNamed()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Wait(ctx, "alpha"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(r.waiters) != 0 {
		t.Fatalf("cancelled waiter not removed")
	}
}

func TestAllIsSnapshot(t *testing.T) {
	testlog.Start(t)
	r := newNamed()
	r.Register(alpha{})
	all := r.All()
	r.Register(beta{})
	if len(all) != 1 {
		t.Fatalf("snapshot mutated: %d", len(all))
	}
}
