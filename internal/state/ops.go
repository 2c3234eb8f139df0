package state

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"
)

// Initialize builds a slice of kind from props and stores it, replacing any
// previous instance without notifying subscribers.
func Initialize[S Slice, P any](st *Store, kind Kind[S, P], props P) S {
	sl := kind.New(props)
	st.put(kind.Name, sl)
	return sl
}

// Get returns the live slice of kind.
func Get[S Slice, P any](st *Store, kind Kind[S, P]) (S, error) {
	sl, err := st.Lookup(kind.Name)
	if err != nil {
		var zero S
		return zero, err
	}
	return cast[S](kind.Name, sl)
}

// Mutate runs fn against the live slice of kind, notifies every subscriber
// of kind in subscription order, then returns fn's result.
func Mutate[S Slice, P any, R any](st *Store, kind Kind[S, P], fn func(S) R) (R, error) {
	var out R
	err := st.mutate(kind.Name, func(sl Slice) error {
		s, err := cast[S](kind.Name, sl)
		if err != nil {
			return err
		}
		out = fn(s)
		return nil
	})
	return out, err
}

// View runs fn against the live slice of kind while mutations are held off.
// Subscribers are not notified.
func View[S Slice, P any, R any](st *Store, kind Kind[S, P], fn func(S) R) (R, error) {
	st.dispatchMu.Lock()
	defer st.dispatchMu.Unlock()
	var out R
	s, err := Get(st, kind)
	if err != nil {
		return out, err
	}
	return fn(s), nil
}

// Update is Mutate for callbacks without a result.
func Update[S Slice, P any](st *Store, kind Kind[S, P], fn func(S)) error {
	_, err := Mutate(st, kind, func(s S) struct{} {
		fn(s)
		return struct{}{}
	})
	return err
}

// Subscribe registers fn for kind; see Store.Subscribe.
func Subscribe[S Slice, P any](st *Store, kind Kind[S, P], fn func(S)) func() {
	return st.Subscribe(kind.Name, typed(fn))
}

// WaitFor resolves with the first notified slice satisfying pred. The
// current state is not checked synchronously; it is seen through the
// deferred replay.
func WaitFor[S Slice, P any](ctx context.Context, st *Store, kind Kind[S, P], pred func(S) bool) (S, error) {
	found := make(chan S, 1)
	var once sync.Once
	unsubscribe := Subscribe(st, kind, func(s S) {
		if pred(s) {
			once.Do(func() { found <- s })
		}
	})
	defer unsubscribe()

	select {
	case s := <-found:
		return s, nil
	case <-ctx.Done():
		var zero S
		return zero, ctx.Err()
	}
}

// TimedWaitFor checks pred against the current slice and returns at once if
// it holds. Otherwise it waits for a qualifying mutation for at most timeout
// and fails with *TimeoutError.
func TimedWaitFor[S Slice, P any](ctx context.Context, st *Store, kind Kind[S, P], pred func(S) bool, timeout time.Duration) (S, error) {
	var current S
	held, err := View(st, kind, func(s S) bool {
		current = s
		return pred(s)
	})
	if err != nil {
		return current, err
	}
	if held {
		return current, nil
	}

	found := make(chan S, 1)
	var once sync.Once
	unsubscribe := Subscribe(st, kind, func(s S) {
		if pred(s) {
			once.Do(func() { found <- s })
		}
	})
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s := <-found:
		return s, nil
	case <-timer.C:
		var zero S
		return zero, &TimeoutError{Name: kind.Name, Timeout: timeout}
	case <-ctx.Done():
		var zero S
		return zero, ctx.Err()
	}
}

// Stream is the typed form of Store.Watch.
func Stream[S Slice, P any](ctx context.Context, st *Store, kind Kind[S, P]) (iter.Seq[S], error) {
	if _, err := Get(st, kind); err != nil {
		return nil, err
	}
	seq, err := st.Watch(ctx, kind.Name)
	if err != nil {
		return nil, err
	}
	return func(yield func(S) bool) {
		for sl := range seq {
			s, ok := sl.(S)
			if !ok {
				return
			}
			if !yield(s) {
				return
			}
		}
	}, nil
}

func typed[S Slice](fn func(S)) func(Slice) {
	return func(sl Slice) {
		if s, ok := sl.(S); ok {
			fn(s)
		}
	}
}

func cast[S Slice](name string, sl Slice) (S, error) {
	s, ok := sl.(S)
	if !ok {
		var zero S
		return zero, fmt.Errorf("%w: %q holds %T", ErrSliceType, name, sl)
	}
	return s, nil
}
