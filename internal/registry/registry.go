package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrNotFound = errors.New("registry: item not found")

// NotFoundError reports a lookup for a key or type that has no registered item.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registry: no item registered for %q", e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// KeyFunc returns the explicit registration identifier of an item.
type KeyFunc[T any] func(T) string

type waiter[T any] struct {
	match func(T) bool
	ch    chan T
}

// Registry stores items in insertion order. Items sharing a key coexist;
// lookups return the first one registered.
type Registry[T any] struct {
	mu      sync.Mutex
	key     KeyFunc[T]
	items   []T
	waiters []*waiter[T]
}

// New creates an empty registry keyed by key.
func New[T any](key KeyFunc[T]) *Registry[T] {
	return &Registry[T]{key: key}
}

// Register appends item and resolves every waiter it satisfies.
func (r *Registry[T]) Register(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)

	kept := r.waiters[:0]
	for _, w := range r.waiters {
		if w.match(item) {
			w.ch <- item
			continue
		}
		kept = append(kept, w)
	}
	for i := len(kept); i < len(r.waiters); i++ {
		r.waiters[i] = nil
	}
	r.waiters = kept
}

// Get returns the first item registered under key.
func (r *Registry[T]) Get(key string) (T, bool) {
	return r.first(r.keyMatch(key))
}

// Require returns the first item registered under key or a *NotFoundError.
func (r *Registry[T]) Require(key string) (T, error) {
	item, ok := r.Get(key)
	if !ok {
		return item, &NotFoundError{Key: key}
	}
	return item, nil
}

// Wait blocks until an item with key is registered. It returns immediately
// when one already exists.
func (r *Registry[T]) Wait(ctx context.Context, key string) (T, error) {
	return r.wait(ctx, r.keyMatch(key))
}

// All returns a snapshot of the registered items in insertion order.
func (r *Registry[T]) All() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of registered items.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Find returns the first item assignable to S.
func Find[S any, T any](r *Registry[T]) (S, bool) {
	item, ok := r.first(assignable[S, T])
	if !ok {
		var zero S
		return zero, false
	}
	return any(item).(S), true
}

// RequireType returns the first item assignable to S or a *NotFoundError.
func RequireType[S any, T any](r *Registry[T]) (S, error) {
	s, ok := Find[S](r)
	if !ok {
		return s, &NotFoundError{Key: typeName[S]()}
	}
	return s, nil
}

// WaitType blocks until an item assignable to S is registered.
func WaitType[S any, T any](ctx context.Context, r *Registry[T]) (S, error) {
	item, err := r.wait(ctx, assignable[S, T])
	if err != nil {
		var zero S
		return zero, err
	}
	return any(item).(S), nil
}

func (r *Registry[T]) keyMatch(key string) func(T) bool {
	return func(item T) bool {
		return r.key(item) == key
	}
}

func (r *Registry[T]) first(match func(T) bool) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if match(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

func (r *Registry[T]) wait(ctx context.Context, match func(T) bool) (T, error) {
	r.mu.Lock()
	for _, item := range r.items {
		if match(item) {
			r.mu.Unlock()
			return item, nil
		}
	}
	w := &waiter[T]{match: match, ch: make(chan T, 1)}
	r.waiters = append(r.waiters, w)
	r.mu.Unlock()

	select {
	case item := <-w.ch:
		return item, nil
	case <-ctx.Done():
		r.removeWaiter(w)
		// Register may have resolved the waiter before it was removed.
		select {
		case item := <-w.ch:
			return item, nil
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}

func (r *Registry[T]) removeWaiter(target *waiter[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, w := range r.waiters {
		if w == target {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}

func assignable[S any, T any](item T) bool {
	_, ok := any(item).(S)
	return ok
}

func typeName[S any]() string {
	return fmt.Sprintf("%T", (*S)(nil))[1:]
}
