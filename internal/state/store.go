package state

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/danmuck/hostkernel/internal/scheduler"
	"github.com/rs/zerolog"
)

type subscription struct {
	id     uint64
	name   string
	fn     func(Slice)
	active atomic.Bool
}

// Store holds at most one live slice per name.
type Store struct {
	dispatchMu sync.Mutex

	slicesMu sync.RWMutex
	slices   map[string]Slice

	subsMu sync.Mutex
	subs   map[string][]*subscription
	nextID atomic.Uint64

	queue     *scheduler.Queue
	ownsQueue bool
	logger    zerolog.Logger

	onMutate    func(name string)
	onSubscribe func(name string, delta int)
}

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(st *Store) {
		st.logger = logger
	}
}

// WithQueue shares queue for deferred replays. The store does not close it.
func WithQueue(queue *scheduler.Queue) Option {
	return func(st *Store) {
		st.queue = queue
	}
}

// WithMutationHook registers fn to run after every successful mutation.
func WithMutationHook(fn func(name string)) Option {
	return func(st *Store) {
		st.onMutate = fn
	}
}

// WithSubscriptionHook registers fn to observe subscriber count changes.
func WithSubscriptionHook(fn func(name string, delta int)) Option {
	return func(st *Store) {
		st.onSubscribe = fn
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	st := &Store{
		slices: make(map[string]Slice),
		subs:   make(map[string][]*subscription),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(st)
	}
	if st.queue == nil {
		st.queue = scheduler.NewQueue(st.logger)
		st.ownsQueue = true
	}
	return st
}

// Close stops the store's own replay queue. Slices are discarded with the
// store.
func (st *Store) Close() {
	if st.ownsQueue {
		st.queue.Close()
	}
}

// Post schedules fn to run after the current unit of work.
func (st *Store) Post(fn func()) bool {
	return st.queue.Post(fn)
}

// Flush blocks until all previously posted work, replays included, has run.
func (st *Store) Flush() bool {
	return st.queue.Flush()
}

// Names returns the names of all live slices, sorted.
func (st *Store) Names() []string {
	st.slicesMu.RLock()
	defer st.slicesMu.RUnlock()
	names := make([]string, 0, len(st.slices))
	for name := range st.slices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the live slice registered under name.
func (st *Store) Lookup(name string) (Slice, error) {
	st.slicesMu.RLock()
	defer st.slicesMu.RUnlock()
	sl, ok := st.slices[name]
	if !ok {
		return nil, &SliceNotFoundError{Name: name}
	}
	return sl, nil
}

// Serialize snapshots every slice through its own Serialize.
func (st *Store) Serialize() map[string]any {
	st.dispatchMu.Lock()
	defer st.dispatchMu.Unlock()
	st.slicesMu.RLock()
	defer st.slicesMu.RUnlock()
	out := make(map[string]any, len(st.slices))
	for name, sl := range st.slices {
		out[name] = sl.Serialize()
	}
	return out
}

// SerializeSlice snapshots the single slice registered under name.
func (st *Store) SerializeSlice(name string) (any, error) {
	st.dispatchMu.Lock()
	defer st.dispatchMu.Unlock()
	sl, err := st.Lookup(name)
	if err != nil {
		return nil, err
	}
	return sl.Serialize(), nil
}

// Deserialize feeds each value in snapshot to the live slice of the same
// name. Names without a slice go to onMissing; no slice is created.
func (st *Store) Deserialize(snapshot map[string]any, onMissing func(name string)) error {
	st.dispatchMu.Lock()
	defer st.dispatchMu.Unlock()

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		sl, err := st.Lookup(name)
		if err != nil {
			if onMissing != nil {
				onMissing(name)
			}
			continue
		}
		if err := sl.Deserialize(snapshot[name]); err != nil {
			errs = append(errs, fmt.Errorf("state: deserialize %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers fn for name. fn receives one deferred replay of the
// current slice, then one synchronous call per mutation. The returned
// function unsubscribes; it is idempotent and cancels a pending replay.
func (st *Store) Subscribe(name string, fn func(Slice)) func() {
	sub, unsubscribe := st.listen(name, fn)
	st.queue.Post(func() {
		st.dispatchMu.Lock()
		defer st.dispatchMu.Unlock()
		if !sub.active.Load() {
			return
		}
		sl, err := st.Lookup(name)
		if err != nil {
			st.logger.Debug().Str("slice", name).Msg("state.Store.Subscribe replay skipped: no slice")
			return
		}
		sub.fn(sl)
	})
	return unsubscribe
}

// Watch returns a single-use sequence that yields the current slice, then
// the latest slice after each mutation. Mutations arriving while the
// consumer is busy coalesce into one element. The sequence ends when ctx is
// done.
func (st *Store) Watch(ctx context.Context, name string) (iter.Seq[Slice], error) {
	if _, err := st.Lookup(name); err != nil {
		return nil, err
	}
	var used atomic.Bool
	return func(yield func(Slice) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}
		if ctx.Err() != nil {
			return
		}
		// Registration and the first read share the dispatch lock, so a
		// mutation is seen either in current or through latest, not both.
		latest := make(chan Slice, 1)
		st.dispatchMu.Lock()
		current, err := st.Lookup(name)
		if err != nil {
			st.dispatchMu.Unlock()
			return
		}
		_, unsubscribe := st.listen(name, func(sl Slice) {
			offerLatest(latest, sl)
		})
		st.dispatchMu.Unlock()
		defer unsubscribe()

		if !yield(current) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case sl := <-latest:
				if ctx.Err() != nil {
					return
				}
				if !yield(sl) {
					return
				}
			}
		}
	}, nil
}

func (st *Store) put(name string, sl Slice) {
	st.slicesMu.Lock()
	defer st.slicesMu.Unlock()
	if _, ok := st.slices[name]; ok {
		st.logger.Debug().Str("slice", name).Msg("state.Store.Initialize replaced")
	}
	st.slices[name] = sl
}

func (st *Store) mutate(name string, fn func(Slice) error) error {
	st.dispatchMu.Lock()
	defer st.dispatchMu.Unlock()

	sl, err := st.Lookup(name)
	if err != nil {
		return err
	}
	if err := fn(sl); err != nil {
		return err
	}
	if st.onMutate != nil {
		st.onMutate(name)
	}
	st.notify(name, sl)
	return nil
}

// notify runs with dispatchMu held.
func (st *Store) notify(name string, sl Slice) {
	st.subsMu.Lock()
	subs := slices.Clone(st.subs[name])
	st.subsMu.Unlock()

	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		sub.fn(sl)
	}
}

// listen registers fn without a replay.
func (st *Store) listen(name string, fn func(Slice)) (*subscription, func()) {
	sub := &subscription{id: st.nextID.Add(1), name: name, fn: fn}
	sub.active.Store(true)

	st.subsMu.Lock()
	st.subs[name] = append(st.subs[name], sub)
	st.subsMu.Unlock()
	if st.onSubscribe != nil {
		st.onSubscribe(name, 1)
	}

	return sub, func() {
		if !sub.active.CompareAndSwap(true, false) {
			return
		}
		st.subsMu.Lock()
		list := st.subs[name]
		for i, s := range list {
			if s == sub {
				st.subs[name] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(st.subs[name]) == 0 {
			delete(st.subs, name)
		}
		st.subsMu.Unlock()
		if st.onSubscribe != nil {
			st.onSubscribe(name, -1)
		}
	}
}

func offerLatest(ch chan Slice, sl Slice) {
	select {
	case ch <- sl:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- sl:
	default:
	}
}
