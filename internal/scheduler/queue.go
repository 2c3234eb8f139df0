package scheduler

import (
	"sync"

	"github.com/rs/zerolog"
)

// Queue runs posted tasks one at a time, in posting order, on its own
// goroutine.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	done    chan struct{}
	closed  bool
	logger  zerolog.Logger
}

// NewQueue starts a queue worker.
func NewQueue(logger zerolog.Logger) *Queue {
	q := &Queue{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go q.loop()
	return q
}

// Post schedules task. It reports false once the queue is closed.
func (q *Queue) Post(task func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops the worker after the task in flight. Pending tasks are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()

	close(q.done)
	if dropped > 0 {
		q.logger.Debug().Int("dropped", dropped).Msg("scheduler.Queue.Close")
	}
}

// Flush blocks until every task posted before the call has run.
// It returns false if the queue closed first.
func (q *Queue) Flush() bool {
	ran := make(chan struct{})
	if !q.Post(func() { close(ran) }) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-q.done:
		return false
	}
}

func (q *Queue) loop() {
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}
		for {
			task, ok := q.next()
			if !ok {
				break
			}
			q.run(task)
		}
	}
}

func (q *Queue) next() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.pending) == 0 {
		return nil, false
	}
	task := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return task, true
}

func (q *Queue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface("panic", r).Msg("scheduler.Queue.run task panicked")
		}
	}()
	task()
}
