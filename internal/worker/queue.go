// ABOUTME: Single-goroutine serialized task queue with cancellable delayed tasks
// ABOUTME: Runs outbound calls and timer callbacks in posting order off the caller's lock

package worker

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Sync once the queue has been closed.
var ErrClosed = errors.New("worker queue closed")

type task struct {
	fn       func()
	timer    *time.Timer
	canceled bool
	started  bool
}

// Handle identifies a posted task for cancellation.
type Handle struct {
	t *task
}

// IsZero reports whether h refers to no task.
func (h Handle) IsZero() bool {
	return h.t == nil
}

// Queue runs posted funcs one at a time on a dedicated goroutine.
// Cancel is by identity: once Cancel returns true the task never runs.
type Queue struct {
	mu     sync.Mutex
	ready  *list.List // *task, FIFO
	wake   chan struct{}
	done   chan struct{}
	closed bool
	logger *slog.Logger
}

// New starts a queue. Pass nil logger for default.
func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		ready:  list.New(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger.With("component", "worker"),
	}
	go q.run()
	return q
}

// Post schedules fn to run after every previously posted ready task.
func (q *Queue) Post(fn func()) Handle {
	t := &task{fn: fn}
	q.enqueue(t)
	return Handle{t: t}
}

// PostDelayed schedules fn to be queued after d elapses.
func (q *Queue) PostDelayed(d time.Duration, fn func()) Handle {
	t := &task{fn: fn}
	q.mu.Lock()
	if !q.closed {
		t.timer = time.AfterFunc(d, func() { q.enqueue(t) })
	}
	q.mu.Unlock()
	return Handle{t: t}
}

// Cancel prevents h from running. It reports false when the task already
// started, was already cancelled, or h is zero.
func (q *Queue) Cancel(h Handle) bool {
	if h.t == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if h.t.started || h.t.canceled {
		return false
	}
	h.t.canceled = true
	if h.t.timer != nil {
		h.t.timer.Stop()
	}
	return true
}

// Sync blocks until every task posted before the call has run.
func (q *Queue) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()

	q.Post(func() { close(reached) })
	select {
	case <-reached:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue. Tasks not yet started are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue) enqueue(t *task) {
	q.mu.Lock()
	if q.closed || t.canceled {
		q.mu.Unlock()
		return
	}
	q.ready.PushBack(t)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// next pops the first runnable task, marking it started.
func (q *Queue) next() *task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.ready.Len() > 0 {
		t := q.ready.Remove(q.ready.Front()).(*task)
		if t.canceled {
			continue
		}
		t.started = true
		return t
	}
	return nil
}

func (q *Queue) run() {
	for {
		for t := q.next(); t != nil; t = q.next() {
			q.exec(t)
		}
		select {
		case <-q.done:
			return
		case <-q.wake:
		}
	}
}

func (q *Queue) exec(t *task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", "panic", r)
		}
	}()
	t.fn()
}
