package ydb

import "sync"

// waker interrupts a blocked poller wait.
type waker interface {
	Wake() error
}

// inbox is a thread-safe FIFO of work posted to the serving goroutine.
//
// The queue is unbounded so that Post never blocks. The signal channel
// (buffered, size 1) coalesces wake-ups for a Run loop that has no poller to
// wait on; when a poller exists it is woken as well.
type inbox struct {
	mu     sync.Mutex
	items  []func(*Store)
	closed bool
	signal chan struct{}
	waker  waker
}

func newInbox() *inbox {
	return &inbox{
		items:  make([]func(*Store), 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds fn to the back of the queue and wakes the server.
// Returns false if the inbox is closed.
func (q *inbox) Enqueue(fn func(*Store)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, fn)
	q.wakeLocked()
	return true
}

// Wake interrupts the server without queueing work.
func (q *inbox) Wake() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.wakeLocked()
	}
}

func (q *inbox) wakeLocked() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
	if q.waker != nil {
		_ = q.waker.Wake()
	}
}

// setWaker swaps the poller to wake. A nil waker detaches it before the
// poller is closed.
func (q *inbox) setWaker(w waker) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.waker = w
}

// TryDequeue removes the front item without blocking.
func (q *inbox) TryDequeue() (func(*Store), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	fn := q.items[0]
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return fn, true
}

// Wait returns a channel that signals when work may be available.
func (q *inbox) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued items.
func (q *inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further work and wakes any waiter.
func (q *inbox) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.waker = nil
	q.items = nil
	close(q.signal)
}
