// Package memory provides the in-process work queue between the watcher
// (producer) and the pipeline worker (consumer). It is the only shared
// mutable structure between the two.
package memory

import (
	"sync"
	"time"
)

// Queue is an unbounded FIFO of pending file paths. Put never blocks, Get
// blocks up to a timeout, and every gotten item must be acknowledged with
// Done so Join can observe a drained queue during shutdown.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []string
	pending int
}

func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends a path. Safe for concurrent producers.
func (q *Queue) Put(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, path)
	q.pending++
	q.cond.Broadcast()
}

// Get removes and returns the oldest path, waiting up to timeout for one to
// arrive. ok is false when the timeout elapsed with the queue still empty.
func (q *Queue) Get(timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", false
		}
		// sync.Cond has no timed wait; a short-lived waker keeps Get
		// responsive without spinning.
		waker := time.AfterFunc(remaining, q.cond.Broadcast)
		q.cond.Wait()
		waker.Stop()
	}

	path := q.items[0]
	q.items = q.items[1:]
	return path, true
}

// Done acknowledges completion of one previously gotten item.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending > 0 {
		q.pending--
	}
	q.cond.Broadcast()
}

// Len reports the number of paths waiting to be gotten.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Join blocks until every enqueued item has been gotten and acknowledged.
func (q *Queue) Join() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.pending > 0 {
		q.cond.Wait()
	}
}
