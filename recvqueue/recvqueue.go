// Package recvqueue implements the bounded FIFO of fully assembled
// actions delivered to the application (spec.md §2, §4.5 step 3).
package recvqueue

import (
	"sync"

	"github.com/codership/gcs/gcstypes"
)

// Queue is a bounded, closable FIFO. Pop blocks until an action is
// available or the queue is closed, matching spec.md §5's "recv blocks
// until an action is available or connection closes".
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []gcstypes.Action
	cap    int
	closed bool
}

// New returns a Queue that holds at most capacity actions before Push
// reports overflow.
func New(capacity int) *Queue {
	q := &Queue{cap: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends act, returning KindOverflow if the queue is already full.
func (q *Queue) Push(act gcstypes.Action) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return gcstypes.NewError(gcstypes.KindNotConnected, "receive queue closed")
	}
	if len(q.buf) >= q.cap {
		return gcstypes.NewError(gcstypes.KindOverflow, "receive queue full")
	}
	q.buf = append(q.buf, act)
	q.cond.Signal()
	return nil
}

// Pop blocks until an action is available or the queue is closed, in
// which case it returns KindNotConnected.
func (q *Queue) Pop() (gcstypes.Action, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 {
		return gcstypes.Action{}, gcstypes.NewError(gcstypes.KindNotConnected, "receive queue closed")
	}
	act := q.buf[0]
	q.buf = q.buf[1:]
	return act, nil
}

// Len reports the current number of queued actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Close empties the queue and wakes every blocked Pop with
// KindNotConnected, per spec.md §4.4 close() "empties the receive queue".
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.buf = nil
	q.cond.Broadcast()
}
