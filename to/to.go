// Package to implements the total-order entry barrier described in
// spec.md §4.1: a seqno-keyed ring of waiters that lets N threads claim
// critical-section access in exactly the order dictated by a replicated
// stream, with support for out-of-order cancellation, interruption, and a
// bounded waiting queue.
package to

import (
	"sync"
	"sync/atomic"
)

type slotState int

const (
	slotFree slotState = iota
	slotWaiting
	slotHolding
	slotCanceled
	slotReleased
)

// slot holds the state for one seqno's turn in the ring. Each slot owns
// its own condition variable so a release only has to wake the one slot
// whose turn just arrived (spec §4.1 "wakeups are narrow").
type slot struct {
	seqno       int64 // seqno currently occupying this ring position, valid iff touched
	touched     bool
	state       slotState
	interrupted bool
	cond        *sync.Cond
}

// TO is a total-order monitor. The zero value is not usable; construct one
// with Create.
type TO struct {
	mu           sync.Mutex
	startSeqno   int64
	lastReleased int64 // guarded by mu except for the atomic mirror below
	lastReadable int64 // atomic mirror of lastReleased for lock-free Seqno()
	slots        []slot
}

// Create returns a TO object whose window holds at most windowLen
// concurrent waiters. start is the first seqno Grab will accept.
func Create(windowLen int, start int64) *TO {
	if windowLen <= 0 {
		windowLen = 1
	}
	t := &TO{
		startSeqno:   start,
		lastReleased: start - 1,
	}
	atomic.StoreInt64(&t.lastReadable, t.lastReleased)
	t.slots = make([]slot, windowLen)
	for i := range t.slots {
		t.slots[i].cond = sync.NewCond(&t.mu)
	}
	return t
}

func (t *TO) index(seqno int64) int {
	m := int64(len(t.slots))
	i := seqno % m
	if i < 0 {
		i += m
	}
	return int(i)
}

// touch installs seqno as the current occupant of its ring slot if it
// isn't already, resetting transient per-turn state. Must be called with
// mu held.
func (sl *slot) touch(seqno int64) {
	if sl.touched && sl.seqno == seqno {
		return
	}
	sl.seqno = seqno
	sl.touched = true
	sl.state = slotFree
	sl.interrupted = false
}

// Grab blocks the calling goroutine until seqno is next in line, or until
// it is cancelled or interrupted. On success the caller holds seqno's turn
// exclusively until it calls Release(seqno).
func (t *TO) Grab(seqno int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if seqno < t.startSeqno {
		return newErr(KindOutOfRange, "seqno below window start")
	}
	if seqno <= t.lastReleased {
		return newErr(KindOutOfRange, "seqno already released")
	}
	if seqno-t.lastReleased >= int64(len(t.slots)) {
		return newErr(KindOverflow, "waiting queue would overflow")
	}

	sl := &t.slots[t.index(seqno)]
	sl.touch(seqno)
	if sl.state == slotFree {
		sl.state = slotWaiting
	}

	for {
		if t.lastReleased == seqno-1 {
			sl.state = slotHolding
			return nil
		}
		if sl.state == slotCanceled {
			return newErr(KindCancelled, "waiter was cancelled")
		}
		if sl.interrupted {
			sl.interrupted = false
			return newErr(KindInterrupted, "wait was interrupted")
		}
		sl.cond.Wait()
	}
}

// Release must be called exactly once by the current holder of seqno. It
// advances the monitor past seqno (and past any immediately following
// slots that were pre-emptively cancelled) and wakes the next slot.
func (t *TO) Release(seqno int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.index(seqno)
	sl := &t.slots[idx]
	if !sl.touched || sl.seqno != seqno || sl.state != slotHolding {
		return newErr(KindBadState, "release out of order")
	}
	sl.state = slotReleased
	t.setLastReleased(seqno)

	next := seqno + 1
	for {
		nsl := &t.slots[t.index(next)]
		if nsl.touched && nsl.seqno == next && nsl.state == slotCanceled {
			nsl.state = slotReleased
			t.setLastReleased(next)
			nsl.cond.Broadcast()
			next++
			continue
		}
		break
	}
	t.slots[t.index(next)].cond.Broadcast()
	return nil
}

func (t *TO) setLastReleased(seqno int64) {
	t.lastReleased = seqno
	atomic.StoreInt64(&t.lastReadable, seqno)
}

// cancel marks seqno's slot CANCELED so that, whenever its turn arrives
// (whether or not anyone is currently blocked in Grab for it), it is
// skipped without running. Shared implementation for Cancel and
// SelfCancel, which differ only in the caller's role, not in effect.
func (t *TO) cancel(seqno int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if seqno <= t.lastReleased {
		return newErr(KindOutOfRange, "seqno already past")
	}
	sl := &t.slots[t.index(seqno)]
	if sl.touched && sl.seqno == seqno {
		switch sl.state {
		case slotHolding, slotReleased:
			return newErr(KindOutOfRange, "seqno already granted or released")
		}
	}
	sl.touch(seqno)
	sl.state = slotCanceled
	sl.cond.Broadcast()
	return nil
}

// Cancel is called by the current holder of some other seqno to skip
// seqno. When seqno's turn comes it returns ECANCEL to its own caller
// without running.
func (t *TO) Cancel(seqno int64) error { return t.cancel(seqno) }

// SelfCancel is equivalent to Cancel but issued by the would-be holder of
// seqno itself, without ever having entered Grab.
func (t *TO) SelfCancel(seqno int64) error { return t.cancel(seqno) }

// Interrupt wakes a WAITING grab on seqno with EINTR, leaving the slot
// live: later seqnos still block on it until the caller retries Grab or
// calls SelfCancel.
func (t *TO) Interrupt(seqno int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if seqno <= t.lastReleased {
		return newErr(KindOutOfRange, "seqno already past")
	}
	sl := &t.slots[t.index(seqno)]
	if !sl.touched || sl.seqno != seqno || sl.state != slotWaiting {
		return newErr(KindOutOfRange, "seqno is not currently waiting")
	}
	sl.interrupted = true
	sl.cond.Broadcast()
	return nil
}

// Seqno returns a conservative snapshot of the last released seqno. It
// takes no lock, so the true value may be higher by the time it returns;
// it is guaranteed to never be higher than the true value.
func (t *TO) Seqno() int64 {
	return atomic.LoadInt64(&t.lastReadable)
}

// Destroy reports an error if any waiter is still WAITING or HOLDING.
func (t *TO) Destroy() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if t.slots[i].state == slotWaiting || t.slots[i].state == slotHolding {
			return newErr(KindBusy, "waiters still active")
		}
	}
	return nil
}
