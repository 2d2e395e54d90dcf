// Package replwait implements the map from an in-flight, locally
// originated repl() call to the caller's wakeup channel, so repl() can
// return with assigned seqnos as soon as its action self-delivers
// (spec.md §2 "Repl Wait Table", §4.3, and the design note in spec.md §9:
// "repl owns a completion channel registered in the wait table before the
// first fragment ships").
package replwait

import (
	"sync"

	"github.com/codership/gcs/gcstypes"
)

// Result is what a repl-wait entry is fulfilled with.
type Result struct {
	GlobalSeqno gcstypes.Seqno
	LocalSeqno  gcstypes.Seqno
	Err         error
}

// Table maps a caller-chosen tag to a completion channel. One goroutine
// (the ordered-delivery loop) fulfills entries; any number of callers
// register and wait on their own entry.
type Table struct {
	mu      sync.Mutex
	waiters map[string]chan Result
}

// New returns an empty Table.
func New() *Table {
	return &Table{waiters: make(map[string]chan Result)}
}

// Register installs a new waiter for tag before the first fragment of the
// action ships, so a self-delivery racing ahead of the registration is
// impossible: the caller must call Register, then send, then receive from
// the returned channel.
func (t *Table) Register(tag string) chan Result {
	ch := make(chan Result, 1)
	t.mu.Lock()
	t.waiters[tag] = ch
	t.mu.Unlock()
	return ch
}

// Fulfill delivers res to tag's waiter and removes the entry. It is a
// no-op if no waiter is registered under tag (e.g. it was already
// aborted). Returns true if a waiter was actually fulfilled.
func (t *Table) Fulfill(tag string, res Result) bool {
	t.mu.Lock()
	ch, ok := t.waiters[tag]
	if ok {
		delete(t.waiters, tag)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- res
	return true
}

// AbortAll fails every currently registered waiter with err, e.g. on
// close() (spec.md §4.4) or a NON_PRIMARY CONF (spec.md §4.5 step 4).
func (t *Table) AbortAll(err error) {
	t.mu.Lock()
	waiters := t.waiters
	t.waiters = make(map[string]chan Result)
	t.mu.Unlock()
	for _, ch := range waiters {
		ch <- Result{Err: err}
	}
}

// Cancel removes tag's waiter without fulfilling it, for callers that
// give up before self-delivery ever arrives.
func (t *Table) Cancel(tag string) {
	t.mu.Lock()
	delete(t.waiters, tag)
	t.mu.Unlock()
}

// Len reports the number of currently registered waiters (diagnostic use).
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}
