// Package sendqueue implements outbound fragmentation to packet size and
// flow-control admission (spec.md §2 "Send Queue / Flow Control", §4.3).
package sendqueue

import (
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/y"

	"github.com/codership/gcs/gcstypes"
	"github.com/codership/gcs/transport"
)

// FlowPolicy selects what Send does while flow-stopped for self.
type FlowPolicy int

const (
	// FlowBlock parks the caller until a FLOW cont directive arrives.
	FlowBlock FlowPolicy = iota
	// FlowEagain returns KindOverflow immediately instead of blocking.
	FlowEagain
)

// Queue fragments outbound actions to a configured packet size and gates
// admission on flow control. One Queue serves one connection.
type Queue struct {
	self    gcstypes.NodeID
	pktSize int
	policy  FlowPolicy
	tr      transport.GroupTransport

	mu      sync.Mutex
	cond    *sync.Cond
	stopped bool

	nextActionID uint64
}

// New returns a Queue that fragments to pktSize bytes and broadcasts
// through tr.
func New(self gcstypes.NodeID, pktSize int, policy FlowPolicy, tr transport.GroupTransport) *Queue {
	q := &Queue{self: self, pktSize: pktSize, policy: policy, tr: tr}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// SetFlow applies a FLOW directive delivered through the ordered stream
// (spec.md §4.3). Directives not targeting this node (and not a
// broadcast) are ignored.
func (q *Queue) SetFlow(stop bool, target gcstypes.NodeID) {
	if target != "" && target != q.self {
		return
	}
	q.mu.Lock()
	q.stopped = stop
	q.mu.Unlock()
	if !stop {
		q.cond.Broadcast()
	}
}

// Stopped reports the current flow-control gate state for this node.
func (q *Queue) Stopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}

// SetPktSize changes the fragmentation size applied to subsequent Send
// calls (spec.md §4.3 set_pkt_size). It has no effect on a fragmentation
// already in progress.
func (q *Queue) SetPktSize(n int) {
	q.mu.Lock()
	q.pktSize = n
	q.mu.Unlock()
}

// PktSize reports the fragmentation size currently in effect.
func (q *Queue) PktSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pktSize
}

// Send fragments payload and hands each fragment to the transport in
// order, stamping {source, action_id, fragment_no, more} (spec.md §4.3).
// It returns the number of bytes accepted, or a negative-mapped error.
// replTag, if non-empty, is carried on every fragment so the receiving
// Assembler can report it back to the repl-wait table on self-delivery.
func (q *Queue) Send(payload []byte, typ gcstypes.ActionType, replTag string) (int, error) {
	if !q.admit() {
		return 0, gcstypes.NewError(gcstypes.KindOverflow, "flow-stopped")
	}

	// Ownership of payload passes to the queue per spec.md §4.3; copy it
	// out of the caller's slice so a caller that mutates/reuses it after
	// Send returns cannot corrupt an in-flight fragmentation.
	owned := y.SafeCopy(nil, payload)
	actionID := atomic.AddUint64(&q.nextActionID, 1)
	pktSize := q.PktSize()

	total := len(owned)
	sent := 0
	var fragNo uint32
	for {
		end := sent + pktSize
		more := true
		if pktSize <= 0 || end >= total {
			end = total
			more = false
		}
		f := gcstypes.Fragment{
			Source:     q.self,
			ActionID:   actionID,
			Type:       typ,
			FragmentNo: fragNo,
			More:       more,
			Payload:    owned[sent:end],
			ReplTag:    replTag,
		}
		if err := q.tr.Broadcast(f); err != nil {
			if sent == 0 {
				return 0, gcstypes.NewError(gcstypes.KindFatal, "send: "+err.Error())
			}
			// Flow control is checked only once, in admit, so a stop
			// arriving mid-fragmentation never cuts an action short. A
			// mid-stream transport failure, however, returns here at
			// once: the remaining fragments are not sent, and the bytes
			// already accepted are reported alongside the error.
			return sent, gcstypes.NewError(gcstypes.KindFatal, "send: "+err.Error())
		}
		sent = end
		fragNo++
		if !more {
			break
		}
	}
	return total, nil
}

// admit blocks (FlowBlock) or fails fast (FlowEagain) while flow-stopped.
func (q *Queue) admit() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.stopped {
		return true
	}
	if q.policy == FlowEagain {
		return false
	}
	for q.stopped {
		q.cond.Wait()
	}
	return true
}
