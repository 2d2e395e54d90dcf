// Package configh implements the Configuration Handler (spec.md §4.6,
// §2 "Configuration Handler"): it turns raw membership events from the
// transport into a CONF action carrying a quorum-derived seqno, group
// UUID, st_required flag, and a deterministically ordered member list.
package configh

import (
	"bytes"

	"github.com/petar/GoLLRB/llrb"

	"github.com/codership/gcs/gcstypes"
	"github.com/codership/gcs/transport"
)

// memberItem is a llrb.Item ordering group members by NodeID, the same
// bytes.Compare-on-key shape the teacher's memItem uses in
// mpserverv2/storage.go, generalized from a byte-slice KV key to a
// NodeID so that CONF's member enumeration and my_idx assignment are
// always computed over a deterministic, transport-order-independent view.
type memberItem struct {
	id       gcstypes.NodeID
	lastSeen gcstypes.Seqno
}

func (m memberItem) Less(than llrb.Item) bool {
	other := than.(memberItem)
	return bytes.Compare([]byte(m.id), []byte(other.id)) < 0
}

// Handler tracks the current membership table and each member's
// last-reported applied seqno, and turns transport membership events into
// CONF actions.
type Handler struct {
	self gcstypes.NodeID

	tree *llrb.LLRB

	groupUUID gcstypes.GroupUUID
	confID    int64
	lastConf  gcstypes.Seqno

	// applied tracks the highest seqno each member has reported via
	// SetLastApplied (spec.md §13's slave-queue-lag supplement), keyed by
	// NodeID rather than carried on memberItem so a member's applied
	// progress survives it briefly dropping out of the membership tree
	// during a transient partition.
	applied map[gcstypes.NodeID]gcstypes.Seqno

	lagThreshold gcstypes.Seqno
}

// New returns a Handler for self, whose group history starts at uuid (the
// zero UUID if the group has never formed a primary component) with a
// slave-queue-lag threshold used by Wait (spec.md §13).
func New(self gcstypes.NodeID, uuid gcstypes.GroupUUID, lagThreshold gcstypes.Seqno) *Handler {
	return &Handler{
		self:         self,
		tree:         llrb.New(),
		groupUUID:    uuid,
		confID:       -1,
		lastConf:     gcstypes.SeqnoNil,
		applied:      make(map[gcstypes.NodeID]gcstypes.Seqno),
		lagThreshold: lagThreshold,
	}
}

// Apply consumes a raw MembershipEvent and returns the CONF action the
// ordered-delivery loop should inject (spec.md §4.6). seqno is the last
// ordered action's global seqno preceding the change, per spec.md §3
// invariant 3; the caller (the ordered-delivery loop, which tracks the
// running seqno) supplies it since the Handler has no view of DATA
// traffic.
func (h *Handler) Apply(ev transport.MembershipEvent, seqno gcstypes.Seqno) gcstypes.Action {
	h.rebuildTree(ev.Members)

	if !ev.Primary {
		h.confID = -1
		return h.confAction(seqno, false)
	}

	h.confID++
	if h.groupUUID.Nil() {
		h.groupUUID = freshUUID(ev.Members)
	}
	h.lastConf = seqno
	return h.confAction(seqno, true)
}

// rebuildTree replaces the membership tree's key set with members,
// carrying forward each surviving member's last-applied seqno.
func (h *Handler) rebuildTree(members []gcstypes.NodeID) {
	fresh := llrb.New()
	for _, id := range members {
		fresh.ReplaceOrInsert(memberItem{id: id, lastSeen: h.applied[id]})
	}
	h.tree = fresh
}

// confAction builds the CONF action for the current membership tree,
// enumerating members in the tree's ascending order so my_idx is
// deterministic regardless of the raw event's member ordering.
func (h *Handler) confAction(seqno gcstypes.Seqno, primary bool) gcstypes.Action {
	members := h.orderedMembers()
	confID := h.confID
	if !primary {
		confID = -1
	}
	myIdx := indexOf(members, h.self)
	st := h.requiresStateTransfer(members, seqno)

	return gcstypes.Action{
		Type:        gcstypes.ActCONF,
		Payload:     EncodeConf(seqno, confID, h.groupUUID, st, members, myIdx),
		GlobalSeqno: seqno,
		LocalSeqno:  seqno,
		Origin:      h.self,
	}
}

func (h *Handler) orderedMembers() []gcstypes.NodeID {
	var members []gcstypes.NodeID
	h.tree.AscendGreaterOrEqual(memberItem{}, func(item llrb.Item) bool {
		members = append(members, item.(memberItem).id)
		return true
	})
	return members
}

func indexOf(members []gcstypes.NodeID, self gcstypes.NodeID) int {
	for i, m := range members {
		if m == self {
			return i
		}
	}
	return -1
}

// requiresStateTransfer implements Open Question (c) (spec.md §9): a
// joiner needs state transfer when the group's UUID is not nil and this
// node's own applied progress is behind either the highest applied seqno
// any surviving member has reported or quorumSeqno. Only the handler's own
// group UUID is known here, so a diverging UUID is not detected.
func (h *Handler) requiresStateTransfer(members []gcstypes.NodeID, quorumSeqno gcstypes.Seqno) bool {
	if h.groupUUID.Nil() {
		return false
	}
	high := h.applied[h.self]
	for _, m := range members {
		if a := h.applied[m]; a > high {
			high = a
		}
	}
	return h.applied[h.self] < high || h.applied[h.self] < quorumSeqno
}

// SetLastApplied records self's or a peer's most recently applied seqno,
// gossiped on COMMIT_CUT per spec.md §13, feeding both st_required
// derivation and Wait's slave-queue-lag check.
func (h *Handler) SetLastApplied(member gcstypes.NodeID, seqno gcstypes.Seqno) {
	h.applied[member] = seqno
}

// Wait implements spec.md §13's slave-queue-length threshold check: it
// reports true when self lags the group's highest reported applied seqno
// by more than the configured threshold.
func (h *Handler) Wait() bool {
	high := h.applied[h.self]
	for _, s := range h.applied {
		if s > high {
			high = s
		}
	}
	return high-h.applied[h.self] > h.lagThreshold
}

// GroupUUID returns the current group history epoch identity.
func (h *Handler) GroupUUID() gcstypes.GroupUUID { return h.groupUUID }

// freshUUID derives a deterministic non-nil UUID for a group forming its
// first primary component. Grounded on gu_to.h's uuid generation being an
// out-of-scope collaborator (spec.md §1): a real deployment would draw
// this from an OS-level UUID generator, but the connection core only
// needs *a* non-nil identity to distinguish this epoch from "never
// primary", so it derives one deterministically from the founding
// membership instead of pulling in a UUID library for a single byte
// pattern spec.md never mandates the format of.
func freshUUID(members []gcstypes.NodeID) gcstypes.GroupUUID {
	var u gcstypes.GroupUUID
	var seed []byte
	for _, m := range members {
		seed = append(seed, []byte(m)...)
	}
	if len(seed) == 0 {
		seed = []byte("gcs")
	}
	for i := range u {
		u[i] = seed[i%len(seed)] ^ byte(i*31)
	}
	return u
}
