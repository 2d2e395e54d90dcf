package gcstypes

// NodeID identifies a group member. It doubles as the transport source
// identity used to key assembly slots (spec §4.2).
type NodeID string

// ActionType classifies a delivered or sent Action. DATA and STATE_REQ are
// application-originated; everything else is library-generated.
type ActionType int

const (
	ActDATA ActionType = iota
	ActCOMMIT_CUT
	ActSTATE_REQ
	ActCONF
	ActJOIN
	ActSYNC
	ActFLOW
	ActSERVICE
	ActERROR
	ActUNKNOWN
)

func (t ActionType) String() string {
	switch t {
	case ActDATA:
		return "DATA"
	case ActCOMMIT_CUT:
		return "COMMIT_CUT"
	case ActSTATE_REQ:
		return "STATE_REQ"
	case ActCONF:
		return "CONF"
	case ActJOIN:
		return "JOIN"
	case ActSYNC:
		return "SYNC"
	case ActFLOW:
		return "FLOW"
	case ActSERVICE:
		return "SERVICE"
	case ActERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsOrdered reports whether actions of this type receive a global/local
// seqno assignment from the ordered-delivery loop (spec §4.5 step 1).
// FLOW is a service directive that rides the ordered stream but carries no
// seqno of its own.
func (t ActionType) IsOrdered() bool {
	switch t {
	case ActFLOW:
		return false
	default:
		return true
	}
}

// Action is the unit of delivery the application sees: an arbitrary-sized
// payload plus the header spec §3 describes.
type Action struct {
	Type        ActionType
	Payload     []byte
	GlobalSeqno Seqno
	LocalSeqno  Seqno
	Origin      NodeID

	// ReplTag, when non-empty, is the repl-wait tag carried on the
	// fragments that assembled this action (spec §4.3, §4.5 step 3). The
	// ordered-delivery loop uses it to route a self-delivered action back
	// to the caller of repl() instead of the Receive Queue.
	ReplTag string
}

// FlowDirective is the payload of a FLOW action (spec §4.3).
type FlowDirective struct {
	Stop   bool
	Target NodeID // zero value means broadcast to all
}

// Fragment is the elementary transport unit: a slice of one action's bytes,
// tagged so the receiving Assembler can reassemble it (spec §3 "Message").
// Fragments from a single source arrive in order, and one action's
// fragments are contiguous on the wire from that source.
type Fragment struct {
	Source     NodeID
	ActionID   uint64
	Type       ActionType
	FragmentNo uint32
	More       bool // false marks the last fragment of the action
	Payload    []byte

	// ReplTag, when non-empty, identifies a repl-wait entry this action's
	// self-delivery must fulfill (spec §4.3, §9 "Repl/recv interleaving").
	ReplTag string
}
