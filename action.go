package gcs

import "github.com/codership/gcs/gcstypes"

// NodeID identifies a group member. It doubles as the transport source
// identity used to key assembly slots (spec §4.2).
type NodeID = gcstypes.NodeID

// ActionType classifies a delivered or sent Action. DATA and STATE_REQ are
// application-originated; everything else is library-generated.
type ActionType = gcstypes.ActionType

const (
	ActDATA       = gcstypes.ActDATA
	ActCOMMIT_CUT = gcstypes.ActCOMMIT_CUT
	ActSTATE_REQ  = gcstypes.ActSTATE_REQ
	ActCONF       = gcstypes.ActCONF
	ActJOIN       = gcstypes.ActJOIN
	ActSYNC       = gcstypes.ActSYNC
	ActFLOW       = gcstypes.ActFLOW
	ActSERVICE    = gcstypes.ActSERVICE
	ActERROR      = gcstypes.ActERROR
	ActUNKNOWN    = gcstypes.ActUNKNOWN
)

// Action is the unit of delivery the application sees: an arbitrary-sized
// payload plus the header spec §3 describes.
type Action = gcstypes.Action

// FlowDirective is the payload of a FLOW action (spec §4.3).
type FlowDirective = gcstypes.FlowDirective
