// Package assembler reassembles per-source fragment streams into complete
// actions (spec.md §4.2). Each source has at most one open assembly slot:
// sources send their own fragments in order, one action at a time.
package assembler

import (
	"github.com/dgraph-io/badger/y"
	"github.com/pkg/errors"

	"github.com/codership/gcs/gcstypes"
)

// Kind classifies an assembler failure.
type Kind int

const (
	KindNone Kind = iota
	KindProtocol // fragment arrived out of order
	KindAssembly // action exceeded the configured size cap
)

type asmError struct {
	kind  Kind
	cause error
}

func (e *asmError) Error() string { return e.cause.Error() }
func (e *asmError) Unwrap() error { return e.cause }

// ErrorKind extracts the Kind from an error returned by this package.
func ErrorKind(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ae *asmError
	if errors.As(err, &ae) {
		return ae.kind
	}
	return KindNone
}

// openSlot is a growing per-source assembly buffer, per spec.md §3
// "Assembly slot".
type openSlot struct {
	actionID uint64
	typ      gcstypes.ActionType
	expected uint32
	buf      []byte
	replTag  string
}

// Assembler holds one open slot per source node.
type Assembler struct {
	maxActionSize int
	slots         map[gcstypes.NodeID]*openSlot
}

// New returns an Assembler that fails (rather than silently truncating)
// any action whose reassembled size would exceed maxActionSize.
func New(maxActionSize int) *Assembler {
	return &Assembler{
		maxActionSize: maxActionSize,
		slots:         make(map[gcstypes.NodeID]*openSlot),
	}
}

// Feed processes one incoming fragment. It returns a non-nil Action once
// the fragment completes an action (More == false); otherwise it returns
// (nil, nil) while the assembly is still in progress. A non-nil error
// means the whole in-flight assembly for that source was discarded and
// should be surfaced to the application as an ERROR action (spec.md §4.2
// step 2/4).
func (a *Assembler) Feed(f gcstypes.Fragment) (*gcstypes.Action, error) {
	sl, ok := a.slots[f.Source]
	if !ok {
		sl = &openSlot{actionID: f.ActionID, typ: f.Type, expected: 0, replTag: f.ReplTag}
		a.slots[f.Source] = sl
	}

	if sl.actionID != f.ActionID {
		// A new action started before the previous one for this source
		// finished; treat as a fresh slot (the source is trusted to send
		// one action at a time, but don't wedge on a stale actionID).
		sl = &openSlot{actionID: f.ActionID, typ: f.Type, expected: 0, replTag: f.ReplTag}
		a.slots[f.Source] = sl
	}

	if f.FragmentNo != sl.expected {
		delete(a.slots, f.Source)
		return nil, &asmError{kind: KindProtocol, cause: errors.Errorf(
			"source %s: fragment %d out of order, expected %d", f.Source, f.FragmentNo, sl.expected)}
	}

	// Copy the fragment payload out of the transport's buffer before
	// retaining it: the transport is free to reuse f.Payload's backing
	// array for the next read as soon as Feed returns.
	owned := y.SafeCopy(nil, f.Payload)
	sl.buf = append(sl.buf, owned...)
	sl.expected++

	if a.maxActionSize > 0 && len(sl.buf) > a.maxActionSize {
		delete(a.slots, f.Source)
		return nil, &asmError{kind: KindAssembly, cause: errors.Errorf(
			"source %s: action exceeds max size %d", f.Source, a.maxActionSize)}
	}

	if f.More {
		return nil, nil
	}

	delete(a.slots, f.Source)
	out := make([]byte, len(sl.buf))
	copy(out, sl.buf)
	return &gcstypes.Action{
		Type:    sl.typ,
		Payload: out,
		Origin:  f.Source,
		ReplTag: sl.replTag,
	}, nil
}

// Evict drops any in-flight assembly for source, e.g. on membership
// eviction (spec.md §4.2 "Dropped on completion or on source eviction").
func (a *Assembler) Evict(source gcstypes.NodeID) {
	delete(a.slots, source)
}
