package gcstypes

import (
	"github.com/pkg/errors"
)

// Kind classifies a GCS error the way spec-level "errno" style codes do.
// Operational kinds (Busy, BadState, Overflow, Cancelled, Interrupted,
// NotConnected) are returned straight to the caller and leave the
// connection/monitor usable. Protocol and Assembly surface as ordered
// ERROR actions instead of tearing down the connection. Fatal means the
// backend is gone and the connection moves to CLOSED.
type Kind int

const (
	KindNone Kind = iota
	KindBusy
	KindBadState
	KindOverflow
	KindOutOfRange
	KindCancelled
	KindInterrupted
	KindNotConnected
	KindNotFound
	KindProtocol
	KindFatal
	KindAssembly
)

func (k Kind) String() string {
	switch k {
	case KindBusy:
		return "busy"
	case KindBadState:
		return "bad-state"
	case KindOverflow:
		return "overflow"
	case KindOutOfRange:
		return "out-of-range"
	case KindCancelled:
		return "cancelled"
	case KindInterrupted:
		return "interrupted"
	case KindNotConnected:
		return "not-connected"
	case KindNotFound:
		return "not-found"
	case KindProtocol:
		return "protocol"
	case KindFatal:
		return "fatal"
	case KindAssembly:
		return "assembly"
	default:
		return "none"
	}
}

// Error pairs a Kind with a stack-carrying cause from pkg/errors so
// internal call sites keep useful debugging context. The public API
// returns these as Go error values; Errno maps one to the negative
// errno-style integer of the language-neutral API.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a Kind-tagged error wrapping msg with a stack trace.
func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Cause: errors.New(msg)}
}

// NewNotFoundError is a convenience wrapper for the common "unknown
// backend/config key" case (spec.md §7 NotFound).
func NewNotFoundError(msg string) error { return NewError(KindNotFound, msg) }

// NewConfigError reports a malformed configuration value; classified as
// NotFound since there is no dedicated Kind for it and it is, like
// NotFound, a caller-supplied-name-doesn't-resolve error.
func NewConfigError(msg string) error { return NewError(KindNotFound, msg) }

// WrapError tags an existing error with a Kind, adding a stack trace if it
// doesn't already carry one.
func WrapError(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: errors.WithStack(err)}
}

// ErrorKind extracts the Kind from an error produced by this package,
// KindNone if err is nil or foreign.
func ErrorKind(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindNone
}

// Errno maps an error produced by this package to the negative POSIX-style
// code the language-neutral API of spec §6.1 documents. 0 means success.
func Errno(err error) int {
	if err == nil {
		return 0
	}
	switch ErrorKind(err) {
	case KindBusy:
		return -errBusy
	case KindBadState:
		return -errBadFD
	case KindOverflow:
		return -errAgain
	case KindOutOfRange:
		return -errRange
	case KindCancelled:
		return -errCancel
	case KindInterrupted:
		return -errIntr
	case KindNotConnected:
		return -errNotConn
	case KindNotFound:
		return -errNoEnt
	case KindProtocol:
		return -errProto
	case KindFatal:
		return -errConnAborted
	case KindAssembly:
		return -errMsgSize
	default:
		return -errUnknown
	}
}

// Numeric errno values, kept independent of the host OS's errno.h so the
// codes are stable across platforms; values follow common POSIX numbering
// for readability, but callers should compare against Kind, not the raw
// integer, wherever possible.
const (
	errUnknown     = 1
	errAgain       = 11
	errBadFD       = 77
	errBusy        = 16
	errRange       = 34
	errCancel      = 125
	errIntr        = 4
	errNotConn     = 107
	errConnAborted = 103
	errNoEnt       = 2
	errProto       = 71
	errMsgSize     = 90
)
