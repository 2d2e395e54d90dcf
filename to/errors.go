package to

import "github.com/pkg/errors"

// Kind classifies a TO monitor error. The TO monitor is an independent
// object applications instantiate directly (spec §4.1), so it carries its
// own small error taxonomy rather than depending on the gcs package.
type Kind int

const (
	KindNone Kind = iota
	KindOutOfRange // ERANGE: seqno already past, or grab == last_released
	KindOverflow   // EAGAIN: waiting queue would overflow
	KindCancelled  // ECANCEL: waiter was cancelled
	KindInterrupted
	KindBadState // application misuse, e.g. releasing out of order
	KindBusy     // Destroy called while waiters remain
)

func (k Kind) String() string {
	switch k {
	case KindOutOfRange:
		return "out-of-range"
	case KindOverflow:
		return "overflow"
	case KindCancelled:
		return "cancelled"
	case KindInterrupted:
		return "interrupted"
	case KindBadState:
		return "bad-state"
	case KindBusy:
		return "busy"
	default:
		return "none"
	}
}

type toError struct {
	kind  Kind
	cause error
}

func (e *toError) Error() string { return "to: " + e.kind.String() + ": " + e.cause.Error() }
func (e *toError) Unwrap() error { return e.cause }

func newErr(kind Kind, msg string) error {
	return &toError{kind: kind, cause: errors.New(msg)}
}

// ErrorKind extracts the Kind from an error returned by this package.
func ErrorKind(err error) Kind {
	if err == nil {
		return KindNone
	}
	var te *toError
	if errors.As(err, &te) {
		return te.kind
	}
	return KindNone
}
