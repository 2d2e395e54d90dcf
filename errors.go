package gcs

import "github.com/codership/gcs/gcstypes"

// Kind classifies a GCS error the way spec-level "errno" style codes do.
// Operational kinds (Busy, BadState, Overflow, Cancelled, Interrupted,
// NotConnected) are returned straight to the caller and leave the
// connection/monitor usable. Protocol and Assembly surface as ordered
// ERROR actions instead of tearing down the connection. Fatal means the
// backend is gone and the connection moves to CLOSED.
type Kind = gcstypes.Kind

const (
	KindNone         = gcstypes.KindNone
	KindBusy         = gcstypes.KindBusy
	KindBadState     = gcstypes.KindBadState
	KindOverflow     = gcstypes.KindOverflow
	KindOutOfRange   = gcstypes.KindOutOfRange
	KindCancelled    = gcstypes.KindCancelled
	KindInterrupted  = gcstypes.KindInterrupted
	KindNotConnected = gcstypes.KindNotConnected
	KindNotFound     = gcstypes.KindNotFound
	KindProtocol     = gcstypes.KindProtocol
	KindFatal        = gcstypes.KindFatal
	KindAssembly     = gcstypes.KindAssembly
)

// newError builds a Kind-tagged error wrapping msg with a stack trace.
func newError(kind Kind, msg string) error { return gcstypes.NewError(kind, msg) }

// NewError builds a Kind-tagged error for use by sibling packages
// (transport, configh, ...) that need to raise a gcs-level error kind
// without importing internals.
func NewError(kind Kind, msg string) error { return gcstypes.NewError(kind, msg) }

// NewNotFoundError is a convenience wrapper for the common "unknown
// backend/config key" case (spec.md §7 NotFound).
func NewNotFoundError(msg string) error { return gcstypes.NewNotFoundError(msg) }

// NewConfigError reports a malformed configuration value; classified as
// NotFound since there is no dedicated Kind for it and it is, like
// NotFound, a caller-supplied-name-doesn't-resolve error.
func NewConfigError(msg string) error { return gcstypes.NewConfigError(msg) }

// ErrorKind extracts the Kind from an error produced by this package,
// KindNone if err is nil or foreign.
func ErrorKind(err error) Kind { return gcstypes.ErrorKind(err) }

// Errno maps an error produced by this package to the negative POSIX-style
// code the language-neutral API of spec §6.1 documents. 0 means success.
func Errno(err error) int { return gcstypes.Errno(err) }
