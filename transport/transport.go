// Package transport defines the GroupTransport capability the GCS core
// consumes (spec.md §6.3) and hosts the pluggable backends ("dummy",
// "gcomm", legacy "spread") behind a small URL-based registry (spec.md
// §6.2 "Backend URL form"). None of this package implements ordering or
// replication guarantees itself beyond what each backend's doc comment
// promises; the core treats every backend as an external collaborator.
package transport

import (
	"fmt"
	"net/url"

	"github.com/codership/gcs/gcstypes"
)

// MembershipEvent reports a raw membership change as the backend observed
// it, before the Configuration Handler turns it into a CONF action.
type MembershipEvent struct {
	Members []gcstypes.NodeID
	MyIdx   int
	Primary bool
}

// GroupTransport is the capability the core requires of a backend:
// broadcast an ordered fragment, and receive ordered messages and
// membership events in per-source order (spec.md §6.3).
type GroupTransport interface {
	// Broadcast sends f to the group. Fragments from a single source are
	// delivered to every member (including the sender) in the order
	// Broadcast was called, as long as the group stays in a primary
	// configuration.
	Broadcast(f gcstypes.Fragment) error

	// Messages delivers fragments in per-source FIFO order. The channel
	// is never closed: a backend torn down by Close (or one that fails
	// fatally) simply stops sending on it, since other members may still
	// be broadcasting into the same channel concurrently. Callers detect
	// backend death some other way (e.g. the core's own stop signal),
	// not by a closed-channel read.
	Messages() <-chan gcstypes.Fragment

	// Membership delivers raw membership events. As with Messages, the
	// channel is never closed on teardown.
	Membership() <-chan MembershipEvent

	// Self returns this process's own node identity within the group.
	Self() gcstypes.NodeID

	// Close releases backend resources. Idempotent.
	Close() error
}

// Factory constructs a GroupTransport for a backend-specific address (the
// part of the URL after "type://").
type Factory func(address string) (GroupTransport, error)

var registry = map[string]Factory{}

// Register adds a backend factory under the given URL scheme. Intended to
// be called from backend package init() functions.
func Register(scheme string, f Factory) {
	registry[scheme] = f
}

// Open parses a "type://address" backend URL (spec.md §6.2) and dials the
// matching registered backend. Unknown types fail with KindNotFound.
func Open(backend string) (GroupTransport, error) {
	u, err := url.Parse(backend)
	if err != nil || u.Scheme == "" {
		return nil, gcstypes.NewConfigError(fmt.Sprintf("malformed backend url %q", backend))
	}
	factory, ok := registry[u.Scheme]
	if !ok {
		return nil, gcstypes.NewNotFoundError(fmt.Sprintf("unknown backend type %q", u.Scheme))
	}
	address := u.Host + u.Path
	return factory(address)
}
