// Package gcs implements the client-facing core of a group communication
// service: applications inject arbitrary-sized actions into a virtually
// synchronous, totally ordered channel and receive them back in identical
// order on every member.
package gcs

import "github.com/codership/gcs/gcstypes"

// Seqno is a 64-bit signed sequence number, monotonic within a UUID epoch.
type Seqno = gcstypes.Seqno

const (
	// SeqnoIll marks an action that was never serialized into the ordered
	// stream (e.g. a failed send).
	SeqnoIll = gcstypes.SeqnoIll
	// SeqnoNil is the empty history / start-state seqno.
	SeqnoNil = gcstypes.SeqnoNil
	// SeqnoFirst is the first valid seqno an ordered action can carry.
	SeqnoFirst = gcstypes.SeqnoFirst
)

// UUIDLen is the byte length of a GroupUUID.
const UUIDLen = gcstypes.UUIDLen

// GroupUUID identifies a history epoch. A seqno is only meaningful together
// with the UUID of the epoch it was assigned in.
type GroupUUID = gcstypes.GroupUUID

// PutSeqno writes s to buf in big-endian form. buf must be at least 8 bytes.
func PutSeqno(buf []byte, s Seqno) { gcstypes.PutSeqno(buf, s) }

// GetSeqno reads a big-endian Seqno from buf. buf must be at least 8 bytes.
func GetSeqno(buf []byte) Seqno { return gcstypes.GetSeqno(buf) }
