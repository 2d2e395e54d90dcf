// Package gcstypes holds the wire-level types and error taxonomy shared
// between the gcs core and its collaborator packages (assembler, sendqueue,
// recvqueue, replwait, configh, transport). It exists purely to break the
// import cycle those packages would otherwise form with the root gcs
// package: they need Action/NodeID/Seqno/Fragment and the Kind-tagged
// error constructors, and the root package needs their concrete types, so
// the shared vocabulary lives one level below both. The root gcs package
// re-exports the names its public API uses as type/const/func aliases, so
// callers of the public API never need this package directly; Error and
// WrapError are not re-exported.
package gcstypes

import "encoding/binary"

// Seqno is a 64-bit signed sequence number, monotonic within a UUID epoch.
type Seqno int64

const (
	// SeqnoIll marks an action that was never serialized into the ordered
	// stream (e.g. a failed send).
	SeqnoIll Seqno = -1
	// SeqnoNil is the empty history / start-state seqno.
	SeqnoNil Seqno = 0
	// SeqnoFirst is the first valid seqno an ordered action can carry.
	SeqnoFirst Seqno = 1
)

// UUIDLen is the byte length of a GroupUUID.
const UUIDLen = 16

// GroupUUID identifies a history epoch. A seqno is only meaningful together
// with the UUID of the epoch it was assigned in.
type GroupUUID [UUIDLen]byte

// Nil reports whether the UUID is the all-zero identity used before a
// group has ever formed a primary component.
func (u GroupUUID) Nil() bool {
	return u == GroupUUID{}
}

func (u GroupUUID) String() string {
	const hexdigits = "0123456789abcdef"
	buf := make([]byte, 0, UUIDLen*2)
	for _, b := range u {
		buf = append(buf, hexdigits[b>>4], hexdigits[b&0x0f])
	}
	return string(buf)
}

// PutSeqno writes s to buf in big-endian form. buf must be at least 8 bytes.
func PutSeqno(buf []byte, s Seqno) {
	binary.BigEndian.PutUint64(buf, uint64(s))
}

// GetSeqno reads a big-endian Seqno from buf. buf must be at least 8 bytes.
func GetSeqno(buf []byte) Seqno {
	return Seqno(binary.BigEndian.Uint64(buf))
}
