package configh

import (
	"encoding/binary"

	"github.com/codership/gcs/gcstypes"
)

// MemberNameMax is the null-terminated member ID field width inside a
// CONF payload's data[] blob (spec.md §6.4, grounded on gu_to.h's
// GCS_MEMBER_NAME_MAX).
const MemberNameMax = 40

// EncodeConf serializes a CONF action's payload per spec.md §6.4:
//
//	int64  seqno
//	int64  conf_id           (-1 if non-primary)
//	byte[16] group_uuid
//	uint8  st_required       (0/1)
//	int32  memb_num
//	int32  my_idx
//	byte[] data              concatenation of memb_num null-terminated member IDs
//
// Each member ID occupies a fixed MemberNameMax-byte, null-padded field so
// data[] can be walked without a length prefix per entry, matching the
// original's fixed-width member name convention. IDs longer than
// MemberNameMax-1 bytes are truncated so every field keeps a terminator.
func EncodeConf(seqno gcstypes.Seqno, confID int64, uuid gcstypes.GroupUUID, stRequired bool, members []gcstypes.NodeID, myIdx int) []byte {
	buf := make([]byte, 8+8+gcstypes.UUIDLen+1+4+4+len(members)*MemberNameMax)
	off := 0
	binary.BigEndian.PutUint64(buf[off:], uint64(seqno))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(confID))
	off += 8
	copy(buf[off:], uuid[:])
	off += gcstypes.UUIDLen
	if stRequired {
		buf[off] = 1
	}
	off++
	binary.BigEndian.PutUint32(buf[off:], uint32(len(members)))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(myIdx))
	off += 4
	for _, m := range members {
		name := []byte(m)
		if len(name) > MemberNameMax-1 {
			name = name[:MemberNameMax-1]
		}
		copy(buf[off:off+MemberNameMax], name)
		off += MemberNameMax
	}
	return buf
}

// Conf is the decoded form of a CONF action's payload, per spec.md §6.4.
type Conf struct {
	Seqno      gcstypes.Seqno
	ConfID     int64
	GroupUUID  gcstypes.GroupUUID
	StRequired bool
	Members    []gcstypes.NodeID
	MyIdx      int
}

// DecodeConf parses a CONF action payload built by EncodeConf. It returns
// a Protocol-kind error if buf is truncated or its declared member count
// doesn't fit.
func DecodeConf(buf []byte) (Conf, error) {
	const fixedLen = 8 + 8 + gcstypes.UUIDLen + 1 + 4 + 4
	if len(buf) < fixedLen {
		return Conf{}, gcstypes.NewError(gcstypes.KindProtocol, "truncated CONF payload")
	}
	var c Conf
	off := 0
	c.Seqno = gcstypes.Seqno(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	c.ConfID = int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	copy(c.GroupUUID[:], buf[off:off+gcstypes.UUIDLen])
	off += gcstypes.UUIDLen
	c.StRequired = buf[off] != 0
	off++
	membNum := int(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	c.MyIdx = int(binary.BigEndian.Uint32(buf[off:]))
	off += 4

	if len(buf)-off != membNum*MemberNameMax {
		return Conf{}, gcstypes.NewError(gcstypes.KindProtocol, "CONF payload member data length mismatch")
	}
	c.Members = make([]gcstypes.NodeID, membNum)
	for i := 0; i < membNum; i++ {
		field := buf[off : off+MemberNameMax]
		off += MemberNameMax
		end := len(field)
		for j, b := range field {
			if b == 0 {
				end = j
				break
			}
		}
		c.Members[i] = gcstypes.NodeID(field[:end])
	}
	return c, nil
}
