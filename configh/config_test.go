package configh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codership/gcs/gcstypes"
	"github.com/codership/gcs/transport"
)

func TestConfEncodeDecodeRoundTrip(t *testing.T) {
	members := []gcstypes.NodeID{"a", "b", "c"}
	buf := EncodeConf(42, 3, gcstypes.GroupUUID{1, 2, 3}, true, members, 1)

	c, err := DecodeConf(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 42, c.Seqno)
	assert.EqualValues(t, 3, c.ConfID)
	assert.True(t, c.StRequired)
	assert.Equal(t, members, c.Members)
	assert.Equal(t, 1, c.MyIdx)
}

func TestConfDecodeTruncated(t *testing.T) {
	_, err := DecodeConf([]byte{1, 2, 3})
	assert.Equal(t, gcstypes.KindProtocol, gcstypes.ErrorKind(err))
}

func TestApplyPrimaryAssignsConfIDAndMyIdx(t *testing.T) {
	h := New("b", gcstypes.GroupUUID{}, 10)

	ev := transport.MembershipEvent{Members: []gcstypes.NodeID{"c", "a", "b"}, MyIdx: 2, Primary: true}
	act := h.Apply(ev, 5)

	c, err := DecodeConf(act.Payload)
	require.NoError(t, err)
	assert.EqualValues(t, 0, c.ConfID)
	// membership tree orders lexicographically regardless of event order
	assert.Equal(t, []gcstypes.NodeID{"a", "b", "c"}, c.Members)
	assert.Equal(t, 1, c.MyIdx)
	assert.False(t, c.GroupUUID.Nil())
}

func TestApplyNonPrimaryConfIDIsMinusOne(t *testing.T) {
	h := New("a", gcstypes.GroupUUID{9}, 10)
	ev := transport.MembershipEvent{Members: []gcstypes.NodeID{"a"}, Primary: false}
	act := h.Apply(ev, 7)

	c, err := DecodeConf(act.Payload)
	require.NoError(t, err)
	assert.EqualValues(t, -1, c.ConfID)
}

func TestRequiresStateTransferWhenBehind(t *testing.T) {
	h := New("a", gcstypes.GroupUUID{1}, 10)
	h.SetLastApplied("a", 1)
	h.SetLastApplied("b", 100)

	ev := transport.MembershipEvent{Members: []gcstypes.NodeID{"a", "b"}, Primary: true}
	act := h.Apply(ev, 100)

	c, err := DecodeConf(act.Payload)
	require.NoError(t, err)
	assert.True(t, c.StRequired)
}

func TestWaitReportsLagPastThreshold(t *testing.T) {
	h := New("a", gcstypes.GroupUUID{1}, 5)
	h.SetLastApplied("a", 1)
	h.SetLastApplied("b", 10)
	assert.True(t, h.Wait())

	h.SetLastApplied("a", 8)
	assert.False(t, h.Wait())
}
