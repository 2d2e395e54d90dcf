package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codership/gcs/gcstypes"
)

// frag builds a DATA fragment; last marks the final fragment of its action
// (Fragment.More is its negation).
func frag(src gcstypes.NodeID, id uint64, no uint32, last bool, payload string) gcstypes.Fragment {
	return gcstypes.Fragment{
		Source: src, ActionID: id, Type: gcstypes.ActDATA,
		FragmentNo: no, More: !last, Payload: []byte(payload),
	}
}

func TestReassemblyRoundTrip(t *testing.T) {
	a := New(0)
	act, err := a.Feed(frag("n1", 1, 0, true, "hello"))
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, "hello", string(act.Payload))
	assert.Equal(t, gcstypes.ActDATA, act.Type)
	assert.EqualValues(t, "n1", act.Origin)
}

func TestReassemblyMultiFragment(t *testing.T) {
	a := New(0)
	act, err := a.Feed(frag("n1", 1, 0, false, "hello, "))
	require.NoError(t, err)
	assert.Nil(t, act)

	act, err = a.Feed(frag("n1", 1, 1, false, "wonderful "))
	require.NoError(t, err)
	assert.Nil(t, act)

	act, err = a.Feed(frag("n1", 1, 2, true, "world"))
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, "hello, wonderful world", string(act.Payload))
}

func TestOutOfOrderFragmentIsProtocolError(t *testing.T) {
	a := New(0)
	_, err := a.Feed(frag("n1", 1, 1, true, "oops"))
	require.Error(t, err)
	assert.Equal(t, KindProtocol, ErrorKind(err))
}

func TestSizeCapExceeded(t *testing.T) {
	a := New(4)
	_, err := a.Feed(frag("n1", 1, 0, true, "toolong"))
	require.Error(t, err)
	assert.Equal(t, KindAssembly, ErrorKind(err))
}

func TestIndependentSourcesInterleave(t *testing.T) {
	a := New(0)
	_, err := a.Feed(frag("n1", 1, 0, false, "a"))
	require.NoError(t, err)
	_, err = a.Feed(frag("n2", 5, 0, false, "x"))
	require.NoError(t, err)

	act1, err := a.Feed(frag("n1", 1, 1, true, "b"))
	require.NoError(t, err)
	require.NotNil(t, act1)
	assert.Equal(t, "ab", string(act1.Payload))

	act2, err := a.Feed(frag("n2", 5, 1, true, "y"))
	require.NoError(t, err)
	require.NotNil(t, act2)
	assert.Equal(t, "xy", string(act2.Payload))
}

func TestEvictDropsInFlightAssembly(t *testing.T) {
	a := New(0)
	_, err := a.Feed(frag("n1", 1, 0, false, "partial"))
	require.NoError(t, err)
	a.Evict("n1")

	// After eviction a fresh action from n1 must start at fragment 0 again.
	act, err := a.Feed(frag("n1", 2, 0, true, "restart"))
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, "restart", string(act.Payload))
}
