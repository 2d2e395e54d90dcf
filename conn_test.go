package gcs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codership/gcs/transport"
)

func waitForState(t *testing.T, c *Conn, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, got %v", want, c.State())
}

func openConn(t *testing.T, hub string) *Conn {
	t.Helper()
	c, err := Create("dummy://ignored", DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, c.Init(SeqnoNil, GroupUUID{}))
	require.NoError(t, c.Open(hub))
	return c
}

// recvData drains act until it sees the next ActDATA, skipping CONF/JOIN/
// SYNC housekeeping the ordered stream also delivers, and fails the test
// if none arrives within timeout.
func recvData(t *testing.T, c *Conn, timeout time.Duration) Action {
	return recvOfType(t, c, ActDATA, timeout)
}

// recvOfType drains act until it sees the next action of typ, skipping
// every other housekeeping action the ordered stream also delivers, and
// fails the test if none arrives within timeout.
func recvOfType(t *testing.T, c *Conn, typ ActionType, timeout time.Duration) Action {
	t.Helper()
	type result struct {
		act Action
		err error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			act, err := c.Recv()
			if err != nil || act.Type == typ {
				ch <- result{act, err}
				return
			}
		}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.act
	case <-time.After(timeout):
		t.Fatal("timed out waiting for an action of the expected type")
		return Action{}
	}
}

func TestOpenPrimaryTransition(t *testing.T) {
	hub := "conn-open-primary"
	a := openConn(t, hub)
	defer a.Close()
	b := openConn(t, hub)
	defer b.Close()

	waitForState(t, a, StateOpenPrimary, time.Second)
	waitForState(t, b, StateOpenPrimary, time.Second)
}

func TestReplRoundTripAcrossNodes(t *testing.T) {
	hub := "conn-repl-roundtrip"
	a := openConn(t, hub)
	defer a.Close()
	b := openConn(t, hub)
	defer b.Close()

	waitForState(t, a, StateOpenPrimary, time.Second)
	waitForState(t, b, StateOpenPrimary, time.Second)

	type replResult struct {
		g, l Seqno
		err  error
	}
	resCh := make(chan replResult, 1)
	go func() {
		g, l, err := a.Repl([]byte("hello"), ActDATA)
		resCh <- replResult{g, l, err}
	}()

	act := recvData(t, b, time.Second)
	assert.Equal(t, "hello", string(act.Payload))
	assert.Equal(t, ActDATA, act.Type)

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		assert.Equal(t, act.GlobalSeqno, res.g)
		assert.Equal(t, act.LocalSeqno, res.l)
	case <-time.After(time.Second):
		t.Fatal("repl never returned")
	}
}

// TestFragmentedReplRoundTrip is scenario S4 (spec.md §8): a payload larger
// than PktSize round-trips whole through Send's fragmentation and the
// receiver's Assembler.
func TestFragmentedReplRoundTrip(t *testing.T) {
	hub := "conn-fragmented"
	cfg := DefaultConfig()
	cfg.PktSize = 16
	a, err := Create("dummy://ignored", cfg)
	require.NoError(t, err)
	require.NoError(t, a.Init(SeqnoNil, GroupUUID{}))
	require.NoError(t, a.Open(hub))
	defer a.Close()

	b, err := Create("dummy://ignored", cfg)
	require.NoError(t, err)
	require.NoError(t, b.Init(SeqnoNil, GroupUUID{}))
	require.NoError(t, b.Open(hub))
	defer b.Close()

	waitForState(t, a, StateOpenPrimary, time.Second)
	waitForState(t, b, StateOpenPrimary, time.Second)

	payload := make([]byte, 250)
	for i := range payload {
		payload[i] = byte(i)
	}

	go a.Repl(payload, ActDATA)

	act := recvData(t, b, time.Second)
	assert.Equal(t, payload, act.Payload)
}

// TestNonPrimaryAbortsRepl is scenario S5 (spec.md §8): once a partition
// drops the group to non-primary, a repl() issued there fails with
// NotConnected rather than hanging forever.
func TestNonPrimaryAbortsRepl(t *testing.T) {
	hub := "conn-nonprimary-abort"
	a := openConn(t, hub)
	defer a.Close()
	b := openConn(t, hub)
	defer b.Close()

	waitForState(t, a, StateOpenPrimary, time.Second)
	waitForState(t, b, StateOpenPrimary, time.Second)

	dummy, ok := a.tr.(*transport.Dummy)
	require.True(t, ok)
	dummy.Hub().Partition()

	waitForState(t, a, StateOpenNonPrimary, time.Second)

	type replResult struct {
		err error
	}
	resCh := make(chan replResult, 1)
	go func() {
		_, _, err := a.Repl([]byte("stuck"), ActDATA)
		resCh <- replResult{err}
	}()

	select {
	case res := <-resCh:
		assert.Equal(t, KindNotConnected, ErrorKind(res.err))
	case <-time.After(time.Second):
		t.Fatal("repl never aborted after partition")
	}
}

// TestStateTransferDonorSelection is scenario S6 (spec.md §8): every
// member resolves the same donor for a given STATE_REQ, and the requester
// gets a skip seqno back from its own request_state_transfer call.
func TestStateTransferDonorSelection(t *testing.T) {
	hub := "conn-state-transfer"
	a := openConn(t, hub)
	defer a.Close()
	b := openConn(t, hub)
	defer b.Close()

	waitForState(t, a, StateOpenPrimary, time.Second)
	waitForState(t, b, StateOpenPrimary, time.Second)

	type reqResult struct {
		donorIdx  int
		skipSeqno Seqno
		err       error
	}
	resCh := make(chan reqResult, 1)
	go func() {
		donorIdx, skipSeqno, err := a.RequestStateTransfer([]byte("give me state"))
		resCh <- reqResult{donorIdx, skipSeqno, err}
	}()

	act := recvOfType(t, b, ActSTATE_REQ, time.Second)
	assert.Equal(t, "give me state", string(act.Payload))
	assert.Equal(t, a.Self(), act.Origin)

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		assert.NotEqual(t, SeqnoIll, res.skipSeqno)
		assert.Equal(t, act.GlobalSeqno, res.skipSeqno)
		assert.GreaterOrEqual(t, res.donorIdx, 0)
	case <-time.After(time.Second):
		t.Fatal("RequestStateTransfer never returned")
	}

	waitForState(t, a, StateJoiner, time.Second)
}

func TestSetPktSizePropagatesToSendQueue(t *testing.T) {
	hub := "conn-set-pktsize"
	a := openConn(t, hub)
	defer a.Close()
	waitForState(t, a, StateOpenNonPrimary, time.Second)

	a.SetPktSize(8)
	assert.Equal(t, 8, a.sendQ.PktSize())
}
