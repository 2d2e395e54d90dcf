package sendqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codership/gcs/gcstypes"
	"github.com/codership/gcs/transport"
)

func TestFragmentationRoundTrip(t *testing.T) {
	hub := "sendqueue-roundtrip"
	sender := transport.NewDummy(hub, "n1")
	defer sender.Close()

	q := New("n1", 100, FlowBlock, sender)
	payload := make([]byte, 250)
	for i := range payload {
		payload[i] = byte(i)
	}

	n, err := q.Send(payload, gcstypes.ActDATA, "")
	require.NoError(t, err)
	assert.Equal(t, 250, n)

	var reassembled []byte
	for {
		select {
		case f := <-sender.Messages():
			reassembled = append(reassembled, f.Payload...)
			if !f.More {
				goto done
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fragments")
		}
	}
done:
	assert.Equal(t, payload, reassembled)
}

func TestZeroLengthAction(t *testing.T) {
	hub := "sendqueue-zero"
	sender := transport.NewDummy(hub, "n1")
	defer sender.Close()

	q := New("n1", 100, FlowBlock, sender)
	n, err := q.Send(nil, gcstypes.ActDATA, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	select {
	case f := <-sender.Messages():
		assert.False(t, f.More)
		assert.Empty(t, f.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected exactly one empty fragment")
	}
}

func TestFlowStopEagain(t *testing.T) {
	hub := "sendqueue-eagain"
	sender := transport.NewDummy(hub, "n1")
	defer sender.Close()

	q := New("n1", 100, FlowEagain, sender)
	q.SetFlow(true, "")

	_, err := q.Send([]byte("x"), gcstypes.ActDATA, "")
	assert.Equal(t, gcstypes.KindOverflow, gcstypes.ErrorKind(err))
}

func TestFlowStopBlocksUntilCont(t *testing.T) {
	hub := "sendqueue-block"
	sender := transport.NewDummy(hub, "n1")
	defer sender.Close()

	q := New("n1", 100, FlowBlock, sender)
	q.SetFlow(true, "")

	done := make(chan struct{})
	go func() {
		_, err := q.Send([]byte("x"), gcstypes.ActDATA, "")
		require.NoError(t, err)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("send returned while flow-stopped")
	default:
	}

	q.SetFlow(false, "")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send never resumed after flow cont")
	}
}
