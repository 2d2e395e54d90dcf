package recvqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codership/gcs/gcstypes"
)

func TestPushPopFIFO(t *testing.T) {
	q := New(4)
	require.NoError(t, q.Push(gcstypes.Action{Payload: []byte("a")}))
	require.NoError(t, q.Push(gcstypes.Action{Payload: []byte("b")}))

	act, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, "a", string(act.Payload))

	act, err = q.Pop()
	require.NoError(t, err)
	assert.Equal(t, "b", string(act.Payload))
}

func TestPushOverflow(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Push(gcstypes.Action{}))
	err := q.Push(gcstypes.Action{})
	assert.Equal(t, gcstypes.KindOverflow, gcstypes.ErrorKind(err))
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New(4)
	done := make(chan gcstypes.Action, 1)
	go func() {
		act, err := q.Pop()
		require.NoError(t, err)
		done <- act
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(gcstypes.Action{Payload: []byte("late")}))

	select {
	case act := <-done:
		assert.Equal(t, "late", string(act.Payload))
	case <-time.After(time.Second):
		t.Fatal("pop never unblocked")
	}
}

func TestCloseWakesPop(t *testing.T) {
	q := New(4)
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop()
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		assert.Equal(t, gcstypes.KindNotConnected, gcstypes.ErrorKind(err))
	case <-time.After(time.Second):
		t.Fatal("pop never woke on close")
	}
}
