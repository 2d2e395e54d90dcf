package to

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1: threads grab seqnos 1..5 in reverse submission order; observed
// holding order must still be 1,2,3,4,5.
func TestOrderingReverseGrab(t *testing.T) {
	tobj := Create(8, 1)
	var mu sync.Mutex
	var order []int64
	var wg sync.WaitGroup

	for _, s := range []int64{5, 4, 3, 2, 1} {
		wg.Add(1)
		go func(s int64) {
			defer wg.Done()
			require.NoError(t, tobj.Grab(s))
			mu.Lock()
			order = append(order, s)
			mu.Unlock()
			require.NoError(t, tobj.Release(s))
		}(s)
	}
	wg.Wait()

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, order)
}

// S2: holder of 1 cancels 3; the waiter blocked on 3 gets ECANCEL before
// its predecessor is even released, and releasing 1 then 2 still lets 4
// through without anyone ever grabbing 3.
func TestCancelSkipsSeqno(t *testing.T) {
	tobj := Create(8, 1)
	require.NoError(t, tobj.Grab(1))

	waiterErr := make(chan error, 1)
	go func() {
		waiterErr <- tobj.Grab(3)
	}()
	time.Sleep(20 * time.Millisecond) // let the waiter park in Grab(3)

	holder4 := make(chan struct{})
	go func() {
		require.NoError(t, tobj.Grab(4))
		close(holder4)
	}()
	time.Sleep(20 * time.Millisecond)

	// Cancel(3) wakes the parked waiter immediately: it returns ECANCEL
	// long before seqno 1 or 2 is released, leaving its slot CANCELED
	// (not RELEASED) for Release's skip-ahead loop to consume later.
	require.NoError(t, tobj.Cancel(3))
	err := <-waiterErr
	assert.Equal(t, KindCancelled, ErrorKind(err))

	require.NoError(t, tobj.Release(1))
	require.NoError(t, tobj.Grab(2))
	require.NoError(t, tobj.Release(2))

	select {
	case <-holder4:
	case <-time.After(time.Second):
		t.Fatal("holder of 4 never became current")
	}
	require.NoError(t, tobj.Release(4))
}

// S3: window overflow returns EAGAIN.
func TestOverflow(t *testing.T) {
	tobj := Create(4, 1)
	require.NoError(t, tobj.Grab(1))

	waiting := make(chan struct{}, 2)
	go func() { tobj.Grab(2); waiting <- struct{}{} }()
	go func() { tobj.Grab(3); waiting <- struct{}{} }()
	time.Sleep(20 * time.Millisecond)

	err := tobj.Grab(5)
	assert.Equal(t, KindOverflow, ErrorKind(err))
}

// Property: Seqno() never exceeds the true last-released value and
// converges to it once quiescent.
func TestSeqnoConservative(t *testing.T) {
	tobj := Create(4, 1)
	assert.EqualValues(t, 0, tobj.Seqno())
	require.NoError(t, tobj.Grab(1))
	assert.EqualValues(t, 0, tobj.Seqno())
	require.NoError(t, tobj.Release(1))
	assert.EqualValues(t, 1, tobj.Seqno())
}

func TestGrabBelowStartOrAlreadyReleased(t *testing.T) {
	tobj := Create(4, 5)
	assert.Equal(t, KindOutOfRange, ErrorKind(tobj.Grab(4)))
	require.NoError(t, tobj.Grab(5))
	require.NoError(t, tobj.Release(5))
	assert.Equal(t, KindOutOfRange, ErrorKind(tobj.Grab(5)))
}

func TestReleaseOutOfOrderIsBadState(t *testing.T) {
	tobj := Create(4, 1)
	assert.Equal(t, KindBadState, ErrorKind(tobj.Release(1)))
}

func TestInterruptThenRetry(t *testing.T) {
	tobj := Create(4, 1)
	require.NoError(t, tobj.Grab(1))

	waiterErr := make(chan error, 1)
	go func() { waiterErr <- tobj.Grab(2) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, tobj.Interrupt(2))
	assert.Equal(t, KindInterrupted, ErrorKind(<-waiterErr))

	// seqno 2 is still live: releasing 1 should let a retried Grab(2) through.
	retryDone := make(chan struct{})
	go func() {
		require.NoError(t, tobj.Grab(2))
		close(retryDone)
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tobj.Release(1))

	select {
	case <-retryDone:
	case <-time.After(time.Second):
		t.Fatal("retried grab never succeeded")
	}
}

func TestSelfCancelBeforeGrab(t *testing.T) {
	tobj := Create(4, 1)
	require.NoError(t, tobj.SelfCancel(2))
	require.NoError(t, tobj.Grab(1))
	require.NoError(t, tobj.Release(1))
	// 2 was pre-cancelled: 3 should become current without anyone grabbing 2.
	done := make(chan struct{})
	go func() {
		require.NoError(t, tobj.Grab(3))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("grab(3) never unblocked past a self-cancelled 2")
	}
}
