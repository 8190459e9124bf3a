package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/behrlich/aio/internal/limiter"
	"github.com/behrlich/aio/internal/procstate"
	"github.com/behrlich/aio/internal/slot"
)

func setup(t *testing.T, retryLimit int) (*slot.Arena, *procstate.State, *limiter.Limiter, *Dispatcher) {
	t.Helper()
	a := slot.New(4, 1, 4096, nil)
	st := procstate.New(slot.OwnerID(1))
	lim := limiter.New(4)
	d := New(a, retryLimit, nil)
	return a, st, lim, d
}

func issue(a *slot.Arena, st *procstate.State, lim *limiter.Limiter, op slot.OpType) *slot.Slot {
	s := a.Acquire(slot.OwnerID(1), nil)
	s.Prepare(op, slot.OpParams{FD: 1}, 0)
	a.MarkSystemReferenced(s)
	s.MarkInflight()
	st.Issued.PushBack(s)
	st.InflightCount.Add(1)
	lim.TryAcquire()
	return s
}

func TestCompleteRoutesLocalCallback(t *testing.T) {
	a, st, lim, d := setup(t, 5)
	called := false
	s := issue(a, st, lim, slot.OpReadBuffer)
	s.SetLocalCallback(func(got *slot.Slot, _ any) {
		called = true
		require.Same(t, s, got)
	}, nil)

	d.Complete(st, lim, s)

	require.True(t, called)
	require.True(t, s.Flags().Has(slot.FlagDone))
	require.Equal(t, int64(0), st.InflightCount.Load())
	require.Equal(t, 1, st.LocalCompleted.Len())
}

func TestSoftFailureSchedulesRetryThenHardFailsAtLimit(t *testing.T) {
	a, st, lim, d := setup(t, 1)
	attempts := 0
	a.RegisterSharedCallback(1, func(s *slot.Slot) bool {
		attempts++
		return false // always soft-fail
	})

	s := issue(a, st, lim, slot.OpReadBuffer)
	s.SharedCB = 1
	d.Complete(st, lim, s)

	require.True(t, s.Flags().Has(slot.FlagRetry))
	require.Equal(t, 1, a.Uncompleted.Len())

	submitted := d.RetryNext(func(s *slot.Slot) error {
		lim.TryAcquire()
		st.Issued.PushBack(s)
		s.MarkInflight()
		st.InflightCount.Add(1)
		return nil
	})
	require.True(t, submitted)

	d.Complete(st, lim, s)
	require.True(t, s.Flags().Has(slot.FlagHardFail))
	require.True(t, s.Flags().Has(slot.FlagDone))
}

func TestFindRetryByTagLocatesAndUnlinksTheSlot(t *testing.T) {
	a, st, lim, d := setup(t, 3)
	a.RegisterSharedCallback(1, func(s *slot.Slot) bool { return false })

	s := issue(a, st, lim, slot.OpWriteWAL)
	s.Params.Tag = 99
	s.SharedCB = 1
	d.Complete(st, lim, s)

	require.Equal(t, 1, a.Uncompleted.Len())

	found, ok := d.FindRetryByTag(st, 1, 99)
	require.True(t, ok)
	require.Same(t, s, found)
	require.Equal(t, 0, a.Uncompleted.Len())

	_, ok = d.FindRetryByTag(st, 1, 99)
	require.False(t, ok)
}

func TestWaitHandleReturnsImmediatelyOnStaleGeneration(t *testing.T) {
	a := slot.New(1, 1, 4096, nil)
	s := a.Acquire(slot.OwnerID(1), nil)
	h := s.MakeHandle()
	a.Release(s)
	a.Acquire(slot.OwnerID(2), nil) // reuses the only slot, bumps generation

	stop := make(chan struct{})
	_, ok := WaitHandle(a, h, stop)
	require.True(t, ok, "a stale handle must return immediately, not block")
}

func TestWaitHandleBlocksUntilDone(t *testing.T) {
	a := slot.New(1, 1, 4096, nil)
	s := a.Acquire(slot.OwnerID(1), nil)
	h := s.MakeHandle()
	s.Prepare(slot.OpReadBuffer, slot.OpParams{}, 0)
	s.MarkInflight()

	done := make(chan struct{})
	go func() {
		_, ok := WaitHandle(a, h, nil)
		require.True(t, ok)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitHandle returned before the op completed")
	default:
	}

	s.MarkReaped()
	s.MarkDone(0)
	<-done
}
