package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/behrlich/aio/internal/slot"
)

func TestSynchronousFastPathExecutesInline(t *testing.T) {
	d := New(0, 4, func(members []*slot.Slot) int64 { return int64(members[0].Params.Length) })
	defer d.Close()

	s := slot.New(1, 1, 4096, nil).Acquire(slot.OwnerID(1), nil)
	s.Prepare(slot.OpReadBuffer, slot.OpParams{Length: 42}, 0)
	require.NoError(t, d.Submit(context.Background(), s))

	delivered := 0
	n := d.Drain(func(got *slot.Slot) {
		delivered++
		require.Same(t, s, got)
		require.Equal(t, int64(42), got.Result())
	})
	require.Equal(t, 1, n)
	require.Equal(t, 1, delivered)
}

func TestWorkerPoolExecutesAsync(t *testing.T) {
	a := slot.New(4, 1, 4096, nil)
	d := New(2, 4, func(members []*slot.Slot) int64 { return 7 })
	defer d.Close()

	s := a.Acquire(slot.OwnerID(1), nil)
	s.Prepare(slot.OpWriteBuffer, slot.OpParams{Length: 10}, 0)
	require.NoError(t, d.Submit(context.Background(), s))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n := d.WaitOne(ctx, func(got *slot.Slot) {
		require.Equal(t, int64(7), got.Result())
	})
	require.Equal(t, 1, n)
}

func TestSubmitRunsExecutorAcrossWholeMergeChain(t *testing.T) {
	a := slot.New(4, 1, 4096, nil)
	d := New(0, 4, func(members []*slot.Slot) int64 {
		require.Len(t, members, 2)
		total := int64(0)
		for _, m := range members {
			total += int64(m.Params.Length)
		}
		return total
	})
	defer d.Close()

	head := a.Acquire(slot.OwnerID(1), nil)
	head.Prepare(slot.OpWriteBuffer, slot.OpParams{Length: 4096}, 0)
	tail := a.Acquire(slot.OwnerID(1), nil)
	tail.Prepare(slot.OpWriteBuffer, slot.OpParams{Length: 2048}, 0)
	tail.MergeHead = head
	head.MergeWith = tail

	require.NoError(t, d.Submit(context.Background(), head))

	n := d.Drain(func(got *slot.Slot) {
		require.Same(t, head, got)
	})
	require.Equal(t, 1, n)
	require.Equal(t, int64(4096), head.Result())
	require.Equal(t, int64(2048), tail.Result())
}

func TestWaitOneReturnsZeroOnTimeout(t *testing.T) {
	d := New(1, 4, func(members []*slot.Slot) int64 { return 0 })
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	n := d.WaitOne(ctx, func(*slot.Slot) {})
	require.Equal(t, 0, n)
}
