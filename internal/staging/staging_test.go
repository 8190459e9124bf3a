package staging

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/behrlich/aio/internal/procstate"
	"github.com/behrlich/aio/internal/slot"
)

func TestAdjacentBufferWritesMerge(t *testing.T) {
	a := slotArena(t, 4)
	st := procstate.New(slot.OwnerID(1))

	s1 := a.Acquire(slot.OwnerID(1), nil)
	s1.Prepare(slot.OpWriteBuffer, slot.OpParams{FD: 7, Offset: 0, Length: 4096}, 0)
	head := Stage(st, s1, 16)
	require.Same(t, s1, head)

	s2 := a.Acquire(slot.OwnerID(1), nil)
	s2.Prepare(slot.OpWriteBuffer, slot.OpParams{FD: 7, Offset: 4096, Length: 4096}, 0)
	head2 := Stage(st, s2, 16)

	require.Same(t, s1, head2, "byte-adjacent write should fold into the existing chain")
	require.Same(t, s2, s1.MergeWith)
	require.True(t, s2.Flags().Has(slot.FlagMerge))
}

func TestReverseOrderWritesDoNotMerge(t *testing.T) {
	a := slotArena(t, 4)
	st := procstate.New(slot.OwnerID(1))

	s1 := a.Acquire(slot.OwnerID(1), nil)
	s1.Prepare(slot.OpWriteBuffer, slot.OpParams{FD: 7, Offset: 4096, Length: 4096}, 0)
	Stage(st, s1, 16)

	s2 := a.Acquire(slot.OwnerID(1), nil)
	s2.Prepare(slot.OpWriteBuffer, slot.OpParams{FD: 7, Offset: 0, Length: 4096}, 0)
	head2 := Stage(st, s2, 16)

	require.Same(t, s2, head2, "a write ending where the chain begins must not fold on in reverse order")
	require.Nil(t, s2.MergeHead)
}

func TestWALWritesNeverMerge(t *testing.T) {
	a := slotArena(t, 4)
	st := procstate.New(slot.OwnerID(1))

	s1 := a.Acquire(slot.OwnerID(1), nil)
	s1.Prepare(slot.OpWriteWAL, slot.OpParams{FD: 7, Offset: 0, Length: 4096}, 0)
	Stage(st, s1, 16)

	s2 := a.Acquire(slot.OwnerID(1), nil)
	s2.Prepare(slot.OpWriteWAL, slot.OpParams{FD: 7, Offset: 4096, Length: 4096}, 0)
	head2 := Stage(st, s2, 16)

	require.Same(t, s2, head2, "WAL writes must never merge")
	require.Nil(t, s2.MergeHead)
}

func TestCombineLimitCapsChainLength(t *testing.T) {
	a := slotArena(t, 8)
	st := procstate.New(slot.OwnerID(1))

	s1 := a.Acquire(slot.OwnerID(1), nil)
	s1.Prepare(slot.OpReadBuffer, slot.OpParams{FD: 1, Offset: 0, Length: 100}, 0)
	Stage(st, s1, 2)

	s2 := a.Acquire(slot.OwnerID(1), nil)
	s2.Prepare(slot.OpReadBuffer, slot.OpParams{FD: 1, Offset: 100, Length: 100}, 0)
	Stage(st, s2, 2)

	s3 := a.Acquire(slot.OwnerID(1), nil)
	s3.Prepare(slot.OpReadBuffer, slot.OpParams{FD: 1, Offset: 200, Length: 100}, 0)
	head3 := Stage(st, s3, 2)

	require.Same(t, s3, head3, "combine limit of 2 must reject a third fusion")
}

func slotArena(t *testing.T, n int) *slot.Arena {
	t.Helper()
	return slot.New(n, 4, 4096, nil)
}
