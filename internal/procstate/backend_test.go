package procstate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/behrlich/aio/internal/slot"
)

func TestOldestInflightPrefersIssuedOverAbandoned(t *testing.T) {
	st := New(slot.OwnerID(1))
	a := slot.New(2, 1, 4096, nil)

	abandoned := a.Acquire(slot.OwnerID(1), nil)
	abandoned.Prepare(slot.OpReadBuffer, slot.OpParams{}, 0)
	abandoned.MarkInflight()
	st.IssuedAbandoned.PushBack(abandoned)

	issued := a.Acquire(slot.OwnerID(1), nil)
	issued.Prepare(slot.OpReadBuffer, slot.OpParams{}, 0)
	issued.MarkInflight()
	st.Issued.PushBack(issued)

	require.Same(t, issued, st.OldestInflight())
}

func TestDrainForeignCompletedMovesEveryEntry(t *testing.T) {
	st := New(slot.OwnerID(1))
	a := slot.New(2, 1, 4096, nil)

	s1 := a.Acquire(slot.OwnerID(2), nil)
	s2 := a.Acquire(slot.OwnerID(2), nil)
	st.PushForeignCompleted(s1)
	st.PushForeignCompleted(s2)
	require.Equal(t, uint64(2), st.ForeignCount.Load())

	st.DrainForeignCompleted()
	require.Equal(t, 0, st.ForeignCompleted.Len())
	require.Equal(t, 2, st.LocalCompleted.Len())
}

func TestRetryTagCacheRoundTrips(t *testing.T) {
	st := New(slot.OwnerID(1))
	a := slot.New(1, 1, 4096, nil)

	s := a.Acquire(slot.OwnerID(1), nil)
	s.Prepare(slot.OpWriteWAL, slot.OpParams{FD: 7, Tag: 42}, 0)

	st.CacheRetryTag(s)
	got, ok := st.LookupRetryTag(7, 42)
	require.True(t, ok)
	require.Same(t, s, got)

	st.ClearRetryTag(s)
	_, ok = st.LookupRetryTag(7, 42)
	require.False(t, ok)
}

func TestRetryTagCacheIgnoresZeroTag(t *testing.T) {
	st := New(slot.OwnerID(1))
	a := slot.New(1, 1, 4096, nil)

	s := a.Acquire(slot.OwnerID(1), nil)
	s.Prepare(slot.OpReadBuffer, slot.OpParams{FD: 7}, 0)

	st.CacheRetryTag(s)
	_, ok := st.LookupRetryTag(7, 0)
	require.False(t, ok)
}
