// Package procstate implements the per-backend (per-process) state: six
// owner-lists (Unused, Pending, Issued, IssuedAbandoned, Reaped,
// LocalCompleted) plus the spinlock-guarded foreign_completed list, an
// outstanding counter (a count, not a list of slots), and the atomic
// inflight counter. "Backend" here means per-process AIO state,
// not a storage backend.
package procstate

import (
	"sync/atomic"

	"github.com/behrlich/aio/internal/slot"
)

// State holds one cooperating process's (one Engine's) view of its own
// in-flight and completed work.
type State struct {
	Owner slot.OwnerID

	// Unused is a local free-pool optimization over the arena's central
	// free pool.
	Unused *slot.List

	// OutstandingCount tracks slots acquired and staged but not yet flushed
	// to the driver — including fused merge-chain tail members, which never
	// get their own Pending membership (only the chain head does).
	OutstandingCount atomic.Int64

	Pending         *slot.List
	Issued          *slot.List
	IssuedAbandoned *slot.List
	Reaped          *slot.List
	LocalCompleted  *slot.List

	foreignMu        spinlock
	ForeignCompleted *slot.List

	InflightCount atomic.Int64

	// LastContext is not written by the engine; the ring driver keeps its
	// own round-robin counter for context selection.
	LastContext int

	// lastStaged tracks, per file descriptor, the most recently staged
	// mergeable slot not yet submitted — the staging layer's merge
	// candidate.
	lastStaged map[int]*slot.Slot

	// retryTags indexes soft-failed slots by their cached descriptor tag;
	// see tagcache.go.
	retryTags map[uint64]*slot.Slot

	// Introspection counters.
	Executed        atomic.Uint64
	SubmissionCount atomic.Uint64
	RetryCount      atomic.Uint64
	ForeignCount    atomic.Uint64
}

// New creates an empty per-backend state for owner.
func New(owner slot.OwnerID) *State {
	return &State{
		Owner:            owner,
		Unused:           slot.NewList(slot.RoleOwner),
		Pending:          slot.NewList(slot.RoleOwner),
		Issued:           slot.NewList(slot.RoleOwner),
		IssuedAbandoned:  slot.NewList(slot.RoleOwner),
		Reaped:           slot.NewList(slot.RoleOwner),
		LocalCompleted:   slot.NewList(slot.RoleOwner),
		ForeignCompleted: slot.NewList(slot.RoleOwner),
		lastStaged:       make(map[int]*slot.Slot),
	}
}

// LastStagedFor returns the most recently staged, still-mergeable slot
// for fd, or nil.
func (st *State) LastStagedFor(fd int) *slot.Slot { return st.lastStaged[fd] }

// SetLastStagedFor records s as the merge candidate for fd. Pass nil to
// clear the candidate once a chain has been submitted.
func (st *State) SetLastStagedFor(fd int, s *slot.Slot) {
	if s == nil {
		delete(st.lastStaged, fd)
		return
	}
	st.lastStaged[fd] = s
}

// LockForeign acquires the spinlock guarding ForeignCompleted.
func (s *State) LockForeign() { s.foreignMu.Lock() }

// UnlockForeign releases the spinlock guarding ForeignCompleted.
func (s *State) UnlockForeign() { s.foreignMu.Unlock() }

// PushForeignCompleted appends s2 to the foreign-completed list under the
// spinlock. Used by a different process than the slot's initiator to
// route a completion back.
func (st *State) PushForeignCompleted(s2 *slot.Slot) {
	st.LockForeign()
	st.ForeignCompleted.PushBack(s2)
	st.UnlockForeign()
	st.ForeignCount.Add(1)
}

// DrainForeignCompleted moves every slot from ForeignCompleted onto
// LocalCompleted, under the spinlock only for the duration of the splice.
func (st *State) DrainForeignCompleted() {
	st.LockForeign()
	var moved []*slot.Slot
	for s2 := st.ForeignCompleted.Front(); s2 != nil; s2 = st.ForeignCompleted.Front() {
		st.ForeignCompleted.Remove(s2)
		moved = append(moved, s2)
	}
	st.UnlockForeign()
	for _, s2 := range moved {
		st.LocalCompleted.PushBack(s2)
	}
}

// OldestInflight returns the oldest slot currently INFLIGHT, preferring
// Issued over IssuedAbandoned, or nil if none.
func (st *State) OldestInflight() *slot.Slot {
	if s := st.Issued.Front(); s != nil {
		return s
	}
	return st.IssuedAbandoned.Front()
}
