// Package staging implements pending-list accumulation and adjacent-op
// merging: before a backend submits work to its driver, newly prepared
// slots sit on the per-backend pending list where byte-adjacent
// operations against the same file and in the same direction may be fused
// into a single driver submission.
package staging

import (
	"github.com/behrlich/aio/internal/procstate"
	"github.com/behrlich/aio/internal/slot"
)

// Stage appends s to st's pending list, or folds it onto an existing merge
// chain for the same file descriptor when adjacency and the combine limit
// both allow it. Returns the slot that should actually be submitted to the
// driver: s itself, or the chain head it was folded into.
func Stage(st *procstate.State, s *slot.Slot, combineLimit int) *slot.Slot {
	if head := tryMerge(st, s, combineLimit); head != nil {
		st.SetLastStagedFor(s.Params.FD, s)
		return head
	}
	st.Pending.PushBack(s)
	if mergeable(s) {
		st.SetLastStagedFor(s.Params.FD, s)
	} else {
		st.SetLastStagedFor(s.Params.FD, nil)
	}
	return s
}

// Submitted marks fd's merge candidate as closed out — called once the
// staged (possibly fused) chain is handed to the driver, so a later op
// against the same fd starts a fresh chain.
func Submitted(st *procstate.State, fd int) {
	st.SetLastStagedFor(fd, nil)
}

// tryMerge attempts to fold s onto the pending chain currently open for
// s's file descriptor. Returns the chain head on success, nil otherwise.
func tryMerge(st *procstate.State, s *slot.Slot, combineLimit int) *slot.Slot {
	if !mergeable(s) {
		return nil
	}
	cand := st.LastStagedFor(s.Params.FD)
	if cand == nil || cand.OpType != s.OpType {
		return nil
	}
	if chainLength(cand)+1 > combineLimit {
		return nil
	}
	candEnd := cand.Params.Offset + int64(cand.Params.Length)
	sStart := s.Params.Offset
	if candEnd != sStart {
		return nil
	}

	head := chainHeadOf(cand)
	s.MergeHead = head
	s.MarkMerged()
	tailOfChain(head).MergeWith = s
	return head
}

// mergeable reports whether s may ever participate in a merge chain. WAL
// writes and barrier/no-reorder ops never merge: each must land at its own
// offset, independently ordered against everything else in flight.
func mergeable(s *slot.Slot) bool {
	if s.OpType == slot.OpWriteWAL {
		return false
	}
	if s.Params.Barrier || s.Params.NoReorder {
		return false
	}
	switch s.OpType {
	case slot.OpReadBuffer, slot.OpWriteBuffer:
		return true
	default:
		return false
	}
}

func chainHeadOf(s *slot.Slot) *slot.Slot {
	if s.MergeHead != nil {
		return s.MergeHead
	}
	return s
}

func tailOfChain(head *slot.Slot) *slot.Slot {
	s := head
	for s.MergeWith != nil {
		s = s.MergeWith
	}
	return s
}

func chainLength(s *slot.Slot) int {
	head := chainHeadOf(s)
	n := 1
	for c := head; c.MergeWith != nil; c = c.MergeWith {
		n++
	}
	return n
}
