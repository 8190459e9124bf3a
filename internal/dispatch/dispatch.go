// Package dispatch implements completion handling: splitting a
// reaped merge chain back into its constituent slots, running each one's
// shared callback, routing the result either to the initiating process's
// local_completed list or, cross-process, onto the owner's
// foreign_completed list, and the retry path for soft failures. It also
// implements wait-by-handle.
package dispatch

import (
	"github.com/behrlich/aio/internal/limiter"
	"github.com/behrlich/aio/internal/procstate"
	"github.com/behrlich/aio/internal/slot"
)

// Router resolves the per-backend State for a given owner, so a completion
// reaped by one backend can be routed to a different one's
// foreign_completed list. In this implementation an
// "owner" is an *aio.Engine; Router is implemented by the root Engine
// registry.
type Router interface {
	StateFor(owner slot.OwnerID) (*procstate.State, bool)
}

// Dispatcher ties the arena, a backend's state, and its concurrency
// limiter together to process completions and retries.
type Dispatcher struct {
	Arena      *slot.Arena
	RetryLimit int
	Router     Router
}

// New creates a Dispatcher bounded by retryLimit, a configurable retry
// bound (see DESIGN.md).
func New(a *slot.Arena, retryLimit int, router Router) *Dispatcher {
	return &Dispatcher{Arena: a, RetryLimit: retryLimit, Router: router}
}

// Complete processes one reaped slot, which may be the head of a merge
// chain. Every slot in the chain runs independently from here
// on: each gets its own shared-callback invocation and routing decision,
// since a fused write can partially fail.
func (d *Dispatcher) Complete(st *procstate.State, lim *limiter.Limiter, head *slot.Slot) {
	for s := head; s != nil; {
		next := s.MergeWith
		d.completeOne(st, lim, s)
		s = next
	}
}

func (d *Dispatcher) completeOne(st *procstate.State, lim *limiter.Limiter, s *slot.Slot) {
	st.Issued.Remove(s)
	st.IssuedAbandoned.Remove(s)
	st.Reaped.PushBack(s)
	s.MarkReaped()
	if s.Flags().Has(slot.FlagRetry) {
		st.ClearRetryTag(s)
	}
	st.InflightCount.Add(-1)
	st.Executed.Add(1)
	lim.Release()

	finished := d.Arena.RunSharedCallback(s)
	s.AddFlags(slot.FlagSharedCBCalled)

	if !finished {
		d.scheduleRetry(st, s)
		return
	}

	st.Reaped.Remove(s)
	s.MarkDone(0)
	d.route(st, s)
}

// scheduleRetry appends s to the arena's central uncompleted list when its
// retry budget allows, or marks it a hard failure otherwise.
func (d *Dispatcher) scheduleRetry(st *procstate.State, s *slot.Slot) {
	st.Reaped.Remove(s)
	if s.Retries() >= d.RetryLimit {
		s.MarkDone(slot.FlagHardFail | slot.FlagSharedFailed)
		d.route(st, s)
		return
	}
	s.IncRetries()
	st.RetryCount.Add(1)
	s.MarkRetryPending()
	st.CacheRetryTag(s)

	d.Arena.Lock()
	d.Arena.Uncompleted.PushBack(s)
	d.Arena.Unlock()
}

// FindRetryByTag looks up a pending retry by its cached descriptor tag
// rather than list order — useful when a caller wants to prioritize
// resubmitting a specific WAL descriptor's retry ahead of others waiting
// on the arena's central uncompleted list.
func (d *Dispatcher) FindRetryByTag(st *procstate.State, fd int, tag uint64) (*slot.Slot, bool) {
	s, ok := st.LookupRetryTag(fd, tag)
	if !ok {
		return nil, false
	}
	st.ClearRetryTag(s)
	d.Arena.Lock()
	d.Arena.Uncompleted.Remove(s)
	d.Arena.Unlock()
	return s, true
}

// route delivers a finished slot to its owner's local_completed list, or,
// if the current backend isn't the owner, onto the owner's
// foreign_completed list via the Router.
func (d *Dispatcher) route(st *procstate.State, s *slot.Slot) {
	if s.OwnerID == st.Owner {
		st.LocalCompleted.PushBack(s)
		s.RunLocalCallback()
		s.AddFlags(slot.FlagLocalCBCalled)
		return
	}
	if d.Router != nil {
		if owner, ok := d.Router.StateFor(s.OwnerID); ok {
			owner.PushForeignCompleted(s)
			return
		}
	}
	// No route to the owning process (it may have exited); leave the slot
	// reaped with DONE set so a subsequent Arena.Release by any holder of
	// its handle still recycles it correctly.
	st.LocalCompleted.PushBack(s)
}

// RetryNext pops the oldest pending retry from the arena's central
// uncompleted list and resubmits it via submit, if any is ready.
// Returns true if a retry was dispatched.
func (d *Dispatcher) RetryNext(submit func(*slot.Slot) error) bool {
	d.Arena.Lock()
	s := d.Arena.Uncompleted.PopFront()
	d.Arena.Unlock()
	if s == nil {
		return false
	}
	if err := submit(s); err != nil {
		d.Arena.Lock()
		d.Arena.Uncompleted.PushBack(s)
		d.Arena.Unlock()
		return false
	}
	return true
}

// WaitHandle blocks until the operation referenced by h completes, the
// stop channel fires, or h's generation is already stale — meaning the op
// completed and the slot was recycled before the caller got around to
// waiting, which is itself a form of completion. Returns ok=false only
// when stop fired first.
func WaitHandle(a *slot.Arena, h slot.Handle, stop <-chan struct{}) (result int64, ok bool) {
	s, fresh := a.Deref(h)
	if s == nil {
		return 0, true
	}
	gen := h.Generation
	for {
		if !fresh {
			return s.Result(), true
		}
		if s.Flags().Has(slot.FlagDone) {
			return s.Result(), true
		}
		if !s.WaitChange(gen, stop) {
			return 0, false
		}
		_, fresh = a.Deref(h)
	}
}
