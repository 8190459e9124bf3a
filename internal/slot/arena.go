package slot

import (
	"sync"

	"github.com/behrlich/aio/internal/bounce"
)

// SharedCallback is operation-type-specific completion logic; it runs in
// whichever process reaps the completion. It returns finished:
// true for success or hard failure, false to request a soft-failure retry.
type SharedCallback func(s *Slot) (finished bool)

// Arena is the shared slot table plus the central, process-wide exclusive
// mutex guarding the free pool, the used count, the Uncompleted list and
// recycling. The bounce pool has its own lock, and the per-backend lists
// (issued_abandoned among them) are not guarded by it. Every cooperating
// "process" (Engine) in this implementation holds a reference to the same
// Arena, standing in for a real system's shared-memory segment.
type Arena struct {
	slots []*Slot

	mu       sync.Mutex
	cond     *sync.Cond
	freePool *List // RoleOwner: the central free pool
	used     int

	// Uncompleted is the central list a soft-failed slot is appended to
	//; the retry path collects from here.
	// Guarded by the Arena mutex; uses the IO-link role since a slot
	// reaches here only after being removed from every per-backend list.
	Uncompleted *List

	Bounce *bounce.Pool

	callbacks [256]SharedCallback
}

// New allocates an arena with n slots and a bounce-buffer pool of the given
// capacity/size.
func New(n int, bounceCapacity, bounceSize int, owner bounce.Owner) *Arena {
	a := &Arena{
		slots:       make([]*Slot, n),
		freePool:    NewList(RoleOwner),
		Uncompleted: NewList(RoleIO),
		Bounce:      bounce.New(bounceCapacity, bounceSize, owner),
	}
	a.cond = sync.NewCond(&a.mu)
	for i := 0; i < n; i++ {
		s := newSlot(int32(i))
		a.slots[i] = s
		a.freePool.PushBack(s)
	}
	return a
}

// Lock acquires the central mutex. Callers touching the Uncompleted list
// or recycling a slot must hold this lock for the duration of the
// transition.
func (a *Arena) Lock() { a.mu.Lock() }

// Unlock releases the central mutex.
func (a *Arena) Unlock() { a.mu.Unlock() }

// Len returns the total number of slots in the table.
func (a *Arena) Len() int { return len(a.slots) }

// Used returns the current number of non-free slots.
func (a *Arena) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// At returns the slot at a fixed index. Valid for the arena's lifetime.
func (a *Arena) At(i int32) *Slot { return a.slots[i] }

// Deref resolves a handle to its slot, reporting whether the handle's
// generation still matches — a mismatch means the op has already
// completed and the slot has been reused.
func (a *Arena) Deref(h Handle) (*Slot, bool) {
	if !h.Valid() || int(h.Index) >= len(a.slots) {
		return nil, false
	}
	s := a.slots[h.Index]
	return s, s.Generation() == h.Generation
}

// RegisterSharedCallback binds a shared callback to a small integer index,
// addressable from the slot itself so that multiple processes with
// different code-segment layouts can share completion logic.
func (a *Arena) RegisterSharedCallback(idx uint8, cb SharedCallback) {
	a.callbacks[idx] = cb
}

// RunSharedCallback invokes the callback bound to the slot's SharedCB
// index. Returns true (finished) if no callback is registered.
func (a *Arena) RunSharedCallback(s *Slot) bool {
	cb := a.callbacks[s.SharedCB]
	if cb == nil {
		return true
	}
	return cb(s)
}

// Acquire returns a slot in IDLE state owned by caller, with
// user_referenced=true and system_referenced=false. When the
// free pool is empty it calls drain (if non-nil) to let the caller make
// driver progress before retrying, and otherwise blocks on the free-pool
// condition variable.
func (a *Arena) Acquire(owner OwnerID, drain func() int) *Slot {
	a.mu.Lock()
	for {
		if s := a.freePool.PopFront(); s != nil {
			a.used++
			a.mu.Unlock()

			s.userReferenced.Store(true)
			s.systemReferenced.Store(false)
			s.OwnerID = owner
			s.retries = 0
			s.setFlags(FlagIdle)
			return s
		}
		a.mu.Unlock()

		progressed := 0
		if drain != nil {
			progressed = drain()
		}

		a.mu.Lock()
		if progressed == 0 && a.freePool.Len() == 0 {
			a.cond.Wait()
		}
	}
}

// Release clears the user reference. When the slot is neither user- nor
// system-referenced it is recycled back to the free pool immediately. If
// the slot is still system-referenced (e.g. inflight with the user having
// already released it), recycling happens later when the system reference
// drops, via ReleaseSystem.
func (a *Arena) Release(s *Slot) {
	s.userReferenced.Store(false)
	if s.SystemReferenced() {
		return
	}
	a.mu.Lock()
	a.recycleLocked(s)
	a.mu.Unlock()
}

// setSystemReferenced updates the slot's system reference bit. Callers
// must already hold the Arena lock when clearing it as part of a
// transition that might also recycle the slot — use ReleaseSystemLocked
// for that combined operation.
func (s *Slot) setSystemReferenced(v bool) { s.systemReferenced.Store(v) }

// MarkSystemReferenced sets system_referenced=true; used whenever a slot
// moves onto pending, reaped, issued_abandoned, foreign_completed or
// local_completed.
func (a *Arena) MarkSystemReferenced(s *Slot) { s.setSystemReferenced(true) }

// ReleaseSystemLocked clears system_referenced and, if the slot is also no
// longer user-referenced, recycles it. Caller must hold the Arena lock.
func (a *Arena) ReleaseSystemLocked(s *Slot) {
	s.setSystemReferenced(false)
	if !s.UserReferenced() {
		a.recycleLocked(s)
	}
}

// recycleLocked returns s to the free pool, bumping its generation and
// clearing all flags to UNUSED. Caller must hold the Arena lock.
func (a *Arena) recycleLocked(s *Slot) {
	s.generation.Add(1)
	s.OpType = OpNop
	s.Params = OpParams{}
	s.MergeWith = nil
	s.MergeHead = nil
	s.SharedCB = 0
	s.localCB = nil
	s.localCarrier = nil
	s.retries = 0
	s.OwnerID = NoOwner
	s.result.Store(0)
	s.setFlags(FlagUnused)
	if s.Bounce != nil {
		b := s.Bounce
		s.Bounce = nil
		a.Bounce.Release(b)
	}
	a.freePool.PushBack(s)
	a.used--
	a.cond.Signal()
}
