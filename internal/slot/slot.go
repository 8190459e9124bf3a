package slot

import (
	"sync"
	"sync/atomic"

	"github.com/behrlich/aio/internal/bounce"
)

// LocalCallback is per-slot completion logic; it runs only in the
// initiating process.
type LocalCallback func(s *Slot, carrier any)

// Slot is a fixed-size record held in the shared slot table. All
// fields are either owner-written (read with acquire ordering by others) or
// guarded by the Arena's central mutex; see field comments.
type Slot struct {
	index int32 // fixed at construction; never changes

	// flags, generation and result are written only by the slot's current
	// owner (as defined by the state machine) or under the Arena's central
	// mutex during the DONE<->UNUSED transitions; every other reader uses
	// the atomic load below, which is acquire-ordered.
	flags      atomic.Uint32
	generation atomic.Uint64
	result     atomic.Int64

	userReferenced   atomic.Bool
	systemReferenced atomic.Bool

	OpType   OpType
	Params   OpParams
	OwnerID  OwnerID
	DriverCtx int

	SharedCB uint8 // small-integer index into the shared-callback registry

	MergeWith *Slot // next slot in a fused chain; nil if not merged
	MergeHead *Slot // chain head; nil if this slot is not part of a chain

	localCB      LocalCallback
	localCarrier any

	Bounce *bounce.Buffer

	retries int // soft-failure retry count; no lock taken, see IncRetries

	OwnerLink link
	IOLink    link

	notifyMu sync.Mutex
	notifyCh chan struct{}
}

func newSlot(index int32) *Slot {
	s := &Slot{index: index}
	s.notifyCh = make(chan struct{})
	s.flags.Store(uint32(FlagUnused))
	return s
}

// Index returns the slot's fixed position in the arena.
func (s *Slot) Index() int32 { return s.index }

// Flags returns the current flag set with acquire ordering.
func (s *Slot) Flags() Flags { return Flags(s.flags.Load()) }

// setFlags is called by the owner (or under the central mutex) to
// transition state; it always notifies waiters.
func (s *Slot) setFlags(f Flags) {
	s.flags.Store(uint32(f))
	s.Notify()
}

// addFlags ORs bits into the current flag set.
func (s *Slot) addFlags(f Flags) { s.setFlags(s.Flags() | f) }

// clearFlags ANDs out bits from the current flag set.
func (s *Slot) clearFlags(f Flags) { s.setFlags(s.Flags() &^ f) }

// Generation returns the slot's current generation with acquire ordering.
func (s *Slot) Generation() uint64 { return s.generation.Load() }

// Result returns the op's result: negative errno on failure, non-negative
// byte count on success.
func (s *Slot) Result() int64 { return s.result.Load() }

// SetResult is called by whichever process reaps the slot's completion.
func (s *Slot) SetResult(r int64) { s.result.Store(r) }

// UserReferenced reports whether the initiating caller still holds a
// reference.
func (s *Slot) UserReferenced() bool { return s.userReferenced.Load() }

// SystemReferenced reports whether the engine itself still holds a
// reference — true whenever the slot is on pending, reaped,
// issued_abandoned, foreign_completed or local_completed.
func (s *Slot) SystemReferenced() bool { return s.systemReferenced.Load() }

// MakeHandle captures a stable (index, generation) reference.
func (s *Slot) MakeHandle() Handle {
	return Handle{Index: s.index, Generation: s.Generation()}
}

// SetLocalCallback installs the per-slot local completion callback and its
// carrier context.
func (s *Slot) SetLocalCallback(cb LocalCallback, carrier any) {
	s.localCB = cb
	s.localCarrier = carrier
}

// RunLocalCallback invokes the installed local callback, if any.
func (s *Slot) RunLocalCallback() {
	if s.localCB != nil {
		s.localCB(s, s.localCarrier)
	}
}

// HasLocalCallback reports whether a local callback is installed.
func (s *Slot) HasLocalCallback() bool { return s.localCB != nil }

// AddFlags ORs additional bits into the slot's flag set, e.g. the
// bookkeeping bits SHARED_CB_CALLED/LOCAL_CB_CALLED that don't represent a
// lifecycle transition on their own.
func (s *Slot) AddFlags(f Flags) { s.addFlags(f) }

// Retries returns the slot's current soft-failure retry count.
func (s *Slot) Retries() int { return s.retries }

// IncRetries increments the retry count. No lock is taken: the count is
// written only by whoever holds the reaped slot while scheduling its
// retry, and is reset when the slot is acquired.
func (s *Slot) IncRetries() { s.retries++ }

// Notify wakes every goroutine currently blocked in Wait.
func (s *Slot) Notify() {
	s.notifyMu.Lock()
	ch := s.notifyCh
	s.notifyCh = make(chan struct{})
	s.notifyMu.Unlock()
	close(ch)
}

// changeSignal returns the channel waiters should select on for the next
// state change — a per-slot condition variable built from a swapped channel.
func (s *Slot) changeSignal() <-chan struct{} {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	return s.notifyCh
}

// WaitChange blocks until the slot's state changes, the generation no
// longer matches gen (meaning the slot was recycled out from under the
// waiter), or the stop channel fires. Returns true if a change was
// observed, false on stop.
func (s *Slot) WaitChange(gen uint64, stop <-chan struct{}) bool {
	if s.Generation() != gen {
		return true
	}
	sig := s.changeSignal()
	select {
	case <-sig:
		return true
	case <-stop:
		return false
	}
}
