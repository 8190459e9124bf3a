package slot

// Prepare moves a slot from IDLE to IN_PROGRESS|PENDING.
// Called only by the slot's owner, which already holds the sole reference
// to an IDLE slot, so no lock is required here.
func (s *Slot) Prepare(op OpType, params OpParams, sharedCB uint8) {
	if s.Flags() != FlagIdle {
		panic("slot: Prepare called on a slot that is not IDLE")
	}
	s.OpType = op
	s.Params = params
	s.SharedCB = sharedCB
	s.setFlags(FlagInProgress | FlagPending)
}

// Cancel reverts a prepared-but-not-yet-submitted slot back to IDLE.
func (s *Slot) Cancel() {
	if !s.Flags().Has(FlagInProgress | FlagPending) {
		panic("slot: Cancel called on a slot that is not PENDING")
	}
	s.OpType = OpNop
	s.Params = OpParams{}
	s.setFlags(FlagIdle)
}

// MarkInflight transitions PENDING -> INFLIGHT on submission.
func (s *Slot) MarkInflight() {
	if !s.Flags().Has(FlagInProgress | FlagPending) {
		panic("slot: MarkInflight called on a slot that is not PENDING")
	}
	s.setFlags((s.Flags() &^ FlagPending) | FlagInflight)
}

// MarkReaped transitions INFLIGHT -> REAPED when the driver delivers a
// completion during a drain pass.
func (s *Slot) MarkReaped() {
	if !s.Flags().Has(FlagInProgress | FlagInflight) {
		panic("slot: MarkReaped called on a slot that is not INFLIGHT")
	}
	s.setFlags((s.Flags() &^ FlagInflight) | FlagReaped)
}

// MarkDone transitions REAPED -> DONE, optionally with HARD_FAIL or
// SHARED_FAILED set.
func (s *Slot) MarkDone(extra Flags) {
	s.setFlags(FlagDone | extra)
}

// MarkMerged sets the MERGE flag on a slot folded into another's chain by
// the staging layer.
func (s *Slot) MarkMerged() { s.addFlags(FlagMerge) }

// MarkRetryPending transitions REAPED -> IN_PROGRESS|PENDING|RETRY for a
// soft-failure retry.
func (s *Slot) MarkRetryPending() {
	s.setFlags(FlagInProgress | FlagPending | FlagRetry)
}

// MarkIdleFromDone transitions DONE -> IDLE via explicit recycle, only
// valid if the slot is still user-referenced and its local callback has
// already run.
func (s *Slot) MarkIdleFromDone() {
	if !s.Flags().Has(FlagDone) {
		panic("slot: MarkIdleFromDone called on a slot that is not DONE")
	}
	s.setFlags(FlagIdle)
}

// AssertPartition validates two lifecycle invariants: exactly one
// lifecycle flag is set, and whenever IN_PROGRESS is set exactly one of
// PENDING/INFLIGHT/REAPED is set. Used by tests and by debug builds of the
// dispatcher; panics on violation, since a protocol invariant violation
// here is always fatal.
func (s *Slot) AssertPartition() {
	f := s.Flags()
	lifecycle := f & lifecyclePartition
	if popcount(uint32(lifecycle)) != 1 {
		panic("slot: lifecycle partition invariant violated: " + f.String())
	}
	if f.Has(FlagInProgress) {
		if popcount(uint32(f&inProgressPartition)) != 1 {
			panic("slot: in-progress partition invariant violated: " + f.String())
		}
	}
}

func popcount(x uint32) int {
	n := 0
	for x != 0 {
		n++
		x &= x - 1
	}
	return n
}
