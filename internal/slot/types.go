// Package slot implements the backend-agnostic I/O descriptor table: the
// fixed shared array of slots, generation-tagged handles, and the state
// machine that governs how a slot moves from free to in-flight to done and
// back.
package slot

import "fmt"

// OpType is the tagged variant of operation a slot carries.
type OpType uint8

const (
	OpNop OpType = iota
	OpFsync
	OpFsyncWAL
	OpFlushRange
	OpReadBuffer
	OpWriteBuffer
	OpWriteWAL
	OpWriteGeneric
)

func (t OpType) String() string {
	switch t {
	case OpNop:
		return "NOP"
	case OpFsync:
		return "FSYNC"
	case OpFsyncWAL:
		return "FSYNC_WAL"
	case OpFlushRange:
		return "FLUSH_RANGE"
	case OpReadBuffer:
		return "READ_BUFFER"
	case OpWriteBuffer:
		return "WRITE_BUFFER"
	case OpWriteWAL:
		return "WRITE_WAL"
	case OpWriteGeneric:
		return "WRITE_GENERIC"
	default:
		return fmt.Sprintf("OpType(%d)", uint8(t))
	}
}

// IsWrite reports whether the op type writes to the file.
func (t OpType) IsWrite() bool {
	switch t {
	case OpWriteBuffer, OpWriteWAL, OpWriteGeneric:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether the op type may enter the retry path: only
// buffer reads and buffer writes are retryable.
func (t OpType) IsRetryable() bool {
	return t == OpReadBuffer || t == OpWriteBuffer
}

// Flags is the per-slot state bitset. Every bit transition
// is performed either by the slot's owner process or under the arena's
// central mutex; see Arena for the mutex-guarded transitions.
type Flags uint32

const (
	FlagUnused Flags = 1 << iota
	FlagIdle
	FlagInProgress
	FlagPending
	FlagInflight
	FlagReaped
	FlagSharedCBCalled
	FlagLocalCBCalled
	FlagDone
	FlagForeignDone
	FlagMerge
	FlagRetry
	FlagHardFail
	FlagSoftFail
	FlagSharedFailed
	FlagDriverReturned
)

var flagNames = [...]struct {
	bit  Flags
	name string
}{
	{FlagUnused, "UNUSED"},
	{FlagIdle, "IDLE"},
	{FlagInProgress, "IN_PROGRESS"},
	{FlagPending, "PENDING"},
	{FlagInflight, "INFLIGHT"},
	{FlagReaped, "REAPED"},
	{FlagSharedCBCalled, "SHARED_CB_CALLED"},
	{FlagLocalCBCalled, "LOCAL_CB_CALLED"},
	{FlagDone, "DONE"},
	{FlagForeignDone, "FOREIGN_DONE"},
	{FlagMerge, "MERGE"},
	{FlagRetry, "RETRY"},
	{FlagHardFail, "HARD_FAIL"},
	{FlagSoftFail, "SOFT_FAIL"},
	{FlagSharedFailed, "SHARED_FAILED"},
	{FlagDriverReturned, "DRIVER_RETURNED"},
}

// String renders the flag set as a "|"-joined list, e.g. "IN_PROGRESS|PENDING".
func (f Flags) String() string {
	if f == 0 {
		return "(none)"
	}
	s := ""
	for _, fn := range flagNames {
		if f&fn.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += fn.name
		}
	}
	if s == "" {
		return fmt.Sprintf("Flags(0x%x)", uint32(f))
	}
	return s
}

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// Any reports whether any bit in mask is set.
func (f Flags) Any(mask Flags) bool { return f&mask != 0 }

// lifecyclePartition is the disjoint partition tested by testable-property 1.
const lifecyclePartition = FlagUnused | FlagIdle | FlagInProgress | FlagDone

// inProgressPartition is the disjoint partition tested by testable-property 2.
const inProgressPartition = FlagPending | FlagInflight | FlagReaped

// OwnerID identifies the initiating process. Within this implementation a
// "process" is an *aio.Engine, not an OS process — multiple Engines share
// one Arena the way multiple OS processes would share one memory segment.
type OwnerID uint32

// NoOwner is the sentinel owner of a slot that is not currently acquired.
const NoOwner OwnerID = 0

// OpParams is the discriminated union of parameters for the eight op types.
// Only the fields relevant to the slot's OpType are meaningful.
type OpParams struct {
	FD          int    // file descriptor the op targets
	Offset      int64  // byte offset
	Length      uint32 // requested byte length
	AlreadyDone uint32 // bytes already transferred (mid-retry progress)
	Tag         uint64 // cached identifying tag; looks up soft-failed slots, never reopens the fd
	Barrier     bool   // keeps the op out of merge chains; drivers do not enforce ordering
	Datasync    bool   // fdatasync-style: skip metadata-only flush
	NoReorder   bool   // same effect as Barrier: excluded from merging only
	Buffer      []byte // memory target/source; nil for FSYNC/FLUSH_RANGE
}

// byteRange reports the [start, end) byte range for merge adjacency checks.
func (p OpParams) byteRange() (start, end int64) {
	return p.Offset, p.Offset + int64(p.Length)
}
