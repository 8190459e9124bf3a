package aio

import (
	"golang.org/x/sys/unix"

	"github.com/behrlich/aio/internal/slot"
)

// execChain is the Executor the worker driver calls for each job it pulls
// off its shared queue. A fused chain of more than one member is serviced
// with a single scatter/gather preadv/pwritev across every member's
// buffer; a lone member falls back to execSlot.
func execChain(members []*slot.Slot) int64 {
	head := members[0]
	if len(members) == 1 {
		return execSlot(head)
	}

	bufs := make([][]byte, len(members))
	for i, m := range members {
		bufs[i] = m.Params.Buffer
	}

	var n int
	var err error
	switch head.OpType {
	case slot.OpReadBuffer:
		n, err = unix.Preadv(head.Params.FD, bufs, head.Params.Offset)
	case slot.OpWriteBuffer:
		n, err = unix.Pwritev(head.Params.FD, bufs, head.Params.Offset)
	default:
		return execSlot(head)
	}

	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return -int64(errno)
		}
		return -1
	}
	return int64(n)
}

// execSlot performs the actual pread/pwrite/fsync syscall for one slot,
// dispatching on OpType exactly as the posix driver's per-control-block
// goroutine does.
func execSlot(s *slot.Slot) int64 {
	var n int
	var err error

	switch s.OpType {
	case slot.OpReadBuffer:
		n, err = unix.Pread(s.Params.FD, s.Params.Buffer, s.Params.Offset)
	case slot.OpWriteBuffer, slot.OpWriteWAL, slot.OpWriteGeneric:
		n, err = unix.Pwrite(s.Params.FD, s.Params.Buffer, s.Params.Offset)
	case slot.OpFsync, slot.OpFsyncWAL:
		err = unix.Fsync(s.Params.FD)
	case slot.OpFlushRange:
		start, length := s.Params.Offset, int64(s.Params.Length)
		err = unix.SyncFileRange(s.Params.FD, start, length, unix.SYNC_FILE_RANGE_WRITE)
	case slot.OpNop:
		return 0
	}

	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return -int64(errno)
		}
		return -1
	}
	return int64(n)
}
