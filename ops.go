package aio

import (
	"context"

	"github.com/behrlich/aio/internal/slot"
)

// ReadBuffer submits a buffered read of len(buf) bytes at offset from fd.
// The returned handle resolves to the byte count (non-negative) or
// negative errno once Wait reports completion.
func (e *Engine) ReadBuffer(ctx context.Context, fd int, offset int64, buf []byte) (slot.Handle, error) {
	return e.Submit(ctx, slot.OpReadBuffer, slot.OpParams{
		FD:     fd,
		Offset: offset,
		Length: uint32(len(buf)),
		Buffer: buf,
	}, 0, nil, nil)
}

// WriteBuffer submits a buffered write of buf to fd at offset (op type
// WRITE_BUFFER). Eligible for merge-chain fusion with adjacent writes
// against the same fd.
func (e *Engine) WriteBuffer(ctx context.Context, fd int, offset int64, buf []byte) (slot.Handle, error) {
	return e.Submit(ctx, slot.OpWriteBuffer, slot.OpParams{
		FD:     fd,
		Offset: offset,
		Length: uint32(len(buf)),
		Buffer: buf,
	}, 0, nil, nil)
}

// WriteWAL submits a write-ahead-log record write to fd at offset (op type
// WRITE_WAL). WAL writes never participate in merge-chain fusion and may
// carry Barrier/NoReorder semantics.
func (e *Engine) WriteWAL(ctx context.Context, fd int, offset int64, buf []byte, barrier bool) (slot.Handle, error) {
	return e.Submit(ctx, slot.OpWriteWAL, slot.OpParams{
		FD:      fd,
		Offset:  offset,
		Length:  uint32(len(buf)),
		Buffer:  buf,
		Barrier: barrier,
	}, 0, nil, nil)
}

// WriteGeneric submits a write that is neither a buffer write nor a WAL
// write (op type WRITE_GENERIC) — e.g. control-file or metadata writes
// that must not merge with ordinary buffer traffic.
func (e *Engine) WriteGeneric(ctx context.Context, fd int, offset int64, buf []byte) (slot.Handle, error) {
	return e.Submit(ctx, slot.OpWriteGeneric, slot.OpParams{
		FD:     fd,
		Offset: offset,
		Length: uint32(len(buf)),
		Buffer: buf,
	}, 0, nil, nil)
}

// Fsync submits a full file sync of fd (op type FSYNC).
func (e *Engine) Fsync(ctx context.Context, fd int) (slot.Handle, error) {
	return e.Submit(ctx, slot.OpFsync, slot.OpParams{FD: fd}, 0, nil, nil)
}

// FsyncWAL submits a fdatasync-style sync of fd's WAL segment (op type
// FSYNC_WAL; Datasync skips the metadata-only flush when the driver
// supports the distinction).
func (e *Engine) FsyncWAL(ctx context.Context, fd int) (slot.Handle, error) {
	return e.Submit(ctx, slot.OpFsyncWAL, slot.OpParams{FD: fd, Datasync: true}, 0, nil, nil)
}

// FlushRange submits a range-scoped writeback hint over [offset, offset+length)
// on fd (op type FLUSH_RANGE; sync_file_range on the POSIX/worker drivers).
func (e *Engine) FlushRange(ctx context.Context, fd int, offset int64, length uint32) (slot.Handle, error) {
	return e.Submit(ctx, slot.OpFlushRange, slot.OpParams{FD: fd, Offset: offset, Length: length}, 0, nil, nil)
}
