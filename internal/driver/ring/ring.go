// Package ring implements the io_uring-backed driver: a set of
// independent ring contexts, round-robin selected per submission, each
// polled by its own goroutine over raw io_uring_setup/io_uring_enter
// syscalls with manually mmap'd SQ/CQ rings, submitting generic
// read/write/fsync opcodes rather than any one control-plane command.
package ring

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/behrlich/aio/internal/driver"
	"github.com/behrlich/aio/internal/logging"
	"github.com/behrlich/aio/internal/slot"
)

const (
	opReadv  = 1
	opWritev = 2
	opFsync  = 3
	opRead   = 22
	opWrite  = 23

	fsyncDatasync = 1 << 0

	enterGetEvents = 1 << 0

	offSQRing = 0x00000000
	offCQRing = 0x08000000
	offSQEs   = 0x10000000
)

type sqEntry struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	length      uint32
	opFlags     uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	pad         [2]uint64
}

type cqEntry struct {
	userData uint64
	res      int32
	flags    uint32
}

type sqOffsets struct {
	head, tail, ringMask, ringEntries, flags, dropped, array uint32
	resv1                                                    uint32
	userAddr                                                 uint64
}

type cqOffsets struct {
	head, tail, ringMask, ringEntries, overflow, cqes uint32
	flags                                             uint32
	resv1                                             uint32
	userAddr                                          uint64
}

type ringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFD         uint32
	resv         [3]uint32
	sqOff        sqOffsets
	cqOff        cqOffsets
}

// ringContext is one independent io_uring instance.
type ringContext struct {
	fd     int
	params ringParams

	sqMem  []byte
	cqMem  []byte
	sqeMem []byte

	submitMu sync.Mutex
}

func setupRing(entries uint32) (*ringContext, error) {
	params := ringParams{sqEntries: entries, cqEntries: entries * 2}

	r1, _, errno := syscall.Syscall(unix.SYS_IO_URING_SETUP, uintptr(entries), uintptr(unsafe.Pointer(&params)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("ring: io_uring_setup: %w", errno)
	}
	fd := int(r1)

	sqSize := params.sqOff.array + params.sqEntries*4
	cqSize := params.cqOff.cqes + params.cqEntries*uint32(unsafe.Sizeof(cqEntry{}))
	sqeSize := params.sqEntries * uint32(unsafe.Sizeof(sqEntry{}))

	sqMem, err := unix.Mmap(fd, offSQRing, int(sqSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("ring: mmap SQ: %w", err)
	}
	cqMem, err := unix.Mmap(fd, offCQRing, int(cqSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(sqMem)
		syscall.Close(fd)
		return nil, fmt.Errorf("ring: mmap CQ: %w", err)
	}
	sqeMem, err := unix.Mmap(fd, offSQEs, int(sqeSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(sqMem)
		unix.Munmap(cqMem)
		syscall.Close(fd)
		return nil, fmt.Errorf("ring: mmap SQEs: %w", err)
	}

	return &ringContext{fd: fd, params: params, sqMem: sqMem, cqMem: cqMem, sqeMem: sqeMem}, nil
}

func (r *ringContext) u32(mem []byte, off uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&mem[off]))
}

func (r *ringContext) sqeAt(idx uint32) *sqEntry {
	return (*sqEntry)(unsafe.Pointer(&r.sqeMem[idx*uint32(unsafe.Sizeof(sqEntry{}))]))
}

func (r *ringContext) cqeAt(idx uint32) *cqEntry {
	off := r.params.cqOff.cqes + idx*uint32(unsafe.Sizeof(cqEntry{}))
	return (*cqEntry)(unsafe.Pointer(&r.cqMem[off]))
}

// submit enqueues one SQE and kicks the kernel via io_uring_enter. Returns
// driver.ErrUnsupported-free errors only; a full ring surfaces as a plain
// error the caller should treat as backpressure, not a permanent failure.
func (r *ringContext) submit(sqe sqEntry) error {
	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	head := atomic.LoadUint32(r.u32(r.sqMem, r.params.sqOff.head))
	tail := atomic.LoadUint32(r.u32(r.sqMem, r.params.sqOff.tail))
	if tail-head >= r.params.sqEntries {
		return fmt.Errorf("ring: submission queue full")
	}
	mask := r.params.sqEntries - 1
	idx := tail & mask
	*r.sqeAt(idx) = sqe

	arrOff := r.params.sqOff.array + idx*4
	atomic.StoreUint32(r.u32(r.sqMem, arrOff), idx)
	atomic.StoreUint32(r.u32(r.sqMem, r.params.sqOff.tail), tail+1)

	_, _, errno := syscall.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), 1, 0, 0, 0, 0)
	if errno != 0 {
		return fmt.Errorf("ring: io_uring_enter (submit): %w", errno)
	}
	return nil
}

// poll blocks in io_uring_enter until at least one completion is ready (or
// the ring fd is closed, which unblocks it with an error), then drains
// every available CQE through deliver. Runs on its own goroutine per
// context for the lifetime of the driver.
func (r *ringContext) poll(deliver func(userData uint64, res int32)) error {
	_, _, errno := syscall.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), 0, 1, enterGetEvents, 0, 0)
	if errno != 0 {
		return errno
	}
	mask := r.params.cqEntries - 1
	for {
		head := atomic.LoadUint32(r.u32(r.cqMem, r.params.cqOff.head))
		tail := atomic.LoadUint32(r.u32(r.cqMem, r.params.cqOff.tail))
		if head == tail {
			return nil
		}
		cqe := r.cqeAt(head & mask)
		deliver(cqe.userData, cqe.res)
		atomic.StoreUint32(r.u32(r.cqMem, r.params.cqOff.head), head+1)
	}
}

func (r *ringContext) close() error {
	unix.Munmap(r.sqMem)
	unix.Munmap(r.cqMem)
	unix.Munmap(r.sqeMem)
	return syscall.Close(r.fd)
}

// pendingOp correlates a submitted userData tag back to the slot chain that
// issued it, keeping any scatter/gather iovec array referenced until the
// kernel reports completion for it.
type pendingOp struct {
	s      *slot.Slot
	iovecs []unix.Iovec
}

// Driver is the multi-context ring backend.
type Driver struct {
	contexts []*ringContext
	next     atomic.Uint32

	completed chan *slot.Slot

	mu      sync.Mutex
	pending map[uint64]*pendingOp
	userSeq atomic.Uint64

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	// closeFn overrides the default raw-context close logic; set by
	// NewGiouring under the giouring build tag.
	closeFn func() error
}

// New creates a ring driver with the given number of independent ring
// contexts, used to spread submission lock contention across several
// rings, each sized for entries outstanding operations.
func New(numContexts int, entries uint32) (*Driver, error) {
	if numContexts < 1 {
		numContexts = 1
	}
	d := &Driver{
		completed: make(chan *slot.Slot, int(entries)*numContexts),
		pending:   make(map[uint64]*pendingOp),
		stop:      make(chan struct{}),
	}
	for i := 0; i < numContexts; i++ {
		rc, err := setupRing(entries)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("%w: %v", driver.ErrUnsupported, err)
		}
		d.contexts = append(d.contexts, rc)
	}
	for _, rc := range d.contexts {
		rc := rc
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.pollLoop(rc)
		}()
	}
	return d, nil
}

func (d *Driver) pollLoop(rc *ringContext) {
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		if err := rc.poll(d.deliver); err != nil {
			logging.Default().Debug("ring context poll stopped", "error", err)
			return
		}
	}
}

func (d *Driver) deliver(userData uint64, res int32) {
	d.mu.Lock()
	op, ok := d.pending[userData]
	if ok {
		delete(d.pending, userData)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	slot.SplitResult(op.s.MergeChain(), int64(res))
	d.completed <- op.s
}

// buildSQE builds the SQE for s's merge chain. A chain of more than one
// member submits as a IORING_OP_READV/WRITEV over an iovec gathered from
// every member's buffer in chain order, rather than one opcode per member;
// a lone slot keeps the single-buffer opcode. The returned iovec slice (nil
// for a lone slot) must stay referenced until the kernel reports
// completion for userData.
func buildSQE(s *slot.Slot, userData uint64) (sqEntry, []unix.Iovec) {
	sqe := sqEntry{userData: userData, fd: int32(s.Params.FD)}
	members := s.MergeChain()
	switch {
	case s.OpType == slot.OpReadBuffer, s.OpType == slot.OpWriteBuffer, s.OpType == slot.OpWriteWAL, s.OpType == slot.OpWriteGeneric:
		isWrite := s.OpType != slot.OpReadBuffer
		sqe.off = uint64(s.Params.Offset)
		if len(members) > 1 {
			iovecs := buildIovecs(members)
			if isWrite {
				sqe.opcode = opWritev
			} else {
				sqe.opcode = opReadv
			}
			sqe.length = uint32(len(iovecs))
			if len(iovecs) > 0 {
				sqe.addr = uint64(uintptr(unsafe.Pointer(&iovecs[0])))
			}
			return sqe, iovecs
		}
		if isWrite {
			sqe.opcode = opWrite
		} else {
			sqe.opcode = opRead
		}
		sqe.length = s.Params.Length
		if len(s.Params.Buffer) > 0 {
			sqe.addr = uint64(uintptr(unsafe.Pointer(&s.Params.Buffer[0])))
		}
	default: // OpFsync, OpFsyncWAL, OpFlushRange
		sqe.opcode = opFsync
		if s.Params.Datasync {
			sqe.opFlags = fsyncDatasync
		}
	}
	return sqe, nil
}

// buildIovecs gathers one iovec per chain member, in chain (ascending
// offset) order, for a READV/WRITEV SQE.
func buildIovecs(members []*slot.Slot) []unix.Iovec {
	iovecs := make([]unix.Iovec, 0, len(members))
	for _, m := range members {
		if len(m.Params.Buffer) == 0 {
			continue
		}
		var iov unix.Iovec
		iov.Base = &m.Params.Buffer[0]
		iov.SetLen(len(m.Params.Buffer))
		iovecs = append(iovecs, iov)
	}
	return iovecs
}

// Submit implements driver.Driver.
func (d *Driver) Submit(ctx context.Context, s *slot.Slot) error {
	userData := d.userSeq.Add(1)
	sqe, iovecs := buildSQE(s, userData)

	d.mu.Lock()
	d.pending[userData] = &pendingOp{s: s, iovecs: iovecs}
	d.mu.Unlock()

	idx := d.next.Add(1) % uint32(len(d.contexts))
	if err := d.contexts[idx].submit(sqe); err != nil {
		d.mu.Lock()
		delete(d.pending, userData)
		d.mu.Unlock()
		return err
	}
	return nil
}

// Drain implements driver.Driver.
func (d *Driver) Drain(deliver func(*slot.Slot)) int {
	n := 0
	for {
		select {
		case s := <-d.completed:
			deliver(s)
			n++
		default:
			return n
		}
	}
}

// WaitOne implements driver.Driver.
func (d *Driver) WaitOne(ctx context.Context, deliver func(*slot.Slot)) int {
	select {
	case s := <-d.completed:
		deliver(s)
		return 1 + d.Drain(deliver)
	case <-ctx.Done():
		return 0
	}
}

// Retry implements driver.Driver by resubmitting s as a fresh SQE; the ring
// driver holds no per-op kernel-side resources beyond the SQE itself, so
// retry is indistinguishable from first submission.
func (d *Driver) Retry(ctx context.Context, s *slot.Slot) error {
	return d.Submit(ctx, s)
}

// Close implements driver.Driver.
func (d *Driver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.closeFn != nil {
			err = d.closeFn()
			return
		}
		close(d.stop)
		for _, rc := range d.contexts {
			if e := rc.close(); e != nil {
				err = e
			}
		}
		d.wg.Wait()
	})
	return err
}
