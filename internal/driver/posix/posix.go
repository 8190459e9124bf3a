// Package posix implements a POSIX AIO-style driver without signals: each
// submission starts one goroutine that performs the blocking syscall and
// pushes the slot onto a buffered completion channel, which Drain and
// WaitOne read. The controlBlock type below is not used by the driver, and
// there is no separate "no-check" mode. See DESIGN.md.
package posix

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/behrlich/aio/internal/slot"
)

// controlBlock mirrors a POSIX struct aiocb's lifecycle: prepared, handed
// to the kernel (here: to a goroutine), and eventually delivering exactly
// one completion notification.
type controlBlock struct {
	s       *slot.Slot
	noCheck bool
}

// Driver is the POSIX-AIO-style backend. maxInFlight bounds the number of
// concurrently outstanding control blocks, standing in for the real
// kernel's AIO queue depth limit.
type Driver struct {
	sem *semaphore

	completed chan *slot.Slot

	inflight atomic.Int64

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// semaphore is a tiny counting semaphore built on a buffered channel,
// sufficient for bounding goroutine fan-out without pulling in
// golang.org/x/sync/semaphore a second time for a same-process limiter
// that internal/limiter already owns at the engine level.
type semaphore chan struct{}

func newSemaphore(n int) *semaphore {
	s := make(semaphore, n)
	return &s
}

func (s *semaphore) acquire() { *s <- struct{}{} }
func (s *semaphore) release() { <-*s }

// New creates a POSIX-style driver admitting up to maxInFlight concurrent
// control blocks and buffering up to queueDepth completions.
func New(maxInFlight, queueDepth int) *Driver {
	return &Driver{
		sem:       newSemaphore(maxInFlight),
		completed: make(chan *slot.Slot, queueDepth),
		stop:      make(chan struct{}),
	}
}

// Submit starts one goroutine for s, the aio_read/aio_write equivalent.
// It does not read NoReorder or any other flag; every completion goes
// through the same channel.
func (d *Driver) Submit(ctx context.Context, s *slot.Slot) error {
	d.sem.acquire()
	d.inflight.Add(1)
	d.wg.Add(1)
	go d.run(s)
	return nil
}

func (d *Driver) run(s *slot.Slot) {
	defer d.wg.Done()
	defer d.sem.release()
	defer d.inflight.Add(-1)

	members := s.MergeChain()

	var n int
	var err error
	switch {
	case s.OpType == slot.OpReadBuffer && len(members) > 1:
		n, err = unix.Preadv(s.Params.FD, buffersOf(members), s.Params.Offset)
	case s.OpType == slot.OpReadBuffer:
		n, err = unix.Pread(s.Params.FD, s.Params.Buffer, s.Params.Offset)
	case (s.OpType == slot.OpWriteBuffer || s.OpType == slot.OpWriteWAL || s.OpType == slot.OpWriteGeneric) && len(members) > 1:
		n, err = unix.Pwritev(s.Params.FD, buffersOf(members), s.Params.Offset)
	case s.OpType == slot.OpWriteBuffer || s.OpType == slot.OpWriteWAL || s.OpType == slot.OpWriteGeneric:
		n, err = unix.Pwrite(s.Params.FD, s.Params.Buffer, s.Params.Offset)
	case s.OpType == slot.OpFsync || s.OpType == slot.OpFsyncWAL:
		err = unix.Fsync(s.Params.FD)
	case s.OpType == slot.OpFlushRange:
		start, length := s.Params.Offset, int64(s.Params.Length)
		err = unix.SyncFileRange(s.Params.FD, start, length, unix.SYNC_FILE_RANGE_WRITE)
	}

	var result int64
	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			result = -int64(errno)
		} else {
			result = -1
		}
	} else {
		result = int64(n)
	}
	slot.SplitResult(members, result)

	select {
	case d.completed <- s:
	case <-d.stop:
	}
}

// buffersOf collects the buffer of every chain member in order, for the
// preadv/pwritev gather used to service a fused chain with one syscall.
func buffersOf(members []*slot.Slot) [][]byte {
	bufs := make([][]byte, len(members))
	for i, m := range members {
		bufs[i] = m.Params.Buffer
	}
	return bufs
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

// Retry implements driver.Driver by resubmitting s as a fresh control
// block.
func (d *Driver) Retry(ctx context.Context, s *slot.Slot) error {
	return d.Submit(ctx, s)
}

// Close implements driver.Driver, waiting for in-flight control blocks to
// finish (their completions are discarded).
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		close(d.stop)
		d.wg.Wait()
	})
	return nil
}
