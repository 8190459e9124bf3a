//go:build windows

// Package cport implements the Windows I/O completion port driver: file
// handles are associated with one completion port, each
// submission carries its own OVERLAPPED structure, and a pool of
// goroutines call GetQueuedCompletionStatus to drain results. Grounded on
// the same one-goroutine-per-poller shape as internal/driver/ring's
// pollLoop, adapted to windows.GetQueuedCompletionStatus instead of
// io_uring_enter.
package cport

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/windows"

	"github.com/behrlich/aio/internal/slot"
)

// chain tracks one fused merge chain's outstanding member count, since
// Windows has no scatter/gather ReadFile/WriteFile equivalent usable across
// independently allocated buffers the way preadv/pwritev or an io_uring
// IOSQE_IO_LINK chain does: each member is issued as its own overlapped
// request, and the chain only delivers once every member has completed.
type chain struct {
	members   []*slot.Slot
	remaining int32
	total     int64
	failed    int64
}

// pending correlates an OVERLAPPED address back to the slot (and its
// chain, if any) that issued it; the completion key carries no other
// identifying information on Windows.
type pending struct {
	s       *slot.Slot
	overlap *windows.Overlapped
	isWrite bool
	c       *chain
}

// Driver is the IOCP-backed driver. Since a process has exactly one
// completion port (unlike the ring driver's numbered contexts), ID gives
// it a correlation identity that survives process restarts for
// introspection/log correlation, where a bare integer would collide.
type Driver struct {
	ID   uuid.UUID
	port windows.Handle

	mu       sync.Mutex
	byHandle map[windows.Handle]bool

	pendingMu sync.Mutex
	pendingBy map[*windows.Overlapped]*pending

	completed chan *slot.Slot

	numPollers int
	stop       chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// New creates an IOCP driver with the given number of poller goroutines
// and completion queue depth.
func New(numPollers, queueDepth int) (*Driver, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, uint32(numPollers))
	if err != nil {
		return nil, err
	}
	d := &Driver{
		ID:         uuid.New(),
		port:       port,
		byHandle:   make(map[windows.Handle]bool),
		pendingBy:  make(map[*windows.Overlapped]*pending),
		completed:  make(chan *slot.Slot, queueDepth),
		numPollers: numPollers,
		stop:       make(chan struct{}),
	}
	for i := 0; i < numPollers; i++ {
		d.wg.Add(1)
		go d.pollLoop()
	}
	return d, nil
}

func (d *Driver) associate(fd windows.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.byHandle[fd] {
		return nil
	}
	if _, err := windows.CreateIoCompletionPort(fd, d.port, 0, 0); err != nil {
		return err
	}
	d.byHandle[fd] = true
	return nil
}

// Submit implements driver.Driver: issues one overlapped ReadFile/WriteFile
// per member of s's merge chain against the slot's file handle (Windows has
// no scatter/gather equivalent across independently allocated buffers), and
// delivers the chain once every member's overlapped request completes.
// FlushFileBuffers stands in for fsync/flush-range ops, which Windows has
// no byte-range equivalent for; those never merge, so they always run as a
// lone member.
func (d *Driver) Submit(ctx context.Context, s *slot.Slot) error {
	fd := windows.Handle(s.Params.FD)
	if err := d.associate(fd); err != nil {
		return err
	}

	members := s.MergeChain()
	if s.OpType != slot.OpReadBuffer && s.OpType != slot.OpWriteBuffer && s.OpType != slot.OpWriteWAL && s.OpType != slot.OpWriteGeneric {
		err := windows.FlushFileBuffers(fd)
		if err != nil {
			s.SetResult(-1)
		} else {
			s.SetResult(0)
		}
		d.completed <- s
		return nil
	}

	c := &chain{members: members, remaining: int32(len(members))}
	for _, m := range members {
		d.submitOne(fd, m, c)
	}
	return nil
}

// submitOne issues a single member's overlapped request, recording it under
// c's chain so the poller can tell when every member has reported back.
func (d *Driver) submitOne(fd windows.Handle, m *slot.Slot, c *chain) {
	ov := &windows.Overlapped{
		OffsetHigh: uint32(m.Params.Offset >> 32),
		Offset:     uint32(m.Params.Offset),
	}
	p := &pending{s: m, overlap: ov, c: c}

	d.pendingMu.Lock()
	d.pendingBy[ov] = p
	d.pendingMu.Unlock()

	var err error
	var done uint32
	if m.OpType == slot.OpReadBuffer {
		err = windows.ReadFile(fd, m.Params.Buffer, &done, ov)
	} else {
		p.isWrite = true
		err = windows.WriteFile(fd, m.Params.Buffer, &done, ov)
	}

	if err != nil && err != windows.ERROR_IO_PENDING {
		d.pendingMu.Lock()
		delete(d.pendingBy, ov)
		d.pendingMu.Unlock()
		d.reportMember(c, m, -1)
	}
}

// reportMember records one chain member's individual transfer (or -1 on
// failure) and, once every member has reported, splits the chain's total
// across its members and delivers the head.
func (d *Driver) reportMember(c *chain, m *slot.Slot, n int64) {
	d.pendingMu.Lock()
	if n < 0 {
		c.failed = n
	} else {
		c.total += n
	}
	c.remaining--
	done := c.remaining == 0
	d.pendingMu.Unlock()

	if !done {
		return
	}
	if c.failed != 0 {
		slot.SplitResult(c.members, c.failed)
	} else {
		slot.SplitResult(c.members, c.total)
	}
	d.completed <- c.members[0]
}

func (d *Driver) pollLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		var bytes uint32
		var key uintptr
		var ov *windows.Overlapped
		err := windows.GetQueuedCompletionStatus(d.port, &bytes, &key, &ov, windows.INFINITE)
		if ov == nil {
			continue
		}

		d.pendingMu.Lock()
		p, ok := d.pendingBy[ov]
		if ok {
			delete(d.pendingBy, ov)
		}
		d.pendingMu.Unlock()
		if !ok {
			continue
		}

		if err != nil {
			d.reportMember(p.c, p.s, -1)
		} else {
			d.reportMember(p.c, p.s, int64(bytes))
		}
	}
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

// Retry implements driver.Driver.
func (d *Driver) Retry(ctx context.Context, s *slot.Slot) error {
	return d.Submit(ctx, s)
}

// Close implements driver.Driver.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		close(d.stop)
		windows.CloseHandle(d.port)
		d.wg.Wait()
	})
	return nil
}
