//go:build giouring
// +build giouring

// Package ring, under the giouring build tag, swaps the raw-syscall
// contexts for github.com/pawelgaczynski/giouring's liburing-style
// bindings. The default build uses the dependency-free raw implementation,
// and this file is an opt-in alternate for hosts where the richer binding
// is available.
package ring

import (
	"fmt"
	"sync"

	"github.com/pawelgaczynski/giouring"

	"github.com/behrlich/aio/internal/driver"
	"github.com/behrlich/aio/internal/slot"
)

// giouContext wraps one giouring.Ring.
type giouContext struct {
	ring *giouring.Ring
	mu   sync.Mutex
}

func setupGiouRing(entries uint32) (*giouContext, error) {
	r, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("ring: giouring.CreateRing: %w", err)
	}
	return &giouContext{ring: r}, nil
}

func (c *giouContext) submit(s *slot.Slot, userData uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sqe := c.ring.GetSQE()
	if sqe == nil {
		return fmt.Errorf("ring: submission queue full")
	}

	fd := int32(s.Params.FD)
	switch {
	case s.OpType == slot.OpReadBuffer:
		sqe.PrepRead(fd, s.Params.Buffer, uint64(s.Params.Offset), 0)
	case s.OpType == slot.OpWriteBuffer || s.OpType == slot.OpWriteWAL || s.OpType == slot.OpWriteGeneric:
		sqe.PrepWrite(fd, s.Params.Buffer, uint64(s.Params.Offset), 0)
	default:
		flags := uint32(0)
		if s.Params.Datasync {
			flags = 1
		}
		sqe.PrepFsync(fd, flags)
	}
	sqe.UserData = userData

	if _, err := c.ring.Submit(); err != nil {
		return fmt.Errorf("ring: giouring submit: %w", err)
	}
	return nil
}

func (c *giouContext) poll(deliver func(userData uint64, res int32)) error {
	cqe, err := c.ring.WaitCQE()
	if err != nil {
		return err
	}
	deliver(cqe.UserData, cqe.Res)
	c.ring.CQESeen(cqe)

	for {
		cqe, err := c.ring.PeekCQE()
		if err != nil || cqe == nil {
			return nil
		}
		deliver(cqe.UserData, cqe.Res)
		c.ring.CQESeen(cqe)
	}
}

func (c *giouContext) close() error {
	c.ring.QueueExit()
	return nil
}

// NewGiouring builds a ring driver backed by giouring instead of the raw
// syscall contexts New uses. Selected by the engine whenever it is built
// with the giouring tag; no kernel version check is made.
func NewGiouring(numContexts int, entries uint32) (*Driver, error) {
	if numContexts < 1 {
		numContexts = 1
	}
	d := &Driver{
		completed: make(chan *slot.Slot, int(entries)*numContexts),
		pending:   make(map[uint64]*pendingOp),
		stop:      make(chan struct{}),
	}
	var giou []*giouContext
	for i := 0; i < numContexts; i++ {
		gc, err := setupGiouRing(entries)
		if err != nil {
			for _, g := range giou {
				g.close()
			}
			return nil, fmt.Errorf("%w: %v", driver.ErrUnsupported, err)
		}
		giou = append(giou, gc)
	}
	for _, gc := range giou {
		gc := gc
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-d.stop:
					return
				default:
				}
				if err := gc.poll(d.deliver); err != nil {
					return
				}
			}
		}()
	}
	d.closeFn = func() error {
		close(d.stop)
		for _, gc := range giou {
			gc.close()
		}
		d.wg.Wait()
		return nil
	}
	return d, nil
}
