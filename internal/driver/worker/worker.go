// Package worker implements the portable fallback driver: a shared MPMC
// work queue serviced by a fixed pool of goroutines standing in for
// separate worker processes, plus a zero-worker fast path that executes
// synchronously in the submitting goroutine. One pool drains a shared
// queue and dispatches each job through a pluggable Executor, rather than
// hard-coding any one I/O submission mechanism.
package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/behrlich/aio/internal/logging"
	"github.com/behrlich/aio/internal/slot"
)

// Executor performs the actual I/O for a chain of one or more fused slots
// (head first) and returns the chain's combined result: a non-negative
// byte count on success, or a negative errno on failure. It is supplied by
// the engine, which knows how to dispatch on OpType; the worker driver
// itself is op-agnostic.
type Executor func(members []*slot.Slot) int64

// Driver is the worker-pool backend. When constructed with zero workers it
// runs every op synchronously in the caller's goroutine; this intentionally
// bypasses the queue and goroutine pool entirely rather than spinning up a
// single worker, since the latter would add a context switch the
// synchronous fast path is meant to avoid.
type Driver struct {
	exec Executor

	jobs      chan *slot.Slot
	completed chan *slot.Slot

	group  *errgroup.Group
	cancel context.CancelFunc

	closeOnce sync.Once
}

// New starts a worker driver with n worker goroutines draining a queue of
// the given depth. n == 0 selects the synchronous fast path.
func New(n int, queueDepth int, exec Executor) *Driver {
	d := &Driver{
		exec:      exec,
		completed: make(chan *slot.Slot, queueDepth),
	}
	if n == 0 {
		return d
	}
	d.jobs = make(chan *slot.Slot, queueDepth)

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	d.group = g
	for i := 0; i < n; i++ {
		g.Go(func() error {
			d.runWorker(gctx)
			return nil
		})
	}
	return d
}

func (d *Driver) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-d.jobs:
			if !ok {
				return
			}
			d.run(s)
		}
	}
}

func (d *Driver) run(s *slot.Slot) {
	members := s.MergeChain()
	r := d.exec(members)
	slot.SplitResult(members, r)
	d.completed <- s
}

// Submit hands s to a worker, or executes it inline on the fast path
//.
func (d *Driver) Submit(ctx context.Context, s *slot.Slot) error {
	if d.jobs == nil {
		d.run(s)
		return nil
	}
	select {
	case d.jobs <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain delivers every completion currently buffered, without blocking.
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

// WaitOne blocks for at least one completion, or until ctx is done.
func (d *Driver) WaitOne(ctx context.Context, deliver func(*slot.Slot)) int {
	select {
	case s := <-d.completed:
		deliver(s)
		return 1 + d.Drain(deliver)
	case <-ctx.Done():
		return 0
	}
}

// Retry resubmits s exactly as Submit would; the worker driver holds no
// driver-side resources that need reacquiring on retry.
func (d *Driver) Retry(ctx context.Context, s *slot.Slot) error {
	return d.Submit(ctx, s)
}

// Close stops the worker pool, if any, and waits for in-flight jobs to
// finish executing (their results are discarded).
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
			_ = d.group.Wait()
		}
		logging.Default().Debug("worker driver closed")
	})
	return nil
}
