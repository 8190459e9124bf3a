// Package aio implements the process-local front end of the AIO engine: a
// fixed shared slot table, per-process bookkeeping, pluggable kernel-facing
// drivers, and the completion/retry machinery that ties them together.
// Engine is the caller-facing type; Group stands in for the shared-memory
// segment a real multi-process deployment would use, letting several
// Engines cooperate over one Arena.
package aio

import (
	"context"
	"fmt"
	"sync"

	"github.com/behrlich/aio/internal/config"
	"github.com/behrlich/aio/internal/dispatch"
	"github.com/behrlich/aio/internal/driver"
	"github.com/behrlich/aio/internal/driver/posix"
	"github.com/behrlich/aio/internal/driver/ring"
	"github.com/behrlich/aio/internal/driver/worker"
	"github.com/behrlich/aio/internal/limiter"
	"github.com/behrlich/aio/internal/logging"
	"github.com/behrlich/aio/internal/procstate"
	"github.com/behrlich/aio/internal/slot"
	"github.com/behrlich/aio/internal/staging"
)

// Config is the engine's enumerated tunable surface.
type Config = config.Config

// DefaultConfig returns sensible defaults for a general-purpose deployment.
func DefaultConfig() Config { return config.Default() }

// Group owns the shared Arena and the registry of live Engines attached to
// it, standing in for the shared-memory segment multiple real processes
// would map. It implements
// dispatch.Router so a completion reaped by one Engine's driver can be
// routed onto a different Engine's foreign_completed list.
type Group struct {
	cfg   Config
	arena *slot.Arena

	mu        sync.Mutex
	states    map[slot.OwnerID]*procstate.State
	nextOwner slot.OwnerID
}

// NewGroup allocates the shared arena for cfg and returns an empty group.
func NewGroup(cfg Config) (*Group, error) {
	if err := cfg.Validate(); err != nil {
		return nil, WrapError("NewGroup", err)
	}
	return &Group{
		cfg:    cfg,
		arena:  slot.New(cfg.MaxAIOInProgress, cfg.MaxAIOBounceBuffers, bounceBufferSize, nil),
		states: make(map[slot.OwnerID]*procstate.State),
	}, nil
}

// bounceBufferSize is the per-buffer size used by the shared bounce pool.
// Fixed rather than configurable: it tracks the host page size, which
// bounce.New already rounds up to.
const bounceBufferSize = 4096

// StateFor implements dispatch.Router.
func (g *Group) StateFor(owner slot.OwnerID) (*procstate.State, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.states[owner]
	return st, ok
}

// Attach creates a new Engine sharing this group's arena, with its own
// OwnerID, driver instance, and per-backend bookkeeping.
func (g *Group) Attach() (*Engine, error) {
	d, err := newDriver(g.cfg)
	if err != nil {
		return nil, WrapError("Attach", err)
	}
	return g.attachWithDriver(d)
}

// AttachWithDriver creates a new Engine using a caller-supplied driver
// instead of constructing one from Config.AIOType, for tests that want to
// exercise Engine's batching/dispatch logic against MockDriver rather than
// a real kernel-facing backend.
func (g *Group) AttachWithDriver(d driver.Driver) (*Engine, error) {
	return g.attachWithDriver(d)
}

func (g *Group) attachWithDriver(d driver.Driver) (*Engine, error) {
	g.mu.Lock()
	g.nextOwner++
	owner := g.nextOwner
	st := procstate.New(owner)
	g.states[owner] = st
	g.mu.Unlock()

	lim := limiter.New(g.cfg.IOMaxConcurrency)
	disp := dispatch.New(g.arena, g.cfg.RetryLimit, g)

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      g.cfg,
		group:    g,
		owner:    owner,
		arena:    g.arena,
		state:    st,
		limiter:  lim,
		driver:   d,
		disp:     disp,
		metrics:  NewMetrics(),
		observer: NoOpObserver{},
		runCtx:   ctx,
		cancel:   cancel,
	}
	e.wg.Add(1)
	go e.reapLoop()
	return e, nil
}

// Detach removes owner's bookkeeping from the group's routing table. Called
// by Engine.Close.
func (g *Group) Detach(owner slot.OwnerID) {
	g.mu.Lock()
	delete(g.states, owner)
	g.mu.Unlock()
}

// newRingDriver constructs the ring backend; overridden by an init() in
// the giouring-tagged build to use pawelgaczynski/giouring instead of this
// module's hand-rolled raw io_uring syscalls.
var newRingDriver = ring.New

// newDriver constructs the driver named by cfg.AIOType. Platform-specific
// backends (cport) are wired in build-tag-gated files alongside this one.
func newDriver(cfg Config) (driver.Driver, error) {
	switch cfg.AIOType {
	case config.BackendWorker:
		return worker.New(cfg.AIOWorkers, cfg.AIOWorkerQueueSize, execChain), nil
	case config.BackendRing:
		return newRingDriver(1, uint32(cfg.MaxAIOInFlight))
	case config.BackendPOSIX:
		return posix.New(cfg.MaxAIOInFlight, cfg.AIOWorkerQueueSize), nil
	case config.BackendPort:
		return newCPortDriver(cfg)
	default:
		return nil, fmt.Errorf("aio: unknown backend type %q", cfg.AIOType)
	}
}

// Engine is one cooperating process's view of the AIO subsystem: its own
// OwnerID, driver, concurrency limiter and per-backend lists, all operating
// against a Group's shared Arena.
type Engine struct {
	cfg   Config
	group *Group
	owner slot.OwnerID

	arena   *slot.Arena
	state   *procstate.State
	limiter *limiter.Limiter
	driver  driver.Driver
	disp    *dispatch.Dispatcher

	metrics  *Metrics
	observer Observer

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// Owner returns this engine's OwnerID, stable for its lifetime.
func (e *Engine) Owner() slot.OwnerID { return e.owner }

// Metrics returns the engine's metrics instance.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// SetObserver installs a metrics observer invoked on every completion.
func (e *Engine) SetObserver(o Observer) {
	if o == nil {
		o = NoOpObserver{}
	}
	e.observer = o
}

// RegisterSharedCallback binds shared completion logic at idx, addressable
// from any engine sharing this group's arena.
func (e *Engine) RegisterSharedCallback(idx uint8, cb slot.SharedCallback) {
	e.arena.RegisterSharedCallback(idx, cb)
}

// Submit prepares a slot for op against params, stages it for merging, and
// flushes the pending batch once SubmissionBatchLimit is reached. localCB,
// if non-nil, runs in this engine once the op completes locally.
func (e *Engine) Submit(ctx context.Context, op slot.OpType, params slot.OpParams, sharedCB uint8, localCB slot.LocalCallback, carrier any) (slot.Handle, error) {
	s := e.arena.Acquire(e.owner, e.drainOnce)
	s.Prepare(op, params, sharedCB)
	if localCB != nil {
		s.SetLocalCallback(localCB, carrier)
	}
	h := s.MakeHandle()

	staging.Stage(e.state, s, e.cfg.MergeCombineLimit)
	e.state.OutstandingCount.Add(1)

	if e.state.Pending.Len() >= e.cfg.SubmissionBatchLimit {
		if err := e.Flush(ctx); err != nil {
			return h, WrapError("Submit", err)
		}
	}
	return h, nil
}

// Flush submits every slot currently on the pending list to the driver,
// regardless of whether SubmissionBatchLimit has been reached. Callers
// that want bounded latency rather than bounded batch size call this after
// every Submit (or a handful of them).
func (e *Engine) Flush(ctx context.Context) error {
	for {
		head := e.state.Pending.Front()
		if head == nil {
			return nil
		}
		if err := e.flushHead(ctx, head); err != nil {
			return WrapError("Flush", err)
		}
	}
}

// flushHead removes the chain rooted at head from Pending, admits every
// member of its merge chain through the concurrency limiter, and submits
// the whole chain to the driver in one call. The driver is responsible for
// performing I/O across every chain member and splitting its result back
// across them; flushHead only handles the bookkeeping transitions.
func (e *Engine) flushHead(ctx context.Context, head *slot.Slot) error {
	e.state.Pending.Remove(head)
	staging.Submitted(e.state, head.Params.FD)

	members := head.MergeChain()
	for i := range members {
		if err := e.limiter.Acquire(ctx); err != nil {
			for j := 0; j < i; j++ {
				e.limiter.Release()
			}
			e.state.Pending.PushFront(head)
			return err
		}
	}

	for _, m := range members {
		e.arena.MarkSystemReferenced(m)
		m.MarkInflight()
		e.state.Issued.PushBack(m)
		e.state.InflightCount.Add(1)
		e.state.OutstandingCount.Add(-1)
	}
	e.state.SubmissionCount.Add(1)

	if err := e.driver.Submit(ctx, head); err != nil {
		for _, m := range members {
			e.state.Issued.Remove(m)
			e.state.IssuedAbandoned.PushBack(m)
		}
		return err
	}
	return nil
}

// drainOnce is passed to Arena.Acquire as the "make driver progress" hook
// used when the slot pool is exhausted.
func (e *Engine) drainOnce() int {
	return e.driver.Drain(e.onCompletion)
}

// reapLoop continuously waits for driver completions and dispatches them.
// After each wakeup it also resubmits the oldest soft-failed slot waiting
// on the arena's uncompleted list, if any and if the concurrency window
// has room.
func (e *Engine) reapLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.runCtx.Done():
			return
		default:
		}
		n := e.driver.WaitOne(e.runCtx, e.onCompletion)
		if n == 0 {
			select {
			case <-e.runCtx.Done():
				return
			default:
			}
		}
		e.disp.RetryNext(func(s *slot.Slot) error {
			if !e.limiter.TryAcquire() {
				return errRetryWindowFull
			}
			s.MarkInflight()
			e.state.Issued.PushBack(s)
			e.state.InflightCount.Add(1)
			if err := e.driver.Retry(e.runCtx, s); err != nil {
				e.state.Issued.Remove(s)
				e.state.InflightCount.Add(-1)
				e.limiter.Release()
				s.MarkRetryPending()
				return err
			}
			e.observer.ObserveRetry()
			return nil
		})
	}
}

// errRetryWindowFull defers a retry while the concurrency window is full.
var errRetryWindowFull = fmt.Errorf("aio: concurrency window full, retry deferred")

// onCompletion is the driver callback invoked for each reaped slot.
func (e *Engine) onCompletion(s *slot.Slot) {
	bytes := uint64(0)
	if r := s.Result(); r > 0 {
		bytes = uint64(r)
	}
	success := s.Result() >= 0
	e.disp.Complete(e.state, e.limiter, s)
	e.observer.ObserveOp(s.OpType, bytes, 0, success)
	e.observer.ObserveInflight(uint32(e.state.InflightCount.Load()))
}

// Wait blocks until the operation referenced by h completes or stop fires.
// A stale handle (the slot was already recycled) returns immediately,
// since recycling only happens after completion.
func (e *Engine) Wait(h slot.Handle, stop <-chan struct{}) (result int64, ok bool) {
	return dispatch.WaitHandle(e.arena, h, stop)
}

// Release returns a slot to the free pool once its caller no longer needs
// it, dropping the caller's reference alongside the system's.
func (e *Engine) Release(h slot.Handle) {
	if s, ok := e.arena.Deref(h); ok {
		e.arena.Release(s)
	}
}

// Arena and State expose the underlying shared arena and this engine's
// per-backend bookkeeping, for callers building on internal/introspect or
// writing their own diagnostics.
func (e *Engine) Arena() *slot.Arena      { return e.arena }
func (e *Engine) State() *procstate.State { return e.state }

// Close stops the reap loop, closes the driver, and detaches from the
// group's routing table. It does not wait for operations still in flight
// on this engine's driver; once the reap loop has stopped, their
// completions are not dispatched.
func (e *Engine) Close() error {
	var closeErr error
	e.closeOnce.Do(func() {
		e.cancel()
		e.wg.Wait()
		closeErr = e.driver.Close()
		e.metrics.Stop()
		e.group.Detach(e.owner)
		logging.Default().Debug("engine closed")
	})
	return closeErr
}
