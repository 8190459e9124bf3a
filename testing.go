package aio

import (
	"context"
	"sync"

	"github.com/behrlich/aio/internal/driver"
	"github.com/behrlich/aio/internal/slot"
)

// MockDriver is a driver.Driver implementation for testing callers of
// Engine without touching real file descriptors. It completes every
// submission synchronously against a caller-supplied ResultFunc (defaulting
// to "succeed with the requested length") and tracks call counts for
// verification.
type MockDriver struct {
	// ResultFunc computes a slot's result; nil selects the default
	// (non-negative byte count equal to the requested length, 0 for ops
	// with no buffer).
	ResultFunc func(s *slot.Slot) int64

	mu        sync.Mutex
	completed chan *slot.Slot
	closed    bool

	submitCalls int
	retryCalls  int
	drainCalls  int
	waitCalls   int
}

// NewMockDriver creates a mock driver buffering up to queueDepth
// completions before Submit blocks.
func NewMockDriver(queueDepth int) *MockDriver {
	return &MockDriver{completed: make(chan *slot.Slot, queueDepth)}
}

// Submit implements driver.Driver.
func (m *MockDriver) Submit(ctx context.Context, s *slot.Slot) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return driver.ErrUnsupported
	}
	m.submitCalls++
	m.mu.Unlock()

	slot.SplitResult(s.MergeChain(), m.resultFor(s))
	select {
	case m.completed <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockDriver) resultFor(s *slot.Slot) int64 {
	if m.ResultFunc != nil {
		return m.ResultFunc(s)
	}
	total := int64(0)
	for _, member := range s.MergeChain() {
		total += int64(len(member.Params.Buffer))
	}
	return total
}

// Drain implements driver.Driver.
func (m *MockDriver) Drain(deliver func(*slot.Slot)) int {
	m.mu.Lock()
	m.drainCalls++
	m.mu.Unlock()

	n := 0
	for {
		select {
		case s := <-m.completed:
			deliver(s)
			n++
		default:
			return n
		}
	}
}

// WaitOne implements driver.Driver.
func (m *MockDriver) WaitOne(ctx context.Context, deliver func(*slot.Slot)) int {
	m.mu.Lock()
	m.waitCalls++
	m.mu.Unlock()

	select {
	case s := <-m.completed:
		deliver(s)
		return 1 + m.Drain(deliver)
	case <-ctx.Done():
		return 0
	}
}

// Retry implements driver.Driver by resubmitting s.
func (m *MockDriver) Retry(ctx context.Context, s *slot.Slot) error {
	m.mu.Lock()
	m.retryCalls++
	m.mu.Unlock()
	return m.Submit(ctx, s)
}

// Close implements driver.Driver.
func (m *MockDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CallCounts returns the number of times each method has been called, for
// test assertions.
func (m *MockDriver) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"submit": m.submitCalls,
		"retry":  m.retryCalls,
		"drain":  m.drainCalls,
		"wait":   m.waitCalls,
	}
}

var _ driver.Driver = (*MockDriver)(nil)

// NewTestGroup builds a Group with small, test-friendly defaults: a tiny
// arena and bounce pool, sized for unit tests rather than production
// throughput.
func NewTestGroup(t interface{ Helper() }) *Group {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxAIOInProgress = 64
	cfg.MaxAIOBounceBuffers = 16
	cfg.IOMaxConcurrency = 8
	cfg.SubmissionBatchLimit = 1
	g, err := NewGroup(cfg)
	if err != nil {
		panic(err)
	}
	return g
}
