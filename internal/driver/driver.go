// Package driver defines the pluggable backend interface: submit a batch
// of (possibly merged) slots, drain completions without blocking, wait for
// at least one completion, and retry a previously-submitted slot. Four
// concrete drivers implement it:
// internal/driver/ring (io_uring), internal/driver/posix (POSIX AIO),
// internal/driver/cport (Windows I/O completion ports) and
// internal/driver/worker (portable worker-process fallback).
package driver

import (
	"context"
	"errors"

	"github.com/behrlich/aio/internal/slot"
)

// ErrUnsupported is returned by a driver constructor when the host platform
// cannot provide the requested backend (e.g. requesting the ring driver on
// a kernel without io_uring support).
var ErrUnsupported = errors.New("driver: backend unsupported on this platform")

// Driver is the interface every backend implementation satisfies. The
// engine does not serialize calls: Drain runs in the submitting goroutine
// (from Arena.Acquire when the slot pool is exhausted) while WaitOne runs
// in the reap goroutine, so implementations must tolerate that overlap.
type Driver interface {
	// Submit hands a prepared (possibly merge-chained) slot to the driver.
	// It may return an error, e.g. the ring driver reports a full
	// submission queue rather than blocking.
	Submit(ctx context.Context, s *slot.Slot) error

	// Drain collects any completions that are already available without
	// blocking, invoking deliver for each. Returns the number delivered.
	Drain(deliver func(*slot.Slot)) int

	// WaitOne blocks until at least one completion is available or ctx is
	// done, invoking deliver for each completion collected. Returns the
	// number delivered, or 0 if ctx expired first.
	WaitOne(ctx context.Context, deliver func(*slot.Slot)) int

	// Retry resubmits a slot whose shared callback requested a soft-failure
	// retry, reusing whatever driver-side resources its
	// descriptor tag still references.
	Retry(ctx context.Context, s *slot.Slot) error

	// Close releases the driver's OS resources. No further calls are valid
	// afterward.
	Close() error
}

// Name identifies a driver backend for logging and introspection.
type Name string

const (
	NameRing   Name = "ring"
	NamePOSIX  Name = "posix"
	NameCPort  Name = "cport"
	NameWorker Name = "worker"
)
