// Package config holds the enumerated tunables of the AIO engine.
//
// There is no file or environment parsing here by design: process startup,
// signal wiring, and configuration loading are external collaborators.
// Callers build a Config directly and pass it to Group.
package config

import "fmt"

// BackendType selects the kernel-facing driver compiled/enabled for a run.
// Several may be compiled in; AIOType picks the one an Engine actually uses.
type BackendType string

const (
	BackendWorker BackendType = "worker"
	BackendRing   BackendType = "ring"
	BackendPOSIX  BackendType = "posix"
	BackendPort   BackendType = "completion-port"
)

// Config is the full enumerated configuration surface for an engine group.
type Config struct {
	// MaxAIOInProgress sizes the shared slot table (max in-progress ops
	// across every cooperating process).
	MaxAIOInProgress int

	// MaxAIOInFlight bounds the number of operations a single driver
	// context may have submitted to the kernel at once.
	MaxAIOInFlight int

	// MaxAIOBounceBuffers sizes the shared bounce-buffer pool.
	MaxAIOBounceBuffers int

	// IOMaxConcurrency is the per-process inflight cap enforced by the
	// concurrency limiter.
	IOMaxConcurrency int

	// AIOWorkerQueueSize bounds the worker driver's shared submission queue.
	AIOWorkerQueueSize int

	// AIOWorkers is the number of worker processes (goroutines in this
	// implementation).
	AIOWorkers int

	// AIOType selects the compiled-in driver this Engine submits through.
	AIOType BackendType

	// SubmissionBatchLimit bounds how many slots accumulate on a backend's
	// pending list before an automatic submit triggers.
	SubmissionBatchLimit int

	// MergeCombineLimit bounds how many adjacent ops may fuse into one
	// kernel submission chain.
	MergeCombineLimit int

	// RetryLimit bounds soft-failure retries before a hard failure is
	// surfaced.
	RetryLimit int
}

// Default returns sensible defaults for a general-purpose deployment.
func Default() Config {
	return Config{
		MaxAIOInProgress:     1024,
		MaxAIOInFlight:       128,
		MaxAIOBounceBuffers:  256,
		IOMaxConcurrency:     64,
		AIOWorkerQueueSize:   256,
		AIOWorkers:           4,
		AIOType:              BackendWorker,
		SubmissionBatchLimit: 32,
		MergeCombineLimit:    16,
		RetryLimit:           5,
	}
}

// Validate checks the configuration for protocol invariant violations.
// Malformed configuration is a fatal error: the caller should treat it as
// a reason to refuse to run an engine with an inconsistent tunable set.
func (c Config) Validate() error {
	switch {
	case c.MaxAIOInProgress <= 0:
		return fmt.Errorf("config: MaxAIOInProgress must be positive, got %d", c.MaxAIOInProgress)
	case c.MaxAIOInFlight <= 0:
		return fmt.Errorf("config: MaxAIOInFlight must be positive, got %d", c.MaxAIOInFlight)
	case c.IOMaxConcurrency <= 0:
		return fmt.Errorf("config: IOMaxConcurrency must be positive, got %d", c.IOMaxConcurrency)
	case c.IOMaxConcurrency > c.MaxAIOInProgress:
		return fmt.Errorf("config: IOMaxConcurrency (%d) exceeds MaxAIOInProgress (%d)", c.IOMaxConcurrency, c.MaxAIOInProgress)
	case c.SubmissionBatchLimit <= 0:
		return fmt.Errorf("config: SubmissionBatchLimit must be positive, got %d", c.SubmissionBatchLimit)
	case c.MergeCombineLimit <= 0:
		return fmt.Errorf("config: MergeCombineLimit must be positive, got %d", c.MergeCombineLimit)
	case c.AIOWorkers < 0:
		return fmt.Errorf("config: AIOWorkers must not be negative, got %d", c.AIOWorkers)
	case c.RetryLimit < 0:
		return fmt.Errorf("config: RetryLimit must not be negative, got %d", c.RetryLimit)
	}
	return nil
}
