package aio

import "github.com/behrlich/aio/internal/config"

// Re-exported defaults, mirrored from internal/config so callers building
// a Config by hand don't need to import the internal package just to see
// what "default" means.
const (
	DefaultMaxAIOInProgress    = 1024
	DefaultMaxAIOInFlight      = 128
	DefaultMaxAIOBounceBuffers = 256
	DefaultIOMaxConcurrency    = 64
	DefaultAIOWorkerQueueSize  = 256
	DefaultAIOWorkers          = 4
	DefaultSubmissionBatchLimit = 32
	DefaultMergeCombineLimit   = 16
	DefaultRetryLimit          = 5
)

// BackendType re-exports internal/config's backend selector for callers
// constructing a Config directly.
type BackendType = config.BackendType

const (
	BackendWorker = config.BackendWorker
	BackendRing   = config.BackendRing
	BackendPOSIX  = config.BackendPOSIX
	BackendPort   = config.BackendPort
)
