//go:build windows

package aio

import (
	"github.com/behrlich/aio/internal/driver"
	"github.com/behrlich/aio/internal/driver/cport"
)

// newCPortDriver wires the Windows I/O completion port backend
// in for BackendPort on platforms that can build it.
func newCPortDriver(cfg Config) (driver.Driver, error) {
	return cport.New(cfg.AIOWorkers, cfg.AIOWorkerQueueSize)
}
