//go:build !windows

package aio

import "github.com/behrlich/aio/internal/driver"

// newCPortDriver reports ErrUnsupported: the completion-port backend only
// builds on windows.
func newCPortDriver(cfg Config) (driver.Driver, error) {
	return nil, driver.ErrUnsupported
}
