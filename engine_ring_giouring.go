//go:build giouring

package aio

import "github.com/behrlich/aio/internal/driver/ring"

// With the giouring build tag set, the ring backend is constructed via
// pawelgaczynski/giouring instead of this module's hand-rolled raw
// io_uring_setup/io_uring_enter syscalls.
func init() {
	newRingDriver = ring.NewGiouring
}
