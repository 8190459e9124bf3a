package procstate

import (
	"runtime"
	"sync/atomic"
)

// spinlock is a tiny test-and-test-and-set spinlock, used for the one
// structure that needs spinlock- rather than mutex-guarded protection: a
// backend's foreign_completed list. No importable third-party spinlock
// package fits without vendoring an external module path, so this is a
// deliberate small stdlib primitive — see DESIGN.md.
type spinlock struct {
	state atomic.Bool
}

func (s *spinlock) Lock() {
	for {
		if !s.state.Swap(true) {
			return
		}
		for s.state.Load() {
			runtime.Gosched()
		}
	}
}

func (s *spinlock) Unlock() {
	s.state.Store(false)
}
