// Package limiter bounds how many operations a backend may have in flight
// with its driver at once. It only counts permits; it does not choose
// which in-flight operation to wait on (procstate.State.OldestInflight
// makes that selection).
package limiter

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter caps the number of concurrently in-flight operations a backend
// may hand to its driver.
type Limiter struct {
	sem *semaphore.Weighted
	max int64
}

// New creates a limiter admitting up to max concurrent in-flight operations.
func New(max int) *Limiter {
	return &Limiter{sem: semaphore.NewWeighted(int64(max)), max: int64(max)}
}

// Max returns the configured concurrency ceiling.
func (l *Limiter) Max() int64 { return l.max }

// Acquire blocks until a slot in the concurrency window is available.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// TryAcquire attempts a non-blocking admit; returns false if the window is
// currently full.
func (l *Limiter) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release frees one slot in the concurrency window, called once a submitted
// operation is reaped.
func (l *Limiter) Release() {
	l.sem.Release(1)
}
