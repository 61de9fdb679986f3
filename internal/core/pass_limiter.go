package core

// pass_limiter.go bounds how many cleaning passes run at once.
//
// A pass holds a fully materialized table plus its cleaned copy, so the
// server caps parallel passes with a semaphore. When every slot is taken, a
// new pass waits up to maxWait before failing with ErrTooManyPasses.
// WaitForDrain lets shutdown block until in-flight passes finish.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyPasses is returned when no slot frees up within the wait time.
var ErrTooManyPasses = errors.New("too many concurrent passes, please try again later")

// DefaultMaxConcurrentPasses is the default limit for parallel passes.
const DefaultMaxConcurrentPasses = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// PassLimiter is a counting semaphore over cleaning passes.
type PassLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration
	active    atomic.Int64
}

// NewPassLimiter allows at most maxConcurrent simultaneous passes. Non-positive
// arguments fall back to the defaults.
func NewPassLimiter(maxConcurrent int, maxWait time.Duration) *PassLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentPasses
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &PassLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot, waiting at most maxWait. The caller must Release
// after a nil return.
func (l *PassLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyPasses
	}
}

// TryAcquire takes a slot without blocking and reports whether it did.
func (l *PassLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release gives back a slot taken by Acquire or TryAcquire.
func (l *PassLimiter) Release() {
	l.active.Add(-1)
	<-l.semaphore
}

// ActiveCount returns the number of passes holding a slot.
func (l *PassLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *PassLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free slots.
func (l *PassLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no pass is active or ctx is done.
func (l *PassLimiter) WaitForDrain(ctx context.Context) error {
	if l.ActiveCount() == 0 {
		return nil
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}

// PassLimiterStatus is a snapshot of the limiter.
type PassLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for the health endpoint.
func (l *PassLimiter) Status() PassLimiterStatus {
	return PassLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
