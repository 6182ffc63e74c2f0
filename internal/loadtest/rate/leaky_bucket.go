// Package rate provides iteration scheduling for open-model load generation.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket schedules iterations at a fixed rate.
//
// Unlike a token bucket, which answers "how many tokens are available",
// the leaky bucket answers "when should the next iteration start". This
// gives smooth scheduling without bursts after rate changes.
//
// # Thread Safety
//
// LeakyBucket is safe for concurrent use from multiple goroutines.
//
// # Example
//
//	lb := NewLeakyBucket(100.0) // 100 iterations per second
//
//	for {
//	    if err := lb.Wait(ctx); err != nil {
//	        return
//	    }
//	    // Execute iteration
//	}
type LeakyBucket struct {
	rate        float64   // Iterations per second
	lastDrip    time.Time // Last iteration timestamp
	accumulated float64   // Accumulated iterations (fractional)
	mu          sync.Mutex

	// Metrics
	totalIterations atomic.Int64 // Total iterations scheduled
	totalWaitTime   atomic.Int64 // Total wait time in nanoseconds
}

// NewLeakyBucket creates a new leaky bucket rate limiter.
//
// The bucket starts empty, so the first call to Next() schedules
// one interval out rather than firing immediately.
func NewLeakyBucket(rate float64) *LeakyBucket {
	if rate <= 0 {
		rate = 1.0
	}
	return &LeakyBucket{
		rate:     rate,
		lastDrip: time.Now(),
	}
}

// Next returns when the next iteration should start.
//
// The returned time may be in the past if we're behind schedule,
// indicating the iteration should execute immediately.
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(lb.lastDrip).Seconds()

	// Elapsed can be negative when lastDrip is a scheduled future time
	if elapsed < 0 {
		elapsed = 0
	}

	// Accumulate iterations based on elapsed time, capped at one
	// so a slow consumer never triggers a burst
	lb.accumulated += elapsed * lb.rate
	if lb.accumulated > 1.0 {
		lb.accumulated = 1.0
	}

	if lb.accumulated >= 1.0 {
		lb.accumulated -= 1.0
		lb.lastDrip = now
		lb.totalIterations.Add(1)
		return now
	}

	// Schedule the next iteration in the future
	deficit := 1.0 - lb.accumulated
	waitSeconds := deficit / lb.rate
	lb.accumulated = 0

	nextTime := now.Add(time.Duration(waitSeconds * float64(time.Second)))

	// lastDrip advances to nextTime, not now; otherwise the elapsed time
	// accumulated while sleeping would schedule an immediate extra iteration
	lb.lastDrip = nextTime

	lb.totalIterations.Add(1)
	lb.totalWaitTime.Add(int64(nextTime.Sub(now)))

	return nextTime
}

// Wait blocks until the next iteration should execute.
//
// Returns nil when the wait completed, or ctx.Err() if the
// context was cancelled first.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	nextTime := lb.Next()

	waitDuration := time.Until(nextTime)
	if waitDuration <= 0 {
		// Execute immediately
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(waitDuration):
		return nil
	}
}

// SetRate updates the target rate.
//
// Accumulated iterations are discarded on a rate change so a
// ramp-down never produces a burst.
func (lb *LeakyBucket) SetRate(rate float64) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if rate <= 0 {
		rate = 1.0
	}

	lb.rate = rate
	lb.accumulated = 0
	lb.lastDrip = time.Now()
}

// GetRate returns the current target rate in iterations per second.
func (lb *LeakyBucket) GetRate() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.rate
}

// Stats returns statistics about the bucket's operation.
func (lb *LeakyBucket) Stats() Stats {
	lb.mu.Lock()
	rate := lb.rate
	accumulated := lb.accumulated
	lb.mu.Unlock()

	return Stats{
		Rate:            rate,
		Accumulated:     accumulated,
		TotalIterations: lb.totalIterations.Load(),
		TotalWaitTime:   time.Duration(lb.totalWaitTime.Load()),
	}
}

// Reset resets the bucket to its initial state.
func (lb *LeakyBucket) Reset() {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.accumulated = 0
	lb.lastDrip = time.Now()
	lb.totalIterations.Store(0)
	lb.totalWaitTime.Store(0)
}

// Stats contains statistics about a leaky bucket.
type Stats struct {
	Rate            float64       `json:"rate"`            // Current rate in iterations/second
	Accumulated     float64       `json:"accumulated"`     // Currently accumulated iterations
	TotalIterations int64         `json:"totalIterations"` // Total iterations scheduled
	TotalWaitTime   time.Duration `json:"totalWaitTime"`   // Total time spent waiting
}
