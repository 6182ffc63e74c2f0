// Package loadtest provides the virtual-user load generation engine.
package loadtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is actively running iterations.
	VUStateRunning
	// VUStateStopping indicates the VU has been requested to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IterationRunner is the behavior a VU executes each iteration.
//
// A runner performs one complete pass of user actions (requests, response
// classification, state capture) and returns when the pass completes. Runners
// record their own request metrics; the engine only counts iterations.
type IterationRunner interface {
	RunIteration(ctx context.Context) error
}

// VirtualUser represents a single simulated user executing test iterations.
//
// Each VU has its own:
// - Iteration runner (holding per-user state)
// - Iteration counter
// - Lifecycle management
//
// VUs are created by the VUScheduler and driven by an Executor.
type VirtualUser struct {
	// Unique identifier for this VU
	ID int

	// Runner defines what the VU does each iteration
	Runner IterationRunner

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	// Stop signal
	stopCh chan struct{}

	// Done signal (closed when VU fully stops)
	doneCh chan struct{}

	// Iteration counter
	iteration atomic.Int64

	// Last iteration timing
	lastIterStart time.Time
	lastIterEnd   time.Time
}

// NewVirtualUser creates a new Virtual User.
func NewVirtualUser(id int, runner IterationRunner) *VirtualUser {
	return &VirtualUser{
		ID:     id,
		Runner: runner,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the current iteration number.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// RunIteration executes a single iteration of the runner.
//
// Returns:
//   - nil if the iteration completed successfully
//   - error if the iteration was cancelled or encountered a fatal error
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	// Check if we should run
	currentState := vu.GetState()
	if currentState == VUStateStopping || currentState == VUStateStopped {
		return fmt.Errorf("VU %d is stopping or stopped", vu.ID)
	}

	// Transition to running
	vu.state.Store(int32(VUStateRunning))
	vu.lastIterStart = time.Now()
	vu.iteration.Add(1)

	// Check for stop signal before doing work
	select {
	case <-ctx.Done():
		vu.lastIterEnd = time.Now()
		return ctx.Err()
	case <-vu.stopCh:
		vu.lastIterEnd = time.Now()
		return nil // Graceful stop
	default:
	}

	err := vu.Runner.RunIteration(ctx)

	vu.lastIterEnd = time.Now()
	if err != nil {
		return err
	}

	vu.state.Store(int32(VUStateIdle))
	return nil
}

// ApplyPacing waits for the specified duration or until stopped.
func (vu *VirtualUser) ApplyPacing(ctx context.Context, duration time.Duration) {
	select {
	case <-ctx.Done():
	case <-vu.stopCh:
	case <-time.After(duration):
	}
}

// RequestStop signals the VU to stop after completing the current iteration.
func (vu *VirtualUser) RequestStop() {
	currentState := VUState(vu.state.Load())
	if currentState == VUStateStopped {
		return
	}

	// Try to transition to stopping state
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	select {
	case <-vu.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
// Should be called by the scheduler when the VU goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
	select {
	case <-vu.doneCh:
		// Already closed
	default:
		close(vu.doneCh)
	}
}
