// Package scenario defines the scripted e-commerce user behaviors.
//
// Each virtual user owns a Session holding per-user state (captured ids,
// random source). An iteration picks one of the profile's weighted tasks
// and executes one complete pass of it, recording every request outcome
// through the Recorder.
package scenario

import (
	"context"
	"math/rand"
	"net/http"
	"time"
)

// Session is the per-virtual-user scenario state.
//
// Sessions are not safe for concurrent use; each virtual user owns
// exactly one.
type Session struct {
	vuID    int
	rng     *rand.Rand
	client  *Client
	profile *Profile

	// Captured opportunistically from creation responses
	userID  string
	orderID string
}

// NewSession creates a session for one virtual user.
func NewSession(vuID int, httpClient *http.Client, baseURL string, profile *Profile, rec Recorder) *Session {
	// Per-VU source so concurrent users draw independent values
	seed := time.Now().UnixNano() ^ (int64(vuID) << 16)

	return &Session{
		vuID:    vuID,
		rng:     rand.New(rand.NewSource(seed)),
		client:  NewClient(httpClient, baseURL, rec),
		profile: profile,
	}
}

// UserID returns the user id captured from a registration response, or
// the empty string when none was captured.
func (s *Session) UserID() string {
	return s.userID
}

// OrderID returns the order id captured from an order creation response,
// or the empty string when none was captured.
func (s *Session) OrderID() string {
	return s.orderID
}

// RunIteration executes one weighted task pass.
//
// Request failures are recorded as statistics and never abort the
// session; only context cancellation surfaces as an error.
func (s *Session) RunIteration(ctx context.Context) error {
	task := s.pickTask()
	if task == nil {
		return nil
	}

	if err := task.Run(ctx, s); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// pickTask selects a task by cumulative weight.
func (s *Session) pickTask() *Task {
	total := s.profile.TotalWeight()
	if total <= 0 {
		return nil
	}

	n := s.rng.Intn(total)
	for i := range s.profile.Tasks {
		n -= s.profile.Tasks[i].Weight
		if n < 0 {
			return &s.profile.Tasks[i]
		}
	}
	return nil
}
