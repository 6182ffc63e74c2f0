package scenario

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSession_RunIteration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"userId": 1, "orderId": 1}`))
	}))
	defer server.Close()

	rec := &testRecorder{}
	s := newTestSession(t, server.URL, rec)

	for i := 0; i < 20; i++ {
		if err := s.RunIteration(context.Background()); err != nil {
			t.Fatalf("RunIteration() error = %v", err)
		}
	}

	calls := rec.Calls()
	if len(calls) == 0 {
		t.Fatal("no outcomes recorded after 20 iterations")
	}
	for _, call := range calls {
		if !call.Success {
			t.Errorf("recorded failure %+v against healthy server", call)
		}
	}
}

func TestSession_RunIteration_FailuresDoNotAbort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	rec := &testRecorder{}
	s := newTestSession(t, server.URL, rec)

	for i := 0; i < 10; i++ {
		if err := s.RunIteration(context.Background()); err != nil {
			t.Fatalf("RunIteration() error = %v, want nil for HTTP failures", err)
		}
	}

	if len(rec.Calls()) == 0 {
		t.Fatal("no outcomes recorded")
	}
}

func TestSession_RunIteration_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	rec := &testRecorder{}
	s := newTestSession(t, server.URL, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.RunIteration(ctx)
	if err == nil {
		t.Fatal("RunIteration() error = nil with cancelled context, want context error")
	}
}

func TestSession_PickTask_CoversAllTasks(t *testing.T) {
	profile, err := GetProfile("standard")
	if err != nil {
		t.Fatalf("GetProfile(standard) error = %v", err)
	}

	s := NewSession(1, &http.Client{}, "http://example.invalid", profile, &testRecorder{})

	seen := map[string]int{}
	for i := 0; i < 5000; i++ {
		task := s.pickTask()
		if task == nil {
			t.Fatal("pickTask() returned nil")
		}
		seen[task.Name]++
	}

	for _, task := range profile.Tasks {
		if seen[task.Name] == 0 {
			t.Errorf("task %s never selected in 5000 picks", task.Name)
		}
	}

	// The dominant task should be picked most often
	if seen["product browsing"] <= seen["user registration"] {
		t.Errorf("weight 40 task picked %d times, weight 10 task %d times",
			seen["product browsing"], seen["user registration"])
	}
}

func TestSession_DistinctSeeds(t *testing.T) {
	profile, err := GetProfile("standard")
	if err != nil {
		t.Fatalf("GetProfile(standard) error = %v", err)
	}

	s1 := NewSession(1, &http.Client{}, "http://example.invalid", profile, &testRecorder{})
	s2 := NewSession(2, &http.Client{}, "http://example.invalid", profile, &testRecorder{})

	// Different VUs should not generate identical payload streams
	same := 0
	for i := 0; i < 10; i++ {
		p1 := NewUserPayload(s1.rng, "U", "L", "e")
		p2 := NewUserPayload(s2.rng, "U", "L", "e")
		if p1 == p2 {
			same++
		}
	}
	if same == 10 {
		t.Error("two sessions generated identical payload streams")
	}
}
