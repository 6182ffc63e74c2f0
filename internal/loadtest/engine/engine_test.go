package engine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopload/shopload/internal/config"
	"github.com/shopload/shopload/internal/loadtest/engine"
)

// newShopServer returns a stub of the e-commerce API that answers every
// scenario endpoint and counts the requests it receives.
func newShopServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var requests atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": 42}`))
			return
		}
		w.Write([]byte(`[]`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &requests
}

func TestEngine_New_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	// Host missing

	_, err := engine.New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host")
}

func TestEngine_New_UnknownProfile(t *testing.T) {
	server, _ := newShopServer(t)

	cfg := config.Default()
	cfg.Host = server.URL
	cfg.Profiles = []string{"nonexistent"}
	cfg.Users = 1
	cfg.Duration = config.Duration(time.Second)

	eng, err := engine.New(cfg)
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.Error(t, err)
}

func TestEngine_Run(t *testing.T) {
	server, requests := newShopServer(t)

	cfg := config.Default()
	cfg.Name = "engine smoke"
	cfg.Host = server.URL
	cfg.Profiles = []string{"high-load"}
	cfg.Users = 2
	cfg.Duration = config.Duration(500 * time.Millisecond)
	cfg.Thresholds = &config.Thresholds{
		HTTPReqFailed: []string{"rate < 0.5"},
		HTTPReqs:      []string{"count > 0"},
	}

	eng, err := engine.New(cfg)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "engine smoke", result.Name)
	assert.Equal(t, server.URL, result.Host)
	assert.True(t, result.EndTime.After(result.StartTime))

	assert.Positive(t, requests.Load(), "server received no requests")
	assert.Positive(t, result.Metrics.TotalRequests)
	assert.Zero(t, result.Metrics.FailedRequests)

	require.Contains(t, result.Profiles, "high-load")
	profile := result.Profiles["high-load"]
	assert.Equal(t, "constant-vus", profile.Executor)
	assert.Positive(t, profile.Iterations)
	assert.NoError(t, profile.Error)

	require.Len(t, result.Thresholds, 2)
	for _, tr := range result.Thresholds {
		assert.True(t, tr.Passed, "threshold %s %q failed", tr.Metric, tr.Expression)
	}
	assert.True(t, result.Passed)

	assert.NotEmpty(t, result.RequestStats)
	assert.False(t, eng.IsRunning())
}

func TestEngine_Run_FailingThreshold(t *testing.T) {
	// Every request fails
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Host = server.URL
	cfg.Profiles = []string{"high-load"}
	cfg.Users = 1
	cfg.Duration = config.Duration(300 * time.Millisecond)
	cfg.Thresholds = &config.Thresholds{
		HTTPReqFailed: []string{"rate < 0.01"},
	}

	eng, err := engine.New(cfg)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Passed)
	require.Len(t, result.Thresholds, 1)
	assert.False(t, result.Thresholds[0].Passed)
	assert.NotEmpty(t, result.Failures)
}

func TestEngine_Run_MultipleProfiles(t *testing.T) {
	server, _ := newShopServer(t)

	cfg := config.Default()
	cfg.Host = server.URL
	cfg.Profiles = []string{"standard", "high-load"}
	cfg.Users = 4
	cfg.Duration = config.Duration(400 * time.Millisecond)

	eng, err := engine.New(cfg)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Profiles, 2)
	assert.Contains(t, result.Profiles, "standard")
	assert.Contains(t, result.Profiles, "high-load")
}

func TestEngine_Run_ArrivalRate(t *testing.T) {
	server, _ := newShopServer(t)

	cfg := config.Default()
	cfg.Host = server.URL
	cfg.Profiles = []string{"high-load"}
	cfg.Users = 2
	cfg.Rate = 20
	cfg.MaxVUs = 4
	cfg.Duration = config.Duration(400 * time.Millisecond)

	eng, err := engine.New(cfg)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	profile := result.Profiles["high-load"]
	require.NotNil(t, profile)
	assert.Equal(t, "constant-arrival-rate", profile.Executor)
	assert.Positive(t, profile.Iterations)
}

func TestEngine_Run_SpawnRateRamp(t *testing.T) {
	server, _ := newShopServer(t)

	cfg := config.Default()
	cfg.Host = server.URL
	cfg.Profiles = []string{"high-load"}
	cfg.Users = 2
	cfg.SpawnRate = 10
	cfg.Duration = config.Duration(400 * time.Millisecond)

	eng, err := engine.New(cfg)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	profile := result.Profiles["high-load"]
	require.NotNil(t, profile)
	assert.Equal(t, "ramping-vus", profile.Executor)
}

func TestEngine_Run_Cancelled(t *testing.T) {
	server, _ := newShopServer(t)

	cfg := config.Default()
	cfg.Host = server.URL
	cfg.Profiles = []string{"high-load"}
	cfg.Users = 2
	cfg.Duration = config.Duration(30 * time.Second)

	eng, err := engine.New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, _ := eng.Run(ctx)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 10*time.Second, "Run did not stop promptly after cancellation")
	require.NotNil(t, result)
}

func TestEngine_Run_AlreadyRunning(t *testing.T) {
	server, _ := newShopServer(t)

	cfg := config.Default()
	cfg.Host = server.URL
	cfg.Profiles = []string{"high-load"}
	cfg.Users = 1
	cfg.Duration = config.Duration(1 * time.Second)

	eng, err := engine.New(cfg)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = eng.Run(context.Background())
	}()

	// Give the first run time to start
	time.Sleep(100 * time.Millisecond)
	assert.True(t, eng.IsRunning())

	_, err = eng.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	<-done
}
