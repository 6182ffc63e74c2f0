// Package engine orchestrates profile execution for a load test run.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shopload/shopload/internal/config"
	"github.com/shopload/shopload/internal/loadtest"
	"github.com/shopload/shopload/internal/loadtest/executor"
	"github.com/shopload/shopload/internal/loadtest/metrics"
	"github.com/shopload/shopload/internal/scenario"
)

// Engine coordinates a load test run.
//
// It builds a VU scheduler and an executor per selected profile, shares
// one metrics engine across them, runs them concurrently, and evaluates
// thresholds on the final snapshot.
//
// Example usage:
//
//	cfg, _ := config.Load("run.yaml")
//	eng, _ := engine.New(cfg)
//	result, _ := eng.Run(context.Background())
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	// Configuration
	config *config.Config

	// Metrics engine (shared across all profiles)
	metricsEngine *metrics.Engine

	// HTTP client configuration
	httpConfig loadtest.HTTPClientConfig

	// Profile runners
	runners map[string]*ProfileRunner
	mu      sync.RWMutex

	// State
	startTime time.Time
	running   bool
}

// ProfileRunner manages the execution of a single profile.
type ProfileRunner struct {
	Name      string
	Profile   *scenario.Profile
	Executor  executor.Executor
	Scheduler *loadtest.VUScheduler
	Result    *ProfileResult
}

// ProfileResult contains the results of a single profile.
type ProfileResult struct {
	Name       string        `json:"name"`
	Executor   string        `json:"executor"`
	Duration   time.Duration `json:"duration"`
	Iterations int64         `json:"iterations"`
	Error      error         `json:"error,omitempty"`
}

// TestResult contains the complete results of a run.
type TestResult struct {
	// Run metadata
	Name      string        `json:"name,omitempty"`
	Host      string        `json:"host"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	// Per-profile results
	Profiles map[string]*ProfileResult `json:"profiles"`

	// Aggregated metrics across all profiles
	Metrics      *metrics.Snapshot               `json:"metrics"`
	RequestStats map[string]metrics.RequestStats `json:"requestStats,omitempty"`
	Failures     []metrics.FailureCount          `json:"failures,omitempty"`
	TimeSeries   []*metrics.TimeBucket           `json:"timeSeries,omitempty"`

	// Threshold evaluation
	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`

	// Error if the run failed catastrophically
	Error error `json:"error,omitempty"`
}

// New creates a new load test engine from a validated configuration.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	httpConfig := loadtest.DefaultHTTPClientConfig()
	httpConfig.Timeout = cfg.Timeout.GetDuration(30 * time.Second)

	return &Engine{
		config:     cfg,
		httpConfig: httpConfig,
		runners:    make(map[string]*ProfileRunner),
	}, nil
}

// Run executes all selected profiles concurrently and returns the results.
//
// The context can be used for cancellation; all profiles stop gracefully
// when it is cancelled.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.startTime = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	// Create shared metrics engine
	e.metricsEngine = metrics.NewEngine()
	defer e.metricsEngine.Stop()

	e.metricsEngine.SetPhase(metrics.PhaseInit)

	if err := e.initializeProfiles(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize profiles: %w", err)
	}

	runErr := e.runProfiles(ctx)

	// Get final metrics
	finalMetrics := e.metricsEngine.GetSnapshot()

	// Evaluate thresholds
	thresholdResults := e.evaluateThresholds(finalMetrics)
	passed := true
	for _, tr := range thresholdResults {
		if !tr.Passed {
			passed = false
			break
		}
	}

	profileResults := make(map[string]*ProfileResult, len(e.runners))
	for name, runner := range e.runners {
		profileResults[name] = runner.Result
	}

	result := &TestResult{
		Name:         e.config.Name,
		Host:         e.config.Host,
		StartTime:    e.startTime,
		EndTime:      time.Now(),
		Duration:     time.Since(e.startTime),
		Profiles:     profileResults,
		Metrics:      finalMetrics,
		RequestStats: e.metricsEngine.GetRequestStats(),
		Failures:     e.metricsEngine.GetFailures(),
		TimeSeries:   e.metricsEngine.GetTimeSeries(),
		Passed:       passed,
		Thresholds:   thresholdResults,
		Error:        runErr,
	}

	return result, runErr
}

// initializeProfiles creates a scheduler and executor per selected profile.
func (e *Engine) initializeProfiles(ctx context.Context) error {
	n := len(e.config.Profiles)
	userShares := splitEvenly(e.config.Users, n)
	maxVUShares := splitEvenly(e.config.MaxVUs, n)

	for i, name := range e.config.Profiles {
		profile, err := scenario.GetProfile(name)
		if err != nil {
			return err
		}

		scheduler := loadtest.NewVUScheduler(e.sessionFactory(profile), e.metricsEngine, e.httpConfig)

		execConfig := e.buildExecutorConfig(profile, userShares[i], maxVUShares[i], float64(n))
		exec, err := executor.CreateAndInitExecutor(ctx, execConfig)
		if err != nil {
			return fmt.Errorf("failed to create executor for profile %s: %w", name, err)
		}

		e.runners[name] = &ProfileRunner{
			Name:      name,
			Profile:   profile,
			Executor:  exec,
			Scheduler: scheduler,
		}
	}

	return nil
}

// sessionFactory builds the per-VU runner factory for a profile.
func (e *Engine) sessionFactory(profile *scenario.Profile) loadtest.RunnerFactory {
	return func(vuID int, client *http.Client) loadtest.IterationRunner {
		return scenario.NewSession(vuID, client, e.config.Host, profile, e.metricsEngine)
	}
}

// buildExecutorConfig picks the executor for one profile's share of the load.
//
// A positive rate selects the open model (constant-arrival-rate). A
// positive spawn rate selects a two-stage ramp (0 to the user count over
// users/spawnRate, then hold). Otherwise all users start at once.
func (e *Engine) buildExecutorConfig(profile *scenario.Profile, users, maxVUs int, shares float64) *executor.Config {
	duration := e.config.Duration.GetDuration(1 * time.Minute)

	cfg := &executor.Config{
		Name:     profile.Name,
		Duration: duration,
		Pacing: &executor.PacingConfig{
			Type: executor.PacingRandom,
			Min:  profile.WaitMin,
			Max:  profile.WaitMax,
		},
	}

	switch {
	case e.config.Rate > 0:
		cfg.Type = executor.TypeConstantArrivalRate
		cfg.Rate = e.config.Rate / shares
		cfg.PreAllocatedVUs = users
		cfg.MaxVUs = maxVUs
		// Open model: arrival spacing comes from the rate, not pacing
		cfg.Pacing = nil

	case e.config.SpawnRate > 0:
		rampUp := time.Duration(float64(users)/e.config.SpawnRate*float64(time.Second) + 0.5)
		if rampUp > duration {
			rampUp = duration
		}
		cfg.Type = executor.TypeRampingVUs
		cfg.Stages = []executor.Stage{
			{Duration: rampUp, Target: users, Name: "ramp-up"},
			{Duration: duration - rampUp, Target: users, Name: "steady"},
		}

	default:
		cfg.Type = executor.TypeConstantVUs
		cfg.VUs = users
	}

	return cfg
}

// runProfiles runs all profile executors concurrently.
func (e *Engine) runProfiles(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for name, runner := range e.runners {
		name, runner := name, runner
		g.Go(func() error {
			startTime := time.Now()

			err := runner.Executor.Run(gctx, runner.Scheduler, e.metricsEngine)

			stats := runner.Executor.GetStats()
			runner.Result = &ProfileResult{
				Name:       name,
				Executor:   string(runner.Executor.Type()),
				Duration:   time.Since(startTime),
				Iterations: stats.Iterations,
				Error:      err,
			}

			runner.Scheduler.Shutdown(30 * time.Second)

			if err != nil {
				return fmt.Errorf("profile %s failed: %w", name, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// GetConfig returns the run configuration.
func (e *Engine) GetConfig() *config.Config {
	return e.config
}

// GetMetrics returns the current metrics snapshot.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	if e.metricsEngine == nil {
		return nil
	}
	return e.metricsEngine.GetSnapshot()
}

// GetTimeSeries returns the time series data.
func (e *Engine) GetTimeSeries() []*metrics.TimeBucket {
	if e.metricsEngine == nil {
		return nil
	}
	return e.metricsEngine.GetTimeSeries()
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop gracefully stops the engine and all running profiles.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.RLock()
	if !e.running {
		e.mu.RUnlock()
		return nil
	}
	runners := e.runners
	e.mu.RUnlock()

	var lastErr error
	for _, runner := range runners {
		if err := runner.Executor.Stop(ctx); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// GetProgress returns the overall run progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.runners) == 0 {
		return 0.0
	}

	var totalProgress float64
	for _, runner := range e.runners {
		totalProgress += runner.Executor.GetProgress()
	}

	return totalProgress / float64(len(e.runners))
}

// GetActiveVUs returns the current active VU count across all profiles.
func (e *Engine) GetActiveVUs() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	total := 0
	for _, runner := range e.runners {
		total += runner.Executor.GetActiveVUs()
	}
	return total
}

// splitEvenly splits total into n shares, remainder to the first shares.
func splitEvenly(total, n int) []int {
	shares := make([]int, n)
	if n == 0 {
		return shares
	}

	base := total / n
	rem := total % n
	for i := range shares {
		shares[i] = base
		if i < rem {
			shares[i]++
		}
	}
	return shares
}
