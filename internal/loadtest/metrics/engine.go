// Package metrics collects and aggregates load test measurements.
package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Engine collects and aggregates performance metrics using HDR histograms.
//
// Key features:
// - HDR histogram for accurate latency percentiles (O(1) calculation)
// - Continuous time-bucket emission (even during low activity)
// - Lock-free counter updates for high concurrency
// - Failure-reason breakdown per request name
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations,
// histograms use mutex protection, and the background emitter runs
// in its own goroutine.
type Engine struct {
	// HDR Histogram for latency measurement
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	// Per-request-name breakdown
	requests   map[string]*requestRecord
	requestsMu sync.RWMutex

	// Atomic counters for lock-free updates
	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64

	// Active VU tracking
	activeVUs atomic.Int32

	// Time-bucketed metrics store
	bucketStore *TimeBucketStore

	// Phase tracking
	currentPhase Phase
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	// Timing
	startTime time.Time

	// Background emitter
	emitterCtx    context.Context
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup

	// Configuration
	config EngineConfig
}

// requestRecord holds the per-name histogram, counters and failure reasons.
type requestRecord struct {
	hist     *hdrhistogram.Histogram
	requests int64
	failures int64
	reasons  map[string]int64
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a new metrics engine with custom configuration.
func NewEngineWithConfig(config EngineConfig) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	hist := hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs)

	engine := &Engine{
		latencyHist:   hist,
		requests:      make(map[string]*requestRecord),
		bucketStore:   NewTimeBucketStore(config.MaxBuckets),
		currentPhase:  PhaseInit,
		phaseHistory:  make([]PhaseChange, 0),
		startTime:     time.Now(),
		emitterCtx:    ctx,
		emitterCancel: cancel,
		config:        config,
	}

	// Start background emitter
	engine.emitterWg.Add(1)
	go engine.runEmitter()

	return engine
}

// RecordRequest records the outcome of a single request.
//
// This is the primary recording method. It updates the overall histogram,
// the per-request histogram and counters, and the failure-reason breakdown.
//
// Parameters:
//   - name: Request name for per-request breakdown (empty string to skip)
//   - duration: The request latency
//   - success: Whether the request was classified as successful
//   - bytes: Number of bytes received
//   - reason: Failure reason (ignored when success is true)
func (e *Engine) RecordRequest(name string, duration time.Duration, success bool, bytes int64, reason string) {
	// Convert to microseconds for HDR histogram
	latencyMicros := duration.Microseconds()

	// Clamp to valid range
	if latencyMicros < e.config.HistogramMin {
		latencyMicros = e.config.HistogramMin
	}
	if latencyMicros > e.config.HistogramMax {
		latencyMicros = e.config.HistogramMax
	}

	// Record in overall histogram (thread-safe via mutex)
	e.latencyHistMu.Lock()
	e.latencyHist.RecordValue(latencyMicros)
	e.latencyHistMu.Unlock()

	// Record in per-request breakdown (if name provided)
	if name != "" {
		e.recordRequestBreakdown(name, latencyMicros, success, reason)
	}

	// Update atomic counters
	e.totalRequests.Add(1)
	e.totalBytes.Add(bytes)

	if success {
		e.successRequests.Add(1)
	} else {
		e.failedRequests.Add(1)
	}

	// Record in bucket store for time-series
	e.bucketStore.RecordRequest(success, bytes)
}

// recordRequestBreakdown updates the per-name record.
// NOTE: HDR histogram RecordValue is NOT thread-safe, so we must hold a lock.
func (e *Engine) recordRequestBreakdown(name string, latencyMicros int64, success bool, reason string) {
	e.requestsMu.Lock()
	defer e.requestsMu.Unlock()

	rec, exists := e.requests[name]
	if !exists {
		rec = &requestRecord{
			hist:    hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs),
			reasons: make(map[string]int64),
		}
		e.requests[name] = rec
	}

	rec.hist.RecordValue(latencyMicros)
	rec.requests++

	if !success {
		rec.failures++
		if reason == "" {
			reason = "unknown"
		}
		rec.reasons[reason]++
	}
}

// SetPhase updates the current test phase.
//
// This is called by executors to mark phase transitions.
// Phase information is included in time-series buckets.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.currentPhase == phase {
		return // No change
	}

	e.currentPhase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  e.totalRequests.Load(),
	})
}

// GetPhase returns the current test phase.
func (e *Engine) GetPhase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase
}

// SetActiveVUs updates the active VU count.
func (e *Engine) SetActiveVUs(count int) {
	e.activeVUs.Store(int32(count))
}

// GetActiveVUs returns the current active VU count.
func (e *Engine) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

// runEmitter runs the background time-bucket emitter.
func (e *Engine) runEmitter() {
	defer e.emitterWg.Done()

	ticker := time.NewTicker(e.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.emitterCtx.Done():
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

// emitBucket creates a new time-series bucket with current metrics.
func (e *Engine) emitBucket() {
	latencies := e.GetLatencyPercentiles()

	phase := e.GetPhase()
	activeVUs := e.GetActiveVUs()

	totalRequests := e.totalRequests.Load()
	totalSuccesses := e.successRequests.Load()
	totalFailures := e.failedRequests.Load()
	totalBytes := e.totalBytes.Load()

	e.bucketStore.CreateBucket(
		totalRequests, totalSuccesses, totalFailures, totalBytes,
		latencies, activeVUs, phase,
	)
}

// GetLatencyPercentiles returns current latency percentiles.
func (e *Engine) GetLatencyPercentiles() LatencyPercentiles {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()

	return LatencyPercentiles{
		Min: time.Duration(e.latencyHist.Min()) * time.Microsecond,
		Max: time.Duration(e.latencyHist.Max()) * time.Microsecond,
		P50: time.Duration(e.latencyHist.ValueAtQuantile(50)) * time.Microsecond,
		P90: time.Duration(e.latencyHist.ValueAtQuantile(90)) * time.Microsecond,
		P95: time.Duration(e.latencyHist.ValueAtQuantile(95)) * time.Microsecond,
		P99: time.Duration(e.latencyHist.ValueAtQuantile(99)) * time.Microsecond,
	}
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latencyStats := statsFromHistogram(e.latencyHist)
	e.latencyHistMu.Unlock()

	elapsed := time.Since(e.startTime)
	totalReqs := e.totalRequests.Load()
	failedReqs := e.failedRequests.Load()

	// Calculate overall RPS
	overallRPS := 0.0
	if elapsed.Seconds() > 0 {
		overallRPS = float64(totalReqs) / elapsed.Seconds()
	}

	// Calculate steady-state RPS (more accurate)
	steadyRPS, steadyBuckets := e.bucketStore.CalculateSteadyStateRPS()

	// Use steady-state RPS if available, otherwise overall
	rps := overallRPS
	if steadyBuckets > 0 {
		rps = steadyRPS
	}

	// Error rate
	errorRate := 0.0
	if totalReqs > 0 {
		errorRate = float64(failedReqs) / float64(totalReqs)
	}

	return &Snapshot{
		TotalRequests:   totalReqs,
		SuccessRequests: e.successRequests.Load(),
		FailedRequests:  failedReqs,
		TotalBytes:      e.totalBytes.Load(),
		Latency:         latencyStats,
		RPS:             rps,
		SteadyStateRPS:  steadyRPS,
		ErrorRate:       errorRate,
		ActiveVUs:       e.GetActiveVUs(),
		CurrentPhase:    e.GetPhase(),
		Elapsed:         elapsed,
		StartTime:       e.startTime,
		Timestamp:       time.Now(),
	}
}

// statsFromHistogram extracts latency statistics from a histogram.
// Caller must hold the histogram's lock.
func statsFromHistogram(hist *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    time.Duration(hist.Min()) * time.Microsecond,
		Max:    time.Duration(hist.Max()) * time.Microsecond,
		Mean:   time.Duration(hist.Mean()) * time.Microsecond,
		StdDev: time.Duration(hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  hist.TotalCount(),
	}
}

// GetTimeSeries returns all time-series buckets.
func (e *Engine) GetTimeSeries() []*TimeBucket {
	return e.bucketStore.GetBuckets()
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// GetRequestStats returns per-request statistics.
func (e *Engine) GetRequestStats() map[string]RequestStats {
	e.requestsMu.RLock()
	defer e.requestsMu.RUnlock()

	result := make(map[string]RequestStats, len(e.requests))

	for name, rec := range e.requests {
		result[name] = RequestStats{
			Latency:  statsFromHistogram(rec.hist),
			Requests: rec.requests,
			Failures: rec.failures,
		}
	}

	return result
}

// GetFailures returns the failure breakdown across all request names,
// sorted by occurrence count descending.
func (e *Engine) GetFailures() []FailureCount {
	e.requestsMu.RLock()
	defer e.requestsMu.RUnlock()

	result := make([]FailureCount, 0)
	for name, rec := range e.requests {
		for reason, count := range rec.reasons {
			result = append(result, FailureCount{
				Name:   name,
				Reason: reason,
				Count:  count,
			})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Reason < result[j].Reason
	})

	return result
}

// Stop stops the metrics engine and emits a final bucket.
func (e *Engine) Stop() {
	e.emitterCancel()
	e.emitterWg.Wait()

	// Emit final bucket
	e.emitBucket()
}

// Reset resets all metrics to initial state.
func (e *Engine) Reset() {
	e.latencyHistMu.Lock()
	e.latencyHist.Reset()
	e.latencyHistMu.Unlock()

	e.requestsMu.Lock()
	e.requests = make(map[string]*requestRecord)
	e.requestsMu.Unlock()

	e.totalRequests.Store(0)
	e.successRequests.Store(0)
	e.failedRequests.Store(0)
	e.totalBytes.Store(0)
	e.activeVUs.Store(0)

	e.phaseMu.Lock()
	e.currentPhase = PhaseInit
	e.phaseHistory = make([]PhaseChange, 0)
	e.phaseMu.Unlock()

	e.bucketStore.Reset()
	e.startTime = time.Now()
}
