package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopload/shopload/internal/loadtest/engine"
	"github.com/shopload/shopload/internal/loadtest/metrics"
)

func newTestOutput(buf *bytes.Buffer, quiet bool) *ConsoleOutput {
	return NewConsoleOutput(ConsoleOutputConfig{
		RunName:       "checkout soak",
		Host:          "http://localhost:8080",
		Profiles:      []string{"standard", "high-load"},
		TotalDuration: 5 * time.Minute,
		Writer:        buf,
		Quiet:         quiet,
	})
}

func sampleResult() *engine.TestResult {
	return &engine.TestResult{
		Name:     "checkout soak",
		Host:     "http://localhost:8080",
		Duration: 5 * time.Minute,
		Metrics: &metrics.Snapshot{
			TotalRequests:  12345,
			FailedRequests: 7,
			RPS:            41.2,
			ErrorRate:      0.0006,
			Latency: metrics.LatencyStats{
				Min: 5 * time.Millisecond,
				P50: 40 * time.Millisecond,
				P90: 120 * time.Millisecond,
				P95: 180 * time.Millisecond,
				P99: 400 * time.Millisecond,
				Max: 900 * time.Millisecond,
			},
		},
		RequestStats: map[string]metrics.RequestStats{
			"Browse Products": {
				Requests: 8000,
				Latency:  metrics.LatencyStats{Mean: 30 * time.Millisecond, P95: 90 * time.Millisecond, Max: 200 * time.Millisecond},
			},
			"Create Order": {
				Requests: 4345,
				Failures: 7,
				Latency:  metrics.LatencyStats{Mean: 80 * time.Millisecond, P95: 250 * time.Millisecond, Max: 900 * time.Millisecond},
			},
		},
		Failures: []metrics.FailureCount{
			{Name: "Create Order", Reason: "Status code: 500", Count: 7},
		},
		Thresholds: []engine.ThresholdResult{
			{Metric: "http_req_duration", Expression: "p95 < 500ms", Passed: true, Value: "180ms"},
			{Metric: "http_req_failed", Expression: "rate < 0.0001", Passed: false, Value: "0.0006"},
		},
		Passed: false,
	}
}

func TestConsoleOutput_PrintHeader(t *testing.T) {
	var buf bytes.Buffer
	c := newTestOutput(&buf, false)

	c.PrintHeader()

	out := buf.String()
	if !strings.Contains(out, "checkout soak") {
		t.Error("header missing run name")
	}
	if !strings.Contains(out, "http://localhost:8080") {
		t.Error("header missing target host")
	}
	if !strings.Contains(out, "standard, high-load") {
		t.Error("header missing profile list")
	}
}

func TestConsoleOutput_PrintHeader_Quiet(t *testing.T) {
	var buf bytes.Buffer
	c := newTestOutput(&buf, true)

	c.PrintHeader()

	if buf.Len() != 0 {
		t.Errorf("quiet header produced output: %q", buf.String())
	}
}

func TestConsoleOutput_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := newTestOutput(&buf, false)

	c.PrintSummary(sampleResult())

	out := stripANSI(buf.String())

	for _, want := range []string{
		"Failed ✗",
		"Total Reqs:    12,345",
		"Latency Distribution:",
		"Browse Products",
		"Create Order",
		"7× Create Order: Status code: 500",
		"✓ http_req_duration p95 < 500ms (actual: 180ms)",
		"✗ http_req_failed rate < 0.0001 (actual: 0.0006)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q\noutput:\n%s", want, out)
		}
	}
}

func TestConsoleOutput_PrintSummary_Passed(t *testing.T) {
	var buf bytes.Buffer
	c := newTestOutput(&buf, false)

	result := sampleResult()
	result.Passed = true

	c.PrintSummary(result)

	if !strings.Contains(stripANSI(buf.String()), "Completed ✓") {
		t.Error("summary missing passed status")
	}
}

func TestConsoleOutput_PrintSummary_Quiet(t *testing.T) {
	var buf bytes.Buffer
	c := newTestOutput(&buf, true)

	c.PrintSummary(sampleResult())

	out := stripANSI(buf.String())
	if strings.TrimSpace(out) != "FAILED" {
		t.Errorf("quiet summary = %q, want FAILED", out)
	}

	buf.Reset()
	result := sampleResult()
	result.Passed = true
	c.PrintSummary(result)

	out = stripANSI(buf.String())
	if strings.TrimSpace(out) != "PASSED" {
		t.Errorf("quiet summary = %q, want PASSED", out)
	}
}

func TestConsoleOutput_Update_NonTTY(t *testing.T) {
	var buf bytes.Buffer
	c := newTestOutput(&buf, false)

	// A bytes.Buffer is never a TTY, so live updates are suppressed
	c.Update(&LiveStats{Progress: 0.5})

	if buf.Len() != 0 {
		t.Errorf("non-TTY Update produced output: %q", buf.String())
	}
}

func TestConsoleOutput_PrintNonInteractiveUpdate(t *testing.T) {
	var buf bytes.Buffer
	c := newTestOutput(&buf, false)

	c.PrintNonInteractiveUpdate(&LiveStats{
		Progress:      0.5,
		Elapsed:       30 * time.Second,
		ActiveVUs:     10,
		TotalRequests: 1500,
		CurrentRPS:    50.0,
		Errors:        3,
		ErrorRate:     0.002,
		LatencyP95:    120 * time.Millisecond,
	})

	out := buf.String()
	if !strings.Contains(out, "Progress: 50%") {
		t.Errorf("update missing progress: %q", out)
	}
	if !strings.Contains(out, "VUs: 10") {
		t.Errorf("update missing VU count: %q", out)
	}
}

func TestRenderProgressBar(t *testing.T) {
	c := newTestOutput(&bytes.Buffer{}, false)

	bar := c.renderProgressBar(0.5, 10)
	if bar != "[█████░░░░░]" {
		t.Errorf("renderProgressBar(0.5, 10) = %q", bar)
	}

	// Out-of-range values are clamped
	if c.renderProgressBar(-1, 4) != "[░░░░]" {
		t.Error("negative progress not clamped to empty bar")
	}
	if c.renderProgressBar(2, 4) != "[████]" {
		t.Error("progress > 1 not clamped to full bar")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{3725 * time.Second, "1h 02m 05s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0ms"},
		{500 * time.Nanosecond, "0ms"},
		{250 * time.Microsecond, "250µs"},
		{42 * time.Millisecond, "42ms"},
		{1500 * time.Millisecond, "1.50s"},
		{90 * time.Second, "1.5m"},
	}

	for _, tt := range tests {
		if got := formatDurationShort(tt.d); got != tt.want {
			t.Errorf("formatDurationShort(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		if got := formatNumber(tt.n); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestStripANSI(t *testing.T) {
	in := "\033[32mgreen\033[0m plain"
	if got := stripANSI(in); got != "green plain" {
		t.Errorf("stripANSI() = %q, want %q", got, "green plain")
	}
}

func TestStatsFromMetrics(t *testing.T) {
	stats := StatsFromMetrics(nil, 0.25, time.Minute, 10)
	if stats.CurrentPhase != "initializing" {
		t.Errorf("nil snapshot phase = %q, want initializing", stats.CurrentPhase)
	}
	if stats.TargetVUs != 10 {
		t.Errorf("nil snapshot TargetVUs = %d, want 10", stats.TargetVUs)
	}

	snapshot := &metrics.Snapshot{
		TotalRequests:  100,
		FailedRequests: 5,
		RPS:            20,
		ErrorRate:      0.05,
		ActiveVUs:      8,
		CurrentPhase:   metrics.PhaseSteady,
		Elapsed:        30 * time.Second,
		Latency:        metrics.LatencyStats{Mean: 50 * time.Millisecond, P95: 150 * time.Millisecond},
	}

	stats = StatsFromMetrics(snapshot, 0.5, time.Minute, 10)
	if stats.TotalRequests != 100 || stats.Errors != 5 {
		t.Errorf("request counts = %d/%d, want 100/5", stats.TotalRequests, stats.Errors)
	}
	if stats.ActiveVUs != 8 {
		t.Errorf("ActiveVUs = %d, want 8", stats.ActiveVUs)
	}
	if stats.CurrentPhase != string(metrics.PhaseSteady) {
		t.Errorf("CurrentPhase = %q, want %q", stats.CurrentPhase, metrics.PhaseSteady)
	}
	// At 50% progress after 30s, roughly 30s remain
	if stats.Remaining < 25*time.Second || stats.Remaining > 35*time.Second {
		t.Errorf("Remaining = %v, want ~30s", stats.Remaining)
	}
}
