// Package output renders live progress and the final run summary on the
// console.
package output

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopload/shopload/internal/loadtest/engine"
	"github.com/shopload/shopload/internal/loadtest/metrics"
)

// ANSI escape codes for cursor control and colors
const (
	cursorUp  = "\033[%dA" // Move cursor up N lines
	clearLine = "\033[2K"  // Clear entire line

	colorReset   = "\033[0m"
	colorBold    = "\033[1m"
	colorDim     = "\033[2m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorRed     = "\033[31m"

	boxHorizontal = "━"
	boxVertical   = "│"

	progressFilled = "█"
	progressEmpty  = "░"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	// Progress tracking
	Progress  float64       // 0.0 to 1.0
	Elapsed   time.Duration // Time elapsed since run start
	Remaining time.Duration // Estimated time remaining

	// VU stats
	ActiveVUs int // Current active virtual users
	TargetVUs int // Target virtual users

	// Request stats
	CurrentRPS    float64 // Current requests per second
	TotalRequests int64   // Total requests completed
	Errors        int64   // Total errors
	ErrorRate     float64 // Error rate (0.0 to 1.0)

	// Latency stats
	LatencyP95 time.Duration // P95 latency
	LatencyAvg time.Duration // Average latency

	// Phase info
	CurrentPhase string // Current run phase name
}

// ConsoleOutput manages console output during a run.
type ConsoleOutput struct {
	runName        string
	host           string
	profiles       []string
	totalDuration  time.Duration
	updateInterval time.Duration
	writer         io.Writer
	isTTY          bool
	useColors      bool
	quiet          bool

	// State
	mu          sync.Mutex
	linesOutput int // Number of lines in the live display
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	RunName        string
	Host           string
	Profiles       []string
	TotalDuration  time.Duration
	UpdateInterval time.Duration
	Writer         io.Writer
	Quiet          bool
	ForceColors    bool
	ForceTTY       bool
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(config ConsoleOutputConfig) *ConsoleOutput {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.UpdateInterval == 0 {
		config.UpdateInterval = time.Second
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)
	useColors := config.ForceColors || (isTTY && supportsColors())

	return &ConsoleOutput{
		runName:        config.RunName,
		host:           config.Host,
		profiles:       config.Profiles,
		totalDuration:  config.TotalDuration,
		updateInterval: config.UpdateInterval,
		writer:         config.Writer,
		isTTY:          isTTY,
		useColors:      useColors,
		quiet:          config.Quiet,
	}
}

// isTerminal checks if the writer is a terminal.
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		if f == os.Stdout || f == os.Stderr {
			return checkIsTerminal(f)
		}
	}
	return false
}

// supportsColors checks if the terminal supports colors.
func supportsColors() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}

	if runtime.GOOS == "windows" {
		// Modern Windows terminals support ANSI colors
		return true
	}

	term := os.Getenv("TERM")
	if term == "" || term == "dumb" {
		return false
	}
	return true
}

// PrintHeader prints the run header.
func (c *ConsoleOutput) PrintHeader() {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 60)
	name := c.runName
	if name == "" {
		name = "shopload"
	}

	c.writeln(c.colorize(line, colorCyan))
	c.writeln(c.colorize(fmt.Sprintf("%s - Running", name), colorBold))
	c.writeln(fmt.Sprintf("Target:    %s", c.colorize(c.host, colorCyan)))
	c.writeln(fmt.Sprintf("Profiles:  %s", c.colorize(strings.Join(c.profiles, ", "), colorMagenta)))
	c.writeln(c.colorize(line, colorCyan))
	c.writeln("")
}

// Update updates the live display with new statistics.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLiveLines()

	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)

	for _, line := range lines {
		c.writeln(line)
	}
}

// clearLiveLines erases the previous live display. Caller holds the lock.
func (c *ConsoleOutput) clearLiveLines() {
	if c.linesOutput == 0 {
		return
	}

	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

// renderLiveStats renders the live statistics display.
func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	progressBar := c.renderProgressBar(stats.Progress, 40)
	progressPercent := fmt.Sprintf("%.0f%%", stats.Progress*100)
	timeInfo := fmt.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))

	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		c.colorize(progressBar, colorGreen),
		c.colorize(progressPercent, colorBold),
		c.colorize(timeInfo, colorDim)))
	lines = append(lines, fmt.Sprintf("Phase:    %s", c.colorize(stats.CurrentPhase, colorMagenta)))

	errColor := colorGreen
	if stats.ErrorRate > 0.01 {
		errColor = colorYellow
	}
	if stats.ErrorRate > 0.05 {
		errColor = colorRed
	}

	lines = append(lines, fmt.Sprintf("VUs: %s/%d | Reqs: %s | RPS: %s | Errors: %s (%s) | P95: %s | Avg: %s",
		c.colorize(fmt.Sprintf("%d", stats.ActiveVUs), colorCyan),
		stats.TargetVUs,
		c.colorize(formatNumber(stats.TotalRequests), colorCyan),
		c.colorize(fmt.Sprintf("%.1f", stats.CurrentRPS), colorGreen),
		c.colorize(fmt.Sprintf("%d", stats.Errors), errColor),
		c.colorize(fmt.Sprintf("%.1f%%", stats.ErrorRate*100), errColor),
		c.colorize(formatDurationShort(stats.LatencyP95), colorBlue),
		c.colorize(formatDurationShort(stats.LatencyAvg), colorBlue)))

	return lines
}

// renderProgressBar renders a progress bar.
func (c *ConsoleOutput) renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	empty := width - filled

	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, empty) + "]"
}

// PrintSummary prints the final run summary: overall stats, a per-request
// table, the failure report, and threshold results.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	if c.quiet {
		if result.Passed {
			c.writeln(c.colorize("PASSED", colorGreen))
		} else {
			c.writeln(c.colorize("FAILED", colorRed))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTTY {
		c.clearLiveLines()
	}

	line := strings.Repeat(boxHorizontal, 60)
	status := "Completed ✓"
	statusColor := colorGreen
	if !result.Passed {
		status = "Failed ✗"
		statusColor = colorRed
	}

	name := result.Name
	if name == "" {
		name = "shopload"
	}

	c.writeln("")
	c.writeln(c.colorize(line, colorCyan))
	c.writeln(fmt.Sprintf("%s - %s",
		c.colorize(name, colorBold),
		c.colorize(status, statusColor)))
	c.writeln(c.colorize(line, colorCyan))
	c.writeln("")

	c.writeln(fmt.Sprintf("Duration:      %s", c.colorize(formatDuration(result.Duration), colorCyan)))
	if result.Metrics != nil {
		c.writeln(fmt.Sprintf("Total Reqs:    %s", c.colorize(formatNumber(result.Metrics.TotalRequests), colorCyan)))
		c.writeln(fmt.Sprintf("RPS:           %s", c.colorize(fmt.Sprintf("%.1f", result.Metrics.RPS), colorCyan)))

		successRate := 1.0 - result.Metrics.ErrorRate
		successColor := colorGreen
		if successRate < 0.99 {
			successColor = colorYellow
		}
		if successRate < 0.95 {
			successColor = colorRed
		}
		c.writeln(fmt.Sprintf("Success Rate:  %s", c.colorize(fmt.Sprintf("%.1f%%", successRate*100), successColor)))
	}
	c.writeln("")

	if result.Metrics != nil {
		c.writeln(c.colorize("Latency Distribution:", colorBold))
		c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(result.Metrics.Latency.Min)))
		c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(result.Metrics.Latency.P50)))
		c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(result.Metrics.Latency.P90)))
		c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(result.Metrics.Latency.P95)))
		c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(result.Metrics.Latency.P99)))
		c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(result.Metrics.Latency.Max)))
		c.writeln("")
	}

	c.printRequestTable(result.RequestStats)
	c.printFailureReport(result.Failures)
	c.printThresholds(result.Thresholds)
}

// printRequestTable prints per-request statistics sorted by name.
func (c *ConsoleOutput) printRequestTable(stats map[string]metrics.RequestStats) {
	if len(stats) == 0 {
		return
	}

	names := make([]string, 0, len(stats))
	nameWidth := len("Name")
	for name := range stats {
		names = append(names, name)
		if len(name) > nameWidth {
			nameWidth = len(name)
		}
	}
	sort.Strings(names)

	c.writeln(c.colorize("Requests:", colorBold))
	c.writeln(fmt.Sprintf("  %-*s %10s %8s %10s %10s %10s",
		nameWidth, "Name", "Count", "Fails", "Avg", "P95", "Max"))

	for _, name := range names {
		rs := stats[name]

		failStr := fmt.Sprintf("%d", rs.Failures)
		if rs.Failures > 0 {
			failStr = c.colorize(failStr, colorRed)
			// Pad manually, colorize breaks %8s alignment
			if pad := 8 - len(fmt.Sprintf("%d", rs.Failures)); pad > 0 {
				failStr = strings.Repeat(" ", pad) + failStr
			}
		} else {
			failStr = fmt.Sprintf("%8s", failStr)
		}

		c.writeln(fmt.Sprintf("  %-*s %10s %s %10s %10s %10s",
			nameWidth, name,
			formatNumber(rs.Requests),
			failStr,
			formatDurationShort(rs.Latency.Mean),
			formatDurationShort(rs.Latency.P95),
			formatDurationShort(rs.Latency.Max)))
	}
	c.writeln("")
}

// printFailureReport prints failures grouped by request name and reason.
func (c *ConsoleOutput) printFailureReport(failures []metrics.FailureCount) {
	if len(failures) == 0 {
		return
	}

	c.writeln(c.colorize("Failures:", colorBold))
	for _, f := range failures {
		c.writeln(fmt.Sprintf("  %s %s: %s",
			c.colorize(fmt.Sprintf("%6d×", f.Count), colorRed),
			f.Name,
			f.Reason))
	}
	c.writeln("")
}

// printThresholds prints threshold evaluation results.
func (c *ConsoleOutput) printThresholds(thresholds []engine.ThresholdResult) {
	if len(thresholds) == 0 {
		return
	}

	c.writeln(c.colorize("Thresholds:", colorBold))
	for _, t := range thresholds {
		status := c.colorize("✓", colorGreen)
		if !t.Passed {
			status = c.colorize("✗", colorRed)
		}
		detail := fmt.Sprintf("actual: %s", t.Value)
		if t.Message != "" {
			detail = t.Message
		}
		c.writeln(fmt.Sprintf("  %s %s %s (%s)", status, t.Metric, t.Expression, detail))
	}
	c.writeln("")
}

// PrintNonInteractiveUpdate prints a one-line status update.
// Used when output is not a TTY (e.g., piped to a file or CI).
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] Progress: %.0f%% | VUs: %d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | P95: %s",
		formatDuration(stats.Elapsed),
		stats.Progress*100,
		stats.ActiveVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		formatDurationShort(stats.LatencyP95)))
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// UpdateInterval returns the configured live update interval.
func (c *ConsoleOutput) UpdateInterval() time.Duration {
	return c.updateInterval
}

// write writes to the output without a newline.
func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

// writeln writes to the output with a newline.
func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// colorize wraps text in color codes if colors are enabled.
func (c *ConsoleOutput) colorize(text, color string) string {
	if !c.useColors {
		return text
	}
	return color + text + colorReset
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a duration in a short format.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

// stripANSI removes ANSI escape codes from a string.
func stripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') {
				inEscape = false
			}
			continue
		}
		result.WriteByte(s[i])
	}

	return result.String()
}

// StatsFromMetrics creates LiveStats from a metrics snapshot.
func StatsFromMetrics(snapshot *metrics.Snapshot, progress float64, totalDuration time.Duration, targetVUs int) *LiveStats {
	if snapshot == nil {
		return &LiveStats{
			Progress:     progress,
			TargetVUs:    targetVUs,
			CurrentPhase: "initializing",
		}
	}

	elapsed := snapshot.Elapsed
	remaining := time.Duration(0)
	if progress > 0 && progress < 1 {
		remaining = time.Duration(float64(elapsed) * (1 - progress) / progress)
	} else if totalDuration > 0 {
		remaining = totalDuration - elapsed
		if remaining < 0 {
			remaining = 0
		}
	}

	return &LiveStats{
		Progress:      progress,
		Elapsed:       elapsed,
		Remaining:     remaining,
		ActiveVUs:     snapshot.ActiveVUs,
		TargetVUs:     targetVUs,
		CurrentRPS:    snapshot.RPS,
		TotalRequests: snapshot.TotalRequests,
		Errors:        snapshot.FailedRequests,
		ErrorRate:     snapshot.ErrorRate,
		LatencyP95:    snapshot.Latency.P95,
		LatencyAvg:    snapshot.Latency.Mean,
		CurrentPhase:  string(snapshot.CurrentPhase),
	}
}
