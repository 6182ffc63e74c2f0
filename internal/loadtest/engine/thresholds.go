package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopload/shopload/internal/loadtest/metrics"
)

// ThresholdResult contains the result of one threshold evaluation.
type ThresholdResult struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

// thresholdExprRe matches expressions like "p95 < 500ms" or "rate < 0.01".
var thresholdExprRe = regexp.MustCompile(`^(\w+)\s*([<>=!]+)\s*(.+)$`)

// evaluateThresholds checks all configured thresholds against the final
// snapshot.
func (e *Engine) evaluateThresholds(snapshot *metrics.Snapshot) []ThresholdResult {
	thresholds := e.config.Thresholds
	if thresholds == nil {
		return nil
	}

	var results []ThresholdResult

	for _, expr := range thresholds.HTTPReqDuration {
		results = append(results, evaluateDurationThreshold(expr, snapshot))
	}
	for _, expr := range thresholds.HTTPReqFailed {
		results = append(results, evaluateFailedThreshold(expr, snapshot))
	}
	for _, expr := range thresholds.HTTPReqs {
		results = append(results, evaluateRequestsThreshold(expr, snapshot))
	}

	return results
}

// evaluateDurationThreshold evaluates an http_req_duration expression,
// e.g. "p95 < 500ms" or "avg < 200ms".
func evaluateDurationThreshold(expr string, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{
		Metric:     "http_req_duration",
		Expression: expr,
	}

	stat, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	threshold, err := time.ParseDuration(valueStr)
	if err != nil {
		result.Message = fmt.Sprintf("invalid duration %q: %v", valueStr, err)
		return result
	}

	var actual time.Duration
	switch stat {
	case "min":
		actual = snapshot.Latency.Min
	case "max":
		actual = snapshot.Latency.Max
	case "avg", "mean":
		actual = snapshot.Latency.Mean
	case "med", "p50":
		actual = snapshot.Latency.P50
	case "p90":
		actual = snapshot.Latency.P90
	case "p95":
		actual = snapshot.Latency.P95
	case "p99":
		actual = snapshot.Latency.P99
	default:
		result.Message = fmt.Sprintf("unknown duration statistic %q", stat)
		return result
	}

	result.Value = actual.String()
	result.Passed, err = compareValues(float64(actual), op, float64(threshold))
	if err != nil {
		result.Message = err.Error()
	}
	return result
}

// evaluateFailedThreshold evaluates an http_req_failed expression,
// e.g. "rate < 0.01".
func evaluateFailedThreshold(expr string, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{
		Metric:     "http_req_failed",
		Expression: expr,
	}

	stat, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	if stat != "rate" {
		result.Message = fmt.Sprintf("http_req_failed supports only \"rate\", got %q", stat)
		return result
	}

	threshold, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("invalid number %q: %v", valueStr, err)
		return result
	}

	result.Value = fmt.Sprintf("%.4f", snapshot.ErrorRate)
	result.Passed, err = compareValues(snapshot.ErrorRate, op, threshold)
	if err != nil {
		result.Message = err.Error()
	}
	return result
}

// evaluateRequestsThreshold evaluates an http_reqs expression,
// e.g. "count > 1000" or "rate > 100".
func evaluateRequestsThreshold(expr string, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{
		Metric:     "http_reqs",
		Expression: expr,
	}

	stat, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	threshold, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("invalid number %q: %v", valueStr, err)
		return result
	}

	var actual float64
	switch stat {
	case "count":
		actual = float64(snapshot.TotalRequests)
		result.Value = fmt.Sprintf("%d", snapshot.TotalRequests)
	case "rate":
		actual = snapshot.RPS
		if snapshot.SteadyStateRPS > 0 {
			actual = snapshot.SteadyStateRPS
		}
		result.Value = fmt.Sprintf("%.2f", actual)
	default:
		result.Message = fmt.Sprintf("http_reqs supports \"count\" or \"rate\", got %q", stat)
		return result
	}

	result.Passed, err = compareValues(actual, op, threshold)
	if err != nil {
		result.Message = err.Error()
	}
	return result
}

// parseThresholdExpression splits "p95 < 500ms" into its parts.
func parseThresholdExpression(expr string) (stat, op, value string, err error) {
	matches := thresholdExprRe.FindStringSubmatch(expr)
	if matches == nil {
		return "", "", "", fmt.Errorf("invalid threshold expression %q", expr)
	}
	return matches[1], matches[2], matches[3], nil
}

// compareValues applies a comparison operator to two values.
func compareValues(actual float64, op string, threshold float64) (bool, error) {
	switch op {
	case "<":
		return actual < threshold, nil
	case "<=":
		return actual <= threshold, nil
	case ">":
		return actual > threshold, nil
	case ">=":
		return actual >= threshold, nil
	case "==", "=":
		return actual == threshold, nil
	case "!=", "<>":
		return actual != threshold, nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}
