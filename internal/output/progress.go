package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/torosent/gqlfire/internal/metrics"
)

// ProgressReporter prints one status line per partial report.
type ProgressReporter struct {
	mu      sync.Mutex
	writer  io.Writer
	updates int
}

// NewProgressReporter creates a progress reporter writing to writer.
func NewProgressReporter(writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{writer: writer}
}

// Update redraws the progress line from a partial report.
func (p *ProgressReporter) Update(report metrics.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates++
	fmt.Fprint(p.writer, progressLine(report))
}

// Finish ends the progress line so the final report starts on a fresh line.
func (p *ProgressReporter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updates > 0 {
		fmt.Fprintln(p.writer)
	}
}

func progressLine(report metrics.Report) string {
	line := fmt.Sprintf("\rRequests: %d | Successes: %d | Failures: %d | RPS: %.1f",
		report.TotalRequests,
		report.ErrorDistribution.SuccessCount,
		report.ErrorDistribution.ErrorCount,
		report.RequestsPerSecond)
	if !report.NoData {
		line += fmt.Sprintf(" | P95: %.1fms", report.LatencyDistribution.P95)
	}
	return line
}

// Snapshot is one point of run history, taken from a partial report.
type Snapshot struct {
	ElapsedMs         float64 `json:"elapsed_ms"`
	TotalRequests     int     `json:"total_requests"`
	Errors            int     `json:"errors"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	P50Ms             float64 `json:"p50_latency_ms"`
	P95Ms             float64 `json:"p95_latency_ms"`
	P99Ms             float64 `json:"p99_latency_ms"`
}

// History accumulates snapshots for the HTML report charts.
type History struct {
	mu     sync.Mutex
	points []Snapshot
}

// Add records a snapshot of report.
func (h *History) Add(report metrics.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.points = append(h.points, Snapshot{
		ElapsedMs:         report.TotalDurationMs,
		TotalRequests:     report.TotalRequests,
		Errors:            report.ErrorDistribution.ErrorCount,
		RequestsPerSecond: report.RequestsPerSecond,
		P50Ms:             report.LatencyDistribution.P50,
		P95Ms:             report.LatencyDistribution.P95,
		P99Ms:             report.LatencyDistribution.P99,
	})
}

// Snapshots returns a copy of the recorded history.
func (h *History) Snapshots() []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Snapshot(nil), h.points...)
}
