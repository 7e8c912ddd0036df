package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

// HistogramBuckets is the number of latency bands between fastest and slowest.
const HistogramBuckets = 10

// Percentiles lists the latency percentiles carried by every Report.
var Percentiles = []float64{10, 25, 50, 75, 90, 95, 99}

// Report is the summary of a run. All latency values are milliseconds.
type Report struct {
	RunID               string              `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	TotalRequests       int                 `json:"total_requests" yaml:"total_requests"`
	TotalDurationMs     float64             `json:"total_duration_ms" yaml:"total_duration_ms"`
	FastestMs           float64             `json:"fastest_ms" yaml:"fastest_ms"`
	SlowestMs           float64             `json:"slowest_ms" yaml:"slowest_ms"`
	AverageMs           float64             `json:"average_ms" yaml:"average_ms"`
	JitterMs            float64             `json:"jitter_ms" yaml:"jitter_ms"`
	RequestsPerSecond   float64             `json:"requests_per_second" yaml:"requests_per_second"`
	LatencyDistribution LatencyDistribution `json:"latency_distribution" yaml:"latency_distribution"`
	Histogram           []Bucket            `json:"histogram" yaml:"histogram"`
	ErrorDistribution   ErrorDistribution   `json:"error_distribution" yaml:"error_distribution"`
	Errors              map[string]int      `json:"errors,omitempty" yaml:"errors,omitempty"`
	// NoData is set when the report was built from zero outcomes. Latency
	// fields are then zero rather than undefined.
	NoData bool `json:"no_data,omitempty" yaml:"no_data,omitempty"`
}

// LatencyDistribution holds the latency percentiles in milliseconds.
type LatencyDistribution struct {
	P10 float64 `json:"p10" yaml:"p10"`
	P25 float64 `json:"p25" yaml:"p25"`
	P50 float64 `json:"p50" yaml:"p50"`
	P75 float64 `json:"p75" yaml:"p75"`
	P90 float64 `json:"p90" yaml:"p90"`
	P95 float64 `json:"p95" yaml:"p95"`
	P99 float64 `json:"p99" yaml:"p99"`
}

// At returns the stored value for one of the standard percentiles.
func (l LatencyDistribution) At(p int) (float64, bool) {
	switch p {
	case 10:
		return l.P10, true
	case 25:
		return l.P25, true
	case 50:
		return l.P50, true
	case 75:
		return l.P75, true
	case 90:
		return l.P90, true
	case 95:
		return l.P95, true
	case 99:
		return l.P99, true
	}
	return 0, false
}

func (l *LatencyDistribution) set(p float64, v float64) {
	switch p {
	case 10:
		l.P10 = v
	case 25:
		l.P25 = v
	case 50:
		l.P50 = v
	case 75:
		l.P75 = v
	case 90:
		l.P90 = v
	case 95:
		l.P95 = v
	case 99:
		l.P99 = v
	}
}

// Bucket is one histogram band: the count of samples nearest to LatencyMs.
type Bucket struct {
	LatencyMs float64 `json:"latency_ms" yaml:"latency_ms"`
	Count     int     `json:"count" yaml:"count"`
}

// ErrorDistribution splits outcomes into successes and errors.
type ErrorDistribution struct {
	SuccessCount int `json:"success_count" yaml:"success_count"`
	ErrorCount   int `json:"error_count" yaml:"error_count"`
}

// ErrorRate returns errors / total, or 0 for an empty distribution.
func (e ErrorDistribution) ErrorRate() float64 {
	total := e.SuccessCount + e.ErrorCount
	if total == 0 {
		return 0
	}
	return float64(e.ErrorCount) / float64(total)
}

// NewRunID returns a sortable identifier for a run.
func NewRunID() string {
	return ulid.Make().String()
}

// Aggregate builds the final report from every outcome of a run. It is
// deterministic: the same multiset of outcomes and duration always yields the
// same report, regardless of outcome order.
func Aggregate(outcomes []Outcome, totalDuration time.Duration) Report {
	report := Report{
		TotalRequests:   len(outcomes),
		TotalDurationMs: round2(durationMs(totalDuration)),
		Histogram:       []Bucket{},
	}

	for _, o := range outcomes {
		if !o.Failed() {
			report.ErrorDistribution.SuccessCount++
			continue
		}
		report.ErrorDistribution.ErrorCount++
		if report.Errors == nil {
			report.Errors = make(map[string]int)
		}
		report.Errors[o.Class()]++
	}

	if len(outcomes) == 0 {
		report.NoData = true
		return report
	}

	samples := make([]float64, len(outcomes))
	for i, o := range outcomes {
		samples[i] = o.DurationMs()
	}
	sort.Float64s(samples)

	// Summed in sorted order so the average does not depend on arrival order.
	var sum float64
	for _, s := range samples {
		sum += s
	}

	fastest := samples[0]
	slowest := samples[len(samples)-1]
	average := round2(sum / float64(len(samples)))

	report.FastestMs = round2(fastest)
	report.SlowestMs = round2(slowest)
	report.AverageMs = average
	report.JitterMs = jitter(report.SlowestMs, report.FastestMs, average)
	report.RequestsPerSecond = requestsPerSecond(len(outcomes), totalDuration)

	for _, p := range Percentiles {
		report.LatencyDistribution.set(p, round2(percentile(samples, p)))
	}
	report.Histogram = histogram(samples)
	return report
}

// percentile reads p (0-100) from ascending samples. A fractional position
// interpolates linearly between its two neighbours.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	pos := p / 100 * float64(n)
	floor := math.Floor(pos)
	i := int(floor)
	if i < 0 {
		i = 0
	}
	if i >= n-1 {
		return sorted[n-1]
	}
	frac := pos - floor
	if frac == 0 {
		return sorted[i]
	}
	return sorted[i] + (sorted[i+1]-sorted[i])*frac
}

// histogram assigns ascending samples to the nearest of HistogramBuckets+1
// boundaries spread evenly from fastest to slowest.
func histogram(sorted []float64) []Bucket {
	if len(sorted) == 0 {
		return []Bucket{}
	}
	boundaries := bucketBoundaries(sorted[0], sorted[len(sorted)-1])
	buckets := emptyBuckets(boundaries)
	for _, s := range sorted {
		buckets[nearestBucket(boundaries, s)].Count++
	}
	return buckets
}

// bucketBoundaries returns the ascending, de-duplicated band boundaries
// fastest + width*i for i in [0, HistogramBuckets].
func bucketBoundaries(fastest, slowest float64) []float64 {
	spread := slowest - fastest
	if spread <= 0 {
		return []float64{round2(fastest)}
	}

	width := math.Round(spread / HistogramBuckets)
	if width == 0 {
		// Spread below half a millisecond per band; keep the bands fractional.
		width = spread / HistogramBuckets
	}

	boundaries := make([]float64, 0, HistogramBuckets+1)
	for i := 0; i <= HistogramBuckets; i++ {
		b := round2(fastest + width*float64(i))
		if n := len(boundaries); n > 0 && boundaries[n-1] == b {
			continue
		}
		boundaries = append(boundaries, b)
	}
	return boundaries
}

func emptyBuckets(boundaries []float64) []Bucket {
	buckets := make([]Bucket, len(boundaries))
	for i, b := range boundaries {
		buckets[i].LatencyMs = b
	}
	return buckets
}

// nearestBucket returns the index of the boundary closest to v. An exact match
// wins; an equal distance goes to the slower boundary.
func nearestBucket(boundaries []float64, v float64) int {
	idx := sort.SearchFloat64s(boundaries, v)
	if idx < len(boundaries) && boundaries[idx] == v {
		return idx
	}
	if idx == 0 {
		return 0
	}
	if idx == len(boundaries) {
		return len(boundaries) - 1
	}
	if v-boundaries[idx-1] < boundaries[idx]-v {
		return idx - 1
	}
	return idx
}

func jitter(slowest, fastest, average float64) float64 {
	top := slowest - average
	bottom := average - fastest
	return round2((top + bottom) / 2)
}

func requestsPerSecond(count int, elapsed time.Duration) float64 {
	if elapsed <= 0 || count == 0 {
		return 0
	}
	return round2(float64(count) / elapsed.Seconds())
}

const epsilon = 2.220446049250313e-16

// round2 rounds half away from zero at two decimals, nudged by epsilon so that
// values like 1.005 round up.
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round((v+epsilon)*100) / 100
}
