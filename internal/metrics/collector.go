package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector accumulates outcomes while a run is in progress and produces
// approximate reports from them. Percentiles come from an HDR histogram, so
// partial reports stay cheap however many requests have completed. The final
// report of a run is always built with Aggregate.
type Collector struct {
	mu        sync.Mutex
	hist      *hdrhistogram.Histogram
	successes int
	failures  int
	minMs     float64
	maxMs     float64
	sumMs     float64
	errors    map[string]int
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:   h,
		errors: make(map[string]int),
	}
}

// Record adds one outcome.
func (c *Collector) Record(o Outcome) {
	ms := o.DurationMs()

	c.mu.Lock()
	defer c.mu.Unlock()

	// RecordValue only fails for values outside the trackable range, which
	// the clamp rules out. Exact min, max and mean are kept separately.
	us := o.Duration.Microseconds()
	if us < c.hist.LowestTrackableValue() {
		us = c.hist.LowestTrackableValue()
	}
	if us > c.hist.HighestTrackableValue() {
		us = c.hist.HighestTrackableValue()
	}
	_ = c.hist.RecordValue(us)

	total := c.successes + c.failures
	if total == 0 || ms < c.minMs {
		c.minMs = ms
	}
	if ms > c.maxMs {
		c.maxMs = ms
	}
	c.sumMs += ms

	if o.Failed() {
		c.failures++
		c.errors[o.Class()]++
	} else {
		c.successes++
	}
}

// Count returns the number of recorded outcomes.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.successes + c.failures
}

// Report summarizes what has been recorded so far.
func (c *Collector) Report(elapsed time.Duration) Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	report := Report{
		TotalRequests:   total,
		TotalDurationMs: round2(durationMs(elapsed)),
		ErrorDistribution: ErrorDistribution{
			SuccessCount: c.successes,
			ErrorCount:   c.failures,
		},
		Histogram: []Bucket{},
	}
	if len(c.errors) > 0 {
		report.Errors = make(map[string]int, len(c.errors))
		for k, v := range c.errors {
			report.Errors[k] = v
		}
	}
	if total == 0 {
		report.NoData = true
		return report
	}

	average := round2(c.sumMs / float64(total))
	report.FastestMs = round2(c.minMs)
	report.SlowestMs = round2(c.maxMs)
	report.AverageMs = average
	report.JitterMs = jitter(report.SlowestMs, report.FastestMs, average)
	report.RequestsPerSecond = requestsPerSecond(total, elapsed)

	for _, p := range Percentiles {
		us := c.hist.ValueAtQuantile(p)
		report.LatencyDistribution.set(p, round2(clamp(float64(us)/1000, c.minMs, c.maxMs)))
	}
	report.Histogram = c.histogram()
	return report
}

// histogram spreads the HDR bars over the same nearest-boundary bands that
// Aggregate uses. Each bar is attributed to its upper edge.
func (c *Collector) histogram() []Bucket {
	if c.maxMs == c.minMs {
		return []Bucket{{LatencyMs: round2(c.minMs), Count: c.successes + c.failures}}
	}
	boundaries := bucketBoundaries(c.minMs, c.maxMs)
	buckets := emptyBuckets(boundaries)
	for _, bar := range c.hist.Distribution() {
		if bar.Count == 0 {
			continue
		}
		ms := clamp(float64(bar.To)/1000, c.minMs, c.maxMs)
		buckets[nearestBucket(boundaries, ms)].Count += int(bar.Count)
	}
	return buckets
}

// ErrorBreakdown returns the failure classes recorded so far, most frequent first.
func (c *Collector) ErrorBreakdown() []ErrorCount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SortErrors(c.errors)
}

// ErrorCount pairs a failure class with its count.
type ErrorCount struct {
	Class string `json:"class" yaml:"class"`
	Count int    `json:"count" yaml:"count"`
}

// SortErrors orders a breakdown by count descending, then class.
func SortErrors(m map[string]int) []ErrorCount {
	out := make([]ErrorCount, 0, len(m))
	for k, v := range m {
		out = append(out, ErrorCount{Class: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Class < out[j].Class
	})
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
