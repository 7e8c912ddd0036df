// Package metrics turns request outcomes into run reports.
//
// Every GraphQL request produces one [Outcome]: its duration, the HTTP status
// (zero when no response arrived), any GraphQL error messages and the
// transport error, if there was one. An outcome counts as an error when the
// transport failed, the status is outside 200-299, or the response carried a
// non-empty "errors" array.
//
// # Final reports
//
// [Aggregate] computes the exact [Report] for a finished run:
//
//	report := metrics.Aggregate(result.Outcomes, result.Duration)
//
// It is a pure function of the multiset of outcomes and the total duration.
// Percentiles are read from the sorted samples at position p/100*n, with
// linear interpolation for fractional positions. The histogram has
// [HistogramBuckets]+1 boundaries spread evenly from fastest to slowest, with
// the band width rounded to whole milliseconds; each sample goes to its
// nearest boundary and a sample exactly between two goes to the slower one.
// Average, jitter, requests per second and all latencies are rounded to two
// decimals. A run with no outcomes yields a report with NoData set and all
// numeric fields zero.
//
// # Live reports
//
// [Collector] is safe for concurrent use and produces approximate reports
// while a run is still going, using an HDR histogram for percentiles:
//
//	collector := metrics.NewCollector()
//	collector.Record(outcome)
//	partial := collector.Report(time.Since(start))
//
// # Prometheus
//
// [PromRecorder] exposes request counters, a latency histogram and an
// in-flight gauge for scraping during long runs.
//
// # Error classes
//
// Failed outcomes are grouped by [Outcome.Class]: "transport: <cause>",
// "http: <status>" or "graphql: <first message>". Transport causes use
// [FriendlyErrorName] to turn Go error types into readable labels.
package metrics
