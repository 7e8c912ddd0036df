package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/torosent/gqlfire/internal/metrics"
)

const (
	barWidth = 40

	reportFileMode os.FileMode = 0o644
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, doc Document) {
	report := doc.Report

	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if report.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", report.RunID)
	}
	if m := doc.Metadata; m != nil && m.Endpoint != "" {
		fmt.Fprintf(w, "Endpoint:          %s\n", m.Endpoint)
		if m.OperationName != "" {
			fmt.Fprintf(w, "Operation:         %s\n", m.OperationName)
		}
	}
	fmt.Fprintf(w, "Total Requests:    %d\n", report.TotalRequests)
	fmt.Fprintf(w, "Successful:        %d\n", report.ErrorDistribution.SuccessCount)
	fmt.Fprintf(w, "Failed:            %d\n", report.ErrorDistribution.ErrorCount)
	fmt.Fprintf(w, "Duration:          %.2f ms\n", report.TotalDurationMs)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", report.RequestsPerSecond)

	if report.NoData {
		fmt.Fprintln(w, "\nNo requests completed.")
		writeThresholds(w, doc.Thresholds)
		return
	}

	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Fastest:         %.2f ms\n", report.FastestMs)
	fmt.Fprintf(w, "  Slowest:         %.2f ms\n", report.SlowestMs)
	fmt.Fprintf(w, "  Average:         %.2f ms\n", report.AverageMs)
	fmt.Fprintf(w, "  Jitter:          %.2f ms\n", report.JitterMs)

	fmt.Fprintln(w, "\nLatency Distribution:")
	for _, p := range []int{10, 25, 50, 75, 90, 95, 99} {
		v, _ := report.LatencyDistribution.At(p)
		fmt.Fprintf(w, "  %2d%% in %.2f ms\n", p, v)
	}

	if len(report.Histogram) > 0 {
		fmt.Fprintln(w, "\nResponse Time Histogram:")
		writeHistogram(w, report.Histogram, "  ")
	}

	fmt.Fprintln(w, "\nError Distribution:")
	fmt.Fprintf(w, "  Success:         %d\n", report.ErrorDistribution.SuccessCount)
	fmt.Fprintf(w, "  Errors:          %d (%.2f%%)\n", report.ErrorDistribution.ErrorCount, report.ErrorDistribution.ErrorRate()*100)
	for _, e := range metrics.SortErrors(report.Errors) {
		fmt.Fprintf(w, "    [%d] %s\n", e.Count, e.Class)
	}

	writeThresholds(w, doc.Thresholds)
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// Write renders doc in the requested format. History only feeds the HTML charts.
func Write(w io.Writer, format Format, doc Document, history []Snapshot) error {
	switch format {
	case "", FormatText:
		PrintReport(w, doc)
		return nil
	case FormatJSON:
		return PrintJSONReport(w, doc)
	case FormatYAML:
		return PrintYAMLReport(w, doc)
	case FormatHTML:
		return GenerateHTMLReport(w, doc, history)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteFile renders doc into path with mode 0644. A sibling ".lock" file
// serializes concurrent writers while the report is written and is removed
// afterwards; the report is renamed into place once complete.
func WriteFile(path string, format Format, doc Document, history []Snapshot) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer func() {
		lock.Unlock()
		os.Remove(lock.Path())
	}()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, format, doc, history); err != nil {
		tmp.Close()
		return err
	}
	// CreateTemp opens with 0600.
	if err := tmp.Chmod(reportFileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("write report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	return nil
}

func writeHistogram(w io.Writer, buckets []metrics.Bucket, indent string) {
	maxCount := 0
	for _, b := range buckets {
		if b.Count > maxCount {
			maxCount = b.Count
		}
	}
	for _, b := range buckets {
		bar := 0
		if maxCount > 0 {
			bar = b.Count * barWidth / maxCount
		}
		fmt.Fprintf(w, "%s%10.2f ms [%d]\t|%s\n", indent, b.LatencyMs, b.Count, strings.Repeat("■", bar))
	}
}

func writeThresholds(w io.Writer, summary *ThresholdSummary) {
	if summary == nil {
		return
	}
	fmt.Fprintf(w, "\nThresholds (%d/%d passed):\n", summary.Passed, summary.Total)
	for _, r := range summary.Results {
		verdict := "PASS"
		if !r.Pass {
			verdict = "FAIL"
		}
		fmt.Fprintf(w, "  %s  %s (actual %.2f)\n", verdict, r.Threshold, r.Actual)
	}
}
