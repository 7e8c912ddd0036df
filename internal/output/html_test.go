package output_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/torosent/gqlfire/internal/metrics"
	"github.com/torosent/gqlfire/internal/output"
	"github.com/torosent/gqlfire/internal/threshold"
)

func htmlReport() metrics.Report {
	outcomes := make([]metrics.Outcome, 0, 100)
	for i := 0; i < 95; i++ {
		outcomes = append(outcomes, metrics.Outcome{Duration: time.Duration(10+i) * time.Millisecond, StatusCode: 200})
	}
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, metrics.Outcome{Duration: 50 * time.Millisecond, StatusCode: 200, GraphQLErrors: []string{"user not found"}})
	}
	report := metrics.Aggregate(outcomes, 2*time.Second)
	report.RunID = "01HZXHTMLRUN"
	return report
}

func TestGenerateHTMLReport(t *testing.T) {
	history := []output.Snapshot{
		{ElapsedMs: 1000, TotalRequests: 50, Errors: 2, RequestsPerSecond: 50, P50Ms: 45, P95Ms: 85, P99Ms: 90},
		{ElapsedMs: 2000, TotalRequests: 100, Errors: 5, RequestsPerSecond: 50, P50Ms: 45, P95Ms: 90, P99Ms: 95},
	}

	thresholdResults := []threshold.Result{
		{
			Threshold: threshold.Threshold{
				Raw:       "latency:p95 < 100",
				Metric:    "latency",
				Aggregate: "p95",
				Operator:  "<",
				Value:     100,
			},
			Actual: 90.0,
			Pass:   true,
		},
		{
			Threshold: threshold.Threshold{
				Raw:       "errors:rate < 0.01",
				Metric:    "errors",
				Aggregate: "rate",
				Operator:  "<",
				Value:     0.01,
			},
			Actual: 0.05,
			Pass:   false,
		},
	}

	doc := output.NewDocument(htmlReport(), thresholdResults, &output.ReportMetadata{
		Endpoint:      "http://localhost:4000/graphql",
		OperationName: "GetUser",
	})

	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, doc, history); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}

	html := buf.String()

	requiredElements := []string{
		"<!DOCTYPE html>",
		"<html",
		"<head>",
		"<body>",
		"gqlfire Load Test Report",
		"http://localhost:4000/graphql",
		"GetUser",
		"01HZXHTMLRUN",
		"Total Requests",
		"Successful",
		"Failed",
		"Requests/sec",
		"Latency Statistics",
		"P99",
		"Response Time Histogram",
	}
	for _, elem := range requiredElements {
		if !strings.Contains(html, elem) {
			t.Errorf("HTML missing required element: %s", elem)
		}
	}

	// Verify chart scripts are present
	if !strings.Contains(html, "uPlot") {
		t.Errorf("HTML missing uPlot chart library")
	}
	if !strings.Contains(html, "rps-chart") {
		t.Errorf("HTML missing RPS chart container")
	}
	if !strings.Contains(html, "latency-chart") {
		t.Errorf("HTML missing latency chart container")
	}

	// Verify thresholds section
	if !strings.Contains(html, "Thresholds (1/2 Passed)") {
		t.Errorf("HTML missing thresholds section")
	}
	if !strings.Contains(html, "latency:p95 &lt; 100") {
		t.Errorf("HTML missing threshold definition")
	}

	// Verify error breakdown
	if !strings.Contains(html, "Error Breakdown") {
		t.Errorf("HTML missing error breakdown section")
	}
	if !strings.Contains(html, "graphql: user not found") {
		t.Errorf("HTML missing graphql error class")
	}
}

func TestGenerateHTMLReport_NoHistory(t *testing.T) {
	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, output.NewDocument(htmlReport(), nil, nil), nil); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}

	html := buf.String()

	if !strings.Contains(html, "gqlfire Load Test Report") {
		t.Errorf("HTML missing title")
	}
	if strings.Contains(html, "Performance Over Time") {
		t.Errorf("HTML should not have charts section without history")
	}
	if strings.Contains(html, "Thresholds (") {
		t.Errorf("HTML should not have thresholds section without thresholds")
	}
}

func TestGenerateHTMLReport_NoData(t *testing.T) {
	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, output.NewDocument(metrics.Aggregate(nil, 0), nil, nil), nil); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}

	html := buf.String()
	if !strings.Contains(html, "No requests completed.") {
		t.Errorf("HTML missing no data notice")
	}
	if strings.Contains(html, "Latency Statistics") {
		t.Errorf("HTML should not show latency statistics without data")
	}
}
