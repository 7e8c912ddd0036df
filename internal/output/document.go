package output

import (
	"github.com/torosent/gqlfire/internal/metrics"
	"github.com/torosent/gqlfire/internal/threshold"
)

// Format selects how a report is rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHTML Format = "html"
)

// ReportMetadata describes the run that produced a report.
type ReportMetadata struct {
	Endpoint         string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	OperationName    string `json:"operation_name,omitempty" yaml:"operation_name,omitempty"`
	ConcurrencyLimit int    `json:"concurrency_limit,omitempty" yaml:"concurrency_limit,omitempty"`
	RateLimit        int    `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// Document is the structured form written by the JSON and YAML renderers.
type Document struct {
	metrics.Report `yaml:",inline"`
	Metadata       *ReportMetadata   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Thresholds     *ThresholdSummary `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// ThresholdSummary counts threshold verdicts.
type ThresholdSummary struct {
	Total   int                   `json:"total" yaml:"total"`
	Passed  int                   `json:"passed" yaml:"passed"`
	Failed  int                   `json:"failed" yaml:"failed"`
	Results []ThresholdResultJSON `json:"results" yaml:"results"`
}

// ThresholdResultJSON is one threshold verdict in serializable form.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold" yaml:"threshold"`
	Metric    string  `json:"metric" yaml:"metric"`
	Aggregate string  `json:"aggregate" yaml:"aggregate"`
	Operator  string  `json:"operator" yaml:"operator"`
	Expected  float64 `json:"expected" yaml:"expected"`
	Actual    float64 `json:"actual" yaml:"actual"`
	Pass      bool    `json:"pass" yaml:"pass"`
}

// NewThresholdSummary returns nil when no thresholds were evaluated.
func NewThresholdSummary(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	summary := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		summary.Results[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Pass:      tr.Pass,
		}
		if tr.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// NewDocument bundles a report with its threshold verdicts.
func NewDocument(report metrics.Report, results []threshold.Result, meta *ReportMetadata) Document {
	return Document{
		Report:     report,
		Metadata:   meta,
		Thresholds: NewThresholdSummary(results),
	}
}
