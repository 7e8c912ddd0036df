package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/gqlfire/internal/metrics"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Report           metrics.Report
	Metadata         ReportMetadata
	Percentiles      []percentileRow
	Histogram        []histogramRow
	Errors           []metrics.ErrorCount
	History          []Snapshot
	HistoryJSON      string
	ThresholdSummary *ThresholdSummary
}

type percentileRow struct {
	Label string
	Value float64
}

type histogramRow struct {
	LatencyMs float64
	Count     int
	Width     float64 // percent of the widest bucket
}

// GenerateHTMLReport generates a standalone HTML report with embedded charts.
func GenerateHTMLReport(w io.Writer, doc Document, history []Snapshot) error {
	report := doc.Report

	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Report:           report,
		Errors:           metrics.SortErrors(report.Errors),
		History:          history,
		HistoryJSON:      string(historyJSON),
		ThresholdSummary: doc.Thresholds,
	}
	if doc.Metadata != nil {
		data.Metadata = *doc.Metadata
	}
	for _, p := range []int{10, 25, 50, 75, 90, 95, 99} {
		v, _ := report.LatencyDistribution.At(p)
		data.Percentiles = append(data.Percentiles, percentileRow{Label: fmt.Sprintf("P%d", p), Value: v})
	}
	maxCount := 0
	for _, b := range report.Histogram {
		if b.Count > maxCount {
			maxCount = b.Count
		}
	}
	for _, b := range report.Histogram {
		row := histogramRow{LatencyMs: b.LatencyMs, Count: b.Count}
		if maxCount > 0 {
			row.Width = float64(b.Count) / float64(maxCount) * 100
		}
		data.Histogram = append(data.Histogram, row)
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatPercent": func(part, total int) string {
			if total == 0 {
				return "0.0"
			}
			return fmt.Sprintf("%.1f", (float64(part)/float64(total))*100)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>gqlfire Load Test Report</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 {
            font-size: 2rem;
            margin-bottom: 10px;
        }
        header .meta {
            opacity: 0.9;
            font-size: 0.9rem;
        }
        .content {
            padding: 40px;
        }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #667eea;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value {
            font-size: 2rem;
            font-weight: bold;
            color: #2c3e50;
        }
        .card .subvalue {
            font-size: 0.85rem;
            color: #6c757d;
            margin-top: 5px;
        }
        .card.success {
            border-left-color: #10b981;
        }
        .card.error {
            border-left-color: #ef4444;
        }
        .card.warning {
            border-left-color: #f59e0b;
        }
        .section {
            margin-bottom: 40px;
        }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .chart-container {
            background: white;
            border-radius: 8px;
            padding: 20px;
            margin-bottom: 30px;
            border: 1px solid #e5e7eb;
        }
        .chart-container h3 {
            font-size: 1.1rem;
            margin-bottom: 15px;
            color: #4b5563;
        }
        .chart {
            width: 100%;
            height: 300px;
        }
        table {
            width: 100%;
            border-collapse: collapse;
            background: white;
        }
        th, td {
            text-align: left;
            padding: 12px;
            border-bottom: 1px solid #e5e7eb;
        }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }
        tr:hover {
            background: #f8f9fa;
        }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85rem;
            font-weight: 600;
        }
        .badge-success {
            background: #d1fae5;
            color: #065f46;
        }
        .badge-error {
            background: #fee2e2;
            color: #991b1b;
        }
        .latency-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(150px, 1fr));
            gap: 15px;
            margin-top: 20px;
        }
        .latency-item {
            background: #f8f9fa;
            padding: 15px;
            border-radius: 6px;
            text-align: center;
        }
        .latency-item .label {
            font-size: 0.85rem;
            color: #6c757d;
            margin-bottom: 5px;
        }
        .latency-item .value {
            font-size: 1.3rem;
            font-weight: bold;
            color: #2c3e50;
        }
        .bar {
            background: #667eea;
            height: 14px;
            border-radius: 3px;
        }
        .no-data {
            text-align: center;
            padding: 40px;
            color: #6c757d;
            font-style: italic;
        }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>gqlfire Load Test Report</h1>
            {{if .Metadata.Endpoint}}
            <div class="meta" style="margin-top: 5px;">Endpoint: <a href="{{.Metadata.Endpoint}}" style="color: white; text-decoration: underline;">{{.Metadata.Endpoint}}</a>{{if .Metadata.OperationName}} | Operation: {{.Metadata.OperationName}}{{end}}</div>
            {{end}}
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{formatFloat .Report.TotalDurationMs}} ms{{if .Report.RunID}} | Run: {{.Report.RunID}}{{end}}</div>
        </header>

        <div class="content">
            <!-- Summary Cards -->
            <div class="grid">
                <div class="card">
                    <h3>Total Requests</h3>
                    <div class="value">{{.Report.TotalRequests}}</div>
                </div>
                <div class="card success">
                    <h3>Successful</h3>
                    <div class="value">{{.Report.ErrorDistribution.SuccessCount}}</div>
                    <div class="subvalue">{{formatPercent .Report.ErrorDistribution.SuccessCount .Report.TotalRequests}}%</div>
                </div>
                <div class="card error">
                    <h3>Failed</h3>
                    <div class="value">{{.Report.ErrorDistribution.ErrorCount}}</div>
                    <div class="subvalue">{{formatPercent .Report.ErrorDistribution.ErrorCount .Report.TotalRequests}}%</div>
                </div>
                <div class="card">
                    <h3>Requests/sec</h3>
                    <div class="value">{{formatFloat .Report.RequestsPerSecond}}</div>
                </div>
            </div>

            <!-- Charts Section -->
            {{if .History}}
            <div class="section">
                <h2>Performance Over Time</h2>

                <div class="chart-container">
                    <h3>Requests Per Second</h3>
                    <div id="rps-chart" class="chart"></div>
                </div>

                <div class="chart-container">
                    <h3>Latency Percentiles (ms)</h3>
                    <div id="latency-chart" class="chart"></div>
                </div>
            </div>
            {{end}}

            {{if .Report.NoData}}
            <div class="section">
                <div class="no-data">No requests completed.</div>
            </div>
            {{else}}
            <!-- Latency Statistics -->
            <div class="section">
                <h2>Latency Statistics (ms)</h2>
                <div class="latency-grid">
                    <div class="latency-item">
                        <div class="label">Fastest</div>
                        <div class="value">{{formatFloat .Report.FastestMs}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">Slowest</div>
                        <div class="value">{{formatFloat .Report.SlowestMs}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">Average</div>
                        <div class="value">{{formatFloat .Report.AverageMs}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">Jitter</div>
                        <div class="value">{{formatFloat .Report.JitterMs}}</div>
                    </div>
                    {{range .Percentiles}}
                    <div class="latency-item">
                        <div class="label">{{.Label}}</div>
                        <div class="value">{{formatFloat .Value}}</div>
                    </div>
                    {{end}}
                </div>
            </div>

            <!-- Histogram -->
            <div class="section">
                <h2>Response Time Histogram</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Latency (ms)</th>
                            <th>Count</th>
                            <th style="width: 60%;"></th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Histogram}}
                        <tr>
                            <td>{{formatFloat .LatencyMs}}</td>
                            <td>{{.Count}}</td>
                            <td><div class="bar" style="width: {{formatFloat .Width}}%;"></div></td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            <!-- Thresholds -->
            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Threshold</th>
                            <th>Metric</th>
                            <th>Expected</th>
                            <th>Actual</th>
                            <th>Status</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Threshold}}</td>
                            <td>{{.Metric}} ({{.Aggregate}})</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">✓ PASS</span>
                                {{else}}
                                <span class="badge badge-error">✗ FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            <!-- Error Breakdown -->
            {{if .Errors}}
            <div class="section">
                <h2>Error Breakdown</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Class</th>
                            <th>Count</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Errors}}
                        <tr>
                            <td>{{.Class}}</td>
                            <td>{{.Count}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if .History}}
    <script>
        const history = JSON.parse({{.HistoryJSON}});

        if (history && history.length > 0) {
            const timestamps = history.map(d => d.elapsed_ms / 1000);

            new uPlot({
                title: "Requests Per Second",
                width: document.getElementById('rps-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Time (s)" },
                    {
                        label: "RPS",
                        stroke: "#667eea",
                        fill: "rgba(102, 126, 234, 0.1)",
                        width: 2
                    }
                ],
                axes: [
                    { label: "Time (seconds)" },
                    { label: "Requests/sec" }
                ]
            }, [timestamps, history.map(d => d.requests_per_second)], document.getElementById('rps-chart'));

            new uPlot({
                title: "Latency Percentiles",
                width: document.getElementById('latency-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Time (s)" },
                    { label: "P50", stroke: "#10b981", width: 2 },
                    { label: "P95", stroke: "#f59e0b", width: 2 },
                    { label: "P99", stroke: "#ef4444", width: 2 }
                ],
                axes: [
                    { label: "Time (seconds)" },
                    { label: "Latency (ms)" }
                ]
            }, [
                timestamps,
                history.map(d => d.p50_latency_ms),
                history.map(d => d.p95_latency_ms),
                history.map(d => d.p99_latency_ms)
            ], document.getElementById('latency-chart'));
        }
    </script>
    {{end}}
</body>
</html>
`
