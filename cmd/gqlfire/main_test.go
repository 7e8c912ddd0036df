package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/torosent/gqlfire/internal/config"
	"github.com/torosent/gqlfire/internal/metrics"
	"github.com/torosent/gqlfire/internal/runner"
)

func graphqlServer(t *testing.T, body string) (*httptest.Server, *int64) {
	t.Helper()
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func decodeReport(t *testing.T, out string) metrics.Report {
	t.Helper()
	var report metrics.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report), "stdout: %s", out)
	return report
}

func TestRunHelp(t *testing.T) {
	_, _, err := runCLI(t, "--help")
	assert.NoError(t, err)
}

func TestRunInvalidConfigSendsNoTraffic(t *testing.T) {
	srv, hits := graphqlServer(t, `{"data":{}}`)

	_, _, err := runCLI(t, "--endpoint", srv.URL, "--query", "{ me { id } }", "-n", "5", "-r", "10")
	require.Error(t, err)

	var verr *config.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %T: %v", err, err)
	assert.Contains(t, err.Error(), "must not be smaller than the rate limit")
	assert.Zero(t, atomic.LoadInt64(hits))
}

func TestRunRateBelowConcurrencySendsNoTraffic(t *testing.T) {
	srv, hits := graphqlServer(t, `{"data":{}}`)

	_, _, err := runCLI(t, "--endpoint", srv.URL, "--query", "{ me { id } }", "-n", "20", "-r", "2")
	require.Error(t, err)

	var verr *config.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %T: %v", err, err)
	assert.Contains(t, err.Error(), "rate limit (2) must not be smaller than the concurrency limit (10)")
	assert.Zero(t, atomic.LoadInt64(hits))
}

func TestRunJSONReport(t *testing.T) {
	srv, hits := graphqlServer(t, `{"data":{"me":{"id":"1"}}}`)

	out, _, err := runCLI(t, "--endpoint", srv.URL, "--query", "{ me { id } }", "-n", "20", "-c", "4", "-o", "json")
	require.NoError(t, err)

	report := decodeReport(t, out)
	assert.Equal(t, 20, report.TotalRequests)
	assert.Equal(t, 20, report.ErrorDistribution.SuccessCount)
	assert.Zero(t, report.ErrorDistribution.ErrorCount)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, int64(20), atomic.LoadInt64(hits))

	total := 0
	for _, b := range report.Histogram {
		total += b.Count
	}
	assert.Equal(t, 20, total)
}

func TestRunGraphQLErrorsDoNotFailRun(t *testing.T) {
	srv, _ := graphqlServer(t, `{"errors":[{"message":"bad"}]}`)

	out, _, err := runCLI(t, "--endpoint", srv.URL, "--query", "{ me { id } }", "-n", "10", "-c", "2", "-o", "json")
	require.NoError(t, err)

	report := decodeReport(t, out)
	assert.Equal(t, 10, report.ErrorDistribution.ErrorCount)
	assert.Equal(t, 10, report.Errors["graphql: bad"])
}

func TestRunStaticAuthToken(t *testing.T) {
	var unauthorized int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer load-test-token" {
			atomic.AddInt64(&unauthorized, 1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{}}`)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("GQLFIRE_AUTH_STATIC_TOKEN", "load-test-token")
	out, _, err := runCLI(t, "--endpoint", srv.URL, "--query", "{ me { id } }", "-n", "6", "-c", "2", "-o", "json",
		"--auth-type", "static")
	require.NoError(t, err)

	report := decodeReport(t, out)
	assert.Equal(t, 6, report.ErrorDistribution.SuccessCount)
	assert.Zero(t, atomic.LoadInt64(&unauthorized))
}

func TestRunThresholdFailure(t *testing.T) {
	srv, _ := graphqlServer(t, `{"errors":[{"message":"bad"}]}`)

	out, _, err := runCLI(t, "--endpoint", srv.URL, "--query", "{ me { id } }", "-n", "4", "-c", "2",
		"--threshold", "errors:rate < 0.01", "--threshold", "requests:count >= 4")
	require.ErrorIs(t, err, errThresholdsFailed)
	assert.Contains(t, out, "Thresholds (1/2 passed):")
	assert.Contains(t, out, "FAIL  errors:rate < 0.01")
}

func TestRunThresholdPass(t *testing.T) {
	srv, _ := graphqlServer(t, `{"data":{}}`)

	_, _, err := runCLI(t, "--endpoint", srv.URL, "--query", "{ me { id } }", "-n", "4", "-c", "2",
		"--threshold", "errors:count == 0")
	assert.NoError(t, err)
}

func TestRunOutputFileYAML(t *testing.T) {
	srv, _ := graphqlServer(t, `{"data":{}}`)
	path := filepath.Join(t.TempDir(), "report.yaml")

	out, stderr, err := runCLI(t, "--endpoint", srv.URL, "--query", "{ me { id } }", "-n", "6", "-c", "3",
		"-o", "yaml", "--output-file", path)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "report written")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, 6, decoded["total_requests"])
	meta, ok := decoded["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, srv.URL, meta["endpoint"])
}

func TestRunPhasesFromConfigFile(t *testing.T) {
	srv, hits := graphqlServer(t, `{"data":{}}`)
	path := filepath.Join(t.TempDir(), "gqlfire.yaml")
	content := fmt.Sprintf(`endpoint: %s
query: "query Me { me { id } }"
operation_name: Me
concurrency_limit: 4
output: json
phases:
  - arrival_rate: 5
    duration: 1
`, srv.URL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	out, _, err := runCLI(t, "--config", path)
	require.NoError(t, err)

	report := decodeReport(t, out)
	// Burst of 5 plus 5/s for one second.
	assert.GreaterOrEqual(t, report.TotalRequests, 5)
	assert.LessOrEqual(t, report.TotalRequests, 11)
	assert.Equal(t, int64(report.TotalRequests), atomic.LoadInt64(hits))
}

func TestRunProgressAndHTML(t *testing.T) {
	srv, _ := graphqlServer(t, `{"data":{}}`)

	out, stderr, err := runCLI(t, "--endpoint", srv.URL, "--query", "{ me { id } }", "-n", "10", "-c", "2",
		"-o", "html", "--progress-interval", "10ms")
	require.NoError(t, err)
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, stderr, "Requests: 10")
}

func TestRunServesMetrics(t *testing.T) {
	srv, _ := graphqlServer(t, `{"data":{}}`)

	_, stderr, err := runCLI(t, "--endpoint", srv.URL, "--query", "{ me { id } }", "-n", "3", "-c", "1",
		"--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, stderr, "serving metrics")
}

func TestServeMetrics(t *testing.T) {
	recorder, err := metrics.NewPromRecorder(prometheus.NewRegistry())
	require.NoError(t, err)
	recorder.Start()
	recorder.Observe(metrics.Outcome{Duration: 5 * time.Millisecond, StatusCode: 200})

	srv, addr, err := serveMetrics("127.0.0.1:0", recorder.Handler())
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "gqlfire_requests_total")

	notFound, err := http.Get("http://" + addr + "/other")
	require.NoError(t, err)
	notFound.Body.Close()
	assert.Equal(t, http.StatusNotFound, notFound.StatusCode)
}

func TestServeMetricsBadAddress(t *testing.T) {
	_, _, err := serveMetrics("256.0.0.1:bad", http.NotFoundHandler())
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	quiet := newLogger(false, &buf)
	assert.False(t, quiet.Core().Enabled(zapcore.DebugLevel))
	quiet.Info("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "expected JSON entry, got %q", buf.String())

	verbose := newLogger(true, io.Discard)
	assert.True(t, verbose.Core().Enabled(zapcore.DebugLevel))
}

func TestToRunnerArrivalModel(t *testing.T) {
	tests := []struct {
		input config.ArrivalModel
		want  runner.ArrivalModel
	}{
		{config.ArrivalModelUniform, runner.ArrivalModelUniform},
		{config.ArrivalModelPoisson, runner.ArrivalModelPoisson},
		{"unknown", runner.ArrivalModelUniform}, // Default fallback
	}

	for _, tt := range tests {
		got := toRunnerArrivalModel(tt.input)
		if got != tt.want {
			t.Errorf("toRunnerArrivalModel(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestToRunnerPhases(t *testing.T) {
	if got := toRunnerPhases(nil); got != nil {
		t.Errorf("toRunnerPhases(nil) = %v, want nil", got)
	}

	got := toRunnerPhases([]config.Phase{
		{ArrivalRate: 10, Duration: 30, Pause: 5},
		{ArrivalRate: 50, Duration: 60},
	})
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].ArrivalRate != 10 || got[0].Duration != 30*time.Second || got[0].Pause != 5*time.Second {
		t.Errorf("phase 0 = %+v", got[0])
	}
	if got[1].Pause != 0 || got[1].Duration != time.Minute {
		t.Errorf("phase 1 = %+v", got[1])
	}
}
