package runner_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/gqlfire/internal/config"
	"github.com/torosent/gqlfire/internal/httpclient"
	"github.com/torosent/gqlfire/internal/metrics"
	"github.com/torosent/gqlfire/internal/runner"
)

// fakeRequester simulates performing a request with fixed latency.
type fakeRequester struct {
	latency time.Duration
	calls   int64
}

func (f *fakeRequester) Do(ctx context.Context) metrics.Outcome {
	atomic.AddInt64(&f.calls, 1)
	start := time.Now()
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return metrics.Outcome{Duration: time.Since(start), Err: ctx.Err()}
		}
	}
	return metrics.Outcome{Duration: time.Since(start), StatusCode: http.StatusOK}
}

func (f *fakeRequester) Calls() int {
	return int(atomic.LoadInt64(&f.calls))
}

// graphqlExecutor returns an executor against a test server that always
// answers with body.
func graphqlExecutor(t *testing.T, body string) *httpclient.Executor {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	builder, err := httpclient.NewRequestBuilder(&config.Config{Endpoint: server.URL, Query: "{ ping }"})
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	client := httpclient.NewClient(5 * time.Second)
	t.Cleanup(client.CloseIdleConnections)
	return httpclient.NewExecutor(client, builder)
}

func TestRunRateLimitedSingleWorker(t *testing.T) {
	r := runner.New(runner.Options{
		ConcurrencyLimit: 1,
		NumberRequests:   200,
		RateLimit:        190,
		Requester:        graphqlExecutor(t, `{"data":{}}`),
	})

	res := r.Run(context.Background())

	if len(res.Outcomes) != 200 {
		t.Fatalf("outcomes = %d, want 200", len(res.Outcomes))
	}
	if res.Errors != 0 {
		t.Errorf("errors = %d, want 0", res.Errors)
	}
	// Two chunks (190 + 10) with a pause between them.
	if res.Duration < time.Second {
		t.Errorf("duration = %v, want >= 1s", res.Duration)
	}

	report := metrics.Aggregate(res.Outcomes, res.Duration)
	if report.ErrorDistribution.SuccessCount != 200 || report.ErrorDistribution.ErrorCount != 0 {
		t.Errorf("error distribution = %+v, want 200 successes", report.ErrorDistribution)
	}
}

func TestRunGraphQLErrorsAreCounted(t *testing.T) {
	r := runner.New(runner.Options{
		ConcurrencyLimit: 10,
		NumberRequests:   200,
		Requester:        graphqlExecutor(t, `{"errors":["bad"]}`),
	})

	res := r.Run(context.Background())

	if len(res.Outcomes) != 200 {
		t.Fatalf("outcomes = %d, want 200", len(res.Outcomes))
	}
	if res.Errors != 200 {
		t.Errorf("errors = %d, want 200", res.Errors)
	}
	report := metrics.Aggregate(res.Outcomes, res.Duration)
	if report.ErrorDistribution.ErrorCount != 200 {
		t.Errorf("ErrorCount = %d, want 200", report.ErrorDistribution.ErrorCount)
	}
	if got := report.Errors["graphql: bad"]; got != 200 {
		t.Errorf(`Errors["graphql: bad"] = %d, want 200`, got)
	}
}

func TestRunDuration(t *testing.T) {
	r := runner.New(runner.Options{
		ConcurrencyLimit: 5,
		Duration:         2 * time.Second,
		RateLimit:        50,
		Requester:        graphqlExecutor(t, `{"data":{}}`),
	})

	res := r.Run(context.Background())

	if len(res.Outcomes) < 100 {
		t.Errorf("outcomes = %d, want >= 100", len(res.Outcomes))
	}
	if res.Duration < 2*time.Second {
		t.Errorf("duration = %v, want >= 2s", res.Duration)
	}
	report := metrics.Aggregate(res.Outcomes, res.Duration)
	if report.TotalDurationMs < 2000 {
		t.Errorf("TotalDurationMs = %v, want >= 2000", report.TotalDurationMs)
	}
}

func TestRunDurationUnpaced(t *testing.T) {
	req := &fakeRequester{latency: time.Millisecond}
	r := runner.New(runner.Options{
		ConcurrencyLimit: 2,
		Duration:         200 * time.Millisecond,
		Requester:        req,
	})

	res := r.Run(context.Background())

	if len(res.Outcomes) == 0 {
		t.Fatal("expected outcomes")
	}
	if req.Calls() != len(res.Outcomes) {
		t.Errorf("calls = %d, outcomes = %d", req.Calls(), len(res.Outcomes))
	}
	if res.Duration >= time.Second {
		t.Errorf("duration = %v, want < 1s", res.Duration)
	}
}

func TestRunOvershootBound(t *testing.T) {
	tests := []struct {
		n, c, want int
	}{
		{25, 4, 28},
		{200, 10, 200},
		{3, 10, 10},
		{7, 1, 7},
	}
	for _, tt := range tests {
		req := &fakeRequester{}
		res := runner.New(runner.Options{
			ConcurrencyLimit: tt.c,
			NumberRequests:   tt.n,
			Requester:        req,
		}).Run(context.Background())

		got := len(res.Outcomes)
		if got != tt.want {
			t.Errorf("n=%d c=%d: outcomes = %d, want %d", tt.n, tt.c, got, tt.want)
		}
		if got < tt.n || got > tt.n+tt.c-1 {
			t.Errorf("n=%d c=%d: outcomes = %d outside [%d, %d]", tt.n, tt.c, got, tt.n, tt.n+tt.c-1)
		}
		if req.Calls() != tt.want {
			t.Errorf("n=%d c=%d: calls = %d, want %d", tt.n, tt.c, req.Calls(), tt.want)
		}
	}
}

func TestRunRecoversPanics(t *testing.T) {
	var calls int64
	req := runner.RequesterFunc(func(ctx context.Context) metrics.Outcome {
		if atomic.AddInt64(&calls, 1)%3 == 0 {
			panic("boom")
		}
		return metrics.Outcome{Duration: time.Millisecond, StatusCode: 200}
	})

	res := runner.New(runner.Options{
		ConcurrencyLimit: 1,
		NumberRequests:   9,
		Requester:        req,
	}).Run(context.Background())

	if len(res.Outcomes) != 9 {
		t.Fatalf("outcomes = %d, want 9", len(res.Outcomes))
	}
	if res.Errors != 3 {
		t.Errorf("errors = %d, want 3", res.Errors)
	}
	panics := 0
	for _, o := range res.Outcomes {
		var perr *runner.PanicError
		if errors.As(o.Err, &perr) {
			panics++
			if perr.Value != "boom" {
				t.Errorf("panic value = %v, want boom", perr.Value)
			}
			if o.Class() != "transport: Requester panic" {
				t.Errorf("class = %q", o.Class())
			}
		}
	}
	if panics != 3 {
		t.Errorf("panic outcomes = %d, want 3", panics)
	}
}

func TestRunWithoutRequester(t *testing.T) {
	res := runner.New(runner.Options{ConcurrencyLimit: 2, NumberRequests: 4}).Run(context.Background())
	if len(res.Outcomes) != 4 || res.Errors != 4 {
		t.Errorf("outcomes = %d errors = %d, want 4 failed outcomes", len(res.Outcomes), res.Errors)
	}
}

func TestRunCancellationKeepsCompletedOutcomes(t *testing.T) {
	req := &fakeRequester{latency: 10 * time.Millisecond}
	r := runner.New(runner.Options{
		ConcurrencyLimit: 2,
		NumberRequests:   1000,
		Requester:        req,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)
	res := r.Run(ctx)

	if len(res.Outcomes) == 0 || len(res.Outcomes) >= 1000 {
		t.Errorf("outcomes = %d, want some but fewer than 1000", len(res.Outcomes))
	}
	if res.Duration >= 2*time.Second {
		t.Errorf("duration = %v, want < 2s", res.Duration)
	}
	for _, o := range res.Outcomes {
		if o.Err != nil {
			t.Fatalf("cancelled request reported: %v", o.Err)
		}
	}
}

func TestRunPartialReportsPerRequest(t *testing.T) {
	var (
		calls int
		last  metrics.Report
	)
	r := runner.New(runner.Options{
		ConcurrencyLimit: 2,
		NumberRequests:   20,
		Requester:        &fakeRequester{},
		OnPartialReport: func(rep metrics.Report) {
			calls++
			last = rep
		},
	})

	res := r.Run(context.Background())

	if len(res.Outcomes) != 20 {
		t.Fatalf("outcomes = %d, want 20", len(res.Outcomes))
	}
	if calls != 20 {
		t.Errorf("partial reports = %d, want 20", calls)
	}
	if last.TotalRequests != 20 || last.ErrorDistribution.SuccessCount != 20 {
		t.Errorf("last report total = %d successes = %d, want 20/20", last.TotalRequests, last.ErrorDistribution.SuccessCount)
	}
}

func TestRunPartialReportsOnInterval(t *testing.T) {
	var mu sync.Mutex
	var reports []metrics.Report
	r := runner.New(runner.Options{
		ConcurrencyLimit: 1,
		NumberRequests:   10,
		Requester:        &fakeRequester{latency: 20 * time.Millisecond},
		PartialInterval:  50 * time.Millisecond,
		OnPartialReport: func(rep metrics.Report) {
			mu.Lock()
			reports = append(reports, rep)
			mu.Unlock()
		},
	})

	r.Run(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(reports) < 2 || len(reports) >= 10 {
		t.Fatalf("partial reports = %d, want between 2 and 9", len(reports))
	}
	if got := reports[len(reports)-1].TotalRequests; got != 10 {
		t.Errorf("final report TotalRequests = %d, want 10", got)
	}
}

type countingObserver struct {
	started, observed int64
}

func (c *countingObserver) Start()                  { atomic.AddInt64(&c.started, 1) }
func (c *countingObserver) Observe(metrics.Outcome) { atomic.AddInt64(&c.observed, 1) }

func TestRunNotifiesObserver(t *testing.T) {
	obs := &countingObserver{}
	runner.New(runner.Options{
		ConcurrencyLimit: 3,
		NumberRequests:   12,
		Requester:        &fakeRequester{},
		Observer:         obs,
	}).Run(context.Background())

	if got := atomic.LoadInt64(&obs.started); got != 12 {
		t.Errorf("started = %d, want 12", got)
	}
	if got := atomic.LoadInt64(&obs.observed); got != 12 {
		t.Errorf("observed = %d, want 12", got)
	}
}

func TestRunPhasesUniform(t *testing.T) {
	req := &fakeRequester{latency: time.Millisecond}
	r := runner.New(runner.Options{
		ConcurrencyLimit: 10,
		Requester:        req,
		Phases: []runner.Phase{
			{ArrivalRate: 20, Duration: 500 * time.Millisecond},
			{ArrivalRate: 10, Duration: 300 * time.Millisecond, Pause: 100 * time.Millisecond},
		},
	})

	phases, total := r.RunPhases(context.Background())

	if len(phases) != 2 {
		t.Fatalf("phases = %d, want 2", len(phases))
	}
	sum := 0
	for i, p := range phases {
		if p.Index != i {
			t.Errorf("phase %d has index %d", i, p.Index)
		}
		if len(p.Outcomes) == 0 {
			t.Errorf("phase %d has no outcomes", i)
		}
		sum += len(p.Outcomes)
	}
	// Burst of 20 plus 20/s for half a second.
	if n := len(phases[0].Outcomes); n > 31 {
		t.Errorf("phase 0 outcomes = %d, want <= 31", n)
	}
	if phases[1].Duration < 400*time.Millisecond {
		t.Errorf("phase 1 duration = %v, want >= 400ms including pause", phases[1].Duration)
	}
	if sum != len(total.Outcomes) || req.Calls() != sum {
		t.Errorf("phase sum = %d total = %d calls = %d", sum, len(total.Outcomes), req.Calls())
	}
}

func TestRunPhasesPoisson(t *testing.T) {
	req := &fakeRequester{}
	r := runner.New(runner.Options{
		ConcurrencyLimit: 5,
		Requester:        req,
		ArrivalModel:     runner.ArrivalModelPoisson,
		PoissonSampler:   func() float64 { return 1 },
		Phases:           []runner.Phase{{ArrivalRate: 20, Duration: 500 * time.Millisecond}},
	})

	phases, total := r.RunPhases(context.Background())

	if len(phases) != 1 {
		t.Fatalf("phases = %d, want 1", len(phases))
	}
	// One start every 50ms.
	if n := len(total.Outcomes); n < 5 || n > 10 {
		t.Errorf("outcomes = %d, want 5..10", n)
	}
}

func TestRunPhasesBoundsInflight(t *testing.T) {
	var inflight, peak int64
	req := runner.RequesterFunc(func(ctx context.Context) metrics.Outcome {
		n := atomic.AddInt64(&inflight, 1)
		defer atomic.AddInt64(&inflight, -1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		return metrics.Outcome{Duration: 100 * time.Millisecond, StatusCode: 200}
	})

	r := runner.New(runner.Options{
		ConcurrencyLimit: 3,
		Requester:        req,
		Phases:           []runner.Phase{{ArrivalRate: 100, Duration: 300 * time.Millisecond}},
	})
	_, total := r.RunPhases(context.Background())

	if len(total.Outcomes) == 0 {
		t.Fatal("expected outcomes")
	}
	if p := atomic.LoadInt64(&peak); p > 3 {
		t.Errorf("peak in-flight = %d, want <= 3", p)
	}
}

func TestRunPhasesCancelled(t *testing.T) {
	r := runner.New(runner.Options{
		ConcurrencyLimit: 2,
		Requester:        &fakeRequester{latency: time.Millisecond},
		Phases: []runner.Phase{
			{ArrivalRate: 10, Duration: 5 * time.Second},
			{ArrivalRate: 10, Duration: 5 * time.Second},
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	phases, _ := r.RunPhases(ctx)

	if elapsed := time.Since(start); elapsed >= 2*time.Second {
		t.Errorf("RunPhases took %v after cancellation", elapsed)
	}
	if len(phases) != 1 {
		t.Errorf("phases = %d, want 1", len(phases))
	}
}
