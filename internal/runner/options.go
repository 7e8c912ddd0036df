package runner

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/gqlfire/internal/metrics"
)

// Requester executes a single GraphQL request and reports how it went.
// Implementations never return an error: failures are carried by the outcome.
type Requester interface {
	Do(ctx context.Context) metrics.Outcome
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context) metrics.Outcome

func (f RequesterFunc) Do(ctx context.Context) metrics.Outcome { return f(ctx) }

// Observer is notified around every request. PromRecorder satisfies it.
type Observer interface {
	Start()
	Observe(metrics.Outcome)
}

// ArrivalModel selects how phase request starts are spaced.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Phase is one stage of an open-model run: ArrivalRate new requests per
// second for Duration, then a Pause before the next phase.
type Phase struct {
	ArrivalRate int
	Duration    time.Duration
	Pause       time.Duration
}

// Options configure the Runner.
//
// In count mode every one of the ConcurrencyLimit workers fires
// ceil(NumberRequests/ConcurrencyLimit) requests, so a run may execute up to
// ConcurrencyLimit-1 more requests than asked for. RateLimit is shared the
// same way: each worker paces at ceil(RateLimit/ConcurrencyLimit) starts per
// second, so the run may start up to ConcurrencyLimit-1 more requests per
// second than RateLimit, and never fewer than ConcurrencyLimit per second.
// Config validation rejects a RateLimit below ConcurrencyLimit. Result.Outcomes
// always holds what actually ran.
type Options struct {
	ConcurrencyLimit int           // number of workers, or in-flight slots for phases
	NumberRequests   int           // total requests in count mode
	Duration         time.Duration // run length in duration mode; ignored when NumberRequests > 0
	RateLimit        int           // global request starts per second (0 means unlimited)
	Requester        Requester     // request executor (required)

	Phases         []Phase                     // used by RunPhases
	ArrivalModel   ArrivalModel                // phase arrival spacing
	RandomSeed     int64                       // seeds the poisson sampler
	PoissonSampler func() float64              // optional injection for tests
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests

	// OnPartialReport receives live reports while the run is in progress. It
	// is always called from the same goroutine.
	OnPartialReport func(metrics.Report)
	// PartialInterval spaces partial reports; zero means after every request.
	PartialInterval time.Duration

	Observer Observer
	Logger   *zap.Logger
}

func (o *Options) normalize() {
	if o.ConcurrencyLimit <= 0 {
		o.ConcurrencyLimit = 1
	}
	if o.NumberRequests < 0 {
		o.NumberRequests = 0
	}
	if o.NumberRequests > 0 {
		o.Duration = 0
	}
	if o.RateLimit < 0 {
		o.RateLimit = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst equal to rps so each second opens with a full batch of starts.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

// strategy builds the per-worker strategy for Run.
func (o *Options) strategy() Strategy {
	workerRate := WorkerShare(o.RateLimit, o.ConcurrencyLimit)
	if o.Duration > 0 {
		return NewDurationStrategy(o.Duration, workerRate)
	}
	return NewCountStrategy(WorkerShare(o.NumberRequests, o.ConcurrencyLimit), workerRate)
}
