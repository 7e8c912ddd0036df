// Package runner provides the load generation engine for gqlfire.
//
// The runner package schedules GraphQL requests and gathers their outcomes:
//   - Count mode: send a fixed number of requests
//   - Duration mode: send requests until a time budget is spent
//   - Optional rate limit on request starts per second
//   - A bounded pool of concurrent workers
//   - Phases with an arrival rate, for open-model runs
//
// # Basic Usage
//
// Create a runner with options and a requester implementation:
//
//	opts := runner.Options{
//		ConcurrencyLimit: 10,
//		NumberRequests:   1000,
//		RateLimit:        100,
//		Requester:        executor,
//	}
//	result := runner.New(opts).Run(ctx)
//	report := metrics.Aggregate(result.Outcomes, result.Duration)
//
// # Requester Interface
//
// The [Requester] interface defines what a runner executes:
//
//	type Requester interface {
//		Do(ctx context.Context) metrics.Outcome
//	}
//
// A requester never fails the run. Transport errors, non-2xx responses and
// GraphQL errors are all reported through the outcome, and a panic inside Do
// is recovered into a failed outcome carrying a [PanicError].
//
// # Scheduling
//
// Each of the ConcurrencyLimit workers receives ceil(total/workers) of both
// NumberRequests and RateLimit (see [WorkerShare]) and fires its requests one
// after another. A [Strategy] hands out per-second chunks: [GetChunks] for
// count mode, a fixed chunk size for duration mode. When a rate limit is set
// and a chunk finishes early, the worker sleeps out the rest of its second.
// Because shares are rounded up, a count-mode run executes between N and
// N+ConcurrencyLimit-1 requests.
//
// # Phases
//
// [Runner.RunPhases] runs each [Phase] in turn, starting ArrivalRate requests
// per second without waiting for earlier ones. Starts are spaced by a
// token-bucket limiter ([ArrivalModelUniform]) or by exponential inter-arrival
// times ([ArrivalModelPoisson]).
//
// # Live reports
//
// Set Options.OnPartialReport to receive approximate [metrics.Report] values
// while a run is in progress. Outcomes flow to a single consumer goroutine,
// so the callback never runs concurrently with itself.
//
// # Middleware
//
// [WithLogging] reports every failed outcome to a [FailureLogger];
// [ZapFailureLogger] writes them as structured zap entries.
package runner
