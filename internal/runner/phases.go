package runner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/gqlfire/internal/metrics"
)

// PhaseResult holds the outcomes of one phase.
type PhaseResult struct {
	Index    int
	Phase    Phase
	Outcomes []metrics.Outcome
	Errors   int
	Duration time.Duration
}

// RunPhases executes Options.Phases in order. Within a phase, requests start
// at ArrivalRate per second regardless of how long earlier ones take, each on
// its own goroutine, with at most ConcurrencyLimit in flight. When the phase
// duration is over no new requests start; the pause then elapses while
// in-flight requests finish. The combined Result spans every phase.
func (r *Runner) RunPhases(ctx context.Context) ([]PhaseResult, Result) {
	start := time.Now()
	stream := r.newStream(start)

	results := make([]PhaseResult, 0, len(r.opt.Phases))
	for i, phase := range r.opt.Phases {
		if ctx.Err() != nil {
			break
		}
		r.opt.Logger.Info("phase started",
			zap.Int("phase", i+1),
			zap.Int("arrival_rate", phase.ArrivalRate),
			zap.Duration("duration", phase.Duration),
		)
		res := r.runPhase(ctx, i, phase, stream)
		r.opt.Logger.Info("phase finished",
			zap.Int("phase", i+1),
			zap.Int("requests", len(res.Outcomes)),
			zap.Int("errors", res.Errors),
			zap.Duration("elapsed", res.Duration),
		)
		results = append(results, res)
	}
	elapsed := time.Since(start)
	stream.close()

	slots := make([][]metrics.Outcome, len(results))
	for i, res := range results {
		slots[i] = res.Outcomes
	}
	return results, collect(slots, elapsed)
}

func (r *Runner) runPhase(ctx context.Context, index int, phase Phase, stream *stream) PhaseResult {
	start := time.Now()
	arrival := newArrivalController(r.opt, phase.ArrivalRate)

	issueCtx, cancel := context.WithTimeout(ctx, phase.Duration)
	defer cancel()

	var (
		mu       sync.Mutex
		outcomes []metrics.Outcome
		g        errgroup.Group
	)
	inflight := make(chan struct{}, r.opt.ConcurrencyLimit)

issue:
	for {
		if err := arrival.Wait(issueCtx); err != nil {
			break
		}
		select {
		case inflight <- struct{}{}:
		case <-issueCtx.Done():
			break issue
		}
		g.Go(func() error {
			defer func() { <-inflight }()
			o, keep := r.fire(ctx)
			if !keep {
				return nil
			}
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
			stream.send(o)
			return nil
		})
	}

	if phase.Pause > 0 {
		_ = sleep(ctx, phase.Pause)
	}
	_ = g.Wait()

	res := PhaseResult{Index: index, Phase: phase, Duration: time.Since(start)}
	res.Outcomes = outcomes
	for _, o := range outcomes {
		if o.Failed() {
			res.Errors++
		}
	}
	return res
}
