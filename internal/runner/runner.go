package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/gqlfire/internal/metrics"
)

// Result captures execution summary.
type Result struct {
	Outcomes []metrics.Outcome
	Errors   int
	Duration time.Duration
}

// PanicError wraps a value recovered from a panicking Requester.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("requester panic: %v", e.Value)
}

// Runner coordinates concurrent execution with rate limiting.
type Runner struct {
	opt Options
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt}
}

// Run executes the closed-model load test: ConcurrencyLimit workers each send
// their share of requests, sequentially, in chunks of at most their share of
// RateLimit per second. Cancelling ctx stops every worker at its next request
// boundary; outcomes completed so far are kept.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	stream := r.newStream(start)

	slots := make([][]metrics.Outcome, r.opt.ConcurrencyLimit)
	var g errgroup.Group
	for i := range slots {
		g.Go(func() error {
			slots[i] = r.work(ctx, i, r.opt.strategy(), stream)
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)
	stream.close()

	result := collect(slots, elapsed)
	r.opt.Logger.Debug("run finished",
		zap.Int("requests", len(result.Outcomes)),
		zap.Int("errors", result.Errors),
		zap.Duration("elapsed", elapsed),
	)
	return result
}

// work is one worker's loop. Chunks are paced so that a paced chunk always
// occupies at least one second before the next one starts.
func (r *Runner) work(ctx context.Context, id int, s Strategy, stream *stream) []metrics.Outcome {
	var outcomes []metrics.Outcome
	start := time.Now()
	var chunkStart time.Time

	for {
		size, ok := s.NextChunk()
		if !ok {
			break
		}
		if !chunkStart.IsZero() && s.Paced() {
			if !s.ShouldContinue(time.Since(start)) {
				break
			}
			if err := sleep(ctx, time.Second-time.Since(chunkStart)); err != nil {
				break
			}
		}
		chunkStart = time.Now()

		stop := false
		for i := 0; i < size; i++ {
			if ctx.Err() != nil || !s.ShouldContinue(time.Since(start)) {
				stop = true
				break
			}
			o, keep := r.fire(ctx)
			if !keep {
				stop = true
				break
			}
			outcomes = append(outcomes, o)
			stream.send(o)
		}
		if stop || ctx.Err() != nil {
			break
		}
	}

	r.opt.Logger.Debug("worker done", zap.Int("worker", id), zap.Int("requests", len(outcomes)))
	return outcomes
}

// fire runs one request. keep is false when the request failed only because
// ctx was cancelled or expired; such requests are not counted.
func (r *Runner) fire(ctx context.Context) (o metrics.Outcome, keep bool) {
	if r.opt.Observer != nil {
		r.opt.Observer.Start()
	}
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			o = metrics.Outcome{Duration: time.Since(start), Err: &PanicError{Value: rec}}
			keep = true
			r.opt.Logger.Error("requester panicked", zap.Any("panic", rec))
		}
		if r.opt.Observer != nil {
			r.opt.Observer.Observe(o)
		}
	}()

	if r.opt.Requester == nil {
		return metrics.Outcome{Err: errors.New("runner: no requester configured")}, true
	}
	o = r.opt.Requester.Do(ctx)
	if err := ctx.Err(); err != nil && errors.Is(o.Err, err) {
		return o, false
	}
	return o, true
}

func collect(slots [][]metrics.Outcome, elapsed time.Duration) Result {
	n := 0
	for _, s := range slots {
		n += len(s)
	}
	result := Result{Outcomes: make([]metrics.Outcome, 0, n), Duration: elapsed}
	for _, s := range slots {
		for _, o := range s {
			if o.Failed() {
				result.Errors++
			}
			result.Outcomes = append(result.Outcomes, o)
		}
	}
	return result
}

// stream feeds outcomes to a single consumer goroutine that maintains a live
// Collector and invokes OnPartialReport. A nil stream discards everything.
type stream struct {
	ch   chan metrics.Outcome
	done chan struct{}
	once sync.Once
}

func (r *Runner) newStream(start time.Time) *stream {
	if r.opt.OnPartialReport == nil {
		return nil
	}
	s := &stream{
		ch:   make(chan metrics.Outcome, 1024),
		done: make(chan struct{}),
	}
	go r.consume(s, start)
	return s
}

func (r *Runner) consume(s *stream, start time.Time) {
	defer close(s.done)

	collector := metrics.NewCollector()
	emit := func() {
		report := collector.Report(time.Since(start))
		r.opt.OnPartialReport(report)
	}

	var tick <-chan time.Time
	if r.opt.PartialInterval > 0 {
		ticker := time.NewTicker(r.opt.PartialInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case o, ok := <-s.ch:
			if !ok {
				if r.opt.PartialInterval > 0 {
					emit()
				}
				return
			}
			collector.Record(o)
			if tick == nil {
				emit()
			}
		case <-tick:
			emit()
		}
	}
}

func (s *stream) send(o metrics.Outcome) {
	if s == nil {
		return
	}
	s.ch <- o
}

// close stops accepting outcomes and waits until the consumer has drained.
func (s *stream) close() {
	if s == nil {
		return
	}
	s.once.Do(func() { close(s.ch) })
	<-s.done
}
