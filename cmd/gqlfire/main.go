package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/torosent/gqlfire/internal/auth"
	"github.com/torosent/gqlfire/internal/config"
	"github.com/torosent/gqlfire/internal/httpclient"
	"github.com/torosent/gqlfire/internal/metrics"
	"github.com/torosent/gqlfire/internal/output"
	"github.com/torosent/gqlfire/internal/runner"
	"github.com/torosent/gqlfire/internal/threshold"
	"github.com/torosent/gqlfire/internal/tracing"
)

const (
	historyInterval = time.Second
	shutdownTimeout = 5 * time.Second
)

var errThresholdsFailed = errors.New("one or more thresholds failed")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) (err error) {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}

	logger := newLogger(cfg.Verbose, stderr)
	defer func() { _ = logger.Sync() }()

	validation := cfg.Validate()
	for _, w := range validation.Warnings {
		logger.Warn(w)
	}
	if err := validation.Err(); err != nil {
		return err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = multierr.Append(err, provider.Shutdown(shutdownCtx))
	}()

	var observer runner.Observer
	if cfg.MetricsAddr != "" {
		recorder, recErr := metrics.NewPromRecorder(prometheus.NewRegistry())
		if recErr != nil {
			return recErr
		}
		srv, addr, srvErr := serveMetrics(cfg.MetricsAddr, recorder.Handler())
		if srvErr != nil {
			return srvErr
		}
		logger.Info("serving metrics", zap.String("addr", addr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err = multierr.Append(err, srv.Shutdown(shutdownCtx))
		}()
		observer = recorder
	}

	authProvider, err := auth.New(cfg.Auth)
	if err != nil {
		return err
	}
	var builder *httpclient.RequestBuilder
	if authProvider != nil {
		defer func() { err = multierr.Append(err, authProvider.Close()) }()
		builder, err = httpclient.NewRequestBuilderWithAuth(cfg, authProvider)
	} else {
		builder, err = httpclient.NewRequestBuilder(cfg)
	}
	if err != nil {
		return err
	}
	executor := httpclient.NewExecutor(
		httpclient.NewClient(cfg.Timeout),
		builder,
		httpclient.WithTracer(provider.Tracer()),
	)
	requester := runner.WithLogging(executor, runner.NewZapFailureLogger(logger, cfg.LogErrors))

	opts := runner.Options{
		ConcurrencyLimit: cfg.ConcurrencyLimit,
		NumberRequests:   cfg.NumberRequests,
		Duration:         time.Duration(cfg.Duration) * time.Second,
		RateLimit:        cfg.RateLimit,
		Requester:        requester,
		Phases:           toRunnerPhases(cfg.Phases),
		ArrivalModel:     toRunnerArrivalModel(cfg.Arrival),
		RandomSeed:       time.Now().UnixNano(),
		Observer:         observer,
		Logger:           logger,
	}

	var progress *output.ProgressReporter
	var history *output.History
	if cfg.ProgressInterval > 0 {
		progress = output.NewProgressReporter(stderr)
		opts.PartialInterval = cfg.ProgressInterval
	}
	if cfg.Output == config.OutputHTML {
		history = &output.History{}
		if opts.PartialInterval == 0 {
			opts.PartialInterval = historyInterval
		}
	}
	if progress != nil || history != nil {
		opts.OnPartialReport = func(report metrics.Report) {
			if progress != nil {
				progress.Update(report)
			}
			if history != nil {
				history.Add(report)
			}
		}
	}

	logger.Info("load test started",
		zap.String("endpoint", builder.Target()),
		zap.String("operation", builder.OperationName()),
		zap.Int("concurrency", cfg.ConcurrencyLimit),
		zap.Int("requests", cfg.NumberRequests),
		zap.Int("duration_s", cfg.Duration),
		zap.Int("rate", cfg.RateLimit),
		zap.Int("phases", len(cfg.Phases)),
	)

	r := runner.New(opts)
	var result runner.Result
	if len(opts.Phases) > 0 {
		_, result = r.RunPhases(ctx)
	} else {
		result = r.Run(ctx)
	}
	if progress != nil {
		progress.Finish()
	}

	report := metrics.Aggregate(result.Outcomes, result.Duration)
	report.RunID = metrics.NewRunID()
	results := threshold.NewEvaluator(thresholds).Evaluate(report)

	logger.Info("load test finished",
		zap.String("run_id", report.RunID),
		zap.Int("requests", report.TotalRequests),
		zap.Int("errors", report.ErrorDistribution.ErrorCount),
		zap.Duration("elapsed", result.Duration),
		zap.Bool("interrupted", ctx.Err() != nil),
	)

	doc := output.NewDocument(report, results, &output.ReportMetadata{
		Endpoint:         builder.Target(),
		OperationName:    builder.OperationName(),
		ConcurrencyLimit: cfg.ConcurrencyLimit,
		RateLimit:        cfg.RateLimit,
	})
	var snapshots []output.Snapshot
	if history != nil {
		snapshots = history.Snapshots()
	}
	format := output.Format(cfg.Output)
	if cfg.OutputFile != "" {
		if err := output.WriteFile(cfg.OutputFile, format, doc, snapshots); err != nil {
			return err
		}
		logger.Info("report written", zap.String("path", cfg.OutputFile))
	} else if err := output.Write(stdout, format, doc, snapshots); err != nil {
		return err
	}

	if !threshold.Passed(results) {
		return errThresholdsFailed
	}
	return nil
}

// newLogger writes JSON entries at info level, or human-readable debug
// entries when verbose.
func newLogger(verbose bool, w io.Writer) *zap.Logger {
	level := zapcore.InfoLevel
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	if verbose {
		level = zapcore.DebugLevel
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	return zap.New(zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), level))
}

// serveMetrics starts the Prometheus endpoint on addr and returns the bound
// address. The listener is bound before returning so address errors surface
// immediately.
func serveMetrics(addr string, handler http.Handler) (*http.Server, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("metrics listener: %w", err)
	}
	router := mux.NewRouter()
	router.Handle("/metrics", handler).Methods(http.MethodGet)
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	return srv, ln.Addr().String(), nil
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch strings.ToLower(string(model)) {
	case string(config.ArrivalModelPoisson):
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}

func toRunnerPhases(phases []config.Phase) []runner.Phase {
	if len(phases) == 0 {
		return nil
	}
	result := make([]runner.Phase, len(phases))
	for i, p := range phases {
		result[i] = runner.Phase{
			ArrivalRate: p.ArrivalRate,
			Duration:    time.Duration(p.Duration) * time.Second,
			Pause:       time.Duration(p.Pause) * time.Second,
		}
	}
	return result
}
