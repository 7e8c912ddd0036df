package runner

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/torosent/gqlfire/internal/metrics"
)

// FailureLogger logs failed requests.
type FailureLogger interface {
	LogFailure(o metrics.Outcome)
}

// loggingRequester wraps a Requester with failure logging.
type loggingRequester struct {
	inner  Requester
	logger FailureLogger
}

// WithLogging wraps a Requester to log failures.
func WithLogging(req Requester, logger FailureLogger) Requester {
	if logger == nil {
		return req
	}
	return &loggingRequester{
		inner:  req,
		logger: logger,
	}
}

func (l *loggingRequester) Do(ctx context.Context) metrics.Outcome {
	o := l.inner.Do(ctx)
	if o.Failed() {
		l.logger.LogFailure(o)
	}
	return o
}

// ZapFailureLogger writes each failure as one structured log entry.
type ZapFailureLogger struct {
	Logger *zap.Logger
	Level  zapcore.Level
}

// NewZapFailureLogger logs at debug level, or warn when loud is set.
func NewZapFailureLogger(logger *zap.Logger, loud bool) *ZapFailureLogger {
	level := zapcore.DebugLevel
	if loud {
		level = zapcore.WarnLevel
	}
	return &ZapFailureLogger{Logger: logger, Level: level}
}

func (z *ZapFailureLogger) LogFailure(o metrics.Outcome) {
	if z == nil || z.Logger == nil {
		return
	}
	ce := z.Logger.Check(z.Level, "request failed")
	if ce == nil {
		return
	}
	ce.Write(
		zap.String("class", o.Class()),
		zap.String("detail", o.Detail()),
		zap.Int("status", o.StatusCode),
		zap.Duration("duration", o.Duration),
	)
}
