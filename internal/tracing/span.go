package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/gqlfire/internal/metrics"
)

// StartRequestSpan starts a client span for one GraphQL request.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, endpoint, operationName string) (context.Context, trace.Span) {
	spanName := "graphql request"
	if operationName != "" {
		spanName = "graphql " + operationName
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("http.request.method", http.MethodPost),
		attribute.String("url.full", endpoint),
	)
	if operationName != "" {
		span.SetAttributes(attribute.String("graphql.operation.name", operationName))
	}
	return ctx, span
}

// EndRequestSpan records the outcome on span and ends it.
func EndRequestSpan(span trace.Span, o metrics.Outcome) {
	if o.StatusCode != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", o.StatusCode))
	}
	if len(o.GraphQLErrors) > 0 {
		span.SetAttributes(attribute.Int("graphql.errors.count", len(o.GraphQLErrors)))
	}
	span.SetAttributes(attribute.Bool("error", o.Failed()))
	switch {
	case o.Err != nil:
		span.RecordError(o.Err)
		span.SetStatus(codes.Error, o.Err.Error())
	case o.Failed():
		span.SetStatus(codes.Error, o.Class())
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
