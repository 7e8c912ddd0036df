package httpclient

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/gqlfire/internal/metrics"
	"github.com/torosent/gqlfire/internal/tracing"
)

// Executor sends one GraphQL request per Do call and classifies the result.
// It never retries.
type Executor struct {
	client  *http.Client
	builder *RequestBuilder
	tracer  trace.Tracer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTracer records a client span around every request.
func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

func NewExecutor(client *http.Client, builder *RequestBuilder, opts ...ExecutorOption) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	e := &Executor{client: client, builder: builder}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do performs the request. The duration runs from just before the request is
// built until the response body has been read and inspected. Classification:
// a transport failure sets Err; a non-2xx status is returned without reading
// the body; a JSON body with a non-empty "errors" array fills GraphQLErrors;
// anything else is a success.
func (e *Executor) Do(ctx context.Context) (o metrics.Outcome) {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = tracing.StartRequestSpan(ctx, e.tracer, e.builder.Target(), e.builder.OperationName())
		defer func() { tracing.EndRequestSpan(span, o) }()
	}

	start := time.Now()
	req, err := e.builder.Build(ctx)
	if err != nil {
		return metrics.Outcome{Duration: time.Since(start), Err: &RequestError{Err: err}}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return metrics.Outcome{Duration: time.Since(start), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return metrics.Outcome{Duration: time.Since(start), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return metrics.Outcome{Duration: time.Since(start), StatusCode: resp.StatusCode, Err: err}
	}
	errs := GraphQLErrors(body)
	return metrics.Outcome{
		Duration:      time.Since(start),
		StatusCode:    resp.StatusCode,
		GraphQLErrors: errs,
	}
}

// GraphQLErrors returns one entry per element of the top-level "errors" array
// of a JSON response: the element's message when it is an object with one,
// the string itself for string elements, otherwise the raw JSON. It returns
// nil for invalid JSON or when the array is absent or empty.
func GraphQLErrors(body []byte) []string {
	if !gjson.ValidBytes(body) {
		return nil
	}
	res := gjson.GetBytes(body, "errors")
	if !res.IsArray() {
		return nil
	}
	items := res.Array()
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch {
		case item.IsObject() && item.Get("message").Exists():
			out = append(out, item.Get("message").String())
		case item.Type == gjson.String:
			out = append(out, item.String())
		default:
			out = append(out, item.Raw)
		}
	}
	return out
}
