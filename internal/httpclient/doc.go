// Package httpclient builds and sends the GraphQL requests of a load test.
//
// A run sends the same payload on every request:
//
//	{"query": "...", "variables": {...}, "operationName": "..."}
//
// # Request Building
//
// [NewRequestBuilder] encodes the payload once from configuration, reading
// the query and variables files when they are set:
//
//	builder, err := httpclient.NewRequestBuilder(cfg)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx)
//
// Requests are POSTs with JSON Content-Type and Accept headers. Configured
// headers are merged over those defaults. When trace propagation is enabled
// the W3C trace context of ctx is injected as well.
//
// # Execution
//
// An [Executor] turns one request into a [metrics.Outcome]:
//
//	exec := httpclient.NewExecutor(httpclient.NewClient(cfg.Timeout), builder)
//	outcome := exec.Do(ctx)
//
// Transport failures, non-2xx statuses and GraphQL errors in a 2xx body are
// all reported on the outcome; Do never returns an error and never retries.
//
// # HTTP Client
//
// [NewClient] creates a client with a pooled transport sized for load tests
// and the given per-request timeout.
package httpclient
