package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromRecorder exports request outcomes as Prometheus metrics.
type PromRecorder struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration prometheus.Histogram
	inflight prometheus.Gauge
}

// NewPromRecorder registers the gqlfire metrics on reg. A nil reg gets a
// fresh registry.
func NewPromRecorder(reg *prometheus.Registry) (*PromRecorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &PromRecorder{
		registry: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gqlfire_requests_total",
				Help: "GraphQL requests issued, by result.",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gqlfire_request_duration_seconds",
			Help:    "GraphQL request latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gqlfire_inflight_requests",
			Help: "GraphQL requests currently in flight.",
		}),
	}
	for _, c := range []prometheus.Collector{r.requests, r.duration, r.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Start marks a request as in flight.
func (r *PromRecorder) Start() {
	r.inflight.Inc()
}

// Observe records a finished request and releases its in-flight slot.
func (r *PromRecorder) Observe(o Outcome) {
	r.inflight.Dec()
	r.duration.Observe(o.Duration.Seconds())
	r.requests.WithLabelValues(resultLabel(o)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *PromRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func resultLabel(o Outcome) string {
	switch {
	case o.Err != nil:
		return "transport_error"
	case o.StatusCode < 200 || o.StatusCode > 299:
		return "http_error"
	case len(o.GraphQLErrors) > 0:
		return "graphql_error"
	default:
		return "success"
	}
}
