// Package metrics provides Prometheus metrics for the dev server.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the dev server.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	ProxyFailures  *prometheus.CounterVec
	ProxyBytesSent prometheus.Counter
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collage_devserver_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "route"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collage_devserver_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "route"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collage_devserver_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collage_devserver_upstream_request_duration_seconds",
			Help:    "Upstream image fetch latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"status_code"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collage_devserver_upstream_responses_total",
			Help: "Total upstream image responses by status code.",
		}, []string{"status_code"}),

		ProxyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collage_devserver_proxy_failures_total",
			Help: "Image proxy failures by kind.",
		}, []string{"kind"}),

		ProxyBytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collage_devserver_proxy_bytes_sent_total",
			Help: "Image bytes relayed to clients.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.ProxyFailures,
		m.ProxyBytesSent,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// RouteLabeler maps request paths onto a bounded set of route labels.
type RouteLabeler struct {
	prefixes []string
}

// NewRouteLabeler returns a labeler for the given route prefixes. A trailing
// slash on a prefix is ignored. Paths matching none of them are labelled
// "static", since everything else is served from disk.
func NewRouteLabeler(prefixes ...string) *RouteLabeler {
	l := &RouteLabeler{}
	for _, p := range prefixes {
		if p = strings.TrimSuffix(p, "/"); p != "" {
			l.prefixes = append(l.prefixes, p)
		}
	}
	return l
}

// Label returns the bounded route label for path.
func (l *RouteLabeler) Label(path string) string {
	for _, prefix := range l.prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "static"
}
