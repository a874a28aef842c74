package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Prometheus metric names, without namespace.
const (
	MetricRequestsTotal          = "requests_total"
	MetricRequestDurationSeconds = "request_duration_seconds"
	MetricFailuresTotal          = "failures_total"
	MetricResponseBytesTotal     = "response_bytes_total"
	MetricUsers                  = "users"
)

// DefaultNamespace prefixes every exported metric.
const DefaultNamespace = "odooload"

// PrometheusExporter mirrors request results into Prometheus metrics.
// It is a Sink; the swarm web UI mounts Handler under /metrics.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type PrometheusExporter struct {
	registry *prometheus.Registry

	requestsTotal          *prometheus.CounterVec
	requestDurationSeconds *prometheus.HistogramVec
	failuresTotal          *prometheus.CounterVec
	responseBytesTotal     prometheus.Counter
	users                  prometheus.Gauge
}

// PrometheusExporterConfig holds configuration for the Prometheus exporter.
type PrometheusExporterConfig struct {
	// Namespace is the prefix for all metrics.
	// Default: "odooload"
	Namespace string

	// HistogramBuckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	HistogramBuckets []float64
}

// NewPrometheusExporter creates a new Prometheus exporter with its own registry.
func NewPrometheusExporter(config PrometheusExporterConfig) *PrometheusExporter {
	if config.Namespace == "" {
		config.Namespace = DefaultNamespace
	}
	if len(config.HistogramBuckets) == 0 {
		config.HistogramBuckets = prometheus.DefBuckets
	}

	e := &PrometheusExporter{
		// A private registry avoids clashing with the default one in tests.
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      MetricRequestsTotal,
				Help:      "Total number of requests issued by simulated users.",
			},
			[]string{"method", "name", "success"},
		),
		requestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      MetricRequestDurationSeconds,
				Help:      "Duration of requests in seconds.",
				Buckets:   config.HistogramBuckets,
			},
			[]string{"name"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      MetricFailuresTotal,
				Help:      "Total number of failed requests by status code.",
			},
			[]string{"name", "status"},
		),
		responseBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      MetricResponseBytesTotal,
				Help:      "Total bytes received from all responses.",
			},
		),
		users: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      MetricUsers,
				Help:      "Number of running simulated users.",
			},
		),
	}

	e.registry.MustRegister(
		e.requestsTotal,
		e.requestDurationSeconds,
		e.failuresTotal,
		e.responseBytesTotal,
		e.users,
	)
	return e
}

// Record implements Sink.
func (e *PrometheusExporter) Record(result Result) {
	e.requestsTotal.WithLabelValues(result.Method, result.Name, strconv.FormatBool(result.Success)).Inc()
	e.requestDurationSeconds.WithLabelValues(result.Name).Observe(result.Latency.Seconds())
	e.responseBytesTotal.Add(float64(result.ResponseSize))
	if !result.Success {
		e.failuresTotal.WithLabelValues(result.Name, strconv.Itoa(result.StatusCode)).Inc()
	}
}

// SetUsers updates the running users gauge.
func (e *PrometheusExporter) SetUsers(n int) {
	e.users.Set(float64(n))
}

// Handler returns the HTTP handler serving the exporter's registry.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry (for testing).
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}

// Gather collects all metrics from the registry (for testing).
func (e *PrometheusExporter) Gather() ([]*dto.MetricFamily, error) {
	return e.registry.Gather()
}
