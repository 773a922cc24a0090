package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	compositions        *prometheus.CounterVec
	compositionDuration prometheus.Histogram
	composedLayers      prometheus.Histogram
}

// New creates a fresh Metrics registry with HTTP and layer composition metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satalertas",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by the dashboard API",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "satalertas",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by the dashboard API",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	compositions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satalertas",
		Name:      "layer_compositions_total",
		Help:      "Group layer compositions by outcome",
	}, []string{"outcome"})

	compositionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "satalertas",
		Name:      "layer_composition_duration_seconds",
		Help:      "Time spent composing a group's layer tree",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	composedLayers := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "satalertas",
		Name:      "composed_layers",
		Help:      "Top-level layers returned per composition",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		compositions,
		compositionDuration,
		composedLayers,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		compositions:        compositions,
		compositionDuration: compositionDuration,
		composedLayers:      composedLayers,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveComposition records one composition. layers is ignored for failed compositions.
func (m *Metrics) ObserveComposition(err error, layers int, duration time.Duration) {
	if m == nil {
		return
	}
	if err != nil {
		m.compositions.WithLabelValues("error").Inc()
		return
	}
	m.compositions.WithLabelValues("ok").Inc()
	m.compositionDuration.Observe(duration.Seconds())
	m.composedLayers.Observe(float64(layers))
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
