package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics are the Prometheus request metrics exposed on /metrics
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	uploads  *prometheus.HistogramVec
	gatherer prometheus.Gatherer
}

// NewHTTPMetrics registers the HTTP metrics on reg. reg must also be a
// Gatherer (a *prometheus.Registry is).
func NewHTTPMetrics(reg *prometheus.Registry) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deepguard",
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "handler", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "deepguard",
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 16),
			},
			[]string{"method", "handler"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "deepguard",
				Subsystem: "api",
				Name:      "http_requests_in_flight",
				Help:      "Requests currently being served",
			},
		),
		uploads: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "deepguard",
				Subsystem: "api",
				Name:      "upload_bytes",
				Help:      "Size of uploaded media files",
				Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
			},
			[]string{"field"},
		),
		gatherer: reg,
	}

	reg.MustRegister(m.requests, m.duration, m.inFlight, m.uploads)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *HTTPMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveUpload records the size of one uploaded file
func (m *HTTPMetrics) ObserveUpload(field string, size int64) {
	m.uploads.WithLabelValues(field).Observe(float64(size))
}

// Middleware records count, latency and in-flight requests per route name
func (m *HTTPMetrics) Middleware(handlerName string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.requests.WithLabelValues(r.Method, handlerName, strconv.Itoa(sw.status)).Inc()
		m.duration.WithLabelValues(r.Method, handlerName).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
