package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Accepted workflow status transitions.",
		},
		[]string{"entity", "status"},
	)

	ncrsGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workflow_ncrs_generated_total",
		Help: "Non-conformities created by the auto-generator.",
	})

	scoreRecomputeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workflow_score_recompute_failures_total",
		Help: "Best-effort score recomputations that failed after a response write.",
	})
)

// Init registers the service metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		transitionsTotal, ncrsGeneratedTotal, scoreRecomputeFailures,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTransition counts one accepted status transition.
func ObserveTransition(entity, status string) {
	transitionsTotal.WithLabelValues(entity, status).Inc()
}

// ObserveNCRsGenerated counts auto-generated non-conformities.
func ObserveNCRsGenerated(n int) {
	if n > 0 {
		ncrsGeneratedTotal.Add(float64(n))
	}
}

// ObserveRecomputeFailure counts one swallowed score-recompute failure.
func ObserveRecomputeFailure() {
	scoreRecomputeFailures.Inc()
}

// Instrument measures RPS, latency and in-flight requests for a handler.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses entity identifiers to placeholders so metric label
// cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	collapsible := map[string]struct{}{
		"assessments":        {},
		"non-conformities":   {},
		"corrective-actions": {},
	}
	for i := 0; i < len(parts)-1; i++ {
		if _, ok := collapsible[parts[i]]; ok {
			parts[i+1] = ":id"
			i++
		}
	}
	return "/" + strings.Join(parts, "/")
}

// statusWriter records the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
