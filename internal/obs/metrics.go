package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics.
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
)

// Access-control metrics.
var (
	tenantHandles = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tenant_handles_open",
		Help: "Live per-tenant connection handles.",
	})

	tenantResolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_resolves_total",
			Help: "Tenant handle resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	tenantConnectFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tenant_connect_failures_total",
		Help: "Failed tenant connection establishment attempts.",
	})

	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Authentication failures by reason.",
		},
		[]string{"reason"},
	)
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		tenantHandles, tenantResolvesTotal, tenantConnectFailures, authFailuresTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// TenantHandleOpened records a newly established tenant handle.
func TenantHandleOpened() { tenantHandles.Inc() }

// TenantHandleClosed records an evicted or shut-down tenant handle.
func TenantHandleClosed() { tenantHandles.Dec() }

// TenantResolve records a resolution outcome ("hit", "established", "not_found",
// "suspended", "connect_failed").
func TenantResolve(outcome string) { tenantResolvesTotal.WithLabelValues(outcome).Inc() }

// TenantConnectFailure records one failed establishment attempt.
func TenantConnectFailure() { tenantConnectFailures.Inc() }

// AuthFailure records a rejected authentication by reason ("missing_token",
// "invalid_token", "revoked").
func AuthFailure(reason string) { authFailuresTotal.WithLabelValues(reason).Inc() }

// CanonicalPath collapses per-user path segments so metric label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	// /v1/users/<id>/features/<key>
	if len(parts) >= 4 && parts[1] == "v1" && parts[2] == "users" {
		parts[3] = ":id"
		if len(parts) == 6 && parts[4] == "features" {
			parts[5] = ":key"
		}
		return strings.Join(parts, "/")
	}
	return path
}

// Instrument wraps a handler with request counting and latency measurement.
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

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
