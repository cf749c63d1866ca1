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

// Session domain metrics.
var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	permissionSyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_permission_syncs_total",
			Help: "Permission matrix syncs by outcome.",
		},
		[]string{"outcome"},
	)

	activeImpersonations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portal_active_impersonations",
		Help: "Sessions currently running under an impersonated identity.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		loginsTotal,
		permissionSyncsTotal,
		activeImpersonations,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin records a login attempt outcome ("success" or "failure").
func ObserveLogin(outcome string) {
	loginsTotal.WithLabelValues(outcome).Inc()
}

// ObservePermissionSync records a matrix sync outcome ("success" or "failure").
func ObservePermissionSync(outcome string) {
	permissionSyncsTotal.WithLabelValues(outcome).Inc()
}

// ImpersonationStarted bumps the active impersonation gauge.
func ImpersonationStarted() { activeImpersonations.Inc() }

// ImpersonationStopped decrements the active impersonation gauge.
func ImpersonationStopped() { activeImpersonations.Dec() }

// CanonicalPath collapses per-target path segments so metric label
// cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	const impersonatePrefix = "/v1/session/impersonate/"
	if rest, ok := strings.CutPrefix(path, impersonatePrefix); ok {
		if rest != "" && rest != "stop" && !strings.Contains(rest, "/") {
			return impersonatePrefix + ":id"
		}
	}
	return path
}

// Instrument wraps a handler with request count, latency and in-flight
// tracking.
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

// statusWriter captures the response code written by downstream handlers.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
