package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
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

	// AuthzDecisions counts gate outcomes per guard.
	AuthzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization gate decisions by check and outcome.",
		},
		[]string{"check", "outcome"},
	)

	// MembershipMutations counts membership mutations by operation and result.
	MembershipMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_mutations_total",
			Help: "Membership mutations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// CredentialsIssued counts session credentials by the reason they were minted.
	CredentialsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_credentials_issued_total",
			Help: "Session credentials issued by reason.",
		},
		[]string{"reason"},
	)

	storeReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "store_ready",
		Help: "1 when the last readiness check reached the store.",
	})

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Orbit identity API build information.",
		},
		[]string{"version"},
	)

	registerOnce sync.Once
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init(version string) {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			AuthzDecisions, MembershipMutations, CredentialsIssued, storeReady, buildInfo,
		)
	})
	buildInfo.WithLabelValues(version).Set(1)
}

// SetReady records the outcome of a readiness check.
func SetReady(ok bool) {
	if ok {
		storeReady.Set(1)
		return
	}
	storeReady.Set(0)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records in-flight, count and latency per canonical route.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses identifiers in known routes so label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return path
	}
	switch parts[1] {
	case "projects":
		parts[2] = ":id"
		if len(parts) == 5 && parts[3] == "members" {
			parts[4] = ":identity_id"
		}
	case "company":
		if len(parts) == 4 && parts[2] == "members" {
			parts[3] = ":identity_id"
		}
	case "admin":
		if len(parts) >= 4 && parts[2] == "identities" {
			parts[3] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

// Outcome converts an error into a short metric label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
