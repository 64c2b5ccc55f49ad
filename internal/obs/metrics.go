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

	grantsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "access_grants_created_total",
		Help: "Role grants created.",
	})

	permissionsMaterializedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "access_permissions_materialized_total",
		Help: "Permission records materialized from the catalog.",
	})

	bulkRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_bulk_rows_total",
			Help: "Bulk-processed items by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		grantsCreatedTotal,
		permissionsMaterializedTotal,
		bulkRowsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountGrantCreated records one created grant.
func CountGrantCreated() { grantsCreatedTotal.Inc() }

// CountPermissionsMaterialized records n newly materialized permissions.
func CountPermissionsMaterialized(n int) {
	if n > 0 {
		permissionsMaterializedTotal.Add(float64(n))
	}
}

// CountBulkRow records one bulk item outcome: created, skipped or failed.
func CountBulkRow(outcome string) { bulkRowsTotal.WithLabelValues(outcome).Inc() }

// CanonicalPath collapses identifier segments so metrics stay low-cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) >= 4 && parts[1] == "v1" && parts[2] == "assignments":
		switch parts[3] {
		case "bulk", "import", "backfill":
			return path
		}
		parts[3] = ":id"
		return strings.Join(parts, "/")
	case len(parts) >= 4 && parts[1] == "v1" && parts[2] == "users":
		parts[3] = ":id"
		return strings.Join(parts, "/")
	}
	return path
}

// Instrument wraps a handler with RPS, latency and in-flight metrics.
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

// statusWriter captures the response code for labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
