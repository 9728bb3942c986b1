package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API metrics, recorded by MetricsMiddleware.
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "muninn_api_request_duration_seconds",
		Help:    "HTTP request latency by method, route pattern and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_api_requests_total",
		Help: "HTTP requests served, by method, route pattern and status.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "muninn_api_active_connections",
		Help: "HTTP requests currently in flight.",
	})
)

// Log generation metrics, recorded by the daily log service and the
// clock resolver.
var (
	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "muninn_log_generation_duration_seconds",
		Help:    "Wall time to generate a full broadcast day.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	GenerationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_log_generations_total",
		Help: "Daily log generations by outcome.",
	}, []string{"status"})

	GenerationAdvisories = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_generation_advisories_total",
		Help: "Advisories raised during generation, by code.",
	}, []string{"code"})

	ElementsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_elements_resolved_total",
		Help: "Log elements filled with real content, by type.",
	}, []string{"type"})

	ElementsOmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_elements_omitted_total",
		Help: "Clock positions that found no content, by requested type.",
	}, []string{"type"})
)

// Voice-track metrics.
var (
	VoiceTrackFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_voicetrack_fallbacks_total",
		Help: "Break resolutions that reached back to an earlier day's recording.",
	})
)

// Publish metrics, recorded by the publisher.
var (
	PublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_publish_total",
		Help: "Schedule deliveries to the automation system, by window and outcome.",
	}, []string{"window", "status"})
)

// Cache metrics, recorded by the Redis cache layer.
var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_cache_hits_total",
		Help: "Cache lookups answered from Redis.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_cache_misses_total",
		Help: "Cache lookups that fell through to the database.",
	})
)

// Infrastructure metrics, sampled by the server and the GORM callbacks.
var (
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "muninn_database_connections_active",
		Help: "Open connections in the database pool.",
	})

	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "muninn_database_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_database_errors_total",
		Help: "Database operation failures by operation and kind.",
	}, []string{"operation", "kind"})
)

// Leader election metrics for multi-instance deployments.
var (
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "muninn_leader_election_status",
		Help: "Whether this instance currently holds leadership (1) or not (0).",
	}, []string{"instance"})

	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_leader_election_changes_total",
		Help: "Leadership transitions by instance and direction.",
	}, []string{"instance", "transition"})
)

// Nightly auto-generation metrics.
var (
	AutogenRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_autogen_runs_total",
		Help: "Nightly auto-generation passes by outcome.",
	}, []string{"outcome"})

	AutogenLogsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_autogen_logs_generated_total",
		Help: "Daily logs created by the nightly auto-generation worker.",
	})
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
