package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	bodySizeBuckets     = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Workflow metrics
	TransitionsTotal      *prometheus.CounterVec
	TransitionConflicts   prometheus.Counter
	InstancesCreatedTotal *prometheus.CounterVec
	DefinitionsPublished  prometheus.Counter
	DefinitionsLoaded     prometheus.Gauge

	// Ledger metrics
	EvidenceAppendsTotal *prometheus.CounterVec
	ExportsTotal         prometheus.Counter

	// Probe metrics
	ProbeRunsTotal   *prometheus.CounterVec
	ProbeRunDuration *prometheus.HistogramVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custos_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custos_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_workflow_transitions_total",
			Help: "Total number of workflow transition attempts by outcome.",
		}, []string{"outcome"}),
		TransitionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "custos_workflow_transition_conflicts_total",
			Help: "Total number of transitions lost to optimistic lock races.",
		}),
		InstancesCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_workflow_instances_created_total",
			Help: "Total number of workflow instances created.",
		}, []string{"definition_id"}),
		DefinitionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "custos_workflow_definitions_published_total",
			Help: "Total number of workflow definitions published.",
		}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "custos_workflow_definitions_loaded",
			Help: "Number of workflow definitions in the registry snapshot.",
		}),

		EvidenceAppendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_evidence_appends_total",
			Help: "Total number of evidence items appended.",
		}, []string{"type"}),
		ExportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "custos_exports_total",
			Help: "Total number of mission evidence exports.",
		}),

		ProbeRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_probe_runs_total",
			Help: "Total number of probe runs by type and status.",
		}, []string{"type", "status"}),
		ProbeRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custos_probe_run_duration_seconds",
			Help:    "Probe run duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSizeBytes,
		m.TransitionsTotal,
		m.TransitionConflicts,
		m.InstancesCreatedTotal,
		m.DefinitionsPublished,
		m.DefinitionsLoaded,
		m.EvidenceAppendsTotal,
		m.ExportsTotal,
		m.ProbeRunsTotal,
		m.ProbeRunDuration,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordTransition records one transition attempt outcome
// (committed, conflict, denied, error).
func (m *Metrics) RecordTransition(outcome string) {
	m.TransitionsTotal.WithLabelValues(outcome).Inc()
}

// RecordTransitionConflict records a lost optimistic lock race.
func (m *Metrics) RecordTransitionConflict() {
	m.TransitionConflicts.Inc()
}

// RecordInstanceCreated records a new workflow instance.
func (m *Metrics) RecordInstanceCreated(definitionID string) {
	m.InstancesCreatedTotal.WithLabelValues(definitionID).Inc()
}

// RecordDefinitionPublished records a definition publish.
func (m *Metrics) RecordDefinitionPublished() {
	m.DefinitionsPublished.Inc()
}

// SetDefinitionsLoaded sets the registry snapshot size.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	m.DefinitionsLoaded.Set(count)
}

// RecordEvidenceAppend records an evidence append by type.
func (m *Metrics) RecordEvidenceAppend(itemType string) {
	m.EvidenceAppendsTotal.WithLabelValues(itemType).Inc()
}

// RecordExport records a mission export.
func (m *Metrics) RecordExport() {
	m.ExportsTotal.Inc()
}

// RecordProbeRun records a completed probe run.
func (m *Metrics) RecordProbeRun(probeType, status string, duration time.Duration) {
	m.ProbeRunsTotal.WithLabelValues(probeType, status).Inc()
	m.ProbeRunDuration.WithLabelValues(probeType).Observe(duration.Seconds())
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
