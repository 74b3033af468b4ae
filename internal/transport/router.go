package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/internal/config"
	"github.com/meridianops/custos/internal/definition"
	"github.com/meridianops/custos/internal/export"
	"github.com/meridianops/custos/internal/ledger"
	"github.com/meridianops/custos/internal/mission"
	"github.com/meridianops/custos/internal/observability"
	"github.com/meridianops/custos/internal/probe"
	"github.com/meridianops/custos/internal/workflow"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Metrics      *observability.Metrics
	Registry     *definition.Registry
	Machine      *workflow.Machine
	Missions     *mission.Service
	Ledger       *ledger.Ledger
	Exporter     *export.Exporter
	Runner       *probe.Runner
	Probes       probe.Store
	Trail        *audit.Trail
	Authenticate func(http.Handler) http.Handler
	Ready        http.HandlerFunc
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware)

	// Public routes — bypass authentication.
	r.Get("/healthz", observability.HandleHealth())
	if deps.Ready != nil {
		r.Get("/readyz", deps.Ready)
	}
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	// Authenticated routes — full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Post("/api/workflow-definitions", handlePublishDefinition(deps.Registry, deps.Metrics))
		r.Get("/api/workflow-definitions", handleListDefinitions(deps.Registry))
		r.Get("/api/workflow-definitions/{definitionId}", handleGetDefinition(deps.Registry))

		r.Post("/api/missions", handleCreateMission(deps.Missions, deps.Metrics))
		r.Get("/api/missions", handleListMissions(deps.Missions))
		r.Get("/api/missions/{missionId}", handleGetMission(deps.Missions))

		r.Get("/api/missions/{missionId}/workflow", handleWorkflowState(deps.Machine))
		r.Post("/api/missions/{missionId}/transition", handleTransition(deps.Machine, deps.Metrics))
		r.Get("/api/missions/{missionId}/timeline", handleTimeline(deps.Machine))

		r.Post("/api/missions/{missionId}/tasks", handleCreateTask(deps.Missions))
		r.Get("/api/missions/{missionId}/tasks", handleListTasks(deps.Missions))

		r.Post("/api/missions/{missionId}/evidence", handleAppendEvidence(deps.Ledger, deps.Metrics))
		r.Get("/api/missions/{missionId}/evidence", handleListEvidence(deps.Ledger))

		r.Get("/api/missions/{missionId}/export", handleExportMission(deps.Exporter, deps.Metrics))

		r.Get("/api/audit", handleQueryAudit(deps.Trail))

		r.Get("/api/probes", handleListProbes(deps.Probes))
		r.Post("/api/probes/{probeId}/run", handleRunProbe(deps.Runner))
		r.Get("/api/probes/{probeId}/runs", handleProbeRuns(deps.Runner))
		r.Get("/api/telemetry/recent", handleRecentTelemetry(deps.Runner))
	})

	return r
}
