package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridianops/custos/internal/probe"
	"github.com/meridianops/custos/model"
)

func handleRunProbe(runner *probe.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		run, err := runner.Run(r.Context(), rctx, chi.URLParam(r, "probeId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, run)
	}
}

func handleListProbes(store probe.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		probes, err := store.ListProbes(r.Context(), rctx.OrgID)
		if err != nil {
			WriteError(w, err)
			return
		}
		if probes == nil {
			probes = []model.ProbeDefinition{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": probes})
	}
}

func handleProbeRuns(runner *probe.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(w, r)
		if !ok {
			return
		}

		runs, err := runner.Runs(r.Context(), chi.URLParam(r, "probeId"), limit)
		if err != nil {
			WriteError(w, err)
			return
		}
		if runs == nil {
			runs = []model.ProbeRun{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": runs})
	}
}

func handleRecentTelemetry(runner *probe.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(w, r)
		if !ok {
			return
		}

		events, err := runner.RecentTelemetry(r.Context(), limit)
		if err != nil {
			WriteError(w, err)
			return
		}
		if events == nil {
			events = []model.TelemetryEvent{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": events})
	}
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		WriteBadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}
