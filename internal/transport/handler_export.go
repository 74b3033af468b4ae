package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianops/custos/internal/export"
	"github.com/meridianops/custos/internal/observability"
	"github.com/meridianops/custos/model"
)

func handleExportMission(exporter *export.Exporter, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		bundle, err := exporter.ExportMission(r.Context(), rctx, chi.URLParam(r, "missionId"))
		if err != nil {
			WriteError(w, err)
			return
		}

		if metrics != nil {
			metrics.RecordExport()
		}
		WriteJSON(w, http.StatusOK, bundle)
	}
}
