package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianops/custos/internal/definition"
	"github.com/meridianops/custos/internal/observability"
	"github.com/meridianops/custos/model"
)

func handlePublishDefinition(registry *definition.Registry, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var def model.WorkflowDefinition
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			WriteBadRequest(w, "invalid JSON body")
			return
		}

		published, err := registry.Publish(r.Context(), rctx, def)
		if err != nil {
			WriteError(w, err)
			return
		}

		if metrics != nil {
			metrics.RecordDefinitionPublished()
			metrics.SetDefinitionsLoaded(float64(registry.Len()))
		}
		WriteJSON(w, http.StatusCreated, published)
	}
}

func handleGetDefinition(registry *definition.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, err := registry.Get(r.Context(), chi.URLParam(r, "definitionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, def)
	}
}

func handleListDefinitions(registry *definition.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		defs, err := registry.List(r.Context(), rctx.OrgID)
		if err != nil {
			WriteError(w, err)
			return
		}
		if defs == nil {
			defs = []model.WorkflowDefinition{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": defs})
	}
}
