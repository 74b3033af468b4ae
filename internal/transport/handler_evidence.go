package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianops/custos/internal/ledger"
	"github.com/meridianops/custos/internal/observability"
	"github.com/meridianops/custos/model"
)

func handleAppendEvidence(lg *ledger.Ledger, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		missionID := chi.URLParam(r, "missionId")

		var body struct {
			Type        string         `json:"type"`
			Title       string         `json:"title"`
			Content     map[string]any `json:"content"`
			SourceRunID string         `json:"sourceRunId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteBadRequest(w, "invalid JSON body")
			return
		}

		item, err := lg.Append(r.Context(), rctx, missionID, body.Type, body.Title, body.Content, body.SourceRunID)
		if err != nil {
			WriteError(w, err)
			return
		}

		if metrics != nil {
			metrics.RecordEvidenceAppend(item.Type)
		}
		WriteJSON(w, http.StatusCreated, item)
	}
}

func handleListEvidence(lg *ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := lg.ListByMission(r.Context(), chi.URLParam(r, "missionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		if items == nil {
			items = []model.EvidenceItem{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": items})
	}
}
