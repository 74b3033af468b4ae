package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianops/custos/internal/observability"
	"github.com/meridianops/custos/internal/workflow"
	"github.com/meridianops/custos/model"
)

func handleWorkflowState(machine *workflow.Machine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		missionID := chi.URLParam(r, "missionId")

		state, err := machine.State(r.Context(), rctx, missionID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, state)
	}
}

func handleTransition(machine *workflow.Machine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		missionID := chi.URLParam(r, "missionId")

		var body struct {
			ToState string `json:"toState"`
			Notes   string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteBadRequest(w, "invalid JSON body")
			return
		}
		if body.ToState == "" {
			WriteBadRequest(w, "toState is required")
			return
		}

		inst, rec, err := machine.Transition(r.Context(), rctx, missionID, body.ToState, body.Notes)
		if err != nil {
			if metrics != nil {
				switch {
				case model.IsCode(err, model.ErrConflict):
					metrics.RecordTransition("conflict")
					metrics.RecordTransitionConflict()
				case model.IsCode(err, model.ErrTransitionNotAllowed):
					metrics.RecordTransition("denied")
				default:
					metrics.RecordTransition("error")
				}
			}
			WriteError(w, err)
			return
		}

		if metrics != nil {
			metrics.RecordTransition("committed")
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"instance":   inst,
			"transition": rec,
		})
	}
}

func handleTimeline(machine *workflow.Machine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		missionID := chi.URLParam(r, "missionId")

		recs, err := machine.History(r.Context(), missionID)
		if err != nil {
			WriteError(w, err)
			return
		}
		if recs == nil {
			recs = []model.TransitionRecord{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": recs})
	}
}
