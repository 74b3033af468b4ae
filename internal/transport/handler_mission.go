package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridianops/custos/internal/mission"
	"github.com/meridianops/custos/internal/observability"
	"github.com/meridianops/custos/model"
)

func handleCreateMission(missions *mission.Service, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var body struct {
			Name         string `json:"name"`
			Description  string `json:"description"`
			DefinitionID string `json:"definitionId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteBadRequest(w, "invalid JSON body")
			return
		}

		m, inst, err := missions.CreateMission(r.Context(), rctx, body.Name, body.Description, body.DefinitionID)
		if err != nil {
			WriteError(w, err)
			return
		}

		if metrics != nil {
			metrics.RecordInstanceCreated(inst.DefinitionID)
		}
		WriteJSON(w, http.StatusCreated, map[string]any{
			"mission":  m,
			"instance": inst,
		})
	}
}

func handleGetMission(missions *mission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := missions.GetMission(r.Context(), chi.URLParam(r, "missionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, m)
	}
}

func handleListMissions(missions *mission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		out, err := missions.ListMissions(r.Context(), rctx.OrgID)
		if err != nil {
			WriteError(w, err)
			return
		}
		if out == nil {
			out = []model.Mission{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": out})
	}
}

func handleCreateTask(missions *mission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		missionID := chi.URLParam(r, "missionId")

		var body struct {
			Title    string `json:"title"`
			Priority string `json:"priority"`
			DueDate  string `json:"dueDate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteBadRequest(w, "invalid JSON body")
			return
		}

		var due *time.Time
		if body.DueDate != "" {
			t, err := time.Parse(time.RFC3339, body.DueDate)
			if err != nil {
				WriteBadRequest(w, "dueDate must be RFC 3339")
				return
			}
			due = &t
		}

		task, err := missions.CreateTask(r.Context(), rctx, missionID, body.Title, body.Priority, due)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, task)
	}
}

func handleListTasks(missions *mission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := missions.TasksByMission(r.Context(), chi.URLParam(r, "missionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		if tasks == nil {
			tasks = []model.Task{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": tasks})
	}
}
