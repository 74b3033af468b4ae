package transport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/model"
)

func handleQueryAudit(trail *audit.Trail) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		q := r.URL.Query()
		filter := model.AuditFilter{
			ActorID:    q.Get("actor_id"),
			Action:     q.Get("action"),
			EntityType: q.Get("entity_type"),
			EntityID:   q.Get("entity_id"),
		}

		var window model.AuditWindow
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				WriteBadRequest(w, "limit must be a positive integer")
				return
			}
			window.Limit = n
		}
		if raw := q.Get("since"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				WriteBadRequest(w, "since must be RFC 3339")
				return
			}
			window.Since = t
		}
		if raw := q.Get("until"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				WriteBadRequest(w, "until must be RFC 3339")
				return
			}
			window.Until = t
		}

		entries, err := trail.Query(r.Context(), filter, window)
		if err != nil {
			WriteError(w, err)
			return
		}
		if entries == nil {
			entries = []model.AuditLogEntry{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": entries})
	}
}
