// Package export assembles signed-off evidence bundles for external review.
package export

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/internal/ledger"
	"github.com/meridianops/custos/internal/mission"
	"github.com/meridianops/custos/model"
)

// TimelineSource yields a mission's transition history. Satisfied by the
// workflow machine.
type TimelineSource interface {
	History(ctx context.Context, missionID string) ([]model.TransitionRecord, error)
}

// MissionBundle is the mission summary embedded in a bundle.
type MissionBundle struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// TimelineEntry is one workflow step in a bundle.
type TimelineEntry struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp"`
	Notes     string `json:"notes,omitempty"`
}

// EvidenceEntry is one evidence item in a bundle. The hash travels with the
// content so reviewers can re-derive and compare it offline.
type EvidenceEntry struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Type      string         `json:"type"`
	Hash      string         `json:"hash"`
	CreatedAt string         `json:"createdAt"`
	Content   map[string]any `json:"content"`
}

// Bundle is the full export document. The field set and ordering semantics
// are a compatibility surface for downstream audit tooling: timeline and
// evidence appear in commit order, timestamps in RFC 3339 UTC.
type Bundle struct {
	ExportedAt       string              `json:"exportedAt"`
	Mission          MissionBundle       `json:"mission"`
	WorkflowTimeline []TimelineEntry     `json:"workflowTimeline"`
	Tasks            []model.TaskSummary `json:"tasks"`
	Evidence         []EvidenceEntry     `json:"evidence"`
}

// Exporter builds evidence bundles.
type Exporter struct {
	missions *mission.Service
	ledger   *ledger.Ledger
	timeline TimelineSource
	trail    *audit.Trail
	log      *zap.Logger
}

// NewExporter creates an Exporter.
func NewExporter(missions *mission.Service, lg *ledger.Ledger, timeline TimelineSource, trail *audit.Trail, log *zap.Logger) *Exporter {
	return &Exporter{missions: missions, ledger: lg, timeline: timeline, trail: trail, log: log}
}

// ExportMission assembles the bundle for one mission and records an EXPORT
// audit entry. The export is a read plus one audit write; it never mutates
// mission, workflow, or evidence state.
func (e *Exporter) ExportMission(ctx context.Context, rctx *model.RequestContext, missionID string) (Bundle, error) {
	m, err := e.missions.GetMission(ctx, missionID)
	if err != nil {
		return Bundle{}, err
	}

	recs, err := e.timeline.History(ctx, missionID)
	if err != nil {
		return Bundle{}, err
	}

	tasks, err := e.missions.TasksByMission(ctx, missionID)
	if err != nil {
		return Bundle{}, err
	}

	items, err := e.ledger.ListByMission(ctx, missionID)
	if err != nil {
		return Bundle{}, err
	}

	bundle := Bundle{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Mission: MissionBundle{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			Status:      m.Status,
		},
		WorkflowTimeline: make([]TimelineEntry, 0, len(recs)),
		Tasks:            make([]model.TaskSummary, 0, len(tasks)),
		Evidence:         make([]EvidenceEntry, 0, len(items)),
	}

	for _, rec := range recs {
		bundle.WorkflowTimeline = append(bundle.WorkflowTimeline, TimelineEntry{
			From:      rec.FromState,
			To:        rec.ToState,
			Timestamp: rec.Timestamp.UTC().Format(time.RFC3339),
			Notes:     rec.Notes,
		})
	}
	for _, t := range tasks {
		bundle.Tasks = append(bundle.Tasks, model.TaskSummary{
			ID: t.ID, Title: t.Title, Status: t.Status, Priority: t.Priority,
		})
	}
	for _, item := range items {
		bundle.Evidence = append(bundle.Evidence, EvidenceEntry{
			ID:        item.ID,
			Title:     item.Title,
			Type:      item.Type,
			Hash:      item.ContentHash,
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
			Content:   item.Content,
		})
	}

	if _, err := e.trail.Record(ctx, rctx.ActorID, model.AuditActionExport, "mission", missionID, map[string]any{
		"evidence_count":   len(bundle.Evidence),
		"transition_count": len(bundle.WorkflowTimeline),
	}); err != nil {
		return Bundle{}, err
	}

	e.log.Info("mission exported",
		zap.String("mission_id", missionID),
		zap.String("actor_id", rctx.ActorID),
		zap.Int("evidence_count", len(bundle.Evidence)),
	)
	return bundle, nil
}
