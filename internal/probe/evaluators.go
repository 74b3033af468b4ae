package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianops/custos/model"
)

// MissionReader is the read surface evaluators need over missions, tasks,
// and data sources. Satisfied by the mission store.
type MissionReader interface {
	ListMissions(ctx context.Context, orgID string) ([]model.Mission, error)
	OverdueTasks(ctx context.Context, cutoff time.Time) ([]model.Task, error)
	DataSources(ctx context.Context) ([]model.DataSource, error)
}

// EvidenceLister is the read surface the completeness evaluator needs over
// the ledger.
type EvidenceLister interface {
	ListByMission(ctx context.Context, missionID string) ([]model.EvidenceItem, error)
}

// RegisterBuiltins registers the built-in evaluators on a registry.
func RegisterBuiltins(reg *Registry, missions MissionReader, evidence EvidenceLister) {
	reg.Register(&slaBreachEvaluator{missions: missions})
	reg.Register(&dataFreshnessEvaluator{missions: missions})
	reg.Register(&completenessEvaluator{missions: missions, evidence: evidence})
}

// configFloat reads a numeric probe config value. JSON numbers decode as
// float64, so that is the only numeric shape handled.
func configFloat(cfg map[string]any, key string, fallback float64) float64 {
	if v, ok := cfg[key].(float64); ok {
		return v
	}
	return fallback
}

// slaBreachEvaluator flags tasks past their due date. Each breach becomes
// one evidence item on the task's mission, so the breach is on the record
// even after the task is eventually closed.
type slaBreachEvaluator struct {
	missions MissionReader
}

func (e *slaBreachEvaluator) Type() string { return model.ProbeTypeSLABreach }

func (e *slaBreachEvaluator) Evaluate(ctx context.Context, probe model.ProbeDefinition) (Outcome, error) {
	grace := configFloat(probe.Config, "grace_hours", 0)
	cutoff := time.Now().UTC().Add(-time.Duration(grace * float64(time.Hour)))

	overdue, err := e.missions.OverdueTasks(ctx, cutoff)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Status: model.ProbeRunPass,
		Result: map[string]any{"overdue_count": len(overdue)},
	}
	for _, t := range overdue {
		out.Evidence = append(out.Evidence, EvidenceDraft{
			MissionID: t.MissionID,
			Type:      "sla_breach",
			Title:     fmt.Sprintf("SLA breach: %s", t.Title),
			Content: map[string]any{
				"task_id":     t.ID,
				"task_title":  t.Title,
				"priority":    t.Priority,
				"due_date":    t.DueDate.UTC().Format(time.RFC3339),
				"detected_at": time.Now().UTC().Format(time.RFC3339),
			},
		})
		out.Events = append(out.Events, TelemetryDraft{
			Type:     "sla_breach",
			Severity: "warning",
			Message:  fmt.Sprintf("task %q is past its due date", t.Title),
			Data:     map[string]any{"task_id": t.ID, "mission_id": t.MissionID},
		})
	}
	if len(overdue) > 0 {
		out.Status = model.ProbeRunWarning
	}
	return out, nil
}

// dataFreshnessEvaluator flags data sources whose last ingestion is older
// than the configured maximum age. A source that has never ingested fails
// the run outright.
type dataFreshnessEvaluator struct {
	missions MissionReader
}

func (e *dataFreshnessEvaluator) Type() string { return model.ProbeTypeDataFreshness }

func (e *dataFreshnessEvaluator) Evaluate(ctx context.Context, probe model.ProbeDefinition) (Outcome, error) {
	maxAge := configFloat(probe.Config, "max_age_hours", 24)
	threshold := time.Now().UTC().Add(-time.Duration(maxAge * float64(time.Hour)))

	sources, err := e.missions.DataSources(ctx)
	if err != nil {
		return Outcome{}, err
	}

	var stale, never []string
	for _, src := range sources {
		switch {
		case src.LastIngestion == nil:
			never = append(never, src.Name)
		case src.LastIngestion.Before(threshold):
			stale = append(stale, src.Name)
		}
	}

	out := Outcome{
		Status: model.ProbeRunPass,
		Result: map[string]any{
			"checked":        len(sources),
			"stale_sources":  stale,
			"silent_sources": never,
		},
	}
	for _, name := range stale {
		out.Events = append(out.Events, TelemetryDraft{
			Type:     "data_freshness",
			Severity: "warning",
			Message:  fmt.Sprintf("data source %q exceeds max ingestion age", name),
			Data:     map[string]any{"source": name, "max_age_hours": maxAge},
		})
	}
	for _, name := range never {
		out.Events = append(out.Events, TelemetryDraft{
			Type:     "data_freshness",
			Severity: "error",
			Message:  fmt.Sprintf("data source %q has never ingested", name),
			Data:     map[string]any{"source": name},
		})
	}

	switch {
	case len(never) > 0:
		out.Status = model.ProbeRunFail
	case len(stale) > 0:
		out.Status = model.ProbeRunWarning
	}
	return out, nil
}

// completenessEvaluator flags active missions carrying fewer evidence items
// than the configured minimum.
type completenessEvaluator struct {
	missions MissionReader
	evidence EvidenceLister
}

func (e *completenessEvaluator) Type() string { return model.ProbeTypeEvidenceCompleteness }

func (e *completenessEvaluator) Evaluate(ctx context.Context, probe model.ProbeDefinition) (Outcome, error) {
	minItems := int(configFloat(probe.Config, "min_items", 2))

	missions, err := e.missions.ListMissions(ctx, probe.OrgID)
	if err != nil {
		return Outcome{}, err
	}

	var gaps []map[string]any
	for _, m := range missions {
		if m.Status != model.MissionStatusActive {
			continue
		}
		items, err := e.evidence.ListByMission(ctx, m.ID)
		if err != nil {
			return Outcome{}, err
		}
		if len(items) < minItems {
			gaps = append(gaps, map[string]any{
				"mission_id":     m.ID,
				"mission_name":   m.Name,
				"evidence_count": len(items),
			})
		}
	}

	out := Outcome{
		Status: model.ProbeRunPass,
		Result: map[string]any{
			"min_items":          minItems,
			"missions_below_min": len(gaps),
			"gaps":               gaps,
		},
	}
	for _, gap := range gaps {
		out.Events = append(out.Events, TelemetryDraft{
			Type:     "evidence_completeness",
			Severity: "warning",
			Message:  fmt.Sprintf("mission %v is below the evidence minimum", gap["mission_name"]),
			Data:     gap,
		})
	}
	if len(gaps) > 0 {
		out.Status = model.ProbeRunWarning
	}
	return out, nil
}
