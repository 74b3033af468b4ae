package probe

import (
	"context"
	"testing"
	"time"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/internal/ledger"
	"github.com/meridianops/custos/internal/mission"
	"github.com/meridianops/custos/model"
)

func seedMission(t *testing.T, store *mission.MemoryStore, id, status string) {
	t.Helper()
	err := store.CreateMission(context.Background(), model.Mission{
		ID: id, Name: "Mission " + id, Status: status, OrgID: "org-1",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateMission() error = %v", err)
	}
}

func seedTask(t *testing.T, store *mission.MemoryStore, missionID, title string, due time.Time, status string) {
	t.Helper()
	err := store.CreateTask(context.Background(), model.Task{
		ID: "task-" + title, MissionID: missionID, Title: title,
		Status: status, Priority: "high", DueDate: &due,
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
}

func TestSLABreachEvaluator(t *testing.T) {
	store := mission.NewMemoryStore()
	seedMission(t, store, "mission-1", model.MissionStatusActive)
	seedTask(t, store, "mission-1", "overdue", time.Now().UTC().Add(-2*time.Hour), model.TaskStatusPending)
	seedTask(t, store, "mission-1", "done-late", time.Now().UTC().Add(-2*time.Hour), model.TaskStatusCompleted)
	seedTask(t, store, "mission-1", "on-time", time.Now().UTC().Add(24*time.Hour), model.TaskStatusPending)

	eval := &slaBreachEvaluator{missions: store}
	out, err := eval.Evaluate(context.Background(), model.ProbeDefinition{Type: model.ProbeTypeSLABreach})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if out.Status != model.ProbeRunWarning {
		t.Errorf("Status = %q, want warning", out.Status)
	}
	if len(out.Evidence) != 1 {
		t.Fatalf("evidence drafts = %d, want 1 (only the pending overdue task)", len(out.Evidence))
	}
	if out.Evidence[0].MissionID != "mission-1" || out.Evidence[0].Type != "sla_breach" {
		t.Errorf("draft = %+v", out.Evidence[0])
	}
	if len(out.Events) != 1 {
		t.Errorf("telemetry drafts = %d, want 1", len(out.Events))
	}
}

func TestSLABreachEvaluator_grace_period(t *testing.T) {
	store := mission.NewMemoryStore()
	seedMission(t, store, "mission-1", model.MissionStatusActive)
	seedTask(t, store, "mission-1", "just-late", time.Now().UTC().Add(-time.Hour), model.TaskStatusPending)

	eval := &slaBreachEvaluator{missions: store}
	out, err := eval.Evaluate(context.Background(), model.ProbeDefinition{
		Type:   model.ProbeTypeSLABreach,
		Config: map[string]any{"grace_hours": float64(4)},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if out.Status != model.ProbeRunPass {
		t.Errorf("Status = %q, want pass inside the grace window", out.Status)
	}
	if len(out.Evidence) != 0 {
		t.Errorf("evidence drafts = %d, want 0", len(out.Evidence))
	}
}

func TestDataFreshnessEvaluator(t *testing.T) {
	now := time.Now().UTC()
	fresh := now.Add(-time.Hour)
	stale := now.Add(-72 * time.Hour)

	store := mission.NewMemoryStore()
	store.AddDataSource(model.DataSource{ID: "src-1", Name: "siem", LastIngestion: &fresh})
	store.AddDataSource(model.DataSource{ID: "src-2", Name: "edr", LastIngestion: &stale})

	eval := &dataFreshnessEvaluator{missions: store}
	out, err := eval.Evaluate(context.Background(), model.ProbeDefinition{Type: model.ProbeTypeDataFreshness})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if out.Status != model.ProbeRunWarning {
		t.Errorf("Status = %q, want warning for stale source", out.Status)
	}
	if len(out.Events) != 1 || out.Events[0].Severity != "warning" {
		t.Errorf("events = %+v", out.Events)
	}
}

func TestDataFreshnessEvaluator_silent_source_fails(t *testing.T) {
	store := mission.NewMemoryStore()
	store.AddDataSource(model.DataSource{ID: "src-1", Name: "netflow"})

	eval := &dataFreshnessEvaluator{missions: store}
	out, err := eval.Evaluate(context.Background(), model.ProbeDefinition{Type: model.ProbeTypeDataFreshness})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if out.Status != model.ProbeRunFail {
		t.Errorf("Status = %q, want fail for never-ingested source", out.Status)
	}
	if len(out.Events) != 1 || out.Events[0].Severity != "error" {
		t.Errorf("events = %+v", out.Events)
	}
}

func TestDataFreshnessEvaluator_all_fresh(t *testing.T) {
	now := time.Now().UTC()
	store := mission.NewMemoryStore()
	store.AddDataSource(model.DataSource{ID: "src-1", Name: "siem", LastIngestion: &now})

	eval := &dataFreshnessEvaluator{missions: store}
	out, err := eval.Evaluate(context.Background(), model.ProbeDefinition{Type: model.ProbeTypeDataFreshness})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if out.Status != model.ProbeRunPass {
		t.Errorf("Status = %q, want pass", out.Status)
	}
}

func TestCompletenessEvaluator(t *testing.T) {
	ctx := context.Background()
	missionStore := mission.NewMemoryStore()
	seedMission(t, missionStore, "mission-thin", model.MissionStatusActive)
	seedMission(t, missionStore, "mission-full", model.MissionStatusActive)
	seedMission(t, missionStore, "mission-done", model.MissionStatusCompleted)

	evidenceStore := ledger.NewMemoryStore(audit.NewMemoryStore())
	for i := 0; i < 2; i++ {
		err := evidenceStore.Append(ctx, model.EvidenceItem{
			ID: string(rune('a' + i)), MissionID: "mission-full",
			Type: "note", Title: "n", Content: map[string]any{}, CreatedAt: time.Now().UTC(),
		}, audit.NewEntry("system", model.AuditActionEvidence, "evidence", string(rune('a'+i)), nil))
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	eval := &completenessEvaluator{missions: missionStore, evidence: evidenceStore}
	out, err := eval.Evaluate(ctx, model.ProbeDefinition{
		Type: model.ProbeTypeEvidenceCompleteness, OrgID: "org-1",
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if out.Status != model.ProbeRunWarning {
		t.Errorf("Status = %q, want warning", out.Status)
	}
	gaps, _ := out.Result["gaps"].([]map[string]any)
	if len(gaps) != 1 {
		t.Fatalf("gaps = %d, want 1 (completed missions exempt, full missions pass)", len(gaps))
	}
	if gaps[0]["mission_id"] != "mission-thin" {
		t.Errorf("gap = %v", gaps[0])
	}
}
