package export

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/internal/ledger"
	"github.com/meridianops/custos/internal/mission"
	"github.com/meridianops/custos/model"
)

// stubCreator satisfies the mission service's instance dependency.
type stubCreator struct{}

func (stubCreator) CreateInstance(_ context.Context, definitionID, missionID string) (model.WorkflowInstance, error) {
	return model.WorkflowInstance{ID: "inst-1", DefinitionID: definitionID, MissionID: missionID, CurrentState: "open", Version: 1}, nil
}

// stubTimeline returns a fixed transition history.
type stubTimeline struct {
	recs []model.TransitionRecord
}

func (s *stubTimeline) History(_ context.Context, _ string) ([]model.TransitionRecord, error) {
	return s.recs, nil
}

func testRctx() *model.RequestContext {
	return &model.RequestContext{ActorID: "user-alice", OrgID: "org-1"}
}

func TestExporter_bundle(t *testing.T) {
	ctx := context.Background()
	auditStore := audit.NewMemoryStore()
	trail := audit.NewTrail(auditStore)
	log := zap.NewNop()

	missionStore := mission.NewMemoryStore()
	missions := mission.NewService(missionStore, trail, stubCreator{}, log)
	evidence := ledger.NewLedger(ledger.NewMemoryStore(auditStore), missionStore, log)

	m, _, err := missions.CreateMission(ctx, testRctx(), "Recon sweep", "Initial recon", "def-review")
	if err != nil {
		t.Fatalf("CreateMission() error = %v", err)
	}
	if _, err := missions.CreateTask(ctx, testRctx(), m.ID, "Map subnet", "high", nil); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	item1, err := evidence.Append(ctx, testRctx(), m.ID, "scan_result", "Port scan", map[string]any{"host": "10.0.0.1"}, "")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	item2, err := evidence.Append(ctx, testRctx(), m.ID, "note", "Analyst note", map[string]any{"text": "looks clean"}, "")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	ts := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	timeline := &stubTimeline{recs: []model.TransitionRecord{
		{FromState: "open", ToState: "review", Timestamp: ts, Notes: "ready"},
		{FromState: "review", ToState: "closed", Timestamp: ts.Add(time.Hour)},
	}}

	exporter := NewExporter(missions, evidence, timeline, trail, log)
	bundle, err := exporter.ExportMission(ctx, testRctx(), m.ID)
	if err != nil {
		t.Fatalf("ExportMission() error = %v", err)
	}

	if bundle.Mission.ID != m.ID || bundle.Mission.Name != "Recon sweep" {
		t.Errorf("mission = %+v", bundle.Mission)
	}
	if _, err := time.Parse(time.RFC3339, bundle.ExportedAt); err != nil {
		t.Errorf("exportedAt %q is not RFC 3339: %v", bundle.ExportedAt, err)
	}

	if len(bundle.WorkflowTimeline) != 2 {
		t.Fatalf("timeline = %d entries, want 2", len(bundle.WorkflowTimeline))
	}
	if bundle.WorkflowTimeline[0].To != "review" || bundle.WorkflowTimeline[1].To != "closed" {
		t.Errorf("timeline order = %+v", bundle.WorkflowTimeline)
	}
	if bundle.WorkflowTimeline[0].Timestamp != "2026-08-01T10:00:00Z" {
		t.Errorf("timestamp = %q", bundle.WorkflowTimeline[0].Timestamp)
	}

	if len(bundle.Tasks) != 1 || bundle.Tasks[0].Title != "Map subnet" {
		t.Errorf("tasks = %+v", bundle.Tasks)
	}

	if len(bundle.Evidence) != 2 {
		t.Fatalf("evidence = %d entries, want 2", len(bundle.Evidence))
	}
	if bundle.Evidence[0].ID != item1.ID || bundle.Evidence[1].ID != item2.ID {
		t.Errorf("evidence not in commit order")
	}
	if bundle.Evidence[0].Hash != item1.ContentHash {
		t.Errorf("evidence hash = %q, want %q", bundle.Evidence[0].Hash, item1.ContentHash)
	}

	entries, _ := auditStore.Query(ctx, model.AuditFilter{Action: model.AuditActionExport}, model.AuditWindow{Limit: 10})
	if len(entries) != 1 {
		t.Fatalf("EXPORT audit entries = %d, want 1", len(entries))
	}
	if entries[0].Details["evidence_count"] != 2 {
		t.Errorf("audit details = %v", entries[0].Details)
	}
}

func TestExporter_empty_sections_render_as_arrays(t *testing.T) {
	ctx := context.Background()
	trail := audit.NewTrail(audit.NewMemoryStore())
	log := zap.NewNop()

	missionStore := mission.NewMemoryStore()
	missions := mission.NewService(missionStore, trail, stubCreator{}, log)
	evidence := ledger.NewLedger(ledger.NewMemoryStore(audit.NewMemoryStore()), missionStore, log)

	m, _, err := missions.CreateMission(ctx, testRctx(), "Quiet mission", "", "def-review")
	if err != nil {
		t.Fatalf("CreateMission() error = %v", err)
	}

	exporter := NewExporter(missions, evidence, &stubTimeline{}, trail, log)
	bundle, err := exporter.ExportMission(ctx, testRctx(), m.ID)
	if err != nil {
		t.Fatalf("ExportMission() error = %v", err)
	}

	if bundle.WorkflowTimeline == nil || bundle.Tasks == nil || bundle.Evidence == nil {
		t.Error("empty bundle sections must be empty slices, not nil")
	}
}

func TestExporter_unknown_mission(t *testing.T) {
	trail := audit.NewTrail(audit.NewMemoryStore())
	log := zap.NewNop()
	missionStore := mission.NewMemoryStore()
	missions := mission.NewService(missionStore, trail, stubCreator{}, log)
	evidence := ledger.NewLedger(ledger.NewMemoryStore(audit.NewMemoryStore()), missionStore, log)

	exporter := NewExporter(missions, evidence, &stubTimeline{}, trail, log)
	_, err := exporter.ExportMission(context.Background(), testRctx(), "nope")
	if !model.IsCode(err, model.ErrNotFound) {
		t.Fatalf("ExportMission() error = %v, want NOT_FOUND", err)
	}
}
