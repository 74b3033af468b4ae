package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/internal/ledger"
	"github.com/meridianops/custos/internal/mission"
	"github.com/meridianops/custos/model"
)

// stubEvaluator returns a canned outcome or error.
type stubEvaluator struct {
	outcome Outcome
	err     error
}

func (s *stubEvaluator) Type() string { return "stub" }

func (s *stubEvaluator) Evaluate(_ context.Context, _ model.ProbeDefinition) (Outcome, error) {
	return s.outcome, s.err
}

func testRctx() *model.RequestContext {
	return &model.RequestContext{ActorID: "user-alice", OrgID: "org-1"}
}

type runnerFixture struct {
	runner     *Runner
	store      *MemoryStore
	sink       *MemorySink
	auditStore *audit.MemoryStore
	evidence   *ledger.MemoryStore
}

func newRunnerFixture(t *testing.T, eval Evaluator) runnerFixture {
	t.Helper()
	log := zap.NewNop()
	auditStore := audit.NewMemoryStore()
	trail := audit.NewTrail(auditStore)

	missionStore := mission.NewMemoryStore()
	seedMission(t, missionStore, "mission-1", model.MissionStatusActive)

	evidenceStore := ledger.NewMemoryStore(auditStore)
	evidences := ledger.NewLedger(evidenceStore, missionStore, log)

	reg := NewRegistry()
	reg.Register(eval)

	store := NewMemoryStore()
	if err := store.CreateProbe(context.Background(), model.ProbeDefinition{
		ID: "probe-1", Name: "Stub probe", Type: "stub", Active: true, OrgID: "org-1",
	}); err != nil {
		t.Fatalf("CreateProbe() error = %v", err)
	}

	sink := NewMemorySink()
	return runnerFixture{
		runner:     NewRunner(store, reg, evidences, sink, trail, nil, log),
		store:      store,
		sink:       sink,
		auditStore: auditStore,
		evidence:   evidenceStore,
	}
}

func TestRunner_Run(t *testing.T) {
	fx := newRunnerFixture(t, &stubEvaluator{outcome: Outcome{
		Status: model.ProbeRunWarning,
		Result: map[string]any{"findings": 1},
		Evidence: []EvidenceDraft{{
			MissionID: "mission-1", Type: "sla_breach", Title: "Late task",
			Content: map[string]any{"task_id": "task-9"},
		}},
		Events: []TelemetryDraft{{
			Type: "sla_breach", Severity: "warning", Message: "task late",
		}},
	}})
	ctx := context.Background()

	run, err := fx.runner.Run(ctx, testRctx(), "probe-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Status != model.ProbeRunWarning {
		t.Errorf("Status = %q, want warning", run.Status)
	}
	if run.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}
	if run.Result["findings"] != 1 {
		t.Errorf("Result = %v", run.Result)
	}

	// The run is persisted in its completed form.
	runs, _ := fx.store.RunsByProbe(ctx, "probe-1", 10)
	if len(runs) != 1 || runs[0].Status != model.ProbeRunWarning {
		t.Errorf("persisted runs = %+v", runs)
	}

	// Evidence carries the run ID as its source.
	items, _ := fx.evidence.ListByMission(ctx, "mission-1")
	if len(items) != 1 {
		t.Fatalf("evidence items = %d, want 1", len(items))
	}
	if items[0].SourceRunID != run.ID {
		t.Errorf("SourceRunID = %q, want %q", items[0].SourceRunID, run.ID)
	}
	if items[0].ContentHash == "" {
		t.Error("evidence item not hashed")
	}

	// Telemetry stamped with the run ID.
	events, _ := fx.sink.Recent(ctx, 10)
	if len(events) != 1 || events[0].RunID != run.ID {
		t.Errorf("events = %+v", events)
	}

	// One PROBE_RUN audit entry.
	entries, _ := fx.auditStore.Query(ctx, model.AuditFilter{Action: model.AuditActionProbeRun}, model.AuditWindow{Limit: 10})
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].Details["run_id"] != run.ID || entries[0].Details["status"] != model.ProbeRunWarning {
		t.Errorf("audit details = %v", entries[0].Details)
	}
}

func TestRunner_Run_evaluator_failure_completes_run(t *testing.T) {
	fx := newRunnerFixture(t, &stubEvaluator{err: errors.New("backend unreachable")})
	ctx := context.Background()

	run, err := fx.runner.Run(ctx, testRctx(), "probe-1")
	if err != nil {
		t.Fatalf("Run() error = %v, evaluator failure should complete the run, not fail the call", err)
	}
	if run.Status != model.ProbeRunFail {
		t.Errorf("Status = %q, want fail", run.Status)
	}
	if run.CompletedAt == nil {
		t.Error("failed run left dangling without completion time")
	}
	if run.Result["error"] != "backend unreachable" {
		t.Errorf("Result = %v", run.Result)
	}
}

func TestRunner_Run_unknown_probe(t *testing.T) {
	fx := newRunnerFixture(t, &stubEvaluator{})

	_, err := fx.runner.Run(context.Background(), testRctx(), "nope")
	if !model.IsCode(err, model.ErrNotFound) {
		t.Fatalf("Run() error = %v, want NOT_FOUND", err)
	}
}

func TestRunner_Run_unregistered_type(t *testing.T) {
	fx := newRunnerFixture(t, &stubEvaluator{})
	if err := fx.store.CreateProbe(context.Background(), model.ProbeDefinition{
		ID: "probe-odd", Name: "Odd", Type: "no_such_type", OrgID: "org-1",
	}); err != nil {
		t.Fatalf("CreateProbe() error = %v", err)
	}

	_, err := fx.runner.Run(context.Background(), testRctx(), "probe-odd")
	if !model.IsCode(err, model.ErrBadRequest) {
		t.Fatalf("Run() error = %v, want BAD_REQUEST", err)
	}
}

func TestRunner_Runs_newest_first(t *testing.T) {
	fx := newRunnerFixture(t, &stubEvaluator{outcome: Outcome{Status: model.ProbeRunPass}})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := fx.runner.Run(ctx, testRctx(), "probe-1")
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		ids = append(ids, run.ID)
		time.Sleep(time.Millisecond)
	}

	runs, err := fx.runner.Runs(ctx, "probe-1", 2)
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Runs() = %d, want 2", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("runs not newest first")
	}
}

func TestRunner_Runs_unknown_probe(t *testing.T) {
	fx := newRunnerFixture(t, &stubEvaluator{})
	if _, err := fx.runner.Runs(context.Background(), "nope", 10); !model.IsCode(err, model.ErrNotFound) {
		t.Fatalf("Runs() error = %v, want NOT_FOUND", err)
	}
}
