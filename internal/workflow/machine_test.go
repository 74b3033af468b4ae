package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/model"
)

// mockDefs serves definitions from a map.
type mockDefs struct {
	defs map[string]model.WorkflowDefinition
}

func (m *mockDefs) Get(_ context.Context, id string) (model.WorkflowDefinition, error) {
	def, ok := m.defs[id]
	if !ok {
		return model.WorkflowDefinition{}, model.NewNotFoundError(fmt.Sprintf("definition %q not found", id))
	}
	return def, nil
}

// mockCompleter records MarkCompleted calls.
type mockCompleter struct {
	mu    sync.Mutex
	calls []string
}

func (m *mockCompleter) MarkCompleted(_ context.Context, missionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, missionID)
	return nil
}

func testRctx(roles ...string) *model.RequestContext {
	return &model.RequestContext{
		ActorID: "user-alice",
		OrgID:   "org-1",
		Roles:   model.NewRoleSet(roles...),
	}
}

func newTestMachine(t *testing.T) (*Machine, *MemoryStore, *audit.MemoryStore, *mockCompleter) {
	t.Helper()
	auditStore := audit.NewMemoryStore()
	store := NewMemoryStore(auditStore)
	completer := &mockCompleter{}
	defs := &mockDefs{defs: map[string]model.WorkflowDefinition{"def-review": reviewDef()}}
	return NewMachine(defs, store, completer, zap.NewNop()), store, auditStore, completer
}

func TestMachine_CreateInstance(t *testing.T) {
	m, _, _, _ := newTestMachine(t)

	inst, err := m.CreateInstance(context.Background(), "def-review", "mission-1")
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	if inst.CurrentState != "open" {
		t.Errorf("CurrentState = %q, want %q", inst.CurrentState, "open")
	}
	if inst.Version != 1 {
		t.Errorf("Version = %d, want 1", inst.Version)
	}
	if inst.MissionID != "mission-1" {
		t.Errorf("MissionID = %q, want %q", inst.MissionID, "mission-1")
	}
}

func TestMachine_CreateInstance_unknown_definition(t *testing.T) {
	m, _, _, _ := newTestMachine(t)

	_, err := m.CreateInstance(context.Background(), "nope", "mission-1")
	if !model.IsCode(err, model.ErrNotFound) {
		t.Fatalf("CreateInstance() error = %v, want NOT_FOUND", err)
	}
}

func TestMachine_CreateInstance_second_instance_conflicts(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	ctx := context.Background()

	if _, err := m.CreateInstance(ctx, "def-review", "mission-1"); err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	_, err := m.CreateInstance(ctx, "def-review", "mission-1")
	if !model.IsCode(err, model.ErrConflict) {
		t.Fatalf("second CreateInstance() error = %v, want CONFLICT", err)
	}
}

func TestMachine_Transition_commits_state_record_and_audit(t *testing.T) {
	m, store, auditStore, _ := newTestMachine(t)
	ctx := context.Background()

	if _, err := m.CreateInstance(ctx, "def-review", "mission-1"); err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}

	inst, rec, err := m.Transition(ctx, testRctx("analyst"), "mission-1", "review", "ready for review")
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if inst.CurrentState != "review" {
		t.Errorf("CurrentState = %q, want %q", inst.CurrentState, "review")
	}
	if inst.Version != 2 {
		t.Errorf("Version = %d, want 2", inst.Version)
	}
	if rec.FromState != "open" || rec.ToState != "review" {
		t.Errorf("record = %s -> %s, want open -> review", rec.FromState, rec.ToState)
	}
	if rec.ActorID != "user-alice" {
		t.Errorf("record actor = %q, want %q", rec.ActorID, "user-alice")
	}
	if rec.Notes != "ready for review" {
		t.Errorf("record notes = %q", rec.Notes)
	}

	stored, err := store.Get(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.CurrentState != "review" || stored.Version != 2 {
		t.Errorf("stored state = %q v%d, want review v2", stored.CurrentState, stored.Version)
	}

	entries, err := auditStore.Query(ctx, model.AuditFilter{Action: model.AuditActionTransition}, model.AuditWindow{Limit: 10})
	if err != nil {
		t.Fatalf("audit Query() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].EntityID != inst.ID {
		t.Errorf("audit entity = %q, want instance id %q", entries[0].EntityID, inst.ID)
	}
}

func TestMachine_Transition_denied_leaves_state_untouched(t *testing.T) {
	m, store, auditStore, _ := newTestMachine(t)
	ctx := context.Background()

	created, err := m.CreateInstance(ctx, "def-review", "mission-1")
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}

	_, _, err = m.Transition(ctx, testRctx("viewer"), "mission-1", "review", "")
	if !model.IsCode(err, model.ErrTransitionNotAllowed) {
		t.Fatalf("Transition() error = %v, want TRANSITION_NOT_ALLOWED", err)
	}

	stored, _ := store.Get(ctx, created.ID)
	if stored.CurrentState != "open" || stored.Version != 1 {
		t.Errorf("denied transition mutated instance: %q v%d", stored.CurrentState, stored.Version)
	}

	entries, _ := auditStore.Query(ctx, model.AuditFilter{Action: model.AuditActionTransition}, model.AuditWindow{Limit: 10})
	if len(entries) != 0 {
		t.Errorf("denied transition wrote %d audit entries, want 0", len(entries))
	}
}

func TestMachine_Transition_unknown_mission(t *testing.T) {
	m, _, _, _ := newTestMachine(t)

	_, _, err := m.Transition(context.Background(), testRctx("analyst"), "nope", "review", "")
	if !model.IsCode(err, model.ErrNotFound) {
		t.Fatalf("Transition() error = %v, want NOT_FOUND", err)
	}
}

func TestMachine_Transition_final_state_completes_mission(t *testing.T) {
	m, _, _, completer := newTestMachine(t)
	ctx := context.Background()

	if _, err := m.CreateInstance(ctx, "def-review", "mission-1"); err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	if _, _, err := m.Transition(ctx, testRctx("analyst"), "mission-1", "review", ""); err != nil {
		t.Fatalf("Transition() to review error = %v", err)
	}
	if len(completer.calls) != 0 {
		t.Fatalf("non-final transition completed the mission")
	}

	if _, _, err := m.Transition(ctx, testRctx("lead"), "mission-1", "closed", ""); err != nil {
		t.Fatalf("Transition() to closed error = %v", err)
	}
	if len(completer.calls) != 1 || completer.calls[0] != "mission-1" {
		t.Errorf("MarkCompleted calls = %v, want [mission-1]", completer.calls)
	}
}

func TestMachine_State_filters_transitions_by_role(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	ctx := context.Background()

	if _, err := m.CreateInstance(ctx, "def-review", "mission-1"); err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	if _, _, err := m.Transition(ctx, testRctx("analyst"), "mission-1", "review", ""); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	state, err := m.State(ctx, testRctx("analyst"), "mission-1")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state.CurrentState != "review" {
		t.Errorf("CurrentState = %q, want review", state.CurrentState)
	}
	if len(state.AvailableTransitions) != 0 {
		t.Errorf("analyst sees %d transitions from review, want 0", len(state.AvailableTransitions))
	}

	state, err = m.State(ctx, testRctx("lead"), "mission-1")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if len(state.AvailableTransitions) != 2 {
		t.Errorf("lead sees %d transitions from review, want 2", len(state.AvailableTransitions))
	}
}

func TestMachine_History_in_commit_order(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	ctx := context.Background()

	if _, err := m.CreateInstance(ctx, "def-review", "mission-1"); err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	if _, _, err := m.Transition(ctx, testRctx("analyst"), "mission-1", "review", ""); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if _, _, err := m.Transition(ctx, testRctx("lead"), "mission-1", "open", "needs rework"); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	recs, err := m.History(ctx, "mission-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("History() = %d records, want 2", len(recs))
	}
	if recs[0].ToState != "review" || recs[1].ToState != "open" {
		t.Errorf("history order = [%s %s], want [review open]", recs[0].ToState, recs[1].ToState)
	}
}

func TestMemoryStore_ApplyTransition_exactly_one_winner(t *testing.T) {
	store := NewMemoryStore(audit.NewMemoryStore())
	ctx := context.Background()

	inst := model.WorkflowInstance{
		ID: "inst-1", DefinitionID: "def-review", MissionID: "mission-1",
		CurrentState: "open", Version: 1,
	}
	if err := store.Create(ctx, inst); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := model.TransitionRecord{
				ID: fmt.Sprintf("rec-%d", i), InstanceID: inst.ID,
				FromState: "open", ToState: "review", ActorID: fmt.Sprintf("user-%d", i),
			}
			entry := audit.NewEntry(rec.ActorID, model.AuditActionTransition, "workflow_instance", inst.ID, nil)
			errs[i] = store.ApplyTransition(ctx, inst, rec, entry)
		}(i)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case model.IsCode(err, model.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
	if conflicts != racers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, racers-1)
	}

	final, _ := store.Get(ctx, inst.ID)
	if final.Version != 2 {
		t.Errorf("final version = %d, want 2", final.Version)
	}
	recs, _ := store.History(ctx, inst.ID)
	if len(recs) != 1 {
		t.Errorf("history = %d records, want 1", len(recs))
	}
}

// rejectingAppender fails every audit write.
type rejectingAppender struct{}

func (rejectingAppender) Append(context.Context, model.AuditLogEntry) error {
	return model.NewStorageUnavailableError("audit store down")
}

func TestMemoryStore_ApplyTransition_failed_audit_leaves_state_untouched(t *testing.T) {
	store := NewMemoryStore(rejectingAppender{})
	ctx := context.Background()

	inst := model.WorkflowInstance{
		ID: "inst-1", DefinitionID: "def-review", MissionID: "mission-1",
		CurrentState: "open", Version: 1,
	}
	if err := store.Create(ctx, inst); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec := model.TransitionRecord{
		ID: "rec-1", InstanceID: inst.ID,
		FromState: "open", ToState: "review", ActorID: "user-alice",
	}
	entry := audit.NewEntry(rec.ActorID, model.AuditActionTransition, "workflow_instance", inst.ID, nil)

	err := store.ApplyTransition(ctx, inst, rec, entry)
	if !model.IsCode(err, model.ErrStorageUnavailable) {
		t.Fatalf("ApplyTransition() error = %v, want STORAGE_UNAVAILABLE", err)
	}

	got, _ := store.Get(ctx, inst.ID)
	if got.CurrentState != "open" || got.Version != 1 {
		t.Errorf("instance after failed audit = %s v%d, want open v1", got.CurrentState, got.Version)
	}
	recs, _ := store.History(ctx, inst.ID)
	if len(recs) != 0 {
		t.Errorf("history = %d records after failed audit, want 0", len(recs))
	}
}
