package workflow

import (
	"testing"

	"github.com/meridianops/custos/model"
)

func reviewDef() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		ID:   "def-review",
		Name: "Review Workflow",
		States: []model.StateDefinition{
			{Name: "open", Initial: true},
			{Name: "review"},
			{Name: "closed", Final: true},
		},
		Transitions: []model.TransitionDefinition{
			{From: "open", To: "review", Label: "Submit for review", Roles: []string{"analyst"}},
			{From: "review", To: "open", Label: "Send back", Roles: []string{"lead"}},
			{From: "review", To: "closed", Label: "Close", Roles: []string{"lead"}},
		},
	}
}

func TestAuthorize_allowed(t *testing.T) {
	def := reviewDef()
	tr, err := Authorize(def, "open", "review", model.NewRoleSet("analyst"))
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if tr.To != "review" {
		t.Errorf("matched transition to = %q, want %q", tr.To, "review")
	}
}

func TestAuthorize_no_such_transition(t *testing.T) {
	def := reviewDef()
	_, err := Authorize(def, "open", "closed", model.NewRoleSet("analyst", "lead"))
	if !model.IsCode(err, model.ErrTransitionNotAllowed) {
		t.Fatalf("Authorize() error = %v, want TRANSITION_NOT_ALLOWED", err)
	}
	ee := err.(*model.ErrorEnvelope)
	if ee.Reason != model.ReasonNoSuchTransition {
		t.Errorf("reason = %q, want %q", ee.Reason, model.ReasonNoSuchTransition)
	}
}

func TestAuthorize_role_not_authorized(t *testing.T) {
	def := reviewDef()
	_, err := Authorize(def, "review", "closed", model.NewRoleSet("analyst"))
	if !model.IsCode(err, model.ErrTransitionNotAllowed) {
		t.Fatalf("Authorize() error = %v, want TRANSITION_NOT_ALLOWED", err)
	}
	ee := err.(*model.ErrorEnvelope)
	if ee.Reason != model.ReasonRoleNotAuthorized {
		t.Errorf("reason = %q, want %q", ee.Reason, model.ReasonRoleNotAuthorized)
	}
}

func TestAuthorize_admin_override(t *testing.T) {
	def := reviewDef()
	if _, err := Authorize(def, "review", "closed", model.NewRoleSet(model.RoleAdmin)); err != nil {
		t.Fatalf("Authorize() with admin role error = %v", err)
	}
}

func TestAuthorize_wildcard_guard(t *testing.T) {
	def := reviewDef()
	def.Transitions = append(def.Transitions, model.TransitionDefinition{
		From: "open", To: "closed", Roles: []string{model.RoleWildcard},
	})
	if _, err := Authorize(def, "open", "closed", model.NewRoleSet("viewer")); err != nil {
		t.Fatalf("Authorize() against wildcard guard error = %v", err)
	}
}

func TestAuthorize_empty_guard_admits_any_role(t *testing.T) {
	def := reviewDef()
	def.Transitions = []model.TransitionDefinition{{From: "open", To: "review"}}
	if _, err := Authorize(def, "open", "review", model.NewRoleSet("viewer")); err != nil {
		t.Fatalf("Authorize() against empty guard error = %v", err)
	}
}

func TestAuthorize_duplicate_edges_disjoint_guards(t *testing.T) {
	// The validator permits several (from,to) edges when their guards are
	// disjoint; any one of them admitting the actor authorizes the move.
	def := model.WorkflowDefinition{
		ID:   "def-dual",
		Name: "Dual Guard",
		States: []model.StateDefinition{
			{Name: "open", Initial: true},
			{Name: "review"},
		},
		Transitions: []model.TransitionDefinition{
			{From: "open", To: "review", Roles: []string{"operator"}},
			{From: "open", To: "review", Roles: []string{"supervisor"}},
		},
	}

	for _, role := range []string{"operator", "supervisor"} {
		roles := model.NewRoleSet(role)
		tr, err := Authorize(def, "open", "review", roles)
		if err != nil {
			t.Fatalf("Authorize() for %s error = %v", role, err)
		}
		if tr.To != "review" {
			t.Errorf("matched transition to = %q, want review", tr.To)
		}
		// What Authorize admits, AvailableTransitions must advertise, and
		// vice versa.
		if got := AvailableTransitions(def, "open", roles); len(got) != 1 {
			t.Errorf("AvailableTransitions() for %s = %d entries, want 1", role, len(got))
		}
	}

	_, err := Authorize(def, "open", "review", model.NewRoleSet("viewer"))
	if !model.IsCode(err, model.ErrTransitionNotAllowed) {
		t.Fatalf("Authorize() for viewer error = %v, want TRANSITION_NOT_ALLOWED", err)
	}
	if ee := err.(*model.ErrorEnvelope); ee.Reason != model.ReasonRoleNotAuthorized {
		t.Errorf("reason = %q, want %q", ee.Reason, model.ReasonRoleNotAuthorized)
	}
}

func TestAvailableTransitions_filters_by_role(t *testing.T) {
	def := reviewDef()

	got := AvailableTransitions(def, "review", model.NewRoleSet("analyst"))
	if len(got) != 0 {
		t.Errorf("analyst transitions from review = %d, want 0", len(got))
	}

	got = AvailableTransitions(def, "review", model.NewRoleSet("lead"))
	if len(got) != 2 {
		t.Fatalf("lead transitions from review = %d, want 2", len(got))
	}
	// Declaration order is preserved.
	if got[0].ToState != "open" || got[1].ToState != "closed" {
		t.Errorf("transitions = %v, want [open closed]", got)
	}
}

func TestAvailableTransitions_terminal_state_empty_not_nil(t *testing.T) {
	def := reviewDef()
	got := AvailableTransitions(def, "closed", model.NewRoleSet(model.RoleAdmin))
	if got == nil {
		t.Fatal("AvailableTransitions() = nil, want empty slice")
	}
	if len(got) != 0 {
		t.Errorf("transitions from closed = %d, want 0", len(got))
	}
}
