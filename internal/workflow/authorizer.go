package workflow

import (
	"fmt"

	"github.com/meridianops/custos/model"
)

// Authorize decides whether an actor holding the given roles may move an
// instance of def from currentState to toState. On success it returns the
// matched transition. On denial it returns TRANSITION_NOT_ALLOWED with a
// reason distinguishing a missing edge from a role check failure.
//
// This is a pure function of its inputs: no storage reads, no side effects.
// The machine calls it before touching the store so a denied request never
// consumes a version.
func Authorize(def model.WorkflowDefinition, currentState, toState string, roles model.RoleSet) (model.TransitionDefinition, error) {
	// Definitions may declare several (from,to) edges with disjoint guards;
	// the actor is authorized if any of them admits one of their roles.
	edgeExists := false
	for i := range def.Transitions {
		t := &def.Transitions[i]
		if t.From != currentState || t.To != toState {
			continue
		}
		edgeExists = true
		if t.Guard().Admits(roles) {
			return *t, nil
		}
	}

	if !edgeExists {
		return model.TransitionDefinition{}, model.NewTransitionNotAllowedError(
			model.ReasonNoSuchTransition,
			fmt.Sprintf("no transition from %q to %q", currentState, toState),
		)
	}
	return model.TransitionDefinition{}, model.NewTransitionNotAllowedError(
		model.ReasonRoleNotAuthorized,
		fmt.Sprintf("roles not authorized for transition from %q to %q", currentState, toState),
	)
}

// AvailableTransitions returns the legal next actions from currentState for
// an actor holding the given roles, in definition declaration order. States
// with no outgoing authorized edges yield an empty slice, not nil, so the
// JSON surface renders [].
func AvailableTransitions(def model.WorkflowDefinition, currentState string, roles model.RoleSet) []model.AvailableTransition {
	out := make([]model.AvailableTransition, 0)
	for _, t := range def.Transitions {
		if t.From != currentState {
			continue
		}
		if !t.Guard().Admits(roles) {
			continue
		}
		out = append(out, model.AvailableTransition{ToState: t.To, Label: t.Label})
	}
	return out
}
