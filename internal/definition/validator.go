// Package definition validates, persists, and serves published workflow
// definitions through a read-optimized registry with atomic pointer swap.
package definition

import (
	"fmt"

	"github.com/meridianops/custos/model"
)

// VError describes a single violated invariant in a submitted definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks workflow definitions structurally and referentially.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks every invariant of a workflow definition and returns all
// violations, not just the first:
//
//   - name is required
//   - at least one state, no duplicate state names
//   - exactly one state flagged initial
//   - every transition endpoint resolves to a declared state
//   - no duplicate (from,to) pairs with overlapping role guards, which would
//     create ambiguous guard precedence
func (v *Validator) Validate(def model.WorkflowDefinition) []VError {
	var errs []VError

	if def.Name == "" {
		errs = append(errs, VError{Path: "name", Code: "REQUIRED", Message: "name is required"})
	}

	if len(def.States) == 0 {
		errs = append(errs, VError{Path: "states", Code: "REQUIRED", Message: "at least one state is required"})
	}

	stateNames := make(map[string]bool, len(def.States))
	initialCount := 0
	for i, s := range def.States {
		sp := fmt.Sprintf("states[%d]", i)
		if s.Name == "" {
			errs = append(errs, VError{Path: sp + ".name", Code: "REQUIRED", Message: "state name is required"})
			continue
		}
		if stateNames[s.Name] {
			errs = append(errs, VError{
				Path:    sp + ".name",
				Code:    "DUPLICATE",
				Message: fmt.Sprintf("duplicate state %q", s.Name),
			})
		}
		stateNames[s.Name] = true
		if s.Initial {
			initialCount++
		}
	}

	if len(def.States) > 0 && initialCount != 1 {
		errs = append(errs, VError{
			Path:    "states",
			Code:    "INITIAL_STATE",
			Message: fmt.Sprintf("exactly one initial state is required, found %d", initialCount),
		})
	}

	seen := make(map[[2]string][]model.TransitionDefinition)
	for i, t := range def.Transitions {
		tp := fmt.Sprintf("transitions[%d]", i)
		if t.From == "" {
			errs = append(errs, VError{Path: tp + ".from", Code: "REQUIRED", Message: "from is required"})
		} else if !stateNames[t.From] {
			errs = append(errs, VError{
				Path:    tp + ".from",
				Code:    "REF_NOT_FOUND",
				Message: fmt.Sprintf("state %q not found", t.From),
			})
		}
		if t.To == "" {
			errs = append(errs, VError{Path: tp + ".to", Code: "REQUIRED", Message: "to is required"})
		} else if !stateNames[t.To] {
			errs = append(errs, VError{
				Path:    tp + ".to",
				Code:    "REF_NOT_FOUND",
				Message: fmt.Sprintf("state %q not found", t.To),
			})
		}

		key := [2]string{t.From, t.To}
		for _, prior := range seen[key] {
			if prior.Guard().Overlaps(t.Guard()) {
				errs = append(errs, VError{
					Path:    tp,
					Code:    "AMBIGUOUS_GUARD",
					Message: fmt.Sprintf("duplicate transition %s -> %s with overlapping roles", t.From, t.To),
				})
				break
			}
		}
		seen[key] = append(seen[key], t)
	}

	return errs
}

// FieldErrors converts validation errors into the envelope's field-error
// shape for the HTTP surface.
func FieldErrors(verrs []VError) []model.FieldError {
	out := make([]model.FieldError, 0, len(verrs))
	for _, ve := range verrs {
		out = append(out, model.FieldError{Field: ve.Path, Code: ve.Code, Message: ve.Message})
	}
	return out
}
