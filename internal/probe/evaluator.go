// Package probe runs registered health-check rules over missions, tasks, and
// data sources, recording runs and emitting telemetry.
package probe

import (
	"context"
	"fmt"
	"sync"

	"github.com/meridianops/custos/model"
)

// EvidenceDraft is an evidence item produced by an evaluator before the
// runner stamps it with the run ID and appends it to the ledger.
type EvidenceDraft struct {
	MissionID string
	Type      string
	Title     string
	Content   map[string]any
}

// TelemetryDraft is a telemetry observation produced by an evaluator before
// the runner stamps it with the run ID and emits it.
type TelemetryDraft struct {
	Type     string
	Severity string
	Message  string
	Data     map[string]any
}

// Outcome is the result of one evaluator pass.
type Outcome struct {
	Status   string
	Result   map[string]any
	Evidence []EvidenceDraft
	Events   []TelemetryDraft
}

// Evaluator implements one probe rule. Evaluators are pure readers: the
// runner owns all writes (runs, evidence, telemetry, audit).
type Evaluator interface {
	Type() string
	Evaluate(ctx context.Context, probe model.ProbeDefinition) (Outcome, error)
}

// Registry maps probe types to evaluators.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// NewRegistry creates an empty evaluator Registry.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]Evaluator)}
}

// Register adds an evaluator, replacing any previous one for its type.
func (r *Registry) Register(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[e.Type()] = e
}

// Get returns the evaluator for a probe type.
func (r *Registry) Get(probeType string) (Evaluator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.evaluators[probeType]
	if !ok {
		return nil, model.NewBadRequestError(
			fmt.Sprintf("no evaluator registered for probe type %q", probeType),
		)
	}
	return e, nil
}

// Types returns the registered probe types. Order is unspecified.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.evaluators))
	for t := range r.evaluators {
		out = append(out, t)
	}
	return out
}
