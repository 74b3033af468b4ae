package probe

import (
	"context"
	"fmt"
	"sync"

	"github.com/meridianops/custos/model"
)

// MemoryStore is an in-memory probe Store for tests and single-node use.
type MemoryStore struct {
	mu     sync.RWMutex
	probes map[string]model.ProbeDefinition
	runs   map[string][]model.ProbeRun
	byID   map[string]int
}

// NewMemoryStore creates a new in-memory probe store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		probes: make(map[string]model.ProbeDefinition),
		runs:   make(map[string][]model.ProbeRun),
		byID:   make(map[string]int),
	}
}

// CreateProbe registers a probe definition.
func (s *MemoryStore) CreateProbe(_ context.Context, p model.ProbeDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.probes[p.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("probe %q already exists", p.ID))
	}
	s.probes[p.ID] = p
	return nil
}

// GetProbe retrieves a probe definition by ID.
func (s *MemoryStore) GetProbe(_ context.Context, id string) (model.ProbeDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.probes[id]
	if !ok {
		return model.ProbeDefinition{}, model.NewNotFoundError(fmt.Sprintf("probe %q not found", id))
	}
	return p, nil
}

// ListProbes returns an organization's probe definitions.
func (s *MemoryStore) ListProbes(_ context.Context, orgID string) ([]model.ProbeDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ProbeDefinition
	for _, p := range s.probes {
		if p.OrgID == orgID {
			out = append(out, p)
		}
	}
	return out, nil
}

// CreateRun inserts a run in the running state.
func (s *MemoryStore) CreateRun(_ context.Context, run model.ProbeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[run.ID] = len(s.runs[run.ProbeID])
	s.runs[run.ProbeID] = append(s.runs[run.ProbeID], run)
	return nil
}

// CompleteRun records a run's final status and result.
func (s *MemoryStore) CompleteRun(_ context.Context, run model.ProbeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[run.ID]
	if !ok || idx >= len(s.runs[run.ProbeID]) {
		return model.NewNotFoundError(fmt.Sprintf("probe run %q not found", run.ID))
	}
	s.runs[run.ProbeID][idx] = run
	return nil
}

// RunsByProbe returns a probe's runs, newest first.
func (s *MemoryStore) RunsByProbe(_ context.Context, probeID string, limit int) ([]model.ProbeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := s.runs[probeID]
	var out []model.ProbeRun
	for i := len(runs) - 1; i >= 0; i-- {
		out = append(out, runs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MemorySink is an in-memory telemetry Sink.
type MemorySink struct {
	mu     sync.RWMutex
	events []model.TelemetryEvent
}

// NewMemorySink creates a new in-memory telemetry sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit records one event.
func (s *MemorySink) Emit(_ context.Context, event model.TelemetryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Recent returns the most recent events, newest first.
func (s *MemorySink) Recent(_ context.Context, limit int) ([]model.TelemetryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TelemetryEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		out = append(out, s.events[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
