package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meridianops/custos/model"
)

// AuditAppender receives the audit entry committed alongside a transition.
// Satisfied by the audit memory store.
type AuditAppender interface {
	Append(ctx context.Context, entry model.AuditLogEntry) error
}

// MemoryStore is an in-memory InstanceStore for tests and single-node use.
// One mutex covers the version check, the instance update, the history
// append, and the audit append, so ApplyTransition is atomic and exactly one
// of two racing transitions from the same version wins.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]model.WorkflowInstance
	byMission map[string]string
	history   map[string][]model.TransitionRecord
	audit     AuditAppender
}

// NewMemoryStore creates a new in-memory instance store writing audit entries
// to the given appender.
func NewMemoryStore(audit AuditAppender) *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]model.WorkflowInstance),
		byMission: make(map[string]string),
		history:   make(map[string][]model.TransitionRecord),
		audit:     audit,
	}
}

// Create inserts a new instance.
func (s *MemoryStore) Create(_ context.Context, inst model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[inst.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("workflow instance %q already exists", inst.ID),
		)
	}
	if _, exists := s.byMission[inst.MissionID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("mission %q already has a workflow instance", inst.MissionID),
		)
	}
	s.instances[inst.ID] = inst
	s.byMission[inst.MissionID] = inst.ID
	return nil
}

// Get retrieves an instance by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return model.WorkflowInstance{}, model.NewNotFoundError(
			fmt.Sprintf("workflow instance %q not found", id),
		)
	}
	return inst, nil
}

// GetByMission retrieves the instance attached to a mission.
func (s *MemoryStore) GetByMission(_ context.Context, missionID string) (model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byMission[missionID]
	if !ok {
		return model.WorkflowInstance{}, model.NewNotFoundError(
			fmt.Sprintf("no workflow instance for mission %q", missionID),
		)
	}
	return s.instances[id], nil
}

// ApplyTransition commits a state change atomically under the store mutex.
func (s *MemoryStore) ApplyTransition(ctx context.Context, inst model.WorkflowInstance, rec model.TransitionRecord, entry model.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.instances[inst.ID]
	if !ok {
		return model.NewNotFoundError(
			fmt.Sprintf("workflow instance %q not found", inst.ID),
		)
	}
	if current.Version != inst.Version {
		return model.NewConflictError(
			fmt.Sprintf("workflow instance %q version conflict (expected %d, have %d)",
				inst.ID, inst.Version, current.Version),
		)
	}

	// The audit write goes first so a failed append leaves the instance and
	// its history untouched.
	if s.audit != nil {
		if err := s.audit.Append(ctx, entry); err != nil {
			return err
		}
	}

	current.CurrentState = rec.ToState
	current.Version++
	current.UpdatedAt = time.Now().UTC()
	s.instances[inst.ID] = current
	s.history[inst.ID] = append(s.history[inst.ID], rec)
	return nil
}

// History returns an instance's transition records in commit order.
func (s *MemoryStore) History(_ context.Context, instanceID string) ([]model.TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.history[instanceID]
	out := make([]model.TransitionRecord, len(recs))
	copy(out, recs)
	return out, nil
}
