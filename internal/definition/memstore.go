package definition

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/meridianops/custos/model"
)

// MemoryStore is an in-memory definition Store for tests and single-node use.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]model.WorkflowDefinition
}

// NewMemoryStore creates a new in-memory definition store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: make(map[string]model.WorkflowDefinition)}
}

// Create persists a newly published definition.
func (s *MemoryStore) Create(_ context.Context, def model.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[def.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("workflow definition %q already exists", def.ID))
	}
	s.defs[def.ID] = def
	return nil
}

// Get retrieves a definition by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.defs[id]
	if !ok {
		return model.WorkflowDefinition{}, model.NewNotFoundError(
			fmt.Sprintf("workflow definition %q not found", id),
		)
	}
	return def, nil
}

// List returns all definitions for an organization, ordered by publish time.
func (s *MemoryStore) List(_ context.Context, orgID string) ([]model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.WorkflowDefinition, 0, len(s.defs))
	for _, d := range s.defs {
		if orgID != "" && d.OrgID != orgID {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PublishedAt.Before(out[j].PublishedAt)
	})
	return out, nil
}
