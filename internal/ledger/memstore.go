package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/meridianops/custos/model"
)

// AuditAppender receives the audit entry committed alongside an evidence
// item. Satisfied by the audit memory store.
type AuditAppender interface {
	Append(ctx context.Context, entry model.AuditLogEntry) error
}

// MemoryStore is an in-memory evidence Store for tests and single-node use.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[string]model.EvidenceItem
	byMission map[string][]string
	audit     AuditAppender
}

// NewMemoryStore creates a new in-memory evidence store writing audit entries
// to the given appender.
func NewMemoryStore(audit AuditAppender) *MemoryStore {
	return &MemoryStore{
		items:     make(map[string]model.EvidenceItem),
		byMission: make(map[string][]string),
		audit:     audit,
	}
}

// Append durably writes one item and its audit entry under the store mutex.
// The audit write goes first so a failed trail append leaves no item behind.
func (s *MemoryStore) Append(ctx context.Context, item model.EvidenceItem, entry model.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("evidence item %q already exists", item.ID),
		)
	}

	if s.audit != nil {
		if err := s.audit.Append(ctx, entry); err != nil {
			return err
		}
	}

	s.items[item.ID] = item
	s.byMission[item.MissionID] = append(s.byMission[item.MissionID], item.ID)
	return nil
}

// Get retrieves an item by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (model.EvidenceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return model.EvidenceItem{}, model.NewNotFoundError(
			fmt.Sprintf("evidence item %q not found", id),
		)
	}
	return item, nil
}

// ListByMission returns a mission's items in creation order.
func (s *MemoryStore) ListByMission(_ context.Context, missionID string) ([]model.EvidenceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byMission[missionID]
	out := make([]model.EvidenceItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id])
	}
	return out, nil
}
