package audit

import (
	"context"
	"sync"

	"github.com/meridianops/custos/model"
)

// MemoryStore is an in-memory audit Store for tests and single-node use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []model.AuditLogEntry
}

// NewMemoryStore creates a new in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append durably writes one entry.
func (s *MemoryStore) Append(_ context.Context, entry model.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Query returns entries matching the filter, newest first.
func (s *MemoryStore) Query(_ context.Context, filter model.AuditFilter, window model.AuditWindow) ([]model.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AuditLogEntry
	// Walk backwards so newest entries come first.
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !matches(e, filter, window) {
			continue
		}
		out = append(out, e)
		if window.Limit > 0 && len(out) >= window.Limit {
			break
		}
	}
	return out, nil
}

func matches(e model.AuditLogEntry, f model.AuditFilter, w model.AuditWindow) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if !w.Since.IsZero() && e.Timestamp.Before(w.Since) {
		return false
	}
	if !w.Until.IsZero() && e.Timestamp.After(w.Until) {
		return false
	}
	return true
}

// Len returns the total number of entries. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
