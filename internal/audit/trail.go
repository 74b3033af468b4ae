// Package audit maintains the append-only trail of privileged actions.
// Entries are never updated or deleted; queries are windowed and scoped.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridianops/custos/model"
)

// Store persists audit entries. Implementations must treat the trail as
// append-only: there is no update or delete operation.
type Store interface {
	// Append durably writes one entry. A failure here is
	// STORAGE_UNAVAILABLE and fails the enclosing operation — an audited
	// mutation whose audit write fails has not succeeded.
	Append(ctx context.Context, entry model.AuditLogEntry) error

	// Query returns entries matching the filter, newest first, bounded by
	// the window.
	Query(ctx context.Context, filter model.AuditFilter, window model.AuditWindow) ([]model.AuditLogEntry, error)
}

// DefaultQueryLimit bounds queries whose window does not set one.
const DefaultQueryLimit = 100

// Trail is the audit-trail service.
type Trail struct {
	store Store
}

// NewTrail creates a Trail over the given store.
func NewTrail(store Store) *Trail {
	return &Trail{store: store}
}

// Record appends one entry for a privileged mutation and returns it.
func (t *Trail) Record(ctx context.Context, actorID, action, entityType, entityID string, details map[string]any) (model.AuditLogEntry, error) {
	entry := NewEntry(actorID, action, entityType, entityID, details)
	if err := t.store.Append(ctx, entry); err != nil {
		return model.AuditLogEntry{}, err
	}
	return entry, nil
}

// Query returns entries matching the filter, newest first. Unscoped filters
// are rejected: callers must name an actor, action, or entity rather than
// scan the whole trail.
func (t *Trail) Query(ctx context.Context, filter model.AuditFilter, window model.AuditWindow) ([]model.AuditLogEntry, error) {
	if !filter.Scoped() {
		return nil, model.NewBadRequestError("audit query requires at least one filter scope")
	}
	if window.Limit <= 0 {
		window.Limit = DefaultQueryLimit
	}
	return t.store.Query(ctx, filter, window)
}

// NewEntry builds an entry without persisting it. The workflow machine uses
// this to hand the entry to the instance store, which commits it atomically
// with the state change and transition record.
func NewEntry(actorID, action, entityType, entityID string, details map[string]any) model.AuditLogEntry {
	return model.AuditLogEntry{
		ID:         uuid.New().String(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}
}
