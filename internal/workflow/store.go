package workflow

import (
	"context"

	"github.com/meridianops/custos/model"
)

// InstanceStore persists workflow instances and their transition histories.
//
// ApplyTransition is the single commit point for a state change: the instance
// update (compare-and-swap on Version), the transition record, and the audit
// entry land together or not at all. Implementations return CONFLICT when the
// version check fails so the machine can surface a retryable error without
// retrying itself.
type InstanceStore interface {
	// Create inserts a new instance. CONFLICT if the mission already has one.
	Create(ctx context.Context, inst model.WorkflowInstance) error

	// Get retrieves an instance by ID.
	Get(ctx context.Context, id string) (model.WorkflowInstance, error)

	// GetByMission retrieves the instance attached to a mission.
	GetByMission(ctx context.Context, missionID string) (model.WorkflowInstance, error)

	// ApplyTransition commits a state change atomically: bumps the instance to
	// inst.Version+1 with the new current state, appends the transition record,
	// and appends the audit entry. CONFLICT if inst.Version no longer matches.
	ApplyTransition(ctx context.Context, inst model.WorkflowInstance, rec model.TransitionRecord, entry model.AuditLogEntry) error

	// History returns an instance's transition records in commit order,
	// oldest first.
	History(ctx context.Context, instanceID string) ([]model.TransitionRecord, error)
}
