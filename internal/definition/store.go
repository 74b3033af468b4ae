package definition

import (
	"context"

	"github.com/meridianops/custos/model"
)

// Store persists published workflow definitions. Definitions are write-once:
// there is no update or delete operation.
type Store interface {
	// Create persists a newly published definition. Returns CONFLICT if the
	// ID already exists.
	Create(ctx context.Context, def model.WorkflowDefinition) error

	// Get retrieves a definition by ID. Returns NOT_FOUND if absent.
	Get(ctx context.Context, id string) (model.WorkflowDefinition, error)

	// List returns all definitions for an organization.
	List(ctx context.Context, orgID string) ([]model.WorkflowDefinition, error)
}
