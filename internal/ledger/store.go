package ledger

import (
	"context"

	"github.com/meridianops/custos/model"
)

// Store persists evidence items. The ledger is append-only: implementations
// expose no update or delete operation, and none may be added.
type Store interface {
	// Append durably writes one item together with its audit entry. The two
	// writes commit or fail as a unit: an item is never observable without
	// its trail entry.
	Append(ctx context.Context, item model.EvidenceItem, entry model.AuditLogEntry) error

	// Get retrieves an item by ID.
	Get(ctx context.Context, id string) (model.EvidenceItem, error)

	// ListByMission returns a mission's items in creation order, oldest first.
	ListByMission(ctx context.Context, missionID string) ([]model.EvidenceItem, error)
}
