package definition

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/model"
)

// snapshot is an immutable collection of published definitions indexed by ID.
type snapshot struct {
	defs map[string]model.WorkflowDefinition
}

// Registry is the publish path and read path for workflow definitions.
// Reads are lock-free via atomic pointer swap; the registry is read-mostly
// and definitions are immutable after publish, so readers never observe a
// partially published graph.
type Registry struct {
	validator *Validator
	store     Store
	trail     *audit.Trail

	mu   sync.Mutex // serializes publishes
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry over the given store, pre-warming the
// snapshot with already-persisted definitions.
func NewRegistry(ctx context.Context, store Store, trail *audit.Trail, orgID string) (*Registry, error) {
	r := &Registry{validator: NewValidator(), store: store, trail: trail}

	existing, err := store.List(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("definition: warming registry: %w", err)
	}

	s := &snapshot{defs: make(map[string]model.WorkflowDefinition, len(existing))}
	for _, d := range existing {
		s.defs[d.ID] = d
	}
	r.snap.Store(s)
	return r, nil
}

// Publish validates a definition, assigns it an ID, persists it, records a
// PUBLISH audit entry, and makes it visible to readers. Validation failures
// return a VALIDATION_ERROR listing
// every violated invariant; nothing is persisted on failure (no partial
// publish). Empty transition role lists are normalized to the wildcard.
func (r *Registry) Publish(ctx context.Context, rctx *model.RequestContext, def model.WorkflowDefinition) (model.WorkflowDefinition, error) {
	if verrs := r.validator.Validate(def); len(verrs) > 0 {
		return model.WorkflowDefinition{}, model.NewValidationError(FieldErrors(verrs))
	}

	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	def.OrgID = rctx.OrgID
	def.PublishedAt = time.Now().UTC()
	for i := range def.Transitions {
		if len(def.Transitions[i].Roles) == 0 {
			def.Transitions[i].Roles = []string{model.RoleWildcard}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Create(ctx, def); err != nil {
		return model.WorkflowDefinition{}, err
	}

	if _, err := r.trail.Record(ctx, rctx.ActorID, model.AuditActionPublish, "workflow_definition", def.ID, map[string]any{
		"name":        def.Name,
		"states":      len(def.States),
		"transitions": len(def.Transitions),
	}); err != nil {
		return model.WorkflowDefinition{}, err
	}

	old := r.snap.Load()
	next := &snapshot{defs: make(map[string]model.WorkflowDefinition, len(old.defs)+1)}
	for id, d := range old.defs {
		next.defs[id] = d
	}
	next.defs[def.ID] = def
	r.snap.Store(next)

	return def, nil
}

// Get returns the definition with the given ID. The snapshot is consulted
// first; on miss the store is read through (another replica may have
// published it).
func (r *Registry) Get(ctx context.Context, id string) (model.WorkflowDefinition, error) {
	if d, ok := r.snap.Load().defs[id]; ok {
		return d, nil
	}

	d, err := r.store.Get(ctx, id)
	if err != nil {
		return model.WorkflowDefinition{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.snap.Load()
	if _, ok := old.defs[d.ID]; !ok {
		next := &snapshot{defs: make(map[string]model.WorkflowDefinition, len(old.defs)+1)}
		for k, v := range old.defs {
			next.defs[k] = v
		}
		next.defs[d.ID] = d
		r.snap.Store(next)
	}
	return d, nil
}

// List returns all published definitions for an organization.
func (r *Registry) List(ctx context.Context, orgID string) ([]model.WorkflowDefinition, error) {
	return r.store.List(ctx, orgID)
}

// Len returns the number of definitions in the current snapshot.
func (r *Registry) Len() int {
	return len(r.snap.Load().defs)
}
