// Package workflow runs the per-mission state machine: instance creation,
// role-gated transitions with optimistic concurrency, and transition history.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/model"
)

// DefinitionSource resolves published workflow definitions. Satisfied by
// *definition.Registry.
type DefinitionSource interface {
	Get(ctx context.Context, id string) (model.WorkflowDefinition, error)
}

// MissionCompleter flips a mission's status when its workflow reaches a final
// state. Satisfied by the mission service.
type MissionCompleter interface {
	MarkCompleted(ctx context.Context, missionID string) error
}

// InstanceState is the workflow view returned for a mission: where it is and
// what the requesting actor may do next.
type InstanceState struct {
	InstanceID           string                      `json:"instanceId"`
	DefinitionID         string                      `json:"definitionId"`
	CurrentState         string                      `json:"currentState"`
	AvailableTransitions []model.AvailableTransition `json:"availableTransitions"`
}

// Machine manages workflow instance lifecycles.
type Machine struct {
	defs     DefinitionSource
	store    InstanceStore
	missions MissionCompleter
	log      *zap.Logger
}

// NewMachine creates a workflow Machine.
func NewMachine(defs DefinitionSource, store InstanceStore, missions MissionCompleter, log *zap.Logger) *Machine {
	return &Machine{defs: defs, store: store, missions: missions, log: log}
}

// CreateInstance attaches a new workflow instance to a mission, starting in
// the definition's initial state at version 1.
func (m *Machine) CreateInstance(ctx context.Context, definitionID, missionID string) (model.WorkflowInstance, error) {
	def, err := m.defs.Get(ctx, definitionID)
	if err != nil {
		return model.WorkflowInstance{}, err
	}

	initial := def.InitialState()
	if initial == "" {
		// Published definitions always have one; a definition seeded past
		// validation is a deployment error, not a caller error.
		return model.WorkflowInstance{}, model.NewInternalError()
	}

	now := time.Now().UTC()
	inst := model.WorkflowInstance{
		ID:           uuid.New().String(),
		DefinitionID: def.ID,
		MissionID:    missionID,
		CurrentState: initial,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.store.Create(ctx, inst); err != nil {
		return model.WorkflowInstance{}, err
	}

	m.log.Info("workflow instance created",
		zap.String("instance_id", inst.ID),
		zap.String("mission_id", missionID),
		zap.String("definition_id", def.ID),
		zap.String("initial_state", initial),
	)
	return inst, nil
}

// Transition moves a mission's workflow to toState on behalf of the actor in
// rctx. The sequence is: load instance and definition, authorize against the
// actor's roles, commit the state change with its transition record and audit
// entry in one atomic store write, then run the terminal-state side effect.
//
// A CONFLICT return means another actor committed first; the caller re-reads
// and decides whether to retry. The machine never retries.
func (m *Machine) Transition(ctx context.Context, rctx *model.RequestContext, missionID, toState, notes string) (model.WorkflowInstance, model.TransitionRecord, error) {
	inst, err := m.store.GetByMission(ctx, missionID)
	if err != nil {
		return model.WorkflowInstance{}, model.TransitionRecord{}, err
	}

	def, err := m.defs.Get(ctx, inst.DefinitionID)
	if err != nil {
		return model.WorkflowInstance{}, model.TransitionRecord{}, err
	}

	if _, err := Authorize(def, inst.CurrentState, toState, rctx.Roles); err != nil {
		return model.WorkflowInstance{}, model.TransitionRecord{}, err
	}

	now := time.Now().UTC()
	rec := model.TransitionRecord{
		ID:         uuid.New().String(),
		InstanceID: inst.ID,
		FromState:  inst.CurrentState,
		ToState:    toState,
		ActorID:    rctx.ActorID,
		Notes:      notes,
		Timestamp:  now,
	}
	entry := audit.NewEntry(rctx.ActorID, model.AuditActionTransition, "workflow_instance", inst.ID, map[string]any{
		"mission_id": missionID,
		"from_state": inst.CurrentState,
		"to_state":   toState,
	})

	if err := m.store.ApplyTransition(ctx, inst, rec, entry); err != nil {
		if model.IsCode(err, model.ErrConflict) {
			m.log.Warn("transition lost optimistic lock race",
				zap.String("instance_id", inst.ID),
				zap.String("mission_id", missionID),
				zap.Int("version", inst.Version),
			)
		}
		return model.WorkflowInstance{}, model.TransitionRecord{}, err
	}

	inst.CurrentState = toState
	inst.Version++
	inst.UpdatedAt = now

	m.log.Info("workflow transition committed",
		zap.String("instance_id", inst.ID),
		zap.String("mission_id", missionID),
		zap.String("from_state", rec.FromState),
		zap.String("to_state", rec.ToState),
		zap.String("actor_id", rctx.ActorID),
	)

	if def.IsFinal(toState) {
		// MarkCompleted is idempotent, so re-entering a final state (or a
		// second final state) does not double-fire the side effect. The
		// transition itself has already committed; a failure here is surfaced
		// but does not roll the state back.
		if err := m.missions.MarkCompleted(ctx, missionID); err != nil {
			m.log.Error("mission completion side effect failed",
				zap.String("mission_id", missionID),
				zap.Error(err),
			)
			return inst, rec, err
		}
	}

	return inst, rec, nil
}

// State returns a mission's current workflow position with the next actions
// available to the actor in rctx.
func (m *Machine) State(ctx context.Context, rctx *model.RequestContext, missionID string) (InstanceState, error) {
	inst, err := m.store.GetByMission(ctx, missionID)
	if err != nil {
		return InstanceState{}, err
	}

	def, err := m.defs.Get(ctx, inst.DefinitionID)
	if err != nil {
		return InstanceState{}, err
	}

	return InstanceState{
		InstanceID:           inst.ID,
		DefinitionID:         inst.DefinitionID,
		CurrentState:         inst.CurrentState,
		AvailableTransitions: AvailableTransitions(def, inst.CurrentState, rctx.Roles),
	}, nil
}

// History returns a mission's transition records in commit order.
func (m *Machine) History(ctx context.Context, missionID string) ([]model.TransitionRecord, error) {
	inst, err := m.store.GetByMission(ctx, missionID)
	if err != nil {
		return nil, err
	}

	recs, err := m.store.History(ctx, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("workflow: load history for instance %s: %w", inst.ID, err)
	}
	return recs, nil
}
