// Package mission manages the mission and task records that workflows,
// evidence, and probes hang off.
package mission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/model"
)

// InstanceCreator attaches a workflow instance to a newly created mission.
// Satisfied by the workflow machine.
type InstanceCreator interface {
	CreateInstance(ctx context.Context, definitionID, missionID string) (model.WorkflowInstance, error)
}

// Service is the mission application service.
type Service struct {
	store     Store
	trail     *audit.Trail
	instances InstanceCreator
	log       *zap.Logger
}

// NewService creates a mission Service.
func NewService(store Store, trail *audit.Trail, instances InstanceCreator, log *zap.Logger) *Service {
	return &Service{store: store, trail: trail, instances: instances, log: log}
}

// CreateMission creates a mission, attaches a workflow instance built from
// the given definition, and records a CREATE audit entry. A failure after the
// mission insert rolls the mission back, so a mission is never observable
// without its instance and audit entry.
func (s *Service) CreateMission(ctx context.Context, rctx *model.RequestContext, name, description, definitionID string) (model.Mission, model.WorkflowInstance, error) {
	var details []model.FieldError
	if name == "" {
		details = append(details, model.FieldError{
			Field: "name", Code: "REQUIRED", Message: "mission name is required",
		})
	}
	if definitionID == "" {
		details = append(details, model.FieldError{
			Field: "definitionId", Code: "REQUIRED", Message: "workflow definition is required",
		})
	}
	if len(details) > 0 {
		return model.Mission{}, model.WorkflowInstance{}, model.NewValidationError(details)
	}

	m := model.Mission{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Status:      model.MissionStatusActive,
		OrgID:       rctx.OrgID,
		CreatedBy:   rctx.ActorID,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.CreateMission(ctx, m); err != nil {
		return model.Mission{}, model.WorkflowInstance{}, err
	}

	inst, err := s.instances.CreateInstance(ctx, definitionID, m.ID)
	if err != nil {
		s.undoCreate(ctx, m.ID)
		return model.Mission{}, model.WorkflowInstance{}, err
	}

	if _, err := s.trail.Record(ctx, rctx.ActorID, model.AuditActionCreate, "mission", m.ID, map[string]any{
		"name":          name,
		"definition_id": definitionID,
		"instance_id":   inst.ID,
	}); err != nil {
		s.undoCreate(ctx, m.ID)
		return model.Mission{}, model.WorkflowInstance{}, err
	}

	s.log.Info("mission created",
		zap.String("mission_id", m.ID),
		zap.String("definition_id", definitionID),
		zap.String("actor_id", rctx.ActorID),
	)
	return m, inst, nil
}

// undoCreate removes a mission whose instance or audit write failed. The
// original error is what the caller sees; a rollback failure is only logged.
func (s *Service) undoCreate(ctx context.Context, id string) {
	if err := s.store.DeleteMission(ctx, id); err != nil {
		s.log.Error("mission rollback failed",
			zap.String("mission_id", id),
			zap.Error(err),
		)
	}
}

// GetMission retrieves a mission by ID.
func (s *Service) GetMission(ctx context.Context, id string) (model.Mission, error) {
	return s.store.GetMission(ctx, id)
}

// ListMissions returns an organization's missions.
func (s *Service) ListMissions(ctx context.Context, orgID string) ([]model.Mission, error) {
	return s.store.ListMissions(ctx, orgID)
}

// MarkCompleted flips a mission to completed. Idempotent.
func (s *Service) MarkCompleted(ctx context.Context, id string) error {
	return s.store.MarkCompleted(ctx, id)
}

// CreateTask adds a task under a mission.
func (s *Service) CreateTask(ctx context.Context, rctx *model.RequestContext, missionID, title, priority string, dueDate *time.Time) (model.Task, error) {
	if title == "" {
		return model.Task{}, model.NewValidationError([]model.FieldError{
			{Field: "title", Code: "REQUIRED", Message: "task title is required"},
		})
	}
	if _, err := s.store.GetMission(ctx, missionID); err != nil {
		return model.Task{}, err
	}

	t := model.Task{
		ID:        uuid.New().String(),
		MissionID: missionID,
		Title:     title,
		Status:    model.TaskStatusPending,
		Priority:  priority,
		DueDate:   dueDate,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// TasksByMission returns a mission's tasks in creation order.
func (s *Service) TasksByMission(ctx context.Context, missionID string) ([]model.Task, error) {
	if _, err := s.store.GetMission(ctx, missionID); err != nil {
		return nil, err
	}
	return s.store.TasksByMission(ctx, missionID)
}
