package mission

import (
	"context"
	"time"

	"github.com/meridianops/custos/model"
)

// Store persists missions, tasks, and data sources.
type Store interface {
	// CreateMission inserts a new mission. CONFLICT if the ID exists.
	CreateMission(ctx context.Context, m model.Mission) error

	// GetMission retrieves a mission by ID.
	GetMission(ctx context.Context, id string) (model.Mission, error)

	// ListMissions returns an organization's missions, newest first.
	ListMissions(ctx context.Context, orgID string) ([]model.Mission, error)

	// MarkCompleted flips a mission to completed. Idempotent: a mission that
	// is already completed is left untouched and no error is returned.
	MarkCompleted(ctx context.Context, id string) error

	// DeleteMission removes a mission. Only the creation rollback calls
	// this: missions are never deleted once their instance and audit entry
	// exist.
	DeleteMission(ctx context.Context, id string) error

	// CreateTask inserts a new task under a mission.
	CreateTask(ctx context.Context, t model.Task) error

	// TasksByMission returns a mission's tasks in creation order.
	TasksByMission(ctx context.Context, missionID string) ([]model.Task, error)

	// OverdueTasks returns tasks past their due date and not yet completed,
	// as of the cutoff.
	OverdueTasks(ctx context.Context, cutoff time.Time) ([]model.Task, error)

	// DataSources returns all registered data sources.
	DataSources(ctx context.Context) ([]model.DataSource, error)
}
