package mission

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianops/custos/model"
)

// PgStore is a PostgreSQL-backed mission Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL mission store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// CreateMission inserts a new mission.
func (s *PgStore) CreateMission(ctx context.Context, m model.Mission) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO missions (id, name, description, status, org_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.Name, m.Description, m.Status, m.OrgID, m.CreatedBy, m.CreatedAt,
	)
	if err != nil {
		return model.NewStorageUnavailableError(fmt.Sprintf("insert mission: %v", err))
	}
	return nil
}

// GetMission retrieves a mission by ID.
func (s *PgStore) GetMission(ctx context.Context, id string) (model.Mission, error) {
	var m model.Mission
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, status, org_id, created_by, created_at
		FROM missions WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Name, &m.Description, &m.Status, &m.OrgID, &m.CreatedBy, &m.CreatedAt)
	if err == pgx.ErrNoRows {
		return model.Mission{}, model.NewNotFoundError(fmt.Sprintf("mission %q not found", id))
	}
	if err != nil {
		return model.Mission{}, model.NewStorageUnavailableError(
			fmt.Sprintf("query mission: %v", err),
		)
	}
	return m, nil
}

// ListMissions returns an organization's missions, newest first.
func (s *PgStore) ListMissions(ctx context.Context, orgID string) ([]model.Mission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, status, org_id, created_by, created_at
		FROM missions WHERE org_id = $1
		ORDER BY created_at DESC`,
		orgID,
	)
	if err != nil {
		return nil, model.NewStorageUnavailableError(fmt.Sprintf("query missions: %v", err))
	}
	defer rows.Close()

	var out []model.Mission
	for rows.Next() {
		var m model.Mission
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Status, &m.OrgID, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkCompleted flips a mission to completed. The status guard in the WHERE
// clause makes repeated calls no-ops, so the terminal-state side effect can
// fire more than once without a double update.
func (s *PgStore) MarkCompleted(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE missions SET status = $1
		WHERE id = $2 AND status <> $1`,
		model.MissionStatusCompleted, id,
	)
	if err != nil {
		return model.NewStorageUnavailableError(fmt.Sprintf("complete mission: %v", err))
	}
	if tag.RowsAffected() == 0 {
		// Already completed, or missing. Distinguish the two.
		if _, err := s.GetMission(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMission removes a mission.
func (s *PgStore) DeleteMission(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM missions WHERE id = $1`, id)
	if err != nil {
		return model.NewStorageUnavailableError(fmt.Sprintf("delete mission: %v", err))
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("mission %q not found", id))
	}
	return nil
}

// CreateTask inserts a new task under a mission.
func (s *PgStore) CreateTask(ctx context.Context, t model.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (
			id, mission_id, title, status, priority, assignee_id,
			due_date, completed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.MissionID, t.Title, t.Status, t.Priority, t.AssigneeID,
		t.DueDate, t.CompletedAt, t.CreatedAt,
	)
	if err != nil {
		return model.NewStorageUnavailableError(fmt.Sprintf("insert task: %v", err))
	}
	return nil
}

// TasksByMission returns a mission's tasks in creation order.
func (s *PgStore) TasksByMission(ctx context.Context, missionID string) ([]model.Task, error) {
	return s.queryTasks(ctx, `
		SELECT id, mission_id, title, status, priority, assignee_id,
		       due_date, completed_at, created_at
		FROM tasks WHERE mission_id = $1
		ORDER BY created_at ASC`,
		missionID,
	)
}

// OverdueTasks returns incomplete tasks past their due date.
func (s *PgStore) OverdueTasks(ctx context.Context, cutoff time.Time) ([]model.Task, error) {
	return s.queryTasks(ctx, `
		SELECT id, mission_id, title, status, priority, assignee_id,
		       due_date, completed_at, created_at
		FROM tasks
		WHERE status <> $1 AND due_date IS NOT NULL AND due_date < $2
		ORDER BY due_date ASC`,
		model.TaskStatusCompleted, cutoff,
	)
}

func (s *PgStore) queryTasks(ctx context.Context, query string, args ...any) ([]model.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, model.NewStorageUnavailableError(fmt.Sprintf("query tasks: %v", err))
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(
			&t.ID, &t.MissionID, &t.Title, &t.Status, &t.Priority, &t.AssigneeID,
			&t.DueDate, &t.CompletedAt, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DataSources returns all registered data sources.
func (s *PgStore) DataSources(ctx context.Context) ([]model.DataSource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, last_ingestion FROM data_sources ORDER BY name ASC`)
	if err != nil {
		return nil, model.NewStorageUnavailableError(fmt.Sprintf("query data sources: %v", err))
	}
	defer rows.Close()

	var out []model.DataSource
	for rows.Next() {
		var src model.DataSource
		if err := rows.Scan(&src.ID, &src.Name, &src.LastIngestion); err != nil {
			return nil, fmt.Errorf("scan data source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}
