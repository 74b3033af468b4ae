package workflow

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/model"
)

// PgStore is a PostgreSQL-backed InstanceStore using pgx/v5. ApplyTransition
// runs the instance CAS, the transition record insert, and the audit insert
// in one transaction.
type PgStore struct {
	pool  *pgxpool.Pool
	audit *audit.PgStore
}

// NewPgStore creates a new PostgreSQL instance store. The audit store must be
// backed by the same pool so transition audit entries join the transaction.
func NewPgStore(pool *pgxpool.Pool, auditStore *audit.PgStore) *PgStore {
	return &PgStore{pool: pool, audit: auditStore}
}

// Create inserts a new instance. The unique index on mission_id turns a
// second instance for the same mission into a CONFLICT.
func (s *PgStore) Create(ctx context.Context, inst model.WorkflowInstance) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_instances (
			id, definition_id, mission_id, current_state, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inst.ID, inst.DefinitionID, inst.MissionID, inst.CurrentState,
		inst.Version, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return model.NewStorageUnavailableError(
			fmt.Sprintf("insert workflow instance: %v", err),
		)
	}
	return nil
}

// Get retrieves an instance by ID.
func (s *PgStore) Get(ctx context.Context, id string) (model.WorkflowInstance, error) {
	return s.getOne(ctx, "id", id, fmt.Sprintf("workflow instance %q not found", id))
}

// GetByMission retrieves the instance attached to a mission.
func (s *PgStore) GetByMission(ctx context.Context, missionID string) (model.WorkflowInstance, error) {
	return s.getOne(ctx, "mission_id", missionID,
		fmt.Sprintf("no workflow instance for mission %q", missionID))
}

func (s *PgStore) getOne(ctx context.Context, column, value, notFoundMsg string) (model.WorkflowInstance, error) {
	var inst model.WorkflowInstance

	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, definition_id, mission_id, current_state, version, created_at, updated_at
		FROM workflow_instances
		WHERE %s = $1`, column),
		value,
	).Scan(
		&inst.ID, &inst.DefinitionID, &inst.MissionID, &inst.CurrentState,
		&inst.Version, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return model.WorkflowInstance{}, model.NewNotFoundError(notFoundMsg)
	}
	if err != nil {
		return model.WorkflowInstance{}, model.NewStorageUnavailableError(
			fmt.Sprintf("query workflow instance: %v", err),
		)
	}
	return inst, nil
}

// ApplyTransition commits a state change in one transaction: a conditional
// update on (id, version), the transition record insert, and the audit entry
// insert. Zero rows affected on the update means another writer won the race.
func (s *PgStore) ApplyTransition(ctx context.Context, inst model.WorkflowInstance, rec model.TransitionRecord, entry model.AuditLogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.NewStorageUnavailableError(
			fmt.Sprintf("begin transition: %v", err),
		)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE workflow_instances SET
			current_state = $1,
			version = $2,
			updated_at = $3
		WHERE id = $4 AND version = $5`,
		rec.ToState, inst.Version+1, rec.Timestamp,
		inst.ID, inst.Version,
	)
	if err != nil {
		return model.NewStorageUnavailableError(
			fmt.Sprintf("update workflow instance: %v", err),
		)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("workflow instance %q version conflict (expected %d)", inst.ID, inst.Version),
		)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO workflow_transitions (
			id, instance_id, from_state, to_state, actor_id, notes, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.InstanceID, rec.FromState, rec.ToState,
		rec.ActorID, rec.Notes, rec.Timestamp,
	)
	if err != nil {
		return model.NewStorageUnavailableError(
			fmt.Sprintf("insert transition record: %v", err),
		)
	}

	if err := s.audit.AppendTx(ctx, tx, entry); err != nil {
		return model.NewStorageUnavailableError(
			fmt.Sprintf("insert transition audit entry: %v", err),
		)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.NewStorageUnavailableError(
			fmt.Sprintf("commit transition: %v", err),
		)
	}
	return nil
}

// History returns an instance's transition records in commit order.
func (s *PgStore) History(ctx context.Context, instanceID string) ([]model.TransitionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, instance_id, from_state, to_state, actor_id, notes, timestamp
		FROM workflow_transitions
		WHERE instance_id = $1
		ORDER BY timestamp ASC`,
		instanceID,
	)
	if err != nil {
		return nil, model.NewStorageUnavailableError(
			fmt.Sprintf("query transition records: %v", err),
		)
	}
	defer rows.Close()

	var recs []model.TransitionRecord
	for rows.Next() {
		var rec model.TransitionRecord
		if err := rows.Scan(
			&rec.ID, &rec.InstanceID, &rec.FromState, &rec.ToState,
			&rec.ActorID, &rec.Notes, &rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan transition record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
