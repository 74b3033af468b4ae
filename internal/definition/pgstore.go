package definition

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianops/custos/model"
)

// PgStore is a PostgreSQL-backed definition Store using pgx/v5. The states
// and transitions columns hold the typed graph serialized as JSON; it is
// parsed once here on read, never re-interpreted per transition check.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL definition store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Create persists a newly published definition.
func (s *PgStore) Create(ctx context.Context, def model.WorkflowDefinition) error {
	statesJSON, err := json.Marshal(def.States)
	if err != nil {
		return fmt.Errorf("marshal states: %w", err)
	}
	transitionsJSON, err := json.Marshal(def.Transitions)
	if err != nil {
		return fmt.Errorf("marshal transitions: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_definitions (
			id, name, description, states, transitions, org_id, published_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		def.ID, def.Name, def.Description, statesJSON, transitionsJSON,
		def.OrgID, def.PublishedAt,
	)
	if err != nil {
		return model.NewStorageUnavailableError(
			fmt.Sprintf("insert workflow definition: %v", err),
		)
	}
	return nil
}

// Get retrieves a definition by ID.
func (s *PgStore) Get(ctx context.Context, id string) (model.WorkflowDefinition, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, states, transitions, org_id, published_at
		FROM workflow_definitions
		WHERE id = $1`,
		id,
	)

	def, err := scanDefinition(row)
	if err == pgx.ErrNoRows {
		return model.WorkflowDefinition{}, model.NewNotFoundError(
			fmt.Sprintf("workflow definition %q not found", id),
		)
	}
	if err != nil {
		return model.WorkflowDefinition{}, model.NewStorageUnavailableError(
			fmt.Sprintf("query workflow definition: %v", err),
		)
	}
	return def, nil
}

// List returns all definitions for an organization, ordered by publish time.
func (s *PgStore) List(ctx context.Context, orgID string) ([]model.WorkflowDefinition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, states, transitions, org_id, published_at
		FROM workflow_definitions
		WHERE org_id = $1
		ORDER BY published_at ASC`,
		orgID,
	)
	if err != nil {
		return nil, model.NewStorageUnavailableError(
			fmt.Sprintf("query workflow definitions: %v", err),
		)
	}
	defer rows.Close()

	var defs []model.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (model.WorkflowDefinition, error) {
	var def model.WorkflowDefinition
	var statesJSON, transitionsJSON []byte

	err := row.Scan(
		&def.ID, &def.Name, &def.Description,
		&statesJSON, &transitionsJSON,
		&def.OrgID, &def.PublishedAt,
	)
	if err != nil {
		return model.WorkflowDefinition{}, err
	}

	if err := json.Unmarshal(statesJSON, &def.States); err != nil {
		return model.WorkflowDefinition{}, fmt.Errorf("unmarshal states: %w", err)
	}
	if err := json.Unmarshal(transitionsJSON, &def.Transitions); err != nil {
		return model.WorkflowDefinition{}, fmt.Errorf("unmarshal transitions: %w", err)
	}
	return def, nil
}
