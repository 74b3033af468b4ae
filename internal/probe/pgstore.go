package probe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianops/custos/model"
)

// PgStore is a PostgreSQL-backed probe Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL probe store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// CreateProbe registers a probe definition.
func (s *PgStore) CreateProbe(ctx context.Context, p model.ProbeDefinition) error {
	configJSON, err := json.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("marshal probe config: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO probes (id, name, type, config, schedule, active, org_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Type, configJSON, p.Schedule, p.Active, p.OrgID,
	)
	if err != nil {
		return model.NewStorageUnavailableError(fmt.Sprintf("insert probe: %v", err))
	}
	return nil
}

// GetProbe retrieves a probe definition by ID.
func (s *PgStore) GetProbe(ctx context.Context, id string) (model.ProbeDefinition, error) {
	var p model.ProbeDefinition
	var configJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, name, type, config, schedule, active, org_id
		FROM probes WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Type, &configJSON, &p.Schedule, &p.Active, &p.OrgID)
	if err == pgx.ErrNoRows {
		return model.ProbeDefinition{}, model.NewNotFoundError(fmt.Sprintf("probe %q not found", id))
	}
	if err != nil {
		return model.ProbeDefinition{}, model.NewStorageUnavailableError(
			fmt.Sprintf("query probe: %v", err),
		)
	}
	if configJSON != nil {
		_ = json.Unmarshal(configJSON, &p.Config)
	}
	return p, nil
}

// ListProbes returns an organization's probe definitions.
func (s *PgStore) ListProbes(ctx context.Context, orgID string) ([]model.ProbeDefinition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, type, config, schedule, active, org_id
		FROM probes WHERE org_id = $1
		ORDER BY name ASC`,
		orgID,
	)
	if err != nil {
		return nil, model.NewStorageUnavailableError(fmt.Sprintf("query probes: %v", err))
	}
	defer rows.Close()

	var out []model.ProbeDefinition
	for rows.Next() {
		var p model.ProbeDefinition
		var configJSON []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &configJSON, &p.Schedule, &p.Active, &p.OrgID); err != nil {
			return nil, fmt.Errorf("scan probe: %w", err)
		}
		if configJSON != nil {
			_ = json.Unmarshal(configJSON, &p.Config)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateRun inserts a run in the running state.
func (s *PgStore) CreateRun(ctx context.Context, run model.ProbeRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO probe_runs (id, probe_id, status, result, started_at, completed_at)
		VALUES ($1, $2, $3, NULL, $4, NULL)`,
		run.ID, run.ProbeID, run.Status, run.StartedAt,
	)
	if err != nil {
		return model.NewStorageUnavailableError(fmt.Sprintf("insert probe run: %v", err))
	}
	return nil
}

// CompleteRun records a run's final status and result.
func (s *PgStore) CompleteRun(ctx context.Context, run model.ProbeRun) error {
	resultJSON, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("marshal run result: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE probe_runs SET status = $1, result = $2, completed_at = $3
		WHERE id = $4`,
		run.Status, resultJSON, run.CompletedAt, run.ID,
	)
	if err != nil {
		return model.NewStorageUnavailableError(fmt.Sprintf("complete probe run: %v", err))
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("probe run %q not found", run.ID))
	}
	return nil
}

// RunsByProbe returns a probe's runs, newest first.
func (s *PgStore) RunsByProbe(ctx context.Context, probeID string, limit int) ([]model.ProbeRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, probe_id, status, result, started_at, completed_at
		FROM probe_runs
		WHERE probe_id = $1
		ORDER BY started_at DESC
		LIMIT $2`,
		probeID, limit,
	)
	if err != nil {
		return nil, model.NewStorageUnavailableError(fmt.Sprintf("query probe runs: %v", err))
	}
	defer rows.Close()

	var out []model.ProbeRun
	for rows.Next() {
		var run model.ProbeRun
		var resultJSON []byte
		if err := rows.Scan(&run.ID, &run.ProbeID, &run.Status, &resultJSON, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan probe run: %w", err)
		}
		if resultJSON != nil {
			_ = json.Unmarshal(resultJSON, &run.Result)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// PgSink is a PostgreSQL-backed telemetry Sink.
type PgSink struct {
	pool *pgxpool.Pool
}

// NewPgSink creates a new PostgreSQL telemetry sink.
func NewPgSink(pool *pgxpool.Pool) *PgSink {
	return &PgSink{pool: pool}
}

// Emit records one event.
func (s *PgSink) Emit(ctx context.Context, event model.TelemetryEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal telemetry data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO telemetry_events (id, run_id, type, severity, message, data, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.RunID, event.Type, event.Severity, event.Message, dataJSON, event.Timestamp,
	)
	if err != nil {
		return model.NewStorageUnavailableError(fmt.Sprintf("insert telemetry event: %v", err))
	}
	return nil
}

// Recent returns the most recent events, newest first.
func (s *PgSink) Recent(ctx context.Context, limit int) ([]model.TelemetryEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, type, severity, message, data, timestamp
		FROM telemetry_events
		ORDER BY timestamp DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, model.NewStorageUnavailableError(fmt.Sprintf("query telemetry events: %v", err))
	}
	defer rows.Close()

	var out []model.TelemetryEvent
	for rows.Next() {
		var e model.TelemetryEvent
		var dataJSON []byte
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.Severity, &e.Message, &dataJSON, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan telemetry event: %w", err)
		}
		if dataJSON != nil {
			_ = json.Unmarshal(dataJSON, &e.Data)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
