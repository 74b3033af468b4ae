package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianops/custos/model"
)

// PgStore is a PostgreSQL-backed audit Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL audit store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx, so the same insert
// serves the standalone and transactional append paths.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Append durably writes one entry.
func (s *PgStore) Append(ctx context.Context, entry model.AuditLogEntry) error {
	if err := appendEntry(ctx, s.pool, entry); err != nil {
		return model.NewStorageUnavailableError(
			fmt.Sprintf("insert audit entry: %v", err),
		)
	}
	return nil
}

// AppendTx writes one entry inside an existing transaction. The workflow
// instance store uses this to commit the audit entry atomically with the
// state change and transition record.
func (s *PgStore) AppendTx(ctx context.Context, tx pgx.Tx, entry model.AuditLogEntry) error {
	return appendEntry(ctx, tx, entry)
}

func appendEntry(ctx context.Context, db execer, entry model.AuditLogEntry) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO audit_logs (id, actor_id, action, entity_type, entity_id, details, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID,
		detailsJSON, entry.Timestamp,
	)
	return err
}

// Query returns entries matching the filter, newest first.
func (s *PgStore) Query(ctx context.Context, filter model.AuditFilter, window model.AuditWindow) ([]model.AuditLogEntry, error) {
	query := `SELECT id, actor_id, action, entity_type, entity_id, details, timestamp
	          FROM audit_logs WHERE 1=1`
	var args []any
	argIdx := 1

	add := func(column string, val any) {
		query += fmt.Sprintf(" AND %s = $%d", column, argIdx)
		args = append(args, val)
		argIdx++
	}
	if filter.ActorID != "" {
		add("actor_id", filter.ActorID)
	}
	if filter.Action != "" {
		add("action", filter.Action)
	}
	if filter.EntityType != "" {
		add("entity_type", filter.EntityType)
	}
	if filter.EntityID != "" {
		add("entity_id", filter.EntityID)
	}
	if !window.Since.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, window.Since)
		argIdx++
	}
	if !window.Until.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, window.Until)
		argIdx++
	}

	query += " ORDER BY timestamp DESC"
	if window.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, window.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, model.NewStorageUnavailableError(
			fmt.Sprintf("query audit entries: %v", err),
		)
	}
	defer rows.Close()

	var entries []model.AuditLogEntry
	for rows.Next() {
		var e model.AuditLogEntry
		var detailsJSON []byte
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID,
			&detailsJSON, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if detailsJSON != nil {
			_ = json.Unmarshal(detailsJSON, &e.Details)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HealthCheck verifies the store can reach the database.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
