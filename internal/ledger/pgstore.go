package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/model"
)

// PgStore is a PostgreSQL-backed evidence Store using pgx/v5. The table has
// no UPDATE or DELETE path; the hash column is written once at insert. Append
// runs the item insert and the audit insert in one transaction.
type PgStore struct {
	pool  *pgxpool.Pool
	audit *audit.PgStore
}

// NewPgStore creates a new PostgreSQL evidence store. The audit store must be
// backed by the same pool so evidence audit entries join the transaction.
func NewPgStore(pool *pgxpool.Pool, auditStore *audit.PgStore) *PgStore {
	return &PgStore{pool: pool, audit: auditStore}
}

// Append durably writes one item and its audit entry in one transaction.
func (s *PgStore) Append(ctx context.Context, item model.EvidenceItem, entry model.AuditLogEntry) error {
	contentJSON, err := json.Marshal(item.Content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.NewStorageUnavailableError(
			fmt.Sprintf("begin evidence append: %v", err),
		)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO evidence_items (
			id, mission_id, source_run_id, type, title, content, content_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.MissionID, item.SourceRunID, item.Type, item.Title,
		contentJSON, item.ContentHash, item.CreatedAt,
	)
	if err != nil {
		return model.NewStorageUnavailableError(
			fmt.Sprintf("insert evidence item: %v", err),
		)
	}

	if err := s.audit.AppendTx(ctx, tx, entry); err != nil {
		return model.NewStorageUnavailableError(
			fmt.Sprintf("insert evidence audit entry: %v", err),
		)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.NewStorageUnavailableError(
			fmt.Sprintf("commit evidence append: %v", err),
		)
	}
	return nil
}

// Get retrieves an item by ID.
func (s *PgStore) Get(ctx context.Context, id string) (model.EvidenceItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, mission_id, source_run_id, type, title, content, content_hash, created_at
		FROM evidence_items
		WHERE id = $1`,
		id,
	)

	item, err := scanItem(row)
	if err == pgx.ErrNoRows {
		return model.EvidenceItem{}, model.NewNotFoundError(
			fmt.Sprintf("evidence item %q not found", id),
		)
	}
	if err != nil {
		return model.EvidenceItem{}, model.NewStorageUnavailableError(
			fmt.Sprintf("query evidence item: %v", err),
		)
	}
	return item, nil
}

// ListByMission returns a mission's items in creation order.
func (s *PgStore) ListByMission(ctx context.Context, missionID string) ([]model.EvidenceItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, mission_id, source_run_id, type, title, content, content_hash, created_at
		FROM evidence_items
		WHERE mission_id = $1
		ORDER BY created_at ASC`,
		missionID,
	)
	if err != nil {
		return nil, model.NewStorageUnavailableError(
			fmt.Sprintf("query evidence items: %v", err),
		)
	}
	defer rows.Close()

	var items []model.EvidenceItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (model.EvidenceItem, error) {
	var item model.EvidenceItem
	var contentJSON []byte

	err := row.Scan(
		&item.ID, &item.MissionID, &item.SourceRunID, &item.Type, &item.Title,
		&contentJSON, &item.ContentHash, &item.CreatedAt,
	)
	if err != nil {
		return model.EvidenceItem{}, err
	}

	if err := json.Unmarshal(contentJSON, &item.Content); err != nil {
		return model.EvidenceItem{}, fmt.Errorf("unmarshal content: %w", err)
	}
	return item, nil
}
