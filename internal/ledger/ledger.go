// Package ledger is the tamper-evident evidence store. Items are hashed at
// append time and never mutated; corrections are new items.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/model"
)

// MissionChecker verifies a mission exists before evidence attaches to it.
// Satisfied by the mission service.
type MissionChecker interface {
	GetMission(ctx context.Context, id string) (model.Mission, error)
}

// Ledger appends and reads evidence items.
type Ledger struct {
	store    Store
	missions MissionChecker
	log      *zap.Logger
}

// NewLedger creates a Ledger.
func NewLedger(store Store, missions MissionChecker, log *zap.Logger) *Ledger {
	return &Ledger{store: store, missions: missions, log: log}
}

// Append validates the submission, computes the content hash, and hands the
// item with its audit entry to the store, which commits both as a unit. The
// hash is computed exactly once here; nothing downstream recomputes or
// rewrites it.
func (l *Ledger) Append(ctx context.Context, rctx *model.RequestContext, missionID, itemType, title string, content map[string]any, sourceRunID string) (model.EvidenceItem, error) {
	var details []model.FieldError
	if itemType == "" {
		details = append(details, model.FieldError{
			Field: "type", Code: "REQUIRED", Message: "evidence type is required",
		})
	}
	if title == "" {
		details = append(details, model.FieldError{
			Field: "title", Code: "REQUIRED", Message: "evidence title is required",
		})
	}
	if content == nil {
		details = append(details, model.FieldError{
			Field: "content", Code: "REQUIRED", Message: "evidence content is required",
		})
	}
	if len(details) > 0 {
		return model.EvidenceItem{}, model.NewValidationError(details)
	}

	if _, err := l.missions.GetMission(ctx, missionID); err != nil {
		return model.EvidenceItem{}, err
	}

	hash, err := ContentHash(content)
	if err != nil {
		return model.EvidenceItem{}, model.NewBadRequestError(
			fmt.Sprintf("evidence content is not serializable: %v", err),
		)
	}

	item := model.EvidenceItem{
		ID:          uuid.New().String(),
		MissionID:   missionID,
		SourceRunID: sourceRunID,
		Type:        itemType,
		Title:       title,
		Content:     content,
		ContentHash: hash,
		CreatedAt:   time.Now().UTC(),
	}

	entry := audit.NewEntry(rctx.ActorID, model.AuditActionEvidence, "evidence", item.ID, map[string]any{
		"mission_id": missionID,
		"type":       itemType,
		"hash":       hash,
	})
	if err := l.store.Append(ctx, item, entry); err != nil {
		return model.EvidenceItem{}, err
	}

	l.log.Info("evidence appended",
		zap.String("evidence_id", item.ID),
		zap.String("mission_id", missionID),
		zap.String("type", itemType),
		zap.String("hash", hash),
	)
	return item, nil
}

// Get retrieves a single item by ID.
func (l *Ledger) Get(ctx context.Context, id string) (model.EvidenceItem, error) {
	return l.store.Get(ctx, id)
}

// ListByMission returns a mission's evidence in creation order. The mission
// is checked first so an unknown mission is NOT_FOUND rather than an empty
// list.
func (l *Ledger) ListByMission(ctx context.Context, missionID string) ([]model.EvidenceItem, error) {
	if _, err := l.missions.GetMission(ctx, missionID); err != nil {
		return nil, err
	}
	return l.store.ListByMission(ctx, missionID)
}
