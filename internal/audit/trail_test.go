package audit

import (
	"context"
	"testing"
	"time"

	"github.com/meridianops/custos/model"
)

func TestTrail_record_and_query(t *testing.T) {
	trail := NewTrail(NewMemoryStore())
	ctx := context.Background()

	entry, err := trail.Record(ctx, "user-alice", model.AuditActionCreate, "mission", "mission-1", map[string]any{"name": "Recon"})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if entry.ID == "" {
		t.Error("Record() did not assign an ID")
	}
	if entry.Timestamp.IsZero() {
		t.Error("Record() did not stamp the entry")
	}

	got, err := trail.Query(ctx, model.AuditFilter{EntityType: "mission"}, model.AuditWindow{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Query() = %d entries, want 1", len(got))
	}
	if got[0].ActorID != "user-alice" || got[0].Action != model.AuditActionCreate {
		t.Errorf("entry = %+v", got[0])
	}
}

func TestTrail_rejects_unscoped_query(t *testing.T) {
	trail := NewTrail(NewMemoryStore())

	_, err := trail.Query(context.Background(), model.AuditFilter{}, model.AuditWindow{Limit: 10})
	if !model.IsCode(err, model.ErrBadRequest) {
		t.Fatalf("Query() error = %v, want BAD_REQUEST", err)
	}
}

func TestTrail_query_newest_first(t *testing.T) {
	trail := NewTrail(NewMemoryStore())
	ctx := context.Background()

	for _, id := range []string{"e-1", "e-2", "e-3"} {
		if _, err := trail.Record(ctx, "user-alice", model.AuditActionEvidence, "evidence", id, nil); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := trail.Query(ctx, model.AuditFilter{ActorID: "user-alice"}, model.AuditWindow{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Query() = %d entries, want 3", len(got))
	}
	if got[0].EntityID != "e-3" || got[2].EntityID != "e-1" {
		t.Errorf("order = [%s %s %s], want newest first", got[0].EntityID, got[1].EntityID, got[2].EntityID)
	}
}

func TestTrail_query_limit(t *testing.T) {
	trail := NewTrail(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := trail.Record(ctx, "user-alice", model.AuditActionExport, "mission", "mission-1", nil); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := trail.Query(ctx, model.AuditFilter{ActorID: "user-alice"}, model.AuditWindow{Limit: 2})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Query() = %d entries, want 2", len(got))
	}
}

func TestTrail_query_time_window(t *testing.T) {
	store := NewMemoryStore()
	trail := NewTrail(store)
	ctx := context.Background()

	old := NewEntry("user-alice", model.AuditActionCreate, "mission", "m-old", nil)
	old.Timestamp = time.Now().UTC().Add(-48 * time.Hour)
	if err := store.Append(ctx, old); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := trail.Record(ctx, "user-alice", model.AuditActionCreate, "mission", "m-new", nil); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := trail.Query(ctx, model.AuditFilter{ActorID: "user-alice"}, model.AuditWindow{
		Since: time.Now().UTC().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].EntityID != "m-new" {
		t.Errorf("windowed query = %+v, want only m-new", got)
	}
}
