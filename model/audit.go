package model

import "time"

// Audit action identifiers. Every privileged mutation produces exactly one
// entry with one of these actions.
const (
	AuditActionCreate     = "CREATE"
	AuditActionPublish    = "PUBLISH"
	AuditActionTransition = "TRANSITION"
	AuditActionEvidence   = "EVIDENCE_APPEND"
	AuditActionExport     = "EXPORT"
	AuditActionProbeRun   = "PROBE_RUN"
)

// AuditLogEntry is an immutable record of a privileged action taken by an
// actor. Entries are append-only with unbounded retention; queries are
// windowed.
type AuditLogEntry struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// AuditFilter narrows an audit query. At least one scoping field must be set;
// unscoped scans of the trail are rejected.
type AuditFilter struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
}

// Scoped reports whether the filter names at least one scope.
func (f AuditFilter) Scoped() bool {
	return f.ActorID != "" || f.Action != "" || f.EntityType != "" || f.EntityID != ""
}

// AuditWindow bounds an audit query by count and/or time range to avoid
// unbounded scans. A zero Limit falls back to the store's default.
type AuditWindow struct {
	Limit int
	Since time.Time
	Until time.Time
}
