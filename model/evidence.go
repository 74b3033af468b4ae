package model

import "time"

// EvidenceItem is an immutable, hash-verifiable record of observed fact
// attached to a mission. ContentHash is computed over the canonical
// serialization of Content at append time and never recomputed or altered;
// any consumer can re-derive it to verify the item has not been tampered
// with. Corrections are new items — there is no update path.
type EvidenceItem struct {
	ID          string         `json:"id"`
	MissionID   string         `json:"mission_id"`
	SourceRunID string         `json:"source_run_id,omitempty"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Content     map[string]any `json:"content"`
	ContentHash string         `json:"hash"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Probe type identifiers for the built-in evaluators.
const (
	ProbeTypeSLABreach            = "sla_breach_detector"
	ProbeTypeDataFreshness        = "data_freshness"
	ProbeTypeEvidenceCompleteness = "compliance_evidence_completeness"
)

// ProbeDefinition is a registered health-check rule. The rule body lives in
// an evaluator; the definition only names its type and configuration.
type ProbeDefinition struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Config   map[string]any `json:"config,omitempty"`
	Schedule string         `json:"schedule,omitempty"`
	Active   bool           `json:"active"`
	OrgID    string         `json:"org_id,omitempty"`
}

// Probe run status constants.
const (
	ProbeRunRunning = "running"
	ProbeRunPass    = "pass"
	ProbeRunWarning = "warning"
	ProbeRunFail    = "fail"
)

// ProbeRun is one execution of a probe.
type ProbeRun struct {
	ID          string         `json:"id"`
	ProbeID     string         `json:"probe_id"`
	Status      string         `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// TelemetryEvent is an observation emitted by a probe run to the telemetry
// sink.
type TelemetryEvent struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// DataSource is the minimal view of an ingestion source needed by the
// data-freshness probe.
type DataSource struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	LastIngestion *time.Time `json:"last_ingestion,omitempty"`
}
