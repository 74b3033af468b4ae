package probe

import (
	"context"

	"github.com/meridianops/custos/model"
)

// Store persists probe definitions and their runs.
type Store interface {
	// CreateProbe registers a probe definition.
	CreateProbe(ctx context.Context, p model.ProbeDefinition) error

	// GetProbe retrieves a probe definition by ID.
	GetProbe(ctx context.Context, id string) (model.ProbeDefinition, error)

	// ListProbes returns an organization's probe definitions.
	ListProbes(ctx context.Context, orgID string) ([]model.ProbeDefinition, error)

	// CreateRun inserts a run in the running state.
	CreateRun(ctx context.Context, run model.ProbeRun) error

	// CompleteRun records a run's final status and result.
	CompleteRun(ctx context.Context, run model.ProbeRun) error

	// RunsByProbe returns a probe's runs, newest first.
	RunsByProbe(ctx context.Context, probeID string, limit int) ([]model.ProbeRun, error)
}

// Sink receives telemetry events emitted by probe runs.
type Sink interface {
	// Emit records one event.
	Emit(ctx context.Context, event model.TelemetryEvent) error

	// Recent returns the most recent events, newest first.
	Recent(ctx context.Context, limit int) ([]model.TelemetryEvent, error)
}
