package probe

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/internal/ledger"
	"github.com/meridianops/custos/internal/observability"
	"github.com/meridianops/custos/model"
)

// DefaultRunsLimit bounds run listings without an explicit limit.
const DefaultRunsLimit = 50

// Runner executes probes: it resolves the evaluator for the probe's type,
// persists the run, appends any produced evidence to the ledger, emits
// telemetry, and records a PROBE_RUN audit entry.
type Runner struct {
	store     Store
	registry  *Registry
	evidences *ledger.Ledger
	sink      Sink
	trail     *audit.Trail
	metrics   *observability.Metrics
	log       *zap.Logger
}

// NewRunner creates a probe Runner. metrics may be nil in tests.
func NewRunner(store Store, registry *Registry, evidences *ledger.Ledger, sink Sink, trail *audit.Trail, metrics *observability.Metrics, log *zap.Logger) *Runner {
	return &Runner{
		store:     store,
		registry:  registry,
		evidences: evidences,
		sink:      sink,
		trail:     trail,
		metrics:   metrics,
		log:       log,
	}
}

// Run executes one probe on behalf of the actor in rctx and returns the
// completed run. Evaluator failures complete the run as failed rather than
// leaving it dangling in the running state.
func (r *Runner) Run(ctx context.Context, rctx *model.RequestContext, probeID string) (model.ProbeRun, error) {
	probe, err := r.store.GetProbe(ctx, probeID)
	if err != nil {
		return model.ProbeRun{}, err
	}

	eval, err := r.registry.Get(probe.Type)
	if err != nil {
		return model.ProbeRun{}, err
	}

	run := model.ProbeRun{
		ID:        uuid.New().String(),
		ProbeID:   probe.ID,
		Status:    model.ProbeRunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return model.ProbeRun{}, err
	}

	outcome, evalErr := eval.Evaluate(ctx, probe)
	if evalErr != nil {
		run = r.completeRun(ctx, run, model.ProbeRunFail, map[string]any{
			"error": evalErr.Error(),
		})
		if r.metrics != nil && run.CompletedAt != nil {
			r.metrics.RecordProbeRun(probe.Type, run.Status, run.CompletedAt.Sub(run.StartedAt))
		}
		r.log.Error("probe evaluation failed",
			zap.String("probe_id", probe.ID),
			zap.String("run_id", run.ID),
			zap.Error(evalErr),
		)
		return run, nil
	}

	for _, draft := range outcome.Evidence {
		if _, err := r.evidences.Append(ctx, rctx, draft.MissionID, draft.Type, draft.Title, draft.Content, run.ID); err != nil {
			r.log.Error("probe evidence append failed",
				zap.String("run_id", run.ID),
				zap.String("mission_id", draft.MissionID),
				zap.Error(err),
			)
		}
	}

	for _, draft := range outcome.Events {
		event := model.TelemetryEvent{
			ID:        uuid.New().String(),
			RunID:     run.ID,
			Type:      draft.Type,
			Severity:  draft.Severity,
			Message:   draft.Message,
			Data:      draft.Data,
			Timestamp: time.Now().UTC(),
		}
		if err := r.sink.Emit(ctx, event); err != nil {
			r.log.Error("telemetry emit failed",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
	}

	run = r.completeRun(ctx, run, outcome.Status, outcome.Result)
	if r.metrics != nil && run.CompletedAt != nil {
		r.metrics.RecordProbeRun(probe.Type, run.Status, run.CompletedAt.Sub(run.StartedAt))
	}

	if _, err := r.trail.Record(ctx, rctx.ActorID, model.AuditActionProbeRun, "probe", probe.ID, map[string]any{
		"run_id": run.ID,
		"type":   probe.Type,
		"status": run.Status,
	}); err != nil {
		return model.ProbeRun{}, err
	}

	r.log.Info("probe run completed",
		zap.String("probe_id", probe.ID),
		zap.String("run_id", run.ID),
		zap.String("status", run.Status),
		zap.Int("evidence_count", len(outcome.Evidence)),
	)
	return run, nil
}

func (r *Runner) completeRun(ctx context.Context, run model.ProbeRun, status string, result map[string]any) model.ProbeRun {
	now := time.Now().UTC()
	run.Status = status
	run.Result = result
	run.CompletedAt = &now
	if err := r.store.CompleteRun(ctx, run); err != nil {
		r.log.Error("probe run completion write failed",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
	}
	return run
}

// Runs returns a probe's recent runs, newest first.
func (r *Runner) Runs(ctx context.Context, probeID string, limit int) ([]model.ProbeRun, error) {
	if _, err := r.store.GetProbe(ctx, probeID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRunsLimit
	}
	return r.store.RunsByProbe(ctx, probeID, limit)
}

// RecentTelemetry returns the most recent telemetry events.
func (r *Runner) RecentTelemetry(ctx context.Context, limit int) ([]model.TelemetryEvent, error) {
	if limit <= 0 {
		limit = DefaultRunsLimit
	}
	return r.sink.Recent(ctx, limit)
}
