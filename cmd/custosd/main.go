// Package main is the entry point for the custosd server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/internal/config"
	"github.com/meridianops/custos/internal/definition"
	"github.com/meridianops/custos/internal/export"
	"github.com/meridianops/custos/internal/ledger"
	"github.com/meridianops/custos/internal/mission"
	"github.com/meridianops/custos/internal/observability"
	"github.com/meridianops/custos/internal/probe"
	"github.com/meridianops/custos/internal/transport"
	"github.com/meridianops/custos/internal/workflow"
	"github.com/meridianops/custos/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "custosd", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Stores. The memory driver runs everything in process; postgres shares
	// one pool across all stores.
	st, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}
	if closeStores != nil {
		defer closeStores()
	}

	trail := audit.NewTrail(st.audit)

	registry, err := definition.NewRegistry(ctx, st.definitions, trail, cfg.Org.ID)
	if err != nil {
		logger.Error("definition registry initialization failed", zap.Error(err))
		return 1
	}
	if err := seedDefinitions(ctx, cfg, registry, logger); err != nil {
		logger.Error("definition seeding failed", zap.Error(err))
		return 1
	}
	metrics.SetDefinitionsLoaded(float64(registry.Len()))

	// Wiring order matters: the machine completes missions through the
	// mission store, and the mission service creates instances through the
	// machine.
	machine := workflow.NewMachine(registry, st.instances, st.missions, logger)
	missionSvc := mission.NewService(st.missions, trail, machine, logger)
	evidence := ledger.NewLedger(st.evidence, st.missions, logger)
	exporter := export.NewExporter(missionSvc, evidence, machine, trail, logger)

	probeReg := probe.NewRegistry()
	probe.RegisterBuiltins(probeReg, st.missions, st.evidence)
	runner := probe.NewRunner(st.probes, probeReg, evidence, st.telemetry, trail, metrics, logger)
	if cfg.Probes.Enabled {
		if err := seedProbes(ctx, st.probes, cfg.Org.ID, logger); err != nil {
			logger.Error("probe seeding failed", zap.Error(err))
			return 1
		}
	}

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)

	readiness := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return registry.Len() > 0 },
		Store:             st.health,
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Metrics:      metrics,
		Registry:     registry,
		Machine:      machine,
		Missions:     missionSvc,
		Ledger:       evidence,
		Exporter:     exporter,
		Runner:       runner,
		Probes:       st.probes,
		Trail:        trail,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Ready:        observability.HandleReady(readiness),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Int("definitions", registry.Len()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// stores bundles every persistence boundary the services need.
type stores struct {
	definitions definition.Store
	audit       audit.Store
	instances   workflow.InstanceStore
	missions    mission.Store
	evidence    ledger.Store
	probes      probe.Store
	telemetry   probe.Sink
	health      observability.HealthChecker
}

// buildStores creates all stores for the configured driver. The returned
// closer is nil for the memory driver.
func buildStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (stores, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		logger.Info("using in-memory stores")
		auditStore := audit.NewMemoryStore()
		return stores{
			definitions: definition.NewMemoryStore(),
			audit:       auditStore,
			instances:   workflow.NewMemoryStore(auditStore),
			missions:    mission.NewMemoryStore(),
			evidence:    ledger.NewMemoryStore(auditStore),
			probes:      probe.NewMemoryStore(),
			telemetry:   probe.NewMemorySink(),
		}, nil, nil

	case "postgres":
		dsn := os.Getenv(cfg.Store.DSNEnv)
		if dsn == "" {
			return stores{}, nil, fmt.Errorf("store: %s environment variable not set", cfg.Store.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return stores{}, nil, fmt.Errorf("store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Store.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.Store.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.Store.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return stores{}, nil, fmt.Errorf("store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return stores{}, nil, fmt.Errorf("store: ping: %w", err)
		}

		auditStore := audit.NewPgStore(pool)
		return stores{
			definitions: definition.NewPgStore(pool),
			audit:       auditStore,
			instances:   workflow.NewPgStore(pool, auditStore),
			missions:    mission.NewPgStore(pool),
			evidence:    ledger.NewPgStore(pool, auditStore),
			probes:      probe.NewPgStore(pool),
			telemetry:   probe.NewPgSink(pool),
			health:      auditStore,
		}, pool.Close, nil

	default:
		return stores{}, nil, fmt.Errorf("unsupported store driver: %q", cfg.Store.Driver)
	}
}

// seedDefinitions publishes definitions found in the configured directories.
// Missing directories are skipped; a definition already present in the store
// is left as is.
func seedDefinitions(ctx context.Context, cfg *config.Config, registry *definition.Registry, logger *zap.Logger) error {
	var dirs []string
	for _, dir := range cfg.Definitions.Directories {
		if _, err := os.Stat(dir); err == nil {
			dirs = append(dirs, dir)
		}
	}
	if len(dirs) == 0 {
		return nil
	}

	defs, err := definition.NewLoader().LoadAll(dirs)
	if err != nil {
		return err
	}

	rctx := &model.RequestContext{
		ActorID: "system",
		OrgID:   cfg.Org.ID,
		Roles:   model.NewRoleSet(model.RoleAdmin),
	}
	for _, def := range defs {
		if _, err := registry.Publish(ctx, rctx, def); err != nil {
			if model.IsCode(err, model.ErrConflict) {
				logger.Debug("definition already published", zap.String("definition_id", def.ID))
				continue
			}
			return fmt.Errorf("publishing %q: %w", def.Name, err)
		}
		logger.Info("definition seeded", zap.String("definition_id", def.ID), zap.String("name", def.Name))
	}
	return nil
}

// seedProbes registers one probe per built-in evaluator if the store has none.
func seedProbes(ctx context.Context, store probe.Store, orgID string, logger *zap.Logger) error {
	existing, err := store.ListProbes(ctx, orgID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	defaults := []model.ProbeDefinition{
		{
			Name:   "SLA breach detector",
			Type:   model.ProbeTypeSLABreach,
			Config: map[string]any{"grace_hours": float64(0)},
		},
		{
			Name:   "Data freshness",
			Type:   model.ProbeTypeDataFreshness,
			Config: map[string]any{"max_age_hours": float64(24)},
		},
		{
			Name:   "Evidence completeness",
			Type:   model.ProbeTypeEvidenceCompleteness,
			Config: map[string]any{"min_items": float64(2)},
		},
	}
	for _, p := range defaults {
		p.ID = uuid.New().String()
		p.Active = true
		p.OrgID = orgID
		if err := store.CreateProbe(ctx, p); err != nil {
			return err
		}
		logger.Info("probe seeded", zap.String("probe_id", p.ID), zap.String("type", p.Type))
	}
	return nil
}
