package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/snapctl-go/internal/config"
	"github.com/yndnr/snapctl-go/internal/infra/confloader"
	"github.com/yndnr/snapctl-go/internal/kvstore"
	"github.com/yndnr/snapctl-go/internal/snapshot"
	"github.com/yndnr/snapctl-go/internal/telemetry/logger"
)

// loadConfig loads the agent configuration from file and environment,
// then validates it.
func loadConfig(configFile string) (*config.AgentConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// initLogger builds the structured logger described by cfg.Log and installs
// it as the logger package's default, returning it as the Logger interface
// used by internal/snapshot, together with slog.Default() for
// internal/cluster and internal/kvstore. That *slog.Logger is the standard
// library's default logger; cfg.Log does not configure it.
func initLogger(cfg *config.AgentConfig) (logger.Logger, *slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.SetDefault(log)
	return log, slog.Default(), nil
}

// agent bundles the pieces every subcommand needs: storage, a controller
// bound to it, and the Prometheus registry those pieces report to.
type agent struct {
	cfg      *config.AgentConfig
	log      logger.Logger
	slog     *slog.Logger
	registry *prometheus.Registry
	metrics  *snapshot.Metrics
	storage  *snapshot.Storage
	ctrl     *snapshot.Controller
}

// newAgent wires storage, metrics, a Controller backed by
// internal/kvstore's Badger-based DBFactory, and a ReplicationController
// attached to that Controller. It does not start any network listeners
// or the cluster roster; callers that need those build them separately
// from the same cfg/log.
func newAgent(cfg *config.AgentConfig) (*agent, error) {
	log, slogLogger, err := initLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := snapshot.NewMetrics(registry)

	storage, err := snapshot.NewStorage(cfg.Snapshot.Storage.Dir, metrics)
	if err != nil {
		return nil, fmt.Errorf("init snapshot storage: %w", err)
	}

	ctrl := snapshot.NewController(storage, kvstore.NewFactory(slogLogger), metrics, log)

	transport := snapshot.NewNetChunkTransport(cfg.Snapshot.Replication.DialTimeout)
	limiter := rateLimiter(cfg.Snapshot.Replication)
	ctrl.AttachReplication(snapshot.NewReplicationController(storage, transport, limiter, metrics))

	return &agent{
		cfg:      cfg,
		log:      log,
		slog:     slogLogger,
		registry: registry,
		metrics:  metrics,
		storage:  storage,
		ctrl:     ctrl,
	}, nil
}
