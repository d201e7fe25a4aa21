package main

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/snapctl-go/internal/cluster"
	"github.com/yndnr/snapctl-go/internal/config"
	"github.com/yndnr/snapctl-go/internal/infra/shutdown"
	"github.com/yndnr/snapctl-go/internal/snapshot"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the snapshot agent: auto-snapshotting, inbound replication, and cluster membership",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(configPath(c))
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg *config.AgentConfig) error {
	a, err := newAgent(cfg)
	if err != nil {
		return err
	}

	if err := a.ctrl.Open(); err != nil {
		return fmt.Errorf("open runtime database: %w", err)
	}

	shutdownHandler := shutdown.NewHandler(30 * time.Second)

	rosterCfg := rosterConfigOrEmpty(cfg, a)

	if cfg.Snapshot.Replication.ListenAddr != "" {
		listener, err := net.Listen("tcp", cfg.Snapshot.Replication.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen for inbound chunks on %s: %w", cfg.Snapshot.Replication.ListenAddr, err)
		}
		receiver, err := a.ctrl.ConsumeReplicatedSnapshots()
		if err != nil {
			return fmt.Errorf("arm replication receiver: %w", err)
		}
		server := snapshot.NewNetChunkServer(listener, receiver, rosterCfg.NodeID)

		serveCtx, cancelServe := context.WithCancel(context.Background())
		go func() {
			a.log.Info("chunk server listening", "addr", cfg.Snapshot.Replication.ListenAddr)
			if err := server.Serve(serveCtx); err != nil && serveCtx.Err() == nil {
				a.log.Error("chunk server stopped", "error", err)
			}
		}()
		shutdownHandler.OnShutdown(func(context.Context) error {
			cancelServe()
			return nil
		})
	}

	var roster *cluster.Roster
	roster, err = cluster.NewRoster(rosterCfg)
	if err != nil {
		a.log.Warn("cluster roster unavailable, replicating only to configured targets", "error", err)
		roster = nil
	} else {
		shutdownHandler.OnShutdown(func(context.Context) error {
			return roster.Close()
		})
	}

	var position uint64
	positionFunc := func() uint64 { return atomic.AddUint64(&position, 1) }

	autosnap := snapshot.NewAutoSnapshotter(a.ctrl, positionFunc, cfg.Snapshot.Retention.Interval, cfg.Snapshot.Retention.PruneOptions())
	if cfg.Snapshot.Retention.Interval > 0 {
		autosnap.Start()
		shutdownHandler.OnShutdown(func(context.Context) error {
			autosnap.Stop()
			return nil
		})
	}

	replicateInterval := cfg.Snapshot.Retention.Interval
	if replicateInterval <= 0 {
		replicateInterval = time.Hour
	}
	stopReplicate := make(chan struct{})
	go replicateLoop(a.ctrl, roster, cfg.Snapshot.Replication.Targets, replicateInterval, stopReplicate, a.log)
	shutdownHandler.OnShutdown(func(context.Context) error {
		close(stopReplicate)
		return nil
	})

	shutdownHandler.OnShutdown(func(context.Context) error {
		return a.ctrl.Close()
	})

	a.log.Info("snapctl-agent started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		a.log.Error("shutdown error", "error", err)
		return err
	}
	a.log.Info("snapctl-agent stopped gracefully")
	return nil
}

// rosterConfigOrEmpty converts cfg to a cluster.RosterConfig, logging and
// zero-valuing on conversion failure so serve can still run single-node.
func rosterConfigOrEmpty(cfg *config.AgentConfig, a *agent) cluster.RosterConfig {
	rc, err := config.ToRosterConfig(cfg, a.slog)
	if err != nil {
		return cluster.RosterConfig{}
	}
	return rc
}

// rateLimiter builds the outbound chunk rate limiter described by cfg, or
// nil if no rate limit is configured.
func rateLimiter(cfg snapshot.ReplicationConfig) *rate.Limiter {
	if cfg.RateLimitChunksPerSecond <= 0 {
		return nil
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimitChunksPerSecond), burst)
}

// replicateLoop periodically replicates the latest committed snapshot to
// every known target: the roster's view of cluster peers, if one is
// running, combined with any statically configured targets.
func replicateLoop(ctrl *snapshot.Controller, roster *cluster.Roster, staticTargets []string, interval time.Duration, stop <-chan struct{}, log interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			targets := staticTargets
			if roster != nil {
				targets = append(append([]string{}, staticTargets...), roster.Targets()...)
			}
			if len(targets) == 0 {
				continue
			}
			executor := &snapshot.GoExecutor{}
			ok, err := ctrl.ReplicateLatestSnapshot(context.Background(), targets, executor)
			executor.Wait()
			if err != nil {
				log.Error("replication failed", "error", err)
			} else if ok {
				log.Info("replicated latest snapshot", "targets", len(targets))
			}
		case <-stop:
			return
		}
	}
}
