package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/snapctl-go/internal/snapshot"
)

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "take or replicate snapshots of the agent's runtime database",
		Subcommands: []*cli.Command{
			snapshotTakeCommand(),
			snapshotReplicateCommand(),
		},
	}
}

func snapshotTakeCommand() *cli.Command {
	return &cli.Command{
		Name:  "take",
		Usage: "open the runtime database if needed and commit a new snapshot",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "position",
				Usage: "lower-bound log position to stamp the snapshot with",
				Value: 0,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(configPath(c))
			if err != nil {
				return err
			}

			a, err := newAgent(cfg)
			if err != nil {
				return err
			}
			if err := a.ctrl.Open(); err != nil {
				return fmt.Errorf("open runtime database: %w", err)
			}
			defer a.ctrl.Close()

			snap, ok, err := a.ctrl.TakeSnapshot(c.Uint64("position"))
			if err != nil {
				return fmt.Errorf("take snapshot: %w", err)
			}
			if !ok {
				a.log.Info("no snapshot taken: one already exists at this position")
				return nil
			}
			a.log.Info("snapshot committed", "id", snap.ID, "path", snap.Path)
			return nil
		},
	}
}

func snapshotReplicateCommand() *cli.Command {
	return &cli.Command{
		Name:  "replicate",
		Usage: "send the latest committed snapshot's chunks to one or more targets",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "target",
				Usage: "host:port of a replication target; repeatable, overrides replication.targets",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(configPath(c))
			if err != nil {
				return err
			}

			targets := cfg.Snapshot.Replication.Targets
			if flagTargets := c.StringSlice("target"); len(flagTargets) > 0 {
				targets = flagTargets
			}
			if len(targets) == 0 {
				return fmt.Errorf("no replication targets: pass --target or set replication.targets")
			}

			a, err := newAgent(cfg)
			if err != nil {
				return err
			}

			executor := &snapshot.GoExecutor{}
			ok, err := a.ctrl.ReplicateLatestSnapshot(context.Background(), targets, executor)
			executor.Wait()
			if err != nil {
				return fmt.Errorf("replicate latest snapshot: %w", err)
			}
			if !ok {
				a.log.Info("nothing to replicate: no committed snapshot exists")
				return nil
			}
			a.log.Info("replicated latest snapshot", "targets", len(targets))
			return nil
		},
	}
}
