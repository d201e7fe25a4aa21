// Package main provides the entry point for snapctl-agent.
//
// snapctl-agent is a standalone process that exercises the snapshot
// lifecycle, chunked replication, and crash recovery implemented by
// internal/snapshot, internal/kvstore, and internal/cluster end to end.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/snapctl-go/internal/infra/buildinfo"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "snapctl-agent",
		Usage:   "snapshot lifecycle, replication, and recovery agent",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML configuration file",
				EnvVars: []string{"SNAPCTL_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			snapshotCommand(),
			recoverCommand(),
		},
	}
}

// configPath extracts the --config flag shared by every subcommand.
func configPath(c *cli.Context) string {
	return c.String("config")
}
