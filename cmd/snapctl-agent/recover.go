package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func recoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "recover",
		Usage: "rebuild the runtime database from the newest committed snapshot that opens cleanly",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(configPath(c))
			if err != nil {
				return err
			}

			a, err := newAgent(cfg)
			if err != nil {
				return err
			}

			snap, err := a.ctrl.Recover()
			if err != nil {
				return fmt.Errorf("recover: %w", err)
			}
			a.log.Info("recovered runtime database", "id", snap.ID, "path", snap.Path)
			return a.ctrl.Close()
		},
	}
}
