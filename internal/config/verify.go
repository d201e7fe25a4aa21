package config

import (
	"errors"
	"os"
)

// Verify validates the configuration.
func Verify(cfg *AgentConfig) error {
	if err := verifySnapshot(cfg); err != nil {
		return err
	}
	if err := verifyCluster(&cfg.Cluster); err != nil {
		return err
	}
	return nil
}

func verifySnapshot(cfg *AgentConfig) error {
	if cfg.Snapshot.Storage.Dir == "" {
		return errors.New("snapshot.storage.dir is required")
	}

	// Check if the storage directory exists or can be created.
	if err := os.MkdirAll(cfg.Snapshot.Storage.Dir, 0750); err != nil {
		return errors.New("cannot create snapshot storage directory: " + err.Error())
	}

	if cfg.Snapshot.Retention.KeepCount < 1 {
		return errors.New("snapshot.retention.keep_count must be at least 1")
	}

	return nil
}

func verifyCluster(cfg *ClusterSection) error {
	if cfg.Bootstrap && len(cfg.Seeds) > 0 {
		return errors.New("cluster.bootstrap and cluster.seeds are mutually exclusive")
	}
	if !cfg.Bootstrap && len(cfg.Seeds) == 0 {
		return errors.New("cluster.seeds is required unless cluster.bootstrap is set")
	}
	return nil
}
