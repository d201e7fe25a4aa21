package config

import (
	"time"

	"github.com/yndnr/snapctl-go/internal/snapshot"
)

// Default configuration values.
const (
	DefaultSnapshotDir  = "/var/lib/snapctl-agent/snapshots"
	DefaultRaftAddr     = "127.0.0.1:5343"
	DefaultRaftDataDir  = "/var/lib/snapctl-agent/raft"
	DefaultGossipAddr   = "127.0.0.1"
	DefaultGossipPort   = 5344
	DefaultApplyTimeout = 5 * time.Second

	DefaultSnapshotKeep  = 3
	DefaultSnapshotEvery = time.Hour

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default agent configuration.
func Default() *AgentConfig {
	snapCfg := snapshot.DefaultConfig()
	snapCfg.Storage.Dir = DefaultSnapshotDir
	snapCfg.Retention.Interval = DefaultSnapshotEvery
	snapCfg.Retention.KeepCount = DefaultSnapshotKeep

	return &AgentConfig{
		Snapshot: snapCfg,
		Cluster: ClusterSection{
			RaftAddr:     DefaultRaftAddr,
			DataDir:      DefaultRaftDataDir,
			GossipAddr:   DefaultGossipAddr,
			GossipPort:   DefaultGossipPort,
			ApplyTimeout: DefaultApplyTimeout,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
