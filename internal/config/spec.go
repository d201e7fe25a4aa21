package config

import (
	"time"

	"github.com/yndnr/snapctl-go/internal/snapshot"
)

// AgentConfig is the root configuration for snapctl-agent.
type AgentConfig struct {
	Snapshot snapshot.Config `koanf:"snapshot"`
	Cluster  ClusterSection  `koanf:"cluster"`
	Log      LogSection      `koanf:"log"`
}

// ClusterSection configures the peer roster this agent joins to discover
// replication targets.
type ClusterSection struct {
	// NodeID is the unique identifier for this cluster node.
	// If empty, a random ID is generated at startup.
	NodeID string `koanf:"node_id"`

	// RaftAddr is the Raft TCP bind address (e.g., "192.168.1.10:5343").
	RaftAddr string `koanf:"raft_addr"`

	// DataDir is the directory for Raft log and snapshot storage.
	DataDir string `koanf:"data_dir"`

	// Bootstrap indicates if this node bootstraps a new cluster.
	// Mutually exclusive with Seeds.
	Bootstrap bool `koanf:"bootstrap"`

	// GossipAddr is the gossip TCP/UDP bind address (e.g., "192.168.1.10").
	GossipAddr string `koanf:"gossip_addr"`

	// GossipPort is the gossip bind port (e.g., 5344).
	GossipPort int `koanf:"gossip_port"`

	// Seeds is the list of seed node addresses used to join an existing
	// cluster. Format: ["192.168.1.10:5344", "192.168.1.11:5344"].
	Seeds []string `koanf:"seeds"`

	// ApplyTimeout bounds how long a roster membership change waits for
	// Raft to commit it.
	ApplyTimeout time.Duration `koanf:"apply_timeout"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
