package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/yndnr/snapctl-go/internal/cluster"
)

// ToRosterConfig converts AgentConfig into cluster.RosterConfig.
//
// This handles default value population and NodeID generation.
func ToRosterConfig(cfg *AgentConfig, logger *slog.Logger) (cluster.RosterConfig, error) {
	if cfg == nil {
		return cluster.RosterConfig{}, fmt.Errorf("agent config is nil")
	}

	nodeID := cfg.Cluster.NodeID
	if nodeID == "" {
		generated, err := generateNodeID()
		if err != nil {
			return cluster.RosterConfig{}, fmt.Errorf("generate node ID: %w", err)
		}
		nodeID = generated
		logger.Info("generated cluster node ID", "node_id", nodeID)
	}

	return cluster.RosterConfig{
		NodeID:         nodeID,
		RaftAddr:       cfg.Cluster.RaftAddr,
		DataDir:        cfg.Cluster.DataDir,
		Bootstrap:      cfg.Cluster.Bootstrap,
		GossipBindAddr: cfg.Cluster.GossipAddr,
		GossipBindPort: cfg.Cluster.GossipPort,
		SeedNodes:      cfg.Cluster.Seeds,
		ApplyTimeout:   cfg.Cluster.ApplyTimeout,
		Logger:         logger,
	}, nil
}

// generateNodeID generates a unique node identifier.
//
// Format: snapctl-node-<16 hex chars> (e.g., "snapctl-node-a1b2c3d4e5f67890").
func generateNodeID() (string, error) {
	buf := make([]byte, 8) // 8 bytes = 16 hex chars
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return "snapctl-node-" + hex.EncodeToString(buf), nil
}
