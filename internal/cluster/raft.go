// Package cluster provides Raft consensus integration for peer roster
// tracking.
package cluster

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// RaftConfig configures the Raft node backing one node's view of the
// roster.
type RaftConfig struct {
	// NodeID is this node's Raft server ID, also used as its roster
	// member ID.
	NodeID string

	// BindAddr is the address this node's Raft transport listens on.
	BindAddr string

	// DataDir holds the Raft log, stable store, and snapshots.
	DataDir string

	// Bootstrap marks this node as the one that forms a brand-new
	// single-node cluster on startup. Exactly one node in a fresh
	// deployment should set this.
	Bootstrap bool

	Logger *slog.Logger
}

// RaftNode wraps hashicorp/raft, replicating roster membership across the
// cluster so every node agrees on the current set of replication
// targets. Roster is the only caller: it applies membership log entries
// and asks whether this node is currently the leader.
type RaftNode struct {
	raft      *raft.Raft
	transport *raft.NetworkTransport
	fsm       *RosterFSM
	logger    *slog.Logger

	logStore      raft.LogStore
	stableStore   raft.StableStore
	snapshotStore raft.SnapshotStore
}

// NewRaftNode starts a Raft node over fsm, persisting its log and stable
// store as BoltDB files under cfg.DataDir. If cfg.Bootstrap is set, it
// also forms a new single-node cluster configuration consisting of just
// this node -- later members join by having their discovery-observed
// join events proposed as roster log entries against the existing
// leader.
func NewRaftNode(cfg RaftConfig, fsm *RosterFSM) (*RaftNode, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("raft: data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	raftConfig.Logger = &raftHCLogger{logger: cfg.Logger}

	// Roster membership changes are latency-sensitive: a node that just
	// left should stop being offered as a replication target quickly.
	// These timeouts are set explicitly; their values equal
	// hashicorp/raft's defaults.
	raftConfig.HeartbeatTimeout = 1000 * time.Millisecond
	raftConfig.ElectionTimeout = 1000 * time.Millisecond
	raftConfig.CommitTimeout = 50 * time.Millisecond
	raftConfig.LeaderLeaseTimeout = 500 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		logStore.Close()
		transport.Close()
		return nil, fmt.Errorf("create stable store: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 3, os.Stderr)
	if err != nil {
		stableStore.Close()
		logStore.Close()
		transport.Close()
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		// raft.FileSnapshotStore has no Close method.
		stableStore.Close()
		logStore.Close()
		transport.Close()
		return nil, fmt.Errorf("create raft: %w", err)
	}

	node := &RaftNode{
		raft:          r,
		transport:     transport,
		fsm:           fsm,
		logger:        cfg.Logger,
		logStore:      logStore,
		stableStore:   stableStore,
		snapshotStore: snapshotStore,
	}

	if cfg.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{ID: raft.ServerID(cfg.NodeID), Address: transport.LocalAddr()},
			},
		}
		if f := r.BootstrapCluster(configuration); f.Error() != nil {
			node.Close()
			return nil, fmt.Errorf("bootstrap cluster: %w", f.Error())
		}
		cfg.Logger.Info("raft cluster bootstrapped", "node_id", cfg.NodeID, "addr", cfg.BindAddr)
	}

	cfg.Logger.Info("raft node created", "node_id", cfg.NodeID, "bind_addr", cfg.BindAddr, "bootstrap", cfg.Bootstrap)
	return node, nil
}

// Apply proposes a roster log entry and blocks until it commits.
func (n *RaftNode) Apply(data []byte, timeout time.Duration) error {
	f := n.raft.Apply(data, timeout)
	if err := f.Error(); err != nil {
		return fmt.Errorf("raft apply: %w", err)
	}
	if resp := f.Response(); resp != nil {
		if err, ok := resp.(error); ok {
			return err
		}
	}
	return nil
}

// IsLeader reports whether this node is the Raft leader. Only the leader
// proposes roster membership changes; every node, leader or not, keeps
// its own FSM up to date by replaying the committed log.
func (n *RaftNode) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

// Close gracefully shuts down the Raft node and its stores.
func (n *RaftNode) Close() error {
	n.logger.Info("shutting down raft node")

	if err := n.raft.Shutdown().Error(); err != nil {
		n.logger.Error("raft shutdown failed", "error", err)
	}

	if s, ok := n.stableStore.(*raftboltdb.BoltStore); ok {
		if err := s.Close(); err != nil {
			n.logger.Error("close stable store failed", "error", err)
		}
	}
	if s, ok := n.logStore.(*raftboltdb.BoltStore); ok {
		if err := s.Close(); err != nil {
			n.logger.Error("close log store failed", "error", err)
		}
	}
	if err := n.transport.Close(); err != nil {
		n.logger.Error("close transport failed", "error", err)
	}

	n.logger.Info("raft node shutdown complete")
	return nil
}

// raftHCLogger adapts slog.Logger to hashicorp/go-hclog.Logger, the
// logging interface hashicorp/raft requires.
type raftHCLogger struct {
	logger *slog.Logger
}

func (l *raftHCLogger) Log(level hclog.Level, msg string, args ...any) {
	switch level {
	case hclog.Trace, hclog.Debug:
		l.logger.Debug(msg, args...)
	case hclog.Info:
		l.logger.Info(msg, args...)
	case hclog.Warn:
		l.logger.Warn(msg, args...)
	case hclog.Error:
		l.logger.Error(msg, args...)
	default:
		l.logger.Info(msg, args...)
	}
}

func (l *raftHCLogger) Trace(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *raftHCLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *raftHCLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *raftHCLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *raftHCLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *raftHCLogger) IsTrace() bool { return false }
func (l *raftHCLogger) IsDebug() bool { return false }
func (l *raftHCLogger) IsInfo() bool  { return true }
func (l *raftHCLogger) IsWarn() bool  { return true }
func (l *raftHCLogger) IsError() bool { return true }

func (l *raftHCLogger) ImpliedArgs() []any { return nil }
func (l *raftHCLogger) With(args ...any) hclog.Logger {
	return l // simplified: slog.Logger args aren't threaded through a child logger
}
func (l *raftHCLogger) Name() string { return "raft" }
func (l *raftHCLogger) Named(name string) hclog.Logger {
	return l
}
func (l *raftHCLogger) ResetNamed(name string) hclog.Logger {
	return l
}
func (l *raftHCLogger) SetLevel(level hclog.Level) {}
func (l *raftHCLogger) GetLevel() hclog.Level       { return hclog.Info }
func (l *raftHCLogger) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return nil
}
func (l *raftHCLogger) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return nil
}
