package cluster

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Roster is the peer membership view that internal/snapshot consults to
// pick replication targets. Membership changes are gossiped via Discovery
// and committed through Raft so every node converges on the same set of
// peers, even though replication itself happens outside of Raft.
type Roster struct {
	selfID string

	raft      *RaftNode
	fsm       *RosterFSM
	discovery *Discovery

	applyTimeout time.Duration
	logger       *slog.Logger
}

// RosterConfig configures a Roster.
type RosterConfig struct {
	NodeID   string
	RaftAddr string
	DataDir  string
	Bootstrap bool

	GossipBindAddr string
	GossipBindPort int
	SeedNodes      []string

	ApplyTimeout time.Duration
	Logger       *slog.Logger
}

// NewRoster creates a Raft node and gossip discovery instance, wiring
// discovery join/leave events into Raft log entries so the roster FSM
// stays consistent across the cluster.
func NewRoster(cfg RosterConfig) (*Roster, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ApplyTimeout == 0 {
		cfg.ApplyTimeout = 5 * time.Second
	}

	fsm := NewRosterFSM(cfg.Logger)

	raftNode, err := NewRaftNode(RaftConfig{
		NodeID:    cfg.NodeID,
		BindAddr:  cfg.RaftAddr,
		DataDir:   cfg.DataDir,
		Bootstrap: cfg.Bootstrap,
		Logger:    cfg.Logger,
	}, fsm)
	if err != nil {
		return nil, fmt.Errorf("cluster: start raft: %w", err)
	}

	r := &Roster{
		selfID:       cfg.NodeID,
		raft:         raftNode,
		fsm:          fsm,
		applyTimeout: cfg.ApplyTimeout,
		logger:       cfg.Logger,
	}

	discovery, err := NewDiscovery(DiscoveryConfig{
		NodeID:        cfg.NodeID,
		BindAddr:      cfg.GossipBindAddr,
		BindPort:      cfg.GossipBindPort,
		AdvertiseAddr: cfg.RaftAddr,
		SeedNodes:     cfg.SeedNodes,
		Logger:        cfg.Logger,
	})
	if err != nil {
		raftNode.Close()
		return nil, fmt.Errorf("cluster: start discovery: %w", err)
	}
	discovery.OnJoin(r.proposeJoin)
	discovery.OnLeave(r.proposeLeave)
	r.discovery = discovery

	return r, nil
}

// Targets returns the advertised addresses of every known member except
// self. The order of the returned addresses is not defined.
func (r *Roster) Targets() []string {
	members := r.fsm.Members()

	targets := make([]string, 0, len(members))
	for id, m := range members {
		if id == r.selfID {
			continue
		}
		targets = append(targets, m.Addr)
	}
	return targets
}

// IsLeader reports whether this node is the current Raft leader. Roster
// uses it to propose membership changes only from the leader; the agent's
// auto-snapshotting and replication loops do not consult it.
func (r *Roster) IsLeader() bool {
	return r.raft.IsLeader()
}

// Close shuts down discovery and Raft.
func (r *Roster) Close() error {
	var firstErr error
	if r.discovery != nil {
		if err := r.discovery.Shutdown(); err != nil {
			firstErr = err
		}
	}
	if err := r.raft.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (r *Roster) proposeJoin(nodeID, addr string) {
	if !r.raft.IsLeader() {
		return
	}
	if err := r.apply(LogEntryMemberJoin, MemberJoinPayload{NodeID: nodeID, Addr: addr}); err != nil {
		r.logger.Error("roster: failed to propose member join", "node_id", nodeID, "error", err)
	}
}

func (r *Roster) proposeLeave(nodeID string) {
	if !r.raft.IsLeader() {
		return
	}
	if err := r.apply(LogEntryMemberLeave, MemberLeavePayload{NodeID: nodeID}); err != nil {
		r.logger.Error("roster: failed to propose member leave", "node_id", nodeID, "error", err)
	}
}

func (r *Roster) apply(entryType LogEntryType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	entry, err := json.Marshal(LogEntry{Type: entryType, Payload: data})
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	return r.raft.Apply(entry, r.applyTimeout)
}
