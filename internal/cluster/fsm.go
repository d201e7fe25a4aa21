// Package cluster provides Raft-backed peer roster tracking.
package cluster

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hashicorp/raft"
)

// LogEntryType identifies the kind of roster mutation a Raft log entry
// carries.
type LogEntryType uint8

const (
	// LogEntryMemberJoin adds or updates a member's advertised address.
	LogEntryMemberJoin LogEntryType = 1

	// LogEntryMemberLeave removes a member.
	LogEntryMemberLeave LogEntryType = 2
)

// LogEntry represents a Raft log entry applied to the roster FSM.
type LogEntry struct {
	Type    LogEntryType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MemberJoinPayload is the payload for member join/update events.
type MemberJoinPayload struct {
	NodeID string `json:"node_id"`
	Addr   string `json:"addr"`
}

// MemberLeavePayload is the payload for member leave events.
type MemberLeavePayload struct {
	NodeID string `json:"node_id"`
}

// Member is a single node in the roster.
type Member struct {
	NodeID string
	Addr   string
}

// RosterFSM implements raft.FSM over a set of known cluster members. Every
// node runs the same FSM, so once a join or leave entry commits, every node
// agrees on who the current replication targets are.
type RosterFSM struct {
	mu sync.RWMutex

	members map[string]*Member // nodeID -> Member

	logger *slog.Logger
}

// NewRosterFSM creates a new roster FSM.
func NewRosterFSM(logger *slog.Logger) *RosterFSM {
	if logger == nil {
		logger = slog.Default()
	}

	return &RosterFSM{
		members: make(map[string]*Member),
		logger:  logger,
	}
}

// Apply applies a Raft log entry to the FSM. It must be deterministic: the
// same input always produces the same output, since every node replays the
// same log independently.
func (f *RosterFSM) Apply(log *raft.Log) interface{} {
	var entry LogEntry
	if err := json.Unmarshal(log.Data, &entry); err != nil {
		f.logger.Error("roster fsm: corrupted log entry",
			"error", err,
			"log_index", log.Index,
			"log_term", log.Term)
		panic(fmt.Sprintf("RosterFSM.Apply: unmarshal failed at index=%d: %v", log.Index, err))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch entry.Type {
	case LogEntryMemberJoin:
		f.applyMemberJoin(entry.Payload)
	case LogEntryMemberLeave:
		f.applyMemberLeave(entry.Payload)
	default:
		f.logger.Error("roster fsm: unknown log entry type",
			"type", entry.Type,
			"log_index", log.Index)
		panic(fmt.Sprintf("RosterFSM.Apply: unknown log type %d at index=%d", entry.Type, log.Index))
	}

	return nil
}

func (f *RosterFSM) applyMemberJoin(payload json.RawMessage) {
	var join MemberJoinPayload
	if err := json.Unmarshal(payload, &join); err != nil {
		f.logger.Error("roster fsm: corrupted member join payload", "error", err)
		panic(fmt.Sprintf("applyMemberJoin: unmarshal failed: %v", err))
	}

	f.members[join.NodeID] = &Member{NodeID: join.NodeID, Addr: join.Addr}
	f.logger.Info("member joined roster", "node_id", join.NodeID, "addr", join.Addr)
}

func (f *RosterFSM) applyMemberLeave(payload json.RawMessage) {
	var leave MemberLeavePayload
	if err := json.Unmarshal(payload, &leave); err != nil {
		f.logger.Error("roster fsm: corrupted member leave payload", "error", err)
		panic(fmt.Sprintf("applyMemberLeave: unmarshal failed: %v", err))
	}

	delete(f.members, leave.NodeID)
	f.logger.Info("member left roster", "node_id", leave.NodeID)
}

// Snapshot creates a point-in-time snapshot of the FSM state, for Raft log
// compaction.
func (f *RosterFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	members := make(map[string]*Member, len(f.members))
	for k, v := range f.members {
		members[k] = &Member{NodeID: v.NodeID, Addr: v.Addr}
	}

	return &fsmSnapshot{members: members}, nil
}

// Restore replaces all FSM state from a previously persisted snapshot.
func (f *RosterFSM) Restore(r io.ReadCloser) error {
	defer r.Close()

	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzReader.Close()

	var state struct {
		Members map[string]*Member `json:"members"`
	}
	if err := json.NewDecoder(gzReader).Decode(&state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.members = state.Members
	if f.members == nil {
		f.members = make(map[string]*Member)
	}

	f.logger.Info("roster fsm restored from snapshot", "member_count", len(f.members))
	return nil
}

// Members returns a copy of the current membership set.
func (f *RosterFSM) Members() map[string]*Member {
	f.mu.RLock()
	defer f.mu.RUnlock()

	members := make(map[string]*Member, len(f.members))
	for k, v := range f.members {
		members[k] = &Member{NodeID: v.NodeID, Addr: v.Addr}
	}
	return members
}

// fsmSnapshot implements raft.FSMSnapshot.
type fsmSnapshot struct {
	members map[string]*Member
}

// Persist writes the snapshot to the sink, gzip-compressed.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		gzWriter := gzip.NewWriter(sink)
		defer gzWriter.Close()

		state := struct {
			Members map[string]*Member `json:"members"`
		}{Members: s.members}

		if err := json.NewEncoder(gzWriter).Encode(state); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		return gzWriter.Close()
	}()

	if err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

// Release is called when the snapshot is no longer needed.
func (s *fsmSnapshot) Release() {}
