// Package cluster provides the peer roster that internal/snapshot uses to
// pick replication targets in a multi-node deployment.
//
// Gossip-based discovery (hashicorp/memberlist) detects when nodes join or
// leave; the current leader turns those events into Raft log entries
// (hashicorp/raft + raft-boltdb) so every node's RosterFSM converges on the
// same membership, independent of which node happened to observe the
// gossip event first.
package cluster
