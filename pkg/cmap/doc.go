// Package cmap provides a generic sharded concurrent map.
//
// This package implements a sharded concurrent map with the following
// features:
//
//   - Sharding: configurable shard count for parallelism
//   - Fine-grained locking: per-shard RWMutex for minimal contention
//   - Optimistic locking: version-based compare-and-swap updates
//   - Iteration: safe iteration while holding read locks
//
// Usage:
//
//	m := cmap.New[string, *assembly]()
//	m.GetOrSet("snapshot-id", newAssembly)
//	val, ok := m.Get("snapshot-id")
//
// Thread Safety:
//
// All operations are thread-safe. Read operations (Get, Has) use RLock,
// write operations (Set, Delete) use Lock.
package cmap
