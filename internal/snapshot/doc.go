// Package snapshot implements the state-snapshot controller for a single
// partition: on-disk snapshot lifecycle (pending -> committed), chunked
// replication with end-to-end integrity checking, and crash/leader-change
// recovery.
//
// The package is organized around the five collaborators of the design:
//
//   - Storage (storage.go): on-disk layout, pending/committed directories,
//     atomic promotion, listing, pruning.
//   - Chunk and checksum (chunk.go, checksum.go): the wire unit and the
//     64-bit streaming digest used for both per-chunk and per-snapshot
//     integrity.
//   - ReplicationController (replication.go): outbound chunk emission and
//     inbound chunk assembly with validation.
//   - Controller (controller.go): lifecycle orchestration -- take, commit,
//     replicate, recover, open/close the database.
//   - DB (the internal/kvstore package): the narrow capability the
//     controller needs from the embedded key-value store.
package snapshot
