package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/snapctl-go/pkg/cmap"
)

// TaskExecutor runs a replication send task. The default is synchronous
// (Execute calls task immediately, blocking), which keeps tests
// deterministic; a production caller can instead pass an executor backed
// by a worker pool so that sends to many targets proceed concurrently.
// Decoupling the scheduling policy from the send logic this way means
// ReplicationController itself never spawns goroutines.
type TaskExecutor interface {
	Execute(task func())
}

// SyncExecutor runs every task on the calling goroutine.
type SyncExecutor struct{}

// Execute implements TaskExecutor.
func (SyncExecutor) Execute(task func()) { task() }

// GoExecutor runs every task on its own goroutine, tracked with a
// WaitGroup so Wait can block until all outstanding tasks finish.
type GoExecutor struct {
	wg sync.WaitGroup
}

// Execute implements TaskExecutor.
func (e *GoExecutor) Execute(task func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		task()
	}()
}

// Wait blocks until every task submitted so far has returned.
func (e *GoExecutor) Wait() {
	e.wg.Wait()
}

// assembly tracks the in-progress receipt of one snapshot's chunks. It
// belongs to a single replication attempt, identified by checksum: a
// later attempt for the same snapshot id with a different checksum is a
// fresh restart, not a continuation, and gets its own assembly.
type assembly struct {
	mu         sync.Mutex
	totalCount int
	checksum   uint64
	received   map[string]struct{}
	aborted    bool
	completed  bool
}

// ReplicationController sends the chunks of the latest committed snapshot
// to a set of targets, and assembles chunks arriving from a source into a
// new committed snapshot. Each snapshot id being assembled is guarded by
// its own lock, rather than a single controller-wide lock, so concurrent
// receipt of unrelated snapshots (e.g. during a leadership handoff storm)
// never serializes on each other: assemblies live in a pkg/cmap sharded
// map keyed by snapshot id, so two different in-flight snapshots almost
// always land on different shards.
type ReplicationController struct {
	storage   *Storage
	transport ChunkTransport
	limiter   *rate.Limiter
	metrics   *Metrics

	assemblies *cmap.Map[string, *assembly]
}

// NewReplicationController builds a controller over storage, sending
// chunks through transport. limiter may be nil, in which case sends are
// not rate limited.
func NewReplicationController(storage *Storage, transport ChunkTransport, limiter *rate.Limiter, metrics *Metrics) *ReplicationController {
	return &ReplicationController{
		storage:    storage,
		transport:  transport,
		limiter:    limiter,
		metrics:    metrics,
		assemblies: cmap.New[string, *assembly](),
	}
}

// ReplicateLatest reads every file of the latest committed snapshot,
// computes its chunks, and submits one send task per (target, chunk) pair
// to executor. It returns as soon as every task has been submitted, not
// once every send has completed -- callers that need to wait for
// completion should pass an executor that exposes its own Wait, such as
// *GoExecutor.
//
// It returns ok=false, doing nothing, if there is no committed snapshot.
func (c *ReplicationController) ReplicateLatest(ctx context.Context, targets []string, executor TaskExecutor) (ok bool, err error) {
	start := time.Now()
	defer func() { c.metrics.observeSnapshotOperation("replicate", start, err) }()

	latest, ok := c.storage.LatestSnapshot()
	if !ok {
		return false, nil
	}

	chunks, err := c.buildChunks(latest)
	if err != nil {
		return false, err
	}

	for _, target := range targets {
		for _, chunk := range chunks {
			target, chunk := target, chunk
			executor.Execute(func() {
				if c.limiter != nil {
					if err := c.limiter.Wait(ctx); err != nil {
						return
					}
				}
				if err := c.transport.Send(ctx, target, chunk); err == nil {
					c.metrics.incChunksSent(1)
				}
			})
		}
	}
	return true, nil
}

// buildChunks reads every file in snap's directory into memory and builds
// the Chunk for each, all sharing the same snapshot-level checksum.
func (c *ReplicationController) buildChunks(snap *Snapshot) ([]*Chunk, error) {
	names, err := sortedFileNames(snap.Path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list %s: %w", snap.Path, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("snapshot: snapshot %s has no files", snap.ID)
	}

	contents := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(snap.Path, name))
		if err != nil {
			return nil, fmt.Errorf("snapshot: read %s: %w", name, err)
		}
		contents[name] = data
	}

	snapshotChecksum := chunkSetChecksum(contents)

	chunks := make([]*Chunk, 0, len(names))
	for _, name := range names {
		content := contents[name]
		chunks = append(chunks, &Chunk{
			SnapshotID:       snap.ID,
			TotalCount:       len(names),
			ChunkName:        name,
			Content:          content,
			Checksum:         ChecksumOf(content),
			SnapshotChecksum: snapshotChecksum,
		})
	}
	return chunks, nil
}

// ReceiveChunk implements ChunkReceiver. It validates the chunk, writes it
// durably into the pending directory for its snapshot id, and -- once
// every chunk has arrived -- verifies the assembled snapshot's checksum
// and commits it. Receiving a chunk that was already written for a
// completed or aborted assembly is a no-op, which makes the receive path
// idempotent under retransmission.
func (c *ReplicationController) ReceiveChunk(ctx context.Context, source string, chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("snapshot: nil chunk from %s", source)
	}
	if !chunk.verifyChecksum() {
		c.metrics.incChunkRejected("bad_chunk_checksum")
		c.abortAssembly(chunk.SnapshotID, chunk.TotalCount, chunk.SnapshotChecksum)
		return fmt.Errorf("snapshot: chunk %s/%s failed checksum, aborted assembly", chunk.SnapshotID, chunk.ChunkName)
	}

	asm := c.assemblyFor(chunk.SnapshotID, chunk.TotalCount, chunk.SnapshotChecksum)

	asm.mu.Lock()
	defer asm.mu.Unlock()

	if asm.aborted {
		c.metrics.incChunkRejected("assembly_aborted")
		return nil
	}
	if asm.completed {
		return nil
	}
	if _, dup := asm.received[chunk.ChunkName]; dup {
		return nil
	}

	dir, ok := c.storage.PendingDirectoryFor(chunk.SnapshotID)
	if !ok {
		c.metrics.incChunkRejected("bad_snapshot_id")
		return fmt.Errorf("snapshot: invalid snapshot id %q", chunk.SnapshotID)
	}
	if err := writeChunkFile(dir, chunk.ChunkName, chunk.Content); err != nil {
		return fmt.Errorf("snapshot: write chunk %s: %w", chunk.ChunkName, err)
	}

	asm.received[chunk.ChunkName] = struct{}{}
	c.metrics.incChunksReceived()

	if len(asm.received) < asm.totalCount {
		return nil
	}

	actual, err := directoryChecksum(dir)
	if err != nil {
		return fmt.Errorf("snapshot: checksum assembled snapshot %s: %w", chunk.SnapshotID, err)
	}
	if actual != chunk.SnapshotChecksum {
		asm.aborted = true
		c.metrics.incReplicationAbort()
		_ = c.storage.DeletePending(chunk.SnapshotID)
		return fmt.Errorf("snapshot: assembled snapshot %s checksum mismatch: got %x want %x", chunk.SnapshotID, actual, chunk.SnapshotChecksum)
	}

	if _, committed := c.storage.CommitSnapshot(&Snapshot{ID: chunk.SnapshotID, Path: dir}); !committed {
		asm.aborted = true
		return fmt.Errorf("snapshot: commit replicated snapshot %s failed", chunk.SnapshotID)
	}
	asm.completed = true
	return nil
}

// abortAssembly marks the assembly for snapshotID/checksum as aborted and
// discards whatever chunks have been written for it so far. A single
// corrupted chunk invalidates the entire in-flight snapshot: a partially
// written snapshot must never be mistaken for a complete one, so the
// safer response is to discard all progress rather than try to patch
// around the bad chunk. Aborting does not poison the snapshot id forever:
// a later chunk carrying a different checksum is a new attempt, and
// assemblyFor will replace this assembly once it arrives.
func (c *ReplicationController) abortAssembly(snapshotID string, totalCount int, checksum uint64) {
	asm := c.assemblyFor(snapshotID, totalCount, checksum)
	asm.mu.Lock()
	asm.aborted = true
	asm.mu.Unlock()

	c.metrics.incReplicationAbort()
	_ = c.storage.DeletePending(snapshotID)
}

// assemblyFor returns the in-progress assembly for snapshotID, creating
// one for checksum if none exists. If the existing assembly carries a
// different checksum, it belongs to a stale attempt: assemblyFor marks it
// aborted, discards it and its pending directory, then creates a fresh
// assembly for the new attempt. This is what lets a new replication
// attempt recover from a previous one's corruption instead of being
// silently swallowed forever.
func (c *ReplicationController) assemblyFor(snapshotID string, totalCount int, checksum uint64) *assembly {
	for {
		candidate := &assembly{totalCount: totalCount, checksum: checksum, received: make(map[string]struct{})}
		asm, existed := c.assemblies.GetOrSet(snapshotID, candidate)
		if !existed {
			return asm
		}

		asm.mu.Lock()
		stale := asm.checksum != checksum
		if stale {
			asm.aborted = true
		}
		asm.mu.Unlock()
		if !stale {
			return asm
		}

		c.assemblies.Delete(snapshotID)
		_ = c.storage.DeletePending(snapshotID)
	}
}

// writeChunkFile writes content to name inside dir durably: to a
// ULID-suffixed temporary file in the same directory, fsynced, then
// atomically renamed into place. The ULID suffix lets concurrent retries
// of the same chunk name never collide on the same temp path.
func writeChunkFile(dir, name string, content []byte) error {
	tempPath := filepath.Join(dir, name+"."+ulid.Make().String()+".tmp")

	f, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	defer os.Remove(tempPath)

	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tempPath, filepath.Join(dir, name))
}
