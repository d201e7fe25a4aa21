package snapshot

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/yndnr/snapctl-go/internal/telemetry/logger"
)

// DB is the narrow capability the controller needs from whatever embedded
// key-value store backs the runtime state. It intentionally exposes
// nothing else: the controller does not read or write keys, only opens,
// snapshots, and closes the store. internal/kvstore provides the concrete
// implementation backed by Badger.
type DB interface {
	// CreateSnapshot copies the database's current state into dir.
	CreateSnapshot(dir string) error
	// Close releases the database's resources. Close is idempotent.
	Close() error
}

// DBFactory opens a DB rooted at dir, creating it if necessary.
type DBFactory func(dir string) (DB, error)

// ErrNoDatabaseOpen is returned by TakeSnapshot and TakeTempSnapshot when
// no database has been opened yet with Open.
var ErrNoDatabaseOpen = fmt.Errorf("snapshot: no database is open")

// ErrRecoveryFailed is returned by Recover when every committed snapshot
// failed to open; the caller is expected to treat this as unrecoverable
// and require manual intervention.
var ErrRecoveryFailed = fmt.Errorf("snapshot: failed to recover from any snapshot")

// ErrReplicationNotConfigured is returned by ReplicateLatestSnapshot and
// ConsumeReplicatedSnapshots when no ReplicationController has been
// attached via AttachReplication.
var ErrReplicationNotConfigured = fmt.Errorf("snapshot: replication is not configured")

// Controller orchestrates the full snapshot lifecycle for one partition:
// taking, committing, and replicating snapshots, and recovering the
// runtime database from the newest valid one. It holds at most one open
// database at a time.
type Controller struct {
	storage *Storage
	factory DBFactory
	metrics *Metrics
	log     logger.Logger

	mu   sync.Mutex
	db   DB
	repl *ReplicationController
}

// NewController builds a Controller over storage, opening databases with
// factory.
func NewController(storage *Storage, factory DBFactory, metrics *Metrics, log logger.Logger) *Controller {
	if log == nil {
		log, _ = logger.New(logger.DefaultConfig())
	}
	return &Controller{storage: storage, factory: factory, metrics: metrics, log: log}
}

// AttachReplication wires repl into the controller so
// ReplicateLatestSnapshot and ConsumeReplicatedSnapshots can delegate to
// it. A Controller used only for local take/commit/recover never needs
// one attached.
func (c *Controller) AttachReplication(repl *ReplicationController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repl = repl
}

// ReplicateLatestSnapshot sends the chunks of the latest committed
// snapshot to targets, delegating to the attached ReplicationController's
// sender.
func (c *Controller) ReplicateLatestSnapshot(ctx context.Context, targets []string, executor TaskExecutor) (bool, error) {
	c.mu.Lock()
	repl := c.repl
	c.mu.Unlock()
	if repl == nil {
		return false, ErrReplicationNotConfigured
	}
	return repl.ReplicateLatest(ctx, targets, executor)
}

// ConsumeReplicatedSnapshots arms the attached ReplicationController's
// receiver for inbound chunks, returning it as a ChunkReceiver for the
// transport to deliver to. It is idempotent: the receiver carries no
// per-call state, so calling this more than once just returns the same
// receiver.
func (c *Controller) ConsumeReplicatedSnapshots() (ChunkReceiver, error) {
	c.mu.Lock()
	repl := c.repl
	c.mu.Unlock()
	if repl == nil {
		return nil, ErrReplicationNotConfigured
	}
	return repl, nil
}

// Open opens the runtime database, if it isn't already open. Opening is
// idempotent: calling Open twice without an intervening Close returns the
// already-open database and does nothing else, mirroring the memoized
// open that the controller's database handle naturally provides.
func (c *Controller) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openLocked()
}

func (c *Controller) openLocked() error {
	if c.db != nil {
		return nil
	}
	dir := c.storage.RuntimeDirectory()
	db, err := c.factory(dir)
	if err != nil {
		return fmt.Errorf("snapshot: open database at %s: %w", dir, err)
	}
	c.db = db
	c.log.Debug("opened database", "dir", dir)
	return nil
}

// IsOpen reports whether a database is currently open.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db != nil
}

// Close closes the open database, if any. Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.log.Debug("closed database", "dir", c.storage.RuntimeDirectory())
	return err
}

// TakeTempSnapshot snapshots the open database into a pending directory
// for lowerBoundPosition, without committing it. It returns ok=false if a
// committed snapshot already covers that position.
func (c *Controller) TakeTempSnapshot(lowerBoundPosition uint64) (snap *Snapshot, ok bool, err error) {
	pending, ok := c.storage.PendingSnapshotFor(lowerBoundPosition)
	if !ok {
		return nil, false, nil
	}
	if err := c.createSnapshot(pending); err != nil {
		return nil, false, err
	}
	return pending, true, nil
}

// TakeSnapshot snapshots the open database into a pending directory for
// lowerBoundPosition and, if that succeeds, commits it. It returns
// ok=false without error if a committed snapshot already covers that
// position, and ok=false with error if the database snapshot itself
// failed.
func (c *Controller) TakeSnapshot(lowerBoundPosition uint64) (committed *Snapshot, ok bool, err error) {
	start := time.Now()
	defer func() { c.metrics.observeSnapshotOperation("take", start, err) }()

	pending, ok := c.storage.PendingSnapshotFor(lowerBoundPosition)
	if !ok {
		return nil, false, nil
	}
	if err := c.createSnapshot(pending); err != nil {
		return nil, false, err
	}

	committed, ok = c.storage.CommitSnapshot(pending)
	if !ok {
		return nil, false, fmt.Errorf("snapshot: commit pending snapshot %s failed", pending.ID)
	}
	return committed, true, nil
}

// createSnapshot asks the open database to write its current state into
// snap's directory, and records how long that took.
func (c *Controller) createSnapshot(snap *Snapshot) error {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()

	if db == nil {
		c.log.Error("expected to take a snapshot, but no database was opened")
		return ErrNoDatabaseOpen
	}

	start := time.Now()
	c.log.Debug("taking snapshot", "dir", snap.Path)
	if err := db.CreateSnapshot(snap.Path); err != nil {
		c.log.Error("failed to create snapshot of runtime database", "error", err)
		return fmt.Errorf("snapshot: create snapshot at %s: %w", snap.Path, err)
	}
	c.metrics.observeSnapshotOperation("take_temp", start, nil)
	return nil
}

// CommitSnapshot promotes a previously taken temporary snapshot to
// committed. See Storage.CommitSnapshot for the semantics when a committed
// snapshot with the same id already exists.
func (c *Controller) CommitSnapshot(snap *Snapshot) (*Snapshot, bool) {
	return c.storage.CommitSnapshot(snap)
}

// GetValidSnapshotsCount returns the number of committed snapshots
// currently retained.
func (c *Controller) GetValidSnapshotsCount() (int, error) {
	snaps, err := c.storage.Snapshots()
	if err != nil {
		return 0, err
	}
	c.metrics.setCommittedSnapshots(len(snaps))
	return len(snaps), nil
}

// GetLastValidSnapshotDirectory returns the path of the newest committed
// snapshot, or "" if there is none.
func (c *Controller) GetLastValidSnapshotDirectory() string {
	latest, ok := c.storage.LatestSnapshot()
	if !ok {
		return ""
	}
	return latest.Path
}

// Recover rebuilds the runtime directory from the newest committed
// snapshot that successfully opens, deleting the runtime directory first
// and deleting any snapshot that fails to open along the way (except the
// very last one tried, which is left in place for manual inspection).
//
// The runtime directory is always rebuilt from scratch: recovery never
// trusts a stale runtime directory left over from a previous process.
func (c *Controller) Recover() (recovered *Snapshot, err error) {
	start := time.Now()
	defer func() { c.metrics.observeSnapshotOperation("recover", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	runtimeDir := c.storage.RuntimeDirectory()
	if err := os.RemoveAll(runtimeDir); err != nil {
		return nil, fmt.Errorf("snapshot: remove runtime directory: %w", err)
	}

	snaps, err := c.storage.Snapshots()
	if err != nil {
		return nil, fmt.Errorf("snapshot: list snapshots: %w", err)
	}
	SortSnapshotsDescending(snaps)
	c.log.Debug("available snapshots", "count", len(snaps))

	for i, snap := range snaps {
		if err := copyDirectory(snap.Path, runtimeDir); err != nil {
			return nil, fmt.Errorf("snapshot: copy snapshot %s into runtime dir: %w", snap.ID, err)
		}

		c.db = nil
		if openErr := c.openLocked(); openErr == nil {
			c.log.Debug("recovered state from snapshot", "id", snap.ID)
			return snap, nil
		} else {
			_ = os.RemoveAll(runtimeDir)

			last := i == len(snaps)-1
			if !last {
				c.log.Warn("failed to open snapshot, deleting it and trying the previous one", "id", snap.ID, "error", openErr)
				_ = c.storage.DeleteSnapshot(snap.ID)
				continue
			}
			c.log.Error("failed to open snapshot, no snapshots available to recover from", "id", snap.ID, "error", openErr)
			return nil, fmt.Errorf("%w: %v", ErrRecoveryFailed, openErr)
		}
	}

	return nil, fmt.Errorf("%w: no committed snapshots exist", ErrRecoveryFailed)
}
