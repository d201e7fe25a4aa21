package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

const (
	pendingDirName   = "pending"
	committedDirName = "snapshots"
	runtimeDirName   = "runtime"

	dirPerm = 0o750
)

// Snapshot identifies an immutable, committed set of files captured at one
// log position.
type Snapshot struct {
	ID   string
	Path string
}

// Storage owns every on-disk directory under its root: the runtime
// directory, the pending snapshots, and the committed snapshots. It never
// shares ownership of those paths with any other component; callers only
// ever see paths it hands back.
type Storage struct {
	root    string
	metrics *Metrics
}

// NewStorage creates (if necessary) the directory tree rooted at root and
// returns a Storage bound to it.
func NewStorage(root string, metrics *Metrics) (*Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("snapshot: storage root is required")
	}
	for _, sub := range []string{pendingDirName, committedDirName, runtimeDirName} {
		if err := os.MkdirAll(filepath.Join(root, sub), dirPerm); err != nil {
			return nil, fmt.Errorf("snapshot: create %s dir: %w", sub, err)
		}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Storage{root: root, metrics: metrics}, nil
}

// RuntimeDirectory returns the fixed path the controller opens the database
// from during recovery.
func (s *Storage) RuntimeDirectory() string {
	return filepath.Join(s.root, runtimeDirName)
}

// PendingDirectoryFor returns (creating it if necessary) the pending
// directory for id. It returns ok=false only if id is malformed: empty, or
// not a plain decimal log position with no path separators.
func (s *Storage) PendingDirectoryFor(id string) (path string, ok bool) {
	if !validSnapshotID(id) {
		return "", false
	}
	dir := filepath.Join(s.root, pendingDirName, id)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", false
	}
	return dir, true
}

// PendingSnapshotFor reserves a pending directory for a snapshot derived
// from lowerBoundPosition. It returns ok=false, doing no work, if a
// committed snapshot already covers that position (id <= latest committed
// id): taking a redundant snapshot is avoided.
func (s *Storage) PendingSnapshotFor(lowerBoundPosition uint64) (*Snapshot, bool) {
	id := strconv.FormatUint(lowerBoundPosition, 10)

	if latest, ok := s.LatestSnapshot(); ok {
		if compareSnapshotIDs(id, latest.ID) <= 0 {
			return nil, false
		}
	}

	dir, ok := s.PendingDirectoryFor(id)
	if !ok {
		return nil, false
	}
	return &Snapshot{ID: id, Path: dir}, true
}

// CommitSnapshot atomically promotes snapshot's pending directory to
// committed. It returns ok=false if the pending directory no longer exists,
// or if a committed snapshot with the same id already exists -- in the
// latter case the pending directory is discarded, since the source of
// truth already has a committed copy (see DESIGN.md's note on this open
// question: surprising but safe, logged and metered rather than changed).
func (s *Storage) CommitSnapshot(snap *Snapshot) (*Snapshot, bool) {
	if snap == nil || !validSnapshotID(snap.ID) {
		return nil, false
	}

	pendingPath := filepath.Join(s.root, pendingDirName, snap.ID)
	if _, err := os.Stat(pendingPath); err != nil {
		return nil, false
	}

	committedPath := filepath.Join(s.root, committedDirName, snap.ID)
	if _, err := os.Stat(committedPath); err == nil {
		s.metrics.incDuplicateCommit()
		_ = os.RemoveAll(pendingPath)
		return nil, false
	}

	if err := os.Rename(pendingPath, committedPath); err != nil {
		return nil, false
	}
	return &Snapshot{ID: snap.ID, Path: committedPath}, true
}

// Snapshots enumerates committed snapshots. Order is unspecified; callers
// that need newest-first or oldest-first order should sort with
// SortSnapshotsDescending/Ascending.
func (s *Storage) Snapshots() ([]*Snapshot, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, committedDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	snaps := make([]*Snapshot, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		snaps = append(snaps, &Snapshot{
			ID:   e.Name(),
			Path: filepath.Join(s.root, committedDirName, e.Name()),
		})
	}
	return snaps, nil
}

// LatestSnapshot returns the committed snapshot with the greatest id.
func (s *Storage) LatestSnapshot() (*Snapshot, bool) {
	snaps, err := s.Snapshots()
	if err != nil || len(snaps) == 0 {
		return nil, false
	}
	SortSnapshotsDescending(snaps)
	return snaps[0], true
}

// Exists reports whether a committed snapshot with id exists.
func (s *Storage) Exists(id string) bool {
	_, err := os.Stat(filepath.Join(s.root, committedDirName, id))
	return err == nil
}

// DeleteSnapshot recursively removes the committed snapshot with id, if
// any. Used by recovery to discard a snapshot that fails to open, and by
// Prune to enforce retention.
func (s *Storage) DeleteSnapshot(id string) error {
	return os.RemoveAll(filepath.Join(s.root, committedDirName, id))
}

// DeletePending recursively removes the pending directory for id, if any.
func (s *Storage) DeletePending(id string) error {
	return os.RemoveAll(filepath.Join(s.root, pendingDirName, id))
}

// PruneOptions configures retention enforcement.
type PruneOptions struct {
	// KeepCount is the minimum number of newest committed snapshots to
	// retain, regardless of age. Zero disables count-based retention.
	KeepCount int
	// MaxAge, if positive, additionally retains any snapshot newer than
	// now-MaxAge.
	MaxAge time.Duration
	// Exclude names snapshot ids that must never be pruned (e.g. one
	// referenced by an in-flight recovery attempt).
	Exclude map[string]struct{}
}

// Prune deletes committed snapshots outside of the retention window.
// The newest snapshot is always kept, regardless of options.
func (s *Storage) Prune(opts PruneOptions) error {
	snaps, err := s.Snapshots()
	if err != nil || len(snaps) <= 1 {
		return err
	}
	SortSnapshotsAscending(snaps)

	keep := make(map[string]struct{}, len(snaps))
	for id := range opts.Exclude {
		keep[id] = struct{}{}
	}
	keep[snaps[len(snaps)-1].ID] = struct{}{}

	if opts.KeepCount > 0 {
		start := len(snaps) - opts.KeepCount
		if start < 0 {
			start = 0
		}
		for _, snap := range snaps[start:] {
			keep[snap.ID] = struct{}{}
		}
	}

	if opts.MaxAge > 0 {
		cutoff := time.Now().Add(-opts.MaxAge)
		for _, snap := range snaps {
			info, err := os.Stat(snap.Path)
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				keep[snap.ID] = struct{}{}
			}
		}
	}

	for _, snap := range snaps {
		if _, ok := keep[snap.ID]; ok {
			continue
		}
		if err := s.DeleteSnapshot(snap.ID); err != nil {
			return err
		}
	}
	return nil
}

// validSnapshotID reports whether id is a well-formed snapshot identifier:
// a non-empty run of ASCII digits. This rules out path traversal and
// directory-separator injection through a caller-supplied id.
func validSnapshotID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// compareSnapshotIDs compares two snapshot ids using natural-number
// semantics ("10" > "9"), never raw lexicographic order. Malformed ids sort
// lexicographically after any well-formed one.
func compareSnapshotIDs(a, b string) int {
	an, aerr := strconv.ParseUint(a, 10, 64)
	bn, berr := strconv.ParseUint(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	default:
		if a < b {
			return -1
		} else if a > b {
			return 1
		}
		return 0
	}
}

// SortSnapshotsAscending sorts snapshots oldest-id-first.
func SortSnapshotsAscending(snaps []*Snapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		return compareSnapshotIDs(snaps[i].ID, snaps[j].ID) < 0
	})
}

// SortSnapshotsDescending sorts snapshots newest-id-first.
func SortSnapshotsDescending(snaps []*Snapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		return compareSnapshotIDs(snaps[i].ID, snaps[j].ID) > 0
	})
}
