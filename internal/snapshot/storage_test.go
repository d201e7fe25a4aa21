package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStorage_PendingSnapshotForRejectsRedundantPosition(t *testing.T) {
	s, err := NewStorage(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	pending, ok := s.PendingSnapshotFor(10)
	if !ok {
		t.Fatalf("PendingSnapshotFor(10) = false, want true")
	}
	if err := os.WriteFile(filepath.Join(pending.Path, "CURRENT"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, ok := s.CommitSnapshot(pending); !ok {
		t.Fatalf("CommitSnapshot = false, want true")
	}

	if _, ok := s.PendingSnapshotFor(10); ok {
		t.Fatalf("PendingSnapshotFor(10) after commit = true, want false")
	}
	if _, ok := s.PendingSnapshotFor(5); ok {
		t.Fatalf("PendingSnapshotFor(5) after committing 10 = true, want false")
	}
	if _, ok := s.PendingSnapshotFor(11); !ok {
		t.Fatalf("PendingSnapshotFor(11) after committing 10 = false, want true")
	}
}

func TestStorage_CommitSnapshotRejectsDuplicateID(t *testing.T) {
	s, err := NewStorage(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	first, _ := s.PendingSnapshotFor(1)
	if _, ok := s.CommitSnapshot(first); !ok {
		t.Fatalf("first CommitSnapshot = false, want true")
	}

	dir, ok := s.PendingDirectoryFor("1")
	if !ok {
		t.Fatalf("PendingDirectoryFor(1) = false, want true")
	}
	dup := &Snapshot{ID: "1", Path: dir}
	if _, ok := s.CommitSnapshot(dup); ok {
		t.Fatalf("duplicate CommitSnapshot = true, want false")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("pending dir for duplicate commit should be removed, stat err = %v", err)
	}
}

func TestStorage_LatestSnapshotUsesNaturalOrder(t *testing.T) {
	s, err := NewStorage(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	for _, id := range []uint64{1, 2, 9, 10} {
		snap, ok := s.PendingSnapshotFor(id)
		if !ok {
			t.Fatalf("PendingSnapshotFor(%d) = false", id)
		}
		if _, ok := s.CommitSnapshot(snap); !ok {
			t.Fatalf("CommitSnapshot(%d) = false", id)
		}
	}

	latest, ok := s.LatestSnapshot()
	if !ok {
		t.Fatalf("LatestSnapshot = false, want true")
	}
	if latest.ID != "10" {
		t.Fatalf("LatestSnapshot.ID = %q, want %q (natural, not lexicographic, order)", latest.ID, "10")
	}
}

func TestStorage_PruneKeepsNewestAndExcluded(t *testing.T) {
	s, err := NewStorage(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	for _, id := range []uint64{1, 2, 3, 4, 5} {
		snap, _ := s.PendingSnapshotFor(id)
		if _, ok := s.CommitSnapshot(snap); !ok {
			t.Fatalf("CommitSnapshot(%d) = false", id)
		}
	}

	if err := s.Prune(PruneOptions{KeepCount: 2, Exclude: map[string]struct{}{"1": {}}}); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	snaps, err := s.Snapshots()
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	remaining := make(map[string]bool, len(snaps))
	for _, snap := range snaps {
		remaining[snap.ID] = true
	}
	for _, want := range []string{"1", "4", "5"} {
		if !remaining[want] {
			t.Fatalf("expected snapshot %s to survive prune, remaining = %v", want, remaining)
		}
	}
	for _, gone := range []string{"2", "3"} {
		if remaining[gone] {
			t.Fatalf("expected snapshot %s to be pruned, remaining = %v", gone, remaining)
		}
	}
}

func TestValidSnapshotIDRejectsPathTraversal(t *testing.T) {
	for _, id := range []string{"", "../escape", "12/34", "abc", "12.3"} {
		if validSnapshotID(id) {
			t.Fatalf("validSnapshotID(%q) = true, want false", id)
		}
	}
	if !validSnapshotID("1234567890") {
		t.Fatalf("validSnapshotID on a plain decimal id = false, want true")
	}
}
