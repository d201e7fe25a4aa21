package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// evilTransport delivers the first chunk of every snapshot untouched, and
// disrupts every chunk after that by zeroing its checksum -- modeling a
// peer on the wire that corrupts data in transit.
type evilTransport struct {
	receiver ChunkReceiver
	sent     []*Chunk
}

func (t *evilTransport) Send(ctx context.Context, target string, chunk *Chunk) error {
	t.sent = append(t.sent, chunk)

	delivered := *chunk
	if len(t.sent) > 1 {
		delivered.Checksum = 0
	}
	return t.receiver.ReceiveChunk(ctx, "evil", &delivered)
}

// flakyTransport delivers only the first two chunks sent to it and then
// silently drops the connection, modeling a peer that disconnects
// mid-transfer.
type flakyTransport struct {
	receiver ChunkReceiver
	sent     []*Chunk
}

func (t *flakyTransport) Send(ctx context.Context, target string, chunk *Chunk) error {
	t.sent = append(t.sent, chunk)
	if len(t.sent) < 3 {
		return t.receiver.ReceiveChunk(ctx, "flaky", chunk)
	}
	return nil
}

// interruptedTransport delivers every chunk except the very last one of
// the snapshot, which it instead holds onto. Callers can later resend the
// withheld chunks through the receiver directly, modeling a connection
// that resumes after an interruption.
type interruptedTransport struct {
	receiver ChunkReceiver
	count    int
	unsent   []*Chunk
}

func (t *interruptedTransport) Send(ctx context.Context, target string, chunk *Chunk) error {
	t.count++
	if t.count < chunk.TotalCount {
		return t.receiver.ReceiveChunk(ctx, "interrupted", chunk)
	}
	t.unsent = append(t.unsent, chunk)
	return nil
}

// committedThreeFileSnapshot sets up a sender-side Storage with one
// committed snapshot of three files, large enough for the failure
// scenarios below to exercise a partial transfer.
func committedThreeFileSnapshot(t *testing.T) (*Storage, *Snapshot) {
	t.Helper()

	storage, err := NewStorage(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	pending, ok := storage.PendingSnapshotFor(1)
	if !ok {
		t.Fatalf("PendingSnapshotFor(1) = false")
	}
	for _, name := range []string{"000001.sst", "000002.sst", "000003.sst"} {
		if err := os.WriteFile(filepath.Join(pending.Path, name), []byte("content-of-"+name), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	committed, ok := storage.CommitSnapshot(pending)
	if !ok {
		t.Fatalf("CommitSnapshot = false")
	}
	return storage, committed
}

func TestReplication_InvalidChunkAbortsEntireAssembly(t *testing.T) {
	senderStorage, _ := committedThreeFileSnapshot(t)
	sender := NewReplicationController(senderStorage, nil, nil, nil)

	receiverStorage, err := NewStorage(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	receiver := NewReplicationController(receiverStorage, nil, nil, nil)

	transport := &evilTransport{receiver: receiver}
	sender.transport = transport

	ok, err := sender.ReplicateLatest(context.Background(), []string{"receiver"}, SyncExecutor{})
	if err != nil {
		t.Fatalf("ReplicateLatest: %v", err)
	}
	if !ok {
		t.Fatalf("ReplicateLatest ok = false, want true")
	}
	if len(transport.sent) == 0 {
		t.Fatalf("expected at least one chunk to be sent")
	}

	if receiverStorage.Exists("1") {
		t.Fatalf("receiver storage has committed snapshot 1, want none")
	}
	pendingDir := filepath.Join(receiverStorage.root, pendingDirName, "1")
	if _, err := os.Stat(pendingDir); !os.IsNotExist(err) {
		t.Fatalf("pending dir for snapshot 1 should not exist after an invalid chunk, stat err = %v", err)
	}
}

func TestReplication_IncompleteTransferNeverCommits(t *testing.T) {
	senderStorage, _ := committedThreeFileSnapshot(t)
	sender := NewReplicationController(senderStorage, nil, nil, nil)

	receiverStorage, err := NewStorage(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	receiver := NewReplicationController(receiverStorage, nil, nil, nil)

	transport := &flakyTransport{receiver: receiver}
	sender.transport = transport

	if _, err := sender.ReplicateLatest(context.Background(), []string{"receiver"}, SyncExecutor{}); err != nil {
		t.Fatalf("ReplicateLatest: %v", err)
	}
	if len(transport.sent) == 0 {
		t.Fatalf("expected at least one chunk to be sent")
	}

	snapshotID := transport.sent[0].SnapshotID
	pendingDir := filepath.Join(receiverStorage.root, pendingDirName, snapshotID)
	entries, err := os.ReadDir(pendingDir)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", pendingDir, err)
	}
	if len(entries) != 2 {
		t.Fatalf("pending dir has %d files, want exactly the 2 chunks delivered before the connection dropped", len(entries))
	}
	got := map[string]bool{entries[0].Name(): true, entries[1].Name(): true}
	for _, chunk := range transport.sent[:2] {
		if !got[chunk.ChunkName] {
			t.Fatalf("pending dir missing delivered chunk %s, got entries %v", chunk.ChunkName, got)
		}
	}

	if receiverStorage.Exists(snapshotID) {
		t.Fatalf("receiver storage has committed snapshot %s, want none (transfer never completed)", snapshotID)
	}
}

func TestReplication_ResendAfterInterruptionWithMissingChunksAborts(t *testing.T) {
	senderStorage, _ := committedThreeFileSnapshot(t)
	sender := NewReplicationController(senderStorage, nil, nil, nil)

	receiverStorage, err := NewStorage(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	receiver := NewReplicationController(receiverStorage, nil, nil, nil)

	transport := &interruptedTransport{receiver: receiver}
	sender.transport = transport

	if _, err := sender.ReplicateLatest(context.Background(), []string{"receiver"}, SyncExecutor{}); err != nil {
		t.Fatalf("ReplicateLatest: %v", err)
	}
	if len(transport.unsent) != 1 {
		t.Fatalf("unsent chunks = %d, want exactly 1 withheld", len(transport.unsent))
	}

	withheld := transport.unsent[0]
	pendingDir := filepath.Join(receiverStorage.root, pendingDirName, withheld.SnapshotID)
	entries, err := os.ReadDir(pendingDir)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", pendingDir, err)
	}
	if len(entries) != withheld.TotalCount-1 {
		t.Fatalf("pending dir has %d files, want %d", len(entries), withheld.TotalCount-1)
	}

	// Simulate the already-written chunks being lost before the connection
	// resumes: the receiver's in-memory bookkeeping still thinks they were
	// received, but the files backing them are gone.
	for _, e := range entries {
		if err := os.Remove(filepath.Join(pendingDir, e.Name())); err != nil {
			t.Fatalf("remove %s: %v", e.Name(), err)
		}
	}

	if err := receiver.ReceiveChunk(context.Background(), "resumed", withheld); err == nil {
		t.Fatalf("ReceiveChunk on resumed transfer with missing files = nil error, want a checksum mismatch")
	}

	if _, err := os.Stat(pendingDir); !os.IsNotExist(err) {
		t.Fatalf("pending dir should be gone after the checksum mismatch, stat err = %v", err)
	}
}

func TestReplication_NewAttemptWithDifferentChecksumSupersedesAbortedAssembly(t *testing.T) {
	receiverStorage, err := NewStorage(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	receiver := NewReplicationController(receiverStorage, nil, nil, nil)

	badChunk := &Chunk{
		SnapshotID:       "1",
		TotalCount:       1,
		ChunkName:        "file1",
		Content:          []byte("corrupted"),
		Checksum:         ChecksumOf([]byte("corrupted")) + 1,
		SnapshotChecksum: 999,
	}
	if err := receiver.ReceiveChunk(context.Background(), "sender", badChunk); err == nil {
		t.Fatalf("ReceiveChunk with a bad chunk checksum = nil error, want an error")
	}

	pendingDir := filepath.Join(receiverStorage.root, pendingDirName, "1")
	if _, err := os.Stat(pendingDir); !os.IsNotExist(err) {
		t.Fatalf("pending dir should be gone after the abort, stat err = %v", err)
	}

	goodContent := []byte("fresh attempt")
	goodChunk := &Chunk{
		SnapshotID:       "1",
		TotalCount:       1,
		ChunkName:        "file1",
		Content:          goodContent,
		Checksum:         ChecksumOf(goodContent),
		SnapshotChecksum: chunkSetChecksum(map[string][]byte{"file1": goodContent}),
	}
	if err := receiver.ReceiveChunk(context.Background(), "sender", goodChunk); err != nil {
		t.Fatalf("ReceiveChunk for the fresh attempt: %v", err)
	}

	if !receiverStorage.Exists("1") {
		t.Fatalf("fresh attempt with a different checksum should have committed snapshot 1")
	}
}
