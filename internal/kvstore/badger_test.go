package kvstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/dgraph-io/badger/v3"
)

func TestBadgerEngine_OpenClose(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "badger-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	engine, err := NewBadgerEngine(DefaultKVConfig(tmpDir), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestBadgerEngine_SaveLoadSnapshot(t *testing.T) {
	srcDir, err := os.MkdirTemp("", "badger-test-src-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(srcDir)

	engine, err := NewBadgerEngine(DefaultKVConfig(srcDir), slog.Default())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := engine.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("key1"), []byte("value1"))
	}); err != nil {
		t.Fatal(err)
	}

	backup, err := engine.SaveSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	backupData, err := io.ReadAll(backup)
	if err != nil {
		t.Fatal(err)
	}
	backup.Close()

	if len(backupData) == 0 {
		t.Fatal("expected non-empty backup")
	}

	dstDir, err := os.MkdirTemp("", "badger-test-dst-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dstDir)

	engine2, err := NewBadgerEngine(DefaultKVConfig(dstDir), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer engine2.Close()

	if err := engine2.LoadSnapshot(ctx, &readerFromBytes{data: backupData}); err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	if err := engine.Close(); err != nil {
		t.Fatalf("close source engine: %v", err)
	}
}

// readerFromBytes is a minimal io.Reader over an in-memory buffer, used
// so the snapshot roundtrip test doesn't need to re-open the source file.
type readerFromBytes struct {
	data []byte
	pos  int
}

func (r *readerFromBytes) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
