package kvstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yndnr/snapctl-go/internal/snapshot"
)

// backupFileName is the single file a BadgerAdapter writes into a
// snapshot directory. BadgerEngine's Save/LoadSnapshot work against a
// self-contained stream, so a snapshot of this database is always exactly
// one chunk.
const backupFileName = "badger.backup"

// BadgerAdapter is the narrow capability snapshot.Controller needs from
// an embedded key-value store: open, snapshot to a directory, close. It
// wraps a BadgerEngine, which itself offers only open, snapshot save and
// load, and close; neither type has point reads, writes or scans.
type BadgerAdapter struct {
	engine *BadgerEngine
}

// OpenBadger opens (or creates) a BadgerAdapter rooted at dir. If dir
// contains a backupFileName file left there by a previous CreateSnapshot
// call -- which is exactly what recovery's directory copy produces -- its
// contents are loaded into the engine before OpenBadger returns, so the
// runtime directory is always rebuilt from the chosen snapshot rather
// than trusted as already-live state.
func OpenBadger(dir string, logger *slog.Logger) (*BadgerAdapter, error) {
	dataDir := filepath.Join(dir, "data")
	cfg := DefaultKVConfig(dataDir)

	engine, err := NewBadgerEngine(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open engine at %s: %w", dataDir, err)
	}

	backupPath := filepath.Join(dir, backupFileName)
	if f, err := os.Open(backupPath); err == nil {
		loadErr := engine.LoadSnapshot(context.Background(), f)
		f.Close()
		if loadErr != nil {
			return nil, fmt.Errorf("kvstore: load backup %s: %w", backupPath, loadErr)
		}
	}

	return &BadgerAdapter{engine: engine}, nil
}

// CreateSnapshot implements snapshot.DB. It streams a backup of the
// engine through BadgerEngine.SaveSnapshot into a temporary file inside
// dir, fsyncs it, and atomically renames it into place -- the same
// durable-write idiom used elsewhere in this module for on-disk
// artifacts.
func (a *BadgerAdapter) CreateSnapshot(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("kvstore: create snapshot dir: %w", err)
	}

	src, err := a.engine.SaveSnapshot(context.Background())
	if err != nil {
		return fmt.Errorf("kvstore: save snapshot: %w", err)
	}
	defer src.Close()

	tempPath := filepath.Join(dir, backupFileName+".tmp")
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("kvstore: create temp backup file: %w", err)
	}
	defer os.Remove(tempPath)

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("kvstore: write backup file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("kvstore: sync backup file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("kvstore: close backup file: %w", err)
	}

	return os.Rename(tempPath, filepath.Join(dir, backupFileName))
}

// Close implements snapshot.DB.
func (a *BadgerAdapter) Close() error {
	return a.engine.Close()
}

// NewFactory returns a snapshot.DBFactory that opens BadgerAdapters,
// logging through logger.
func NewFactory(logger *slog.Logger) snapshot.DBFactory {
	return func(dir string) (snapshot.DB, error) {
		return OpenBadger(dir, logger)
	}
}
