package kvstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v3"
)

// BadgerEngine wraps a Badger v3 database, exposing only what
// BadgerAdapter needs: open, stream a backup out, restore from a backup,
// close. The rest of Badger's surface -- point reads/writes, scans,
// manual GC -- has no caller in this partition, since the runtime state
// it backs is opaque to the snapshot controller.
type BadgerEngine struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerEngine opens a Badger database rooted at cfg.Dir, creating it
// if necessary.
func NewBadgerEngine(cfg KVConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{logger: logger}

	badgerCfg := cfg.Badger
	opts.BlockCacheSize = badgerCfg.CacheSize
	opts.ValueLogFileSize = badgerCfg.ValueLogFileSize
	opts.NumMemtables = badgerCfg.NumMemtables
	opts.NumLevelZeroTables = badgerCfg.NumLevelZeroTables
	opts.NumLevelZeroTablesStall = badgerCfg.NumLevelZeroTablesStall
	opts.SyncWrites = badgerCfg.SyncWrites
	opts.DetectConflicts = badgerCfg.DetectConflicts

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	logger.Info("badger engine started", "dir", cfg.Dir, "cache_size", badgerCfg.CacheSize)

	return &BadgerEngine{db: db, logger: logger}, nil
}

// SaveSnapshot streams a backup of the database, using Badger's built-in
// backup mechanism. The returned reader deletes its backing temp file on
// Close.
func (e *BadgerEngine) SaveSnapshot(ctx context.Context) (io.ReadCloser, error) {
	tmpFile, err := os.CreateTemp("", "badger-snapshot-*.bak")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := e.db.Backup(tmpFile, 0); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, fmt.Errorf("backup: %w", err)
	}

	if _, err := tmpFile.Seek(0, 0); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, fmt.Errorf("seek: %w", err)
	}

	return &autoDeleteReader{ReadCloser: tmpFile, path: tmpFile.Name()}, nil
}

// LoadSnapshot restores the database from a backup stream produced by
// SaveSnapshot, replacing whatever data is currently on disk.
func (e *BadgerEngine) LoadSnapshot(ctx context.Context, r io.Reader) error {
	opts := e.db.Opts()

	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close current db: %w", err)
	}
	if err := os.RemoveAll(opts.Dir); err != nil {
		return fmt.Errorf("remove existing data: %w", err)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open new db: %w", err)
	}
	if err := db.Load(r, 256); err != nil {
		db.Close()
		return fmt.Errorf("load snapshot: %w", err)
	}

	e.db = db
	e.logger.Info("snapshot restored")
	return nil
}

// Close gracefully shuts down the Badger engine.
func (e *BadgerEngine) Close() error {
	e.logger.Info("shutting down badger engine")
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	e.logger.Info("badger engine shutdown complete")
	return nil
}

// autoDeleteReader wraps a ReadCloser and deletes the file on close.
type autoDeleteReader struct {
	io.ReadCloser
	path string
}

func (r *autoDeleteReader) Close() error {
	err1 := r.ReadCloser.Close()
	err2 := os.Remove(r.path)
	if err1 != nil {
		return err1
	}
	return err2
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
