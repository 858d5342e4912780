// Package sqlitestorage journals into a private in-memory SQLite database and
// snapshots it to a file, periodically and once more on Close.
package sqlitestorage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emberrealm/worldserver/internal/database"
	gormstorage "github.com/emberrealm/worldserver/internal/storage/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	DumpInterval time.Duration
	DumpPath     string
	RealmName    string
}

// Backend is the GORM journal plus snapshotting.
type Backend struct {
	*gormstorage.Backend
	cfg Config
	log *slog.Logger

	stop      context.CancelFunc
	stopped   chan struct{}
	closeOnce sync.Once
	dumps     atomic.Uint64
}

func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.OpenSQLite(database.MemoryDSN("journal"))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:        db,
			Logger:    logger,
			RealmName: cfg.RealmName,
		}),
		cfg: cfg,
		log: logger.With("backend", "sqlite"),
	}, nil
}

// Init migrates the journal and starts periodic snapshots when both
// DumpPath and DumpInterval are set.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if b.cfg.DumpPath == "" || b.cfg.DumpInterval <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.stop = cancel
	b.stopped = make(chan struct{})
	go b.snapshotLoop(ctx)
	return nil
}

// Close stops snapshotting, flushes pending rows and writes the final snapshot.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stop != nil {
			b.stop()
			<-b.stopped
		}
		err = b.Backend.Close()
		if b.cfg.DumpPath != "" {
			if dumpErr := b.Dump(); dumpErr != nil && err == nil {
				err = dumpErr
			}
		}
	})
	return err
}

// Dump writes a point-in-time copy of the journal to DumpPath.
func (b *Backend) Dump() error {
	if err := database.Dump(b.DB(), b.cfg.DumpPath); err != nil {
		return err
	}
	b.dumps.Add(1)
	return nil
}

// Dumps counts completed snapshots.
func (b *Backend) Dumps() uint64 { return b.dumps.Load() }

func (b *Backend) snapshotLoop(ctx context.Context) {
	defer close(b.stopped)

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			b.Flush()
			if err := b.Dump(); err != nil {
				b.log.Error("Journal snapshot failed", "path", b.cfg.DumpPath, "error", err)
				continue
			}
			b.log.Debug("Journal snapshot written", "path", b.cfg.DumpPath, "duration", time.Since(start))
		}
	}
}
