// Package postgres implements the storage.Backend interface on PostgreSQL.
// When Postgres is unreachable the journal falls back to an in-memory SQLite
// database that is dumped to FallbackPath on Close.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emberrealm/worldserver/internal/config"
	"github.com/emberrealm/worldserver/internal/database"
	gormstorage "github.com/emberrealm/worldserver/internal/storage/gorm"
	"github.com/emberrealm/worldserver/pkg/core"
	"github.com/rs/zerolog"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	DB           config.DBConfig
	RealmName    string
	FallbackPath string
	Logger       *slog.Logger
	DBLogger     zerolog.Logger
}

// Backend connects through database.Manager and writes through the GORM backend.
type Backend struct {
	deps    Dependencies
	manager *database.Manager
	inner   *gormstorage.Backend
}

// New creates a new Postgres storage backend. No connection is made until Init.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{
		deps:    deps,
		manager: database.NewManager(deps.DB, deps.DBLogger),
	}
}

// Init connects, migrates and starts the writer.
func (b *Backend) Init() error {
	if err := b.manager.Connect(context.Background()); err != nil {
		return fmt.Errorf("failed to connect journal database: %w", err)
	}
	if b.manager.Local() {
		b.deps.Logger.Warn("Postgres unavailable, journaling to in-memory SQLite", "dumpPath", b.deps.FallbackPath)
	}

	b.inner = gormstorage.New(gormstorage.Dependencies{
		DB:        b.manager.DB(),
		Logger:    b.deps.Logger,
		RealmName: b.deps.RealmName,
	})
	return b.inner.Init()
}

// Close flushes the writer and dumps the fallback database if one is in use.
func (b *Backend) Close() error {
	if b.inner == nil {
		return nil
	}
	err := b.inner.Close()
	if b.manager.Local() && b.deps.FallbackPath != "" {
		if dumpErr := b.manager.Dump(b.deps.FallbackPath); dumpErr != nil && err == nil {
			err = dumpErr
		}
	}
	return err
}

// Local reports whether the backend fell back to SQLite.
func (b *Backend) Local() bool {
	return b.manager.Local()
}

func (b *Backend) RecordTeleport(e *core.TeleportEvent) error {
	return b.inner.RecordTeleport(e)
}

func (b *Backend) RecordTick(s *core.TickSample) error {
	return b.inner.RecordTick(s)
}

func (b *Backend) RecentTeleports(guid core.GUID, limit int) ([]core.TeleportEvent, error) {
	return b.inner.RecentTeleports(guid, limit)
}
