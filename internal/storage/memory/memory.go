// internal/storage/memory/memory.go
package memory

import (
	"sync"

	"github.com/emberrealm/worldserver/internal/config"
	"github.com/emberrealm/worldserver/pkg/core"
)

// maxTickSamples bounds the tick history kept in memory.
const maxTickSamples = 36_000

// Backend keeps the journal in memory and exports it as JSON on Close.
type Backend struct {
	cfg config.MemoryConfig

	teleports []core.TeleportEvent
	ticks     []core.TickSample
	tickStart int

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:   cfg,
		ticks: make([]core.TickSample, 0, 1024),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports the journal when an output directory is configured
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	_, err := b.ExportToDir(b.cfg.OutputDir)
	return err
}

// RecordTeleport appends a teleport transition
func (b *Backend) RecordTeleport(e *core.TeleportEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	e.ID = b.idCounter
	b.teleports = append(b.teleports, *e)
	return nil
}

// RecordTick appends a tick sample, evicting the oldest once full
func (b *Backend) RecordTick(s *core.TickSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	s.ID = b.idCounter
	if len(b.ticks) < maxTickSamples {
		b.ticks = append(b.ticks, *s)
		return nil
	}
	b.ticks[b.tickStart] = *s
	b.tickStart = (b.tickStart + 1) % maxTickSamples
	return nil
}

// Teleports returns a copy of the recorded teleports in order
func (b *Backend) Teleports() []core.TeleportEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.TeleportEvent, len(b.teleports))
	copy(out, b.teleports)
	return out
}

// Ticks returns a copy of the retained tick samples, oldest first
func (b *Backend) Ticks() []core.TickSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.TickSample, 0, len(b.ticks))
	out = append(out, b.ticks[b.tickStart:]...)
	out = append(out, b.ticks[:b.tickStart]...)
	return out
}

// LastExportPath returns where the last export was written
func (b *Backend) LastExportPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// RecentTeleports returns up to limit transitions of guid, newest first
func (b *Backend) RecentTeleports(guid core.GUID, limit int) ([]core.TeleportEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.TeleportEvent, 0, limit)
	for i := len(b.teleports) - 1; i >= 0 && len(out) < limit; i-- {
		if b.teleports[i].GUID == guid {
			out = append(out, b.teleports[i])
		}
	}
	return out, nil
}
