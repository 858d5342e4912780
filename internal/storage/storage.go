// internal/storage/storage.go
package storage

import "github.com/emberrealm/worldserver/pkg/core"

// Backend is the movement journal every storage implementation must satisfy.
// Nothing written here is ever read back into the simulation.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Journal (assigns ID to the passed pointer where the backend supports it)
	RecordTeleport(e *core.TeleportEvent) error
	RecordTick(s *core.TickSample) error
}

// Exporter is an optional interface for backends that can write their
// contents to a file on demand.
type Exporter interface {
	Export(path string) error
}

// Reader is an optional interface for backends that can answer journal
// queries from the operator console.
type Reader interface {
	// RecentTeleports returns up to limit transitions of guid, newest first.
	RecentTeleports(guid core.GUID, limit int) ([]core.TeleportEvent, error)
}
