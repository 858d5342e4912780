// pkg/core/journal.go
package core

import "time"

// TeleportPhase marks where in its lifecycle a journaled teleport was.
type TeleportPhase string

const (
	TeleportStarted   TeleportPhase = "started"
	TeleportCompleted TeleportPhase = "completed"
)

// TeleportKind is near (same map) or far (map change).
type TeleportKind string

const (
	TeleportNear TeleportKind = "near"
	TeleportFar  TeleportKind = "far"
)

// TeleportEvent is one journal entry for a teleport transition.
type TeleportEvent struct {
	ID       uint
	Time     time.Time
	GUID     GUID
	Name     string
	Phase    TeleportPhase
	Kind     TeleportKind
	From     ZoneLocation
	To       ZoneLocation
	Movement MovementInfo
}

// TickSample is the timing of one scheduler iteration.
type TickSample struct {
	ID         uint
	Time       time.Time
	Tick       uint64
	DT         time.Duration
	Work       time.Duration
	Total      time.Duration
	Overrun    bool
	Clients    int
	QueueDepth int
	Population int
}
