// Package movement holds the teleport destination and lifecycle values
// tracked per character.
package movement

import (
	"fmt"

	"github.com/emberrealm/worldserver/pkg/core"
)

// Distance is a teleport destination: either Near (same map) or Far (any map).
type Distance struct {
	far  bool
	near core.Position
	zone core.ZoneLocation
}

// Near builds a destination on the character's current map.
func Near(p core.Position) Distance {
	return Distance{near: p}
}

// Far builds a destination that may be on another map.
func Far(z core.ZoneLocation) Distance {
	return Distance{far: true, zone: z}
}

// IsFar reports whether the destination carries a map.
func (d Distance) IsFar() bool { return d.far }

// IsNear reports whether the destination is on the current map.
func (d Distance) IsNear() bool { return !d.far }

// NearTarget returns the destination of a Near teleport.
func (d Distance) NearTarget() (core.Position, bool) {
	if d.far {
		return core.Position{}, false
	}
	return d.near, true
}

// FarTarget returns the destination of a Far teleport.
func (d Distance) FarTarget() (core.ZoneLocation, bool) {
	if !d.far {
		return core.ZoneLocation{}, false
	}
	return d.zone, true
}

func (d Distance) String() string {
	if d.far {
		return fmt.Sprintf("far(map=%d %s)", d.zone.Map, d.zone.Position)
	}
	return fmt.Sprintf("near(%s)", d.near.Position)
}

// StateKind is the phase of a teleport.
type StateKind uint8

const (
	StateIdle StateKind = iota
	StateQueued
	StateExecuting
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateQueued:
		return "queued"
	case StateExecuting:
		return "executing"
	default:
		return fmt.Sprintf("StateKind(%d)", uint8(k))
	}
}

// State is a character's teleport lifecycle. The zero value is Idle.
type State struct {
	kind        StateKind
	destination Distance
}

// Idle is the state with no teleport pending.
func Idle() State { return State{} }

// Queued is a requested teleport that has not been started.
func Queued(d Distance) State {
	return State{kind: StateQueued, destination: d}
}

// Executing is a started teleport waiting for the client acknowledgement.
func Executing(d Distance) State {
	return State{kind: StateExecuting, destination: d}
}

// Kind returns the lifecycle phase.
func (s State) Kind() StateKind { return s.kind }

// Destination returns the carried destination; ok is false when Idle.
func (s State) Destination() (Distance, bool) {
	if s.kind == StateIdle {
		return Distance{}, false
	}
	return s.destination, true
}

func (s State) String() string {
	if s.kind == StateIdle {
		return s.kind.String()
	}
	return fmt.Sprintf("%s(%s)", s.kind, s.destination)
}
