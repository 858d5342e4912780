// Package character models a logged-in player character: its movement
// snapshot, current map and teleport lifecycle.
package character

import (
	"errors"

	"github.com/emberrealm/worldserver/internal/movement"
	"github.com/emberrealm/worldserver/internal/world"
	"github.com/emberrealm/worldserver/pkg/core"
)

var (
	// ErrInvalidSourceMap is returned when a far teleport starts and the
	// character is not a member of any map instance.
	ErrInvalidSourceMap = errors.New("player is teleporting away from an invalid map")

	// ErrNoTeleportInFlight is returned when a teleport acknowledgement does
	// not match an executing teleport.
	ErrNoTeleportInFlight = errors.New("no matching teleport in flight")
)

// Notifier delivers teleport notices to the owning client.
type Notifier interface {
	SendMoveTeleportAck(guid core.GUID, dest core.Position) error
	SendTransferPending(m core.MapID) error
	SendNewWorld(m core.MapID, dest core.Position) error
}

// Maps is the part of the map registry a teleport needs.
type Maps interface {
	TryGetMapForCharacter(guid core.GUID) (*world.MapInstance, bool)
	AddObject(id core.MapID, guid core.GUID) (*world.MapInstance, error)
}

// Character is owned by exactly one client session and is only mutated on
// the scheduler goroutine.
type Character struct {
	guid     core.GUID
	name     string
	mapID    core.MapID
	area     core.AreaID
	movement core.MovementInfo
	teleport movement.State
}

// New creates a character standing at loc.
func New(guid core.GUID, name string, loc core.ZoneLocation) *Character {
	return &Character{
		guid:  guid,
		name:  name,
		mapID: loc.Map,
		area:  loc.Area,
		movement: core.MovementInfo{
			Position:    loc.Position,
			Orientation: loc.Orientation,
		},
	}
}

func (c *Character) GUID() core.GUID { return c.guid }
func (c *Character) Name() string { return c.name }
func (c *Character) Map() core.MapID { return c.mapID }
func (c *Character) Area() core.AreaID { return c.area }
func (c *Character) Movement() core.MovementInfo { return c.movement }
func (c *Character) Teleport() movement.State { return c.teleport }

// Location returns the full world address of the character.
func (c *Character) Location() core.ZoneLocation {
	return core.ZoneLocation{
		Map:         c.mapID,
		Area:        c.area,
		Position:    c.movement.Position,
		Orientation: c.movement.Orientation,
	}
}
