package character

import (
	"fmt"

	"github.com/emberrealm/worldserver/internal/movement"
	"github.com/emberrealm/worldserver/pkg/core"
)

// ProcessMovement replaces the movement snapshot with a client report.
func (c *Character) ProcessMovement(info core.MovementInfo) {
	c.movement = info
}

// SetPosition moves the character without touching flags or timestamps.
func (c *Character) SetPosition(p core.Position) {
	c.movement.Position = p.Position
	c.movement.Orientation = p.Orientation
}

func (c *Character) resetMoveFlags() {
	c.movement.Flags = 0
	c.movement.ExtraFlags = 0
}

// TeleportTo queues a teleport, replacing whatever teleport state was there.
// Notices already sent for a replaced teleport are not retracted.
func (c *Character) TeleportTo(d movement.Distance) {
	c.teleport = movement.Queued(d)
}

// AdvanceTeleport starts a queued teleport. It is a no-op unless the state is
// Queued. A far teleport to the current map is downgraded to a near one and
// left queued for the next tick.
func (c *Character) AdvanceTeleport(n Notifier, maps Maps) error {
	if c.teleport.Kind() != movement.StateQueued {
		return nil
	}
	d, _ := c.teleport.Destination()

	if dest, ok := d.NearTarget(); ok {
		return c.executeNearTeleport(n, dest)
	}
	dest, _ := d.FarTarget()
	return c.executeFarTeleport(n, maps, dest)
}

func (c *Character) executeNearTeleport(n Notifier, dest core.Position) error {
	c.teleport = movement.Executing(movement.Near(dest))

	if err := n.SendMoveTeleportAck(c.guid, dest); err != nil {
		return fmt.Errorf("send move teleport ack: %w", err)
	}
	return nil
}

func (c *Character) executeFarTeleport(n Notifier, maps Maps, dest core.ZoneLocation) error {
	if c.mapID == dest.Map {
		c.TeleportTo(movement.Near(dest.Placement()))
		return nil
	}

	if err := n.SendTransferPending(dest.Map); err != nil {
		return fmt.Errorf("send transfer pending: %w", err)
	}
	c.resetMoveFlags()

	// Once transfer-pending is out the teleport is in flight, even if a later
	// step fails: the client hangs in transfer and no notice is repeated.
	defer func() { c.teleport = movement.Executing(movement.Far(dest)) }()

	oldMap, ok := maps.TryGetMapForCharacter(c.guid)
	if !ok {
		return fmt.Errorf("guid %d: %w", c.guid, ErrInvalidSourceMap)
	}
	oldMap.RemoveObjectByGUID(c.guid)

	if err := n.SendNewWorld(dest.Map, dest.Placement()); err != nil {
		return fmt.Errorf("send new world: %w", err)
	}
	return nil
}

// CompleteNearTeleport finishes a near teleport once the client acknowledges it.
func (c *Character) CompleteNearTeleport() error {
	if c.teleport.Kind() != movement.StateExecuting {
		return ErrNoTeleportInFlight
	}
	d, _ := c.teleport.Destination()
	dest, ok := d.NearTarget()
	if !ok {
		return ErrNoTeleportInFlight
	}

	c.SetPosition(dest)
	c.teleport = movement.Idle()
	return nil
}

// CompleteFarTeleport places the character in the destination map once the
// client has loaded it.
func (c *Character) CompleteFarTeleport(maps Maps) error {
	if c.teleport.Kind() != movement.StateExecuting {
		return ErrNoTeleportInFlight
	}
	d, _ := c.teleport.Destination()
	dest, ok := d.FarTarget()
	if !ok {
		return ErrNoTeleportInFlight
	}

	if _, err := maps.AddObject(dest.Map, c.guid); err != nil {
		return fmt.Errorf("enter map %d: %w", dest.Map, err)
	}

	c.mapID = dest.Map
	c.area = dest.Area
	c.SetPosition(dest.Placement())
	c.teleport = movement.Idle()
	return nil
}
