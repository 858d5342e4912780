package character

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberrealm/worldserver/internal/movement"
	"github.com/emberrealm/worldserver/internal/world"
	"github.com/emberrealm/worldserver/pkg/core"
)

// recordingNotifier logs every notice in send order.
type recordingNotifier struct {
	sent []string
	fail error
}

func (r *recordingNotifier) SendMoveTeleportAck(guid core.GUID, dest core.Position) error {
	r.sent = append(r.sent, fmt.Sprintf("move_teleport_ack(%d)", guid))
	return r.fail
}

func (r *recordingNotifier) SendTransferPending(m core.MapID) error {
	r.sent = append(r.sent, fmt.Sprintf("transfer_pending(%d)", m))
	return r.fail
}

func (r *recordingNotifier) SendNewWorld(m core.MapID, dest core.Position) error {
	r.sent = append(r.sent, fmt.Sprintf("new_world(%d)", m))
	return r.fail
}

func newOnMap(t *testing.T, im *world.InstanceManager, guid core.GUID, m core.MapID) *Character {
	t.Helper()
	c := New(guid, "Arthas", core.ZoneLocation{Map: m, Position: core.Vector3{X: 1, Y: 1, Z: 1}})
	_, err := im.AddObject(m, guid)
	require.NoError(t, err)
	return c
}

func TestProcessMovement_ReplacesWholesale(t *testing.T) {
	c := New(1, "a", core.ZoneLocation{})
	info := core.MovementInfo{
		Flags:       core.MoveForward | core.MoveFalling,
		ExtraFlags:  core.ExtraNoJumping,
		Timestamp:   1234,
		Position:    core.Vector3{X: 5, Y: 6, Z: 7},
		Orientation: 2,
		FallTime:    30,
	}
	c.ProcessMovement(info)
	assert.Equal(t, info, c.Movement())

	c.ProcessMovement(core.MovementInfo{Timestamp: 1})
	assert.Equal(t, core.MovementInfo{Timestamp: 1}, c.Movement())
}

func TestSetPosition_KeepsFlags(t *testing.T) {
	c := New(1, "a", core.ZoneLocation{})
	c.ProcessMovement(core.MovementInfo{Flags: core.MoveForward, Timestamp: 99})

	c.SetPosition(core.Position{Position: core.Vector3{X: 9}, Orientation: 3})

	m := c.Movement()
	assert.Equal(t, core.MoveForward, m.Flags)
	assert.Equal(t, uint32(99), m.Timestamp)
	assert.Equal(t, float32(9), m.Position.X)
	assert.Equal(t, float32(3), m.Orientation)
}

func TestResetMoveFlags(t *testing.T) {
	c := New(1, "a", core.ZoneLocation{})
	c.ProcessMovement(core.MovementInfo{Flags: core.MoveSwimming, ExtraFlags: core.ExtraNoStrafe, FallTime: 5})

	c.resetMoveFlags()

	m := c.Movement()
	assert.True(t, m.Flags.Empty())
	assert.True(t, m.ExtraFlags.Empty())
	assert.Equal(t, uint32(5), m.FallTime)
}

func TestTeleportTo_Overwrites(t *testing.T) {
	c := New(1, "a", core.ZoneLocation{})
	first := movement.Near(core.Position{Position: core.Vector3{X: 1}})
	second := movement.Near(core.Position{Position: core.Vector3{X: 2}})

	c.TeleportTo(first)
	c.TeleportTo(second)

	d, ok := c.Teleport().Destination()
	require.True(t, ok)
	assert.Equal(t, movement.StateQueued, c.Teleport().Kind())
	assert.Equal(t, second, d)
}

func TestAdvance_IdleIsNoop(t *testing.T) {
	n := &recordingNotifier{}
	im := world.NewInstanceManager(nil)
	c := newOnMap(t, im, 1, 1)

	require.NoError(t, c.AdvanceTeleport(n, im))
	assert.Empty(t, n.sent)
	assert.Equal(t, movement.StateIdle, c.Teleport().Kind())
}

func TestNearTeleport_RoundTrip(t *testing.T) {
	n := &recordingNotifier{}
	im := world.NewInstanceManager(nil)
	c := newOnMap(t, im, 7, 1)
	dest := core.Position{Position: core.Vector3{X: 100, Y: 200, Z: 5}, Orientation: 1.5}

	c.TeleportTo(movement.Near(dest))
	require.NoError(t, c.AdvanceTeleport(n, im))

	assert.Equal(t, []string{"move_teleport_ack(7)"}, n.sent)
	assert.Equal(t, movement.Executing(movement.Near(dest)), c.Teleport())
	assert.NotEqual(t, dest.Position, c.Movement().Position, "position moves only on ack")

	// a second advance while executing does nothing
	require.NoError(t, c.AdvanceTeleport(n, im))
	assert.Len(t, n.sent, 1)

	require.NoError(t, c.CompleteNearTeleport())
	assert.Equal(t, dest, c.Movement().Placement())
	assert.Equal(t, movement.StateIdle, c.Teleport().Kind())
}

func TestFarTeleport_OtherMap(t *testing.T) {
	n := &recordingNotifier{}
	im := world.NewInstanceManager(nil)
	c := newOnMap(t, im, 7, 1)
	c.ProcessMovement(core.MovementInfo{Flags: core.MoveForward, ExtraFlags: core.ExtraNoJumping})
	dest := core.ZoneLocation{Map: 2, Area: 12, Position: core.Vector3{X: 10, Y: 20, Z: 30}, Orientation: 0.25}

	c.TeleportTo(movement.Far(dest))
	require.NoError(t, c.AdvanceTeleport(n, im))

	assert.Equal(t, []string{"transfer_pending(2)", "new_world(2)"}, n.sent)
	assert.Equal(t, movement.Executing(movement.Far(dest)), c.Teleport())
	assert.True(t, c.Movement().Flags.Empty())
	assert.True(t, c.Movement().ExtraFlags.Empty())

	old, _ := im.Instance(1)
	assert.False(t, old.Contains(7))
	_, onAny := im.TryGetMapForCharacter(7)
	assert.False(t, onAny, "character is in no map between removal and ack")
	assert.Equal(t, core.MapID(1), c.Map(), "map changes only on ack")

	require.NoError(t, c.CompleteFarTeleport(im))
	assert.Equal(t, core.MapID(2), c.Map())
	assert.Equal(t, core.AreaID(12), c.Area())
	assert.Equal(t, dest.Placement(), c.Movement().Placement())
	assert.Equal(t, movement.StateIdle, c.Teleport().Kind())

	inst, ok := im.TryGetMapForCharacter(7)
	require.True(t, ok)
	assert.Equal(t, core.MapID(2), inst.ID())
}

func TestFarTeleport_SameMapBecomesNear(t *testing.T) {
	n := &recordingNotifier{}
	im := world.NewInstanceManager(nil)
	c := newOnMap(t, im, 7, 1)
	c.ProcessMovement(core.MovementInfo{Flags: core.MoveForward})
	dest := core.ZoneLocation{Map: 1, Position: core.Vector3{X: 3, Y: 4, Z: 5}, Orientation: 2}

	c.TeleportTo(movement.Far(dest))
	require.NoError(t, c.AdvanceTeleport(n, im))

	assert.Empty(t, n.sent)
	assert.Equal(t, movement.Queued(movement.Near(dest.Placement())), c.Teleport())
	assert.Equal(t, core.MoveForward, c.Movement().Flags, "flags untouched by reclassification")
	inst, _ := im.Instance(1)
	assert.True(t, inst.Contains(7))

	// next tick it runs as a near teleport
	require.NoError(t, c.AdvanceTeleport(n, im))
	assert.Equal(t, []string{"move_teleport_ack(7)"}, n.sent)
	assert.Equal(t, movement.StateExecuting, c.Teleport().Kind())
}

func TestFarTeleport_InvalidSourceMap(t *testing.T) {
	n := &recordingNotifier{}
	im := world.NewInstanceManager(nil)
	c := New(7, "a", core.ZoneLocation{Map: 1})
	c.ProcessMovement(core.MovementInfo{Flags: core.MoveForward, ExtraFlags: core.ExtraNoStrafe})
	dest := core.ZoneLocation{Map: 2}

	c.TeleportTo(movement.Far(dest))
	err := c.AdvanceTeleport(n, im)

	require.ErrorIs(t, err, ErrInvalidSourceMap)
	assert.Equal(t, []string{"transfer_pending(2)"}, n.sent)
	assert.True(t, c.Movement().Flags.Empty(), "flags reset before resolution")
	assert.True(t, c.Movement().ExtraFlags.Empty())
	assert.Equal(t, movement.Executing(movement.Far(dest)), c.Teleport(), "stuck in transfer, not requeued")

	require.NoError(t, c.AdvanceTeleport(n, im))
	assert.Len(t, n.sent, 1, "transfer_pending is not repeated")
}

// newWorldFailer fails only the new-world notice.
type newWorldFailer struct{ recordingNotifier }

func (f *newWorldFailer) SendNewWorld(m core.MapID, dest core.Position) error {
	f.recordingNotifier.SendNewWorld(m, dest)
	return errors.New("buffer full")
}

func TestFarTeleport_NewWorldSendFails(t *testing.T) {
	n := &newWorldFailer{}
	im := world.NewInstanceManager(nil)
	c := newOnMap(t, im, 7, 1)
	dest := core.ZoneLocation{Map: 2}

	c.TeleportTo(movement.Far(dest))
	err := c.AdvanceTeleport(n, im)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "new world")
	assert.Equal(t, movement.Executing(movement.Far(dest)), c.Teleport())
	_, onAny := im.TryGetMapForCharacter(7)
	assert.False(t, onAny)

	require.NoError(t, c.AdvanceTeleport(n, im))
	assert.Equal(t, []string{"transfer_pending(2)", "new_world(2)"}, n.sent)
}

func TestAdvance_NotifierFailure(t *testing.T) {
	n := &recordingNotifier{fail: errors.New("buffer full")}
	im := world.NewInstanceManager(nil)
	c := newOnMap(t, im, 7, 1)

	c.TeleportTo(movement.Far(core.ZoneLocation{Map: 2}))
	err := c.AdvanceTeleport(n, im)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "transfer pending")
	inst, _ := im.Instance(1)
	assert.True(t, inst.Contains(7), "nothing removed when the first notice fails")
	assert.Equal(t, movement.StateQueued, c.Teleport().Kind(), "nothing sent, so it is retried")
}

func TestComplete_WithoutTeleport(t *testing.T) {
	im := world.NewInstanceManager(nil)
	c := newOnMap(t, im, 7, 1)

	require.ErrorIs(t, c.CompleteNearTeleport(), ErrNoTeleportInFlight)
	require.ErrorIs(t, c.CompleteFarTeleport(im), ErrNoTeleportInFlight)

	c.TeleportTo(movement.Near(core.Position{}))
	require.ErrorIs(t, c.CompleteNearTeleport(), ErrNoTeleportInFlight, "queued is not in flight")
}

func TestComplete_KindMismatch(t *testing.T) {
	n := &recordingNotifier{}
	im := world.NewInstanceManager(nil)
	c := newOnMap(t, im, 7, 1)

	c.TeleportTo(movement.Near(core.Position{}))
	require.NoError(t, c.AdvanceTeleport(n, im))

	require.ErrorIs(t, c.CompleteFarTeleport(im), ErrNoTeleportInFlight)
	assert.Equal(t, movement.StateExecuting, c.Teleport().Kind())
}

func TestRequestDuringFarExecution_LeavesNoticesSent(t *testing.T) {
	n := &recordingNotifier{}
	im := world.NewInstanceManager(nil)
	c := newOnMap(t, im, 7, 1)

	c.TeleportTo(movement.Far(core.ZoneLocation{Map: 2}))
	require.NoError(t, c.AdvanceTeleport(n, im))
	require.Len(t, n.sent, 2)

	near := core.Position{Position: core.Vector3{X: 1}}
	c.TeleportTo(movement.Near(near))
	assert.Equal(t, movement.Queued(movement.Near(near)), c.Teleport())
	assert.Len(t, n.sent, 2, "no retraction is sent")

	_, onAny := im.TryGetMapForCharacter(7)
	assert.False(t, onAny, "character stays detached from every map")
}
