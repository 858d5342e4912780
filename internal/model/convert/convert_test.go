package convert

import (
	"testing"
	"time"

	"github.com/emberrealm/worldserver/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func farCompletion() core.TeleportEvent {
	return core.TeleportEvent{
		ID:    7,
		Time:  time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		GUID:  42,
		Name:  "Thrall",
		Phase: core.TeleportCompleted,
		Kind:  core.TeleportFar,
		From:  core.ZoneLocation{Map: 1, Area: 14, Position: core.Vector3{X: 1, Y: 2, Z: 3}},
		To: core.ZoneLocation{
			Map:         0,
			Area:        12,
			Position:    core.Vector3{X: -8913.25, Y: 554.5, Z: 93.75},
			Orientation: 0.5,
		},
		Movement: core.MovementInfo{
			Flags:     core.MoveForward | core.MoveFalling,
			Timestamp: 1200,
			Position:  core.Vector3{X: 1, Y: 2, Z: 3},
		},
	}
}

func TestCoreToTeleport(t *testing.T) {
	r := CoreToTeleport(farCompletion())

	assert.Equal(t, uint(7), r.ID)
	assert.Equal(t, uint64(42), r.CharacterGUID)
	assert.Equal(t, "completed", r.Phase)
	assert.Equal(t, "far", r.Kind)
	assert.Equal(t, uint32(1), r.FromMap)
	assert.Equal(t, uint32(12), r.ToArea)

	coords, ok := r.ToPosition.Coordinates()
	require.True(t, ok)
	assert.Equal(t, -8913.25, coords.XY.X)
	assert.Equal(t, 93.75, coords.Z)
	assert.JSONEq(t, `{"flags":4097,"extraFlags":0,"timestamp":1200,"position":{"x":1,"y":2,"z":3},"orientation":0,"fallTime":0}`, string(r.Movement))
}

// Round-trip: Core → GORM → Core
func TestTeleportRoundTrip(t *testing.T) {
	orig := farCompletion()
	back, err := TeleportToCore(CoreToTeleport(orig))
	require.NoError(t, err)
	assert.Equal(t, orig, back)
}

func TestTeleportToCore_EmptyMovement(t *testing.T) {
	r := CoreToTeleport(farCompletion())
	r.Movement = nil

	e, err := TeleportToCore(r)
	require.NoError(t, err)
	assert.Equal(t, core.MovementInfo{}, e.Movement)
}

func TestTeleportToCore_CorruptMovement(t *testing.T) {
	r := CoreToTeleport(farCompletion())
	r.Movement = []byte(`{"flags":`)

	_, err := TeleportToCore(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport 7: decode movement")
}

func TestTickRoundTrip(t *testing.T) {
	orig := core.TickSample{
		ID:         3,
		Time:       time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		Tick:       99,
		DT:         100 * time.Millisecond,
		Work:       12500 * time.Microsecond,
		Total:      100 * time.Millisecond,
		Clients:    4,
		QueueDepth: 2,
		Population: 17,
	}

	r := CoreToTick(orig)
	assert.Equal(t, 100.0, r.DTMs)
	assert.Equal(t, 12.5, r.WorkMs)

	assert.Equal(t, orig, TickToCore(r))
}
