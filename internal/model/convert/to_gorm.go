package convert

import (
	"encoding/json"
	"time"

	"github.com/emberrealm/worldserver/internal/geo"
	"github.com/emberrealm/worldserver/internal/model"
	"github.com/emberrealm/worldserver/pkg/core"
	"gorm.io/datatypes"
)

// movementToJSON converts a movement snapshot to datatypes.JSON for DB storage.
func movementToJSON(m core.MovementInfo) datatypes.JSON {
	data, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// durationMs converts a duration to fractional milliseconds.
func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// CoreToTeleport converts a core.TeleportEvent to a GORM model.TeleportRecord.
func CoreToTeleport(e core.TeleportEvent) model.TeleportRecord {
	return model.TeleportRecord{
		ID:            e.ID,
		Time:          e.Time,
		CharacterGUID: uint64(e.GUID),
		CharacterName: e.Name,
		Phase:         string(e.Phase),
		Kind:          string(e.Kind),
		FromMap:       uint32(e.From.Map),
		FromArea:      uint32(e.From.Area),
		FromPosition:  geo.PointFromVector(e.From.Position),
		ToMap:         uint32(e.To.Map),
		ToArea:        uint32(e.To.Area),
		ToPosition:    geo.PointFromVector(e.To.Position),
		Orientation:   e.To.Orientation,
		Movement:      movementToJSON(e.Movement),
	}
}

// CoreToTick converts a core.TickSample to a GORM model.TickRecord.
func CoreToTick(s core.TickSample) model.TickRecord {
	return model.TickRecord{
		ID:         s.ID,
		Time:       s.Time,
		Tick:       s.Tick,
		DTMs:       durationMs(s.DT),
		WorkMs:     durationMs(s.Work),
		TotalMs:    durationMs(s.Total),
		Overrun:    s.Overrun,
		Clients:    s.Clients,
		QueueDepth: s.QueueDepth,
		Population: s.Population,
	}
}
