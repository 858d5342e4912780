// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/emberrealm/worldserver/internal/geo"
	"github.com/emberrealm/worldserver/internal/model"
	"github.com/emberrealm/worldserver/pkg/core"
)

// TeleportToCore converts a GORM model.TeleportRecord to a core.TeleportEvent.
// The origin orientation is not stored and comes back as zero. A movement
// column that is not valid JSON is an error.
func TeleportToCore(r model.TeleportRecord) (core.TeleportEvent, error) {
	e := core.TeleportEvent{
		ID:    r.ID,
		Time:  r.Time,
		GUID:  core.GUID(r.CharacterGUID),
		Name:  r.CharacterName,
		Phase: core.TeleportPhase(r.Phase),
		Kind:  core.TeleportKind(r.Kind),
		From: core.ZoneLocation{
			Map:  core.MapID(r.FromMap),
			Area: core.AreaID(r.FromArea),
		},
		To: core.ZoneLocation{
			Map:         core.MapID(r.ToMap),
			Area:        core.AreaID(r.ToArea),
			Orientation: r.Orientation,
		},
	}
	if v, ok := geo.VectorFromPoint(r.FromPosition); ok {
		e.From.Position = v
	}
	if v, ok := geo.VectorFromPoint(r.ToPosition); ok {
		e.To.Position = v
	}
	if len(r.Movement) > 0 {
		if err := json.Unmarshal(r.Movement, &e.Movement); err != nil {
			return e, fmt.Errorf("teleport %d: decode movement: %w", r.ID, err)
		}
	}
	return e, nil
}

// TickToCore converts a GORM model.TickRecord to a core.TickSample.
func TickToCore(r model.TickRecord) core.TickSample {
	return core.TickSample{
		ID:         r.ID,
		Time:       r.Time,
		Tick:       r.Tick,
		DT:         msDuration(r.DTMs),
		Work:       msDuration(r.WorkMs),
		Total:      msDuration(r.TotalMs),
		Overrun:    r.Overrun,
		Clients:    r.Clients,
		QueueDepth: r.QueueDepth,
		Population: r.Population,
	}
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
