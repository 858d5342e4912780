// pkg/core/location.go
package core

import "fmt"

// GUID uniquely identifies a world object for the lifetime of the server.
type GUID uint64

// MapID identifies a continent, dungeon or battleground map.
type MapID uint32

// AreaID identifies a zone within a map.
type AreaID uint32

// Vector3 is a position in map-local engine units.
type Vector3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// String renders the vector as "x,y,z".
func (v Vector3) String() string {
	return fmt.Sprintf("%.2f,%.2f,%.2f", v.X, v.Y, v.Z)
}

// Position is a location and facing on the character's current map.
type Position struct {
	Position    Vector3 `json:"position"`
	Orientation float32 `json:"orientation"`
}

// ZoneLocation is a full world address: map, area, location and facing.
type ZoneLocation struct {
	Map         MapID   `json:"map"`
	Area        AreaID  `json:"area"`
	Position    Vector3 `json:"position"`
	Orientation float32 `json:"orientation"`
}

// Placement drops the map and area, keeping location and facing.
func (z ZoneLocation) Placement() Position {
	return Position{
		Position:    z.Position,
		Orientation: z.Orientation,
	}
}
