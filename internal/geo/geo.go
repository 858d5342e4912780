package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/emberrealm/worldserver/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// GEO POINTS
// Map positions are stored as planar XYZ points in engine units. There is no
// spatial reference system: every map has its own local origin.
// Geometry data is stored in the WKB format so SQLite and Postgres share one column type.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// PointFromVector converts a map position to an XYZ point.
func PointFromVector(v core.Vector3) geom.Point {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: float64(v.X), Y: float64(v.Y)},
			Z:    float64(v.Z),
			Type: geom.CoordinatesType(geom.DimXYZ),
		},
	)
}

// VectorFromPoint converts a stored point back to a map position.
// ok is false for an empty point.
func VectorFromPoint(p geom.Point) (v core.Vector3, ok bool) {
	coords, ok := p.Coordinates()
	if !ok {
		return core.Vector3{}, false
	}
	return core.Vector3{
		X: float32(coords.X),
		Y: float32(coords.Y),
		Z: float32(coords.Z),
	}, true
}

// VectorFromString parses "x,y" or "x,y,z" into a map position.
func VectorFromString(coords string) (core.Vector3, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 || len(coordsSplit) > 3 {
		return core.Vector3{}, ErrInvalidCoordinates
	}

	var parsed [3]float64
	for i, raw := range coordsSplit {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return core.Vector3{}, ErrInvalidCoordinates
		}
		parsed[i] = f
	}
	return core.Vector3{X: float32(parsed[0]), Y: float32(parsed[1]), Z: float32(parsed[2])}, nil
}

// Distance returns the straight-line distance between two positions.
func Distance(a, b core.Vector3) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	dz := float64(a.Z - b.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
