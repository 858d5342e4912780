package geo

import (
	"errors"
	"testing"

	"github.com/emberrealm/worldserver/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

func TestPointFromVector_RoundTrip(t *testing.T) {
	v := core.Vector3{X: -8913.23, Y: 554.633, Z: 93.7944}

	p := PointFromVector(v)
	coords, ok := p.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	if coords.Type != geom.DimXYZ {
		t.Errorf("expected XYZ point, got %v", coords.Type)
	}

	back, ok := VectorFromPoint(p)
	if !ok {
		t.Fatal("expected non-empty point")
	}
	if back != v {
		t.Errorf("expected %v, got %v", v, back)
	}
}

func TestVectorFromString_ValidWithZ(t *testing.T) {
	v, err := VectorFromString("100.5,200.25,50")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.X != 100.5 || v.Y != 200.25 || v.Z != 50 {
		t.Errorf("unexpected vector %v", v)
	}
}

func TestVectorFromString_ValidWithoutZ(t *testing.T) {
	v, err := VectorFromString(" 1 , 2 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Z != 0 {
		t.Errorf("expected Z=0, got %f", v.Z)
	}
}

func TestVectorFromString_Invalid(t *testing.T) {
	for _, in := range []string{"", "1", "a,b", "1,2,3,4", "1,NaN"} {
		if _, err := VectorFromString(in); !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("%q: expected ErrInvalidCoordinates, got %v", in, err)
		}
	}
}

func TestDistance(t *testing.T) {
	d := Distance(core.Vector3{}, core.Vector3{X: 3, Y: 4})
	if d != 5 {
		t.Errorf("expected 5, got %f", d)
	}
}
