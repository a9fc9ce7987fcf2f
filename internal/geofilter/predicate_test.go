package geofilter

import (
	"testing"

	"github.com/paulmach/orb"
)

// TestIntersectsPolygonCandidateFullyInsideFilter covers a small candidate
// polygon entirely inside a large filter polygon, away from the border, so
// no filter-ring vertex falls inside the candidate and intersectsLineString
// finds no boundary crossing. The containment check must still catch it by
// testing a candidate vertex against the filter ring.
func TestIntersectsPolygonCandidateFullyInsideFilter(t *testing.T) {
	country := orb.Polygon{orb.Ring{{0, 0}, {100, 0}, {100, 100}, {0, 100}, {0, 0}}}
	f, err := New(orb.MultiPolygon{country})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	small := orb.Polygon{orb.Ring{{40, 40}, {42, 40}, {42, 42}, {40, 42}, {40, 40}}}
	if !f.Intersects(small) {
		t.Error("Intersects() = false, want true for a candidate fully inside the filter")
	}
}

func TestIntersectsPolygonFilterFullyInsideCandidate(t *testing.T) {
	small := orb.Polygon{orb.Ring{{40, 40}, {42, 40}, {42, 42}, {40, 42}, {40, 40}}}
	f, err := New(orb.MultiPolygon{small})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	country := orb.Polygon{orb.Ring{{0, 0}, {100, 0}, {100, 100}, {0, 100}, {0, 0}}}
	if !f.Intersects(country) {
		t.Error("Intersects() = false, want true when the filter is fully inside the candidate")
	}
}

func TestIntersectsPolygonDisjoint(t *testing.T) {
	a := orb.Polygon{orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}
	f, err := New(orb.MultiPolygon{a})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	b := orb.Polygon{orb.Ring{{200, 200}, {210, 200}, {210, 210}, {200, 210}, {200, 200}}}
	if f.Intersects(b) {
		t.Error("Intersects() = true, want false for disjoint polygons")
	}
}
