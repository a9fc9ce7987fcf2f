package geo

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestDedupConsecutive(t *testing.T) {
	tests := []struct {
		name string
		in   []orb.Point
		want int
	}{
		{"no dups", []orb.Point{{0, 0}, {1, 0}, {1, 1}}, 3},
		{"consecutive dup", []orb.Point{{0, 0}, {0, 0}, {1, 0}}, 2},
		{"all same", []orb.Point{{0, 0}, {0, 0}, {0, 0}}, 1},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DedupConsecutive(tt.in)
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestIsCCW(t *testing.T) {
	ccw := []orb.Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	cw := []orb.Point{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}

	if !IsCCW(ccw) {
		t.Error("expected ccw ring to be detected as CCW")
	}
	if IsCCW(cw) {
		t.Error("expected cw ring to be detected as CW")
	}
}

func TestOrientOuterAndHole(t *testing.T) {
	cw := orb.Ring{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}

	outer := OrientOuter(cw)
	if !IsCCW([]orb.Point(outer)) {
		t.Error("OrientOuter should produce a CCW ring")
	}

	hole := OrientHole(outer)
	if IsCCW([]orb.Point(hole)) {
		t.Error("OrientHole should produce a CW ring")
	}
}

func TestRepairRingRejectsShort(t *testing.T) {
	ring := orb.Ring{{0, 0}, {1, 0}, {0, 0}}
	if _, err := RepairRing(ring); err != ErrTooFewVertices {
		t.Errorf("expected ErrTooFewVertices, got %v", err)
	}
}

func TestRepairRingValidSquare(t *testing.T) {
	ring := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	repaired, err := RepairRing(ring)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repaired) != 5 {
		t.Errorf("len = %d, want 5", len(repaired))
	}
}

func TestRepairPolygonDropsBadHole(t *testing.T) {
	shell := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	badHole := orb.Ring{{2, 2}, {2, 2}}
	poly := orb.Polygon{shell, badHole}

	repaired, err := RepairPolygon(poly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repaired) != 1 {
		t.Errorf("expected bad hole to be dropped, got %d rings", len(repaired))
	}
}

func TestBoundOf(t *testing.T) {
	pts := []orb.Point{{1, 2}, {3, -1}, {0, 5}}
	b := BoundOf(pts)
	if b.Min[0] != 0 || b.Min[1] != -1 || b.Max[0] != 3 || b.Max[1] != 5 {
		t.Errorf("unexpected bound: %+v", b)
	}
}
