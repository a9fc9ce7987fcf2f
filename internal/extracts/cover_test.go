package extracts

import (
	"testing"

	"github.com/paulmach/orb"
)

func square(minX, minY, maxX, maxY float64) orb.MultiPolygon {
	return orb.MultiPolygon{
		orb.Polygon{orb.Ring{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}},
	}
}

func TestSelectCoveringPicksSingleExactMatch(t *testing.T) {
	filter := square(0, 0, 10, 10)
	candidates := []Extract{
		{ID: "a", Geometry: square(0, 0, 10, 10)},
		{ID: "b", Geometry: square(100, 100, 110, 110)},
	}

	picked, fraction, err := SelectCovering(filter, candidates, 0.01)
	if err != nil {
		t.Fatalf("SelectCovering() error: %v", err)
	}
	if len(picked) != 1 || picked[0].ID != "a" {
		t.Fatalf("picked = %+v, want only extract a", picked)
	}
	if fraction < 0.99 {
		t.Errorf("fraction = %v, want close to 1", fraction)
	}
}

func TestSelectCoveringCombinesTwoPartialExtracts(t *testing.T) {
	filter := square(0, 0, 10, 10)
	candidates := []Extract{
		{ID: "left", Geometry: square(0, 0, 5, 10)},
		{ID: "right", Geometry: square(5, 0, 10, 10)},
	}

	picked, fraction, err := SelectCovering(filter, candidates, 0.01)
	if err != nil {
		t.Fatalf("SelectCovering() error: %v", err)
	}
	if len(picked) != 2 {
		t.Fatalf("picked = %+v, want both halves", picked)
	}
	if fraction < 0.9 {
		t.Errorf("fraction = %v, want close to 1 once both halves are picked", fraction)
	}
}

func TestSelectCoveringReportsUncoveredWhenNoCandidateOverlaps(t *testing.T) {
	filter := square(0, 0, 10, 10)
	candidates := []Extract{
		{ID: "far", Geometry: square(1000, 1000, 1010, 1010)},
	}

	picked, fraction, err := SelectCovering(filter, candidates, 0.01)
	if err != nil {
		t.Fatalf("SelectCovering() error: %v", err)
	}
	if len(picked) != 0 {
		t.Errorf("picked = %+v, want none", picked)
	}
	if fraction != 0 {
		t.Errorf("fraction = %v, want 0", fraction)
	}
}

func TestSelectCoveringRejectsEmptyFilter(t *testing.T) {
	if _, _, err := SelectCovering(nil, nil, 0.01); err == nil {
		t.Error("SelectCovering(nil filter) succeeded, want error")
	}
}
