package geo

import (
	"errors"

	"github.com/paulmach/orb"
)

// ErrTooFewVertices is returned by Repair when a geometry has fewer than
// the minimum number of unique vertices for its kind (2 for a line, 4 for
// a ring) after duplicate-vertex collapse.
var ErrTooFewVertices = errors.New("too few vertices after dedup")

// DedupConsecutive removes consecutive duplicate points from a ring or
// linestring, in place semantics via a fresh slice.
func DedupConsecutive(pts []orb.Point) []orb.Point {
	if len(pts) == 0 {
		return pts
	}
	out := make([]orb.Point, 0, len(pts))
	out = append(out, pts[0])
	for _, p := range pts[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}

// SignedArea computes twice the signed area of a ring via the shoelace
// formula. Positive means counter-clockwise winding.
func SignedArea(ring []orb.Point) float64 {
	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return sum
}

// IsCCW reports whether ring is wound counter-clockwise.
func IsCCW(ring []orb.Point) bool {
	return SignedArea(ring) > 0
}

// ReverseRing returns a copy of ring with point order reversed.
func ReverseRing(ring []orb.Point) []orb.Point {
	out := make([]orb.Point, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

// OrientOuter returns ring wound CCW, reversing it if necessary.
func OrientOuter(ring orb.Ring) orb.Ring {
	pts := []orb.Point(ring)
	if IsCCW(pts) {
		return ring
	}
	return orb.Ring(ReverseRing(pts))
}

// OrientHole returns ring wound CW, reversing it if necessary.
func OrientHole(ring orb.Ring) orb.Ring {
	pts := []orb.Point(ring)
	if !IsCCW(pts) {
		return ring
	}
	return orb.Ring(ReverseRing(pts))
}

// RepairLineString dedups consecutive vertices and rejects lines with
// fewer than 2 unique points remaining.
func RepairLineString(ls orb.LineString) (orb.LineString, error) {
	pts := DedupConsecutive([]orb.Point(ls))
	if len(pts) < 2 {
		return nil, ErrTooFewVertices
	}
	return orb.LineString(pts), nil
}

// RepairRing dedups consecutive vertices (keeping closure), rejects rings
// with fewer than 4 unique points (including the closing point), and
// removes self-intersecting spikes where a ring backtracks to a
// previously-visited point. It does not implement a general-purpose OGC
// make-valid; see DESIGN.md for why no pack library covers that case.
func RepairRing(ring orb.Ring) (orb.Ring, error) {
	pts := DedupConsecutive([]orb.Point(ring))
	// Closing point may have collapsed into its neighbor if the ring
	// started and ended identically; re-close if needed.
	if len(pts) > 0 && pts[0] != pts[len(pts)-1] {
		pts = append(pts, pts[0])
	}
	pts = removeSpikes(pts)
	if len(pts) < 4 {
		return nil, ErrTooFewVertices
	}
	return orb.Ring(pts), nil
}

// removeSpikes collapses A,B,A sequences ("there and back") that
// self-intersect degenerately without enclosing area to a single A,
// dropping both the tip B and the repeated A.
func removeSpikes(pts []orb.Point) []orb.Point {
	if len(pts) < 3 {
		return pts
	}
	out := make([]orb.Point, 0, len(pts))
	out = append(out, pts[0], pts[1])
	for i := 2; i < len(pts); i++ {
		for len(out) >= 2 && pts[i] == out[len(out)-2] {
			out = out[:len(out)-1]
		}
		if pts[i] != out[len(out)-1] {
			out = append(out, pts[i])
		}
	}
	return out
}

// PointInRing is a standard even-odd ray-casting point-in-polygon test,
// exported for C5's hole-containment check. No point-in-polygon function
// is present anywhere in the example pack's geometry libraries (see
// internal/geofilter's private copy of the same algorithm), so this is
// hand-implemented; flagged in DESIGN.md.
func PointInRing(ring orb.Ring, pt orb.Point) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > pt[1]) != (yj > pt[1]) {
			slopeX := xi + (pt[1]-yi)/(yj-yi)*(xj-xi)
			if pt[0] < slopeX {
				inside = !inside
			}
		}
	}
	return inside
}

// BoundOf computes the bounding box of a set of points.
func BoundOf(pts []orb.Point) orb.Bound {
	b := orb.Bound{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		b = b.Extend(p)
	}
	return b
}

// RepairPolygon repairs each ring of poly (shell then holes), drops holes
// that fail repair, reorients the shell CCW and holes CW, and rejects the
// polygon if the shell fails repair.
func RepairPolygon(poly orb.Polygon) (orb.Polygon, error) {
	if len(poly) == 0 {
		return nil, ErrTooFewVertices
	}
	shell, err := RepairRing(poly[0])
	if err != nil {
		return nil, err
	}
	out := orb.Polygon{OrientOuter(shell)}
	for _, hole := range poly[1:] {
		repaired, err := RepairRing(hole)
		if err != nil {
			continue // soft-drop, counted by the caller
		}
		out = append(out, OrientHole(repaired))
	}
	return out, nil
}
