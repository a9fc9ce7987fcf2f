// Package geofilter implements the Geometry Predicate (C2): a precomputed
// clip polygon with a prepared spatial index and an orientation-normalized
// fingerprint, used to clip nodes/ways/relations against a caller-supplied
// filter geometry.
package geofilter

import (
	"fmt"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/kraina-ai/quackosm-go/internal/geo"
	"github.com/kraina-ai/quackosm-go/internal/quackerr"
)

// ringEntry is one rtreego.Spatial item: a ring's bounding box, plus the
// ring itself and which polygon/ring-position it belongs to (shell=true
// for outer rings, used so intersect tests can skip holes for containment
// shortlisting).
type ringEntry struct {
	bbox  *rtreego.Rect
	ring  orb.Ring
	shell bool
}

func (r *ringEntry) Bounds() *rtreego.Rect { return r.bbox }

// Filter is the compiled Geometry Predicate: the normalized multipolygon,
// an rtreego index over its ring bounding boxes, and its fingerprint.
type Filter struct {
	Geometry    orb.MultiPolygon
	Fingerprint [32]byte
	index       *rtreego.Rtree
}

// New builds a Filter from a caller-supplied polygon or multipolygon,
// rejecting zero-area input with EmptyFilterError.
func New(mp orb.MultiPolygon) (*Filter, error) {
	if len(mp) == 0 {
		return nil, &quackerr.EmptyFilterError{Reason: "multipolygon has no rings"}
	}

	normalized := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		area := geo.SignedArea([]orb.Point(poly[0]))
		if area == 0 {
			return nil, &quackerr.EmptyFilterError{Reason: "polygon component has zero area"}
		}
		repaired := orb.Polygon{geo.OrientOuter(poly[0])}
		for _, hole := range poly[1:] {
			repaired = append(repaired, geo.OrientHole(hole))
		}
		normalized = append(normalized, repaired)
	}
	if len(normalized) == 0 {
		return nil, &quackerr.EmptyFilterError{Reason: "multipolygon has no non-empty polygon components"}
	}

	tree := rtreego.NewTree(2, 25, 50)
	for _, poly := range normalized {
		for i, ring := range poly {
			bbox, err := ringBounds(ring)
			if err != nil {
				return nil, &quackerr.InvalidInputError{Reason: "degenerate ring bounds", Cause: err}
			}
			tree.Insert(&ringEntry{bbox: bbox, ring: ring, shell: i == 0})
		}
	}

	return &Filter{
		Geometry:    normalized,
		Fingerprint: Fingerprint(normalized),
		index:       tree,
	}, nil
}

func ringBounds(ring orb.Ring) (*rtreego.Rect, error) {
	b := geo.BoundOf([]orb.Point(ring))
	w, h := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	const eps = 1e-12
	if w <= 0 {
		w = eps
	}
	if h <= 0 {
		h = eps
	}
	return rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{w, h})
}

// ContainsPoint reports whether pt lies within the filter's multipolygon,
// shortlisting candidate shell rings via the rtree before the exact
// point-in-ring test.
func (f *Filter) ContainsPoint(pt orb.Point) bool {
	query, err := rtreego.NewRect(rtreego.Point{pt[0], pt[1]}, []float64{1e-12, 1e-12})
	if err != nil {
		return false
	}
	candidates := f.index.SearchIntersect(query)
	for _, c := range candidates {
		entry := c.(*ringEntry)
		if !entry.shell {
			continue
		}
		if pointInRing(entry.ring, pt) {
			if !f.pointInAnyHole(pt) {
				return true
			}
		}
	}
	return false
}

func (f *Filter) pointInAnyHole(pt orb.Point) bool {
	for _, poly := range f.Geometry {
		for _, hole := range poly[1:] {
			if pointInRing(hole, pt) {
				return true
			}
		}
	}
	return false
}

// pointInRing is a standard even-odd ray-casting point-in-polygon test.
// No point-in-polygon function is present anywhere in the example pack's
// geometry libraries, so this is hand-implemented; see DESIGN.md.
func pointInRing(ring orb.Ring, pt orb.Point) bool {
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

// IntersectsBound is a cheap shortlist test used before an exact
// intersects check on a candidate feature geometry's bounding box.
func (f *Filter) IntersectsBound(b orb.Bound) bool {
	w, h := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	const eps = 1e-12
	if w <= 0 {
		w = eps
	}
	if h <= 0 {
		h = eps
	}
	query, err := rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{w, h})
	if err != nil {
		return false
	}
	return len(f.index.SearchIntersect(query)) > 0
}

// Intersects reports whether g intersects the filter's multipolygon. It
// shortlists via the bounding box index, then falls back to an exact
// per-ring segment/containment test for the surviving candidates.
func (f *Filter) Intersects(g orb.Geometry) bool {
	if !f.IntersectsBound(g.Bound()) {
		return false
	}
	switch geom := g.(type) {
	case orb.Point:
		return f.ContainsPoint(geom)
	case orb.LineString:
		return f.intersectsLineString(geom)
	case orb.Polygon:
		return f.intersectsPolygon(geom)
	case orb.MultiPolygon:
		for _, poly := range geom {
			if f.intersectsPolygon(poly) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (f *Filter) intersectsLineString(ls orb.LineString) bool {
	for _, p := range ls {
		if f.ContainsPoint(p) {
			return true
		}
	}
	for _, poly := range f.Geometry {
		for i := 0; i < len(ls)-1; i++ {
			if segmentCrossesRing(ls[i], ls[i+1], poly[0]) {
				return true
			}
		}
	}
	return false
}

func (f *Filter) intersectsPolygon(poly orb.Polygon) bool {
	if len(poly) == 0 {
		return false
	}
	if f.intersectsLineString(orb.LineString(poly[0])) {
		return true
	}
	// The filter polygon entirely inside the candidate, or vice versa.
	for _, fp := range f.Geometry {
		if pointInRing(poly[0], fp[0][0]) {
			return true
		}
	}
	return pointInRing(f.Geometry[0][0], poly[0][0])
}

func segmentCrossesRing(a, b orb.Point, ring orb.Ring) bool {
	for i := 0; i < len(ring)-1; i++ {
		if segmentsIntersect(a, b, ring[i], ring[i+1]) {
			return true
		}
	}
	return false
}

func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return false
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// String renders the filter's bounding geometry for error messages.
func (f *Filter) String() string {
	return fmt.Sprintf("geofilter(rings=%d, fingerprint=%x)", ringCount(f.Geometry), f.Fingerprint[:4])
}

func ringCount(mp orb.MultiPolygon) int {
	n := 0
	for _, poly := range mp {
		n += len(poly)
	}
	return n
}
