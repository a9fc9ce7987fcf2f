package geofilter

import (
	"crypto/sha256"
	"sort"

	"github.com/paulmach/orb"

	"github.com/kraina-ai/quackosm-go/internal/geo"
)

// Fingerprint computes a SHA-256 hash over the canonical WKB of mp,
// normalized so that the fingerprint is stable across equal-but-permuted
// ring vertex starts. Winding is not normalized here; New orients the
// rings before hashing, so a Filter's Fingerprint is also stable across
// windings. Grounded on QuackOSM's
// _get_oriented_geometry_filter / _generate_geometry_hash (rotate each
// ring to its lexicographically smallest vertex, order rings
// lexicographically by first vertex, then hash).
func Fingerprint(mp orb.MultiPolygon) [32]byte {
	canonical := canonicalize(mp)
	data, err := geo.NewEncoder().EncodeMultiPolygon(toCoordSlices(canonical))
	if err != nil {
		// Canonicalization only reorders existing valid rings; encoding
		// cannot fail for well-formed input.
		panic(err)
	}
	return sha256.Sum256(data)
}

func canonicalize(mp orb.MultiPolygon) orb.MultiPolygon {
	out := make(orb.MultiPolygon, len(mp))
	for pi, poly := range mp {
		rings := make(orb.Polygon, len(poly))
		for ri, ring := range poly {
			rings[ri] = rotateToSmallest(ring)
		}
		sort.Slice(rings[1:], func(i, j int) bool {
			return lessPoint(rings[1:][i][0], rings[1:][j][0])
		})
		out[pi] = rings
	}
	sort.Slice(out, func(i, j int) bool {
		return lessPoint(out[i][0][0], out[j][0][0])
	})
	return out
}

// rotateToSmallest rotates a closed ring (first == last) to start at its
// lexicographically smallest vertex, preserving winding direction.
func rotateToSmallest(ring orb.Ring) orb.Ring {
	pts := []orb.Point(ring)
	if len(pts) < 2 {
		return ring
	}
	open := pts[:len(pts)-1] // drop the duplicated closing point
	minIdx := 0
	for i, p := range open {
		if lessPoint(p, open[minIdx]) {
			minIdx = i
		}
	}
	rotated := make([]orb.Point, 0, len(pts))
	rotated = append(rotated, open[minIdx:]...)
	rotated = append(rotated, open[:minIdx]...)
	rotated = append(rotated, rotated[0]) // re-close
	return orb.Ring(rotated)
}

func lessPoint(a, b orb.Point) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

func toCoordSlices(mp orb.MultiPolygon) [][][]float64 {
	out := make([][][]float64, len(mp))
	for pi, poly := range mp {
		rings := make([][]float64, len(poly))
		for ri, ring := range poly {
			coords := make([]float64, 0, len(ring)*2)
			for _, p := range ring {
				coords = append(coords, p[0], p[1])
			}
			rings[ri] = coords
		}
		out[pi] = rings
	}
	return out
}
