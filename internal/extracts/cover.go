package extracts

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/kraina-ai/quackosm-go/internal/quackerr"
)

// gridResolution is the side length of the sampling grid used to estimate
// intersection-over-union between two polygons. No polygon-clipping library
// is present anywhere in the example pack, so overlap area is estimated by
// rasterizing the combined bounding box and counting containment rather
// than computing an exact clipped polygon; see DESIGN.md.
const gridResolution = 96

// SelectCovering greedily picks extracts from candidates to cover filter,
// per §6's IoU-based discovery, measured on a sampling grid: at each step
// it picks the extract that newly covers the most still-uncovered filter
// cells, breaking ties by the higher IoU against the whole filter. It stops
// when no candidate is left, when the best pick's IoU is below threshold,
// or when every filter cell is covered. It returns the chosen extracts in
// pick order and the fraction of filter's sampled cells ultimately covered.
func SelectCovering(filter orb.MultiPolygon, candidates []Extract, threshold float64) ([]Extract, float64, error) {
	if len(filter) == 0 {
		return nil, 0, &quackerr.EmptyFilterError{Reason: "no filter geometry supplied to extract selection"}
	}

	sorted := make([]Extract, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	grid := sampleGrid(filter.Bound(), gridResolution)

	covered := make([]bool, len(grid))
	totalInFilter := 0
	for i, pt := range grid {
		if pointInMultiPolygon(filter, pt) {
			totalInFilter++
		} else {
			covered[i] = true // cells outside the filter don't need covering
		}
	}
	if totalInFilter == 0 {
		return nil, 0, &quackerr.EmptyFilterError{Reason: "filter geometry has zero sampled area"}
	}

	var picked []Extract
	used := make([]bool, len(sorted))

	for {
		bestIdx := -1
		bestGain := 0
		bestIoU := 0.0
		for i, ex := range sorted {
			if used[i] {
				continue
			}
			gain, iou := scoreExtract(grid, covered, ex.Geometry, filter)
			if gain > bestGain || (gain == bestGain && iou > bestIoU) {
				bestIdx, bestGain, bestIoU = i, gain, iou
			}
		}
		if bestIdx == -1 || bestIoU < threshold {
			break
		}
		used[bestIdx] = true
		picked = append(picked, sorted[bestIdx])
		markCovered(grid, covered, sorted[bestIdx].Geometry)

		if allCovered(covered) {
			break
		}
	}

	inFilterCovered := 0
	for i, pt := range grid {
		if !pointInMultiPolygon(filter, pt) {
			continue
		}
		if covered[i] {
			inFilterCovered++
		}
	}
	fraction := float64(inFilterCovered) / float64(totalInFilter)

	return picked, fraction, nil
}

// scoreExtract reports how many currently-uncovered filter grid cells ex
// would newly cover, and the IoU between ex and the filter's full geometry.
func scoreExtract(grid []orb.Point, covered []bool, extractGeom orb.MultiPolygon, filter orb.MultiPolygon) (int, float64) {
	gain := 0
	inExtract, inFilter, inBoth := 0, 0, 0
	for i, pt := range grid {
		e := pointInMultiPolygon(extractGeom, pt)
		f := pointInMultiPolygon(filter, pt)
		if e {
			inExtract++
		}
		if f {
			inFilter++
		}
		if e && f {
			inBoth++
			if !covered[i] {
				gain++
			}
		}
	}
	union := inExtract + inFilter - inBoth
	if union == 0 {
		return 0, 0
	}
	return gain, float64(inBoth) / float64(union)
}

func markCovered(grid []orb.Point, covered []bool, extractGeom orb.MultiPolygon) {
	for i, pt := range grid {
		if !covered[i] && pointInMultiPolygon(extractGeom, pt) {
			covered[i] = true
		}
	}
}

func allCovered(covered []bool) bool {
	for _, c := range covered {
		if !c {
			return false
		}
	}
	return true
}

func sampleGrid(b orb.Bound, resolution int) []orb.Point {
	pts := make([]orb.Point, 0, resolution*resolution)
	width := b.Max[0] - b.Min[0]
	height := b.Max[1] - b.Min[1]
	if width <= 0 || height <= 0 {
		return pts
	}
	for i := 0; i < resolution; i++ {
		x := b.Min[0] + (float64(i)+0.5)/float64(resolution)*width
		for j := 0; j < resolution; j++ {
			y := b.Min[1] + (float64(j)+0.5)/float64(resolution)*height
			pts = append(pts, orb.Point{x, y})
		}
	}
	return pts
}

func pointInMultiPolygon(mp orb.MultiPolygon, pt orb.Point) bool {
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		if !pointInRingCover(poly[0], pt) {
			continue
		}
		inHole := false
		for _, hole := range poly[1:] {
			if pointInRingCover(hole, pt) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// pointInRingCover mirrors geo.PointInRing without importing internal/geo,
// so this package has no dependency on the pipeline's geometry repair code.
func pointInRingCover(ring orb.Ring, pt orb.Point) bool {
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
