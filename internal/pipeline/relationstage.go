package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/kraina-ai/quackosm-go/internal/geo"
	"github.com/kraina-ai/quackosm-go/internal/groupstore"
	"github.com/kraina-ai/quackosm-go/internal/osmsource"
	"github.com/kraina-ai/quackosm-go/internal/parquet"
	"github.com/kraina-ai/quackosm-go/internal/quackerr"
	"github.com/kraina-ai/quackosm-go/internal/tags"
)

// relationStageOutput is C5's product: the feature_relations shard store
// plus the run counters folded into Stats.
type relationStageOutput struct {
	Features *groupstore.Store
	scanned  int64
	kept     int64
}

// wayKVCache lazily loads way_linestrings_kv shards by group id, so a
// relation's member lookups reuse an already-read shard instead of
// re-reading it for every relation that touches the same group.
type wayKVCache struct {
	store        *groupstore.Store
	rowsPerGroup int
	loaded       map[int64]map[int64]parquet.KVRow
}

func newWayKVCache(store *groupstore.Store, rowsPerGroup int) *wayKVCache {
	return &wayKVCache{store: store, rowsPerGroup: rowsPerGroup, loaded: map[int64]map[int64]parquet.KVRow{}}
}

func (c *wayKVCache) lookup(ctx context.Context, wayID int64) (parquet.KVRow, bool, error) {
	gid := groupstore.GroupID(wayID, c.rowsPerGroup)
	rows, ok := c.loaded[gid]
	if !ok {
		var err error
		rows, err = c.store.ReadKVGroup(ctx, gid)
		if err != nil {
			return parquet.KVRow{}, false, fmt.Errorf("read way_linestrings_kv group %d: %w", gid, err)
		}
		if rows == nil {
			rows = map[int64]parquet.KVRow{}
		}
		c.loaded[gid] = rows
	}
	row, ok := rows[wayID]
	return row, ok, nil
}

// runRelationStage streams relations, skipping all but type=multipolygon
// and type=boundary, resolves way members
// against linestrings, assembles outer/inner rings via a deterministic
// stitching walk, classifies holes by containment, and emits the resulting
// (multi)polygon per §4.5.
// wayRowsPerGroup is the G the way stage used when it wrote
// way_linestrings_kv. The relation stage's own MaybeShrink call below may
// shrink the scheduler's current G further before this stage starts
// writing feature_relations; that shrink must not change how member-way
// lookups key into the already-written way shards, so the KV cache is
// built from wayRowsPerGroup rather than the scheduler's current value.
func runRelationStage(ctx context.Context, deps stageDeps, linestrings *groupstore.Store, wayRowsPerGroup int) (*relationStageOutput, error) {
	if err := deps.scheduler.MaybeShrink("relation"); err != nil {
		return nil, err
	}

	features, err := groupstore.NewStore(deps.workDir, "feature_relations", 50_000)
	if err != nil {
		return nil, fmt.Errorf("create feature_relations store: %w", err)
	}

	out := &relationStageOutput{Features: features}
	rowsPerGroup := deps.scheduler.RowsPerGroup()
	cache := newWayKVCache(linestrings, wayRowsPerGroup)

	writers := map[int64]*parquet.FeatureShardWriter{}
	closeWriters := func() error {
		var firstErr error
		for _, w := range writers {
			if err := w.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	err = deps.source.Scan(ctx, nil, nil,
		func(r osmsource.RelationRecord) error {
			out.scanned++

			if t := r.Tags["type"]; t != "multipolygon" && t != "boundary" {
				return nil
			}

			var outerLines, innerLines []orb.LineString
			unresolved := int64(0)
			for _, m := range r.Members {
				if m.Kind != "way" {
					continue
				}
				row, ok, err := cache.lookup(ctx, m.Ref)
				if err != nil {
					return err
				}
				if !ok {
					unresolved++
					continue
				}
				g, err := geo.Decode(row.GeomWKB)
				if err != nil {
					unresolved++
					continue
				}
				var ls orb.LineString
				switch v := g.(type) {
				case orb.LineString:
					ls = v
				case orb.Polygon:
					ls = orb.LineString(v[0])
				default:
					unresolved++
					continue
				}
				switch m.Role {
				case "", "outer":
					outerLines = append(outerLines, ls)
				case "inner":
					innerLines = append(innerLines, ls)
				default:
					// Other roles are ignored for geometry assembly but do not
					// themselves cause the relation to be dropped.
				}
			}
			if unresolved > 0 {
				deps.summary.UnresolvedRelationRefs += unresolved
			}
			if len(outerLines) == 0 {
				return nil
			}

			outerRings, unclosableOuter := stitchRings(outerLines)
			innerRings, unclosableInner := stitchRings(innerLines)
			deps.summary.UnclosableRings += int64(unclosableOuter + unclosableInner)
			if len(outerRings) == 0 {
				return nil
			}

			mp := assembleMultiPolygon(outerRings, innerRings, deps.summary)
			if len(mp) == 0 {
				deps.summary.PostRepairEmptyGeoms++
				return nil
			}

			var geom orb.Geometry = mp
			if len(mp) == 1 {
				geom = mp[0]
			}

			if deps.geomFilter != nil && !deps.geomFilter.Intersects(geom) {
				return nil
			}
			matched, _ := deps.predicate(r.Tags)
			if !matched {
				return nil
			}
			projected := tags.Project(r.Tags, deps.projection, deps.keepAllTags)
			if len(projected) == 0 && !deps.keepAllTags {
				return nil
			}

			wkb, err := geo.EncodeGeometry(geom)
			if err != nil {
				deps.summary.PostRepairEmptyGeoms++
				return nil
			}
			tagsJSON, _ := json.Marshal(projected)

			gid := groupstore.GroupID(r.ID, rowsPerGroup)
			w, ok := writers[gid]
			if !ok {
				w, err = features.FeatureWriter(gid)
				if err != nil {
					return fmt.Errorf("open feature_relations shard %d: %w", gid, err)
				}
				writers[gid] = w
			}
			if err := w.Write(parquet.FeatureRow{ID: r.ID, Kind: "relation", Tags: string(tagsJSON), GeomWKB: wkb}); err != nil {
				return fmt.Errorf("write feature_relations row: %w", err)
			}
			out.kept++
			return nil
		},
	)
	if err != nil {
		closeWriters()
		return nil, fmt.Errorf("relation stage scan: %w", err)
	}
	if err := closeWriters(); err != nil {
		return nil, fmt.Errorf("close feature_relations shards: %w", err)
	}

	return out, nil
}

// stitchRings walks a set of member linestrings, joining each to the
// previous one by shared endpoint until a ring closes. The walk is a
// deterministic Eulerian traversal over a graph whose nodes are the
// linestrings' endpoints and whose edges are the linestrings themselves:
// each edge is consumed exactly once, in the member order supplied, and a
// ring that never returns to its start point is discarded as unclosable.
func stitchRings(lines []orb.LineString) (rings []orb.Ring, unclosable int) {
	used := make([]bool, len(lines))
	for start := range lines {
		if used[start] {
			continue
		}
		used[start] = true
		ring := append([]orb.Point{}, lines[start]...)

		for {
			if len(ring) >= 2 && ring[0] == ring[len(ring)-1] {
				rings = append(rings, orb.Ring(ring))
				break
			}
			next, reverse := -1, false
			for i, ln := range lines {
				if used[i] || len(ln) < 2 {
					continue
				}
				if ln[0] == ring[len(ring)-1] {
					next, reverse = i, false
					break
				}
				if ln[len(ln)-1] == ring[len(ring)-1] {
					next, reverse = i, true
					break
				}
			}
			if next == -1 {
				unclosable++
				break
			}
			used[next] = true
			seg := lines[next]
			if reverse {
				seg = orb.LineString(geo.ReverseRing(orb.Ring(seg)))
			}
			ring = append(ring, seg[1:]...)
		}
	}
	return rings, unclosable
}

// assembleMultiPolygon pairs each outer ring with the inner rings strictly
// contained in it, per §4.5 step 4: an inner ring contained in no outer
// ring is dropped and counted. Outers are oriented CCW, holes CW.
func assembleMultiPolygon(outers, inners []orb.Ring, summary *quackerr.RunSummary) orb.MultiPolygon {
	mp := make(orb.MultiPolygon, 0, len(outers))
	claimed := make([]bool, len(inners))

	for _, outer := range outers {
		repairedOuter, err := geo.RepairRing(outer)
		if err != nil {
			summary.UnclosableRings++
			continue
		}
		poly := orb.Polygon{geo.OrientOuter(repairedOuter)}
		for i, inner := range inners {
			if claimed[i] {
				continue
			}
			if len(inner) == 0 {
				continue
			}
			if geo.PointInRing(poly[0], inner[0]) {
				repairedInner, err := geo.RepairRing(inner)
				if err != nil {
					continue
				}
				poly = append(poly, geo.OrientHole(repairedInner))
				claimed[i] = true
			}
		}
		mp = append(mp, poly)
	}

	for i, used := range claimed {
		if !used && len(inners[i]) > 0 {
			summary.DroppedUncontainedHoles++
		}
	}

	return mp
}
