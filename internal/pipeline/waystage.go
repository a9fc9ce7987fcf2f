package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/kraina-ai/quackosm-go/internal/geo"
	"github.com/kraina-ai/quackosm-go/internal/groupstore"
	"github.com/kraina-ai/quackosm-go/internal/nodestore"
	"github.com/kraina-ai/quackosm-go/internal/osmsource"
	"github.com/kraina-ai/quackosm-go/internal/parquet"
	"github.com/kraina-ai/quackosm-go/internal/tags"
)

// wayStageOutput is C4's product: the feature_ways shard store and the
// way_linestrings_kv lookup store C5 joins against, plus the run counters
// folded into Stats.
type wayStageOutput struct {
	Features     *groupstore.Store
	Linestrings  *groupstore.Store
	rowsPerGroup int
	scanned      int64
	kept         int64
	linestrings  int64
}

// runWayStage streams way records, resolves each member node ref against
// coords, classifies the resulting ring as a linestring or (if closed and
// wayPolicy says so) a polygon, applies the geometry filter and tag
// predicate, and writes both feature_ways and way_linestrings_kv per §4.4.
func runWayStage(ctx context.Context, deps stageDeps, coords *nodestore.Store) (*wayStageOutput, error) {
	if err := deps.scheduler.MaybeShrink("way"); err != nil {
		return nil, err
	}

	features, err := groupstore.NewStore(deps.workDir, "feature_ways", 50_000)
	if err != nil {
		return nil, fmt.Errorf("create feature_ways store: %w", err)
	}
	linestrings, err := groupstore.NewStore(deps.workDir, "way_linestrings_kv", 50_000)
	if err != nil {
		return nil, fmt.Errorf("create way_linestrings_kv store: %w", err)
	}

	rowsPerGroup := deps.scheduler.RowsPerGroup()
	out := &wayStageOutput{Features: features, Linestrings: linestrings, rowsPerGroup: rowsPerGroup}

	featureWriters := map[int64]*parquet.FeatureShardWriter{}
	kvWriters := map[int64]*parquet.KVShardWriter{}
	closeAll := func() error {
		var firstErr error
		for _, w := range featureWriters {
			if err := w.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		for _, w := range kvWriters {
			if err := w.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	err = deps.source.Scan(ctx,
		nil, // nodes already consumed in the node stage
		func(w osmsource.WayRecord) error {
			out.scanned++

			if len(w.Refs) < 2 {
				deps.summary.DroppedShortWays++
				return nil
			}

			ring := make([]orb.Point, 0, len(w.Refs))
			resolved := 0
			for _, ref := range w.Refs {
				lon, lat, ok := coords.Get(ref)
				if !ok {
					continue
				}
				ring = append(ring, orb.Point{lon, lat})
				resolved++
			}
			if resolved < len(w.Refs) {
				deps.summary.UnresolvedWayRefs += int64(len(w.Refs) - resolved)
				return nil
			}
			if len(ring) < 2 {
				deps.summary.DroppedShortWays++
				return nil
			}

			closed := len(ring) >= 4 && ring[0] == ring[len(ring)-1]
			isPolygon := closed && deps.wayPolicy.IsPolygon(w.Tags)

			var geom orb.Geometry
			if isPolygon {
				poly, err := geo.RepairPolygon(orb.Polygon{orb.Ring(ring)})
				if err != nil {
					deps.summary.PostRepairEmptyGeoms++
					return nil
				}
				geom = poly
			} else {
				ls, err := geo.RepairLineString(orb.LineString(ring))
				if err != nil {
					deps.summary.PostRepairEmptyGeoms++
					return nil
				}
				geom = ls
			}

			wkb, err := geo.EncodeGeometry(geom)
			if err != nil {
				deps.summary.PostRepairEmptyGeoms++
				return nil
			}

			gid := groupstore.GroupID(w.ID, rowsPerGroup)

			kvw, ok := kvWriters[gid]
			if !ok {
				kvw, err = linestrings.KVWriter(gid)
				if err != nil {
					return fmt.Errorf("open way_linestrings_kv shard %d: %w", gid, err)
				}
				kvWriters[gid] = kvw
			}
			tagsJSON, _ := json.Marshal(w.Tags)
			if err := kvw.Write(parquet.KVRow{ID: w.ID, GeomWKB: wkb, Tags: string(tagsJSON)}); err != nil {
				return fmt.Errorf("write way_linestrings_kv row: %w", err)
			}
			out.linestrings++

			if deps.geomFilter != nil && !deps.geomFilter.Intersects(geom) {
				return nil
			}
			matched, _ := deps.predicate(w.Tags)
			if !matched {
				return nil
			}
			projected := tags.Project(w.Tags, deps.projection, deps.keepAllTags)
			if len(projected) == 0 && !deps.keepAllTags {
				return nil
			}
			projJSON, _ := json.Marshal(projected)

			fw, ok := featureWriters[gid]
			if !ok {
				fw, err = features.FeatureWriter(gid)
				if err != nil {
					return fmt.Errorf("open feature_ways shard %d: %w", gid, err)
				}
				featureWriters[gid] = fw
			}
			kind := "way"
			if isPolygon {
				kind = "way_polygon"
			}
			if err := fw.Write(parquet.FeatureRow{ID: w.ID, Kind: kind, Tags: string(projJSON), GeomWKB: wkb}); err != nil {
				return fmt.Errorf("write feature_ways row: %w", err)
			}
			out.kept++
			return nil
		},
		nil, // relations are handled by the relation stage
	)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("way stage scan: %w", err)
	}
	if err := closeAll(); err != nil {
		return nil, fmt.Errorf("close way stage shards: %w", err)
	}

	return out, nil
}
