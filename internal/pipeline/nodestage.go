package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/paulmach/orb"

	"github.com/kraina-ai/quackosm-go/internal/geo"
	"github.com/kraina-ai/quackosm-go/internal/groupstore"
	"github.com/kraina-ai/quackosm-go/internal/nodestore"
	"github.com/kraina-ai/quackosm-go/internal/osmsource"
	"github.com/kraina-ai/quackosm-go/internal/parquet"
	"github.com/kraina-ai/quackosm-go/internal/tags"
)

// nodeStageOutput bundles C3's two projections: kept-feature node rows in
// per-group parquet shards, and the full node coordinate table used by C4.
type nodeStageOutput struct {
	Features   *groupstore.Store
	Coords     *nodestore.Store
	rowsPerGrp int
	count      int64
	kept       int64
}

// runNodeStage implements C3: for every node in the source, record its
// coordinate in the on-disk lookup (regardless of whether it passes any
// filter, since support nodes are needed for way/relation assembly), and,
// if it passes both the geometry and tag predicates, write a feature row.
func runNodeStage(ctx context.Context, deps stageDeps) (*nodeStageOutput, error) {
	if err := deps.scheduler.MaybeShrink("node"); err != nil {
		return nil, err
	}

	coords, err := nodestore.New(deps.nodeStorePath)
	if err != nil {
		return nil, fmt.Errorf("create node coordinate store: %w", err)
	}

	store, err := groupstore.NewStore(deps.workDir, "feature_nodes", 50_000)
	if err != nil {
		coords.Close()
		return nil, fmt.Errorf("create feature_nodes store: %w", err)
	}

	out := &nodeStageOutput{Features: store, Coords: coords, rowsPerGrp: deps.scheduler.RowsPerGroup()}

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

	err = deps.source.Scan(ctx,
		func(n osmsource.NodeRecord) error {
			atomic.AddInt64(&out.count, 1)
			coords.Put(n.ID, n.Lon, n.Lat)

			if deps.geomFilter != nil && !deps.geomFilter.ContainsPoint(orb.Point{n.Lon, n.Lat}) {
				return nil
			}
			matched, _ := deps.predicate(n.Tags)
			if !matched {
				return nil
			}
			projected := tags.Project(n.Tags, deps.projection, deps.keepAllTags)
			if len(projected) == 0 && !deps.keepAllTags {
				return nil
			}

			wkb, err := geo.NewEncoder().EncodePoint(n.Lon, n.Lat)
			if err != nil {
				return nil
			}
			tagsJSON, _ := json.Marshal(projected)

			gid := groupstore.GroupID(n.ID, out.rowsPerGrp)
			w, ok := writers[gid]
			if !ok {
				w, err = store.FeatureWriter(gid)
				if err != nil {
					return fmt.Errorf("open feature_nodes shard %d: %w", gid, err)
				}
				writers[gid] = w
			}
			if err := w.Write(parquet.FeatureRow{ID: n.ID, Kind: "node", Tags: string(tagsJSON), GeomWKB: wkb}); err != nil {
				return fmt.Errorf("write feature_nodes row: %w", err)
			}
			atomic.AddInt64(&out.kept, 1)
			return nil
		},
		nil, // ways and relations are handled by later stages
		nil,
	)
	if err != nil {
		closeWriters()
		coords.Close()
		return nil, fmt.Errorf("node stage scan: %w", err)
	}

	if err := closeWriters(); err != nil {
		coords.Close()
		return nil, fmt.Errorf("close feature_nodes shards: %w", err)
	}
	if err := coords.Sync(); err != nil {
		coords.Close()
		return nil, fmt.Errorf("sync node coordinate store: %w", err)
	}

	return out, nil
}
