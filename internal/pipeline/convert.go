package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kraina-ai/quackosm-go/internal/config"
	"github.com/kraina-ai/quackosm-go/internal/extracts"
	"github.com/kraina-ai/quackosm-go/internal/geofilter"
	"github.com/kraina-ai/quackosm-go/internal/groupstore"
	"github.com/kraina-ai/quackosm-go/internal/logger"
	"github.com/kraina-ai/quackosm-go/internal/osmsource"
	"github.com/kraina-ai/quackosm-go/internal/progress"
	"github.com/kraina-ai/quackosm-go/internal/quackerr"
	"github.com/kraina-ai/quackosm-go/internal/tags"
	"github.com/kraina-ai/quackosm-go/internal/wayclass"
)

// stageDeps bundles the foundations every stage needs, assembled once by
// Convert and passed down rather than held as package-level state (per
// §5's "no shared mutable in-memory state between tasks" rule, generalized
// to "no shared mutable package state" for the read-only pieces too).
type stageDeps struct {
	source        osmsource.Source
	workDir       string
	nodeStorePath string
	scheduler     *groupstore.Scheduler
	geomFilter    *geofilter.Filter
	predicate     tags.Predicate
	projection    []string
	keepAllTags   bool
	wayPolicy     *wayclass.Config
	summary       *quackerr.RunSummary
}

// Convert runs the whole pipeline: C1/C2 compile the predicates, C3-C5
// stream the three entity stages through the foundations they share, and
// C8 merges their shards into the final GeoParquet file. Synchronous from
// the caller's view, per §5; returns only once the run finishes or fails.
func Convert(ctx context.Context, cfg *config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &quackerr.InvalidInputError{Reason: "configuration", Cause: err}
	}

	log := logger.Get()
	start := time.Now()
	tracker := NewProgressTracker(0, "conversion")

	lock, err := acquireWorkDirLock(cfg.WorkingDir)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	var geomFilter *geofilter.Filter
	if cfg.GeometryFile != "" || cfg.GeometryWKT != "" {
		mp, err := loadGeometryFilter(cfg)
		if err != nil {
			return nil, err
		}
		geomFilter, err = geofilter.New(mp)
		if err != nil {
			return nil, err
		}
	}

	var cacheFilter tags.Filter
	if cfg.TagFilter != "" {
		raw, err := readTagFilterInput(cfg.TagFilter)
		if err != nil {
			return nil, &quackerr.InvalidInputError{Reason: "tag filter", Cause: err}
		}
		if cacheFilter, err = tags.ParseFilter(raw); err != nil {
			return nil, &quackerr.InvalidInputError{Reason: "tag filter", Cause: err}
		}
	}
	outputName := resultFileName(cfg, cacheFilter, fingerprintHex(geomFilter))
	finalPath := cfg.OutputPath
	if finalPath == "" {
		finalPath = filepath.Join(cfg.WorkingDir, outputName)
	}
	if !cfg.IgnoreCache {
		if _, err := os.Stat(finalPath); err == nil {
			log.Info("cache hit, skipping conversion", zap.String("path", finalPath))
			return &Result{OutputPath: finalPath}, nil
		}
	}

	inputPaths, err := resolveInputPaths(ctx, cfg, geomFilter)
	if err != nil {
		return nil, err
	}

	probeSource, err := osmsource.Open(inputPaths[0])
	if err != nil {
		return nil, &quackerr.InvalidInputError{Reason: "cannot open input PBF", Cause: err}
	}

	var compiled *tags.Compiled
	if err := progress.Step(ctx, "compile tag predicate", func() error {
		var err error
		compiled, err = compileTagPredicate(ctx, cfg, probeSource)
		return err
	}); err != nil {
		probeSource.Close()
		return nil, err
	}
	probeSource.Close()

	wayPolicy := wayclass.Default()

	summary := &quackerr.RunSummary{}
	stats := Stats{}

	var nodeStores, wayFeatureStores, wayLineStores, relStores []*groupstore.Store
	nodeStorePaths := make([]string, 0, len(inputPaths))

	// cleanupStores removes every shard written so far. Called on any
	// error path, including cancellation, per §5: a cancelled run leaves
	// no partial shards behind.
	cleanupStores := func() {
		for _, s := range nodeStores {
			s.RemoveAll()
		}
		for _, s := range wayFeatureStores {
			s.RemoveAll()
		}
		for _, s := range wayLineStores {
			s.RemoveAll()
		}
		for _, s := range relStores {
			s.RemoveAll()
		}
		for _, p := range nodeStorePaths {
			os.Remove(p)
		}
	}

	for idx, path := range inputPaths {
		if err := ctx.Err(); err != nil {
			cleanupStores()
			return nil, &quackerr.CancelledError{}
		}

		extractDir := cfg.WorkingDir
		if len(inputPaths) > 1 {
			extractDir = filepath.Join(cfg.WorkingDir, fmt.Sprintf("extract-%d", idx))
			if err := os.MkdirAll(extractDir, 0755); err != nil {
				return nil, &quackerr.RuntimeFailureError{Stage: "setup", Cause: err}
			}
		}

		source, err := osmsource.Open(path)
		if err != nil {
			return nil, &quackerr.InvalidInputError{Reason: "cannot open input PBF", Cause: err}
		}
		stats.BytesRead += source.Size()

		deps := stageDeps{
			source:        source,
			workDir:       extractDir,
			nodeStorePath: filepath.Join(extractDir, "all_nodes_kv.bin"),
			scheduler:     groupstore.NewScheduler(),
			geomFilter:    geomFilter,
			predicate:     compiled.Predicate,
			projection:    compiled.ProjectionSet,
			keepAllTags:   cfg.KeepAllTags,
			wayPolicy:     wayPolicy,
			summary:       summary,
		}
		nodeStorePaths = append(nodeStorePaths, deps.nodeStorePath)

		var nodeOut *nodeStageOutput
		if err := progress.Step(ctx, "node stage", func() error {
			var err error
			nodeOut, err = runNodeStage(ctx, deps)
			return err
		}); err != nil {
			source.Close()
			cleanupStores()
			return nil, classifyStageErr(ctx, "node", err)
		}
		stats.NodesScanned += nodeOut.count
		stats.NodesKept += nodeOut.kept
		nodeStores = append(nodeStores, nodeOut.Features)

		var wayOut *wayStageOutput
		if err := progress.Step(ctx, "way stage", func() error {
			var err error
			wayOut, err = runWayStage(ctx, deps, nodeOut.Coords)
			return err
		}); err != nil {
			nodeOut.Coords.Close()
			source.Close()
			cleanupStores()
			return nil, classifyStageErr(ctx, "way", err)
		}
		stats.WaysScanned += wayOut.scanned
		stats.WaysKept += wayOut.kept
		stats.WayLinestrings += wayOut.linestrings
		wayFeatureStores = append(wayFeatureStores, wayOut.Features)
		wayLineStores = append(wayLineStores, wayOut.Linestrings)

		var relOut *relationStageOutput
		if err := progress.Step(ctx, "relation stage", func() error {
			var err error
			relOut, err = runRelationStage(ctx, deps, wayOut.Linestrings, wayOut.rowsPerGroup)
			return err
		}); err != nil {
			nodeOut.Coords.Close()
			source.Close()
			cleanupStores()
			return nil, classifyStageErr(ctx, "relation", err)
		}
		stats.RelationsScanned += relOut.scanned
		stats.RelationsKept += relOut.kept
		relStores = append(relStores, relOut.Features)

		nodeOut.Coords.Close()
		source.Close()
	}

	allStores := make([]*groupstore.Store, 0, len(nodeStores)+len(wayFeatureStores)+len(relStores))
	allStores = append(allStores, nodeStores...)
	allStores = append(allStores, wayFeatureStores...)
	allStores = append(allStores, relStores...)

	var finalRows int64
	if err := progress.Step(ctx, "output merge", func() error {
		var err error
		finalRows, err = mergeOutput(ctx, cfg, finalPath, allStores, compiled.ProjectionSet)
		return err
	}); err != nil {
		cleanupStores()
		return nil, classifyStageErr(ctx, "merge", err)
	}
	stats.FinalRows = finalRows

	if !cfg.DebugRetainIntermediates {
		for _, s := range nodeStores {
			s.RemoveAll()
		}
		for _, s := range wayFeatureStores {
			s.RemoveAll()
		}
		for _, s := range wayLineStores {
			s.RemoveAll()
		}
		for _, s := range relStores {
			s.RemoveAll()
		}
		for _, p := range nodeStorePaths {
			os.Remove(p)
		}
	}

	if summary.HasSoftErrors() {
		log.Warn("conversion finished with soft errors",
			zap.Int64("unresolved_way_refs", summary.UnresolvedWayRefs),
			zap.Int64("dropped_short_ways", summary.DroppedShortWays),
			zap.Int64("unresolved_relation_refs", summary.UnresolvedRelationRefs),
			zap.Int64("unclosable_rings", summary.UnclosableRings),
			zap.Int64("dropped_uncontained_holes", summary.DroppedUncontainedHoles),
			zap.Int64("post_repair_empty_geoms", summary.PostRepairEmptyGeoms))
	}

	elapsed := time.Since(start)
	prog := tracker.Calculate(stats.FinalRows, stats.BytesRead)

	log.Info("conversion complete",
		zap.String("output", finalPath),
		zap.Int64("rows", stats.FinalRows),
		zap.String("bytes_read", FormatBytes(stats.BytesRead)),
		zap.String("throughput", FormatThroughput(prog.Throughput)),
		zap.Duration("elapsed", elapsed))

	return &Result{OutputPath: finalPath, Stats: stats}, nil
}

// classifyStageErr distinguishes cooperative cancellation from a genuine
// stage failure: if ctx was cancelled, the error is reported as Cancelled
// regardless of what the stage itself returned, since a cancelled context
// is very likely the actual cause of whatever error the stage surfaced.
func classifyStageErr(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil {
		return &quackerr.CancelledError{Stage: stage}
	}
	return &quackerr.RuntimeFailureError{Stage: stage, Cause: err}
}

func fingerprintHex(f *geofilter.Filter) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%x", f.Fingerprint)
}

// resolveInputPaths returns the local PBF path(s) to process: the
// configured InputFile verbatim, or, when absent, the smallest set of
// catalog extracts covering geomFilter per §6's IoU-based discovery,
// downloaded concurrently via errgroup (the teacher's Coordinator.Run fan-
// out pattern, here applied to independent network fetches rather than
// shard groups).
func resolveInputPaths(ctx context.Context, cfg *config.Config, geomFilter *geofilter.Filter) ([]string, error) {
	if cfg.InputFile != "" {
		return []string{cfg.InputFile}, nil
	}
	if geomFilter == nil || cfg.ExtractCatalog == nil {
		return nil, &quackerr.InvalidInputError{Reason: "no input file and no geometry filter plus extract catalog to discover one"}
	}

	catalog, err := cfg.ExtractCatalog.ListExtracts(ctx)
	if err != nil {
		return nil, &quackerr.RuntimeFailureError{Stage: "extract catalog listing", Cause: err}
	}

	picked, fraction, err := extracts.SelectCovering(geomFilter.Geometry, catalog, cfg.IoUThreshold)
	if err != nil {
		return nil, err
	}
	if len(picked) == 0 {
		return nil, &quackerr.UncoveredGeometryError{CoveredFraction: 0}
	}
	if fraction < 1-cfg.IoUThreshold && !cfg.AllowUncoveredGeometry {
		return nil, &quackerr.UncoveredGeometryError{CoveredFraction: fraction}
	}

	paths := make([]string, len(picked))
	g, gctx := errgroup.WithContext(ctx)
	for i, ex := range picked {
		i, ex := i, ex
		g.Go(func() error {
			p, err := cfg.ExtractCatalog.Download(gctx, ex.ID)
			if err != nil {
				return fmt.Errorf("download extract %s: %w", ex.ID, err)
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &quackerr.RuntimeFailureError{Stage: "extract download", Cause: err}
	}
	return paths, nil
}
