package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"

	"github.com/kraina-ai/quackosm-go/internal/config"
	"github.com/kraina-ai/quackosm-go/internal/logger"
	"github.com/kraina-ai/quackosm-go/internal/metrics"
	"github.com/kraina-ai/quackosm-go/internal/pipeline"
	"github.com/kraina-ai/quackosm-go/internal/progress"
)

var (
	explodeTags bool
	sortResult  bool
)

var convertCmd = &cobra.Command{
	Use:   "convert [input.osm.pbf]",
	Short: "Convert a PBF extract (or a geometry-selected set of extracts) to GeoParquet",
	Long: `Convert reads OpenStreetMap nodes, ways, and relations from a PBF file,
filters them by tags and/or a geometry, assembles relation geometries, and
writes the result as a single GeoParquet file.

With no input file, --geometry-file or --geometry-wkt must be given together
with a caller-supplied extract catalog; this CLI does not ship one, so the
combination only works when embedding the pipeline package directly.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVar(&cfg.GeometryFile, "geometry-file", "", "GeoJSON or WKT file used as a geometry filter")
	convertCmd.Flags().StringVar(&cfg.GeometryWKT, "geometry-wkt", "", "inline WKT or GeoJSON string used as a geometry filter")
	convertCmd.Flags().StringVar(&cfg.TagFilter, "filter", "", "inline JSON or path to a tag filter document")
	convertCmd.Flags().StringVar(&cfg.CustomFilter, "custom-filter", "", "inline Lua source or path, supplementing --filter")

	convertCmd.Flags().StringVarP(&cfg.OutputPath, "output", "o", "", "output GeoParquet path (defaults to a name derived from the input and filters)")
	convertCmd.Flags().StringVar(&cfg.WorkingDir, "working-dir", cfg.WorkingDir, "directory for intermediate shards and the default output location")
	convertCmd.Flags().BoolVar(&cfg.CompactTags, "compact-tags", false, "store tags as a single JSON column instead of a flattened map")
	convertCmd.Flags().BoolVar(&explodeTags, "explode-tags", false, "explode filtered tag keys into individual columns (default: on when --filter or --custom-filter is set)")
	convertCmd.Flags().BoolVar(&cfg.KeepAllTags, "keep-all-tags", false, "keep every OSM tag instead of only the filtered projection")
	convertCmd.Flags().BoolVar(&cfg.SaveAsWKT, "wkt", false, "write geometry as WKT text instead of WKB")

	convertCmd.Flags().Var(&compressionFlag{&cfg.Compression}, "compression", "output Parquet compression: snappy, zstd, gzip, or none")
	convertCmd.Flags().IntVar(&cfg.CompressionLevel, "compression-level", cfg.CompressionLevel, "compression level, codec-dependent")
	convertCmd.Flags().IntVar(&cfg.RowGroupSize, "row-group-size", cfg.RowGroupSize, "target rows per Parquet row group")
	convertCmd.Flags().BoolVar(&sortResult, "sort-result", false, "Hilbert-sort the output by geometry (default: on unless --wkt)")

	convertCmd.Flags().Float64Var(&cfg.IoUThreshold, "iou-threshold", cfg.IoUThreshold, "minimum intersection-over-union for an extract to be worth downloading")
	convertCmd.Flags().BoolVar(&cfg.AllowUncoveredGeometry, "allow-uncovered-geometry", false, "proceed even if discovered extracts do not fully cover the geometry filter")

	convertCmd.Flags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "worker count; validated but not read, PBF decoding uses one worker per CPU")

	convertCmd.Flags().BoolVar(&cfg.DebugRetainIntermediates, "debug-retain-intermediates", false, "keep intermediate shard files after the run")
	convertCmd.Flags().BoolVar(&cfg.IgnoreCache, "ignore-cache", false, "reconvert even if a matching output file already exists")
}

// compressionFlag adapts config.Compression to pflag.Value.
type compressionFlag struct {
	c *config.Compression
}

func (f *compressionFlag) String() string {
	if f.c == nil {
		return ""
	}
	return string(*f.c)
}

func (f *compressionFlag) Set(s string) error {
	switch config.Compression(s) {
	case config.CompressionSnappy, config.CompressionZstd, config.CompressionGzip, config.CompressionNone:
		*f.c = config.Compression(s)
		return nil
	default:
		return &unknownCompressionError{s}
	}
}

func (f *compressionFlag) Type() string { return "compression" }

type unknownCompressionError struct{ value string }

func (e *unknownCompressionError) Error() string {
	return "unknown compression codec " + e.value + ", want snappy, zstd, gzip, or none"
}

func runConvert(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		cfg.InputFile = args[0]
	}
	if cmd.Flags().Changed("explode-tags") {
		cfg.ExplodeTags = &explodeTags
	}
	if cmd.Flags().Changed("sort-result") {
		cfg.SortResult = &sortResult
	}

	log := logger.Get()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Verbosity != config.VerbositySilent {
		ctx = progress.WithReporter(ctx, &progress.Logging{Log: log})
	}

	collector := metrics.NewCollector(cfg.MetricsInterval, log)
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	go collector.Start(metricsCtx)

	start := time.Now()
	result, err := pipeline.Convert(ctx, cfg)
	if err != nil {
		exitWithError("conversion failed", err)
		return err
	}

	log.Info("done",
		zap.String("output", result.OutputPath),
		zap.Int64("rows", result.Stats.FinalRows),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
