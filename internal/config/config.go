// Package config holds the global configuration for a conversion run,
// populated from CLI flags. Mirrors the shape of the teacher's own
// config package: one flat struct, a DefaultConfig constructor, and a
// Validate method returning a single aggregated error.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kraina-ai/quackosm-go/internal/extracts"
)

// Compression identifies the output Parquet compression codec.
type Compression string

const (
	CompressionSnappy Compression = "snappy"
	CompressionZstd   Compression = "zstd"
	CompressionGzip   Compression = "gzip"
	CompressionNone   Compression = "none"
)

// Verbosity controls how progress is rendered.
type Verbosity string

const (
	VerbositySilent    Verbosity = "silent"
	VerbosityTransient Verbosity = "transient"
	VerbosityNormal    Verbosity = "normal"
)

// Config holds the global configuration for a conversion run.
type Config struct {
	// Input settings
	InputFile    string // local PBF path; empty if GeometryFile/GeometryWKT drives extract discovery
	GeometryFile string // GeoJSON or WKT file used as the geometry filter
	GeometryWKT  string // inline WKT/GeoJSON string used as the geometry filter
	TagFilter    string // inline JSON or path to a tag filter document
	CustomFilter string // inline Lua source or path, supplementing the tag filter

	// Output settings
	OutputPath   string
	WorkingDir   string
	CompactTags  bool // forces compact output when ExplodeTags is unset; see ResolveExplodeTags
	ExplodeTags  *bool
	KeepAllTags  bool
	SaveAsWKT    bool

	// Parquet output tuning
	Compression      Compression
	CompressionLevel int
	RowGroupSize     int
	SortResult       *bool

	// Group scheduler
	RowsPerGroupOverride int // not read by the pipeline: G always comes from groupstore.NewScheduler

	// Extract catalog
	IoUThreshold           float64
	AllowUncoveredGeometry bool
	ExtractCatalog         extracts.Catalog // optional; required when InputFile is empty

	// Processing settings
	Workers int // validated to be at least 1 but not read: PBF decoding uses runtime.NumCPU() workers

	// Debug
	DebugRetainIntermediates bool
	IgnoreCache              bool

	// Logging and metrics
	Verbosity       Verbosity
	LogFile         string
	MetricsInterval time.Duration
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		WorkingDir:       "./quackosm_work",
		Compression:      CompressionZstd,
		CompressionLevel: 3,
		RowGroupSize:     100_000,
		IoUThreshold:     0.01,
		Workers:          runtime.NumCPU(),
		Verbosity:        VerbosityNormal,
		MetricsInterval:  30 * time.Second,
	}
}

// ResolveExplodeTags returns whether tags should be exploded into columns:
// the explicit flag if set, otherwise false if CompactTags is set, otherwise
// true iff a tag filter or custom filter is configured.
func (c *Config) ResolveExplodeTags() bool {
	if c.ExplodeTags != nil {
		return *c.ExplodeTags
	}
	if c.CompactTags {
		return false
	}
	return c.TagFilter != "" || c.CustomFilter != ""
}

// ResolveSortResult returns whether Hilbert sort should run: the explicit
// flag if set, otherwise true unless the output is WKT text.
func (c *Config) ResolveSortResult() bool {
	if c.SortResult != nil {
		return *c.SortResult
	}
	return !c.SaveAsWKT
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.InputFile == "" && c.GeometryFile == "" && c.GeometryWKT == "" {
		return fmt.Errorf("one of input file or a geometry filter is required")
	}
	if c.InputFile == "" && c.ExtractCatalog == nil {
		return fmt.Errorf("extract catalog is required when no input file is given")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.RowGroupSize < 1 {
		return fmt.Errorf("row group size must be at least 1")
	}
	switch c.Compression {
	case CompressionSnappy, CompressionZstd, CompressionGzip, CompressionNone:
	default:
		return fmt.Errorf("unknown compression codec %q", c.Compression)
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou threshold must be within [0,1]")
	}
	switch c.Verbosity {
	case VerbositySilent, VerbosityTransient, VerbosityNormal:
	default:
		return fmt.Errorf("unknown verbosity %q", c.Verbosity)
	}
	return nil
}
