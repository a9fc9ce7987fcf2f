package cmd

import (
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/spf13/cobra"

	"github.com/kraina-ai/quackosm-go/internal/config"
	"github.com/kraina-ai/quackosm-go/internal/logger"
	"github.com/kraina-ai/quackosm-go/internal/quackerr"
)

var cfg = config.DefaultConfig()

var rootCmd = &cobra.Command{
	Use:   "quackosm-go",
	Short: "Convert OpenStreetMap PBF extracts to GeoParquet",
	Long: `quackosm-go converts OpenStreetMap PBF data into GeoParquet, filtering by
tags and/or a geometry, without needing a running database.

Features:
  - Tag-based and geometry-based filtering
  - Multipolygon relation assembly with hole repair
  - Optional Lua custom filter hook
  - Hilbert-sorted GeoParquet output with row-group tuning`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfg.LogFile != "" {
			logger.InitWithFile(cfg.Verbosity, cfg.LogFile)
		} else {
			logger.Init(cfg.Verbosity)
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfg.LogFile, "log-file", "", "path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().Var(&verbosityFlag{&cfg.Verbosity}, "verbosity", "output verbosity: silent, transient, or normal")
	rootCmd.PersistentFlags().DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "interval for system metrics logging (e.g. 10s, 1m)")
}

// verbosityFlag adapts config.Verbosity to pflag.Value so --verbosity
// rejects unknown values at parse time instead of at Validate.
type verbosityFlag struct {
	v *config.Verbosity
}

func (f *verbosityFlag) String() string {
	if f.v == nil {
		return ""
	}
	return string(*f.v)
}

func (f *verbosityFlag) Set(s string) error {
	switch config.Verbosity(s) {
	case config.VerbositySilent, config.VerbosityTransient, config.VerbosityNormal:
		*f.v = config.Verbosity(s)
		return nil
	default:
		return &unknownVerbosityError{s}
	}
}

func (f *verbosityFlag) Type() string { return "verbosity" }

type unknownVerbosityError struct{ value string }

func (e *unknownVerbosityError) Error() string {
	return "unknown verbosity " + e.value + ", want silent, transient, or normal"
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	os.Exit(exitCodeFor(err))
}

// exitCodeFor maps a pipeline error to the process exit code: 1 for a
// validation error, 2 for no matching extract / uncovered geometry, 3 for
// any other runtime failure.
func exitCodeFor(err error) int {
	var uncovered *quackerr.UncoveredGeometryError
	if errors.As(err, &uncovered) {
		return 2
	}
	var runtimeErr *quackerr.RuntimeFailureError
	if errors.As(err, &runtimeErr) {
		return 3
	}
	var cancelled *quackerr.CancelledError
	if errors.As(err, &cancelled) {
		return 3
	}
	return 1
}
