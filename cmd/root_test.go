package cmd

import (
	"fmt"
	"testing"

	"github.com/kraina-ai/quackosm-go/internal/config"
	"github.com/kraina-ai/quackosm-go/internal/quackerr"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", &quackerr.InvalidInputError{Reason: "bad"}, 1},
		{"uncovered geometry", &quackerr.UncoveredGeometryError{CoveredFraction: 0.5}, 2},
		{"wrapped uncovered geometry", fmt.Errorf("wrap: %w", &quackerr.UncoveredGeometryError{}), 2},
		{"runtime failure", &quackerr.RuntimeFailureError{Stage: "node"}, 3},
		{"cancelled", &quackerr.CancelledError{Stage: "way"}, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := exitCodeFor(c.err); got != c.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", c.err, got, c.want)
			}
		})
	}
}

func TestVerbosityFlagSetRejectsUnknown(t *testing.T) {
	var v config.Verbosity
	f := &verbosityFlag{&v}

	if err := f.Set("normal"); err != nil {
		t.Fatalf("Set(normal) error: %v", err)
	}
	if v != config.VerbosityNormal {
		t.Errorf("v = %q, want normal", v)
	}

	if err := f.Set("loud"); err == nil {
		t.Error("Set(loud) succeeded, want error")
	}
}

func TestCompressionFlagSetRejectsUnknown(t *testing.T) {
	var c config.Compression
	f := &compressionFlag{&c}

	if err := f.Set("zstd"); err != nil {
		t.Fatalf("Set(zstd) error: %v", err)
	}
	if c != config.CompressionZstd {
		t.Errorf("c = %q, want zstd", c)
	}

	if err := f.Set("brotli"); err == nil {
		t.Error("Set(brotli) succeeded, want error")
	}
}
