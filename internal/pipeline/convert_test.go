package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kraina-ai/quackosm-go/internal/config"
	"github.com/kraina-ai/quackosm-go/internal/extracts"
	"github.com/kraina-ai/quackosm-go/internal/quackerr"
)

func TestClassifyStageErrReportsCancelledOverCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := classifyStageErr(ctx, "node", fmt.Errorf("scan: %w", context.Canceled))

	var cancelled *quackerr.CancelledError
	if !errors.As(err, &cancelled) {
		t.Fatalf("expected CancelledError, got %v", err)
	}
	if cancelled.Stage != "node" {
		t.Errorf("Stage = %q, want node", cancelled.Stage)
	}
}

func TestClassifyStageErrReportsRuntimeFailureOverLiveContext(t *testing.T) {
	err := classifyStageErr(context.Background(), "way", fmt.Errorf("boom"))

	var runtimeErr *quackerr.RuntimeFailureError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("expected RuntimeFailureError, got %v", err)
	}
	if runtimeErr.Stage != "way" {
		t.Errorf("Stage = %q, want way", runtimeErr.Stage)
	}
}

type fakeCatalog struct {
	list        []extracts.Extract
	downloads   map[string]string
	listErr     error
	downloadErr error
}

func (c *fakeCatalog) ListExtracts(ctx context.Context) ([]extracts.Extract, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.list, nil
}

func (c *fakeCatalog) Download(ctx context.Context, id string) (string, error) {
	if c.downloadErr != nil {
		return "", c.downloadErr
	}
	if p, ok := c.downloads[id]; ok {
		return p, nil
	}
	return "", fmt.Errorf("no such extract %q", id)
}

func TestResolveInputPathsReturnsInputFileVerbatim(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InputFile = "region.osm.pbf"

	paths, err := resolveInputPaths(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("resolveInputPaths() error: %v", err)
	}
	if len(paths) != 1 || paths[0] != "region.osm.pbf" {
		t.Fatalf("paths = %v, want [region.osm.pbf]", paths)
	}
}

func TestResolveInputPathsRejectsMissingCatalog(t *testing.T) {
	cfg := config.DefaultConfig()
	f := mustGeoFilter(t, "POLYGON((0 0, 10 0, 10 10, 0 10, 0 0))")

	if _, err := resolveInputPaths(context.Background(), cfg, f); err == nil {
		t.Error("resolveInputPaths() succeeded without InputFile or catalog, want error")
	}
}

func TestResolveInputPathsDownloadsCoveringExtracts(t *testing.T) {
	cfg := config.DefaultConfig()
	f := mustGeoFilter(t, "POLYGON((0 0, 10 0, 10 10, 0 10, 0 0))")
	cfg.ExtractCatalog = &fakeCatalog{
		list: []extracts.Extract{
			{ID: "whole", Geometry: f.Geometry},
		},
		downloads: map[string]string{"whole": "/tmp/whole.osm.pbf"},
	}

	paths, err := resolveInputPaths(context.Background(), cfg, f)
	if err != nil {
		t.Fatalf("resolveInputPaths() error: %v", err)
	}
	if len(paths) != 1 || paths[0] != "/tmp/whole.osm.pbf" {
		t.Fatalf("paths = %v, want [/tmp/whole.osm.pbf]", paths)
	}
}

func TestResolveInputPathsReturnsUncoveredGeometryError(t *testing.T) {
	cfg := config.DefaultConfig()
	f := mustGeoFilter(t, "POLYGON((0 0, 10 0, 10 10, 0 10, 0 0))")
	cfg.ExtractCatalog = &fakeCatalog{
		list: []extracts.Extract{
			{ID: "elsewhere", Geometry: mustGeoFilter(t, "POLYGON((1000 1000, 1010 1000, 1010 1010, 1000 1010, 1000 1000))").Geometry},
		},
	}

	_, err := resolveInputPaths(context.Background(), cfg, f)
	if err == nil {
		t.Fatal("resolveInputPaths() succeeded, want UncoveredGeometryError")
	}
}
