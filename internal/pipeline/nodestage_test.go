package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kraina-ai/quackosm-go/internal/groupstore"
	"github.com/kraina-ai/quackosm-go/internal/osmsource"
	"github.com/kraina-ai/quackosm-go/internal/quackerr"
	"github.com/kraina-ai/quackosm-go/internal/tags"
	"github.com/kraina-ai/quackosm-go/internal/wayclass"
)

func newTestDeps(t *testing.T, source osmsource.Source) stageDeps {
	t.Helper()
	compiled, err := tags.Compile(tags.Filter{}, tags.NewUniverse())
	if err != nil {
		t.Fatalf("tags.Compile() error: %v", err)
	}
	dir := t.TempDir()
	return stageDeps{
		source:        source,
		workDir:       dir,
		nodeStorePath: filepath.Join(dir, "all_nodes_kv.bin"),
		scheduler:     groupstore.NewScheduler(),
		predicate:     compiled.Predicate,
		projection:    compiled.ProjectionSet,
		keepAllTags:   true,
		wayPolicy:     wayclass.Default(),
		summary:       &quackerr.RunSummary{},
	}
}

func TestRunNodeStageKeepsAllMatchingNodes(t *testing.T) {
	src := &fakeSource{
		nodes: []osmsource.NodeRecord{
			{ID: 1, Lon: 7.42, Lat: 43.73, Tags: map[string]string{"amenity": "cafe"}},
			{ID: 2, Lon: 7.43, Lat: 43.74, Tags: nil},
		},
	}
	deps := newTestDeps(t, src)

	out, err := runNodeStage(context.Background(), deps)
	if err != nil {
		t.Fatalf("runNodeStage() error: %v", err)
	}
	defer out.Coords.Close()

	if out.count != 2 {
		t.Errorf("count = %d, want 2", out.count)
	}
	if out.kept != 2 {
		t.Errorf("kept = %d, want 2 (keepAllTags)", out.kept)
	}

	lon, lat, ok := out.Coords.Get(1)
	if !ok {
		t.Fatal("Coords.Get(1) not found")
	}
	if diff := lon - 7.42; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("lon = %v, want ~7.42", lon)
	}
	if diff := lat - 43.73; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("lat = %v, want ~43.73", lat)
	}

	rows, err := out.Features.ReadFeatureGroup(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadFeatureGroup() error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d feature rows, want 2", len(rows))
	}
}

func TestRunNodeStageDropsUnmatchedByGeometryFilter(t *testing.T) {
	src := &fakeSource{
		nodes: []osmsource.NodeRecord{
			{ID: 1, Lon: 0, Lat: 0, Tags: map[string]string{"amenity": "cafe"}},
		},
	}
	deps := newTestDeps(t, src)
	deps.geomFilter = mustGeoFilter(t, "POLYGON((10 10, 20 10, 20 20, 10 20, 10 10))")

	out, err := runNodeStage(context.Background(), deps)
	if err != nil {
		t.Fatalf("runNodeStage() error: %v", err)
	}
	defer out.Coords.Close()

	if out.kept != 0 {
		t.Errorf("kept = %d, want 0 (node outside geometry filter)", out.kept)
	}
	if out.count != 1 {
		t.Errorf("count = %d, want 1 (coordinate still recorded)", out.count)
	}

	if _, _, ok := out.Coords.Get(1); !ok {
		t.Error("Coords.Get(1) not found, node coordinates must be recorded regardless of filter outcome")
	}
}
