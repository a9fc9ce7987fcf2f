package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/kraina-ai/quackosm-go/internal/config"
	"github.com/kraina-ai/quackosm-go/internal/geo"
	"github.com/kraina-ai/quackosm-go/internal/groupstore"
	"github.com/kraina-ai/quackosm-go/internal/parquet"
)

func TestHilbertOfIsStableForSamePoint(t *testing.T) {
	p := orb.Point{7.42, 43.73}
	a := hilbertOf(p)
	b := hilbertOf(p)
	if a != b {
		t.Errorf("hilbertOf(%v) not stable: %d != %d", p, a, b)
	}
}

func TestHilbertOfDiffersForDistantPoints(t *testing.T) {
	a := hilbertOf(orb.Point{-170, -80})
	b := hilbertOf(orb.Point{170, 80})
	if a == b {
		t.Error("hilbertOf() gave the same index for opposite corners of the world")
	}
}

func TestGeoparquetMetadataJSONShape(t *testing.T) {
	raw, err := geoparquetMetadataJSON([]string{"Polygon"}, [4]float64{0, 0, 10, 10}, "WKB")
	if err != nil {
		t.Fatalf("geoparquetMetadataJSON() error: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("geoparquetMetadataJSON() produced invalid JSON: %v", err)
	}
	if doc["version"] != "1.0.0" {
		t.Errorf("version = %v, want 1.0.0", doc["version"])
	}
	if doc["primary_column"] != "geometry" {
		t.Errorf("primary_column = %v, want geometry", doc["primary_column"])
	}
	cols, ok := doc["columns"].(map[string]interface{})
	if !ok {
		t.Fatal("columns is not an object")
	}
	geomCol, ok := cols["geometry"].(map[string]interface{})
	if !ok {
		t.Fatal("columns.geometry is not an object")
	}
	if geomCol["encoding"] != "WKB" {
		t.Errorf("encoding = %v, want WKB", geomCol["encoding"])
	}
	crs, ok := geomCol["crs"].(map[string]interface{})
	if !ok {
		t.Fatal("columns.geometry.crs is not an object")
	}
	if crs["type"] != "GeographicCRS" {
		t.Errorf("crs.type = %v, want GeographicCRS", crs["type"])
	}
}

func TestWktOfRenders(t *testing.T) {
	cases := []struct {
		name string
		geom orb.Geometry
		want string
	}{
		{"point", orb.Point{1, 2}, "POINT(1 2)"},
		{"linestring", orb.LineString{{0, 0}, {1, 1}}, "LINESTRING(0 0,1 1)"},
		{"polygon", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, "POLYGON((0 0,1 0,1 1,0 0))"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := wktOf(c.geom)
			if got != c.want {
				t.Errorf("wktOf() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestWktOfMultiPolygon(t *testing.T) {
	mp := orb.MultiPolygon{
		{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		{{{5, 5}, {6, 5}, {6, 6}, {5, 5}}},
	}
	got := wktOf(mp)
	if !strings.HasPrefix(got, "MULTIPOLYGON(") {
		t.Errorf("wktOf(MultiPolygon) = %q, want MULTIPOLYGON(...) prefix", got)
	}
	if strings.Count(got, "((") != 2 {
		t.Errorf("wktOf(MultiPolygon) = %q, want two polygon groups", got)
	}
}

func writeFeatureRow(t *testing.T, store *groupstore.Store, gid int64, row parquet.FeatureRow) {
	t.Helper()
	w, err := store.FeatureWriter(gid)
	if err != nil {
		t.Fatalf("FeatureWriter() error: %v", err)
	}
	if err := w.Write(row); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestMergeOutputCountsRowsAcrossStores(t *testing.T) {
	dir := t.TempDir()

	ways, err := groupstore.NewStore(dir, "feature_ways", 100_000)
	if err != nil {
		t.Fatalf("NewStore(feature_ways) error: %v", err)
	}
	relations, err := groupstore.NewStore(dir, "feature_relations", 100_000)
	if err != nil {
		t.Fatalf("NewStore(feature_relations) error: %v", err)
	}

	wayGeom := orb.LineString{{0, 0}, {1, 1}}
	wayWKB, err := geo.EncodeGeometry(wayGeom)
	if err != nil {
		t.Fatalf("EncodeGeometry() error: %v", err)
	}
	wayTags, _ := json.Marshal(map[string]string{"highway": "residential"})
	writeFeatureRow(t, ways, 0, parquet.FeatureRow{ID: 1, Kind: "way", Tags: string(wayTags), GeomWKB: wayWKB})

	relGeom := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 0}}}
	relWKB, err := geo.EncodeGeometry(relGeom)
	if err != nil {
		t.Fatalf("EncodeGeometry() error: %v", err)
	}
	relTags, _ := json.Marshal(map[string]string{"landuse": "forest"})
	writeFeatureRow(t, relations, 0, parquet.FeatureRow{ID: 2, Kind: "relation", Tags: string(relTags), GeomWKB: relWKB})

	cfg := config.DefaultConfig()
	cfg.RowGroupSize = 10
	outPath := filepath.Join(dir, "out.parquet")

	n, err := mergeOutput(context.Background(), cfg, outPath, []*groupstore.Store{ways, relations}, []string{"highway", "landuse"})
	if err != nil {
		t.Fatalf("mergeOutput() error: %v", err)
	}
	if n != 2 {
		t.Errorf("mergeOutput() rows = %d, want 2", n)
	}
}
