package groupstore

import (
	"context"
	"testing"

	"github.com/kraina-ai/quackosm-go/internal/parquet"
)

func TestFeatureShardRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "feature_ways", 10)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	w, err := store.FeatureWriter(0)
	if err != nil {
		t.Fatalf("FeatureWriter() error: %v", err)
	}
	rows := []parquet.FeatureRow{
		{ID: 1, Kind: "way", Tags: `{"building":"yes"}`, GeomWKB: []byte{1, 2, 3}},
		{ID: 2, Kind: "way", Tags: `{"highway":"residential"}`, GeomWKB: []byte{4, 5}},
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	got, err := store.ReadFeatureGroup(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadFeatureGroup() error: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("got %d rows, want %d", len(got), len(rows))
	}
	for i, r := range got {
		if r.ID != rows[i].ID || r.Kind != rows[i].Kind || r.Tags != rows[i].Tags {
			t.Errorf("row %d = %+v, want %+v", i, r, rows[i])
		}
	}
}

func TestReadFeatureGroupMissingReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "feature_relations", 10)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	got, err := store.ReadFeatureGroup(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no rows for a never-written group, got %d", len(got))
	}
}

func TestKVShardRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "way_linestrings_kv", 10)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	w, err := store.KVWriter(0)
	if err != nil {
		t.Fatalf("KVWriter() error: %v", err)
	}
	if err := w.Write(parquet.KVRow{ID: 42, GeomWKB: []byte{9, 9}, Tags: ""}); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	got, err := store.ReadKVGroup(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadKVGroup() error: %v", err)
	}
	row, ok := got[42]
	if !ok {
		t.Fatal("expected id 42 present in kv shard")
	}
	if len(row.GeomWKB) != 2 {
		t.Errorf("unexpected geom: %v", row.GeomWKB)
	}
}

func TestGroupIDsListsWrittenShards(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "feature_nodes", 10)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	for _, gid := range []int64{2, 0, 1} {
		w, err := store.FeatureWriter(gid)
		if err != nil {
			t.Fatalf("FeatureWriter(%d) error: %v", gid, err)
		}
		if err := w.Write(parquet.FeatureRow{ID: gid, Kind: "node", Tags: "{}", GeomWKB: []byte{0}}); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close() error: %v", err)
		}
	}

	ids, err := store.GroupIDs()
	if err != nil {
		t.Fatalf("GroupIDs() error: %v", err)
	}
	want := []int64{0, 1, 2}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}
