package nodestore

import (
	"path/filepath"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nodes.bin")

	store, err := New(path)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	store.Put(1, 7.42245, 43.73105)
	store.Put(2, -122.4194, 37.7749)

	lon, lat, ok := store.Get(1)
	if !ok || lon != 7.4224500 || lat != 43.7310500 {
		t.Errorf("Get(1) = (%v, %v, %v)", lon, lat, ok)
	}

	lon, lat, ok = store.Get(2)
	if !ok || lon != -122.4194000 || lat != 37.7749000 {
		t.Errorf("Get(2) = (%v, %v, %v)", lon, lat, ok)
	}

	if _, _, ok := store.Get(3); ok {
		t.Error("expected Get(3) to report not-found for an unwritten id")
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer reopened.Close()

	lon, lat, ok = reopened.Get(1)
	if !ok || lon != 7.4224500 || lat != 43.7310500 {
		t.Errorf("reopened Get(1) = (%v, %v, %v)", lon, lat, ok)
	}
}

func TestOutOfRangeIgnored(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "nodes.bin"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer store.Close()

	store.Put(-1, 1, 1)
	store.Put(maxNodeID, 1, 1)

	if _, _, ok := store.Get(-1); ok {
		t.Error("expected negative id to be rejected")
	}
	if _, _, ok := store.Get(maxNodeID); ok {
		t.Error("expected id at maxNodeID to be rejected")
	}
}
