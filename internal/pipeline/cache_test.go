package pipeline

import (
	"testing"

	"github.com/kraina-ai/quackosm-go/internal/config"
	"github.com/kraina-ai/quackosm-go/internal/tags"
)

func TestResultFileNameStem(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InputFile = "/data/monaco.osm.pbf"

	name := resultFileName(cfg, nil, "")
	if want := "monaco_nofilter_noclip_compact_sorted.parquet"; name != want {
		t.Errorf("resultFileName() = %q, want %q", name, want)
	}
}

func TestResultFileNameDeterministicForSameFilter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InputFile = "monaco.pbf"
	filter := tags.Filter{"building": tags.PresentSpec()}

	a := resultFileName(cfg, filter, "abcd1234")
	b := resultFileName(cfg, filter, "abcd1234")
	if a != b {
		t.Errorf("resultFileName() not deterministic: %q != %q", a, b)
	}
}

func TestResultFileNameVariesWithFilter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InputFile = "monaco.pbf"

	a := resultFileName(cfg, tags.Filter{"building": tags.PresentSpec()}, "")
	b := resultFileName(cfg, tags.Filter{"highway": tags.PresentSpec()}, "")
	if a == b {
		t.Errorf("resultFileName() did not vary with filter: both %q", a)
	}
}

func TestResultFileNameSuffixes(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InputFile = "monaco.pbf"
	cfg.SaveAsWKT = true
	falseVal := false
	cfg.SortResult = &falseVal

	name := resultFileName(cfg, nil, "")
	if want := "monaco_nofilter_noclip_compact_wkt.parquet"; name != want {
		t.Errorf("resultFileName() = %q, want %q", name, want)
	}
}

func TestAcquireWorkDirLockRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()

	lock, err := acquireWorkDirLock(dir)
	if err != nil {
		t.Fatalf("acquireWorkDirLock() error: %v", err)
	}
	defer lock.Release()

	if _, err := acquireWorkDirLock(dir); err == nil {
		t.Error("acquireWorkDirLock() on a held lock succeeded, want CacheBusyError")
	}
}

func TestAcquireWorkDirLockReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := acquireWorkDirLock(dir)
	if err != nil {
		t.Fatalf("acquireWorkDirLock() error: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}

	lock2, err := acquireWorkDirLock(dir)
	if err != nil {
		t.Fatalf("acquireWorkDirLock() after release error: %v", err)
	}
	lock2.Release()
}
