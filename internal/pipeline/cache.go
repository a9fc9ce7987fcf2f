package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kraina-ai/quackosm-go/internal/config"
	"github.com/kraina-ai/quackosm-go/internal/quackerr"
	"github.com/kraina-ai/quackosm-go/internal/tags"
)

// resultFileName builds the content-addressed output filename, following
// QuackOSM's _generate_result_file_path: <pbf-stem>_<tagfilter-hash>_<geometry-hash>_<compact|exploded><_sorted><_wkt>.parquet.
// Two runs with identical inputs and configuration produce the same name,
// which both serves as the run cache key and lets a caller skip redundant
// conversions without a separate manifest.
func resultFileName(cfg *config.Config, filter tags.Filter, geomFingerprint string) string {
	stem := strings.TrimSuffix(filepath.Base(cfg.InputFile), ".osm.pbf")
	stem = strings.TrimSuffix(stem, ".pbf")

	tagPart := "nofilter"
	if len(filter) > 0 || cfg.CustomFilter != "" {
		h := sha256.New()
		enc, _ := json.Marshal(filter)
		h.Write(enc)
		h.Write([]byte(cfg.CustomFilter))
		tagPart = hex.EncodeToString(h.Sum(nil))[:8]
		if cfg.KeepAllTags {
			tagPart += "_alltags"
		}
	}

	geomPart := "noclip"
	if geomFingerprint != "" {
		geomPart = geomFingerprint[:8]
	}

	shape := "compact"
	if cfg.ResolveExplodeTags() {
		shape = "exploded"
	}

	suffix := ""
	if cfg.ResolveSortResult() {
		suffix += "_sorted"
	}
	if cfg.SaveAsWKT {
		suffix += "_wkt"
	}

	return fmt.Sprintf("%s_%s_%s_%s%s.parquet", stem, tagPart, geomPart, shape, suffix)
}

// workDirLock guards a working directory against two concurrent runs
// targeting the same cache key, per §5's "Shared resources" rule: a flock
// on a lock file inside the working directory, held for the run's
// duration. A second process touching the same key fails fast with
// quackerr.CacheBusyError rather than corrupting shared shard files.
type workDirLock struct {
	file *os.File
	path string
}

// acquireWorkDirLock takes an exclusive, non-blocking lock on
// <dir>/.quackosm.lock, returning quackerr.CacheBusyError if another
// process already holds it.
func acquireWorkDirLock(dir string) (*workDirLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create working directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, ".quackosm.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, &quackerr.CacheBusyError{LockPath: path}
	}
	return &workDirLock{file: f, path: path}, nil
}

// Release unlocks and closes the lock file.
func (l *workDirLock) Release() error {
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
