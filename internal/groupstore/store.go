package groupstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kraina-ai/quackosm-go/internal/parquet"
)

// Store lays out a stage's intermediate shard files on disk, one file per
// group_id = floor(entity_id / G), under dir/<prefix>/group-<id>.parquet.
// C3-C5 each get their own Store instance over a shared working directory.
type Store struct {
	dir       string
	prefix    string
	batchSize int
}

// NewStore prepares (creating if absent) the shard directory for prefix
// (e.g. "feature_nodes", "way_linestrings_kv") under dir.
func NewStore(dir, prefix string, batchSize int) (*Store, error) {
	path := filepath.Join(dir, prefix)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create shard directory %s: %w", path, err)
	}
	if batchSize <= 0 {
		batchSize = 50_000
	}
	return &Store{dir: dir, prefix: prefix, batchSize: batchSize}, nil
}

func (s *Store) shardPath(groupID int64) string {
	return filepath.Join(s.dir, s.prefix, fmt.Sprintf("group-%d.parquet", groupID))
}

// FeatureWriter opens a FeatureShardWriter for groupID, truncating any
// existing shard from a previous (failed) attempt.
func (s *Store) FeatureWriter(groupID int64) (*parquet.FeatureShardWriter, error) {
	return parquet.NewFeatureShardWriter(s.shardPath(groupID), s.batchSize)
}

// KVWriter opens a KVShardWriter for groupID.
func (s *Store) KVWriter(groupID int64) (*parquet.KVShardWriter, error) {
	return parquet.NewKVShardWriter(s.shardPath(groupID), s.batchSize)
}

// ReadFeatureGroup reads back one group's feature shard. Returns an empty
// slice, not an error, if the group was never written (e.g. every row in
// that id range was filtered out).
func (s *Store) ReadFeatureGroup(ctx context.Context, groupID int64) ([]parquet.FeatureRow, error) {
	path := s.shardPath(groupID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return parquet.ReadFeatureShard(ctx, path)
}

// ReadKVGroup reads back one group's kv shard as a map, or nil if the group
// was never written.
func (s *Store) ReadKVGroup(ctx context.Context, groupID int64) (map[int64]parquet.KVRow, error) {
	path := s.shardPath(groupID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return parquet.ReadKVShard(ctx, path)
}

// GroupIDs lists the group ids actually present on disk, in ascending
// order, for iterating a completed stage's output without needing to know
// the id range up front.
func (s *Store) GroupIDs() ([]int64, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, s.prefix))
	if err != nil {
		return nil, fmt.Errorf("list shard directory: %w", err)
	}
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		var id int64
		if _, err := fmt.Sscanf(e.Name(), "group-%d.parquet", &id); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// RemoveAll deletes the stage's shard directory, e.g. after C8 has merged
// it into the final output or on fatal error, per §3's intermediate-shard
// lifecycle invariant.
func (s *Store) RemoveAll() error {
	return os.RemoveAll(filepath.Join(s.dir, s.prefix))
}
