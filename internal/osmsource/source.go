// Package osmsource adapts paulmach/osm's PBF scanner into the §6 "Input
// PBF stream contract": three typed, id-ascending record streams (nodes,
// ways, relations), delivered by callback so the pipeline stages can
// consume them without buffering the whole file. Grounded on the
// teacher's internal/pbf/extractor.go two-pass scanning pattern.
package osmsource

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
)

// NodeRecord is one node from the input stream.
type NodeRecord struct {
	ID   int64
	Lon  float64
	Lat  float64
	Tags map[string]string
}

// WayRecord is one way from the input stream; Refs is the ordered list of
// member node ids.
type WayRecord struct {
	ID   int64
	Refs []int64
	Tags map[string]string
}

// Member is one member of a relation.
type Member struct {
	Kind string // "node", "way", or "relation"
	Ref  int64
	Role string
}

// RelationRecord is one relation from the input stream.
type RelationRecord struct {
	ID      int64
	Members []Member
	Tags    map[string]string
}

// Source is the external PBF reader contract: a single pass over the file
// dispatching each record to the matching callback. Implementations need
// not interleave streams in any particular order relative to each other,
// but each stream must be internally id-ascending.
type Source interface {
	Scan(ctx context.Context, onNode func(NodeRecord) error, onWay func(WayRecord) error, onRelation func(RelationRecord) error) error
	Size() int64
	Close() error
}

// PBFSource is the concrete Source backed by paulmach/osm/osmpbf.
type PBFSource struct {
	file *os.File
	size int64
}

// Open opens path for scanning and stats its size for progress reporting.
func Open(path string) (*PBFSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pbf %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat pbf %s: %w", path, err)
	}
	return &PBFSource{file: f, size: info.Size()}, nil
}

func (s *PBFSource) Size() int64 { return s.size }

func (s *PBFSource) Close() error { return s.file.Close() }

// Scan performs a single parallel-decoded pass over the PBF, in file
// order (OSM PBF files are already grouped node-block, way-block,
// relation-block, so this naturally yields each stream id-ascending).
func (s *PBFSource) Scan(ctx context.Context, onNode func(NodeRecord) error, onWay func(WayRecord) error, onRelation func(RelationRecord) error) error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek pbf: %w", err)
	}

	scanner := osmpbf.New(ctx, s.file, runtime.NumCPU())
	defer scanner.Close()

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			if onNode == nil {
				continue
			}
			if err := onNode(NodeRecord{
				ID:   int64(o.ID),
				Lon:  o.Lon,
				Lat:  o.Lat,
				Tags: tagsToMap(o.Tags),
			}); err != nil {
				return err
			}
		case *osm.Way:
			if onWay == nil {
				continue
			}
			refs := make([]int64, len(o.Nodes))
			for i, n := range o.Nodes {
				refs[i] = int64(n.ID)
			}
			if err := onWay(WayRecord{
				ID:   int64(o.ID),
				Refs: refs,
				Tags: tagsToMap(o.Tags),
			}); err != nil {
				return err
			}
		case *osm.Relation:
			if onRelation == nil {
				continue
			}
			members := make([]Member, len(o.Members))
			for i, m := range o.Members {
				members[i] = Member{Kind: string(m.Type), Ref: m.Ref, Role: m.Role}
			}
			if err := onRelation(RelationRecord{
				ID:      int64(o.ID),
				Members: members,
				Tags:    tagsToMap(o.Tags),
			}); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("scan pbf: %w", err)
	}
	return nil
}

func tagsToMap(tags osm.Tags) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Key] = t.Value
	}
	return m
}
