package pipeline

import (
	"context"

	"github.com/kraina-ai/quackosm-go/internal/osmsource"
)

// fakeSource is a canned osmsource.Source for pipeline stage tests, replaying
// fixed node/way/relation slices instead of decoding a real PBF file.
type fakeSource struct {
	nodes     []osmsource.NodeRecord
	ways      []osmsource.WayRecord
	relations []osmsource.RelationRecord
}

func (s *fakeSource) Scan(ctx context.Context, onNode func(osmsource.NodeRecord) error, onWay func(osmsource.WayRecord) error, onRelation func(osmsource.RelationRecord) error) error {
	if onNode != nil {
		for _, n := range s.nodes {
			if err := onNode(n); err != nil {
				return err
			}
		}
	}
	if onWay != nil {
		for _, w := range s.ways {
			if err := onWay(w); err != nil {
				return err
			}
		}
	}
	if onRelation != nil {
		for _, r := range s.relations {
			if err := onRelation(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *fakeSource) Size() int64 { return 0 }

func (s *fakeSource) Close() error { return nil }
