// Package groupstore implements the Group Scheduler (C6): choosing a
// rows-per-group size G from observed free memory, partitioning entity ids
// into groups by that size, and the on-disk columnar shard files C3-C5
// read and write per group. Grounded on the teacher's
// internal/metrics/collector.go (gopsutil memory probe) and
// internal/parquet/writer.go (Arrow/Parquet shard builder pattern).
package groupstore

import (
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/kraina-ai/quackosm-go/internal/quackerr"
)

// floorRowsPerGroup is the smallest G the scheduler will fall back to
// before a stage gives up with OutOfMemory.
const floorRowsPerGroup = 10_000

// Scheduler picks and adaptively shrinks the rows-per-group size G used to
// partition a stage's work into independently processable groups.
type Scheduler struct {
	current int
}

// NewScheduler samples free memory once and selects the initial G from the
// table in §4.6: <8GB -> 100k, 8-16GB -> 500k, 16-24GB -> 1M, >24GB -> 5M.
func NewScheduler() *Scheduler {
	return &Scheduler{current: rowsPerGroupFor(availableMemoryBytes())}
}

func availableMemoryBytes() uint64 {
	vmem, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return vmem.Available
}

func rowsPerGroupFor(availableBytes uint64) int {
	const gb = 1024 * 1024 * 1024
	switch {
	case availableBytes > 24*gb:
		return 5_000_000
	case availableBytes > 16*gb:
		return 1_000_000
	case availableBytes > 8*gb:
		return 500_000
	default:
		return 100_000
	}
}

// RowsPerGroup returns the current G.
func (s *Scheduler) RowsPerGroup() int {
	return s.current
}

// criticalMemoryBytes is the available-memory floor below which a stage
// about to start is considered at risk of an out-of-memory condition, so
// its G is shrunk before any group for it is opened.
const criticalMemoryBytes = 512 * 1024 * 1024

// MaybeShrink samples available memory and halves G if it has fallen
// below the critical floor, so a stage about to start allocates smaller
// groups than the one before it. Checked at stage boundaries rather than
// mid-stream, since shrinking G after a stage has already opened groups
// under the old size would make group boundaries inconsistent for
// readers that recompute GroupID from the current G. Returns
// quackerr.OutOfMemoryError once G is already at its floor and memory is
// still critical.
func (s *Scheduler) MaybeShrink(stage string) error {
	if availableMemoryBytes() >= criticalMemoryBytes {
		return nil
	}
	return s.Halve(stage)
}

// Halve shrinks G by half, down to a floor of 10,000 rows. Returns
// quackerr.OutOfMemoryError when G is already at the floor.
func (s *Scheduler) Halve(stage string) error {
	if s.current <= floorRowsPerGroup {
		return &quackerr.OutOfMemoryError{Stage: stage, Floor: floorRowsPerGroup}
	}
	s.current /= 2
	if s.current < floorRowsPerGroup {
		s.current = floorRowsPerGroup
	}
	return nil
}

// GroupID returns the group an entity id belongs to under rows-per-group g:
// group_id = floor(entity_id / g).
func GroupID(entityID int64, g int) int64 {
	if g <= 0 {
		return 0
	}
	return entityID / int64(g)
}
