package groupstore

import (
	"errors"
	"testing"

	"github.com/kraina-ai/quackosm-go/internal/quackerr"
)

func TestRowsPerGroupFor(t *testing.T) {
	const gb = 1024 * 1024 * 1024
	tests := []struct {
		name      string
		available uint64
		want      int
	}{
		{"below 8gb", 4 * gb, 100_000},
		{"between 8 and 16gb", 10 * gb, 500_000},
		{"between 16 and 24gb", 20 * gb, 1_000_000},
		{"above 24gb", 32 * gb, 5_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rowsPerGroupFor(tt.available); got != tt.want {
				t.Errorf("rowsPerGroupFor(%d) = %d, want %d", tt.available, got, tt.want)
			}
		})
	}
}

func TestHalveDownToFloorThenOutOfMemory(t *testing.T) {
	s := &Scheduler{current: 40_000}

	if err := s.Halve("ways"); err != nil {
		t.Fatalf("unexpected error on first halve: %v", err)
	}
	if s.RowsPerGroup() != 20_000 {
		t.Fatalf("after first halve: got %d, want 20000", s.RowsPerGroup())
	}

	if err := s.Halve("ways"); err != nil {
		t.Fatalf("unexpected error on second halve: %v", err)
	}
	if s.RowsPerGroup() != floorRowsPerGroup {
		t.Fatalf("after second halve: got %d, want floor %d", s.RowsPerGroup(), floorRowsPerGroup)
	}

	err := s.Halve("ways")
	var oom *quackerr.OutOfMemoryError
	if !errors.As(err, &oom) {
		t.Fatalf("expected OutOfMemoryError at floor, got %v", err)
	}
	if oom.Stage != "ways" || oom.Floor != floorRowsPerGroup {
		t.Errorf("unexpected OutOfMemoryError fields: %+v", oom)
	}
}

func TestMaybeShrinkNoopWhenMemoryNotCritical(t *testing.T) {
	s := &Scheduler{current: 100_000}

	// availableMemoryBytes reads real system memory, which on any machine
	// running this test suite is expected to be well above the 512MB
	// critical floor, so MaybeShrink should leave G untouched.
	if err := s.MaybeShrink("node"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.RowsPerGroup() != 100_000 {
		t.Errorf("RowsPerGroup() = %d, want unchanged 100000", s.RowsPerGroup())
	}
}

func TestGroupID(t *testing.T) {
	tests := []struct {
		id   int64
		g    int
		want int64
	}{
		{0, 100_000, 0},
		{99_999, 100_000, 0},
		{100_000, 100_000, 1},
		{250_000, 100_000, 2},
	}
	for _, tt := range tests {
		if got := GroupID(tt.id, tt.g); got != tt.want {
			t.Errorf("GroupID(%d, %d) = %d, want %d", tt.id, tt.g, got, tt.want)
		}
	}
}
