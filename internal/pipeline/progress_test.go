package pipeline

import "testing"

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		bytes int64
		want  string
	}{
		{500, "500 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, c := range cases {
		if got := FormatBytes(c.bytes); got != c.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", c.bytes, got, c.want)
		}
	}
}

func TestFormatThroughput(t *testing.T) {
	cases := []struct {
		rate float64
		want string
	}{
		{500, "500/s"},
		{2_500, "2.5K/s"},
		{4_000_000, "4.0M/s"},
	}
	for _, c := range cases {
		if got := FormatThroughput(c.rate); got != c.want {
			t.Errorf("FormatThroughput(%v) = %q, want %q", c.rate, got, c.want)
		}
	}
}

func TestProgressTrackerCalculateReportsThroughput(t *testing.T) {
	tracker := NewProgressTracker(0, "conversion")
	prog := tracker.Calculate(1000, 0)

	if prog.Current != 1000 {
		t.Errorf("Current = %d, want 1000", prog.Current)
	}
	if prog.Description != "conversion" {
		t.Errorf("Description = %q, want conversion", prog.Description)
	}
}
