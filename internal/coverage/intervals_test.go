package coverage

import (
	"reflect"
	"testing"

	"github.com/codematch/codematch/pkg/types"
)

func TestMergeIntervalsAdjacentAndOverlapping(t *testing.T) {
	in := []types.Interval{
		{Start: 10, End: 20},
		{Start: 1, End: 5},
		{Start: 21, End: 25}, // adjacent to the first
		{Start: 30, End: 40},
		{Start: 35, End: 45}, // overlapping with the previous
	}
	got := MergeIntervals(in)
	want := []types.Interval{
		{Start: 1, End: 5},
		{Start: 10, End: 25},
		{Start: 30, End: 45},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestMergeIntervalsEmpty(t *testing.T) {
	if got := MergeIntervals(nil); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestDuplicateRateClamped(t *testing.T) {
	merged := []types.Interval{{Start: 1, End: 100}}
	if rate := DuplicateRate(merged, 50); rate != 1 {
		t.Fatalf("expected rate clamped to 1, got %f", rate)
	}
	if rate := DuplicateRate(merged, 0); rate != 0 {
		t.Fatalf("expected 0 for zero total lines, got %f", rate)
	}
}

func TestDuplicateRatePartial(t *testing.T) {
	merged := []types.Interval{{Start: 1, End: 20}, {Start: 41, End: 60}}
	rate := DuplicateRate(merged, 100)
	if rate < 0.39 || rate > 0.41 {
		t.Fatalf("expected ~0.4, got %f", rate)
	}
}

func TestLineSetIntervals(t *testing.T) {
	s := NewLineSet()
	s.MarkRange(5, 8)
	s.MarkRange(9, 10)
	s.MarkRange(20, 22)

	got := s.Intervals()
	want := []types.Interval{{Start: 5, End: 10}, {Start: 20, End: 22}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if s.Count() != 9 {
		t.Fatalf("expected 9 distinct lines, got %d", s.Count())
	}
}
