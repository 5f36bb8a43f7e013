// Package coverage tracks which source lines of a document are covered by
// matched duplicate evidence, merges overlapping/adjacent intervals, and
// derives a duplicate-rate ratio from the merged result.
package coverage

import (
	"sort"

	"github.com/codematch/codematch/pkg/types"
)

// MergeIntervals sorts intervals by start line and coalesces any pair where
// the next interval begins no later than one line past the end of the
// running merged interval, matching the closed-interval/adjacent merge law
// used throughout the query pipelines.
func MergeIntervals(intervals []types.Interval) []types.Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := make([]types.Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	merged := []types.Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if iv.Start <= last.End+1 {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// CoveredLines returns the total number of lines spanned by a set of
// already-merged, non-overlapping intervals.
func CoveredLines(merged []types.Interval) int {
	total := 0
	for _, iv := range merged {
		if iv.End >= iv.Start {
			total += iv.End - iv.Start + 1
		}
	}
	return total
}

// DuplicateRate returns the fraction of a document's totalLines covered by
// the merged intervals, clamped to [0,1].
func DuplicateRate(merged []types.Interval, totalLines int) float64 {
	if totalLines <= 0 {
		return 0
	}
	rate := float64(CoveredLines(merged)) / float64(totalLines)
	if rate > 1 {
		rate = 1
	}
	if rate < 0 {
		rate = 0
	}
	return rate
}

// LineSet is a per-document bitset of covered source lines, used while
// accumulating evidence before it is collapsed into merged intervals. It
// is a direct line-granularity repurposing of an edge-hit bitmap: instead
// of tracking which control-flow edges were exercised, it tracks which
// source lines were touched by matched duplicate evidence.
type LineSet struct {
	covered map[int]struct{}
}

// NewLineSet creates an empty LineSet.
func NewLineSet() *LineSet {
	return &LineSet{covered: make(map[int]struct{})}
}

// MarkRange marks every line in [start,end] as covered.
func (s *LineSet) MarkRange(start, end int) {
	for line := start; line <= end; line++ {
		s.covered[line] = struct{}{}
	}
}

// Intervals collapses the marked lines into a sorted, merged interval list.
func (s *LineSet) Intervals() []types.Interval {
	if len(s.covered) == 0 {
		return nil
	}
	lines := make([]int, 0, len(s.covered))
	for ln := range s.covered {
		lines = append(lines, ln)
	}
	sort.Ints(lines)

	var out []types.Interval
	start := lines[0]
	prev := lines[0]
	for _, ln := range lines[1:] {
		if ln == prev+1 {
			prev = ln
			continue
		}
		out = append(out, types.Interval{Start: start, End: prev})
		start = ln
		prev = ln
	}
	out = append(out, types.Interval{Start: start, End: prev})
	return out
}

// Count returns the number of distinct covered lines.
func (s *LineSet) Count() int {
	return len(s.covered)
}
