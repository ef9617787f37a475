// Package mergepolicy implements the tiered merge policy of
// spec.md §4.6: given an ordered list of segment sizes, decide whether
// a merge is due and, if so, which contiguous window to merge.
package mergepolicy

import "math"

// Params are the policy's tunables, sourced from configuration.
type Params struct {
	MinSegmentSize   uint64
	MaxSegmentSize   uint64
	SegmentsPerLevel int
	SegmentsPerMerge int
	MaxSegments      int
}

// Candidate summarizes one segment for scoring purposes. Callers build
// this from either a memory or a file segment.
type Candidate struct {
	Size   uint64
	Frozen bool
}

// Selection names a contiguous, inclusive window [Start, End] into the
// candidate slice that should be merged into one segment.
type Selection struct {
	Start int
	End   int
}

// floor is the smallest size the level ladder is allowed to bottom out
// at. spec.md names a `floor` term in the budget formula without
// pinning its value; MinSegmentSize is the natural choice since it is
// already the smallest size a durable segment is meant to have.
func floor(p Params) float64 {
	if p.MinSegmentSize == 0 {
		return 1
	}
	return float64(p.MinSegmentSize)
}

// allowed computes how many segments the list is permitted to hold
// before a merge becomes due, per the max_level/min_level/allowed
// levels budget in spec.md §4.6. MaxSegments is the hard cap named
// alongside that budget: whatever the geometric ladder computes, the
// list is never allowed to grow past it.
func allowed(p Params, total uint64) int {
	f := floor(p)
	maxLevel := math.Min(float64(p.MaxSegmentSize), math.Max(float64(total)/2, f))
	minLevel := math.Max(maxLevel/1000, f)

	perLevel := p.SegmentsPerLevel
	if perLevel <= 0 {
		perLevel = 1
	}

	n := perLevel
	if maxLevel > minLevel {
		levels := math.Max(1, math.Log2(maxLevel/minLevel))
		n = int(math.Ceil(levels * float64(perLevel)))
		if n < 1 {
			n = 1
		}
	}

	if p.MaxSegments > 0 && n > p.MaxSegments {
		n = p.MaxSegments
	}
	return n
}

// levelSize is the target size of the level that position pos in the
// ordered candidate list falls in: a geometric ladder starting at
// minLevel and growing by segmentsPerLevel every segmentsPerLevel
// positions, mirroring the classic tiered-compaction ladder (each tier
// segmentsPerLevel times the size of the one below it). spec.md names
// level_size(window_position) without defining its shape; this is the
// implementer's resolution.
func levelSize(minLevel float64, segmentsPerLevel int, pos int) float64 {
	if segmentsPerLevel <= 1 {
		return minLevel
	}
	tier := pos / segmentsPerLevel
	return minLevel * math.Pow(float64(segmentsPerLevel), float64(tier))
}

// Select scores every contiguous window of length 2..SegmentsPerMerge
// by sum_of_sizes - level_size(window_position) and returns the
// minimum-scoring one. It returns ok=false when the list is within
// budget and no merge is due. Frozen segments and segments already at
// or above MaxSegmentSize cannot appear in any window; a window cannot
// span across one.
func Select(candidates []Candidate, p Params) (sel Selection, ok bool) {
	var total uint64
	for _, c := range candidates {
		total += c.Size
	}

	if len(candidates) <= allowed(p, total) {
		return Selection{}, false
	}

	f := floor(p)
	maxLevel := math.Min(float64(p.MaxSegmentSize), math.Max(float64(total)/2, f))
	minLevel := math.Max(maxLevel/1000, f)
	if minLevel <= 0 {
		minLevel = 1
	}

	maxLen := p.SegmentsPerMerge
	if maxLen < 2 {
		maxLen = 2
	}

	bestScore := math.Inf(1)
	found := false

	for start := 0; start < len(candidates); start++ {
		var sum uint64
		for length := 1; length <= maxLen && start+length <= len(candidates); length++ {
			c := candidates[start+length-1]
			if c.Frozen || (p.MaxSegmentSize > 0 && c.Size >= p.MaxSegmentSize) {
				break // window cannot include, or extend past, an excluded segment
			}
			sum += c.Size

			if length < 2 {
				continue // spec requires at least two sources per merge
			}

			score := float64(sum) - levelSize(minLevel, p.SegmentsPerLevel, start)
			if score < bestScore {
				bestScore = score
				sel = Selection{Start: start, End: start + length - 1}
				found = true
			}
		}
	}

	return sel, found
}
