package mergepolicy

import (
	"testing"

	"github.com/fulldump/biff"
)

func defaultParams() Params {
	return Params{
		MinSegmentSize:   10,
		MaxSegmentSize:   1_000_000,
		SegmentsPerLevel: 10,
		SegmentsPerMerge: 10,
		MaxSegments:      1000,
	}
}

func uniform(n int, size uint64) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{Size: size}
	}
	return out
}

func TestSelectWithinBudget(t *testing.T) {
	biff.Alternative("A handful of segments under budget needs no merge", func(a *biff.A) {
		_, ok := Select(uniform(2, 100), defaultParams())
		biff.AssertEqual(ok, false)
	})

	biff.Alternative("An empty list needs no merge", func(a *biff.A) {
		_, ok := Select(nil, defaultParams())
		biff.AssertEqual(ok, false)
	})
}

func TestSelectOverBudget(t *testing.T) {
	biff.Alternative("Many small segments trigger a merge selecting a valid contiguous window", func(a *biff.A) {
		candidates := uniform(200, 20)
		p := defaultParams()

		sel, ok := Select(candidates, p)
		biff.AssertEqual(ok, true)
		biff.AssertEqual(sel.Start >= 0, true)
		biff.AssertEqual(sel.End >= sel.Start+1, true) // at least two segments
		biff.AssertEqual(sel.End < len(candidates), true)

		width := sel.End - sel.Start + 1
		biff.AssertEqual(width <= p.SegmentsPerMerge, true)
	})
}

func TestSelectRespectsFrozenBoundary(t *testing.T) {
	biff.Alternative("A window never spans across a frozen segment", func(a *biff.A) {
		candidates := uniform(200, 20)
		candidates[3].Frozen = true

		sel, ok := Select(candidates, defaultParams())
		if ok {
			for i := sel.Start; i <= sel.End; i++ {
				biff.AssertEqual(candidates[i].Frozen, false)
			}
		}
	})
}

func TestSelectRespectsMaxSegmentSize(t *testing.T) {
	biff.Alternative("A window never includes or spans a segment at or above MaxSegmentSize", func(a *biff.A) {
		p := defaultParams()
		p.MaxSegmentSize = 50

		candidates := uniform(200, 20)
		candidates[5].Size = 50 // at the ceiling

		sel, ok := Select(candidates, p)
		if ok {
			for i := sel.Start; i <= sel.End; i++ {
				biff.AssertEqual(candidates[i].Size < p.MaxSegmentSize, true)
			}
		}
	})
}

func TestSelectRespectsMaxSegments(t *testing.T) {
	biff.Alternative("MaxSegments forces a merge the geometric budget alone would not require", func(a *biff.A) {
		p := defaultParams()
		p.MinSegmentSize = 10
		p.MaxSegmentSize = 1_000_000_000
		p.SegmentsPerLevel = 1000 // geometric budget alone allows thousands of segments here
		p.SegmentsPerMerge = 10

		candidates := uniform(5, 10)

		p.MaxSegments = 0 // no hard cap: geometric budget alone covers 5 segments comfortably
		_, ok := Select(candidates, p)
		biff.AssertEqual(ok, false)

		p.MaxSegments = 3 // hard cap below the candidate count must force a merge
		sel, ok := Select(candidates, p)
		biff.AssertEqual(ok, true)
		biff.AssertEqual(sel.End >= sel.Start+1, true)
	})
}

func TestSelectMaxSegmentsPerMerge(t *testing.T) {
	biff.Alternative("A selected window never exceeds SegmentsPerMerge", func(a *biff.A) {
		p := defaultParams()
		p.SegmentsPerMerge = 3

		candidates := uniform(500, 20)
		sel, ok := Select(candidates, p)
		biff.AssertEqual(ok, true)
		biff.AssertEqual(sel.End-sel.Start+1 <= 3, true)
	})
}
