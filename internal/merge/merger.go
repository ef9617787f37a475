// Package merge implements the N-way streaming merge described in
// spec.md §4.5: it combines the sorted item streams of one or more
// contiguous segments into a single sorted stream, dropping items and
// docs entries that a later segment (inside or outside the merge
// window) has shadowed.
package merge

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/fulldump/fpindex/internal/segment"
)

// Source is anything a merge can read from: internal/memseg.MemorySegment
// and internal/fileseg.FileSegment both satisfy it.
type Source interface {
	Id() segment.Id
	MaxCommitId() uint64
	Attributes() map[string]uint64
	Docs() *segment.DocSet
	// AllItems returns every (hash,id) posting in ascending order. For
	// a file segment this decodes every block sequentially.
	AllItems() ([]segment.Item, error)
}

// Result is the combined output of a merge: everything a
// fileseg.Create call needs to publish the replacement segment.
type Result struct {
	Id          segment.Id
	Items       []segment.Item
	Docs        *segment.DocSet
	Attributes  map[string]uint64
	MaxCommitId uint64
}

// Merge combines sources, which must be contiguous and given oldest
// first, into a Result. hasNewerVersion reports whether some segment
// strictly outside the merge window (i.e. not among sources) is newer
// than version and carries docId -- the merge asks the segment list
// this question because a merge only ever sees a contiguous window,
// never the full list.
func Merge(sources []Source, hasNewerVersion func(docId uint32, version uint64) bool) (*Result, error) {
	if len(sources) == 0 {
		return nil, errors.New("merge: no sources")
	}

	lastVersion := sources[len(sources)-1].Id().Version

	// shadowed reports whether the docId entry carried by sources[i] is
	// superseded, either by a later source still inside this merge's
	// window or by some segment entirely outside it.
	shadowed := func(i int, docId uint32) bool {
		for j := i + 1; j < len(sources); j++ {
			if sources[j].Docs().Has(docId) {
				return true
			}
		}
		return hasNewerVersion(docId, lastVersion)
	}

	items, err := mergeItems(sources, shadowed)
	if err != nil {
		return nil, err
	}

	docs := segment.NewDocSet()
	attributes := map[string]uint64{}
	var maxCommitId uint64

	for i, s := range sources {
		if c := s.MaxCommitId(); c > maxCommitId {
			maxCommitId = c
		}
		for k, v := range s.Attributes() {
			attributes[k] = v
		}
		s.Docs().Each(func(docId uint32, live bool) {
			if shadowed(i, docId) {
				return
			}
			if live {
				docs.MarkLive(docId)
			} else {
				docs.MarkDeleted(docId)
			}
		})
	}

	id := segment.Merge(sources[0].Id(), sources[len(sources)-1].Id())

	return &Result{
		Id:          id,
		Items:       items,
		Docs:        docs,
		Attributes:  attributes,
		MaxCommitId: maxCommitId,
	}, nil
}

// cursor walks one source's already-sorted item slice.
type cursor struct {
	items  []segment.Item
	idx    int
	srcIdx int
}

// cursorHeap is a min-heap over cursors ordered by their current item,
// giving a k-way merge of the (already sorted) per-source streams.
type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	return segment.Less(h[i].items[h[i].idx], h[j].items[h[j].idx])
}
func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)   { *h = append(*h, x.(*cursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

func mergeItems(sources []Source, shadowed func(srcIdx int, docId uint32) bool) ([]segment.Item, error) {
	h := &cursorHeap{}
	heap.Init(h)

	for i, s := range sources {
		items, err := s.AllItems()
		if err != nil {
			return nil, fmt.Errorf("read items of merge source %d (%s): %w", i, s.Id(), err)
		}
		if len(items) > 0 {
			heap.Push(h, &cursor{items: items, srcIdx: i})
		}
	}

	var out []segment.Item
	var havePrev bool
	var prev segment.Item

	for h.Len() > 0 {
		c := (*h)[0]
		it := c.items[c.idx]

		if !shadowed(c.srcIdx, it.Id) && (!havePrev || prev != it) {
			out = append(out, it)
			prev = it
			havePrev = true
		}

		c.idx++
		if c.idx < len(c.items) {
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}

	return out, nil
}
