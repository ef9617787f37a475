// Package memseg implements the in-memory, immutable-after-freeze
// posting buffer that accepts a single commit's changes and serves
// point queries against them by sorted scan.
package memseg

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/btree"

	"github.com/fulldump/fpindex/internal/segment"
)

var ErrTimeout = &timeoutError{}

type timeoutError struct{}

func (*timeoutError) Error() string { return "search deadline exceeded" }

// MemorySegment is a sorted, immutable-after-build (hash,id) posting
// buffer plus the docs liveness set for the commit it was built from.
type MemorySegment struct {
	id          segment.Id
	maxCommitId uint64
	docs        *segment.DocSet
	attributes  map[string]uint64
	items       []segment.Item

	frozen atomic.Bool
}

// Build deduplicates changes by id, last-write-wins: it walks changes
// in reverse so that only the final state of each id (in this batch)
// survives -- once an id is seen, earlier changes for it are ignored.
// Attribute writes follow the same last-write-wins rule, keyed by
// name instead of id.
func Build(id segment.Id, maxCommitId uint64, changes []segment.Change) *MemorySegment {
	seenIds := map[uint32]bool{}
	seenAttrs := map[string]bool{}

	docs := segment.NewDocSet()
	attributes := map[string]uint64{}

	tree := btree.NewG(32, func(a, b segment.Item) bool {
		return segment.Less(a, b)
	})

	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		switch c.Kind {
		case segment.ChangeSetAttribute:
			if seenAttrs[c.Name] {
				continue
			}
			seenAttrs[c.Name] = true
			attributes[c.Name] = c.Value

		case segment.ChangeInsert:
			if seenIds[c.Id] {
				continue
			}
			seenIds[c.Id] = true
			docs.MarkLive(c.Id)
			for _, hash := range c.Hashes {
				tree.ReplaceOrInsert(segment.Item{Hash: hash, Id: c.Id})
			}

		case segment.ChangeDelete:
			if seenIds[c.Id] {
				continue
			}
			seenIds[c.Id] = true
			docs.MarkDeleted(c.Id)
		}
	}

	items := make([]segment.Item, 0, tree.Len())
	tree.Ascend(func(it segment.Item) bool {
		items = append(items, it)
		return true
	})

	return &MemorySegment{
		id:          id,
		maxCommitId: maxCommitId,
		docs:        docs,
		attributes:  attributes,
		items:       items,
	}
}

// FromMerge assembles a MemorySegment directly from a merge.Result's
// fields, bypassing Build's changes-replay -- used when the tiered
// merge policy folds a contiguous run of memory segments into one.
func FromMerge(id segment.Id, maxCommitId uint64, docs *segment.DocSet, attributes map[string]uint64, items []segment.Item) *MemorySegment {
	return &MemorySegment{
		id:          id,
		maxCommitId: maxCommitId,
		docs:        docs,
		attributes:  attributes,
		items:       items,
	}
}

func (m *MemorySegment) Id() segment.Id           { return m.id }
func (m *MemorySegment) MaxCommitId() uint64      { return m.maxCommitId }
func (m *MemorySegment) Docs() *segment.DocSet    { return m.docs }
func (m *MemorySegment) Attributes() map[string]uint64 { return m.attributes }
func (m *MemorySegment) Items() []segment.Item    { return m.items }
func (m *MemorySegment) Size() int                { return len(m.items) }

// AllItems satisfies internal/merge.Source: a memory segment's items
// are already fully materialized and sorted.
func (m *MemorySegment) AllItems() ([]segment.Item, error) { return m.items, nil }

// Frozen reports whether this segment has been selected as a
// checkpoint source. The transition is one-way.
func (m *MemorySegment) Frozen() bool { return m.frozen.Load() }

// Freeze marks the segment as a checkpoint source. It is idempotent.
func (m *MemorySegment) Freeze() { m.frozen.Store(true) }

// Search resolves each (already sorted, deduplicated) query hash by
// lower-bounding into items and resuming the scan cursor from the
// previous hash's match, exploiting the sortedness of both inputs.
func (m *MemorySegment) Search(sortedHashes []uint32, results *segment.ResultSet, deadline time.Time) error {
	cursor := 0
	n := len(m.items)

	for _, hash := range sortedHashes {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrTimeout
		}

		idx := cursor + sort.Search(n-cursor, func(i int) bool {
			return m.items[cursor+i].Hash >= hash
		})
		cursor = idx

		for cursor < n && m.items[cursor].Hash == hash {
			results.UpsertMatch(m.items[cursor].Id, m.id.Version)
			cursor++
		}
	}

	return nil
}

// HasNewerVersion reports whether this segment (used as a "later"
// segment in a shadowing check) is newer than version and carries
// docID in its docs set.
func (m *MemorySegment) HasNewerVersion(docID uint32, version uint64) bool {
	if m.id.Version <= version {
		return false
	}
	return m.docs.Has(docID)
}
