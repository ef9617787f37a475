package fpindex

import (
	"errors"
	"fmt"
	"time"

	"github.com/fulldump/fpindex/internal/fileseg"
	"github.com/fulldump/fpindex/internal/memseg"
	"github.com/fulldump/fpindex/internal/segment"
)

// DocInfo is the answer to GetDocInfo: the highest-version segment's
// verdict on one document id.
type DocInfo struct {
	Id      uint32
	Version uint64
	Deleted bool
}

// Search resolves hashes against a consistent snapshot of both
// segment lists and returns matches sorted by score desc, id asc. An
// empty hash list returns no results without touching either list.
func (idx *Index) Search(hashes []uint32, deadline time.Time) ([]segment.SearchResult, error) {
	if idx.stopping.Load() {
		return nil, ErrNotOpen
	}

	sorted := sortedUniqueHashes(hashes)
	if len(sorted) == 0 {
		return nil, nil
	}

	idx.segmentsLock.RLock()
	fileSnap := idx.fileSegments.Snapshot()
	memSnap := idx.memorySegments.Snapshot()
	idx.segmentsLock.RUnlock()

	results := segment.NewResultSet()

	// File segments first, then memory segments: a memory segment is
	// always at least as new as any file segment covering the same
	// doc id (checkpoint never renumbers), so this order lets a fresher
	// memory-segment match naturally take precedence via UpsertMatch's
	// own version comparison, matching spec.md §4.8 step 3.
	if err := fileSnap.Search(sorted, results, deadline); err != nil {
		if errors.Is(err, fileseg.ErrTimeout) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("search file segments: %w", err)
	}
	if err := memSnap.Search(sorted, results, deadline); err != nil {
		if errors.Is(err, memseg.ErrTimeout) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("search memory segments: %w", err)
	}

	results.Finish(func(id uint32, version uint64) bool {
		return memSnap.HasNewerVersion(id, version) || fileSnap.HasNewerVersion(id, version)
	})

	return results.Results(), nil
}

// GetDocInfo scans both lists, newest segment first, for the first one
// carrying id in its docs set. It returns nil if no segment has ever
// seen id.
func (idx *Index) GetDocInfo(id uint32) *DocInfo {
	idx.segmentsLock.RLock()
	memSnap := idx.memorySegments.Snapshot()
	fileSnap := idx.fileSegments.Snapshot()
	idx.segmentsLock.RUnlock()

	for i := memSnap.Len() - 1; i >= 0; i-- {
		seg := memSnap.At(i)
		if seg.Docs().Has(id) {
			return &DocInfo{Id: id, Version: seg.Id().Version, Deleted: seg.Docs().IsTombstone(id)}
		}
	}
	for i := fileSnap.Len() - 1; i >= 0; i-- {
		seg := fileSnap.At(i)
		if seg.Docs().Has(id) {
			return &DocInfo{Id: id, Version: seg.Id().Version, Deleted: seg.Docs().IsTombstone(id)}
		}
	}
	return nil
}

// MemorySegmentCount reports how many memory segments are currently live.
func (idx *Index) MemorySegmentCount() int {
	idx.segmentsLock.RLock()
	defer idx.segmentsLock.RUnlock()
	return idx.memorySegments.Snapshot().Len()
}

// FileSegmentCount reports how many file segments are currently live.
func (idx *Index) FileSegmentCount() int {
	idx.segmentsLock.RLock()
	defer idx.segmentsLock.RUnlock()
	return idx.fileSegments.Snapshot().Len()
}

// attributed is the subset of MemorySegment/FileSegment behaviour
// GetAttributes needs to replay attribute writes and doc liveness in
// segment order.
type attributed interface {
	Attributes() map[string]uint64
	Docs() *segment.DocSet
}

// GetAttributes returns the union of every segment's attribute map
// (a later, higher-version segment's value for a name wins), plus the
// built-in min_document_id/max_document_id bounds over currently live
// document ids.
func (idx *Index) GetAttributes() map[string]uint64 {
	idx.segmentsLock.RLock()
	fileSnap := idx.fileSegments.Snapshot()
	memSnap := idx.memorySegments.Snapshot()
	idx.segmentsLock.RUnlock()

	attrs := map[string]uint64{}
	acc := segment.NewDocSet()

	replay := func(n int, at func(i int) attributed) {
		for i := 0; i < n; i++ {
			s := at(i)
			for k, v := range s.Attributes() {
				attrs[k] = v
			}
			s.Docs().Each(func(id uint32, live bool) {
				if live {
					acc.MarkLive(id)
				} else {
					acc.MarkDeleted(id)
				}
			})
		}
	}

	// Oldest-to-newest across both lists, so later writes correctly
	// overwrite earlier ones -- file segments are always older than
	// live memory segments (checkpoint never renumbers).
	replay(fileSnap.Len(), func(i int) attributed { return fileSnap.At(i) })
	replay(memSnap.Len(), func(i int) attributed { return memSnap.At(i) })

	var minId, maxId uint32
	haveBounds := false
	acc.Each(func(id uint32, live bool) {
		if !live {
			return
		}
		if !haveBounds {
			minId, maxId = id, id
			haveBounds = true
			return
		}
		if id < minId {
			minId = id
		}
		if id > maxId {
			maxId = id
		}
	})

	if haveBounds {
		attrs["min_document_id"] = uint64(minId)
		attrs["max_document_id"] = uint64(maxId)
	}

	return attrs
}
