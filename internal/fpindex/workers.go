package fpindex

import (
	"fmt"
	"path/filepath"

	"github.com/fulldump/fpindex/internal/codec"
	"github.com/fulldump/fpindex/internal/fileseg"
	"github.com/fulldump/fpindex/internal/memseg"
	"github.com/fulldump/fpindex/internal/merge"
	"github.com/fulldump/fpindex/internal/mergepolicy"
	"github.com/fulldump/fpindex/internal/segment"
)

// maybeMergeMemorySegments folds a contiguous run of memory segments
// selected by the tiered merge policy into one, per spec.md §4.8.
func (idx *Index) maybeMergeMemorySegments() (bool, error) {
	// A consistent pair of snapshots, taken together, is the "snapshot"
	// design-notes §9 requires shadowing lookups to be resolved against.
	idx.segmentsLock.RLock()
	memSnap := idx.memorySegments.Snapshot()
	fileSnap := idx.fileSegments.Snapshot()
	idx.segmentsLock.RUnlock()

	candidates := make([]mergepolicy.Candidate, memSnap.Len())
	for i := 0; i < memSnap.Len(); i++ {
		s := memSnap.At(i)
		candidates[i] = mergepolicy.Candidate{Size: uint64(s.Size()), Frozen: s.Frozen()}
	}

	sel, ok := mergepolicy.Select(candidates, idx.policy)
	if !ok {
		return false, nil
	}

	sources := make([]merge.Source, 0, sel.End-sel.Start+1)
	for i := sel.Start; i <= sel.End; i++ {
		sources = append(sources, memSnap.At(i))
	}

	hasNewerVersion := func(docId uint32, version uint64) bool {
		return memSnap.HasNewerVersion(docId, version) || fileSnap.HasNewerVersion(docId, version)
	}

	result, err := merge.Merge(sources, hasNewerVersion)
	if err != nil {
		return false, fmt.Errorf("merge memory segments: %w", err)
	}

	merged := memseg.FromMerge(result.Id, result.MaxCommitId, result.Docs, result.Attributes, result.Items)

	idx.memorySegmentsLock.Lock()
	idx.segmentsLock.Lock()
	idx.memorySegments.ReplaceRange(sel.Start, sel.End+1, merged, func(*memseg.MemorySegment) {})
	idx.segmentsLock.Unlock()
	idx.memorySegmentsLock.Unlock()

	if uint64(merged.Size()) >= idx.policy.MinSegmentSize {
		idx.signal(idx.wakeCheckpoint)
	}

	return true, nil
}

// doCheckpoint promotes the head of the memory segment list to a file
// segment once it has reached MinSegmentSize, per spec.md §4.8.
//
// Publishing index.dat and swapping both in-memory lists happens
// under memorySegmentsLock+fileSegmentsLock+segmentsLock held together
// (acquired in that ascending order): spec.md's own procedure text
// splits this into two critical sections, but a gap between them would
// let a concurrent file-merge publish an index.dat that is stale by
// the time this checkpoint's file segment is appended in memory. The
// mandatory lock ordering is preserved either way; only the grouping
// changes.
func (idx *Index) doCheckpoint() (bool, error) {
	memSnap := idx.memorySegments.Snapshot()
	if memSnap.Len() == 0 {
		return false, nil
	}

	head := memSnap.At(0)
	if head.Frozen() {
		return false, nil
	}
	if uint64(head.Size()) < idx.policy.MinSegmentSize {
		return false, nil
	}

	head.Freeze()

	fs, err := fileseg.Create(idx.dataDir, head.Id(), head.MaxCommitId(), head.Attributes(), head.Docs(), head.Items(), idx.cfg.BlockSize)
	if err != nil {
		return false, fmt.Errorf("build checkpoint file segment: %w", classifyIOError(err))
	}

	idx.memorySegmentsLock.Lock()
	idx.fileSegmentsLock.Lock()
	idx.segmentsLock.Lock()

	newIds := append(idx.fileSegments.Snapshot().Ids(), fs.Id())
	if err := codec.WriteIndexFile(filepath.Join(idx.dataDir, indexFileName), newIds); err != nil {
		idx.segmentsLock.Unlock()
		idx.fileSegmentsLock.Unlock()
		idx.memorySegmentsLock.Unlock()
		fs.Delete()
		return false, fmt.Errorf("publish index.dat: %w", classifyIOError(err))
	}

	idx.fileSegments.Append(fs, func(f *fileseg.FileSegment) { f.Delete() })
	idx.memorySegments.RemoveHead(1)

	idx.segmentsLock.Unlock()
	idx.fileSegmentsLock.Unlock()
	idx.memorySegmentsLock.Unlock()

	if err := idx.log.Truncate(fs.MaxCommitId()); err != nil {
		return true, fmt.Errorf("truncate oplog after checkpoint: %w", err)
	}

	idx.signal(idx.wakeFileMerge)

	return true, nil
}

// maybeMergeFileSegments folds a contiguous run of file segments
// selected by the tiered merge policy into one, per spec.md §4.8.
// The merge itself runs outside every lock; the merged file is written
// under fileSegmentsLock but outside segmentsLock, so searches are not
// blocked by its I/O. Only this worker removes file segments, so its
// sources cannot disappear underneath it.
func (idx *Index) maybeMergeFileSegments() (bool, error) {
	fileSnap := idx.fileSegments.Snapshot()

	candidates := make([]mergepolicy.Candidate, fileSnap.Len())
	for i := 0; i < fileSnap.Len(); i++ {
		candidates[i] = mergepolicy.Candidate{Size: uint64(fileSnap.At(i).Size())}
	}

	sel, ok := mergepolicy.Select(candidates, idx.policy)
	if !ok {
		return false, nil
	}

	memSnap := idx.memorySegments.Snapshot()

	sources := make([]merge.Source, 0, sel.End-sel.Start+1)
	for i := sel.Start; i <= sel.End; i++ {
		sources = append(sources, fileSnap.At(i))
	}

	hasNewerVersion := func(docId uint32, version uint64) bool {
		return memSnap.HasNewerVersion(docId, version) || fileSnap.HasNewerVersion(docId, version)
	}

	result, err := merge.Merge(sources, hasNewerVersion)
	if err != nil {
		return false, fmt.Errorf("merge file segments: %w", err)
	}

	idx.fileSegmentsLock.Lock()

	merged, err := fileseg.Create(idx.dataDir, result.Id, result.MaxCommitId, result.Attributes, result.Docs, result.Items, idx.cfg.BlockSize)
	if err != nil {
		idx.fileSegmentsLock.Unlock()
		return false, fmt.Errorf("build merged file segment: %w", err)
	}

	// Re-read the id list now that fileSegmentsLock is held: a checkpoint
	// may have appended a new file segment after our initial snapshot
	// was taken. Tail appends never change what sel.Start/sel.End index
	// into, so splicing against the fresh list with the same indices is
	// still correct.
	ids := idx.fileSegments.Snapshot().Ids()
	postIds := make([]segment.Id, 0, len(ids)-(sel.End-sel.Start+1)+1)
	postIds = append(postIds, ids[:sel.Start]...)
	postIds = append(postIds, merged.Id())
	postIds = append(postIds, ids[sel.End+1:]...)

	if err := codec.WriteIndexFile(filepath.Join(idx.dataDir, indexFileName), postIds); err != nil {
		idx.fileSegmentsLock.Unlock()
		merged.Delete()
		return false, fmt.Errorf("publish merged index.dat: %w", err)
	}

	idx.segmentsLock.Lock()
	idx.fileSegments.ReplaceRange(sel.Start, sel.End+1, merged, func(f *fileseg.FileSegment) { f.Delete() })
	idx.segmentsLock.Unlock()

	idx.fileSegmentsLock.Unlock()

	return true, nil
}
