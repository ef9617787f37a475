package fpindex

import (
	"fmt"

	"github.com/fulldump/fpindex/internal/memseg"
	"github.com/fulldump/fpindex/internal/segment"
)

// pendingUpdate is the token threaded through oplog.Updater's
// prepare/commit/cancel protocol while updateLock is held.
type pendingUpdate struct {
	changes []segment.Change
}

// Update durably appends changes to the oplog and publishes a new
// memory segment built from them. It returns once the commit is on
// disk and visible to search.
func (idx *Index) Update(changes []segment.Change) (uint64, error) {
	if idx.stopping.Load() {
		return 0, ErrNotOpen
	}
	if len(changes) == 0 {
		return 0, fmt.Errorf("%w: empty change set", ErrInvalidArgument)
	}

	commitId, err := idx.log.Write(changes, idx)
	if err != nil {
		return 0, classifyIOError(err)
	}

	idx.signal(idx.wakeMemoryMerge)

	return commitId, nil
}

// PrepareUpdate implements oplog.Updater: it takes updateLock, which
// stays held until CommitUpdate or CancelUpdate runs.
func (idx *Index) PrepareUpdate(changes []segment.Change) (interface{}, error) {
	idx.updateLock.Lock()
	return &pendingUpdate{changes: changes}, nil
}

// CommitUpdate implements oplog.Updater: it assigns the next segment
// id, builds the memory segment, publishes it, and releases
// updateLock.
func (idx *Index) CommitUpdate(pending interface{}, commitId uint64) error {
	defer idx.updateLock.Unlock()

	p := pending.(*pendingUpdate)

	idx.lastSegmentId = idx.lastSegmentId.Next()
	ms := memseg.Build(idx.lastSegmentId, commitId, p.changes)

	idx.memorySegmentsLock.Lock()
	idx.segmentsLock.Lock()
	idx.memorySegments.Append(ms, func(*memseg.MemorySegment) {})
	idx.segmentsLock.Unlock()
	idx.memorySegmentsLock.Unlock()

	return nil
}

// CancelUpdate implements oplog.Updater: the commit never happened, so
// nothing was assigned or published. Just release updateLock.
func (idx *Index) CancelUpdate(pending interface{}) {
	idx.updateLock.Unlock()
}
