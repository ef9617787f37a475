// Package seglist implements the copy-on-write segment list described
// in spec §4.4: an immutable ordered array of reference-counted
// segment handles, atomically swapped on every mutation so that
// readers who captured a snapshot keep seeing it regardless of
// concurrent writers.
package seglist

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulldump/fpindex/internal/segment"
)

// Segment is the subset of MemorySegment/FileSegment behaviour the
// list needs in order to search and to compute shadowing.
type Segment interface {
	Id() segment.Id
	Size() int
	MaxCommitId() uint64
	HasNewerVersion(docID uint32, version uint64) bool
	Search(sortedHashes []uint32, results *segment.ResultSet, deadline time.Time) error
}

// Handle is a reference-counted pointer to a segment. The last
// Release closes it via the closer supplied at creation time -- the
// index passes FileSegment.Delete (munmap, close and unlink) for a file
// segment and a no-op for a MemorySegment.
type Handle[T Segment] struct {
	value  T
	refs   int32
	closer func(T)
}

func newHandle[T Segment](value T, closer func(T)) *Handle[T] {
	return &Handle[T]{value: value, refs: 1, closer: closer}
}

func (h *Handle[T]) Value() T { return h.value }

// Acquire takes an additional strong reference. Callers must pair
// every Acquire with a Release.
func (h *Handle[T]) Acquire() *Handle[T] {
	atomic.AddInt32(&h.refs, 1)
	return h
}

// Release drops a reference, closing the underlying segment when the
// count reaches zero.
func (h *Handle[T]) Release() {
	if atomic.AddInt32(&h.refs, -1) == 0 && h.closer != nil {
		h.closer(h.value)
	}
}

// List is an immutable, ordered snapshot of segment handles. Segment
// versions are strictly increasing from head (index 0) to tail.
type List[T Segment] struct {
	handles []*Handle[T]
}

func Empty[T Segment]() *List[T] {
	return &List[T]{}
}

func (l *List[T]) Len() int { return len(l.handles) }

func (l *List[T]) At(i int) T { return l.handles[i].value }

func (l *List[T]) Ids() []segment.Id {
	out := make([]segment.Id, len(l.handles))
	for i, h := range l.handles {
		out[i] = h.value.Id()
	}
	return out
}

func (l *List[T]) MaxCommitId() uint64 {
	var max uint64
	for _, h := range l.handles {
		if c := h.value.MaxCommitId(); c > max {
			max = c
		}
	}
	return max
}

// acquireAll grabs a temporary strong reference on every element,
// keeping them alive (and their mmaps mapped) for the duration of a
// search pass even if a concurrent merge drops them from the live
// list in the meantime.
func (l *List[T]) acquireAll() {
	for _, h := range l.handles {
		h.Acquire()
	}
}

func (l *List[T]) releaseAll() {
	for _, h := range l.handles {
		h.Release()
	}
}

// Search traverses the snapshot in order, aggregating per-id best
// version scores into results. The list is pinned (via Acquire) for
// the duration of the call so concurrent merges cannot unmap files
// out from under it.
func (l *List[T]) Search(sortedHashes []uint32, results *segment.ResultSet, deadline time.Time) error {
	l.acquireAll()
	defer l.releaseAll()

	for _, h := range l.handles {
		if err := h.value.Search(sortedHashes, results, deadline); err != nil {
			return err
		}
	}
	return nil
}

// HasNewerVersion scans from the tail while a segment's version is
// greater than version, returning true on the first hit whose docs
// set contains docID.
func (l *List[T]) HasNewerVersion(docID uint32, version uint64) bool {
	for i := len(l.handles) - 1; i >= 0; i-- {
		seg := l.handles[i].value
		if seg.Id().Version <= version {
			break
		}
		if seg.HasNewerVersion(docID, version) {
			return true
		}
	}
	return false
}

// Manager owns the atomically-swapped current List and serializes
// mutations: every list-shape mutation (Append, ReplaceRange,
// RemoveHead) holds the Manager's own mutex, and Snapshot() is never
// torn. Keeping a sequence of mutations consistent with other state
// (the index core's memory_segments_lock / file_segments_lock) is left
// to the caller.
type Manager[T Segment] struct {
	current atomic.Pointer[List[T]]
	mu      sync.Mutex
}

func NewManager[T Segment]() *Manager[T] {
	m := &Manager[T]{}
	m.current.Store(Empty[T]())
	return m
}

// Snapshot returns the current list. The returned pointer is safe to
// use after concurrent mutations -- it will simply not reflect them.
func (m *Manager[T]) Snapshot() *List[T] {
	return m.current.Load()
}

// Append adds a new segment at the tail, cloning the underlying array.
func (m *Manager[T]) Append(value T, closer func(T)) *Handle[T] {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.current.Load()
	h := newHandle(value, closer)

	next := make([]*Handle[T], len(old.handles)+1)
	copy(next, old.handles)
	next[len(old.handles)] = h

	m.current.Store(&List[T]{handles: next})
	return h
}

// ReplaceRange replaces handles[start:end] with a single new segment,
// releasing the membership reference of every replaced handle. Used
// by the merge worker to fold a contiguous run into one segment.
func (m *Manager[T]) ReplaceRange(start, end int, value T, closer func(T)) *Handle[T] {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.current.Load()
	h := newHandle(value, closer)

	next := make([]*Handle[T], 0, len(old.handles)-(end-start)+1)
	next = append(next, old.handles[:start]...)
	next = append(next, h)
	next = append(next, old.handles[end:]...)

	m.current.Store(&List[T]{handles: next})

	for _, removed := range old.handles[start:end] {
		removed.Release()
	}

	return h
}

// RemoveHead drops the first n handles, releasing their membership
// reference. Used by the checkpoint worker to retire a memory segment
// that has just become a file segment.
func (m *Manager[T]) RemoveHead(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.current.Load()
	removed := old.handles[:n]

	next := make([]*Handle[T], len(old.handles)-n)
	copy(next, old.handles[n:])
	m.current.Store(&List[T]{handles: next})

	for _, h := range removed {
		h.Release()
	}
}
