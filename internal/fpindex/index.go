// Package fpindex wires internal/memseg, internal/fileseg,
// internal/seglist, internal/merge, internal/mergepolicy,
// internal/oplog and internal/scheduler into the durable, concurrent
// fingerprint index core described by spec.md §4.8.
package fpindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fulldump/fpindex/internal/codec"
	"github.com/fulldump/fpindex/internal/fileseg"
	"github.com/fulldump/fpindex/internal/memseg"
	"github.com/fulldump/fpindex/internal/mergepolicy"
	"github.com/fulldump/fpindex/internal/oplog"
	"github.com/fulldump/fpindex/internal/scheduler"
	"github.com/fulldump/fpindex/internal/seglist"
	"github.com/fulldump/fpindex/internal/segment"
)

const indexFileName = "index.dat"

// openDirs tracks which data directories currently have a live Index
// open in this process. Two Index instances mmapping and appending to
// the same oplog/segment files would corrupt both; Open refuses a
// directory already in this set instead of racing.
var openDirs = struct {
	mu  sync.Mutex
	set map[string]bool
}{set: map[string]bool{}}

func acquireDir(absDir string) error {
	openDirs.mu.Lock()
	defer openDirs.mu.Unlock()
	if openDirs.set[absDir] {
		return ErrAlreadyOpen
	}
	openDirs.set[absDir] = true
	return nil
}

func releaseDir(absDir string) {
	openDirs.mu.Lock()
	defer openDirs.mu.Unlock()
	delete(openDirs.set, absDir)
}

// Index is a single open fingerprint index rooted at one directory.
//
// Lock ordering (never acquired out of this order):
//  1. updateLock
//  2. memorySegmentsLock
//  3. fileSegmentsLock
//  4. segmentsLock
type Index struct {
	absDir   string
	dataDir  string
	oplogDir string
	closed   atomic.Bool

	cfg    Config
	policy mergepolicy.Params

	memorySegments *seglist.Manager[*memseg.MemorySegment]
	fileSegments   *seglist.Manager[*fileseg.FileSegment]

	updateLock         sync.Mutex
	memorySegmentsLock sync.Mutex
	fileSegmentsLock   sync.Mutex
	segmentsLock       sync.RWMutex

	lastSegmentId segment.Id

	log *oplog.Oplog

	scheduler *scheduler.Scheduler

	wakeCheckpoint   chan struct{}
	wakeMemoryMerge  chan struct{}
	wakeFileMerge    chan struct{}
	stopping         atomic.Bool
	workersStopCh    chan struct{}
	workersWaitGroup sync.WaitGroup
}

// Open loads dir, replaying its oplog on top of the checkpointed file
// segments. If dir has no index.dat and Create is false, it fails
// with ErrIndexNotFound.
func Open(cfg Config) (*Index, error) {
	cfg = cfg.withDefaults()

	absDir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve dir: %w", err)
	}
	if err := acquireDir(absDir); err != nil {
		return nil, err
	}
	success := false
	defer func() {
		if !success {
			releaseDir(absDir)
		}
	}()

	dataDir := filepath.Join(cfg.Dir, "data")
	oplogDir := filepath.Join(cfg.Dir, "oplog")
	indexPath := filepath.Join(dataDir, indexFileName)

	_, statErr := os.Stat(indexPath)
	exists := statErr == nil
	if !exists && !cfg.Create {
		return nil, ErrIndexNotFound
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	var fileIds []segment.Id
	if exists {
		ids, err := codec.ReadIndexFile(indexPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", indexPath, err)
		}
		fileIds = ids
	} else {
		if err := codec.WriteIndexFile(indexPath, nil); err != nil {
			return nil, fmt.Errorf("create %s: %w", indexPath, err)
		}
	}

	// Opening a segment is one open(2) + one mmap(2), independent of every
	// other segment: an index with a deep file tier (many small segments
	// not yet folded by the tiered merge policy) benefits from opening
	// them concurrently rather than one at a time.
	opened := make([]*fileseg.FileSegment, len(fileIds))
	group, groupCtx := errgroup.WithContext(context.Background())
	for i, id := range fileIds {
		i, id := i, id
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			fs, err := fileseg.Open(dataDir, id)
			if err != nil {
				return fmt.Errorf("open file segment %s: %w", id, err)
			}
			opened[i] = fs
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		for _, fs := range opened {
			if fs != nil {
				fs.Close()
			}
		}
		return nil, err
	}

	fileSegments := seglist.NewManager[*fileseg.FileSegment]()
	var lastSegmentId segment.Id
	for i, id := range fileIds {
		fileSegments.Append(opened[i], func(f *fileseg.FileSegment) { f.Delete() })
		if end := id.Version + id.IncludedMerges; end > lastSegmentId.Version+lastSegmentId.IncludedMerges {
			lastSegmentId = id
		}
	}

	maxPublishedCommitId := fileSegments.Snapshot().MaxCommitId()

	groups, lastFile, lastFileValidSize, err := oplog.Recover(oplogDir, maxPublishedCommitId)
	if err != nil {
		return nil, fmt.Errorf("recover oplog: %w", err)
	}

	memorySegments := seglist.NewManager[*memseg.MemorySegment]()
	for _, g := range groups {
		lastSegmentId = lastSegmentId.Next()
		ms := memseg.Build(lastSegmentId, g.CommitId, g.Changes)
		memorySegments.Append(ms, func(*memseg.MemorySegment) {})
	}

	replayedCommitId := maxPublishedCommitId
	for _, g := range groups {
		if g.CommitId > replayedCommitId {
			replayedCommitId = g.CommitId
		}
	}

	log, err := oplog.Open(oplogDir, cfg.OplogMaxFileSize, lastFile, lastFileValidSize, replayedCommitId)
	if err != nil {
		return nil, fmt.Errorf("open oplog: %w", err)
	}

	idx := &Index{
		absDir:         absDir,
		dataDir:        dataDir,
		oplogDir:       oplogDir,
		cfg:            cfg,
		policy:         cfg.mergeParams(),
		memorySegments: memorySegments,
		fileSegments:   fileSegments,
		lastSegmentId:  lastSegmentId,
		log:            log,
		scheduler:      scheduler.New(cfg.WorkerPoolSize),

		wakeCheckpoint:  make(chan struct{}, 1),
		wakeMemoryMerge: make(chan struct{}, 1),
		wakeFileMerge:   make(chan struct{}, 1),
		workersStopCh:   make(chan struct{}),
	}

	idx.startWorkers()

	success = true
	return idx, nil
}

// Close quiesces the background workers, attempts one last best-effort
// checkpoint, and releases every open file handle. Close is safe to
// call more than once; only the first call does any work.
func (idx *Index) Close() error {
	if idx.closed.Swap(true) {
		return nil
	}
	defer releaseDir(idx.absDir)

	idx.stopping.Store(true)
	close(idx.workersStopCh)
	idx.workersWaitGroup.Wait()
	idx.scheduler.Stop()

	idx.doCheckpoint()

	var firstErr error
	fileSnap := idx.fileSegments.Snapshot()
	for i := 0; i < fileSnap.Len(); i++ {
		if err := fileSnap.At(i).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := idx.log.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

func (idx *Index) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (idx *Index) startWorkers() {
	loops := []struct {
		wake chan struct{}
		step func() (bool, error)
	}{
		{idx.wakeMemoryMerge, idx.maybeMergeMemorySegments},
		{idx.wakeCheckpoint, idx.doCheckpoint},
		{idx.wakeFileMerge, idx.maybeMergeFileSegments},
	}

	for _, l := range loops {
		idx.workersWaitGroup.Add(1)
		go idx.workerLoop(l.wake, l.step)
	}

	// The scheduler drives the same three steps on a fixed cadence, as
	// a fallback in case an event-driven signal above was missed.
	idx.scheduler.Schedule(func(context.Context) { idx.signal(idx.wakeMemoryMerge) }, scheduler.Options{In: time.Minute, Repeat: time.Minute, Strand: "memory-merge"})
	idx.scheduler.Schedule(func(context.Context) { idx.signal(idx.wakeCheckpoint) }, scheduler.Options{In: time.Minute, Repeat: time.Minute, Strand: "checkpoint"})
	idx.scheduler.Schedule(func(context.Context) { idx.signal(idx.wakeFileMerge) }, scheduler.Options{In: time.Minute, Repeat: time.Minute, Strand: "file-merge"})
}

// workerLoop is the shared idle loop of the three background workers:
// keep calling step while it reports work done, otherwise sleep until
// woken or a minute passes. Mirrors the did-work-driven loop shape of
// cyclemanager in the weaviate example, generalized from one loop to
// three independent ones.
func (idx *Index) workerLoop(wake chan struct{}, step func() (bool, error)) {
	defer idx.workersWaitGroup.Done()

	for {
		if idx.stopping.Load() {
			return
		}

		didWork, err := step()
		if err != nil {
			logBackgroundError(err)
			select {
			case <-idx.workersStopCh:
				return
			case <-time.After(time.Minute):
			}
			continue
		}
		if didWork {
			continue
		}

		select {
		case <-idx.workersStopCh:
			return
		case <-wake:
		case <-time.After(time.Minute):
		}
	}
}

// logBackgroundError reports a background worker failure. The index
// stays available for reads on its last durable state; the worker
// backs off and retries per spec.md §7.
func logBackgroundError(err error) {
	fmt.Fprintf(os.Stderr, "fpindex: background worker error: %s\n", err)
}

func sortedUniqueHashes(hashes []uint32) []uint32 {
	if len(hashes) == 0 {
		return nil
	}
	out := append([]uint32(nil), hashes...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
