// Package scheduler implements the fixed worker-pool, priority-queue
// timer described in spec.md §4.9. The index uses it to drive the
// three background steps (checkpoint, memory-merge, file-merge) on a
// timer, as a fallback to their own event-driven wakeups.
//
// Each worker's own idle loop -- run its next due job, or sleep until
// the next one is due -- follows the same "do work while there's work,
// otherwise wait" shape as weaviate's entities/cyclemanager, scaled
// from one cooperative loop to a fixed pool of independent ones.
// container/heap is the natural fit for the per-worker priority queue;
// none of the example repos ship a generic timer heap of their own to
// borrow instead.
package scheduler

import (
	"container/heap"
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// JobID identifies a scheduled job for cancellation.
type JobID uint64

// Options configures a scheduled job.
type Options struct {
	// In delays the first run. Zero means "as soon as a worker is free".
	In time.Duration
	// Repeat re-arms the job after each run, at the same delay. Zero
	// means the job runs once.
	Repeat time.Duration
	// Strand pins every job sharing the same non-empty value to one
	// worker, so they always run one at a time and in schedule order.
	Strand string
}

type taskBox struct {
	fn func(ctx context.Context)
}

// job's task is stored behind an atomic pointer so that Cancel can
// null it out in place: the job stays in its worker's heap (preserving
// repeat cadence and (at,id) ordering) but simply does nothing next
// time it fires, with no heap surgery and no race against the worker
// that might be popping it concurrently.
type job struct {
	id     JobID
	at     time.Time
	repeat time.Duration
	task   atomic.Pointer[taskBox]
}

type jobQueue []*job

func (q jobQueue) Len() int { return len(q) }
func (q jobQueue) Less(i, j int) bool {
	if !q[i].at.Equal(q[j].at) {
		return q[i].at.Before(q[j].at)
	}
	return q[i].id < q[j].id
}
func (q jobQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *jobQueue) Push(x any)   { *q = append(*q, x.(*job)) }
func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return j
}

type worker struct {
	mu    sync.Mutex
	queue jobQueue
	wake  chan struct{}
}

// Scheduler is a fixed-size pool of worker goroutines, each with its
// own priority queue of due-time-ordered jobs.
type Scheduler struct {
	workers []*worker
	nextId  atomic.Uint64

	jobsMu sync.Mutex
	jobs   map[JobID]*job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a pool of poolSize workers. Call Stop to shut it down.
func New(poolSize int) *Scheduler {
	if poolSize < 1 {
		poolSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		jobs:   map[JobID]*job{},
		ctx:    ctx,
		cancel: cancel,
	}

	s.workers = make([]*worker, poolSize)
	for i := range s.workers {
		w := &worker{wake: make(chan struct{}, 1)}
		s.workers[i] = w
		s.wg.Add(1)
		go s.run(w)
	}

	return s
}

func (s *Scheduler) run(w *worker) {
	defer s.wg.Done()

	for {
		w.mu.Lock()
		var wait time.Duration
		if len(w.queue) == 0 {
			wait = time.Minute
		} else {
			wait = time.Until(w.queue[0].at)
		}
		w.mu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return
			case <-w.wake:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		select {
		case <-s.ctx.Done():
			return
		default:
		}

		w.mu.Lock()
		if len(w.queue) == 0 || w.queue[0].at.After(time.Now()) {
			w.mu.Unlock()
			continue
		}
		j := heap.Pop(&w.queue).(*job)
		if j.repeat > 0 {
			j.at = j.at.Add(j.repeat)
			heap.Push(&w.queue, j)
		}
		w.mu.Unlock()

		if box := j.task.Load(); box != nil {
			box.fn(s.ctx)
		}
	}
}

func (s *Scheduler) workerFor(strand string, id JobID) *worker {
	if strand == "" {
		return s.workers[uint64(id)%uint64(len(s.workers))]
	}
	h := fnv.New32a()
	h.Write([]byte(strand))
	return s.workers[int(h.Sum32())%len(s.workers)]
}

// Schedule enqueues fn per opts and returns a cancellable job id.
func (s *Scheduler) Schedule(fn func(ctx context.Context), opts Options) JobID {
	id := JobID(s.nextId.Add(1))
	w := s.workerFor(opts.Strand, id)

	j := &job{id: id, at: time.Now().Add(opts.In), repeat: opts.Repeat}
	j.task.Store(&taskBox{fn: fn})

	w.mu.Lock()
	heap.Push(&w.queue, j)
	isHead := w.queue[0] == j
	w.mu.Unlock()

	if isHead {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}

	s.jobsMu.Lock()
	s.jobs[id] = j
	s.jobsMu.Unlock()

	return id
}

// Cancel silences a scheduled job. A repeating job keeps re-arming on
// its original cadence, it just no longer does anything when it fires.
func (s *Scheduler) Cancel(id JobID) {
	s.jobsMu.Lock()
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.jobsMu.Unlock()

	if ok {
		j.task.Store(nil)
	}
}

// Stop cancels the scheduling context and waits for every worker
// goroutine to exit. In-flight job callbacks receive a cancelled
// context via their first argument.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}
