package main

import (
	"math/rand"
	"os"
	"sync"

	"github.com/fulldump/fpindex/internal/fpindex"
	"github.com/fulldump/fpindex/internal/segment"
)

func Parallel(workers int, f func()) {
	wg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}
	wg.Wait()
}

func TempDir() (string, func()) {
	dir, err := os.MkdirTemp("", "fpindex_bench_*")
	if err != nil {
		panic("Could not create temp directory: " + err.Error())
	}

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

func OpenIndex(c *Config) (*fpindex.Index, func()) {
	dir, cleanup := TempDir()
	cleanups = append(cleanups, cleanup)

	idx, err := fpindex.Open(fpindex.Config{
		Dir:            dir,
		Create:         true,
		WorkerPoolSize: c.Workers,
	})
	if err != nil {
		panic("Could not open index: " + err.Error())
	}

	return idx, func() { idx.Close() }
}

// fakeFingerprint generates hashesPerDoc pseudo-random tokens for
// document id, deterministic across runs, so a SEARCH query rebuilt
// from an id matches the document preloaded under that id.
func fakeFingerprint(id uint32, hashesPerDoc int) []uint32 {
	r := rand.New(rand.NewSource(int64(id)))
	hashes := make([]uint32, hashesPerDoc)
	for i := range hashes {
		hashes[i] = r.Uint32()
	}
	return hashes
}

func insertChange(id uint32, hashesPerDoc int) segment.Change {
	return segment.Insert(id, fakeFingerprint(id, hashesPerDoc))
}
