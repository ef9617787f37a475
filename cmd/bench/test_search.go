package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fulldump/fpindex/internal/segment"
)

// TestSearch preloads c.N documents, then hammers Search with
// c.Workers concurrent readers cycling through the same corpus, each
// probing with the exact fingerprint of one preloaded document so
// every query is guaranteed a hit.
func TestSearch(c Config) {

	idx, stop := OpenIndex(&c)
	defer stop()

	fmt.Println("Preloading", c.N, "documents...")
	for i := int64(0); i < c.N; i++ {
		id := uint32(i)
		if _, err := idx.Update([]segment.Change{insertChange(id, c.HashesPerDoc)}); err != nil {
			panic("preload: " + err.Error())
		}
	}

	queries := c.N

	go func() {
		for {
			fmt.Println("remaining:", atomic.LoadInt64(&queries))
			time.Sleep(1 * time.Second)
		}
	}()

	t0 := time.Now()
	Parallel(c.Workers, func() {
		for {
			n := atomic.AddInt64(&queries, -1)
			if n < 0 {
				break
			}
			id := uint32(n) % uint32(c.N)
			hashes := fakeFingerprint(id, c.HashesPerDoc)
			if _, err := idx.Search(hashes, time.Now().Add(5*time.Second)); err != nil {
				fmt.Println("ERROR: search:", err.Error())
			}
		}
	})

	took := time.Since(t0)
	fmt.Println("searched:", c.N)
	fmt.Println("took:", took)
	fmt.Printf("Throughput: %.2f queries/sec\n", float64(c.N)/took.Seconds())
}
