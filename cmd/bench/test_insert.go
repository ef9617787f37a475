package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fulldump/fpindex/internal/fpindex"
	"github.com/fulldump/fpindex/internal/segment"
)

func TestInsert(c Config) {

	var idx *fpindex.Index
	if c.Dir == "" {
		var stop func()
		idx, stop = OpenIndex(&c)
		defer stop()
	} else {
		var err error
		idx, err = fpindex.Open(fpindex.Config{Dir: c.Dir, Create: true, WorkerPoolSize: c.Workers})
		if err != nil {
			panic(err)
		}
		defer idx.Close()
	}

	remaining := c.N

	go func() {
		for {
			fmt.Println("remaining:", atomic.LoadInt64(&remaining))
			time.Sleep(1 * time.Second)
		}
	}()

	t0 := time.Now()
	Parallel(c.Workers, func() {
		for {
			n := atomic.AddInt64(&remaining, -1)
			if n < 0 {
				break
			}
			id := uint32(n)
			if _, err := idx.Update([]segment.Change{insertChange(id, c.HashesPerDoc)}); err != nil {
				fmt.Println("ERROR: update:", err.Error())
			}
		}
	})

	took := time.Since(t0)
	fmt.Println("inserted:", c.N)
	fmt.Println("took:", took)
	fmt.Printf("Throughput: %.2f docs/sec\n", float64(c.N)/took.Seconds())
}
