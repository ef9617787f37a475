package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/fulldump/goconfig"
)

type Config struct {
	Test         string `usage:"name of the test: INSERT | SEARCH"`
	Dir          string `usage:"INSERT only: reuse an existing data directory instead of a fresh temp one"`
	N            int64  `usage:"number of documents"`
	Workers      int    `usage:"number of workers"`
	HashesPerDoc int    `usage:"fingerprint hashes per document"`
}

var cleanups []func()

func main() {

	defer func() {
		fmt.Println("Cleaning up...")
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

	c := Config{
		Test:         "insert",
		N:            1_000_000,
		Workers:      16,
		HashesPerDoc: 32,
	}
	goconfig.Read(&c)

	switch strings.ToUpper(c.Test) {
	case "INSERT":
		TestInsert(c)
	case "SEARCH":
		TestSearch(c)
	default:
		log.Fatalf("Unknown test %s", c.Test)
	}
}
