package fileseg

import (
	"testing"
	"time"

	"github.com/fulldump/biff"

	"github.com/fulldump/fpindex/internal/segment"
)

func buildFixture(t *testing.T) (*FileSegment, func()) {
	dir := t.TempDir()

	docs := segment.NewDocSet()
	docs.MarkLive(1)
	docs.MarkLive(2)
	docs.MarkDeleted(3)

	items := []segment.Item{
		{Hash: 1, Id: 1},
		{Hash: 1, Id: 2},
		{Hash: 5, Id: 1},
		{Hash: 100, Id: 2},
	}

	fs, err := Create(dir, segment.Id{Version: 1}, 4, map[string]uint64{"total": 3}, docs, items, 4096)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	return fs, func() { fs.Close() }
}

func TestCreateAndOpen(t *testing.T) {
	biff.Alternative("Create publishes a segment that Open can re-read", func(a *biff.A) {
		dir := t.TempDir()

		docs := segment.NewDocSet()
		docs.MarkLive(1)

		items := []segment.Item{{Hash: 1, Id: 1}}
		fs, err := Create(dir, segment.Id{Version: 7}, 42, map[string]uint64{"n": 1}, docs, items, 4096)
		biff.AssertNil(err)
		defer fs.Close()

		biff.AssertEqual(fs.Id(), segment.Id{Version: 7})
		biff.AssertEqual(fs.MaxCommitId(), uint64(42))
		biff.AssertEqual(fs.Size(), 1)
		biff.AssertEqual(fs.Attributes()["n"], uint64(1))

		reopened, err := Open(dir, segment.Id{Version: 7})
		biff.AssertNil(err)
		defer reopened.Close()

		biff.AssertEqual(reopened.Size(), 1)
		biff.AssertEqual(reopened.Docs().IsLive(1), true)
	})

	biff.Alternative("Opening a missing segment fails", func(a *biff.A) {
		dir := t.TempDir()
		_, err := Open(dir, segment.Id{Version: 99})
		biff.AssertEqual(err != nil, true)
	})
}

func TestSearch(t *testing.T) {
	biff.Alternative("Search finds every posting for a matched hash", func(a *biff.A) {
		fs, cleanup := buildFixture(t)
		defer cleanup()

		results := segment.NewResultSet()
		biff.AssertNil(fs.Search([]uint32{1}, results, time.Time{}))
		results.Finish(func(uint32, uint64) bool { return false })

		got := results.Results()
		biff.AssertEqual(len(got), 2)
	})

	biff.Alternative("Search across multiple hashes accumulates score per id", func(a *biff.A) {
		fs, cleanup := buildFixture(t)
		defer cleanup()

		results := segment.NewResultSet()
		biff.AssertNil(fs.Search([]uint32{1, 5}, results, time.Time{}))
		results.Finish(func(uint32, uint64) bool { return false })

		got := results.Results()
		biff.AssertEqual(got[0].Id, uint32(1))
		biff.AssertEqual(got[0].Score, 2)
	})

	biff.Alternative("A hash smaller than every block's first key matches nothing", func(a *biff.A) {
		fs, cleanup := buildFixture(t)
		defer cleanup()

		results := segment.NewResultSet()
		biff.AssertNil(fs.Search([]uint32{0}, results, time.Time{}))
		results.Finish(func(uint32, uint64) bool { return false })

		biff.AssertEqual(len(results.Results()), 0)
	})

	biff.Alternative("A hash absent from any block matches nothing", func(a *biff.A) {
		fs, cleanup := buildFixture(t)
		defer cleanup()

		results := segment.NewResultSet()
		biff.AssertNil(fs.Search([]uint32{50}, results, time.Time{}))
		results.Finish(func(uint32, uint64) bool { return false })

		biff.AssertEqual(len(results.Results()), 0)
	})

	biff.Alternative("Search reports timeout once the deadline has passed", func(a *biff.A) {
		fs, cleanup := buildFixture(t)
		defer cleanup()

		results := segment.NewResultSet()
		err := fs.Search([]uint32{1}, results, time.Now().Add(-time.Minute))
		biff.AssertEqual(err, ErrTimeout)
	})
}

func TestMaxKey(t *testing.T) {
	biff.Alternative("MaxKey returns the largest hash in the last block", func(a *biff.A) {
		fs, cleanup := buildFixture(t)
		defer cleanup()

		max, ok := fs.MaxKey()
		biff.AssertEqual(ok, true)
		biff.AssertEqual(max, uint32(100))
	})

	biff.Alternative("MaxKey reports false for an empty segment", func(a *biff.A) {
		dir := t.TempDir()
		fs, err := Create(dir, segment.Id{Version: 1}, 0, nil, segment.NewDocSet(), nil, 4096)
		biff.AssertNil(err)
		defer fs.Close()

		_, ok := fs.MaxKey()
		biff.AssertEqual(ok, false)
	})
}

func TestAllItems(t *testing.T) {
	biff.Alternative("AllItems concatenates every block in order", func(a *biff.A) {
		fs, cleanup := buildFixture(t)
		defer cleanup()

		items, err := fs.AllItems()
		biff.AssertNil(err)
		biff.AssertEqual(len(items), 4)
		for i := 1; i < len(items); i++ {
			biff.AssertEqual(segment.Less(items[i-1], items[i]) || items[i-1] == items[i], true)
		}
	})
}

func TestHasNewerVersion(t *testing.T) {
	biff.Alternative("HasNewerVersion compares the query version against this segment's own", func(a *biff.A) {
		fs, cleanup := buildFixture(t)
		defer cleanup()

		biff.AssertEqual(fs.HasNewerVersion(1, 0), true)
		biff.AssertEqual(fs.HasNewerVersion(1, 1), false)
		biff.AssertEqual(fs.HasNewerVersion(999, 0), false)
	})
}

func TestDelete(t *testing.T) {
	biff.Alternative("Delete closes the segment and unlinks its file", func(a *biff.A) {
		dir := t.TempDir()
		docs := segment.NewDocSet()
		docs.MarkLive(1)
		fs, err := Create(dir, segment.Id{Version: 1}, 1, nil, docs, []segment.Item{{Hash: 1, Id: 1}}, 4096)
		biff.AssertNil(err)

		path := fs.Path()
		biff.AssertNil(fs.Delete())

		_, err = Open(dir, segment.Id{Version: 1})
		biff.AssertEqual(err != nil, true)
		_ = path
	})
}
