package memseg

import (
	"testing"
	"time"

	"github.com/fulldump/biff"

	"github.com/fulldump/fpindex/internal/segment"
)

func TestBuild_basicRecall(t *testing.T) {
	biff.Alternative("Basic recall", func(a *biff.A) {
		ms := Build(segment.FirstId(), 1, []segment.Change{
			segment.Insert(1, []uint32{1, 2, 3}),
		})

		results := segment.NewResultSet()
		biff.AssertNil(ms.Search([]uint32{1, 2, 3}, results, time.Time{}))
		results.Finish(func(uint32, uint64) bool { return false })

		got := results.Results()
		biff.AssertEqual(len(got), 1)
		biff.AssertEqual(got[0].Id, uint32(1))
		biff.AssertEqual(got[0].Score, 3)
	})
}

func TestBuild_lastWriteWinsWithinBatch(t *testing.T) {
	biff.Alternative("Last write wins within one commit", func(a *biff.A) {
		ms := Build(segment.FirstId(), 1, []segment.Change{
			segment.Insert(1, []uint32{1, 2, 3}),
			segment.Insert(1, []uint32{100, 200}),
		})

		biff.AssertEqual(len(ms.Items()), 2)
		biff.AssertEqual(ms.Docs().IsLive(1), true)
	})
}

func TestBuild_deleteMarksTombstone(t *testing.T) {
	biff.Alternative("Delete marks a tombstone, not a live entry", func(a *biff.A) {
		ms := Build(segment.FirstId(), 1, []segment.Change{
			segment.Delete(7),
		})

		biff.AssertEqual(ms.Docs().Has(7), true)
		biff.AssertEqual(ms.Docs().IsLive(7), false)
		biff.AssertEqual(ms.Docs().IsTombstone(7), true)
		biff.AssertEqual(len(ms.Items()), 0)
	})
}

func TestSearch_deadlineExceeded(t *testing.T) {
	biff.Alternative("Search reports timeout once the deadline has passed", func(a *biff.A) {
		ms := Build(segment.FirstId(), 1, []segment.Change{
			segment.Insert(1, []uint32{1, 2, 3}),
		})

		results := segment.NewResultSet()
		err := ms.Search([]uint32{1, 2, 3}, results, time.Now().Add(-time.Minute))
		biff.AssertEqual(err, ErrTimeout)
	})
}

func TestFreeze(t *testing.T) {
	biff.Alternative("Freeze is one-way and idempotent", func(a *biff.A) {
		ms := Build(segment.FirstId(), 1, nil)
		biff.AssertEqual(ms.Frozen(), false)
		ms.Freeze()
		ms.Freeze()
		biff.AssertEqual(ms.Frozen(), true)
	})
}

func TestHasNewerVersion(t *testing.T) {
	biff.Alternative("HasNewerVersion compares against this segment's own version", func(a *biff.A) {
		ms := Build(segment.Id{Version: 5}, 1, []segment.Change{
			segment.Insert(9, []uint32{1}),
		})

		biff.AssertEqual(ms.HasNewerVersion(9, 4), true)
		biff.AssertEqual(ms.HasNewerVersion(9, 5), false)
		biff.AssertEqual(ms.HasNewerVersion(100, 4), false)
	})
}
