package oplog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fulldump/biff"

	"github.com/fulldump/fpindex/internal/segment"
)

// fakeUpdater records the protocol calls Write drives it through.
type fakeUpdater struct {
	prepared  []segment.Change
	committed []uint64
	cancelled int
	failApply error
}

func (u *fakeUpdater) PrepareUpdate(changes []segment.Change) (interface{}, error) {
	u.prepared = changes
	return "pending", nil
}

func (u *fakeUpdater) CommitUpdate(pending interface{}, commitId uint64) error {
	u.committed = append(u.committed, commitId)
	return nil
}

func (u *fakeUpdater) CancelUpdate(pending interface{}) {
	u.cancelled++
}

func TestWriteAndRecover(t *testing.T) {
	biff.Alternative("A written commit group replays back with Recover", func(a *biff.A) {
		dir := t.TempDir()
		o, err := Open(dir, 0, "", 0, 0)
		biff.AssertNil(err)

		u := &fakeUpdater{}
		commitId, err := o.Write([]segment.Change{segment.Insert(1, []uint32{1, 2})}, u)
		biff.AssertNil(err)
		biff.AssertEqual(commitId, uint64(1))
		biff.AssertEqualJson(u.committed, []uint64{1})
		biff.AssertNil(o.Close())

		groups, lastFile, validSize, err := Recover(dir, 0)
		biff.AssertNil(err)
		biff.AssertEqual(len(groups), 1)
		biff.AssertEqual(groups[0].CommitId, uint64(1))
		biff.AssertEqualJson(groups[0].Changes, []segment.Change{segment.Insert(1, []uint32{1, 2})})
		biff.AssertEqual(validSize > 0, true)
		biff.AssertEqual(lastFile != "", true)
	})

	biff.Alternative("Recover skips commits at or below the already-published watermark", func(a *biff.A) {
		dir := t.TempDir()
		o, err := Open(dir, 0, "", 0, 0)
		biff.AssertNil(err)

		u := &fakeUpdater{}
		o.Write([]segment.Change{segment.Insert(1, nil)}, u)
		o.Write([]segment.Change{segment.Insert(2, nil)}, u)
		biff.AssertNil(o.Close())

		groups, _, _, err := Recover(dir, 1)
		biff.AssertNil(err)
		biff.AssertEqual(len(groups), 1)
		biff.AssertEqual(groups[0].CommitId, uint64(2))
	})

	biff.Alternative("A truncated trailing partial group is ignored on recovery", func(a *biff.A) {
		dir := t.TempDir()
		o, err := Open(dir, 0, "", 0, 0)
		biff.AssertNil(err)

		u := &fakeUpdater{}
		_, err = o.Write([]segment.Change{segment.Insert(1, nil)}, u)
		biff.AssertNil(err)
		path := o.path
		biff.AssertNil(o.Close())

		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		biff.AssertNil(err)
		f.WriteString(`{"id":2,"begin":{"size":1}}` + "\n")
		f.Close()

		groups, _, _, err := Recover(dir, 0)
		biff.AssertNil(err)
		biff.AssertEqual(len(groups), 1)
		biff.AssertEqual(groups[0].CommitId, uint64(1))
	})

	biff.Alternative("Reopening resumes appending at the same commit id sequence", func(a *biff.A) {
		dir := t.TempDir()
		o, err := Open(dir, 0, "", 0, 0)
		biff.AssertNil(err)
		u := &fakeUpdater{}
		o.Write([]segment.Change{segment.Insert(1, nil)}, u)
		biff.AssertNil(o.Close())

		groups, lastFile, validSize, err := Recover(dir, 0)
		biff.AssertNil(err)

		var lastCommitId uint64
		for _, g := range groups {
			if g.CommitId > lastCommitId {
				lastCommitId = g.CommitId
			}
		}

		o2, err := Open(dir, 0, lastFile, validSize, lastCommitId)
		biff.AssertNil(err)
		commitId, err := o2.Write([]segment.Change{segment.Insert(2, nil)}, u)
		biff.AssertNil(err)
		biff.AssertEqual(commitId, uint64(2))
		biff.AssertNil(o2.Close())
	})
}

func TestRotation(t *testing.T) {
	biff.Alternative("A tiny max file size rotates to a new file on the next write", func(a *biff.A) {
		dir := t.TempDir()
		o, err := Open(dir, 1, "", 0, 0)
		biff.AssertNil(err)

		u := &fakeUpdater{}
		o.Write([]segment.Change{segment.Insert(1, nil)}, u)
		firstPath := o.path
		o.Write([]segment.Change{segment.Insert(2, nil)}, u)
		secondPath := o.path

		biff.AssertEqual(firstPath != secondPath, true)
		biff.AssertNil(o.Close())

		groups, _, _, err := Recover(dir, 0)
		biff.AssertNil(err)
		biff.AssertEqual(len(groups), 2)
	})
}

func TestTruncate(t *testing.T) {
	biff.Alternative("Truncate removes fully-checkpointed xlog files but keeps the current one", func(a *biff.A) {
		dir := t.TempDir()
		o, err := Open(dir, 1, "", 0, 0)
		biff.AssertNil(err)

		u := &fakeUpdater{}
		o.Write([]segment.Change{segment.Insert(1, nil)}, u)
		o.Write([]segment.Change{segment.Insert(2, nil)}, u)

		biff.AssertNil(o.Truncate(1))

		matches, err := filepath.Glob(filepath.Join(dir, "*.xlog"))
		biff.AssertNil(err)
		biff.AssertEqual(len(matches), 1)
		biff.AssertEqual(matches[0], o.path)

		biff.AssertNil(o.Close())
	})
}

func TestLastCommitId(t *testing.T) {
	biff.Alternative("LastCommitId tracks the most recent successful write", func(a *biff.A) {
		dir := t.TempDir()
		o, err := Open(dir, 0, "", 0, 0)
		biff.AssertNil(err)
		biff.AssertEqual(o.LastCommitId(), uint64(0))

		u := &fakeUpdater{}
		o.Write([]segment.Change{segment.Insert(1, nil)}, u)
		biff.AssertEqual(o.LastCommitId(), uint64(1))
		biff.AssertNil(o.Close())
	})
}
