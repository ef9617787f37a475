package fpindex

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/fulldump/biff"
)

func TestClassifyIOError(t *testing.T) {
	biff.Alternative("An ENOSPC-rooted error is rewritten to ErrOutOfSpace", func(a *biff.A) {
		wrapped := fmt.Errorf("write segment: %w", syscall.ENOSPC)
		biff.AssertEqual(classifyIOError(wrapped), ErrOutOfSpace)
	})

	biff.Alternative("An unrelated error passes through unchanged", func(a *biff.A) {
		err := fmt.Errorf("some other failure")
		biff.AssertEqual(classifyIOError(err), err)
	})

	biff.Alternative("nil passes through as nil", func(a *biff.A) {
		biff.AssertNil(classifyIOError(nil))
	})
}
