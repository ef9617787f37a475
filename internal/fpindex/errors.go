package fpindex

import (
	"errors"
	"syscall"
)

// Error kinds from spec.md §7, all returned by the index core itself.
// A search timeout from internal/memseg or internal/fileseg is
// translated into ErrTimeout; corruption errors from internal/codec
// have no sentinel here and pass through as returned.
var (
	ErrIndexNotFound   = errors.New("fpindex: index not found")
	ErrAlreadyOpen     = errors.New("fpindex: already open")
	ErrNotOpen         = errors.New("fpindex: not open")
	ErrInvalidArgument = errors.New("fpindex: invalid argument")
	ErrTimeout         = errors.New("fpindex: search deadline exceeded")
	ErrOutOfSpace      = errors.New("fpindex: out of disk space")
)

// classifyIOError rewrites an I/O failure from the oplog or checkpoint
// path into ErrOutOfSpace when its root cause is ENOSPC, so a caller
// can distinguish "disk full" from a generic write failure. Anything
// else passes through unchanged.
func classifyIOError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ENOSPC) {
		return ErrOutOfSpace
	}
	return err
}
