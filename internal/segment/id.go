// Package segment holds the types shared by the memory and file segment
// implementations: segment identity, the (hash,id) item, the change
// union applied by a commit, and per-document search result
// aggregation.
package segment

import "fmt"

// Id identifies a segment by the range of commit-derived versions it
// covers. A segment built from a single commit has IncludedMerges 0;
// merging a contiguous run of segments folds their ranges together.
type Id struct {
	Version        uint64
	IncludedMerges uint64
}

// FirstId is the identity assigned to the very first segment created by
// an index.
func FirstId() Id {
	return Id{Version: 1, IncludedMerges: 0}
}

// Next returns the identity of the segment that would follow this one
// in an unbroken chain of single-commit segments.
func (id Id) Next() Id {
	return Id{Version: id.Version + id.IncludedMerges + 1, IncludedMerges: 0}
}

// Merge returns the identity of a segment produced by merging the
// contiguous run [first, last].
func Merge(first, last Id) Id {
	return Id{
		Version:        first.Version,
		IncludedMerges: (last.Version + last.IncludedMerges) - first.Version,
	}
}

// Contains reports whether child's version range falls entirely
// within id's version range.
func (id Id) Contains(child Id) bool {
	return child.Version >= id.Version &&
		child.Version+child.IncludedMerges <= id.Version+id.IncludedMerges
}

// Name returns the on-disk file name for this segment, zero-padded so
// that lexicographic and numeric ordering agree.
func (id Id) Name() string {
	return fmt.Sprintf("segment_%020d_%020d.dat", id.Version, id.IncludedMerges)
}

func (id Id) String() string {
	return fmt.Sprintf("(%d+%d)", id.Version, id.IncludedMerges)
}
