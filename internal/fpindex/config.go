package fpindex

import "github.com/fulldump/fpindex/internal/mergepolicy"

// defaultBlockSize is the target size, in raw pre-compression bytes,
// of one on-disk posting block (internal/codec.PackBlocks).
const defaultBlockSize = 8192

// Config are the tunables passed to Open. Dir is the only required
// field; everything else has a workable default.
type Config struct {
	Dir    string
	Create bool

	MinSegmentSize   uint64
	MaxSegmentSize   uint64
	SegmentsPerLevel int
	SegmentsPerMerge int
	MaxSegments      int

	OplogMaxFileSize int64
	BlockSize        uint16

	WorkerPoolSize int
}

func (c Config) withDefaults() Config {
	if c.MinSegmentSize == 0 {
		c.MinSegmentSize = 1000
	}
	if c.MaxSegmentSize == 0 {
		c.MaxSegmentSize = 1_000_000_000
	}
	if c.SegmentsPerLevel == 0 {
		c.SegmentsPerLevel = 10
	}
	if c.SegmentsPerMerge == 0 {
		c.SegmentsPerMerge = 10
	}
	if c.MaxSegments == 0 {
		c.MaxSegments = 1000
	}
	if c.OplogMaxFileSize == 0 {
		c.OplogMaxFileSize = 64 * 1024 * 1024
	}
	if c.BlockSize == 0 {
		c.BlockSize = defaultBlockSize
	}
	if c.WorkerPoolSize == 0 {
		c.WorkerPoolSize = 3
	}
	return c
}

func (c Config) mergeParams() mergepolicy.Params {
	return mergepolicy.Params{
		MinSegmentSize:   c.MinSegmentSize,
		MaxSegmentSize:   c.MaxSegmentSize,
		SegmentsPerLevel: c.SegmentsPerLevel,
		SegmentsPerMerge: c.SegmentsPerMerge,
		MaxSegments:      c.MaxSegments,
	}
}
