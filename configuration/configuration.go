package configuration

type Configuration struct {
	HttpAddr   string `usage:"HTTP address"`
	Dir        string `usage:"data directory"`
	Version    bool   `usage:"show version and exit"`
	ShowBanner bool   `usage:"show big banner"`
	ShowConfig bool   `usage:"print config"`

	MinSegmentSize   uint64 `usage:"memory segments reaching this size (postings) are checkpointed to disk; also the merge policy's smallest level size"`
	MaxSegmentSize   uint64 `usage:"segments at or above this size are never merged further"`
	SegmentsPerLevel int    `usage:"tiered merge policy fan-out per level"`
	SegmentsPerMerge int    `usage:"maximum number of segments folded into one merge"`
	MaxSegments      int    `usage:"segment count cap for each tier (memory and file) before a merge is forced"`

	OplogMaxFileSize int64  `usage:"oplog segment file rotation size, in bytes"`
	BlockSize        uint16 `usage:"target size, in bytes, of one on-disk posting block"`

	WorkerPoolSize int `usage:"number of background workers driving checkpoint and merge"`
}

// Default returns a Configuration pre-populated with the same
// defaults internal/fpindex.Config.withDefaults applies, so that
// -h/--show-config reports the values actually in effect even before
// goconfig overlays flags and environment variables.
func Default() Configuration {
	return Configuration{
		HttpAddr: ":8080",
		Dir:      "./data",

		MinSegmentSize:   1000,
		MaxSegmentSize:   1_000_000_000,
		SegmentsPerLevel: 10,
		SegmentsPerMerge: 10,
		MaxSegments:      1000,

		OplogMaxFileSize: 64 * 1024 * 1024,
		BlockSize:        8192,

		WorkerPoolSize: 3,
	}
}
