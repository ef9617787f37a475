package httpapi

import "context"

type statusResponse struct {
	Attributes     map[string]uint64 `json:"attributes"`
	MemorySegments int               `json:"memory_segments"`
	FileSegments   int               `json:"file_segments"`
}

// status handles `GET /_status`, a supplemented endpoint (spec.md's
// contract-only §6 never described one, but original_source's
// http_test.cpp exercises a status verb against a running index).
func status(ctx context.Context) (*statusResponse, error) {
	idx := getIndex(ctx)
	return &statusResponse{
		Attributes:     idx.GetAttributes(),
		MemorySegments: idx.MemorySegmentCount(),
		FileSegments:   idx.FileSegmentCount(),
	}, nil
}
