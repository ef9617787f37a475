package codec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fulldump/biff"

	"github.com/fulldump/fpindex/internal/segment"
)

func TestBlockRoundTrip(t *testing.T) {
	biff.Alternative("A block survives encode/decode", func(a *biff.A) {
		items := []segment.Item{
			{Hash: 10, Id: 1},
			{Hash: 10, Id: 2},
			{Hash: 12, Id: 1},
			{Hash: 100, Id: 5},
		}

		buf, recordLen, firstHash := AppendBlock(nil, items)
		biff.AssertEqual(firstHash, uint32(10))
		biff.AssertEqual(len(buf), recordLen)

		got, err := DecodeBlockAt(buf, 0)
		biff.AssertNil(err)
		biff.AssertEqualJson(got, items)
	})

	biff.Alternative("An empty block decodes to zero items", func(a *biff.A) {
		buf, _, firstHash := AppendBlock(nil, nil)
		biff.AssertEqual(firstHash, uint32(0))

		got, err := DecodeBlockAt(buf, 0)
		biff.AssertNil(err)
		biff.AssertEqual(len(got), 0)
	})

	biff.Alternative("Multiple blocks appended back to back decode independently", func(a *biff.A) {
		var buf []byte
		var offsets []uint64

		groups := [][]segment.Item{
			{{Hash: 1, Id: 1}},
			{{Hash: 2, Id: 1}, {Hash: 2, Id: 2}},
		}

		for _, g := range groups {
			offsets = append(offsets, uint64(len(buf)))
			buf, _, _ = AppendBlock(buf, g)
		}

		for i, g := range groups {
			got, err := DecodeBlockAt(buf, offsets[i])
			biff.AssertNil(err)
			biff.AssertEqualJson(got, g)
		}
	})

	biff.Alternative("A corrupted crc is rejected", func(a *biff.A) {
		buf, _, _ := AppendBlock(nil, []segment.Item{{Hash: 1, Id: 1}})
		buf[len(buf)-1] ^= 0xFF

		_, err := DecodeBlockAt(buf, 0)
		biff.AssertEqual(err != nil, true)
	})
}

func TestPackBlocks(t *testing.T) {
	biff.Alternative("Items are packed greedily and every item survives", func(a *biff.A) {
		items := make([]segment.Item, 0, 500)
		for i := uint32(0); i < 500; i++ {
			items = append(items, segment.Item{Hash: i / 3, Id: i})
		}

		blocks := PackBlocks(items, 64)
		biff.AssertEqual(len(blocks) > 1, true)

		var total int
		for _, b := range blocks {
			total += len(b)
			biff.AssertEqual(len(b) > 0, true)
		}
		biff.AssertEqual(total, len(items))
	})

	biff.Alternative("A single oversized hash group spans multiple blocks", func(a *biff.A) {
		items := []segment.Item{
			{Hash: 1, Id: 1},
			{Hash: 1, Id: 2},
			{Hash: 1, Id: 3},
			{Hash: 1, Id: 4},
		}

		blocks := PackBlocks(items, 4)
		biff.AssertEqual(len(blocks), 4)
		biff.AssertEqual(len(blocks[0]), 1)
	})

	biff.Alternative("Empty input produces no blocks", func(a *biff.A) {
		blocks := PackBlocks(nil, 64)
		biff.AssertEqual(len(blocks), 0)
	})
}

func TestSegmentFileRoundTrip(t *testing.T) {
	biff.Alternative("A segment file survives write/read", func(a *biff.A) {
		dir := t.TempDir()
		path := filepath.Join(dir, "0000000001-0000000000.dat")

		items := []segment.Item{
			{Hash: 1, Id: 1},
			{Hash: 2, Id: 2},
		}
		blockRegion, _, firstHash := AppendBlock(nil, items)

		meta := &Metadata{
			NumItems:       uint64(len(items)),
			NumBlocks:      1,
			MinDocId:       1,
			MaxDocId:       2,
			MaxCommitId:    9,
			Attributes:     map[string]uint64{"tag:pop": 1},
			DocsLive:       []uint32{1, 2},
			DocsTombstone:  nil,
			BlockFirstHash: []uint32{firstHash},
			BlockOffset:    []uint64{0},
		}

		biff.AssertNil(WriteSegmentFile(path, 4096, meta, blockRegion))

		data, err := os.ReadFile(path)
		biff.AssertNil(err)

		hdr, err := ReadHeader(data)
		biff.AssertNil(err)
		biff.AssertEqual(hdr.BlockSize, uint16(4096))

		gotMeta, blockRegionOffset, err := ReadMetadata(data)
		biff.AssertNil(err)
		biff.AssertEqual(gotMeta.NumItems, meta.NumItems)
		biff.AssertEqual(gotMeta.MaxCommitId, meta.MaxCommitId)
		biff.AssertEqual(gotMeta.Attributes["tag:pop"], uint64(1))
		biff.AssertEqualJson(gotMeta.DocsLive, meta.DocsLive)

		region := data[blockRegionOffset:]
		gotItems, err := DecodeBlockAt(region, gotMeta.BlockOffset[0])
		biff.AssertNil(err)
		biff.AssertEqualJson(gotItems, items)
	})

	biff.Alternative("A bad magic number is rejected", func(a *biff.A) {
		_, err := ReadHeader([]byte{0, 0, 0, 0, 0, 0, 0, 0})
		biff.AssertEqual(err != nil, true)
	})

	biff.Alternative("A truncated header is rejected", func(a *biff.A) {
		_, err := ReadHeader([]byte{1, 2, 3})
		biff.AssertEqual(err != nil, true)
	})
}

func TestIndexFileRoundTrip(t *testing.T) {
	biff.Alternative("An index catalog survives write/read", func(a *biff.A) {
		dir := t.TempDir()
		path := filepath.Join(dir, "index.dat")

		ids := []segment.Id{
			{Version: 1},
			{Version: 2, IncludedMerges: 0},
			segment.Merge(segment.Id{Version: 3}, segment.Id{Version: 5}),
		}

		biff.AssertNil(WriteIndexFile(path, ids))

		got, err := ReadIndexFile(path)
		biff.AssertNil(err)
		biff.AssertEqualJson(got, ids)
	})

	biff.Alternative("An empty catalog round-trips to an empty list", func(a *biff.A) {
		dir := t.TempDir()
		path := filepath.Join(dir, "index.dat")

		biff.AssertNil(WriteIndexFile(path, nil))

		got, err := ReadIndexFile(path)
		biff.AssertNil(err)
		biff.AssertEqual(len(got), 0)
	})

	biff.Alternative("A missing file is reported as os.IsNotExist", func(a *biff.A) {
		_, err := ReadIndexFile("/nonexistent/index.dat")
		biff.AssertEqual(os.IsNotExist(err), true)
	})

	biff.Alternative("A corrupted crc is rejected", func(a *biff.A) {
		dir := t.TempDir()
		path := filepath.Join(dir, "index.dat")

		biff.AssertNil(WriteIndexFile(path, []segment.Id{{Version: 1}}))

		data, err := os.ReadFile(path)
		biff.AssertNil(err)
		data[len(data)-1] ^= 0xFF
		biff.AssertNil(os.WriteFile(path, data, 0644))

		_, err = ReadIndexFile(path)
		biff.AssertEqual(err != nil, true)
	})
}
