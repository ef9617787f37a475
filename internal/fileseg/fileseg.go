// Package fileseg implements the immutable, mmap-backed, block-indexed
// on-disk posting store described in spec.md §4.3.
package fileseg

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/edsrzf/mmap-go"

	"github.com/fulldump/fpindex/internal/codec"
	"github.com/fulldump/fpindex/internal/segment"
)

var ErrTimeout = errTimeout{}

type errTimeout struct{}

func (errTimeout) Error() string { return "search deadline exceeded" }

// FileSegment is a durable, read-only shard: a header, a CRC-checked
// metadata block, and an mmapped region of self-describing,
// snappy-compressed posting blocks.
type FileSegment struct {
	id          segment.Id
	path        string
	blockSize   uint16
	maxCommitId uint64
	attributes  map[string]uint64
	docs        *segment.DocSet

	blockFirstHash []uint32
	blockOffset    []uint64
	numItems       uint64

	file *os.File
	mm   mmap.MMap
	// blockRegion is mm sliced to start right after the metadata block.
	blockRegion []byte

	cacheMu    sync.Mutex
	cacheBlock int
	cacheItems []segment.Item
	cacheValid bool
}

// Create builds a new file segment from a sorted item stream and
// publishes it at dir/<id.Name()>, returning the opened, mmapped
// handle.
func Create(dir string, id segment.Id, maxCommitId uint64, attributes map[string]uint64, docs *segment.DocSet, items []segment.Item, blockSize uint16) (*FileSegment, error) {
	path := filepath.Join(dir, id.Name())

	blocks := codec.PackBlocks(items, blockSize)

	var blockRegion []byte
	firstHashes := make([]uint32, 0, len(blocks))
	offsets := make([]uint64, 0, len(blocks))

	for _, block := range blocks {
		offset := uint64(len(blockRegion))
		var firstHash uint32
		blockRegion, _, firstHash = codec.AppendBlock(blockRegion, block)
		firstHashes = append(firstHashes, firstHash)
		offsets = append(offsets, offset)
	}

	live := make([]uint32, 0)
	tomb := make([]uint32, 0)
	docs.Each(func(id uint32, isLive bool) {
		if isLive {
			live = append(live, id)
		} else {
			tomb = append(tomb, id)
		}
	})
	sort.Slice(live, func(i, j int) bool { return live[i] < live[j] })
	sort.Slice(tomb, func(i, j int) bool { return tomb[i] < tomb[j] })

	minDoc, maxDoc, _ := docs.Bounds()

	meta := &codec.Metadata{
		NumItems:       uint64(len(items)),
		NumBlocks:      uint32(len(blocks)),
		MinDocId:       minDoc,
		MaxDocId:       maxDoc,
		MaxCommitId:    maxCommitId,
		Attributes:     attributes,
		DocsLive:       live,
		DocsTombstone:  tomb,
		BlockFirstHash: firstHashes,
		BlockOffset:    offsets,
	}

	if err := codec.WriteSegmentFile(path, blockSize, meta, blockRegion); err != nil {
		return nil, fmt.Errorf("write segment %s: %w", id, err)
	}

	return Open(dir, id)
}

// Open loads and mmaps an existing segment file.
func Open(dir string, id segment.Id) (*FileSegment, error) {
	path := filepath.Join(dir, id.Name())

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", id, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat segment %s: %w", id, err)
	}
	if info.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("open segment %s: empty file", id)
	}

	mm, err := mmap.MapRegion(f, int(info.Size()), mmap.RDONLY, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap segment %s: %w", id, err)
	}

	if _, err := codec.ReadHeader(mm); err != nil {
		mm.Unmap()
		f.Close()
		return nil, fmt.Errorf("read header of segment %s: %w", id, err)
	}

	meta, blockRegionOffset, err := codec.ReadMetadata(mm)
	if err != nil {
		mm.Unmap()
		f.Close()
		return nil, fmt.Errorf("read metadata of segment %s: %w", id, err)
	}

	docs := segment.NewDocSet()
	for _, docId := range meta.DocsLive {
		docs.MarkLive(docId)
	}
	for _, docId := range meta.DocsTombstone {
		docs.MarkDeleted(docId)
	}

	return &FileSegment{
		id:             id,
		path:           path,
		maxCommitId:    meta.MaxCommitId,
		attributes:     meta.Attributes,
		docs:           docs,
		blockFirstHash: meta.BlockFirstHash,
		blockOffset:    meta.BlockOffset,
		numItems:       meta.NumItems,
		file:           f,
		mm:             mm,
		blockRegion:    mm[blockRegionOffset:],
		cacheBlock:     -1,
	}, nil
}

func (fs *FileSegment) Id() segment.Id                 { return fs.id }
func (fs *FileSegment) MaxCommitId() uint64            { return fs.maxCommitId }
func (fs *FileSegment) Docs() *segment.DocSet          { return fs.docs }
func (fs *FileSegment) Attributes() map[string]uint64  { return fs.attributes }
func (fs *FileSegment) Size() int                      { return int(fs.numItems) }
func (fs *FileSegment) Path() string                   { return fs.path }
func (fs *FileSegment) NumBlocks() int                 { return len(fs.blockFirstHash) }

// MaxKey returns the largest hash carried by the last block, or false
// if the segment is empty. Named after original_source's per-segment
// lastKey watermark (segment_info.h).
func (fs *FileSegment) MaxKey() (uint32, bool) {
	if len(fs.blockFirstHash) == 0 {
		return 0, false
	}
	items, err := fs.decodeBlock(len(fs.blockFirstHash) - 1)
	if err != nil || len(items) == 0 {
		return 0, false
	}
	return items[len(items)-1].Hash, true
}

// decodeBlock decodes block i, serving from the single-block cache
// when possible -- query hashes are pre-sorted, so consecutive
// queries landing in the same block are the common case.
func (fs *FileSegment) decodeBlock(i int) ([]segment.Item, error) {
	fs.cacheMu.Lock()
	defer fs.cacheMu.Unlock()

	if fs.cacheValid && fs.cacheBlock == i {
		return fs.cacheItems, nil
	}

	items, err := codec.DecodeBlockAt(fs.blockRegion, fs.blockOffset[i])
	if err != nil {
		return nil, fmt.Errorf("decode block %d of segment %s: %w", i, fs.id, err)
	}

	fs.cacheBlock = i
	fs.cacheItems = items
	fs.cacheValid = true

	return items, nil
}

// AllItems decodes every block in order and concatenates them,
// satisfying internal/merge.Source for the tiered merge's sequential
// mmap read pattern.
func (fs *FileSegment) AllItems() ([]segment.Item, error) {
	items := make([]segment.Item, 0, fs.numItems)
	for i := range fs.blockFirstHash {
		block, err := fs.decodeBlock(i)
		if err != nil {
			return nil, err
		}
		items = append(items, block...)
	}
	return items, nil
}

// blockFor returns the index of the last block whose first key is
// <= hash, or -1 if hash is smaller than every block's first key.
func (fs *FileSegment) blockFor(hash uint32) int {
	// sort.Search finds the first index for which the predicate holds;
	// we want the last index for which firstHash[i] <= hash.
	i := sort.Search(len(fs.blockFirstHash), func(i int) bool {
		return fs.blockFirstHash[i] > hash
	})
	return i - 1
}

// Search decodes one block on demand per matching query hash,
// scanning forward while subsequent blocks' first keys are still
// <= hash (a hash's postings may span several blocks, per codec.PackBlocks).
func (fs *FileSegment) Search(sortedHashes []uint32, results *segment.ResultSet, deadline time.Time) error {
	for _, hash := range sortedHashes {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrTimeout
		}

		block := fs.blockFor(hash)
		if block < 0 {
			continue
		}
		// blockFor lands on the last block starting at hash; a group that
		// spans blocks begins in an earlier one, so step back to it.
		for block > 0 && fs.blockFirstHash[block] == hash {
			block--
		}

		for block < len(fs.blockFirstHash) && fs.blockFirstHash[block] <= hash {
			items, err := fs.decodeBlock(block)
			if err != nil {
				return err
			}

			idx := sort.Search(len(items), func(i int) bool { return items[i].Hash >= hash })
			for idx < len(items) && items[idx].Hash == hash {
				results.UpsertMatch(items[idx].Id, fs.id.Version)
				idx++
			}

			if idx < len(items) {
				// This block holds hashes beyond the target, so no later
				// block can hold a posting for it.
				break
			}
			block++
		}
	}
	return nil
}

func (fs *FileSegment) HasNewerVersion(docID uint32, version uint64) bool {
	if fs.id.Version <= version {
		return false
	}
	return fs.docs.Has(docID)
}

// Close unmaps and closes the underlying file without deleting it.
func (fs *FileSegment) Close() error {
	var err error
	if fs.mm != nil {
		err = fs.mm.Unmap()
	}
	if cerr := fs.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Delete closes the segment and unlinks its file. Only the
// merge/checkpoint controller may call this, after publishing an
// index.dat that no longer references this segment.
func (fs *FileSegment) Delete() error {
	if err := fs.Close(); err != nil {
		return err
	}
	return os.Remove(fs.path)
}
