// Package codec implements the on-disk file format described in
// spec.md §4.1: the segment file header, the CRC-checked metadata
// block, the delta-varint-encoded, snappy-compressed posting blocks,
// and the index.dat segment catalog.
package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/golang/snappy"

	"github.com/fulldump/fpindex/internal/segment"
)

// ErrCorruption is returned whenever a checksum, magic number, or
// length field does not match what was written.
type ErrCorruption struct {
	Reason string
}

func (e *ErrCorruption) Error() string { return "corruption: " + e.Reason }

func corrupt(format string, args ...interface{}) error {
	return &ErrCorruption{Reason: fmt.Sprintf(format, args...)}
}

// encodeBlockBody serializes a run of sorted items as
// (num_items:u16, min_hash:u32) followed by delta-varint (hash, id)
// pairs. The hash is always delta-encoded against the previous item's
// hash; the id baseline resets to an absolute value whenever the hash
// changes, and is otherwise delta-encoded against the previous item's
// id within the same hash group.
func encodeBlockBody(items []segment.Item) []byte {
	buf := make([]byte, 0, 6+len(items)*4)

	var hdr [6]byte
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(len(items)))
	minHash := uint32(0)
	if len(items) > 0 {
		minHash = items[0].Hash
	}
	binary.LittleEndian.PutUint32(hdr[2:6], minHash)
	buf = append(buf, hdr[:]...)

	var varintBuf [binary.MaxVarintLen64]byte
	var lastHash, lastId uint32

	for _, it := range items {
		deltaHash := it.Hash - lastHash
		n := binary.PutUvarint(varintBuf[:], uint64(deltaHash))
		buf = append(buf, varintBuf[:n]...)

		if deltaHash != 0 {
			n = binary.PutUvarint(varintBuf[:], uint64(it.Id))
		} else {
			n = binary.PutUvarint(varintBuf[:], uint64(it.Id-lastId))
		}
		buf = append(buf, varintBuf[:n]...)

		lastHash, lastId = it.Hash, it.Id
	}

	return buf
}

func decodeBlockBody(body []byte) ([]segment.Item, error) {
	if len(body) < 6 {
		return nil, corrupt("block body shorter than fixed header (%d bytes)", len(body))
	}
	numItems := binary.LittleEndian.Uint16(body[0:2])
	pos := 6

	items := make([]segment.Item, 0, numItems)
	var lastHash, lastId uint32

	for i := uint16(0); i < numItems; i++ {
		deltaHash, n := binary.Uvarint(body[pos:])
		if n <= 0 {
			return nil, corrupt("truncated hash varint at item %d", i)
		}
		pos += n

		v, n := binary.Uvarint(body[pos:])
		if n <= 0 {
			return nil, corrupt("truncated id varint at item %d", i)
		}
		pos += n

		hash := lastHash + uint32(deltaHash)
		var id uint32
		if deltaHash != 0 {
			id = uint32(v)
		} else {
			id = lastId + uint32(v)
		}

		items = append(items, segment.Item{Hash: hash, Id: id})
		lastHash, lastId = hash, id
	}

	return items, nil
}

// AppendBlock compresses and appends one on-disk block record --
// [u32 compressed length][compressed payload][u32 crc32 over the two
// preceding fields] -- to buf, and returns the new buffer along with
// the number of bytes the record occupies and the block's first hash.
func AppendBlock(buf []byte, items []segment.Item) (out []byte, recordLen int, firstHash uint32) {
	if len(items) > 0 {
		firstHash = items[0].Hash
	}

	raw := encodeBlockBody(items)
	compressed := snappy.Encode(nil, raw)

	start := len(buf)
	var lenField [4]byte
	binary.LittleEndian.PutUint32(lenField[:], uint32(len(compressed)))
	buf = append(buf, lenField[:]...)
	buf = append(buf, compressed...)

	crc := crc32.ChecksumIEEE(buf[start:])
	var crcField [4]byte
	binary.LittleEndian.PutUint32(crcField[:], crc)
	buf = append(buf, crcField[:]...)

	return buf, len(buf) - start, firstHash
}

// DecodeBlockAt decodes the block record starting at byte offset
// within data (typically an mmapped block region).
func DecodeBlockAt(data []byte, offset uint64) ([]segment.Item, error) {
	if offset+4 > uint64(len(data)) {
		return nil, corrupt("block header out of range at offset %d", offset)
	}
	complen := binary.LittleEndian.Uint32(data[offset : offset+4])
	payloadStart := offset + 4
	payloadEnd := payloadStart + uint64(complen)
	if payloadEnd+4 > uint64(len(data)) {
		return nil, corrupt("block payload out of range at offset %d", offset)
	}

	crcStored := binary.LittleEndian.Uint32(data[payloadEnd : payloadEnd+4])
	crcActual := crc32.ChecksumIEEE(data[offset:payloadEnd])
	if crcStored != crcActual {
		return nil, corrupt("block crc mismatch at offset %d", offset)
	}

	raw, err := snappy.Decode(nil, data[payloadStart:payloadEnd])
	if err != nil {
		return nil, fmt.Errorf("snappy decode block at offset %d: %w", offset, err)
	}

	return decodeBlockBody(raw)
}

// ItemEncodedSize returns the number of raw (pre-compression) bytes
// item would add to a block whose running delta baseline is
// (lastHash, lastId).
func ItemEncodedSize(item segment.Item, lastHash, lastId uint32) int {
	var buf [binary.MaxVarintLen64]byte
	deltaHash := item.Hash - lastHash
	n := binary.PutUvarint(buf[:], uint64(deltaHash))
	if deltaHash != 0 {
		n += binary.PutUvarint(buf[:], uint64(item.Id))
	} else {
		n += binary.PutUvarint(buf[:], uint64(item.Id-lastId))
	}
	return n
}

// PackBlocks groups sorted items into blocks, greedily filling each
// one until the next item would overflow blockSize. A block is never
// left empty: if a single hash's postings alone exceed blockSize, the
// group spans multiple blocks, each self-describing with its own
// (num_items, min_hash) header.
func PackBlocks(items []segment.Item, blockSize uint16) [][]segment.Item {
	var blocks [][]segment.Item

	i := 0
	for i < len(items) {
		start := i
		rawSize := 6 // block header: num_items(2) + min_hash(4)
		var lastHash, lastId uint32

		for i < len(items) {
			sz := ItemEncodedSize(items[i], lastHash, lastId)
			if rawSize+sz > int(blockSize) && i > start {
				break
			}
			rawSize += sz
			lastHash, lastId = items[i].Hash, items[i].Id
			i++
		}

		blocks = append(blocks, items[start:i])
	}

	return blocks
}
