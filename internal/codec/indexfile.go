package codec

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"os"

	"github.com/fulldump/fpindex/internal/segment"
)

const indexMagic uint32 = 0x46504958 // "FPIX"

// WriteIndexFile atomically replaces the data directory's index.dat
// catalog with the given ordered list of segment ids.
func WriteIndexFile(path string, ids []segment.Id) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	crc := crc32.NewIEEE()

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], indexMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(ids)))
	w.Write(hdr[:])
	crc.Write(hdr[:])

	for _, id := range ids {
		var buf [16]byte
		binary.LittleEndian.PutUint64(buf[0:8], id.Version)
		binary.LittleEndian.PutUint64(buf[8:16], id.IncludedMerges)
		w.Write(buf[:])
		crc.Write(buf[:])
	}

	var crcField [4]byte
	binary.LittleEndian.PutUint32(crcField[:], crc.Sum32())
	w.Write(crcField[:])

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}

// ReadIndexFile reads the catalog written by WriteIndexFile. A
// missing file is reported via os.IsNotExist on the returned error.
func ReadIndexFile(path string) ([]segment.Id, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 8 {
		return nil, corrupt("index.dat shorter than header")
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != indexMagic {
		return nil, corrupt("index.dat bad magic %x", magic)
	}
	count := binary.LittleEndian.Uint32(data[4:8])

	need := 8 + int(count)*16 + 4
	if len(data) < need {
		return nil, corrupt("index.dat truncated: want %d bytes, got %d", need, len(data))
	}

	ids := make([]segment.Id, count)
	pos := 8
	for i := range ids {
		ids[i] = segment.Id{
			Version:        binary.LittleEndian.Uint64(data[pos : pos+8]),
			IncludedMerges: binary.LittleEndian.Uint64(data[pos+8 : pos+16]),
		}
		pos += 16
	}

	crcStored := binary.LittleEndian.Uint32(data[pos : pos+4])
	crcActual := crc32.ChecksumIEEE(data[:pos])
	if crcStored != crcActual {
		return nil, corrupt("index.dat crc mismatch")
	}

	return ids, nil
}
