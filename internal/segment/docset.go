package segment

import "github.com/RoaringBitmap/roaring"

// DocSet is a segment's `docs` map, represented as two roaring
// bitmaps instead of a Go map: one for ids the segment marks live,
// one for ids the segment marks as tombstoned. A segment never has
// the same id in both sets. DocSet is built once, before a segment is
// published, and is read-only afterwards -- concurrent readers do not
// need to synchronize against it.
type DocSet struct {
	live      *roaring.Bitmap
	tombstone *roaring.Bitmap
}

func NewDocSet() *DocSet {
	return &DocSet{
		live:      roaring.NewBitmap(),
		tombstone: roaring.NewBitmap(),
	}
}

// MarkLive records that this segment's current, published state of id
// is "present" (an insert or overwrite).
func (d *DocSet) MarkLive(id uint32) {
	d.tombstone.Remove(id)
	d.live.Add(id)
}

// MarkDeleted records a tombstone for id.
func (d *DocSet) MarkDeleted(id uint32) {
	d.live.Remove(id)
	d.tombstone.Add(id)
}

// Has reports whether this segment carries any entry -- live or
// tombstone -- for id.
func (d *DocSet) Has(id uint32) bool {
	return d.live.Contains(id) || d.tombstone.Contains(id)
}

// IsLive reports whether this segment's entry for id, if any, is live.
func (d *DocSet) IsLive(id uint32) bool {
	return d.live.Contains(id)
}

// IsTombstone reports whether this segment's entry for id, if any, is
// a tombstone.
func (d *DocSet) IsTombstone(id uint32) bool {
	return d.tombstone.Contains(id)
}

func (d *DocSet) LiveCount() uint64 {
	return d.live.GetCardinality()
}

func (d *DocSet) TombstoneCount() uint64 {
	return d.tombstone.GetCardinality()
}

// Each calls f once per (id, isLive) entry: every live id in ascending
// order, then every tombstoned id in ascending order.
func (d *DocSet) Each(f func(id uint32, live bool)) {
	it := d.live.Iterator()
	for it.HasNext() {
		f(it.Next(), true)
	}
	it = d.tombstone.Iterator()
	for it.HasNext() {
		f(it.Next(), false)
	}
}

// Bounds returns the smallest and largest document id carried by this
// segment (live or tombstone), and whether the segment carries any
// document at all.
func (d *DocSet) Bounds() (min, max uint32, ok bool) {
	found := false
	consider := func(id uint32) {
		if !found {
			min, max = id, id
			found = true
			return
		}
		if id < min {
			min = id
		}
		if id > max {
			max = id
		}
	}
	it := d.live.Iterator()
	for it.HasNext() {
		consider(it.Next())
	}
	it = d.tombstone.Iterator()
	for it.HasNext() {
		consider(it.Next())
	}
	return min, max, found
}
