package hashindex

import (
	"encoding/binary"

	"github.com/gopherdb/gopherdb/internal/storage"
)

// Key is a fixed-width index key — the extendible hash table is unordered
// (spec.md §1 Non-goals), so a fixed 8-byte comparable value (rather than
// an arbitrary byte-sliced GenericKey as in the original C++) is enough to
// keep bucket pairs a fixed size on disk, per spec.md §6.6.
type Key uint64

// RID identifies a row the way the table heap would hand back a tuple
// location — an external-collaborator concept (spec.md §1); grounded on
// the teacher's internal/heap/tid.go (TID{PageID, Slot}), widened to a
// uint32 slot number since this index has no opinion on slot width.
type RID struct {
	PageID  uint32
	SlotNum uint32
}

type pair struct {
	key   Key
	value RID
}

const pairEncodedSize = 8 + 4 + 4 // key + PageID + SlotNum

// bucketPage is the in-memory, decoded form of the on-disk bucket layout
// from spec.md §6.6, written after storage.HeaderSize for the same reason
// directoryPage is: the common Page header it would otherwise overwrite
// carries the initialized flag StorageManager.LoadPage depends on.
//
//	[occupied[ceil(capacity/8)] bitmap][readable[ceil(capacity/8)] bitmap]
//	[array_[capacity] of (Key, RID) fixed-size pairs]
//
// occupied[i] is set once a slot has ever held a pair; readable[i] is set
// iff it currently holds a live one. readable[i] ⇒ occupied[i] is
// maintained by construction: insert sets both bits together, remove only
// clears readable (occupied stays set, matching spec.md §3's invariant and
// leaving a tombstone). insert fills the first non-readable slot, so a
// tombstoned slot is reused by a later insert; slots aren't compacted.
type bucketPage struct {
	capacity int
	occupied []byte
	readable []byte
	pairs    []pair
}

// DefaultBucketArraySize is sized to leave the bitmaps and pair array well
// within PageSize, echoing the original's own default bucket capacity.
const DefaultBucketArraySize = 496

func bitmapBytes(capacity int) int { return (capacity + 7) / 8 }

func newBucketPage(capacity int) *bucketPage {
	nb := bitmapBytes(capacity)
	return &bucketPage{
		capacity: capacity,
		occupied: make([]byte, nb),
		readable: make([]byte, nb),
		pairs:    make([]pair, capacity),
	}
}

func decodeBucketPage(buf []byte, capacity int) *bucketPage {
	nb := bitmapBytes(capacity)
	b := &bucketPage{capacity: capacity}
	base := storage.HeaderSize
	b.occupied = append([]byte(nil), buf[base:base+nb]...)
	b.readable = append([]byte(nil), buf[base+nb:base+2*nb]...)

	off := base + 2*nb
	b.pairs = make([]pair, capacity)
	for i := 0; i < capacity; i++ {
		k := binary.LittleEndian.Uint64(buf[off : off+8])
		pid := binary.LittleEndian.Uint32(buf[off+8 : off+12])
		slot := binary.LittleEndian.Uint32(buf[off+12 : off+16])
		b.pairs[i] = pair{key: Key(k), value: RID{PageID: pid, SlotNum: slot}}
		off += pairEncodedSize
	}
	return b
}

// encode writes the bucket payload starting at storage.HeaderSize, leaving
// the common Page header (and its initialized flag) untouched.
func (b *bucketPage) encode(buf []byte) {
	for i := storage.HeaderSize; i < len(buf); i++ {
		buf[i] = 0
	}
	nb := bitmapBytes(b.capacity)
	base := storage.HeaderSize
	copy(buf[base:base+nb], b.occupied)
	copy(buf[base+nb:base+2*nb], b.readable)

	off := base + 2*nb
	for _, p := range b.pairs {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(p.key))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], p.value.PageID)
		binary.LittleEndian.PutUint32(buf[off+12:off+16], p.value.SlotNum)
		off += pairEncodedSize
	}
}

func bitGet(bm []byte, i int) bool { return bm[i/8]&(1<<(uint(i)%8)) != 0 }

func bitSet(bm []byte, i int, v bool) {
	mask := byte(1 << (uint(i) % 8))
	if v {
		bm[i/8] |= mask
	} else {
		bm[i/8] &^= mask
	}
}

func (b *bucketPage) isReadable(i int) bool { return bitGet(b.readable, i) }

func (b *bucketPage) isFull() bool {
	for i := 0; i < b.capacity; i++ {
		if !b.isReadable(i) {
			return false
		}
	}
	return true
}

func (b *bucketPage) isEmpty() bool {
	for i := 0; i < b.capacity; i++ {
		if b.isReadable(i) {
			return false
		}
	}
	return true
}

func (b *bucketPage) getValues(key Key) []RID {
	var out []RID
	for i := 0; i < b.capacity; i++ {
		if b.isReadable(i) && b.pairs[i].key == key {
			out = append(out, b.pairs[i].value)
		}
	}
	return out
}

func (b *bucketPage) contains(key Key, value RID) bool {
	for i := 0; i < b.capacity; i++ {
		if b.isReadable(i) && b.pairs[i].key == key && b.pairs[i].value == value {
			return true
		}
	}
	return false
}

func (b *bucketPage) insert(key Key, value RID) bool {
	if b.contains(key, value) {
		return false
	}
	for i := 0; i < b.capacity; i++ {
		if !b.isReadable(i) {
			b.pairs[i] = pair{key: key, value: value}
			bitSet(b.occupied, i, true)
			bitSet(b.readable, i, true)
			return true
		}
	}
	return false
}

func (b *bucketPage) remove(key Key, value RID) bool {
	for i := 0; i < b.capacity; i++ {
		if b.isReadable(i) && b.pairs[i].key == key && b.pairs[i].value == value {
			bitSet(b.readable, i, false)
			return true
		}
	}
	return false
}
