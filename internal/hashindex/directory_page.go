package hashindex

import (
	"encoding/binary"

	"github.com/gopherdb/gopherdb/internal/storage"
)

// MaxDirectoryDepth bounds global_depth / local_depth[i] (spec.md §4.4,
// §9 "MAX_DIR_DEPTH" — named but left unvalued by the distillation). Kept
// at the original BusTub constant (DIRECTORY_ARRAY_SIZE = 1<<9 = 512), see
// SPEC_FULL.md's Supplemented features.
const MaxDirectoryDepth = 9

// directoryPage is the in-memory, decoded form of the on-disk directory
// page layout from spec.md §6.6, written after storage.HeaderSize so it
// never clobbers the common Page header (flags/page_id/lsn) that
// storage.Page.init and StorageManager.LoadPage's uninitialized-page check
// both depend on:
//
//	[page_id: u32][lsn: u32][global_depth: u32]
//	[local_depths[1<<maxDepth]: u8 each]
//	[bucket_page_ids[1<<maxDepth]: u32 each]
//
// localDepths/bucketPageIDs are always allocated at the full
// 1<<maxDepth length; only the first usableSize() == 1<<globalDepth
// entries are meaningful at any point, per spec.md §4.4's "2^global_depth
// slots" description. Growing the directory therefore never reallocates —
// it just starts treating more of the array as live and mirrors existing
// entries into the newly-live half (see grow()).
type directoryPage struct {
	pageID        uint32
	lsn           uint32
	globalDepth   uint32
	localDepths   []uint8
	bucketPageIDs []uint32
	maxDepth      uint32
}

func arraySize(maxDepth uint32) int { return 1 << maxDepth }

func newDirectoryPage(pageID uint32, maxDepth uint32) *directoryPage {
	size := arraySize(maxDepth)
	return &directoryPage{
		pageID:        pageID,
		localDepths:   make([]uint8, size),
		bucketPageIDs: make([]uint32, size),
		maxDepth:      maxDepth,
	}
}

func decodeDirectoryPage(buf []byte, maxDepth uint32) *directoryPage {
	size := arraySize(maxDepth)
	d := &directoryPage{maxDepth: maxDepth}
	off := storage.HeaderSize
	d.pageID = binary.LittleEndian.Uint32(buf[off : off+4])
	d.lsn = binary.LittleEndian.Uint32(buf[off+4 : off+8])
	d.globalDepth = binary.LittleEndian.Uint32(buf[off+8 : off+12])
	off += 12

	d.localDepths = make([]uint8, size)
	copy(d.localDepths, buf[off:off+size])
	off += size

	d.bucketPageIDs = make([]uint32, size)
	for i := 0; i < size; i++ {
		d.bucketPageIDs[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
	return d
}

// encode writes the directory payload starting at storage.HeaderSize,
// leaving the common Page header untouched — it carries the flag
// StorageManager.LoadPage uses to tell a live page from a short/zero read
// (storage.Page.IsUninitialized), which this codec must not clear.
func (d *directoryPage) encode(buf []byte) {
	for i := storage.HeaderSize; i < len(buf); i++ {
		buf[i] = 0
	}
	off := storage.HeaderSize
	binary.LittleEndian.PutUint32(buf[off:off+4], d.pageID)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], d.lsn)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], d.globalDepth)
	off += 12

	copy(buf[off:off+len(d.localDepths)], d.localDepths)
	off += len(d.localDepths)

	for _, id := range d.bucketPageIDs {
		binary.LittleEndian.PutUint32(buf[off:off+4], id)
		off += 4
	}
}

func (d *directoryPage) usableSize() uint32 { return uint32(1) << d.globalDepth }

func (d *directoryPage) keyToDirectoryIndex(hash uint32) uint32 {
	return hash & (d.usableSize() - 1)
}

func (d *directoryPage) keyToPageID(hash uint32) uint32 {
	return d.bucketPageIDs[d.keyToDirectoryIndex(hash)]
}

// splitImageIndex returns the slot that is i's merge/split partner: the
// one whose index differs only in bit (local_depth[i]-1) (spec.md §4.4).
func (d *directoryPage) splitImageIndex(i uint32) uint32 {
	ld := d.localDepths[i]
	if ld == 0 {
		return i
	}
	return i ^ (1 << (ld - 1))
}

// grow doubles the directory's usable size by mirroring every live slot's
// (local_depth, bucket_page_id) into the newly-live upper half — the
// doubling-by-copy shape original_source/.../extendible_hash_table.cpp's
// Grow uses, rather than rebuilding the array (SPEC_FULL.md, Supplemented
// features).
func (d *directoryPage) grow() error {
	if d.globalDepth >= d.maxDepth {
		return ErrDirectoryOverflow
	}
	oldSize := d.usableSize()
	d.globalDepth++
	newSize := d.usableSize()
	for i := oldSize; i < newSize; i++ {
		d.localDepths[i] = d.localDepths[i-oldSize]
		d.bucketPageIDs[i] = d.bucketPageIDs[i-oldSize]
	}
	return nil
}

// canShrink reports whether every live slot's local_depth is strictly less
// than global_depth, i.e. the directory can be halved (spec.md §4.4).
func (d *directoryPage) canShrink() bool {
	size := d.usableSize()
	for i := uint32(0); i < size; i++ {
		if uint32(d.localDepths[i]) >= d.globalDepth {
			return false
		}
	}
	return true
}

func (d *directoryPage) shrink() { d.globalDepth-- }
