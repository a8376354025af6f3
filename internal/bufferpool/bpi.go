// Package bufferpool implements the page-granularity buffer pool: a single
// buffer pool manager instance (BPI) backed by an LRU replacer, and a
// sharded parallel wrapper over N such instances.
package bufferpool

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gopherdb/gopherdb/internal/storage"
)

const logDebugPrefix = "bufferpool: "

// frame is one slot in the pool's fixed-size array (spec.md §3).
type frame struct {
	latch    sync.Mutex
	page     storage.Page
	pageID   uint32
	pinCount int32
	dirty    bool
}

// BufferPoolManagerInstance owns a fixed array of frames, a page-id→frame
// mapping, a free-frame list, and an LRU replacer over currently-unpinned
// frames (spec.md §4.2). Grounded on the teacher's internal/bufferpool/
// pool.go (Pool), with its CLOCK replacer and free-standing package-level
// locking replaced by the Replacer interface and per-instance state
// spec.md §4.1 calls for.
type BufferPoolManagerInstance struct {
	sm *storage.StorageManager
	fs storage.FileSet

	mu        sync.Mutex
	frames    []*frame
	pageTable map[uint32]int // page_id -> frame index
	freeList  []int
	replacer  Replacer

	instanceIndex uint32
	numInstances  uint32
	nextPageID    atomic.Uint32
}

// NewBPI constructs a pool of poolSize frames. instanceIndex/numInstances
// drive allocate_page (spec.md §6.4); a standalone BPI (not sharded by a
// ParallelBufferPoolManager) passes instanceIndex=0, numInstances=1.
func NewBPI(sm *storage.StorageManager, fs storage.FileSet, poolSize int, instanceIndex, numInstances uint32) *BufferPoolManagerInstance {
	frames := make([]*frame, poolSize)
	freeList := make([]int, poolSize)
	for i := range frames {
		frames[i] = &frame{pageID: storage.InvalidPageID}
		freeList[i] = i
	}

	bpi := &BufferPoolManagerInstance{
		sm:            sm,
		fs:            fs,
		frames:        frames,
		pageTable:     make(map[uint32]int),
		freeList:      freeList,
		replacer:      NewLRUReplacer(),
		instanceIndex: instanceIndex,
		numInstances:  numInstances,
	}
	bpi.nextPageID.Store(instanceIndex)
	return bpi
}

func (b *BufferPoolManagerInstance) PoolSize() int { return len(b.frames) }

// allocatePage returns next_page_id then advances it by numInstances, so
// page_id mod N == instanceIndex holds for every page this instance mints
// (spec.md §6.4).
func (b *BufferPoolManagerInstance) allocatePage() uint32 {
	for {
		cur := b.nextPageID.Load()
		next := cur + b.numInstances
		if b.nextPageID.CompareAndSwap(cur, next) {
			return cur
		}
	}
}

// victimLocked picks a frame to reuse: the free list first, else the
// replacer. Caller holds b.mu.
func (b *BufferPoolManagerInstance) victimLocked() (int, bool) {
	if n := len(b.freeList); n > 0 {
		idx := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		return idx, true
	}
	return b.replacer.Victim()
}

// flushFrameLocked writes a dirty frame's bytes to disk. Caller holds b.mu,
// which stays held for the duration of the write; the per-frame latch
// additionally serializes this write with FlushPage's, which writes
// without holding b.mu.
func (b *BufferPoolManagerInstance) flushFrameLocked(f *frame) error {
	pageID := f.pageID
	buf := f.page
	f.latch.Lock()
	defer f.latch.Unlock()
	if err := b.sm.SavePage(b.fs, pageID, buf); err != nil {
		return fmt.Errorf("bufferpool: flush page %d: %w", pageID, err)
	}
	f.dirty = false
	return nil
}

// FetchPage returns a pinned page, loading it from disk if not resident.
func (b *BufferPoolManagerInstance) FetchPage(pageID uint32) (*storage.Page, error) {
	b.mu.Lock()
	if idx, ok := b.pageTable[pageID]; ok {
		f := b.frames[idx]
		f.pinCount++
		b.replacer.Pin(idx)
		b.mu.Unlock()
		slog.Debug(logDebugPrefix+"fetch hit", "page_id", pageID, "pin_count", f.pinCount)
		return &f.page, nil
	}

	idx, ok := b.victimLocked()
	if !ok {
		b.mu.Unlock()
		return nil, ErrNoFreeFrame
	}
	f := b.frames[idx]
	if f.pageID != storage.InvalidPageID {
		if f.dirty {
			if err := b.flushFrameLocked(f); err != nil {
				b.mu.Unlock()
				return nil, err
			}
		}
		delete(b.pageTable, f.pageID)
	}

	loaded, err := b.sm.LoadPage(b.fs, pageID)
	if err != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("bufferpool: load page %d: %w", pageID, err)
	}
	f.page = *loaded
	f.pageID = pageID
	f.pinCount = 1
	f.dirty = false
	b.pageTable[pageID] = idx
	b.mu.Unlock()

	slog.Debug(logDebugPrefix+"fetch miss", "page_id", pageID, "frame", idx)
	return &f.page, nil
}

// NewPage allocates a fresh page id, binds it to a victim frame, and
// returns it already pinned (pin_count = 1) — resolving the spec's
// documented source ambiguity in favor of pinned-on-success (spec.md §9).
func (b *BufferPoolManagerInstance) NewPage() (*storage.Page, uint32, error) {
	b.mu.Lock()
	idx, ok := b.victimLocked()
	if !ok {
		b.mu.Unlock()
		return nil, 0, ErrNoFreeFrame
	}
	f := b.frames[idx]
	if f.pageID != storage.InvalidPageID {
		if f.dirty {
			if err := b.flushFrameLocked(f); err != nil {
				b.mu.Unlock()
				return nil, 0, err
			}
		}
		delete(b.pageTable, f.pageID)
	}

	pageID := b.allocatePage()
	buf := make([]byte, storage.PageSize)
	f.page = storage.NewPage(buf, pageID)
	f.pageID = pageID
	f.pinCount = 1
	f.dirty = false
	b.pageTable[pageID] = idx
	b.mu.Unlock()

	slog.Debug(logDebugPrefix+"new page", "page_id", pageID, "frame", idx)
	return &f.page, pageID, nil
}

// UnpinPage decrements the pin count (saturating at zero) and, once it
// reaches zero, hands the frame back to the replacer. The dirty flag is
// OR'd in; it is never cleared here.
func (b *BufferPoolManagerInstance) UnpinPage(pageID uint32, isDirty bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.pageTable[pageID]
	if !ok {
		return ErrPageNotResident
	}
	f := b.frames[idx]
	if isDirty {
		f.dirty = true
	}
	if f.pinCount > 0 {
		f.pinCount--
	}
	if f.pinCount == 0 {
		b.replacer.Unpin(idx)
	}
	return nil
}

// FlushPage writes the frame's bytes to disk unconditionally, succeeding
// iff the page is resident (spec.md §4.2).
func (b *BufferPoolManagerInstance) FlushPage(pageID uint32) error {
	b.mu.Lock()
	idx, ok := b.pageTable[pageID]
	if !ok {
		b.mu.Unlock()
		return ErrPageNotResident
	}
	f := b.frames[idx]
	pageID2 := f.pageID
	buf := f.page
	b.mu.Unlock()

	f.latch.Lock()
	defer f.latch.Unlock()
	if err := b.sm.SavePage(b.fs, pageID2, buf); err != nil {
		return fmt.Errorf("bufferpool: flush page %d: %w", pageID, err)
	}
	f.dirty = false
	return nil
}

// FlushAllPages writes every resident dirty frame; clean frames are
// skipped (spec.md §9).
func (b *BufferPoolManagerInstance) FlushAllPages() error {
	b.mu.Lock()
	dirty := make([]int, 0, len(b.pageTable))
	for _, idx := range b.pageTable {
		if b.frames[idx].dirty {
			dirty = append(dirty, idx)
		}
	}
	b.mu.Unlock()

	for _, idx := range dirty {
		f := b.frames[idx]
		b.mu.Lock()
		if err := b.flushFrameLocked(f); err != nil {
			b.mu.Unlock()
			return err
		}
		b.mu.Unlock()
	}
	return nil
}

// DeletePage removes the page from the pool and returns its frame to the
// free list. The page id is not deallocated: nothing records it as free,
// and allocatePage never hands it out again. A page that is not resident
// is considered already deleted (success). Captures
// the frame id from the page table BEFORE erasing the entry — the BPI
// source this is grounded on re-looks-up the (already erased) page id to
// find the frame to return to the replacer, which is a bug this
// implementation does not replicate (spec.md §9).
func (b *BufferPoolManagerInstance) DeletePage(pageID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.pageTable[pageID]
	if !ok {
		return nil
	}
	f := b.frames[idx]
	if f.pinCount > 0 {
		return ErrPagePinned
	}
	if f.dirty {
		if err := b.flushFrameLocked(f); err != nil {
			return err
		}
	}
	delete(b.pageTable, pageID)
	b.replacer.Pin(idx) // no-op if idx was never a replacer candidate
	f.pageID = storage.InvalidPageID
	f.dirty = false
	f.pinCount = 0
	b.freeList = append(b.freeList, idx)
	slog.Debug(logDebugPrefix+"delete page", "page_id", pageID, "frame", idx)
	return nil
}
