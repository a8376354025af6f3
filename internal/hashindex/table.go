// Package hashindex implements the persistent extendible hash index:
// a directory page plus bucket pages, both living behind a buffer pool,
// supporting unordered Get/Insert/Remove with local splits and merges
// (spec.md §4.4).
package hashindex

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/gopherdb/gopherdb/internal/bufferpool"
	"github.com/gopherdb/gopherdb/internal/storage"
)

// defaultHash hashes a Key with fnv32a, the same hashing idiom
// mnohosten-laura-db/pkg/concurrent/sharded_lru.go uses for shard
// selection (SPEC_FULL.md DOMAIN STACK).
func defaultHash(key Key) uint32 {
	h := fnv.New32a()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(key))
	_, _ = h.Write(b[:])
	return h.Sum32()
}

// Table is the extendible hash table. mu is the table-level directory
// latch from spec.md §5 ("Directory table latch... shared during
// Get/Insert-fast/Remove, exclusive during Split/Merge").
//
// pageLocks gives each bucket page its own exclusive latch for the
// duration of a fetch-decode-mutate-encode-unpin sequence. The table
// latch alone isn't enough: two fast-path Inserts into the same bucket
// both only need the *shared* table latch (spec.md §5), so without a
// per-page latch they could decode the same bytes concurrently and one
// encode would clobber the other's write. This stands in for the
// per-frame reader/writer latch spec.md §5 describes, since the buffer
// pool interface this table is built on (internal/bufferpool.Manager)
// doesn't expose frame latches to callers.
type Table struct {
	bp              bufferpool.Manager
	mu              sync.RWMutex
	directoryPageID uint32
	maxDepth        uint32
	bucketArraySize int

	pageLocksMu sync.Mutex
	pageLocks   map[uint32]*sync.Mutex

	// HashFunc is overridable so tests can force specific directory
	// indices (e.g. spec.md §8 scenario 3's "keys hashing to 0x0, 0x4,
	// 0x8, 0xC") without depending on fnv32a's actual output.
	HashFunc func(Key) uint32
}

// lockPage acquires the per-page latch for pageID, creating it on first
// use, and returns the unlock function.
func (t *Table) lockPage(pageID uint32) func() {
	t.pageLocksMu.Lock()
	l, ok := t.pageLocks[pageID]
	if !ok {
		l = &sync.Mutex{}
		t.pageLocks[pageID] = l
	}
	t.pageLocksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// NewTable allocates a fresh directory page and one initial bucket page
// (global_depth = 0, single bucket covering every key) through bp.
// bucketArraySize <= 0 uses DefaultBucketArraySize; maxDepth == 0 uses
// MaxDirectoryDepth.
func NewTable(bp bufferpool.Manager, bucketArraySize int, maxDepth uint32) (*Table, error) {
	if maxDepth == 0 {
		maxDepth = MaxDirectoryDepth
	}
	if bucketArraySize <= 0 {
		bucketArraySize = DefaultBucketArraySize
	}

	dirPg, dirID, err := bp.NewPage()
	if err != nil {
		return nil, fmt.Errorf("hashindex: allocate directory page: %w", err)
	}

	bucketPg, bucketID, err := bp.NewPage()
	if err != nil {
		_ = bp.UnpinPage(dirID, false)
		return nil, fmt.Errorf("hashindex: allocate initial bucket page: %w", err)
	}

	dir := newDirectoryPage(dirID, maxDepth)
	dir.bucketPageIDs[0] = bucketID
	dir.localDepths[0] = 0
	dir.encode(dirPg.Buf)

	bucket := newBucketPage(bucketArraySize)
	bucket.encode(bucketPg.Buf)

	if err := bp.UnpinPage(dirID, true); err != nil {
		return nil, err
	}
	if err := bp.UnpinPage(bucketID, true); err != nil {
		return nil, err
	}

	return &Table{
		bp:              bp,
		directoryPageID: dirID,
		maxDepth:        maxDepth,
		bucketArraySize: bucketArraySize,
		pageLocks:       make(map[uint32]*sync.Mutex),
		HashFunc:        defaultHash,
	}, nil
}

func (t *Table) hash(key Key) uint32 { return t.HashFunc(key) }

func (t *Table) fetchDirectory() (*storage.Page, *directoryPage, error) {
	pg, err := t.bp.FetchPage(t.directoryPageID)
	if err != nil {
		return nil, nil, err
	}
	return pg, decodeDirectoryPage(pg.Buf, t.maxDepth), nil
}

func (t *Table) fetchBucket(pageID uint32) (*storage.Page, *bucketPage, error) {
	pg, err := t.bp.FetchPage(pageID)
	if err != nil {
		return nil, nil, err
	}
	return pg, decodeBucketPage(pg.Buf, t.bucketArraySize), nil
}

// Get returns every value stored under key. Both pages are unpinned clean
// on every return path (spec.md §4.4).
func (t *Table) Get(key Key) ([]RID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, dir, err := t.fetchDirectory()
	if err != nil {
		return nil, false
	}
	bucketID := dir.keyToPageID(t.hash(key))
	_ = t.bp.UnpinPage(t.directoryPageID, false)

	unlock := t.lockPage(bucketID)
	defer unlock()

	_, bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		return nil, false
	}
	values := bucket.getValues(key)
	_ = t.bp.UnpinPage(bucketID, false)

	return values, len(values) > 0
}

// Insert inserts (key, value) if the target bucket has room, rejecting an
// exact duplicate pair; otherwise it falls back to SplitInsert (spec.md
// §4.4).
func (t *Table) Insert(key Key, value RID) (bool, error) {
	t.mu.RLock()
	_, dir, err := t.fetchDirectory()
	if err != nil {
		t.mu.RUnlock()
		return false, err
	}
	bucketID := dir.keyToPageID(t.hash(key))
	_ = t.bp.UnpinPage(t.directoryPageID, false)

	unlockPage := t.lockPage(bucketID)

	bucketPg, bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		unlockPage()
		t.mu.RUnlock()
		return false, err
	}

	if bucket.contains(key, value) {
		_ = t.bp.UnpinPage(bucketID, false)
		unlockPage()
		t.mu.RUnlock()
		return false, nil
	}

	if !bucket.isFull() {
		ok := bucket.insert(key, value)
		bucket.encode(bucketPg.Buf)
		_ = t.bp.UnpinPage(bucketID, true)
		unlockPage()
		t.mu.RUnlock()
		return ok, nil
	}

	_ = t.bp.UnpinPage(bucketID, false)
	unlockPage()
	t.mu.RUnlock()

	return t.SplitInsert(key, value)
}

// SplitInsert grows the directory (if every slot aliasing the target
// bucket is already at global_depth), allocates a new bucket, redistributes
// the old bucket's live pairs between the two, and retries the insert —
// possibly repeatedly, if the new target is itself still full (spec.md
// §4.4). Held under the exclusive table latch throughout.
func (t *Table) SplitInsert(key Key, value RID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		dirPg, dir, err := t.fetchDirectory()
		if err != nil {
			return false, err
		}

		idx := dir.keyToDirectoryIndex(t.hash(key))
		oldBucketID := dir.bucketPageIDs[idx]

		oldPg, oldBucket, err := t.fetchBucket(oldBucketID)
		if err != nil {
			_ = t.bp.UnpinPage(t.directoryPageID, false)
			return false, err
		}

		if oldBucket.contains(key, value) {
			_ = t.bp.UnpinPage(oldBucketID, false)
			_ = t.bp.UnpinPage(t.directoryPageID, false)
			return false, nil
		}

		if !oldBucket.isFull() {
			ok := oldBucket.insert(key, value)
			oldBucket.encode(oldPg.Buf)
			_ = t.bp.UnpinPage(oldBucketID, true)
			_ = t.bp.UnpinPage(t.directoryPageID, false)
			return ok, nil
		}

		localDepth := uint32(dir.localDepths[idx])
		if localDepth == dir.globalDepth {
			if err := dir.grow(); err != nil {
				_ = t.bp.UnpinPage(oldBucketID, false)
				_ = t.bp.UnpinPage(t.directoryPageID, false)
				return false, err
			}
		}

		newBucketPg, newBucketID, err := t.bp.NewPage()
		if err != nil {
			_ = t.bp.UnpinPage(oldBucketID, false)
			_ = t.bp.UnpinPage(t.directoryPageID, false)
			return false, fmt.Errorf("hashindex: allocate split bucket: %w", err)
		}

		newLocalDepth := localDepth + 1
		newPrefix := (idx & ((1 << localDepth) - 1)) | (1 << localDepth)
		mask := uint32(1<<newLocalDepth) - 1

		size := dir.usableSize()
		for i := uint32(0); i < size; i++ {
			if dir.bucketPageIDs[i] != oldBucketID {
				continue
			}
			dir.localDepths[i] = uint8(newLocalDepth)
			if i&mask == newPrefix {
				dir.bucketPageIDs[i] = newBucketID
			}
		}

		newBucket := newBucketPage(t.bucketArraySize)
		for i := 0; i < oldBucket.capacity; i++ {
			if !oldBucket.isReadable(i) {
				continue
			}
			p := oldBucket.pairs[i]
			if t.hash(p.key)&mask == newPrefix {
				newBucket.insert(p.key, p.value)
				oldBucket.remove(p.key, p.value)
			}
		}

		oldBucket.encode(oldPg.Buf)
		newBucket.encode(newBucketPg.Buf)
		dir.encode(dirPg.Buf)

		if err := t.bp.UnpinPage(oldBucketID, true); err != nil {
			return false, err
		}
		if err := t.bp.UnpinPage(newBucketID, true); err != nil {
			return false, err
		}
		if err := t.bp.UnpinPage(t.directoryPageID, true); err != nil {
			return false, err
		}
		// Loop: re-fetch lands in whichever of the two buckets now covers
		// key; if that one is itself still full, split again.
	}
}

// Remove deletes the matching (key, value) pair. If the bucket becomes
// empty and its local_depth > 0, it releases the shared latch and calls
// Merge (spec.md §4.4).
func (t *Table) Remove(key Key, value RID) (bool, error) {
	t.mu.RLock()
	_, dir, err := t.fetchDirectory()
	if err != nil {
		t.mu.RUnlock()
		return false, err
	}
	idx := dir.keyToDirectoryIndex(t.hash(key))
	bucketID := dir.bucketPageIDs[idx]
	localDepth := dir.localDepths[idx]
	_ = t.bp.UnpinPage(t.directoryPageID, false)

	unlockPage := t.lockPage(bucketID)

	bucketPg, bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		unlockPage()
		t.mu.RUnlock()
		return false, err
	}

	removed := bucket.remove(key, value)
	if removed {
		bucket.encode(bucketPg.Buf)
	}
	becameEmpty := removed && bucket.isEmpty()
	if err := t.bp.UnpinPage(bucketID, removed); err != nil {
		unlockPage()
		t.mu.RUnlock()
		return removed, err
	}
	unlockPage()
	t.mu.RUnlock()

	if removed && becameEmpty && localDepth > 0 {
		if err := t.Merge(key); err != nil {
			return true, err
		}
	}
	return removed, nil
}

// Merge combines bucket i = KeyToDirectoryIndex(key) with its split image j
// when local_depth[i] == local_depth[j] > 0 and bucket i is empty, then
// cascades directory shrinks (but performs only this one bucket merge,
// per spec.md §4.4: "only one level of merge").
func (t *Table) Merge(key Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	dirPg, dir, err := t.fetchDirectory()
	if err != nil {
		return err
	}

	i := dir.keyToDirectoryIndex(t.hash(key))
	j := dir.splitImageIndex(i)

	if dir.localDepths[i] == 0 || dir.localDepths[i] != dir.localDepths[j] {
		return t.bp.UnpinPage(t.directoryPageID, false)
	}

	iBucketID := dir.bucketPageIDs[i]
	_, iBucket, err := t.fetchBucket(iBucketID)
	if err != nil {
		_ = t.bp.UnpinPage(t.directoryPageID, false)
		return err
	}
	empty := iBucket.isEmpty()
	if err := t.bp.UnpinPage(iBucketID, false); err != nil {
		return err
	}

	if !empty {
		return t.bp.UnpinPage(t.directoryPageID, false)
	}

	jBucketID := dir.bucketPageIDs[j]
	newLocalDepth := dir.localDepths[i] - 1

	size := dir.usableSize()
	for s := uint32(0); s < size; s++ {
		if dir.bucketPageIDs[s] == iBucketID || dir.bucketPageIDs[s] == jBucketID {
			dir.bucketPageIDs[s] = jBucketID
			dir.localDepths[s] = newLocalDepth
		}
	}

	if err := t.bp.DeletePage(iBucketID); err != nil {
		return err
	}

	for dir.globalDepth > 0 && dir.canShrink() {
		dir.shrink()
	}

	dir.encode(dirPg.Buf)
	return t.bp.UnpinPage(t.directoryPageID, true)
}
