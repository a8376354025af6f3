package bufferpool

import (
	"sync/atomic"

	"github.com/gopherdb/gopherdb/internal/storage"
)

// ParallelBufferPoolManager shards page ownership across N
// BufferPoolManagerInstances by page_id modulo N (spec.md §4.3), the way
// mnohosten-laura-db's ShardedLRUCache shards cache keys by hash modulo
// shard count — here the "hash" is simply the page id, since allocation
// already guarantees page_id mod N == owning instance index.
type ParallelBufferPoolManager struct {
	instances []*BufferPoolManagerInstance
	cursor    atomic.Uint32
}

// NewParallelBufferPoolManager builds numInstances shards, poolSize frames
// each, all backed by the same disk manager and file set (distinct
// instances only ever touch disjoint page ids, so sharing the StorageManager
// is safe: each page id belongs to exactly one instance).
func NewParallelBufferPoolManager(sm *storage.StorageManager, fs storage.FileSet, numInstances, poolSize int) *ParallelBufferPoolManager {
	instances := make([]*BufferPoolManagerInstance, numInstances)
	for i := range instances {
		instances[i] = NewBPI(sm, fs, poolSize, uint32(i), uint32(numInstances))
	}
	return &ParallelBufferPoolManager{instances: instances}
}

func (p *ParallelBufferPoolManager) NumInstances() int { return len(p.instances) }

// PoolSize returns N * pool_size (spec.md §4.3, get_pool_size).
func (p *ParallelBufferPoolManager) PoolSize() int {
	total := 0
	for _, inst := range p.instances {
		total += inst.PoolSize()
	}
	return total
}

func (p *ParallelBufferPoolManager) instanceFor(pageID uint32) *BufferPoolManagerInstance {
	return p.instances[int(pageID)%len(p.instances)]
}

func (p *ParallelBufferPoolManager) FetchPage(pageID uint32) (*storage.Page, error) {
	return p.instanceFor(pageID).FetchPage(pageID)
}

// NewPage starts from the internal cursor, tries each instance in turn, and
// returns the first success; the cursor advances by one after every call
// regardless of which instance actually served the request (spec.md §4.3).
func (p *ParallelBufferPoolManager) NewPage() (*storage.Page, uint32, error) {
	n := len(p.instances)
	if n == 0 {
		return nil, 0, ErrNoShards
	}
	start := int(p.cursor.Add(1)-1) % n

	var lastErr error
	for i := 0; i < n; i++ {
		inst := p.instances[(start+i)%n]
		pg, id, err := inst.NewPage()
		if err == nil {
			return pg, id, nil
		}
		lastErr = err
	}
	return nil, 0, lastErr
}

func (p *ParallelBufferPoolManager) UnpinPage(pageID uint32, isDirty bool) error {
	return p.instanceFor(pageID).UnpinPage(pageID, isDirty)
}

func (p *ParallelBufferPoolManager) FlushPage(pageID uint32) error {
	return p.instanceFor(pageID).FlushPage(pageID)
}

func (p *ParallelBufferPoolManager) FlushAllPages() error {
	for _, inst := range p.instances {
		if err := inst.FlushAllPages(); err != nil {
			return err
		}
	}
	return nil
}

func (p *ParallelBufferPoolManager) DeletePage(pageID uint32) error {
	return p.instanceFor(pageID).DeletePage(pageID)
}
