package bufferpool

import "github.com/gopherdb/gopherdb/internal/storage"

// Manager is the buffer pool surface exposed to executors and the hash
// index (spec.md §6.3). Both BufferPoolManagerInstance and
// ParallelBufferPoolManager implement it.
type Manager interface {
	FetchPage(pageID uint32) (*storage.Page, error)
	NewPage() (*storage.Page, uint32, error)
	UnpinPage(pageID uint32, isDirty bool) error
	FlushPage(pageID uint32) error
	FlushAllPages() error
	DeletePage(pageID uint32) error
	PoolSize() int
}

var (
	_ Manager = (*BufferPoolManagerInstance)(nil)
	_ Manager = (*ParallelBufferPoolManager)(nil)
)
