package bufferpool

import "errors"

var (
	// ErrNoFreeFrame is returned by FetchPage/NewPage when every frame in
	// the pool is pinned and there is nothing to evict.
	ErrNoFreeFrame = errors.New("bufferpool: no free frame available")

	// ErrPageNotResident is returned by UnpinPage/FlushPage against a page
	// id that is not currently loaded into a frame.
	ErrPageNotResident = errors.New("bufferpool: page not resident")

	// ErrPagePinned is returned by DeletePage when the page is still pinned.
	ErrPagePinned = errors.New("bufferpool: page is pinned")

	// ErrNoShards is returned by the parallel pool when it was constructed
	// with zero instances.
	ErrNoShards = errors.New("bufferpool: parallel pool has no shards")
)
