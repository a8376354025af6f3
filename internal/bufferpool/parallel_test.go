package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopherdb/gopherdb/internal/storage"
)

func newTestParallelPool(t *testing.T, numInstances, poolSize int) *ParallelBufferPoolManager {
	t.Helper()
	fs := storage.LocalFileSet{Dir: t.TempDir(), Base: "segment"}
	sm := storage.NewStorageManager()
	return NewParallelBufferPoolManager(sm, fs, numInstances, poolSize)
}

func TestParallelPool_NewPage_RoundRobinsByInstanceModN(t *testing.T) {
	pool := newTestParallelPool(t, 4, 2)

	wantMod := []uint32{0, 1, 2, 3, 0, 1}
	for _, want := range wantMod {
		_, id, err := pool.NewPage()
		require.NoError(t, err)
		assert.Equal(t, want, id%4)
	}
}

func TestParallelPool_PageIDDispatchesToOwningInstance(t *testing.T) {
	pool := newTestParallelPool(t, 4, 4)

	_, id, err := pool.NewPage()
	require.NoError(t, err)

	pg, err := pool.FetchPage(id)
	require.NoError(t, err)
	assert.Equal(t, id, pg.PageID())
}

func TestParallelPool_PoolSize(t *testing.T) {
	pool := newTestParallelPool(t, 4, 2)
	assert.Equal(t, 8, pool.PoolSize())
}

func TestParallelPool_FlushAllPages(t *testing.T) {
	pool := newTestParallelPool(t, 2, 2)

	pg, id, err := pool.NewPage()
	require.NoError(t, err)
	copy(pg.Buf[storage.HeaderSize:], []byte("sharded"))
	require.NoError(t, pool.UnpinPage(id, true))

	require.NoError(t, pool.FlushAllPages())
}
