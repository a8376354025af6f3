package gopherdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopherdb/gopherdb/internal/hashindex"
	"github.com/gopherdb/gopherdb/internal/txn"
)

func TestNewEngine_DefaultsAndClose(t *testing.T) {
	eng, err := NewEngine(Options{DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 64*4, eng.BufferPool.PoolSize())
	require.NoError(t, eng.Close())
}

func TestEngine_OpenHashIndex_InsertGetAcrossEngine(t *testing.T) {
	eng, err := NewEngine(Options{DataDir: t.TempDir(), PoolSize: 16, NumShards: 2})
	require.NoError(t, err)

	idx, err := eng.OpenHashIndex(8, 4)
	require.NoError(t, err)

	ok, err := idx.Insert(hashindex.Key(42), hashindex.RID{PageID: 1, SlotNum: 0})
	require.NoError(t, err)
	assert.True(t, ok)

	values, found := idx.Get(hashindex.Key(42))
	require.True(t, found)
	assert.Equal(t, []hashindex.RID{{PageID: 1, SlotNum: 0}}, values)

	require.NoError(t, eng.Close())
}

func TestEngine_LocksAndTxnsAreWired(t *testing.T) {
	eng, err := NewEngine(Options{DataDir: t.TempDir()})
	require.NoError(t, err)

	t1 := eng.Txns.Begin(txn.RepeatableRead)
	rid := txn.RID{PageID: 5, SlotNum: 0}
	require.NoError(t, eng.Locks.LockExclusive(t1, rid))
	require.NoError(t, eng.Locks.Unlock(t1, rid))
}
