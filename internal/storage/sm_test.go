package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageManager_LoadPage_InitializesUnwrittenPage(t *testing.T) {
	fs := LocalFileSet{Dir: t.TempDir(), Base: "segment"}
	sm := NewStorageManager()

	pg, err := sm.LoadPage(fs, 3)
	require.NoError(t, err)
	assert.False(t, pg.IsUninitialized())
	assert.Equal(t, uint32(3), pg.PageID())
}

func TestStorageManager_SaveThenLoad_RoundTrips(t *testing.T) {
	fs := LocalFileSet{Dir: t.TempDir(), Base: "segment"}
	sm := NewStorageManager()

	buf := make([]byte, PageSize)
	p := NewPage(buf, 7)
	copy(p.Buf[HeaderSize:], []byte("hello extendible hash"))

	require.NoError(t, sm.SavePage(fs, 7, p))

	loaded, err := sm.LoadPage(fs, 7)
	require.NoError(t, err)
	assert.Equal(t, p.Buf, loaded.Buf)
}

func TestStorageManager_CountPages(t *testing.T) {
	fs := LocalFileSet{Dir: t.TempDir(), Base: "segment"}
	sm := NewStorageManager()

	for i := uint32(0); i < 3; i++ {
		buf := make([]byte, PageSize)
		require.NoError(t, sm.SavePage(fs, i, NewPage(buf, i)))
	}

	n, err := sm.CountPages(fs)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)
}
