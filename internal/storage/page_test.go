package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPage_InitSetsHeader(t *testing.T) {
	buf := make([]byte, PageSize)
	p := NewPage(buf, 42)

	assert.False(t, p.IsUninitialized())
	assert.Equal(t, uint32(42), p.PageID())
	assert.Equal(t, uint32(0), p.LSN())
}

func TestPage_SetLSN(t *testing.T) {
	p := NewPage(make([]byte, PageSize), 1)
	p.SetLSN(99)
	assert.Equal(t, uint32(99), p.LSN())
}

func TestPage_ZeroBuffer_IsUninitialized(t *testing.T) {
	p := Page{Buf: make([]byte, PageSize)}
	assert.True(t, p.IsUninitialized())
}

func TestGetPutU32RoundTrip(t *testing.T) {
	b := make([]byte, 8)
	PutU32(b, 0, 0xdeadbeef)
	assert.Equal(t, uint32(0xdeadbeef), GetU32(b, 0))
}
