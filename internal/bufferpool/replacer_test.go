package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUReplacer_VictimOrder(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	require.Equal(t, 3, r.Size())

	f, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, 1, f)

	f, ok = r.Victim()
	require.True(t, ok)
	assert.Equal(t, 2, f)

	assert.Equal(t, 1, r.Size())
}

func TestLRUReplacer_PinRemovesCandidate(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)

	f, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, 2, f)
}

func TestLRUReplacer_PinNonMember_IsNoop(t *testing.T) {
	r := NewLRUReplacer()
	r.Pin(7) // never inserted
	assert.Equal(t, 0, r.Size())
}

func TestLRUReplacer_ReUnpin_DoesNotMove(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(1) // already present, must not move to MRU end

	f, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, 1, f)
}

func TestLRUReplacer_VictimOnEmpty(t *testing.T) {
	r := NewLRUReplacer()
	_, ok := r.Victim()
	assert.False(t, ok)
}
