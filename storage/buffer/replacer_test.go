package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/types"
)

func TestLRUReplacerVictimOrder(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(types.FrameID(1))
	r.Unpin(types.FrameID(2))
	r.Unpin(types.FrameID(3))
	assert.EqualValues(t, 3, r.Size())

	v, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, types.FrameID(1), v, "oldest unpinned frame must be evicted first")

	v, ok = r.Victim()
	assert.True(t, ok)
	assert.Equal(t, types.FrameID(2), v)
}

func TestLRUReplacerPinRemovesFromTracking(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(types.FrameID(1))
	r.Unpin(types.FrameID(2))
	r.Pin(types.FrameID(1))
	assert.EqualValues(t, 1, r.Size())

	v, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, types.FrameID(2), v)
}

func TestLRUReplacerEmptyHasNoVictim(t *testing.T) {
	r := NewLRUReplacer(2)
	_, ok := r.Victim()
	assert.False(t, ok)
}

func TestLRUReplacerUnpinIsIdempotent(t *testing.T) {
	r := NewLRUReplacer(2)
	r.Unpin(types.FrameID(1))
	r.Unpin(types.FrameID(1))
	assert.EqualValues(t, 1, r.Size())
}

func TestLRUReplacerUnpinIgnoresOverCapacity(t *testing.T) {
	r := NewLRUReplacer(1)
	r.Unpin(types.FrameID(1))
	r.Unpin(types.FrameID(2))
	assert.EqualValues(t, 1, r.Size())
}
