package wgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapAllocateRoundsToWordsAndMarksDirty(t *testing.T) {
	h := newHeap(4096)
	a, err := h.allocate(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(heapBase), a.Offset)
	assert.Equal(t, uint64(12), a.Size)
	assert.Equal(t, []span{{start: 256, end: 268}}, h.take())
	assert.Nil(t, h.take())
}

func TestHeapTakeMergesAndWidens(t *testing.T) {
	h := newHeap(4096)
	a, err := h.allocate(16)
	require.NoError(t, err)
	b, err := h.allocate(16)
	require.NoError(t, err)
	assert.Equal(t, a.End(), b.Offset)
	assert.Equal(t, []span{{start: a.Offset, end: b.End()}}, h.take())

	require.NoError(t, h.write(a.Offset+1, []byte{1, 2}))
	require.NoError(t, h.write(b.Offset+8, []byte{3}))
	assert.Equal(t, []span{
		{start: a.Offset, end: a.Offset + 4},
		{start: b.Offset + 8, end: b.Offset + 12},
	}, h.take())
	assert.Equal(t, b.End(), h.extent())
}

func TestHeapRejectsOutOfRangeAccess(t *testing.T) {
	h := newHeap(4096)
	a, err := h.allocate(16)
	require.NoError(t, err)

	assert.Error(t, h.write(0, []byte{1}))
	assert.Error(t, h.write(a.End(), []byte{1}))
	_, err = h.bytes(a.Offset, 32)
	assert.Error(t, err)

	got, err := h.bytes(a.Offset, 16)
	require.NoError(t, err)
	assert.Len(t, got, 16)
}

func TestHeapReallocationIsZeroed(t *testing.T) {
	h := newHeap(4096)
	a, err := h.allocate(8)
	require.NoError(t, err)
	require.NoError(t, h.write(a.Offset, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}))

	h.free(a)
	b, err := h.allocate(8)
	require.NoError(t, err)
	assert.Equal(t, a.Offset, b.Offset)
	got, err := h.bytes(b.Offset, 8)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), got)
}

func TestHeapOutOfMemory(t *testing.T) {
	h := newHeap(1024)
	_, err := h.allocate(2048)
	assert.Error(t, err)
}

func TestWord(t *testing.T) {
	assert.Equal(t, uint32(64), word(256))
	assert.Equal(t, uint64(8), alignWord(5))
	assert.Equal(t, uint64(8), alignTo(5, 4))
	assert.Equal(t, uint64(4<<20), alignTo(300, heapGrowth))
}
