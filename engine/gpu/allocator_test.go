package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorNeverReturnsZero(t *testing.T) {
	a := NewAllocator(0, 1024)
	got, err := a.Allocate(16, 16)
	require.NoError(t, err)
	assert.NotZero(t, got.Offset)
	assert.Equal(t, uint64(0), got.Offset%16)
}

func TestAllocatorAlignmentAndNoOverlap(t *testing.T) {
	a := NewAllocator(256, 4096)
	var prev Allocation
	for i := range 8 {
		got, err := a.Allocate(uint64(10+i), 64)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), got.Offset%64)
		if i > 0 {
			assert.GreaterOrEqual(t, got.Offset, prev.End())
		}
		prev = got
	}
	assert.Equal(t, uint64(10+11+12+13+14+15+16+17), a.Used())
}

func TestAllocatorReusesFreedGap(t *testing.T) {
	a := NewAllocator(256, 1024)
	first, err := a.Allocate(64, 16)
	require.NoError(t, err)
	second, err := a.Allocate(64, 16)
	require.NoError(t, err)

	a.Free(first)
	third, err := a.Allocate(32, 16)
	require.NoError(t, err)
	assert.Equal(t, first.Offset, third.Offset)
	assert.Equal(t, second.End(), a.HighWater())
}

func TestAllocatorOutOfMemory(t *testing.T) {
	a := NewAllocator(256, 128)
	_, err := a.Allocate(100, 1)
	require.NoError(t, err)
	_, err = a.Allocate(100, 1)
	assert.ErrorIs(t, err, ErrOutOfDeviceMemory)

	_, err = a.Allocate(0, 1)
	assert.Error(t, err)
}
