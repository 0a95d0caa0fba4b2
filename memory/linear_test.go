package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign(t *testing.T) {
	assert.Equal(t, uint64(12), alignUp(12, 3))
	assert.Equal(t, uint64(12), alignUp(10, 3))
	assert.Equal(t, uint64(10), alignUp(10, 0))
	assert.Equal(t, uint64(256), alignUp(1, 256))
}

func TestLinearAllocator(t *testing.T) {
	a := linearAllocator{Size: 1024}

	assert.Nil(t, a.allocate(2048, 1), "larger than the block")

	first := a.allocate(512, 1)
	require.NotNil(t, first)
	assert.Nil(t, a.allocate(768, 1))

	k := a.allocate(500, 1)
	require.NotNil(t, k)
	assert.Equal(t, uint64(512), k.Offset)
	assert.Nil(t, a.allocate(50, 1))

	tail := a.allocate(5, 1)
	require.NotNil(t, tail)
	assert.Equal(t, uint64(1012), tail.Offset)
	assert.Nil(t, a.allocate(20, 1))

	require.True(t, a.free(k))
	assert.False(t, a.free(k))
	k = a.allocate(500, 1)
	require.NotNil(t, k)
	assert.Equal(t, uint64(512), k.Offset)

	require.True(t, a.free(first))
	for _, size := range []uint64{20, 40, 12} {
		assert.NotNil(t, a.allocate(size, 1), "size %d", size)
	}
	assert.Nil(t, a.allocate(500, 1))
	assert.NotNil(t, a.allocate(5, 1))
	assert.Equal(t, uint64(20+40+12+5+500+5), a.used())
}

func TestLinearAllocatorAlignment(t *testing.T) {
	a := linearAllocator{Size: 4096}
	x := a.allocate(10, 1)
	require.NotNil(t, x)
	y := a.allocate(10, 256)
	require.NotNil(t, y)
	assert.Equal(t, uint64(256), y.Offset)

	// The gap before y is reused when the alignment allows it.
	z := a.allocate(100, 16)
	require.NotNil(t, z)
	assert.Equal(t, uint64(16), z.Offset)

	a.free(x)
	a.free(y)
	a.free(z)
	assert.True(t, a.empty())
}
