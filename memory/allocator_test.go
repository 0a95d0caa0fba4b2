package memory

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/driver/drivertest"
)

const allTypes = 0xf

func newAllocator(t *testing.T, blockSize uint64) (*Allocator, *drivertest.Device) {
	t.Helper()
	dev := drivertest.New()
	a := New(dev, Options{BlockSize: blockSize})
	t.Cleanup(func() {
		a.Destroy()
		assert.Zero(t, dev.Live(drivertest.KindMemory), "memory leaked")
	})
	return a, dev
}

func req(size uint64) driver.MemoryRequirements {
	return driver.MemoryRequirements{Size: size, Alignment: 16, MemoryTypeBits: allTypes}
}

func TestMemoryTypes(t *testing.T) {
	a, _ := newAllocator(t, 0)
	assert.Equal(t, []uint32{0, 2}, a.MemoryTypes(allTypes, GPUOnly))
	assert.Equal(t, []uint32{0, 2}, a.MemoryTypes(allTypes, Dedicated))
	assert.Equal(t, []uint32{1, 2}, a.MemoryTypes(allTypes, CPUOnly))
	assert.Equal(t, []uint32{2, 1, 3}, a.MemoryTypes(allTypes, CPUToGPU))
	assert.Equal(t, uint32(3), a.MemoryTypes(allTypes, GPUToCPU)[0])
	assert.Equal(t, []uint32{2}, a.MemoryTypes(0b0110, GPUOnly))
	assert.Empty(t, a.MemoryTypes(0b1010, GPUOnly))
}

func TestNoMemoryType(t *testing.T) {
	a, _ := newAllocator(t, 0)
	_, err := a.Allocate(driver.MemoryRequirements{Size: 64, MemoryTypeBits: 0b1010}, GPUOnly, false)
	assert.True(t, errors.Is(err, driver.ErrFeatureNotPresent))

	_, err = a.Allocate(driver.MemoryRequirements{MemoryTypeBits: allTypes}, GPUOnly, false)
	assert.True(t, errors.Is(err, driver.ErrValidation))
}

func TestSubAllocationSharesBlock(t *testing.T) {
	a, dev := newAllocator(t, 1<<20)

	x, err := a.Allocate(req(100), GPUOnly, false)
	require.NoError(t, err)
	y, err := a.Allocate(req(100), GPUOnly, false)
	require.NoError(t, err)

	assert.Equal(t, x.Memory, y.Memory)
	assert.False(t, x.Dedicated())
	assert.Equal(t, uint32(0), x.TypeIndex())
	// Sizes and offsets are rounded to the buffer-image granularity.
	assert.Equal(t, uint64(0), x.Offset)
	assert.Equal(t, uint64(1024), x.Size)
	assert.Equal(t, uint64(1024), y.Offset)
	assert.Equal(t, 1, dev.Created(drivertest.KindMemory))

	s := a.Stats()
	assert.Equal(t, 1, s.Blocks)
	assert.Equal(t, 2, s.Allocations)
	assert.Equal(t, uint64(1<<20), s.Reserved)
	assert.Equal(t, uint64(2048), s.Used)
}

func TestDedicatedAllocation(t *testing.T) {
	a, dev := newAllocator(t, 1<<20)

	big, err := a.Allocate(req(600<<10), GPUOnly, false)
	require.NoError(t, err)
	assert.True(t, big.Dedicated())
	assert.Equal(t, uint64(600<<10), dev.MemorySize(big.Memory))

	small, err := a.Allocate(req(64), Dedicated, false)
	require.NoError(t, err)
	assert.True(t, small.Dedicated())

	flagged, err := a.Allocate(req(64), CPUOnly, true)
	require.NoError(t, err)
	assert.True(t, flagged.Dedicated())
	assert.Equal(t, uint32(1), flagged.TypeIndex())

	assert.Equal(t, 3, a.Stats().DedicatedAllocations)
	assert.Equal(t, 0, a.Stats().Blocks)

	a.Free(big)
	assert.False(t, dev.Alive(uint64(big.Memory)))
	assert.Equal(t, 2, a.Stats().DedicatedAllocations)
}

func TestBlockRetryHalvesSize(t *testing.T) {
	a, dev := newAllocator(t, 1<<20)
	dev.FailAllocations = 2

	al, err := a.Allocate(req(4096), GPUOnly, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(256<<10), dev.MemorySize(al.Memory))
}

func TestBlockRetryRespectsDriverLimit(t *testing.T) {
	a, dev := newAllocator(t, 1<<20)
	dev.MaxAllocationSize = 512 << 10

	al, err := a.Allocate(req(4096), GPUOnly, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(512<<10), dev.MemorySize(al.Memory))
}

func TestOutOfDeviceMemory(t *testing.T) {
	a, dev := newAllocator(t, 1<<20)
	dev.FailAllocations = 1000

	_, err := a.Allocate(req(4096), GPUOnly, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, driver.ErrOutOfDeviceMemory))

	_, err = a.Allocate(req(900<<10), GPUOnly, false)
	assert.True(t, errors.Is(err, driver.ErrOutOfDeviceMemory))
	assert.Equal(t, 0, dev.Created(drivertest.KindMemory))
}

func TestFallbackToOtherMemoryType(t *testing.T) {
	a, dev := newAllocator(t, 1<<20)
	// Every attempt on type 0 fails: block, half, quarter, eighth.
	dev.FailAllocations = DefaultMaxRetries + 1

	al, err := a.Allocate(req(4096), GPUOnly, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), al.TypeIndex())
}

func TestMapGPUOnlyFails(t *testing.T) {
	a, _ := newAllocator(t, 1<<20)
	al, err := a.Allocate(req(256), GPUOnly, false)
	require.NoError(t, err)

	_, err = a.Map(al, 0, driver.WholeSize)
	assert.True(t, errors.Is(err, driver.ErrMemoryMapFailed))
	assert.False(t, al.Mapped())
}

func TestMapSharesBlockMapping(t *testing.T) {
	a, dev := newAllocator(t, 1<<20)
	x, err := a.Allocate(req(256), CPUOnly, false)
	require.NoError(t, err)
	y, err := a.Allocate(req(256), CPUOnly, false)
	require.NoError(t, err)
	require.Equal(t, x.Memory, y.Memory)

	px, err := a.Map(x, 0, driver.WholeSize)
	require.NoError(t, err)
	assert.Len(t, px, int(x.Size))
	py, err := a.Map(y, 16, 32)
	require.NoError(t, err)
	assert.Len(t, py, 32)
	assert.True(t, x.Mapped())

	copy(px, "hello")
	a.Unmap(x)
	a.Unmap(x)
	a.Unmap(y)

	again, err := a.Map(x, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(again))
	a.Unmap(x)
	assert.Empty(t, dev.Errors)

	_, err = a.Map(x, 0, x.Size+1)
	assert.True(t, errors.Is(err, driver.ErrValidation))
}

func TestFreeWhileMapped(t *testing.T) {
	a, dev := newAllocator(t, 1<<20)
	keep, err := a.Allocate(req(256), CPUOnly, false)
	require.NoError(t, err)
	x, err := a.Allocate(req(256), CPUOnly, false)
	require.NoError(t, err)

	_, err = a.Map(x, 0, driver.WholeSize)
	require.NoError(t, err)
	_, err = a.Map(x, 0, driver.WholeSize)
	require.NoError(t, err)
	a.Free(x)

	// The block was unmapped, so mapping it again must not double-map.
	_, err = a.Map(keep, 0, driver.WholeSize)
	require.NoError(t, err)
	a.Unmap(keep)
	assert.Empty(t, dev.Errors)
}

func TestFlushRanges(t *testing.T) {
	a, _ := newAllocator(t, 1<<20)

	coherent, err := a.Allocate(req(256), CPUOnly, false)
	require.NoError(t, err)
	assert.Empty(t, a.mappedRanges([]Range{{Allocation: coherent, Size: 16}}))
	assert.NoError(t, a.Flush(Range{Allocation: coherent, Size: 16}))

	_, err = a.Allocate(req(256), GPUToCPU, false)
	require.NoError(t, err)
	cached, err := a.Allocate(req(256), GPUToCPU, false)
	require.NoError(t, err)
	require.Equal(t, uint32(3), cached.TypeIndex())

	got := a.mappedRanges([]Range{{Allocation: cached, Offset: 70, Size: 10}})
	require.Len(t, got, 1)
	assert.Equal(t, driver.MappedRange{Memory: cached.Memory, Offset: cached.Offset + 64, Size: 64}, got[0])

	got = a.mappedRanges([]Range{{Allocation: cached, Offset: 0, Size: driver.WholeSize}})
	assert.Equal(t, cached.Size, got[0].Size)

	assert.NoError(t, a.Flush(Range{Allocation: cached, Offset: 3, Size: 100}))
	assert.NoError(t, a.Invalidate(Range{Allocation: cached, Offset: 0, Size: driver.WholeSize}))
}

func TestWrite(t *testing.T) {
	a, _ := newAllocator(t, 1<<20)
	al, err := a.Allocate(req(64), GPUToCPU, false)
	require.NoError(t, err)

	require.NoError(t, a.Write(al, 8, []byte{1, 2, 3}))
	assert.False(t, al.Mapped())

	data, err := a.Map(al, 8, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
	a.Unmap(al)
}

func TestFreeAndReuse(t *testing.T) {
	a, dev := newAllocator(t, 4096)

	x, err := a.Allocate(req(2048), GPUOnly, false)
	require.NoError(t, err)
	y, err := a.Allocate(req(2048), GPUOnly, false)
	require.NoError(t, err)
	z, err := a.Allocate(req(2048), GPUOnly, false)
	require.NoError(t, err)
	assert.False(t, z.Dedicated())
	assert.NotEqual(t, x.Memory, z.Memory)
	assert.Equal(t, 2, a.Stats().Blocks)

	offset := x.Offset
	a.Free(x)
	a.Free(x)
	x, err = a.Allocate(req(1000), GPUOnly, false)
	require.NoError(t, err)
	assert.Equal(t, offset, x.Offset)
	assert.Equal(t, y.Memory, x.Memory)

	// An empty block is released unless it is the last one of its type.
	a.Free(z)
	assert.Equal(t, 1, dev.Destroyed(drivertest.KindMemory))
	a.Free(x)
	a.Free(y)
	assert.Equal(t, 1, dev.Live(drivertest.KindMemory))
	assert.Equal(t, 1, a.Stats().Blocks)
	assert.Zero(t, a.Stats().Allocations)
}

// unified has no device-local memory that is not also host-visible.
var unified = []driver.MemoryType{
	{Flags: driver.MemoryDeviceLocal | driver.MemoryHostVisible | driver.MemoryHostCoherent, HeapIndex: 0},
	{Flags: driver.MemoryHostVisible | driver.MemoryHostCoherent | driver.MemoryHostCached, HeapIndex: 1},
}

func TestMapGPUOnlyFailsOnUnifiedMemory(t *testing.T) {
	dev := drivertest.New()
	dev.Properties().MemoryTypes = unified
	a := New(dev, Options{BlockSize: 1 << 20})
	t.Cleanup(a.Destroy)

	for _, u := range []Usage{GPUOnly, Dedicated} {
		al, err := a.Allocate(req(256), u, false)
		require.NoError(t, err)
		require.Equal(t, uint32(0), al.typeIndex, "lands in host-visible memory")
		assert.False(t, a.Mappable(al))
		_, err = a.Map(al, 0, driver.WholeSize)
		assert.True(t, errors.Is(err, driver.ErrMemoryMapFailed), "%s: %v", u, err)
		assert.Error(t, a.Write(al, 0, []byte{1}))
		a.Free(al)
	}

	al, err := a.Allocate(req(256), CPUToGPU, false)
	require.NoError(t, err)
	assert.True(t, a.Mappable(al))
	_, err = a.Map(al, 0, driver.WholeSize)
	require.NoError(t, err)
	a.Unmap(al)
	a.Free(al)
}
