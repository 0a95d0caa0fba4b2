package vkez

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/memory"
)

// MemoryUsage is the memory class of a buffer or image.
type MemoryUsage = memory.Usage

const (
	MemoryGPUOnly   = memory.GPUOnly
	MemoryCPUOnly   = memory.CPUOnly
	MemoryCPUToGPU  = memory.CPUToGPU
	MemoryGPUToCPU  = memory.GPUToCPU
	MemoryDedicated = memory.Dedicated
)

type BufferCreateInfo struct {
	Size  uint64
	Usage driver.BufferUsage
	// QueueFamilyIndices lists the families that access the buffer. More
	// than one distinct family selects concurrent sharing.
	QueueFamilyIndices []uint32
}

// Buffer is a linear array of data bound to memory owned by the device
// allocator.
type Buffer struct {
	d       *Device
	id      uint64
	handle  driver.Buffer
	size    uint64
	usage   driver.BufferUsage
	sharing driver.SharingMode
	mem     *memory.Allocation

	life lifetime
	uses fenceSet

	stateMu sync.Mutex
	state   accessState
}

func sharingMode(families []uint32) (driver.SharingMode, []uint32) {
	fs := slices.Clone(families)
	slices.Sort(fs)
	fs = slices.Compact(fs)
	if len(fs) > 1 {
		return driver.SharingConcurrent, fs
	}
	return driver.SharingExclusive, nil
}

// CreateBuffer creates a buffer and binds memory of the given class to it.
func (d *Device) CreateBuffer(info *BufferCreateInfo, usage MemoryUsage) (*Buffer, error) {
	if info.Size == 0 {
		return nil, errors.Wrap(ErrValidation, "creating buffer of size 0")
	}
	sharing, families := sharingMode(info.QueueFamilyIndices)
	h, req, err := d.drv.CreateBuffer(&driver.BufferCreateInfo{
		Size:               info.Size,
		Usage:              info.Usage,
		SharingMode:        sharing,
		QueueFamilyIndices: families,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "creating buffer of %d bytes", info.Size)
	}
	mem, err := d.alloc.Allocate(req, usage, false)
	if err != nil {
		d.drv.DestroyBuffer(h)
		return nil, errors.Wrapf(err, "allocating memory for buffer of %d bytes", info.Size)
	}
	if err := d.drv.BindBufferMemory(h, mem.Memory, mem.Offset); err != nil {
		d.alloc.Free(mem)
		d.drv.DestroyBuffer(h)
		return nil, errors.Wrap(err, "binding buffer memory")
	}
	b := &Buffer{
		d:       d,
		id:      d.newID(),
		handle:  h,
		size:    info.Size,
		usage:   info.Usage,
		sharing: sharing,
		mem:     mem,
	}
	d.register(b.id, b)
	Logger().Debug("buffer created", "id", b.id, "size", info.Size, "memory", usage)
	return b, nil
}

func (b *Buffer) Handle() driver.Buffer          { return b.handle }
func (b *Buffer) Size() uint64                   { return b.size }
func (b *Buffer) Usage() driver.BufferUsage      { return b.usage }
func (b *Buffer) MemoryUsage() MemoryUsage       { return b.mem.Usage }
func (b *Buffer) Allocation() *memory.Allocation { return b.mem }

// Map returns the buffer contents in [offset, offset+size). Mapping a
// GPU-only buffer fails with ErrMemoryMapFailed.
func (b *Buffer) Map(offset, size uint64) ([]byte, error) {
	if size == driver.WholeSize {
		size = b.size - min(offset, b.size)
	}
	if offset+size > b.size {
		return nil, errors.Wrapf(ErrValidation, "mapping [%d, %d) of a %d byte buffer", offset, offset+size, b.size)
	}
	return b.d.alloc.Map(b.mem, offset, size)
}

func (b *Buffer) Unmap() { b.d.alloc.Unmap(b.mem) }

// Flush makes host writes to the range visible to the device.
func (b *Buffer) Flush(offset, size uint64) error {
	return b.d.alloc.Flush(memory.Range{Allocation: b.mem, Offset: offset, Size: size})
}

// Invalidate makes device writes to the range visible to the host.
func (b *Buffer) Invalidate(offset, size uint64) error {
	return b.d.alloc.Invalidate(memory.Range{Allocation: b.mem, Offset: offset, Size: size})
}

// Destroy releases the buffer once no submission uses it and no buffer view
// refers to it.
func (b *Buffer) Destroy() { b.life.destroy(b.release) }

func (b *Buffer) release() {
	b.d.retire.release(&b.uses, func() {
		b.d.unregister(b.id)
		b.d.drv.DestroyBuffer(b.handle)
		b.d.alloc.Free(b.mem)
	})
}
