// Package memory sub-allocates driver memory for buffers and images.
//
// Allocations are served from per-memory-type pools of large blocks, each
// managed by a first-fit free list. Requests above half a block, or flagged
// dedicated, get a driver allocation of their own.
package memory

import (
	"log/slog"
	"math/bits"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

// Usage is the memory class of a resource.
type Usage uint8

const (
	// GPUOnly memory is device-local and not expected to be mapped.
	GPUOnly Usage = iota
	// CPUOnly memory is host-visible and coherent; used for staging.
	CPUOnly
	// CPUToGPU memory is host-visible, device-local where available.
	CPUToGPU
	// GPUToCPU memory is host-visible and cached, for readback.
	GPUToCPU
	// Dedicated memory is device-local with an allocation of its own.
	Dedicated
)

func (u Usage) String() string {
	switch u {
	case GPUOnly:
		return "gpu-only"
	case CPUOnly:
		return "cpu-only"
	case CPUToGPU:
		return "cpu-to-gpu"
	case GPUToCPU:
		return "gpu-to-cpu"
	case Dedicated:
		return "dedicated"
	}
	return "unknown"
}

// mappable reports whether memory of class u may be mapped, regardless
// of the memory type it landed in.
func (u Usage) mappable() bool { return u != GPUOnly && u != Dedicated }

// flags returns the required, preferred and unwanted property flags.
func (u Usage) flags() (required, preferred, unwanted driver.MemoryProperty) {
	switch u {
	case CPUOnly:
		return driver.MemoryHostVisible | driver.MemoryHostCoherent, 0, driver.MemoryDeviceLocal
	case CPUToGPU:
		return driver.MemoryHostVisible, driver.MemoryDeviceLocal | driver.MemoryHostCoherent, 0
	case GPUToCPU:
		return driver.MemoryHostVisible, driver.MemoryHostCached, 0
	default:
		return driver.MemoryDeviceLocal, 0, driver.MemoryHostVisible
	}
}

// Device is the part of driver.Device the allocator needs.
type Device interface {
	Properties() *driver.Properties
	AllocateMemory(size uint64, typeIndex uint32) (driver.Memory, error)
	FreeMemory(m driver.Memory)
	MapMemory(m driver.Memory, offset, size uint64) ([]byte, error)
	UnmapMemory(m driver.Memory)
	FlushMemory(ranges []driver.MappedRange) error
	InvalidateMemory(ranges []driver.MappedRange) error
}

// Options configures an Allocator. Zero fields take the defaults.
type Options struct {
	BlockSize    uint64
	MinAlignment uint64
	MaxRetries   int
	Logger       *slog.Logger
}

const (
	DefaultBlockSize    = 64 << 20
	DefaultMinAlignment = 256
	DefaultMaxRetries   = 3

	smallHeapSize = 1 << 30
)

// Allocation is a range of driver memory owned by one resource.
type Allocation struct {
	Memory driver.Memory
	Offset uint64
	Size   uint64
	Usage  Usage

	typeIndex uint32
	block     *block
	span      *span
	mapCount  int
}

// Dedicated reports whether the allocation owns its driver memory.
func (a *Allocation) Dedicated() bool { return a.block != nil && a.block.dedicated }

// TypeIndex is the driver memory type the allocation lives in.
func (a *Allocation) TypeIndex() uint32 { return a.typeIndex }

// Mapped reports whether the allocation is currently mapped.
func (a *Allocation) Mapped() bool { return a.mapCount > 0 }

type block struct {
	linearAllocator
	memory    driver.Memory
	typeIndex uint32
	dedicated bool
	data      []byte
	mapCount  int
}

// Stats summarizes allocator usage.
type Stats struct {
	Blocks               int
	DedicatedAllocations int
	Allocations          int
	Reserved             uint64
	Used                 uint64
}

// Allocator sub-allocates driver memory. It is safe for concurrent use.
type Allocator struct {
	mu        sync.Mutex
	dev       Device
	props     *driver.Properties
	opts      Options
	log       *slog.Logger
	pools     [][]*block
	dedicated map[*block]struct{}
	count     int
}

// New creates an allocator over dev.
func New(dev Device, opts Options) *Allocator {
	if opts.BlockSize == 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.MinAlignment == 0 {
		opts.MinAlignment = DefaultMinAlignment
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	props := dev.Properties()
	return &Allocator{
		dev:       dev,
		props:     props,
		opts:      opts,
		log:       opts.Logger,
		pools:     make([][]*block, len(props.MemoryTypes)),
		dedicated: make(map[*block]struct{}),
	}
}

// MemoryTypes returns the memory type indices usable for usage among
// typeBits, best match first.
func (a *Allocator) MemoryTypes(typeBits uint32, usage Usage) []uint32 {
	required, preferred, unwanted := usage.flags()
	type candidate struct {
		index uint32
		score int
	}
	var cs []candidate
	for i, mt := range a.props.MemoryTypes {
		if typeBits&(1<<uint(i)) == 0 || mt.Flags&required != required {
			continue
		}
		score := 2*bits.OnesCount32(uint32(mt.Flags&preferred)) - bits.OnesCount32(uint32(mt.Flags&unwanted))
		cs = append(cs, candidate{uint32(i), score})
	}
	slices.SortStableFunc(cs, func(x, y candidate) int { return y.score - x.score })
	out := make([]uint32, len(cs))
	for i, c := range cs {
		out[i] = c.index
	}
	return out
}

func (a *Allocator) granule() uint64 {
	return max(a.props.Limits.BufferImageGranularity, a.opts.MinAlignment)
}

func (a *Allocator) blockSize(typeIndex uint32) uint64 {
	bs := a.opts.BlockSize
	heap := a.props.MemoryHeaps[a.props.MemoryTypes[typeIndex].HeapIndex]
	if heap.Size != 0 && heap.Size <= smallHeapSize {
		bs = min(bs, heap.Size/8)
	}
	return alignUp(bs, a.granule())
}

// Allocate reserves memory satisfying req for the given class. Requests
// larger than half a block, flagged dedicated, or of the Dedicated class
// get their own driver allocation.
func (a *Allocator) Allocate(req driver.MemoryRequirements, usage Usage, dedicated bool) (*Allocation, error) {
	if req.Size == 0 {
		return nil, errors.Wrap(driver.ErrValidation, "zero-sized allocation")
	}
	types := a.MemoryTypes(req.MemoryTypeBits, usage)
	if len(types) == 0 {
		return nil, errors.Wrapf(driver.ErrFeatureNotPresent, "no memory type for %s in bits %#x", usage, req.MemoryTypeBits)
	}
	granule := a.granule()
	size := alignUp(req.Size, granule)
	align := max(req.Alignment, granule)

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range types {
		own := dedicated || usage == Dedicated || size > a.blockSize(t)/2
		var (
			b   *block
			s   *span
			err error
		)
		if own {
			b, s, err = a.allocateDedicated(t, size)
		} else {
			b, s, err = a.suballocate(t, size, align)
		}
		if errors.Is(err, driver.ErrOutOfDeviceMemory) {
			a.log.Debug("memory type exhausted", "type", t, "size", size)
			continue
		}
		if err != nil {
			return nil, err
		}
		a.count++
		return &Allocation{
			Memory:    b.memory,
			Offset:    s.Offset,
			Size:      s.Size,
			Usage:     usage,
			typeIndex: t,
			block:     b,
			span:      s,
		}, nil
	}
	return nil, errors.Wrapf(driver.ErrOutOfDeviceMemory, "allocating %d bytes of %s memory", size, usage)
}

func (a *Allocator) allocateDedicated(t uint32, size uint64) (*block, *span, error) {
	m, err := a.dev.AllocateMemory(size, t)
	if err != nil {
		return nil, nil, err
	}
	b := &block{linearAllocator: linearAllocator{Size: size}, memory: m, typeIndex: t, dedicated: true}
	a.dedicated[b] = struct{}{}
	a.log.Debug("dedicated allocation", "type", t, "size", size)
	return b, b.allocate(size, 1), nil
}

func (a *Allocator) suballocate(t uint32, size, align uint64) (*block, *span, error) {
	for _, b := range a.pools[t] {
		if s := b.allocate(size, align); s != nil {
			return b, s, nil
		}
	}
	bs := a.blockSize(t)
	var err error
	for try := 0; try <= a.opts.MaxRetries && bs >= size; try++ {
		var m driver.Memory
		m, err = a.dev.AllocateMemory(bs, t)
		if err == nil {
			b := &block{linearAllocator: linearAllocator{Size: bs}, memory: m, typeIndex: t}
			a.pools[t] = append(a.pools[t], b)
			a.log.Debug("memory block allocated", "type", t, "size", bs)
			return b, b.allocate(size, align), nil
		}
		if !errors.Is(err, driver.ErrOutOfDeviceMemory) {
			return nil, nil, err
		}
		bs = alignUp(bs/2, a.granule())
	}
	if err == nil {
		err = driver.ErrOutOfDeviceMemory
	}
	return nil, nil, err
}

// Free releases the allocation. Empty blocks beyond the first of a memory
// type are returned to the driver.
func (a *Allocator) Free(al *Allocation) {
	if al == nil || al.block == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b := al.block
	if al.mapCount > 0 {
		b.mapCount -= al.mapCount - 1
		al.mapCount = 1
		a.unmap(al)
	}
	b.free(al.span)
	al.block, al.span = nil, nil
	a.count--
	if b.dedicated {
		delete(a.dedicated, b)
		a.releaseBlock(b)
		return
	}
	pool := a.pools[b.typeIndex]
	if b.empty() && len(pool) > 1 {
		a.pools[b.typeIndex] = slices.DeleteFunc(pool, func(x *block) bool { return x == b })
		a.releaseBlock(b)
	}
}

func (a *Allocator) releaseBlock(b *block) {
	if b.data != nil {
		a.dev.UnmapMemory(b.memory)
		b.data = nil
	}
	a.dev.FreeMemory(b.memory)
	a.log.Debug("memory block released", "type", b.typeIndex, "size", b.Size)
}

func (a *Allocator) hostVisible(t uint32) bool {
	return a.props.MemoryTypes[t].Flags&driver.MemoryHostVisible != 0
}

// Mappable reports whether Map can succeed on al: its class is host
// accessible and it landed in a host-visible memory type.
func (a *Allocator) Mappable(al *Allocation) bool {
	return al != nil && al.Usage.mappable() && a.hostVisible(al.typeIndex)
}

func (a *Allocator) coherent(t uint32) bool {
	return a.props.MemoryTypes[t].Flags&driver.MemoryHostCoherent != 0
}

// Map returns the bytes of the allocation in [offset, offset+size). size may
// be driver.WholeSize. The block stays mapped while any of its allocations is.
func (a *Allocator) Map(al *Allocation, offset, size uint64) ([]byte, error) {
	if al == nil || al.block == nil {
		return nil, driver.ErrInvalidHandle
	}
	if !al.Usage.mappable() {
		return nil, errors.Wrapf(driver.ErrMemoryMapFailed, "%s memory is not mappable", al.Usage)
	}
	if !a.hostVisible(al.typeIndex) {
		return nil, errors.Wrapf(driver.ErrMemoryMapFailed, "memory type %d is not host-visible", al.typeIndex)
	}
	if size == driver.WholeSize {
		size = al.Size - min(offset, al.Size)
	}
	if offset+size > al.Size {
		return nil, errors.Wrapf(driver.ErrValidation, "map range [%d, %d) exceeds allocation size %d", offset, offset+size, al.Size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b := al.block
	if b.data == nil {
		data, err := a.dev.MapMemory(b.memory, 0, driver.WholeSize)
		if err != nil {
			return nil, errors.Wrap(err, "mapping memory block")
		}
		b.data = data
	}
	b.mapCount++
	al.mapCount++
	start := al.Offset + offset
	return b.data[start : start+size : start+size], nil
}

// Unmap releases one Map of the allocation.
func (a *Allocator) Unmap(al *Allocation) {
	if al == nil || al.block == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unmap(al)
}

func (a *Allocator) unmap(al *Allocation) {
	if al.mapCount == 0 {
		return
	}
	al.mapCount--
	b := al.block
	b.mapCount--
	if b.mapCount == 0 && b.data != nil {
		a.dev.UnmapMemory(b.memory)
		b.data = nil
	}
}

// Range is a byte range of an allocation.
type Range struct {
	Allocation *Allocation
	Offset     uint64
	Size       uint64
}

// Flush makes host writes in ranges visible to the device. Coherent memory
// needs no flush.
func (a *Allocator) Flush(ranges ...Range) error {
	mapped := a.mappedRanges(ranges)
	if len(mapped) == 0 {
		return nil
	}
	return errors.Wrap(a.dev.FlushMemory(mapped), "flushing mapped memory")
}

// Invalidate makes device writes in ranges visible to the host.
func (a *Allocator) Invalidate(ranges ...Range) error {
	mapped := a.mappedRanges(ranges)
	if len(mapped) == 0 {
		return nil
	}
	return errors.Wrap(a.dev.InvalidateMemory(mapped), "invalidating mapped memory")
}

func (a *Allocator) mappedRanges(ranges []Range) []driver.MappedRange {
	atom := max(a.props.Limits.NonCoherentAtomSize, 1)
	var out []driver.MappedRange
	for _, r := range ranges {
		al := r.Allocation
		if al == nil || al.block == nil || a.coherent(al.typeIndex) {
			continue
		}
		size := r.Size
		if size == driver.WholeSize {
			size = al.Size - min(r.Offset, al.Size)
		}
		start := al.Offset + r.Offset
		begin := start - start%atom
		end := min(alignUp(start+size, atom), al.block.Size)
		out = append(out, driver.MappedRange{Memory: al.Memory, Offset: begin, Size: end - begin})
	}
	return out
}

// Write copies data into the allocation at offset, flushing if needed.
func (a *Allocator) Write(al *Allocation, offset uint64, data []byte) error {
	dst, err := a.Map(al, offset, uint64(len(data)))
	if err != nil {
		return err
	}
	defer a.Unmap(al)
	copy(dst, data)
	return a.Flush(Range{Allocation: al, Offset: offset, Size: uint64(len(data))})
}

// Stats returns current usage.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Stats{Allocations: a.count, DedicatedAllocations: len(a.dedicated)}
	for _, pool := range a.pools {
		for _, b := range pool {
			s.Blocks++
			s.Reserved += b.Size
			s.Used += b.used()
		}
	}
	for b := range a.dedicated {
		s.Reserved += b.Size
		s.Used += b.Size
	}
	return s
}

// Destroy returns all memory to the driver. Outstanding allocations become
// invalid.
func (a *Allocator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for t, pool := range a.pools {
		for _, b := range pool {
			a.releaseBlock(b)
		}
		a.pools[t] = nil
	}
	for b := range a.dedicated {
		a.releaseBlock(b)
	}
	clear(a.dedicated)
	a.count = 0
}
