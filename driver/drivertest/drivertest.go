// Package drivertest provides an in-memory driver.Device that records every
// call. It never executes GPU work: submissions complete immediately unless
// HoldFences is set, and host-visible memory is backed by Go slices.
package drivertest

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/celer/vkez/driver"
)

// Kind names a driver object type in the creation and destruction counters.
type Kind string

const (
	KindBuffer              Kind = "buffer"
	KindImage               Kind = "image"
	KindImageView           Kind = "imageView"
	KindBufferView          Kind = "bufferView"
	KindSampler             Kind = "sampler"
	KindMemory              Kind = "memory"
	KindShaderModule        Kind = "shaderModule"
	KindDescriptorSetLayout Kind = "descriptorSetLayout"
	KindPipelineLayout      Kind = "pipelineLayout"
	KindDescriptorPool      Kind = "descriptorPool"
	KindDescriptorSet       Kind = "descriptorSet"
	KindRenderPass          Kind = "renderPass"
	KindFramebuffer         Kind = "framebuffer"
	KindPipelineCache       Kind = "pipelineCache"
	KindPipeline            Kind = "pipeline"
	KindCommandPool         Kind = "commandPool"
	KindCommandBuffer       Kind = "commandBuffer"
	KindFence               Kind = "fence"
	KindSemaphore           Kind = "semaphore"
	KindSwapchain           Kind = "swapchain"
)

type object struct {
	kind  Kind
	alive bool
	info  any
}

type memory struct {
	data      []byte
	typeIndex uint32
	mapped    bool
}

type fence struct {
	signaled bool
}

type swapchain struct {
	info   driver.SwapchainCreateInfo
	images []driver.Image
	next   uint32
	stale  bool
}

type descriptorPool struct {
	maxSets   uint32
	allocated uint32
}

// Submit is one recorded QueueSubmit call.
type Submit struct {
	Queue  driver.Queue
	Infos  []driver.SubmitInfo
	Fence  driver.Fence
	Frozen map[driver.CommandBuffer][]any
}

// Device implements driver.Device.
type Device struct {
	mu sync.Mutex

	props driver.Properties
	next  uint64

	objects   map[uint64]*object
	memories  map[driver.Memory]*memory
	commands  map[driver.CommandBuffer][]any
	ended     map[driver.CommandBuffer]bool
	fences    map[driver.Fence]*fence
	chains    map[driver.Swapchain]*swapchain
	pools     map[driver.DescriptorPool]*descriptorPool
	created   map[Kind]int
	destroyed map[Kind]int

	// HoldFences keeps fences of new submissions unsignaled until Complete.
	HoldFences bool
	// FailAllocations makes the next N AllocateMemory calls fail with
	// ErrOutOfDeviceMemory.
	FailAllocations int
	// MaxAllocationSize makes AllocateMemory fail with ErrOutOfDeviceMemory
	// for sizes above it when non-zero.
	MaxAllocationSize uint64
	// CacheBlob is returned by PipelineCacheData. It defaults to a valid
	// header for Properties.
	CacheBlob []byte

	Surface        driver.SurfaceCapabilities
	Submits        []Submit
	Presents       []driver.PresentInfo
	Writes         []driver.WriteDescriptorSet
	InitialCache   []byte
	Errors         []string
	SwapchainInfos []driver.SwapchainCreateInfo

	held []driver.Fence
}

// New returns a Device with a small but representative set of memory types
// and queue families.
func New() *Device {
	d := &Device{
		objects:   map[uint64]*object{},
		memories:  map[driver.Memory]*memory{},
		commands:  map[driver.CommandBuffer][]any{},
		ended:     map[driver.CommandBuffer]bool{},
		fences:    map[driver.Fence]*fence{},
		chains:    map[driver.Swapchain]*swapchain{},
		pools:     map[driver.DescriptorPool]*descriptorPool{},
		created:   map[Kind]int{},
		destroyed: map[Kind]int{},
	}
	d.props = driver.Properties{
		DeviceName:        "drivertest",
		DeviceType:        driver.DeviceTypeDiscreteGPU,
		VendorID:          0x1234,
		DeviceID:          0x5678,
		APIVersion:        1<<22 | 1<<12,
		PipelineCacheUUID: [16]byte{'d', 'r', 'i', 'v', 'e', 'r', 't', 'e', 's', 't'},
		Limits: driver.Limits{
			BufferImageGranularity:          1024,
			NonCoherentAtomSize:             64,
			MinUniformBufferOffsetAlignment: 256,
			MinStorageBufferOffsetAlignment: 64,
			MinTexelBufferOffsetAlignment:   64,
			MaxPushConstantsSize:            128,
			MaxBoundDescriptorSets:          8,
			MaxColorAttachments:             8,
			MaxMemoryAllocationCount:        4096,
			MaxViewports:                    16,
			MaxFramebufferWidth:             16384,
			MaxFramebufferHeight:            16384,
			MaxImageDimension2D:             16384,
			TimestampPeriod:                 1,
		},
		Features: driver.Features{
			SamplerAnisotropy: true, WideLines: true, DepthBounds: true, DepthClamp: true,
			FillModeNonSolid: true, MultiViewport: true, IndependentBlend: true,
			SampleRateShading: true, LogicOp: true, MultiDrawIndirect: true,
		},
		MemoryTypes: []driver.MemoryType{
			{Flags: driver.MemoryDeviceLocal, HeapIndex: 0},
			{Flags: driver.MemoryHostVisible | driver.MemoryHostCoherent, HeapIndex: 1},
			{Flags: driver.MemoryDeviceLocal | driver.MemoryHostVisible | driver.MemoryHostCoherent, HeapIndex: 2},
			{Flags: driver.MemoryHostVisible | driver.MemoryHostCached, HeapIndex: 1},
		},
		MemoryHeaps: []driver.MemoryHeap{
			{Size: 4 << 30, DeviceLocal: true},
			{Size: 8 << 30},
			{Size: 256 << 20, DeviceLocal: true},
		},
		QueueFamilies: []driver.QueueFamily{
			{Flags: driver.QueueGraphics | driver.QueueCompute | driver.QueueTransfer, Count: 1, TimestampValidBits: 64, Present: true},
			{Flags: driver.QueueCompute | driver.QueueTransfer, Count: 1, TimestampValidBits: 64},
			{Flags: driver.QueueTransfer, Count: 1},
		},
	}
	d.Surface = driver.SurfaceCapabilities{
		MinImageCount:  2,
		MaxImageCount:  4,
		CurrentExtent:  driver.Extent2D{Width: 800, Height: 600},
		MinImageExtent: driver.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: driver.Extent2D{Width: 16384, Height: 16384},
		Formats: []driver.SurfaceFormat{
			{Format: driver.FormatB8G8R8A8Unorm, ColorSpace: driver.ColorSpaceSrgbNonlinear},
		},
		PresentModes: []driver.PresentMode{driver.PresentModeFifo, driver.PresentModeMailbox, driver.PresentModeImmediate},
	}
	d.CacheBlob = CacheHeader(&d.props, []byte("blob"))
	return d
}

// CacheHeader builds a pipeline-cache blob whose header matches props.
func CacheHeader(props *driver.Properties, payload []byte) []byte {
	b := make([]byte, 32, 32+len(payload))
	binary.LittleEndian.PutUint32(b[0:], 32)
	binary.LittleEndian.PutUint32(b[4:], 1)
	binary.LittleEndian.PutUint32(b[8:], props.VendorID)
	binary.LittleEndian.PutUint32(b[12:], props.DeviceID)
	copy(b[16:], props.PipelineCacheUUID[:])
	return append(b, payload...)
}

func (d *Device) Properties() *driver.Properties { return &d.props }

func (d *Device) newObject(k Kind, info any) uint64 {
	d.next++
	d.objects[d.next] = &object{kind: k, alive: true, info: info}
	d.created[k]++
	return d.next
}

func (d *Device) destroy(k Kind, h uint64) {
	if h == 0 {
		return
	}
	o, ok := d.objects[h]
	switch {
	case !ok:
		d.Errors = append(d.Errors, "destroy of unknown "+string(k))
	case o.kind != k:
		d.Errors = append(d.Errors, "destroy of "+string(o.kind)+" as "+string(k))
	case !o.alive:
		d.Errors = append(d.Errors, "double destroy of "+string(k))
	default:
		o.alive = false
		d.destroyed[k]++
	}
}

func (d *Device) info(h uint64) any {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[h]; ok {
		return o.info
	}
	return nil
}

// Created returns how many objects of kind k have been created.
func (d *Device) Created(k Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[k]
}

// Destroyed returns how many objects of kind k have been destroyed.
func (d *Device) Destroyed(k Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed[k]
}

// Live returns how many objects of kind k are alive.
func (d *Device) Live(k Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[k] - d.destroyed[k]
}

// Alive reports whether handle h refers to a live object.
func (d *Device) Alive(h uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.objects[h]
	return ok && o.alive
}

func (d *Device) WaitIdle() error {
	d.Complete()
	return nil
}

func (d *Device) Destroy() {}

// Complete signals every fence held back by HoldFences.
func (d *Device) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range d.held {
		if st, ok := d.fences[f]; ok {
			st.signaled = true
		}
	}
	d.held = nil
}

// Resize changes the surface extent and marks every existing swapchain out
// of date.
func (d *Device) Resize(width, height uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Surface.CurrentExtent = driver.Extent2D{Width: width, Height: height}
	for _, sc := range d.chains {
		sc.stale = true
	}
}

// Sync

func (d *Device) GetQueue(family, index uint32) driver.Queue {
	return driver.Queue(uint64(family)<<8 | uint64(index) | 1<<32)
}

func (d *Device) QueueSubmit(q driver.Queue, submits []driver.SubmitInfo, f driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	frozen := map[driver.CommandBuffer][]any{}
	for _, s := range submits {
		for _, cb := range s.CommandBuffers {
			if !d.ended[cb] {
				d.Errors = append(d.Errors, "submit of a command buffer that is not executable")
				return driver.ErrValidation
			}
			frozen[cb] = append([]any(nil), d.commands[cb]...)
		}
	}
	d.Submits = append(d.Submits, Submit{Queue: q, Infos: append([]driver.SubmitInfo(nil), submits...), Fence: f, Frozen: frozen})
	if f != 0 {
		st, ok := d.fences[f]
		if !ok {
			return driver.ErrInvalidHandle
		}
		if d.HoldFences {
			d.held = append(d.held, f)
		} else {
			st.signaled = true
		}
	}
	return nil
}

func (d *Device) QueueWaitIdle(q driver.Queue) error {
	d.Complete()
	return nil
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := driver.Fence(d.newObject(KindFence, nil))
	d.fences[f] = &fence{signaled: signaled}
	return f, nil
}

func (d *Device) DestroyFence(f driver.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindFence, uint64(f))
}

func (d *Device) ResetFences(fences []driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		if st, ok := d.fences[f]; ok {
			st.signaled = false
		}
	}
	return nil
}

func (d *Device) FenceStatus(f driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.fences[f]
	if !ok {
		return driver.ErrInvalidHandle
	}
	if st.signaled {
		return nil
	}
	return driver.NotReady
}

// WaitForFences never blocks: fences that are not signaled when it is
// called cannot become signaled during the wait.
func (d *Device) WaitForFences(fences []driver.Fence, waitAll bool, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, f := range fences {
		if st, ok := d.fences[f]; ok && st.signaled {
			n++
		}
	}
	if (waitAll && n == len(fences)) || (!waitAll && n > 0) {
		return nil
	}
	return driver.Timeout
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return driver.Semaphore(d.newObject(KindSemaphore, nil)), nil
}

func (d *Device) DestroySemaphore(s driver.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindSemaphore, uint64(s))
}

// Presentation

func (d *Device) SurfaceCapabilities(s driver.Surface) (*driver.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	caps := d.Surface
	return &caps, nil
}

func (d *Device) CreateSwapchain(info *driver.SwapchainCreateInfo) (driver.Swapchain, []driver.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc := &swapchain{info: *info}
	h := driver.Swapchain(d.newObject(KindSwapchain, *info))
	for i := uint32(0); i < info.MinImageCount; i++ {
		// Swapchain images are owned by the swapchain and are not counted.
		d.next++
		d.objects[d.next] = &object{kind: KindImage, alive: true, info: driver.ImageCreateInfo{
			Type:        driver.ImageType2D,
			Format:      info.Format,
			Extent:      driver.Extent3D{Width: info.Extent.Width, Height: info.Extent.Height, Depth: 1},
			MipLevels:   1,
			ArrayLayers: 1,
			Samples:     driver.Samples1,
			Usage:       info.Usage,
		}}
		sc.images = append(sc.images, driver.Image(d.next))
	}
	d.chains[h] = sc
	d.SwapchainInfos = append(d.SwapchainInfos, *info)
	if old, ok := d.chains[info.OldSwapchain]; ok {
		old.stale = true
	}
	return h, append([]driver.Image(nil), sc.images...), nil
}

func (d *Device) DestroySwapchain(h driver.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindSwapchain, uint64(h))
	delete(d.chains, h)
}

func (d *Device) AcquireNextImage(h driver.Swapchain, timeout time.Duration, s driver.Semaphore, f driver.Fence) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.chains[h]
	if !ok {
		return 0, driver.ErrInvalidHandle
	}
	if sc.stale {
		return 0, driver.ErrOutOfDate
	}
	idx := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.images))
	if st, ok := d.fences[f]; ok {
		st.signaled = true
	}
	return idx, nil
}

func (d *Device) QueuePresent(q driver.Queue, info *driver.PresentInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range info.Swapchains {
		sc, ok := d.chains[h]
		if !ok {
			return driver.ErrInvalidHandle
		}
		if sc.stale {
			return driver.ErrOutOfDate
		}
	}
	d.Presents = append(d.Presents, *info)
	return nil
}

// SwapchainInfo returns the creation parameters of h.
func (d *Device) SwapchainInfo(h driver.Swapchain) driver.SwapchainCreateInfo {
	info, _ := d.info(uint64(h)).(driver.SwapchainCreateInfo)
	return info
}
