package vkez

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/memory"
)

// Device wraps a driver device with the allocator, object caches and
// retirement queue.
type Device struct {
	drv   driver.Device
	props *driver.Properties
	cfg   Config

	alloc  *memory.Allocator
	retire *retirement
	fences fencePool
	pools  commandPools

	layouts      *layoutCache
	renderPasses *renderPassCache
	framebuffers *framebufferCache
	pipelines    *pipelineCache
	descriptors  *descriptorCache

	queues   map[uint32][]*Queue
	graphics *Queue
	compute  *Queue
	transfer *Queue

	nextID    atomic.Uint64
	registry  sync.Map
	destroyed atomic.Bool
}

// NewDevice builds a Device over drv. drv is owned by the Device from now
// on and destroyed by Device.Destroy.
func NewDevice(drv driver.Device, cfg Config) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	props := drv.Properties()
	d := &Device{
		drv:    drv,
		props:  props,
		cfg:    cfg,
		retire: newRetirement(cfg.Retirement.DrainBatch),
		queues: map[uint32][]*Queue{},
	}
	if err := d.initQueues(); err != nil {
		return nil, err
	}
	d.alloc = memory.New(drv, cfg.allocatorOptions())
	d.layouts = newLayoutCache(d)
	d.renderPasses = newRenderPassCache(d)
	d.framebuffers = newFramebufferCache(d)
	d.descriptors = newDescriptorCache(d, cfg.Descriptors.SetsPerPool)
	pc, err := newPipelineCache(d, cfg.PipelineCache.Path)
	if err != nil {
		return nil, err
	}
	d.pipelines = pc
	Logger().Info("device created",
		"name", props.DeviceName,
		"graphics", d.graphics.family,
		"compute", d.compute.family,
		"transfer", d.transfer.family)
	return d, nil
}

// initQueues picks a graphics family, and dedicated compute and transfer
// families where the device has them.
func (d *Device) initQueues() error {
	families := d.props.QueueFamilies
	pick := func(want, avoid driver.QueueFlags) int {
		for i, f := range families {
			if f.Count > 0 && f.Flags&want == want && f.Flags&avoid == 0 {
				return i
			}
		}
		return -1
	}
	gfx := -1
	for i, f := range families {
		if f.Count == 0 || f.Flags&driver.QueueGraphics == 0 {
			continue
		}
		if gfx < 0 || (f.Present && !families[gfx].Present) {
			gfx = i
		}
	}
	if gfx < 0 {
		return errors.Wrap(ErrFeatureNotPresent, "no graphics queue family")
	}
	compute := pick(driver.QueueCompute, driver.QueueGraphics)
	if compute < 0 {
		compute = gfx
	}
	transfer := pick(driver.QueueTransfer, driver.QueueGraphics|driver.QueueCompute)
	if transfer < 0 {
		transfer = pick(driver.QueueTransfer, driver.QueueGraphics)
	}
	if transfer < 0 {
		transfer = gfx
	}
	for i, f := range families {
		for j := uint32(0); j < f.Count; j++ {
			d.queues[uint32(i)] = append(d.queues[uint32(i)], &Queue{
				d:      d,
				family: uint32(i),
				index:  j,
				handle: d.drv.GetQueue(uint32(i), j),
			})
		}
	}
	d.graphics = d.queues[uint32(gfx)][0]
	d.compute = d.queues[uint32(compute)][0]
	d.transfer = d.queues[uint32(transfer)][0]
	return nil
}

func (d *Device) newID() uint64 { return d.nextID.Add(1) }

func (d *Device) register(id uint64, obj any) { d.registry.Store(id, obj) }

func (d *Device) unregister(id uint64) { d.registry.Delete(id) }

func lookup[T any](d *Device, id uint64) (T, bool) {
	v, ok := d.registry.Load(id)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Driver returns the underlying driver device.
func (d *Device) Driver() driver.Device { return d.drv }

// Properties describes the physical device.
func (d *Device) Properties() *driver.Properties { return d.props }

// Config returns the configuration the device was created with.
func (d *Device) Config() Config { return d.cfg }

// Queue returns queue index of family, or nil if it does not exist.
func (d *Device) Queue(family, index uint32) *Queue {
	qs := d.queues[family]
	if int(index) >= len(qs) {
		return nil
	}
	return qs[index]
}

func (d *Device) GraphicsQueue() *Queue { return d.graphics }
func (d *Device) ComputeQueue() *Queue  { return d.compute }
func (d *Device) TransferQueue() *Queue { return d.transfer }

// WaitIdle blocks until the device is idle and releases everything waiting
// on retirement.
func (d *Device) WaitIdle() error {
	if err := d.drv.WaitIdle(); err != nil {
		return errors.Wrap(err, "waiting for device idle")
	}
	d.recycleFences(true)
	for d.retire.drain(true) > 0 {
	}
	return nil
}

// Destroy waits for the device to go idle, saves the pipeline cache and
// releases every object owned by the device's caches. Objects created by
// the application must have been destroyed beforehand.
func (d *Device) Destroy() error {
	if d.destroyed.Swap(true) {
		return nil
	}
	werr := d.WaitIdle()
	serr := d.pipelines.save()
	d.pipelines.destroy()
	d.descriptors.destroy()
	d.framebuffers.destroy()
	d.renderPasses.destroy()
	d.layouts.destroy()
	d.pools.destroy(d)
	for d.retire.drain(true) > 0 {
	}
	d.destroyFences()
	d.alloc.Destroy()
	d.drv.Destroy()
	Logger().Info("device destroyed", "name", d.props.DeviceName)
	return errors.CombineErrors(werr, serr)
}

// Stats counts the objects held by the device.
type Stats struct {
	DescriptorSetLayouts int
	PipelineLayouts      int
	RenderPasses         int
	Framebuffers         int
	Pipelines            int
	DescriptorPools      int
	DescriptorSets       int
	PendingRetirements   int
	Memory               memory.Stats
}

func (s Stats) String() string {
	return fmt.Sprintf("{ layouts: %d/%d renderPasses: %d framebuffers: %d pipelines: %d descriptorSets: %d/%d pending: %d }",
		s.DescriptorSetLayouts, s.PipelineLayouts, s.RenderPasses, s.Framebuffers, s.Pipelines,
		s.DescriptorSets, s.DescriptorPools, s.PendingRetirements)
}

func (d *Device) Stats() Stats {
	pools, sets := d.descriptors.counts()
	return Stats{
		DescriptorSetLayouts: d.layouts.setLayouts.Len(),
		PipelineLayouts:      d.layouts.pipelineLayouts.Len(),
		RenderPasses:         d.renderPasses.passes.Len(),
		Framebuffers:         d.framebuffers.entries.Len(),
		Pipelines:            d.pipelines.entries.Len(),
		DescriptorPools:      pools,
		DescriptorSets:       sets,
		PendingRetirements:   d.retire.pending(),
		Memory:               d.alloc.Stats(),
	}
}
