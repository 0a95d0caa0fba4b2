package vk

import (
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkez/driver"
)

type memoryObject struct {
	mem  vk.DeviceMemory
	size uint64
}

type renderPassObject struct {
	rp    vk.RenderPass
	depth []bool
}

type swapchainObject struct {
	sc     vk.Swapchain
	images []driver.Image
}

// Device is a logical device implementing driver.Device.
type Device struct {
	phys   *PhysicalDevice
	handle vk.Device
	props  driver.Properties

	buffers         table[driver.Buffer, vk.Buffer]
	images          table[driver.Image, vk.Image]
	memories        table[driver.Memory, memoryObject]
	imageViews      table[driver.ImageView, vk.ImageView]
	bufferViews     table[driver.BufferView, vk.BufferView]
	samplers        table[driver.Sampler, vk.Sampler]
	modules         table[driver.ShaderModule, vk.ShaderModule]
	setLayouts      table[driver.DescriptorSetLayout, vk.DescriptorSetLayout]
	pipelineLayouts table[driver.PipelineLayout, vk.PipelineLayout]
	descriptorPools table[driver.DescriptorPool, vk.DescriptorPool]
	descriptorSets  table[driver.DescriptorSet, vk.DescriptorSet]
	renderPasses    table[driver.RenderPass, renderPassObject]
	framebuffers    table[driver.Framebuffer, vk.Framebuffer]
	pipelineCaches  table[driver.PipelineCache, vk.PipelineCache]
	pipelines       table[driver.Pipeline, vk.Pipeline]
	commandPools    table[driver.CommandPool, vk.CommandPool]
	commandBuffers  table[driver.CommandBuffer, vk.CommandBuffer]
	fences          table[driver.Fence, vk.Fence]
	semaphores      table[driver.Semaphore, vk.Semaphore]
	queues          table[driver.Queue, vk.Queue]
	swapchains      table[driver.Swapchain, swapchainObject]
}

var _ driver.Device = (*Device)(nil)

func (d *Device) Properties() *driver.Properties { return &d.props }

func (d *Device) WaitIdle() error {
	return errors.Wrap(check(vk.DeviceWaitIdle(d.handle)), "waiting for device idle")
}

func (d *Device) Destroy() {
	if n := d.buffers.len() + d.images.len() + d.memories.len() + d.pipelines.len(); n > 0 {
		d.phys.inst.log.Warn("destroying device with live objects", "count", n)
	}
	vk.DestroyDevice(d.handle, nil)
}

func (d *Device) CreateBuffer(info *driver.BufferCreateInfo) (driver.Buffer, driver.MemoryRequirements, error) {
	mode, n, families := sharing(info.SharingMode, info.QueueFamilyIndices)
	ci := vk.BufferCreateInfo{
		SType:                 vk.StructureTypeBufferCreateInfo,
		Size:                  vk.DeviceSize(info.Size),
		Usage:                 vk.BufferUsageFlags(info.Usage),
		SharingMode:           mode,
		QueueFamilyIndexCount: n,
		PQueueFamilyIndices:   families,
	}
	var b vk.Buffer
	if err := check(vk.CreateBuffer(d.handle, &ci, nil, &b)); err != nil {
		return 0, driver.MemoryRequirements{}, errors.Wrap(err, "creating buffer")
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, b, &req)
	req.Deref()
	return d.buffers.put(b), driver.MemoryRequirements{
		Size:           uint64(req.Size),
		Alignment:      uint64(req.Alignment),
		MemoryTypeBits: req.MemoryTypeBits,
	}, nil
}

func (d *Device) DestroyBuffer(b driver.Buffer) {
	if h, ok := d.buffers.take(b); ok {
		vk.DestroyBuffer(d.handle, h, nil)
	}
}

func (d *Device) CreateImage(info *driver.ImageCreateInfo) (driver.Image, driver.MemoryRequirements, error) {
	mode, n, families := sharing(info.SharingMode, info.QueueFamilyIndices)
	var flags vk.ImageCreateFlags
	if info.CubeCompatible {
		flags |= vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	ci := vk.ImageCreateInfo{
		SType:                 vk.StructureTypeImageCreateInfo,
		Flags:                 flags,
		ImageType:             vk.ImageType(info.Type),
		Format:                vk.Format(info.Format),
		Extent:                extent3D(info.Extent),
		MipLevels:             info.MipLevels,
		ArrayLayers:           info.ArrayLayers,
		Samples:               vk.SampleCountFlagBits(info.Samples),
		Tiling:                vk.ImageTiling(info.Tiling),
		Usage:                 vk.ImageUsageFlags(info.Usage),
		SharingMode:           mode,
		QueueFamilyIndexCount: n,
		PQueueFamilyIndices:   families,
		InitialLayout:         vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if err := check(vk.CreateImage(d.handle, &ci, nil, &img)); err != nil {
		return 0, driver.MemoryRequirements{}, errors.Wrap(err, "creating image")
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, img, &req)
	req.Deref()
	return d.images.put(img), driver.MemoryRequirements{
		Size:           uint64(req.Size),
		Alignment:      uint64(req.Alignment),
		MemoryTypeBits: req.MemoryTypeBits,
	}, nil
}

func (d *Device) DestroyImage(img driver.Image) {
	if h, ok := d.images.take(img); ok {
		vk.DestroyImage(d.handle, h, nil)
	}
}

func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (driver.Memory, error) {
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}
	var m vk.DeviceMemory
	if err := check(vk.AllocateMemory(d.handle, &info, nil, &m)); err != nil {
		return 0, errors.Wrapf(err, "allocating %d bytes of memory type %d", size, typeIndex)
	}
	return d.memories.put(memoryObject{mem: m, size: size}), nil
}

func (d *Device) FreeMemory(m driver.Memory) {
	if o, ok := d.memories.take(m); ok {
		vk.FreeMemory(d.handle, o.mem, nil)
	}
}

func (d *Device) MapMemory(m driver.Memory, offset, size uint64) ([]byte, error) {
	o := d.memories.get(m)
	if size == driver.WholeSize {
		size = o.size - offset
	}
	var p unsafe.Pointer
	if err := check(vk.MapMemory(d.handle, o.mem, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &p)); err != nil {
		return nil, errors.Wrap(err, "mapping memory")
	}
	return bytesOf(p, size), nil
}

func (d *Device) UnmapMemory(m driver.Memory) {
	vk.UnmapMemory(d.handle, d.memories.get(m).mem)
}

func (d *Device) mappedRanges(ranges []driver.MappedRange) []vk.MappedMemoryRange {
	ret := make([]vk.MappedMemoryRange, len(ranges))
	for i, r := range ranges {
		ret[i] = vk.MappedMemoryRange{
			SType:  vk.StructureTypeMappedMemoryRange,
			Memory: d.memories.get(r.Memory).mem,
			Offset: vk.DeviceSize(r.Offset),
			Size:   vk.DeviceSize(r.Size),
		}
	}
	return ret
}

func (d *Device) FlushMemory(ranges []driver.MappedRange) error {
	if len(ranges) == 0 {
		return nil
	}
	r := d.mappedRanges(ranges)
	return errors.Wrap(check(vk.FlushMappedMemoryRanges(d.handle, uint32(len(r)), r)), "flushing memory")
}

func (d *Device) InvalidateMemory(ranges []driver.MappedRange) error {
	if len(ranges) == 0 {
		return nil
	}
	r := d.mappedRanges(ranges)
	return errors.Wrap(check(vk.InvalidateMappedMemoryRanges(d.handle, uint32(len(r)), r)), "invalidating memory")
}

func (d *Device) BindBufferMemory(b driver.Buffer, m driver.Memory, offset uint64) error {
	return errors.Wrap(check(vk.BindBufferMemory(d.handle, d.buffers.get(b), d.memories.get(m).mem,
		vk.DeviceSize(offset))), "binding buffer memory")
}

func (d *Device) BindImageMemory(img driver.Image, m driver.Memory, offset uint64) error {
	return errors.Wrap(check(vk.BindImageMemory(d.handle, d.images.get(img), d.memories.get(m).mem,
		vk.DeviceSize(offset))), "binding image memory")
}

func (d *Device) CreateImageView(info *driver.ImageViewCreateInfo) (driver.ImageView, error) {
	ci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    d.images.get(info.Image),
		ViewType: vk.ImageViewType(info.ViewType),
		Format:   vk.Format(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzle(info.Components.R),
			G: vk.ComponentSwizzle(info.Components.G),
			B: vk.ComponentSwizzle(info.Components.B),
			A: vk.ComponentSwizzle(info.Components.A),
		},
		SubresourceRange: subresourceRange(info.Subresource),
	}
	var v vk.ImageView
	if err := check(vk.CreateImageView(d.handle, &ci, nil, &v)); err != nil {
		return 0, errors.Wrap(err, "creating image view")
	}
	return d.imageViews.put(v), nil
}

func (d *Device) DestroyImageView(v driver.ImageView) {
	if h, ok := d.imageViews.take(v); ok {
		vk.DestroyImageView(d.handle, h, nil)
	}
}

func (d *Device) CreateBufferView(info *driver.BufferViewCreateInfo) (driver.BufferView, error) {
	ci := vk.BufferViewCreateInfo{
		SType:  vk.StructureTypeBufferViewCreateInfo,
		Buffer: d.buffers.get(info.Buffer),
		Format: vk.Format(info.Format),
		Offset: vk.DeviceSize(info.Offset),
		Range:  vk.DeviceSize(info.Range),
	}
	var v vk.BufferView
	if err := check(vk.CreateBufferView(d.handle, &ci, nil, &v)); err != nil {
		return 0, errors.Wrap(err, "creating buffer view")
	}
	return d.bufferViews.put(v), nil
}

func (d *Device) DestroyBufferView(v driver.BufferView) {
	if h, ok := d.bufferViews.take(v); ok {
		vk.DestroyBufferView(d.handle, h, nil)
	}
}

func (d *Device) CreateSampler(info *driver.SamplerCreateInfo) (driver.Sampler, error) {
	ci := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.Filter(info.MagFilter),
		MinFilter:               vk.Filter(info.MinFilter),
		MipmapMode:              vk.SamplerMipmapMode(info.MipmapMode),
		AddressModeU:            vk.SamplerAddressMode(info.AddressModeU),
		AddressModeV:            vk.SamplerAddressMode(info.AddressModeV),
		AddressModeW:            vk.SamplerAddressMode(info.AddressModeW),
		MipLodBias:              info.MipLodBias,
		AnisotropyEnable:        bool32(info.AnisotropyEnable),
		MaxAnisotropy:           info.MaxAnisotropy,
		CompareEnable:           bool32(info.CompareEnable),
		CompareOp:               vk.CompareOp(info.CompareOp),
		MinLod:                  info.MinLod,
		MaxLod:                  info.MaxLod,
		BorderColor:             vk.BorderColor(info.BorderColor),
		UnnormalizedCoordinates: bool32(info.UnnormalizedCoordinates),
	}
	var s vk.Sampler
	if err := check(vk.CreateSampler(d.handle, &ci, nil, &s)); err != nil {
		return 0, errors.Wrap(err, "creating sampler")
	}
	return d.samplers.put(s), nil
}

func (d *Device) DestroySampler(s driver.Sampler) {
	if h, ok := d.samplers.take(s); ok {
		vk.DestroySampler(d.handle, h, nil)
	}
}

func (d *Device) GetQueue(family, index uint32) driver.Queue {
	var q vk.Queue
	vk.GetDeviceQueue(d.handle, family, index, &q)
	return d.queues.put(q)
}

func (d *Device) QueueSubmit(q driver.Queue, submits []driver.SubmitInfo, fence driver.Fence) error {
	infos := make([]vk.SubmitInfo, len(submits))
	for i, s := range submits {
		stages := make([]vk.PipelineStageFlags, len(s.WaitStages))
		for j, st := range s.WaitStages {
			stages[j] = vk.PipelineStageFlags(st)
		}
		infos[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(s.WaitSemaphores)),
			PWaitSemaphores:      getAll(&d.semaphores, s.WaitSemaphores),
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(s.CommandBuffers)),
			PCommandBuffers:      getAll(&d.commandBuffers, s.CommandBuffers),
			SignalSemaphoreCount: uint32(len(s.SignalSemaphores)),
			PSignalSemaphores:    getAll(&d.semaphores, s.SignalSemaphores),
		}
	}
	return check(vk.QueueSubmit(d.queues.get(q), uint32(len(infos)), infos, d.fences.get(fence)))
}

func (d *Device) QueueWaitIdle(q driver.Queue) error {
	return check(vk.QueueWaitIdle(d.queues.get(q)))
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	ci := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		ci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if err := check(vk.CreateFence(d.handle, &ci, nil, &f)); err != nil {
		return 0, errors.Wrap(err, "creating fence")
	}
	return d.fences.put(f), nil
}

func (d *Device) DestroyFence(f driver.Fence) {
	if h, ok := d.fences.take(f); ok {
		vk.DestroyFence(d.handle, h, nil)
	}
}

func (d *Device) ResetFences(fences []driver.Fence) error {
	if len(fences) == 0 {
		return nil
	}
	return check(vk.ResetFences(d.handle, uint32(len(fences)), getAll(&d.fences, fences)))
}

func (d *Device) FenceStatus(f driver.Fence) error {
	return check(vk.GetFenceStatus(d.handle, d.fences.get(f)))
}

func (d *Device) WaitForFences(fences []driver.Fence, waitAll bool, t time.Duration) error {
	if len(fences) == 0 {
		return nil
	}
	return check(vk.WaitForFences(d.handle, uint32(len(fences)), getAll(&d.fences, fences), bool32(waitAll), timeout(t)))
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	ci := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var s vk.Semaphore
	if err := check(vk.CreateSemaphore(d.handle, &ci, nil, &s)); err != nil {
		return 0, errors.Wrap(err, "creating semaphore")
	}
	return d.semaphores.put(s), nil
}

func (d *Device) DestroySemaphore(s driver.Semaphore) {
	if h, ok := d.semaphores.take(s); ok {
		vk.DestroySemaphore(d.handle, h, nil)
	}
}
