package drivertest

import (
	"github.com/celer/vkez/driver"
)

func alignUp(v, a uint64) uint64 {
	if a == 0 {
		return v
	}
	return (v + a - 1) / a * a
}

func (d *Device) allTypes() uint32 { return 1<<uint(len(d.props.MemoryTypes)) - 1 }

func (d *Device) CreateBuffer(info *driver.BufferCreateInfo) (driver.Buffer, driver.MemoryRequirements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Size == 0 {
		return 0, driver.MemoryRequirements{}, driver.ErrValidation
	}
	align := uint64(16)
	if info.Usage&(driver.BufferUsageUniform|driver.BufferUsageStorage) != 0 {
		align = 256
	}
	h := driver.Buffer(d.newObject(KindBuffer, *info))
	return h, driver.MemoryRequirements{
		Size:           alignUp(info.Size, align),
		Alignment:      align,
		MemoryTypeBits: d.allTypes(),
	}, nil
}

func (d *Device) DestroyBuffer(b driver.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindBuffer, uint64(b))
}

// BufferInfo returns the creation parameters of b.
func (d *Device) BufferInfo(b driver.Buffer) driver.BufferCreateInfo {
	info, _ := d.info(uint64(b)).(driver.BufferCreateInfo)
	return info
}

func (d *Device) CreateImage(info *driver.ImageCreateInfo) (driver.Image, driver.MemoryRequirements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	texel := uint64(info.Format.Size())
	if texel == 0 {
		return 0, driver.MemoryRequirements{}, driver.ErrFormatNotSupported
	}
	var size uint64
	w, h, z := uint64(info.Extent.Width), uint64(info.Extent.Height), uint64(info.Extent.Depth)
	for i := uint32(0); i < info.MipLevels; i++ {
		size += w * h * z * texel
		w, h, z = max(w/2, 1), max(h/2, 1), max(z/2, 1)
	}
	size *= uint64(max(info.ArrayLayers, 1)) * uint64(max(info.Samples, 1))
	bits := d.allTypes()
	if info.Tiling == driver.TilingOptimal {
		bits = 0
		for i, t := range d.props.MemoryTypes {
			if t.Flags&driver.MemoryDeviceLocal != 0 {
				bits |= 1 << uint(i)
			}
		}
	}
	img := driver.Image(d.newObject(KindImage, *info))
	return img, driver.MemoryRequirements{Size: alignUp(size, 4096), Alignment: 4096, MemoryTypeBits: bits}, nil
}

func (d *Device) DestroyImage(img driver.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindImage, uint64(img))
}

// ImageInfo returns the creation parameters of img.
func (d *Device) ImageInfo(img driver.Image) driver.ImageCreateInfo {
	info, _ := d.info(uint64(img)).(driver.ImageCreateInfo)
	return info
}

func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (driver.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAllocations > 0 {
		d.FailAllocations--
		return 0, driver.ErrOutOfDeviceMemory
	}
	if d.MaxAllocationSize != 0 && size > d.MaxAllocationSize {
		return 0, driver.ErrOutOfDeviceMemory
	}
	if int(typeIndex) >= len(d.props.MemoryTypes) {
		return 0, driver.ErrValidation
	}
	m := driver.Memory(d.newObject(KindMemory, size))
	mem := &memory{typeIndex: typeIndex}
	if d.props.MemoryTypes[typeIndex].Flags&driver.MemoryHostVisible != 0 {
		mem.data = make([]byte, size)
	}
	d.memories[m] = mem
	return m, nil
}

func (d *Device) FreeMemory(m driver.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindMemory, uint64(m))
	delete(d.memories, m)
}

// MemorySize returns the size m was allocated with.
func (d *Device) MemorySize(m driver.Memory) uint64 {
	size, _ := d.info(uint64(m)).(uint64)
	return size
}

func (d *Device) MapMemory(m driver.Memory, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.memories[m]
	if !ok {
		return nil, driver.ErrInvalidHandle
	}
	if mem.data == nil {
		return nil, driver.ErrMemoryMapFailed
	}
	if mem.mapped {
		d.Errors = append(d.Errors, "memory mapped twice")
		return nil, driver.ErrMemoryMapFailed
	}
	end := uint64(len(mem.data))
	if size != driver.WholeSize {
		end = offset + size
	}
	mem.mapped = true
	return mem.data[offset:end:end], nil
}

func (d *Device) UnmapMemory(m driver.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if mem, ok := d.memories[m]; ok {
		mem.mapped = false
	}
}

func (d *Device) FlushMemory(ranges []driver.MappedRange) error {
	return d.checkRanges(ranges)
}

func (d *Device) InvalidateMemory(ranges []driver.MappedRange) error {
	return d.checkRanges(ranges)
}

func (d *Device) checkRanges(ranges []driver.MappedRange) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	atom := d.props.Limits.NonCoherentAtomSize
	for _, r := range ranges {
		mem, ok := d.memories[r.Memory]
		if !ok {
			return driver.ErrInvalidHandle
		}
		unaligned := r.Size != driver.WholeSize && r.Size%atom != 0 && r.Offset+r.Size != uint64(len(mem.data))
		if r.Offset%atom != 0 || unaligned {
			d.Errors = append(d.Errors, "unaligned mapped memory range")
			return driver.ErrValidation
		}
	}
	return nil
}

func (d *Device) BindBufferMemory(b driver.Buffer, m driver.Memory, offset uint64) error {
	return d.checkBind(uint64(b), m)
}

func (d *Device) BindImageMemory(img driver.Image, m driver.Memory, offset uint64) error {
	return d.checkBind(uint64(img), m)
}

func (d *Device) checkBind(h uint64, m driver.Memory) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.memories[m]; !ok {
		return driver.ErrInvalidHandle
	}
	if o, ok := d.objects[h]; !ok || !o.alive {
		return driver.ErrInvalidHandle
	}
	return nil
}

func (d *Device) CreateImageView(info *driver.ImageViewCreateInfo) (driver.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[uint64(info.Image)]; !ok || !o.alive {
		return 0, driver.ErrInvalidHandle
	}
	return driver.ImageView(d.newObject(KindImageView, *info)), nil
}

func (d *Device) DestroyImageView(v driver.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindImageView, uint64(v))
}

func (d *Device) CreateBufferView(info *driver.BufferViewCreateInfo) (driver.BufferView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return driver.BufferView(d.newObject(KindBufferView, *info)), nil
}

func (d *Device) DestroyBufferView(v driver.BufferView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindBufferView, uint64(v))
}

func (d *Device) CreateSampler(info *driver.SamplerCreateInfo) (driver.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.AnisotropyEnable && !d.props.Features.SamplerAnisotropy {
		return 0, driver.ErrFeatureNotPresent
	}
	return driver.Sampler(d.newObject(KindSampler, *info)), nil
}

func (d *Device) DestroySampler(s driver.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindSampler, uint64(s))
}

// Pipelines

func (d *Device) CreateShaderModule(code []uint32) (driver.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(code) < 5 || code[0] != 0x07230203 {
		return 0, driver.ErrInvalidShaderModule
	}
	return driver.ShaderModule(d.newObject(KindShaderModule, len(code))), nil
}

func (d *Device) DestroyShaderModule(m driver.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindShaderModule, uint64(m))
}

func (d *Device) CreateDescriptorSetLayout(bindings []driver.DescriptorSetLayoutBinding) (driver.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return driver.DescriptorSetLayout(d.newObject(KindDescriptorSetLayout, append([]driver.DescriptorSetLayoutBinding(nil), bindings...))), nil
}

func (d *Device) DestroyDescriptorSetLayout(l driver.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindDescriptorSetLayout, uint64(l))
}

// PipelineLayoutInfo holds the parameters of a created pipeline layout.
type PipelineLayoutInfo struct {
	Sets   []driver.DescriptorSetLayout
	Ranges []driver.PushConstantRange
}

func (d *Device) CreatePipelineLayout(sets []driver.DescriptorSetLayout, ranges []driver.PushConstantRange) (driver.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info := PipelineLayoutInfo{
		Sets:   append([]driver.DescriptorSetLayout(nil), sets...),
		Ranges: append([]driver.PushConstantRange(nil), ranges...),
	}
	return driver.PipelineLayout(d.newObject(KindPipelineLayout, info)), nil
}

// PipelineLayoutInfo returns the parameters l was created with.
func (d *Device) PipelineLayoutInfo(l driver.PipelineLayout) PipelineLayoutInfo {
	info, _ := d.info(uint64(l)).(PipelineLayoutInfo)
	return info
}

func (d *Device) DestroyPipelineLayout(l driver.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindPipelineLayout, uint64(l))
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []driver.DescriptorPoolSize) (driver.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := driver.DescriptorPool(d.newObject(KindDescriptorPool, append([]driver.DescriptorPoolSize(nil), sizes...)))
	d.pools[p] = &descriptorPool{maxSets: maxSets}
	return p, nil
}

func (d *Device) DestroyDescriptorPool(p driver.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindDescriptorPool, uint64(p))
	delete(d.pools, p)
}

func (d *Device) AllocateDescriptorSet(p driver.DescriptorPool, l driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, ok := d.pools[p]
	if !ok {
		return 0, driver.ErrInvalidHandle
	}
	if pool.allocated == pool.maxSets {
		return 0, driver.ErrOutOfPoolMemory
	}
	pool.allocated++
	return driver.DescriptorSet(d.newObject(KindDescriptorSet, l)), nil
}

func (d *Device) UpdateDescriptorSets(writes []driver.WriteDescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Writes = append(d.Writes, writes...)
}

func (d *Device) CreateRenderPass(info *driver.RenderPassCreateInfo) (driver.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(info.Subpasses) == 0 {
		return 0, driver.ErrValidation
	}
	return driver.RenderPass(d.newObject(KindRenderPass, *info)), nil
}

// RenderPassInfo returns the parameters rp was created with.
func (d *Device) RenderPassInfo(rp driver.RenderPass) driver.RenderPassCreateInfo {
	info, _ := d.info(uint64(rp)).(driver.RenderPassCreateInfo)
	return info
}

func (d *Device) DestroyRenderPass(rp driver.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindRenderPass, uint64(rp))
}

func (d *Device) CreateFramebuffer(info *driver.FramebufferCreateInfo) (driver.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[uint64(info.RenderPass)]; !ok || !o.alive {
		return 0, driver.ErrInvalidHandle
	}
	return driver.Framebuffer(d.newObject(KindFramebuffer, *info)), nil
}

// FramebufferInfo returns the parameters fb was created with.
func (d *Device) FramebufferInfo(fb driver.Framebuffer) driver.FramebufferCreateInfo {
	info, _ := d.info(uint64(fb)).(driver.FramebufferCreateInfo)
	return info
}

func (d *Device) DestroyFramebuffer(fb driver.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindFramebuffer, uint64(fb))
}

func (d *Device) CreatePipelineCache(initial []byte) (driver.PipelineCache, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.InitialCache = append([]byte(nil), initial...)
	return driver.PipelineCache(d.newObject(KindPipelineCache, nil)), nil
}

func (d *Device) PipelineCacheData(c driver.PipelineCache) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.CacheBlob...), nil
}

func (d *Device) DestroyPipelineCache(c driver.PipelineCache) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindPipelineCache, uint64(c))
}

func (d *Device) CreateGraphicsPipeline(c driver.PipelineCache, info *driver.GraphicsPipelineCreateInfo) (driver.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(info.Stages) == 0 || info.Layout == 0 || info.RenderPass == 0 {
		return 0, driver.ErrValidation
	}
	return driver.Pipeline(d.newObject(KindPipeline, *info)), nil
}

func (d *Device) CreateComputePipeline(c driver.PipelineCache, info *driver.ComputePipelineCreateInfo) (driver.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Layout == 0 || info.Stage.Module == 0 {
		return 0, driver.ErrValidation
	}
	return driver.Pipeline(d.newObject(KindPipeline, *info)), nil
}

// GraphicsPipelineInfo returns the parameters p was created with.
func (d *Device) GraphicsPipelineInfo(p driver.Pipeline) driver.GraphicsPipelineCreateInfo {
	info, _ := d.info(uint64(p)).(driver.GraphicsPipelineCreateInfo)
	return info
}

func (d *Device) DestroyPipeline(p driver.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindPipeline, uint64(p))
}
