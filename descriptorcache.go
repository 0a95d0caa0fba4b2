package vkez

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/internal/hashkey"
	"github.com/celer/vkez/spirv"
)

type bindingKind uint8

const (
	bindBuffer bindingKind = iota + 1
	bindBufferView
	bindImageView
	bindSampler
)

// boundResource is one entry of a command buffer's binding table.
type boundResource struct {
	kind    bindingKind
	buffer  *Buffer
	offset  uint64
	size    uint64
	texel   *BufferView
	view    *ImageView
	sampler *Sampler
}

// bindingSlot addresses one array element of a descriptor binding.
type bindingSlot struct {
	set, binding, element uint32
}

func (r *boundResource) fits(t driver.DescriptorType) bool {
	switch t {
	case driver.DescriptorSampler:
		return r.sampler != nil && (r.kind == bindSampler || r.kind == bindImageView)
	case driver.DescriptorCombinedImageSampler:
		return r.kind == bindImageView && r.sampler != nil
	case driver.DescriptorSampledImage, driver.DescriptorStorageImage, driver.DescriptorInputAttachment:
		return r.kind == bindImageView
	case driver.DescriptorUniformTexelBuffer, driver.DescriptorStorageTexelBuffer:
		return r.kind == bindBufferView
	case driver.DescriptorUniformBuffer, driver.DescriptorStorageBuffer,
		driver.DescriptorUniformBufferDynamic, driver.DescriptorStorageBufferDynamic:
		return r.kind == bindBuffer
	}
	return false
}

// setContent is the resolved content of one descriptor set: its cache key,
// the writes that fill a fresh set, the accesses the shaders make through
// it and the objects it refers to.
type setContent struct {
	key      string
	writes   []driver.WriteDescriptorSet
	accesses []access
	refs     []*fenceSet
}

// attachmentLayout returns the layout an input attachment view has in the
// current subpass.
type attachmentLayout func(v *ImageView) driver.ImageLayout

// buildSetContent resolves set of p against table. Every binding the
// layout declares must be bound with a resource of a fitting kind; table
// entries for undeclared bindings are ignored.
func buildSetContent(p *Pipeline, set uint32, l *SetLayout, table map[bindingSlot]boundResource, input attachmentLayout) (*setContent, error) {
	c := &setContent{}
	var b hashkey.Builder
	b.Len(len(l.bindings))
	for _, decl := range l.bindings {
		res, _ := p.resource(set, decl.Binding)
		w := driver.WriteDescriptorSet{Binding: decl.Binding, Type: decl.Type}
		b.U32(decl.Binding).U32(uint32(decl.Type)).U32(decl.Count)
		for e := uint32(0); e < decl.Count; e++ {
			r, ok := table[bindingSlot{set, decl.Binding, e}]
			if !ok {
				return nil, errors.Wrapf(ErrInvalidBinding, "set %d binding %d element %d (%s) is not bound", set, decl.Binding, e, res.Name)
			}
			if !r.fits(decl.Type) {
				return nil, errors.Wrapf(ErrInvalidBinding, "set %d binding %d element %d: bound resource does not fit a %s",
					set, decl.Binding, e, res.Kind)
			}
			stage := decl.Stages.PipelineStages()
			switch r.kind {
			case bindBuffer:
				size := r.size
				if size == driver.WholeSize {
					size = r.buffer.size - r.offset
				}
				b.U8(uint8(r.kind)).U64(r.buffer.id).U64(r.offset).U64(size)
				w.Buffers = append(w.Buffers, driver.DescriptorBufferInfo{Buffer: r.buffer.handle, Offset: r.offset, Range: size})
				acc := driver.AccessUniformRead
				if decl.Type == driver.DescriptorStorageBuffer || decl.Type == driver.DescriptorStorageBufferDynamic {
					acc = shaderAccess(res.Access)
				}
				c.accesses = append(c.accesses, access{buffer: r.buffer, stage: stage, access: acc})
				c.refs = append(c.refs, &r.buffer.uses)
			case bindBufferView:
				buf := r.texel.Buffer()
				if r.texel.destroyed || buf == nil {
					return nil, errors.Wrapf(ErrInvalidHandle, "set %d binding %d: buffer view is destroyed", set, decl.Binding)
				}
				b.U8(uint8(r.kind)).U64(r.texel.id)
				w.TexelBufferViews = append(w.TexelBufferViews, r.texel.handle)
				acc := driver.AccessShaderRead
				if decl.Type == driver.DescriptorStorageTexelBuffer {
					acc = shaderAccess(res.Access)
				}
				c.accesses = append(c.accesses, access{buffer: buf, stage: stage, access: acc})
				c.refs = append(c.refs, &r.texel.uses, &buf.uses)
			case bindImageView, bindSampler:
				info := driver.DescriptorImageInfo{}
				var sampler uint64
				if r.sampler != nil {
					info.Sampler = r.sampler.handle
					sampler = r.sampler.id
					c.refs = append(c.refs, &r.sampler.uses)
				}
				var view uint64
				if decl.Type != driver.DescriptorSampler {
					img := r.view.Image()
					if r.view.destroyed || img == nil {
						return nil, errors.Wrapf(ErrInvalidHandle, "set %d binding %d: image view is destroyed", set, decl.Binding)
					}
					view = r.view.id
					info.View = r.view.handle
					a := access{image: img, rng: r.view.subresources(), stage: stage}
					switch decl.Type {
					case driver.DescriptorStorageImage:
						a.layout, a.access = driver.LayoutGeneral, shaderAccess(res.Access)
					case driver.DescriptorInputAttachment:
						a.layout, a.access = driver.LayoutShaderReadOnlyOptimal, driver.AccessInputAttachmentRead
						if input != nil {
							a.layout = input(r.view)
						}
					default:
						a.layout, a.access = driver.LayoutShaderReadOnlyOptimal, driver.AccessShaderRead
						if r.view.format.IsDepthStencil() {
							a.layout = driver.LayoutDepthStencilReadOnlyOptimal
						}
					}
					info.Layout = a.layout
					c.accesses = append(c.accesses, a)
					c.refs = append(c.refs, &r.view.uses, &img.uses)
				}
				b.U8(uint8(bindImageView)).U64(view).U64(sampler).U32(uint32(info.Layout))
				w.Images = append(w.Images, info)
			}
		}
		c.writes = append(c.writes, w)
	}
	c.key = b.Key()
	return c, nil
}

func shaderAccess(a spirv.Access) driver.Access {
	var acc driver.Access
	if a&spirv.Read != 0 || a == 0 {
		acc |= driver.AccessShaderRead
	}
	if a&spirv.Write != 0 {
		acc |= driver.AccessShaderWrite
	}
	return acc
}

// descriptorSet is a cached driver descriptor set. A set is pinned while a
// command buffer that recorded it is not reset, and recyclable once
// unpinned and idle.
type descriptorSet struct {
	bank   *descriptorBank
	handle driver.DescriptorSet
	key    string
	pins   int
	uses   fenceSet
}

// descriptorBank holds the pools and sets of one set layout.
type descriptorBank struct {
	layout *SetLayout
	sizes  []driver.DescriptorPoolSize
	pools  []driver.DescriptorPool
	// left counts the sets not yet allocated from the last pool.
	left uint32
	sets map[string]*descriptorSet
	all  []*descriptorSet
	next int
}

// descriptorCache hands out descriptor sets keyed on their content, so
// binding the same resources to the same layout yields the same set.
type descriptorCache struct {
	d           *Device
	setsPerPool uint32

	mu    sync.Mutex
	banks map[driver.DescriptorSetLayout]*descriptorBank
}

func newDescriptorCache(d *Device, setsPerPool uint32) *descriptorCache {
	return &descriptorCache{d: d, setsPerPool: setsPerPool, banks: map[driver.DescriptorSetLayout]*descriptorBank{}}
}

func (c *descriptorCache) bank(l *SetLayout) *descriptorBank {
	b, ok := c.banks[l.handle]
	if !ok {
		b = &descriptorBank{layout: l, sets: map[string]*descriptorSet{}}
		for _, x := range l.bindings {
			b.sizes = append(b.sizes, driver.DescriptorPoolSize{Type: x.Type, Count: x.Count * c.setsPerPool})
		}
		c.banks[l.handle] = b
	}
	return b
}

// get returns the pinned set of layout l holding content. A miss takes a
// fresh set from the current pool, then an idle unpinned set, then a new
// pool.
func (c *descriptorCache) get(l *SetLayout, content *setContent) (*descriptorSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.bank(l)
	if s, ok := b.sets[content.key]; ok {
		s.pins++
		return s, nil
	}
	s, err := c.allocate(b)
	if err != nil {
		return nil, err
	}
	writes := make([]driver.WriteDescriptorSet, len(content.writes))
	for i, w := range content.writes {
		w.Set = s.handle
		writes[i] = w
	}
	c.d.drv.UpdateDescriptorSets(writes)
	s.key = content.key
	s.pins = 1
	b.sets[s.key] = s
	return s, nil
}

func (c *descriptorCache) allocate(b *descriptorBank) (*descriptorSet, error) {
	if b.left > 0 {
		return c.fresh(b)
	}
	for range b.all {
		s := b.all[b.next]
		b.next = (b.next + 1) % len(b.all)
		if s.pins == 0 && s.uses.idle() {
			delete(b.sets, s.key)
			Logger().Debug("descriptor set recycled", "layout", b.layout.handle)
			return s, nil
		}
	}
	p, err := c.d.drv.CreateDescriptorPool(c.setsPerPool, b.sizes)
	if err != nil {
		return nil, errors.Wrap(err, "creating descriptor pool")
	}
	b.pools = append(b.pools, p)
	b.left = c.setsPerPool
	Logger().Debug("descriptor pool created", "layout", b.layout.handle, "pools", len(b.pools))
	return c.fresh(b)
}

func (c *descriptorCache) fresh(b *descriptorBank) (*descriptorSet, error) {
	h, err := c.d.drv.AllocateDescriptorSet(b.pools[len(b.pools)-1], b.layout.handle)
	if err != nil {
		return nil, errors.Wrap(err, "allocating descriptor set")
	}
	b.left--
	s := &descriptorSet{bank: b, handle: h}
	b.all = append(b.all, s)
	return s, nil
}

func (c *descriptorCache) unpin(sets []*descriptorSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range sets {
		s.pins--
	}
}

// counts returns the number of pools and sets allocated.
func (c *descriptorCache) counts() (pools, sets int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.banks {
		pools += len(b.pools)
		sets += len(b.all)
	}
	return pools, sets
}

func (c *descriptorCache) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.banks {
		for _, p := range b.pools {
			c.d.drv.DestroyDescriptorPool(p)
		}
	}
	c.banks = map[driver.DescriptorSetLayout]*descriptorBank{}
}
