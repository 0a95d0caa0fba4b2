package vkez

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

type ImageViewCreateInfo struct {
	Image    *Image
	ViewType driver.ImageViewType
	// Format defaults to the image format.
	Format     driver.Format
	Components driver.ComponentMapping
	// Subresource defaults to every mip level and layer when LevelCount
	// and LayerCount are 0, and to the format's aspects when Aspect is 0.
	Subresource driver.ImageSubresourceRange
}

// ImageView selects a range of an image for attachments and descriptors.
type ImageView struct {
	d        *Device
	id       uint64
	imageID  uint64
	handle   driver.ImageView
	viewType driver.ImageViewType
	format   driver.Format
	rng      driver.ImageSubresourceRange

	uses      fenceSet
	destroyed bool
}

// CreateImageView creates a view of info.Image. The image is kept alive
// until the view is destroyed.
func (d *Device) CreateImageView(info *ImageViewCreateInfo) (*ImageView, error) {
	img := info.Image
	if img == nil {
		return nil, errors.Wrap(ErrInvalidHandle, "creating image view of nil image")
	}
	rng := info.Subresource
	if rng.Aspect == 0 {
		rng.Aspect = img.format.Aspect()
	}
	if rng.LevelCount == 0 || rng.LevelCount == driver.RemainingMipLevels {
		rng.LevelCount = img.mipLevels - min(rng.BaseMipLevel, img.mipLevels)
	}
	if rng.LayerCount == 0 || rng.LayerCount == driver.RemainingMipLevels {
		rng.LayerCount = img.arrayLayers - min(rng.BaseArrayLayer, img.arrayLayers)
	}
	if rng.BaseMipLevel+rng.LevelCount > img.mipLevels || rng.BaseArrayLayer+rng.LayerCount > img.arrayLayers || rng.LevelCount == 0 || rng.LayerCount == 0 {
		return nil, errors.Wrapf(ErrValidation, "view range mips [%d,+%d) layers [%d,+%d) outside image",
			rng.BaseMipLevel, rng.LevelCount, rng.BaseArrayLayer, rng.LayerCount)
	}
	format := info.Format
	if format == driver.FormatUndefined {
		format = img.format
	}
	if !img.life.ref() {
		return nil, errors.Wrap(ErrInvalidHandle, "creating view of a destroyed image")
	}
	h, err := d.drv.CreateImageView(&driver.ImageViewCreateInfo{
		Image:       img.handle,
		ViewType:    info.ViewType,
		Format:      format,
		Components:  info.Components,
		Subresource: rng,
	})
	if err != nil {
		img.life.unref(img.release)
		return nil, errors.Wrap(err, "creating image view")
	}
	v := &ImageView{
		d:        d,
		id:       d.newID(),
		imageID:  img.id,
		handle:   h,
		viewType: info.ViewType,
		format:   format,
		rng:      rng,
	}
	d.register(v.id, v)
	return v, nil
}

func (v *ImageView) Handle() driver.ImageView { return v.handle }
func (v *ImageView) Format() driver.Format    { return v.format }

// Range is the subresource range the view covers.
func (v *ImageView) Range() driver.ImageSubresourceRange { return v.rng }

// Image resolves the parent image.
func (v *ImageView) Image() *Image {
	img, _ := lookup[*Image](v.d, v.imageID)
	return img
}

// Extent is the extent of the view's base mip level.
func (v *ImageView) Extent() driver.Extent3D {
	return v.Image().MipExtent(v.rng.BaseMipLevel)
}

func (v *ImageView) subresources() subresources {
	return subresources{
		baseMip:   v.rng.BaseMipLevel,
		levels:    v.rng.LevelCount,
		baseLayer: v.rng.BaseArrayLayer,
		layers:    v.rng.LayerCount,
	}
}

// Destroy releases the view once no submission uses it. Framebuffers built
// from the view are evicted.
func (v *ImageView) Destroy() {
	if v.destroyed {
		return
	}
	v.destroyed = true
	img := v.Image()
	v.d.framebuffers.evictView(v.id)
	v.d.retire.release(&v.uses, func() {
		v.d.unregister(v.id)
		v.d.drv.DestroyImageView(v.handle)
		if img != nil {
			img.life.unref(img.release)
		}
	})
}

type BufferViewCreateInfo struct {
	Buffer *Buffer
	Format driver.Format
	Offset uint64
	// Range defaults to the rest of the buffer.
	Range uint64
}

// BufferView is a formatted view of a buffer for texel buffer descriptors.
type BufferView struct {
	d        *Device
	id       uint64
	bufferID uint64
	handle   driver.BufferView
	format   driver.Format
	offset   uint64
	rng      uint64

	uses      fenceSet
	destroyed bool
}

// CreateBufferView creates a texel view of info.Buffer, keeping the buffer
// alive until the view is destroyed.
func (d *Device) CreateBufferView(info *BufferViewCreateInfo) (*BufferView, error) {
	b := info.Buffer
	if b == nil {
		return nil, errors.Wrap(ErrInvalidHandle, "creating buffer view of nil buffer")
	}
	rng := info.Range
	if rng == 0 || rng == driver.WholeSize {
		rng = b.size - min(info.Offset, b.size)
	}
	if info.Offset+rng > b.size || rng == 0 {
		return nil, errors.Wrapf(ErrValidation, "buffer view [%d, +%d) outside buffer of %d bytes", info.Offset, rng, b.size)
	}
	if !b.life.ref() {
		return nil, errors.Wrap(ErrInvalidHandle, "creating view of a destroyed buffer")
	}
	h, err := d.drv.CreateBufferView(&driver.BufferViewCreateInfo{
		Buffer: b.handle,
		Format: info.Format,
		Offset: info.Offset,
		Range:  rng,
	})
	if err != nil {
		b.life.unref(b.release)
		return nil, errors.Wrap(err, "creating buffer view")
	}
	v := &BufferView{d: d, id: d.newID(), bufferID: b.id, handle: h, format: info.Format, offset: info.Offset, rng: rng}
	d.register(v.id, v)
	return v, nil
}

func (v *BufferView) Handle() driver.BufferView { return v.handle }

// Buffer resolves the parent buffer.
func (v *BufferView) Buffer() *Buffer {
	b, _ := lookup[*Buffer](v.d, v.bufferID)
	return b
}

// Destroy releases the view once no submission uses it.
func (v *BufferView) Destroy() {
	if v.destroyed {
		return
	}
	v.destroyed = true
	b := v.Buffer()
	v.d.retire.release(&v.uses, func() {
		v.d.unregister(v.id)
		v.d.drv.DestroyBufferView(v.handle)
		if b != nil {
			b.life.unref(b.release)
		}
	})
}

// Sampler holds texture filtering state.
type Sampler struct {
	d      *Device
	id     uint64
	handle driver.Sampler
	uses   fenceSet
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(info *driver.SamplerCreateInfo) (*Sampler, error) {
	if info.AnisotropyEnable && !d.props.Features.SamplerAnisotropy {
		return nil, errors.Wrap(ErrFeatureNotPresent, "sampler anisotropy")
	}
	h, err := d.drv.CreateSampler(info)
	if err != nil {
		return nil, errors.Wrap(err, "creating sampler")
	}
	s := &Sampler{d: d, id: d.newID(), handle: h}
	d.register(s.id, s)
	return s, nil
}

func (s *Sampler) Handle() driver.Sampler { return s.handle }

// Destroy releases the sampler once no submission uses it.
func (s *Sampler) Destroy() {
	s.d.retire.release(&s.uses, func() {
		s.d.unregister(s.id)
		s.d.drv.DestroySampler(s.handle)
	})
}
