package vkez

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/memory"
)

type ImageCreateInfo struct {
	Type   driver.ImageType
	Format driver.Format
	Extent driver.Extent3D
	// MipLevels, ArrayLayers and Samples default to 1.
	MipLevels          uint32
	ArrayLayers        uint32
	Samples            driver.SampleCount
	Tiling             driver.ImageTiling
	Usage              driver.ImageUsage
	QueueFamilyIndices []uint32
	CubeCompatible     bool
}

// Image is a texture or attachment. Its layout is tracked per mip level and
// array layer and never exposed.
type Image struct {
	d           *Device
	id          uint64
	handle      driver.Image
	format      driver.Format
	extent      driver.Extent3D
	mipLevels   uint32
	arrayLayers uint32
	samples     driver.SampleCount
	usage       driver.ImageUsage
	imageType   driver.ImageType
	mem         *memory.Allocation
	swapchain   bool

	life lifetime
	uses fenceSet

	stateMu sync.Mutex
	// states is indexed by layer*mipLevels + mip.
	states []accessState
}

// CreateImage creates an image and binds memory of the given class to it.
func (d *Device) CreateImage(info *ImageCreateInfo, usage MemoryUsage) (*Image, error) {
	ci := driver.ImageCreateInfo{
		Type:           info.Type,
		Format:         info.Format,
		Extent:         info.Extent,
		MipLevels:      max(info.MipLevels, 1),
		ArrayLayers:    max(info.ArrayLayers, 1),
		Samples:        max(info.Samples, driver.Samples1),
		Tiling:         info.Tiling,
		Usage:          info.Usage,
		CubeCompatible: info.CubeCompatible,
	}
	ci.SharingMode, ci.QueueFamilyIndices = sharingMode(info.QueueFamilyIndices)
	if ci.Extent.Depth == 0 {
		ci.Extent.Depth = 1
	}
	if ci.Extent.Width == 0 || ci.Extent.Height == 0 {
		return nil, errors.Wrapf(ErrValidation, "creating image of extent %dx%d", ci.Extent.Width, ci.Extent.Height)
	}
	if ci.Format == driver.FormatUndefined {
		return nil, errors.Wrap(ErrFormatNotSupported, "creating image with undefined format")
	}
	h, req, err := d.drv.CreateImage(&ci)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %dx%d image", ci.Extent.Width, ci.Extent.Height)
	}
	mem, err := d.alloc.Allocate(req, usage, false)
	if err != nil {
		d.drv.DestroyImage(h)
		return nil, errors.Wrap(err, "allocating image memory")
	}
	if err := d.drv.BindImageMemory(h, mem.Memory, mem.Offset); err != nil {
		d.alloc.Free(mem)
		d.drv.DestroyImage(h)
		return nil, errors.Wrap(err, "binding image memory")
	}
	img := d.wrapImage(h, &ci)
	img.mem = mem
	Logger().Debug("image created", "id", img.id, "format", ci.Format,
		"width", ci.Extent.Width, "height", ci.Extent.Height, "mips", ci.MipLevels, "memory", usage)
	return img, nil
}

// wrapImage tracks a driver image; swapchain images come through here
// without memory.
func (d *Device) wrapImage(h driver.Image, ci *driver.ImageCreateInfo) *Image {
	img := &Image{
		d:           d,
		id:          d.newID(),
		handle:      h,
		format:      ci.Format,
		extent:      ci.Extent,
		mipLevels:   ci.MipLevels,
		arrayLayers: ci.ArrayLayers,
		samples:     ci.Samples,
		usage:       ci.Usage,
		imageType:   ci.Type,
		states:      make([]accessState, ci.MipLevels*ci.ArrayLayers),
	}
	d.register(img.id, img)
	return img
}

func (img *Image) Handle() driver.Image           { return img.handle }
func (img *Image) Format() driver.Format          { return img.format }
func (img *Image) Extent() driver.Extent3D        { return img.extent }
func (img *Image) MipLevels() uint32              { return img.mipLevels }
func (img *Image) ArrayLayers() uint32            { return img.arrayLayers }
func (img *Image) Samples() driver.SampleCount    { return img.samples }
func (img *Image) Usage() driver.ImageUsage       { return img.usage }
func (img *Image) Allocation() *memory.Allocation { return img.mem }

// MipExtent returns the extent of a mip level.
func (img *Image) MipExtent(level uint32) driver.Extent3D {
	return driver.Extent3D{
		Width:  max(img.extent.Width>>level, 1),
		Height: max(img.extent.Height>>level, 1),
		Depth:  max(img.extent.Depth>>level, 1),
	}
}

// Layout returns the tracked layout of a subresource as of the last
// command buffer ended.
func (img *Image) Layout(mip, layer uint32) driver.ImageLayout {
	img.stateMu.Lock()
	defer img.stateMu.Unlock()
	return img.states[layer*img.mipLevels+mip].layout
}

// fullRange covers every subresource of the image.
func (img *Image) fullRange() subresources {
	return subresources{levels: img.mipLevels, layers: img.arrayLayers}
}

// Destroy releases the image once no submission uses it and no image view
// refers to it.
func (img *Image) Destroy() {
	if img.swapchain {
		return
	}
	img.life.destroy(img.release)
}

func (img *Image) release() {
	img.d.retire.release(&img.uses, func() {
		img.d.unregister(img.id)
		img.d.drv.DestroyImage(img.handle)
		img.d.alloc.Free(img.mem)
	})
}
