package vk

import (
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkez/driver"
)

func (d *Device) SurfaceCapabilities(s driver.Surface) (*driver.SurfaceCapabilities, error) {
	pd, surface := d.phys.handle, d.phys.inst.surfaces.get(s)

	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &caps)); err != nil {
		return nil, errors.Wrap(err, "querying surface capabilities")
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	ret := &driver.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  driver.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		MinImageExtent: driver.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxImageExtent: driver.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
	}

	var n uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &n, nil)); err != nil {
		return nil, errors.Wrap(err, "querying surface formats")
	}
	formats := make([]vk.SurfaceFormat, n)
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &n, formats)); err != nil {
		return nil, errors.Wrap(err, "querying surface formats")
	}
	for _, f := range formats[:n] {
		f.Deref()
		ret.Formats = append(ret.Formats, driver.SurfaceFormat{
			Format:     driver.Format(f.Format),
			ColorSpace: driver.ColorSpace(f.ColorSpace),
		})
	}

	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &n, nil)); err != nil {
		return nil, errors.Wrap(err, "querying present modes")
	}
	modes := make([]vk.PresentMode, n)
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &n, modes)); err != nil {
		return nil, errors.Wrap(err, "querying present modes")
	}
	for _, m := range modes[:n] {
		ret.PresentModes = append(ret.PresentModes, driver.PresentMode(m))
	}
	return ret, nil
}

// CreateSwapchain creates a swapchain and registers its images. The images
// belong to the swapchain and are released by DestroySwapchain.
func (d *Device) CreateSwapchain(info *driver.SwapchainCreateInfo) (driver.Swapchain, []driver.Image, error) {
	surface := d.phys.inst.surfaces.get(info.Surface)
	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(d.phys.handle, surface, &caps)); err != nil {
		return 0, nil, errors.Wrap(err, "querying surface capabilities")
	}
	caps.Deref()

	var old vk.Swapchain
	if info.OldSwapchain != 0 {
		old = d.swapchains.get(info.OldSwapchain).sc
	}
	ci := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    info.MinImageCount,
		ImageFormat:      vk.Format(info.Format),
		ImageColorSpace:  vk.ColorSpace(info.ColorSpace),
		ImageExtent:      extent2D(info.Extent),
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(info.Usage),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	var sc vk.Swapchain
	if err := check(vk.CreateSwapchain(d.handle, &ci, nil, &sc)); err != nil {
		return 0, nil, errors.Wrap(err, "creating swapchain")
	}

	var n uint32
	if err := check(vk.GetSwapchainImages(d.handle, sc, &n, nil)); err != nil {
		vk.DestroySwapchain(d.handle, sc, nil)
		return 0, nil, errors.Wrap(err, "listing swapchain images")
	}
	native := make([]vk.Image, n)
	if err := check(vk.GetSwapchainImages(d.handle, sc, &n, native)); err != nil {
		vk.DestroySwapchain(d.handle, sc, nil)
		return 0, nil, errors.Wrap(err, "listing swapchain images")
	}
	images := make([]driver.Image, n)
	for i, img := range native[:n] {
		images[i] = d.images.put(img)
	}
	return d.swapchains.put(swapchainObject{sc: sc, images: images}), images, nil
}

func (d *Device) DestroySwapchain(sc driver.Swapchain) {
	obj, ok := d.swapchains.take(sc)
	if !ok {
		return
	}
	for _, img := range obj.images {
		d.images.take(img)
	}
	vk.DestroySwapchain(d.handle, obj.sc, nil)
}

func (d *Device) AcquireNextImage(sc driver.Swapchain, t time.Duration, s driver.Semaphore, f driver.Fence) (uint32, error) {
	var idx uint32
	err := check(vk.AcquireNextImage(d.handle, d.swapchains.get(sc).sc, timeout(t),
		d.semaphores.get(s), d.fences.get(f), &idx))
	return idx, err
}

func (d *Device) QueuePresent(q driver.Queue, info *driver.PresentInfo) error {
	scs := make([]vk.Swapchain, len(info.Swapchains))
	for i, sc := range info.Swapchains {
		scs[i] = d.swapchains.get(sc).sc
	}
	return check(vk.QueuePresent(d.queues.get(q), &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(info.WaitSemaphores)),
		PWaitSemaphores:    getAll(&d.semaphores, info.WaitSemaphores),
		SwapchainCount:     uint32(len(scs)),
		PSwapchains:        scs,
		PImageIndices:      info.ImageIndices,
	}))
}
