package vkez

import (
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

type SwapchainCreateInfo struct {
	Surface driver.Surface
	// Format defaults to B8G8R8A8 unorm when the surface supports it, and
	// to the first surface format otherwise.
	Format driver.Format
	// Extent is used when the surface does not dictate one.
	Extent driver.Extent2D
	VSync  bool
	// ImageCount of 0 takes the device configuration.
	ImageCount uint32
}

// Swapchain presents images rendered elsewhere: Queue.Present copies a
// source image into the acquired swapchain image.
type Swapchain struct {
	d       *Device
	surface driver.Surface

	mu         sync.Mutex
	handle     driver.Swapchain
	format     driver.SurfaceFormat
	extent     driver.Extent2D
	imageCount uint32
	vsync      bool
	stale      bool
	images     []*Image

	// acquired is a ring of semaphores signaled by acquisition; ready has
	// one semaphore per image signaled by the present copy.
	acquired []*Semaphore
	last     []*submission
	next     int
	ready    []*Semaphore
}

// CreateSwapchain creates a swapchain on a surface created by platform
// glue.
func (d *Device) CreateSwapchain(info *SwapchainCreateInfo) (*Swapchain, error) {
	sc := &Swapchain{
		d:          d,
		surface:    info.Surface,
		extent:     info.Extent,
		vsync:      info.VSync,
		imageCount: info.ImageCount,
	}
	if sc.imageCount == 0 {
		sc.imageCount = d.cfg.Swapchain.ImageCount
	}
	caps, err := d.drv.SurfaceCapabilities(info.Surface)
	if err != nil {
		return nil, errors.Wrap(err, "querying surface capabilities")
	}
	sc.format, err = chooseFormat(caps.Formats, info.Format)
	if err != nil {
		return nil, err
	}
	if err := sc.create(caps); err != nil {
		return nil, err
	}
	return sc, nil
}

func chooseFormat(formats []driver.SurfaceFormat, want driver.Format) (driver.SurfaceFormat, error) {
	if len(formats) == 0 {
		return driver.SurfaceFormat{}, errors.Wrap(ErrFormatNotSupported, "surface has no formats")
	}
	if want == driver.FormatUndefined {
		want = driver.FormatB8G8R8A8Unorm
	} else if !slices.ContainsFunc(formats, func(f driver.SurfaceFormat) bool { return f.Format == want }) {
		return driver.SurfaceFormat{}, errors.Wrapf(ErrFormatNotSupported, "surface format %d", want)
	}
	for _, f := range formats {
		if f.Format == want {
			return f, nil
		}
	}
	return formats[0], nil
}

// choosePresentMode picks FIFO with vsync, and otherwise the first of
// mailbox, immediate and FIFO the surface supports.
func choosePresentMode(modes []driver.PresentMode, vsync bool) driver.PresentMode {
	if vsync {
		return driver.PresentModeFifo
	}
	for _, m := range []driver.PresentMode{driver.PresentModeMailbox, driver.PresentModeImmediate} {
		if slices.Contains(modes, m) {
			return m
		}
	}
	return driver.PresentModeFifo
}

// create builds the driver swapchain, replacing the current one.
func (sc *Swapchain) create(caps *driver.SurfaceCapabilities) error {
	d := sc.d
	extent := caps.CurrentExtent
	if extent.Width == ^uint32(0) {
		extent.Width = min(max(sc.extent.Width, caps.MinImageExtent.Width), caps.MaxImageExtent.Width)
		extent.Height = min(max(sc.extent.Height, caps.MinImageExtent.Height), caps.MaxImageExtent.Height)
	}
	if extent.Width == 0 || extent.Height == 0 {
		return errors.Wrap(ErrOutOfDate, "surface has no area")
	}
	count := sc.imageCount
	if count == 0 {
		count = caps.MinImageCount + 1
	}
	count = max(count, caps.MinImageCount)
	if caps.MaxImageCount > 0 {
		count = min(count, caps.MaxImageCount)
	}
	mode := choosePresentMode(caps.PresentModes, sc.vsync)
	usage := driver.ImageUsageColorAttachment | driver.ImageUsageTransferDst
	h, hs, err := d.drv.CreateSwapchain(&driver.SwapchainCreateInfo{
		Surface:       sc.surface,
		MinImageCount: count,
		Format:        sc.format.Format,
		ColorSpace:    sc.format.ColorSpace,
		Extent:        extent,
		Usage:         usage,
		PresentMode:   mode,
		OldSwapchain:  sc.handle,
	})
	if err != nil {
		return errors.Wrap(err, "creating swapchain")
	}
	sc.retire()
	sc.handle, sc.extent, sc.stale = h, extent, false
	sc.images = sc.images[:0]
	for _, ih := range hs {
		img := d.wrapImage(ih, &driver.ImageCreateInfo{
			Type:        driver.ImageType2D,
			Format:      sc.format.Format,
			Extent:      driver.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
			MipLevels:   1,
			ArrayLayers: 1,
			Samples:     driver.Samples1,
			Usage:       usage,
		})
		img.swapchain = true
		sc.images = append(sc.images, img)
	}
	if err := sc.semaphores(len(hs)); err != nil {
		return err
	}
	Logger().Info("swapchain created", "width", extent.Width, "height", extent.Height,
		"images", len(hs), "presentMode", mode, "vsync", sc.vsync)
	return nil
}

func (sc *Swapchain) semaphores(images int) error {
	for len(sc.acquired) < images+1 {
		s, err := sc.d.CreateSemaphore()
		if err != nil {
			return err
		}
		sc.acquired = append(sc.acquired, s)
		sc.last = append(sc.last, nil)
	}
	for len(sc.ready) < images {
		s, err := sc.d.CreateSemaphore()
		if err != nil {
			return err
		}
		sc.ready = append(sc.ready, s)
	}
	return nil
}

// retire destroys the current driver swapchain once its images are no
// longer used.
func (sc *Swapchain) retire() {
	if sc.handle == 0 {
		return
	}
	var uses fenceSet
	for _, img := range sc.images {
		for _, s := range img.uses.pending() {
			uses.add(s)
		}
		sc.d.unregister(img.id)
	}
	h, drv := sc.handle, sc.d.drv
	sc.d.retire.release(&uses, func() { drv.DestroySwapchain(h) })
	sc.handle = 0
}

func (sc *Swapchain) Extent() driver.Extent2D {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.extent
}

func (sc *Swapchain) Format() driver.Format { return sc.format.Format }

// Images returns the current swapchain images. They change when the
// swapchain is recreated.
func (sc *Swapchain) Images() []*Image {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return slices.Clone(sc.images)
}

// SetVSync switches between FIFO and the lowest-latency present mode. The
// swapchain is recreated at the next present.
func (sc *Swapchain) SetVSync(on bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.vsync != on {
		sc.vsync, sc.stale = on, true
	}
}

func (sc *Swapchain) VSync() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.vsync
}

// Recreate rebuilds the swapchain for the current surface extent, or for
// extent when the surface does not dictate one.
func (sc *Swapchain) Recreate(extent driver.Extent2D) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if extent.Width != 0 && extent.Height != 0 {
		sc.extent = extent
	}
	return sc.recreate()
}

func (sc *Swapchain) recreate() error {
	caps, err := sc.d.drv.SurfaceCapabilities(sc.surface)
	if err != nil {
		return errors.Wrap(err, "querying surface capabilities")
	}
	return sc.create(caps)
}

// Destroy releases the swapchain after the presents using it complete.
func (sc *Swapchain) Destroy() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.retire()
	for _, s := range sc.acquired {
		s.Destroy()
	}
	for _, s := range sc.ready {
		s.Destroy()
	}
	sc.acquired, sc.ready, sc.images = nil, nil, nil
}

// acquire returns the next image and the semaphore its acquisition
// signals. An out-of-date swapchain is recreated and acquisition retried
// once.
func (sc *Swapchain) acquire() (uint32, int, error) {
	if sc.stale {
		if err := sc.recreate(); err != nil {
			return 0, 0, err
		}
	}
	slot := sc.next
	sc.next = (sc.next + 1) % len(sc.acquired)
	if s := sc.last[slot]; s != nil {
		if err := sc.d.waitSubmission(s); err != nil {
			return 0, 0, errors.Wrap(err, "waiting for a frame in flight")
		}
	}
	for attempt := 0; ; attempt++ {
		idx, err := sc.d.drv.AcquireNextImage(sc.handle, time.Duration(1<<63-1), sc.acquired[slot].handle, 0)
		switch {
		case err == nil || errors.Is(err, driver.Suboptimal):
			return idx, slot, nil
		case errors.Is(err, driver.ErrOutOfDate) && attempt == 0:
			Logger().Info("swapchain out of date on acquire")
			if err := sc.recreate(); err != nil {
				return 0, 0, err
			}
		default:
			return 0, 0, errors.Wrap(err, "acquiring swapchain image")
		}
	}
}

// PresentInfo presents SourceImages[i] on Swapchains[i]. Source images are
// blitted, or copied when extent and format match, into the acquired
// swapchain images; they need transfer-source usage.
type PresentInfo struct {
	WaitSemaphores   []*Semaphore
	Swapchains       []*Swapchain
	SourceImages     []*Image
	SignalSemaphores []*Semaphore
}

// Present copies the source images into newly acquired swapchain images
// and queues them for presentation. An out-of-date swapchain is recreated
// and ErrOutOfDate returned, so the caller can rebuild what depends on the
// swapchain size.
func (q *Queue) Present(info *PresentInfo) error {
	if len(info.Swapchains) == 0 || len(info.Swapchains) != len(info.SourceImages) {
		return errors.Wrapf(ErrValidation, "present of %d images to %d swapchains", len(info.SourceImages), len(info.Swapchains))
	}
	if !q.d.props.QueueFamilies[q.family].Present {
		return errors.Wrap(ErrValidation, "present on a queue family without present support")
	}
	for _, sc := range info.Swapchains {
		sc.mu.Lock()
		defer sc.mu.Unlock()
	}
	cb, err := q.d.AllocateCommandBuffer(q)
	if err != nil {
		return err
	}
	defer cb.Free()
	if err := cb.BeginOneTime(); err != nil {
		return err
	}
	indices := make([]uint32, len(info.Swapchains))
	slots := make([]int, len(info.Swapchains))
	handles := make([]driver.Swapchain, len(info.Swapchains))
	submit := SubmitInfo{
		WaitSemaphores:   slices.Clone(info.WaitSemaphores),
		CommandBuffers:   []*CommandBuffer{cb},
		SignalSemaphores: slices.Clone(info.SignalSemaphores),
	}
	for range info.WaitSemaphores {
		submit.WaitStages = append(submit.WaitStages, driver.StageTransfer)
	}
	var ready []driver.Semaphore
	for i, sc := range info.Swapchains {
		idx, slot, err := sc.acquire()
		if err != nil {
			return err
		}
		indices[i], slots[i], handles[i] = idx, slot, sc.handle
		cb.copyToSwapchain(info.SourceImages[i], sc.images[idx])
		submit.WaitSemaphores = append(submit.WaitSemaphores, sc.acquired[slot])
		submit.WaitStages = append(submit.WaitStages, driver.StageTransfer)
		submit.SignalSemaphores = append(submit.SignalSemaphores, sc.ready[idx])
		ready = append(ready, sc.ready[idx].handle)
	}
	if err := cb.End(); err != nil {
		return err
	}
	if err := q.Submit([]SubmitInfo{submit}, nil); err != nil {
		return err
	}
	sub := cb.last
	for i, sc := range info.Swapchains {
		sc.last[slots[i]] = sub
	}

	q.mu.Lock()
	err = q.d.drv.QueuePresent(q.handle, &driver.PresentInfo{
		WaitSemaphores: ready,
		Swapchains:     handles,
		ImageIndices:   indices,
	})
	q.mu.Unlock()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, driver.Suboptimal):
		Logger().Debug("swapchain suboptimal")
		return nil
	case errors.Is(err, driver.ErrOutOfDate):
		Logger().Info("swapchain out of date on present")
		for _, sc := range info.Swapchains {
			if rerr := sc.recreate(); rerr != nil {
				return errors.CombineErrors(errors.Wrap(ErrOutOfDate, "presenting"), rerr)
			}
		}
		return errors.Wrap(ErrOutOfDate, "presenting")
	}
	return errors.Wrap(err, "presenting")
}

// copyToSwapchain records the copy of mip 0 layer 0 of src into dst and
// the transition of dst for presentation.
func (cb *CommandBuffer) copyToSwapchain(src, dst *Image) {
	if src == nil {
		cb.failRecording(errors.Wrap(ErrInvalidHandle, "present of a nil image"))
		return
	}
	se, de := src.MipExtent(0), dst.extent
	color := driver.ImageSubresourceLayers{Aspect: driver.AspectColor, LayerCount: 1}
	if se == de && src.format == dst.format {
		cb.CopyImage(src, dst, []driver.ImageCopy{{SrcSubresource: color, DstSubresource: color, Extent: de}})
	} else {
		cb.BlitImage(src, dst, []driver.ImageBlit{{
			SrcSubresource: color,
			SrcOffsets:     [2]driver.Offset3D{{}, {X: int32(se.Width), Y: int32(se.Height), Z: 1}},
			DstSubresource: color,
			DstOffsets:     [2]driver.Offset3D{{}, {X: int32(de.Width), Y: int32(de.Height), Z: 1}},
		}}, driver.FilterLinear)
	}
	cb.command("present transition", []access{{
		image:  dst,
		rng:    dst.fullRange(),
		stage:  driver.StageBottomOfPipe,
		layout: driver.LayoutPresentSrc,
	}}, func(driver.Device, driver.CommandBuffer) {})
}
