package vkez

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/internal/hashkey"
	"github.com/celer/vkez/internal/intern"
)

type FramebufferCreateInfo struct {
	Attachments []*ImageView
	// Width, Height and Layers default to the smallest attachment.
	Width  uint32
	Height uint32
	Layers uint32
}

// Framebuffer is an ordered set of attachments. It is not tied to a render
// pass: the driver framebuffer is derived per render-pass compat class
// when a render pass begins.
type Framebuffer struct {
	d      *Device
	id     uint64
	views  []*ImageView
	width  uint32
	height uint32
	layers uint32
}

// CreateFramebuffer validates the attachments and returns a framebuffer.
func (d *Device) CreateFramebuffer(info *FramebufferCreateInfo) (*Framebuffer, error) {
	if len(info.Attachments) == 0 {
		return nil, errors.Wrap(ErrValidation, "framebuffer without attachments")
	}
	fb := &Framebuffer{
		d:      d,
		views:  slices.Clone(info.Attachments),
		width:  info.Width,
		height: info.Height,
		layers: info.Layers,
	}
	w, h, l := ^uint32(0), ^uint32(0), ^uint32(0)
	for i, v := range fb.views {
		if v == nil || v.destroyed || v.Image() == nil {
			return nil, errors.Wrapf(ErrInvalidHandle, "framebuffer attachment %d", i)
		}
		e := v.Extent()
		w, h, l = min(w, e.Width), min(h, e.Height), min(l, v.rng.LayerCount)
	}
	if fb.width == 0 {
		fb.width = w
	}
	if fb.height == 0 {
		fb.height = h
	}
	if fb.layers == 0 {
		fb.layers = l
	}
	if fb.width > w || fb.height > h || fb.layers > l {
		return nil, errors.Wrapf(ErrValidation, "framebuffer %dx%dx%d larger than its attachments %dx%dx%d",
			fb.width, fb.height, fb.layers, w, h, l)
	}
	lim := d.props.Limits
	if lim.MaxFramebufferWidth > 0 && (fb.width > lim.MaxFramebufferWidth || fb.height > lim.MaxFramebufferHeight) {
		return nil, errors.Wrapf(ErrValidation, "framebuffer %dx%d exceeds device limits", fb.width, fb.height)
	}
	fb.id = d.newID()
	d.register(fb.id, fb)
	return fb, nil
}

func (fb *Framebuffer) Width() uint32             { return fb.width }
func (fb *Framebuffer) Height() uint32            { return fb.height }
func (fb *Framebuffer) Layers() uint32            { return fb.layers }
func (fb *Framebuffer) Attachments() []*ImageView { return fb.views }

// Destroy forgets the framebuffer. Driver framebuffers derived from it
// live until one of its attachments is destroyed or the device goes away.
func (fb *Framebuffer) Destroy() { fb.d.unregister(fb.id) }

type framebufferEntry struct {
	handle driver.Framebuffer
	views  []uint64
	uses   fenceSet
}

// framebufferCache holds driver framebuffers keyed on the attachment views,
// the render-pass compat class and the dimensions.
type framebufferCache struct {
	d       *Device
	entries intern.Map[*framebufferEntry]
}

func newFramebufferCache(d *Device) *framebufferCache {
	return &framebufferCache{d: d}
}

func (c *framebufferCache) get(fb *Framebuffer, rp *renderPass) (*framebufferEntry, error) {
	var b hashkey.Builder
	ids := make([]uint64, len(fb.views))
	b.Len(len(fb.views))
	for i, v := range fb.views {
		ids[i] = v.id
		b.U64(v.id)
	}
	b.U32(rp.compat).U32(fb.width).U32(fb.height).U32(fb.layers)
	e, created, err := c.entries.GetOrCreate(b.Key(), func() (*framebufferEntry, error) {
		hs := make([]driver.ImageView, len(fb.views))
		for i, v := range fb.views {
			hs[i] = v.handle
		}
		h, err := c.d.drv.CreateFramebuffer(&driver.FramebufferCreateInfo{
			RenderPass:  rp.handle,
			Attachments: hs,
			Width:       fb.width,
			Height:      fb.height,
			Layers:      fb.layers,
		})
		if err != nil {
			return nil, errors.Wrap(err, "creating framebuffer")
		}
		return &framebufferEntry{handle: h, views: ids}, nil
	})
	if created {
		Logger().Debug("framebuffer created", "compat", rp.compat, "width", fb.width, "height", fb.height)
	}
	return e, err
}

// evictView drops every framebuffer built from view id. The driver
// framebuffers are destroyed once their last submission completes.
func (c *framebufferCache) evictView(id uint64) {
	for _, e := range c.entries.DeleteFunc(func(e *framebufferEntry) bool { return slices.Contains(e.views, id) }) {
		h := e.handle
		c.d.retire.release(&e.uses, func() { c.d.drv.DestroyFramebuffer(h) })
	}
}

func (c *framebufferCache) destroy() {
	for _, e := range c.entries.DeleteFunc(func(*framebufferEntry) bool { return true }) {
		c.d.drv.DestroyFramebuffer(e.handle)
	}
}
