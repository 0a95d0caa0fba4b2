package vkez

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/internal/hashkey"
	"github.com/celer/vkez/internal/intern"
)

// AttachmentReference says how a render pass treats one framebuffer
// attachment. The stencil aspect of depth/stencil formats uses the same
// ops.
type AttachmentReference struct {
	LoadOp     driver.LoadOp
	StoreOp    driver.StoreOp
	ClearValue driver.ClearValue
}

// SubpassDescription lists the framebuffer attachments a subpass uses by
// index.
type SubpassDescription struct {
	Color []uint32
	// Resolve, when set, has one entry per color attachment; use
	// AttachmentUnused for colors that are not resolved.
	Resolve      []uint32
	Input        []uint32
	DepthStencil *uint32
}

// AttachmentUnused marks an unused resolve entry.
const AttachmentUnused = ^uint32(0)

type RenderPassBeginInfo struct {
	Framebuffer *Framebuffer
	// Attachments has one entry per framebuffer attachment.
	Attachments []AttachmentReference
	// Subpasses declares the subpasses of the pass. When nil the pass has
	// a single subpass drawing to every color attachment and the first
	// depth/stencil attachment, and NextSubpass fails.
	Subpasses []SubpassDescription
	// RenderArea defaults to the whole framebuffer.
	RenderArea driver.Rect2D
}

// subpassUse is how one subpass uses one attachment.
type subpassUse uint8

const (
	useColor subpassUse = 1 << iota
	useResolve
	useDepth
	useInput
)

func (u subpassUse) layout(format driver.Format) driver.ImageLayout {
	switch {
	case u&useInput != 0 && u&(useColor|useDepth|useResolve) != 0:
		return driver.LayoutGeneral
	case u&(useColor|useResolve) != 0:
		return driver.LayoutColorAttachmentOptimal
	case u&useDepth != 0:
		return driver.LayoutDepthStencilAttachmentOptimal
	case u&useInput != 0 && format.IsDepthStencil():
		return driver.LayoutDepthStencilReadOnlyOptimal
	case u&useInput != 0:
		return driver.LayoutShaderReadOnlyOptimal
	}
	return driver.LayoutUndefined
}

func (u subpassUse) stage() driver.PipelineStage {
	var s driver.PipelineStage
	if u&(useColor|useResolve) != 0 {
		s |= driver.StageColorAttachmentOutput
	}
	if u&useDepth != 0 {
		s |= driver.StageEarlyFragmentTests | driver.StageLateFragmentTests
	}
	if u&useInput != 0 {
		s |= driver.StageFragmentShader
	}
	return s
}

func (u subpassUse) access() driver.Access {
	var a driver.Access
	if u&(useColor|useResolve) != 0 {
		a |= driver.AccessColorAttachmentRead | driver.AccessColorAttachmentWrite
	}
	if u&useDepth != 0 {
		a |= driver.AccessDepthStencilAttachmentRead | driver.AccessDepthStencilAttachmentWrite
	}
	if u&useInput != 0 {
		a |= driver.AccessInputAttachmentRead
	}
	return a
}

// passLayout is the attachment structure of a render pass: everything
// that decides compatibility.
type passLayout struct {
	formats []driver.Format
	samples []driver.SampleCount
	subs    []SubpassDescription
	// uses[s][a] is how subpass s uses attachment a.
	uses [][]subpassUse
}

// newPassLayout validates subs against the attachments and derives the
// per-subpass uses. A nil subs yields the single default subpass.
func newPassLayout(views []*ImageView, subs []SubpassDescription) (*passLayout, error) {
	if len(views) == 0 {
		return nil, errors.Wrap(ErrValidation, "render pass without attachments")
	}
	l := &passLayout{}
	for _, v := range views {
		l.formats = append(l.formats, v.format)
		l.samples = append(l.samples, v.Image().samples)
	}
	if subs == nil {
		var sp SubpassDescription
		for i, f := range l.formats {
			switch {
			case !f.IsDepthStencil():
				sp.Color = append(sp.Color, uint32(i))
			case sp.DepthStencil == nil:
				d := uint32(i)
				sp.DepthStencil = &d
			}
		}
		subs = []SubpassDescription{sp}
	}
	n := uint32(len(views))
	check := func(s int, what string, idx uint32) error {
		if idx >= n {
			return errors.Wrapf(ErrValidation, "subpass %d %s attachment %d out of %d", s, what, idx, n)
		}
		return nil
	}
	for s, sp := range subs {
		uses := make([]subpassUse, n)
		for _, a := range sp.Color {
			if err := check(s, "color", a); err != nil {
				return nil, err
			}
			if l.formats[a].IsDepthStencil() {
				return nil, errors.Wrapf(ErrValidation, "subpass %d uses depth attachment %d as color", s, a)
			}
			uses[a] |= useColor
		}
		if len(sp.Resolve) > 0 && len(sp.Resolve) != len(sp.Color) {
			return nil, errors.Wrapf(ErrValidation, "subpass %d has %d resolve and %d color attachments", s, len(sp.Resolve), len(sp.Color))
		}
		for _, a := range sp.Resolve {
			if a == AttachmentUnused {
				continue
			}
			if err := check(s, "resolve", a); err != nil {
				return nil, err
			}
			uses[a] |= useResolve
		}
		for _, a := range sp.Input {
			if err := check(s, "input", a); err != nil {
				return nil, err
			}
			uses[a] |= useInput
		}
		if sp.DepthStencil != nil {
			a := *sp.DepthStencil
			if err := check(s, "depth", a); err != nil {
				return nil, err
			}
			if !l.formats[a].IsDepthStencil() {
				return nil, errors.Wrapf(ErrValidation, "subpass %d uses color attachment %d as depth", s, a)
			}
			uses[a] |= useDepth
		}
		l.uses = append(l.uses, uses)
	}
	l.subs = subs
	return l, nil
}

// firstUse and lastUse return the first and last subpass using attachment
// a, or -1.
func (l *passLayout) firstUse(a int) int {
	for s := range l.uses {
		if l.uses[s][a] != 0 {
			return s
		}
	}
	return -1
}

func (l *passLayout) lastUse(a int) int {
	for s := len(l.uses) - 1; s >= 0; s-- {
		if l.uses[s][a] != 0 {
			return s
		}
	}
	return -1
}

// subpassSamples returns the sample count of subpass s.
func (l *passLayout) subpassSamples(s int) driver.SampleCount {
	for a, u := range l.uses[s] {
		if u&(useColor|useDepth) != 0 {
			return l.samples[a]
		}
	}
	return driver.Samples1
}

func (l *passLayout) colorCount(s int) int { return len(l.subs[s].Color) }

func (l *passLayout) compatKey() string {
	var b hashkey.Builder
	b.Len(len(l.formats))
	for i := range l.formats {
		b.U32(uint32(l.formats[i])).U32(uint32(l.samples[i]))
	}
	b.Len(len(l.subs))
	list := func(xs []uint32) {
		b.Len(len(xs))
		for _, x := range xs {
			b.U32(x)
		}
	}
	for _, sp := range l.subs {
		list(sp.Color)
		list(sp.Resolve)
		list(sp.Input)
		if sp.DepthStencil != nil {
			b.U32(*sp.DepthStencil)
		} else {
			b.U32(AttachmentUnused)
		}
	}
	return b.Key()
}

// passAttachment is one attachment of a render pass with the layouts and
// the external accesses around the pass.
type passAttachment struct {
	ref     AttachmentReference
	initial driver.ImageLayout
	final   driver.ImageLayout
	// src is the tracked access preceding the pass, dst the inferred
	// first access following it.
	srcStage  driver.PipelineStage
	srcAccess driver.Access
	dstStage  driver.PipelineStage
	dstAccess driver.Access
}

// createInfo builds the driver render pass for l. Subpass layouts and the
// dependencies between subpasses are derived from how the subpasses use
// each attachment.
func (l *passLayout) createInfo(atts []passAttachment) *driver.RenderPassCreateInfo {
	ci := &driver.RenderPassCreateInfo{}
	for i, a := range atts {
		ad := driver.AttachmentDescription{
			Format:         l.formats[i],
			Samples:        l.samples[i],
			LoadOp:         a.ref.LoadOp,
			StoreOp:        a.ref.StoreOp,
			StencilLoadOp:  driver.LoadOpDontCare,
			StencilStoreOp: driver.StoreOpDontCare,
			InitialLayout:  a.initial,
			FinalLayout:    a.final,
		}
		if l.formats[i].HasStencil() {
			ad.StencilLoadOp, ad.StencilStoreOp = a.ref.LoadOp, a.ref.StoreOp
		}
		ci.Attachments = append(ci.Attachments, ad)
	}
	ref := func(s int, a uint32) driver.AttachmentReference {
		if a == AttachmentUnused {
			return driver.AttachmentReference{Attachment: a}
		}
		return driver.AttachmentReference{Attachment: a, Layout: l.uses[s][a].layout(l.formats[a])}
	}
	for s, sp := range l.subs {
		var d driver.SubpassDescription
		for _, a := range sp.Color {
			d.Color = append(d.Color, ref(s, a))
		}
		for _, a := range sp.Resolve {
			d.Resolve = append(d.Resolve, ref(s, a))
		}
		for _, a := range sp.Input {
			d.Input = append(d.Input, ref(s, a))
		}
		if sp.DepthStencil != nil {
			r := ref(s, *sp.DepthStencil)
			d.DepthStencil = &r
		}
		for a := range atts {
			if l.uses[s][a] == 0 && l.firstUse(a) < s && l.lastUse(a) > s {
				d.Preserve = append(d.Preserve, uint32(a))
			}
		}
		ci.Subpasses = append(ci.Subpasses, d)
	}
	ci.Dependencies = l.dependencies(atts)
	return ci
}

func (l *passLayout) dependencies(atts []passAttachment) []driver.SubpassDependency {
	var deps []driver.SubpassDependency
	add := func(src, dst uint32, ss, ds driver.PipelineStage, sa, da driver.Access, byRegion bool) {
		for i := range deps {
			if deps[i].SrcSubpass == src && deps[i].DstSubpass == dst {
				deps[i].SrcStage |= ss
				deps[i].DstStage |= ds
				deps[i].SrcAccess |= sa
				deps[i].DstAccess |= da
				return
			}
		}
		deps = append(deps, driver.SubpassDependency{
			SrcSubpass: src, DstSubpass: dst,
			SrcStage: ss, DstStage: ds,
			SrcAccess: sa, DstAccess: da,
			ByRegion: byRegion,
		})
	}
	for a, att := range atts {
		first, last := l.firstUse(a), l.lastUse(a)
		if first < 0 {
			continue
		}
		u := l.uses[first][a]
		src := att.srcStage
		if src == 0 {
			src = driver.StageTopOfPipe
		}
		add(driver.SubpassExternal, uint32(first), src, u.stage(), att.srcAccess&driver.AccessWriteMask, u.access(), false)
		prev := first
		for s := first + 1; s <= last; s++ {
			next := l.uses[s][a]
			if next == 0 {
				continue
			}
			pu := l.uses[prev][a]
			add(uint32(prev), uint32(s), pu.stage(), next.stage(), pu.access()&driver.AccessWriteMask, next.access(), true)
			prev = s
		}
		lu := l.uses[last][a]
		dst := att.dstStage
		if dst == 0 {
			dst = driver.StageBottomOfPipe
		}
		add(uint32(last), driver.SubpassExternal, lu.stage(), dst, lu.access()&driver.AccessWriteMask, att.dstAccess, false)
	}
	return deps
}

// renderPass is a cached driver render pass.
type renderPass struct {
	handle driver.RenderPass
	compat uint32
	layout *passLayout
}

// renderPassCache interns render passes on their full description. Passes
// that differ only in load/store ops, layouts or dependencies share a
// compat id, under which framebuffers and concrete pipelines are cached.
type renderPassCache struct {
	d      *Device
	passes intern.Map[*renderPass]

	mu      sync.Mutex
	compats map[string]uint32
}

func newRenderPassCache(d *Device) *renderPassCache {
	return &renderPassCache{d: d, compats: map[string]uint32{}}
}

func (c *renderPassCache) compatID(l *passLayout) uint32 {
	key := l.compatKey()
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.compats[key]
	if !ok {
		id = uint32(len(c.compats) + 1)
		c.compats[key] = id
	}
	return id
}

func renderPassKey(compat uint32, ci *driver.RenderPassCreateInfo) string {
	var b hashkey.Builder
	b.U32(compat).Len(len(ci.Attachments))
	for _, a := range ci.Attachments {
		b.U32(uint32(a.LoadOp)).U32(uint32(a.StoreOp)).U32(uint32(a.StencilLoadOp)).U32(uint32(a.StencilStoreOp)).
			U32(uint32(a.InitialLayout)).U32(uint32(a.FinalLayout))
	}
	b.Len(len(ci.Subpasses))
	for _, s := range ci.Subpasses {
		for _, refs := range [][]driver.AttachmentReference{s.Color, s.Resolve, s.Input} {
			b.Len(len(refs))
			for _, r := range refs {
				b.U32(uint32(r.Layout))
			}
		}
		if s.DepthStencil != nil {
			b.U32(uint32(s.DepthStencil.Layout))
		}
		b.Len(len(s.Preserve))
		for _, p := range s.Preserve {
			b.U32(p)
		}
	}
	b.Len(len(ci.Dependencies))
	for _, d := range ci.Dependencies {
		b.U32(d.SrcSubpass).U32(d.DstSubpass).U32(uint32(d.SrcStage)).U32(uint32(d.DstStage)).
			U32(uint32(d.SrcAccess)).U32(uint32(d.DstAccess)).Bool(d.ByRegion)
	}
	return b.Key()
}

// get returns the render pass for l with the given attachment layouts and
// external accesses.
func (c *renderPassCache) get(l *passLayout, atts []passAttachment) (*renderPass, error) {
	compat := c.compatID(l)
	ci := l.createInfo(atts)
	rp, created, err := c.passes.GetOrCreate(renderPassKey(compat, ci), func() (*renderPass, error) {
		h, err := c.d.drv.CreateRenderPass(ci)
		if err != nil {
			return nil, errors.Wrap(err, "creating render pass")
		}
		return &renderPass{handle: h, compat: compat, layout: l}, nil
	})
	if created {
		Logger().Debug("render pass created", "compat", compat,
			"attachments", len(ci.Attachments), "subpasses", len(ci.Subpasses), "dependencies", len(ci.Dependencies))
	}
	return rp, err
}

func (c *renderPassCache) destroy() {
	for _, rp := range c.passes.DeleteFunc(func(*renderPass) bool { return true }) {
		c.d.drv.DestroyRenderPass(rp.handle)
	}
}
