package vkez

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

// op is one recorded command.
type op interface{}

type (
	opBeginPass   struct{ pass *passRecord }
	opNextSubpass struct{}
	opEndPass     struct{}

	opDynamic struct {
		state driver.DynamicState
		emit  func(drv driver.Device, h driver.CommandBuffer)
	}

	opPushConstants struct {
		layout *PipelineLayout
		stages driver.ShaderStage
		offset uint32
		data   []byte
	}

	// opCommand is a transfer or clear command.
	opCommand struct {
		accesses *accessSet
		emit     func(drv driver.Device, h driver.CommandBuffer)
	}
)

type drawKind uint8

const (
	drawPlain drawKind = iota
	drawIndexed
	drawIndirect
	drawIndexedIndirect
	dispatchDirect
	dispatchIndirect
)

// opDraw is a draw or dispatch with everything it resolved at record time.
type opDraw struct {
	kind         drawKind
	pipeline     *Pipeline
	state        *pipelineState
	sets         []driver.DescriptorSet
	vertex       []vertexBinding
	index        indexBinding
	args         [4]uint32
	vertexOffset int32
	indirect     *Buffer
	offset       uint64
	accesses     *accessSet
}

func (o *opDraw) bindPoint() driver.PipelineBindPoint {
	if o.kind >= dispatchDirect {
		return driver.BindPointCompute
	}
	return driver.BindPointGraphics
}

type boundSets struct {
	pipeline driver.Pipeline
	layout   *PipelineLayout
	sets     []driver.DescriptorSet
}

// encoder replays the recorded ops of a command buffer into the driver,
// inserting the barriers the tracker derives and skipping redundant binds.
type encoder struct {
	cb  *CommandBuffer
	drv driver.Device
	h   driver.CommandBuffer
	t   *tracker

	bound   [2]boundSets
	vertex  []vertexBinding
	index   indexBinding
	dynamic uint16
	// defaulted is set once unset dynamic state has been given defaults.
	defaulted bool

	pass    *passRecord
	rp      *renderPass
	subpass int
	after   []passEnd
}

// passEnd is the tracked state of an attachment once its pass ends.
type passEnd struct {
	image *Image
	rng   subresources
	state accessState
}

func (cb *CommandBuffer) encode() error {
	drv := cb.d.drv
	if err := drv.BeginCommandBuffer(cb.handle, cb.oneTime); err != nil {
		return errors.Wrap(err, "beginning command buffer")
	}
	e := &encoder{cb: cb, drv: drv, h: cb.handle, t: newTracker()}
	for i, o := range cb.ops {
		if err := e.op(i, o); err != nil {
			return err
		}
	}
	if err := drv.EndCommandBuffer(cb.handle); err != nil {
		return errors.Wrap(err, "ending command buffer")
	}
	e.t.commit()
	return nil
}

func (e *encoder) barrier(s *accessSet) {
	if pb := e.t.apply(s); pb != nil {
		e.drv.CmdPipelineBarrier(e.h, pb)
	}
}

func (e *encoder) op(i int, o op) error {
	switch o := o.(type) {
	case *opBeginPass:
		return e.beginPass(i, o.pass)
	case *opNextSubpass:
		e.subpass++
		e.drv.CmdNextSubpass(e.h)
	case *opEndPass:
		e.drv.CmdEndRenderPass(e.h)
		for _, a := range e.after {
			states := e.t.image(a.image)
			forEach(a.image, a.rng, func(i int) { states[i] = a.state })
		}
		e.pass, e.rp, e.after = nil, nil, nil
	case *opDynamic:
		e.dynamic |= 1 << o.state
		o.emit(e.drv, e.h)
	case *opPushConstants:
		e.drv.CmdPushConstants(e.h, o.layout.handle, o.stages, o.offset, o.data)
	case *opCommand:
		e.barrier(o.accesses)
		o.emit(e.drv, e.h)
	case *opDraw:
		return e.draw(o)
	}
	return nil
}

// forEach calls fn with the state index of every subresource of img in r.
func forEach(img *Image, r subresources, fn func(i int)) {
	for layer := r.baseLayer; layer < r.baseLayer+r.layers; layer++ {
		for mip := r.baseMip; mip < r.baseMip+r.levels; mip++ {
			fn(int(layer*img.mipLevels + mip))
		}
	}
}

func (r subresources) contains(o subresources) bool {
	return r.baseMip <= o.baseMip && o.baseMip+o.levels <= r.baseMip+r.levels &&
		r.baseLayer <= o.baseLayer && o.baseLayer+o.layers <= r.baseLayer+r.layers
}

// attachmentUse is how the first subpass using attachment a uses it. An
// attachment no subpass uses counts as used by its format's role.
func attachmentUse(l *passLayout, a int) subpassUse {
	if s := l.firstUse(a); s >= 0 {
		return l.uses[s][a]
	}
	if l.formats[a].IsDepthStencil() {
		return useDepth
	}
	return useColor
}

func lastAttachmentUse(l *passLayout, a int) subpassUse {
	if s := l.lastUse(a); s >= 0 {
		return l.uses[s][a]
	}
	return attachmentUse(l, a)
}

// beginPass hoists the accesses of the draws in the pass into one barrier
// ahead of it, then resolves the render pass from the tracked state of the
// attachments and from how they are used after the pass.
func (e *encoder) beginPass(i int, p *passRecord) error {
	end := i + 1
	hoisted := &accessSet{}
	for ; end < len(e.cb.ops); end++ {
		o := e.cb.ops[end]
		if _, ok := o.(*opEndPass); ok {
			break
		}
		if d, ok := o.(*opDraw); ok {
			hoisted.absorb(d.accesses)
		}
	}
	l := p.layout
	for a, v := range p.fb.views {
		if p.refs[a].LoadOp != driver.LoadOpLoad {
			continue
		}
		img, r := p.images[a], v.subresources()
		if _, mixed := e.uniformLayout(img, r); !mixed {
			continue
		}
		u := attachmentUse(l, a)
		err := hoisted.add(access{image: img, rng: r, stage: u.stage(), access: u.access(), layout: u.layout(l.formats[a])})
		if err != nil {
			Logger().Warn("attachment also used by a draw of its pass", "image", img.id, "err", err)
		}
	}
	e.barrier(hoisted)

	atts := make([]passAttachment, len(p.fb.views))
	e.after = e.after[:0]
	for a, v := range p.fb.views {
		img, r := p.images[a], v.subresources()
		pa := passAttachment{ref: p.refs[a]}
		layout, _ := e.uniformLayout(img, r)
		states := e.t.image(img)
		forEach(img, r, func(i int) {
			pa.srcStage |= states[i].writeStage | states[i].readStage
			pa.srcAccess |= states[i].writeAccess | states[i].readAccess
		})
		pa.initial = layout
		if pa.ref.LoadOp != driver.LoadOpLoad {
			pa.initial = driver.LayoutUndefined
		}

		next, whole, ok := e.nextUse(end+1, img, r)
		if !ok {
			next = e.idleUse(l, a, img)
		}
		pa.final = next.layout
		pa.dstStage, pa.dstAccess = next.stage, next.access
		after := accessState{
			layout:     next.layout,
			writeStage: next.stage,
			readStage:  next.stage,
			readAccess: next.access &^ driver.AccessWriteMask,
		}
		if ok && whole && next.access.HasWrite() {
			after = accessState{layout: next.layout}
		}
		e.after = append(e.after, passEnd{image: img, rng: r, state: after})
		atts[a] = pa
	}

	rp, err := e.cb.d.renderPasses.get(l, atts)
	if err != nil {
		return err
	}
	fbe, err := e.cb.d.framebuffers.get(p.fb, rp)
	if err != nil {
		return err
	}
	e.cb.ref(&fbe.uses)
	clears := make([]driver.ClearValue, len(p.refs))
	for a, ref := range p.refs {
		clears[a] = ref.ClearValue
	}
	e.drv.CmdBeginRenderPass(e.h, &driver.RenderPassBeginInfo{
		RenderPass:  rp.handle,
		Framebuffer: fbe.handle,
		Area:        p.area,
		ClearValues: clears,
	})
	e.pass, e.rp, e.subpass = p, rp, 0
	return nil
}

// uniformLayout returns the tracked layout of r, and whether the
// subresources in r disagree, in which case the base layout is returned.
func (e *encoder) uniformLayout(img *Image, r subresources) (layout driver.ImageLayout, mixed bool) {
	states := e.t.image(img)
	first := true
	forEach(img, r, func(i int) {
		if first {
			layout, first = states[i].layout, false
			return
		}
		if states[i].layout != layout {
			mixed = true
		}
	})
	return layout, mixed
}

// nextUse returns the first use of r of img by the ops from index from on.
// whole reports whether that use covers all of r.
func (e *encoder) nextUse(from int, img *Image, r subresources) (su subUse, whole, ok bool) {
	for _, o := range e.cb.ops[min(from, len(e.cb.ops)):] {
		var s *accessSet
		switch o := o.(type) {
		case *opBeginPass:
			p := o.pass
			for a, v := range p.fb.views {
				vr := v.subresources()
				if p.images[a] != img || !vr.overlaps(r) {
					continue
				}
				u := attachmentUse(p.layout, a)
				return subUse{used: true, stage: u.stage(), access: u.access(), layout: u.layout(p.layout.formats[a])},
					vr.contains(r), true
			}
		case *opDraw:
			s = o.accesses
		case *opCommand:
			s = o.accesses
		}
		if su, whole, ok = s.firstUse(img, r); ok {
			return su, whole, true
		}
	}
	return subUse{}, false, false
}

// idleUse is the layout and scope an attachment is left in when nothing
// after its pass in the command buffer uses it: shader-readable if the
// image can be sampled, otherwise as the pass last used it.
func (e *encoder) idleUse(l *passLayout, a int, img *Image) subUse {
	if img.usage&driver.ImageUsageSampled != 0 {
		layout := driver.LayoutShaderReadOnlyOptimal
		if l.formats[a].IsDepthStencil() {
			layout = driver.LayoutDepthStencilReadOnlyOptimal
		}
		return subUse{
			used:   true,
			stage:  driver.StageFragmentShader | driver.StageComputeShader,
			access: driver.AccessShaderRead,
			layout: layout,
		}
	}
	u := lastAttachmentUse(l, a)
	return subUse{used: true, stage: u.stage(), access: u.access(), layout: u.layout(l.formats[a])}
}

const allDynamic uint16 = 1<<(uint16(driver.DynamicStencilReference)+1) - 1

// defaults emits defaults for the dynamic state not set before the first
// draw.
func (e *encoder) defaults() {
	e.defaulted = true
	unset := ^e.dynamic & allDynamic
	if unset == 0 {
		return
	}
	fb := e.pass.fb
	set := func(s driver.DynamicState) bool { return unset&(1<<s) != 0 }
	if set(driver.DynamicViewport) {
		e.drv.CmdSetViewport(e.h, 0, []driver.Viewport{{Width: float32(fb.width), Height: float32(fb.height), MaxDepth: 1}})
	}
	if set(driver.DynamicScissor) {
		e.drv.CmdSetScissor(e.h, 0, []driver.Rect2D{{Extent: driver.Extent2D{Width: fb.width, Height: fb.height}}})
	}
	if set(driver.DynamicLineWidth) {
		e.drv.CmdSetLineWidth(e.h, 1)
	}
	if set(driver.DynamicDepthBias) {
		e.drv.CmdSetDepthBias(e.h, 0, 0, 0)
	}
	if set(driver.DynamicBlendConstants) {
		e.drv.CmdSetBlendConstants(e.h, [4]float32{})
	}
	if set(driver.DynamicDepthBounds) {
		e.drv.CmdSetDepthBounds(e.h, 0, 1)
	}
	if set(driver.DynamicStencilCompareMask) {
		e.drv.CmdSetStencilCompareMask(e.h, driver.StencilFaceFrontAndBack, 0xff)
	}
	if set(driver.DynamicStencilWriteMask) {
		e.drv.CmdSetStencilWriteMask(e.h, driver.StencilFaceFrontAndBack, 0xff)
	}
	if set(driver.DynamicStencilReference) {
		e.drv.CmdSetStencilReference(e.h, driver.StencilFaceFrontAndBack, 0)
	}
	e.dynamic = allDynamic
}

func (e *encoder) draw(o *opDraw) error {
	bp := o.bindPoint()
	var (
		cp  *concretePipeline
		err error
	)
	if bp == driver.BindPointGraphics {
		cp, err = e.cb.d.pipelines.graphics(o.pipeline, o.state, e.rp, e.subpass)
	} else {
		e.barrier(o.accesses)
		cp, err = e.cb.d.pipelines.compute(o.pipeline)
	}
	if err != nil {
		return err
	}
	e.cb.ref(&cp.uses)
	b := &e.bound[bp]
	if b.pipeline != cp.handle {
		e.drv.CmdBindPipeline(e.h, bp, cp.handle)
		b.pipeline = cp.handle
	}
	e.bindSets(bp, o.pipeline.layout, o.sets)

	switch o.kind {
	case dispatchDirect:
		e.drv.CmdDispatch(e.h, o.args[0], o.args[1], o.args[2])
		return nil
	case dispatchIndirect:
		e.drv.CmdDispatchIndirect(e.h, o.indirect.handle, o.offset)
		return nil
	}
	if !e.defaulted {
		e.defaults()
	}
	e.bindVertex(o.vertex)
	if o.kind == drawIndexed || o.kind == drawIndexedIndirect {
		if e.index != o.index {
			e.drv.CmdBindIndexBuffer(e.h, o.index.buffer.handle, o.index.offset, o.index.indexType)
			e.index = o.index
		}
	}
	switch o.kind {
	case drawPlain:
		e.drv.CmdDraw(e.h, o.args[0], o.args[1], o.args[2], o.args[3])
	case drawIndexed:
		e.drv.CmdDrawIndexed(e.h, o.args[0], o.args[1], o.args[2], o.vertexOffset, o.args[3])
	case drawIndirect:
		e.drv.CmdDrawIndirect(e.h, o.indirect.handle, o.offset, o.args[0], o.args[1])
	case drawIndexedIndirect:
		e.drv.CmdDrawIndexedIndirect(e.h, o.indirect.handle, o.offset, o.args[0], o.args[1])
	}
	return nil
}

// bindSets binds the sets that differ from those bound, in runs of
// consecutive non-empty sets. A new pipeline layout rebinds every set.
func (e *encoder) bindSets(bp driver.PipelineBindPoint, l *PipelineLayout, sets []driver.DescriptorSet) {
	b := &e.bound[bp]
	if b.layout != l {
		b.layout, b.sets = l, nil
	}
	for i := 0; i < len(sets); {
		if sets[i] == 0 || (i < len(b.sets) && b.sets[i] == sets[i]) {
			i++
			continue
		}
		j := i + 1
		for j < len(sets) && sets[j] != 0 && (j >= len(b.sets) || b.sets[j] != sets[j]) {
			j++
		}
		e.drv.CmdBindDescriptorSets(e.h, bp, l.handle, uint32(i), sets[i:j], nil)
		i = j
	}
	b.sets = slices.Clone(sets)
}

// bindVertex binds the vertex buffers that differ from those bound, in
// runs of consecutive bindings.
func (e *encoder) bindVertex(vbs []vertexBinding) {
	for i := 0; i < len(vbs); {
		if vbs[i].buffer == nil || (i < len(e.vertex) && e.vertex[i] == vbs[i]) {
			i++
			continue
		}
		var bufs []driver.Buffer
		var offs []uint64
		j := i
		for ; j < len(vbs) && vbs[j].buffer != nil && (j >= len(e.vertex) || e.vertex[j] != vbs[j]); j++ {
			bufs = append(bufs, vbs[j].buffer.handle)
			offs = append(offs, vbs[j].offset)
		}
		e.drv.CmdBindVertexBuffers(e.h, uint32(i), bufs, offs)
		i = j
	}
	if len(vbs) > len(e.vertex) {
		e.vertex = append(e.vertex, make([]vertexBinding, len(vbs)-len(e.vertex))...)
	}
	for i, vb := range vbs {
		if vb.buffer != nil {
			e.vertex[i] = vb
		}
	}
}
