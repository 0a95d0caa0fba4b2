package vkez

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

type CommandBufferState int32

const (
	StateInitial CommandBufferState = iota
	StateRecording
	StateExecutable
	StatePending
	StateInvalid
)

func (s CommandBufferState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateRecording:
		return "recording"
	case StateExecutable:
		return "executable"
	case StatePending:
		return "pending"
	case StateInvalid:
		return "invalid"
	}
	return "unknown"
}

type vertexBinding struct {
	buffer *Buffer
	offset uint64
}

type indexBinding struct {
	buffer    *Buffer
	offset    uint64
	indexType driver.IndexType
}

// CommandBuffer records commands GL-style: state and bindings accumulate
// on the command buffer and are resolved at each draw or dispatch into a
// concrete pipeline, descriptor sets and barriers. Commands are checked as
// they are recorded and encoded into the driver command buffer by End.
//
// A CommandBuffer must not be recorded from more than one goroutine at a
// time; different command buffers may be recorded concurrently.
type CommandBuffer struct {
	d      *Device
	family uint32
	pool   driver.CommandPool
	handle driver.CommandBuffer

	mu      sync.Mutex
	state   CommandBufferState
	err     error
	oneTime bool
	last    *submission
	freed   bool
	uses    fenceSet

	ops    []op
	pinned []*descriptorSet
	refs   map[*fenceSet]struct{}

	pipeline *Pipeline
	st       *pipelineState
	// stShared is set once a recorded draw refers to st.
	stShared bool
	bindings map[bindingSlot]boundResource
	vertex   []vertexBinding
	index    indexBinding
	pass     *passRecord
	subpass  int
}

func (cb *CommandBuffer) Handle() driver.CommandBuffer { return cb.handle }

// QueueFamily is the family the command buffer may be submitted to.
func (cb *CommandBuffer) QueueFamily() uint32 { return cb.family }

// State returns the lifecycle state. A pending command buffer becomes
// executable once its last submission has completed.
func (cb *CommandBuffer) State() CommandBufferState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CommandBuffer) stateLocked() CommandBufferState {
	if cb.state == StatePending && cb.last.done() {
		cb.state = StateExecutable
		if cb.oneTime {
			cb.state = StateInvalid
		}
	}
	if cb.state == StateRecording && cb.err != nil {
		return StateInvalid
	}
	return cb.state
}

// Begin starts recording, discarding previously recorded commands. It
// fails with ErrInvalidState while the command buffer is pending.
func (cb *CommandBuffer) Begin() error { return cb.begin(false) }

// BeginOneTime starts recording commands that are submitted once.
func (cb *CommandBuffer) BeginOneTime() error { return cb.begin(true) }

func (cb *CommandBuffer) begin(oneTime bool) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.stateLocked() {
	case StatePending:
		return errors.Wrap(ErrInvalidState, "beginning a pending command buffer")
	case StateRecording:
		return errors.Wrap(ErrInvalidState, "command buffer is already recording")
	}
	if cb.freed {
		return errors.Wrap(ErrInvalidHandle, "command buffer is freed")
	}
	cb.resetLocked()
	cb.state = StateRecording
	cb.oneTime = oneTime
	return nil
}

// Reset returns the command buffer to the initial state.
func (cb *CommandBuffer) Reset() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.stateLocked() == StatePending {
		return errors.Wrap(ErrInvalidState, "resetting a pending command buffer")
	}
	cb.resetLocked()
	cb.state = StateInitial
	return nil
}

func (cb *CommandBuffer) resetLocked() {
	cb.d.descriptors.unpin(cb.pinned)
	cb.pinned = nil
	cb.ops = nil
	cb.err = nil
	cb.refs = map[*fenceSet]struct{}{}
	cb.pipeline = nil
	cb.st = defaultPipelineState()
	cb.stShared = false
	cb.bindings = map[bindingSlot]boundResource{}
	cb.vertex = nil
	cb.index = indexBinding{}
	cb.pass = nil
	cb.subpass = 0
}

// End encodes the recorded commands. It returns the first error recorded
// since Begin, in which case the command buffer is invalid.
func (cb *CommandBuffer) End() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateRecording {
		return errors.Wrapf(ErrInvalidState, "ending a command buffer in state %s", cb.state)
	}
	if cb.err == nil && cb.pass != nil {
		cb.err = errors.Wrap(ErrValidation, "render pass not ended")
	}
	if cb.err == nil {
		cb.err = cb.encode()
	}
	if cb.err != nil {
		cb.state = StateInvalid
		return cb.err
	}
	cb.state = StateExecutable
	Logger().Debug("command buffer ended", "ops", len(cb.ops), "descriptorSets", len(cb.pinned))
	return nil
}

// recording reports whether a record call may proceed.
func (cb *CommandBuffer) recording() bool {
	cb.mu.Lock()
	st := cb.stateLocked()
	cb.mu.Unlock()
	switch st {
	case StateRecording:
		return true
	case StateInvalid:
		if cb.err != nil {
			return false
		}
	}
	Logger().Warn("command ignored outside of recording", "state", st)
	return false
}

func (cb *CommandBuffer) fail(err error) {
	if cb.err == nil {
		cb.err = err
		Logger().Debug("command buffer invalidated", "err", err)
	}
}

func (cb *CommandBuffer) ref(fs ...*fenceSet) {
	for _, f := range fs {
		cb.refs[f] = struct{}{}
	}
}

// mutableState returns the fixed-function state for modification, copying
// it first if a recorded draw refers to it.
func (cb *CommandBuffer) mutableState() *pipelineState {
	if cb.stShared {
		cb.st = cb.st.clone()
		cb.stShared = false
	}
	return cb.st
}

// BindPipeline sets the pipeline used by following draws or dispatches.
func (cb *CommandBuffer) BindPipeline(p *Pipeline) {
	if !cb.recording() {
		return
	}
	if p == nil || p.destroyed.Load() {
		cb.fail(errors.Wrap(ErrInvalidHandle, "binding a destroyed pipeline"))
		return
	}
	cb.pipeline = p
}

func (cb *CommandBuffer) BindVertexBuffers(first uint32, buffers []*Buffer, offsets []uint64) {
	if !cb.recording() {
		return
	}
	if len(offsets) != len(buffers) {
		cb.fail(errors.Wrapf(ErrValidation, "%d vertex buffers with %d offsets", len(buffers), len(offsets)))
		return
	}
	for i, b := range buffers {
		if b == nil || b.usage&driver.BufferUsageVertex == 0 {
			cb.fail(errors.Wrapf(ErrValidation, "vertex buffer %d lacks vertex usage", first+uint32(i)))
			return
		}
	}
	if need := int(first) + len(buffers); need > len(cb.vertex) {
		cb.vertex = append(cb.vertex, make([]vertexBinding, need-len(cb.vertex))...)
	}
	cb.vertex = slices.Clone(cb.vertex)
	for i, b := range buffers {
		cb.vertex[int(first)+i] = vertexBinding{buffer: b, offset: offsets[i]}
	}
}

func (cb *CommandBuffer) BindIndexBuffer(b *Buffer, offset uint64, t driver.IndexType) {
	if !cb.recording() {
		return
	}
	if b == nil || b.usage&driver.BufferUsageIndex == 0 {
		cb.fail(errors.Wrap(ErrValidation, "index buffer lacks index usage"))
		return
	}
	if t != driver.IndexTypeUint16 && t != driver.IndexTypeUint32 {
		cb.fail(errors.Wrapf(ErrValidation, "index type %d", t))
		return
	}
	cb.index = indexBinding{buffer: b, offset: offset, indexType: t}
}

func (cb *CommandBuffer) bind(set, binding, element uint32, r boundResource) {
	cb.bindings[bindingSlot{set, binding, element}] = r
}

// BindBuffer binds [offset, offset+size) of b to a uniform or storage
// buffer binding. size may be driver.WholeSize.
func (cb *CommandBuffer) BindBuffer(b *Buffer, offset, size uint64, set, binding, element uint32) {
	if !cb.recording() {
		return
	}
	if b == nil {
		cb.fail(errors.Wrap(ErrInvalidHandle, "binding a nil buffer"))
		return
	}
	if offset >= b.size || (size != driver.WholeSize && offset+size > b.size) {
		cb.fail(errors.Wrapf(ErrValidation, "binding [%d, +%d) of a %d byte buffer", offset, size, b.size))
		return
	}
	cb.bind(set, binding, element, boundResource{kind: bindBuffer, buffer: b, offset: offset, size: size})
}

// BindBufferView binds a texel buffer view.
func (cb *CommandBuffer) BindBufferView(v *BufferView, set, binding, element uint32) {
	if !cb.recording() {
		return
	}
	if v == nil || v.destroyed {
		cb.fail(errors.Wrap(ErrInvalidHandle, "binding a destroyed buffer view"))
		return
	}
	cb.bind(set, binding, element, boundResource{kind: bindBufferView, texel: v})
}

// BindImageView binds an image view, with a sampler for combined image
// samplers. s may be nil for sampled images, storage images and input
// attachments.
func (cb *CommandBuffer) BindImageView(v *ImageView, s *Sampler, set, binding, element uint32) {
	if !cb.recording() {
		return
	}
	if v == nil || v.destroyed {
		cb.fail(errors.Wrap(ErrInvalidHandle, "binding a destroyed image view"))
		return
	}
	cb.bind(set, binding, element, boundResource{kind: bindImageView, view: v, sampler: s})
}

func (cb *CommandBuffer) BindSampler(s *Sampler, set, binding, element uint32) {
	if !cb.recording() {
		return
	}
	if s == nil {
		cb.fail(errors.Wrap(ErrInvalidHandle, "binding a nil sampler"))
		return
	}
	cb.bind(set, binding, element, boundResource{kind: bindSampler, sampler: s})
}

// PushConstants updates push constants of the bound pipeline's layout.
func (cb *CommandBuffer) PushConstants(offset uint32, data []byte) {
	if !cb.recording() {
		return
	}
	if cb.pipeline == nil {
		cb.fail(errors.Wrap(ErrValidation, "push constants without a bound pipeline"))
		return
	}
	l := cb.pipeline.layout
	stages := l.pushStages(offset, uint32(len(data)))
	if stages == 0 || len(data) == 0 || len(data)%4 != 0 || offset%4 != 0 {
		cb.fail(errors.Wrapf(ErrValidation, "push constants [%d, +%d) outside the pipeline's ranges", offset, len(data)))
		return
	}
	cb.ops = append(cb.ops, &opPushConstants{layout: l, stages: stages, offset: offset, data: slices.Clone(data)})
}

// SetVertexInputFormat overrides the vertex format derived from the vertex
// shader. nil restores the derived format.
func (cb *CommandBuffer) SetVertexInputFormat(f *VertexInputFormat) {
	if !cb.recording() {
		return
	}
	cb.mutableState().vertexFormat = f
}

func (cb *CommandBuffer) SetInputAssemblyState(s *InputAssemblyState) {
	if cb.recording() {
		cb.mutableState().inputAssembly = *s
	}
}

func (cb *CommandBuffer) SetRasterizationState(s *RasterizationState) {
	if !cb.recording() {
		return
	}
	if s.PolygonMode != driver.PolygonModeFill && !cb.d.props.Features.FillModeNonSolid {
		cb.fail(errors.Wrap(ErrFeatureNotPresent, "non-solid polygon mode"))
		return
	}
	if s.DepthClamp && !cb.d.props.Features.DepthClamp {
		cb.fail(errors.Wrap(ErrFeatureNotPresent, "depth clamp"))
		return
	}
	cb.mutableState().rasterization = *s
}

func (cb *CommandBuffer) SetMultisampleState(s *MultisampleState) {
	if !cb.recording() {
		return
	}
	if s.SampleShading && !cb.d.props.Features.SampleRateShading {
		cb.fail(errors.Wrap(ErrFeatureNotPresent, "sample rate shading"))
		return
	}
	cb.mutableState().multisample = *s
}

func (cb *CommandBuffer) SetDepthStencilState(s *DepthStencilState) {
	if !cb.recording() {
		return
	}
	if s.DepthBoundsTest && !cb.d.props.Features.DepthBounds {
		cb.fail(errors.Wrap(ErrFeatureNotPresent, "depth bounds test"))
		return
	}
	cb.mutableState().depthStencil = *s
}

func (cb *CommandBuffer) SetColorBlendState(s *ColorBlendState) {
	if !cb.recording() {
		return
	}
	if s.LogicOpEnable && !cb.d.props.Features.LogicOp {
		cb.fail(errors.Wrap(ErrFeatureNotPresent, "logic op"))
		return
	}
	st := cb.mutableState()
	st.colorBlend = *s
	st.colorBlend.Attachments = slices.Clone(s.Attachments)
}

func (cb *CommandBuffer) SetViewportState(s *ViewportState) {
	if !cb.recording() {
		return
	}
	if (s.ViewportCount > 1 || s.ScissorCount > 1) && !cb.d.props.Features.MultiViewport {
		cb.fail(errors.Wrap(ErrFeatureNotPresent, "multiple viewports"))
		return
	}
	cb.mutableState().viewport = *s
}

func (cb *CommandBuffer) SetTessellationState(s *TessellationState) {
	if cb.recording() {
		cb.mutableState().tessellation = *s
	}
}

func (cb *CommandBuffer) dynamic(s driver.DynamicState, emit func(drv driver.Device, h driver.CommandBuffer)) {
	if cb.recording() {
		cb.ops = append(cb.ops, &opDynamic{state: s, emit: emit})
	}
}

func (cb *CommandBuffer) SetViewport(first uint32, viewports []driver.Viewport) {
	viewports = slices.Clone(viewports)
	cb.dynamic(driver.DynamicViewport, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdSetViewport(h, first, viewports)
	})
}

func (cb *CommandBuffer) SetScissor(first uint32, scissors []driver.Rect2D) {
	scissors = slices.Clone(scissors)
	cb.dynamic(driver.DynamicScissor, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdSetScissor(h, first, scissors)
	})
}

func (cb *CommandBuffer) SetLineWidth(width float32) {
	if width != 1 && !cb.d.props.Features.WideLines {
		if cb.recording() {
			cb.fail(errors.Wrap(ErrFeatureNotPresent, "wide lines"))
		}
		return
	}
	cb.dynamic(driver.DynamicLineWidth, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdSetLineWidth(h, width)
	})
}

func (cb *CommandBuffer) SetDepthBias(constantFactor, clamp, slopeFactor float32) {
	cb.dynamic(driver.DynamicDepthBias, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdSetDepthBias(h, constantFactor, clamp, slopeFactor)
	})
}

func (cb *CommandBuffer) SetBlendConstants(constants [4]float32) {
	cb.dynamic(driver.DynamicBlendConstants, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdSetBlendConstants(h, constants)
	})
}

func (cb *CommandBuffer) SetDepthBounds(minDepth, maxDepth float32) {
	cb.dynamic(driver.DynamicDepthBounds, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdSetDepthBounds(h, minDepth, maxDepth)
	})
}

func (cb *CommandBuffer) SetStencilCompareMask(face driver.StencilFace, mask uint32) {
	cb.dynamic(driver.DynamicStencilCompareMask, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdSetStencilCompareMask(h, face, mask)
	})
}

func (cb *CommandBuffer) SetStencilWriteMask(face driver.StencilFace, mask uint32) {
	cb.dynamic(driver.DynamicStencilWriteMask, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdSetStencilWriteMask(h, face, mask)
	})
}

func (cb *CommandBuffer) SetStencilReference(face driver.StencilFace, ref uint32) {
	cb.dynamic(driver.DynamicStencilReference, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdSetStencilReference(h, face, ref)
	})
}

// passRecord is a render pass as recorded; the driver render pass and
// framebuffer are resolved by End.
type passRecord struct {
	fb     *Framebuffer
	layout *passLayout
	refs   []AttachmentReference
	area   driver.Rect2D
	images []*Image
}

func (p *passRecord) isAttachment(img *Image) bool { return slices.Contains(p.images, img) }

// inputLayout returns the layout input attachments have in subpass s.
func (p *passRecord) inputLayout(s int) attachmentLayout {
	return func(v *ImageView) driver.ImageLayout {
		img := v.Image()
		for a, fv := range p.fb.views {
			if p.images[a] == img && fv.subresources().overlaps(v.subresources()) {
				return p.layout.uses[s][a].layout(p.layout.formats[a])
			}
		}
		return driver.LayoutShaderReadOnlyOptimal
	}
}

// BeginRenderPass begins a render pass on info.Framebuffer. Attachment
// layouts and dependencies are derived from the subpasses and from how the
// attachments are used before and after the pass.
func (cb *CommandBuffer) BeginRenderPass(info *RenderPassBeginInfo) {
	if !cb.recording() {
		return
	}
	if cb.pass != nil {
		cb.fail(errors.Wrap(ErrValidation, "render pass begun inside a render pass"))
		return
	}
	if cb.family != cb.d.graphics.family && cb.d.props.QueueFamilies[cb.family].Flags&driver.QueueGraphics == 0 {
		cb.fail(errors.Wrap(ErrValidation, "render pass on a non-graphics queue"))
		return
	}
	fb := info.Framebuffer
	if fb == nil {
		cb.fail(errors.Wrap(ErrInvalidHandle, "render pass without a framebuffer"))
		return
	}
	if len(info.Attachments) == 0 || len(info.Attachments) != len(fb.views) {
		cb.fail(errors.Wrapf(ErrValidation, "render pass with %d attachment references for %d framebuffer attachments",
			len(info.Attachments), len(fb.views)))
		return
	}
	p := &passRecord{fb: fb, refs: slices.Clone(info.Attachments), area: info.RenderArea}
	for i, v := range fb.views {
		img := v.Image()
		if v.destroyed || img == nil {
			cb.fail(errors.Wrapf(ErrInvalidHandle, "framebuffer attachment %d is destroyed", i))
			return
		}
		p.images = append(p.images, img)
		cb.ref(&v.uses, &img.uses)
	}
	l, err := newPassLayout(fb.views, info.Subpasses)
	if err != nil {
		cb.fail(err)
		return
	}
	p.layout = l
	if p.area.Extent.Width == 0 && p.area.Extent.Height == 0 {
		p.area = driver.Rect2D{Extent: driver.Extent2D{Width: fb.width, Height: fb.height}}
	}
	cb.pass, cb.subpass = p, 0
	cb.ops = append(cb.ops, &opBeginPass{pass: p})
}

// NextSubpass advances to the next subpass declared at BeginRenderPass.
func (cb *CommandBuffer) NextSubpass() {
	if !cb.recording() {
		return
	}
	if cb.pass == nil {
		cb.fail(errors.Wrap(ErrValidation, "next subpass outside a render pass"))
		return
	}
	if cb.subpass+1 >= len(cb.pass.layout.subs) {
		cb.fail(errors.Wrapf(ErrValidation, "next subpass past the last of %d subpasses", len(cb.pass.layout.subs)))
		return
	}
	cb.subpass++
	cb.ops = append(cb.ops, &opNextSubpass{})
}

func (cb *CommandBuffer) EndRenderPass() {
	if !cb.recording() {
		return
	}
	if cb.pass == nil {
		cb.fail(errors.Wrap(ErrValidation, "end render pass outside a render pass"))
		return
	}
	if cb.subpass != len(cb.pass.layout.subs)-1 {
		cb.fail(errors.Wrapf(ErrValidation, "render pass ended in subpass %d of %d", cb.subpass, len(cb.pass.layout.subs)))
		return
	}
	cb.pass = nil
	cb.ops = append(cb.ops, &opEndPass{})
}

// prepare resolves the descriptor sets of the bound pipeline and collects
// the accesses of a draw or dispatch.
func (cb *CommandBuffer) prepare(o *opDraw) bool {
	p := cb.pipeline
	if p == nil {
		cb.fail(errors.Wrap(ErrValidation, "draw or dispatch without a bound pipeline"))
		return false
	}
	if p.destroyed.Load() {
		cb.fail(errors.Wrap(ErrInvalidHandle, "bound pipeline is destroyed"))
		return false
	}
	graphics := o.kind <= drawIndexedIndirect
	switch {
	case graphics && p.bindPoint != driver.BindPointGraphics:
		cb.fail(errors.Wrap(ErrValidation, "draw with a compute pipeline bound"))
		return false
	case !graphics && p.bindPoint != driver.BindPointCompute:
		cb.fail(errors.Wrap(ErrValidation, "dispatch with a graphics pipeline bound"))
		return false
	case graphics && cb.pass == nil:
		cb.fail(errors.Wrap(ErrValidation, "draw outside a render pass"))
		return false
	case !graphics && cb.pass != nil:
		cb.fail(errors.Wrap(ErrValidation, "dispatch inside a render pass"))
		return false
	}
	o.pipeline = p
	o.accesses = &accessSet{}
	var input attachmentLayout
	if cb.pass != nil {
		input = cb.pass.inputLayout(cb.subpass)
	}
	o.sets = make([]driver.DescriptorSet, len(p.layout.sets))
	for i, l := range p.layout.sets {
		if len(l.bindings) == 0 {
			continue
		}
		content, err := buildSetContent(p, uint32(i), l, cb.bindings, input)
		if err != nil {
			cb.fail(err)
			return false
		}
		s, err := cb.d.descriptors.get(l, content)
		if err != nil {
			cb.fail(err)
			return false
		}
		cb.pinned = append(cb.pinned, s)
		cb.ref(&s.uses)
		cb.ref(content.refs...)
		o.sets[i] = s.handle
		for _, a := range content.accesses {
			if a.image != nil && cb.pass != nil && cb.pass.isAttachment(a.image) {
				if a.access != driver.AccessInputAttachmentRead {
					Logger().Warn("attachment of the current render pass read through a descriptor", "image", a.image.id)
				}
				continue
			}
			if err := o.accesses.add(a); err != nil {
				cb.fail(err)
				return false
			}
		}
	}
	if graphics {
		cb.stShared = true
		o.state = cb.st
		vf := cb.st.vertexFormat
		if vf == nil {
			vf = p.defaultVertex
		}
		o.vertex = slices.Clone(cb.vertex)
		for _, vb := range vf.bindings {
			if int(vb.Binding) >= len(cb.vertex) || cb.vertex[vb.Binding].buffer == nil {
				cb.fail(errors.Wrapf(ErrValidation, "vertex binding %d has no buffer bound", vb.Binding))
				return false
			}
			buf := cb.vertex[vb.Binding].buffer
			cb.ref(&buf.uses)
			o.accesses.addBuffer(buf, driver.StageVertexInput, driver.AccessVertexAttributeRead)
		}
	}
	return true
}

func (cb *CommandBuffer) recordDraw(o *opDraw) {
	if !cb.recording() || !cb.prepare(o) {
		return
	}
	if o.kind == drawIndexed || o.kind == drawIndexedIndirect {
		if cb.index.buffer == nil {
			cb.fail(errors.Wrap(ErrValidation, "indexed draw without an index buffer"))
			return
		}
		o.index = cb.index
		cb.ref(&cb.index.buffer.uses)
		o.accesses.addBuffer(cb.index.buffer, driver.StageVertexInput, driver.AccessIndexRead)
	}
	if b := o.indirect; b != nil {
		if b.usage&driver.BufferUsageIndirect == 0 {
			cb.fail(errors.Wrap(ErrValidation, "indirect buffer lacks indirect usage"))
			return
		}
		cb.ref(&b.uses)
		o.accesses.addBuffer(b, driver.StageDrawIndirect, driver.AccessIndirectCommandRead)
	}
	cb.ops = append(cb.ops, o)
}

func (cb *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	cb.recordDraw(&opDraw{kind: drawPlain, args: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	cb.recordDraw(&opDraw{kind: drawIndexed, args: [4]uint32{indexCount, instanceCount, firstIndex, firstInstance}, vertexOffset: vertexOffset})
}

func (cb *CommandBuffer) DrawIndirect(b *Buffer, offset uint64, drawCount, stride uint32) {
	cb.recordDraw(&opDraw{kind: drawIndirect, indirect: b, offset: offset, args: [4]uint32{drawCount, stride}})
}

func (cb *CommandBuffer) DrawIndexedIndirect(b *Buffer, offset uint64, drawCount, stride uint32) {
	cb.recordDraw(&opDraw{kind: drawIndexedIndirect, indirect: b, offset: offset, args: [4]uint32{drawCount, stride}})
}

func (cb *CommandBuffer) Dispatch(x, y, z uint32) {
	cb.recordDraw(&opDraw{kind: dispatchDirect, args: [4]uint32{x, y, z}})
}

func (cb *CommandBuffer) DispatchIndirect(b *Buffer, offset uint64) {
	cb.recordDraw(&opDraw{kind: dispatchIndirect, indirect: b, offset: offset})
}
