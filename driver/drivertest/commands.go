package drivertest

import (
	"github.com/celer/vkez/driver"
)

// Recorded commands. Commands returns them in record order.
type (
	BeginRenderPass struct{ Info driver.RenderPassBeginInfo }
	NextSubpass     struct{}
	EndRenderPass   struct{}
	BindPipeline    struct {
		BindPoint driver.PipelineBindPoint
		Pipeline  driver.Pipeline
	}
	BindDescriptorSets struct {
		BindPoint      driver.PipelineBindPoint
		Layout         driver.PipelineLayout
		FirstSet       uint32
		Sets           []driver.DescriptorSet
		DynamicOffsets []uint32
	}
	BindVertexBuffers struct {
		First   uint32
		Buffers []driver.Buffer
		Offsets []uint64
	}
	BindIndexBuffer struct {
		Buffer driver.Buffer
		Offset uint64
		Type   driver.IndexType
	}
	PushConstants struct {
		Layout driver.PipelineLayout
		Stages driver.ShaderStage
		Offset uint32
		Data   []byte
	}
	SetViewport struct {
		First     uint32
		Viewports []driver.Viewport
	}
	SetScissor struct {
		First    uint32
		Scissors []driver.Rect2D
	}
	SetLineWidth      struct{ Width float32 }
	SetDepthBias      struct{ Constant, Clamp, Slope float32 }
	SetBlendConstants struct{ Constants [4]float32 }
	SetDepthBounds    struct{ Min, Max float32 }
	SetStencil        struct {
		Which string
		Face  driver.StencilFace
		Value uint32
	}
	Draw struct {
		VertexCount, InstanceCount, FirstVertex, FirstInstance uint32
	}
	DrawIndexed struct {
		IndexCount, InstanceCount, FirstIndex uint32
		VertexOffset                          int32
		FirstInstance                         uint32
	}
	DrawIndirect struct {
		Indexed   bool
		Buffer    driver.Buffer
		Offset    uint64
		DrawCount uint32
		Stride    uint32
	}
	Dispatch         struct{ X, Y, Z uint32 }
	DispatchIndirect struct {
		Buffer driver.Buffer
		Offset uint64
	}
	CopyBuffer struct {
		Src, Dst driver.Buffer
		Regions  []driver.BufferCopy
	}
	CopyBufferToImage struct {
		Src     driver.Buffer
		Dst     driver.Image
		Layout  driver.ImageLayout
		Regions []driver.BufferImageCopy
	}
	CopyImageToBuffer struct {
		Src     driver.Image
		Layout  driver.ImageLayout
		Dst     driver.Buffer
		Regions []driver.BufferImageCopy
	}
	CopyImage struct {
		Src       driver.Image
		SrcLayout driver.ImageLayout
		Dst       driver.Image
		DstLayout driver.ImageLayout
		Regions   []driver.ImageCopy
	}
	BlitImage struct {
		Src       driver.Image
		SrcLayout driver.ImageLayout
		Dst       driver.Image
		DstLayout driver.ImageLayout
		Regions   []driver.ImageBlit
		Filter    driver.Filter
	}
	ResolveImage struct {
		Src       driver.Image
		SrcLayout driver.ImageLayout
		Dst       driver.Image
		DstLayout driver.ImageLayout
		Regions   []driver.ImageResolve
	}
	FillBuffer struct {
		Buffer       driver.Buffer
		Offset, Size uint64
		Data         uint32
	}
	UpdateBuffer struct {
		Buffer driver.Buffer
		Offset uint64
		Data   []byte
	}
	ClearColorImage struct {
		Image  driver.Image
		Layout driver.ImageLayout
		Color  [4]float32
		Ranges []driver.ImageSubresourceRange
	}
	ClearDepthStencilImage struct {
		Image   driver.Image
		Layout  driver.ImageLayout
		Depth   float32
		Stencil uint32
		Ranges  []driver.ImageSubresourceRange
	}
	ClearAttachments struct {
		Attachments []driver.ClearAttachment
		Rects       []driver.ClearRect
	}
)

// Of returns the commands of type T in cmds.
func Of[T any](cmds []any) []T {
	var out []T
	for _, c := range cmds {
		if t, ok := c.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// Commands returns the commands recorded into cb since it was last begun.
func (d *Device) Commands(cb driver.CommandBuffer) []any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]any(nil), d.commands[cb]...)
}

func (d *Device) record(cb driver.CommandBuffer, c any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ended[cb] {
		d.Errors = append(d.Errors, "command recorded after end")
	}
	d.commands[cb] = append(d.commands[cb], c)
}

func (d *Device) CreateCommandPool(queueFamily uint32) (driver.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(queueFamily) >= len(d.props.QueueFamilies) {
		return 0, driver.ErrValidation
	}
	return driver.CommandPool(d.newObject(KindCommandPool, queueFamily)), nil
}

func (d *Device) DestroyCommandPool(p driver.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindCommandPool, uint64(p))
}

func (d *Device) AllocateCommandBuffer(p driver.CommandPool) (driver.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return driver.CommandBuffer(d.newObject(KindCommandBuffer, p)), nil
}

func (d *Device) FreeCommandBuffer(p driver.CommandPool, cb driver.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindCommandBuffer, uint64(cb))
	delete(d.commands, cb)
	delete(d.ended, cb)
}

func (d *Device) BeginCommandBuffer(cb driver.CommandBuffer, oneTimeSubmit bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands[cb] = nil
	d.ended[cb] = false
	return nil
}

func (d *Device) EndCommandBuffer(cb driver.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ended[cb] = true
	return nil
}

func (d *Device) ResetCommandBuffer(cb driver.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands[cb] = nil
	d.ended[cb] = false
	return nil
}

func (d *Device) CmdPipelineBarrier(cb driver.CommandBuffer, b *driver.PipelineBarrier) {
	d.record(cb, *b)
}

func (d *Device) CmdBeginRenderPass(cb driver.CommandBuffer, info *driver.RenderPassBeginInfo) {
	d.record(cb, BeginRenderPass{Info: *info})
}

func (d *Device) CmdNextSubpass(cb driver.CommandBuffer) { d.record(cb, NextSubpass{}) }

func (d *Device) CmdEndRenderPass(cb driver.CommandBuffer) { d.record(cb, EndRenderPass{}) }

func (d *Device) CmdBindPipeline(cb driver.CommandBuffer, bp driver.PipelineBindPoint, p driver.Pipeline) {
	d.record(cb, BindPipeline{BindPoint: bp, Pipeline: p})
}

func (d *Device) CmdBindDescriptorSets(cb driver.CommandBuffer, bp driver.PipelineBindPoint, layout driver.PipelineLayout, firstSet uint32, sets []driver.DescriptorSet, dynamicOffsets []uint32) {
	d.record(cb, BindDescriptorSets{
		BindPoint:      bp,
		Layout:         layout,
		FirstSet:       firstSet,
		Sets:           append([]driver.DescriptorSet(nil), sets...),
		DynamicOffsets: append([]uint32(nil), dynamicOffsets...),
	})
}

func (d *Device) CmdBindVertexBuffers(cb driver.CommandBuffer, firstBinding uint32, buffers []driver.Buffer, offsets []uint64) {
	d.record(cb, BindVertexBuffers{
		First:   firstBinding,
		Buffers: append([]driver.Buffer(nil), buffers...),
		Offsets: append([]uint64(nil), offsets...),
	})
}

func (d *Device) CmdBindIndexBuffer(cb driver.CommandBuffer, b driver.Buffer, offset uint64, t driver.IndexType) {
	d.record(cb, BindIndexBuffer{Buffer: b, Offset: offset, Type: t})
}

func (d *Device) CmdPushConstants(cb driver.CommandBuffer, layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	d.record(cb, PushConstants{Layout: layout, Stages: stages, Offset: offset, Data: append([]byte(nil), data...)})
}

func (d *Device) CmdSetViewport(cb driver.CommandBuffer, first uint32, viewports []driver.Viewport) {
	d.record(cb, SetViewport{First: first, Viewports: append([]driver.Viewport(nil), viewports...)})
}

func (d *Device) CmdSetScissor(cb driver.CommandBuffer, first uint32, scissors []driver.Rect2D) {
	d.record(cb, SetScissor{First: first, Scissors: append([]driver.Rect2D(nil), scissors...)})
}

func (d *Device) CmdSetLineWidth(cb driver.CommandBuffer, width float32) {
	d.record(cb, SetLineWidth{Width: width})
}

func (d *Device) CmdSetDepthBias(cb driver.CommandBuffer, constantFactor, clamp, slopeFactor float32) {
	d.record(cb, SetDepthBias{Constant: constantFactor, Clamp: clamp, Slope: slopeFactor})
}

func (d *Device) CmdSetBlendConstants(cb driver.CommandBuffer, constants [4]float32) {
	d.record(cb, SetBlendConstants{Constants: constants})
}

func (d *Device) CmdSetDepthBounds(cb driver.CommandBuffer, min, max float32) {
	d.record(cb, SetDepthBounds{Min: min, Max: max})
}

func (d *Device) CmdSetStencilCompareMask(cb driver.CommandBuffer, face driver.StencilFace, mask uint32) {
	d.record(cb, SetStencil{Which: "compareMask", Face: face, Value: mask})
}

func (d *Device) CmdSetStencilWriteMask(cb driver.CommandBuffer, face driver.StencilFace, mask uint32) {
	d.record(cb, SetStencil{Which: "writeMask", Face: face, Value: mask})
}

func (d *Device) CmdSetStencilReference(cb driver.CommandBuffer, face driver.StencilFace, ref uint32) {
	d.record(cb, SetStencil{Which: "reference", Face: face, Value: ref})
}

func (d *Device) CmdDraw(cb driver.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.record(cb, Draw{vertexCount, instanceCount, firstVertex, firstInstance})
}

func (d *Device) CmdDrawIndexed(cb driver.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.record(cb, DrawIndexed{indexCount, instanceCount, firstIndex, vertexOffset, firstInstance})
}

func (d *Device) CmdDrawIndirect(cb driver.CommandBuffer, b driver.Buffer, offset uint64, drawCount, stride uint32) {
	d.record(cb, DrawIndirect{Buffer: b, Offset: offset, DrawCount: drawCount, Stride: stride})
}

func (d *Device) CmdDrawIndexedIndirect(cb driver.CommandBuffer, b driver.Buffer, offset uint64, drawCount, stride uint32) {
	d.record(cb, DrawIndirect{Indexed: true, Buffer: b, Offset: offset, DrawCount: drawCount, Stride: stride})
}

func (d *Device) CmdDispatch(cb driver.CommandBuffer, x, y, z uint32) {
	d.record(cb, Dispatch{x, y, z})
}

func (d *Device) CmdDispatchIndirect(cb driver.CommandBuffer, b driver.Buffer, offset uint64) {
	d.record(cb, DispatchIndirect{Buffer: b, Offset: offset})
}

func (d *Device) CmdCopyBuffer(cb driver.CommandBuffer, src, dst driver.Buffer, regions []driver.BufferCopy) {
	d.record(cb, CopyBuffer{Src: src, Dst: dst, Regions: append([]driver.BufferCopy(nil), regions...)})
}

func (d *Device) CmdCopyBufferToImage(cb driver.CommandBuffer, src driver.Buffer, dst driver.Image, layout driver.ImageLayout, regions []driver.BufferImageCopy) {
	d.record(cb, CopyBufferToImage{Src: src, Dst: dst, Layout: layout, Regions: append([]driver.BufferImageCopy(nil), regions...)})
}

func (d *Device) CmdCopyImageToBuffer(cb driver.CommandBuffer, src driver.Image, layout driver.ImageLayout, dst driver.Buffer, regions []driver.BufferImageCopy) {
	d.record(cb, CopyImageToBuffer{Src: src, Layout: layout, Dst: dst, Regions: append([]driver.BufferImageCopy(nil), regions...)})
}

func (d *Device) CmdCopyImage(cb driver.CommandBuffer, src driver.Image, srcLayout driver.ImageLayout, dst driver.Image, dstLayout driver.ImageLayout, regions []driver.ImageCopy) {
	d.record(cb, CopyImage{src, srcLayout, dst, dstLayout, append([]driver.ImageCopy(nil), regions...)})
}

func (d *Device) CmdBlitImage(cb driver.CommandBuffer, src driver.Image, srcLayout driver.ImageLayout, dst driver.Image, dstLayout driver.ImageLayout, regions []driver.ImageBlit, filter driver.Filter) {
	d.record(cb, BlitImage{src, srcLayout, dst, dstLayout, append([]driver.ImageBlit(nil), regions...), filter})
}

func (d *Device) CmdResolveImage(cb driver.CommandBuffer, src driver.Image, srcLayout driver.ImageLayout, dst driver.Image, dstLayout driver.ImageLayout, regions []driver.ImageResolve) {
	d.record(cb, ResolveImage{src, srcLayout, dst, dstLayout, append([]driver.ImageResolve(nil), regions...)})
}

func (d *Device) CmdFillBuffer(cb driver.CommandBuffer, b driver.Buffer, offset, size uint64, data uint32) {
	d.record(cb, FillBuffer{Buffer: b, Offset: offset, Size: size, Data: data})
}

func (d *Device) CmdUpdateBuffer(cb driver.CommandBuffer, b driver.Buffer, offset uint64, data []byte) {
	d.record(cb, UpdateBuffer{Buffer: b, Offset: offset, Data: append([]byte(nil), data...)})
}

func (d *Device) CmdClearColorImage(cb driver.CommandBuffer, img driver.Image, layout driver.ImageLayout, color [4]float32, ranges []driver.ImageSubresourceRange) {
	d.record(cb, ClearColorImage{Image: img, Layout: layout, Color: color, Ranges: append([]driver.ImageSubresourceRange(nil), ranges...)})
}

func (d *Device) CmdClearDepthStencilImage(cb driver.CommandBuffer, img driver.Image, layout driver.ImageLayout, depth float32, stencil uint32, ranges []driver.ImageSubresourceRange) {
	d.record(cb, ClearDepthStencilImage{Image: img, Layout: layout, Depth: depth, Stencil: stencil, Ranges: append([]driver.ImageSubresourceRange(nil), ranges...)})
}

func (d *Device) CmdClearAttachments(cb driver.CommandBuffer, attachments []driver.ClearAttachment, rects []driver.ClearRect) {
	d.record(cb, ClearAttachments{
		Attachments: append([]driver.ClearAttachment(nil), attachments...),
		Rects:       append([]driver.ClearRect(nil), rects...),
	})
}

var _ driver.Device = (*Device)(nil)
