package vk

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkez/driver"
)

// CreateCommandPool creates a pool whose buffers can be reset one by one.
func (d *Device) CreateCommandPool(queueFamily uint32) (driver.CommandPool, error) {
	ci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: queueFamily,
	}
	var p vk.CommandPool
	if err := check(vk.CreateCommandPool(d.handle, &ci, nil, &p)); err != nil {
		return 0, errors.Wrap(err, "creating command pool")
	}
	return d.commandPools.put(p), nil
}

func (d *Device) DestroyCommandPool(p driver.CommandPool) {
	if h, ok := d.commandPools.take(p); ok {
		vk.DestroyCommandPool(d.handle, h, nil)
	}
}

func (d *Device) AllocateCommandBuffer(p driver.CommandPool) (driver.CommandBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPools.get(p),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cbs := make([]vk.CommandBuffer, 1)
	if err := check(vk.AllocateCommandBuffers(d.handle, &info, cbs)); err != nil {
		return 0, errors.Wrap(err, "allocating command buffer")
	}
	return d.commandBuffers.put(cbs[0]), nil
}

func (d *Device) FreeCommandBuffer(p driver.CommandPool, cb driver.CommandBuffer) {
	if h, ok := d.commandBuffers.take(cb); ok {
		vk.FreeCommandBuffers(d.handle, d.commandPools.get(p), 1, []vk.CommandBuffer{h})
	}
}

func (d *Device) BeginCommandBuffer(cb driver.CommandBuffer, oneTimeSubmit bool) error {
	info := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if oneTimeSubmit {
		info.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return check(vk.BeginCommandBuffer(d.commandBuffers.get(cb), &info))
}

func (d *Device) EndCommandBuffer(cb driver.CommandBuffer) error {
	return check(vk.EndCommandBuffer(d.commandBuffers.get(cb)))
}

func (d *Device) ResetCommandBuffer(cb driver.CommandBuffer) error {
	return check(vk.ResetCommandBuffer(d.commandBuffers.get(cb), 0))
}

func (d *Device) CmdPipelineBarrier(cb driver.CommandBuffer, b *driver.PipelineBarrier) {
	mem := make([]vk.MemoryBarrier, len(b.Memory))
	for i, m := range b.Memory {
		mem[i] = vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(m.SrcAccess),
			DstAccessMask: vk.AccessFlags(m.DstAccess),
		}
	}
	bufs := make([]vk.BufferMemoryBarrier, len(b.Buffers))
	for i, bb := range b.Buffers {
		bufs[i] = vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(bb.SrcAccess),
			DstAccessMask:       vk.AccessFlags(bb.DstAccess),
			SrcQueueFamilyIndex: bb.SrcQueueFamily,
			DstQueueFamilyIndex: bb.DstQueueFamily,
			Buffer:              d.buffers.get(bb.Buffer),
			Offset:              vk.DeviceSize(bb.Offset),
			Size:                vk.DeviceSize(bb.Size),
		}
	}
	imgs := make([]vk.ImageMemoryBarrier, len(b.Images))
	for i, ib := range b.Images {
		imgs[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(ib.SrcAccess),
			DstAccessMask:       vk.AccessFlags(ib.DstAccess),
			OldLayout:           vk.ImageLayout(ib.OldLayout),
			NewLayout:           vk.ImageLayout(ib.NewLayout),
			SrcQueueFamilyIndex: ib.SrcQueueFamily,
			DstQueueFamilyIndex: ib.DstQueueFamily,
			Image:               d.images.get(ib.Image),
			SubresourceRange:    subresourceRange(ib.Range),
		}
	}
	var flags vk.DependencyFlags
	if b.ByRegion {
		flags = vk.DependencyFlags(vk.DependencyByRegionBit)
	}
	vk.CmdPipelineBarrier(d.commandBuffers.get(cb),
		vk.PipelineStageFlags(b.SrcStage), vk.PipelineStageFlags(b.DstStage), flags,
		uint32(len(mem)), mem, uint32(len(bufs)), bufs, uint32(len(imgs)), imgs)
}

func (d *Device) CmdBeginRenderPass(cb driver.CommandBuffer, info *driver.RenderPassBeginInfo) {
	rp := d.renderPasses.get(info.RenderPass)
	clears := make([]vk.ClearValue, len(info.ClearValues))
	for i, c := range info.ClearValues {
		clears[i] = clearValue(c, i < len(rp.depth) && rp.depth[i])
	}
	vk.CmdBeginRenderPass(d.commandBuffers.get(cb), &vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      rp.rp,
		Framebuffer:     d.framebuffers.get(info.Framebuffer),
		RenderArea:      rect2D(info.Area),
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}, vk.SubpassContentsInline)
}

func (d *Device) CmdNextSubpass(cb driver.CommandBuffer) {
	vk.CmdNextSubpass(d.commandBuffers.get(cb), vk.SubpassContentsInline)
}

func (d *Device) CmdEndRenderPass(cb driver.CommandBuffer) {
	vk.CmdEndRenderPass(d.commandBuffers.get(cb))
}

func (d *Device) CmdBindPipeline(cb driver.CommandBuffer, bp driver.PipelineBindPoint, p driver.Pipeline) {
	vk.CmdBindPipeline(d.commandBuffers.get(cb), vk.PipelineBindPoint(bp), d.pipelines.get(p))
}

func (d *Device) CmdBindDescriptorSets(cb driver.CommandBuffer, bp driver.PipelineBindPoint, layout driver.PipelineLayout,
	firstSet uint32, sets []driver.DescriptorSet, dynamicOffsets []uint32) {
	vk.CmdBindDescriptorSets(d.commandBuffers.get(cb), vk.PipelineBindPoint(bp), d.pipelineLayouts.get(layout),
		firstSet, uint32(len(sets)), getAll(&d.descriptorSets, sets), uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (d *Device) CmdBindVertexBuffers(cb driver.CommandBuffer, firstBinding uint32, buffers []driver.Buffer, offsets []uint64) {
	offs := make([]vk.DeviceSize, len(offsets))
	for i, o := range offsets {
		offs[i] = vk.DeviceSize(o)
	}
	vk.CmdBindVertexBuffers(d.commandBuffers.get(cb), firstBinding, uint32(len(buffers)), getAll(&d.buffers, buffers), offs)
}

func (d *Device) CmdBindIndexBuffer(cb driver.CommandBuffer, b driver.Buffer, offset uint64, t driver.IndexType) {
	vk.CmdBindIndexBuffer(d.commandBuffers.get(cb), d.buffers.get(b), vk.DeviceSize(offset), vk.IndexType(t))
}

func (d *Device) CmdPushConstants(cb driver.CommandBuffer, layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	vk.CmdPushConstants(d.commandBuffers.get(cb), d.pipelineLayouts.get(layout), vk.ShaderStageFlags(stages),
		offset, uint32(len(data)), ptr(data))
}

func (d *Device) CmdSetViewport(cb driver.CommandBuffer, first uint32, viewports []driver.Viewport) {
	vps := make([]vk.Viewport, len(viewports))
	for i, v := range viewports {
		vps[i] = vk.Viewport{X: v.X, Y: v.Y, Width: v.Width, Height: v.Height, MinDepth: v.MinDepth, MaxDepth: v.MaxDepth}
	}
	vk.CmdSetViewport(d.commandBuffers.get(cb), first, uint32(len(vps)), vps)
}

func (d *Device) CmdSetScissor(cb driver.CommandBuffer, first uint32, scissors []driver.Rect2D) {
	rs := make([]vk.Rect2D, len(scissors))
	for i, r := range scissors {
		rs[i] = rect2D(r)
	}
	vk.CmdSetScissor(d.commandBuffers.get(cb), first, uint32(len(rs)), rs)
}

func (d *Device) CmdSetLineWidth(cb driver.CommandBuffer, width float32) {
	vk.CmdSetLineWidth(d.commandBuffers.get(cb), width)
}

func (d *Device) CmdSetDepthBias(cb driver.CommandBuffer, constantFactor, clamp, slopeFactor float32) {
	vk.CmdSetDepthBias(d.commandBuffers.get(cb), constantFactor, clamp, slopeFactor)
}

func (d *Device) CmdSetBlendConstants(cb driver.CommandBuffer, constants [4]float32) {
	vk.CmdSetBlendConstants(d.commandBuffers.get(cb), &constants)
}

func (d *Device) CmdSetDepthBounds(cb driver.CommandBuffer, min, max float32) {
	vk.CmdSetDepthBounds(d.commandBuffers.get(cb), min, max)
}

func (d *Device) CmdSetStencilCompareMask(cb driver.CommandBuffer, face driver.StencilFace, mask uint32) {
	vk.CmdSetStencilCompareMask(d.commandBuffers.get(cb), vk.StencilFaceFlags(face), mask)
}

func (d *Device) CmdSetStencilWriteMask(cb driver.CommandBuffer, face driver.StencilFace, mask uint32) {
	vk.CmdSetStencilWriteMask(d.commandBuffers.get(cb), vk.StencilFaceFlags(face), mask)
}

func (d *Device) CmdSetStencilReference(cb driver.CommandBuffer, face driver.StencilFace, ref uint32) {
	vk.CmdSetStencilReference(d.commandBuffers.get(cb), vk.StencilFaceFlags(face), ref)
}

func (d *Device) CmdDraw(cb driver.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(d.commandBuffers.get(cb), vertexCount, instanceCount, firstVertex, firstInstance)
}

func (d *Device) CmdDrawIndexed(cb driver.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(d.commandBuffers.get(cb), indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (d *Device) CmdDrawIndirect(cb driver.CommandBuffer, b driver.Buffer, offset uint64, drawCount, stride uint32) {
	vk.CmdDrawIndirect(d.commandBuffers.get(cb), d.buffers.get(b), vk.DeviceSize(offset), drawCount, stride)
}

func (d *Device) CmdDrawIndexedIndirect(cb driver.CommandBuffer, b driver.Buffer, offset uint64, drawCount, stride uint32) {
	vk.CmdDrawIndexedIndirect(d.commandBuffers.get(cb), d.buffers.get(b), vk.DeviceSize(offset), drawCount, stride)
}

func (d *Device) CmdDispatch(cb driver.CommandBuffer, x, y, z uint32) {
	vk.CmdDispatch(d.commandBuffers.get(cb), x, y, z)
}

func (d *Device) CmdDispatchIndirect(cb driver.CommandBuffer, b driver.Buffer, offset uint64) {
	vk.CmdDispatchIndirect(d.commandBuffers.get(cb), d.buffers.get(b), vk.DeviceSize(offset))
}

func (d *Device) CmdCopyBuffer(cb driver.CommandBuffer, src, dst driver.Buffer, regions []driver.BufferCopy) {
	rs := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		rs[i] = vk.BufferCopy{SrcOffset: vk.DeviceSize(r.SrcOffset), DstOffset: vk.DeviceSize(r.DstOffset), Size: vk.DeviceSize(r.Size)}
	}
	vk.CmdCopyBuffer(d.commandBuffers.get(cb), d.buffers.get(src), d.buffers.get(dst), uint32(len(rs)), rs)
}

func bufferImageCopies(regions []driver.BufferImageCopy) []vk.BufferImageCopy {
	rs := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		rs[i] = vk.BufferImageCopy{
			BufferOffset:      vk.DeviceSize(r.BufferOffset),
			BufferRowLength:   r.BufferRowLength,
			BufferImageHeight: r.BufferImageHeight,
			ImageSubresource:  subresourceLayers(r.Subresource),
			ImageOffset:       offset3D(r.Offset),
			ImageExtent:       extent3D(r.Extent),
		}
	}
	return rs
}

func (d *Device) CmdCopyBufferToImage(cb driver.CommandBuffer, src driver.Buffer, dst driver.Image, layout driver.ImageLayout, regions []driver.BufferImageCopy) {
	rs := bufferImageCopies(regions)
	vk.CmdCopyBufferToImage(d.commandBuffers.get(cb), d.buffers.get(src), d.images.get(dst), vk.ImageLayout(layout), uint32(len(rs)), rs)
}

func (d *Device) CmdCopyImageToBuffer(cb driver.CommandBuffer, src driver.Image, layout driver.ImageLayout, dst driver.Buffer, regions []driver.BufferImageCopy) {
	rs := bufferImageCopies(regions)
	vk.CmdCopyImageToBuffer(d.commandBuffers.get(cb), d.images.get(src), vk.ImageLayout(layout), d.buffers.get(dst), uint32(len(rs)), rs)
}

func imageCopies(regions []driver.ImageCopy) []vk.ImageCopy {
	rs := make([]vk.ImageCopy, len(regions))
	for i, r := range regions {
		rs[i] = vk.ImageCopy{
			SrcSubresource: subresourceLayers(r.SrcSubresource),
			SrcOffset:      offset3D(r.SrcOffset),
			DstSubresource: subresourceLayers(r.DstSubresource),
			DstOffset:      offset3D(r.DstOffset),
			Extent:         extent3D(r.Extent),
		}
	}
	return rs
}

func (d *Device) CmdCopyImage(cb driver.CommandBuffer, src driver.Image, srcLayout driver.ImageLayout, dst driver.Image, dstLayout driver.ImageLayout, regions []driver.ImageCopy) {
	rs := imageCopies(regions)
	vk.CmdCopyImage(d.commandBuffers.get(cb), d.images.get(src), vk.ImageLayout(srcLayout),
		d.images.get(dst), vk.ImageLayout(dstLayout), uint32(len(rs)), rs)
}

func (d *Device) CmdBlitImage(cb driver.CommandBuffer, src driver.Image, srcLayout driver.ImageLayout, dst driver.Image, dstLayout driver.ImageLayout, regions []driver.ImageBlit, filter driver.Filter) {
	rs := make([]vk.ImageBlit, len(regions))
	for i, r := range regions {
		rs[i] = vk.ImageBlit{
			SrcSubresource: subresourceLayers(r.SrcSubresource),
			SrcOffsets:     [2]vk.Offset3D{offset3D(r.SrcOffsets[0]), offset3D(r.SrcOffsets[1])},
			DstSubresource: subresourceLayers(r.DstSubresource),
			DstOffsets:     [2]vk.Offset3D{offset3D(r.DstOffsets[0]), offset3D(r.DstOffsets[1])},
		}
	}
	vk.CmdBlitImage(d.commandBuffers.get(cb), d.images.get(src), vk.ImageLayout(srcLayout),
		d.images.get(dst), vk.ImageLayout(dstLayout), uint32(len(rs)), rs, vk.Filter(filter))
}

func (d *Device) CmdResolveImage(cb driver.CommandBuffer, src driver.Image, srcLayout driver.ImageLayout, dst driver.Image, dstLayout driver.ImageLayout, regions []driver.ImageResolve) {
	rs := make([]vk.ImageResolve, len(regions))
	for i, r := range regions {
		rs[i] = vk.ImageResolve{
			SrcSubresource: subresourceLayers(r.SrcSubresource),
			SrcOffset:      offset3D(r.SrcOffset),
			DstSubresource: subresourceLayers(r.DstSubresource),
			DstOffset:      offset3D(r.DstOffset),
			Extent:         extent3D(r.Extent),
		}
	}
	vk.CmdResolveImage(d.commandBuffers.get(cb), d.images.get(src), vk.ImageLayout(srcLayout),
		d.images.get(dst), vk.ImageLayout(dstLayout), uint32(len(rs)), rs)
}

func (d *Device) CmdFillBuffer(cb driver.CommandBuffer, b driver.Buffer, offset, size uint64, data uint32) {
	vk.CmdFillBuffer(d.commandBuffers.get(cb), d.buffers.get(b), vk.DeviceSize(offset), vk.DeviceSize(size), data)
}

func (d *Device) CmdUpdateBuffer(cb driver.CommandBuffer, b driver.Buffer, offset uint64, data []byte) {
	vk.CmdUpdateBuffer(d.commandBuffers.get(cb), d.buffers.get(b), vk.DeviceSize(offset), vk.DeviceSize(len(data)), ptr(data))
}

func ranges(rs []driver.ImageSubresourceRange) []vk.ImageSubresourceRange {
	ret := make([]vk.ImageSubresourceRange, len(rs))
	for i, r := range rs {
		ret[i] = subresourceRange(r)
	}
	return ret
}

func (d *Device) CmdClearColorImage(cb driver.CommandBuffer, img driver.Image, layout driver.ImageLayout, color [4]float32, rs []driver.ImageSubresourceRange) {
	var c vk.ClearColorValue
	*(*[4]float32)(unsafe.Pointer(&c)) = color
	r := ranges(rs)
	vk.CmdClearColorImage(d.commandBuffers.get(cb), d.images.get(img), vk.ImageLayout(layout), &c, uint32(len(r)), r)
}

func (d *Device) CmdClearDepthStencilImage(cb driver.CommandBuffer, img driver.Image, layout driver.ImageLayout, depth float32, stencil uint32, rs []driver.ImageSubresourceRange) {
	v := vk.ClearDepthStencilValue{Depth: depth, Stencil: stencil}
	r := ranges(rs)
	vk.CmdClearDepthStencilImage(d.commandBuffers.get(cb), d.images.get(img), vk.ImageLayout(layout), &v, uint32(len(r)), r)
}

func (d *Device) CmdClearAttachments(cb driver.CommandBuffer, attachments []driver.ClearAttachment, rects []driver.ClearRect) {
	as := make([]vk.ClearAttachment, len(attachments))
	for i, a := range attachments {
		as[i] = vk.ClearAttachment{
			AspectMask:      vk.ImageAspectFlags(a.Aspect),
			ColorAttachment: a.ColorAttachment,
			ClearValue:      clearValue(a.Value, a.Aspect&driver.AspectColor == 0),
		}
	}
	rs := make([]vk.ClearRect, len(rects))
	for i, r := range rects {
		rs[i] = vk.ClearRect{Rect: rect2D(r.Rect), BaseArrayLayer: r.BaseArrayLayer, LayerCount: r.LayerCount}
	}
	vk.CmdClearAttachments(d.commandBuffers.get(cb), uint32(len(as)), as, uint32(len(rs)), rs)
}
