package vkez

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/driver/drivertest"
)

func TestTexturedQuad(t *testing.T) {
	d, drv := newTestDevice(t)
	gq := d.GraphicsQueue()

	pipe := graphicsPipeline(t, d, texturedVertex(), texturedFragment())

	type vertex struct{ x, y, z, u, v float32 }
	quad := []vertex{{-1, -1, 0, 0, 0}, {1, -1, 0, 1, 0}, {1, 1, 0, 1, 1}, {-1, 1, 0, 0, 1}}
	indices := Uint16Indices{0, 1, 2, 2, 3, 0}

	vb := buffer(t, d, 80, driver.BufferUsageVertex|driver.BufferUsageTransferDst, MemoryGPUOnly)
	require.NoError(t, d.BufferSubData(vb, 0, Bytes(quad)))
	ib := buffer(t, d, 12, driver.BufferUsageIndex|driver.BufferUsageTransferDst, MemoryGPUOnly)
	require.NoError(t, d.BufferSubData(ib, 0, indices.Bytes()))
	ubo := buffer(t, d, 64, driver.BufferUsageUniform, MemoryCPUToGPU)
	require.NoError(t, d.BufferSubData(ubo, 0, make([]byte, 64)))

	tex := image2D(t, d, driver.FormatR8G8B8A8Unorm, 4, 4, 1, driver.ImageUsageSampled|driver.ImageUsageTransferDst)
	require.NoError(t, d.ImageSubData(tex, &ImageSubDataInfo{}, make([]byte, 4*4*4)))
	assert.Equal(t, driver.LayoutTransferDstOptimal, tex.Layout(0, 0))
	texView := view(t, d, tex)
	sampler, err := d.CreateSampler(&driver.SamplerCreateInfo{MagFilter: driver.FilterLinear, MinFilter: driver.FilterLinear})
	require.NoError(t, err)
	t.Cleanup(sampler.Destroy)

	target := image2D(t, d, driver.FormatR8G8B8A8Unorm, 64, 64, 1,
		driver.ImageUsageColorAttachment|driver.ImageUsageTransferSrc)
	depth := image2D(t, d, driver.FormatD32Sfloat, 64, 64, 1, driver.ImageUsageDepthStencilAttachment)
	fb := framebuffer(t, d, view(t, d, target), view(t, d, depth))
	uploads := len(drv.Submits)

	cb := commandBuffer(t, d, gq)
	require.NoError(t, cb.Begin())
	cb.BeginRenderPass(clearPass(fb))
	cb.BindPipeline(pipe)
	cb.BindVertexBuffers(0, []*Buffer{vb}, []uint64{0})
	cb.BindIndexBuffer(ib, 0, indices.IndexType())
	cb.BindBuffer(ubo, 0, driver.WholeSize, 0, 0, 0)
	cb.BindImageView(texView, sampler, 0, 1, 0)
	cb.DrawIndexed(6, 1, 0, 0, 0)
	cb.EndRenderPass()
	require.NoError(t, cb.End())
	submit(t, gq, cb)

	cmds := drv.Commands(cb.Handle())
	pbs := barriers(cmds)
	require.Len(t, pbs, 1)
	pb := pbs[0]
	assert.Less(t, indexOf[driver.PipelineBarrier](cmds), indexOf[drivertest.BeginRenderPass](cmds))
	assert.Equal(t, driver.StageTransfer, pb.SrcStage)
	assert.Equal(t, driver.StageVertexInput|driver.StageFragmentShader, pb.DstStage)
	require.Len(t, pb.Buffers, 2)
	vbb, ok := bufferBarrierOf(pb, vb)
	require.True(t, ok)
	assert.Equal(t, driver.AccessTransferWrite, vbb.SrcAccess)
	assert.Equal(t, driver.AccessVertexAttributeRead, vbb.DstAccess)
	ibb, ok := bufferBarrierOf(pb, ib)
	require.True(t, ok)
	assert.Equal(t, driver.AccessIndexRead, ibb.DstAccess)
	_, ok = bufferBarrierOf(pb, ubo)
	assert.False(t, ok, "host-written uniform buffer needs no barrier")
	texb := imageBarrierOf(pb, tex)
	require.Len(t, texb, 1)
	assert.Equal(t, driver.LayoutTransferDstOptimal, texb[0].OldLayout)
	assert.Equal(t, driver.LayoutShaderReadOnlyOptimal, texb[0].NewLayout)
	assert.Empty(t, imageBarrierOf(pb, target))

	vps := drivertest.Of[drivertest.SetViewport](cmds)
	require.Len(t, vps, 1)
	assert.Equal(t, float32(64), vps[0].Viewports[0].Width)
	assert.Equal(t, float32(64), vps[0].Viewports[0].Height)
	scs := drivertest.Of[drivertest.SetScissor](cmds)
	require.Len(t, scs, 1)
	assert.Equal(t, driver.Extent2D{Width: 64, Height: 64}, scs[0].Scissors[0].Extent)
	assert.Len(t, drivertest.Of[drivertest.BindDescriptorSets](cmds), 1)
	assert.Len(t, drivertest.Of[drivertest.BindVertexBuffers](cmds), 1)
	assert.Len(t, drivertest.Of[drivertest.BindIndexBuffer](cmds), 1)
	assert.Len(t, drivertest.Of[drivertest.DrawIndexed](cmds), 1)
	assert.Less(t, indexOf[drivertest.SetViewport](cmds), indexOf[drivertest.DrawIndexed](cmds))

	require.Len(t, drv.Writes, 2)
	assert.Equal(t, driver.DescriptorUniformBuffer, drv.Writes[0].Type)
	assert.Equal(t, driver.DescriptorCombinedImageSampler, drv.Writes[1].Type)
	assert.Equal(t, driver.LayoutShaderReadOnlyOptimal, drv.Writes[1].Images[0].Layout)

	begin := drivertest.Of[drivertest.BeginRenderPass](cmds)
	require.Len(t, begin, 1)
	rp := drv.RenderPassInfo(begin[0].Info.RenderPass)
	require.Len(t, rp.Attachments, 2)
	require.Len(t, rp.Subpasses, 1)
	require.NotNil(t, rp.Subpasses[0].DepthStencil)
	assert.Equal(t, uint32(1), rp.Subpasses[0].DepthStencil.Attachment)
	assert.Equal(t, driver.LayoutUndefined, rp.Attachments[0].InitialLayout)
	assert.Equal(t, driver.LayoutColorAttachmentOptimal, rp.Attachments[0].FinalLayout)
	assert.Equal(t, driver.LayoutDepthStencilAttachmentOptimal, rp.Attachments[1].FinalLayout)
	assert.Equal(t, driver.LayoutColorAttachmentOptimal, target.Layout(0, 0))
	assert.Equal(t, driver.LayoutDepthStencilAttachmentOptimal, depth.Layout(0, 0))
	assert.Equal(t, driver.LayoutShaderReadOnlyOptimal, tex.Layout(0, 0))

	assert.Equal(t, 1, drv.Created(drivertest.KindRenderPass))
	assert.Equal(t, 1, drv.Created(drivertest.KindFramebuffer))
	assert.Equal(t, 1, drv.Created(drivertest.KindDescriptorSet))
	assert.Equal(t, 1, drv.Created(drivertest.KindPipeline))
	assert.Len(t, drv.Submits, uploads+1)
}

func TestMipGeneration(t *testing.T) {
	d, drv := newTestDevice(t)
	gq := d.GraphicsQueue()

	const mips = 9
	img := image2D(t, d, driver.FormatR8G8B8A8Unorm, 256, 256, mips,
		driver.ImageUsageTransferSrc|driver.ImageUsageTransferDst|driver.ImageUsageSampled)
	require.NoError(t, d.ImageSubData(img, &ImageSubDataInfo{}, make([]byte, 256*256*4)))

	cb := commandBuffer(t, d, gq)
	require.NoError(t, cb.Begin())
	for m := uint32(1); m < mips; m++ {
		src, dst := img.MipExtent(m-1), img.MipExtent(m)
		cb.BlitImage(img, img, []driver.ImageBlit{{
			SrcSubresource: driver.ImageSubresourceLayers{MipLevel: m - 1},
			SrcOffsets:     [2]driver.Offset3D{{}, {X: int32(src.Width), Y: int32(src.Height), Z: 1}},
			DstSubresource: driver.ImageSubresourceLayers{MipLevel: m},
			DstOffsets:     [2]driver.Offset3D{{}, {X: int32(dst.Width), Y: int32(dst.Height), Z: 1}},
		}}, driver.FilterLinear)
	}
	require.NoError(t, cb.End())

	cmds := drv.Commands(cb.Handle())
	assert.Len(t, drivertest.Of[drivertest.BlitImage](cmds), mips-1)
	pbs := barriers(cmds)
	require.Len(t, pbs, mips-1)
	for i, pb := range pbs {
		m := uint32(i + 1)
		require.Len(t, pb.Images, 2, "blit %d", m)
		src, dst := pb.Images[0], pb.Images[1]
		assert.Equal(t, m-1, src.Range.BaseMipLevel)
		assert.Equal(t, driver.LayoutTransferDstOptimal, src.OldLayout)
		assert.Equal(t, driver.LayoutTransferSrcOptimal, src.NewLayout)
		assert.Equal(t, driver.AccessTransferWrite, src.SrcAccess)
		assert.Equal(t, m, dst.Range.BaseMipLevel)
		assert.Equal(t, driver.LayoutUndefined, dst.OldLayout)
		assert.Equal(t, driver.LayoutTransferDstOptimal, dst.NewLayout)
		assert.Equal(t, driver.StageTransfer, pb.DstStage)
	}
	for m := uint32(0); m < mips-1; m++ {
		assert.Equal(t, driver.LayoutTransferSrcOptimal, img.Layout(m, 0), "mip %d", m)
	}
	assert.Equal(t, driver.LayoutTransferDstOptimal, img.Layout(mips-1, 0))
	submit(t, gq, cb)

	// Sampling every mip coalesces the transitions into one barrier per
	// distinct source scope.
	pipe := computePipeline(t, d, samplingCompute())
	out := buffer(t, d, 1024, driver.BufferUsageStorage, MemoryGPUOnly)
	sampler, err := d.CreateSampler(&driver.SamplerCreateInfo{MaxLod: mips})
	require.NoError(t, err)
	t.Cleanup(sampler.Destroy)
	all := view(t, d, img)

	sample := commandBuffer(t, d, gq)
	require.NoError(t, sample.Begin())
	sample.BindPipeline(pipe)
	sample.BindImageView(all, sampler, 0, 0, 0)
	sample.BindBuffer(out, 0, driver.WholeSize, 0, 1, 0)
	sample.Dispatch(1, 1, 1)
	require.NoError(t, sample.End())

	cmds = drv.Commands(sample.Handle())
	pbs = barriers(cmds)
	require.Len(t, pbs, 1)
	assert.Empty(t, pbs[0].Buffers)
	require.Len(t, pbs[0].Images, 2)
	low, top := pbs[0].Images[0], pbs[0].Images[1]
	assert.Equal(t, uint32(0), low.Range.BaseMipLevel)
	assert.Equal(t, uint32(mips-1), low.Range.LevelCount)
	assert.Equal(t, driver.LayoutTransferSrcOptimal, low.OldLayout)
	assert.Equal(t, uint32(mips-1), top.Range.BaseMipLevel)
	assert.Equal(t, uint32(1), top.Range.LevelCount)
	assert.Equal(t, driver.LayoutTransferDstOptimal, top.OldLayout)
	for _, b := range pbs[0].Images {
		assert.Equal(t, driver.LayoutShaderReadOnlyOptimal, b.NewLayout)
	}
	assert.Equal(t, driver.StageComputeShader, pbs[0].DstStage)
	assert.Less(t, indexOf[driver.PipelineBarrier](cmds), indexOf[drivertest.Dispatch](cmds))
}

func TestComputeToGraphics(t *testing.T) {
	d, drv := newTestDevice(t)
	gq := d.GraphicsQueue()

	simulate := computePipeline(t, d, storageCompute())
	draw := graphicsPipeline(t, d, pointVertex(), flatFragment())
	particles := buffer(t, d, 256, driver.BufferUsageStorage|driver.BufferUsageVertex, MemoryGPUOnly)
	fb, _ := colorTarget(t, d, 32, 32)

	cb := commandBuffer(t, d, gq)
	require.NoError(t, cb.Begin())
	cb.BindPipeline(simulate)
	cb.BindBuffer(particles, 0, driver.WholeSize, 0, 0, 0)
	cb.Dispatch(4, 1, 1)
	cb.BeginRenderPass(clearPass(fb))
	cb.BindPipeline(draw)
	cb.BindVertexBuffers(0, []*Buffer{particles}, []uint64{0})
	cb.Draw(16, 1, 0, 0)
	cb.EndRenderPass()
	require.NoError(t, cb.End())
	submit(t, gq, cb)

	cmds := drv.Commands(cb.Handle())
	pbs := barriers(cmds)
	require.Len(t, pbs, 1)
	pb := pbs[0]
	assert.Equal(t, driver.StageComputeShader, pb.SrcStage)
	assert.Equal(t, driver.StageVertexInput, pb.DstStage)
	require.Len(t, pb.Buffers, 1)
	assert.Equal(t, particles.Handle(), pb.Buffers[0].Buffer)
	assert.Equal(t, driver.AccessShaderWrite, pb.Buffers[0].SrcAccess)
	assert.Equal(t, driver.AccessVertexAttributeRead, pb.Buffers[0].DstAccess)

	barrier := indexOf[driver.PipelineBarrier](cmds)
	assert.Less(t, indexOf[drivertest.Dispatch](cmds), barrier)
	assert.Less(t, barrier, indexOf[drivertest.BeginRenderPass](cmds))

	binds := drivertest.Of[drivertest.BindPipeline](cmds)
	require.Len(t, binds, 2)
	assert.Equal(t, driver.BindPointCompute, binds[0].BindPoint)
	assert.Equal(t, driver.BindPointGraphics, binds[1].BindPoint)

	// Render passes need a graphics queue.
	ccb := commandBuffer(t, d, d.ComputeQueue())
	require.NoError(t, ccb.Begin())
	ccb.BeginRenderPass(clearPass(fb))
	err := ccb.End()
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, StateInvalid, ccb.State())
}

func TestSubpassPipelines(t *testing.T) {
	d, drv := newTestDevice(t)
	gq := d.GraphicsQueue()

	scene := image2D(t, d, driver.FormatR8G8B8A8Unorm, 64, 64, 1,
		driver.ImageUsageColorAttachment|driver.ImageUsageInputAttachment)
	final := image2D(t, d, driver.FormatR8G8B8A8Unorm, 64, 64, 1,
		driver.ImageUsageColorAttachment|driver.ImageUsageTransferSrc)
	sceneView := view(t, d, scene)
	fb := framebuffer(t, d, sceneView, view(t, d, final))

	info := clearPass(fb)
	info.Subpasses = []SubpassDescription{
		{Color: []uint32{0}},
		{Color: []uint32{1}, Input: []uint32{0}},
	}
	flat := graphicsPipeline(t, d, fullscreenVertex(), flatFragment())
	composite := graphicsPipeline(t, d, fullscreenVertex(), compositeFragment())

	cb := commandBuffer(t, d, gq)
	record := func() {
		require.NoError(t, cb.Begin())
		cb.BeginRenderPass(info)
		cb.BindPipeline(flat)
		cb.Draw(3, 1, 0, 0)
		cb.NextSubpass()
		cb.Draw(3, 1, 0, 0)
		cb.BindPipeline(composite)
		cb.BindImageView(sceneView, nil, 0, 0, 0)
		cb.Draw(3, 1, 0, 0)
		cb.EndRenderPass()
		require.NoError(t, cb.End())
	}

	record()
	assert.Equal(t, 3, drv.Created(drivertest.KindPipeline))
	cmds := drv.Commands(cb.Handle())
	binds := drivertest.Of[drivertest.BindPipeline](cmds)
	require.Len(t, binds, 3)
	assert.NotEqual(t, binds[0].Pipeline, binds[1].Pipeline)
	assert.Equal(t, uint32(0), drv.GraphicsPipelineInfo(binds[0].Pipeline).Subpass)
	assert.Equal(t, uint32(1), drv.GraphicsPipelineInfo(binds[1].Pipeline).Subpass)
	assert.Equal(t, uint32(1), drv.GraphicsPipelineInfo(binds[2].Pipeline).Subpass)
	assert.Len(t, drivertest.Of[drivertest.NextSubpass](cmds), 1)

	require.NotEmpty(t, drv.Writes)
	input := drv.Writes[len(drv.Writes)-1]
	assert.Equal(t, driver.DescriptorInputAttachment, input.Type)
	assert.Equal(t, driver.LayoutShaderReadOnlyOptimal, input.Images[0].Layout)
	assert.Empty(t, barriers(cmds), "input attachment reads are synchronized by the render pass")

	begin := drivertest.Of[drivertest.BeginRenderPass](cmds)
	require.Len(t, begin, 1)
	rp := drv.RenderPassInfo(begin[0].Info.RenderPass)
	require.Len(t, rp.Subpasses, 2)
	require.Len(t, rp.Subpasses[1].Input, 1)
	assert.Equal(t, driver.AttachmentReference{Attachment: 0, Layout: driver.LayoutShaderReadOnlyOptimal}, rp.Subpasses[1].Input[0])
	assert.Equal(t, driver.LayoutColorAttachmentOptimal, rp.Subpasses[0].Color[0].Layout)
	var byRegion *driver.SubpassDependency
	for i, dep := range rp.Dependencies {
		if dep.SrcSubpass == 0 && dep.DstSubpass == 1 {
			byRegion = &rp.Dependencies[i]
		}
	}
	require.NotNil(t, byRegion)
	assert.True(t, byRegion.ByRegion)
	assert.Equal(t, driver.StageColorAttachmentOutput, byRegion.SrcStage)
	assert.Equal(t, driver.StageFragmentShader, byRegion.DstStage)
	assert.Equal(t, driver.LayoutShaderReadOnlyOptimal, rp.Attachments[0].FinalLayout)

	submit(t, gq, cb)
	record()
	assert.Equal(t, 3, drv.Created(drivertest.KindPipeline), "re-recording reuses concrete pipelines")
}

// presented returns the commands of the single command buffer of the last
// submission.
func presented(t *testing.T, drv *drivertest.Device) []any {
	t.Helper()
	require.NotEmpty(t, drv.Submits)
	last := drv.Submits[len(drv.Submits)-1]
	require.Len(t, last.Frozen, 1)
	for _, cmds := range last.Frozen {
		return cmds
	}
	return nil
}

func TestSwapchainPresent(t *testing.T) {
	d, drv := newTestDevice(t)
	gq := d.GraphicsQueue()

	sc, err := d.CreateSwapchain(&SwapchainCreateInfo{Surface: 1, VSync: true})
	require.NoError(t, err)
	require.Len(t, drv.SwapchainInfos, 1)
	ci := drv.SwapchainInfos[0]
	assert.Equal(t, driver.PresentModeFifo, ci.PresentMode)
	assert.Equal(t, uint32(3), ci.MinImageCount)
	assert.Equal(t, driver.Extent2D{Width: 800, Height: 600}, sc.Extent())
	assert.Equal(t, driver.FormatB8G8R8A8Unorm, sc.Format())
	assert.Len(t, sc.Images(), 3)

	src, err := d.CreateImage(&ImageCreateInfo{
		Type:   driver.ImageType2D,
		Format: driver.FormatB8G8R8A8Unorm,
		Extent: driver.Extent3D{Width: 800, Height: 600},
		Usage:  driver.ImageUsageColorAttachment | driver.ImageUsageTransferSrc,
	}, MemoryGPUOnly)
	require.NoError(t, err)
	t.Cleanup(src.Destroy)
	present := &PresentInfo{Swapchains: []*Swapchain{sc}, SourceImages: []*Image{src}}

	require.NoError(t, gq.Present(present))
	require.Len(t, drv.Presents, 1)
	cmds := presented(t, drv)
	assert.Len(t, drivertest.Of[drivertest.CopyImage](cmds), 1)
	assert.Empty(t, drivertest.Of[drivertest.BlitImage](cmds))
	pbs := barriers(cmds)
	require.NotEmpty(t, pbs)
	toPresent := pbs[len(pbs)-1].Images
	require.Len(t, toPresent, 1)
	assert.Equal(t, driver.LayoutTransferDstOptimal, toPresent[0].OldLayout)
	assert.Equal(t, driver.LayoutPresentSrc, toPresent[0].NewLayout)

	// A resized surface is picked up at acquisition and the source is
	// scaled into the new images.
	drv.Resize(1024, 768)
	require.NoError(t, gq.Present(present))
	require.Len(t, drv.SwapchainInfos, 2)
	assert.NotZero(t, drv.SwapchainInfos[1].OldSwapchain)
	assert.Equal(t, driver.Extent2D{Width: 1024, Height: 768}, sc.Extent())
	assert.Equal(t, driver.Extent2D{Width: 1024, Height: 768}, drv.SwapchainInfos[1].Extent)
	cmds = presented(t, drv)
	blits := drivertest.Of[drivertest.BlitImage](cmds)
	require.Len(t, blits, 1)
	assert.Equal(t, driver.FilterLinear, blits[0].Filter)
	assert.Equal(t, driver.Offset3D{X: 1024, Y: 768, Z: 1}, blits[0].Regions[0].DstOffsets[1])
	assert.Len(t, drv.Presents, 2)

	sc.SetVSync(false)
	assert.False(t, sc.VSync())
	require.NoError(t, gq.Present(present))
	require.Len(t, drv.SwapchainInfos, 3)
	assert.Equal(t, driver.PresentModeMailbox, drv.SwapchainInfos[2].PresentMode)
	assert.NotZero(t, drv.SwapchainInfos[2].OldSwapchain)
	assert.Len(t, drv.Presents, 3)

	sc.Destroy()
	require.NoError(t, d.WaitIdle())
	assert.Zero(t, drv.Live(drivertest.KindSwapchain))
	assert.Zero(t, drv.Live(drivertest.KindSemaphore))
}

func TestPresentValidation(t *testing.T) {
	d, _ := newTestDevice(t)
	sc, err := d.CreateSwapchain(&SwapchainCreateInfo{Surface: 1})
	require.NoError(t, err)
	t.Cleanup(sc.Destroy)

	err = d.GraphicsQueue().Present(&PresentInfo{Swapchains: []*Swapchain{sc}})
	assert.ErrorIs(t, err, ErrValidation)

	src := image2D(t, d, driver.FormatB8G8R8A8Unorm, 8, 8, 1, driver.ImageUsageTransferSrc)
	err = d.ComputeQueue().Present(&PresentInfo{Swapchains: []*Swapchain{sc}, SourceImages: []*Image{src}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = d.CreateSwapchain(&SwapchainCreateInfo{Surface: 1, Format: driver.FormatR16G16B16A16Sfloat})
	assert.ErrorIs(t, err, ErrFormatNotSupported)
}

func TestChoosePresentMode(t *testing.T) {
	all := []driver.PresentMode{driver.PresentModeFifo, driver.PresentModeImmediate, driver.PresentModeMailbox}
	assert.Equal(t, driver.PresentModeFifo, choosePresentMode(all, true))
	assert.Equal(t, driver.PresentModeMailbox, choosePresentMode(all, false))
	assert.Equal(t, driver.PresentModeImmediate, choosePresentMode(all[:2], false))
	assert.Equal(t, driver.PresentModeFifo, choosePresentMode(all[:1], false))
}
