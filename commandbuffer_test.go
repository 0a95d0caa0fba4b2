package vkez

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/driver/drivertest"
)

// record begins a graphics command buffer, runs fn and returns the error of
// End.
func record(t *testing.T, d *Device, fn func(cb *CommandBuffer)) (*CommandBuffer, error) {
	t.Helper()
	cb := commandBuffer(t, d, d.GraphicsQueue())
	require.NoError(t, cb.Begin())
	fn(cb)
	return cb, cb.End()
}

func TestCommandBufferStates(t *testing.T) {
	d, drv := newTestDevice(t)
	gq := d.GraphicsQueue()
	cb := commandBuffer(t, d, gq)

	assert.Equal(t, StateInitial, cb.State())
	assert.ErrorIs(t, cb.End(), ErrInvalidState)
	require.NoError(t, cb.Begin())
	assert.Equal(t, StateRecording, cb.State())
	assert.ErrorIs(t, cb.Begin(), ErrInvalidState)
	require.NoError(t, cb.End())
	assert.Equal(t, StateExecutable, cb.State())
	assert.ErrorIs(t, cb.End(), ErrInvalidState)

	drv.HoldFences = true
	submit(t, gq, cb)
	assert.Equal(t, StatePending, cb.State())
	assert.ErrorIs(t, cb.Begin(), ErrInvalidState)
	assert.ErrorIs(t, cb.Reset(), ErrInvalidState)
	drv.Complete()
	assert.Equal(t, StateExecutable, cb.State())

	// An executable command buffer can be submitted again.
	submit(t, gq, cb)
	drv.Complete()

	require.NoError(t, cb.BeginOneTime())
	require.NoError(t, cb.End())
	submit(t, gq, cb)
	assert.Equal(t, StatePending, cb.State())
	drv.Complete()
	assert.Equal(t, StateInvalid, cb.State())
	err := gq.Submit([]SubmitInfo{{CommandBuffers: []*CommandBuffer{cb}}}, nil)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, cb.Reset())
	assert.Equal(t, StateInitial, cb.State())
	cb.Free()
	assert.ErrorIs(t, cb.Begin(), ErrInvalidHandle)
}

func TestCommandIgnoredOutsideRecording(t *testing.T) {
	d, drv := newTestDevice(t)
	pipe := computePipeline(t, d, uniformCompute())
	cb := commandBuffer(t, d, d.GraphicsQueue())

	cb.BindPipeline(pipe)
	cb.Dispatch(1, 1, 1)
	require.NoError(t, cb.Begin())
	require.NoError(t, cb.End())
	assert.Empty(t, drv.Commands(cb.Handle()))
}

func TestEndErrorInvalidates(t *testing.T) {
	d, _ := newTestDevice(t)
	fb, _ := colorTarget(t, d, 16, 16)
	cb, err := record(t, d, func(cb *CommandBuffer) {
		cb.BeginRenderPass(clearPass(fb))
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, StateInvalid, cb.State())

	// The first error wins and later commands are dropped.
	cb, err = record(t, d, func(cb *CommandBuffer) {
		cb.EndRenderPass()
		cb.BindPipeline(nil)
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, StateInvalid, cb.State())
	require.NoError(t, cb.Begin(), "an invalid command buffer can be begun again")
	require.NoError(t, cb.End())
}

// uboPipeline draws vec3+vec2 vertices with a uniform block at set 0
// binding 0.
func uboPipeline(t *testing.T, d *Device) *Pipeline {
	return graphicsPipeline(t, d, texturedVertex(), flatFragment())
}

func TestRedundantBindsSkipped(t *testing.T) {
	d, drv := newTestDevice(t)
	pipe := uboPipeline(t, d)
	vb := buffer(t, d, 200, driver.BufferUsageVertex, MemoryCPUToGPU)
	ubo := buffer(t, d, 256, driver.BufferUsageUniform, MemoryCPUToGPU)
	other := buffer(t, d, 256, driver.BufferUsageUniform, MemoryCPUToGPU)
	fb, _ := colorTarget(t, d, 16, 16)

	cb, err := record(t, d, func(cb *CommandBuffer) {
		cb.BeginRenderPass(clearPass(fb))
		cb.BindPipeline(pipe)
		cb.BindVertexBuffers(0, []*Buffer{vb}, []uint64{0})
		cb.BindBuffer(ubo, 0, 64, 0, 0, 0)
		cb.Draw(3, 1, 0, 0)
		cb.BindPipeline(pipe)
		cb.BindVertexBuffers(0, []*Buffer{vb}, []uint64{0})
		cb.BindBuffer(ubo, 0, 64, 0, 0, 0)
		cb.Draw(3, 1, 3, 0)
		cb.BindBuffer(other, 0, 64, 0, 0, 0)
		cb.Draw(3, 1, 6, 0)
		cb.BindVertexBuffers(0, []*Buffer{vb}, []uint64{60})
		cb.Draw(3, 1, 0, 0)
		cb.EndRenderPass()
	})
	require.NoError(t, err)

	cmds := drv.Commands(cb.Handle())
	assert.Len(t, drivertest.Of[drivertest.Draw](cmds), 4)
	assert.Len(t, drivertest.Of[drivertest.BindPipeline](cmds), 1)
	assert.Len(t, drivertest.Of[drivertest.BindDescriptorSets](cmds), 2)
	vbs := drivertest.Of[drivertest.BindVertexBuffers](cmds)
	require.Len(t, vbs, 2)
	assert.Equal(t, []uint64{60}, vbs[1].Offsets)
	assert.Len(t, drivertest.Of[drivertest.SetViewport](cmds), 1)
	assert.Len(t, drv.Writes, 2, "one descriptor set per distinct content")
	assert.Equal(t, 2, d.Stats().DescriptorSets)
}

func TestDynamicStateDefaults(t *testing.T) {
	d, drv := newTestDevice(t)
	pipe := graphicsPipeline(t, d, fullscreenVertex(), flatFragment())
	fb, _ := colorTarget(t, d, 40, 30)

	cb, err := record(t, d, func(cb *CommandBuffer) {
		cb.BeginRenderPass(clearPass(fb))
		cb.BindPipeline(pipe)
		cb.SetViewport(0, []driver.Viewport{{Width: 20, Height: 10, MaxDepth: 1}})
		cb.SetLineWidth(2)
		cb.Draw(3, 1, 0, 0)
		cb.EndRenderPass()
	})
	require.NoError(t, err)

	cmds := drv.Commands(cb.Handle())
	vps := drivertest.Of[drivertest.SetViewport](cmds)
	require.Len(t, vps, 1)
	assert.Equal(t, float32(20), vps[0].Viewports[0].Width)
	scs := drivertest.Of[drivertest.SetScissor](cmds)
	require.Len(t, scs, 1)
	assert.Equal(t, driver.Extent2D{Width: 40, Height: 30}, scs[0].Scissors[0].Extent)
	assert.Equal(t, []drivertest.SetLineWidth{{Width: 2}}, drivertest.Of[drivertest.SetLineWidth](cmds))
	assert.Equal(t, []drivertest.SetDepthBounds{{Min: 0, Max: 1}}, drivertest.Of[drivertest.SetDepthBounds](cmds))
	assert.Len(t, drivertest.Of[drivertest.SetDepthBias](cmds), 1)
	assert.Len(t, drivertest.Of[drivertest.SetBlendConstants](cmds), 1)
	stencil := drivertest.Of[drivertest.SetStencil](cmds)
	assert.Equal(t, []drivertest.SetStencil{
		{Which: "compareMask", Face: driver.StencilFaceFrontAndBack, Value: 0xff},
		{Which: "writeMask", Face: driver.StencilFaceFrontAndBack, Value: 0xff},
		{Which: "reference", Face: driver.StencilFaceFrontAndBack, Value: 0},
	}, stencil)
	assert.Less(t, indexOf[drivertest.SetStencil](cmds), indexOf[drivertest.Draw](cmds))
	assert.Less(t, indexOf[drivertest.BindPipeline](cmds), indexOf[drivertest.SetScissor](cmds))
}

func TestStateChangeCreatesPipeline(t *testing.T) {
	d, drv := newTestDevice(t)
	pipe := graphicsPipeline(t, d, fullscreenVertex(), flatFragment())
	fb, _ := colorTarget(t, d, 16, 16)

	draw := func(cb *CommandBuffer) {
		cb.BeginRenderPass(clearPass(fb))
		cb.BindPipeline(pipe)
		cb.Draw(3, 1, 0, 0)
		cb.SetRasterizationState(&RasterizationState{PolygonMode: driver.PolygonModeLine, CullMode: driver.CullModeNone})
		cb.Draw(3, 1, 0, 0)
		cb.Draw(3, 1, 0, 0)
		cb.EndRenderPass()
	}
	cb, err := record(t, d, draw)
	require.NoError(t, err)
	assert.Equal(t, 2, drv.Created(drivertest.KindPipeline))
	binds := drivertest.Of[drivertest.BindPipeline](drv.Commands(cb.Handle()))
	require.Len(t, binds, 2)
	assert.Equal(t, driver.PolygonModeLine, drv.GraphicsPipelineInfo(binds[1].Pipeline).PolygonMode)
	assert.Equal(t, driver.CullModeBack, drv.GraphicsPipelineInfo(binds[0].Pipeline).CullMode)

	_, err = record(t, d, draw)
	require.NoError(t, err)
	assert.Equal(t, 2, drv.Created(drivertest.KindPipeline))
	assert.Equal(t, 2, d.Stats().Pipelines)

	pipe.Destroy()
	require.NoError(t, d.WaitIdle())
	assert.Zero(t, d.Stats().Pipelines)
}

func TestRecordValidation(t *testing.T) {
	d, _ := newTestDevice(t)
	gfx := uboPipeline(t, d)
	flat := graphicsPipeline(t, d, fullscreenVertex(), flatFragment())
	comp := computePipeline(t, d, uniformCompute())
	push := computePipeline(t, d, pushCompute())
	fb, target := colorTarget(t, d, 16, 16)
	vb := buffer(t, d, 200, driver.BufferUsageVertex|driver.BufferUsageTransferDst, MemoryCPUToGPU)
	ubo := buffer(t, d, 256, driver.BufferUsageUniform|driver.BufferUsageTransferSrc, MemoryCPUToGPU)
	texView := view(t, d, image2D(t, d, driver.FormatR8G8B8A8Unorm, 4, 4, 1, driver.ImageUsageSampled))

	tests := []struct {
		name string
		rec  func(cb *CommandBuffer)
		want error
	}{
		{"draw outside pass", func(cb *CommandBuffer) {
			cb.BindPipeline(flat)
			cb.Draw(3, 1, 0, 0)
		}, ErrValidation},
		{"draw without pipeline", func(cb *CommandBuffer) {
			cb.BeginRenderPass(clearPass(fb))
			cb.Draw(3, 1, 0, 0)
			cb.EndRenderPass()
		}, ErrValidation},
		{"dispatch inside pass", func(cb *CommandBuffer) {
			cb.BeginRenderPass(clearPass(fb))
			cb.BindPipeline(comp)
			cb.BindBuffer(ubo, 0, driver.WholeSize, 0, 0, 0)
			cb.Dispatch(1, 1, 1)
			cb.EndRenderPass()
		}, ErrValidation},
		{"draw with compute pipeline", func(cb *CommandBuffer) {
			cb.BeginRenderPass(clearPass(fb))
			cb.BindPipeline(comp)
			cb.Draw(3, 1, 0, 0)
			cb.EndRenderPass()
		}, ErrValidation},
		{"dispatch with graphics pipeline", func(cb *CommandBuffer) {
			cb.BindPipeline(flat)
			cb.Dispatch(1, 1, 1)
		}, ErrValidation},
		{"pass not ended", func(cb *CommandBuffer) {
			cb.BeginRenderPass(clearPass(fb))
		}, ErrValidation},
		{"nested pass", func(cb *CommandBuffer) {
			cb.BeginRenderPass(clearPass(fb))
			cb.BeginRenderPass(clearPass(fb))
		}, ErrValidation},
		{"no attachment references", func(cb *CommandBuffer) {
			cb.BeginRenderPass(&RenderPassBeginInfo{Framebuffer: fb})
		}, ErrValidation},
		{"attachment count mismatch", func(cb *CommandBuffer) {
			cb.BeginRenderPass(&RenderPassBeginInfo{Framebuffer: fb, Attachments: make([]AttachmentReference, 2)})
		}, ErrValidation},
		{"next subpass past the last", func(cb *CommandBuffer) {
			cb.BeginRenderPass(clearPass(fb))
			cb.NextSubpass()
		}, ErrValidation},
		{"pass ended early", func(cb *CommandBuffer) {
			info := clearPass(fb)
			info.Subpasses = []SubpassDescription{{Color: []uint32{0}}, {Color: []uint32{0}}}
			cb.BeginRenderPass(info)
			cb.EndRenderPass()
		}, ErrValidation},
		{"missing binding", func(cb *CommandBuffer) {
			cb.BeginRenderPass(clearPass(fb))
			cb.BindPipeline(gfx)
			cb.BindVertexBuffers(0, []*Buffer{vb}, []uint64{0})
			cb.Draw(3, 1, 0, 0)
			cb.EndRenderPass()
		}, ErrInvalidBinding},
		{"binding of the wrong kind", func(cb *CommandBuffer) {
			cb.BeginRenderPass(clearPass(fb))
			cb.BindPipeline(gfx)
			cb.BindVertexBuffers(0, []*Buffer{vb}, []uint64{0})
			cb.BindImageView(texView, nil, 0, 0, 0)
			cb.Draw(3, 1, 0, 0)
			cb.EndRenderPass()
		}, ErrInvalidBinding},
		{"missing vertex buffer", func(cb *CommandBuffer) {
			cb.BeginRenderPass(clearPass(fb))
			cb.BindPipeline(gfx)
			cb.BindBuffer(ubo, 0, driver.WholeSize, 0, 0, 0)
			cb.Draw(3, 1, 0, 0)
			cb.EndRenderPass()
		}, ErrValidation},
		{"vertex buffer without vertex usage", func(cb *CommandBuffer) {
			cb.BindVertexBuffers(0, []*Buffer{ubo}, []uint64{0})
		}, ErrValidation},
		{"index buffer without index usage", func(cb *CommandBuffer) {
			cb.BindIndexBuffer(vb, 0, driver.IndexTypeUint16)
		}, ErrValidation},
		{"indexed draw without index buffer", func(cb *CommandBuffer) {
			cb.BeginRenderPass(clearPass(fb))
			cb.BindPipeline(flat)
			cb.DrawIndexed(3, 1, 0, 0, 0)
			cb.EndRenderPass()
		}, ErrValidation},
		{"indirect buffer without indirect usage", func(cb *CommandBuffer) {
			cb.BeginRenderPass(clearPass(fb))
			cb.BindPipeline(flat)
			cb.DrawIndirect(ubo, 0, 1, 16)
			cb.EndRenderPass()
		}, ErrValidation},
		{"buffer binding out of range", func(cb *CommandBuffer) {
			cb.BindBuffer(ubo, 128, 256, 0, 0, 0)
		}, ErrValidation},
		{"push constants without pipeline", func(cb *CommandBuffer) {
			cb.PushConstants(0, make([]byte, 16))
		}, ErrValidation},
		{"push constants outside range", func(cb *CommandBuffer) {
			cb.BindPipeline(push)
			cb.PushConstants(16, make([]byte, 4))
		}, ErrValidation},
		{"transfer inside pass", func(cb *CommandBuffer) {
			cb.BeginRenderPass(clearPass(fb))
			cb.CopyBuffer(ubo, vb, []driver.BufferCopy{{Size: 16}})
			cb.EndRenderPass()
		}, ErrValidation},
		{"clear attachments outside pass", func(cb *CommandBuffer) {
			cb.ClearAttachments([]driver.ClearAttachment{{Aspect: driver.AspectColor}}, []driver.ClearRect{{LayerCount: 1}})
		}, ErrValidation},
		{"clear color of a depth image", func(cb *CommandBuffer) {
			depth := image2D(t, d, driver.FormatD32Sfloat, 4, 4, 1, driver.ImageUsageDepthStencilAttachment|driver.ImageUsageTransferDst)
			cb.ClearColorImage(depth, [4]float32{}, nil)
		}, ErrValidation},
		{"copy without transfer usage", func(cb *CommandBuffer) {
			cb.CopyBuffer(vb, ubo, []driver.BufferCopy{{Size: 16}})
		}, ErrValidation},
		{"update too large", func(cb *CommandBuffer) {
			big := buffer(t, d, 1<<17, driver.BufferUsageTransferDst, MemoryGPUOnly)
			cb.UpdateBuffer(big, 0, make([]byte, 65540))
		}, ErrValidation},
		{"fill misaligned", func(cb *CommandBuffer) {
			cb.FillBuffer(vb, 2, 16, 0)
		}, ErrValidation},
		{"resolve single-sampled", func(cb *CommandBuffer) {
			cb.ResolveImage(target, target, []driver.ImageResolve{{}})
		}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, err := record(t, d, tt.rec)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, StateInvalid, cb.State())
		})
	}
}

func TestPushConstants(t *testing.T) {
	d, drv := newTestDevice(t)
	pipe := computePipeline(t, d, pushCompute())
	require.Len(t, pipe.PushConstantRanges(), 1)
	assert.Equal(t, uint32(16), pipe.PushConstantRanges()[0].Size)

	cb, err := record(t, d, func(cb *CommandBuffer) {
		cb.BindPipeline(pipe)
		cb.PushConstants(0, make([]byte, 16))
		cb.Dispatch(1, 1, 1)
	})
	require.NoError(t, err)
	cmds := drv.Commands(cb.Handle())
	pcs := drivertest.Of[drivertest.PushConstants](cmds)
	require.Len(t, pcs, 1)
	assert.Equal(t, driver.ShaderStageCompute, pcs[0].Stages)
	assert.Len(t, pcs[0].Data, 16)
	assert.Less(t, indexOf[drivertest.PushConstants](cmds), indexOf[drivertest.Dispatch](cmds))
}

func TestTransferCommands(t *testing.T) {
	d, drv := newTestDevice(t)
	src := buffer(t, d, 256, driver.BufferUsageTransferSrc, MemoryCPUOnly)
	dst := buffer(t, d, 256, driver.BufferUsageTransferDst|driver.BufferUsageTransferSrc, MemoryGPUOnly)
	img := image2D(t, d, driver.FormatR8G8B8A8Unorm, 4, 4, 1,
		driver.ImageUsageTransferDst|driver.ImageUsageTransferSrc)

	cb, err := record(t, d, func(cb *CommandBuffer) {
		cb.FillBuffer(dst, 0, 64, 0xdeadbeef)
		cb.CopyBuffer(src, dst, []driver.BufferCopy{{Size: 64, DstOffset: 64}})
		cb.UpdateBuffer(dst, 128, make([]byte, 16))
		cb.ClearColorImage(img, [4]float32{1, 0, 0, 1}, nil)
		cb.CopyImageToBuffer(img, dst, []driver.BufferImageCopy{{Extent: driver.Extent3D{Width: 4, Height: 4, Depth: 1}}})
	})
	require.NoError(t, err)

	cmds := drv.Commands(cb.Handle())
	assert.Len(t, drivertest.Of[drivertest.FillBuffer](cmds), 1)
	assert.Len(t, drivertest.Of[drivertest.CopyBuffer](cmds), 1)
	assert.Len(t, drivertest.Of[drivertest.UpdateBuffer](cmds), 1)
	clears := drivertest.Of[drivertest.ClearColorImage](cmds)
	require.Len(t, clears, 1)
	assert.Equal(t, driver.LayoutTransferDstOptimal, clears[0].Layout)
	assert.Equal(t, uint32(1), clears[0].Ranges[0].LevelCount)

	// Every write of dst after the fill waits for the previous one. The
	// readback transitions img and waits for the update in one barrier.
	pbs := barriers(cmds)
	require.Len(t, pbs, 4)
	require.Len(t, pbs[0].Buffers, 1, "copy after fill")
	assert.Equal(t, dst.Handle(), pbs[0].Buffers[0].Buffer)
	assert.Len(t, pbs[1].Buffers, 1, "update after copy")
	require.Len(t, pbs[2].Images, 1)
	assert.Equal(t, driver.LayoutUndefined, pbs[2].Images[0].OldLayout)
	assert.Equal(t, driver.StageTopOfPipe, pbs[2].SrcStage)
	require.Len(t, pbs[3].Images, 1)
	assert.Equal(t, driver.LayoutTransferDstOptimal, pbs[3].Images[0].OldLayout)
	assert.Equal(t, driver.LayoutTransferSrcOptimal, pbs[3].Images[0].NewLayout)
	assert.Len(t, pbs[3].Buffers, 1)
	assert.Equal(t, driver.LayoutTransferSrcOptimal, img.Layout(0, 0))
}
