package vkez

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/driver/drivertest"
	"github.com/celer/vkez/spirv/spirvtest"
)

func newTestDevice(t *testing.T) (*Device, *drivertest.Device) {
	t.Helper()
	return newTestDeviceConfig(t, DefaultConfig())
}

func newTestDeviceConfig(t *testing.T, cfg Config) (*Device, *drivertest.Device) {
	t.Helper()
	drv := drivertest.New()
	d, err := NewDevice(drv, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, d.Destroy())
		assert.Empty(t, drv.Errors, "driver misuse")
	})
	return d, drv
}

func shader(t *testing.T, d *Device, code []uint32) *ShaderModule {
	t.Helper()
	m, err := d.CreateShaderModule(&ShaderModuleCreateInfo{Code: code})
	require.NoError(t, err)
	t.Cleanup(m.Destroy)
	return m
}

// texturedVertex has a position and a uv input and a uniform block at set
// 0 binding 0.
func texturedVertex() []uint32 {
	b := spirvtest.New(driver.ShaderStageVertex, "main")
	f32 := b.Float(32)
	v2 := b.Vector(f32, 2)
	v3 := b.Vector(f32, 3)
	v4 := b.Vector(f32, 4)
	m4 := b.Matrix(v4, 4)
	ubo := b.Struct("UBO", spirvtest.Field{Name: "mvp", Type: m4, MatrixStride: 16})
	b.UniformBlock("ubo", ubo, 0, 0)
	b.Input("inPos", v3, 0)
	b.Input("inUV", v2, 1)
	b.Output("outUV", v2, 0)
	return b.Words()
}

// texturedFragment samples a texture at set 0 binding 1.
func texturedFragment() []uint32 {
	b := spirvtest.New(driver.ShaderStageFragment, "main")
	f32 := b.Float(32)
	b.CombinedImageSampler("tex", 0, 1, 1)
	b.Input("inUV", b.Vector(f32, 2), 0)
	b.Output("outColor", b.Vector(b.Float(32), 4), 0)
	return b.Words()
}

// pointVertex reads one vec4 per vertex and uses no descriptors.
func pointVertex() []uint32 {
	b := spirvtest.New(driver.ShaderStageVertex, "main")
	b.Input("inPos", b.Vector(b.Float(32), 4), 0)
	return b.Words()
}

// fullscreenVertex has no inputs at all.
func fullscreenVertex() []uint32 {
	b := spirvtest.New(driver.ShaderStageVertex, "main")
	b.Output("outUV", b.Vector(b.Float(32), 2), 0)
	return b.Words()
}

func flatFragment() []uint32 {
	b := spirvtest.New(driver.ShaderStageFragment, "main")
	b.Output("outColor", b.Vector(b.Float(32), 4), 0)
	return b.Words()
}

// compositeFragment reads the previous subpass through an input
// attachment at set 0 binding 0.
func compositeFragment() []uint32 {
	b := spirvtest.New(driver.ShaderStageFragment, "main")
	b.InputAttachment("scene", 0, 0, 0)
	b.Output("outColor", b.Vector(b.Float(32), 4), 0)
	return b.Words()
}

// storageCompute writes a storage block at set 0 binding 0.
func storageCompute() []uint32 {
	b := spirvtest.New(driver.ShaderStageCompute, "main")
	f32 := b.Float(32)
	v4 := b.Vector(f32, 4)
	block := b.Struct("Particles", spirvtest.Field{Name: "pos", Type: b.RuntimeArray(v4, 16)})
	b.StorageBlock("particles", block, 0, 0)
	return b.Words()
}

// uniformCompute reads a uniform block at set 0 binding 0.
func uniformCompute() []uint32 {
	b := spirvtest.New(driver.ShaderStageCompute, "main")
	f32 := b.Float(32)
	params := b.Struct("Params", spirvtest.Field{Name: "scale", Type: b.Vector(f32, 4)})
	b.UniformBlock("params", params, 0, 0)
	return b.Words()
}

// samplingCompute samples a texture at binding 0 and writes a storage
// block at binding 1.
func samplingCompute() []uint32 {
	b := spirvtest.New(driver.ShaderStageCompute, "main")
	f32 := b.Float(32)
	b.CombinedImageSampler("tex", 0, 0, 1)
	block := b.Struct("Out", spirvtest.Field{Name: "v", Type: b.RuntimeArray(b.Vector(f32, 4), 16)})
	b.StorageBlock("out", block, 0, 1)
	return b.Words()
}

// pushCompute has a 16 byte push-constant block.
func pushCompute() []uint32 {
	b := spirvtest.New(driver.ShaderStageCompute, "main")
	f32 := b.Float(32)
	pc := b.Struct("Push", spirvtest.Field{Name: "tint", Type: b.Vector(f32, 4)})
	b.PushConstants("push", pc)
	return b.Words()
}

func graphicsPipeline(t *testing.T, d *Device, stages ...[]uint32) *Pipeline {
	t.Helper()
	info := &GraphicsPipelineCreateInfo{}
	for _, code := range stages {
		info.Stages = append(info.Stages, PipelineShaderStage{Module: shader(t, d, code)})
	}
	p, err := d.CreateGraphicsPipeline(info)
	require.NoError(t, err)
	t.Cleanup(p.Destroy)
	return p
}

func computePipeline(t *testing.T, d *Device, code []uint32) *Pipeline {
	t.Helper()
	p, err := d.CreateComputePipeline(&ComputePipelineCreateInfo{Stage: PipelineShaderStage{Module: shader(t, d, code)}})
	require.NoError(t, err)
	t.Cleanup(p.Destroy)
	return p
}

func buffer(t *testing.T, d *Device, size uint64, usage driver.BufferUsage, mem MemoryUsage) *Buffer {
	t.Helper()
	b, err := d.CreateBuffer(&BufferCreateInfo{Size: size, Usage: usage}, mem)
	require.NoError(t, err)
	t.Cleanup(b.Destroy)
	return b
}

func image2D(t *testing.T, d *Device, format driver.Format, w, h, mips uint32, usage driver.ImageUsage) *Image {
	t.Helper()
	img, err := d.CreateImage(&ImageCreateInfo{
		Type:      driver.ImageType2D,
		Format:    format,
		Extent:    driver.Extent3D{Width: w, Height: h, Depth: 1},
		MipLevels: mips,
		Usage:     usage,
	}, MemoryGPUOnly)
	require.NoError(t, err)
	t.Cleanup(img.Destroy)
	return img
}

func view(t *testing.T, d *Device, img *Image) *ImageView {
	t.Helper()
	v, err := d.CreateImageView(&ImageViewCreateInfo{Image: img, ViewType: driver.ImageViewType2D})
	require.NoError(t, err)
	t.Cleanup(v.Destroy)
	return v
}

func framebuffer(t *testing.T, d *Device, views ...*ImageView) *Framebuffer {
	t.Helper()
	fb, err := d.CreateFramebuffer(&FramebufferCreateInfo{Attachments: views})
	require.NoError(t, err)
	t.Cleanup(fb.Destroy)
	return fb
}

// colorTarget returns a framebuffer over a single w×h color attachment.
func colorTarget(t *testing.T, d *Device, w, h uint32) (*Framebuffer, *Image) {
	t.Helper()
	img := image2D(t, d, driver.FormatR8G8B8A8Unorm, w, h, 1,
		driver.ImageUsageColorAttachment|driver.ImageUsageTransferSrc)
	return framebuffer(t, d, view(t, d, img)), img
}

func clearPass(fb *Framebuffer) *RenderPassBeginInfo {
	refs := make([]AttachmentReference, len(fb.Attachments()))
	for i := range refs {
		refs[i] = AttachmentReference{LoadOp: driver.LoadOpClear, StoreOp: driver.StoreOpStore}
	}
	return &RenderPassBeginInfo{Framebuffer: fb, Attachments: refs}
}

func commandBuffer(t *testing.T, d *Device, q *Queue) *CommandBuffer {
	t.Helper()
	cb, err := d.AllocateCommandBuffer(q)
	require.NoError(t, err)
	t.Cleanup(cb.Free)
	return cb
}

func submit(t *testing.T, q *Queue, cbs ...*CommandBuffer) {
	t.Helper()
	require.NoError(t, q.Submit([]SubmitInfo{{CommandBuffers: cbs}}, nil))
}

func barriers(cmds []any) []driver.PipelineBarrier {
	return drivertest.Of[driver.PipelineBarrier](cmds)
}

// indexOf returns the position of the first command of type T, or -1.
func indexOf[T any](cmds []any) int {
	for i, c := range cmds {
		if _, ok := c.(T); ok {
			return i
		}
	}
	return -1
}

func imageBarrierOf(pb driver.PipelineBarrier, img *Image) []driver.ImageBarrier {
	var out []driver.ImageBarrier
	for _, b := range pb.Images {
		if b.Image == img.Handle() {
			out = append(out, b)
		}
	}
	return out
}

func bufferBarrierOf(pb driver.PipelineBarrier, b *Buffer) (driver.BufferBarrier, bool) {
	for _, x := range pb.Buffers {
		if x.Buffer == b.Handle() {
			return x, true
		}
	}
	return driver.BufferBarrier{}, false
}
