package vkez

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/driver/drivertest"
)

func TestBuffers(t *testing.T) {
	d, drv := newTestDevice(t)

	_, err := d.CreateBuffer(&BufferCreateInfo{Size: 0, Usage: driver.BufferUsageUniform}, MemoryCPUToGPU)
	assert.ErrorIs(t, err, ErrValidation)

	gpu := buffer(t, d, 256, driver.BufferUsageVertex|driver.BufferUsageTransferDst, MemoryGPUOnly)
	_, err = gpu.Map(0, driver.WholeSize)
	assert.ErrorIs(t, err, ErrMemoryMapFailed)

	host := buffer(t, d, 16, driver.BufferUsageUniform, MemoryCPUToGPU)
	assert.ErrorIs(t, d.BufferSubData(host, 8, make([]byte, 9)), ErrValidation)
	assert.ErrorIs(t, d.BufferSubData(nil, 0, []byte{1}), ErrInvalidHandle)
	_, err = host.Map(8, 16)
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, d.BufferSubData(host, 4, []byte{1, 2, 3, 4}))
	assert.Empty(t, drv.Submits, "host-visible writes need no submission")
	m, err := host.Map(0, driver.WholeSize)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4}, m[:8])
	host.Unmap()

	require.NoError(t, d.BufferSubData(gpu, 16, make([]byte, 32)))
	require.Len(t, drv.Submits, 1)
	assert.Equal(t, d.GraphicsQueue().Handle(), drv.Submits[0].Queue)
	var copies []drivertest.CopyBuffer
	for _, cmds := range drv.Submits[0].Frozen {
		copies = append(copies, drivertest.Of[drivertest.CopyBuffer](cmds)...)
	}
	require.Len(t, copies, 1)
	assert.Equal(t, gpu.Handle(), copies[0].Dst)
	assert.Equal(t, []driver.BufferCopy{{DstOffset: 16, Size: 32}}, copies[0].Regions)
}

func TestImages(t *testing.T) {
	d, _ := newTestDevice(t)

	_, err := d.CreateImage(&ImageCreateInfo{
		Type:   driver.ImageType2D,
		Format: driver.FormatR8G8B8A8Unorm,
		Usage:  driver.ImageUsageSampled,
	}, MemoryGPUOnly)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = d.CreateImage(&ImageCreateInfo{
		Type:   driver.ImageType2D,
		Extent: driver.Extent3D{Width: 4, Height: 4, Depth: 1},
		Usage:  driver.ImageUsageSampled,
	}, MemoryGPUOnly)
	assert.ErrorIs(t, err, ErrFormatNotSupported)

	img := image2D(t, d, driver.FormatR8G8B8A8Unorm, 16, 8, 3, driver.ImageUsageSampled|driver.ImageUsageTransferDst)
	assert.Equal(t, driver.Extent3D{Width: 4, Height: 2, Depth: 1}, img.MipExtent(2))
	assert.Equal(t, driver.LayoutUndefined, img.Layout(0, 0))

	_, err = d.CreateImageView(&ImageViewCreateInfo{
		Image:       img,
		ViewType:    driver.ImageViewType2D,
		Subresource: driver.ImageSubresourceRange{BaseMipLevel: 2, LevelCount: 2},
	})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = d.CreateImageView(&ImageViewCreateInfo{ViewType: driver.ImageViewType2D})
	assert.ErrorIs(t, err, ErrInvalidHandle)

	v, err := d.CreateImageView(&ImageViewCreateInfo{
		Image:       img,
		ViewType:    driver.ImageViewType2D,
		Subresource: driver.ImageSubresourceRange{BaseMipLevel: 1},
	})
	require.NoError(t, err)
	t.Cleanup(v.Destroy)
	assert.Equal(t, uint32(2), v.Range().LevelCount)
	assert.Equal(t, driver.Extent3D{Width: 8, Height: 4, Depth: 1}, v.Extent())
	assert.Same(t, img, v.Image())

	err = d.ImageSubData(img, &ImageSubDataInfo{
		Subresource: driver.ImageSubresourceLayers{Aspect: driver.AspectColor, MipLevel: 0, LayerCount: 1},
	}, make([]byte, 16*8*4-1))
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, d.ImageSubData(nil, &ImageSubDataInfo{}, nil), ErrInvalidHandle)

	require.NoError(t, d.ImageSubData(img, &ImageSubDataInfo{
		Subresource: driver.ImageSubresourceLayers{Aspect: driver.AspectColor, MipLevel: 1, LayerCount: 1},
	}, make([]byte, 8*4*4)))
	assert.Equal(t, driver.LayoutTransferDstOptimal, img.Layout(1, 0))
	assert.Equal(t, driver.LayoutUndefined, img.Layout(0, 0))
}

func TestFramebuffers(t *testing.T) {
	d, _ := newTestDevice(t)

	_, err := d.CreateFramebuffer(&FramebufferCreateInfo{})
	assert.ErrorIs(t, err, ErrValidation)

	small := view(t, d, image2D(t, d, driver.FormatR8G8B8A8Unorm, 32, 32, 1, driver.ImageUsageColorAttachment))
	big := view(t, d, image2D(t, d, driver.FormatR8G8B8A8Unorm, 64, 48, 1, driver.ImageUsageColorAttachment))

	_, err = d.CreateFramebuffer(&FramebufferCreateInfo{Attachments: []*ImageView{small}, Width: 64, Height: 64})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = d.CreateFramebuffer(&FramebufferCreateInfo{Attachments: []*ImageView{small, nil}})
	assert.ErrorIs(t, err, ErrInvalidHandle)

	fb := framebuffer(t, d, big, small)
	assert.Equal(t, uint32(32), fb.Width(), "defaults to the smallest attachment")
	assert.Equal(t, uint32(32), fb.Height())
	assert.Equal(t, uint32(1), fb.Layers())
}

func TestSamplerAnisotropy(t *testing.T) {
	drv := drivertest.New()
	drv.Properties().Features.SamplerAnisotropy = false
	d, err := NewDevice(drv, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, d.Destroy()) })

	_, err = d.CreateSampler(&driver.SamplerCreateInfo{AnisotropyEnable: true, MaxAnisotropy: 8})
	assert.ErrorIs(t, err, ErrFeatureNotPresent)

	s, err := d.CreateSampler(&driver.SamplerCreateInfo{MagFilter: driver.FilterLinear, MinFilter: driver.FilterLinear})
	require.NoError(t, err)
	s.Destroy()
}

// stubCompiler returns fixed code or a fixed error.
type stubCompiler struct {
	code []uint32
	err  error
}

func (c stubCompiler) Compile(driver.ShaderStage, string, string) ([]uint32, error) {
	return c.code, c.err
}

func TestShaderModules(t *testing.T) {
	d, _ := newTestDevice(t)

	_, err := d.CreateShaderModule(&ShaderModuleCreateInfo{})
	assert.ErrorIs(t, err, ErrInvalidShaderModule)

	m, err := d.CreateShaderModule(&ShaderModuleCreateInfo{
		Stage:    driver.ShaderStageFragment,
		Source:   "broken",
		Compiler: stubCompiler{err: errors.New("1:1: unexpected token")},
	})
	assert.ErrorIs(t, err, ErrShaderCompileFailed)
	require.NotNil(t, m)
	assert.Contains(t, m.InfoLog(), "unexpected token")
	m.Destroy()

	m, err = d.CreateShaderModule(&ShaderModuleCreateInfo{
		Stage:    driver.ShaderStageVertex,
		Source:   "compiled elsewhere",
		Compiler: stubCompiler{code: texturedVertex()},
	})
	require.NoError(t, err)
	t.Cleanup(m.Destroy)
	assert.Equal(t, driver.ShaderStageVertex, m.Stage())
	assert.Equal(t, "main", m.EntryPoint())
	assert.NotEmpty(t, m.Resources())

	_, err = d.CreateShaderModule(&ShaderModuleCreateInfo{Stage: driver.ShaderStageFragment, Code: pointVertex()})
	assert.ErrorIs(t, err, ErrNoEntryPoint)
	_, err = d.CreateShaderModule(&ShaderModuleCreateInfo{Code: pointVertex(), EntryPoint: "other"})
	assert.ErrorIs(t, err, ErrNoEntryPoint)
	_, err = d.CreateShaderModule(&ShaderModuleCreateInfo{Code: []uint32{1, 2, 3}})
	assert.ErrorIs(t, err, ErrInvalidShaderModule)
}

func TestPipelineValidation(t *testing.T) {
	d, _ := newTestDevice(t)
	vert := shader(t, d, pointVertex())
	frag := shader(t, d, flatFragment())
	comp := shader(t, d, storageCompute())

	for name, tc := range map[string]struct {
		stages []PipelineShaderStage
		want   error
	}{
		"no vertex stage":  {[]PipelineShaderStage{{Module: frag}}, ErrValidation},
		"duplicate stage":  {[]PipelineShaderStage{{Module: vert}, {Module: vert}}, ErrValidation},
		"compute stage":    {[]PipelineShaderStage{{Module: vert}, {Module: comp}}, ErrValidation},
		"missing module":   {[]PipelineShaderStage{{Module: vert}, {}}, ErrInvalidShaderModule},
		"wrong entrypoint": {[]PipelineShaderStage{{Module: vert, EntryPoint: "other"}}, ErrNoEntryPoint},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := d.CreateGraphicsPipeline(&GraphicsPipelineCreateInfo{Stages: tc.stages})
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, IsValidationError(err))
		})
	}

	_, err := d.CreateComputePipeline(&ComputePipelineCreateInfo{Stage: PipelineShaderStage{Module: vert}})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = d.CreateComputePipeline(&ComputePipelineCreateInfo{})
	assert.ErrorIs(t, err, ErrInvalidShaderModule)

	p := computePipeline(t, d, storageCompute())
	p.Destroy()
	p.Destroy()
}

func TestGPUOnlyBufferOnUnifiedMemory(t *testing.T) {
	drv := drivertest.New()
	drv.Properties().MemoryTypes = []driver.MemoryType{
		{Flags: driver.MemoryDeviceLocal | driver.MemoryHostVisible | driver.MemoryHostCoherent, HeapIndex: 0},
		{Flags: driver.MemoryHostVisible | driver.MemoryHostCoherent | driver.MemoryHostCached, HeapIndex: 1},
	}
	d, err := NewDevice(drv, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, d.Destroy()) })

	b := buffer(t, d, 256, driver.BufferUsageVertex|driver.BufferUsageTransferDst, MemoryGPUOnly)
	_, err = b.Map(0, driver.WholeSize)
	assert.ErrorIs(t, err, ErrMemoryMapFailed)

	require.NoError(t, d.BufferSubData(b, 0, make([]byte, 64)))
	require.Len(t, drv.Submits, 1, "GPU-only writes go through a staged copy")
}
