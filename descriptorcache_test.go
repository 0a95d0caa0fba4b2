package vkez

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/driver/drivertest"
)

// drawEach records one draw per uniform buffer, each bound at set 0
// binding 0.
func drawEach(cb *CommandBuffer, pipe *Pipeline, fb *Framebuffer, vb *Buffer, ubos ...*Buffer) {
	cb.BeginRenderPass(clearPass(fb))
	cb.BindPipeline(pipe)
	cb.BindVertexBuffers(0, []*Buffer{vb}, []uint64{0})
	for _, u := range ubos {
		cb.BindBuffer(u, 0, 64, 0, 0, 0)
		cb.Draw(3, 1, 0, 0)
	}
	cb.EndRenderPass()
}

func TestDescriptorSetsKeyedOnContent(t *testing.T) {
	d, drv := newTestDevice(t)
	pipe := uboPipeline(t, d)
	vb := buffer(t, d, 200, driver.BufferUsageVertex, MemoryCPUToGPU)
	ubo := buffer(t, d, 256, driver.BufferUsageUniform, MemoryCPUToGPU)
	fb, _ := colorTarget(t, d, 16, 16)

	first, err := record(t, d, func(cb *CommandBuffer) { drawEach(cb, pipe, fb, vb, ubo) })
	require.NoError(t, err)
	second, err := record(t, d, func(cb *CommandBuffer) { drawEach(cb, pipe, fb, vb, ubo) })
	require.NoError(t, err)

	a := drivertest.Of[drivertest.BindDescriptorSets](drv.Commands(first.Handle()))
	b := drivertest.Of[drivertest.BindDescriptorSets](drv.Commands(second.Handle()))
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].Sets, b[0].Sets, "same resources give the same set")
	assert.Len(t, drv.Writes, 1)
	assert.Equal(t, 1, d.Stats().DescriptorSets)

	// A different range is different content.
	third, err := record(t, d, func(cb *CommandBuffer) {
		cb.BeginRenderPass(clearPass(fb))
		cb.BindPipeline(pipe)
		cb.BindVertexBuffers(0, []*Buffer{vb}, []uint64{0})
		cb.BindBuffer(ubo, 64, 64, 0, 0, 0)
		cb.Draw(3, 1, 0, 0)
		cb.EndRenderPass()
	})
	require.NoError(t, err)
	c := drivertest.Of[drivertest.BindDescriptorSets](drv.Commands(third.Handle()))
	require.Len(t, c, 1)
	assert.NotEqual(t, a[0].Sets, c[0].Sets)
	require.Len(t, drv.Writes, 2)
	require.Len(t, drv.Writes[1].Buffers, 1)
	assert.Equal(t, uint64(64), drv.Writes[1].Buffers[0].Offset)
	assert.Equal(t, driver.DescriptorUniformBuffer, drv.Writes[1].Type)
}

func TestDescriptorSetsRecycled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Descriptors.SetsPerPool = 2
	d, drv := newTestDeviceConfig(t, cfg)
	pipe := uboPipeline(t, d)
	vb := buffer(t, d, 200, driver.BufferUsageVertex, MemoryCPUToGPU)
	fb, _ := colorTarget(t, d, 16, 16)
	ubos := make([]*Buffer, 7)
	for i := range ubos {
		ubos[i] = buffer(t, d, 64, driver.BufferUsageUniform, MemoryCPUToGPU)
	}

	cb := commandBuffer(t, d, d.GraphicsQueue())
	require.NoError(t, cb.Begin())
	drawEach(cb, pipe, fb, vb, ubos[:3]...)
	require.NoError(t, cb.End())

	st := d.Stats()
	assert.Equal(t, 3, st.DescriptorSets)
	assert.Equal(t, 2, st.DescriptorPools, "pinned sets are never recycled")

	// Beginning again unpins the previous sets, so new content reuses them
	// once the current pool is exhausted.
	require.NoError(t, cb.Begin())
	drawEach(cb, pipe, fb, vb, ubos[3:]...)
	require.NoError(t, cb.End())

	st = d.Stats()
	assert.Equal(t, 4, st.DescriptorSets)
	assert.Equal(t, 2, st.DescriptorPools)
	assert.Equal(t, 2, drv.Live(drivertest.KindDescriptorPool))
	assert.Len(t, drv.Writes, 7)
}

func TestIdleDescriptorSetsRecycledBeforeNewPool(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Descriptors.SetsPerPool = 1
	d, _ := newTestDeviceConfig(t, cfg)
	pipe := uboPipeline(t, d)
	vb := buffer(t, d, 200, driver.BufferUsageVertex, MemoryCPUToGPU)
	fb, _ := colorTarget(t, d, 16, 16)
	a := buffer(t, d, 64, driver.BufferUsageUniform, MemoryCPUToGPU)
	b := buffer(t, d, 64, driver.BufferUsageUniform, MemoryCPUToGPU)
	c := buffer(t, d, 64, driver.BufferUsageUniform, MemoryCPUToGPU)

	first, err := record(t, d, func(cb *CommandBuffer) { drawEach(cb, pipe, fb, vb, a) })
	require.NoError(t, err)
	submit(t, d.GraphicsQueue(), first)
	second, err := record(t, d, func(cb *CommandBuffer) { drawEach(cb, pipe, fb, vb, b) })
	require.NoError(t, err)
	assert.Equal(t, 2, d.Stats().DescriptorPools)

	require.NoError(t, d.WaitIdle())
	require.NoError(t, first.Reset())

	_, err = record(t, d, func(cb *CommandBuffer) { drawEach(cb, pipe, fb, vb, c) })
	require.NoError(t, err)
	st := d.Stats()
	assert.Equal(t, 2, st.DescriptorPools, "idle sets are recycled before a new pool is created")
	assert.Equal(t, 2, st.DescriptorSets)
	assert.Equal(t, StateExecutable, second.State())
}
