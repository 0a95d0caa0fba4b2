package vkez

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkez/driver"
)

func TestTransition(t *testing.T) {
	written := accessState{writeStage: driver.StageTransfer, writeAccess: driver.AccessTransferWrite}

	t.Run("first read", func(t *testing.T) {
		_, next, need := transition(accessState{}, driver.StageVertexInput, driver.AccessVertexAttributeRead, driver.LayoutUndefined)
		assert.False(t, need)
		assert.Equal(t, driver.StageVertexInput, next.readStage)
	})

	t.Run("read after write", func(t *testing.T) {
		sc, next, need := transition(written, driver.StageVertexInput, driver.AccessVertexAttributeRead, driver.LayoutUndefined)
		require.True(t, need)
		assert.Equal(t, driver.StageTransfer, sc.srcStage)
		assert.Equal(t, driver.AccessTransferWrite, sc.srcAccess)
		assert.Equal(t, driver.StageVertexInput, sc.dstStage)
		assert.Equal(t, driver.AccessVertexAttributeRead, sc.dstAccess)

		_, _, need = transition(next, driver.StageVertexInput, driver.AccessVertexAttributeRead, driver.LayoutUndefined)
		assert.False(t, need, "second read in a covered stage")

		sc, _, need = transition(next, driver.StageVertexShader, driver.AccessUniformRead, driver.LayoutUndefined)
		require.True(t, need, "read in a new stage still waits for the write")
		assert.Equal(t, driver.StageTransfer, sc.srcStage)
	})

	t.Run("write after read", func(t *testing.T) {
		read := accessState{readStage: driver.StageFragmentShader, readAccess: driver.AccessShaderRead}
		sc, next, need := transition(read, driver.StageComputeShader, driver.AccessShaderWrite, driver.LayoutUndefined)
		require.True(t, need)
		assert.Equal(t, driver.StageFragmentShader, sc.srcStage)
		assert.Equal(t, driver.StageComputeShader, sc.dstStage)
		assert.Equal(t, accessState{writeStage: driver.StageComputeShader, writeAccess: driver.AccessShaderWrite}, next)
	})

	t.Run("write after write", func(t *testing.T) {
		sc, _, need := transition(written, driver.StageComputeShader, driver.AccessShaderWrite, driver.LayoutUndefined)
		require.True(t, need)
		assert.Equal(t, driver.StageTransfer, sc.srcStage)
		assert.Equal(t, driver.AccessTransferWrite, sc.srcAccess)
	})

	t.Run("layout change on fresh image", func(t *testing.T) {
		sc, next, need := transition(accessState{}, driver.StageTransfer, driver.AccessTransferWrite, driver.LayoutTransferDstOptimal)
		require.True(t, need)
		assert.Equal(t, driver.StageTopOfPipe, sc.srcStage)
		assert.Equal(t, driver.LayoutUndefined, sc.oldLayout)
		assert.Equal(t, driver.LayoutTransferDstOptimal, sc.newLayout)
		assert.Equal(t, driver.LayoutTransferDstOptimal, next.layout)
	})

	t.Run("read with layout change", func(t *testing.T) {
		st := written
		st.layout = driver.LayoutTransferDstOptimal
		sc, next, need := transition(st, driver.StageFragmentShader, driver.AccessShaderRead, driver.LayoutShaderReadOnlyOptimal)
		require.True(t, need)
		assert.Equal(t, driver.LayoutTransferDstOptimal, sc.oldLayout)
		assert.Equal(t, driver.LayoutShaderReadOnlyOptimal, sc.newLayout)

		_, _, need = transition(next, driver.StageFragmentShader, driver.AccessShaderRead, driver.LayoutShaderReadOnlyOptimal)
		assert.False(t, need)
	})
}

func TestTrackerBufferReadsNeedNoBarrier(t *testing.T) {
	b := &Buffer{handle: driver.Buffer(7)}
	tr := newTracker()

	read := func() *driver.PipelineBarrier {
		s := &accessSet{}
		s.addBuffer(b, driver.StageVertexInput, driver.AccessVertexAttributeRead)
		s.addBuffer(b, driver.StageVertexInput, driver.AccessIndexRead)
		require.Len(t, s.buffers, 1)
		return tr.apply(s)
	}
	write := &accessSet{}
	require.NoError(t, write.add(access{buffer: b, stage: driver.StageComputeShader, access: driver.AccessShaderWrite}))
	assert.Nil(t, tr.apply(write), "first access to an untouched buffer")

	pb := read()
	require.NotNil(t, pb)
	require.Len(t, pb.Buffers, 1)
	assert.Equal(t, driver.StageComputeShader, pb.SrcStage)
	assert.Equal(t, driver.StageVertexInput, pb.DstStage)
	assert.Equal(t, driver.AccessShaderWrite, pb.Buffers[0].SrcAccess)
	assert.Equal(t, driver.AccessVertexAttributeRead|driver.AccessIndexRead, pb.Buffers[0].DstAccess)
	assert.Equal(t, driver.Buffer(7), pb.Buffers[0].Buffer)

	assert.Nil(t, read())
	assert.Nil(t, read())

	tr.commit()
	assert.Equal(t, driver.StageVertexInput, b.state.readStage)
	assert.Equal(t, driver.StageComputeShader, b.state.writeStage)
}

func TestAccessSetLayoutConflict(t *testing.T) {
	img := &Image{handle: driver.Image(3), format: driver.FormatR8G8B8A8Unorm, mipLevels: 2, arrayLayers: 1,
		states: make([]accessState, 2)}
	s := &accessSet{}
	all := subresources{levels: 2, layers: 1}
	require.NoError(t, s.add(access{image: img, rng: all, stage: driver.StageTransfer,
		access: driver.AccessTransferRead, layout: driver.LayoutTransferSrcOptimal}))
	require.NoError(t, s.add(access{image: img, rng: all, stage: driver.StageTransfer,
		access: driver.AccessTransferRead, layout: driver.LayoutTransferSrcOptimal}))
	err := s.add(access{image: img, rng: subresources{baseMip: 1, levels: 1, layers: 1}, stage: driver.StageTransfer,
		access: driver.AccessTransferWrite, layout: driver.LayoutTransferDstOptimal})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestImageBarriersCoalesce(t *testing.T) {
	img := &Image{handle: driver.Image(9), format: driver.FormatR8G8B8A8Unorm, mipLevels: 4, arrayLayers: 3}
	toDst := scope{
		srcStage: driver.StageTopOfPipe, dstStage: driver.StageTransfer, dstAccess: driver.AccessTransferWrite,
		oldLayout: driver.LayoutUndefined, newLayout: driver.LayoutTransferDstOptimal,
	}
	toSrc := toDst
	toSrc.newLayout = driver.LayoutTransferSrcOptimal

	scopes := make([]scope, 12)
	needs := make([]bool, 12)
	for layer := range 3 {
		for mip := range 4 {
			i := layer*4 + mip
			needs[i] = mip > 0
			scopes[i] = toDst
			if mip == 3 {
				scopes[i] = toSrc
			}
		}
	}

	out := imageBarriers(img, scopes, needs)
	require.Len(t, out, 2, "one barrier per mip run, shared by all layers")
	assert.Equal(t, driver.ImageSubresourceRange{Aspect: driver.AspectColor, BaseMipLevel: 1, LevelCount: 2, LayerCount: 3}, out[0].Range)
	assert.Equal(t, driver.LayoutTransferDstOptimal, out[0].NewLayout)
	assert.Equal(t, driver.ImageSubresourceRange{Aspect: driver.AspectColor, BaseMipLevel: 3, LevelCount: 1, LayerCount: 3}, out[1].Range)
	assert.Equal(t, driver.LayoutTransferSrcOptimal, out[1].NewLayout)
	assert.Equal(t, driver.QueueFamilyIgnored, out[0].SrcQueueFamily)

	needs[4+1], needs[4+2], needs[4+3] = false, false, false
	out = imageBarriers(img, scopes, needs)
	require.Len(t, out, 4, "the untouched middle layer splits the runs")
	assert.Equal(t, uint32(0), out[0].Range.BaseArrayLayer)
	assert.Equal(t, uint32(1), out[0].Range.LayerCount)
	assert.Equal(t, uint32(2), out[2].Range.BaseArrayLayer)
}
