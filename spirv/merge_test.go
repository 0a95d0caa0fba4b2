package spirv_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/spirv"
	"github.com/celer/vkez/spirv/spirvtest"
)

func reflect(t *testing.T, code []uint32) []spirv.Resource {
	t.Helper()
	m, err := spirv.Reflect(code, "main")
	require.NoError(t, err)
	return m.Resources
}

func TestMergeUnionsStages(t *testing.T) {
	vs := spirvtest.New(driver.ShaderStageVertex, "main")
	vs.UniformBlock("ubo", vs.Struct("UBO", spirvtest.Field{Name: "x", Type: vs.Float(32)}), 0, 0)
	fs := spirvtest.New(driver.ShaderStageFragment, "main")
	fs.UniformBlock("ubo", fs.Struct("UBO", spirvtest.Field{Name: "x", Type: fs.Float(32)}), 0, 0)
	fs.CombinedImageSampler("tex", 0, 1, 1)

	merged, err := spirv.Merge(reflect(t, vs.Words()), reflect(t, fs.Words()))
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.Equal(t, spirv.UniformBuffer, merged[0].Kind)
	assert.Equal(t, driver.ShaderStageVertex|driver.ShaderStageFragment, merged[0].Stages)
	assert.Equal(t, driver.ShaderStageFragment, merged[1].Stages)
}

func TestMergeRejectsMismatch(t *testing.T) {
	vs := spirvtest.New(driver.ShaderStageVertex, "main")
	vs.UniformBlock("ubo", vs.Struct("UBO", spirvtest.Field{Name: "x", Type: vs.Float(32)}), 0, 0)
	fs := spirvtest.New(driver.ShaderStageFragment, "main")
	fs.CombinedImageSampler("tex", 0, 0, 1)
	_, err := spirv.Merge(reflect(t, vs.Words()), reflect(t, fs.Words()))
	assert.True(t, errors.Is(err, driver.ErrValidation))

	a := spirvtest.New(driver.ShaderStageVertex, "main")
	a.CombinedImageSampler("tex", 0, 0, 2)
	b := spirvtest.New(driver.ShaderStageFragment, "main")
	b.CombinedImageSampler("tex", 0, 0, 3)
	_, err = spirv.Merge(reflect(t, a.Words()), reflect(t, b.Words()))
	assert.True(t, errors.Is(err, driver.ErrValidation))
}

func TestMergeKeepsPushConstantsPerStage(t *testing.T) {
	vs := spirvtest.New(driver.ShaderStageVertex, "main")
	vs.PushConstants("pc", vs.Struct("PC", spirvtest.Field{Name: "m", Type: vs.Matrix(vs.Vector(vs.Float(32), 4), 4), MatrixStride: 16}))
	fs := spirvtest.New(driver.ShaderStageFragment, "main")
	fs.PushConstants("pc", fs.Struct("PC", spirvtest.Field{Name: "c", Type: fs.Vector(fs.Float(32), 4), Offset: 64}))
	merged, err := spirv.Merge(reflect(t, vs.Words()), reflect(t, fs.Words()))
	require.NoError(t, err)
	assert.Equal(t, []driver.PushConstantRange{
		{Stages: driver.ShaderStageVertex, Offset: 0, Size: 64},
		{Stages: driver.ShaderStageFragment, Offset: 64, Size: 16},
	}, spirv.PushConstantRanges(merged))
}

// Declared bindings survive reflection and layout generation set for set.
func TestSetBindingsRoundTrip(t *testing.T) {
	type decl struct {
		set, binding, count uint32
		kind                spirv.ResourceKind
	}
	decls := []decl{
		{0, 0, 1, spirv.UniformBuffer},
		{0, 3, 1, spirv.CombinedImageSampler},
		{2, 1, 4, spirv.CombinedImageSampler},
		{2, 0, 1, spirv.StorageBuffer},
	}
	b := spirvtest.New(driver.ShaderStageCompute, "main")
	for _, d := range decls {
		switch d.kind {
		case spirv.UniformBuffer:
			b.UniformBlock("", b.Struct("U", spirvtest.Field{Type: b.Float(32)}), d.set, d.binding)
		case spirv.StorageBuffer:
			b.StorageBlock("", b.Struct("S", spirvtest.Field{Type: b.Float(32)}), d.set, d.binding)
		default:
			b.CombinedImageSampler("", d.set, d.binding, d.count)
		}
	}
	merged, err := spirv.Merge(reflect(t, b.Words()))
	require.NoError(t, err)
	sets := spirv.SetBindings(merged)
	require.Len(t, sets, 3)
	assert.Empty(t, sets[1])

	got := map[[2]uint32]driver.DescriptorSetLayoutBinding{}
	for set, bindings := range sets {
		for _, lb := range bindings {
			got[[2]uint32{uint32(set), lb.Binding}] = lb
		}
	}
	require.Len(t, got, len(decls))
	for _, d := range decls {
		lb, ok := got[[2]uint32{d.set, d.binding}]
		require.True(t, ok)
		dt, _ := d.kind.DescriptorType()
		assert.Equal(t, dt, lb.Type)
		assert.Equal(t, d.count, lb.Count)
		assert.Equal(t, driver.ShaderStageCompute, lb.Stages)
	}
	assert.Equal(t, uint32(0), sets[2][0].Binding)
}
