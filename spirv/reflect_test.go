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

// quadVertex mirrors a vertex shader with a 3×mat4 uniform block, two vertex
// inputs and gl_PerVertex.
func quadVertex() []uint32 {
	b := spirvtest.New(driver.ShaderStageVertex, "main")
	f32 := b.Float(32)
	v2 := b.Vector(f32, 2)
	v3 := b.Vector(f32, 3)
	v4 := b.Vector(f32, 4)
	m4 := b.Matrix(v4, 4)
	ubo := b.Struct("UBO",
		spirvtest.Field{Name: "model", Type: m4, Offset: 0, MatrixStride: 16},
		spirvtest.Field{Name: "view", Type: m4, Offset: 64, MatrixStride: 16},
		spirvtest.Field{Name: "proj", Type: m4, Offset: 128, MatrixStride: 16},
	)
	b.UniformBlock("ubo", ubo, 0, 0)
	b.Input("inPos", v3, 0)
	b.Input("inUV", v2, 1)
	b.Output("outUV", v2, 0)
	perVertex := b.Struct("gl_PerVertex", spirvtest.Field{Name: "gl_Position", Type: v4, BuiltIn: true})
	b.Variable("", spirvtest.Output, perVertex)
	b.BuiltIn("gl_VertexIndex", spirvtest.Input, b.Int(32, true), 42)
	return b.Words()
}

func quadFragment() []uint32 {
	b := spirvtest.New(driver.ShaderStageFragment, "main")
	f32 := b.Float(32)
	v2 := b.Vector(f32, 2)
	v4 := b.Vector(f32, 4)
	b.CombinedImageSampler("tex", 0, 1, 1)
	b.Input("inUV", v2, 0)
	b.Output("outColor", v4, 0)
	return b.Words()
}

func find(t *testing.T, rs []spirv.Resource, kind spirv.ResourceKind, name string) spirv.Resource {
	t.Helper()
	for _, r := range rs {
		if r.Kind == kind && r.Name == name {
			return r
		}
	}
	require.Failf(t, "resource not found", "%s %q", kind, name)
	return spirv.Resource{}
}

func TestReflectVertex(t *testing.T) {
	m, err := spirv.Reflect(quadVertex(), "main")
	require.NoError(t, err)
	assert.Equal(t, driver.ShaderStageVertex, m.Stage)
	assert.Equal(t, "main", m.EntryPoint)
	assert.Len(t, m.Resources, 4)

	ubo := find(t, m.Resources, spirv.UniformBuffer, "ubo")
	assert.Equal(t, uint32(0), ubo.Set)
	assert.Equal(t, uint32(0), ubo.Binding)
	assert.Equal(t, uint32(192), ubo.Size)
	assert.Equal(t, uint32(1), ubo.ArraySize)
	assert.Equal(t, spirv.Read, ubo.Access)
	require.Len(t, ubo.Members, 3)
	assert.Equal(t, "view", ubo.Members[1].Name)
	assert.Equal(t, uint32(64), ubo.Members[1].Offset)
	assert.Equal(t, uint32(64), ubo.Members[1].Size)
	assert.Equal(t, uint32(4), ubo.Members[1].Columns)
	assert.Equal(t, uint32(4), ubo.Members[1].VecSize)
	assert.Equal(t, spirv.TypeFloat, ubo.Members[1].BaseType)

	pos := find(t, m.Resources, spirv.StageInput, "inPos")
	assert.Equal(t, uint32(0), pos.Location)
	assert.Equal(t, uint32(3), pos.VecSize)
	assert.Equal(t, uint32(12), pos.Size)
	uv := find(t, m.Resources, spirv.StageInput, "inUV")
	assert.Equal(t, uint32(1), uv.Location)
	out := find(t, m.Resources, spirv.StageOutput, "outUV")
	assert.Equal(t, spirv.Write, out.Access)
}

func TestReflectFragment(t *testing.T) {
	m, err := spirv.Reflect(quadFragment(), "")
	require.NoError(t, err)
	assert.Equal(t, driver.ShaderStageFragment, m.Stage)
	tex := find(t, m.Resources, spirv.CombinedImageSampler, "tex")
	assert.Equal(t, uint32(1), tex.Binding)
	assert.Equal(t, uint32(1), tex.ArraySize)
}

func TestReflectKinds(t *testing.T) {
	b := spirvtest.New(driver.ShaderStageFragment, "main")
	b.Opaque("s", b.Sampler(), 1, 0)
	b.Opaque("img", b.Image(spirvtest.Dim2D, 1), 1, 1)
	b.Opaque("simg", b.Image(spirvtest.Dim2D, 2), 1, 2)
	b.Opaque("utb", b.Image(spirvtest.DimBuffer, 1), 1, 3)
	b.Opaque("stb", b.Image(spirvtest.DimBuffer, 2), 1, 4)
	b.InputAttachment("sub", 1, 5, 2)
	b.CombinedImageSampler("arr", 1, 6, 4)
	m, err := spirv.Reflect(b.Words(), "main")
	require.NoError(t, err)

	want := map[string]spirv.ResourceKind{
		"s":    spirv.Sampler,
		"img":  spirv.SampledImage,
		"simg": spirv.StorageImage,
		"utb":  spirv.UniformTexelBuffer,
		"stb":  spirv.StorageTexelBuffer,
		"sub":  spirv.InputAttachment,
		"arr":  spirv.CombinedImageSampler,
	}
	require.Len(t, m.Resources, len(want))
	for _, r := range m.Resources {
		assert.Equal(t, want[r.Name], r.Kind, r.Name)
		assert.Equal(t, uint32(1), r.Set)
	}
	assert.Equal(t, uint32(2), find(t, m.Resources, spirv.InputAttachment, "sub").InputAttachmentIndex)
	assert.Equal(t, uint32(4), find(t, m.Resources, spirv.CombinedImageSampler, "arr").ArraySize)
	assert.Equal(t, spirv.Read|spirv.Write, find(t, m.Resources, spirv.StorageImage, "simg").Access)
}

func TestReflectStorageAccess(t *testing.T) {
	b := spirvtest.New(driver.ShaderStageCompute, "main")
	f32 := b.Float(32)
	arr := b.RuntimeArray(f32, 4)
	ro := b.Struct("RO", spirvtest.Field{Name: "data", Type: arr, NonWritable: true})
	wo := b.Struct("WO", spirvtest.Field{Name: "data", Type: arr, NonReadable: true})
	rw := b.Struct("RW", spirvtest.Field{Name: "count", Type: b.Int(32, false)}, spirvtest.Field{Name: "data", Type: arr, Offset: 16})
	b.StorageBlock("ro", ro, 0, 0)
	b.StorageBlock("wo", wo, 0, 1)
	b.StorageBlock("rw", rw, 0, 2)
	m, err := spirv.Reflect(b.Words(), "main")
	require.NoError(t, err)
	assert.Equal(t, driver.ShaderStageCompute, m.Stage)

	assert.Equal(t, spirv.Read, find(t, m.Resources, spirv.StorageBuffer, "ro").Access)
	assert.Equal(t, spirv.Write, find(t, m.Resources, spirv.StorageBuffer, "wo").Access)
	rwr := find(t, m.Resources, spirv.StorageBuffer, "rw")
	assert.Equal(t, spirv.Read|spirv.Write, rwr.Access)
	assert.Equal(t, uint32(16), rwr.Size)
	require.Len(t, rwr.Members, 2)
	assert.Equal(t, uint32(0), rwr.Members[1].ArraySize)
}

func TestReflectPushConstants(t *testing.T) {
	b := spirvtest.New(driver.ShaderStageFragment, "main")
	f32 := b.Float(32)
	v4 := b.Vector(f32, 4)
	pc := b.Struct("PC",
		spirvtest.Field{Name: "tint", Type: v4, Offset: 16},
		spirvtest.Field{Name: "scale", Type: f32, Offset: 32},
	)
	b.PushConstants("pc", pc)
	m, err := spirv.Reflect(b.Words(), "main")
	require.NoError(t, err)
	r := find(t, m.Resources, spirv.PushConstantBuffer, "pc")
	assert.Equal(t, uint32(16), r.Offset)
	assert.Equal(t, uint32(20), r.Size)
	assert.Equal(t, []driver.PushConstantRange{{Stages: driver.ShaderStageFragment, Offset: 16, Size: 20}},
		spirv.PushConstantRanges(m.Resources))
}

func TestReflectErrors(t *testing.T) {
	_, err := spirv.Reflect([]uint32{1, 2, 3}, "main")
	assert.True(t, errors.Is(err, driver.ErrInvalidShaderModule))

	bad := quadFragment()
	bad[0] = 0xdeadbeef
	_, err = spirv.Reflect(bad, "main")
	assert.True(t, errors.Is(err, driver.ErrInvalidShaderModule))

	_, err = spirv.Reflect(quadFragment(), "frag_main")
	assert.True(t, errors.Is(err, driver.ErrNoEntryPoint))

	truncated := quadFragment()
	truncated = truncated[:len(truncated)-1]
	truncated[len(truncated)-1] = 10<<16 | 5
	_, err = spirv.Reflect(truncated, "main")
	assert.True(t, errors.Is(err, driver.ErrInvalidShaderModule))
}

func TestEntryPoints(t *testing.T) {
	names, err := spirv.EntryPoints(quadVertex())
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, names)
}
