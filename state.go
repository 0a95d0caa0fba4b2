package vkez

import (
	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/internal/hashkey"
)

// Fixed-function state set on a CommandBuffer between draws. Together with
// the vertex input format it selects the concrete pipeline a draw uses.
// Viewport and scissor rectangles, line width, depth bias factors, blend
// constants and stencil masks and references are dynamic and have setters
// of their own on CommandBuffer.

type InputAssemblyState struct {
	Topology         driver.PrimitiveTopology
	PrimitiveRestart bool
}

type RasterizationState struct {
	DepthClamp        bool
	RasterizerDiscard bool
	PolygonMode       driver.PolygonMode
	CullMode          driver.CullMode
	FrontFace         driver.FrontFace
	DepthBiasEnable   bool
}

type MultisampleState struct {
	// Samples defaults to the sample count of the subpass attachments.
	Samples          driver.SampleCount
	SampleShading    bool
	MinSampleShading float32
	// SampleMask of 0 enables every sample.
	SampleMask      uint32
	AlphaToCoverage bool
	AlphaToOne      bool
}

// StencilOpState is the static part of the stencil state; masks and
// references are set with the dynamic stencil setters.
type StencilOpState struct {
	FailOp      driver.StencilOp
	PassOp      driver.StencilOp
	DepthFailOp driver.StencilOp
	CompareOp   driver.CompareOp
}

type DepthStencilState struct {
	DepthTest       bool
	DepthWrite      bool
	DepthCompareOp  driver.CompareOp
	DepthBoundsTest bool
	StencilTest     bool
	Front           StencilOpState
	Back            StencilOpState
}

type ColorBlendState struct {
	LogicOpEnable bool
	LogicOp       driver.LogicOp
	// Attachments holds one entry per color attachment of the subpass. The
	// last entry is repeated for attachments beyond the list.
	Attachments []driver.ColorBlendAttachment
}

type ViewportState struct {
	ViewportCount uint32
	ScissorCount  uint32
}

type TessellationState struct {
	PatchControlPoints uint32
}

// DefaultColorBlendAttachment writes every component with blending off.
var DefaultColorBlendAttachment = driver.ColorBlendAttachment{
	SrcColorFactor: driver.BlendFactorOne,
	DstColorFactor: driver.BlendFactorZero,
	ColorOp:        driver.BlendOpAdd,
	SrcAlphaFactor: driver.BlendFactorOne,
	DstAlphaFactor: driver.BlendFactorZero,
	AlphaOp:        driver.BlendOpAdd,
	WriteMask:      driver.ColorComponentAll,
}

// pipelineState is the recorder's copy of the fixed-function state. It is
// shared by the draws recorded with it and copied before any change.
type pipelineState struct {
	inputAssembly InputAssemblyState
	rasterization RasterizationState
	multisample   MultisampleState
	depthStencil  DepthStencilState
	colorBlend    ColorBlendState
	viewport      ViewportState
	tessellation  TessellationState
	vertexFormat  *VertexInputFormat
}

func defaultPipelineState() *pipelineState {
	return &pipelineState{
		inputAssembly: InputAssemblyState{Topology: driver.TopologyTriangleList},
		rasterization: RasterizationState{
			PolygonMode: driver.PolygonModeFill,
			CullMode:    driver.CullModeBack,
			FrontFace:   driver.FrontFaceCounterClockwise,
		},
		depthStencil: DepthStencilState{
			DepthTest:      true,
			DepthWrite:     true,
			DepthCompareOp: driver.CompareOpLess,
			Front:          StencilOpState{CompareOp: driver.CompareOpAlways},
			Back:           StencilOpState{CompareOp: driver.CompareOpAlways},
		},
		colorBlend: ColorBlendState{Attachments: []driver.ColorBlendAttachment{DefaultColorBlendAttachment}},
		viewport:   ViewportState{ViewportCount: 1, ScissorCount: 1},
	}
}

func (s *pipelineState) clone() *pipelineState {
	c := *s
	c.colorBlend.Attachments = append([]driver.ColorBlendAttachment(nil), s.colorBlend.Attachments...)
	return &c
}

func encodeStencil(b *hashkey.Builder, s StencilOpState) {
	b.U32(uint32(s.FailOp)).U32(uint32(s.PassOp)).U32(uint32(s.DepthFailOp)).U32(uint32(s.CompareOp))
}

// encode appends the state to a concrete pipeline key. vertex is the
// format the draw resolves to, which may be derived from the shader.
func (s *pipelineState) encode(b *hashkey.Builder, vertex *VertexInputFormat) {
	ia, rs, ms, ds := &s.inputAssembly, &s.rasterization, &s.multisample, &s.depthStencil
	b.U32(uint32(ia.Topology)).Bool(ia.PrimitiveRestart)
	b.Bool(rs.DepthClamp).Bool(rs.RasterizerDiscard).U32(uint32(rs.PolygonMode)).
		U32(uint32(rs.CullMode)).U32(uint32(rs.FrontFace)).Bool(rs.DepthBiasEnable)
	b.U32(uint32(ms.Samples)).Bool(ms.SampleShading).F32(ms.MinSampleShading).U32(ms.SampleMask).
		Bool(ms.AlphaToCoverage).Bool(ms.AlphaToOne)
	b.Bool(ds.DepthTest).Bool(ds.DepthWrite).U32(uint32(ds.DepthCompareOp)).Bool(ds.DepthBoundsTest).Bool(ds.StencilTest)
	encodeStencil(b, ds.Front)
	encodeStencil(b, ds.Back)
	b.Bool(s.colorBlend.LogicOpEnable).U32(uint32(s.colorBlend.LogicOp)).Len(len(s.colorBlend.Attachments))
	for _, a := range s.colorBlend.Attachments {
		b.Bool(a.BlendEnable).U32(uint32(a.SrcColorFactor)).U32(uint32(a.DstColorFactor)).U32(uint32(a.ColorOp)).
			U32(uint32(a.SrcAlphaFactor)).U32(uint32(a.DstAlphaFactor)).U32(uint32(a.AlphaOp)).U32(uint32(a.WriteMask))
	}
	b.U32(s.viewport.ViewportCount).U32(s.viewport.ScissorCount).U32(s.tessellation.PatchControlPoints)
	vertex.encode(b)
}

var allDynamicStates = []driver.DynamicState{
	driver.DynamicViewport,
	driver.DynamicScissor,
	driver.DynamicLineWidth,
	driver.DynamicDepthBias,
	driver.DynamicBlendConstants,
	driver.DynamicDepthBounds,
	driver.DynamicStencilCompareMask,
	driver.DynamicStencilWriteMask,
	driver.DynamicStencilReference,
}

func driverStencil(s StencilOpState) driver.StencilOpState {
	return driver.StencilOpState{FailOp: s.FailOp, PassOp: s.PassOp, DepthFailOp: s.DepthFailOp, CompareOp: s.CompareOp}
}

// fill copies the state into ci for a subpass with colorCount color
// attachments and the given sample count.
func (s *pipelineState) fill(ci *driver.GraphicsPipelineCreateInfo, vertex *VertexInputFormat, colorCount int, samples driver.SampleCount) {
	ci.VertexBindings = vertex.bindings
	ci.VertexAttributes = vertex.attributes

	ci.Topology = s.inputAssembly.Topology
	ci.PrimitiveRestart = s.inputAssembly.PrimitiveRestart
	ci.PatchControlPoints = s.tessellation.PatchControlPoints

	ci.ViewportCount = max(s.viewport.ViewportCount, 1)
	ci.ScissorCount = max(s.viewport.ScissorCount, 1)

	rs := &s.rasterization
	ci.DepthClamp = rs.DepthClamp
	ci.RasterizerDiscard = rs.RasterizerDiscard
	ci.PolygonMode = rs.PolygonMode
	ci.CullMode = rs.CullMode
	ci.FrontFace = rs.FrontFace
	ci.DepthBiasEnable = rs.DepthBiasEnable
	ci.LineWidth = 1

	ms := &s.multisample
	ci.Samples = samples
	if ms.Samples != 0 {
		ci.Samples = ms.Samples
	}
	ci.SampleShading = ms.SampleShading
	ci.MinSampleShading = ms.MinSampleShading
	ci.SampleMask = ms.SampleMask
	if ci.SampleMask == 0 {
		ci.SampleMask = ^uint32(0)
	}
	ci.AlphaToCoverage = ms.AlphaToCoverage
	ci.AlphaToOne = ms.AlphaToOne

	ds := &s.depthStencil
	ci.DepthTest = ds.DepthTest
	ci.DepthWrite = ds.DepthWrite
	ci.DepthCompareOp = ds.DepthCompareOp
	ci.DepthBoundsTest = ds.DepthBoundsTest
	ci.StencilTest = ds.StencilTest
	ci.Front = driverStencil(ds.Front)
	ci.Back = driverStencil(ds.Back)

	ci.LogicOpEnable = s.colorBlend.LogicOpEnable
	ci.LogicOp = s.colorBlend.LogicOp
	ci.Attachments = make([]driver.ColorBlendAttachment, colorCount)
	for i := range ci.Attachments {
		switch n := len(s.colorBlend.Attachments); {
		case i < n:
			ci.Attachments[i] = s.colorBlend.Attachments[i]
		case n > 0:
			ci.Attachments[i] = s.colorBlend.Attachments[n-1]
		default:
			ci.Attachments[i] = DefaultColorBlendAttachment
		}
	}
	ci.DynamicStates = allDynamicStates
}
