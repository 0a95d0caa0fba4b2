package driver

// The enumerations below carry the numeric values of the Vulkan API so that
// a backend converts them with a plain type conversion.

type Format uint32

const (
	FormatUndefined              Format = 0
	FormatR8Unorm                Format = 9
	FormatR8G8Unorm              Format = 16
	FormatR8G8B8A8Unorm          Format = 37
	FormatR8G8B8A8Snorm          Format = 38
	FormatR8G8B8A8Uint           Format = 41
	FormatR8G8B8A8Srgb           Format = 43
	FormatB8G8R8A8Unorm          Format = 44
	FormatB8G8R8A8Srgb           Format = 50
	FormatA2B10G10R10UnormPack32 Format = 64
	FormatR16Sfloat              Format = 76
	FormatR16G16Sfloat           Format = 83
	FormatR16G16B16A16Unorm      Format = 91
	FormatR16G16B16A16Sfloat     Format = 97
	FormatR32Uint                Format = 98
	FormatR32Sint                Format = 99
	FormatR32Sfloat              Format = 100
	FormatR32G32Uint             Format = 101
	FormatR32G32Sint             Format = 102
	FormatR32G32Sfloat           Format = 103
	FormatR32G32B32Uint          Format = 104
	FormatR32G32B32Sint          Format = 105
	FormatR32G32B32Sfloat        Format = 106
	FormatR32G32B32A32Uint       Format = 107
	FormatR32G32B32A32Sint       Format = 108
	FormatR32G32B32A32Sfloat     Format = 109
	FormatD16Unorm               Format = 124
	FormatD32Sfloat              Format = 126
	FormatS8Uint                 Format = 127
	FormatD24UnormS8Uint         Format = 129
	FormatD32SfloatS8Uint        Format = 130
)

// IsDepth reports whether f has a depth component.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD16Unorm, FormatD32Sfloat, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// HasStencil reports whether f has a stencil component.
func (f Format) HasStencil() bool {
	switch f {
	case FormatS8Uint, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// IsDepthStencil reports whether f is usable as a depth/stencil attachment.
func (f Format) IsDepthStencil() bool { return f.IsDepth() || f.HasStencil() }

// Aspect returns the aspects present in f.
func (f Format) Aspect() ImageAspect {
	var a ImageAspect
	if f.IsDepth() {
		a |= AspectDepth
	}
	if f.HasStencil() {
		a |= AspectStencil
	}
	if a == 0 {
		a = AspectColor
	}
	return a
}

// Size returns the size in bytes of one texel of f, or 0 if unknown.
func (f Format) Size() uint32 {
	switch f {
	case FormatR8Unorm, FormatS8Uint:
		return 1
	case FormatR8G8Unorm, FormatR16Sfloat, FormatD16Unorm:
		return 2
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Snorm, FormatR8G8B8A8Uint, FormatR8G8B8A8Srgb,
		FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb, FormatA2B10G10R10UnormPack32,
		FormatR16G16Sfloat, FormatR32Uint, FormatR32Sint, FormatR32Sfloat,
		FormatD32Sfloat, FormatD24UnormS8Uint:
		return 4
	case FormatD32SfloatS8Uint:
		return 5
	case FormatR16G16B16A16Unorm, FormatR16G16B16A16Sfloat, FormatR32G32Uint, FormatR32G32Sint, FormatR32G32Sfloat:
		return 8
	case FormatR32G32B32Uint, FormatR32G32B32Sint, FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Uint, FormatR32G32B32A32Sint, FormatR32G32B32A32Sfloat:
		return 16
	}
	return 0
}

type ImageLayout uint32

const (
	LayoutUndefined                     ImageLayout = 0
	LayoutGeneral                       ImageLayout = 1
	LayoutColorAttachmentOptimal        ImageLayout = 2
	LayoutDepthStencilAttachmentOptimal ImageLayout = 3
	LayoutDepthStencilReadOnlyOptimal   ImageLayout = 4
	LayoutShaderReadOnlyOptimal         ImageLayout = 5
	LayoutTransferSrcOptimal            ImageLayout = 6
	LayoutTransferDstOptimal            ImageLayout = 7
	LayoutPreinitialized                ImageLayout = 8
	LayoutPresentSrc                    ImageLayout = 1000001002
)

type PipelineStage uint32

const (
	StageTopOfPipe             PipelineStage = 0x1
	StageDrawIndirect          PipelineStage = 0x2
	StageVertexInput           PipelineStage = 0x4
	StageVertexShader          PipelineStage = 0x8
	StageTessControlShader     PipelineStage = 0x10
	StageTessEvalShader        PipelineStage = 0x20
	StageGeometryShader        PipelineStage = 0x40
	StageFragmentShader        PipelineStage = 0x80
	StageEarlyFragmentTests    PipelineStage = 0x100
	StageLateFragmentTests     PipelineStage = 0x200
	StageColorAttachmentOutput PipelineStage = 0x400
	StageComputeShader         PipelineStage = 0x800
	StageTransfer              PipelineStage = 0x1000
	StageBottomOfPipe          PipelineStage = 0x2000
	StageHost                  PipelineStage = 0x4000
	StageAllGraphics           PipelineStage = 0x8000
	StageAllCommands           PipelineStage = 0x10000
)

type Access uint32

const (
	AccessIndirectCommandRead         Access = 0x1
	AccessIndexRead                   Access = 0x2
	AccessVertexAttributeRead         Access = 0x4
	AccessUniformRead                 Access = 0x8
	AccessInputAttachmentRead         Access = 0x10
	AccessShaderRead                  Access = 0x20
	AccessShaderWrite                 Access = 0x40
	AccessColorAttachmentRead         Access = 0x80
	AccessColorAttachmentWrite        Access = 0x100
	AccessDepthStencilAttachmentRead  Access = 0x200
	AccessDepthStencilAttachmentWrite Access = 0x400
	AccessTransferRead                Access = 0x800
	AccessTransferWrite               Access = 0x1000
	AccessHostRead                    Access = 0x2000
	AccessHostWrite                   Access = 0x4000
	AccessMemoryRead                  Access = 0x8000
	AccessMemoryWrite                 Access = 0x10000

	AccessWriteMask = AccessShaderWrite | AccessColorAttachmentWrite | AccessDepthStencilAttachmentWrite |
		AccessTransferWrite | AccessHostWrite | AccessMemoryWrite
)

// HasWrite reports whether a contains any write access.
func (a Access) HasWrite() bool { return a&AccessWriteMask != 0 }

type DescriptorType uint32

const (
	DescriptorSampler              DescriptorType = 0
	DescriptorCombinedImageSampler DescriptorType = 1
	DescriptorSampledImage         DescriptorType = 2
	DescriptorStorageImage         DescriptorType = 3
	DescriptorUniformTexelBuffer   DescriptorType = 4
	DescriptorStorageTexelBuffer   DescriptorType = 5
	DescriptorUniformBuffer        DescriptorType = 6
	DescriptorStorageBuffer        DescriptorType = 7
	DescriptorUniformBufferDynamic DescriptorType = 8
	DescriptorStorageBufferDynamic DescriptorType = 9
	DescriptorInputAttachment      DescriptorType = 10
)

type ShaderStage uint32

const (
	ShaderStageVertex      ShaderStage = 0x1
	ShaderStageTessControl ShaderStage = 0x2
	ShaderStageTessEval    ShaderStage = 0x4
	ShaderStageGeometry    ShaderStage = 0x8
	ShaderStageFragment    ShaderStage = 0x10
	ShaderStageCompute     ShaderStage = 0x20
	ShaderStageAllGraphics ShaderStage = 0x1f
	ShaderStageAll         ShaderStage = 0x7fffffff
)

// PipelineStages returns the pipeline stages in which shaders of s execute.
func (s ShaderStage) PipelineStages() PipelineStage {
	var p PipelineStage
	if s&ShaderStageVertex != 0 {
		p |= StageVertexShader
	}
	if s&ShaderStageTessControl != 0 {
		p |= StageTessControlShader
	}
	if s&ShaderStageTessEval != 0 {
		p |= StageTessEvalShader
	}
	if s&ShaderStageGeometry != 0 {
		p |= StageGeometryShader
	}
	if s&ShaderStageFragment != 0 {
		p |= StageFragmentShader
	}
	if s&ShaderStageCompute != 0 {
		p |= StageComputeShader
	}
	return p
}

type BufferUsage uint32

const (
	BufferUsageTransferSrc  BufferUsage = 0x1
	BufferUsageTransferDst  BufferUsage = 0x2
	BufferUsageUniformTexel BufferUsage = 0x4
	BufferUsageStorageTexel BufferUsage = 0x8
	BufferUsageUniform      BufferUsage = 0x10
	BufferUsageStorage      BufferUsage = 0x20
	BufferUsageIndex        BufferUsage = 0x40
	BufferUsageVertex       BufferUsage = 0x80
	BufferUsageIndirect     BufferUsage = 0x100
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc            ImageUsage = 0x1
	ImageUsageTransferDst            ImageUsage = 0x2
	ImageUsageSampled                ImageUsage = 0x4
	ImageUsageStorage                ImageUsage = 0x8
	ImageUsageColorAttachment        ImageUsage = 0x10
	ImageUsageDepthStencilAttachment ImageUsage = 0x20
	ImageUsageTransientAttachment    ImageUsage = 0x40
	ImageUsageInputAttachment        ImageUsage = 0x80
)

type MemoryProperty uint32

const (
	MemoryDeviceLocal     MemoryProperty = 0x1
	MemoryHostVisible     MemoryProperty = 0x2
	MemoryHostCoherent    MemoryProperty = 0x4
	MemoryHostCached      MemoryProperty = 0x8
	MemoryLazilyAllocated MemoryProperty = 0x10
)

type SampleCount uint32

const (
	Samples1  SampleCount = 0x1
	Samples2  SampleCount = 0x2
	Samples4  SampleCount = 0x4
	Samples8  SampleCount = 0x8
	Samples16 SampleCount = 0x10
	Samples32 SampleCount = 0x20
	Samples64 SampleCount = 0x40
)

type LoadOp uint32

const (
	LoadOpLoad     LoadOp = 0
	LoadOpClear    LoadOp = 1
	LoadOpDontCare LoadOp = 2
)

type StoreOp uint32

const (
	StoreOpStore    StoreOp = 0
	StoreOpDontCare StoreOp = 1
)

type PrimitiveTopology uint32

const (
	TopologyPointList                  PrimitiveTopology = 0
	TopologyLineList                   PrimitiveTopology = 1
	TopologyLineStrip                  PrimitiveTopology = 2
	TopologyTriangleList               PrimitiveTopology = 3
	TopologyTriangleStrip              PrimitiveTopology = 4
	TopologyTriangleFan                PrimitiveTopology = 5
	TopologyLineListWithAdjacency      PrimitiveTopology = 6
	TopologyLineStripWithAdjacency     PrimitiveTopology = 7
	TopologyTriangleListWithAdjacency  PrimitiveTopology = 8
	TopologyTriangleStripWithAdjacency PrimitiveTopology = 9
	TopologyPatchList                  PrimitiveTopology = 10
)

type PolygonMode uint32

const (
	PolygonModeFill  PolygonMode = 0
	PolygonModeLine  PolygonMode = 1
	PolygonModePoint PolygonMode = 2
)

type CullMode uint32

const (
	CullModeNone         CullMode = 0
	CullModeFront        CullMode = 1
	CullModeBack         CullMode = 2
	CullModeFrontAndBack CullMode = 3
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = 0
	FrontFaceClockwise        FrontFace = 1
)

type CompareOp uint32

const (
	CompareOpNever          CompareOp = 0
	CompareOpLess           CompareOp = 1
	CompareOpEqual          CompareOp = 2
	CompareOpLessOrEqual    CompareOp = 3
	CompareOpGreater        CompareOp = 4
	CompareOpNotEqual       CompareOp = 5
	CompareOpGreaterOrEqual CompareOp = 6
	CompareOpAlways         CompareOp = 7
)

type StencilOp uint32

const (
	StencilOpKeep              StencilOp = 0
	StencilOpZero              StencilOp = 1
	StencilOpReplace           StencilOp = 2
	StencilOpIncrementAndClamp StencilOp = 3
	StencilOpDecrementAndClamp StencilOp = 4
	StencilOpInvert            StencilOp = 5
	StencilOpIncrementAndWrap  StencilOp = 6
	StencilOpDecrementAndWrap  StencilOp = 7
)

type StencilFace uint32

const (
	StencilFaceFront        StencilFace = 1
	StencilFaceBack         StencilFace = 2
	StencilFaceFrontAndBack StencilFace = 3
)

type BlendFactor uint32

const (
	BlendFactorZero                  BlendFactor = 0
	BlendFactorOne                   BlendFactor = 1
	BlendFactorSrcColor              BlendFactor = 2
	BlendFactorOneMinusSrcColor      BlendFactor = 3
	BlendFactorDstColor              BlendFactor = 4
	BlendFactorOneMinusDstColor      BlendFactor = 5
	BlendFactorSrcAlpha              BlendFactor = 6
	BlendFactorOneMinusSrcAlpha      BlendFactor = 7
	BlendFactorDstAlpha              BlendFactor = 8
	BlendFactorOneMinusDstAlpha      BlendFactor = 9
	BlendFactorConstantColor         BlendFactor = 10
	BlendFactorOneMinusConstantColor BlendFactor = 11
	BlendFactorConstantAlpha         BlendFactor = 12
	BlendFactorOneMinusConstantAlpha BlendFactor = 13
	BlendFactorSrcAlphaSaturate      BlendFactor = 14
)

type BlendOp uint32

const (
	BlendOpAdd             BlendOp = 0
	BlendOpSubtract        BlendOp = 1
	BlendOpReverseSubtract BlendOp = 2
	BlendOpMin             BlendOp = 3
	BlendOpMax             BlendOp = 4
)

type LogicOp uint32

const (
	LogicOpClear        LogicOp = 0
	LogicOpAnd          LogicOp = 1
	LogicOpAndReverse   LogicOp = 2
	LogicOpCopy         LogicOp = 3
	LogicOpAndInverted  LogicOp = 4
	LogicOpNoOp         LogicOp = 5
	LogicOpXor          LogicOp = 6
	LogicOpOr           LogicOp = 7
	LogicOpNor          LogicOp = 8
	LogicOpEquivalent   LogicOp = 9
	LogicOpInvert       LogicOp = 10
	LogicOpOrReverse    LogicOp = 11
	LogicOpCopyInverted LogicOp = 12
	LogicOpOrInverted   LogicOp = 13
	LogicOpNand         LogicOp = 14
	LogicOpSet          LogicOp = 15
)

type ColorComponent uint32

const (
	ColorComponentR   ColorComponent = 0x1
	ColorComponentG   ColorComponent = 0x2
	ColorComponentB   ColorComponent = 0x4
	ColorComponentA   ColorComponent = 0x8
	ColorComponentAll                = ColorComponentR | ColorComponentG | ColorComponentB | ColorComponentA
)

type VertexInputRate uint32

const (
	InputRateVertex   VertexInputRate = 0
	InputRateInstance VertexInputRate = 1
)

type IndexType uint32

const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
)

type Filter uint32

const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

type SamplerMipmapMode uint32

const (
	MipmapModeNearest SamplerMipmapMode = 0
	MipmapModeLinear  SamplerMipmapMode = 1
)

type SamplerAddressMode uint32

const (
	AddressModeRepeat            SamplerAddressMode = 0
	AddressModeMirroredRepeat    SamplerAddressMode = 1
	AddressModeClampToEdge       SamplerAddressMode = 2
	AddressModeClampToBorder     SamplerAddressMode = 3
	AddressModeMirrorClampToEdge SamplerAddressMode = 4
)

type BorderColor uint32

const (
	BorderColorFloatTransparentBlack BorderColor = 0
	BorderColorIntTransparentBlack   BorderColor = 1
	BorderColorFloatOpaqueBlack      BorderColor = 2
	BorderColorIntOpaqueBlack        BorderColor = 3
	BorderColorFloatOpaqueWhite      BorderColor = 4
	BorderColorIntOpaqueWhite        BorderColor = 5
)

type ImageType uint32

const (
	ImageType1D ImageType = 0
	ImageType2D ImageType = 1
	ImageType3D ImageType = 2
)

type ImageViewType uint32

const (
	ImageViewType1D        ImageViewType = 0
	ImageViewType2D        ImageViewType = 1
	ImageViewType3D        ImageViewType = 2
	ImageViewTypeCube      ImageViewType = 3
	ImageViewType1DArray   ImageViewType = 4
	ImageViewType2DArray   ImageViewType = 5
	ImageViewTypeCubeArray ImageViewType = 6
)

type ImageTiling uint32

const (
	TilingOptimal ImageTiling = 0
	TilingLinear  ImageTiling = 1
)

type ImageAspect uint32

const (
	AspectColor   ImageAspect = 0x1
	AspectDepth   ImageAspect = 0x2
	AspectStencil ImageAspect = 0x4
)

type ComponentSwizzle uint32

const (
	SwizzleIdentity ComponentSwizzle = 0
	SwizzleZero     ComponentSwizzle = 1
	SwizzleOne      ComponentSwizzle = 2
	SwizzleR        ComponentSwizzle = 3
	SwizzleG        ComponentSwizzle = 4
	SwizzleB        ComponentSwizzle = 5
	SwizzleA        ComponentSwizzle = 6
)

type PipelineBindPoint uint32

const (
	BindPointGraphics PipelineBindPoint = 0
	BindPointCompute  PipelineBindPoint = 1
)

type DynamicState uint32

const (
	DynamicViewport           DynamicState = 0
	DynamicScissor            DynamicState = 1
	DynamicLineWidth          DynamicState = 2
	DynamicDepthBias          DynamicState = 3
	DynamicBlendConstants     DynamicState = 4
	DynamicDepthBounds        DynamicState = 5
	DynamicStencilCompareMask DynamicState = 6
	DynamicStencilWriteMask   DynamicState = 7
	DynamicStencilReference   DynamicState = 8
)

type PresentMode uint32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

type ColorSpace uint32

const ColorSpaceSrgbNonlinear ColorSpace = 0

type QueueFlags uint32

const (
	QueueGraphics      QueueFlags = 0x1
	QueueCompute       QueueFlags = 0x2
	QueueTransfer      QueueFlags = 0x4
	QueueSparseBinding QueueFlags = 0x8
)

type SharingMode uint32

const (
	SharingExclusive  SharingMode = 0
	SharingConcurrent SharingMode = 1
)

type DeviceType uint32

const (
	DeviceTypeOther         DeviceType = 0
	DeviceTypeIntegratedGPU DeviceType = 1
	DeviceTypeDiscreteGPU   DeviceType = 2
	DeviceTypeVirtualGPU    DeviceType = 3
	DeviceTypeCPU           DeviceType = 4
)

const (
	SubpassExternal    = ^uint32(0)
	QueueFamilyIgnored = ^uint32(0)
	RemainingMipLevels = ^uint32(0)
	WholeSize          = ^uint64(0)
)
