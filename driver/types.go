package driver

type Extent2D struct{ Width, Height uint32 }

type Extent3D struct{ Width, Height, Depth uint32 }

type Offset2D struct{ X, Y int32 }

type Offset3D struct{ X, Y, Z int32 }

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}

type MemoryRequirements struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

type MemoryType struct {
	Flags     MemoryProperty
	HeapIndex uint32
}

type MemoryHeap struct {
	Size        uint64
	DeviceLocal bool
}

type QueueFamily struct {
	Flags              QueueFlags
	Count              uint32
	TimestampValidBits uint32
	Present            bool
}

type Limits struct {
	BufferImageGranularity          uint64
	NonCoherentAtomSize             uint64
	MinUniformBufferOffsetAlignment uint64
	MinStorageBufferOffsetAlignment uint64
	MinTexelBufferOffsetAlignment   uint64
	MaxPushConstantsSize            uint32
	MaxBoundDescriptorSets          uint32
	MaxColorAttachments             uint32
	MaxMemoryAllocationCount        uint32
	MaxViewports                    uint32
	MaxFramebufferWidth             uint32
	MaxFramebufferHeight            uint32
	MaxImageDimension2D             uint32
	TimestampPeriod                 float32
}

type Features struct {
	SamplerAnisotropy  bool
	WideLines          bool
	DepthBounds        bool
	DepthClamp         bool
	FillModeNonSolid   bool
	MultiViewport      bool
	IndependentBlend   bool
	SampleRateShading  bool
	GeometryShader     bool
	TessellationShader bool
	LogicOp            bool
	MultiDrawIndirect  bool
}

// Properties describes the physical device a Device was created from.
type Properties struct {
	DeviceName        string
	DeviceType        DeviceType
	VendorID          uint32
	DeviceID          uint32
	DriverVersion     uint32
	APIVersion        uint32
	PipelineCacheUUID [16]byte
	Limits            Limits
	Features          Features
	MemoryTypes       []MemoryType
	MemoryHeaps       []MemoryHeap
	QueueFamilies     []QueueFamily
}

type BufferCreateInfo struct {
	Size               uint64
	Usage              BufferUsage
	SharingMode        SharingMode
	QueueFamilyIndices []uint32
}

type ImageCreateInfo struct {
	Type               ImageType
	Format             Format
	Extent             Extent3D
	MipLevels          uint32
	ArrayLayers        uint32
	Samples            SampleCount
	Tiling             ImageTiling
	Usage              ImageUsage
	SharingMode        SharingMode
	QueueFamilyIndices []uint32
	CubeCompatible     bool
}

type ImageSubresourceRange struct {
	Aspect         ImageAspect
	BaseMipLevel   uint32
	LevelCount     uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

type ImageSubresourceLayers struct {
	Aspect         ImageAspect
	MipLevel       uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

type ComponentMapping struct {
	R, G, B, A ComponentSwizzle
}

type ImageViewCreateInfo struct {
	Image       Image
	ViewType    ImageViewType
	Format      Format
	Components  ComponentMapping
	Subresource ImageSubresourceRange
}

type BufferViewCreateInfo struct {
	Buffer Buffer
	Format Format
	Offset uint64
	Range  uint64
}

type SamplerCreateInfo struct {
	MagFilter               Filter
	MinFilter               Filter
	MipmapMode              SamplerMipmapMode
	AddressModeU            SamplerAddressMode
	AddressModeV            SamplerAddressMode
	AddressModeW            SamplerAddressMode
	MipLodBias              float32
	AnisotropyEnable        bool
	MaxAnisotropy           float32
	CompareEnable           bool
	CompareOp               CompareOp
	MinLod                  float32
	MaxLod                  float32
	BorderColor             BorderColor
	UnnormalizedCoordinates bool
}

type DescriptorSetLayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorBufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

type DescriptorImageInfo struct {
	Sampler Sampler
	View    ImageView
	Layout  ImageLayout
}

// WriteDescriptorSet updates Count consecutive array elements of one binding.
// Exactly one of Buffers, Images, or TexelBufferViews is used, depending on
// Type.
type WriteDescriptorSet struct {
	Set              DescriptorSet
	Binding          uint32
	ArrayElement     uint32
	Type             DescriptorType
	Buffers          []DescriptorBufferInfo
	Images           []DescriptorImageInfo
	TexelBufferViews []BufferView
}

type AttachmentDescription struct {
	Format         Format
	Samples        SampleCount
	LoadOp         LoadOp
	StoreOp        StoreOp
	StencilLoadOp  LoadOp
	StencilStoreOp StoreOp
	InitialLayout  ImageLayout
	FinalLayout    ImageLayout
}

type AttachmentReference struct {
	Attachment uint32
	Layout     ImageLayout
}

type SubpassDescription struct {
	Input        []AttachmentReference
	Color        []AttachmentReference
	Resolve      []AttachmentReference
	DepthStencil *AttachmentReference
	Preserve     []uint32
}

type SubpassDependency struct {
	SrcSubpass uint32
	DstSubpass uint32
	SrcStage   PipelineStage
	DstStage   PipelineStage
	SrcAccess  Access
	DstAccess  Access
	ByRegion   bool
}

type RenderPassCreateInfo struct {
	Attachments  []AttachmentDescription
	Subpasses    []SubpassDescription
	Dependencies []SubpassDependency
}

type FramebufferCreateInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Width       uint32
	Height      uint32
	Layers      uint32
}

type SpecializationEntry struct {
	ID     uint32
	Offset uint32
	Size   uint64
}

type SpecializationInfo struct {
	Entries []SpecializationEntry
	Data    []byte
}

type ShaderStageInfo struct {
	Stage          ShaderStage
	Module         ShaderModule
	EntryPoint     string
	Specialization *SpecializationInfo
}

type VertexBinding struct {
	Binding uint32
	Stride  uint32
	Rate    VertexInputRate
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type StencilOpState struct {
	FailOp      StencilOp
	PassOp      StencilOp
	DepthFailOp StencilOp
	CompareOp   CompareOp
	CompareMask uint32
	WriteMask   uint32
	Reference   uint32
}

type ColorBlendAttachment struct {
	BlendEnable    bool
	SrcColorFactor BlendFactor
	DstColorFactor BlendFactor
	ColorOp        BlendOp
	SrcAlphaFactor BlendFactor
	DstAlphaFactor BlendFactor
	AlphaOp        BlendOp
	WriteMask      ColorComponent
}

type GraphicsPipelineCreateInfo struct {
	Stages           []ShaderStageInfo
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute

	Topology           PrimitiveTopology
	PrimitiveRestart   bool
	PatchControlPoints uint32

	ViewportCount uint32
	ScissorCount  uint32

	DepthClamp        bool
	RasterizerDiscard bool
	PolygonMode       PolygonMode
	CullMode          CullMode
	FrontFace         FrontFace
	DepthBiasEnable   bool
	LineWidth         float32

	Samples          SampleCount
	SampleShading    bool
	MinSampleShading float32
	SampleMask       uint32
	AlphaToCoverage  bool
	AlphaToOne       bool

	DepthTest       bool
	DepthWrite      bool
	DepthCompareOp  CompareOp
	DepthBoundsTest bool
	StencilTest     bool
	Front           StencilOpState
	Back            StencilOpState

	LogicOpEnable  bool
	LogicOp        LogicOp
	Attachments    []ColorBlendAttachment
	BlendConstants [4]float32

	DynamicStates []DynamicState

	Layout     PipelineLayout
	RenderPass RenderPass
	Subpass    uint32
}

type ComputePipelineCreateInfo struct {
	Stage  ShaderStageInfo
	Layout PipelineLayout
}

type MemoryBarrier struct {
	SrcAccess Access
	DstAccess Access
}

type BufferBarrier struct {
	SrcAccess      Access
	DstAccess      Access
	SrcQueueFamily uint32
	DstQueueFamily uint32
	Buffer         Buffer
	Offset         uint64
	Size           uint64
}

type ImageBarrier struct {
	SrcAccess      Access
	DstAccess      Access
	OldLayout      ImageLayout
	NewLayout      ImageLayout
	SrcQueueFamily uint32
	DstQueueFamily uint32
	Image          Image
	Range          ImageSubresourceRange
}

// PipelineBarrier is one barrier command with all of its memory, buffer and
// image barriers.
type PipelineBarrier struct {
	SrcStage PipelineStage
	DstStage PipelineStage
	ByRegion bool
	Memory   []MemoryBarrier
	Buffers  []BufferBarrier
	Images   []ImageBarrier
}

// ClearValue holds a color or a depth/stencil clear value; which one applies
// depends on the attachment format.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

type RenderPassBeginInfo struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Area        Rect2D
	ClearValues []ClearValue
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferImageCopy struct {
	BufferOffset      uint64
	BufferRowLength   uint32
	BufferImageHeight uint32
	Subresource       ImageSubresourceLayers
	Offset            Offset3D
	Extent            Extent3D
}

type ImageCopy struct {
	SrcSubresource ImageSubresourceLayers
	SrcOffset      Offset3D
	DstSubresource ImageSubresourceLayers
	DstOffset      Offset3D
	Extent         Extent3D
}

type ImageBlit struct {
	SrcSubresource ImageSubresourceLayers
	SrcOffsets     [2]Offset3D
	DstSubresource ImageSubresourceLayers
	DstOffsets     [2]Offset3D
}

type ImageResolve = ImageCopy

type ClearAttachment struct {
	Aspect          ImageAspect
	ColorAttachment uint32
	Value           ClearValue
}

type ClearRect struct {
	Rect           Rect2D
	BaseArrayLayer uint32
	LayerCount     uint32
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type SurfaceCapabilities struct {
	MinImageCount  uint32
	MaxImageCount  uint32
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
	Formats        []SurfaceFormat
	PresentModes   []PresentMode
}

type SwapchainCreateInfo struct {
	Surface       Surface
	MinImageCount uint32
	Format        Format
	ColorSpace    ColorSpace
	Extent        Extent2D
	Usage         ImageUsage
	PresentMode   PresentMode
	OldSwapchain  Swapchain
}

type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchains     []Swapchain
	ImageIndices   []uint32
}

type MappedRange struct {
	Memory Memory
	Offset uint64
	Size   uint64
}
