// Package driver defines the contract between vkez and the explicit GPU API
// beneath it. Objects are plain 64-bit handles and every call is stateless;
// all caching and state tracking happens above this package.
//
// The production implementation lives in driver/vk. The in-memory
// implementation in driver/drivertest records every call for tests.
package driver

import "time"

// Handles. The zero value of every handle is the null handle.
type (
	Buffer              uint64
	Image               uint64
	ImageView           uint64
	BufferView          uint64
	Sampler             uint64
	Memory              uint64
	ShaderModule        uint64
	DescriptorSetLayout uint64
	PipelineLayout      uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	RenderPass          uint64
	Framebuffer         uint64
	Pipeline            uint64
	PipelineCache       uint64
	CommandPool         uint64
	CommandBuffer       uint64
	Fence               uint64
	Semaphore           uint64
	Queue               uint64
	Surface             uint64
	Swapchain           uint64
)

// Device is a logical device.
type Device interface {
	Properties() *Properties

	Resources
	Pipelines
	Commands
	Sync
	Presentation

	// WaitIdle blocks until all queues are idle.
	WaitIdle() error

	// Destroy releases the device. Every object created from it must
	// have been destroyed beforehand.
	Destroy()
}

// Resources creates memory-backed objects and their views.
type Resources interface {
	CreateBuffer(info *BufferCreateInfo) (Buffer, MemoryRequirements, error)
	DestroyBuffer(b Buffer)
	CreateImage(info *ImageCreateInfo) (Image, MemoryRequirements, error)
	DestroyImage(img Image)

	AllocateMemory(size uint64, typeIndex uint32) (Memory, error)
	FreeMemory(m Memory)
	MapMemory(m Memory, offset, size uint64) ([]byte, error)
	UnmapMemory(m Memory)
	FlushMemory(ranges []MappedRange) error
	InvalidateMemory(ranges []MappedRange) error
	BindBufferMemory(b Buffer, m Memory, offset uint64) error
	BindImageMemory(img Image, m Memory, offset uint64) error

	CreateImageView(info *ImageViewCreateInfo) (ImageView, error)
	DestroyImageView(v ImageView)
	CreateBufferView(info *BufferViewCreateInfo) (BufferView, error)
	DestroyBufferView(v BufferView)
	CreateSampler(info *SamplerCreateInfo) (Sampler, error)
	DestroySampler(s Sampler)
}

// Pipelines creates shader, layout, descriptor, render pass and pipeline
// objects.
type Pipelines interface {
	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)

	CreateDescriptorSetLayout(bindings []DescriptorSetLayoutBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	CreatePipelineLayout(sets []DescriptorSetLayout, ranges []PushConstantRange) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)

	CreateDescriptorPool(maxSets uint32, sizes []DescriptorPoolSize) (DescriptorPool, error)
	DestroyDescriptorPool(p DescriptorPool)
	AllocateDescriptorSet(p DescriptorPool, l DescriptorSetLayout) (DescriptorSet, error)
	UpdateDescriptorSets(writes []WriteDescriptorSet)

	CreateRenderPass(info *RenderPassCreateInfo) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(info *FramebufferCreateInfo) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	CreatePipelineCache(initial []byte) (PipelineCache, error)
	PipelineCacheData(c PipelineCache) ([]byte, error)
	DestroyPipelineCache(c PipelineCache)
	CreateGraphicsPipeline(c PipelineCache, info *GraphicsPipelineCreateInfo) (Pipeline, error)
	CreateComputePipeline(c PipelineCache, info *ComputePipelineCreateInfo) (Pipeline, error)
	DestroyPipeline(p Pipeline)
}

// Commands allocates command buffers and records into them. Recording
// into buffers of the same pool must be externally synchronized.
type Commands interface {
	CreateCommandPool(queueFamily uint32) (CommandPool, error)
	DestroyCommandPool(p CommandPool)
	AllocateCommandBuffer(p CommandPool) (CommandBuffer, error)
	FreeCommandBuffer(p CommandPool, cb CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer, oneTimeSubmit bool) error
	EndCommandBuffer(cb CommandBuffer) error
	ResetCommandBuffer(cb CommandBuffer) error

	CmdPipelineBarrier(cb CommandBuffer, b *PipelineBarrier)
	CmdBeginRenderPass(cb CommandBuffer, info *RenderPassBeginInfo)
	CmdNextSubpass(cb CommandBuffer)
	CmdEndRenderPass(cb CommandBuffer)

	CmdBindPipeline(cb CommandBuffer, bp PipelineBindPoint, p Pipeline)
	CmdBindDescriptorSets(cb CommandBuffer, bp PipelineBindPoint, layout PipelineLayout, firstSet uint32, sets []DescriptorSet, dynamicOffsets []uint32)
	CmdBindVertexBuffers(cb CommandBuffer, firstBinding uint32, buffers []Buffer, offsets []uint64)
	CmdBindIndexBuffer(cb CommandBuffer, b Buffer, offset uint64, t IndexType)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)

	CmdSetViewport(cb CommandBuffer, first uint32, viewports []Viewport)
	CmdSetScissor(cb CommandBuffer, first uint32, scissors []Rect2D)
	CmdSetLineWidth(cb CommandBuffer, width float32)
	CmdSetDepthBias(cb CommandBuffer, constantFactor, clamp, slopeFactor float32)
	CmdSetBlendConstants(cb CommandBuffer, constants [4]float32)
	CmdSetDepthBounds(cb CommandBuffer, min, max float32)
	CmdSetStencilCompareMask(cb CommandBuffer, face StencilFace, mask uint32)
	CmdSetStencilWriteMask(cb CommandBuffer, face StencilFace, mask uint32)
	CmdSetStencilReference(cb CommandBuffer, face StencilFace, ref uint32)

	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdDrawIndirect(cb CommandBuffer, b Buffer, offset uint64, drawCount, stride uint32)
	CmdDrawIndexedIndirect(cb CommandBuffer, b Buffer, offset uint64, drawCount, stride uint32)
	CmdDispatch(cb CommandBuffer, x, y, z uint32)
	CmdDispatchIndirect(cb CommandBuffer, b Buffer, offset uint64)

	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, regions []BufferCopy)
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, layout ImageLayout, regions []BufferImageCopy)
	CmdCopyImageToBuffer(cb CommandBuffer, src Image, layout ImageLayout, dst Buffer, regions []BufferImageCopy)
	CmdCopyImage(cb CommandBuffer, src Image, srcLayout ImageLayout, dst Image, dstLayout ImageLayout, regions []ImageCopy)
	CmdBlitImage(cb CommandBuffer, src Image, srcLayout ImageLayout, dst Image, dstLayout ImageLayout, regions []ImageBlit, filter Filter)
	CmdResolveImage(cb CommandBuffer, src Image, srcLayout ImageLayout, dst Image, dstLayout ImageLayout, regions []ImageResolve)
	CmdFillBuffer(cb CommandBuffer, b Buffer, offset, size uint64, data uint32)
	CmdUpdateBuffer(cb CommandBuffer, b Buffer, offset uint64, data []byte)
	CmdClearColorImage(cb CommandBuffer, img Image, layout ImageLayout, color [4]float32, ranges []ImageSubresourceRange)
	CmdClearDepthStencilImage(cb CommandBuffer, img Image, layout ImageLayout, depth float32, stencil uint32, ranges []ImageSubresourceRange)
	CmdClearAttachments(cb CommandBuffer, attachments []ClearAttachment, rects []ClearRect)
}

// Sync covers queues, fences and semaphores.
type Sync interface {
	GetQueue(family, index uint32) Queue
	QueueSubmit(q Queue, submits []SubmitInfo, fence Fence) error
	QueueWaitIdle(q Queue) error

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	ResetFences(fences []Fence) error
	// FenceStatus returns nil if f is signaled and NotReady otherwise.
	FenceStatus(f Fence) error
	// WaitForFences returns Timeout if the wait did not complete in time.
	WaitForFences(fences []Fence, waitAll bool, timeout time.Duration) error

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)
}

// Presentation covers swapchains. A Surface is created by platform glue
// outside of the Device.
type Presentation interface {
	SurfaceCapabilities(s Surface) (*SurfaceCapabilities, error)
	CreateSwapchain(info *SwapchainCreateInfo) (Swapchain, []Image, error)
	DestroySwapchain(sc Swapchain)
	// AcquireNextImage may return Suboptimal together with a valid index,
	// or ErrOutOfDate.
	AcquireNextImage(sc Swapchain, timeout time.Duration, s Semaphore, f Fence) (uint32, error)
	QueuePresent(q Queue, info *PresentInfo) error
}
