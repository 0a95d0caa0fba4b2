package vk

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkez/driver"
)

func (d *Device) CreateShaderModule(code []uint32) (driver.ShaderModule, error) {
	ci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}
	var m vk.ShaderModule
	if err := check(vk.CreateShaderModule(d.handle, &ci, nil, &m)); err != nil {
		return 0, errors.Wrap(err, "creating shader module")
	}
	return d.modules.put(m), nil
}

func (d *Device) DestroyShaderModule(m driver.ShaderModule) {
	if h, ok := d.modules.take(m); ok {
		vk.DestroyShaderModule(d.handle, h, nil)
	}
}

func (d *Device) CreateDescriptorSetLayout(bindings []driver.DescriptorSetLayoutBinding) (driver.DescriptorSetLayout, error) {
	bs := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		bs[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	ci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bs)),
		PBindings:    bs,
	}
	var l vk.DescriptorSetLayout
	if err := check(vk.CreateDescriptorSetLayout(d.handle, &ci, nil, &l)); err != nil {
		return 0, errors.Wrap(err, "creating descriptor set layout")
	}
	return d.setLayouts.put(l), nil
}

func (d *Device) DestroyDescriptorSetLayout(l driver.DescriptorSetLayout) {
	if h, ok := d.setLayouts.take(l); ok {
		vk.DestroyDescriptorSetLayout(d.handle, h, nil)
	}
}

func (d *Device) CreatePipelineLayout(sets []driver.DescriptorSetLayout, ranges []driver.PushConstantRange) (driver.PipelineLayout, error) {
	pcs := make([]vk.PushConstantRange, len(ranges))
	for i, r := range ranges {
		pcs[i] = vk.PushConstantRange{StageFlags: vk.ShaderStageFlags(r.Stages), Offset: r.Offset, Size: r.Size}
	}
	ci := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(sets)),
		PSetLayouts:            getAll(&d.setLayouts, sets),
		PushConstantRangeCount: uint32(len(pcs)),
		PPushConstantRanges:    pcs,
	}
	var l vk.PipelineLayout
	if err := check(vk.CreatePipelineLayout(d.handle, &ci, nil, &l)); err != nil {
		return 0, errors.Wrap(err, "creating pipeline layout")
	}
	return d.pipelineLayouts.put(l), nil
}

func (d *Device) DestroyPipelineLayout(l driver.PipelineLayout) {
	if h, ok := d.pipelineLayouts.take(l); ok {
		vk.DestroyPipelineLayout(d.handle, h, nil)
	}
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []driver.DescriptorPoolSize) (driver.DescriptorPool, error) {
	ps := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		ps[i] = vk.DescriptorPoolSize{Type: vk.DescriptorType(s.Type), DescriptorCount: s.Count}
	}
	ci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(ps)),
		PPoolSizes:    ps,
	}
	var p vk.DescriptorPool
	if err := check(vk.CreateDescriptorPool(d.handle, &ci, nil, &p)); err != nil {
		return 0, errors.Wrap(err, "creating descriptor pool")
	}
	return d.descriptorPools.put(p), nil
}

func (d *Device) DestroyDescriptorPool(p driver.DescriptorPool) {
	if h, ok := d.descriptorPools.take(p); ok {
		vk.DestroyDescriptorPool(d.handle, h, nil)
	}
}

// AllocateDescriptorSet returns ErrOutOfPoolMemory or ErrFragmentedPool
// unwrapped so the caller can move on to another pool.
func (d *Device) AllocateDescriptorSet(p driver.DescriptorPool, l driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.descriptorPools.get(p),
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{d.setLayouts.get(l)},
	}
	var s vk.DescriptorSet
	if err := check(vk.AllocateDescriptorSets(d.handle, &info, &s)); err != nil {
		return 0, err
	}
	return d.descriptorSets.put(s), nil
}

func (d *Device) UpdateDescriptorSets(writes []driver.WriteDescriptorSet) {
	if len(writes) == 0 {
		return
	}
	ws := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		vw := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          d.descriptorSets.get(w.Set),
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		switch {
		case len(w.Buffers) > 0:
			bi := make([]vk.DescriptorBufferInfo, len(w.Buffers))
			for j, b := range w.Buffers {
				bi[j] = vk.DescriptorBufferInfo{
					Buffer: d.buffers.get(b.Buffer),
					Offset: vk.DeviceSize(b.Offset),
					Range:  vk.DeviceSize(b.Range),
				}
			}
			vw.DescriptorCount, vw.PBufferInfo = uint32(len(bi)), bi
		case len(w.Images) > 0:
			ii := make([]vk.DescriptorImageInfo, len(w.Images))
			for j, img := range w.Images {
				ii[j] = vk.DescriptorImageInfo{
					Sampler:     d.samplers.get(img.Sampler),
					ImageView:   d.imageViews.get(img.View),
					ImageLayout: vk.ImageLayout(img.Layout),
				}
			}
			vw.DescriptorCount, vw.PImageInfo = uint32(len(ii)), ii
		default:
			vw.DescriptorCount = uint32(len(w.TexelBufferViews))
			vw.PTexelBufferView = getAll(&d.bufferViews, w.TexelBufferViews)
		}
		ws[i] = vw
	}
	vk.UpdateDescriptorSets(d.handle, uint32(len(ws)), ws, 0, nil)
}

func attachmentRefs(refs []driver.AttachmentReference) []vk.AttachmentReference {
	if len(refs) == 0 {
		return nil
	}
	ret := make([]vk.AttachmentReference, len(refs))
	for i, r := range refs {
		ret[i] = vk.AttachmentReference{Attachment: r.Attachment, Layout: vk.ImageLayout(r.Layout)}
	}
	return ret
}

func (d *Device) CreateRenderPass(info *driver.RenderPassCreateInfo) (driver.RenderPass, error) {
	atts := make([]vk.AttachmentDescription, len(info.Attachments))
	depth := make([]bool, len(info.Attachments))
	for i, a := range info.Attachments {
		atts[i] = vk.AttachmentDescription{
			Format:         vk.Format(a.Format),
			Samples:        vk.SampleCountFlagBits(a.Samples),
			LoadOp:         vk.AttachmentLoadOp(a.LoadOp),
			StoreOp:        vk.AttachmentStoreOp(a.StoreOp),
			StencilLoadOp:  vk.AttachmentLoadOp(a.StencilLoadOp),
			StencilStoreOp: vk.AttachmentStoreOp(a.StencilStoreOp),
			InitialLayout:  vk.ImageLayout(a.InitialLayout),
			FinalLayout:    vk.ImageLayout(a.FinalLayout),
		}
		depth[i] = a.Format.IsDepthStencil()
	}
	subs := make([]vk.SubpassDescription, len(info.Subpasses))
	for i, s := range info.Subpasses {
		sd := vk.SubpassDescription{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			InputAttachmentCount:    uint32(len(s.Input)),
			PInputAttachments:       attachmentRefs(s.Input),
			ColorAttachmentCount:    uint32(len(s.Color)),
			PColorAttachments:       attachmentRefs(s.Color),
			PResolveAttachments:     attachmentRefs(s.Resolve),
			PreserveAttachmentCount: uint32(len(s.Preserve)),
			PPreserveAttachments:    s.Preserve,
		}
		if s.DepthStencil != nil {
			sd.PDepthStencilAttachment = &vk.AttachmentReference{
				Attachment: s.DepthStencil.Attachment,
				Layout:     vk.ImageLayout(s.DepthStencil.Layout),
			}
		}
		subs[i] = sd
	}
	deps := make([]vk.SubpassDependency, len(info.Dependencies))
	for i, dep := range info.Dependencies {
		var flags vk.DependencyFlags
		if dep.ByRegion {
			flags = vk.DependencyFlags(vk.DependencyByRegionBit)
		}
		deps[i] = vk.SubpassDependency{
			SrcSubpass:      dep.SrcSubpass,
			DstSubpass:      dep.DstSubpass,
			SrcStageMask:    vk.PipelineStageFlags(dep.SrcStage),
			DstStageMask:    vk.PipelineStageFlags(dep.DstStage),
			SrcAccessMask:   vk.AccessFlags(dep.SrcAccess),
			DstAccessMask:   vk.AccessFlags(dep.DstAccess),
			DependencyFlags: flags,
		}
	}
	ci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(atts)),
		PAttachments:    atts,
		SubpassCount:    uint32(len(subs)),
		PSubpasses:      subs,
		DependencyCount: uint32(len(deps)),
		PDependencies:   deps,
	}
	var rp vk.RenderPass
	if err := check(vk.CreateRenderPass(d.handle, &ci, nil, &rp)); err != nil {
		return 0, errors.Wrap(err, "creating render pass")
	}
	return d.renderPasses.put(renderPassObject{rp: rp, depth: depth}), nil
}

func (d *Device) DestroyRenderPass(rp driver.RenderPass) {
	if o, ok := d.renderPasses.take(rp); ok {
		vk.DestroyRenderPass(d.handle, o.rp, nil)
	}
}

func (d *Device) CreateFramebuffer(info *driver.FramebufferCreateInfo) (driver.Framebuffer, error) {
	ci := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      d.renderPasses.get(info.RenderPass).rp,
		AttachmentCount: uint32(len(info.Attachments)),
		PAttachments:    getAll(&d.imageViews, info.Attachments),
		Width:           info.Width,
		Height:          info.Height,
		Layers:          info.Layers,
	}
	var fb vk.Framebuffer
	if err := check(vk.CreateFramebuffer(d.handle, &ci, nil, &fb)); err != nil {
		return 0, errors.Wrap(err, "creating framebuffer")
	}
	return d.framebuffers.put(fb), nil
}

func (d *Device) DestroyFramebuffer(fb driver.Framebuffer) {
	if h, ok := d.framebuffers.take(fb); ok {
		vk.DestroyFramebuffer(d.handle, h, nil)
	}
}

func (d *Device) CreatePipelineCache(initial []byte) (driver.PipelineCache, error) {
	ci := vk.PipelineCacheCreateInfo{
		SType:           vk.StructureTypePipelineCacheCreateInfo,
		InitialDataSize: uint(len(initial)),
		PInitialData:    ptr(initial),
	}
	var c vk.PipelineCache
	if err := check(vk.CreatePipelineCache(d.handle, &ci, nil, &c)); err != nil {
		return 0, errors.Wrap(err, "creating pipeline cache")
	}
	return d.pipelineCaches.put(c), nil
}

func (d *Device) PipelineCacheData(c driver.PipelineCache) ([]byte, error) {
	h := d.pipelineCaches.get(c)
	var n uint
	if err := check(vk.GetPipelineCacheData(d.handle, h, &n, nil)); err != nil {
		return nil, errors.Wrap(err, "sizing pipeline cache data")
	}
	data := make([]byte, n)
	if n == 0 {
		return data, nil
	}
	if err := check(vk.GetPipelineCacheData(d.handle, h, &n, unsafe.Pointer(&data[0]))); err != nil {
		return nil, errors.Wrap(err, "reading pipeline cache data")
	}
	return data[:n], nil
}

func (d *Device) DestroyPipelineCache(c driver.PipelineCache) {
	if h, ok := d.pipelineCaches.take(c); ok {
		vk.DestroyPipelineCache(d.handle, h, nil)
	}
}

func (d *Device) shaderStage(s driver.ShaderStageInfo) vk.PipelineShaderStageCreateInfo {
	ci := vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFlagBits(s.Stage),
		Module: d.modules.get(s.Module),
		PName:  safeString(s.EntryPoint),
	}
	if sp := s.Specialization; sp != nil && len(sp.Entries) > 0 {
		entries := make([]vk.SpecializationMapEntry, len(sp.Entries))
		for i, e := range sp.Entries {
			entries[i] = vk.SpecializationMapEntry{ConstantID: e.ID, Offset: e.Offset, Size: uint(e.Size)}
		}
		ci.PSpecializationInfo = []vk.SpecializationInfo{{
			MapEntryCount: uint32(len(entries)),
			PMapEntries:   entries,
			DataSize:      uint(len(sp.Data)),
			PData:         ptr(sp.Data),
		}}
	}
	return ci
}

func stencilOp(s driver.StencilOpState) vk.StencilOpState {
	return vk.StencilOpState{
		FailOp:      vk.StencilOp(s.FailOp),
		PassOp:      vk.StencilOp(s.PassOp),
		DepthFailOp: vk.StencilOp(s.DepthFailOp),
		CompareOp:   vk.CompareOp(s.CompareOp),
		CompareMask: s.CompareMask,
		WriteMask:   s.WriteMask,
		Reference:   s.Reference,
	}
}

func (d *Device) CreateGraphicsPipeline(c driver.PipelineCache, info *driver.GraphicsPipelineCreateInfo) (driver.Pipeline, error) {
	stages := make([]vk.PipelineShaderStageCreateInfo, len(info.Stages))
	for i, s := range info.Stages {
		stages[i] = d.shaderStage(s)
	}

	bindings := make([]vk.VertexInputBindingDescription, len(info.VertexBindings))
	for i, b := range info.VertexBindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: vk.VertexInputRate(b.Rate),
		}
	}
	attrs := make([]vk.VertexInputAttributeDescription, len(info.VertexAttributes))
	for i, a := range info.VertexAttributes {
		attrs[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attrs)),
		PVertexAttributeDescriptions:    attrs,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopology(info.Topology),
		PrimitiveRestartEnable: bool32(info.PrimitiveRestart),
	}
	viewport := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: max(info.ViewportCount, 1),
		ScissorCount:  max(info.ScissorCount, 1),
	}
	raster := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        bool32(info.DepthClamp),
		RasterizerDiscardEnable: bool32(info.RasterizerDiscard),
		PolygonMode:             vk.PolygonMode(info.PolygonMode),
		CullMode:                vk.CullModeFlags(info.CullMode),
		FrontFace:               vk.FrontFace(info.FrontFace),
		DepthBiasEnable:         bool32(info.DepthBiasEnable),
		LineWidth:               info.LineWidth,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples:  vk.SampleCountFlagBits(info.Samples),
		SampleShadingEnable:   bool32(info.SampleShading),
		MinSampleShading:      info.MinSampleShading,
		AlphaToCoverageEnable: bool32(info.AlphaToCoverage),
		AlphaToOneEnable:      bool32(info.AlphaToOne),
	}
	if info.SampleMask != 0 && info.SampleMask != ^uint32(0) {
		multisample.PSampleMask = []vk.SampleMask{vk.SampleMask(info.SampleMask)}
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       bool32(info.DepthTest),
		DepthWriteEnable:      bool32(info.DepthWrite),
		DepthCompareOp:        vk.CompareOp(info.DepthCompareOp),
		DepthBoundsTestEnable: bool32(info.DepthBoundsTest),
		StencilTestEnable:     bool32(info.StencilTest),
		Front:                 stencilOp(info.Front),
		Back:                  stencilOp(info.Back),
		MinDepthBounds:        0,
		MaxDepthBounds:        1,
	}
	blends := make([]vk.PipelineColorBlendAttachmentState, len(info.Attachments))
	for i, a := range info.Attachments {
		blends[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         bool32(a.BlendEnable),
			SrcColorBlendFactor: vk.BlendFactor(a.SrcColorFactor),
			DstColorBlendFactor: vk.BlendFactor(a.DstColorFactor),
			ColorBlendOp:        vk.BlendOp(a.ColorOp),
			SrcAlphaBlendFactor: vk.BlendFactor(a.SrcAlphaFactor),
			DstAlphaBlendFactor: vk.BlendFactor(a.DstAlphaFactor),
			AlphaBlendOp:        vk.BlendOp(a.AlphaOp),
			ColorWriteMask:      vk.ColorComponentFlags(a.WriteMask),
		}
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   bool32(info.LogicOpEnable),
		LogicOp:         vk.LogicOp(info.LogicOp),
		AttachmentCount: uint32(len(blends)),
		PAttachments:    blends,
		BlendConstants:  info.BlendConstants,
	}
	dynamics := make([]vk.DynamicState, len(info.DynamicStates))
	for i, s := range info.DynamicStates {
		dynamics[i] = vk.DynamicState(s)
	}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamics)),
		PDynamicStates:    dynamics,
	}

	ci := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewport,
		PRasterizationState: &raster,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamic,
		Layout:              d.pipelineLayouts.get(info.Layout),
		RenderPass:          d.renderPasses.get(info.RenderPass).rp,
		Subpass:             info.Subpass,
		BasePipelineIndex:   -1,
	}
	if info.Topology == driver.TopologyPatchList {
		ci.PTessellationState = &vk.PipelineTessellationStateCreateInfo{
			SType:              vk.StructureTypePipelineTessellationStateCreateInfo,
			PatchControlPoints: info.PatchControlPoints,
		}
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := check(vk.CreateGraphicsPipelines(d.handle, d.pipelineCaches.get(c), 1,
		[]vk.GraphicsPipelineCreateInfo{ci}, nil, pipelines)); err != nil {
		return 0, errors.Wrap(err, "creating graphics pipeline")
	}
	return d.pipelines.put(pipelines[0]), nil
}

func (d *Device) CreateComputePipeline(c driver.PipelineCache, info *driver.ComputePipelineCreateInfo) (driver.Pipeline, error) {
	ci := vk.ComputePipelineCreateInfo{
		SType:             vk.StructureTypeComputePipelineCreateInfo,
		Stage:             d.shaderStage(info.Stage),
		Layout:            d.pipelineLayouts.get(info.Layout),
		BasePipelineIndex: -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := check(vk.CreateComputePipelines(d.handle, d.pipelineCaches.get(c), 1,
		[]vk.ComputePipelineCreateInfo{ci}, nil, pipelines)); err != nil {
		return 0, errors.Wrap(err, "creating compute pipeline")
	}
	return d.pipelines.put(pipelines[0]), nil
}

func (d *Device) DestroyPipeline(p driver.Pipeline) {
	if h, ok := d.pipelines.take(p); ok {
		vk.DestroyPipeline(d.handle, h, nil)
	}
}
