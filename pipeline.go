package vkez

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/spirv"
)

// PipelineShaderStage selects an entry point of a shader module.
type PipelineShaderStage struct {
	Module *ShaderModule
	// EntryPoint defaults to the module's entry point.
	EntryPoint     string
	Specialization *driver.SpecializationInfo
}

type GraphicsPipelineCreateInfo struct {
	Stages []PipelineShaderStage
}

type ComputePipelineCreateInfo struct {
	Stage PipelineShaderStage
}

// Pipeline is a logical pipeline: shader stages plus the layout derived
// from their reflection. Graphics pipelines become concrete driver
// pipelines when drawn with, once the fixed-function state and render pass
// are known. Compute pipelines are concrete from the start.
type Pipeline struct {
	d         *Device
	id        uint64
	bindPoint driver.PipelineBindPoint
	stages    []driver.ShaderStageInfo
	modules   []*ShaderModule
	resources []spirv.Resource
	layout    *PipelineLayout

	vertexInputs  []spirv.Resource
	defaultVertex *VertexInputFormat
	compute       *concretePipeline

	destroyed atomic.Bool
}

// CreateGraphicsPipeline creates a logical graphics pipeline. A vertex
// stage is required and each stage may appear once.
func (d *Device) CreateGraphicsPipeline(info *GraphicsPipelineCreateInfo) (*Pipeline, error) {
	var seen driver.ShaderStage
	for _, s := range info.Stages {
		if s.Module == nil || s.Module.handle == 0 {
			return nil, errors.Wrap(ErrInvalidShaderModule, "graphics pipeline stage without a module")
		}
		st := s.Module.stage
		if st == driver.ShaderStageCompute {
			return nil, errors.Wrap(ErrValidation, "compute shader in a graphics pipeline")
		}
		if seen&st != 0 {
			return nil, errors.Wrapf(ErrValidation, "shader stage %#x given twice", st)
		}
		seen |= st
	}
	if seen&driver.ShaderStageVertex == 0 {
		return nil, errors.Wrap(ErrValidation, "graphics pipeline without a vertex stage")
	}
	p, err := d.newPipeline(driver.BindPointGraphics, info.Stages)
	if err != nil {
		return nil, err
	}
	Logger().Debug("graphics pipeline created", "id", p.id, "stages", len(p.stages), "resources", len(p.resources))
	return p, nil
}

// CreateComputePipeline creates a compute pipeline and its driver
// pipeline.
func (d *Device) CreateComputePipeline(info *ComputePipelineCreateInfo) (*Pipeline, error) {
	m := info.Stage.Module
	if m == nil || m.handle == 0 {
		return nil, errors.Wrap(ErrInvalidShaderModule, "compute pipeline without a module")
	}
	if m.stage != driver.ShaderStageCompute {
		return nil, errors.Wrapf(ErrValidation, "stage %#x shader in a compute pipeline", m.stage)
	}
	p, err := d.newPipeline(driver.BindPointCompute, []PipelineShaderStage{info.Stage})
	if err != nil {
		return nil, err
	}
	p.compute, err = d.pipelines.compute(p)
	if err != nil {
		p.Destroy()
		return nil, err
	}
	Logger().Debug("compute pipeline created", "id", p.id, "resources", len(p.resources))
	return p, nil
}

func (d *Device) newPipeline(bp driver.PipelineBindPoint, stages []PipelineShaderStage) (*Pipeline, error) {
	p := &Pipeline{d: d, bindPoint: bp}
	perStage := make([][]spirv.Resource, 0, len(stages))
	for _, s := range stages {
		m := s.Module
		resources := m.resources
		entry := m.entryPoint
		if s.EntryPoint != "" && s.EntryPoint != m.entryPoint {
			refl, err := spirv.Reflect(m.code, s.EntryPoint)
			if err != nil {
				p.release()
				return nil, err
			}
			if refl.Stage != m.stage {
				p.release()
				return nil, errors.Wrapf(ErrNoEntryPoint, "entry point %q is not a stage %#x shader", s.EntryPoint, m.stage)
			}
			resources, entry = refl.Resources, refl.EntryPoint
		}
		if !m.life.ref() {
			p.release()
			return nil, errors.Wrap(ErrInvalidShaderModule, "shader module is destroyed")
		}
		p.modules = append(p.modules, m)
		p.stages = append(p.stages, driver.ShaderStageInfo{
			Stage:          m.stage,
			Module:         m.handle,
			EntryPoint:     entry,
			Specialization: s.Specialization,
		})
		perStage = append(perStage, resources)
		if m.stage == driver.ShaderStageVertex {
			for _, r := range resources {
				if r.Kind == spirv.StageInput {
					p.vertexInputs = append(p.vertexInputs, r)
				}
			}
		}
	}
	merged, err := spirv.Merge(perStage...)
	if err != nil {
		p.release()
		return nil, err
	}
	p.resources = merged
	var sets []*SetLayout
	for _, bindings := range spirv.SetBindings(merged) {
		l, err := d.layouts.setLayout(bindings)
		if err != nil {
			p.release()
			return nil, err
		}
		sets = append(sets, l)
	}
	if p.layout, err = d.layouts.pipelineLayout(sets, spirv.PushConstantRanges(merged)); err != nil {
		p.release()
		return nil, err
	}
	if bp == driver.BindPointGraphics {
		if p.defaultVertex, err = defaultVertexFormat(p.vertexInputs); err != nil {
			p.release()
			return nil, err
		}
	}
	p.id = d.newID()
	d.register(p.id, p)
	return p, nil
}

func (p *Pipeline) BindPoint() driver.PipelineBindPoint { return p.bindPoint }

// Resources returns the merged reflection of every stage.
func (p *Pipeline) Resources() []spirv.Resource { return p.resources }

func (p *Pipeline) Layout() *PipelineLayout                        { return p.layout }
func (p *Pipeline) SetLayouts() []*SetLayout                       { return p.layout.sets }
func (p *Pipeline) PushConstantRanges() []driver.PushConstantRange { return p.layout.ranges }

// resource returns the merged descriptor resource at (set, binding).
func (p *Pipeline) resource(set, binding uint32) (spirv.Resource, bool) {
	for _, r := range p.resources {
		if r.Kind.IsDescriptor() && r.Set == set && r.Binding == binding {
			return r, true
		}
	}
	return spirv.Resource{}, false
}

// Destroy releases the pipeline's concrete driver pipelines once no
// submission uses them. Its shader modules may be destroyed afterwards.
func (p *Pipeline) Destroy() {
	if p.destroyed.Swap(true) {
		return
	}
	p.d.pipelines.evict(p.id)
	p.d.unregister(p.id)
	p.release()
}

func (p *Pipeline) release() {
	for _, m := range p.modules {
		m.life.unref(m.release)
	}
	p.modules = nil
}
