package vkez

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/internal/hashkey"
	"github.com/celer/vkez/internal/intern"
)

// SetLayout is an interned descriptor-set layout. Two pipelines whose
// shaders declare the same bindings for a set share one SetLayout.
type SetLayout struct {
	handle   driver.DescriptorSetLayout
	bindings []driver.DescriptorSetLayoutBinding
}

func (l *SetLayout) Handle() driver.DescriptorSetLayout            { return l.handle }
func (l *SetLayout) Bindings() []driver.DescriptorSetLayoutBinding { return l.bindings }

// binding returns the declaration of binding b.
func (l *SetLayout) binding(b uint32) (driver.DescriptorSetLayoutBinding, bool) {
	for _, x := range l.bindings {
		if x.Binding == b {
			return x, true
		}
	}
	return driver.DescriptorSetLayoutBinding{}, false
}

// PipelineLayout is an interned pipeline layout.
type PipelineLayout struct {
	handle driver.PipelineLayout
	sets   []*SetLayout
	ranges []driver.PushConstantRange
}

func (l *PipelineLayout) Handle() driver.PipelineLayout                  { return l.handle }
func (l *PipelineLayout) SetLayouts() []*SetLayout                       { return l.sets }
func (l *PipelineLayout) PushConstantRanges() []driver.PushConstantRange { return l.ranges }

// pushStages returns the stages of every push-constant range overlapping
// [offset, offset+size).
func (l *PipelineLayout) pushStages(offset, size uint32) driver.ShaderStage {
	var s driver.ShaderStage
	for _, r := range l.ranges {
		if offset < r.Offset+r.Size && r.Offset < offset+size {
			s |= r.Stages
		}
	}
	return s
}

// layoutCache interns descriptor-set layouts on their binding tuples and
// pipeline layouts on their set layouts and push-constant ranges. Entries
// live as long as the device.
type layoutCache struct {
	d               *Device
	setLayouts      intern.Map[*SetLayout]
	pipelineLayouts intern.Map[*PipelineLayout]
}

func newLayoutCache(d *Device) *layoutCache {
	return &layoutCache{d: d}
}

func setLayoutKey(bindings []driver.DescriptorSetLayoutBinding) string {
	var b hashkey.Builder
	b.Len(len(bindings))
	for _, x := range bindings {
		b.U32(x.Binding).U32(uint32(x.Type)).U32(x.Count).U32(uint32(x.Stages))
	}
	return b.Key()
}

func (c *layoutCache) setLayout(bindings []driver.DescriptorSetLayoutBinding) (*SetLayout, error) {
	l, created, err := c.setLayouts.GetOrCreate(setLayoutKey(bindings), func() (*SetLayout, error) {
		h, err := c.d.drv.CreateDescriptorSetLayout(bindings)
		if err != nil {
			return nil, errors.Wrap(err, "creating descriptor set layout")
		}
		return &SetLayout{handle: h, bindings: bindings}, nil
	})
	if created {
		Logger().Debug("descriptor set layout created", "bindings", len(bindings))
	}
	return l, err
}

func (c *layoutCache) pipelineLayout(sets []*SetLayout, ranges []driver.PushConstantRange) (*PipelineLayout, error) {
	var b hashkey.Builder
	b.Len(len(sets))
	for _, s := range sets {
		b.U64(uint64(s.handle))
	}
	b.Len(len(ranges))
	for _, r := range ranges {
		b.U32(uint32(r.Stages)).U32(r.Offset).U32(r.Size)
	}
	l, created, err := c.pipelineLayouts.GetOrCreate(b.Key(), func() (*PipelineLayout, error) {
		hs := make([]driver.DescriptorSetLayout, len(sets))
		for i, s := range sets {
			hs[i] = s.handle
		}
		h, err := c.d.drv.CreatePipelineLayout(hs, ranges)
		if err != nil {
			return nil, errors.Wrap(err, "creating pipeline layout")
		}
		return &PipelineLayout{handle: h, sets: sets, ranges: ranges}, nil
	})
	if created {
		Logger().Debug("pipeline layout created", "sets", len(sets), "pushConstantRanges", len(ranges))
	}
	return l, err
}

func (c *layoutCache) destroy() {
	for _, l := range c.pipelineLayouts.DeleteFunc(func(*PipelineLayout) bool { return true }) {
		c.d.drv.DestroyPipelineLayout(l.handle)
	}
	for _, l := range c.setLayouts.DeleteFunc(func(*SetLayout) bool { return true }) {
		c.d.drv.DestroyDescriptorSetLayout(l.handle)
	}
}
