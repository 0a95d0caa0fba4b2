package vkez

import (
	"cmp"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/internal/hashkey"
	"github.com/celer/vkez/spirv"
)

// VertexInputFormat describes how vertex buffers feed the vertex shader's
// inputs. See
// https://www.khronos.org/registry/vulkan/specs/1.1-extensions/man/html/VkPipelineVertexInputStateCreateInfo.html
type VertexInputFormat struct {
	bindings   []driver.VertexBinding
	attributes []driver.VertexAttribute
}

// VertexSource is implemented by vertex types that describe their own
// layout.
type VertexSource interface {
	VertexBinding() driver.VertexBinding
	VertexAttributes() []driver.VertexAttribute
}

// CreateVertexInputFormat validates and returns a vertex input format.
// Every attribute must refer to a declared binding and locations must be
// unique.
func (d *Device) CreateVertexInputFormat(bindings []driver.VertexBinding, attributes []driver.VertexAttribute) (*VertexInputFormat, error) {
	seen := map[uint32]bool{}
	for _, b := range bindings {
		if seen[b.Binding] {
			return nil, errors.Wrapf(ErrValidation, "vertex binding %d declared twice", b.Binding)
		}
		seen[b.Binding] = true
	}
	locations := map[uint32]bool{}
	for _, a := range attributes {
		if !seen[a.Binding] {
			return nil, errors.Wrapf(ErrValidation, "vertex attribute at location %d uses undeclared binding %d", a.Location, a.Binding)
		}
		if locations[a.Location] {
			return nil, errors.Wrapf(ErrValidation, "vertex location %d declared twice", a.Location)
		}
		if a.Format.Size() == 0 {
			return nil, errors.Wrapf(ErrFormatNotSupported, "vertex attribute at location %d has format %d", a.Location, a.Format)
		}
		locations[a.Location] = true
	}
	f := &VertexInputFormat{
		bindings:   slices.Clone(bindings),
		attributes: slices.Clone(attributes),
	}
	slices.SortFunc(f.bindings, func(a, b driver.VertexBinding) int { return cmp.Compare(a.Binding, b.Binding) })
	slices.SortFunc(f.attributes, func(a, b driver.VertexAttribute) int { return cmp.Compare(a.Location, b.Location) })
	return f, nil
}

// VertexInputFormatOf builds a format with a single binding from src.
func (d *Device) VertexInputFormatOf(src VertexSource) (*VertexInputFormat, error) {
	return d.CreateVertexInputFormat([]driver.VertexBinding{src.VertexBinding()}, src.VertexAttributes())
}

func (f *VertexInputFormat) Bindings() []driver.VertexBinding     { return f.bindings }
func (f *VertexInputFormat) Attributes() []driver.VertexAttribute { return f.attributes }

func (f *VertexInputFormat) encode(b *hashkey.Builder) {
	b.Len(len(f.bindings))
	for _, v := range f.bindings {
		b.U32(v.Binding).U32(v.Stride).U32(uint32(v.Rate))
	}
	b.Len(len(f.attributes))
	for _, a := range f.attributes {
		b.U32(a.Location).U32(a.Binding).U32(uint32(a.Format)).U32(a.Offset)
	}
}

// defaultVertexFormat interleaves the vertex shader's inputs into binding
// 0 in location order, one 32-bit component per scalar. Matrix inputs take
// one location per column.
func defaultVertexFormat(inputs []spirv.Resource) (*VertexInputFormat, error) {
	inputs = slices.Clone(inputs)
	slices.SortFunc(inputs, func(a, b spirv.Resource) int { return cmp.Compare(a.Location, b.Location) })
	f := &VertexInputFormat{}
	var offset uint32
	for _, in := range inputs {
		format, ok := spirv.VertexFormat(in.BaseType, max(in.VecSize, 1))
		if !ok {
			return nil, errors.Wrapf(ErrFormatNotSupported, "no vertex format for input %q at location %d", in.Name, in.Location)
		}
		columns := max(in.Columns, 1) * max(in.ArraySize, 1)
		for c := uint32(0); c < columns; c++ {
			f.attributes = append(f.attributes, driver.VertexAttribute{
				Location: in.Location + c,
				Binding:  0,
				Format:   format,
				Offset:   offset,
			})
			offset += format.Size()
		}
	}
	if len(f.attributes) > 0 {
		f.bindings = []driver.VertexBinding{{Binding: 0, Stride: offset, Rate: driver.InputRateVertex}}
	}
	return f, nil
}
