// Package spirv reflects the resource interface of SPIR-V shader modules and
// merges the interfaces of the stages of a pipeline.
package spirv

import (
	"github.com/celer/vkez/driver"
)

type ResourceKind int

const (
	StageInput ResourceKind = iota
	StageOutput
	Sampler
	CombinedImageSampler
	SampledImage
	StorageImage
	UniformTexelBuffer
	StorageTexelBuffer
	UniformBuffer
	StorageBuffer
	InputAttachment
	PushConstantBuffer
)

var kindNames = [...]string{
	StageInput:           "stage input",
	StageOutput:          "stage output",
	Sampler:              "sampler",
	CombinedImageSampler: "combined image sampler",
	SampledImage:         "sampled image",
	StorageImage:         "storage image",
	UniformTexelBuffer:   "uniform texel buffer",
	StorageTexelBuffer:   "storage texel buffer",
	UniformBuffer:        "uniform buffer",
	StorageBuffer:        "storage buffer",
	InputAttachment:      "input attachment",
	PushConstantBuffer:   "push constant buffer",
}

func (k ResourceKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// DescriptorType returns the descriptor type backing k. ok is false for
// stage inputs, stage outputs and push constants.
func (k ResourceKind) DescriptorType() (t driver.DescriptorType, ok bool) {
	switch k {
	case Sampler:
		return driver.DescriptorSampler, true
	case CombinedImageSampler:
		return driver.DescriptorCombinedImageSampler, true
	case SampledImage:
		return driver.DescriptorSampledImage, true
	case StorageImage:
		return driver.DescriptorStorageImage, true
	case UniformTexelBuffer:
		return driver.DescriptorUniformTexelBuffer, true
	case StorageTexelBuffer:
		return driver.DescriptorStorageTexelBuffer, true
	case UniformBuffer:
		return driver.DescriptorUniformBuffer, true
	case StorageBuffer:
		return driver.DescriptorStorageBuffer, true
	case InputAttachment:
		return driver.DescriptorInputAttachment, true
	}
	return 0, false
}

// IsDescriptor reports whether k is bound through a descriptor set.
func (k ResourceKind) IsDescriptor() bool {
	_, ok := k.DescriptorType()
	return ok
}

type BaseType int

const (
	TypeUnknown BaseType = iota
	TypeBool
	TypeInt
	TypeUInt
	TypeFloat
	TypeDouble
	TypeInt64
	TypeUInt64
	TypeStruct
)

// Access is how a shader uses a resource.
type Access uint8

const (
	Read  Access = 1 << iota
	Write Access = 1 << iota
)

// Member is a member of a uniform, storage or push-constant block. Members
// of nested structs are listed in Members.
type Member struct {
	Name      string
	BaseType  BaseType
	Offset    uint32
	Size      uint32
	VecSize   uint32
	Columns   uint32
	ArraySize uint32
	Members   []Member
}

// Resource is one entry of a shader interface.
type Resource struct {
	Stages               driver.ShaderStage
	Kind                 ResourceKind
	Access               Access
	Set                  uint32
	Binding              uint32
	Location             uint32
	InputAttachmentIndex uint32
	BaseType             BaseType
	VecSize              uint32
	Columns              uint32
	// ArraySize is 1 for a scalar resource and 0 for a runtime-sized array.
	ArraySize uint32
	Offset    uint32
	Size      uint32
	Name      string
	Members   []Member
}

// Module is the reflected interface of one entry point.
type Module struct {
	Stage      driver.ShaderStage
	EntryPoint string
	Resources  []Resource
}

// PushConstantRanges returns one range per push-constant resource.
func PushConstantRanges(resources []Resource) []driver.PushConstantRange {
	var ranges []driver.PushConstantRange
	for _, r := range resources {
		if r.Kind == PushConstantBuffer {
			ranges = append(ranges, driver.PushConstantRange{Stages: r.Stages, Offset: r.Offset, Size: r.Size})
		}
	}
	return ranges
}

// VertexFormat returns the 32-bit vertex attribute format for an input with
// the given base type and vector size.
func VertexFormat(t BaseType, vecSize uint32) (driver.Format, bool) {
	var formats [4]driver.Format
	switch t {
	case TypeFloat:
		formats = [4]driver.Format{driver.FormatR32Sfloat, driver.FormatR32G32Sfloat, driver.FormatR32G32B32Sfloat, driver.FormatR32G32B32A32Sfloat}
	case TypeInt:
		formats = [4]driver.Format{driver.FormatR32Sint, driver.FormatR32G32Sint, driver.FormatR32G32B32Sint, driver.FormatR32G32B32A32Sint}
	case TypeUInt:
		formats = [4]driver.Format{driver.FormatR32Uint, driver.FormatR32G32Uint, driver.FormatR32G32B32Uint, driver.FormatR32G32B32A32Uint}
	default:
		return 0, false
	}
	if vecSize < 1 || vecSize > 4 {
		return 0, false
	}
	return formats[vecSize-1], true
}
