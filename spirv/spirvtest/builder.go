// Package spirvtest assembles small SPIR-V modules with a chosen resource
// interface. The modules have an empty entry point and are only meant to be
// reflected or handed to a fake driver.
package spirvtest

import (
	"github.com/celer/vkez/driver"
)

const (
	opCapability     = 17
	opMemoryModel    = 14
	opEntryPoint     = 15
	opExecutionMode  = 16
	opName           = 5
	opMemberName     = 6
	opDecorate       = 71
	opMemberDecorate = 72
	opTypeVoid       = 19
	opTypeBool       = 20
	opTypeInt        = 21
	opTypeFloat      = 22
	opTypeVector     = 23
	opTypeMatrix     = 24
	opTypeImage      = 25
	opTypeSampler    = 26
	opTypeSampledImg = 27
	opTypeArray      = 28
	opTypeRuntimeArr = 29
	opTypeStruct     = 30
	opTypePointer    = 32
	opTypeFunction   = 33
	opConstant       = 43
	opFunction       = 54
	opFunctionEnd    = 56
	opVariable       = 59
	opLabel          = 248
	opReturn         = 253
)

// Decorations used by the builder.
const (
	DecBlock                = 2
	DecBufferBlock          = 3
	DecArrayStride          = 6
	DecMatrixStride         = 7
	DecBuiltIn              = 11
	DecNonWritable          = 24
	DecNonReadable          = 25
	DecLocation             = 30
	DecBinding              = 33
	DecDescriptorSet        = 34
	DecOffset               = 35
	DecInputAttachmentIndex = 43
)

// Storage classes used by the builder.
const (
	UniformConstant = 0
	Input           = 1
	Uniform         = 2
	Output          = 3
	PushConstant    = 9
	StorageBuffer   = 12
)

// Image dimensions.
const (
	Dim2D          = 1
	DimBuffer      = 5
	DimSubpassData = 6
)

// Field is a struct member.
type Field struct {
	Name         string
	Type         uint32
	Offset       uint32
	MatrixStride uint32
	NonReadable  bool
	NonWritable  bool
	BuiltIn      bool
}

// Builder assembles a module with one entry point.
type Builder struct {
	model      uint32
	entry      string
	next       uint32
	fn         uint32
	iface      []uint32
	names      []uint32
	decorates  []uint32
	types      []uint32
	intType    uint32
	constCache map[uint32]uint32
}

func executionModel(stage driver.ShaderStage) uint32 {
	switch stage {
	case driver.ShaderStageVertex:
		return 0
	case driver.ShaderStageTessControl:
		return 1
	case driver.ShaderStageTessEval:
		return 2
	case driver.ShaderStageGeometry:
		return 3
	case driver.ShaderStageFragment:
		return 4
	}
	return 5
}

// New starts a module whose entry point entry runs in stage.
func New(stage driver.ShaderStage, entry string) *Builder {
	b := &Builder{model: executionModel(stage), entry: entry, next: 1, constCache: map[uint32]uint32{}}
	b.fn = b.id()
	return b
}

func (b *Builder) id() uint32 {
	id := b.next
	b.next++
	return id
}

func inst(op uint32, operands ...uint32) []uint32 {
	return append([]uint32{uint32(len(operands)+1)<<16 | op}, operands...)
}

func encodeString(s string) []uint32 {
	bs := append([]byte(s), 0)
	for len(bs)%4 != 0 {
		bs = append(bs, 0)
	}
	words := make([]uint32, len(bs)/4)
	for i := range words {
		words[i] = uint32(bs[4*i]) | uint32(bs[4*i+1])<<8 | uint32(bs[4*i+2])<<16 | uint32(bs[4*i+3])<<24
	}
	return words
}

func (b *Builder) typ(op uint32, operands ...uint32) uint32 {
	id := b.id()
	b.types = append(b.types, inst(op, append([]uint32{id}, operands...)...)...)
	return id
}

// Name attaches a debug name to id.
func (b *Builder) Name(id uint32, name string) {
	if name == "" {
		return
	}
	b.names = append(b.names, inst(opName, append([]uint32{id}, encodeString(name)...)...)...)
}

// Decorate decorates id.
func (b *Builder) Decorate(id, decoration uint32, literals ...uint32) {
	b.decorates = append(b.decorates, inst(opDecorate, append([]uint32{id, decoration}, literals...)...)...)
}

func (b *Builder) memberDecorate(id, member, decoration uint32, literals ...uint32) {
	b.decorates = append(b.decorates, inst(opMemberDecorate, append([]uint32{id, member, decoration}, literals...)...)...)
}

func (b *Builder) Bool() uint32              { return b.typ(opTypeBool) }
func (b *Builder) Float(width uint32) uint32 { return b.typ(opTypeFloat, width) }

func (b *Builder) Int(width uint32, signed bool) uint32 {
	s := uint32(0)
	if signed {
		s = 1
	}
	return b.typ(opTypeInt, width, s)
}

func (b *Builder) Vector(component, n uint32) uint32 { return b.typ(opTypeVector, component, n) }
func (b *Builder) Matrix(column, n uint32) uint32    { return b.typ(opTypeMatrix, column, n) }

// Const returns a 32-bit unsigned integer constant.
func (b *Builder) Const(v uint32) uint32 {
	if id, ok := b.constCache[v]; ok {
		return id
	}
	if b.intType == 0 {
		b.intType = b.Int(32, false)
	}
	id := b.id()
	b.types = append(b.types, inst(opConstant, b.intType, id, v)...)
	b.constCache[v] = id
	return id
}

// Array returns an array type of n elements; stride 0 leaves it undecorated.
func (b *Builder) Array(elem, n, stride uint32) uint32 {
	id := b.typ(opTypeArray, elem, b.Const(n))
	if stride != 0 {
		b.Decorate(id, DecArrayStride, stride)
	}
	return id
}

// RuntimeArray returns a runtime-sized array type.
func (b *Builder) RuntimeArray(elem, stride uint32) uint32 {
	id := b.typ(opTypeRuntimeArr, elem)
	if stride != 0 {
		b.Decorate(id, DecArrayStride, stride)
	}
	return id
}

// Struct returns a struct type with explicit member offsets.
func (b *Builder) Struct(name string, fields ...Field) uint32 {
	members := make([]uint32, len(fields))
	for i, f := range fields {
		members[i] = f.Type
	}
	id := b.typ(opTypeStruct, members...)
	b.Name(id, name)
	for i, f := range fields {
		m := uint32(i)
		if f.Name != "" {
			b.names = append(b.names, inst(opMemberName, append([]uint32{id, m}, encodeString(f.Name)...)...)...)
		}
		if f.BuiltIn {
			b.memberDecorate(id, m, DecBuiltIn, 0)
			continue
		}
		b.memberDecorate(id, m, DecOffset, f.Offset)
		if f.MatrixStride != 0 {
			b.memberDecorate(id, m, DecMatrixStride, f.MatrixStride)
		}
		if f.NonReadable {
			b.memberDecorate(id, m, DecNonReadable)
		}
		if f.NonWritable {
			b.memberDecorate(id, m, DecNonWritable)
		}
	}
	return id
}

// Image returns an image type; sampled is 1 for sampled and 2 for storage
// images.
func (b *Builder) Image(dim, sampled uint32) uint32 {
	f := b.Float(32)
	return b.typ(opTypeImage, f, dim, 0, 0, 0, sampled, 0)
}

func (b *Builder) Sampler() uint32 { return b.typ(opTypeSampler) }

func (b *Builder) SampledImage(image uint32) uint32 { return b.typ(opTypeSampledImg, image) }

func (b *Builder) Pointer(storage, elem uint32) uint32 { return b.typ(opTypePointer, storage, elem) }

// Variable declares a global variable and returns its id.
func (b *Builder) Variable(name string, storage, typ uint32) uint32 {
	ptr := b.Pointer(storage, typ)
	id := b.id()
	b.types = append(b.types, inst(opVariable, ptr, id, storage)...)
	b.Name(id, name)
	if storage == Input || storage == Output {
		b.iface = append(b.iface, id)
	}
	return id
}

func (b *Builder) descriptor(name string, storage, typ, set, binding uint32) uint32 {
	id := b.Variable(name, storage, typ)
	b.Decorate(id, DecDescriptorSet, set)
	b.Decorate(id, DecBinding, binding)
	return id
}

// UniformBlock declares a uniform buffer of block type block.
func (b *Builder) UniformBlock(name string, block, set, binding uint32) uint32 {
	b.Decorate(block, DecBlock)
	return b.descriptor(name, Uniform, block, set, binding)
}

// StorageBlock declares a storage buffer of block type block.
func (b *Builder) StorageBlock(name string, block, set, binding uint32) uint32 {
	b.Decorate(block, DecBlock)
	return b.descriptor(name, StorageBuffer, block, set, binding)
}

// PushConstants declares a push-constant block.
func (b *Builder) PushConstants(name string, block uint32) uint32 {
	b.Decorate(block, DecBlock)
	return b.Variable(name, PushConstant, block)
}

// CombinedImageSampler declares a sampler2D, or an array of them if count
// is greater than one.
func (b *Builder) CombinedImageSampler(name string, set, binding, count uint32) uint32 {
	t := b.SampledImage(b.Image(Dim2D, 1))
	if count > 1 {
		t = b.Array(t, count, 0)
	}
	return b.descriptor(name, UniformConstant, t, set, binding)
}

// Opaque declares a uniform-constant variable of type typ, such as an image,
// sampler or texel buffer.
func (b *Builder) Opaque(name string, typ, set, binding uint32) uint32 {
	return b.descriptor(name, UniformConstant, typ, set, binding)
}

// InputAttachment declares a subpassInput.
func (b *Builder) InputAttachment(name string, set, binding, index uint32) uint32 {
	id := b.descriptor(name, UniformConstant, b.Image(DimSubpassData, 2), set, binding)
	b.Decorate(id, DecInputAttachmentIndex, index)
	return id
}

// Input declares a stage input at location.
func (b *Builder) Input(name string, typ, location uint32) uint32 {
	id := b.Variable(name, Input, typ)
	b.Decorate(id, DecLocation, location)
	return id
}

// Output declares a stage output at location.
func (b *Builder) Output(name string, typ, location uint32) uint32 {
	id := b.Variable(name, Output, typ)
	b.Decorate(id, DecLocation, location)
	return id
}

// BuiltIn declares a built-in stage variable, such as gl_Position.
func (b *Builder) BuiltIn(name string, storage, typ, builtin uint32) uint32 {
	id := b.Variable(name, storage, typ)
	b.Decorate(id, DecBuiltIn, builtin)
	return id
}

// Words returns the assembled module. It must be called only once.
func (b *Builder) Words() []uint32 {
	void := b.typ(opTypeVoid)
	fnType := b.typ(opTypeFunction, void)
	label := b.id()

	words := []uint32{0x07230203, 0x00010000, 0, b.next, 0}
	words = append(words, inst(opCapability, 1)...)
	words = append(words, inst(opMemoryModel, 0, 1)...)
	ep := append([]uint32{b.model, b.fn}, encodeString(b.entry)...)
	words = append(words, inst(opEntryPoint, append(ep, b.iface...)...)...)
	if b.model == 4 {
		words = append(words, inst(opExecutionMode, b.fn, 7)...)
	}
	if b.model == 5 {
		words = append(words, inst(opExecutionMode, b.fn, 17, 1, 1, 1)...)
	}
	words = append(words, b.names...)
	words = append(words, b.decorates...)
	words = append(words, b.types...)
	words = append(words, inst(opFunction, void, b.fn, 0, fnType)...)
	words = append(words, inst(opLabel, label)...)
	words = append(words, inst(opReturn)...)
	words = append(words, inst(opFunctionEnd)...)
	return words
}
