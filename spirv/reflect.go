package spirv

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

const magic = 0x07230203

const (
	opName           = 5
	opMemberName     = 6
	opEntryPoint     = 15
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
	opConstant       = 43
	opSpecConstant   = 50
	opVariable       = 59
	opDecorate       = 71
	opMemberDecorate = 72
)

const (
	decBlock                = 2
	decBufferBlock          = 3
	decArrayStride          = 6
	decMatrixStride         = 7
	decBuiltIn              = 11
	decNonWritable          = 24
	decNonReadable          = 25
	decLocation             = 30
	decBinding              = 33
	decDescriptorSet        = 34
	decOffset               = 35
	decInputAttachmentIndex = 43
)

const (
	scUniformConstant = 0
	scInput           = 1
	scUniform         = 2
	scOutput          = 3
	scPushConstant    = 9
	scStorageBuffer   = 12
)

const (
	dimBuffer      = 5
	dimSubpassData = 6
)

type decorations struct {
	set, binding, location, inputIndex uint32
	offset, arrayStride, matrixStride  uint32
	hasOffset                          bool
	builtin, block, bufferBlock        bool
	nonReadable, nonWritable           bool
}

type typeInfo struct {
	op      uint32
	width   uint32
	signed  bool
	elem    uint32 // component, column, element, pointee or image type
	count   uint32 // vector size, column count or array length id
	dim     uint32
	sampled uint32
	storage uint32
	members []uint32
}

type variable struct {
	id, typ, storage uint32
}

type entryPoint struct {
	model     uint32
	name      string
	iface     []uint32
	functions uint32
}

type parser struct {
	names       map[uint32]string
	memberNames map[uint32]map[uint32]string
	dec         map[uint32]*decorations
	memberDec   map[uint32]map[uint32]*decorations
	types       map[uint32]*typeInfo
	constants   map[uint32]uint32
	vars        []variable
	entries     []entryPoint
}

func invalid(format string, args ...any) error {
	return errors.Wrapf(driver.ErrInvalidShaderModule, format, args...)
}

func decodeString(words []uint32) (string, int) {
	var b []byte
	for i, w := range words {
		for s := 0; s < 32; s += 8 {
			c := byte(w >> s)
			if c == 0 {
				return string(b), i + 1
			}
			b = append(b, c)
		}
	}
	return string(b), len(words)
}

func (p *parser) decor(id uint32) *decorations {
	d, ok := p.dec[id]
	if !ok {
		d = &decorations{}
		p.dec[id] = d
	}
	return d
}

func (p *parser) memberDecor(id, member uint32) *decorations {
	m, ok := p.memberDec[id]
	if !ok {
		m = map[uint32]*decorations{}
		p.memberDec[id] = m
	}
	d, ok := m[member]
	if !ok {
		d = &decorations{}
		m[member] = d
	}
	return d
}

func applyDecoration(d *decorations, kind uint32, lit []uint32) {
	val := uint32(0)
	if len(lit) > 0 {
		val = lit[0]
	}
	switch kind {
	case decBlock:
		d.block = true
	case decBufferBlock:
		d.bufferBlock = true
	case decArrayStride:
		d.arrayStride = val
	case decMatrixStride:
		d.matrixStride = val
	case decBuiltIn:
		d.builtin = true
	case decNonWritable:
		d.nonWritable = true
	case decNonReadable:
		d.nonReadable = true
	case decLocation:
		d.location = val
	case decBinding:
		d.binding = val
	case decDescriptorSet:
		d.set = val
	case decOffset:
		d.offset = val
		d.hasOffset = true
	case decInputAttachmentIndex:
		d.inputIndex = val
	}
}

func parse(code []uint32) (*parser, error) {
	if len(code) < 5 {
		return nil, invalid("spirv: module of %d words is too short", len(code))
	}
	if code[0] != magic {
		return nil, invalid("spirv: bad magic %#x", code[0])
	}
	p := &parser{
		names:       map[uint32]string{},
		memberNames: map[uint32]map[uint32]string{},
		dec:         map[uint32]*decorations{},
		memberDec:   map[uint32]map[uint32]*decorations{},
		types:       map[uint32]*typeInfo{},
		constants:   map[uint32]uint32{},
	}
	for i := 5; i < len(code); {
		n := int(code[i] >> 16)
		op := code[i] & 0xffff
		if n == 0 || i+n > len(code) {
			return nil, invalid("spirv: truncated instruction %d at word %d", op, i)
		}
		w := code[i : i+n]
		i += n
		if err := p.instruction(op, w); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *parser) instruction(op uint32, w []uint32) error {
	need := func(k int) error {
		if len(w) < k {
			return invalid("spirv: instruction %d has %d words, want at least %d", op, len(w), k)
		}
		return nil
	}
	switch op {
	case opName:
		if err := need(3); err != nil {
			return err
		}
		p.names[w[1]], _ = decodeString(w[2:])
	case opMemberName:
		if err := need(4); err != nil {
			return err
		}
		m, ok := p.memberNames[w[1]]
		if !ok {
			m = map[uint32]string{}
			p.memberNames[w[1]] = m
		}
		m[w[2]], _ = decodeString(w[3:])
	case opEntryPoint:
		if err := need(4); err != nil {
			return err
		}
		name, used := decodeString(w[3:])
		p.entries = append(p.entries, entryPoint{model: w[1], functions: w[2], name: name, iface: append([]uint32(nil), w[3+used:]...)})
	case opDecorate:
		if err := need(3); err != nil {
			return err
		}
		applyDecoration(p.decor(w[1]), w[2], w[3:])
	case opMemberDecorate:
		if err := need(4); err != nil {
			return err
		}
		applyDecoration(p.memberDecor(w[1], w[2]), w[3], w[4:])
	case opTypeVoid, opTypeSampler:
		if err := need(2); err != nil {
			return err
		}
		p.types[w[1]] = &typeInfo{op: op}
	case opTypeBool:
		if err := need(2); err != nil {
			return err
		}
		p.types[w[1]] = &typeInfo{op: op, width: 32}
	case opTypeInt:
		if err := need(4); err != nil {
			return err
		}
		p.types[w[1]] = &typeInfo{op: op, width: w[2], signed: w[3] != 0}
	case opTypeFloat:
		if err := need(3); err != nil {
			return err
		}
		p.types[w[1]] = &typeInfo{op: op, width: w[2]}
	case opTypeVector, opTypeMatrix, opTypeArray:
		if err := need(4); err != nil {
			return err
		}
		p.types[w[1]] = &typeInfo{op: op, elem: w[2], count: w[3]}
	case opTypeImage:
		if err := need(9); err != nil {
			return err
		}
		p.types[w[1]] = &typeInfo{op: op, elem: w[2], dim: w[3], sampled: w[7]}
	case opTypeSampledImg, opTypeRuntimeArr:
		if err := need(3); err != nil {
			return err
		}
		p.types[w[1]] = &typeInfo{op: op, elem: w[2]}
	case opTypeStruct:
		if err := need(2); err != nil {
			return err
		}
		p.types[w[1]] = &typeInfo{op: op, members: append([]uint32(nil), w[2:]...)}
	case opTypePointer:
		if err := need(4); err != nil {
			return err
		}
		p.types[w[1]] = &typeInfo{op: op, storage: w[2], elem: w[3]}
	case opConstant, opSpecConstant:
		if err := need(4); err != nil {
			return err
		}
		p.constants[w[2]] = w[3]
	case opVariable:
		if err := need(4); err != nil {
			return err
		}
		p.vars = append(p.vars, variable{typ: w[1], id: w[2], storage: w[3]})
	}
	return nil
}

func stageOf(model uint32) (driver.ShaderStage, bool) {
	switch model {
	case 0:
		return driver.ShaderStageVertex, true
	case 1:
		return driver.ShaderStageTessControl, true
	case 2:
		return driver.ShaderStageTessEval, true
	case 3:
		return driver.ShaderStageGeometry, true
	case 4:
		return driver.ShaderStageFragment, true
	case 5:
		return driver.ShaderStageCompute, true
	}
	return 0, false
}

// EntryPoints lists the names of the entry points declared by code.
func EntryPoints(code []uint32) ([]string, error) {
	p, err := parse(code)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.name
	}
	return names, nil
}

// Reflect parses code and returns the interface of the named entry point.
// An empty name selects the first entry point.
func Reflect(code []uint32, name string) (*Module, error) {
	p, err := parse(code)
	if err != nil {
		return nil, err
	}
	var ep *entryPoint
	for i := range p.entries {
		if name == "" || p.entries[i].name == name {
			ep = &p.entries[i]
			break
		}
	}
	if ep == nil {
		return nil, errors.Wrapf(driver.ErrNoEntryPoint, "spirv: entry point %q not found", name)
	}
	stage, ok := stageOf(ep.model)
	if !ok {
		return nil, invalid("spirv: unsupported execution model %d", ep.model)
	}
	iface := map[uint32]bool{}
	for _, id := range ep.iface {
		iface[id] = true
	}

	m := &Module{Stage: stage, EntryPoint: ep.name}
	for _, v := range p.vars {
		if (v.storage == scInput || v.storage == scOutput) && !iface[v.id] {
			continue
		}
		r, ok, err := p.resource(v, stage)
		if err != nil {
			return nil, err
		}
		if ok {
			m.Resources = append(m.Resources, r)
		}
	}
	return m, nil
}

func (p *parser) typ(id uint32) (*typeInfo, error) {
	t, ok := p.types[id]
	if !ok {
		return nil, invalid("spirv: undefined type %d", id)
	}
	return t, nil
}

// unwrapArrays strips array types and returns the element type id and the
// product of the array lengths, which is 0 if any dimension is runtime-sized.
func (p *parser) unwrapArrays(id uint32) (uint32, uint32, error) {
	size := uint32(1)
	for {
		t, err := p.typ(id)
		if err != nil {
			return 0, 0, err
		}
		switch t.op {
		case opTypeArray:
			n, ok := p.constants[t.count]
			if !ok {
				return 0, 0, invalid("spirv: array length %d is not a constant", t.count)
			}
			size *= n
		case opTypeRuntimeArr:
			size = 0
		default:
			return id, size, nil
		}
		id = t.elem
	}
}

func (p *parser) resource(v variable, stage driver.ShaderStage) (Resource, bool, error) {
	d := p.dec[v.id]
	if d == nil {
		d = &decorations{}
	}
	if d.builtin {
		return Resource{}, false, nil
	}
	ptr, err := p.typ(v.typ)
	if err != nil {
		return Resource{}, false, err
	}
	if ptr.op != opTypePointer {
		return Resource{}, false, invalid("spirv: variable %d is not a pointer", v.id)
	}
	elem, arraySize, err := p.unwrapArrays(ptr.elem)
	if err != nil {
		return Resource{}, false, err
	}
	et, err := p.typ(elem)
	if err != nil {
		return Resource{}, false, err
	}
	r := Resource{
		Stages:               stage,
		Set:                  d.set,
		Binding:              d.binding,
		Location:             d.location,
		InputAttachmentIndex: d.inputIndex,
		ArraySize:            arraySize,
		Name:                 p.names[v.id],
		Access:               Read,
	}

	switch v.storage {
	case scInput, scOutput:
		if et.op == opTypeStruct && p.structIsBuiltin(elem) {
			return Resource{}, false, nil
		}
		r.Kind = StageInput
		if v.storage == scOutput {
			r.Kind = StageOutput
			r.Access = Write
		}
		if err := p.fillShape(&r, elem); err != nil {
			return Resource{}, false, err
		}
		return r, true, nil

	case scPushConstant:
		r.Kind = PushConstantBuffer
		if err := p.fillBlock(&r, elem); err != nil {
			return Resource{}, false, err
		}
		r.Offset = minOffset(r.Members)
		r.Size -= r.Offset
		return r, true, nil

	case scUniform, scStorageBuffer:
		sd := p.dec[elem]
		switch {
		case v.storage == scStorageBuffer || (sd != nil && sd.bufferBlock):
			r.Kind = StorageBuffer
			r.Access = p.storageAccess(d, elem)
		default:
			r.Kind = UniformBuffer
		}
		if r.Name == "" {
			r.Name = p.names[elem]
		}
		if err := p.fillBlock(&r, elem); err != nil {
			return Resource{}, false, err
		}
		return r, true, nil

	case scUniformConstant:
		switch et.op {
		case opTypeSampler:
			r.Kind = Sampler
		case opTypeSampledImg:
			r.Kind = CombinedImageSampler
			img, err := p.typ(et.elem)
			if err != nil {
				return Resource{}, false, err
			}
			if img.dim == dimBuffer {
				r.Kind = UniformTexelBuffer
			}
		case opTypeImage:
			switch {
			case et.dim == dimSubpassData:
				r.Kind = InputAttachment
			case et.dim == dimBuffer && et.sampled == 2:
				r.Kind = StorageTexelBuffer
				r.Access = p.storageAccess(d, 0)
			case et.dim == dimBuffer:
				r.Kind = UniformTexelBuffer
			case et.sampled == 2:
				r.Kind = StorageImage
				r.Access = p.storageAccess(d, 0)
			default:
				r.Kind = SampledImage
			}
		default:
			// Acceleration structures and other opaque types are not
			// reflected.
			return Resource{}, false, nil
		}
		return r, true, nil
	}
	return Resource{}, false, nil
}

func (p *parser) structIsBuiltin(id uint32) bool {
	md := p.memberDec[id]
	if len(md) == 0 {
		return false
	}
	for _, d := range md {
		if d.builtin {
			return true
		}
	}
	return false
}

// storageAccess applies NonReadable and NonWritable, declared either on the
// variable or on every member of the block.
func (p *parser) storageAccess(vd *decorations, block uint32) Access {
	nonReadable, nonWritable := vd.nonReadable, vd.nonWritable
	if t, ok := p.types[block]; ok && t.op == opTypeStruct && len(t.members) > 0 {
		allNR, allNW := true, true
		for i := range t.members {
			md := p.memberDec[block][uint32(i)]
			if md == nil || !md.nonReadable {
				allNR = false
			}
			if md == nil || !md.nonWritable {
				allNW = false
			}
		}
		nonReadable = nonReadable || allNR
		nonWritable = nonWritable || allNW
	}
	switch {
	case nonReadable && !nonWritable:
		return Write
	case nonWritable && !nonReadable:
		return Read
	}
	return Read | Write
}

// fillShape sets the base type, vector size, columns and size of a
// non-block resource.
func (p *parser) fillShape(r *Resource, id uint32) error {
	var m Member
	if err := p.fillMember(&m, id, nil); err != nil {
		return err
	}
	r.BaseType, r.VecSize, r.Columns, r.Size = m.BaseType, m.VecSize, m.Columns, m.Size
	if r.ArraySize != 1 {
		r.Size *= max(r.ArraySize, 1)
	}
	return nil
}

func (p *parser) fillBlock(r *Resource, id uint32) error {
	var m Member
	if err := p.fillMember(&m, id, nil); err != nil {
		return err
	}
	r.BaseType = TypeStruct
	r.Size = m.Size
	r.Members = m.Members
	return nil
}

func minOffset(members []Member) uint32 {
	if len(members) == 0 {
		return 0
	}
	off := members[0].Offset
	for _, m := range members[1:] {
		off = min(off, m.Offset)
	}
	return off
}

// fillMember describes type id into m. md holds the member decorations of
// the enclosing struct, if any.
func (p *parser) fillMember(m *Member, id uint32, md *decorations) error {
	elem, arraySize, err := p.unwrapArrays(id)
	if err != nil {
		return err
	}
	m.ArraySize = arraySize
	t, err := p.typ(elem)
	if err != nil {
		return err
	}

	var scalar *typeInfo
	switch t.op {
	case opTypeBool, opTypeInt, opTypeFloat:
		scalar = t
		m.VecSize, m.Columns = 1, 1
	case opTypeVector:
		if scalar, err = p.typ(t.elem); err != nil {
			return err
		}
		m.VecSize, m.Columns = t.count, 1
	case opTypeMatrix:
		col, err := p.typ(t.elem)
		if err != nil {
			return err
		}
		if scalar, err = p.typ(col.elem); err != nil {
			return err
		}
		m.VecSize, m.Columns = col.count, t.count
	case opTypeStruct:
		m.BaseType = TypeStruct
		names := p.memberNames[elem]
		var end uint32
		for i, mid := range t.members {
			d := p.memberDec[elem][uint32(i)]
			child := Member{Name: names[uint32(i)]}
			if d != nil {
				child.Offset = d.offset
			}
			if err := p.fillMember(&child, mid, d); err != nil {
				return err
			}
			end = max(end, child.Offset+child.Size)
			m.Members = append(m.Members, child)
		}
		m.Size = end
	default:
		return invalid("spirv: unsupported member type op %d", t.op)
	}

	if scalar != nil {
		m.BaseType = baseType(scalar)
		comp := scalar.width / 8
		m.Size = comp * m.VecSize * m.Columns
		if m.Columns > 1 && md != nil && md.matrixStride != 0 {
			m.Size = md.matrixStride * m.Columns
		}
	}

	if arraySize != 1 {
		stride := m.Size
		if at, ok := p.types[id]; ok {
			if d := p.dec[id]; d != nil && d.arrayStride != 0 && (at.op == opTypeArray || at.op == opTypeRuntimeArr) {
				stride = d.arrayStride
			}
		}
		m.Size = stride * arraySize
	}
	return nil
}

func baseType(t *typeInfo) BaseType {
	switch t.op {
	case opTypeBool:
		return TypeBool
	case opTypeInt:
		switch {
		case t.width == 64 && t.signed:
			return TypeInt64
		case t.width == 64:
			return TypeUInt64
		case t.signed:
			return TypeInt
		}
		return TypeUInt
	case opTypeFloat:
		if t.width == 64 {
			return TypeDouble
		}
		return TypeFloat
	}
	return TypeUnknown
}
