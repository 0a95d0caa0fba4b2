package vkez

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/spirv"
)

// Compiler turns shader source text into SPIR-V.
type Compiler interface {
	Compile(stage driver.ShaderStage, source, entryPoint string) ([]uint32, error)
}

// WGSLCompiler compiles WGSL with naga. It is the default Compiler.
type WGSLCompiler struct{}

func (WGSLCompiler) Compile(stage driver.ShaderStage, source, entryPoint string) ([]uint32, error) {
	b, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	if len(b)%4 != 0 {
		return nil, errors.Newf("compiler produced %d bytes, not whole words", len(b))
	}
	code := make([]uint32, len(b)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return code, nil
}

type ShaderModuleCreateInfo struct {
	// Stage is checked against the entry point's execution model when set.
	Stage driver.ShaderStage
	// Code is SPIR-V. When empty, Source is compiled with Compiler.
	Code   []uint32
	Source string
	// Compiler defaults to WGSLCompiler.
	Compiler Compiler
	// EntryPoint defaults to the first entry point of the module.
	EntryPoint string
}

// ShaderModule is one shader stage with its reflected resources.
type ShaderModule struct {
	d          *Device
	id         uint64
	handle     driver.ShaderModule
	stage      driver.ShaderStage
	entryPoint string
	code       []uint32
	resources  []spirv.Resource
	infoLog    string

	life lifetime
}

// CreateShaderModule compiles, reflects and creates a shader module. A
// compile failure returns ErrShaderCompileFailed together with a module
// whose InfoLog holds the compiler output.
func (d *Device) CreateShaderModule(info *ShaderModuleCreateInfo) (*ShaderModule, error) {
	code := info.Code
	if len(code) == 0 {
		if info.Source == "" {
			return nil, errors.Wrap(ErrInvalidShaderModule, "shader module without code or source")
		}
		c := info.Compiler
		if c == nil {
			c = WGSLCompiler{}
		}
		var err error
		code, err = c.Compile(info.Stage, info.Source, info.EntryPoint)
		if err != nil {
			m := &ShaderModule{d: d, stage: info.Stage, entryPoint: info.EntryPoint, infoLog: err.Error()}
			return m, errors.Wrapf(ErrShaderCompileFailed, "compiling shader: %v", err)
		}
	}
	refl, err := spirv.Reflect(code, info.EntryPoint)
	if err != nil {
		return nil, err
	}
	if info.Stage != 0 && info.Stage != refl.Stage {
		return nil, errors.Wrapf(ErrNoEntryPoint, "entry point %q is not a stage %#x shader", refl.EntryPoint, info.Stage)
	}
	h, err := d.drv.CreateShaderModule(code)
	if err != nil {
		return nil, errors.Wrap(err, "creating shader module")
	}
	m := &ShaderModule{
		d:          d,
		id:         d.newID(),
		handle:     h,
		stage:      refl.Stage,
		entryPoint: refl.EntryPoint,
		code:       code,
		resources:  refl.Resources,
	}
	d.register(m.id, m)
	Logger().Debug("shader module created", "stage", m.stage, "entry", m.entryPoint, "resources", len(m.resources))
	return m, nil
}

func (m *ShaderModule) Handle() driver.ShaderModule { return m.handle }
func (m *ShaderModule) Stage() driver.ShaderStage   { return m.stage }
func (m *ShaderModule) EntryPoint() string          { return m.entryPoint }

// Code returns the SPIR-V words of the module.
func (m *ShaderModule) Code() []uint32 { return m.code }

// InfoLog returns the compiler output of a failed compile.
func (m *ShaderModule) InfoLog() string { return m.infoLog }

// Resources returns the reflected resources of the entry point.
func (m *ShaderModule) Resources() []spirv.Resource { return m.resources }

// Destroy releases the module once no pipeline uses it.
func (m *ShaderModule) Destroy() {
	if m.handle == 0 {
		return
	}
	m.life.destroy(m.release)
}

func (m *ShaderModule) release() {
	m.d.unregister(m.id)
	m.d.drv.DestroyShaderModule(m.handle)
}
