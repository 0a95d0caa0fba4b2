package vkez

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/google/renameio/v2"

	"github.com/celer/vkez/driver"
	"github.com/celer/vkez/internal/hashkey"
	"github.com/celer/vkez/internal/intern"
)

// cacheHeaderSize is the size of the header the driver prefixes to
// pipeline-cache data: length, version, vendor id, device id, UUID.
const (
	cacheHeaderSize    = 32
	cacheHeaderVersion = 1
)

// concretePipeline is a driver pipeline built from a logical pipeline.
type concretePipeline struct {
	pipelineID uint64
	handle     driver.Pipeline
	uses       fenceSet
}

// pipelineCache holds the driver pipeline cache and every concrete
// pipeline. Graphics pipelines are keyed on the logical pipeline, the
// fixed-function state, the render-pass compat class and the subpass.
type pipelineCache struct {
	d       *Device
	handle  driver.PipelineCache
	path    string
	entries intern.Map[*concretePipeline]
}

func newPipelineCache(d *Device, path string) (*pipelineCache, error) {
	c := &pipelineCache{d: d, path: path}
	initial := c.load()
	h, err := d.drv.CreatePipelineCache(initial)
	if err != nil {
		return nil, errors.Wrap(err, "creating pipeline cache")
	}
	c.handle = h
	return c, nil
}

// validCacheHeader reports whether blob was produced by the same driver
// and device as props.
func validCacheHeader(blob []byte, props *driver.Properties) bool {
	if len(blob) < cacheHeaderSize {
		return false
	}
	le := binary.LittleEndian
	return le.Uint32(blob[0:]) == cacheHeaderSize &&
		le.Uint32(blob[4:]) == cacheHeaderVersion &&
		le.Uint32(blob[8:]) == props.VendorID &&
		le.Uint32(blob[12:]) == props.DeviceID &&
		bytes.Equal(blob[16:32], props.PipelineCacheUUID[:])
}

func (c *pipelineCache) load() []byte {
	if c.path == "" {
		return nil
	}
	blob, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		Logger().Warn("reading pipeline cache", "path", c.path, "err", err)
		return nil
	}
	if !validCacheHeader(blob, c.d.props) {
		Logger().Warn("discarding pipeline cache from another driver or device", "path", c.path, "size", len(blob))
		return nil
	}
	Logger().Info("pipeline cache loaded", "path", c.path, "size", len(blob))
	return blob
}

// save writes the driver cache data to the configured path atomically.
func (c *pipelineCache) save() error {
	if c.path == "" || c.handle == 0 {
		return nil
	}
	blob, err := c.d.drv.PipelineCacheData(c.handle)
	if err != nil {
		return errors.Wrap(err, "reading pipeline cache data")
	}
	if err := renameio.WriteFile(c.path, blob, 0o644); err != nil {
		return errors.Wrapf(err, "writing pipeline cache %s", c.path)
	}
	Logger().Info("pipeline cache saved", "path", c.path, "size", len(blob))
	return nil
}

// SavePipelineCache writes the pipeline cache to the configured path. It
// is a no-op when no path is configured.
func (d *Device) SavePipelineCache() error { return d.pipelines.save() }

// graphics returns the concrete pipeline for p drawn with state st in
// subpass of rp.
func (c *pipelineCache) graphics(p *Pipeline, st *pipelineState, rp *renderPass, subpass int) (*concretePipeline, error) {
	vertex := st.vertexFormat
	if vertex == nil {
		vertex = p.defaultVertex
	}
	var b hashkey.Builder
	b.U64(p.id).U32(rp.compat).U32(uint32(subpass))
	st.encode(&b, vertex)
	cp, created, err := c.entries.GetOrCreate(b.Key(), func() (*concretePipeline, error) {
		ci := &driver.GraphicsPipelineCreateInfo{
			Stages:     p.stages,
			Layout:     p.layout.handle,
			RenderPass: rp.handle,
			Subpass:    uint32(subpass),
		}
		st.fill(ci, vertex, rp.layout.colorCount(subpass), rp.layout.subpassSamples(subpass))
		h, err := c.d.drv.CreateGraphicsPipeline(c.handle, ci)
		if err != nil {
			return nil, errors.Wrap(err, "creating graphics pipeline")
		}
		return &concretePipeline{pipelineID: p.id, handle: h}, nil
	})
	if created {
		Logger().Debug("concrete pipeline created", "pipeline", p.id, "compat", rp.compat, "subpass", subpass)
	}
	return cp, err
}

func (c *pipelineCache) compute(p *Pipeline) (*concretePipeline, error) {
	var b hashkey.Builder
	b.U64(p.id)
	cp, _, err := c.entries.GetOrCreate(b.Key(), func() (*concretePipeline, error) {
		h, err := c.d.drv.CreateComputePipeline(c.handle, &driver.ComputePipelineCreateInfo{
			Stage:  p.stages[0],
			Layout: p.layout.handle,
		})
		if err != nil {
			return nil, errors.Wrap(err, "creating compute pipeline")
		}
		return &concretePipeline{pipelineID: p.id, handle: h}, nil
	})
	return cp, err
}

// evict drops the concrete pipelines of logical pipeline id. They are
// destroyed once their last submission completes.
func (c *pipelineCache) evict(id uint64) {
	for _, cp := range c.entries.DeleteFunc(func(cp *concretePipeline) bool { return cp.pipelineID == id }) {
		h := cp.handle
		c.d.retire.release(&cp.uses, func() { c.d.drv.DestroyPipeline(h) })
	}
}

func (c *pipelineCache) destroy() {
	for _, cp := range c.entries.DeleteFunc(func(*concretePipeline) bool { return true }) {
		c.d.drv.DestroyPipeline(cp.handle)
	}
	if c.handle != 0 {
		c.d.drv.DestroyPipelineCache(c.handle)
		c.handle = 0
	}
}
