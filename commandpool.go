package vkez

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

type pooledBuffer struct {
	pool driver.CommandPool
	cb   driver.CommandBuffer
}

// commandPools recycles driver command pools per queue family. Every
// CommandBuffer owns a pool with a single command buffer, so recording
// never needs to lock a pool shared with another command buffer.
type commandPools struct {
	mu   sync.Mutex
	free map[uint32][]pooledBuffer
	all  []driver.CommandPool
}

func (p *commandPools) get(d *Device, family uint32) (pooledBuffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free[family]); n > 0 {
		pb := p.free[family][n-1]
		p.free[family] = p.free[family][:n-1]
		return pb, nil
	}
	pool, err := d.drv.CreateCommandPool(family)
	if err != nil {
		return pooledBuffer{}, errors.Wrap(err, "creating command pool")
	}
	cb, err := d.drv.AllocateCommandBuffer(pool)
	if err != nil {
		d.drv.DestroyCommandPool(pool)
		return pooledBuffer{}, errors.Wrap(err, "allocating command buffer")
	}
	p.all = append(p.all, pool)
	return pooledBuffer{pool: pool, cb: cb}, nil
}

func (p *commandPools) put(family uint32, pb pooledBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.free == nil {
		p.free = map[uint32][]pooledBuffer{}
	}
	p.free[family] = append(p.free[family], pb)
}

func (p *commandPools) destroy(d *Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pool := range p.all {
		d.drv.DestroyCommandPool(pool)
	}
	p.all, p.free = nil, nil
}

// AllocateCommandBuffers allocates n command buffers for submission to
// queues of q's family.
func (d *Device) AllocateCommandBuffers(q *Queue, n int) ([]*CommandBuffer, error) {
	if q == nil {
		return nil, errors.Wrap(ErrInvalidHandle, "allocating command buffers for a nil queue")
	}
	cbs := make([]*CommandBuffer, 0, n)
	for range n {
		pb, err := d.pools.get(d, q.family)
		if err != nil {
			for _, cb := range cbs {
				cb.Free()
			}
			return nil, err
		}
		cb := &CommandBuffer{d: d, family: q.family, pool: pb.pool, handle: pb.cb}
		cb.resetLocked()
		cbs = append(cbs, cb)
	}
	return cbs, nil
}

func (d *Device) AllocateCommandBuffer(q *Queue) (*CommandBuffer, error) {
	cbs, err := d.AllocateCommandBuffers(q, 1)
	if err != nil {
		return nil, err
	}
	return cbs[0], nil
}

// Free releases the command buffer once its submissions have completed.
func (cb *CommandBuffer) Free() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.freed {
		return
	}
	cb.freed = true
	cb.d.descriptors.unpin(cb.pinned)
	cb.pinned, cb.ops, cb.refs = nil, nil, nil
	cb.state = StateInvalid
	d, family, pb := cb.d, cb.family, pooledBuffer{pool: cb.pool, cb: cb.handle}
	d.retire.release(&cb.uses, func() {
		if err := d.drv.ResetCommandBuffer(pb.cb); err != nil {
			Logger().Warn("resetting freed command buffer", "err", err)
			d.drv.FreeCommandBuffer(pb.pool, pb.cb)
			return
		}
		d.pools.put(family, pb)
	})
}
