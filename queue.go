package vkez

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

// Queue submits command buffers. Submissions to one queue are serialized.
type Queue struct {
	d      *Device
	family uint32
	index  uint32
	handle driver.Queue

	mu sync.Mutex
}

func (q *Queue) Family() uint32       { return q.family }
func (q *Queue) Index() uint32        { return q.index }
func (q *Queue) Handle() driver.Queue { return q.handle }
func (q *Queue) Flags() driver.QueueFlags {
	return q.d.props.QueueFamilies[q.family].Flags
}

func (q *Queue) String() string {
	return fmt.Sprintf("{family: %d index: %d flags: %#x}", q.family, q.index, q.Flags())
}

// SubmitInfo is one batch of a submission. WaitStages has one entry per
// wait semaphore.
type SubmitInfo struct {
	WaitSemaphores   []*Semaphore
	WaitStages       []driver.PipelineStage
	CommandBuffers   []*CommandBuffer
	SignalSemaphores []*Semaphore
}

// Submit submits batches of executable command buffers. fence may be nil,
// in which case an internal fence tracks completion. Every object the
// command buffers use stays alive until the submission completes.
func (q *Queue) Submit(infos []SubmitInfo, fence *Fence) error {
	d := q.d
	var cbs []*CommandBuffer
	submits := make([]driver.SubmitInfo, len(infos))
	for i, info := range infos {
		if len(info.WaitStages) != len(info.WaitSemaphores) {
			return errors.Wrapf(ErrValidation, "batch %d has %d wait semaphores and %d wait stages",
				i, len(info.WaitSemaphores), len(info.WaitStages))
		}
		s := driver.SubmitInfo{WaitStages: info.WaitStages}
		for _, sem := range info.WaitSemaphores {
			s.WaitSemaphores = append(s.WaitSemaphores, sem.handle)
		}
		for _, sem := range info.SignalSemaphores {
			s.SignalSemaphores = append(s.SignalSemaphores, sem.handle)
		}
		for _, cb := range info.CommandBuffers {
			if cb.family != q.family {
				return errors.Wrapf(ErrValidation, "command buffer of family %d submitted to family %d", cb.family, q.family)
			}
			if st := cb.State(); st != StateExecutable {
				return errors.Wrapf(ErrInvalidState, "submitting a command buffer in state %s", st)
			}
			s.CommandBuffers = append(s.CommandBuffers, cb.handle)
			cbs = append(cbs, cb)
		}
		submits[i] = s
	}

	q.mu.Lock()
	sub, err := d.newSubmission(fence)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	err = d.drv.QueueSubmit(q.handle, submits, sub.fence)
	q.mu.Unlock()
	if err != nil {
		sub.signaled.Store(true)
		if fence != nil {
			fence.sub.Store(nil)
		}
		return errors.Wrap(err, "submitting to queue")
	}

	for _, cb := range cbs {
		cb.submitted(sub)
	}
	for _, info := range infos {
		for _, sem := range info.WaitSemaphores {
			sem.uses.add(sub)
		}
		for _, sem := range info.SignalSemaphores {
			sem.uses.add(sub)
		}
	}
	d.recycleFences(false)
	d.retire.drain(false)
	return nil
}

// submitted marks cb pending on sub and extends the lifetime of everything
// it refers to.
func (cb *CommandBuffer) submitted(sub *submission) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StatePending
	cb.last = sub
	cb.uses.add(sub)
	for fs := range cb.refs {
		fs.add(sub)
	}
}

// WaitIdle blocks until the queue has no pending work.
func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	err := q.d.drv.QueueWaitIdle(q.handle)
	q.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "waiting for queue idle")
	}
	q.d.recycleFences(false)
	q.d.retire.drain(false)
	return nil
}
