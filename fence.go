package vkez

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

// submission is one QueueSubmit call and the fence that signals its
// completion.
type submission struct {
	d        *Device
	fence    driver.Fence
	owned    bool
	signaled atomic.Bool
	// waiters is guarded by the device fence pool lock. A waited-on
	// fence is not recycled.
	waiters int
}

// done polls the fence once; a signaled submission stays done even after
// its fence is recycled.
func (s *submission) done() bool {
	if s == nil || s.signaled.Load() {
		return true
	}
	if s.d.drv.FenceStatus(s.fence) == nil {
		s.signaled.Store(true)
		return true
	}
	return false
}

// fenceSet holds the submissions that may still access an object.
type fenceSet struct {
	mu   sync.Mutex
	subs []*submission
}

func (f *fenceSet) prune() {
	f.subs = slices.DeleteFunc(f.subs, (*submission).done)
}

func (f *fenceSet) add(s *submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prune()
	f.subs = append(f.subs, s)
}

func (f *fenceSet) idle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prune()
	return len(f.subs) == 0
}

func (f *fenceSet) pending() []*submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prune()
	return slices.Clone(f.subs)
}

// Fence lets the host wait for a submission.
type Fence struct {
	d      *Device
	handle driver.Fence
	sub    atomic.Pointer[submission]
	uses   fenceSet
}

// CreateFence creates a fence, optionally in the signaled state.
func (d *Device) CreateFence(signaled bool) (*Fence, error) {
	h, err := d.drv.CreateFence(signaled)
	if err != nil {
		return nil, errors.Wrap(err, "creating fence")
	}
	return &Fence{d: d, handle: h}, nil
}

func (f *Fence) Handle() driver.Fence { return f.handle }

// Status returns nil if the fence is signaled and NotReady otherwise.
func (f *Fence) Status() error {
	err := f.d.drv.FenceStatus(f.handle)
	if err == nil {
		if s := f.sub.Load(); s != nil {
			s.signaled.Store(true)
		}
	}
	return err
}

// Reset returns the fence to the unsignaled state. Resetting a fence whose
// submission is still executing fails with ErrInvalidState.
func (f *Fence) Reset() error {
	if s := f.sub.Load(); s != nil && !s.done() {
		return errors.Wrap(ErrInvalidState, "resetting a fence of a pending submission")
	}
	f.sub.Store(nil)
	return errors.Wrap(f.d.drv.ResetFences([]driver.Fence{f.handle}), "resetting fence")
}

// Destroy releases the fence once its submission has completed.
func (f *Fence) Destroy() {
	if s := f.sub.Load(); s != nil {
		f.uses.add(s)
	}
	h := f.handle
	f.d.retire.release(&f.uses, func() { f.d.drv.DestroyFence(h) })
}

// WaitForFences blocks until one or all fences signal or timeout elapses,
// in which case it returns Timeout. A zero timeout polls.
func (d *Device) WaitForFences(fences []*Fence, waitAll bool, timeout time.Duration) error {
	hs := make([]driver.Fence, len(fences))
	for i, f := range fences {
		hs[i] = f.handle
	}
	err := d.drv.WaitForFences(hs, waitAll, timeout)
	if errors.Is(err, driver.Timeout) {
		return Timeout
	}
	if err != nil {
		return errors.Wrap(err, "waiting for fences")
	}
	for _, f := range fences {
		if waitAll {
			if s := f.sub.Load(); s != nil {
				s.signaled.Store(true)
			}
		} else {
			_ = f.Status()
		}
	}
	d.retire.drain(false)
	return nil
}

// Semaphore orders submissions across queues and presentation.
type Semaphore struct {
	d      *Device
	handle driver.Semaphore
	uses   fenceSet
}

// CreateSemaphore creates a binary semaphore.
func (d *Device) CreateSemaphore() (*Semaphore, error) {
	h, err := d.drv.CreateSemaphore()
	if err != nil {
		return nil, errors.Wrap(err, "creating semaphore")
	}
	return &Semaphore{d: d, handle: h}, nil
}

func (s *Semaphore) Handle() driver.Semaphore { return s.handle }

// Destroy releases the semaphore after the last submission using it.
func (s *Semaphore) Destroy() {
	h := s.handle
	s.d.retire.release(&s.uses, func() { s.d.drv.DestroySemaphore(h) })
}

// fencePool recycles the fences of internal submissions.
type fencePool struct {
	mu       sync.Mutex
	free     []driver.Fence
	inflight []*submission
}

func (d *Device) newSubmission(user *Fence) (*submission, error) {
	s := &submission{d: d}
	if user != nil {
		if prev := user.sub.Load(); prev != nil && !prev.done() {
			return nil, errors.Wrap(ErrInvalidState, "fence is in use by a pending submission")
		}
		s.fence = user.handle
		user.sub.Store(s)
		return s, nil
	}
	p := &d.fences
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		s.fence = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		f, err := d.drv.CreateFence(false)
		if err != nil {
			return nil, errors.Wrap(err, "creating submission fence")
		}
		s.fence = f
	}
	s.owned = true
	p.inflight = append(p.inflight, s)
	return s, nil
}

// recycleFences returns fences of completed internal submissions to the
// pool.
func (d *Device) recycleFences(all bool) {
	p := &d.fences
	p.mu.Lock()
	defer p.mu.Unlock()
	var ready []driver.Fence
	p.inflight = slices.DeleteFunc(p.inflight, func(s *submission) bool {
		if all {
			s.signaled.Store(true)
		}
		if s.waiters > 0 || !s.done() {
			return false
		}
		ready = append(ready, s.fence)
		return true
	})
	if len(ready) == 0 {
		return
	}
	if err := d.drv.ResetFences(ready); err != nil {
		Logger().Warn("resetting submission fences", "err", err)
		for _, f := range ready {
			d.drv.DestroyFence(f)
		}
		return
	}
	p.free = append(p.free, ready...)
}

// waitSubmission blocks until s completes. The fence stays out of the
// pool while it is waited on.
func (d *Device) waitSubmission(s *submission) error {
	p := &d.fences
	p.mu.Lock()
	if s.done() {
		p.mu.Unlock()
		return nil
	}
	s.waiters++
	p.mu.Unlock()

	err := d.drv.WaitForFences([]driver.Fence{s.fence}, true, -1)

	p.mu.Lock()
	s.waiters--
	p.mu.Unlock()
	if err != nil {
		return err
	}
	s.signaled.Store(true)
	return nil
}

func (d *Device) destroyFences() {
	p := &d.fences
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.inflight {
		d.drv.DestroyFence(s.fence)
	}
	for _, f := range p.free {
		d.drv.DestroyFence(f)
	}
	p.inflight, p.free = nil, nil
}
