package vkez

import (
	"sync"
	"sync/atomic"

	"github.com/celer/vkez/internal/mpsc"
)

type retiree struct {
	subs []*submission
	fn   func()
}

func (r *retiree) ready() bool {
	for _, s := range r.subs {
		if !s.done() {
			return false
		}
	}
	return true
}

// retirement defers releasing driver objects until the submissions that
// last used them have completed. Any goroutine may release; draining is
// serialized.
type retirement struct {
	queue   *mpsc.Queue[retiree]
	mu      sync.Mutex
	waiting []retiree
	batch   int
}

func newRetirement(batch int) *retirement {
	return &retirement{queue: mpsc.New[retiree](), batch: batch}
}

// release runs fn now if uses is idle, otherwise once it becomes idle.
func (r *retirement) release(uses *fenceSet, fn func()) {
	subs := uses.pending()
	if len(subs) == 0 {
		fn()
		return
	}
	r.queue.Push(retiree{subs: subs, fn: fn})
}

// drain runs every release whose submissions have completed. With force
// set the device is known to be idle and everything is released.
func (r *retirement) drain(force bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := r.batch
	if force {
		max = 0
	}
	r.queue.Drain(max, func(e retiree) { r.waiting = append(r.waiting, e) })
	n := 0
	kept := r.waiting[:0]
	for _, e := range r.waiting {
		if force || e.ready() {
			e.fn()
			n++
			continue
		}
		kept = append(kept, e)
	}
	clear(r.waiting[len(kept):])
	r.waiting = kept
	return n
}

// pending returns how many releases are still waiting.
func (r *retirement) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiting) + r.queue.Len()
}

// lifetime defers the release of a parent object until it is destroyed and
// its last child (a view) is gone.
type lifetime struct {
	children  atomic.Int32
	destroyed atomic.Bool
	released  atomic.Bool
}

// ref adds a child. It fails once the parent is destroyed.
func (l *lifetime) ref() bool {
	l.children.Add(1)
	if l.destroyed.Load() {
		l.children.Add(-1)
		return false
	}
	return true
}

func (l *lifetime) unref(release func()) {
	if l.children.Add(-1) == 0 && l.destroyed.Load() {
		l.once(release)
	}
}

func (l *lifetime) destroy(release func()) {
	if l.destroyed.Swap(true) {
		return
	}
	if l.children.Load() == 0 {
		l.once(release)
	}
}

func (l *lifetime) once(release func()) {
	if !l.released.Swap(true) {
		release()
	}
}
