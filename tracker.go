package vkez

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

// accessState is the synchronization scope of the last accesses to a
// buffer or an image subresource. Reads since the last write accumulate in
// readStage and readAccess.
type accessState struct {
	layout      driver.ImageLayout
	writeStage  driver.PipelineStage
	writeAccess driver.Access
	readStage   driver.PipelineStage
	readAccess  driver.Access
}

// subresources is a range of mip levels and array layers.
type subresources struct {
	baseMip, levels   uint32
	baseLayer, layers uint32
}

func (r subresources) overlaps(o subresources) bool {
	return r.baseMip < o.baseMip+o.levels && o.baseMip < r.baseMip+r.levels &&
		r.baseLayer < o.baseLayer+o.layers && o.baseLayer < r.baseLayer+r.layers
}

func layersOf(l driver.ImageSubresourceLayers) subresources {
	return subresources{baseMip: l.MipLevel, levels: 1, baseLayer: l.BaseArrayLayer, layers: l.LayerCount}
}

// access is one use of a buffer or of a range of an image by a recorded
// command.
type access struct {
	buffer *Buffer
	image  *Image
	rng    subresources
	stage  driver.PipelineStage
	access driver.Access
	layout driver.ImageLayout
}

type bufferUse struct {
	buffer *Buffer
	stage  driver.PipelineStage
	access driver.Access
}

// subUse is the merged use of one image subresource.
type subUse struct {
	used   bool
	stage  driver.PipelineStage
	access driver.Access
	layout driver.ImageLayout
}

type imageUse struct {
	image *Image
	// subs is indexed like Image.states.
	subs []subUse
}

// accessSet merges the accesses of one command per resource. Accesses to
// the same subresource with different layouts conflict.
type accessSet struct {
	buffers []bufferUse
	images  []imageUse
}

func (s *accessSet) empty() bool { return s == nil || len(s.buffers)+len(s.images) == 0 }

func (s *accessSet) imageUse(img *Image) *imageUse {
	for i := range s.images {
		if s.images[i].image == img {
			return &s.images[i]
		}
	}
	s.images = append(s.images, imageUse{image: img, subs: make([]subUse, len(img.states))})
	return &s.images[len(s.images)-1]
}

// addBuffer merges a buffer access into the set. Buffers have no layout,
// so it cannot conflict.
func (s *accessSet) addBuffer(b *Buffer, stage driver.PipelineStage, acc driver.Access) {
	for i := range s.buffers {
		if s.buffers[i].buffer == b {
			s.buffers[i].stage |= stage
			s.buffers[i].access |= acc
			return
		}
	}
	s.buffers = append(s.buffers, bufferUse{buffer: b, stage: stage, access: acc})
}

// add merges a into the set and fails with ErrValidation on a layout
// conflict.
func (s *accessSet) add(a access) error {
	if a.buffer != nil {
		s.addBuffer(a.buffer, a.stage, a.access)
		return nil
	}
	img := a.image
	u := s.imageUse(img)
	for layer := a.rng.baseLayer; layer < a.rng.baseLayer+a.rng.layers; layer++ {
		for mip := a.rng.baseMip; mip < a.rng.baseMip+a.rng.levels; mip++ {
			su := &u.subs[layer*img.mipLevels+mip]
			if su.used && su.layout != a.layout {
				return errors.Wrapf(ErrValidation, "image %d mip %d layer %d used in layouts %d and %d by one command",
					img.id, mip, layer, su.layout, a.layout)
			}
			su.used = true
			su.stage |= a.stage
			su.access |= a.access
			su.layout = a.layout
		}
	}
	return nil
}

// absorb merges the accesses of a later command into s. Hazards between
// the two cannot be synchronized, so they are logged: a later layout
// conflict is dropped and a write merges with the earlier use.
func (s *accessSet) absorb(o *accessSet) {
	for _, b := range o.buffers {
		i := slices.IndexFunc(s.buffers, func(x bufferUse) bool { return x.buffer == b.buffer })
		if i < 0 {
			s.buffers = append(s.buffers, b)
			continue
		}
		if (s.buffers[i].access | b.access).HasWrite() {
			Logger().Warn("buffer written and accessed by draws of one render pass", "buffer", b.buffer.id)
		}
		s.buffers[i].stage |= b.stage
		s.buffers[i].access |= b.access
	}
	for _, iu := range o.images {
		u := s.imageUse(iu.image)
		warned := false
		for i, su := range iu.subs {
			if !su.used {
				continue
			}
			cur := &u.subs[i]
			if !cur.used {
				*cur = su
				continue
			}
			if !warned && (cur.layout != su.layout || (cur.access | su.access).HasWrite()) {
				Logger().Warn("image hazard between draws of one render pass", "image", iu.image.id,
					"layout", cur.layout, "later", su.layout)
				warned = true
			}
			if cur.layout == su.layout {
				cur.stage |= su.stage
				cur.access |= su.access
			}
		}
	}
}

// firstUse returns the use of img within r by s, preferring the base
// subresource. whole reports whether every subresource of r is used.
func (s *accessSet) firstUse(img *Image, r subresources) (su subUse, whole, ok bool) {
	if s == nil {
		return subUse{}, false, false
	}
	for _, u := range s.images {
		if u.image != img {
			continue
		}
		whole = true
		for layer := r.baseLayer; layer < r.baseLayer+r.layers; layer++ {
			for mip := r.baseMip; mip < r.baseMip+r.levels; mip++ {
				x := u.subs[layer*img.mipLevels+mip]
				if !x.used {
					whole = false
					continue
				}
				if !ok {
					su, ok = x, true
				}
			}
		}
		return su, whole && ok, ok
	}
	return subUse{}, false, false
}

// scope is the source and destination of one barrier.
type scope struct {
	srcStage  driver.PipelineStage
	srcAccess driver.Access
	dstStage  driver.PipelineStage
	dstAccess driver.Access
	oldLayout driver.ImageLayout
	newLayout driver.ImageLayout
}

// transition returns the barrier needed before an access with stage, acc
// and layout to a resource in state st, and the state after the access.
// Reads after reads in covered stages need no barrier.
func transition(st accessState, stage driver.PipelineStage, acc driver.Access, layout driver.ImageLayout) (sc scope, next accessState, need bool) {
	layoutChange := st.layout != layout
	if !acc.HasWrite() && !layoutChange {
		next = st
		next.readStage |= stage
		next.readAccess |= acc
		if st.writeStage == 0 || (st.readStage&stage == stage && st.readAccess&acc == acc) {
			return scope{}, next, false
		}
		return scope{
			srcStage: st.writeStage, srcAccess: st.writeAccess,
			dstStage: stage, dstAccess: acc,
			oldLayout: layout, newLayout: layout,
		}, next, true
	}
	if acc.HasWrite() {
		next = accessState{layout: layout, writeStage: stage, writeAccess: acc & driver.AccessWriteMask}
	} else {
		next = accessState{layout: layout, writeStage: stage, readStage: stage, readAccess: acc}
	}
	src := st.writeStage | st.readStage
	if src == 0 && !layoutChange {
		return scope{}, next, false
	}
	if src == 0 {
		src = driver.StageTopOfPipe
	}
	return scope{
		srcStage: src, srcAccess: st.writeAccess | st.readAccess,
		dstStage: stage, dstAccess: acc,
		oldLayout: st.layout, newLayout: layout,
	}, next, true
}

// tracker holds the access state of every resource a command buffer
// touches while it is encoded. State is copied from the resources on first
// touch and written back by commit.
type tracker struct {
	buffers map[*Buffer]*accessState
	images  map[*Image][]accessState
}

func newTracker() *tracker {
	return &tracker{buffers: map[*Buffer]*accessState{}, images: map[*Image][]accessState{}}
}

func (t *tracker) buffer(b *Buffer) *accessState {
	st, ok := t.buffers[b]
	if !ok {
		b.stateMu.Lock()
		c := b.state
		b.stateMu.Unlock()
		st = &c
		t.buffers[b] = st
	}
	return st
}

func (t *tracker) image(img *Image) []accessState {
	st, ok := t.images[img]
	if !ok {
		img.stateMu.Lock()
		st = slices.Clone(img.states)
		img.stateMu.Unlock()
		t.images[img] = st
	}
	return st
}

// commit publishes the tracked state to the resources.
func (t *tracker) commit() {
	for b, st := range t.buffers {
		b.stateMu.Lock()
		b.state = *st
		b.stateMu.Unlock()
	}
	for img, st := range t.images {
		img.stateMu.Lock()
		copy(img.states, st)
		img.stateMu.Unlock()
	}
}

// apply updates the tracked state for the accesses of one command and
// returns the barrier that must precede it, or nil.
func (t *tracker) apply(s *accessSet) *driver.PipelineBarrier {
	if s.empty() {
		return nil
	}
	pb := &driver.PipelineBarrier{}
	for _, u := range s.buffers {
		st := t.buffer(u.buffer)
		sc, next, need := transition(*st, u.stage, u.access, driver.LayoutUndefined)
		*st = next
		if !need {
			continue
		}
		pb.SrcStage |= sc.srcStage
		pb.DstStage |= sc.dstStage
		pb.Buffers = append(pb.Buffers, driver.BufferBarrier{
			SrcAccess:      sc.srcAccess,
			DstAccess:      sc.dstAccess,
			SrcQueueFamily: driver.QueueFamilyIgnored,
			DstQueueFamily: driver.QueueFamilyIgnored,
			Buffer:         u.buffer.handle,
			Size:           driver.WholeSize,
		})
	}
	for _, u := range s.images {
		img := u.image
		states := t.image(img)
		scopes := make([]scope, len(u.subs))
		needs := make([]bool, len(u.subs))
		for i, su := range u.subs {
			if !su.used {
				continue
			}
			var next accessState
			scopes[i], next, needs[i] = transition(states[i], su.stage, su.access, su.layout)
			states[i] = next
			if needs[i] {
				pb.SrcStage |= scopes[i].srcStage
				pb.DstStage |= scopes[i].dstStage
			}
		}
		pb.Images = append(pb.Images, imageBarriers(img, scopes, needs)...)
	}
	if len(pb.Buffers)+len(pb.Images) == 0 {
		return nil
	}
	return pb
}

type mipRun struct {
	base, count uint32
	sc          scope
}

// imageBarriers coalesces per-subresource barriers into ranges: runs of
// mips with the same scope per layer, then consecutive layers with the
// same runs.
func imageBarriers(img *Image, scopes []scope, needs []bool) []driver.ImageBarrier {
	var out []driver.ImageBarrier
	emit := func(runs []mipRun, baseLayer, layers uint32) {
		for _, r := range runs {
			out = append(out, driver.ImageBarrier{
				SrcAccess:      r.sc.srcAccess,
				DstAccess:      r.sc.dstAccess,
				OldLayout:      r.sc.oldLayout,
				NewLayout:      r.sc.newLayout,
				SrcQueueFamily: driver.QueueFamilyIgnored,
				DstQueueFamily: driver.QueueFamilyIgnored,
				Image:          img.handle,
				Range: driver.ImageSubresourceRange{
					Aspect:         img.format.Aspect(),
					BaseMipLevel:   r.base,
					LevelCount:     r.count,
					BaseArrayLayer: baseLayer,
					LayerCount:     layers,
				},
			})
		}
	}
	var prev []mipRun
	prevBase, prevCount := uint32(0), uint32(0)
	for layer := uint32(0); layer < img.arrayLayers; layer++ {
		var runs []mipRun
		for mip := uint32(0); mip < img.mipLevels; mip++ {
			i := layer*img.mipLevels + mip
			if !needs[i] {
				continue
			}
			if n := len(runs); n > 0 && runs[n-1].base+runs[n-1].count == mip && runs[n-1].sc == scopes[i] {
				runs[n-1].count++
				continue
			}
			runs = append(runs, mipRun{base: mip, count: 1, sc: scopes[i]})
		}
		if len(runs) > 0 && prevCount > 0 && prevBase+prevCount == layer && slices.Equal(runs, prev) {
			prevCount++
			continue
		}
		if prevCount > 0 {
			emit(prev, prevBase, prevCount)
		}
		prev, prevBase, prevCount = runs, layer, 0
		if len(runs) > 0 {
			prevCount = 1
		}
	}
	if prevCount > 0 {
		emit(prev, prevBase, prevCount)
	}
	return out
}
