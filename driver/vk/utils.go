package vk

import (
	"sync"
	"time"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkez/driver"
)

var end = "\x00"
var endChar byte = '\x00'

// safeString null terminates s for the C side.
func safeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func safeStrings(list []string) []string {
	ret := make([]string, len(list))
	for i := range list {
		ret[i] = safeString(list[i])
	}
	return ret
}

// table maps the 64-bit handles handed out through package driver to the
// native objects behind them. The zero handle maps to the zero (null)
// object.
type table[H ~uint64, T any] struct {
	mu   sync.RWMutex
	next H
	m    map[H]T
}

func (t *table[H, T]) put(v T) H {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = map[H]T{}
	}
	t.next++
	t.m[t.next] = v
	return t.next
}

func (t *table[H, T]) get(h H) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.m[h]
}

func (t *table[H, T]) take(h H) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[h]
	delete(t.m, h)
	return v, ok
}

func (t *table[H, T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

func getAll[H ~uint64, T any](t *table[H, T], hs []H) []T {
	ret := make([]T, len(hs))
	for i, h := range hs {
		ret[i] = t.get(h)
	}
	return ret
}

// check turns a native result into a driver error.
func check(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	return driver.Result(ret)
}

func bool32(b bool) vk.Bool32 {
	if b {
		return vk.Bool32(vk.True)
	}
	return vk.Bool32(vk.False)
}

func timeout(d time.Duration) uint64 {
	if d < 0 {
		return vk.MaxUint64
	}
	return uint64(d)
}

func bytesOf(p unsafe.Pointer, n uint64) []byte {
	return unsafe.Slice((*byte)(p), n)
}

func ptr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

func extent2D(e driver.Extent2D) vk.Extent2D { return vk.Extent2D{Width: e.Width, Height: e.Height} }

func extent3D(e driver.Extent3D) vk.Extent3D {
	return vk.Extent3D{Width: e.Width, Height: e.Height, Depth: e.Depth}
}

func offset3D(o driver.Offset3D) vk.Offset3D { return vk.Offset3D{X: o.X, Y: o.Y, Z: o.Z} }

func rect2D(r driver.Rect2D) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.Offset.X, Y: r.Offset.Y},
		Extent: extent2D(r.Extent),
	}
}

func subresourceRange(r driver.ImageSubresourceRange) vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(r.Aspect),
		BaseMipLevel:   r.BaseMipLevel,
		LevelCount:     r.LevelCount,
		BaseArrayLayer: r.BaseArrayLayer,
		LayerCount:     r.LayerCount,
	}
}

func subresourceLayers(l driver.ImageSubresourceLayers) vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask:     vk.ImageAspectFlags(l.Aspect),
		MipLevel:       l.MipLevel,
		BaseArrayLayer: l.BaseArrayLayer,
		LayerCount:     l.LayerCount,
	}
}

func sharing(mode driver.SharingMode, families []uint32) (vk.SharingMode, uint32, []uint32) {
	if mode == driver.SharingConcurrent && len(families) > 1 {
		return vk.SharingModeConcurrent, uint32(len(families)), families
	}
	return vk.SharingModeExclusive, 0, nil
}

func clearValue(c driver.ClearValue, depth bool) vk.ClearValue {
	var v vk.ClearValue
	if depth {
		v.SetDepthStencil(c.Depth, c.Stencil)
	} else {
		v.SetColor(c.Color[:])
	}
	return v
}
