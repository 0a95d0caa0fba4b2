// Package intern provides the concurrent intern map shared by the object
// caches. Lookups take a shared lock; misses create the value once per key
// even when several goroutines miss at the same time.
package intern

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/celer/vkez/internal/hashkey"
)

type entry[V any] struct {
	key string
	val V
}

// Map interns values of type V under canonical keys produced by
// hashkey.Builder. Entries are bucketed by the 64-bit hash of the key and
// compared on the full key, so hash collisions never alias.
type Map[V any] struct {
	mu      sync.RWMutex
	buckets map[uint64][]entry[V]
	n       int
	group   singleflight.Group
}

// Get returns the value interned under key.
func (m *Map[V]) Get(key string) (V, bool) {
	h := hashkey.Sum(key)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.buckets[h] {
		if e.key == key {
			return e.val, true
		}
	}
	var zero V
	return zero, false
}

// GetOrCreate returns the value interned under key, calling create on a
// miss. created reports whether this call created the value.
func (m *Map[V]) GetOrCreate(key string, create func() (V, error)) (val V, created bool, err error) {
	if v, ok := m.Get(key); ok {
		return v, false, nil
	}
	h := hashkey.Sum(key)
	res, err, shared := m.group.Do(strconv.FormatUint(h, 16)+key, func() (any, error) {
		if v, ok := m.Get(key); ok {
			return v, nil
		}
		v, err := create()
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.buckets == nil {
			m.buckets = map[uint64][]entry[V]{}
		}
		m.buckets[h] = append(m.buckets[h], entry[V]{key: key, val: v})
		m.n++
		m.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), !shared, nil
}

// Delete removes key and returns the value it held.
func (m *Map[V]) Delete(key string) (V, bool) {
	h := hashkey.Sum(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.buckets[h]
	for i, e := range b {
		if e.key == key {
			b[i] = b[len(b)-1]
			b = b[:len(b)-1]
			if len(b) == 0 {
				delete(m.buckets, h)
			} else {
				m.buckets[h] = b
			}
			m.n--
			return e.val, true
		}
	}
	var zero V
	return zero, false
}

// DeleteFunc removes every entry for which del returns true and returns the
// removed values.
func (m *Map[V]) DeleteFunc(del func(V) bool) []V {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []V
	for h, b := range m.buckets {
		kept := b[:0]
		for _, e := range b {
			if del(e.val) {
				out = append(out, e.val)
				m.n--
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(m.buckets, h)
		} else {
			m.buckets[h] = kept
		}
	}
	return out
}

// Len returns the number of interned values.
func (m *Map[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.n
}

// Range calls f for every value until f returns false.
func (m *Map[V]) Range(f func(V) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.buckets {
		for _, e := range b {
			if !f(e.val) {
				return
			}
		}
	}
}
