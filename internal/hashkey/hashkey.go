// Package hashkey encodes logical cache keys into a canonical byte string and
// hashes them to 64 bits.
package hashkey

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Builder accumulates a key. The zero value is ready to use.
type Builder struct {
	buf []byte
}

func (b *Builder) U8(v uint8) *Builder {
	b.buf = append(b.buf, v)
	return b
}

func (b *Builder) U32(v uint32) *Builder {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
	return b
}

func (b *Builder) U64(v uint64) *Builder {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, v)
	return b
}

func (b *Builder) I32(v int32) *Builder { return b.U32(uint32(v)) }

func (b *Builder) F32(v float32) *Builder { return b.U32(math.Float32bits(v)) }

func (b *Builder) Bool(v bool) *Builder {
	if v {
		return b.U8(1)
	}
	return b.U8(0)
}

// String appends s with a length prefix so that adjacent strings cannot
// alias.
func (b *Builder) String(s string) *Builder {
	b.U32(uint32(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

// Len appends a slice length; use before the elements of a variable-length
// list.
func (b *Builder) Len(n int) *Builder { return b.U32(uint32(n)) }

// Key returns the canonical encoding.
func (b *Builder) Key() string { return string(b.buf) }

// Sum returns the 64-bit hash of the encoding.
func (b *Builder) Sum() uint64 { return xxhash.Sum64(b.buf) }

// Reset empties the builder, keeping its storage.
func (b *Builder) Reset() { b.buf = b.buf[:0] }

// Sum hashes an already encoded key.
func Sum(key string) uint64 { return xxhash.Sum64String(key) }
