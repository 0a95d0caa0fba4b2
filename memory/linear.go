package memory

import "fmt"

// span is a sub-allocated byte range of a block.
type span struct {
	Offset uint64
	Size   uint64
}

func (s *span) String() string {
	return fmt.Sprintf("[%d %d]", s.Offset, s.Size)
}

// linearAllocator hands out ranges of a fixed-size block first-fit, keeping
// live spans sorted by offset.
type linearAllocator struct {
	Size  uint64
	spans []*span
}

func alignUp(a, align uint64) uint64 {
	if align <= 1 {
		return a
	}
	m := a % align
	if m == 0 {
		return a
	}
	return a - m + align
}

func (p *linearAllocator) free(fs *span) bool {
	for i, s := range p.spans {
		if s == fs {
			p.spans = append(p.spans[:i], p.spans[i+1:]...)
			return true
		}
	}
	return false
}

func (p *linearAllocator) allocate(size, align uint64) *span {
	if size == 0 || size > p.Size {
		return nil
	}
	insert := func(i int, off uint64) *span {
		ns := &span{Offset: off, Size: size}
		p.spans = append(p.spans, nil)
		copy(p.spans[i+1:], p.spans[i:])
		p.spans[i] = ns
		return ns
	}
	prevEnd := uint64(0)
	for i, s := range p.spans {
		off := alignUp(prevEnd, align)
		if off+size <= s.Offset {
			return insert(i, off)
		}
		prevEnd = s.Offset + s.Size
	}
	off := alignUp(prevEnd, align)
	if off+size <= p.Size {
		return insert(len(p.spans), off)
	}
	return nil
}

func (p *linearAllocator) used() uint64 {
	var n uint64
	for _, s := range p.spans {
		n += s.Size
	}
	return n
}

func (p *linearAllocator) empty() bool { return len(p.spans) == 0 }

func (p *linearAllocator) String() string {
	return fmt.Sprintf("%v", p.spans)
}
