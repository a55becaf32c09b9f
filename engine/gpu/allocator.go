package gpu

import (
	"errors"
	"fmt"
	"sort"
)

// ErrOutOfDeviceMemory is returned when an allocator has no gap large enough for a request.
var ErrOutOfDeviceMemory = errors.New("out of device memory")

// Allocation is a range of device address space.
type Allocation struct {
	Offset uint64
	Size   uint64
}

// End returns the first address past the allocation.
func (a Allocation) End() uint64 {
	return a.Offset + a.Size
}

func (a Allocation) String() string {
	return fmt.Sprintf("[%#x +%d]", a.Offset, a.Size)
}

// Allocator hands out aligned, non-overlapping ranges of a linear address space using first fit.
// Backends use it to assign buffer device addresses; the wgpu backend also uses the ranges as
// offsets into its storage heap. Address 0 is never handed out so it can mean "no buffer".
//
// An Allocator is not safe for concurrent use.
type Allocator struct {
	base   uint64
	limit  uint64
	allocs []Allocation
	used   uint64
}

// NewAllocator creates an allocator over [base, base+size). A zero base is bumped to 1.
//
// Parameters:
//   - base: the first usable address
//   - size: the size of the address space in bytes
//
// Returns:
//   - *Allocator: the allocator
func NewAllocator(base, size uint64) *Allocator {
	if base == 0 {
		base = 1
	}
	return &Allocator{base: base, limit: base + size}
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	if m := v % align; m != 0 {
		return v - m + align
	}
	return v
}

// Allocate reserves size bytes aligned to align.
//
// Parameters:
//   - size: bytes to reserve (must be > 0)
//   - align: alignment of the returned offset (0 or 1 for none)
//
// Returns:
//   - Allocation: the reserved range
//   - error: ErrOutOfDeviceMemory if no gap fits, or an error for zero-sized requests
func (p *Allocator) Allocate(size, align uint64) (Allocation, error) {
	if size == 0 {
		return Allocation{}, errors.New("zero-sized allocation")
	}

	cursor := p.base
	for i, a := range p.allocs {
		start := alignUp(cursor, align)
		if start+size <= a.Offset {
			na := Allocation{Offset: start, Size: size}
			p.allocs = append(p.allocs[:i], append([]Allocation{na}, p.allocs[i:]...)...)
			p.used += size
			return na, nil
		}
		cursor = a.End()
	}

	start := alignUp(cursor, align)
	if start+size > p.limit {
		return Allocation{}, fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrOutOfDeviceMemory, size, p.used, p.limit-p.base)
	}
	na := Allocation{Offset: start, Size: size}
	p.allocs = append(p.allocs, na)
	p.used += size
	return na, nil
}

// Free releases a range previously returned by Allocate. Unknown ranges are ignored.
func (p *Allocator) Free(a Allocation) {
	i := sort.Search(len(p.allocs), func(i int) bool { return p.allocs[i].Offset >= a.Offset })
	if i < len(p.allocs) && p.allocs[i] == a {
		p.allocs = append(p.allocs[:i], p.allocs[i+1:]...)
		p.used -= a.Size
	}
}

// Used returns the number of bytes currently allocated.
func (p *Allocator) Used() uint64 {
	return p.used
}

// HighWater returns the end of the highest live allocation, or the base when empty.
func (p *Allocator) HighWater() uint64 {
	if len(p.allocs) == 0 {
		return p.base
	}
	return p.allocs[len(p.allocs)-1].End()
}
