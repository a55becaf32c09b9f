package wgpu

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/tracey/engine/gpu"
)

const (
	heapBase      = 256
	heapAlignment = 16
)

// span is a dirty byte range of the heap, [start, end).
type span struct {
	start uint64
	end   uint64
}

// heap is the host copy of the single storage buffer that holds every buffer, image and
// acceleration structure of the device. Device addresses are byte offsets into it, so the
// kernel dereferences an address by dividing it by four.
//
// A heap is not safe for concurrent use.
type heap struct {
	data  []byte
	alloc *gpu.Allocator
	dirty []span
}

func newHeap(size uint64) *heap {
	return &heap{alloc: gpu.NewAllocator(heapBase, size-heapBase)}
}

// allocate reserves size bytes, rounded up to whole words, zeroes them and marks them dirty.
func (h *heap) allocate(size uint64) (gpu.Allocation, error) {
	a, err := h.alloc.Allocate(alignWord(size), heapAlignment)
	if err != nil {
		return a, err
	}
	if end := a.End(); end > uint64(len(h.data)) {
		h.data = append(h.data, make([]byte, end-uint64(len(h.data)))...)
	}
	clear(h.data[a.Offset:a.End()])
	h.mark(a.Offset, a.End())
	return a, nil
}

func (h *heap) free(a gpu.Allocation) {
	h.alloc.Free(a)
}

// write copies data into the heap at addr and marks the range dirty.
func (h *heap) write(addr uint64, data []byte) error {
	end := addr + uint64(len(data))
	if addr < heapBase || end > uint64(len(h.data)) {
		return fmt.Errorf("heap write %#x+%d is out of range", addr, len(data))
	}
	copy(h.data[addr:], data)
	h.mark(addr, end)
	return nil
}

// bytes returns the n bytes at addr without copying.
func (h *heap) bytes(addr, n uint64) ([]byte, error) {
	if addr < heapBase || addr+n > uint64(len(h.data)) {
		return nil, fmt.Errorf("heap read %#x+%d is out of range", addr, n)
	}
	return h.data[addr : addr+n], nil
}

func (h *heap) mark(start, end uint64) {
	if end > start {
		h.dirty = append(h.dirty, span{start: start, end: end})
	}
}

// take returns the dirty ranges widened to whole words, sorted and merged, and resets them.
func (h *heap) take() []span {
	if len(h.dirty) == 0 {
		return nil
	}
	spans := h.dirty
	h.dirty = nil
	for i := range spans {
		spans[i].start &^= 3
		spans[i].end = min(alignWord(spans[i].end), uint64(len(h.data)))
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			last.end = max(last.end, s.end)
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// extent is the number of heap bytes the device buffer must cover.
func (h *heap) extent() uint64 {
	return alignWord(h.alloc.HighWater())
}

func alignWord(v uint64) uint64 {
	return (v + 3) &^ 3
}

// word converts a heap byte address into the u32 index the kernel uses.
func word(addr uint64) uint32 {
	return uint32(addr / 4)
}
