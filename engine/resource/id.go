package resource

import (
	"strconv"
	"sync/atomic"
)

// ID is the process-unique identity of a CPU resource and the key of the GPU resource cache.
// IDs increase monotonically and are never reused by the allocator that produced them.
type ID uint64

// String formats the id in decimal.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// IDAllocator hands out resource ids. A Store owns exactly one allocator; there is no
// process-wide counter.
type IDAllocator interface {
	// Next returns the next unused id.
	//
	// Returns:
	//   - ID: an id greater than every id previously returned by this allocator
	Next() ID

	// Peek returns the id that the next call to Next will produce, without consuming it.
	//
	// Returns:
	//   - ID: the next id
	Peek() ID
}

type sequentialAllocator struct {
	next atomic.Uint64
}

var _ IDAllocator = &sequentialAllocator{}

// NewIDAllocator creates an allocator whose first id is start.
//
// Parameters:
//   - start: the first id to hand out
//
// Returns:
//   - IDAllocator: the allocator
func NewIDAllocator(start ID) IDAllocator {
	a := &sequentialAllocator{}
	a.next.Store(uint64(start))
	return a
}

func (a *sequentialAllocator) Next() ID {
	return ID(a.next.Add(1) - 1)
}

func (a *sequentialAllocator) Peek() ID {
	return ID(a.next.Load())
}
