package software

import "runtime"

// DeviceBuilderOption is a functional option for configuring a software device.
type DeviceBuilderOption func(*deviceImpl)

// WithWorkers sets the number of worker goroutines used by TraceRays.
//
// Parameters:
//   - n: the worker count; values below 1 are clamped to 1
//
// Returns:
//   - DeviceBuilderOption: the option
func WithWorkers(n int) DeviceBuilderOption {
	return func(d *deviceImpl) {
		d.workers = max(n, 1)
	}
}

// WithAddressSpace sets the size of the device address space in bytes.
func WithAddressSpace(size uint64) DeviceBuilderOption {
	return func(d *deviceImpl) {
		d.addressSpace = size
	}
}

// WithTileSize sets the edge length of the square tiles TraceRays hands to workers.
func WithTileSize(n uint32) DeviceBuilderOption {
	return func(d *deviceImpl) {
		d.tileSize = max(n, 1)
	}
}

// WithSeed sets the seed of the per-tile random streams. Renders with the same seed, scene
// and batch are identical.
func WithSeed(seed uint64) DeviceBuilderOption {
	return func(d *deviceImpl) {
		d.seed = seed
	}
}

func defaultWorkers() int {
	return max(runtime.GOMAXPROCS(0), 1)
}
