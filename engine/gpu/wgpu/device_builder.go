package wgpu

// DeviceBuilderOption is a functional option for configuring a wgpu device.
type DeviceBuilderOption func(*deviceImpl)

// WithForceFallbackAdapter requests the software fallback adapter (for example lavapipe) instead
// of a hardware one.
//
// Parameters:
//   - force: whether to force the fallback adapter
//
// Returns:
//   - DeviceBuilderOption: the option
func WithForceFallbackAdapter(force bool) DeviceBuilderOption {
	return func(d *deviceImpl) {
		d.forceFallbackAdapter = force
	}
}

// WithHeapSize sets the size of the device heap in bytes. Sizes above the adapter's storage
// binding limit make NewDevice fail.
func WithHeapSize(size uint64) DeviceBuilderOption {
	return func(d *deviceImpl) {
		d.heapSize = max(size, 1<<20)
	}
}

// WithSeed sets the seed mixed into the kernel's per-pixel random streams.
func WithSeed(seed uint64) DeviceBuilderOption {
	return func(d *deviceImpl) {
		d.seed = seed
	}
}
