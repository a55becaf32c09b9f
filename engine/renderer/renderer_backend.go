package renderer

// RendererBackendType identifies the device implementation the Renderer drives.
type RendererBackendType int

const (
	// BackendTypeSoftware selects the CPU path tracer. It needs no GPU and is the default.
	BackendTypeSoftware RendererBackendType = iota

	// BackendTypeWGPU selects the WebGPU compute backend.
	BackendTypeWGPU
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeSoftware:
		return "software"
	case BackendTypeWGPU:
		return "wgpu"
	default:
		return "unknown"
	}
}

// ParseBackendType maps a configuration name to a backend.
//
// Parameters:
//   - name: "software" or "wgpu"
//
// Returns:
//   - RendererBackendType: the backend
//   - bool: false for an unknown name
func ParseBackendType(name string) (RendererBackendType, bool) {
	switch name {
	case "software", "":
		return BackendTypeSoftware, true
	case "wgpu":
		return BackendTypeWGPU, true
	default:
		return BackendTypeSoftware, false
	}
}
