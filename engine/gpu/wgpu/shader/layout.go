package shader

import (
	"fmt"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"
)

// LayoutEntries builds the bind group layout entries of one group from the declarations of a
// Process call, ordered by binding.
//
// Parameters:
//   - declarations: the group annotations
//   - group: the group index to collect
//   - visibility: the shader stages the bindings are visible to
//
// Returns:
//   - []wgpu.BindGroupLayoutEntry: one buffer entry per declared binding
//   - error: an error if the group has no declarations
func LayoutEntries(declarations []Annotation, group int, visibility wgpu.ShaderStage) ([]wgpu.BindGroupLayoutEntry, error) {
	var entries []wgpu.BindGroupLayoutEntry
	for _, d := range declarations {
		if d.Type != AnnotationTypeBindingGroup || *d.Group != group {
			continue
		}
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    uint32(*d.Binding),
			Visibility: visibility,
			Buffer:     wgpu.BufferBindingLayout{Type: bufferBindingType(d.AddressSpace())},
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no bindings declared in group %d", group)
	}
	slices.SortFunc(entries, func(a, b wgpu.BindGroupLayoutEntry) int {
		return int(a.Binding) - int(b.Binding)
	})
	return entries, nil
}

func bufferBindingType(space AnnotationArg) wgpu.BufferBindingType {
	switch space {
	case AnnotationArgStorageUniform:
		return wgpu.BufferBindingTypeUniform
	case AnnotationArgStorageRead:
		return wgpu.BufferBindingTypeReadOnlyStorage
	default:
		return wgpu.BufferBindingTypeStorage
	}
}
