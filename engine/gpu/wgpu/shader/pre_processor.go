// Package shader expands @tracey: annotations in WGSL source. Annotations inject struct
// definitions and constants owned by Go code and generate the binding declarations the
// compute bind group layout is derived from.
package shader

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/tracey/engine/gpu"
)

// registryEntry pairs a WGSL struct source with the type name it declares.
type registryEntry struct {
	Source string
	Type   string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	structRegistry       map[AnnotationArg]registryEntry
	constRegistry        map[string]uint32
	addressSpaceRegistry map[AnnotationArg]string

	// declarations is reset at the start of each Process call.
	declarations []Annotation
}

// PreProcessor rewrites annotated WGSL source.
type PreProcessor interface {
	// Process replaces every annotation in source with its WGSL output. Include annotations
	// become the registered struct source, const annotations a u32 constant and group
	// annotations a binding declaration, which is also recorded for Declarations.
	//
	// Parameters:
	//   - source: the annotated WGSL source
	//
	// Returns:
	//   - string: the expanded source
	//   - error: an error for malformed annotations, unknown keys, a struct included twice or
	//     a group/binding pair declared twice
	Process(source string) (string, error)

	// Declarations returns the group annotations of the last Process call in source order.
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the camera struct registered.
//
// Parameters:
//   - options: registrations for the structs and constants a kernel refers to
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor
func NewPreProcessor(options ...PreProcessorOption) PreProcessor {
	p := &preProcessor{
		structRegistry: map[AnnotationArg]registryEntry{
			AnnotationArgCamera: {Source: gpu.GPUCameraUniformSource, Type: "CameraUniform"},
		},
		constRegistry: map[string]uint32{},
		addressSpaceRegistry: map[AnnotationArg]string{
			AnnotationArgStorageUniform:   "var<uniform>",
			AnnotationArgStorageRead:      "var<storage, read>",
			AnnotationArgStorageReadWrite: "var<storage, read_write>",
		},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = nil

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	included := map[AnnotationArg]bool{}
	bound := map[[2]int]int{}

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			entry, ok := p.structRegistry[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown struct %q", a.Line, a.Args[0])
			}
			if included[a.Args[0]] {
				return "", fmt.Errorf("line %d: struct %q included twice", a.Line, a.Args[0])
			}
			included[a.Args[0]] = true
			out = append(out, strings.TrimRight(entry.Source, "\n"))
		case annotationTypeConst:
			name := string(a.Args[0])
			v, ok := p.constRegistry[name]
			if !ok {
				return "", fmt.Errorf("line %d: unknown constant %q", a.Line, name)
			}
			out = append(out, fmt.Sprintf("const %s: u32 = %du;", name, v))
		case AnnotationTypeBindingGroup:
			key := [2]int{*a.Group, *a.Binding}
			if prev, ok := bound[key]; ok {
				return "", fmt.Errorf("line %d: group %d binding %d already declared on line %d", a.Line, key[0], key[1], prev)
			}
			bound[key] = a.Line

			wgslType, err := p.resolveType(a.Args[2])
			if err != nil {
				return "", fmt.Errorf("line %d: %w", a.Line, err)
			}
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;",
				*a.Group, *a.Binding, p.addressSpaceRegistry[a.Args[0]], a.Args[1], wgslType))
			p.declarations = append(p.declarations, *a)
		}
	}
	return strings.Join(out, "\n"), nil
}

// resolveType maps a group type argument to its WGSL spelling.
func (p *preProcessor) resolveType(t AnnotationArg) (string, error) {
	elem, isArray := elementType(t)
	var name string
	if slices.Contains(scalarTypes, elem) {
		name = string(elem)
	} else if entry, ok := p.structRegistry[elem]; ok {
		name = entry.Type
	} else {
		return "", fmt.Errorf("unknown type %q", elem)
	}
	if isArray {
		return "array<" + name + ">", nil
	}
	return name, nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
