package shader

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix marks an annotation inside a WGSL line comment.
const annotationPrefix = "@tracey:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects the WGSL source of a registered struct at the annotation
	// site. It produces no declaration.
	//
	// Syntax: //@tracey:include <struct_key>
	//
	// Example: //@tracey:include camera
	annotationTypeInclude AnnotationType = "include"

	// annotationTypeConst emits a module-scope u32 constant whose value is registered on the Go
	// side, so record strides and launch sizes are defined once.
	//
	// Syntax: //@tracey:const <NAME>
	//
	// Example: //@tracey:const NODE_WORDS
	annotationTypeConst AnnotationType = "const"

	// AnnotationTypeBindingGroup generates a @group/@binding variable declaration and records
	// it in the declarations list the bind group layout is built from.
	//
	// Syntax: //@tracey:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: //@tracey:group 0 1 storage_uniform params params
	AnnotationTypeBindingGroup AnnotationType = "group"
)

// Annotation is one parsed annotation.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the arguments. The contents depend on Type:
	//   - include: [0] = struct key
	//   - const:   [0] = constant name
	//   - group:   [0] = address space, [1] = var name, [2] = type, either a struct key, a
	//     scalar, or array<...> of one of those
	Args []AnnotationArg

	// Line is the 1-based source line, used for error reporting.
	Line int

	// Group is the @group index of a group annotation; nil otherwise.
	Group *int

	// Binding is the @binding index of a group annotation; nil otherwise.
	Binding *int
}

// AddressSpace returns the address space argument of a group annotation.
func (a Annotation) AddressSpace() AnnotationArg {
	if a.Type != AnnotationTypeBindingGroup {
		return ""
	}
	return a.Args[0]
}

// AnnotationArg is a typed annotation argument.
type AnnotationArg string

// Struct keys registered by NewPreProcessor. Devices register their own with WithStruct.
const (
	// AnnotationArgCamera identifies the CameraUniform struct from gpu.GPUCameraUniformSource.
	AnnotationArgCamera AnnotationArg = "camera"
)

// Address spaces accepted by group annotations.
const (
	// AnnotationArgStorageUniform maps to var<uniform>.
	AnnotationArgStorageUniform AnnotationArg = "storage_uniform"

	// AnnotationArgStorageRead maps to var<storage, read>.
	AnnotationArgStorageRead AnnotationArg = "storage_read"

	// AnnotationArgStorageReadWrite maps to var<storage, read_write>.
	AnnotationArgStorageReadWrite AnnotationArg = "storage_read_write"
)

var validAddressSpaces = []AnnotationArg{
	AnnotationArgStorageUniform,
	AnnotationArgStorageRead,
	AnnotationArgStorageReadWrite,
}

// scalarTypes are group types that need no registered struct.
var scalarTypes = []AnnotationArg{"u32", "i32", "f32", "vec4<f32>", "vec4<u32>"}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// parseAnnotation parses a single line of WGSL source. Lines without the prefix yield nil
// and no error. Type keys are only checked for shape here; the pre-processor resolves them
// against its registry.
//
// Parameters:
//   - line: the raw source line
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case annotationTypeInclude, annotationTypeConst:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: %s annotation requires exactly one argument", lineNum, args[0])
		}
		if !identifier.MatchString(args[1]) {
			return nil, fmt.Errorf("line %d: invalid name %q in %s annotation", lineNum, args[1], args[0])
		}
		return &Annotation{
			Type: AnnotationType(args[0]),
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case AnnotationTypeBindingGroup:
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: group annotation requires five arguments (group, binding, address space, name, type)", lineNum)
		}
		group, err := strconv.Atoi(args[1])
		if err != nil || group < 0 {
			return nil, fmt.Errorf("line %d: invalid group number %q", lineNum, args[1])
		}
		binding, err := strconv.Atoi(args[2])
		if err != nil || binding < 0 {
			return nil, fmt.Errorf("line %d: invalid binding number %q", lineNum, args[2])
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q", lineNum, args[3])
		}
		if !identifier.MatchString(args[4]) {
			return nil, fmt.Errorf("line %d: invalid variable name %q", lineNum, args[4])
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown annotation type %q", lineNum, args[0])
	}
}

// elementType strips one array<...> wrapper.
func elementType(t AnnotationArg) (AnnotationArg, bool) {
	inner, ok := strings.CutPrefix(string(t), "array<")
	if !ok {
		return t, false
	}
	return AnnotationArg(strings.TrimSuffix(inner, ">")), true
}
