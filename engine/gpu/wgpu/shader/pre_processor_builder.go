package shader

// PreProcessorOption is a functional option for configuring a PreProcessor.
type PreProcessorOption func(*preProcessor)

// WithStruct registers a struct for include annotations and group types.
//
// Parameters:
//   - key: the annotation argument naming the struct
//   - source: the WGSL struct definition
//   - typeName: the WGSL type name the source declares
//
// Returns:
//   - PreProcessorOption: option function to apply
func WithStruct(key AnnotationArg, source, typeName string) PreProcessorOption {
	return func(p *preProcessor) {
		p.structRegistry[key] = registryEntry{Source: source, Type: typeName}
	}
}

// WithConstant registers the value emitted for a const annotation.
func WithConstant(name string, value uint32) PreProcessorOption {
	return func(p *preProcessor) {
		p.constRegistry[name] = value
	}
}
