package loader

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithImageWorkers bounds how many images are decoded concurrently during an import.
//
// Parameters:
//   - n: the worker count; values below 1 mean 1
//
// Returns:
//   - LoaderBuilderOption: a function that applies the worker option to a loader
func WithImageWorkers(n int) LoaderBuilderOption {
	return func(l *loader) {
		l.workers = max(n, 1)
	}
}
