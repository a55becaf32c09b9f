package loader

import (
	"io"

	"github.com/Carmen-Shannon/tracey/engine/resource"
)

// loaderBackend is the format-specific half of a Loader. Implementations parse a scene file
// and add its resources to the store.
type loaderBackend interface {
	// Import parses the file at path and adds its resources to store.
	//
	// Parameters:
	//   - path: the file path to load
	//   - store: the store receiving the resources
	//
	// Returns:
	//   - *Result: the imported ids and scene graph
	//   - error: error if loading fails
	Import(path string, store resource.Store) (*Result, error)

	// ImportReader imports a scene from a reader stream. External URIs resolve relative to the
	// directory of name.
	//
	// Parameters:
	//   - name: the origin recorded on created resources
	//   - r: the reader providing scene data
	//   - isGLB: true if the reader provides GLB binary data, false for text-based formats
	//   - store: the store receiving the resources
	//
	// Returns:
	//   - *Result: the imported ids and scene graph
	//   - error: error if loading fails
	ImportReader(name string, r io.Reader, isGLB bool, store resource.Store) (*Result, error)

	// Extensions lists the lower-case file extensions the backend reads.
	Extensions() []string
}
