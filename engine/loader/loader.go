// Package loader imports scene files and image files into a resource store.
package loader

import (
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/common"
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/Carmen-Shannon/tracey/engine/scene"
)

// ErrUnsupportedFormat is returned for files whose extension or content no backend reads.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// LoaderBackendType identifies the scene file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// Result describes one import: the created resource ids and the scene graph built from the
// file's node hierarchy.
type Result struct {
	Path      string
	Graph     scene.Graph
	Textures  []resource.ID
	Materials []resource.ID
	Meshes    []resource.ID
}

// loader is the implementation of the Loader interface.
type loader struct {
	store   resource.Store
	backend loaderBackend
	workers int
}

// Loader imports scene files into a resource store. The file format is abstracted behind a
// backend; resources are appended to the store on every call, so loading a file twice
// produces two sets of resources.
type Loader interface {
	// Load imports a scene file. The backend is checked against the file extension.
	//
	// Parameters:
	//   - path: the file path to the scene file
	//
	// Returns:
	//   - *Result: the imported ids and scene graph
	//   - error: ErrUnsupportedFormat, or an error describing the malformed input
	Load(path string) (*Result, error)

	// LoadReader imports a scene from a reader stream.
	//
	// Parameters:
	//   - name: the origin recorded on created resources
	//   - r: the reader providing scene data
	//   - isGLB: true if the reader provides GLB binary data
	//
	// Returns:
	//   - *Result: the imported ids and scene graph
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader, isGLB bool) (*Result, error)

	// ImportImage decodes an image file into a texture resource.
	//
	// Parameters:
	//   - path: the image file
	//
	// Returns:
	//   - resource.Resource: the texture resource
	//   - error: ErrUnsupportedFormat if the file is not a known image format
	ImportImage(path string) (resource.Resource, error)

	// Store returns the store resources are added to.
	Store() resource.Store
}

var _ Loader = &loader{}

// NewLoader creates a new Loader with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - store: the store imported resources are added to
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, store resource.Store, options ...LoaderBuilderOption) Loader {
	if store == nil {
		panic("loader: nil store")
	}
	l := &loader{
		store:   store,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, option := range options {
		option(l)
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = newGLTFImporter(l.workers)
	default:
		panic(fmt.Sprintf("loader: unknown backend type %d", backendType))
	}
	return l
}

func (l *loader) Store() resource.Store {
	return l.store
}

func (l *loader) Load(path string) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(l.backend.Extensions(), ext) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
	res, err := l.backend.Import(path, l.store)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	tracey.Logger().Debug("scene imported", "path", path, "meshes", len(res.Meshes), "textures", len(res.Textures), "materials", len(res.Materials), "nodes", res.Graph.Len())
	return res, nil
}

func (l *loader) LoadReader(name string, r io.Reader, isGLB bool) (*Result, error) {
	res, err := l.backend.ImportReader(name, r, isGLB, l.store)
	if err != nil {
		return nil, fmt.Errorf("failed to load from reader %q: %w", name, err)
	}
	return res, nil
}

func (l *loader) ImportImage(path string) (resource.Resource, error) {
	return ImportImage(l.store, path)
}

// ImportImage decodes the image file at path (png, jpeg, bmp, tiff or webp) and adds it to
// store as an RGBA8 texture named after the file.
//
// Parameters:
//   - store: the store receiving the texture
//   - path: the image file
//
// Returns:
//   - resource.Resource: the texture resource
//   - error: ErrUnsupportedFormat if no decoder recognises the file
func ImportImage(store resource.Store, path string) (resource.Resource, error) {
	staging, format, err := common.DecodeRGBAFile(path)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return resource.Resource{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
		}
		return resource.Resource{}, err
	}
	res, err := store.AddTexture(path, filepath.Base(path), &resource.TextureData{
		Width:  staging.Width,
		Height: staging.Height,
		Format: resource.TextureFormatRGBA8,
		Pixels: staging.Pixels,
	})
	if err != nil {
		return resource.Resource{}, err
	}
	tracey.Logger().Debug("image imported", "path", path, "format", format, "width", staging.Width, "height", staging.Height)
	return res, nil
}
