package resource

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/tracey"
)

// DefaultMaterialName is the display name of the material created with every Store.
const DefaultMaterialName = "Default Material"

type storeImpl struct {
	ids       IDAllocator
	resources map[ID]Resource
	defaultID ID
}

// Store holds the CPU-side resources of a session. Every store is created with a default
// material, which is the material used for meshes that do not name one.
//
// A Store is not safe for concurrent use; it is owned by the model goroutine.
type Store interface {
	// AddMesh validates and stores mesh geometry under a new id.
	//
	// Parameters:
	//   - origin: provenance tag (file path, "builtin:cube", ...)
	//   - name: display name
	//   - data: the geometry; the store keeps a copy
	//
	// Returns:
	//   - Resource: the stored mesh resource
	//   - error: a wrapped ErrInvalidMesh if the geometry is inconsistent
	AddMesh(origin, name string, data *MeshData) (Resource, error)

	// AddTexture validates and stores RGBA8 pixels under a new id.
	//
	// Parameters:
	//   - origin: provenance tag
	//   - name: display name
	//   - data: the pixels; the store keeps a copy
	//
	// Returns:
	//   - Resource: the stored texture resource
	//   - error: a wrapped ErrInvalidTexture if the pixel data does not match the size
	AddTexture(origin, name string, data *TextureData) (Resource, error)

	// AddMaterial stores material parameters under a new id. Every texture map must refer to a
	// texture already in this store.
	//
	// Parameters:
	//   - origin: provenance tag
	//   - name: display name
	//   - data: the material parameters
	//
	// Returns:
	//   - Resource: the stored material resource
	//   - error: a wrapped ErrInvalidMaterial for dangling texture references
	AddMaterial(origin, name string, data MaterialData) (Resource, error)

	// Get looks up a resource of any kind.
	//
	// Parameters:
	//   - id: the resource id
	//
	// Returns:
	//   - Resource: the resource, or the zero Resource
	//   - bool: false if no resource has this id
	Get(id ID) (Resource, bool)

	// Mesh looks up a mesh resource. Returns false for unknown ids and for non-mesh resources.
	Mesh(id ID) (Resource, bool)

	// Texture looks up a texture resource. Returns false for unknown ids and for non-texture resources.
	Texture(id ID) (Resource, bool)

	// Material looks up a material resource. Returns false for unknown ids and for non-material resources.
	Material(id ID) (Resource, bool)

	// DefaultMaterialID returns the well-known id of the material created with the store.
	DefaultMaterialID() ID

	// Resources lists every resource of the given kind in ascending id order.
	//
	// Parameters:
	//   - kind: the kind to list
	//
	// Returns:
	//   - []Resource: the resources
	Resources(kind Kind) []Resource

	// Len returns the number of stored resources, the default material included.
	Len() int
}

var _ Store = &storeImpl{}

// NewStore creates a Store and its default material.
// The default material receives the first id of the allocator.
//
// Parameters:
//   - options: functional options to configure the store
//
// Returns:
//   - Store: the new store
func NewStore(options ...StoreBuilderOption) Store {
	s := &storeImpl{
		resources: make(map[ID]Resource),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.ids == nil {
		s.ids = NewIDAllocator(1)
	}

	def, err := s.AddMaterial("builtin:default", DefaultMaterialName, DefaultMaterialData())
	if err != nil {
		panic(fmt.Sprintf("failed to create default material: %v", err))
	}
	s.defaultID = def.ID()
	return s
}

func (s *storeImpl) AddMesh(origin, name string, data *MeshData) (Resource, error) {
	if err := data.Validate(); err != nil {
		return Resource{}, err
	}
	r := Resource{id: s.ids.Next(), kind: KindMesh, origin: origin, name: name, mesh: data.Clone()}
	s.resources[r.id] = r
	tracey.Logger().Debug("resource added", "kind", r.kind, "id", r.id, "name", name,
		"vertices", len(data.Positions), "triangles", data.TriangleCount())
	return r, nil
}

func (s *storeImpl) AddTexture(origin, name string, data *TextureData) (Resource, error) {
	if err := data.Validate(); err != nil {
		return Resource{}, err
	}
	r := Resource{id: s.ids.Next(), kind: KindTexture, origin: origin, name: name, texture: data.Clone()}
	s.resources[r.id] = r
	tracey.Logger().Debug("resource added", "kind", r.kind, "id", r.id, "name", name,
		"width", data.Width, "height", data.Height)
	return r, nil
}

func (s *storeImpl) AddMaterial(origin, name string, data MaterialData) (Resource, error) {
	for slot, ref := range data.TextureMaps() {
		if ref == nil {
			continue
		}
		if _, ok := s.Texture(*ref); !ok {
			return Resource{}, fmt.Errorf("%w: map %d references %s, which is not a texture", ErrInvalidMaterial, slot, *ref)
		}
	}
	r := Resource{id: s.ids.Next(), kind: KindMaterial, origin: origin, name: name, material: data.Clone()}
	s.resources[r.id] = r
	tracey.Logger().Debug("resource added", "kind", r.kind, "id", r.id, "name", name)
	return r, nil
}

func (s *storeImpl) Get(id ID) (Resource, bool) {
	r, ok := s.resources[id]
	return r, ok
}

func (s *storeImpl) Mesh(id ID) (Resource, bool) {
	return s.typed(id, KindMesh)
}

func (s *storeImpl) Texture(id ID) (Resource, bool) {
	return s.typed(id, KindTexture)
}

func (s *storeImpl) Material(id ID) (Resource, bool) {
	return s.typed(id, KindMaterial)
}

func (s *storeImpl) DefaultMaterialID() ID {
	return s.defaultID
}

func (s *storeImpl) Resources(kind Kind) []Resource {
	out := make([]Resource, 0)
	for _, r := range s.resources {
		if r.kind == kind {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *storeImpl) Len() int {
	return len(s.resources)
}

func (s *storeImpl) typed(id ID, kind Kind) (Resource, bool) {
	r, ok := s.resources[id]
	if !ok || r.kind != kind {
		return Resource{}, false
	}
	return r, true
}
