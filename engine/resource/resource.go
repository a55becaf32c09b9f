package resource

import "fmt"

// Kind tags the payload carried by a Resource.
type Kind int

const (
	KindMesh Kind = iota
	KindTexture
	KindMaterial
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindTexture:
		return "texture"
	case KindMaterial:
		return "material"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Resource is a CPU-side resource: exactly one of mesh, texture or material payload plus its id,
// provenance and display name. Resources are immutable once created by a Store; the payload
// accessors return deep copies, so changes to them never reach the store.
type Resource struct {
	id     ID
	kind   Kind
	origin string
	name   string

	mesh     *MeshData
	texture  *TextureData
	material *MaterialData
}

// ID returns the resource identity.
func (r Resource) ID() ID { return r.id }

// Kind returns which payload the resource carries.
func (r Resource) Kind() Kind { return r.kind }

// Origin returns the provenance tag, e.g. a file path or "scene.gltf#2".
func (r Resource) Origin() string { return r.origin }

// Name returns the display name.
func (r Resource) Name() string { return r.name }

// Mesh returns a copy of the mesh payload, or nil when the resource is not a mesh.
func (r Resource) Mesh() *MeshData { return r.mesh.Clone() }

// Texture returns a copy of the texture payload, or nil when the resource is not a texture.
func (r Resource) Texture() *TextureData { return r.texture.Clone() }

// Material returns a copy of the material payload, or nil when the resource is not a material.
func (r Resource) Material() *MaterialData { return r.material.Clone() }

// IsZero reports whether r is the zero Resource returned by failed lookups.
func (r Resource) IsZero() bool {
	return r.mesh == nil && r.texture == nil && r.material == nil
}
