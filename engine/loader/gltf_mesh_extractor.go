package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/tracey/common"
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
)

// gltfPrimitiveRef is one imported primitive: the mesh resource and the material it renders with.
type gltfPrimitiveRef struct {
	Mesh     resource.ID
	Material resource.ID
}

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	parser    gltfParser
	store     resource.Store
	origin    string
	materials []resource.ID

	// defaults collects the materials created for primitives that name none.
	defaults []resource.ID
}

// gltfMeshExtractor turns glTF meshes into mesh resources, one per primitive.
type gltfMeshExtractor interface {
	// ExtractMesh adds every primitive of a mesh to the store.
	//
	// Parameters:
	//   - meshIndex: the index of the mesh in the document
	//
	// Returns:
	//   - []gltfPrimitiveRef: the primitives in document order
	//   - error: error if a primitive is malformed
	ExtractMesh(meshIndex int) ([]gltfPrimitiveRef, error)

	// ExtractAllMeshes extracts every mesh in document order.
	ExtractAllMeshes() ([][]gltfPrimitiveRef, error)

	// DefaultMaterials returns the materials created for primitives without one.
	DefaultMaterials() []resource.ID
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

// newGLTFMeshExtractor creates a mesh extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//   - store: the store receiving meshes
//   - origin: the provenance prefix for created resources
//   - materials: the material ids in document order
//
// Returns:
//   - gltfMeshExtractor: the mesh extractor
func newGLTFMeshExtractor(parser gltfParser, store resource.Store, origin string, materials []resource.ID) gltfMeshExtractor {
	return &gltfMeshExtractorImpl{parser: parser, store: store, origin: origin, materials: materials}
}

func (e *gltfMeshExtractorImpl) DefaultMaterials() []resource.ID {
	return e.defaults
}

func (e *gltfMeshExtractorImpl) ExtractMesh(meshIndex int) ([]gltfPrimitiveRef, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, errNoDocument
	}
	if meshIndex < 0 || meshIndex >= len(doc.Meshes) {
		return nil, fmt.Errorf("mesh index %d out of range", meshIndex)
	}
	mesh := &doc.Meshes[meshIndex]
	if len(mesh.Primitives) == 0 {
		return nil, fmt.Errorf("mesh %d has no primitives", meshIndex)
	}

	refs := make([]gltfPrimitiveRef, 0, len(mesh.Primitives))
	for i := range mesh.Primitives {
		prim := &mesh.Primitives[i]
		data, err := e.extractPrimitive(prim)
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: %w", meshIndex, i, err)
		}

		name := common.Coalesce(mesh.Name, "Untitled")
		if len(mesh.Primitives) > 1 {
			name = fmt.Sprintf("%s#%d", name, i)
		}
		res, err := e.store.AddMesh(fmt.Sprintf("%s#mesh%d.%d", e.origin, meshIndex, i), name, data)
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: %w", meshIndex, i, err)
		}

		mat, err := e.primitiveMaterial(prim)
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: %w", meshIndex, i, err)
		}
		refs = append(refs, gltfPrimitiveRef{Mesh: res.ID(), Material: mat})
	}
	return refs, nil
}

func (e *gltfMeshExtractorImpl) ExtractAllMeshes() ([][]gltfPrimitiveRef, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, errNoDocument
	}
	out := make([][]gltfPrimitiveRef, len(doc.Meshes))
	for i := range doc.Meshes {
		refs, err := e.ExtractMesh(i)
		if err != nil {
			return nil, err
		}
		out[i] = refs
	}
	return out, nil
}

// primitiveMaterial returns the primitive's material, creating a fresh default material when
// it names none.
func (e *gltfMeshExtractorImpl) primitiveMaterial(prim *gltfPrimitive) (resource.ID, error) {
	if prim.Material != nil {
		idx := *prim.Material
		if idx < 0 || idx >= len(e.materials) {
			return 0, fmt.Errorf("material index %d out of range", idx)
		}
		return e.materials[idx], nil
	}
	res, err := e.store.AddMaterial(e.origin, "Default Material", resource.DefaultMaterialData())
	if err != nil {
		return 0, err
	}
	e.defaults = append(e.defaults, res.ID())
	return res.ID(), nil
}

// extractPrimitive reads one triangle primitive. Positions are required; indices default to
// the sequential list and absent normals, tangents and texcoords are zero-filled.
func (e *gltfMeshExtractorImpl) extractPrimitive(prim *gltfPrimitive) (*resource.MeshData, error) {
	if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
		return nil, fmt.Errorf("unsupported primitive mode: %d (only triangles supported)", *prim.Mode)
	}

	posAccessor, ok := prim.Attributes["POSITION"]
	if !ok {
		return nil, fmt.Errorf("primitive has no POSITION attribute")
	}
	pos, err := e.parser.ReadFloats(posAccessor, gltfAccessorTypeVec3)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}
	vertexCount := len(pos) / 3

	data := &resource.MeshData{
		Positions: toVec3s(pos, 3),
		Normals:   make([]mgl32.Vec3, vertexCount),
		Tangents:  make([]mgl32.Vec3, vertexCount),
		Texcoords: make([]mgl32.Vec2, vertexCount),
	}

	if idx, ok := prim.Attributes["NORMAL"]; ok {
		v, err := e.readAttribute(idx, gltfAccessorTypeVec3, vertexCount)
		if err != nil {
			return nil, fmt.Errorf("failed to read normals: %w", err)
		}
		data.Normals = toVec3s(v, 3)
	}

	// glTF TANGENT is VEC4: xyz = tangent direction, w = handedness.
	if idx, ok := prim.Attributes["TANGENT"]; ok {
		v, err := e.readAttribute(idx, gltfAccessorTypeVec4, vertexCount)
		if err != nil {
			return nil, fmt.Errorf("failed to read tangents: %w", err)
		}
		data.Tangents = toVec3s(v, 4)
	}

	if idx, ok := prim.Attributes["TEXCOORD_0"]; ok {
		v, err := e.readAttribute(idx, gltfAccessorTypeVec2, vertexCount)
		if err != nil {
			return nil, fmt.Errorf("failed to read texcoords: %w", err)
		}
		for i := range vertexCount {
			data.Texcoords[i] = mgl32.Vec2{v[i*2], v[i*2+1]}
		}
	}

	if prim.Indices != nil {
		data.Indices, err = e.parser.ReadIndices(*prim.Indices)
		if err != nil {
			return nil, fmt.Errorf("failed to read indices: %w", err)
		}
	} else {
		data.Indices = make([]uint32, vertexCount)
		for i := range data.Indices {
			data.Indices[i] = uint32(i)
		}
	}
	return data, nil
}

func (e *gltfMeshExtractorImpl) readAttribute(accessorIndex int, accessorType string, vertexCount int) ([]float32, error) {
	v, err := e.parser.ReadFloats(accessorIndex, accessorType)
	if err != nil {
		return nil, err
	}
	if n := len(v) / gltfAccessorTypeComponentCount(accessorType); n != vertexCount {
		return nil, fmt.Errorf("attribute has %d elements, positions have %d", n, vertexCount)
	}
	return v, nil
}

// toVec3s takes the first three components of each stride-sized element.
func toVec3s(v []float32, stride int) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(v)/stride)
	for i := range out {
		out[i] = mgl32.Vec3{v[i*stride], v[i*stride+1], v[i*stride+2]}
	}
	return out
}
