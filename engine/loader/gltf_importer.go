package loader

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/Carmen-Shannon/tracey/common"
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/Carmen-Shannon/tracey/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// gltfImporterImpl is the implementation of the gltfImporter interface.
type gltfImporterImpl struct {
	workers int
}

// gltfImporter combines the parser and the extractors into a complete import: textures,
// materials, meshes and the scene graph.
type gltfImporter interface {
	loaderBackend
}

var _ gltfImporter = &gltfImporterImpl{}

// newGLTFImporter creates a new glTF importer.
//
// Parameters:
//   - workers: the image decode concurrency
//
// Returns:
//   - gltfImporter: the importer
func newGLTFImporter(workers int) gltfImporter {
	return &gltfImporterImpl{workers: workers}
}

func (imp *gltfImporterImpl) Extensions() []string {
	return []string{".gltf", ".glb"}
}

func (imp *gltfImporterImpl) Import(path string, store resource.Store) (*Result, error) {
	parser := newGLTFParser()
	if err := parser.Parse(path); err != nil {
		return nil, err
	}
	return imp.importFromParser(parser, path, store)
}

func (imp *gltfImporterImpl) ImportReader(name string, r io.Reader, isGLB bool, store resource.Store) (*Result, error) {
	parser := newGLTFParser()
	if err := parser.ParseReader(r, isGLB, filepath.Dir(name)); err != nil {
		return nil, err
	}
	return imp.importFromParser(parser, name, store)
}

func (imp *gltfImporterImpl) importFromParser(parser gltfParser, origin string, store resource.Store) (*Result, error) {
	materials := newGLTFMaterialExtractor(parser, store, origin, imp.workers)
	textures, err := materials.ExtractImages()
	if err != nil {
		return nil, err
	}
	matIDs, err := materials.ExtractAllMaterials()
	if err != nil {
		return nil, err
	}

	meshes := newGLTFMeshExtractor(parser, store, origin, matIDs)
	prims, err := meshes.ExtractAllMeshes()
	if err != nil {
		return nil, err
	}

	graph, err := gltfBuildGraph(parser.Document(), prims, filepath.Base(origin))
	if err != nil {
		return nil, err
	}

	res := &Result{
		Path:      origin,
		Graph:     graph,
		Textures:  textures,
		Materials: append(matIDs, meshes.DefaultMaterials()...),
	}
	for _, refs := range prims {
		for _, r := range refs {
			res.Meshes = append(res.Meshes, r.Mesh)
		}
	}
	return res, nil
}

// gltfBuildGraph mirrors the node hierarchy of the default scene under a fresh graph root.
// A node whose mesh has several primitives gets one child per primitive.
func gltfBuildGraph(doc *gltfDocument, prims [][]gltfPrimitiveRef, name string) (scene.Graph, error) {
	g := scene.New(name)
	visited := make([]bool, len(doc.Nodes))

	var add func(parent, index int) error
	add = func(parent, index int) error {
		if index < 0 || index >= len(doc.Nodes) {
			return fmt.Errorf("node index %d out of range", index)
		}
		if visited[index] {
			return fmt.Errorf("node %d is referenced more than once", index)
		}
		visited[index] = true
		gn := &doc.Nodes[index]

		n := scene.NewNode(common.Coalesce(gn.Name, fmt.Sprintf("node%d", index)))
		n.Local = gltfNodeTransform(gn)

		var refs []gltfPrimitiveRef
		if gn.Mesh != nil {
			if *gn.Mesh < 0 || *gn.Mesh >= len(prims) {
				return fmt.Errorf("node %d: mesh index %d out of range", index, *gn.Mesh)
			}
			refs = prims[*gn.Mesh]
			if len(refs) == 1 {
				n.Mesh = resource.Ref(refs[0].Mesh)
				n.Material = resource.Ref(refs[0].Material)
			}
		}

		idx, err := g.AddNode(parent, n)
		if err != nil {
			return err
		}
		if len(refs) > 1 {
			for i, r := range refs {
				child := scene.NewNode(fmt.Sprintf("%s#%d", n.Name, i))
				child.Mesh = resource.Ref(r.Mesh)
				child.Material = resource.Ref(r.Material)
				if _, err := g.AddNode(idx, child); err != nil {
					return err
				}
			}
		}
		for _, c := range gn.Children {
			if err := add(idx, c); err != nil {
				return err
			}
		}
		return nil
	}

	roots, err := gltfSceneRoots(doc)
	if err != nil {
		return nil, err
	}
	for _, r := range roots {
		if err := add(g.Root(), r); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// gltfSceneRoots returns the root nodes of the default scene. Without scenes, every node that
// is nobody's child is a root.
func gltfSceneRoots(doc *gltfDocument) ([]int, error) {
	if len(doc.Scenes) > 0 {
		s := 0
		if doc.Scene != nil {
			s = *doc.Scene
		}
		if s < 0 || s >= len(doc.Scenes) {
			return nil, fmt.Errorf("scene index %d out of range", s)
		}
		return doc.Scenes[s].Nodes, nil
	}

	isChild := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(isChild) {
				isChild[c] = true
			}
		}
	}
	var roots []int
	for i, child := range isChild {
		if !child {
			roots = append(roots, i)
		}
	}
	return roots, nil
}

// gltfNodeTransform returns the node's local matrix, or T * R * S when no matrix is given.
func gltfNodeTransform(n *gltfNode) mgl32.Mat4 {
	if n.Matrix != nil {
		return mgl32.Mat4(*n.Matrix)
	}
	t := mgl32.Vec3{}
	r := mgl32.QuatIdent()
	s := mgl32.Vec3{1, 1, 1}
	if n.Translation != nil {
		t = mgl32.Vec3(*n.Translation)
	}
	if n.Rotation != nil {
		q := *n.Rotation
		r = mgl32.Quat{W: q[3], V: mgl32.Vec3{q[0], q[1], q[2]}}
	}
	if n.Scale != nil {
		s = mgl32.Vec3(*n.Scale)
	}
	return common.ComposeTRS(t, r, s)
}
