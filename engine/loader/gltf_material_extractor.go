package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/tracey/common"
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

// gltfMaterialExtractorImpl is the implementation of the gltfMaterialExtractor interface.
type gltfMaterialExtractorImpl struct {
	parser  gltfParser
	store   resource.Store
	origin  string
	workers int

	// images maps glTF image indices to texture resources.
	images map[int]resource.ID
}

// gltfMaterialExtractor turns glTF images and materials into store resources. Images must be
// extracted before materials so texture references can be resolved.
type gltfMaterialExtractor interface {
	// ExtractImages decodes every image in the document and adds it to the store as an RGBA8
	// texture with origin "<origin>#<imageIndex>". Decoding runs concurrently; resources are
	// added in image order.
	//
	// Returns:
	//   - []resource.ID: the texture ids in image order
	//   - error: error if any image cannot be read or decoded
	ExtractImages() ([]resource.ID, error)

	// ExtractMaterial adds a single material to the store.
	//
	// Parameters:
	//   - materialIndex: the index of the material in the document
	//
	// Returns:
	//   - resource.ID: the material id
	//   - error: error if a texture reference is invalid
	ExtractMaterial(materialIndex int) (resource.ID, error)

	// ExtractAllMaterials adds every material in document order.
	ExtractAllMaterials() ([]resource.ID, error)
}

var _ gltfMaterialExtractor = &gltfMaterialExtractorImpl{}

// newGLTFMaterialExtractor creates a material extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//   - store: the store receiving textures and materials
//   - origin: the provenance prefix for created resources
//   - workers: the image decode concurrency
//
// Returns:
//   - gltfMaterialExtractor: the material extractor
func newGLTFMaterialExtractor(parser gltfParser, store resource.Store, origin string, workers int) gltfMaterialExtractor {
	return &gltfMaterialExtractorImpl{
		parser:  parser,
		store:   store,
		origin:  origin,
		workers: max(workers, 1),
		images:  make(map[int]resource.ID),
	}
}

func (e *gltfMaterialExtractorImpl) ExtractImages() ([]resource.ID, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, errNoDocument
	}

	decoded := make([]common.TextureStagingData, len(doc.Images))
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range doc.Images {
		g.Go(func() error {
			raw, err := e.readImage(&doc.Images[i])
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			staging, _, err := common.DecodeRGBABytes(raw)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			decoded[i] = staging
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := make([]resource.ID, len(decoded))
	for i, staging := range decoded {
		name := common.Coalesce(doc.Images[i].Name, "Untitled")
		res, err := e.store.AddTexture(fmt.Sprintf("%s#%d", e.origin, i), name, &resource.TextureData{
			Width:  staging.Width,
			Height: staging.Height,
			Format: resource.TextureFormatRGBA8,
			Pixels: staging.Pixels,
		})
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		e.images[i] = res.ID()
		ids[i] = res.ID()
	}
	return ids, nil
}

// readImage returns the encoded bytes of an image from a buffer view, a data URI or an
// external file.
func (e *gltfMaterialExtractorImpl) readImage(img *gltfImage) ([]byte, error) {
	switch {
	case img.BufferView != nil:
		return e.parser.ReadBufferView(*img.BufferView)
	case img.URI != "":
		return e.parser.ReadURI(img.URI)
	default:
		return nil, fmt.Errorf("image %q has neither bufferView nor uri", img.Name)
	}
}

func (e *gltfMaterialExtractorImpl) ExtractMaterial(materialIndex int) (resource.ID, error) {
	doc := e.parser.Document()
	if doc == nil {
		return 0, errNoDocument
	}
	if materialIndex < 0 || materialIndex >= len(doc.Materials) {
		return 0, fmt.Errorf("material index %d out of range", materialIndex)
	}
	mat := &doc.Materials[materialIndex]

	// glTF defaults: white base color, fully metallic and rough.
	data := resource.MaterialData{
		BaseColor: mgl32.Vec4{1, 1, 1, 1},
		Metallic:  1,
		Roughness: 1,
	}

	var err error
	if pbr := mat.PbrMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			data.BaseColor = mgl32.Vec4(*pbr.BaseColorFactor)
		}
		if pbr.MetallicFactor != nil {
			data.Metallic = *pbr.MetallicFactor
		}
		if pbr.RoughnessFactor != nil {
			data.Roughness = *pbr.RoughnessFactor
		}
		if data.BaseColorTexture, err = e.textureRef(pbr.BaseColorTexture); err != nil {
			return 0, fmt.Errorf("material %q: base color texture: %w", mat.Name, err)
		}
		if data.MetallicRoughnessTexture, err = e.textureRef(pbr.MetallicRoughnessTexture); err != nil {
			return 0, fmt.Errorf("material %q: metallic-roughness texture: %w", mat.Name, err)
		}
	}
	if mat.EmissiveFactor != nil {
		f := *mat.EmissiveFactor
		data.Emission = mgl32.Vec4{f[0], f[1], f[2], 1}
	}
	if data.NormalTexture, err = e.textureRef(mat.NormalTexture); err != nil {
		return 0, fmt.Errorf("material %q: normal texture: %w", mat.Name, err)
	}
	if data.EmissionTexture, err = e.textureRef(mat.EmissiveTexture); err != nil {
		return 0, fmt.Errorf("material %q: emissive texture: %w", mat.Name, err)
	}

	res, err := e.store.AddMaterial(fmt.Sprintf("%s#material%d", e.origin, materialIndex), common.Coalesce(mat.Name, "Untitled"), data)
	if err != nil {
		return 0, fmt.Errorf("material %d: %w", materialIndex, err)
	}
	return res.ID(), nil
}

func (e *gltfMaterialExtractorImpl) ExtractAllMaterials() ([]resource.ID, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, errNoDocument
	}
	ids := make([]resource.ID, len(doc.Materials))
	for i := range doc.Materials {
		id, err := e.ExtractMaterial(i)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// textureRef resolves a texture info to the texture resource of its source image. A texture
// without a source yields no reference.
func (e *gltfMaterialExtractorImpl) textureRef(info *gltfTextureInfo) (*resource.ID, error) {
	if info == nil {
		return nil, nil
	}
	doc := e.parser.Document()
	if info.Index < 0 || info.Index >= len(doc.Textures) {
		return nil, fmt.Errorf("texture index %d out of range", info.Index)
	}
	src := doc.Textures[info.Index].Source
	if src == nil {
		return nil, nil
	}
	id, ok := e.images[*src]
	if !ok {
		return nil, fmt.Errorf("image index %d out of range", *src)
	}
	return resource.Ref(id), nil
}
