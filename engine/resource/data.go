package resource

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrInvalidMesh is returned when mesh geometry is inconsistent.
	ErrInvalidMesh = errors.New("invalid mesh")
	// ErrInvalidTexture is returned when texture dimensions and pixel data disagree.
	ErrInvalidTexture = errors.New("invalid texture")
	// ErrInvalidMaterial is returned when a material references something that is not a texture in the same store.
	ErrInvalidMaterial = errors.New("invalid material")
)

// MeshData is triangle-list geometry with one normal, tangent and texcoord per position.
type MeshData struct {
	Indices   []uint32
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Tangents  []mgl32.Vec3
	Texcoords []mgl32.Vec2
}

// Validate checks that the indices form whole triangles inside the vertex range and that every
// attribute stream has one entry per position.
//
// Returns:
//   - error: a wrapped ErrInvalidMesh describing the first problem found, or nil
func (m *MeshData) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil mesh", ErrInvalidMesh)
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%w: index count %d is not a multiple of 3", ErrInvalidMesh, len(m.Indices))
	}
	n := len(m.Positions)
	if len(m.Normals) != n || len(m.Tangents) != n || len(m.Texcoords) != n {
		return fmt.Errorf("%w: attribute counts differ (positions %d, normals %d, tangents %d, texcoords %d)",
			ErrInvalidMesh, n, len(m.Normals), len(m.Tangents), len(m.Texcoords))
	}
	for i, idx := range m.Indices {
		if int(idx) >= n {
			return fmt.Errorf("%w: index %d at %d out of range (%d vertices)", ErrInvalidMesh, idx, i, n)
		}
	}
	return nil
}

// TriangleCount returns the number of triangles described by the indices.
func (m *MeshData) TriangleCount() int {
	return len(m.Indices) / 3
}

// TextureFormat is the pixel layout of texture data.
type TextureFormat int

const (
	// TextureFormatRGBA8 is 8-bit unorm RGBA, 4 bytes per pixel.
	TextureFormatRGBA8 TextureFormat = iota
)

// Clone returns a deep copy of the geometry.
func (m *MeshData) Clone() *MeshData {
	if m == nil {
		return nil
	}
	return &MeshData{
		Indices:   slices.Clone(m.Indices),
		Positions: slices.Clone(m.Positions),
		Normals:   slices.Clone(m.Normals),
		Tangents:  slices.Clone(m.Tangents),
		Texcoords: slices.Clone(m.Texcoords),
	}
}

// TextureData is a 2D image in RGBA8.
type TextureData struct {
	Width  uint32
	Height uint32
	Format TextureFormat
	Pixels []byte
}

// Validate checks that the pixel buffer matches the dimensions.
func (t *TextureData) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil texture", ErrInvalidTexture)
	}
	if t.Width == 0 || t.Height == 0 {
		return fmt.Errorf("%w: zero size %dx%d", ErrInvalidTexture, t.Width, t.Height)
	}
	if want := int(t.Width) * int(t.Height) * 4; len(t.Pixels) != want {
		return fmt.Errorf("%w: %d bytes of pixels, want %d", ErrInvalidTexture, len(t.Pixels), want)
	}
	return nil
}

// Clone returns a deep copy of the texture.
func (t *TextureData) Clone() *TextureData {
	if t == nil {
		return nil
	}
	c := *t
	c.Pixels = slices.Clone(t.Pixels)
	return &c
}

// ExpandRGB converts tightly packed RGB8 pixels to RGBA8 with opaque alpha.
//
// Parameters:
//   - rgb: 3 bytes per pixel
//
// Returns:
//   - []byte: 4 bytes per pixel
func ExpandRGB(rgb []byte) []byte {
	out := make([]byte, len(rgb)/3*4)
	for i, j := 0, 0; i+2 < len(rgb); i, j = i+3, j+4 {
		out[j] = rgb[i]
		out[j+1] = rgb[i+1]
		out[j+2] = rgb[i+2]
		out[j+3] = 0xff
	}
	return out
}

// MaterialData holds the scalar parameters of a metallic-roughness material and the ids of its
// texture maps. Textures are referenced by id, never by pointer.
type MaterialData struct {
	BaseColor mgl32.Vec4
	Emission  mgl32.Vec4
	Roughness float32
	Metallic  float32
	Sheen     float32
	ClearCoat float32

	BaseColorTexture         *ID
	MetallicRoughnessTexture *ID
	NormalTexture            *ID
	EmissionTexture          *ID
}

// DefaultMaterialData returns the parameters of the material used for meshes without one:
// mid grey, fully rough, non-metallic and non-emissive.
func DefaultMaterialData() MaterialData {
	return MaterialData{
		BaseColor: mgl32.Vec4{0.5, 0.5, 0.5, 1},
		Roughness: 1,
	}
}

// TextureMapCount is the number of texture slots a material carries.
const TextureMapCount = 4

// TextureMaps returns the texture references in slot order: base color, metallic-roughness,
// normal, emission. Absent maps are nil.
func (m *MaterialData) TextureMaps() [TextureMapCount]*ID {
	return [TextureMapCount]*ID{m.BaseColorTexture, m.MetallicRoughnessTexture, m.NormalTexture, m.EmissionTexture}
}

// Clone returns a copy of the material whose texture references are not shared with m.
func (m *MaterialData) Clone() *MaterialData {
	if m == nil {
		return nil
	}
	c := *m
	c.BaseColorTexture = cloneRef(m.BaseColorTexture)
	c.MetallicRoughnessTexture = cloneRef(m.MetallicRoughnessTexture)
	c.NormalTexture = cloneRef(m.NormalTexture)
	c.EmissionTexture = cloneRef(m.EmissionTexture)
	return &c
}

func cloneRef(ref *ID) *ID {
	if ref == nil {
		return nil
	}
	return Ref(*ref)
}

// Ref returns a pointer to a copy of id, for filling optional fields.
func Ref(id ID) *ID {
	return &id
}
