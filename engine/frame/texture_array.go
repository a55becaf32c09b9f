package frame

import (
	"fmt"

	"github.com/Carmen-Shannon/tracey/engine/cache"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/resource"
)

// TextureArray assigns bindless slots to textures. A texture pushed twice keeps its first slot,
// so slots follow first-insertion order.
type TextureArray struct {
	limit    int
	slots    map[resource.ID]int32
	textures []*cache.Texture
}

// NewTextureArray creates an empty array holding at most limit textures.
func NewTextureArray(limit int) *TextureArray {
	return &TextureArray{limit: limit, slots: make(map[resource.ID]int32)}
}

// Push returns the slot of t, assigning the next free one on first sight.
//
// Parameters:
//   - t: the resident texture
//
// Returns:
//   - int32: the slot index
//   - error: error when the array is full
func (a *TextureArray) Push(t *cache.Texture) (int32, error) {
	if i, ok := a.slots[t.ID]; ok {
		return i, nil
	}
	if len(a.textures) >= a.limit {
		return gpu.NoTexture, fmt.Errorf("texture array full (%d slots) at texture %s", a.limit, t.ID)
	}
	i := int32(len(a.textures))
	a.slots[t.ID] = i
	a.textures = append(a.textures, t)
	return i, nil
}

// Slot returns the slot assigned to id.
func (a *TextureArray) Slot(id resource.ID) (int32, bool) {
	i, ok := a.slots[id]
	return i, ok
}

// Len returns the number of occupied slots.
func (a *TextureArray) Len() int {
	return len(a.textures)
}

// Textures returns the textures in slot order.
func (a *TextureArray) Textures() []*cache.Texture {
	return append([]*cache.Texture(nil), a.textures...)
}

// SampledImages returns the descriptor array contents in slot order.
func (a *TextureArray) SampledImages() []gpu.SampledImage {
	out := make([]gpu.SampledImage, len(a.textures))
	for i, t := range a.textures {
		out[i] = gpu.SampledImage{Image: t.Image, Sampler: t.Sampler}
	}
	return out
}
