package wgpu

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandKernel(t *testing.T) {
	code, entries, err := expandKernel()
	require.NoError(t, err)

	assert.NotContains(t, code, "@tracey:")
	assert.Contains(t, code, "struct CameraUniform {")
	assert.Contains(t, code, "camera: CameraUniform,")
	assert.Contains(t, code, "@group(0) @binding(1) var<uniform> params: Params;")
	assert.Contains(t, code, "@group(0) @binding(2) var<storage, read> textures: array<TextureRecord>;")
	assert.Contains(t, code, "const NODE_WORDS: u32 = 8u;")
	assert.Contains(t, code, "const INSTANCE_WORDS: u32 = 52u;")
	assert.Contains(t, code, "const WORKGROUP_SIZE: u32 = 8u;")
	assert.Contains(t, code, "const TEXTURE_FLOAT: u32 = 256u;")

	require.Len(t, entries, 3)
	assert.Equal(t, wgpu.BufferBindingTypeStorage, entries[0].Buffer.Type)
	assert.Equal(t, wgpu.BufferBindingTypeUniform, entries[1].Buffer.Type)
	assert.Equal(t, wgpu.BufferBindingTypeReadOnlyStorage, entries[2].Buffer.Type)
}
