package wgpu

import (
	"testing"

	"github.com/Carmen-Shannon/tracey/common"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/gpu/bvh"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triangle(t *testing.T) *bvh.Triangles {
	t.Helper()
	tris, err := bvh.BuildTriangles([]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}, []uint32{0, 1, 2})
	require.NoError(t, err)
	return tris
}

func TestEncodeBottomLevel(t *testing.T) {
	tris := triangle(t)
	require.Len(t, tris.Nodes, 1)

	buf := encodeBottomLevel(1024, tris, 2048, 4096)
	require.Len(t, buf, 68)
	assert.Equal(t, []uint32{264, 1, 272, 512, 1024, 1}, decodeUint32s(buf, 6))

	// Root box and leaf count, then the one-entry order table.
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, decodeVec3s(buf[32:44], 1)[0])
	assert.Equal(t, mgl32.Vec3{1, 1, 0}, decodeVec3s(buf[48:60], 1)[0])
	assert.Equal(t, float32(-1), common.Float32At(buf, 60))
	assert.Equal(t, []uint32{0}, decodeUint32s(buf[64:], 1))
}

func TestEncodeTopLevel(t *testing.T) {
	move := mgl32.Translate3D(1, 2, 3)
	records := []instanceRecord{
		newInstanceRecord(gpu.Instance{Transform: move, CustomIndex: 7}, 100),
		newInstanceRecord(gpu.Instance{Transform: mgl32.Ident4(), CustomIndex: 9}, 200),
	}
	tree := bvh.Build([]bvh.Item{
		{Bounds: bvh.AABB{Min: mgl32.Vec3{1, 2, 3}, Max: mgl32.Vec3{2, 3, 4}}, ID: 0},
		{Bounds: bvh.AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{1, 1, 1}}, ID: 1},
	})
	require.Len(t, tree.Nodes, 1)

	buf := encodeTopLevel(2048, tree, records)
	require.Len(t, buf, 32+32+2*instanceSize+8)
	assert.Equal(t, []uint32{520, 1, 632, 528, 2}, decodeUint32s(buf, 5))

	first := 64
	assert.Equal(t, float32(-1), common.Float32At(buf, first+48), "inverse translation x")
	assert.Equal(t, float32(1), common.Float32At(buf, first+128+48), "object-to-world translation x")
	assert.Equal(t, []uint32{7, 100}, decodeUint32s(buf[first+192:], 2))

	second := first + instanceSize
	assert.Equal(t, []uint32{9, 200}, decodeUint32s(buf[second+192:], 2))
	assert.ElementsMatch(t, []uint32{0, 1}, decodeUint32s(buf[second+instanceSize:], 2))
}

func TestEncodeEmptyTopLevel(t *testing.T) {
	tree := bvh.Build(nil)
	buf := encodeTopLevel(512, tree, nil)
	require.Len(t, buf, headerSize)
	assert.Equal(t, uint32(0), decodeUint32s(buf, 2)[1])
}

func TestTextureFlags(t *testing.T) {
	assert.Equal(t, uint32(0), textureFlags(gpu.DefaultSampler, gpu.ImageFormatRGBA8))

	desc := gpu.SamplerDescriptor{
		MagFilter:    gpu.FilterNearest,
		AddressModeU: gpu.AddressClampToEdge,
		AddressModeV: gpu.AddressMirrorRepeat,
	}
	assert.Equal(t, textureNearest|textureFloat|1<<addressShiftU|2<<addressShiftV, textureFlags(desc, gpu.ImageFormatRGBA32F))
}

func TestEncodeTextures(t *testing.T) {
	empty, err := encodeTextures(nil)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, textureRecordSize), empty)

	img := &imageImpl{width: 4, height: 2, format: gpu.ImageFormatRGBA8, alloc: gpu.Allocation{Offset: 512, Size: 32}}
	nearest := &samplerImpl{desc: gpu.SamplerDescriptor{MagFilter: gpu.FilterNearest}}
	table, err := encodeTextures([]gpu.SampledImage{{Image: img}, {Image: img, Sampler: nearest}})
	require.NoError(t, err)
	assert.Equal(t, []uint32{128, 4, 2, 0, 128, 4, 2, textureNearest}, decodeUint32s(table, 8))

	_, err = encodeTextures([]gpu.SampledImage{{}})
	assert.Error(t, err)
}

func TestDispatchParamsLayout(t *testing.T) {
	p := dispatchParams{
		camera:    gpu.GPUCameraUniform{ViewInverse: mgl32.Ident4(), ProjectionInverse: mgl32.Ident4()},
		width:     640,
		height:    480,
		samples:   2,
		tlas:      1000,
		instances: 3,
	}
	buf := p.Marshal()
	require.Len(t, buf, paramsSize)
	assert.Equal(t, float32(1), common.Float32At(buf, 0))
	assert.Equal(t, float32(1), common.Float32At(buf, 64))
	fields := decodeUint32s(buf[gpu.GPUCameraUniformSize:], 16)
	assert.Equal(t, uint32(640), fields[0])
	assert.Equal(t, uint32(480), fields[1])
	assert.Equal(t, uint32(2), fields[2])
	assert.Equal(t, uint32(1000), fields[6])
	assert.Equal(t, uint32(3), fields[14])
}
