package wgpu

import (
	_ "embed"

	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/gpu/bvh"
	"github.com/Carmen-Shannon/tracey/engine/gpu/wgpu/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed kernel.wgsl
var kernelSource string

// kernelPreProcessor registers the structs and record strides kernel.wgsl includes, so the
// kernel and the encoders in pack.go share one definition.
func kernelPreProcessor() shader.PreProcessor {
	return shader.NewPreProcessor(
		shader.WithStruct("params", paramsSource, "Params"),
		shader.WithStruct("texture_record", textureRecordSource, "TextureRecord"),
		shader.WithConstant("NODE_WORDS", bvh.NodeSize/4),
		shader.WithConstant("INSTANCE_WORDS", instanceSize/4),
		shader.WithConstant("MESH_WORDS", gpu.MeshAddressSize/4),
		shader.WithConstant("MATERIAL_WORDS", gpu.GPUMaterialSize/4),
		shader.WithConstant("WORKGROUP_SIZE", workgroupSize),
		shader.WithConstant("TEXTURE_NEAREST", textureNearest),
		shader.WithConstant("TEXTURE_FLOAT", textureFloat),
		shader.WithConstant("ADDRESS_REPEAT", uint32(gpu.AddressRepeat)),
		shader.WithConstant("ADDRESS_CLAMP", uint32(gpu.AddressClampToEdge)),
		shader.WithConstant("ADDRESS_SHIFT_U", addressShiftU),
		shader.WithConstant("ADDRESS_SHIFT_V", addressShiftV),
	)
}

// expandKernel returns the kernel source ready for compilation and the bind group layout
// entries its declarations describe.
func expandKernel() (string, []wgpu.BindGroupLayoutEntry, error) {
	pp := kernelPreProcessor()
	code, err := pp.Process(kernelSource)
	if err != nil {
		return "", nil, err
	}
	entries, err := shader.LayoutEntries(pp.Declarations(), 0, wgpu.ShaderStageCompute)
	if err != nil {
		return "", nil, err
	}
	return code, entries, nil
}
