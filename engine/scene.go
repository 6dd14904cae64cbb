package engine

import (
	"github.com/spaghettifunk/texel/engine/gpu"
	"github.com/spaghettifunk/texel/engine/renderer"
)

// Scene is the fixed content of one variant: the two shader stages, the
// vertex layout and, when textured, the mesh and sampler to upload.
type Scene struct {
	VertexShader   renderer.ShaderInfo
	FragmentShader renderer.ShaderInfo
	// nil when the vertex shader generates its vertices
	Layout  *renderer.VertexLayout
	Mesh    *renderer.Mesh
	Sampler *gpu.SamplerCreateInfo
}

func (s *Scene) Textured() bool {
	return s.Mesh != nil
}

// SceneFor returns the scene drawn by a variant.
func SceneFor(v Variant) *Scene {
	if v == VariantTriangle {
		return &Scene{
			VertexShader:   renderer.ShaderInfo{Filename: "RawTriangle.vert", Stage: gpu.ShaderStageVertex},
			FragmentShader: renderer.ShaderInfo{Filename: "SolidColor.frag", Stage: gpu.ShaderStageFragment},
		}
	}

	quad := renderer.QuadMesh()
	return &Scene{
		VertexShader: renderer.ShaderInfo{Filename: "TexturedQuad.vert", Stage: gpu.ShaderStageVertex},
		FragmentShader: renderer.ShaderInfo{
			Filename:     "TexturedQuad.frag",
			Stage:        gpu.ShaderStageFragment,
			SamplerCount: 1,
		},
		Layout: &renderer.PositionTextureLayout,
		Mesh:   &quad,
		Sampler: &gpu.SamplerCreateInfo{
			MinFilter:    gpu.FilterNearest,
			MagFilter:    gpu.FilterNearest,
			MipmapMode:   gpu.SamplerMipmapModeNearest,
			AddressModeU: gpu.SamplerAddressModeClampToEdge,
			AddressModeV: gpu.SamplerAddressModeClampToEdge,
			AddressModeW: gpu.SamplerAddressModeClampToEdge,
		},
	}
}
