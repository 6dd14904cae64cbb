package renderer

import (
	"fmt"

	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
)

// VertexLayout is the vertex input of a pipeline: one description per
// bound buffer and the ordered attribute list.
type VertexLayout struct {
	Buffers    []gpu.VertexBufferDescription
	Attributes []gpu.VertexAttribute
}

const (
	pipelinePrimitiveType = gpu.PrimitiveTypeTriangleList
	pipelineFillMode      = gpu.FillModeFill
)

// BuildPipeline creates a single color target pipeline. layout may be nil
// for shaders that generate their vertices.
func BuildPipeline(device gpu.Device, vertexShader, fragmentShader gpu.Shader, layout *VertexLayout, colorFormat gpu.TextureFormat) (gpu.GraphicsPipeline, error) {
	if colorFormat == gpu.TextureFormatInvalid {
		return nil, fmt.Errorf("%w: invalid color target format", core.ErrPipelineCreationFailed)
	}

	info := &gpu.GraphicsPipelineCreateInfo{
		VertexShader:   vertexShader,
		FragmentShader: fragmentShader,
		PrimitiveType:  pipelinePrimitiveType,
		FillMode:       pipelineFillMode,
		ColorTargetDescriptions: []gpu.ColorTargetDescription{
			{Format: colorFormat},
		},
	}
	if layout != nil {
		info.VertexInputState = gpu.VertexInputState{
			VertexBufferDescriptions: layout.Buffers,
			VertexAttributes:         layout.Attributes,
		}
	}

	pipeline, err := device.CreateGraphicsPipeline(info)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPipelineCreationFailed, err)
	}
	core.LogDebug("graphics pipeline created (color format %s, %d vertex attributes)", colorFormat, len(info.VertexInputState.VertexAttributes))
	return pipeline, nil
}
