package renderer

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/texel/engine/assets"
	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
)

// ShaderFormatInfo describes where the bytecode of one format lives and the
// entry point convention its compiler uses.
type ShaderFormatInfo struct {
	Format     gpu.ShaderFormat
	Dir        string
	Extension  string
	Entrypoint string
}

// shaderFormatPriority is the fixed selection order: portable bytecode first,
// then the native formats.
var shaderFormatPriority = []ShaderFormatInfo{
	{Format: gpu.ShaderFormatSPIRV, Dir: "SPIRV", Extension: ".spv", Entrypoint: "main"},
	{Format: gpu.ShaderFormatMSL, Dir: "MSL", Extension: ".msl", Entrypoint: "main0"},
	{Format: gpu.ShaderFormatDXIL, Dir: "DXIL", Extension: ".dxil", Entrypoint: "main"},
}

// SelectShaderFormat picks the first format of the priority list that the
// device supports. A non zero hint restricts the candidates to the formats
// it contains.
func SelectShaderFormat(supported, hint gpu.ShaderFormat) (ShaderFormatInfo, error) {
	candidates := supported
	if hint != gpu.ShaderFormatInvalid {
		candidates &= hint
	}
	for _, f := range shaderFormatPriority {
		if candidates.Has(f.Format) {
			return f, nil
		}
	}
	return ShaderFormatInfo{}, fmt.Errorf("%w: device supports %s", core.ErrNoSupportedFormat, supported)
}

// InferShaderStage derives the stage from a file name such as "Quad.vert".
func InferShaderStage(filename string) (gpu.ShaderStage, error) {
	switch {
	case strings.Contains(filename, ".vert"):
		return gpu.ShaderStageVertex, nil
	case strings.Contains(filename, ".frag"):
		return gpu.ShaderStageFragment, nil
	}
	return 0, fmt.Errorf("%w: %q", core.ErrUnrecognizedStage, filename)
}

// ShaderInfo is everything needed to load one shader stage.
type ShaderInfo struct {
	Filename            string
	Stage               gpu.ShaderStage
	FormatHint          gpu.ShaderFormat
	SamplerCount        uint32
	UniformBufferCount  uint32
	StorageBufferCount  uint32
	StorageTextureCount uint32
}

// LoadShader infers the stage from the file name and loads the shader.
func LoadShader(device gpu.Device, ac *assets.AssetContext, filename string, samplerCount, uniformBufferCount, storageBufferCount, storageTextureCount uint32) (gpu.Shader, error) {
	stage, err := InferShaderStage(filename)
	if err != nil {
		return nil, err
	}
	return LoadShaderInfo(device, ac, ShaderInfo{
		Filename:            filename,
		Stage:               stage,
		SamplerCount:        samplerCount,
		UniformBufferCount:  uniformBufferCount,
		StorageBufferCount:  storageBufferCount,
		StorageTextureCount: storageTextureCount,
	})
}

// LoadShaderInfo reads the bytecode matching the device's preferred format
// and creates the shader. The caller owns the returned shader.
func LoadShaderInfo(device gpu.Device, ac *assets.AssetContext, info ShaderInfo) (gpu.Shader, error) {
	format, err := SelectShaderFormat(device.ShaderFormats(), info.FormatHint)
	if err != nil {
		return nil, err
	}

	path := assets.ShaderPath(format.Dir, info.Filename, format.Extension)
	code, err := ac.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrShaderFileNotFound, ac.FullPath(path), err)
	}

	shader, err := device.CreateShader(&gpu.ShaderCreateInfo{
		Code:               code,
		Entrypoint:         format.Entrypoint,
		Format:             format.Format,
		Stage:              info.Stage,
		NumSamplers:        info.SamplerCount,
		NumUniformBuffers:  info.UniformBufferCount,
		NumStorageBuffers:  info.StorageBufferCount,
		NumStorageTextures: info.StorageTextureCount,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrShaderCreationFailed, info.Filename, err)
	}

	core.LogDebug("loaded %s shader %s (%s, %d bytes)", info.Stage, path, format.Dir, len(code))
	return shader, nil
}
