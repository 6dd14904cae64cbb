package renderer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
	"github.com/spaghettifunk/texel/engine/gpu/gputest"
)

func TestSelectShaderFormatPriority(t *testing.T) {
	cases := []struct {
		supported gpu.ShaderFormat
		hint      gpu.ShaderFormat
		dir       string
		entry     string
	}{
		{gpu.ShaderFormatSPIRV | gpu.ShaderFormatMSL | gpu.ShaderFormatDXIL, 0, "SPIRV", "main"},
		{gpu.ShaderFormatSPIRV | gpu.ShaderFormatDXIL, 0, "SPIRV", "main"},
		{gpu.ShaderFormatMSL | gpu.ShaderFormatDXIL, 0, "MSL", "main0"},
		{gpu.ShaderFormatMSL | gpu.ShaderFormatMetalLib, 0, "MSL", "main0"},
		{gpu.ShaderFormatDXIL | gpu.ShaderFormatDXBC, 0, "DXIL", "main"},
		{gpu.ShaderFormatSPIRV | gpu.ShaderFormatMSL, gpu.ShaderFormatMSL, "MSL", "main0"},
	}
	for _, c := range cases {
		f, err := SelectShaderFormat(c.supported, c.hint)
		require.NoError(t, err, c.supported.String())
		assert.Equal(t, c.dir, f.Dir, c.supported.String())
		assert.Equal(t, c.entry, f.Entrypoint, c.supported.String())
	}
}

func TestSelectShaderFormatNeverMixesConventions(t *testing.T) {
	want := map[gpu.ShaderFormat]ShaderFormatInfo{
		gpu.ShaderFormatSPIRV: {gpu.ShaderFormatSPIRV, "SPIRV", ".spv", "main"},
		gpu.ShaderFormatMSL:   {gpu.ShaderFormatMSL, "MSL", ".msl", "main0"},
		gpu.ShaderFormatDXIL:  {gpu.ShaderFormatDXIL, "DXIL", ".dxil", "main"},
	}

	// every combination of the six known formats
	for set := gpu.ShaderFormat(0); set < 1<<6; set++ {
		f, err := SelectShaderFormat(set, 0)
		if set&(gpu.ShaderFormatSPIRV|gpu.ShaderFormatMSL|gpu.ShaderFormatDXIL) == 0 {
			assert.ErrorIs(t, err, core.ErrNoSupportedFormat, set.String())
			continue
		}
		require.NoError(t, err)
		assert.True(t, set.Has(f.Format))
		assert.Equal(t, want[f.Format], f)
		if set.Has(gpu.ShaderFormatSPIRV) {
			assert.Equal(t, gpu.ShaderFormatSPIRV, f.Format)
		} else if set.Has(gpu.ShaderFormatMSL) {
			assert.Equal(t, gpu.ShaderFormatMSL, f.Format)
		}
	}
}

func TestInferShaderStage(t *testing.T) {
	stage, err := InferShaderStage("RawTriangle.vert")
	require.NoError(t, err)
	assert.Equal(t, gpu.ShaderStageVertex, stage)

	stage, err = InferShaderStage("SolidColor.frag")
	require.NoError(t, err)
	assert.Equal(t, gpu.ShaderStageFragment, stage)

	for _, name := range []string{"Compute.comp", "shader", "", "vert", "frag.glsl"} {
		_, err := InferShaderStage(name)
		assert.ErrorIs(t, err, core.ErrUnrecognizedStage, name)
	}
}

func TestLoadShaderUnrecognizedStageDoesNoIO(t *testing.T) {
	d := gputest.New(gpu.ShaderFormatSPIRV)
	ac, fsys := shaderAssets()

	for _, name := range []string{"Blur.comp", "Mesh.geom", "Quad"} {
		s, err := LoadShader(d, ac, name, 0, 0, 0, 0)
		assert.ErrorIs(t, err, core.ErrUnrecognizedStage)
		assert.Nil(t, s)
	}
	assert.Empty(t, fsys.opens)
	assert.Empty(t, d.Calls())
}

func TestLoadShaderNoSupportedFormat(t *testing.T) {
	d := gputest.New(gpu.ShaderFormatDXBC | gpu.ShaderFormatMetalLib)
	ac, fsys := shaderAssets()

	s, err := LoadShader(d, ac, "RawTriangle.vert", 0, 0, 0, 0)
	assert.ErrorIs(t, err, core.ErrNoSupportedFormat)
	assert.Equal(t, core.AssetFailure, core.Classify(err))
	assert.Nil(t, s)
	assert.Empty(t, fsys.opens)
	assert.Zero(t, d.CallCount("CreateShader"))
}

func TestLoadShaderPerFormat(t *testing.T) {
	cases := []struct {
		formats gpu.ShaderFormat
		path    string
		entry   string
	}{
		{gpu.ShaderFormatSPIRV, "Shaders/Compiled/SPIRV/TexturedQuad.frag.spv", "main"},
		{gpu.ShaderFormatMSL, "Shaders/Compiled/MSL/TexturedQuad.frag.msl", "main0"},
		{gpu.ShaderFormatDXIL, "Shaders/Compiled/DXIL/TexturedQuad.frag.dxil", "main"},
	}
	for _, c := range cases {
		d := gputest.New(c.formats)
		ac, fsys := shaderAssets()

		s, err := LoadShader(d, ac, "TexturedQuad.frag", 1, 0, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{c.path}, fsys.opens)

		info := s.(*gputest.Shader).Info
		assert.Equal(t, gpu.ShaderStageFragment, info.Stage)
		assert.Equal(t, c.formats, info.Format)
		assert.Equal(t, c.entry, info.Entrypoint)
		assert.Equal(t, uint32(1), info.NumSamplers)
		assert.Zero(t, info.NumUniformBuffers)
		assert.NotEmpty(t, info.Code)
	}
}

func TestLoadShaderInfoUsesExplicitStage(t *testing.T) {
	d := gputest.New(gpu.ShaderFormatSPIRV | gpu.ShaderFormatMSL)
	ac, fsys := shaderAssets()

	// the name says vertex, the explicit stage wins
	s, err := LoadShaderInfo(d, ac, ShaderInfo{
		Filename:   "RawTriangle.vert",
		Stage:      gpu.ShaderStageFragment,
		FormatHint: gpu.ShaderFormatMSL,
	})
	require.NoError(t, err)
	assert.Equal(t, gpu.ShaderStageFragment, s.Stage())
	assert.Equal(t, []string{"Shaders/Compiled/MSL/RawTriangle.vert.msl"}, fsys.opens)
}

func TestLoadShaderFailures(t *testing.T) {
	ac, _ := shaderAssets()

	d := gputest.New(gpu.ShaderFormatSPIRV)
	_, err := LoadShader(d, ac, "Missing.vert", 0, 0, 0, 0)
	assert.ErrorIs(t, err, core.ErrShaderFileNotFound)
	assert.Contains(t, err.Error(), "Shaders/Compiled/SPIRV/Missing.vert.spv")

	d.Failures.CreateShader = errors.New("malformed SPIR-V header")
	_, err = LoadShader(d, ac, "RawTriangle.vert", 0, 0, 0, 0)
	assert.ErrorIs(t, err, core.ErrShaderCreationFailed)
	assert.Contains(t, err.Error(), "malformed SPIR-V header")
	assert.Empty(t, d.Live())
}
